package aggregator

import "sort"

// OrderBy is one sort clause over rows of type T.
type OrderBy[T any] struct {
	Key  func(T) interface{}
	Desc bool
}

// Asc orders by key ascending.
func Asc[T any](key func(T) interface{}) OrderBy[T] {
	return OrderBy[T]{Key: key}
}

// Desc orders by key descending.
func Desc[T any](key func(T) interface{}) OrderBy[T] {
	return OrderBy[T]{Key: key, Desc: true}
}

// OrderBySorter sorts rows by a list of clauses. Later clauses break ties
// of earlier ones.
type OrderBySorter[T any] struct {
	clauses []OrderBy[T]
}

// NewOrderBySorter creates a new sorter for the given clauses.
func NewOrderBySorter[T any](clauses ...OrderBy[T]) *OrderBySorter[T] {
	return &OrderBySorter[T]{clauses: clauses}
}

// Sort sorts rows in place.
func (s *OrderBySorter[T]) Sort(rows []T) {
	if len(s.clauses) == 0 || len(rows) <= 1 {
		return
	}

	// Stable sort preserves insertion order for equal elements
	sort.SliceStable(rows, func(i, j int) bool {
		return s.less(rows[i], rows[j])
	})
}

func (s *OrderBySorter[T]) less(a, b T) bool {
	for _, clause := range s.clauses {
		cmp := compareAggValues(clause.Key(a), clause.Key(b))
		if cmp == 0 {
			continue
		}
		if clause.Desc {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}

// TopN sorts rows and returns the first n.
func (s *OrderBySorter[T]) TopN(rows []T, n int) []T {
	s.Sort(rows)
	if n >= 0 && n < len(rows) {
		return rows[:n]
	}
	return rows
}

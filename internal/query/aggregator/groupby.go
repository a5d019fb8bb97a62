package aggregator

import "github.com/claimlens/claimlens/internal/claims"

// Groups accumulates one aggregate state per key and remembers the order in
// which keys were first seen.
type Groups[K comparable, A any] struct {
	order  []K
	byKey  map[K]A
	newAgg func() A
}

// NewGroups creates an empty grouping. newAgg builds the state for a new key.
func NewGroups[K comparable, A any](newAgg func() A) *Groups[K, A] {
	return &Groups[K, A]{
		byKey:  make(map[K]A),
		newAgg: newAgg,
	}
}

// Get returns the state for key, creating it on first use.
func (g *Groups[K, A]) Get(key K) A {
	a, ok := g.byKey[key]
	if !ok {
		a = g.newAgg()
		g.byKey[key] = a
		g.order = append(g.order, key)
	}
	return a
}

// Lookup returns the state for key without creating it.
func (g *Groups[K, A]) Lookup(key K) (A, bool) {
	a, ok := g.byKey[key]
	return a, ok
}

// Keys returns the keys in first-seen order.
func (g *Groups[K, A]) Keys() []K {
	return append([]K(nil), g.order...)
}

// Len returns the number of groups.
func (g *Groups[K, A]) Len() int {
	return len(g.order)
}

// Each visits groups in first-seen order.
func (g *Groups[K, A]) Each(fn func(key K, agg A)) {
	for _, k := range g.order {
		fn(k, g.byKey[k])
	}
}

// Totals holds the raw measures summed over a set of claims: the claim count
// and the sums of benchmark cost, ingredient cost and quantity.
type Totals struct {
	RxCount *PartialAggregate
	NADAC   *PartialAggregate
	ICP     *PartialAggregate
	Qty     *PartialAggregate
}

// NewTotals returns zeroed totals.
func NewTotals() *Totals {
	return &Totals{
		RxCount: NewPartialAggregate(AggCount),
		NADAC:   NewPartialAggregate(AggSum),
		ICP:     NewPartialAggregate(AggSum),
		Qty:     NewPartialAggregate(AggSum),
	}
}

// Add accumulates one claim.
func (t *Totals) Add(c *claims.Claim) {
	t.RxCount.Add(1)
	t.NADAC.Add(c.BenchmarkCost)
	t.ICP.Add(c.IngredientCost)
	t.Qty.Add(c.Quantity)
}

// Merge folds o into t.
func (t *Totals) Merge(o *Totals) {
	t.RxCount.Merge(o.RxCount)
	t.NADAC.Merge(o.NADAC)
	t.ICP.Merge(o.ICP)
	t.Qty.Merge(o.Qty)
}

// Count returns the number of claims accumulated.
func (t *Totals) Count() int64 {
	return t.RxCount.Count
}

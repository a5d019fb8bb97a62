package aggregator

import (
	"testing"

	"github.com/claimlens/claimlens/internal/claims"
)

type testRow struct {
	id   int64
	name string
	val  *float64
}

func fp(v float64) *float64 { return &v }

func byID(r testRow) interface{}   { return r.id }
func byName(r testRow) interface{} { return r.name }
func byVal(r testRow) interface{}  { return r.val }

func TestSort_Basic(t *testing.T) {
	s := NewOrderBySorter(Asc(byID))
	rows := []testRow{{id: 3}, {id: 1}, {id: 2}}
	s.Sort(rows)
	for i, expected := range []int64{1, 2, 3} {
		if rows[i].id != expected {
			t.Fatalf("row %d: expected %d, got %v", i, expected, rows[i].id)
		}
	}
}

func TestSort_TieBreak(t *testing.T) {
	s := NewOrderBySorter(Desc(byVal), Asc(byName))
	rows := []testRow{
		{name: "c", val: fp(5)},
		{name: "b", val: fp(9)},
		{name: "a", val: fp(5)},
	}
	s.Sort(rows)
	for i, expected := range []string{"b", "a", "c"} {
		if rows[i].name != expected {
			t.Fatalf("row %d: expected %s, got %s", i, expected, rows[i].name)
		}
	}
}

func TestSort_StableOnEqualKeys(t *testing.T) {
	s := NewOrderBySorter(Asc(byVal))
	rows := []testRow{{id: 1, val: fp(1)}, {id: 2, val: fp(0)}, {id: 3, val: fp(1)}}
	s.Sort(rows)
	if rows[1].id != 1 || rows[2].id != 3 {
		t.Fatalf("equal keys reordered: %+v", rows)
	}
}

func TestSort_MissingFirst(t *testing.T) {
	s := NewOrderBySorter(Asc(byVal))
	rows := []testRow{{id: 1, val: fp(-10)}, {id: 2}}
	s.Sort(rows)
	if rows[0].id != 2 {
		t.Fatalf("missing value should sort first, got %+v", rows)
	}
}

func TestTopN_Desc(t *testing.T) {
	s := NewOrderBySorter(Desc(byID))
	rows := make([]testRow, 100)
	for i := range rows {
		rows[i] = testRow{id: int64(i)}
	}

	result := s.TopN(rows, 3)
	if len(result) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(result))
	}
	// DESC: 99, 98, 97
	for i, expected := range []int64{99, 98, 97} {
		if result[i].id != expected {
			t.Fatalf("row %d: expected %d, got %v", i, expected, result[i].id)
		}
	}
}

func TestTopN_FewerRowsThanN(t *testing.T) {
	s := NewOrderBySorter(Asc(byID))
	rows := []testRow{{id: 3}, {id: 1}, {id: 2}}
	if result := s.TopN(rows, 10); len(result) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(result))
	}
}

func TestPartialAggregate_AvgSkipsMissing(t *testing.T) {
	avg := NewPartialAggregate(AggAvg)
	avg.Accumulate(fp(4))
	avg.Accumulate(nil)
	avg.Accumulate(fp(6))
	if r := avg.Result(); r == nil || *r != 5 {
		t.Fatalf("avg = %v, want 5", r)
	}

	empty := NewPartialAggregate(AggAvg)
	empty.Accumulate(nil)
	if empty.Result() != nil {
		t.Fatal("avg of only missing values should be missing")
	}
	if v := NewPartialAggregate(AggSum).Value(); v != 0 {
		t.Fatalf("empty sum = %v", v)
	}
}

func TestPartialAggregate_Merge(t *testing.T) {
	a := NewPartialAggregate(AggAvg)
	a.Add(1)
	a.Add(2)
	b := NewPartialAggregate(AggAvg)
	b.Add(6)
	a.Merge(b)
	if r := a.Result(); *r != 3 {
		t.Fatalf("merged avg = %v, want 3", *r)
	}

	mn := NewPartialAggregate(AggMin)
	mn.Add(4)
	other := NewPartialAggregate(AggMin)
	other.Add(-1)
	mn.Merge(other)
	mn.Merge(NewPartialAggregate(AggMin))
	if *mn.Result() != -1 {
		t.Fatalf("min = %v", *mn.Result())
	}
}

func TestGroups_FirstSeenOrder(t *testing.T) {
	g := NewGroups[string](NewTotals)
	for _, name := range []string{"b", "a", "b", "c"} {
		g.Get(name).Add(&claims.Claim{Quantity: 10, IngredientCost: 2, BenchmarkCost: 1})
	}

	keys := g.Keys()
	if len(keys) != 3 || keys[0] != "b" || keys[1] != "a" || keys[2] != "c" {
		t.Fatalf("keys = %v", keys)
	}
	b, _ := g.Lookup("b")
	if b.Count() != 2 || b.Qty.Value() != 20 || b.ICP.Value() != 4 {
		t.Fatalf("totals for b: count=%d qty=%v icp=%v", b.Count(), b.Qty.Value(), b.ICP.Value())
	}

	a, _ := g.Lookup("a")
	a.Merge(b)
	if a.Count() != 3 || a.NADAC.Value() != 3 {
		t.Fatalf("merged totals: count=%d nadac=%v", a.Count(), a.NADAC.Value())
	}
}

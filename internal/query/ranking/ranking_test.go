package ranking

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/claimlens/claimlens/internal/claims"
	"github.com/claimlens/claimlens/internal/query/filter"
	"github.com/claimlens/claimlens/internal/query/share"
)

func addN(b *Builder, group string, n int, icp, nadac, qty float64) {
	for i := 0; i < n; i++ {
		g := group
		b.Add(&claims.Claim{
			GroupName:      &g,
			IngredientCost: icp / float64(n),
			BenchmarkCost:  nadac / float64(n),
			Quantity:       qty / float64(n),
		})
	}
}

func TestRowsDropsBelowThreshold(t *testing.T) {
	b := NewBuilder()
	addN(b, "GroupX", 3, 30, 20, 10)
	addN(b, "GroupY", 1, 5, 3, 2)

	rows := b.Rows(Options{MinClaims: 2, RankBy: filter.RankICP, TopN: 10}, nil)
	if len(rows) != 1 {
		t.Fatalf("expected only GroupX, got %+v", rows)
	}
	x := rows[0]
	if x.GroupName != "GroupX" || x.RxCount != 3 || x.ICP != 30 || x.Margin != 10 {
		t.Errorf("GroupX row = %+v", x)
	}
	if *x.MarginPerRx != 3.33 || *x.QtyPerRx != 3.33 {
		t.Errorf("per-rx should be rounded: margin %v qty %v", *x.MarginPerRx, *x.QtyPerRx)
	}
	if x.Category != share.NonAffiliated {
		t.Errorf("category = %q", x.Category)
	}
}

func TestRowsCollapsesTail(t *testing.T) {
	b := NewBuilder()
	addN(b, "A", 2, 100, 50, 10)
	addN(b, "B", 2, 80, 40, 10)
	addN(b, "C", 2, 60, 30, 10)
	addN(b, "D", 2, 50, 45, 10)
	b.Add(&claims.Claim{IngredientCost: 1000, Quantity: 1}) // no group

	rows := b.Rows(Options{MinClaims: 1, RankBy: filter.RankICP, TopN: 2}, map[string]bool{"B": true})
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	// The collapsed tail (110) outranks both kept groups.
	other := rows[0]
	if !other.IsOther() || other.Category != share.AllOthers {
		t.Fatalf("first row = %+v", other)
	}
	if other.RxCount != 4 || other.ICP != 110 || other.NADAC != 75 || other.Margin != 35 {
		t.Errorf("other row = %+v", other)
	}
	if *other.ICPPerRx != 27.5 {
		t.Errorf("other icp per rx = %v", *other.ICPPerRx)
	}
	if rows[1].GroupName != "A" || rows[2].GroupName != "B" {
		t.Errorf("order = %s, %s", rows[1].GroupName, rows[2].GroupName)
	}
	if rows[2].Category != share.Affiliated || rows[1].Category != share.NonAffiliated {
		t.Errorf("categories = %s, %s", rows[1].Category, rows[2].Category)
	}
}

func TestRowsTieBreakByName(t *testing.T) {
	b := NewBuilder()
	addN(b, "Zed", 2, 50, 10, 4)
	addN(b, "Abe", 2, 50, 10, 4)
	addN(b, "Mid", 2, 20, 10, 4)

	rows := b.Rows(Options{MinClaims: 1, RankBy: filter.RankICP, TopN: 2}, nil)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].GroupName != "Abe" || rows[1].GroupName != "Zed" {
		t.Fatalf("tied groups should order by name, got %s, %s", rows[0].GroupName, rows[1].GroupName)
	}
	if !rows[2].IsOther() || rows[2].ICP != 20 {
		t.Fatalf("Mid should be folded into other: %+v", rows[2])
	}

	// With one slot the tie decides which group is kept.
	rows = b.Rows(Options{MinClaims: 1, RankBy: filter.RankICP, TopN: 1}, nil)
	for _, r := range rows {
		if r.GroupName == "Zed" {
			t.Fatalf("Zed should lose the tie: %+v", rows)
		}
	}
}

func TestRowsNoOtherWhenWithinTopN(t *testing.T) {
	b := NewBuilder()
	addN(b, "A", 2, 10, 5, 2)
	addN(b, "B", 2, 20, 5, 2)
	rows := b.Rows(Options{MinClaims: 1, RankBy: filter.RankMarginPerRx, TopN: 2}, nil)
	if len(rows) != 2 || rows[0].GroupName != "B" {
		t.Fatalf("rows = %+v", rows)
	}
	for _, r := range rows {
		if r.IsOther() {
			t.Fatal("unexpected other row")
		}
	}
}

func TestRowsRealGroupNamedLikeTail(t *testing.T) {
	b := NewBuilder()
	addN(b, share.AllOthers, 2, 100, 50, 2)
	addN(b, "B", 2, 20, 5, 2)
	addN(b, "C", 2, 10, 5, 2)

	affiliated := map[string]bool{share.AllOthers: true}
	rows := b.Rows(Options{MinClaims: 1, RankBy: filter.RankICP, TopN: 1}, affiliated)
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	kept, tail := rows[0], rows[1]
	if kept.IsOther() || kept.ICP != 100 || kept.Category != share.Affiliated {
		t.Errorf("real group row = %+v", kept)
	}
	if !tail.IsOther() || tail.ICP != 30 || tail.RxCount != 4 || tail.Category != share.AllOthers {
		t.Errorf("tail row = %+v", tail)
	}
}

func TestRowsEmpty(t *testing.T) {
	rows := NewBuilder().Rows(Options{MinClaims: 1, RankBy: filter.RankICP, TopN: 10}, nil)
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

func TestProperty_TopNBound(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("top k yields at most k+1 rows and other equals the excluded sums", prop.ForAll(
		func(seed int64, k int, minClaims int) bool {
			r := rand.New(rand.NewSource(seed))
			b := NewBuilder()
			counts := make(map[string]int)
			icp := make(map[string]float64)
			for i := 0; i < 200; i++ {
				g := fmt.Sprintf("G%02d", r.Intn(25))
				v := float64(r.Intn(10000)) / 100
				b.Add(&claims.Claim{GroupName: &g, IngredientCost: v, BenchmarkCost: v / 2, Quantity: 1})
				counts[g]++
				icp[g] += v
			}

			rows := b.Rows(Options{MinClaims: minClaims, RankBy: filter.RankICP, TopN: k}, nil)
			if len(rows) > k+1 {
				return false
			}

			eligible := 0
			var eligibleICP, eligibleRx float64
			for g, n := range counts {
				if n >= minClaims {
					eligible++
					eligibleICP += icp[g]
					eligibleRx += float64(n)
				}
			}

			var keptICP, keptRx float64
			var other *Row
			for i := range rows {
				if rows[i].IsOther() {
					other = &rows[i]
					continue
				}
				keptICP += icp[rows[i].GroupName]
				keptRx += float64(rows[i].RxCount)
			}
			if (eligible > k) != (other != nil) {
				return false
			}
			if other == nil {
				return true
			}
			if float64(other.RxCount) != eligibleRx-keptRx {
				return false
			}
			return math.Abs(other.ICP-(eligibleICP-keptICP)) <= 0.005+1e-9
		},
		gen.Int64(),
		gen.IntRange(1, 30),
		gen.IntRange(1, 12),
	))

	properties.TestingRun(t)
}

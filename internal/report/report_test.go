package report

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/claimlens/claimlens/internal/claims"
	"github.com/claimlens/claimlens/internal/dataset"
	clerrors "github.com/claimlens/claimlens/internal/errors"
	"github.com/claimlens/claimlens/internal/query/filter"
	"github.com/claimlens/claimlens/internal/query/share"
	"github.com/claimlens/claimlens/internal/query/timeseries"
)

type memSource struct {
	rows []claims.Claim
}

func (m *memSource) Scan(ctx context.Context, pred filter.Predicate, fn dataset.ScanFunc) error {
	for i := range m.rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := m.rows[i]
		if pred.Match(&c) {
			if err := fn(&c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *memSource) Columns() []string { return claims.Schema }
func (m *memSource) Describe() string  { return "memory" }
func (m *memSource) Close() error      { return nil }

type recorder struct {
	mu    sync.Mutex
	calls map[string]int
}

func (r *recorder) RecordPipeline(name string, rows int64, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[name]++
}

func strPtr(s string) *string { return &s }

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func claim(product, group string, affiliated bool, dos string, qty, icp, nadac float64) claims.Claim {
	c := claims.Claim{
		Product:        product,
		DateOfService:  day(dos),
		Quantity:       qty,
		IngredientCost: icp,
		BenchmarkCost:  nadac,
		Affiliated:     affiliated,
	}
	if group != "" {
		c.GroupName = strPtr(group)
	}
	return c
}

func fixture() []claims.Claim {
	return []claims.Claim{
		claim("A", "CVS", true, "2024-01-01", 2, 10, 6),
		claim("A", "Walgreens", false, "2024-01-08", 4, 20, 10),
		claim("A", "Walgreens", false, "2024-01-09", 4, 24, 10),
		claim("A", "Walgreens", false, "2024-02-01", 4, 16, 10),
		claim("B", "CVS", false, "2024-01-03", 1, 100, 90),
		claim("B", "Kroger", false, "2024-01-04", 1, 50, 40),
		claim("A", "", false, "2024-01-05", 1, 3, 2),
	}
}

func newService() (*Service, *recorder) {
	rec := &recorder{}
	return NewService(&memSource{rows: fixture()}, rec), rec
}

func TestTimeSeries(t *testing.T) {
	svc, rec := newService()
	p := filter.DefaultParams()
	p.Product = "A"
	p.Interval = filter.Week
	p.Quantity = 1
	p.ProviderGroups = []string{"Walgreens"}

	points, err := svc.TimeSeries(context.Background(), p)
	if err != nil {
		t.Fatalf("TimeSeries: %v", err)
	}
	// Weeks of Jan 1, Jan 8 and Jan 29, times five columns.
	if len(points) != 15 {
		t.Fatalf("got %d points, want 15", len(points))
	}
	var wg []timeseries.Point
	for _, pt := range points {
		if pt.Variable == "Avg Walgreens ICP" {
			wg = append(wg, pt)
		}
	}
	if wg[0].Value != nil || *wg[1].Value != 5.5 || *wg[2].Value != 4 {
		t.Errorf("walgreens series = %v, %v, %v", wg[0].Value, wg[1].Value, wg[2].Value)
	}
	if rec.calls["timeseries"] != 1 {
		t.Errorf("recorder calls = %v", rec.calls)
	}
}

func TestTimeSeriesRequiresProduct(t *testing.T) {
	svc, _ := newService()
	p := filter.DefaultParams()
	p.Product = filter.AllDrugs
	_, err := svc.TimeSeries(context.Background(), p)
	if clerrors.GetCode(err) != clerrors.CodeProductRequired {
		t.Fatalf("expected PRODUCT_REQUIRED, got %v", err)
	}
}

func TestEmptyProductPropagates(t *testing.T) {
	svc, _ := newService()
	p := filter.DefaultParams()
	p.Product = "Nothing"
	p.Scope = filter.ScopeSelectedDrug
	ctx := context.Background()

	points, err := svc.TimeSeries(ctx, p)
	if err != nil || len(points) != 0 {
		t.Errorf("timeseries: %d points, %v", len(points), err)
	}
	rows, err := svc.PercentOfTotal(ctx, p)
	if err != nil || len(rows) != 0 {
		t.Errorf("share: %d rows, %v", len(rows), err)
	}
	ranked, err := svc.ProviderRanking(ctx, p)
	if err != nil || len(ranked) != 0 {
		t.Errorf("ranking: %d rows, %v", len(ranked), err)
	}
}

func TestPercentOfTotalScopes(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	p := filter.DefaultParams()
	p.Product = "A" // ignored under the all-drugs scope
	rows, err := svc.PercentOfTotal(ctx, p)
	if err != nil {
		t.Fatalf("PercentOfTotal: %v", err)
	}
	for _, r := range rows {
		if r.Affiliation == share.NonAffiliated && r.Measure == share.RxDispensed && r.Value != 6 {
			t.Errorf("all-drugs non-affiliated rx = %v, want 6", r.Value)
		}
	}

	p.Scope = filter.ScopeSelectedDrug
	rows, err = svc.PercentOfTotal(ctx, p)
	if err != nil {
		t.Fatalf("PercentOfTotal: %v", err)
	}
	for _, r := range rows {
		if r.Affiliation == share.Affiliated && r.Measure == share.RxDispensed && *r.Percent != 0.2 {
			t.Errorf("selected-drug affiliated rx share = %v, want 0.2", *r.Percent)
		}
	}
}

func TestProviderRanking(t *testing.T) {
	svc, rec := newService()
	p := filter.DefaultParams()
	p.MinClaims = 1
	p.TopN = 2
	p.RankBy = filter.RankICP

	rows, err := svc.ProviderRanking(context.Background(), p)
	if err != nil {
		t.Fatalf("ProviderRanking: %v", err)
	}
	// CVS 110, Walgreens 60, Kroger 50 folded into the tail.
	if len(rows) != 3 || rows[0].GroupName != "CVS" || rows[1].GroupName != "Walgreens" || !rows[2].IsOther() {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Category != share.Affiliated {
		t.Errorf("CVS has an affiliated claim on another product, category = %q", rows[0].Category)
	}
	if rows[1].Category != share.NonAffiliated || rows[2].Category != share.AllOthers {
		t.Errorf("categories = %q, %q", rows[1].Category, rows[2].Category)
	}
	if rec.calls["affiliated-groups"] != 1 {
		t.Errorf("affiliated groups should be recomputed per call: %v", rec.calls)
	}
}

func TestProductsAndGroups(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	products, err := svc.Products(ctx)
	if err != nil || len(products) != 2 || products[0] != "A" || products[1] != "B" {
		t.Fatalf("products = %v, %v", products, err)
	}

	groups, err := svc.ProviderGroups(ctx, "A")
	if err != nil {
		t.Fatalf("ProviderGroups: %v", err)
	}
	if len(groups) != 1 || groups[0] != "Walgreens" {
		t.Errorf("groups = %v", groups)
	}
	if _, err := svc.ProviderGroups(ctx, ""); !clerrors.IsValidation(err) {
		t.Errorf("empty product should fail validation, got %v", err)
	}

	if len(svc.Intervals()) != 4 || svc.Intervals()[2] != filter.Month {
		t.Errorf("intervals = %v", svc.Intervals())
	}
	if len(svc.RankMeasures()) != 9 {
		t.Errorf("rank measures = %d", len(svc.RankMeasures()))
	}
}

func TestInvalidParams(t *testing.T) {
	svc, _ := newService()
	p := filter.DefaultParams()
	p.TopN = 0
	if _, err := svc.ProviderRanking(context.Background(), p); !clerrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceOverParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claims.parquet")
	if err := dataset.WriteParquet(path, fixture()); err != nil {
		t.Fatalf("WriteParquet: %v", err)
	}
	src, err := dataset.OpenParquet(path)
	if err != nil {
		t.Fatalf("OpenParquet: %v", err)
	}
	svc := NewService(src, nil)

	p := filter.DefaultParams()
	p.MinClaims = 3
	rows, err := svc.ProviderRanking(context.Background(), p)
	if err != nil {
		t.Fatalf("ProviderRanking: %v", err)
	}
	if len(rows) != 1 || rows[0].GroupName != "Walgreens" || rows[0].ICP != 60 {
		t.Fatalf("rows = %+v", rows)
	}
}

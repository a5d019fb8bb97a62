package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/snappy"

	"github.com/claimlens/claimlens/internal/claims"
	"github.com/claimlens/claimlens/internal/dataset"
	clerrors "github.com/claimlens/claimlens/internal/errors"
	"github.com/claimlens/claimlens/internal/observability"
	"github.com/claimlens/claimlens/internal/query/filter"
	"github.com/claimlens/claimlens/internal/report"
)

type memSource struct {
	rows []claims.Claim
}

func (m *memSource) Scan(ctx context.Context, pred filter.Predicate, fn dataset.ScanFunc) error {
	for i := range m.rows {
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

func row(product, group string, affiliated bool, dos string, qty, icp, nadac float64) claims.Claim {
	d, _ := time.Parse("2006-01-02", dos)
	c := claims.Claim{
		Product:        product,
		DateOfService:  d,
		Quantity:       qty,
		IngredientCost: icp,
		BenchmarkCost:  nadac,
		Affiliated:     affiliated,
	}
	if group != "" {
		c.GroupName = &group
	}
	return c
}

const fingerprint = "0123456789abcdef0123456789abcdef"

func newTestHandler() (http.Handler, *observability.PipelineStats) {
	src := &memSource{rows: []claims.Claim{
		row("A", "CVS", true, "2024-01-01", 2, 10, 6),
		row("A", "Walgreens", false, "2024-01-08", 4, 20, 10),
		row("A", "Walgreens", false, "2024-01-09", 4, 24, 10),
		row("A", "Walgreens", false, "2024-02-01", 4, 16, 10),
		row("B", "CVS", false, "2024-01-03", 1, 100, 90),
		row("B", "Kroger", false, "2024-01-04", 1, 50, 40),
	}}
	stats := observability.NewPipelineStats(time.Hour)
	svc := report.NewService(src, stats)
	h := NewReportHandler(svc, Options{
		Defaults:    filter.DefaultParams(),
		Fingerprint: fingerprint,
		Format:      "parquet",
		Stats:       stats,
	})
	return h.Handler(), stats
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestTimeSeriesEndpoint(t *testing.T) {
	h, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet,
		"/v1/timeseries?product=A&interval=week&qty=1&groups=Walgreens", nil)
	rec := do(t, h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp TimeSeriesResponse
	decode(t, rec, &resp)
	if len(resp.Points) != 15 || resp.Interval != filter.Week {
		t.Errorf("points = %d, interval = %q", len(resp.Points), resp.Interval)
	}
	if resp.RequestID == "" || rec.Header().Get("X-Request-ID") != resp.RequestID {
		t.Errorf("request id = %q, header = %q", resp.RequestID, rec.Header().Get("X-Request-ID"))
	}

	etag := rec.Header().Get("ETag")
	if !strings.HasPrefix(etag, `"0123456789abcdef-`) {
		t.Fatalf("etag = %q", etag)
	}
	req = httptest.NewRequest(http.MethodGet,
		"/v1/timeseries?product=A&interval=week&qty=1&groups=Walgreens", nil)
	req.Header.Set("If-None-Match", etag)
	if rec := do(t, h, req); rec.Code != http.StatusNotModified || rec.Body.Len() != 0 {
		t.Errorf("conditional request: status %d, %d body bytes", rec.Code, rec.Body.Len())
	}
}

func TestTimeSeriesValidation(t *testing.T) {
	h, _ := newTestHandler()
	tests := []struct {
		name string
		url  string
		code string
	}{
		{"no product", "/v1/timeseries", clerrors.CodeProductRequired},
		{"all drugs", "/v1/timeseries?product=All+Drugs", clerrors.CodeProductRequired},
		{"bad interval", "/v1/timeseries?product=A&interval=Daily", clerrors.CodeInvalidParameter},
		{"bad qty", "/v1/timeseries?product=A&qty=abc", clerrors.CodeInvalidParameter},
		{"zero qty", "/v1/timeseries?product=A&qty=0", clerrors.CodeInvalidParameter},
		{"bad date", "/v1/timeseries?product=A&from=01/02/2024", clerrors.CodeInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			var resp ErrorResponse
			decode(t, rec, &resp)
			if resp.Code != tt.code || resp.RequestID == "" {
				t.Errorf("error response = %+v", resp)
			}
		})
	}
}

func TestProvidersPost(t *testing.T) {
	h, _ := newTestHandler()
	body := `{"min_claims":1,"top_n":2,"rank_by":"Total Ingredient Cost Paid"}`
	rec := do(t, h, httptest.NewRequest(http.MethodPost, "/v1/providers", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp ProvidersResponse
	decode(t, rec, &resp)
	if len(resp.Rows) != 3 || resp.Rows[0].GroupName != "CVS" || !resp.Rows[2].IsOther() {
		t.Fatalf("rows = %+v", resp.Rows)
	}
	if resp.RankBy != filter.RankICP || resp.RankLabel != "Total Ingredient Cost Paid" {
		t.Errorf("rank = %q / %q", resp.RankBy, resp.RankLabel)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/v1/providers", strings.NewReader(`{"limit":3}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field: status = %d", rec.Code)
	}
	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/v1/providers", strings.NewReader(`{"brand":"maybe"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad brand: status = %d", rec.Code)
	}
}

func TestShareSnappy(t *testing.T) {
	h, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/v1/share?scope=Selected+Drug&product=A", nil)
	req.Header.Set("Accept-Encoding", "gzip, snappy")
	rec := do(t, h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Content-Encoding") != "snappy" {
		t.Fatalf("content encoding = %q", rec.Header().Get("Content-Encoding"))
	}

	plain, err := snappy.Decode(nil, rec.Body.Bytes())
	if err != nil {
		t.Fatalf("snappy decode: %v", err)
	}
	var resp ShareResponse
	if err := json.Unmarshal(plain, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Rows) != 10 {
		t.Errorf("rows = %d, want 10", len(resp.Rows))
	}
	if resp.Colors["Affiliated"] == "" {
		t.Error("color map missing")
	}
}

func TestLookups(t *testing.T) {
	h, _ := newTestHandler()

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/v1/products", nil))
	var products struct {
		Items []string `json:"items"`
	}
	decode(t, rec, &products)
	if len(products.Items) != 2 || products.Items[0] != "A" {
		t.Errorf("products = %v", products.Items)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/v1/provider-groups?product=A", nil))
	var groups struct {
		Items []string `json:"items"`
	}
	decode(t, rec, &groups)
	if len(groups.Items) != 1 || groups.Items[0] != "Walgreens" {
		t.Errorf("groups = %v", groups.Items)
	}
	if rec := do(t, h, httptest.NewRequest(http.MethodGet, "/v1/provider-groups", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("groups without product: status = %d", rec.Code)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/v1/rank-measures", nil))
	var measures struct {
		Items []filter.RankMeasureOption `json:"items"`
	}
	decode(t, rec, &measures)
	if len(measures.Items) != 9 || measures.Items[0].Measure != filter.RankNADAC {
		t.Errorf("rank measures = %+v", measures.Items)
	}

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/v1/dataset", nil))
	var info DatasetResponse
	decode(t, rec, &info)
	if info.Fingerprint != fingerprint || info.Format != "parquet" || len(info.Columns) != len(claims.Schema) {
		t.Errorf("dataset info = %+v", info)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler()
	rec := do(t, h, httptest.NewRequest(http.MethodDelete, "/v1/share", nil))
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != "GET, POST" {
		t.Errorf("status = %d, allow = %q", rec.Code, rec.Header().Get("Allow"))
	}
	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/v1/products", bytes.NewReader(nil)))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	h, stats := newTestHandler()
	do(t, h, httptest.NewRequest(http.MethodGet, "/v1/products", nil))
	do(t, h, httptest.NewRequest(http.MethodGet, "/v1/share", nil))

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	var resp StatsResponse
	decode(t, rec, &resp)
	if len(resp.Pipelines) != 2 || len(stats.Snapshot()) != 2 {
		t.Fatalf("pipelines = %+v", resp.Pipelines)
	}
	if resp.Pipelines[0].Pipeline != "products" || resp.Pipelines[0].Calls != 1 {
		t.Errorf("first pipeline = %+v", resp.Pipelines[0])
	}
}

func TestParseParamsGroups(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/timeseries?groups=B&groups=A&groups=+&brand=1&top_n=3", nil)
	p, err := ParseParams(req, filter.DefaultParams())
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if len(p.ProviderGroups) != 2 || p.ProviderGroups[0] != "B" || p.ProviderGroups[1] != "A" {
		t.Errorf("groups = %v", p.ProviderGroups)
	}
	if p.Brand != filter.BrandOnly || p.TopN != 3 || p.MinClaims != 10 {
		t.Errorf("params = %+v", p)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := DefaultMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp ErrorResponse
	decode(t, rec, &resp)
	if resp.RequestID == "" || resp.Code != clerrors.CodeUnexpected {
		t.Errorf("response = %+v", resp)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{clerrors.InvalidParameter("qty", "0"), http.StatusBadRequest},
		{clerrors.NewDatasetError(clerrors.CodeScanFailed, "scan", nil), http.StatusInternalServerError},
		{clerrors.NewStorageError(clerrors.CodeObjectNotFound, "missing", nil), http.StatusNotFound},
		{context.Canceled, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestEmptyReportsEncodeEmptyArrays(t *testing.T) {
	h, _ := newTestHandler()
	for _, path := range []string{
		"/v1/timeseries?product=Z",
		"/v1/share?product=Z&scope=Selected+Drug",
		"/v1/providers?product=Z&scope=Selected+Drug",
	} {
		rec := do(t, h, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, body = %s", path, rec.Code, rec.Body.String())
		}
		var body map[string]json.RawMessage
		decode(t, rec, &body)
		key := "rows"
		if strings.HasPrefix(path, "/v1/timeseries") {
			key = "points"
		}
		if got := string(body[key]); got != "[]" {
			t.Errorf("%s: %s = %s, want []", path, key, got)
		}
	}
}

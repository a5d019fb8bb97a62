package http

import (
	"net/http"
	"time"

	"github.com/claimlens/claimlens/internal/observability"
	"github.com/claimlens/claimlens/internal/query/filter"
	"github.com/claimlens/claimlens/internal/query/ranking"
	"github.com/claimlens/claimlens/internal/query/share"
	"github.com/claimlens/claimlens/internal/query/timeseries"
	"github.com/claimlens/claimlens/internal/report"
)

// Options configures a ReportHandler.
type Options struct {
	// Defaults fill parameters the request leaves unset.
	Defaults filter.Params
	// Fingerprint identifies the dataset version in ETags.
	Fingerprint string
	// Format is the configured dataset format, reported by /v1/dataset.
	Format string
	// Stats is served by /v1/stats. May be nil.
	Stats *observability.PipelineStats
}

// TimeSeriesResponse is the body of /v1/timeseries.
type TimeSeriesResponse struct {
	Product   string             `json:"product"`
	Interval  filter.Interval    `json:"interval"`
	Quantity  float64            `json:"qty"`
	Points    []timeseries.Point `json:"points"`
	RequestID string             `json:"request_id"`
}

// ShareResponse is the body of /v1/share.
type ShareResponse struct {
	Rows      []share.Row       `json:"rows"`
	Colors    map[string]string `json:"colors"`
	RequestID string            `json:"request_id"`
}

// ProvidersResponse is the body of /v1/providers.
type ProvidersResponse struct {
	RankBy    filter.RankMeasure `json:"rank_by"`
	RankLabel string             `json:"rank_label"`
	Rows      []ranking.Row      `json:"rows"`
	Colors    map[string]string  `json:"colors"`
	RequestID string             `json:"request_id"`
}

// ListResponse is the body of the lookup endpoints.
type ListResponse struct {
	Items     interface{} `json:"items"`
	RequestID string      `json:"request_id"`
}

// DatasetResponse is the body of /v1/dataset.
type DatasetResponse struct {
	Source      string   `json:"source"`
	Format      string   `json:"format"`
	Fingerprint string   `json:"fingerprint"`
	Columns     []string `json:"columns"`
	RequestID   string   `json:"request_id"`
}

// StatsResponse is the body of /v1/stats.
type StatsResponse struct {
	Pipelines []observability.Stats `json:"pipelines"`
	RequestID string                `json:"request_id"`
}

// ReportHandler serves the report endpoints.
type ReportHandler struct {
	service *report.Service
	opts    Options
	started time.Time
}

// NewReportHandler creates a handler over svc.
func NewReportHandler(svc *report.Service, opts Options) *ReportHandler {
	return &ReportHandler{service: svc, opts: opts, started: time.Now()}
}

// Register mounts every endpoint on mux, wrapping each in middleware.
func (h *ReportHandler) Register(mux *http.ServeMux, middleware func(http.Handler) http.Handler) {
	route := func(path string, fn http.HandlerFunc) {
		mux.Handle(path, middleware(fn))
	}
	route("/health", h.health)
	route("/v1/dataset", h.datasetInfo)
	route("/v1/products", h.products)
	route("/v1/provider-groups", h.providerGroups)
	route("/v1/intervals", h.intervals)
	route("/v1/rank-measures", h.rankMeasures)
	route("/v1/timeseries", h.timeSeries)
	route("/v1/share", h.percentOfTotal)
	route("/v1/providers", h.providerRanking)
	route("/v1/stats", h.stats)
}

// Handler returns a mux with every endpoint behind DefaultMiddleware.
func (h *ReportHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	h.Register(mux, DefaultMiddleware())
	return mux
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, GetRequestID(r.Context()), http.MethodGet)
		return false
	}
	return true
}

func allowGetPost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeMethodNotAllowed(w, GetRequestID(r.Context()), "GET, POST")
		return false
	}
	return true
}

func (h *ReportHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"service":    "claimlens",
		"dataset":    h.service.Source().Describe(),
		"uptime_sec": int64(time.Since(h.started).Seconds()),
	})
}

func (h *ReportHandler) datasetInfo(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	src := h.service.Source()
	writeReport(w, r, ETag(h.opts.Fingerprint, "dataset", ""), DatasetResponse{
		Source:      src.Describe(),
		Format:      h.opts.Format,
		Fingerprint: h.opts.Fingerprint,
		Columns:     src.Columns(),
		RequestID:   GetRequestID(r.Context()),
	})
}

func (h *ReportHandler) products(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	requestID := GetRequestID(r.Context())
	products, err := h.service.Products(r.Context())
	if err != nil {
		writeError(w, err, requestID)
		return
	}
	writeReport(w, r, ETag(h.opts.Fingerprint, "products", ""), ListResponse{
		Items:     products,
		RequestID: requestID,
	})
}

func (h *ReportHandler) providerGroups(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	requestID := GetRequestID(r.Context())
	product := r.URL.Query().Get("product")
	groups, err := h.service.ProviderGroups(r.Context(), product)
	if err != nil {
		writeError(w, err, requestID)
		return
	}
	writeReport(w, r, ETag(h.opts.Fingerprint, "provider-groups", product), ListResponse{
		Items:     groups,
		RequestID: requestID,
	})
}

func (h *ReportHandler) intervals(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{
		Items:     h.service.Intervals(),
		RequestID: GetRequestID(r.Context()),
	})
}

func (h *ReportHandler) rankMeasures(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{
		Items:     h.service.RankMeasures(),
		RequestID: GetRequestID(r.Context()),
	})
}

func (h *ReportHandler) timeSeries(w http.ResponseWriter, r *http.Request) {
	if !allowGetPost(w, r) {
		return
	}
	requestID := GetRequestID(r.Context())
	p, err := ParseParams(r, h.opts.Defaults)
	if err != nil {
		writeError(w, err, requestID)
		return
	}
	points, err := h.service.TimeSeries(r.Context(), p)
	if err != nil {
		writeError(w, err, requestID)
		return
	}
	if points == nil {
		points = []timeseries.Point{}
	}
	writeReport(w, r, ETag(h.opts.Fingerprint, "timeseries", p.CanonicalKey()), TimeSeriesResponse{
		Product:   p.Product,
		Interval:  p.Interval,
		Quantity:  p.Quantity,
		Points:    points,
		RequestID: requestID,
	})
}

func (h *ReportHandler) percentOfTotal(w http.ResponseWriter, r *http.Request) {
	if !allowGetPost(w, r) {
		return
	}
	requestID := GetRequestID(r.Context())
	p, err := ParseParams(r, h.opts.Defaults)
	if err != nil {
		writeError(w, err, requestID)
		return
	}
	rows, err := h.service.PercentOfTotal(r.Context(), p)
	if err != nil {
		writeError(w, err, requestID)
		return
	}
	if rows == nil {
		rows = []share.Row{}
	}
	writeReport(w, r, ETag(h.opts.Fingerprint, "share", p.CanonicalKey()), ShareResponse{
		Rows:      rows,
		Colors:    share.ColorMap,
		RequestID: requestID,
	})
}

func (h *ReportHandler) providerRanking(w http.ResponseWriter, r *http.Request) {
	if !allowGetPost(w, r) {
		return
	}
	requestID := GetRequestID(r.Context())
	p, err := ParseParams(r, h.opts.Defaults)
	if err != nil {
		writeError(w, err, requestID)
		return
	}
	rows, err := h.service.ProviderRanking(r.Context(), p)
	if err != nil {
		writeError(w, err, requestID)
		return
	}
	if rows == nil {
		rows = []ranking.Row{}
	}
	writeReport(w, r, ETag(h.opts.Fingerprint, "providers", p.CanonicalKey()), ProvidersResponse{
		RankBy:    p.RankBy,
		RankLabel: p.RankBy.Label(),
		Rows:      rows,
		Colors:    share.ColorMap,
		RequestID: requestID,
	})
}

func (h *ReportHandler) stats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	resp := StatsResponse{Pipelines: []observability.Stats{}, RequestID: GetRequestID(r.Context())}
	if h.opts.Stats != nil {
		resp.Pipelines = h.opts.Stats.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Package ranking ranks provider groups by a chosen measure and collapses
// the tail beyond the top N into a single synthetic row.
package ranking

import (
	"github.com/claimlens/claimlens/internal/claims"
	"github.com/claimlens/claimlens/internal/query/aggregator"
	"github.com/claimlens/claimlens/internal/query/filter"
	"github.com/claimlens/claimlens/internal/query/metrics"
	"github.com/claimlens/claimlens/internal/query/share"
)

// Row is one ranked provider group, or the collapsed tail.
type Row struct {
	GroupName   string   `json:"group_name"`
	RxCount     int64    `json:"rx_count"`
	NADAC       float64  `json:"nadac"`
	ICP         float64  `json:"icp"`
	Qty         float64  `json:"qty"`
	Margin      float64  `json:"margin"`
	NADACPerRx  *float64 `json:"nadac_per_rx"`
	ICPPerRx    *float64 `json:"icp_per_rx"`
	QtyPerRx    *float64 `json:"qty_per_rx"`
	MarginPerRx *float64 `json:"margin_per_rx"`
	Category    string   `json:"color_col"`
	// Other marks the synthetic row holding every group beyond the top N.
	Other bool `json:"other,omitempty"`
}

// Measure returns the value of m for this row.
func (r *Row) Measure(m filter.RankMeasure) *float64 {
	f := func(v float64) *float64 { return &v }
	switch m {
	case filter.RankNADAC:
		return f(r.NADAC)
	case filter.RankICP:
		return f(r.ICP)
	case filter.RankRxCount:
		return f(float64(r.RxCount))
	case filter.RankQty:
		return f(r.Qty)
	case filter.RankMargin:
		return f(r.Margin)
	case filter.RankNADACPerRx:
		return r.NADACPerRx
	case filter.RankICPPerRx:
		return r.ICPPerRx
	case filter.RankQtyPerRx:
		return r.QtyPerRx
	case filter.RankMarginPerRx:
		return r.MarginPerRx
	}
	return nil
}

// IsOther reports whether the row is the collapsed tail. A real group that
// happens to share its label is not.
func (r *Row) IsOther() bool {
	return r.Other
}

// Options controls threshold, ranking measure and cutoff.
type Options struct {
	MinClaims int
	RankBy    filter.RankMeasure
	TopN      int
}

// Builder accumulates totals per provider group. Claims without a group are
// not ranked.
type Builder struct {
	groups *aggregator.Groups[string, *aggregator.Totals]
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{groups: aggregator.NewGroups[string](aggregator.NewTotals)}
}

// Add accumulates one claim.
func (b *Builder) Add(c *claims.Claim) {
	if g, ok := c.Group(); ok {
		b.groups.Get(g).Add(c)
	}
}

type ranked struct {
	row    Row
	totals *aggregator.Totals
}

// Rows ranks the groups. Groups below MinClaims are dropped before ranking.
// Ties on the rank measure are broken by group name. affiliated is the set of
// groups that have at least one affiliated claim anywhere in the dataset.
func (b *Builder) Rows(opts Options, affiliated map[string]bool) []Row {
	var eligible []ranked
	b.groups.Each(func(name string, t *aggregator.Totals) {
		if t.Count() < int64(opts.MinClaims) {
			return
		}
		eligible = append(eligible, ranked{row: derive(name, t), totals: t})
	})

	byRank := aggregator.NewOrderBySorter(
		aggregator.Desc(func(r ranked) interface{} { return r.row.Measure(opts.RankBy) }),
		aggregator.Asc(func(r ranked) interface{} { return r.row.GroupName }),
	)
	byRank.Sort(eligible)

	rows := make([]Row, 0, opts.TopN+1)
	other := aggregator.NewTotals()
	for i, r := range eligible {
		if i < opts.TopN {
			rows = append(rows, r.row)
			continue
		}
		other.Merge(r.totals)
	}
	if other.Count() > 0 {
		tail := derive(share.AllOthers, other)
		tail.Other = true
		rows = append(rows, tail)
	}

	for i := range rows {
		rows[i].Category = category(&rows[i], affiliated)
		round(&rows[i])
	}

	final := aggregator.NewOrderBySorter(
		aggregator.Desc(func(r Row) interface{} { return r.Measure(opts.RankBy) }),
		aggregator.Asc(func(r Row) interface{} { return r.GroupName }),
	)
	final.Sort(rows)
	return rows
}

func derive(name string, t *aggregator.Totals) Row {
	rx := t.Count()
	nadac, icp, qty := t.NADAC.Value(), t.ICP.Value(), t.Qty.Value()
	margin := metrics.Margin(icp, nadac)
	return Row{
		GroupName:   name,
		RxCount:     rx,
		NADAC:       nadac,
		ICP:         icp,
		Qty:         qty,
		Margin:      margin,
		NADACPerRx:  metrics.PerRx(nadac, rx),
		ICPPerRx:    metrics.PerRx(icp, rx),
		QtyPerRx:    metrics.PerRx(qty, rx),
		MarginPerRx: metrics.PerRx(margin, rx),
	}
}

func category(r *Row, affiliated map[string]bool) string {
	switch {
	case r.IsOther():
		return r.GroupName
	case affiliated[r.GroupName]:
		return share.Affiliated
	default:
		return share.NonAffiliated
	}
}

func round(r *Row) {
	r.NADAC = metrics.Round2(r.NADAC)
	r.ICP = metrics.Round2(r.ICP)
	r.Qty = metrics.Round2(r.Qty)
	r.Margin = metrics.Round2(r.Margin)
	r.NADACPerRx = metrics.Round2Ptr(r.NADACPerRx)
	r.ICPPerRx = metrics.Round2Ptr(r.ICPPerRx)
	r.QtyPerRx = metrics.Round2Ptr(r.QtyPerRx)
	r.MarginPerRx = metrics.Round2Ptr(r.MarginPerRx)
}

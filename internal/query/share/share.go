// Package share splits claim totals between affiliated and non-affiliated
// pharmacies and expresses each side as a fraction of the whole.
package share

import (
	"sort"

	"github.com/claimlens/claimlens/internal/claims"
	"github.com/claimlens/claimlens/internal/query/aggregator"
	"github.com/claimlens/claimlens/internal/query/metrics"
)

// Affiliation labels.
const (
	Affiliated    = "Affiliated"
	NonAffiliated = "Non-Affiliated"
	// AllOthers labels the collapsed tail of a provider ranking.
	AllOthers = "All Others Combined"
)

// Measure labels.
const (
	RxDispensed    = "Rx Dispensed"
	UnitsDispensed = "Units Dispensed"
	ICP            = "Ingredient Cost Paid"
	NADAC          = "NADAC"
	Margin         = "Margin Over NADAC"
)

// MeasureLabels maps raw measure names to display labels.
var MeasureLabels = map[string]string{
	"qty":      UnitsDispensed,
	"rx_count": RxDispensed,
	"icp":      ICP,
	"nadac":    NADAC,
	"margin":   Margin,
}

// CategoryOrder is the display order of measures.
var CategoryOrder = []string{RxDispensed, UnitsDispensed, ICP, NADAC, Margin}

// ColorMap assigns chart colors to affiliation categories.
var ColorMap = map[string]string{
	Affiliated:    "#0077BE",
	NonAffiliated: "#091851",
	AllOthers:     "#808080",
}

// AffiliationLabel returns the display label of an affiliation flag.
func AffiliationLabel(affiliated bool) string {
	if affiliated {
		return Affiliated
	}
	return NonAffiliated
}

// Row is one (affiliation, measure) cell of the percent-of-total table.
type Row struct {
	Affiliation string   `json:"affiliated"`
	Measure     string   `json:"variable"`
	Value       float64  `json:"value"`
	Percent     *float64 `json:"percent"`
}

// Builder accumulates totals per affiliation.
type Builder struct {
	groups *aggregator.Groups[bool, *aggregator.Totals]
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{groups: aggregator.NewGroups[bool](aggregator.NewTotals)}
}

// Add accumulates one claim.
func (b *Builder) Add(c *claims.Claim) {
	b.groups.Get(c.Affiliated).Add(c)
}

func measures(t *aggregator.Totals) map[string]float64 {
	icp, nadac := t.ICP.Value(), t.NADAC.Value()
	return map[string]float64{
		RxDispensed:    t.RxCount.Value(),
		UnitsDispensed: t.Qty.Value(),
		ICP:            icp,
		NADAC:          nadac,
		Margin:         metrics.Margin(icp, nadac),
	}
}

// Rows returns the table sorted by affiliation label, then by CategoryOrder.
// Only affiliations that received claims appear. A measure whose total is
// zero has a nil percent.
func (b *Builder) Rows() []Row {
	type side struct {
		label string
		vals  map[string]float64
	}
	var sides []side
	totals := make(map[string]float64, len(CategoryOrder))
	b.groups.Each(func(affiliated bool, t *aggregator.Totals) {
		vals := measures(t)
		for m, v := range vals {
			totals[m] += v
		}
		sides = append(sides, side{label: AffiliationLabel(affiliated), vals: vals})
	})
	sort.Slice(sides, func(i, j int) bool { return sides[i].label < sides[j].label })

	rows := make([]Row, 0, len(sides)*len(CategoryOrder))
	for _, s := range sides {
		for _, m := range CategoryOrder {
			v := s.vals[m]
			rows = append(rows, Row{
				Affiliation: s.label,
				Measure:     m,
				Value:       v,
				Percent:     metrics.Ratio(v, totals[m]),
			})
		}
	}
	return rows
}

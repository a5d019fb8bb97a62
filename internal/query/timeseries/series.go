package timeseries

import (
	"sort"
	"strings"
	"time"

	"github.com/claimlens/claimlens/internal/claims"
	"github.com/claimlens/claimlens/internal/query/aggregator"
	"github.com/claimlens/claimlens/internal/query/filter"
	"github.com/claimlens/claimlens/internal/query/metrics"
)

// Fixed wide column names, in output order.
const (
	ColAvgICP           = "Avg ICP"
	ColAvgNADAC         = "Avg NADAC"
	ColAvgNonAffiliated = "Avg Non Affiliated ICP"
	ColAvgAffiliated    = "Avg Affiliated ICP"
)

// GroupColumn names the average unit ICP column of one provider group. A
// group whose column would shadow a fixed column is tagged "(group)".
func GroupColumn(group string) string {
	col := "Avg " + group + " ICP"
	switch col {
	case ColAvgICP, ColAvgNADAC, ColAvgNonAffiliated, ColAvgAffiliated:
		return "Avg " + group + " (group) ICP"
	}
	return col
}

// Point is one value of the long-form series.
type Point struct {
	Date     time.Time `json:"date"`
	Product  string    `json:"product"`
	Variable string    `json:"variable"`
	Value    *float64  `json:"value"`
}

// Wide is the per-bucket table of one product before reshaping. Values[i][j]
// is column j of bucket i; a nil entry means the bucket had no rows for it.
type Wide struct {
	Product string
	Columns []string
	Buckets []time.Time
	Values  [][]*float64
}

// Builder accumulates claims into per-product, per-bucket averages.
type Builder struct {
	interval filter.Interval
	groups   []string
	columns  []string
	products *aggregator.Groups[string, *aggregator.Groups[time.Time, []*aggregator.PartialAggregate]]
}

// NewBuilder creates a builder for the given interval and requested groups.
// Group columns follow the fixed columns in request order; duplicates and
// blank names are ignored.
func NewBuilder(interval filter.Interval, groups []string) *Builder {
	columns := []string{ColAvgICP, ColAvgNADAC, ColAvgNonAffiliated, ColAvgAffiliated}
	seen := make(map[string]bool, len(groups))
	var uniq []string
	for _, g := range groups {
		if seen[g] || strings.TrimSpace(g) == "" {
			continue
		}
		seen[g] = true
		uniq = append(uniq, g)
		columns = append(columns, GroupColumn(g))
	}

	b := &Builder{interval: interval, groups: uniq, columns: columns}
	b.products = aggregator.NewGroups[string](func() *aggregator.Groups[time.Time, []*aggregator.PartialAggregate] {
		return aggregator.NewGroups[time.Time](b.newBucket)
	})
	return b
}

func (b *Builder) newBucket() []*aggregator.PartialAggregate {
	aggs := make([]*aggregator.PartialAggregate, len(b.columns))
	for i := range aggs {
		aggs[i] = aggregator.NewPartialAggregate(aggregator.AggAvg)
	}
	return aggs
}

// Columns returns the wide column names in output order.
func (b *Builder) Columns() []string {
	return append([]string(nil), b.columns...)
}

// Add accumulates one claim.
func (b *Builder) Add(c *claims.Claim) {
	start := BucketStart(c.DateOfService, b.interval)
	aggs := b.products.Get(c.Product).Get(start)

	icp := metrics.UnitICP(c)
	aggs[0].Accumulate(icp)
	aggs[1].Accumulate(metrics.UnitNADAC(c))
	if c.Affiliated {
		aggs[3].Accumulate(icp)
	} else {
		aggs[2].Accumulate(icp)
	}
	if group, ok := c.Group(); ok {
		for i, g := range b.groups {
			if g == group {
				aggs[4+i].Accumulate(icp)
			}
		}
	}
}

// Wide returns one table per product, products sorted by name and buckets
// in ascending time order. Only buckets that received rows are present.
func (b *Builder) Wide() []Wide {
	products := b.products.Keys()
	sort.Strings(products)

	out := make([]Wide, 0, len(products))
	for _, product := range products {
		buckets, _ := b.products.Lookup(product)
		starts := buckets.Keys()
		sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

		w := Wide{
			Product: product,
			Columns: b.Columns(),
			Buckets: starts,
			Values:  make([][]*float64, len(starts)),
		}
		for i, s := range starts {
			aggs, _ := buckets.Lookup(s)
			row := make([]*float64, len(aggs))
			for j, a := range aggs {
				row[j] = a.Result()
			}
			w.Values[i] = row
		}
		out = append(out, w)
	}
	return out
}

// ForwardFill replaces each missing value with the last present value of the
// same column in an earlier bucket. Leading missing values stay missing.
func ForwardFill(w Wide) Wide {
	filled := make([][]*float64, len(w.Values))
	last := make([]*float64, len(w.Columns))
	for i, row := range w.Values {
		out := make([]*float64, len(row))
		for j, v := range row {
			if v != nil {
				last[j] = v
			}
			out[j] = last[j]
		}
		filled[i] = out
	}
	w.Values = filled
	return w
}

// Unpivot reshapes a wide table to long form. Points are ordered by column,
// then by bucket. Every value is multiplied by qty.
func Unpivot(w Wide, qty float64) []Point {
	points := make([]Point, 0, len(w.Columns)*len(w.Buckets))
	for j, col := range w.Columns {
		for i, start := range w.Buckets {
			points = append(points, Point{
				Date:     start,
				Product:  w.Product,
				Variable: col,
				Value:    metrics.Scale(w.Values[i][j], qty),
			})
		}
	}
	return points
}

// Build runs the resample, fill and reshape steps over the rows added so far.
func (b *Builder) Build(qty float64) []Point {
	var points []Point
	for _, w := range b.Wide() {
		points = append(points, Unpivot(ForwardFill(w), qty)...)
	}
	return points
}

// Package report runs the three claim report pipelines over a dataset
// source. Every call scans the source again; nothing is cached between
// calls.
package report

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/claimlens/claimlens/internal/claims"
	"github.com/claimlens/claimlens/internal/dataset"
	"github.com/claimlens/claimlens/internal/query/aggregator"
	"github.com/claimlens/claimlens/internal/query/filter"
	"github.com/claimlens/claimlens/internal/query/ranking"
	"github.com/claimlens/claimlens/internal/query/share"
	"github.com/claimlens/claimlens/internal/query/timeseries"
)

// minGroupClaims is the claim count a provider group must exceed to be
// offered as a time-series comparison line.
const minGroupClaims = 2

// Recorder observes pipeline executions.
type Recorder interface {
	RecordPipeline(name string, rows int64, duration time.Duration, err error)
}

// Service answers report requests from a dataset source.
type Service struct {
	source   dataset.Source
	recorder Recorder
}

// NewService creates a report service. recorder may be nil.
func NewService(source dataset.Source, recorder Recorder) *Service {
	return &Service{source: source, recorder: recorder}
}

// Source returns the underlying dataset source.
func (s *Service) Source() dataset.Source {
	return s.source
}

// run scans the source and reports timing.
func (s *Service) run(ctx context.Context, name string, preds []filter.Predicate, fn dataset.ScanFunc) error {
	start := time.Now()
	pred := filter.And(preds...)
	var rows int64
	err := s.source.Scan(ctx, pred, func(c *claims.Claim) error {
		rows++
		return fn(c)
	})
	elapsed := time.Since(start)
	if s.recorder != nil {
		s.recorder.RecordPipeline(name, rows, elapsed, err)
	}
	if err != nil {
		log.Printf("report: %s failed after %v: %v", name, elapsed, err)
		return err
	}
	log.Printf("report: %s where %s matched %d rows in %v", name, pred.Name(), rows, elapsed)
	return nil
}

// TimeSeries returns the quantity-scaled average unit cost series of one
// product.
func (s *Service) TimeSeries(ctx context.Context, p filter.Params) ([]timeseries.Point, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	preds, err := p.SeriesPredicates()
	if err != nil {
		return nil, err
	}

	b := timeseries.NewBuilder(p.Interval, p.ProviderGroups)
	if err := s.run(ctx, "timeseries", preds, func(c *claims.Claim) error {
		b.Add(c)
		return nil
	}); err != nil {
		return nil, err
	}
	return b.Build(p.Quantity), nil
}

// PercentOfTotal splits the filtered claims between affiliated and
// non-affiliated pharmacies.
func (s *Service) PercentOfTotal(ctx context.Context, p filter.Params) ([]share.Row, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	b := share.NewBuilder()
	if err := s.run(ctx, "share", p.AggregatePredicates(), func(c *claims.Claim) error {
		b.Add(c)
		return nil
	}); err != nil {
		return nil, err
	}
	return b.Rows(), nil
}

// ProviderRanking ranks provider groups over the filtered claims.
func (s *Service) ProviderRanking(ctx context.Context, p filter.Params) ([]ranking.Row, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	b := ranking.NewBuilder()
	if err := s.run(ctx, "providers", p.AggregatePredicates(), func(c *claims.Claim) error {
		b.Add(c)
		return nil
	}); err != nil {
		return nil, err
	}

	affiliated, err := s.affiliatedGroups(ctx)
	if err != nil {
		return nil, err
	}
	return b.Rows(ranking.Options{
		MinClaims: p.MinClaims,
		RankBy:    p.RankBy,
		TopN:      p.TopN,
	}, affiliated), nil
}

// affiliatedGroups returns every group with at least one affiliated claim in
// the unfiltered dataset.
func (s *Service) affiliatedGroups(ctx context.Context) (map[string]bool, error) {
	groups := make(map[string]bool)
	err := s.run(ctx, "affiliated-groups", []filter.Predicate{filter.AffiliatedIs(true)},
		func(c *claims.Claim) error {
			if g, ok := c.Group(); ok {
				groups[g] = true
			}
			return nil
		})
	return groups, err
}

// Products returns the distinct product names, sorted.
func (s *Service) Products(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	if err := s.run(ctx, "products", nil, func(c *claims.Claim) error {
		seen[c.Product] = true
		return nil
	}); err != nil {
		return nil, err
	}

	products := make([]string, 0, len(seen))
	for p := range seen {
		products = append(products, p)
	}
	sort.Strings(products)
	return products, nil
}

// ProviderGroups returns the groups with more than two claims for product,
// sorted. These are the groups offered as comparison lines.
func (s *Service) ProviderGroups(ctx context.Context, product string) ([]string, error) {
	if err := filter.RequireProduct(product); err != nil {
		return nil, err
	}

	counts := aggregator.NewGroups[string](func() *aggregator.PartialAggregate {
		return aggregator.NewPartialAggregate(aggregator.AggCount)
	})
	if err := s.run(ctx, "provider-groups", []filter.Predicate{filter.ProductIs(product)},
		func(c *claims.Claim) error {
			if g, ok := c.Group(); ok {
				counts.Get(g).Add(1)
			}
			return nil
		}); err != nil {
		return nil, err
	}

	groups := []string{}
	counts.Each(func(g string, n *aggregator.PartialAggregate) {
		if n.Count > minGroupClaims {
			groups = append(groups, g)
		}
	})
	sort.Strings(groups)
	return groups, nil
}

// Intervals returns the interval labels in menu order.
func (s *Service) Intervals() []filter.Interval {
	return append([]filter.Interval(nil), filter.Intervals...)
}

// RankMeasures returns the rank-by options in menu order.
func (s *Service) RankMeasures() []filter.RankMeasureOption {
	return append([]filter.RankMeasureOption(nil), filter.RankMeasures...)
}

// Package aggregator provides the grouped accumulators and stable sorting
// shared by the report pipelines.
package aggregator

import (
	"fmt"
	"strings"
)

// AggregateType represents the type of aggregate function.
type AggregateType int

const (
	AggCount AggregateType = iota
	AggSum
	AggMin
	AggMax
	AggAvg
)

// PartialAggregate holds a running aggregate. For AVG both Sum and Count are
// tracked so that partials can be merged into a correct mean.
type PartialAggregate struct {
	Type  AggregateType
	Count int64   // accumulated non-null values
	Sum   float64 // running sum (SUM and AVG)
	Min   float64
	Max   float64
	IsSet bool // true once at least one value has been accumulated
}

// NewPartialAggregate creates a new empty partial aggregate of the given type.
func NewPartialAggregate(aggType AggregateType) *PartialAggregate {
	return &PartialAggregate{Type: aggType}
}

// Accumulate adds a value. Missing values are ignored by every aggregate,
// including COUNT.
func (p *PartialAggregate) Accumulate(value *float64) {
	if value == nil {
		return
	}
	p.Add(*value)
}

// Add adds a present value.
func (p *PartialAggregate) Add(v float64) {
	switch p.Type {
	case AggMin:
		if !p.IsSet || v < p.Min {
			p.Min = v
		}
	case AggMax:
		if !p.IsSet || v > p.Max {
			p.Max = v
		}
	case AggSum, AggAvg:
		p.Sum += v
	}
	p.Count++
	p.IsSet = true
}

// Merge folds src into p. Both must have the same type.
func (p *PartialAggregate) Merge(src *PartialAggregate) {
	if !src.IsSet {
		return
	}

	switch p.Type {
	case AggMin:
		if !p.IsSet || src.Min < p.Min {
			p.Min = src.Min
		}
	case AggMax:
		if !p.IsSet || src.Max > p.Max {
			p.Max = src.Max
		}
	case AggSum, AggAvg:
		p.Sum += src.Sum
	}
	p.Count += src.Count
	p.IsSet = true
}

// Result returns the final value, or nil when nothing was accumulated.
// COUNT and SUM of an empty input are zero.
func (p *PartialAggregate) Result() *float64 {
	var v float64
	switch p.Type {
	case AggCount:
		v = float64(p.Count)
	case AggSum:
		v = p.Sum
	case AggMin:
		if !p.IsSet {
			return nil
		}
		v = p.Min
	case AggMax:
		if !p.IsSet {
			return nil
		}
		v = p.Max
	case AggAvg:
		if p.Count == 0 {
			return nil
		}
		v = p.Sum / float64(p.Count)
	}
	return &v
}

// Value returns Result, or 0 when it is missing.
func (p *PartialAggregate) Value() float64 {
	if r := p.Result(); r != nil {
		return *r
	}
	return 0
}

// toFloat converts a sort key to float64 for numeric comparison.
func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case *float64:
		if val == nil {
			return 0, false
		}
		return *val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	}
	return 0, false
}

// compareAggValues orders two values. Missing values sort first.
func compareAggValues(a, b interface{}) int {
	a, b = deref(a), deref(b)
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	// Numeric comparison
	fa, aOk := toFloat(a)
	fb, bOk := toFloat(b)
	if aOk && bOk {
		if fa < fb {
			return -1
		} else if fa > fb {
			return 1
		}
		return 0
	}

	// String comparison
	sa, aStr := a.(string)
	sb, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(sa, sb)
	}

	// Fallback: compare as strings
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

// deref turns a nil *float64 into an untyped nil.
func deref(v interface{}) interface{} {
	if p, ok := v.(*float64); ok && p == nil {
		return nil
	}
	return v
}

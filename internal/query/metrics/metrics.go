// Package metrics derives per-unit and margin measures from raw claim values.
// Division by zero yields a missing value, never an infinity.
package metrics

import (
	"math"

	"github.com/claimlens/claimlens/internal/claims"
)

// Ratio returns num/den, or nil when den is zero or the result is not finite.
func Ratio(num, den float64) *float64 {
	if den == 0 {
		return nil
	}
	v := num / den
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// UnitICP is ingredient cost paid per unit dispensed.
func UnitICP(c *claims.Claim) *float64 {
	return Ratio(c.IngredientCost, c.Quantity)
}

// UnitNADAC is the benchmark cost per unit dispensed.
func UnitNADAC(c *claims.Claim) *float64 {
	return Ratio(c.BenchmarkCost, c.Quantity)
}

// Margin is ingredient cost paid over the benchmark.
func Margin(icp, nadac float64) float64 {
	return icp - nadac
}

// PerRx divides a summed total by the claim count.
func PerRx(total float64, rxCount int64) *float64 {
	return Ratio(total, float64(rxCount))
}

// Scale multiplies a possibly missing value.
func Scale(v *float64, k float64) *float64 {
	if v == nil {
		return nil
	}
	s := *v * k
	return &s
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round2Ptr rounds a possibly missing value.
func Round2Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := Round2(*v)
	return &r
}

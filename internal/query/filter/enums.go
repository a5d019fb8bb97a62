package filter

import (
	"encoding/json"
	"strconv"
	"strings"

	clerrors "github.com/claimlens/claimlens/internal/errors"
)

// AllDrugs is the product placeholder meaning "no product filter".
const AllDrugs = "All Drugs"

// Interval is the calendar bucket width used for resampling.
type Interval string

const (
	Week    Interval = "Week"
	Month   Interval = "Month"
	Quarter Interval = "Quarter"
	Year    Interval = "Year"
)

// Intervals lists the interval labels in menu order.
var Intervals = []Interval{Week, Quarter, Month, Year}

// ParseInterval converts a label to an Interval.
func ParseInterval(s string) (Interval, error) {
	for _, iv := range Intervals {
		if strings.EqualFold(s, string(iv)) {
			return iv, nil
		}
	}
	return "", clerrors.InvalidParameter("interval", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *Interval) UnmarshalText(b []byte) error {
	v, err := ParseInterval(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Scope selects whether aggregate views are restricted to the selected product.
type Scope string

const (
	ScopeAllDrugs     Scope = "All Drugs"
	ScopeSelectedDrug Scope = "Selected Drug"
)

// ParseScope converts a label to a Scope.
func ParseScope(s string) (Scope, error) {
	switch {
	case strings.EqualFold(s, string(ScopeAllDrugs)):
		return ScopeAllDrugs, nil
	case strings.EqualFold(s, string(ScopeSelectedDrug)):
		return ScopeSelectedDrug, nil
	}
	return "", clerrors.InvalidParameter("scope", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (sc *Scope) UnmarshalText(b []byte) error {
	v, err := ParseScope(string(b))
	if err != nil {
		return err
	}
	*sc = v
	return nil
}

// Specialty selects specialty, non-specialty, or all drugs.
type Specialty string

const (
	SpecialtyAll  Specialty = "All"
	SpecialtyOnly Specialty = "Specialty"
	SpecialtyNone Specialty = "Non Specialty"
)

// ParseSpecialty converts a label to a Specialty selection.
func ParseSpecialty(s string) (Specialty, error) {
	for _, v := range []Specialty{SpecialtyAll, SpecialtyOnly, SpecialtyNone} {
		if strings.EqualFold(s, string(v)) {
			return v, nil
		}
	}
	return "", clerrors.InvalidParameter("specialty", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (sp *Specialty) UnmarshalText(b []byte) error {
	v, err := ParseSpecialty(string(b))
	if err != nil {
		return err
	}
	*sp = v
	return nil
}

// Brand selects brand, generic, or all drugs. The numeric values match the
// encoding used by the brand toggle: 1 brand, 0 generic.
type Brand int

const (
	BrandAll     Brand = -1
	BrandGeneric Brand = 0
	BrandOnly    Brand = 1
)

// ParseBrand accepts "All", "Brand", "Generic" or the numeric encoding.
func ParseBrand(s string) (Brand, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all", "-1":
		return BrandAll, nil
	case "brand", "1":
		return BrandOnly, nil
	case "generic", "0":
		return BrandGeneric, nil
	}
	return BrandAll, clerrors.InvalidParameter("brand", s)
}

// String returns the display label.
func (b Brand) String() string {
	switch b {
	case BrandOnly:
		return "Brand"
	case BrandGeneric:
		return "Generic"
	case BrandAll:
		return "All"
	}
	return "Brand(" + strconv.Itoa(int(b)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (b Brand) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Brand) UnmarshalText(text []byte) error {
	v, err := ParseBrand(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// UnmarshalJSON accepts the numeric encoding as well as the labels.
func (b *Brand) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return b.UnmarshalText([]byte(n.String()))
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return clerrors.InvalidParameter("brand", string(data))
	}
	return b.UnmarshalText([]byte(s))
}

// RankMeasure is the internal key of a provider ranking measure.
type RankMeasure string

const (
	RankNADAC       RankMeasure = "nadac"
	RankICP         RankMeasure = "icp"
	RankRxCount     RankMeasure = "rx_count"
	RankQty         RankMeasure = "qty"
	RankMargin      RankMeasure = "margin"
	RankNADACPerRx  RankMeasure = "nadac_per_rx"
	RankICPPerRx    RankMeasure = "icp_per_rx"
	RankQtyPerRx    RankMeasure = "qty_per_rx"
	RankMarginPerRx RankMeasure = "margin_per_rx"
)

// RankMeasureOption pairs a display label with its measure key.
type RankMeasureOption struct {
	Label   string      `json:"label"`
	Measure RankMeasure `json:"value"`
}

// RankMeasures lists the rank-by options in menu order.
var RankMeasures = []RankMeasureOption{
	{"Total Nadac", RankNADAC},
	{"Total Ingredient Cost Paid", RankICP},
	{"Total Rx Count", RankRxCount},
	{"Total Units Dispensed", RankQty},
	{"Total Margin Over NADAC", RankMargin},
	{"Average NADAC Per Rx", RankNADACPerRx},
	{"Average Ingredient Cost Paid Per Rx", RankICPPerRx},
	{"Average Units Dispensed Per Rx", RankQtyPerRx},
	{"Average Margin Over NADAC Per Rx", RankMarginPerRx},
}

// ParseRankMeasure accepts a measure key or its display label.
func ParseRankMeasure(s string) (RankMeasure, error) {
	for _, o := range RankMeasures {
		if s == string(o.Measure) || strings.EqualFold(s, o.Label) {
			return o.Measure, nil
		}
	}
	return "", clerrors.InvalidParameter("rank_by", s)
}

// Label returns the display label for the measure.
func (m RankMeasure) Label() string {
	for _, o := range RankMeasures {
		if o.Measure == m {
			return o.Label
		}
	}
	return string(m)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *RankMeasure) UnmarshalText(b []byte) error {
	v, err := ParseRankMeasure(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

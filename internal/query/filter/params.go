package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	clerrors "github.com/claimlens/claimlens/internal/errors"
)

// Date is a calendar date that marshals as YYYY-MM-DD.
type Date struct {
	time.Time
}

// ParseDate parses YYYY-MM-DD. The empty string yields the zero Date.
func ParseDate(name, s string) (Date, error) {
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, clerrors.InvalidParameter(name, s)
	}
	return Date{t}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.Format("2006-01-02")), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	v, err := ParseDate("date", string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MarshalJSON overrides the RFC 3339 encoding promoted from time.Time.
func (d Date) MarshalJSON() ([]byte, error) {
	b, _ := d.MarshalText()
	return json.Marshal(string(b))
}

// UnmarshalJSON overrides the RFC 3339 decoding promoted from time.Time.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return clerrors.InvalidParameter("date", string(data))
	}
	return d.UnmarshalText([]byte(s))
}

// Params is the full parameter set of a report request. It determines the
// output completely.
type Params struct {
	Product        string      `json:"product" yaml:"product"`
	Interval       Interval    `json:"interval" yaml:"interval"`
	ProviderGroups []string    `json:"groups" yaml:"groups"`
	Quantity       float64     `json:"qty" yaml:"qty"`
	Scope          Scope       `json:"scope" yaml:"scope"`
	Specialty      Specialty   `json:"specialty" yaml:"specialty"`
	Brand          Brand       `json:"brand" yaml:"brand"`
	MinClaims      int         `json:"min_claims" yaml:"min_claims"`
	RankBy         RankMeasure `json:"rank_by" yaml:"rank_by"`
	TopN           int         `json:"top_n" yaml:"top_n"`
	From           Date        `json:"from" yaml:"-"`
	To             Date        `json:"to" yaml:"-"`
}

// DefaultParams returns the parameter set used when a request leaves a
// field unset.
func DefaultParams() Params {
	return Params{
		Product:   "",
		Interval:  Month,
		Quantity:  60,
		Scope:     ScopeAllDrugs,
		Specialty: SpecialtyAll,
		Brand:     BrandAll,
		MinClaims: 10,
		RankBy:    RankICP,
		TopN:      10,
	}
}

// Validate checks the numeric bounds of the parameter set. Enum fields are
// checked when they are parsed.
func (p Params) Validate() error {
	if p.Quantity <= 0 {
		return clerrors.InvalidParameter("qty", fmt.Sprint(p.Quantity))
	}
	if p.MinClaims < 1 {
		return clerrors.InvalidParameter("min_claims", fmt.Sprint(p.MinClaims))
	}
	if p.TopN < 1 {
		return clerrors.InvalidParameter("top_n", fmt.Sprint(p.TopN))
	}
	for _, g := range p.ProviderGroups {
		if strings.TrimSpace(g) == "" {
			return clerrors.InvalidParameter("groups", g)
		}
	}
	if !p.From.IsZero() && !p.To.IsZero() && !p.From.Before(p.To.Time) {
		return clerrors.InvalidParameter("to", p.To.Format("2006-01-02"))
	}
	if _, err := ParseInterval(string(p.Interval)); err != nil {
		return err
	}
	if _, err := ParseScope(string(p.Scope)); err != nil {
		return err
	}
	if _, err := ParseSpecialty(string(p.Specialty)); err != nil {
		return err
	}
	if p.Brand != BrandAll && p.Brand != BrandGeneric && p.Brand != BrandOnly {
		return clerrors.InvalidParameter("brand", p.Brand.String())
	}
	if _, err := ParseRankMeasure(string(p.RankBy)); err != nil {
		return err
	}
	return nil
}

// HasProduct reports whether a concrete product is selected.
func (p Params) HasProduct() bool {
	return p.Product != "" && p.Product != AllDrugs
}

// RequireProduct fails unless product names a concrete product.
func RequireProduct(product string) error {
	if product == "" || product == AllDrugs {
		return clerrors.NewValidationError(clerrors.CodeProductRequired,
			"a product must be selected")
	}
	return nil
}

// SeriesPredicates returns the filter for the time-series view. That view is
// product-scoped, so a missing product is a validation error.
func (p Params) SeriesPredicates() ([]Predicate, error) {
	if err := RequireProduct(p.Product); err != nil {
		return nil, err
	}
	preds := []Predicate{ProductIs(p.Product)}
	return append(preds, p.datePredicates()...), nil
}

// AggregatePredicates returns the filter shared by the percent-of-total and
// provider ranking views. Placeholder selections contribute nothing.
func (p Params) AggregatePredicates() []Predicate {
	var preds []Predicate
	if p.Scope == ScopeSelectedDrug && p.HasProduct() {
		preds = append(preds, ProductIs(p.Product))
	}
	switch p.Specialty {
	case SpecialtyOnly:
		preds = append(preds, SpecialtyIs(true))
	case SpecialtyNone:
		preds = append(preds, SpecialtyIs(false))
	}
	switch p.Brand {
	case BrandOnly:
		preds = append(preds, BrandIs(true))
	case BrandGeneric:
		preds = append(preds, BrandIs(false))
	}
	return append(preds, p.datePredicates()...)
}

func (p Params) datePredicates() []Predicate {
	if p.From.IsZero() && p.To.IsZero() {
		return nil
	}
	return []Predicate{DateBetween(p.From.Time, p.To.Time)}
}

// CanonicalKey renders the parameter set as a stable string, used to derive
// response ETags. Group order is kept because it orders series columns.
func (p Params) CanonicalKey() string {
	from, _ := p.From.MarshalText()
	to, _ := p.To.MarshalText()
	return strings.Join([]string{
		p.Product,
		string(p.Interval),
		strings.Join(p.ProviderGroups, ","),
		fmt.Sprint(p.Quantity),
		string(p.Scope),
		string(p.Specialty),
		p.Brand.String(),
		fmt.Sprint(p.MinClaims),
		string(p.RankBy),
		fmt.Sprint(p.TopN),
		string(from),
		string(to),
	}, "|")
}

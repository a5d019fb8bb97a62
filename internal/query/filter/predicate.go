// Package filter builds conjunctive row predicates from report parameters.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/claimlens/claimlens/internal/claims"
)

// Predicate is a named boolean test over one claim.
type Predicate interface {
	Name() string
	Match(c *claims.Claim) bool
}

type predicateFunc struct {
	name string
	fn   func(*claims.Claim) bool
}

func (p predicateFunc) Name() string                 { return p.name }
func (p predicateFunc) Match(c *claims.Claim) bool { return p.fn(c) }

// New returns a Predicate from a name and a match function.
func New(name string, fn func(*claims.Claim) bool) Predicate {
	return predicateFunc{name: name, fn: fn}
}

// ProductIs matches claims for exactly one product.
func ProductIs(product string) Predicate {
	return New(fmt.Sprintf("product = %q", product), func(c *claims.Claim) bool {
		return c.Product == product
	})
}

// DateBetween matches dates of service in [from, to). A zero bound is open.
func DateBetween(from, to time.Time) Predicate {
	name := fmt.Sprintf("dos in [%s, %s)", fmtBound(from), fmtBound(to))
	return New(name, func(c *claims.Claim) bool {
		if !from.IsZero() && c.DateOfService.Before(from) {
			return false
		}
		if !to.IsZero() && !c.DateOfService.Before(to) {
			return false
		}
		return true
	})
}

func fmtBound(t time.Time) string {
	if t.IsZero() {
		return "*"
	}
	return t.Format("2006-01-02")
}

// SpecialtyIs matches the specialty flag.
func SpecialtyIs(v bool) Predicate {
	return New(fmt.Sprintf("is_special = %t", v), func(c *claims.Claim) bool {
		return c.Specialty == v
	})
}

// BrandIs matches the brand flag.
func BrandIs(v bool) Predicate {
	return New(fmt.Sprintf("is_brand = %t", v), func(c *claims.Claim) bool {
		return c.Brand == v
	})
}

// AffiliatedIs matches the affiliation flag.
func AffiliatedIs(v bool) Predicate {
	return New(fmt.Sprintf("affiliated = %t", v), func(c *claims.Claim) bool {
		return c.Affiliated == v
	})
}

// GroupIs matches a provider group name. Claims without a group never match.
func GroupIs(name string) Predicate {
	return New(fmt.Sprintf("group_name = %q", name), func(c *claims.Claim) bool {
		g, ok := c.Group()
		return ok && g == name
	})
}

// PayerIs matches the payer identifier.
func PayerIs(id int64) Predicate {
	return New(fmt.Sprintf("pbm_id = %d", id), func(c *claims.Claim) bool {
		return c.PayerID == id
	})
}

// And composes predicates conjunctively. An empty list matches every row.
func And(preds ...Predicate) Predicate {
	switch len(preds) {
	case 0:
		return All()
	case 1:
		return preds[0]
	}
	names := make([]string, len(preds))
	for i, p := range preds {
		names[i] = p.Name()
	}
	return New(strings.Join(names, " AND "), func(c *claims.Claim) bool {
		for _, p := range preds {
			if !p.Match(c) {
				return false
			}
		}
		return true
	})
}

// All matches every claim.
func All() Predicate {
	return New("TRUE", func(*claims.Claim) bool { return true })
}

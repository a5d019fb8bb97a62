package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	clerrors "github.com/claimlens/claimlens/internal/errors"
	"github.com/claimlens/claimlens/internal/query/filter"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ParseParams builds report parameters from a request. GET requests read the
// query string; POST requests read a JSON body. Unset fields keep the values
// in defaults.
func ParseParams(r *http.Request, defaults filter.Params) (filter.Params, error) {
	p := defaults
	p.ProviderGroups = append([]string(nil), defaults.ProviderGroups...)

	switch r.Method {
	case http.MethodGet:
		if err := applyQuery(&p, r.URL.Query()); err != nil {
			return p, err
		}
	case http.MethodPost:
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
			if clerrors.GetCategory(err) != "" {
				return p, err
			}
			return p, clerrors.NewValidationError(clerrors.CodeInvalidParameter, "invalid request body").
				WithDetails(map[string]interface{}{"reason": err.Error()})
		}
	}
	return p, p.Validate()
}

func applyQuery(p *filter.Params, q url.Values) error {
	var err error
	if v, ok := lookup(q, "product"); ok {
		p.Product = v
	}
	if v, ok := lookup(q, "interval"); ok {
		if p.Interval, err = filter.ParseInterval(v); err != nil {
			return err
		}
	}
	if groups, ok := q["groups"]; ok {
		p.ProviderGroups = p.ProviderGroups[:0]
		for _, g := range groups {
			if g = strings.TrimSpace(g); g != "" {
				p.ProviderGroups = append(p.ProviderGroups, g)
			}
		}
	}
	if v, ok := lookup(q, "qty"); ok {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return clerrors.InvalidParameter("qty", v)
		}
		p.Quantity = f
	}
	if v, ok := lookup(q, "scope"); ok {
		if p.Scope, err = filter.ParseScope(v); err != nil {
			return err
		}
	}
	if v, ok := lookup(q, "specialty"); ok {
		if p.Specialty, err = filter.ParseSpecialty(v); err != nil {
			return err
		}
	}
	if v, ok := lookup(q, "brand"); ok {
		if p.Brand, err = filter.ParseBrand(v); err != nil {
			return err
		}
	}
	if v, ok := lookup(q, "min_claims"); ok {
		if p.MinClaims, err = parseInt("min_claims", v); err != nil {
			return err
		}
	}
	if v, ok := lookup(q, "rank_by"); ok {
		if p.RankBy, err = filter.ParseRankMeasure(v); err != nil {
			return err
		}
	}
	if v, ok := lookup(q, "top_n"); ok {
		if p.TopN, err = parseInt("top_n", v); err != nil {
			return err
		}
	}
	if v, ok := lookup(q, "from"); ok {
		if p.From, err = filter.ParseDate("from", v); err != nil {
			return err
		}
	}
	if v, ok := lookup(q, "to"); ok {
		if p.To, err = filter.ParseDate("to", v); err != nil {
			return err
		}
	}
	return nil
}

// lookup returns the first value of key and whether the key was present.
func lookup(q url.Values, key string) (string, bool) {
	vs, ok := q[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

func parseInt(name, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, clerrors.InvalidParameter(name, v)
	}
	return n, nil
}

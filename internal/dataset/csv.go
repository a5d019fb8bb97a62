package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/claimlens/claimlens/internal/claims"
	clerrors "github.com/claimlens/claimlens/internal/errors"
)

// ReadCSV decodes a claims CSV export. The first line is a header naming the
// columns in any order; the required columns must all be present and pbm_id
// is optional. Empty group_name cells decode as a null group.
func ReadCSV(r io.Reader) ([]claims.Claim, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, clerrors.NewDatasetError(clerrors.CodeOpenFailed, "read csv header", err)
	}
	colIx := make(map[string]int, len(header))
	names := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		colIx[name] = i
		names[i] = name
	}
	if err := claims.ValidateColumns(names); err != nil {
		return nil, err
	}
	payerIx, hasPayer := colIx[claims.ColPayerID]

	var out []claims.Claim
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, scanErr(fmt.Sprintf("csv line %d", line), err)
		}

		cell := func(col string) string { return strings.TrimSpace(rec[colIx[col]]) }
		var c claims.Claim
		c.Product = cell(claims.ColProduct)
		if c.DateOfService, err = parseDate(cell(claims.ColDOS)); err != nil {
			return nil, csvErr(line, claims.ColDOS, err)
		}
		for _, f := range []struct {
			col string
			dst *float64
		}{
			{claims.ColQty, &c.Quantity},
			{claims.ColICP, &c.IngredientCost},
			{claims.ColNADAC, &c.BenchmarkCost},
		} {
			if *f.dst, err = strconv.ParseFloat(cell(f.col), 64); err != nil {
				return nil, csvErr(line, f.col, err)
			}
		}
		for _, f := range []struct {
			col string
			dst *bool
		}{
			{claims.ColAffiliated, &c.Affiliated},
			{claims.ColBrand, &c.Brand},
			{claims.ColSpecialty, &c.Specialty},
		} {
			if *f.dst, err = parseFlag(cell(f.col)); err != nil {
				return nil, csvErr(line, f.col, err)
			}
		}
		if g := cell(claims.ColGroupName); g != "" {
			c.GroupName = &g
		}
		if hasPayer {
			if v := strings.TrimSpace(rec[payerIx]); v != "" {
				if c.PayerID, err = strconv.ParseInt(v, 10, 64); err != nil {
					return nil, csvErr(line, claims.ColPayerID, err)
				}
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// parseFlag accepts the boolean spellings common in CSV exports.
func parseFlag(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "t", "yes", "y":
		return true, nil
	case "0", "false", "f", "no", "n", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func csvErr(line int, col string, err error) error {
	return clerrors.NewDatasetError(clerrors.CodeScanFailed,
		fmt.Sprintf("csv line %d column %s", line, col), err)
}

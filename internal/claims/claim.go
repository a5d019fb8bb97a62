// Package claims defines the pharmacy claim record and its columnar schema.
package claims

import (
	"fmt"
	"sort"
	"time"

	clerrors "github.com/claimlens/claimlens/internal/errors"
)

// Column names of the claims dataset.
const (
	ColProduct    = "product"
	ColDOS        = "dos"
	ColQty        = "qty"
	ColICP        = "icp"
	ColNADAC      = "nadac"
	ColGroupName  = "group_name"
	ColAffiliated = "affiliated"
	ColBrand      = "is_brand"
	ColSpecialty  = "is_special"
	ColPayerID    = "pbm_id"
)

// Claim is one dispensed prescription claim. Rows are read-only once loaded.
// Sources map their storage layout onto this type.
type Claim struct {
	Product        string    `json:"product"`
	DateOfService  time.Time `json:"dos"`
	Quantity       float64   `json:"qty"`
	IngredientCost float64   `json:"icp"`
	BenchmarkCost  float64   `json:"nadac"`
	GroupName      *string   `json:"group_name,omitempty"`
	Affiliated     bool      `json:"affiliated"`
	Brand          bool      `json:"is_brand"`
	Specialty      bool      `json:"is_special"`
	PayerID        int64     `json:"pbm_id,omitempty"`
}

// Group returns the provider group name and whether it is present.
func (c *Claim) Group() (string, bool) {
	if c.GroupName == nil {
		return "", false
	}
	return *c.GroupName, true
}

// Schema lists the columns every claims source must expose.
var Schema = []string{
	ColProduct,
	ColDOS,
	ColQty,
	ColICP,
	ColNADAC,
	ColGroupName,
	ColAffiliated,
	ColBrand,
	ColSpecialty,
}

// ValidateColumns checks that every required column is present. The payer
// column is optional; only deployments that pre-filter by payer need it.
func ValidateColumns(columns []string) error {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}

	var missing []string
	for _, c := range Schema {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	sort.Strings(missing)
	return clerrors.NewDatasetError(clerrors.CodeSchemaMismatch,
		fmt.Sprintf("claims dataset is missing columns %v", missing), nil).
		WithDetails(map[string]interface{}{"missing": missing})
}

// HasColumn reports whether columns contains name.
func HasColumn(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}

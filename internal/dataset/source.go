// Package dataset provides read access to the claims table. Sources stream
// rows on every call and hold no row data between calls.
package dataset

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/claimlens/claimlens/internal/claims"
	"github.com/claimlens/claimlens/internal/config"
	clerrors "github.com/claimlens/claimlens/internal/errors"
	"github.com/claimlens/claimlens/internal/query/filter"
)

// ScanFunc receives each matching claim. The claim is only valid for the
// duration of the call.
type ScanFunc func(c *claims.Claim) error

// Source is a read-only claims table.
type Source interface {
	// Scan calls fn for every claim that satisfies pred, in storage order.
	Scan(ctx context.Context, pred filter.Predicate, fn ScanFunc) error

	// Columns returns the column names exposed by the source.
	Columns() []string

	// Describe returns a short human-readable location of the source.
	Describe() string

	// Close releases any resources held by the source.
	Close() error
}

// Open opens the source selected by cfg.Format. The schema is validated
// before Open returns.
func Open(ctx context.Context, cfg config.DatasetConfig) (Source, error) {
	var (
		src Source
		err error
	)
	switch cfg.Format {
	case config.FormatParquet, "":
		src, err = OpenParquet(cfg.Path)
	case config.FormatSQLite:
		src, err = OpenSQLite(ctx, cfg.Path)
	case config.FormatPostgres:
		src, err = OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, clerrors.NewDatasetError(clerrors.CodeOpenFailed,
			fmt.Sprintf("unknown dataset format %q", cfg.Format), nil)
	}
	if err != nil {
		return nil, err
	}

	if cfg.PayerID != nil {
		if !claims.HasColumn(src.Columns(), claims.ColPayerID) {
			src.Close()
			return nil, clerrors.NewDatasetError(clerrors.CodeSchemaMismatch,
				"payer filter configured but dataset has no pbm_id column", nil)
		}
		src = WithPayer(src, *cfg.PayerID)
	}
	return src, nil
}

type payerSource struct {
	Source
	payer filter.Predicate
}

// WithPayer restricts every scan of src to one payer.
func WithPayer(src Source, payerID int64) Source {
	return &payerSource{Source: src, payer: filter.PayerIs(payerID)}
}

func (p *payerSource) Scan(ctx context.Context, pred filter.Predicate, fn ScanFunc) error {
	return p.Source.Scan(ctx, filter.And(p.payer, pred), fn)
}

func (p *payerSource) Describe() string {
	return p.Source.Describe() + " [" + p.payer.Name() + "]"
}

// Fingerprint returns the hex murmur3 128-bit hash of the file at path.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	defer f.Close()

	h := murmur3.New128()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SessionFingerprint identifies a database source for one process lifetime.
// The table can change underneath a running server, so the value also
// changes on every start.
func SessionFingerprint(dsn string, started time.Time) string {
	h := murmur3.New128()
	fmt.Fprintf(h, "%s\x00%d", dsn, started.UnixNano())
	return hex.EncodeToString(h.Sum(nil))
}

// checkContext maps a cancelled context to a query error.
func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return clerrors.NewQueryError(clerrors.CodeCancelled, "scan cancelled", err)
	}
	return nil
}

func scanErr(where string, err error) error {
	return clerrors.NewDatasetError(clerrors.CodeScanFailed, "scan "+where, err)
}

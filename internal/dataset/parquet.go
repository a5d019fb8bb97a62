package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/claimlens/claimlens/internal/claims"
	clerrors "github.com/claimlens/claimlens/internal/errors"
	"github.com/claimlens/claimlens/internal/query/filter"
)

const parquetBatch = 8192

const secondsPerDay = 24 * 60 * 60

// parquetRow is the file layout of a claims table. Every column is optional,
// as dataframe writers emit them, and dos is a DATE: days since the Unix
// epoch. Nulls read as zero values.
type parquetRow struct {
	Product    string  `parquet:"product,optional"`
	DOS        int32   `parquet:"dos,optional,date"`
	Qty        float64 `parquet:"qty,optional"`
	ICP        float64 `parquet:"icp,optional"`
	NADAC      float64 `parquet:"nadac,optional"`
	GroupName  *string `parquet:"group_name,optional"`
	Affiliated bool    `parquet:"affiliated,optional"`
	Brand      bool    `parquet:"is_brand,optional"`
	Specialty  bool    `parquet:"is_special,optional"`
	PayerID    int64   `parquet:"pbm_id,optional"`
}

func (r *parquetRow) decode(c *claims.Claim) {
	*c = claims.Claim{
		Product:        r.Product,
		DateOfService:  time.Unix(int64(r.DOS)*secondsPerDay, 0).UTC(),
		Quantity:       r.Qty,
		IngredientCost: r.ICP,
		BenchmarkCost:  r.NADAC,
		GroupName:      r.GroupName,
		Affiliated:     r.Affiliated,
		Brand:          r.Brand,
		Specialty:      r.Specialty,
		PayerID:        r.PayerID,
	}
}

func encodeRow(c *claims.Claim) parquetRow {
	return parquetRow{
		Product:    c.Product,
		DOS:        epochDays(c.DateOfService),
		Qty:        c.Quantity,
		ICP:        c.IngredientCost,
		NADAC:      c.BenchmarkCost,
		GroupName:  c.GroupName,
		Affiliated: c.Affiliated,
		Brand:      c.Brand,
		Specialty:  c.Specialty,
		PayerID:    c.PayerID,
	}
}

// epochDays returns the day number of t's UTC calendar date.
func epochDays(t time.Time) int32 {
	secs := t.Unix()
	days := secs / secondsPerDay
	if secs%secondsPerDay < 0 {
		days--
	}
	return int32(days)
}

// ParquetSource reads claims from a parquet file. The file is reopened for
// each scan.
type ParquetSource struct {
	path    string
	columns []string
}

// OpenParquet checks that path is a readable parquet file with the claims
// schema.
func OpenParquet(path string) (*ParquetSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, clerrors.NewDatasetError(clerrors.CodeOpenFailed,
			fmt.Sprintf("open %s", path), err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, clerrors.NewDatasetError(clerrors.CodeOpenFailed,
			fmt.Sprintf("stat %s", path), err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, clerrors.NewDatasetError(clerrors.CodeOpenFailed,
			fmt.Sprintf("read parquet footer of %s", path), err)
	}

	fields := pf.Schema().Fields()
	columns := make([]string, len(fields))
	for i, field := range fields {
		columns[i] = field.Name()
	}
	if err := claims.ValidateColumns(columns); err != nil {
		return nil, err
	}
	if leaf, ok := pf.Schema().Lookup(claims.ColDOS); ok {
		if lt := leaf.Node.Type().LogicalType(); lt == nil || lt.Date == nil {
			return nil, clerrors.NewDatasetError(clerrors.CodeSchemaMismatch,
				fmt.Sprintf("column %s of %s must be a DATE, got %v", claims.ColDOS, path, leaf.Node.Type()), nil)
		}
	}

	return &ParquetSource{path: path, columns: columns}, nil
}

// Scan streams the file in batches.
func (s *ParquetSource) Scan(ctx context.Context, pred filter.Predicate, fn ScanFunc) error {
	f, err := os.Open(s.path)
	if err != nil {
		return scanErr(s.path, err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[parquetRow](f)
	defer reader.Close()

	var c claims.Claim
	buf := make([]parquetRow, parquetBatch)
	for {
		if err := checkContext(ctx); err != nil {
			return err
		}

		clear(buf)
		n, readErr := reader.Read(buf)
		for i := 0; i < n; i++ {
			buf[i].decode(&c)
			if !pred.Match(&c) {
				continue
			}
			if err := fn(&c); err != nil {
				return err
			}
		}

		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return scanErr(s.path, readErr)
		}
	}
}

// Columns returns the column names in file order.
func (s *ParquetSource) Columns() []string {
	return append([]string(nil), s.columns...)
}

// Describe returns the file path.
func (s *ParquetSource) Describe() string {
	return "parquet:" + s.path
}

// Path returns the file path.
func (s *ParquetSource) Path() string {
	return s.path
}

// Close is a no-op; files are only held open during a scan.
func (s *ParquetSource) Close() error {
	return nil
}

// WriteParquet writes claims to path with Snappy compression, dos as a DATE
// column.
func WriteParquet(path string, rows []claims.Claim) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create parquet: %w", err)
	}

	out := make([]parquetRow, len(rows))
	for i := range rows {
		out[i] = encodeRow(&rows[i])
	}

	writer := parquet.NewGenericWriter[parquetRow](file,
		parquet.Compression(&parquet.Snappy),
	)
	if _, err := writer.Write(out); err != nil {
		file.Close()
		return fmt.Errorf("write parquet: %w", err)
	}
	if err := writer.Close(); err != nil {
		file.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return file.Close()
}

package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/claimlens/claimlens/internal/claims"
	clerrors "github.com/claimlens/claimlens/internal/errors"
	"github.com/claimlens/claimlens/internal/query/filter"
)

// ClaimsTable is the table name used by the SQL sources.
const ClaimsTable = "claims"

// SQLiteSource reads claims from the claims table of a SQLite extract.
type SQLiteSource struct {
	path    string
	db      *sql.DB
	columns []string
	query   string
}

// OpenSQLite opens path read-only and validates the claims table.
func OpenSQLite(ctx context.Context, path string) (*SQLiteSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, clerrors.NewDatasetError(clerrors.CodeOpenFailed,
			fmt.Sprintf("open %s", path), err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, clerrors.NewDatasetError(clerrors.CodeOpenFailed,
			fmt.Sprintf("open %s", path), err)
	}

	columns, err := sqliteColumns(ctx, db)
	if err != nil {
		db.Close()
		return nil, clerrors.NewDatasetError(clerrors.CodeOpenFailed,
			fmt.Sprintf("read schema of %s", path), err)
	}
	if err := claims.ValidateColumns(columns); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteSource{
		path:    path,
		db:      db,
		columns: columns,
		query:   selectClaims(columns),
	}, nil
}

func sqliteColumns(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+ClaimsTable+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

// selectClaims builds the projection shared by the SQL sources. The payer
// column is selected only when present.
func selectClaims(columns []string) string {
	cols := append([]string(nil), claims.Schema...)
	if claims.HasColumn(columns, claims.ColPayerID) {
		cols = append(cols, claims.ColPayerID)
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM " + ClaimsTable
}

// Scan streams the table. Rows are filtered in process.
func (s *SQLiteSource) Scan(ctx context.Context, pred filter.Predicate, fn ScanFunc) error {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		if cerr := checkContext(ctx); cerr != nil {
			return cerr
		}
		return scanErr(s.path, err)
	}
	defer rows.Close()

	withPayer := claims.HasColumn(s.columns, claims.ColPayerID)
	var n int
	for rows.Next() {
		n++
		if n%parquetBatch == 0 {
			if err := checkContext(ctx); err != nil {
				return err
			}
		}

		var (
			c     claims.Claim
			dos   sql.NullString
			group sql.NullString
			payer sql.NullInt64
		)
		dest := []interface{}{&c.Product, &dos, &c.Quantity, &c.IngredientCost, &c.BenchmarkCost,
			&group, &c.Affiliated, &c.Brand, &c.Specialty}
		if withPayer {
			dest = append(dest, &payer)
		}
		if err := rows.Scan(dest...); err != nil {
			return scanErr(s.path, err)
		}
		if c.DateOfService, err = parseDate(dos.String); err != nil {
			return scanErr(s.path, err)
		}
		if group.Valid {
			g := group.String
			c.GroupName = &g
		}
		c.PayerID = payer.Int64

		if !pred.Match(&c) {
			continue
		}
		if err := fn(&c); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		if cerr := checkContext(ctx); cerr != nil {
			return cerr
		}
		return scanErr(s.path, err)
	}
	return nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
}

// parseDate accepts ISO dates and the timestamp layouts SQLite drivers write.
func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Columns returns the columns of the claims table.
func (s *SQLiteSource) Columns() []string {
	return append([]string(nil), s.columns...)
}

// Describe returns the database path.
func (s *SQLiteSource) Describe() string {
	return "sqlite:" + s.path
}

// Path returns the database path.
func (s *SQLiteSource) Path() string {
	return s.path
}

// Close closes the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// WriteSQLite creates path with a claims table holding rows. An existing file
// is replaced.
func WriteSQLite(ctx context.Context, path string, rows []claims.Claim) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing sqlite file: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	schema := `CREATE TABLE ` + ClaimsTable + ` (
		product    TEXT NOT NULL,
		dos        TEXT NOT NULL,
		qty        REAL NOT NULL,
		icp        REAL NOT NULL,
		nadac      REAL NOT NULL,
		group_name TEXT,
		affiliated INTEGER NOT NULL,
		is_brand   INTEGER NOT NULL,
		is_special INTEGER NOT NULL,
		pbm_id     INTEGER
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create claims table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+ClaimsTable+`
		(product, dos, qty, icp, nadac, group_name, affiliated, is_brand, is_special, pbm_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		c := &rows[i]
		var group interface{}
		if g, ok := c.Group(); ok {
			group = g
		}
		if _, err := stmt.ExecContext(ctx, c.Product, c.DateOfService.Format("2006-01-02"),
			c.Quantity, c.IngredientCost, c.BenchmarkCost, group,
			c.Affiliated, c.Brand, c.Specialty, c.PayerID); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

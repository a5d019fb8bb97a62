package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimlens/claimlens/internal/claims"
	clerrors "github.com/claimlens/claimlens/internal/errors"
	"github.com/claimlens/claimlens/internal/query/filter"
)

// PostgresSource reads claims from a claims table in PostgreSQL.
type PostgresSource struct {
	pool    *pgxpool.Pool
	columns []string
	query   string
	host    string
}

// OpenPostgres connects to dsn and validates the claims table.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSource, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, clerrors.NewDatasetError(clerrors.CodeOpenFailed, "parse connection", err)
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, clerrors.NewDatasetError(clerrors.CodeOpenFailed, "connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, clerrors.NewDatasetError(clerrors.CodeOpenFailed, "ping", err)
	}

	columns, err := postgresColumns(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, clerrors.NewDatasetError(clerrors.CodeOpenFailed, "read claims schema", err)
	}
	if err := claims.ValidateColumns(columns); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresSource{
		pool:    pool,
		columns: columns,
		query:   selectClaims(columns),
		host:    poolConfig.ConnConfig.Host,
	}, nil
}

func postgresColumns(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, ClaimsTable)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Scan streams the table. Rows are filtered in process.
func (s *PostgresSource) Scan(ctx context.Context, pred filter.Predicate, fn ScanFunc) error {
	rows, err := s.pool.Query(ctx, s.query)
	if err != nil {
		if cerr := checkContext(ctx); cerr != nil {
			return cerr
		}
		return scanErr(s.Describe(), err)
	}
	defer rows.Close()

	withPayer := claims.HasColumn(s.columns, claims.ColPayerID)
	for rows.Next() {
		var (
			c     claims.Claim
			dos   time.Time
			payer *int64
		)
		dest := []interface{}{&c.Product, &dos, &c.Quantity, &c.IngredientCost, &c.BenchmarkCost,
			&c.GroupName, &c.Affiliated, &c.Brand, &c.Specialty}
		if withPayer {
			dest = append(dest, &payer)
		}
		if err := rows.Scan(dest...); err != nil {
			return scanErr(s.Describe(), err)
		}
		c.DateOfService = dos.UTC()
		if payer != nil {
			c.PayerID = *payer
		}

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
		return scanErr(s.Describe(), err)
	}
	return nil
}

// Columns returns the columns of the claims table.
func (s *PostgresSource) Columns() []string {
	return append([]string(nil), s.columns...)
}

// Describe returns the database host.
func (s *PostgresSource) Describe() string {
	return "postgres:" + s.host
}

// Close closes the connection pool.
func (s *PostgresSource) Close() error {
	s.pool.Close()
	return nil
}

// PostgresSchema creates the claims table.
const PostgresSchema = `CREATE TABLE IF NOT EXISTS claims (
	product    TEXT NOT NULL,
	dos        DATE NOT NULL,
	qty        DOUBLE PRECISION NOT NULL,
	icp        DOUBLE PRECISION NOT NULL,
	nadac      DOUBLE PRECISION NOT NULL,
	group_name TEXT,
	affiliated BOOLEAN NOT NULL,
	is_brand   BOOLEAN NOT NULL,
	is_special BOOLEAN NOT NULL,
	pbm_id     BIGINT
)`

// LoadPostgres creates the claims table if needed and bulk-copies rows into
// it. It returns the number of rows copied.
func LoadPostgres(ctx context.Context, dsn string, rows []claims.Claim) (int64, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		return 0, fmt.Errorf("create claims table: %w", err)
	}

	columns := append(append([]string(nil), claims.Schema...), claims.ColPayerID)
	n, err := pool.CopyFrom(ctx, pgx.Identifier{ClaimsTable}, columns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			c := &rows[i]
			return []any{c.Product, c.DateOfService, c.Quantity, c.IngredientCost,
				c.BenchmarkCost, c.GroupName, c.Affiliated, c.Brand, c.Specialty, c.PayerID}, nil
		}))
	if err != nil {
		return 0, fmt.Errorf("copy claims: %w", err)
	}
	return n, nil
}

// Package repositories provides the PostgreSQL implementations of the domain
// repository interfaces.  Every query is parameterised; every method joins
// the caller's transaction when one is present in the context.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/ipdocket/ipdocket/internal/infrastructure/database/postgres"
)

// queryExecutor abstracts sql.DB and sql.Tx.
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// executor returns the active transaction from ctx, falling back to the
// pool.  Repositories never manage transactions themselves; the connection's
// WithinTx does.
func executor(ctx context.Context, db *sql.DB) queryExecutor {
	if tx, ok := postgres.TxFromContext(ctx); ok {
		return tx
	}
	return db
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullI64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func strOf(n sql.NullString) string {
	if n.Valid {
		return n.String
	}
	return ""
}

func i64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func f64Of(n sql.NullFloat64) float64 {
	if n.Valid {
		return n.Float64
	}
	return 0
}

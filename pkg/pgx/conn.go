package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is the subset of *pgxpool.Pool, *pgxpool.Conn and *pgx.Conn the store gateway needs.
// Accepting the interface lets callers hand in a pool in production and a single
// connection (or a transaction-scoped wrapper) in tests.
type Conn interface {
	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// Query runs a statement and returns its rows. The caller must close them,
	// which pgx.CollectRows does.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// QueryRow runs a statement expected to return at most one row. Errors are deferred to Scan.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

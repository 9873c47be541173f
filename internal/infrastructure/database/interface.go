package database

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Conn defines the operations the engine runs on its single pinned
// connection. *sqlx.Conn satisfies it.
type Conn interface {
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PreparexContext(ctx context.Context, query string) (*sqlx.Stmt, error)
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	PingContext(ctx context.Context) error
	Close() error
}

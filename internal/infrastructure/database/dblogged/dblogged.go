package dblogged

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/datawise/datawise/internal/infrastructure/database"
	"github.com/datawise/datawise/internal/pkg/logctx"
)

const (
	keyParamCount = "paramCount"
	keyDuration   = "duration"
	keyDriver     = "driver"
	keyInTx       = "inTx"

	operationOpen     = "open"
	operationQuery    = "query"
	operationExec     = "exec"
	operationPrepare  = "prepare"
	operationBegin    = "begin"
	operationCommit   = "commit"
	operationRollback = "rollback"
	operationStmtExec = "stmt exec"
	operationPing     = "ping"
	operationClose    = "close"
)

// Conn logs every call made on one pinned connection.
type Conn struct {
	conn   database.Conn
	db     *sqlx.DB
	driver string
}

// Open opens a pool limited to one connection and pins it. Engines backed by
// in-memory databases keep their state on that connection.
func Open(ctx context.Context, driver, dsn string) (_ *Conn, err error) {
	ctx = logctx.WithFields(ctx, map[string]any{
		logctx.KeyOperation: operationOpen,
		keyDriver:           driver,
	})
	start := time.Now()
	defer func() {
		logFinish(ctx, start, err)
	}()

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	conn, err := db.Connx(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.InfoContext(ctx, "database connected")
	return &Conn{conn: conn, db: db, driver: driver}, nil
}

// Driver returns the database/sql driver name.
func (c *Conn) Driver() string {
	return c.driver
}

func (c *Conn) QueryxContext(ctx context.Context, query string, args ...any) (rows *sqlx.Rows, err error) {
	start := time.Now()
	ctx = logctx.WithFields(ctx, map[string]any{
		keyParamCount:       len(args),
		logctx.KeyOperation: operationQuery,
	})
	defer func() {
		logFinish(ctx, start, err)
	}()
	rows, err = c.conn.QueryxContext(ctx, query, args...)
	return rows, err
}

func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (result sql.Result, err error) {
	start := time.Now()
	ctx = logctx.WithFields(ctx, map[string]any{
		keyParamCount:       len(args),
		logctx.KeyOperation: operationExec,
	})
	defer func() {
		logFinish(ctx, start, err)
	}()
	result, err = c.conn.ExecContext(ctx, query, args...)
	return result, err
}

func (c *Conn) PreparexContext(ctx context.Context, query string) (stmt *sqlx.Stmt, err error) {
	start := time.Now()
	ctx = logctx.WithField(ctx, logctx.KeyOperation, operationPrepare)
	defer func() {
		logFinish(ctx, start, err)
	}()
	stmt, err = c.conn.PreparexContext(ctx, query)
	return stmt, err
}

// BeginTxx starts a transaction whose statements are logged like the
// connection's own.
func (c *Conn) BeginTxx(ctx context.Context, opts *sql.TxOptions) (_ *Tx, err error) {
	start := time.Now()
	logCtx := logctx.WithField(ctx, logctx.KeyOperation, operationBegin)
	defer func() {
		logFinish(logCtx, start, err)
	}()
	tx, err := c.conn.BeginTxx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, ctx: ctx}, nil
}

func (c *Conn) PingContext(ctx context.Context) (err error) {
	start := time.Now()
	ctx = logctx.WithField(ctx, logctx.KeyOperation, operationPing)
	defer func() {
		logFinish(ctx, start, err)
	}()
	err = c.conn.PingContext(ctx)
	return err
}

// Close releases the pinned connection and the pool behind it.
func (c *Conn) Close() (err error) {
	start := time.Now()
	ctx := logctx.WithField(context.Background(), logctx.KeyOperation, operationClose)
	defer func() {
		logFinish(ctx, start, err)
	}()
	err = c.conn.Close()
	if c.db != nil {
		if dbErr := c.db.Close(); err == nil {
			err = dbErr
		}
	}
	return err
}

func logFinish(ctx context.Context, start time.Time, err error) {
	ctx = logctx.WithAttrs(ctx, slog.Duration(keyDuration, time.Since(start)))
	if err != nil {
		ctx = logctx.WithAttrs(ctx, slog.Any("err", err))
		slog.ErrorContext(ctx, "database call failed")
		return
	}
	slog.DebugContext(ctx, "db call finished")
}

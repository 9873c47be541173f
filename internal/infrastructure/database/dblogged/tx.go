package dblogged

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/datawise/datawise/internal/pkg/logctx"
)

// Tx logs every statement run inside a transaction. Commit and Rollback log
// with the context the transaction was started with.
type Tx struct {
	tx  *sqlx.Tx
	ctx context.Context
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (result sql.Result, err error) {
	start := time.Now()
	ctx = logctx.WithFields(ctx, map[string]any{
		keyParamCount:       len(args),
		logctx.KeyOperation: operationExec,
		keyInTx:             true,
	})
	defer func() {
		logFinish(ctx, start, err)
	}()
	result, err = t.tx.ExecContext(ctx, query, args...)
	return result, err
}

func (t *Tx) PreparexContext(ctx context.Context, query string) (stmt *Stmt, err error) {
	start := time.Now()
	ctx = logctx.WithFields(ctx, map[string]any{
		logctx.KeyOperation: operationPrepare,
		keyInTx:             true,
	})
	defer func() {
		logFinish(ctx, start, err)
	}()
	s, err := t.tx.PreparexContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &Stmt{stmt: s}, nil
}

func (t *Tx) Commit() (err error) {
	start := time.Now()
	ctx := logctx.WithField(t.ctx, logctx.KeyOperation, operationCommit)
	defer func() {
		logFinish(ctx, start, err)
	}()
	err = t.tx.Commit()
	return err
}

func (t *Tx) Rollback() (err error) {
	start := time.Now()
	ctx := logctx.WithField(t.ctx, logctx.KeyOperation, operationRollback)
	defer func() {
		logFinish(ctx, start, err)
	}()
	err = t.tx.Rollback()
	return err
}

// Stmt is a statement prepared inside a logged transaction.
type Stmt struct {
	stmt *sqlx.Stmt
}

func (s *Stmt) ExecContext(ctx context.Context, args ...any) (result sql.Result, err error) {
	start := time.Now()
	ctx = logctx.WithFields(ctx, map[string]any{
		keyParamCount:       len(args),
		logctx.KeyOperation: operationStmtExec,
		keyInTx:             true,
	})
	defer func() {
		logFinish(ctx, start, err)
	}()
	result, err = s.stmt.ExecContext(ctx, args...)
	return result, err
}

func (s *Stmt) Close() error {
	return s.stmt.Close()
}

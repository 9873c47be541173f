// Package engine owns the single connection to the embedded SQL engine and
// serializes every operation on it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/datawise/datawise/internal/infrastructure/database/dblogged"
	"github.com/datawise/datawise/internal/pkg/logctx"
	"github.com/datawise/datawise/internal/taskerr"
)

const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

var (
	// ErrClosed is returned for operations on a closed manager.
	ErrClosed = errors.New("engine closed")
	// ErrCancelled is returned when an operation observed its abort signal.
	ErrCancelled = errors.New("cancelled")
)

// Options selects the driver and data source.
type Options struct {
	Driver string
	DSN    string
}

// Manager holds the connection. At most one operation runs at any instant.
type Manager struct {
	conn    *dblogged.Conn
	dialect dialect
	sem     chan struct{}
	closed  chan struct{}
	once    sync.Once
}

// Open connects to the engine. An empty DSN opens an in-memory database.
func Open(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Driver == "" {
		opts.Driver = DriverDuckDB
	}
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, taskerr.New(taskerr.KindConnection, "open engine", err)
	}
	dsn := opts.DSN
	if dsn == "" {
		dsn = d.memoryDSN()
	}
	conn, err := dblogged.Open(ctx, opts.Driver, dsn)
	if err != nil {
		return nil, taskerr.New(taskerr.KindConnection, "open engine", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, taskerr.New(taskerr.KindConnection, "ping engine", err)
	}
	return &Manager{
		conn:    conn,
		dialect: d,
		sem:     make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}, nil
}

// Driver returns the configured driver name.
func (m *Manager) Driver() string {
	return m.conn.Driver()
}

// withConn runs fn while holding the connection lock. Acquisition gives up
// when ctx ends or the manager closes.
func (m *Manager) withConn(ctx context.Context, op string, fn func(conn *dblogged.Conn) error) error {
	select {
	case <-m.closed:
		return taskerr.New(taskerr.KindConnection, op, ErrClosed)
	default:
	}

	select {
	case m.sem <- struct{}{}:
	case <-m.closed:
		return taskerr.New(taskerr.KindConnection, op, ErrClosed)
	case <-ctx.Done():
		return taskerr.New(taskerr.KindConnection, op, fmt.Errorf("acquire connection: %w", ctx.Err()))
	}
	defer func() { <-m.sem }()

	select {
	case <-m.closed:
		return taskerr.New(taskerr.KindConnection, op, ErrClosed)
	default:
	}
	slog.DebugContext(logctx.WithField(ctx, logctx.KeyOperation, op), "connection acquired")
	return fn(m.conn)
}

// Close waits for the running operation, if any, and closes the connection.
func (m *Manager) Close() error {
	var err error
	m.once.Do(func() {
		close(m.closed)
		m.sem <- struct{}{}
		err = m.conn.Close()
	})
	return err
}

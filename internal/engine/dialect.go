package engine

import (
	"context"
	"fmt"

	"github.com/datawise/datawise/internal/columnar"
	"github.com/datawise/datawise/internal/infrastructure/database/dblogged"
)

// dialect covers what differs between engines: bulk transfer and the
// normalization of driver-specific scan values.
type dialect interface {
	memoryDSN() string
	// load creates job.table from job.path inside tx.
	load(ctx context.Context, tx *dblogged.Tx, job loadJob) error
	// unload writes job.source to job.path.
	unload(ctx context.Context, conn *dblogged.Conn, job unloadJob) error
	// value rewrites a scanned value into one columnar.FromDriver understands.
	value(col columnar.Column, v any) any
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverDuckDB:
		return duckDialect{}, nil
	case DriverSQLite:
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q (want %s|%s)", driver, DriverDuckDB, DriverSQLite)
	}
}

// Drivers lists the supported driver names.
func Drivers() []string {
	return []string{DriverDuckDB, DriverSQLite}
}

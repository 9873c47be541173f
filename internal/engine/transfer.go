package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/datawise/datawise/internal/columnar"
	"github.com/datawise/datawise/internal/infrastructure/database/dblogged"
	"github.com/datawise/datawise/internal/pkg/sqlutil"
	"github.com/datawise/datawise/internal/pkg/stringutil"
	"github.com/datawise/datawise/internal/protocol"
	"github.com/datawise/datawise/internal/taskerr"
)

// ProgressFunc receives bytes processed out of total.
type ProgressFunc func(done, total uint64)

// ImportRequest loads a file into a table.
type ImportRequest struct {
	Path string
	// Format is inferred from Path when empty.
	Format protocol.Format
	// TableName defaults to the file stem.
	TableName string
	// Overwrite drops an existing table of the same name first. Without it
	// an existing table makes the import fail.
	Overwrite bool
	Progress  ProgressFunc
	// Abort is polled at safe points; returning true stops the import.
	Abort func() bool
}

// ImportResult is the loaded table and its full contents.
type ImportResult struct {
	Table string
	Rows  *columnar.RowSet
}

// ExportRequest writes a table or query result to a file.
type ExportRequest struct {
	// Source is a table name or a query.
	Source   string
	Path     string
	Format   protocol.Format
	Progress ProgressFunc
	Abort    func() bool
}

// ExportResult describes the written file.
type ExportResult struct {
	Bytes uint64
}

type transfer struct {
	path     string
	format   protocol.Format
	total    uint64
	progress ProgressFunc
	abort    func() bool
}

func (t *transfer) report(done uint64) {
	if t.progress != nil {
		t.progress(done, t.total)
	}
}

func (t *transfer) aborted() bool {
	return t.abort != nil && t.abort()
}

// loadJob is an import resolved against the filesystem.
type loadJob struct {
	transfer
	table     string
	overwrite bool
}

// unloadJob is an export with its source classified.
type unloadJob struct {
	transfer
	source  string
	isQuery bool
}

// Import loads req.Path into a table and reads the table back.
func (m *Manager) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	const op = "import file"

	format, err := resolveFormat(req.Format, req.Path)
	if err != nil {
		return nil, taskerr.New(taskerr.KindInvalid, op, err)
	}
	info, err := os.Stat(req.Path)
	if err != nil {
		return nil, taskerr.New(taskerr.KindIO, op, err)
	}
	if info.IsDir() {
		return nil, taskerr.Errorf(taskerr.KindIO, op, "%s is a directory", req.Path)
	}
	f, err := os.Open(req.Path)
	if err != nil {
		return nil, taskerr.New(taskerr.KindIO, op, err)
	}
	_ = f.Close()

	table := req.TableName
	if table == "" {
		table = DefaultTableName(req.Path)
	}
	job := loadJob{
		transfer: transfer{
			path:     req.Path,
			format:   format,
			total:    uint64(info.Size()),
			progress: req.Progress,
			abort:    req.Abort,
		},
		table:     table,
		overwrite: req.Overwrite,
	}

	var rs *columnar.RowSet
	err = m.withConn(ctx, op, func(conn *dblogged.Conn) error {
		if job.aborted() {
			return taskerr.New(taskerr.KindCancelled, op, ErrCancelled)
		}
		job.report(0)
		if err := m.load(ctx, conn, job); err != nil {
			return err
		}
		job.report(job.total)

		var err error
		rs, err = m.query(ctx, conn, "SELECT * FROM "+stringutil.QuoteIdentifier(table))
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "file imported",
		slog.String("table", table),
		slog.String("format", string(format)),
		slog.Int("rows", rs.Len()))
	return &ImportResult{Table: table, Rows: rs}, nil
}

// load replaces (when asked) and creates the table in one transaction so a
// failed load leaves the previous table in place.
func (m *Manager) load(ctx context.Context, conn *dblogged.Conn, job loadJob) (err error) {
	const op = "import file"
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return taskerr.New(taskerr.KindExecution, "begin import", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if job.overwrite {
		drop := "DROP TABLE IF EXISTS " + stringutil.QuoteIdentifier(job.table)
		if _, err = tx.ExecContext(ctx, drop); err != nil {
			return taskerr.New(taskerr.KindExecution, "drop table", err)
		}
	}
	if err = m.dialect.load(ctx, tx, job); err != nil {
		if taskerr.KindOf(err) == taskerr.KindUnknown {
			err = taskerr.New(taskerr.KindExecution, op, err)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return taskerr.New(taskerr.KindExecution, "commit import", err)
	}
	return nil
}

// Export writes req.Source to req.Path.
func (m *Manager) Export(ctx context.Context, req ExportRequest) (ExportResult, error) {
	const op = "export file"

	format, err := resolveFormat(req.Format, req.Path)
	if err != nil {
		return ExportResult{}, taskerr.New(taskerr.KindInvalid, op, err)
	}
	source := sqlutil.TrimStatement(req.Source)
	if source == "" {
		return ExportResult{}, taskerr.Errorf(taskerr.KindInvalid, op, "empty export source")
	}
	job := unloadJob{
		transfer: transfer{
			path:     req.Path,
			format:   format,
			progress: req.Progress,
			abort:    req.Abort,
		},
		source:  source,
		isQuery: sqlutil.IsQuery(source),
	}

	err = m.withConn(ctx, op, func(conn *dblogged.Conn) error {
		if job.aborted() {
			return taskerr.New(taskerr.KindCancelled, op, ErrCancelled)
		}
		if err := m.dialect.unload(ctx, conn, job); err != nil {
			if taskerr.KindOf(err) == taskerr.KindUnknown {
				err = taskerr.New(taskerr.KindExecution, op, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return ExportResult{}, err
	}

	info, err := os.Stat(req.Path)
	if err != nil {
		return ExportResult{}, taskerr.New(taskerr.KindIO, op, err)
	}
	size := uint64(info.Size())
	job.total = size
	job.report(size)
	slog.InfoContext(ctx, "file exported",
		slog.String("path", req.Path),
		slog.String("format", string(format)),
		slog.Uint64("bytes", size))
	return ExportResult{Bytes: size}, nil
}

// DefaultTableName derives a table name from the file stem, or a random
// import_ name when the stem has no usable characters.
func DefaultTableName(path string) string {
	if name := stringutil.TableName(path); name != "" {
		return name
	}
	return "import_" + uuid.NewString()[:8]
}

func resolveFormat(format protocol.Format, path string) (protocol.Format, error) {
	if format == "" {
		return protocol.FormatFromPath(path)
	}
	if !format.Valid() {
		return "", fmt.Errorf("%w: %q", protocol.ErrUnknownFormat, format)
	}
	return format, nil
}

// IsCancelled reports whether err stems from an observed abort.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

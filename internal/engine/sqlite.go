package engine

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/datawise/datawise/internal/columnar"
	"github.com/datawise/datawise/internal/infrastructure/database/dblogged"
	"github.com/datawise/datawise/internal/pkg/stringutil"
	"github.com/datawise/datawise/internal/protocol"
	"github.com/datawise/datawise/internal/taskerr"
)

// insertBatchSize is the number of rows inserted between cancel checks.
const insertBatchSize = 256

// sqliteDialect parses and writes files in Go; SQLite has no file readers.
type sqliteDialect struct{}

func (sqliteDialect) memoryDSN() string { return ":memory:" }

// value restores booleans, which SQLite stores as 0 and 1 in BOOLEAN
// columns.
func (sqliteDialect) value(col columnar.Column, v any) any {
	if n, ok := v.(int64); ok && strings.EqualFold(col.DatabaseType, typeBoolean) {
		return n != 0
	}
	return v
}

func (sqliteDialect) load(ctx context.Context, tx *dblogged.Tx, job loadJob) error {
	const op = "import file"

	f, err := os.Open(job.path)
	if err != nil {
		return taskerr.New(taskerr.KindIO, op, err)
	}
	defer f.Close()

	var tbl *fileTable
	switch job.format {
	case protocol.FormatCSV:
		tbl, err = readCSV(bufio.NewReader(f))
	case protocol.FormatJSON:
		tbl, err = readJSON(bufio.NewReader(f))
	default:
		return taskerr.Errorf(taskerr.KindInvalid, op, "sqlite engine cannot import %s files", job.format)
	}
	if err != nil {
		return taskerr.New(taskerr.KindIO, op, fmt.Errorf("parse %s: %w", job.path, err))
	}
	if len(tbl.columns) == 0 {
		return taskerr.Errorf(taskerr.KindIO, op, "%s has no columns", job.path)
	}
	return insertTable(ctx, tx, job, tbl)
}

func insertTable(ctx context.Context, tx *dblogged.Tx, job loadJob, tbl *fileTable) error {
	const op = "import file"

	defs := make([]string, len(tbl.columns))
	marks := make([]string, len(tbl.columns))
	for i, name := range tbl.columns {
		defs[i] = stringutil.QuoteIdentifier(name) + " " + tbl.types[i]
		marks[i] = "?"
	}
	table := stringutil.QuoteIdentifier(job.table)
	create := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return taskerr.New(taskerr.KindExecution, "create table", err)
	}

	stmt, err := tx.PreparexContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, strings.Join(marks, ", ")))
	if err != nil {
		return taskerr.New(taskerr.KindPrepare, "prepare insert", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	total := len(tbl.rows)
	for i, row := range tbl.rows {
		if i > 0 && i%insertBatchSize == 0 {
			if job.aborted() {
				return taskerr.New(taskerr.KindCancelled, op, ErrCancelled)
			}
			job.report(job.total * uint64(i) / uint64(total))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return taskerr.New(taskerr.KindExecution, "insert row", fmt.Errorf("row %d: %w", i+1, err))
		}
	}
	return nil
}

func (sqliteDialect) unload(ctx context.Context, conn *dblogged.Conn, job unloadJob) (err error) {
	const op = "export file"

	var write func(w *bufio.Writer, rs *columnar.RowSet) error
	switch job.format {
	case protocol.FormatCSV:
		write = writeCSV
	case protocol.FormatJSON:
		write = writeJSONLines
	default:
		return taskerr.Errorf(taskerr.KindInvalid, op, "sqlite engine cannot export %s files", job.format)
	}

	query := "SELECT * FROM " + job.source
	if job.isQuery {
		query = "SELECT * FROM (" + job.source + ")"
	}
	rows, err := conn.QueryxContext(ctx, query)
	if err != nil {
		return taskerr.New(taskerr.KindExecution, op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	rs, err := scanRows(rows, sqliteDialect{})
	if err != nil {
		return err
	}

	f, err := os.Create(job.path)
	if err != nil {
		return taskerr.New(taskerr.KindIO, op, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = taskerr.New(taskerr.KindIO, op, cerr)
		}
	}()
	w := bufio.NewWriter(f)
	if err := write(w, rs); err != nil {
		return taskerr.New(taskerr.KindIO, op, err)
	}
	if err := w.Flush(); err != nil {
		return taskerr.New(taskerr.KindIO, op, err)
	}
	return nil
}

func writeCSV(w *bufio.Writer, rs *columnar.RowSet) error {
	cw := csv.NewWriter(w)
	header := make([]string, rs.Width())
	for i, col := range rs.Columns {
		header[i] = col.Name
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, rs.Width())
	for _, row := range rs.Rows {
		for i, v := range row {
			record[i] = columnar.FormatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

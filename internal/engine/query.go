package engine

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/datawise/datawise/internal/columnar"
	"github.com/datawise/datawise/internal/infrastructure/database/dblogged"
	"github.com/datawise/datawise/internal/taskerr"
)

// Execute prepares and runs query, returning every row it produced.
// Statements without a result set yield an empty RowSet.
func (m *Manager) Execute(ctx context.Context, query string) (*columnar.RowSet, error) {
	var rs *columnar.RowSet
	err := m.withConn(ctx, "execute sql", func(conn *dblogged.Conn) error {
		var err error
		rs, err = m.query(ctx, conn, query)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func (m *Manager) query(ctx context.Context, conn *dblogged.Conn, query string) (*columnar.RowSet, error) {
	stmt, err := conn.PreparexContext(ctx, query)
	if err != nil {
		return nil, taskerr.New(taskerr.KindPrepare, "prepare", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	rows, err := stmt.QueryxContext(ctx)
	if err != nil {
		return nil, taskerr.New(taskerr.KindExecution, "query", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	return scanRows(rows, m.dialect)
}

func scanRows(rows *sqlx.Rows, d dialect) (*columnar.RowSet, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, taskerr.New(taskerr.KindExecution, "read columns", err)
	}
	columns := make([]columnar.Column, len(columnTypes))
	for i, ct := range columnTypes {
		columns[i] = columnar.Column{
			Name:         ct.Name(),
			DatabaseType: ct.DatabaseTypeName(),
			ScanType:     ct.ScanType(),
		}
	}
	rs := columnar.NewRowSet(columns)

	rowData := make([]any, len(columns))
	rowPtrs := make([]any, len(columns))
	for i := range rowData {
		rowPtrs[i] = &rowData[i]
	}
	for rows.Next() {
		if err := rows.Scan(rowPtrs...); err != nil {
			return nil, taskerr.New(taskerr.KindExecution, "scan row", err)
		}
		row := make([]any, len(rowData))
		for i, v := range rowData {
			row[i] = d.value(columns[i], v)
		}
		if err := rs.AppendDriverValues(row); err != nil {
			return nil, taskerr.New(taskerr.KindConversion, "collect rows", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, taskerr.New(taskerr.KindExecution, "row iteration", fmt.Errorf("after %d rows: %w", rs.Len(), err))
	}
	return rs, nil
}

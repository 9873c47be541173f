package columnar

import (
	"fmt"
	"reflect"
)

// Row is one result row, one Value per column.
type Row []Value

// Column is engine metadata for one result column.
type Column struct {
	Name         string
	DatabaseType string
	// ScanType is the Go type the driver scans into; nil when unreported.
	ScanType reflect.Type
}

// RowSet is a row-major engine result. All rows have len(Columns) cells.
type RowSet struct {
	Columns []Column
	Rows    []Row
}

// NewRowSet creates an empty RowSet for the given columns.
func NewRowSet(columns []Column) *RowSet {
	return &RowSet{Columns: columns}
}

// Append adds a row, rejecting rows whose width differs from the column count.
func (rs *RowSet) Append(row Row) error {
	if len(row) != len(rs.Columns) {
		return fmt.Errorf("row %d has %d values, expected %d", len(rs.Rows), len(row), len(rs.Columns))
	}
	rs.Rows = append(rs.Rows, row)
	return nil
}

// AppendDriverValues tags raw driver values and appends them as a row.
func (rs *RowSet) AppendDriverValues(values []any) error {
	row := make(Row, len(values))
	for i, v := range values {
		row[i] = FromDriver(v)
	}
	return rs.Append(row)
}

// Len returns the number of rows.
func (rs *RowSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Width returns the number of columns.
func (rs *RowSet) Width() int {
	if rs == nil {
		return 0
	}
	return len(rs.Columns)
}

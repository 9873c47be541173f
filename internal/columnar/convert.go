package columnar

import (
	"fmt"

	"github.com/apache/arrow/go/v7/arrow"
	"github.com/apache/arrow/go/v7/arrow/array"
	"github.com/apache/arrow/go/v7/arrow/memory"

	"github.com/datawise/datawise/internal/taskerr"
)

// Options controls schema naming, type inference and allocation.
type Options struct {
	Naming    Naming
	Inference Inference
	Allocator memory.Allocator
}

func (o Options) allocator() memory.Allocator {
	if o.Allocator != nil {
		return o.Allocator
	}
	return memory.NewGoAllocator()
}

// Schema derives the record schema for rs under opts. Sampling a RowSet with
// no rows yields an empty schema; metadata inference keeps the columns.
func Schema(rs *RowSet, opts Options) *arrow.Schema {
	if rs.Width() == 0 {
		return arrow.NewSchema(nil, nil)
	}
	names := FieldNames(rs.Columns, opts.Naming)
	if opts.Inference == InferMetadata {
		return InferSchemaFromMetadata(names, rs.Columns, rs.Rows)
	}
	if rs.Len() == 0 {
		return arrow.NewSchema(nil, nil)
	}
	return InferSchema(names, rs.Rows)
}

// Build converts rs into a single record batch. A cell whose tag does not
// match its column's type becomes null; string columns render any non-null
// cell as text. The caller releases the returned record.
func Build(rs *RowSet, opts Options) (arrow.Record, error) {
	schema := Schema(rs, opts)
	if len(schema.Fields()) == 0 {
		return array.NewRecord(schema, nil, 0), nil
	}

	mem := opts.allocator()
	builders := make([]array.Builder, len(schema.Fields()))
	for i, f := range schema.Fields() {
		builders[i] = array.NewBuilder(mem, f.Type)
	}
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()

	for r, row := range rs.Rows {
		if len(row) != len(builders) {
			return nil, taskerr.Errorf(taskerr.KindConversion, "build record",
				"row %d has %d values, expected %d", r, len(row), len(builders))
		}
		for c, v := range row {
			if err := appendCell(builders[c], v); err != nil {
				return nil, taskerr.New(taskerr.KindConversion, "build record",
					fmt.Errorf("row %d column %q: %w", r, schema.Field(c).Name, err))
			}
		}
	}

	cols := make([]arrow.Array, len(builders))
	for i, b := range builders {
		cols[i] = b.NewArray()
	}
	rec := array.NewRecord(schema, cols, int64(len(rs.Rows)))
	for _, col := range cols {
		col.Release()
	}
	return rec, nil
}

func appendCell(b array.Builder, v Value) error {
	switch b := b.(type) {
	case *array.BooleanBuilder:
		if x, ok := v.Bool(); ok {
			b.Append(x)
			return nil
		}
	case *array.Int32Builder:
		if x, ok := v.Int32(); ok {
			b.Append(x)
			return nil
		}
	case *array.Int64Builder:
		if x, ok := v.Int64(); ok {
			b.Append(x)
			return nil
		}
	case *array.Float64Builder:
		if x, ok := v.Float64(); ok {
			b.Append(x)
			return nil
		}
	case *array.StringBuilder:
		if !v.IsNull() {
			b.Append(FormatCell(v))
			return nil
		}
	default:
		return fmt.Errorf("no builder for %T", b)
	}
	b.AppendNull()
	return nil
}

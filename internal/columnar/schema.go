package columnar

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v7/arrow"
)

// Naming selects how schema field names are produced.
type Naming int

const (
	// NamingPositional names fields col_0, col_1, ...
	NamingPositional Naming = iota
	// NamingEngine uses the column names reported by the engine.
	NamingEngine
)

// Inference selects where column types come from.
type Inference int

const (
	// InferFirstRow types each column from the tag of the first row's cell.
	InferFirstRow Inference = iota
	// InferMetadata types columns from the driver scan type, falling back to
	// the first row when the driver reports nothing usable.
	InferMetadata
)

// ParseNaming accepts "positional" or "engine".
func ParseNaming(s string) (Naming, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "positional":
		return NamingPositional, nil
	case "engine":
		return NamingEngine, nil
	default:
		return 0, fmt.Errorf("unknown column naming %q (want positional|engine)", s)
	}
}

// ParseInference accepts "sample" or "metadata".
func ParseInference(s string) (Inference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sample":
		return InferFirstRow, nil
	case "metadata":
		return InferMetadata, nil
	default:
		return 0, fmt.Errorf("unknown schema source %q (want sample|metadata)", s)
	}
}

// FieldNames returns the schema field names for columns.
func FieldNames(columns []Column, naming Naming) []string {
	names := make([]string, len(columns))
	if naming == NamingPositional {
		for i := range columns {
			names[i] = positionalName(i)
		}
		return names
	}

	used := make(map[string]bool, len(columns))
	for i, col := range columns {
		base := strings.TrimSpace(col.Name)
		if base == "" {
			base = positionalName(i)
		}
		name := base
		for n := 1; used[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func positionalName(i int) string {
	return "col_" + strconv.Itoa(i)
}

// InferSchema derives one nullable field per name from the first sampled row.
// Columns without a sampled cell, null cells and unsupported cells become
// string fields.
func InferSchema(names []string, sample []Row) *arrow.Schema {
	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		kind := KindNull
		if len(sample) > 0 && i < len(sample[0]) {
			kind = sample[0][i].Kind()
		}
		fields[i] = arrow.Field{Name: name, Type: kind.DataType(), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// InferSchemaFromMetadata types fields from the driver scan types. Columns
// whose scan type does not map to a semantic type use the first-row rule.
func InferSchemaFromMetadata(names []string, columns []Column, sample []Row) *arrow.Schema {
	sampled := InferSchema(names, sample)
	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		fields[i] = sampled.Field(i)
		if i >= len(columns) {
			continue
		}
		if dt, ok := scanTypeDataType(columns[i].ScanType); ok {
			fields[i] = arrow.Field{Name: name, Type: dt, Nullable: true}
		}
	}
	return arrow.NewSchema(fields, nil)
}

func scanTypeDataType(t reflect.Type) (arrow.DataType, bool) {
	if t == nil {
		return nil, false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return arrow.FixedWidthTypes.Boolean, true
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return arrow.PrimitiveTypes.Int32, true
	case reflect.Int64, reflect.Int:
		return arrow.PrimitiveTypes.Int64, true
	case reflect.Float32, reflect.Float64:
		return arrow.PrimitiveTypes.Float64, true
	case reflect.String:
		return arrow.BinaryTypes.String, true
	default:
		return nil, false
	}
}

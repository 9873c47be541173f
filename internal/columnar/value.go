// Package columnar turns row-major engine results into typed Arrow record
// batches. Engine cells enter as Value, a closed tagged union; every mapping
// out of Value (to a semantic type, to a typed cell, to text) is total.
package columnar

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/apache/arrow/go/v7/arrow"
)

// Kind is the runtime tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt32 // 8, 16 and 32-bit signed integers
	KindInt64
	KindFloat64 // 32 and 64-bit floats
	KindText
	KindUnsupported
)

var kindNames = [...]string{
	KindNull:        "null",
	KindBool:        "bool",
	KindInt32:       "int32",
	KindInt64:       "int64",
	KindFloat64:     "float64",
	KindText:        "text",
	KindUnsupported: "unsupported",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// DataType maps a tag to the semantic column type it implies. Null and
// Unsupported fall back to string.
func (k Kind) DataType() arrow.DataType {
	switch k {
	case KindBool:
		return arrow.FixedWidthTypes.Boolean
	case KindInt32:
		return arrow.PrimitiveTypes.Int32
	case KindInt64:
		return arrow.PrimitiveTypes.Int64
	case KindFloat64:
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}

// Value is one engine cell. Only the field matching kind is meaningful; raw
// keeps the original driver value for formatting.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	raw  any
}

// Null is the null cell.
var Null = Value{kind: KindNull}

// FromDriver tags a value produced by a database/sql driver scan.
func FromDriver(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case bool:
		return Value{kind: KindBool, b: x, raw: v}
	case int8:
		return Value{kind: KindInt32, i: int64(x), raw: v}
	case int16:
		return Value{kind: KindInt32, i: int64(x), raw: v}
	case int32:
		return Value{kind: KindInt32, i: int64(x), raw: v}
	case int64:
		return Value{kind: KindInt64, i: x, raw: v}
	case int:
		return Value{kind: KindInt64, i: int64(x), raw: v}
	case float32:
		return Value{kind: KindFloat64, f: float64(x), raw: v}
	case float64:
		return Value{kind: KindFloat64, f: x, raw: v}
	case string:
		return Value{kind: KindText, s: x, raw: v}
	default:
		return Value{kind: KindUnsupported, raw: v}
	}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) Raw() any       { return v.raw }
func (v Value) String() string { return FormatCell(v) }

// Bool returns the boolean payload; ok is false for any other tag.
func (v Value) Bool() (b, ok bool) {
	return v.b, v.kind == KindBool
}

// Int32 returns the payload of an Int32-class cell.
func (v Value) Int32() (int32, bool) {
	return int32(v.i), v.kind == KindInt32
}

// Int64 returns the payload of an Int64 cell. Narrow integers do not match.
func (v Value) Int64() (int64, bool) {
	return v.i, v.kind == KindInt64
}

// Float64 returns the payload of a Float64-class cell, widened to 64 bits.
func (v Value) Float64() (float64, bool) {
	return v.f, v.kind == KindFloat64
}

// Text returns the payload of a Text cell.
func (v Value) Text() (string, bool) {
	return v.s, v.kind == KindText
}

// FormatCell renders any non-null cell as text. It is the catch-all used by
// string columns.
func FormatCell(v Value) string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt32, KindInt64:
		return strconv.FormatInt(v.i, 10)
	case KindFloat64:
		if f32, ok := v.raw.(float32); ok {
			return strconv.FormatFloat(float64(f32), 'g', -1, 32)
		}
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return v.s
	}
	return formatRaw(v.raw)
}

func formatRaw(raw any) string {
	switch x := raw.(type) {
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return base64.StdEncoding.EncodeToString(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case *big.Int:
		if x == nil {
			return ""
		}
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

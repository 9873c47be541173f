// Package preview renders the head of a result as a JSON array of row objects.
package preview

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/apache/arrow/go/v7/arrow"
	"github.com/apache/arrow/go/v7/arrow/array"

	"github.com/datawise/datawise/internal/taskerr"
)

// MaxRows is the number of rows a preview holds at most.
const MaxRows = 10

// Unsupported is written for cells of a column type the preview cannot render.
const Unsupported = "<unsupported>"

// Build renders up to MaxRows rows across records, in order, as a JSON array.
// Object keys follow schema field order.
func Build(records ...arrow.Record) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	written := 0
	for _, rec := range records {
		if written >= MaxRows {
			break
		}
		if rec == nil {
			continue
		}
		keys, err := fieldKeys(rec.Schema())
		if err != nil {
			return "", err
		}
		n := int(rec.NumRows())
		if n > MaxRows-written {
			n = MaxRows - written
		}
		for row := 0; row < n; row++ {
			if written > 0 {
				buf.WriteByte(',')
			}
			buf.WriteByte('{')
			for col := range keys {
				if col > 0 {
					buf.WriteByte(',')
				}
				buf.Write(keys[col])
				buf.WriteByte(':')
				if err := writeCell(&buf, rec.Column(col), row); err != nil {
					return "", err
				}
			}
			buf.WriteByte('}')
			written++
		}
	}

	buf.WriteByte(']')
	return buf.String(), nil
}

func fieldKeys(schema *arrow.Schema) ([][]byte, error) {
	keys := make([][]byte, len(schema.Fields()))
	for i, f := range schema.Fields() {
		b, err := marshal(f.Name)
		if err != nil {
			return nil, taskerr.New(taskerr.KindSerialization, "encode preview key", err)
		}
		keys[i] = b
	}
	return keys, nil
}

func writeCell(buf *bytes.Buffer, col arrow.Array, row int) error {
	if col.IsNull(row) {
		buf.WriteString("null")
		return nil
	}

	var v any
	switch arr := col.(type) {
	case *array.Boolean:
		v = arr.Value(row)
	case *array.Int32:
		v = arr.Value(row)
	case *array.Int64:
		v = arr.Value(row)
	case *array.Float64:
		f := arr.Value(row)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			buf.WriteString("null")
			return nil
		}
		v = f
	case *array.String:
		v = arr.Value(row)
	default:
		v = Unsupported
	}

	b, err := marshal(v)
	if err != nil {
		return taskerr.New(taskerr.KindSerialization, "encode preview cell", err)
	}
	buf.Write(b)
	return nil
}

// marshal encodes v without HTML escaping and without the trailing newline.
func marshal(v any) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(b.Bytes(), []byte{'\n'}), nil
}

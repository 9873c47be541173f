package engine

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/datawise/datawise/internal/columnar"
)

const (
	typeInteger = "INTEGER"
	typeReal    = "REAL"
	typeText    = "TEXT"
	typeBoolean = "BOOLEAN"
)

// fileTable is a parsed input file: column names, SQL column types and rows
// of values ready to bind.
type fileTable struct {
	columns []string
	types   []string
	rows    [][]any
}

// readCSV parses a headered CSV file. Empty cells are NULL; a column is
// INTEGER or REAL when every non-empty cell parses as one, TEXT otherwise.
func readCSV(r io.Reader) (*fileTable, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &fileTable{}, nil
	}
	if err != nil {
		return nil, err
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	columns := uniqueColumns(header)

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	types := make([]string, len(columns))
	for c := range columns {
		types[c] = csvColumnType(records, c)
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(columns))
		for c, cell := range rec {
			row[c] = csvValue(cell, types[c])
		}
		rows[i] = row
	}
	return &fileTable{columns: columns, types: types, rows: rows}, nil
}

func csvColumnType(records [][]string, c int) string {
	isInt, isReal, seen := true, true, false
	for _, rec := range records {
		cell := rec[c]
		if cell == "" {
			continue
		}
		seen = true
		if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			isReal = false
		}
		if !isInt && !isReal {
			return typeText
		}
	}
	switch {
	case !seen:
		return typeText
	case isInt:
		return typeInteger
	case isReal:
		return typeReal
	default:
		return typeText
	}
}

func csvValue(cell, typ string) any {
	if cell == "" {
		return nil
	}
	switch typ {
	case typeInteger:
		n, _ := strconv.ParseInt(cell, 10, 64)
		return n
	case typeReal:
		f, _ := strconv.ParseFloat(cell, 64)
		return f
	default:
		return cell
	}
}

// readJSON parses either a JSON array of objects or newline-delimited
// objects. Columns appear in first-seen key order.
func readJSON(r io.Reader) (*fileTable, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var objects []jsonObject
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return &fileTable{}, nil
	}
	if err != nil {
		return nil, err
	}
	switch tok {
	case json.Delim('['):
		for dec.More() {
			if err := expectDelim(dec, '{'); err != nil {
				return nil, err
			}
			obj, err := readObject(dec)
			if err != nil {
				return nil, err
			}
			objects = append(objects, obj)
		}
		if err := expectDelim(dec, ']'); err != nil {
			return nil, err
		}
	case json.Delim('{'):
		for {
			obj, err := readObject(dec)
			if err != nil {
				return nil, err
			}
			objects = append(objects, obj)
			if err := expectDelim(dec, '{'); errors.Is(err, io.EOF) {
				break
			} else if err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("expected an array or object, got %v", tok)
	}
	return jsonTable(objects), nil
}

type jsonObject struct {
	keys   []string
	values map[string]any
}

// readObject reads key/value pairs after the opening brace through the
// closing brace.
func readObject(dec *json.Decoder) (jsonObject, error) {
	obj := jsonObject{values: make(map[string]any)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return obj, err
		}
		key, ok := tok.(string)
		if !ok {
			return obj, fmt.Errorf("expected object key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return obj, fmt.Errorf("value of %q: %w", key, err)
		}
		if _, dup := obj.values[key]; !dup {
			obj.keys = append(obj.keys, key)
		}
		obj.values[key] = v
	}
	return obj, expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func jsonTable(objects []jsonObject) *fileTable {
	var columns []string
	index := make(map[string]int)
	for _, obj := range objects {
		for _, key := range obj.keys {
			if _, ok := index[key]; !ok {
				index[key] = len(columns)
				columns = append(columns, key)
			}
		}
	}

	types := make([]string, len(columns))
	for c, name := range columns {
		types[c] = jsonColumnType(objects, name)
	}

	rows := make([][]any, len(objects))
	for i, obj := range objects {
		row := make([]any, len(columns))
		for c, name := range columns {
			row[c] = jsonValue(obj.values[name], types[c])
		}
		rows[i] = row
	}
	return &fileTable{columns: columns, types: types, rows: rows}
}

func jsonColumnType(objects []jsonObject, name string) string {
	isInt, isReal, isBool, seen := true, true, true, false
	for _, obj := range objects {
		v := obj.values[name]
		if v == nil {
			continue
		}
		seen = true
		switch x := v.(type) {
		case json.Number:
			isBool = false
			if _, err := x.Int64(); err != nil {
				isInt = false
			}
		case bool:
			isInt, isReal = false, false
		default:
			return typeText
		}
	}
	switch {
	case !seen:
		return typeText
	case isBool:
		return typeBoolean
	case isInt:
		return typeInteger
	case isReal:
		return typeReal
	default:
		return typeText
	}
}

func jsonValue(v any, typ string) any {
	switch x := v.(type) {
	case nil:
		return nil
	case json.Number:
		switch typ {
		case typeInteger:
			n, _ := x.Int64()
			return n
		case typeReal:
			f, _ := x.Float64()
			return f
		}
		return x.String()
	case bool:
		if typ == typeBoolean {
			return x
		}
		return strconv.FormatBool(x)
	case string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func uniqueColumns(header []string) []string {
	cols := make([]columnar.Column, len(header))
	for i, name := range header {
		cols[i] = columnar.Column{Name: name}
	}
	return columnar.FieldNames(cols, columnar.NamingEngine)
}

// writeJSONLines writes one object per row, keys in column order.
func writeJSONLines(w *bufio.Writer, rs *columnar.RowSet) error {
	keys := make([][]byte, rs.Width())
	for i, col := range rs.Columns {
		b, err := json.Marshal(col.Name)
		if err != nil {
			return err
		}
		keys[i] = b
	}
	var line bytes.Buffer
	for _, row := range rs.Rows {
		line.Reset()
		line.WriteByte('{')
		for i, v := range row {
			if i > 0 {
				line.WriteByte(',')
			}
			line.Write(keys[i])
			line.WriteByte(':')
			b, err := json.Marshal(jsonCell(v))
			if err != nil {
				return err
			}
			line.Write(b)
		}
		line.WriteString("}\n")
		if _, err := w.Write(line.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func jsonCell(v columnar.Value) any {
	if b, ok := v.Bool(); ok {
		return b
	}
	if n, ok := v.Int32(); ok {
		return n
	}
	if n, ok := v.Int64(); ok {
		return n
	}
	if f, ok := v.Float64(); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	}
	if v.IsNull() {
		return nil
	}
	return columnar.FormatCell(v)
}

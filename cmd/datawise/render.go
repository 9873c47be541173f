package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/datawise/datawise/internal/protocol"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	nullStyle   = cellStyle.Foreground(lipgloss.Color("240"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// render prints fin as a table on a terminal and as one JSON object otherwise.
func render(w io.Writer, fin protocol.Finished) error {
	if !isTerminal(w) {
		return renderJSON(w, fin)
	}
	return renderTable(w, fin)
}

type jsonResult struct {
	RowCount    int             `json:"row_count"`
	ColumnCount int             `json:"column_count"`
	Preview     json.RawMessage `json:"preview"`
}

func renderJSON(w io.Writer, fin protocol.Finished) error {
	preview := fin.Preview
	if preview == "" {
		preview = "[]"
	}
	return json.NewEncoder(w).Encode(jsonResult{
		RowCount:    fin.RowCount,
		ColumnCount: fin.ColumnCount,
		Preview:     json.RawMessage(preview),
	})
}

func renderTable(w io.Writer, fin protocol.Finished) error {
	headers, rows, err := parsePreview(fin.Preview)
	if err != nil {
		return fmt.Errorf("render preview: %w", err)
	}
	if len(headers) > 0 {
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			Headers(headers...).
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				if row >= 0 && row < len(rows) && col < len(rows[row]) && rows[row][col] == "null" {
					return nullStyle
				}
				return cellStyle
			})
		fmt.Fprintln(w, t.Render())
	}

	footer := fmt.Sprintf("%s rows, %s columns", humanize.Comma(int64(fin.RowCount)), humanize.Comma(int64(fin.ColumnCount)))
	if fin.RowCount > len(rows) && len(rows) > 0 {
		footer += fmt.Sprintf(" (showing first %d)", len(rows))
	}
	fmt.Fprintln(w, footerStyle.Render(footer))
	return nil
}

// parsePreview decodes a preview array of objects keeping the key order of
// the first row. Values are rendered as their JSON text, strings unquoted.
func parsePreview(preview string) (headers []string, rows [][]string, err error) {
	if strings.TrimSpace(preview) == "" {
		return nil, nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(preview))
	dec.UseNumber()
	if err := expectDelim(dec, '['); err != nil {
		return nil, nil, err
	}
	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return nil, nil, err
		}
		var row []string
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, nil, err
			}
			key, ok := tok.(string)
			if !ok {
				return nil, nil, fmt.Errorf("expected object key, got %v", tok)
			}
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, nil, err
			}
			if len(rows) == 0 {
				headers = append(headers, key)
			}
			row = append(row, cellText(raw))
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, nil, err
	}
	return headers, rows, nil
}

func cellText(raw json.RawMessage) string {
	if bytes.Equal(raw, []byte("null")) {
		return "null"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return errors.New("malformed preview: expected " + want.String())
	}
	return nil
}

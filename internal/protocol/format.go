package protocol

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnknownFormat is returned when a file format cannot be resolved.
var ErrUnknownFormat = errors.New("unrecognized file format")

// Format identifies a bulk load/unload file format.
type Format string

const (
	FormatCSV     Format = "Csv"
	FormatParquet Format = "Parquet"
	FormatJSON    Format = "Json"
)

// FormatFromExtension maps a file extension (with or without the leading dot,
// case-insensitive) to a Format.
func FormatFromExtension(ext string) (Format, bool) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), ".")) {
	case "csv":
		return FormatCSV, true
	case "parquet", "pq":
		return FormatParquet, true
	case "json", "jsonl":
		return FormatJSON, true
	default:
		return "", false
	}
}

// FormatFromPath infers the format from the extension of path.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	f, ok := FormatFromExtension(ext)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, path)
	}
	return f, nil
}

// ParseFormat accepts either a wire name ("Csv") or an extension ("csv", "pq").
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatParquet, FormatJSON:
		return Format(s), nil
	}
	if f, ok := FormatFromExtension(s); ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Extension returns the default file extension, without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatParquet:
		return "parquet"
	case FormatJSON:
		return "json"
	default:
		return ""
	}
}

// Valid reports whether f is one of the known formats.
func (f Format) Valid() bool {
	return f.Extension() != ""
}

package stringutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// EscapeIdentifier escapes a SQL identifier (double-quote escaping).
func EscapeIdentifier(input string) string {
	return strings.ReplaceAll(input, "\"", "\"\"")
}

// QuoteIdentifier wraps an escaped identifier in double quotes.
func QuoteIdentifier(input string) string {
	return `"` + EscapeIdentifier(input) + `"`
}

// QuoteLiteral escapes a string literal for SQL (single-quote escaping).
func QuoteLiteral(input string) string {
	return fmt.Sprintf("'%s'", strings.ReplaceAll(input, "'", "''"))
}

// TableName derives an identifier from a file path stem: lower case letters,
// digits and underscores, never starting with a digit. It returns "" when
// nothing usable remains.
func TableName(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(stem) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return ""
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "t_" + name
	}
	return name
}

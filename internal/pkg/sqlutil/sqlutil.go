package sqlutil

import "strings"

var queryKeywords = []string{"select", "with", "values", "from", "table", "pivot", "unpivot", "describe", "show", "summarize"}

// IsQuery reports whether source reads as a query rather than a bare table
// name. Leading whitespace and SQL comments are skipped.
func IsQuery(source string) bool {
	s := skipLeading(source)
	if s == "" {
		return false
	}
	if s[0] == '(' {
		return true
	}
	word := leadingWord(s)
	if len(word) == len(s) {
		// a single token is a table name even if it spells a keyword
		return false
	}
	for _, kw := range queryKeywords {
		if strings.EqualFold(word, kw) {
			return true
		}
	}
	return false
}

// TrimStatement strips surrounding whitespace and trailing semicolons.
func TrimStatement(query string) string {
	return strings.TrimRight(strings.TrimSpace(query), "; \t\r\n")
}

func leadingWord(s string) string {
	for i := range len(s) {
		ch := s[i]
		if !(ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_') {
			return s[:i]
		}
	}
	return s
}

func skipLeading(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(s, "--"):
			nl := strings.IndexByte(s, '\n')
			if nl < 0 {
				return ""
			}
			s = s[nl+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s, "*/")
			if end < 0 {
				return ""
			}
			s = s[end+2:]
		default:
			return s
		}
	}
}

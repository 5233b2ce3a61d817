package utils

import (
	"strings"
	"unicode"
)

// StringHelper provides string utility functions.
type StringHelper struct{}

// NewStringHelper creates a new string helper.
func NewStringHelper() *StringHelper {
	return &StringHelper{}
}

// NormalizeWhitespace replaces multiple whitespace with single space.
func (s *StringHelper) NormalizeWhitespace(str string) string {
	return strings.Join(strings.Fields(str), " ")
}

// StandardizeColumn lower-cases a column name, trims it and replaces spaces with underscores.
func (s *StringHelper) StandardizeColumn(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// Slug turns a label into a column-name fragment: lower case, runs of
// non-alphanumerics collapsed to a single underscore.
func (s *StringHelper) Slug(label string) string {
	var sb strings.Builder

	pending := false

	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && sb.Len() > 0 {
				sb.WriteByte('_')
			}

			pending = false

			sb.WriteRune(r)

			continue
		}

		pending = true
	}

	if sb.Len() == 0 {
		return "unknown"
	}

	return sb.String()
}

// Truncate returns at most maxRunes runes of str.
func (s *StringHelper) Truncate(str string, maxRunes int) string {
	runes := []rune(str)
	if len(runes) <= maxRunes {
		return str
	}

	return string(runes[:maxRunes])
}

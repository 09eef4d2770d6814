package util

import (
	"strings"
	"unicode/utf8"
)

// SanitizePostgresText drops NUL bytes and invalid UTF-8 sequences, neither of
// which a Postgres text column accepts.
func SanitizePostgresText(value string) string {
	if utf8.ValidString(value) && !strings.ContainsRune(value, 0) {
		return value
	}
	return strings.Map(func(r rune) rune {
		if r == 0 || r == utf8.RuneError {
			return -1
		}
		return r
	}, strings.ToValidUTF8(value, ""))
}

package stringutils

import (
	"strings"
	"unicode/utf8"
)

// Truncate cuts s to at most max runes and appends marker when something was cut.
func Truncate(s string, max int, marker string) string {
	if max < 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + marker
}

// IsBlank reports whether s contains only whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

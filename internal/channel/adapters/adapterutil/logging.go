// Package adapterutil provides shared utilities for channel adapters.
package adapterutil

import (
	"strings"
	"unicode/utf8"
)

// SummarizeText returns a preview of text for logs, at most 120 runes.
func SummarizeText(text string) string {
	value := strings.TrimSpace(text)
	const limit = 120
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit]) + "..."
}

package engine

import (
	"strings"
	"unicode"
)

// Content size limits.
const (
	maxBodyChars    = 10000
	maxCommentChars = 2000
	maxMediaRef     = 2048
)

// cleanText trims s and cuts it to maxLen, backing up to a word boundary.
func cleanText(s string, maxLen int) string {
	return truncateClean(strings.TrimSpace(s), maxLen)
}

// truncateClean truncates a string to maxLen, cutting at the last word boundary
// to avoid mid-word breaks. Multi-byte runes are never split.
func truncateClean(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	cut := maxLen
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	truncated := s[:cut]

	// Back up to last space
	if idx := strings.LastIndexFunc(truncated, unicode.IsSpace); idx > 0 && idx > cut-200 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated)
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

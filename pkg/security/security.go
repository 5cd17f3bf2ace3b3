// Package security provides sanitization and limits for stored text and
// scheduler configuration.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/finflow/recurring/pkg/core"
)

// Limits on stored text and per-tick work.
const (
	// MaxRunLogMessageLength is the maximum length for stored run-log
	// error messages.
	MaxRunLogMessageLength = 4096

	// MaxNoteLength is the maximum length for a free-text note.
	MaxNoteLength = 1024

	// MaxBatchLimit is the hard limit on rules processed per tick.
	MaxBatchLimit = 500

	// MaxCatchUpLimit is the hard limit on interval occurrences
	// replayed per tick.
	MaxCatchUpLimit = 100
)

// validCurrency matches ISO-4217-style uppercase currency codes.
var validCurrency = regexp.MustCompile(`^[A-Z]{3,8}$`)

// ValidateCurrency validates a currency code after uppercasing.
func ValidateCurrency(code string) error {
	if !validCurrency.MatchString(strings.ToUpper(code)) {
		return core.ErrInvalidCurrency
	}
	return nil
}

// SanitizeMessage truncates and sanitizes failure messages before they
// are written to a run log.
func SanitizeMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxRunLogMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxRunLogMessageLength-3]) + "..."
	}

	return result
}

// TruncateNote caps a free-text note at MaxNoteLength runes.
func TruncateNote(note string) string {
	if utf8.RuneCountInString(note) <= MaxNoteLength {
		return note
	}
	runes := []rune(note)
	return string(runes[:MaxNoteLength])
}

// ClampBatchLimit ensures a per-tick batch limit is within bounds.
func ClampBatchLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxBatchLimit {
		return MaxBatchLimit
	}
	return n
}

// ClampCatchUpLimit ensures the catch-up backlog cap is within bounds.
func ClampCatchUpLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxCatchUpLimit {
		return MaxCatchUpLimit
	}
	return n
}

// Package schedule contains the pure meeting-state logic: the normalized
// event cache and the debounced relay state machine. It has no hardware,
// network, or clock dependencies; time is always injected.
package schedule

import (
	"time"
	"unicode/utf8"
)

// MaxSummaryLen bounds the stored summary length for memory-constrained operation
const MaxSummaryLen = 50

// Event is a normalized calendar event with UTC epoch-second boundaries.
// Events missing either timestamp are dropped before they reach this package.
type Event struct {
	Summary string `json:"summary"`
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
}

// ActiveAt reports whether now falls within [Start-buffer, End+buffer]
func (e Event) ActiveAt(now time.Time, buffer time.Duration) bool {
	ts := now.Unix()
	return ts >= e.Start-int64(buffer.Seconds()) && ts <= e.End+int64(buffer.Seconds())
}

// TruncateSummary bounds a summary string to MaxSummaryLen bytes,
// substituting a placeholder for untitled events. The cut backs up to a
// rune boundary so a truncated summary is always valid UTF-8 for the JSON
// health and telemetry payloads.
func TruncateSummary(s string) string {
	if s == "" {
		return "No title"
	}
	if len(s) <= MaxSummaryLen {
		return s
	}
	cut := MaxSummaryLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

package calendar

import "testing"

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"UTC zulu", "2026-03-10T14:00:00Z", 1773151200},
		{"positive offset", "2026-03-10T15:00:00+01:00", 1773151200},
		{"negative offset", "2026-03-10T09:00:00-05:00", 1773151200},
		{"half-hour offset", "2026-03-10T19:30:00+05:30", 1773151200},
		{"epoch", "1970-01-01T00:00:00Z", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimestamp(tt.input)
			if err != nil {
				t.Fatalf("parseTimestamp(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseTimestamp(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTimestampRejectsMalformed(t *testing.T) {
	inputs := []string{
		"",
		"2026-03-10",                     // date only, as in all-day events
		"2026-03-10T14:00:00",            // missing zone
		"2026-03-10 14:00:00Z",           // wrong separator
		"2026-13-10T14:00:00Z",           // month out of range
		"2026-03-10T25:00:00Z",           // hour out of range
		"2026-03-10T14:00:00+0100",       // offset without colon
		"2026-03-10T14:00:00+15:00",      // offset hours out of range
		"2026-03-10T14:00:00Q",           // bad zone designator
		"20x6-03-10T14:00:00Z",           // non-numeric field
		"2026-03-10T14:00:00.000Z",       // fractional seconds not in subset
	}

	for _, input := range inputs {
		if _, err := parseTimestamp(input); err == nil {
			t.Errorf("parseTimestamp(%q) succeeded, want error", input)
		}
	}
}

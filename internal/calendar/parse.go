package calendar

import (
	"fmt"
	"strconv"
	"time"
)

// parseTimestamp converts a timestamp from the fixed ISO-8601 subset
// YYYY-MM-DDTHH:MM:SS[Z|±HH:MM] to UTC epoch seconds. Anything outside the
// subset is an error; the caller drops the single offending event rather
// than aborting the fetch.
func parseTimestamp(s string) (int64, error) {
	if len(s) < 20 {
		return 0, fmt.Errorf("timestamp too short: %q", s)
	}
	if s[4] != '-' || s[7] != '-' || s[10] != 'T' || s[13] != ':' || s[16] != ':' {
		return 0, fmt.Errorf("malformed timestamp: %q", s)
	}

	year, err := atoiField(s[0:4], "year")
	if err != nil {
		return 0, err
	}
	month, err := atoiField(s[5:7], "month")
	if err != nil {
		return 0, err
	}
	day, err := atoiField(s[8:10], "day")
	if err != nil {
		return 0, err
	}
	hour, err := atoiField(s[11:13], "hour")
	if err != nil {
		return 0, err
	}
	minute, err := atoiField(s[14:16], "minute")
	if err != nil {
		return 0, err
	}
	second, err := atoiField(s[17:19], "second")
	if err != nil {
		return 0, err
	}

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 60 {
		return 0, fmt.Errorf("timestamp field out of range: %q", s)
	}

	offset, err := parseOffset(s[19:])
	if err != nil {
		return 0, err
	}

	utc := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	return utc.Unix() - int64(offset), nil
}

// parseOffset returns the zone offset in seconds for "Z" or "±HH:MM"
func parseOffset(s string) (int, error) {
	if s == "Z" {
		return 0, nil
	}
	if len(s) != 6 || (s[0] != '+' && s[0] != '-') || s[3] != ':' {
		return 0, fmt.Errorf("malformed zone offset: %q", s)
	}

	hours, err := atoiField(s[1:3], "offset hours")
	if err != nil {
		return 0, err
	}
	minutes, err := atoiField(s[4:6], "offset minutes")
	if err != nil {
		return 0, err
	}
	if hours > 14 || minutes > 59 {
		return 0, fmt.Errorf("zone offset out of range: %q", s)
	}

	offset := hours*3600 + minutes*60
	if s[0] == '-' {
		offset = -offset
	}
	return offset, nil
}

func atoiField(s, name string) (int, error) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("non-numeric %s: %q", name, s)
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

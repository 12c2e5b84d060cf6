package calendar

import (
	"fmt"
	"time"
)

// windowDays is the size of the fetch window in civil days
const windowDays = 2

// daysPerMonth is the fixed table used for month rollover. February is
// always 28: the window arithmetic is deliberately approximate (a leap-day
// boundary shifts the window end by at most a day, which the refresh
// cadence absorbs).
var daysPerMonth = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// requestWindow returns the [timeMin, timeMax] request bounds for ref as
// RFC3339-style UTC strings. The end is computed by incrementing the
// day-of-month field and handling month/year rollover with the fixed table,
// not by duration arithmetic.
func requestWindow(ref time.Time) (timeMin, timeMax string) {
	ref = ref.UTC()
	year, month, day := ref.Date()
	hour, minute := ref.Hour(), ref.Minute()

	timeMin = fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:00Z", year, int(month), day, hour, minute)

	endYear, endMonth, endDay := year, int(month), day+windowDays
	if max := daysPerMonth[endMonth-1]; endDay > max {
		endDay -= max
		endMonth++
	}
	if endMonth > 12 {
		endMonth = 1
		endYear++
	}

	timeMax = fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:00Z", endYear, endMonth, endDay, hour, minute)
	return timeMin, timeMax
}

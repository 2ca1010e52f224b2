package utils

import "time"

const dayLayout = "2006-01-02"

// DayKey formats a timestamp as the calendar-day key used for daily
// aggregates (YYYY-MM-DD, local time of the register).
func DayKey(t time.Time) string {
	return t.Format(dayLayout)
}

// ParseDayKey parses a YYYY-MM-DD day key.
func ParseDayKey(s string) (time.Time, error) {
	return time.Parse(dayLayout, s)
}

package util

import "time"

// NowUTC exposes time.Now for deterministic testing.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// HourFloor truncates t to the start of its UTC hour.
func HourFloor(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

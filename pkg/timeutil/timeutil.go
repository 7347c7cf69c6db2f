// Package timeutil provides UTC calendar-day helpers for streak and
// milestone math. The core runs entirely on UTC day windows; per-user
// timezones are deliberately not part of the streak rule.
// No external dependencies - uses only standard library.
package timeutil

import "time"

// StartOfDay returns 00:00:00 UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayWindow returns the half-open window [start, end) of the UTC day
// containing t.
func DayWindow(t time.Time) (start, end time.Time) {
	start = StartOfDay(t)
	return start, start.AddDate(0, 0, 1)
}

// YesterdayWindow returns the half-open window of the UTC day before the
// one containing t.
func YesterdayWindow(t time.Time) (start, end time.Time) {
	end = StartOfDay(t)
	return end.AddDate(0, 0, -1), end
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return StartOfDay(a).Equal(StartOfDay(b))
}

// DaysBetween returns the number of whole UTC calendar days from a to b.
// Negative when b is before a's day.
func DaysBetween(a, b time.Time) int {
	return int(StartOfDay(b).Sub(StartOfDay(a)) / (24 * time.Hour))
}

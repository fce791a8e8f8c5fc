package utils

import (
	"strings"
	"time"
)

// MonthBounds returns the first and last instants of a calendar month in UTC:
// day 1 00:00:00.000 through the last day 23:59:59.999, both inclusive.
func MonthBounds(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)
	return start, end
}

// PreviousMonth returns the year and month before the month containing t, in t's location.
func PreviousMonth(t time.Time) (int, int) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	prev := first.AddDate(0, -1, 0)
	return prev.Year(), int(prev.Month())
}

// FloorToHour returns the instant at hour:00 on t's calendar day in loc.
// If that instant is after t, the same hour on the previous day is returned.
func FloorToHour(t time.Time, hour int, loc *time.Location) time.Time {
	local := t.In(loc)
	floored := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if floored.After(local) {
		floored = floored.AddDate(0, 0, -1)
	}
	return floored
}

// AbsDuration returns |d|.
func AbsDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// SanitizeString removes dangerous characters from string
func SanitizeString(input string) string {
	// Remove null bytes and control characters
	input = strings.ReplaceAll(input, "\x00", "")

	return strings.TrimSpace(input)
}

// IsValidRole checks if a role may call the admin API
func IsValidRole(role string) bool {
	validRoles := []string{"owner", "admin", "teacher", "student"}
	for _, validRole := range validRoles {
		if role == validRole {
			return true
		}
	}
	return false
}

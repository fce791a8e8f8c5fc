package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonthBounds(t *testing.T) {
	cases := []struct {
		name        string
		year, month int
		start, end  string
	}{
		{"november", 2025, 11, "2025-11-01T00:00:00Z", "2025-11-30T23:59:59.999Z"},
		{"leap february", 2024, 2, "2024-02-01T00:00:00Z", "2024-02-29T23:59:59.999Z"},
		{"december rolls year", 2025, 12, "2025-12-01T00:00:00Z", "2025-12-31T23:59:59.999Z"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end := MonthBounds(tc.year, tc.month)
			assert.Equal(t, tc.start, start.Format(time.RFC3339Nano))
			assert.Equal(t, tc.end, end.Format(time.RFC3339Nano))
		})
	}
}

func TestPreviousMonth(t *testing.T) {
	bkk := time.FixedZone("ICT", 7*3600)

	y, m := PreviousMonth(time.Date(2026, 1, 1, 1, 0, 0, 0, bkk))
	assert.Equal(t, 2025, y)
	assert.Equal(t, 12, m)

	// 2025-11-30T20:00Z is already December 1st in Bangkok.
	y, m = PreviousMonth(time.Date(2025, 11, 30, 20, 0, 0, 0, time.UTC).In(bkk))
	assert.Equal(t, 2025, y)
	assert.Equal(t, 11, m)
}

func TestFloorToHour(t *testing.T) {
	bkk := time.FixedZone("ICT", 7*3600)

	session := time.Date(2025, 3, 10, 9, 30, 0, 0, bkk)
	assert.True(t, FloorToHour(session, 0, bkk).Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, bkk)))

	early := time.Date(2025, 3, 10, 6, 0, 0, 0, bkk)
	assert.True(t, FloorToHour(early, 8, bkk).Equal(time.Date(2025, 3, 9, 8, 0, 0, 0, bkk)))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "note", SanitizeString("  no\x00te \n"))
}

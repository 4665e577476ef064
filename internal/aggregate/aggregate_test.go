package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 14, hour, min, 0, 0, time.UTC)
}

func TestSummarize(t *testing.T) {
	testCases := []struct {
		name         string
		readings     []Reading
		ok           bool
		firstActive  time.Time
		lastActive   time.Time
		uptime       time.Duration
		downtime     time.Duration
		min, max, avg float64
	}{
		{
			name:     "No readings",
			readings: nil,
			ok:       false,
		},
		{
			name: "All idle",
			readings: []Reading{
				{At: at(8, 0), Value: 0},
				{At: at(9, 0), Value: 0},
			},
			ok: false,
		},
		{
			name: "Single positive reading",
			readings: []Reading{
				{At: at(8, 0), Value: 0},
				{At: at(9, 0), Value: 4.0},
				{At: at(10, 0), Value: 0},
			},
			ok:          true,
			firstActive: at(9, 0),
			lastActive:  at(9, 0),
			uptime:      0,
			downtime:    0,
			min:         4.0, max: 4.0, avg: 4.0,
		},
		{
			name: "Continuous run",
			readings: []Reading{
				{At: at(8, 0), Value: 2},
				{At: at(10, 0), Value: 3},
				{At: at(12, 0), Value: 1},
			},
			ok:          true,
			firstActive: at(8, 0),
			lastActive:  at(12, 0),
			uptime:      4 * time.Hour,
			downtime:    0,
			min:         1, max: 3, avg: 2,
		},
		{
			name: "Leading and trailing idle excluded",
			readings: []Reading{
				{At: at(0, 0), Value: 0},
				{At: at(6, 0), Value: 0},
				{At: at(8, 0), Value: 5},
				{At: at(10, 0), Value: 5},
				{At: at(12, 0), Value: 0},
				{At: at(23, 0), Value: 0},
			},
			ok:          true,
			firstActive: at(8, 0),
			lastActive:  at(10, 0),
			uptime:      2 * time.Hour,
			downtime:    0,
			min:         5, max: 5, avg: 5,
		},
		{
			// Readings cross from running to idle and back twice: uptime is
			// the active span minus the internal zero-gaps, not a count of
			// positive samples.
			name: "Two internal idle gaps",
			readings: []Reading{
				{At: at(8, 0), Value: 3},
				{At: at(9, 0), Value: 0},
				{At: at(10, 0), Value: 4},
				{At: at(11, 0), Value: 4},
				{At: at(12, 0), Value: 0},
				{At: at(13, 0), Value: 0},
				{At: at(14, 0), Value: 2},
			},
			ok:          true,
			firstActive: at(8, 0),
			lastActive:  at(14, 0),
			// span 6h, gaps 8-10 and 11-14 bounded by positive samples
			uptime:      1 * time.Hour,
			downtime:    5 * time.Hour,
			min:         2, max: 4, avg: 3.25,
		},
		{
			name: "Unsorted input",
			readings: []Reading{
				{At: at(12, 0), Value: 1},
				{At: at(8, 0), Value: 2},
				{At: at(10, 0), Value: 0},
			},
			ok:          true,
			firstActive: at(8, 0),
			lastActive:  at(12, 0),
			uptime:      0,
			downtime:    4 * time.Hour,
			min:         1, max: 2, avg: 1.5,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			summary, ok := Summarize(tc.readings)
			assert.Equal(t, tc.ok, ok)
			if !tc.ok {
				return
			}
			assert.Equal(t, tc.firstActive, summary.FirstActive, "first active")
			assert.Equal(t, tc.lastActive, summary.LastActive, "last active")
			assert.Equal(t, tc.uptime, summary.Uptime, "uptime")
			assert.Equal(t, tc.downtime, summary.Downtime, "downtime")
			assert.Equal(t, tc.min, summary.MinReading, "min")
			assert.Equal(t, tc.max, summary.MaxReading, "max")
			assert.InDelta(t, tc.avg, summary.AvgReading, 1e-9, "avg")
			assert.Equal(t, len(tc.readings), summary.Samples)
		})
	}
}

func TestSummarizeDoesNotMutateInput(t *testing.T) {
	readings := []Reading{
		{At: at(12, 0), Value: 1},
		{At: at(8, 0), Value: 2},
	}
	_, ok := Summarize(readings)
	assert.True(t, ok)
	assert.Equal(t, at(12, 0), readings[0].At, "input order must be preserved")
}

func TestDayOf(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	assert.NoError(t, err)

	// 23:30 UTC on March 14 is already March 15 in Shanghai.
	ts := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), DayOf(ts, shanghai))
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), DayOf(ts, time.UTC))
}

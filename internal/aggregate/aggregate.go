package aggregate

import (
	"sort"
	"time"
)

// Reading is one raw timestamped sensor sample: zero when the machine is
// idle, positive when it is running.
type Reading struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// Summary is the uptime/downtime/statistics aggregate of one machine-day.
type Summary struct {
	FirstActive time.Time
	LastActive  time.Time
	Uptime      time.Duration
	Downtime    time.Duration
	AvgReading  float64
	MinReading  float64
	MaxReading  float64
	Samples     int
}

// Summarize computes a day's summary from its raw readings. Downtime is
// the sum of gaps covered by zero-valued readings strictly between the
// first and last active sample; time before the machine first reported a
// positive value or after it last did is not counted as down. Uptime is
// the active span minus that downtime. Returns false when no reading is
// positive, in which case no summary row should be produced for the day.
func Summarize(readings []Reading) (Summary, bool) {
	if len(readings) == 0 {
		return Summary{}, false
	}

	sorted := make([]Reading, len(readings))
	copy(sorted, readings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })

	var (
		firstActive, lastActive time.Time
		active                  int
		sum, min, max           float64
	)
	for _, r := range sorted {
		if r.Value <= 0 {
			continue
		}
		if active == 0 {
			firstActive = r.At
			min = r.Value
			max = r.Value
		}
		lastActive = r.At
		sum += r.Value
		if r.Value < min {
			min = r.Value
		}
		if r.Value > max {
			max = r.Value
		}
		active++
	}
	if active == 0 {
		return Summary{}, false
	}

	// Walk consecutive positive samples; the gap between a pair counts as
	// downtime only when at least one zero reading was observed inside it.
	var downtime time.Duration
	var lastPositive time.Time
	zeroSeen := false
	for _, r := range sorted {
		if r.At.Before(firstActive) || r.At.After(lastActive) {
			continue
		}
		if r.Value > 0 {
			if zeroSeen && !lastPositive.IsZero() {
				downtime += r.At.Sub(lastPositive)
			}
			lastPositive = r.At
			zeroSeen = false
		} else {
			zeroSeen = true
		}
	}

	span := lastActive.Sub(firstActive)
	return Summary{
		FirstActive: firstActive,
		LastActive:  lastActive,
		Uptime:      span - downtime,
		Downtime:    downtime,
		AvgReading:  sum / float64(active),
		MinReading:  min,
		MaxReading:  max,
		Samples:     len(sorted),
	}, true
}

// DayOf buckets a timestamp into its calendar day under loc, normalized to
// midnight UTC for storage. Day bucketing happens exactly once, here, so a
// change of day-boundary policy stays a one-line affair.
func DayOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

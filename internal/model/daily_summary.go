package model

import "time"

// DailySummary is the per-machine-day aggregate derived from raw readings.
// One row per (machine, day); re-aggregating a day overwrites the row.
// Derived data: the whole table can be rebuilt from raw readings, and the
// ledger can be rebuilt from this table (see internal/reconcile).
type DailySummary struct {
	MachineID       int64     `gorm:"primaryKey"`
	Day             time.Time `gorm:"primaryKey"` // midnight UTC of the bucketed calendar day
	FirstActive     time.Time `gorm:"not null"`
	LastActive      time.Time `gorm:"not null"`
	UptimeSeconds   int64     `gorm:"not null"`
	DowntimeSeconds int64     `gorm:"not null"`
	AvgReading      float64   `gorm:"not null"`
	MinReading      float64   `gorm:"not null"`
	MaxReading      float64   `gorm:"not null"`
	SampleCount     int       `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UptimeHours returns the day's uptime expressed in usage hours, the unit
// the accumulator counts in on the automatic path.
func (d DailySummary) UptimeHours() float64 {
	return float64(d.UptimeSeconds) / 3600.0
}

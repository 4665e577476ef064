package model

import "time"

// MaintenanceSchedule is a recurring "service every IntervalValue usage
// units" rule for one machine. LastCompletedAtUsage is the counter value at
// which the schedule was last satisfied; it only ever advances.
// CurrentTicketID is non-nil exactly while an unresolved ticket is open for
// this schedule, which is what suppresses duplicate ticket creation.
type MaintenanceSchedule struct {
	ID                   int64   `gorm:"primaryKey"`
	MachineID            int64   `gorm:"not null;index"`
	Description          string  `gorm:"size:256;not null"`
	IntervalValue        float64 `gorm:"not null"`
	LastCompletedAtUsage float64 `gorm:"not null;default:0"`
	CurrentTicketID      *int64  `gorm:"index"`
	LastWarnedAt         *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NextDue is the counter value at which the next service falls due.
func (s MaintenanceSchedule) NextDue() float64 {
	return s.LastCompletedAtUsage + s.IntervalValue
}

// Remaining is the usage still left before the schedule is due. Negative
// means overdue.
func (s MaintenanceSchedule) Remaining(currentUsage float64) float64 {
	return s.NextDue() - currentUsage
}

package model

import "time"

// Machine represents a tracked piece of equipment. The tracker core only
// reads and writes CurrentUsage; the rest belongs to the registry.
type Machine struct {
	ID           int64   `gorm:"primaryKey"`
	Name         string  `gorm:"size:256;not null"`
	Location     string  `gorm:"size:256"`
	IsActive     bool    `gorm:"index;not null;default:true"`
	InitialUsage float64 `gorm:"not null;default:0"` // counter value at registration
	CurrentUsage float64 `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Associations
	Schedules []MaintenanceSchedule `gorm:"foreignKey:MachineID"`
}

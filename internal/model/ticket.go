package model

import "time"

// Ticket statuses.
const (
	TicketPending    = "pending"
	TicketInProgress = "in_progress"
	TicketOnHold     = "on_hold"
	TicketCompleted  = "completed"
	TicketCancelled  = "cancelled"
)

// TicketStatusTerminal reports whether a status resolves the ticket.
func TicketStatusTerminal(status string) bool {
	return status == TicketCompleted || status == TicketCancelled
}

// ValidTicketStatus reports whether status is one of the known states.
func ValidTicketStatus(status string) bool {
	switch status {
	case TicketPending, TicketInProgress, TicketOnHold, TicketCompleted, TicketCancelled:
		return true
	}
	return false
}

// MaintenanceTicket is a work ticket opened when a schedule's threshold is
// crossed (or by a human). Only the fields the tracker core needs live here.
type MaintenanceTicket struct {
	ID              int64  `gorm:"primaryKey"`
	WorkOrder       string `gorm:"uniqueIndex;size:64;not null"`
	MachineID       int64  `gorm:"not null;index"`
	ScheduleID      *int64 `gorm:"index"`
	Status          string `gorm:"size:20;not null;index"`
	Title           string `gorm:"size:256;not null"`
	OpenedAtUsage   float64 `gorm:"not null"`
	ResolvedAtUsage *float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (MaintenanceTicket) TableName() string {
	return "maintenance_tickets"
}

package tracker

import (
	"fmt"

	"maintenance-tracker-backend/internal/model"
)

// EventKind labels the maintenance events the engine hands to the notifier.
type EventKind string

const (
	EventWarning        EventKind = "warning"
	EventOverdue        EventKind = "overdue"
	EventTicketCreated  EventKind = "ticket_created"
	EventTicketResolved EventKind = "ticket_resolved"
)

// Event is a structured maintenance event for the notification sink. The
// engine only decides what and when; delivery belongs to the notifier.
type Event struct {
	Kind       EventKind
	Category   string
	MachineID  int64
	ScheduleID int64
	TicketID   int64
	WorkOrder  string
	Title      string
	Body       string
}

// Notifier receives events decided by the engine, after the transaction
// that decided them has committed.
type Notifier interface {
	Dispatch(evt Event)
}

func warningEvent(m *model.Machine, s *model.MaintenanceSchedule, remaining float64) Event {
	return Event{
		Kind:       EventWarning,
		Category:   "schedule",
		MachineID:  m.ID,
		ScheduleID: s.ID,
		Title:      fmt.Sprintf("Maintenance due soon: %s", s.Description),
		Body: fmt.Sprintf("%s is at %.1f usage, %.1f short of the next service at %.1f.",
			m.Name, m.CurrentUsage, remaining, s.NextDue()),
	}
}

func overdueEvent(m *model.Machine, s *model.MaintenanceSchedule, remaining float64) Event {
	var ticketID int64
	if s.CurrentTicketID != nil {
		ticketID = *s.CurrentTicketID
	}
	return Event{
		Kind:       EventOverdue,
		Category:   "schedule",
		MachineID:  m.ID,
		ScheduleID: s.ID,
		TicketID:   ticketID,
		Title:      fmt.Sprintf("Maintenance overdue: %s", s.Description),
		Body: fmt.Sprintf("%s is at %.1f usage, %.1f past the service due at %.1f.",
			m.Name, m.CurrentUsage, -remaining, s.NextDue()),
	}
}

func ticketCreatedEvent(m *model.Machine, s *model.MaintenanceSchedule, t *model.MaintenanceTicket) Event {
	return Event{
		Kind:       EventTicketCreated,
		Category:   "schedule",
		MachineID:  m.ID,
		ScheduleID: s.ID,
		TicketID:   t.ID,
		WorkOrder:  t.WorkOrder,
		Title:      fmt.Sprintf("Work order %s opened: %s", t.WorkOrder, s.Description),
		Body: fmt.Sprintf("%s crossed the service threshold at %.1f usage (due at %.1f).",
			m.Name, m.CurrentUsage, s.NextDue()),
	}
}

func ticketResolvedEvent(m *model.Machine, t *model.MaintenanceTicket) Event {
	var scheduleID int64
	if t.ScheduleID != nil {
		scheduleID = *t.ScheduleID
	}
	return Event{
		Kind:       EventTicketResolved,
		Category:   "schedule",
		MachineID:  m.ID,
		ScheduleID: scheduleID,
		TicketID:   t.ID,
		WorkOrder:  t.WorkOrder,
		Title:      fmt.Sprintf("Work order %s %s", t.WorkOrder, t.Status),
		Body:       fmt.Sprintf("%s: maintenance interval restarted at %.1f usage.", m.Name, m.CurrentUsage),
	}
}

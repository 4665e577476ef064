package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"maintenance-tracker-backend/internal/model"
	"maintenance-tracker-backend/internal/store"
)

// Engine is the usage accumulation and PM-scheduling core. Every usage
// update for a machine runs under that machine's mutex and inside a single
// transaction that holds a row lock on the machine: the counter bump, the
// ledger entry, the threshold check and any ticket creation commit or roll
// back together, and out-of-process writers (the reconcile CLI) are
// excluded for the transaction's duration. Events are handed to the
// notifier only after the transaction committed.
type Engine struct {
	store         store.Store
	notifier      Notifier
	warnThreshold float64
	warnRepeat    time.Duration

	locks sync.Map // machine ID -> *sync.Mutex
}

// NewEngine creates the tracker engine. notifier may be nil, in which case
// events are decided and persisted but not fanned out.
func NewEngine(s store.Store, notifier Notifier, warnThreshold float64, warnRepeat time.Duration) *Engine {
	if warnRepeat <= 0 {
		warnRepeat = 24 * time.Hour
	}
	return &Engine{
		store:         s,
		notifier:      notifier,
		warnThreshold: warnThreshold,
		warnRepeat:    warnRepeat,
	}
}

func (e *Engine) lockFor(machineID int64) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(machineID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (e *Engine) dispatch(events []Event) {
	if e.notifier == nil {
		return
	}
	for _, evt := range events {
		e.notifier.Dispatch(evt)
	}
}

// ApplyDelta increases (or, for corrections of edited days, decreases) a
// machine's usage counter by delta and logs the new total to the ledger,
// dated to day. The threshold evaluation runs in the same transaction.
func (e *Engine) ApplyDelta(ctx context.Context, machineID int64, day time.Time, delta float64, source, note string) error {
	mu := e.lockFor(machineID)
	mu.Lock()
	defer mu.Unlock()

	var events []Event
	err := e.store.Transaction(ctx, func(tx *gorm.DB) error {
		m, err := e.store.MachineByIDForUpdate(tx, machineID)
		if err != nil {
			return err
		}
		if !m.IsActive {
			return fmt.Errorf("machine %d: %w", machineID, ErrMachineInactive)
		}
		events, err = e.applyDeltaTx(tx, m, day, delta, source, note)
		return err
	})
	if err != nil {
		return err
	}
	e.dispatch(events)
	return nil
}

// ApplyManualReading records an absolute counter reading entered by a
// technician. The delta against the current counter is computed here so
// manual and automatic updates share one code path.
func (e *Engine) ApplyManualReading(ctx context.Context, machineID int64, day time.Time, usageValue float64, note string) error {
	mu := e.lockFor(machineID)
	mu.Lock()
	defer mu.Unlock()

	var events []Event
	err := e.store.Transaction(ctx, func(tx *gorm.DB) error {
		m, err := e.store.MachineByIDForUpdate(tx, machineID)
		if err != nil {
			return err
		}
		if !m.IsActive {
			return fmt.Errorf("machine %d: %w", machineID, ErrMachineInactive)
		}
		delta := usageValue - m.CurrentUsage
		if delta <= 0 {
			return fmt.Errorf("%w: reading %.2f is not above current usage %.2f",
				ErrNonPositiveDelta, usageValue, m.CurrentUsage)
		}
		events, err = e.applyDeltaTx(tx, m, day, delta, model.SourceManual, note)
		return err
	})
	if err != nil {
		return err
	}
	e.dispatch(events)
	return nil
}

// ApplyDailySummary upserts an aggregated machine-day row and propagates
// the uptime delta against the previously stored row through the
// accumulator. Re-applying an unchanged summary is a no-op beyond the
// upsert, which makes the aggregation path idempotent.
func (e *Engine) ApplyDailySummary(ctx context.Context, summary *model.DailySummary) error {
	mu := e.lockFor(summary.MachineID)
	mu.Lock()
	defer mu.Unlock()

	var events []Event
	err := e.store.Transaction(ctx, func(tx *gorm.DB) error {
		m, err := e.store.MachineByIDForUpdate(tx, summary.MachineID)
		if err != nil {
			return err
		}
		if !m.IsActive {
			return fmt.Errorf("machine %d: %w", summary.MachineID, ErrMachineInactive)
		}

		prev, err := e.store.DailySummaryFor(tx, summary.MachineID, summary.Day)
		if err != nil {
			return err
		}
		var prevUptime int64
		if prev != nil {
			prevUptime = prev.UptimeSeconds
		}

		if err := e.store.UpsertDailySummary(tx, summary); err != nil {
			return err
		}

		deltaHours := float64(summary.UptimeSeconds-prevUptime) / 3600.0
		if deltaHours == 0 {
			return nil
		}
		events, err = e.applyDeltaTx(tx, m, summary.Day, deltaHours, model.SourceAuto, "daily aggregation")
		return err
	})
	if err != nil {
		return err
	}
	e.dispatch(events)
	return nil
}

// applyDeltaTx is the single "bump the counter and log it" path shared by
// every origin of usage change.
func (e *Engine) applyDeltaTx(tx *gorm.DB, m *model.Machine, day time.Time, delta float64, source, note string) ([]Event, error) {
	newUsage := m.CurrentUsage + delta
	if newUsage < 0 {
		return nil, fmt.Errorf("%w: %.2f%+.2f", ErrNegativeUsage, m.CurrentUsage, delta)
	}

	if err := e.store.SetCurrentUsage(tx, m.ID, newUsage); err != nil {
		return nil, err
	}
	m.CurrentUsage = newUsage

	entry := &model.UsageLedgerEntry{
		MachineID:  m.ID,
		ObservedOn: day,
		UsageValue: newUsage,
		Source:     source,
		Note:       note,
	}
	if err := e.store.AppendLedgerEntry(tx, entry); err != nil {
		return nil, err
	}

	return e.evaluateTx(tx, m, time.Now().UTC())
}

// evaluateTx checks every schedule of the machine against the updated
// counter. remaining <= 0 with no open ticket opens one; with an open
// ticket it is a no-op, which is what suppresses duplicates under rapid
// repeated updates. Inside the warn margin a warning is emitted at most
// once per warnRepeat per schedule.
func (e *Engine) evaluateTx(tx *gorm.DB, m *model.Machine, now time.Time) ([]Event, error) {
	schedules, err := e.store.SchedulesForMachine(tx, m.ID)
	if err != nil {
		return nil, err
	}

	var events []Event
	for i := range schedules {
		s := &schedules[i]
		remaining := s.Remaining(m.CurrentUsage)
		switch {
		case remaining <= 0 && s.CurrentTicketID == nil:
			ticket := &model.MaintenanceTicket{
				WorkOrder:     uuid.NewString(),
				MachineID:     m.ID,
				ScheduleID:    &s.ID,
				Status:        model.TicketPending,
				Title:         fmt.Sprintf("Preventive maintenance: %s", s.Description),
				OpenedAtUsage: m.CurrentUsage,
			}
			if err := e.store.CreateTicket(tx, ticket); err != nil {
				return nil, err
			}
			s.CurrentTicketID = &ticket.ID
			if err := e.store.SaveSchedule(tx, s); err != nil {
				return nil, err
			}
			events = append(events, ticketCreatedEvent(m, s, ticket))

		case remaining <= 0:
			// Threshold crossed again while a ticket is outstanding.

		case remaining <= e.warnThreshold && s.CurrentTicketID == nil && e.warnDue(s, now):
			stamp := now
			s.LastWarnedAt = &stamp
			if err := e.store.SaveSchedule(tx, s); err != nil {
				return nil, err
			}
			events = append(events, warningEvent(m, s, remaining))
		}
	}
	return events, nil
}

func (e *Engine) warnDue(s *model.MaintenanceSchedule, now time.Time) bool {
	return s.LastWarnedAt == nil || now.Sub(*s.LastWarnedAt) >= e.warnRepeat
}

// EditLatestManualEntry corrects the single most recent ledger entry, which
// must be a manual one. Editing any earlier entry is rejected: it would
// silently invalidate every later total and the schedule baselines derived
// from them. The counter is re-derived from the edited value and schedules
// are re-evaluated.
func (e *Engine) EditLatestManualEntry(ctx context.Context, entryID int64, usageValue float64, note string) error {
	probe, err := e.store.LedgerEntryByID(e.store.DB(), entryID)
	if err != nil {
		return err
	}

	mu := e.lockFor(probe.MachineID)
	mu.Lock()
	defer mu.Unlock()

	var events []Event
	err = e.store.Transaction(ctx, func(tx *gorm.DB) error {
		entry, err := e.store.LedgerEntryByID(tx, entryID)
		if err != nil {
			return err
		}
		latest, err := e.store.LatestLedgerEntry(tx, entry.MachineID)
		if err != nil {
			return err
		}
		if latest == nil || latest.ID != entry.ID || entry.Source != model.SourceManual {
			return fmt.Errorf("entry %d: %w", entryID, ErrNotLatestEntry)
		}

		prev, err := e.store.PreviousLedgerEntry(tx, entry.MachineID, entry.ID)
		if err != nil {
			return err
		}
		if usageValue < 0 {
			return fmt.Errorf("%w: %.2f", ErrNegativeUsage, usageValue)
		}
		if prev != nil && usageValue <= prev.UsageValue {
			return fmt.Errorf("%w: edited reading %.2f is not above the prior total %.2f",
				ErrNonPositiveDelta, usageValue, prev.UsageValue)
		}

		entry.UsageValue = usageValue
		entry.Note = note
		if err := e.store.SaveLedgerEntry(tx, entry); err != nil {
			return err
		}

		m, err := e.store.MachineByIDForUpdate(tx, entry.MachineID)
		if err != nil {
			return err
		}
		if err := e.store.SetCurrentUsage(tx, m.ID, usageValue); err != nil {
			return err
		}
		m.CurrentUsage = usageValue

		events, err = e.evaluateTx(tx, m, time.Now().UTC())
		return err
	})
	if err != nil {
		return err
	}
	e.dispatch(events)
	return nil
}

// ResolveTicket applies an external ticket status change. Completion and
// cancellation both restart the linked schedules' interval from the usage
// at the moment of resolution; cancelling without the reset would make the
// schedule re-trigger immediately. in_progress and on_hold only touch the
// ticket. Every schedule pointing at the ticket is reset, not just one.
func (e *Engine) ResolveTicket(ctx context.Context, ticketID int64, status string) error {
	if !model.ValidTicketStatus(status) {
		return fmt.Errorf("%w: %q", ErrInvalidTicketStatus, status)
	}

	probe, err := e.store.TicketByID(e.store.DB(), ticketID)
	if err != nil {
		return err
	}

	mu := e.lockFor(probe.MachineID)
	mu.Lock()
	defer mu.Unlock()

	var events []Event
	err = e.store.Transaction(ctx, func(tx *gorm.DB) error {
		ticket, err := e.store.TicketByID(tx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == status || model.TicketStatusTerminal(ticket.Status) {
			// Already there, or already resolved; safe to replay.
			return nil
		}

		ticket.Status = status
		if !model.TicketStatusTerminal(status) {
			return e.store.SaveTicket(tx, ticket)
		}

		m, err := e.store.MachineByIDForUpdate(tx, ticket.MachineID)
		if err != nil {
			return err
		}
		usage := m.CurrentUsage
		ticket.ResolvedAtUsage = &usage
		if err := e.store.SaveTicket(tx, ticket); err != nil {
			return err
		}

		schedules, err := e.store.SchedulesByTicket(tx, ticket.ID)
		if err != nil {
			return err
		}
		// A schedule manually linked from another machine is not covered by
		// this machine's mutex, so the reset is column-scoped and the
		// baseline guard runs in SQL.
		for i := range schedules {
			if err := e.store.ResetScheduleAfterResolution(tx, schedules[i].ID, usage); err != nil {
				return err
			}
		}

		events = append(events, ticketResolvedEvent(m, ticket))
		return nil
	})
	if err != nil {
		return err
	}
	e.dispatch(events)
	return nil
}

// SweepMachine is the recurring due-check for one machine. It intentionally
// does not take the machine mutex or the machine row lock: it may observe a
// counter mid-update, and a warning missed on a stale snapshot is caught
// next cycle. For the same reason it only ever writes the warn stamp; a
// full-row save here could clobber a ticket link or baseline committed by a
// concurrent update. Tickets are never opened here; that stays on the
// serialized update path.
func (e *Engine) SweepMachine(ctx context.Context, machineID int64) error {
	var events []Event
	err := e.store.Transaction(ctx, func(tx *gorm.DB) error {
		m, err := e.store.MachineByID(tx, machineID)
		if err != nil {
			return err
		}
		schedules, err := e.store.SchedulesForMachine(tx, machineID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for i := range schedules {
			s := &schedules[i]
			remaining := s.Remaining(m.CurrentUsage)
			switch {
			case remaining <= 0 && e.warnDue(s, now):
				if err := e.store.StampScheduleWarned(tx, s.ID, now); err != nil {
					return err
				}
				events = append(events, overdueEvent(m, s, remaining))

			case remaining > 0 && remaining <= e.warnThreshold && s.CurrentTicketID == nil && e.warnDue(s, now):
				if err := e.store.StampScheduleWarned(tx, s.ID, now); err != nil {
					return err
				}
				events = append(events, warningEvent(m, s, remaining))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.dispatch(events)
	return nil
}

package tracker_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"maintenance-tracker-backend/internal/db"
	"maintenance-tracker-backend/internal/model"
	"maintenance-tracker-backend/internal/store"
	"maintenance-tracker-backend/internal/tracker"
)

// eventRecorder captures dispatched events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []tracker.Event
}

func (r *eventRecorder) Dispatch(evt tracker.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) kinds() []tracker.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]tracker.EventKind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (r *eventRecorder) count(kind tracker.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type testEnv struct {
	db       *gorm.DB
	store    store.Store
	engine   *tracker.Engine
	recorder *eventRecorder
}

func newTestEnv(t *testing.T, warnThreshold float64) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})
	require.NoError(t, db.Migrate(gormDB))

	recorder := &eventRecorder{}
	appStore := store.NewGormStore(gormDB)
	engine := tracker.NewEngine(appStore, recorder, warnThreshold, 24*time.Hour)
	return &testEnv{db: gormDB, store: appStore, engine: engine, recorder: recorder}
}

func (env *testEnv) createMachine(t *testing.T, usage float64) *model.Machine {
	t.Helper()
	m := &model.Machine{Name: "CNC mill 3", IsActive: true, CurrentUsage: usage, InitialUsage: usage}
	require.NoError(t, env.db.Create(m).Error)
	return m
}

func (env *testEnv) createSchedule(t *testing.T, machineID int64, interval, baseline float64) *model.MaintenanceSchedule {
	t.Helper()
	s := &model.MaintenanceSchedule{
		MachineID:            machineID,
		Description:          "spindle lubrication",
		IntervalValue:        interval,
		LastCompletedAtUsage: baseline,
	}
	require.NoError(t, env.db.Create(s).Error)
	return s
}

func (env *testEnv) reloadMachine(t *testing.T, id int64) model.Machine {
	t.Helper()
	var m model.Machine
	require.NoError(t, env.db.First(&m, id).Error)
	return m
}

func (env *testEnv) reloadSchedule(t *testing.T, id int64) model.MaintenanceSchedule {
	t.Helper()
	var s model.MaintenanceSchedule
	require.NoError(t, env.db.First(&s, id).Error)
	return s
}

func day(d int) time.Time {
	return time.Date(2026, 4, d, 0, 0, 0, 0, time.UTC)
}

func TestManualEntriesOpenTicketExactlyOnce(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	m := env.createMachine(t, 0)
	s := env.createSchedule(t, m.ID, 100, 0)

	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(1), 40, ""))
	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(2), 80, ""))
	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(3), 110, ""))

	var tickets []model.MaintenanceTicket
	require.NoError(t, env.db.Find(&tickets).Error)
	require.Len(t, tickets, 1, "exactly one ticket must be opened")
	assert.Equal(t, model.TicketPending, tickets[0].Status)
	assert.Equal(t, float64(110), tickets[0].OpenedAtUsage)
	assert.NotEmpty(t, tickets[0].WorkOrder)

	reloaded := env.reloadSchedule(t, s.ID)
	require.NotNil(t, reloaded.CurrentTicketID)
	assert.Equal(t, tickets[0].ID, *reloaded.CurrentTicketID)

	// Further crossings while the ticket is open stay suppressed.
	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(4), 130, ""))
	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(5), 150, ""))
	var count int64
	require.NoError(t, env.db.Model(&model.MaintenanceTicket{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 1, env.recorder.count(tracker.EventTicketCreated))
}

func TestLedgerAgreesWithAccumulator(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	m := env.createMachine(t, 0)

	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(1), 40, "first shift"))
	require.NoError(t, env.engine.ApplyDelta(ctx, m.ID, day(2), 7.5, model.SourceAuto, "daily aggregation"))

	machine := env.reloadMachine(t, m.ID)
	var latest model.UsageLedgerEntry
	require.NoError(t, env.db.Where("machine_id = ?", m.ID).Order("id DESC").First(&latest).Error)
	assert.Equal(t, machine.CurrentUsage, latest.UsageValue,
		"the most recent ledger entry must equal current_usage")
	assert.Equal(t, model.SourceAuto, latest.Source)
	assert.Equal(t, float64(47.5), machine.CurrentUsage)
}

func TestWarningEmittedOncePerDay(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	m := env.createMachine(t, 0)
	s := env.createSchedule(t, m.ID, 100, 0)

	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(1), 95, ""))
	assert.Equal(t, 1, env.recorder.count(tracker.EventWarning))

	// A further small increment the same day must not warn again.
	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(1), 96, ""))
	assert.Equal(t, 1, env.recorder.count(tracker.EventWarning))

	// Age the stamp past the repeat window and the warning fires again.
	stale := time.Now().UTC().Add(-25 * time.Hour)
	require.NoError(t, env.db.Model(&model.MaintenanceSchedule{}).
		Where("id = ?", s.ID).Update("last_warned_at", stale).Error)
	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(2), 97, ""))
	assert.Equal(t, 2, env.recorder.count(tracker.EventWarning))

	// No ticket was opened below the threshold.
	assert.Equal(t, 0, env.recorder.count(tracker.EventTicketCreated))
}

func TestTicketResolutionResetsBaseline(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	m := env.createMachine(t, 0)
	s := env.createSchedule(t, m.ID, 100, 0)

	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(1), 110, ""))
	// Usage accrued while the ticket is outstanding is absorbed by the reset.
	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(2), 115, ""))

	reloaded := env.reloadSchedule(t, s.ID)
	require.NotNil(t, reloaded.CurrentTicketID)
	ticketID := *reloaded.CurrentTicketID

	require.NoError(t, env.engine.ResolveTicket(ctx, ticketID, model.TicketCompleted))

	reloaded = env.reloadSchedule(t, s.ID)
	assert.Equal(t, float64(115), reloaded.LastCompletedAtUsage)
	assert.Nil(t, reloaded.CurrentTicketID)

	var ticket model.MaintenanceTicket
	require.NoError(t, env.db.First(&ticket, ticketID).Error)
	assert.Equal(t, model.TicketCompleted, ticket.Status)
	require.NotNil(t, ticket.ResolvedAtUsage)
	assert.Equal(t, float64(115), *ticket.ResolvedAtUsage)
	assert.Equal(t, 1, env.recorder.count(tracker.EventTicketResolved))

	// Next threshold sits at 215 now.
	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(3), 214, ""))
	var count int64
	require.NoError(t, env.db.Model(&model.MaintenanceTicket{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(4), 215, ""))
	require.NoError(t, env.db.Model(&model.MaintenanceTicket{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestCancelledTicketAlsoResetsBaseline(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	m := env.createMachine(t, 0)
	s := env.createSchedule(t, m.ID, 100, 0)

	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(1), 105, ""))
	reloaded := env.reloadSchedule(t, s.ID)
	require.NotNil(t, reloaded.CurrentTicketID)

	// Cancelling still restarts the interval, otherwise the schedule would
	// re-trigger on the very next update.
	require.NoError(t, env.engine.ResolveTicket(ctx, *reloaded.CurrentTicketID, model.TicketCancelled))

	reloaded = env.reloadSchedule(t, s.ID)
	assert.Equal(t, float64(105), reloaded.LastCompletedAtUsage)
	assert.Nil(t, reloaded.CurrentTicketID)

	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(2), 110, ""))
	var count int64
	require.NoError(t, env.db.Model(&model.MaintenanceTicket{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "no immediate re-trigger after cancellation")
}

func TestNonTerminalStatusKeepsScheduleLinked(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	m := env.createMachine(t, 0)
	s := env.createSchedule(t, m.ID, 100, 0)

	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(1), 100, ""))
	reloaded := env.reloadSchedule(t, s.ID)
	require.NotNil(t, reloaded.CurrentTicketID)
	ticketID := *reloaded.CurrentTicketID

	require.NoError(t, env.engine.ResolveTicket(ctx, ticketID, model.TicketInProgress))
	require.NoError(t, env.engine.ResolveTicket(ctx, ticketID, model.TicketOnHold))

	reloaded = env.reloadSchedule(t, s.ID)
	assert.NotNil(t, reloaded.CurrentTicketID, "non-terminal transitions must not unlink")
	assert.Equal(t, float64(0), reloaded.LastCompletedAtUsage)

	var ticket model.MaintenanceTicket
	require.NoError(t, env.db.First(&ticket, ticketID).Error)
	assert.Equal(t, model.TicketOnHold, ticket.Status)

	require.NoError(t, env.engine.ResolveTicket(ctx, ticketID, model.TicketCompleted))
	reloaded = env.reloadSchedule(t, s.ID)
	assert.Nil(t, reloaded.CurrentTicketID)
}

func TestResolveResetsEveryLinkedSchedule(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	m := env.createMachine(t, 0)
	s1 := env.createSchedule(t, m.ID, 100, 0)
	s2 := env.createSchedule(t, m.ID, 500, 0)

	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(1), 100, ""))
	reloaded1 := env.reloadSchedule(t, s1.ID)
	require.NotNil(t, reloaded1.CurrentTicketID)
	ticketID := *reloaded1.CurrentTicketID

	// A human linked the second schedule to the same ticket.
	require.NoError(t, env.db.Model(&model.MaintenanceSchedule{}).
		Where("id = ?", s2.ID).Update("current_ticket_id", ticketID).Error)

	require.NoError(t, env.engine.ResolveTicket(ctx, ticketID, model.TicketCompleted))

	for _, id := range []int64{s1.ID, s2.ID} {
		s := env.reloadSchedule(t, id)
		assert.Nil(t, s.CurrentTicketID, "schedule %d must be unlinked", id)
		assert.Equal(t, float64(100), s.LastCompletedAtUsage)
	}
}

func TestBaselineNeverDecreases(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	m := env.createMachine(t, 0)
	s := env.createSchedule(t, m.ID, 100, 0)

	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(1), 120, ""))
	reloaded := env.reloadSchedule(t, s.ID)
	require.NotNil(t, reloaded.CurrentTicketID)
	ticketID := *reloaded.CurrentTicketID

	// Simulate a baseline already ahead of the counter (e.g. adjusted by an
	// operator between open and resolve).
	require.NoError(t, env.db.Model(&model.MaintenanceSchedule{}).
		Where("id = ?", s.ID).Update("last_completed_at_usage", 300).Error)

	require.NoError(t, env.engine.ResolveTicket(ctx, ticketID, model.TicketCompleted))
	reloaded = env.reloadSchedule(t, s.ID)
	assert.Equal(t, float64(300), reloaded.LastCompletedAtUsage, "baseline must not move backwards")
}

func TestResolveTicketIsIdempotent(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	m := env.createMachine(t, 0)
	s := env.createSchedule(t, m.ID, 100, 0)

	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(1), 100, ""))
	reloaded := env.reloadSchedule(t, s.ID)
	ticketID := *reloaded.CurrentTicketID

	require.NoError(t, env.engine.ResolveTicket(ctx, ticketID, model.TicketCompleted))
	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(2), 150, ""))

	// Replaying the resolution must not re-reset the baseline to 150.
	require.NoError(t, env.engine.ResolveTicket(ctx, ticketID, model.TicketCompleted))
	reloaded = env.reloadSchedule(t, s.ID)
	assert.Equal(t, float64(100), reloaded.LastCompletedAtUsage)
	assert.Equal(t, 1, env.recorder.count(tracker.EventTicketResolved))
}

func TestManualReadingValidation(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	m := env.createMachine(t, 50)

	err := env.engine.ApplyManualReading(ctx, m.ID, day(1), 50, "")
	assert.ErrorIs(t, err, tracker.ErrNonPositiveDelta)
	err = env.engine.ApplyManualReading(ctx, m.ID, day(1), 30, "")
	assert.ErrorIs(t, err, tracker.ErrNonPositiveDelta)

	err = env.engine.ApplyManualReading(ctx, 9999, day(1), 60, "")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, env.db.Model(&model.Machine{}).Where("id = ?", m.ID).Update("is_active", false).Error)
	err = env.engine.ApplyManualReading(ctx, m.ID, day(1), 60, "")
	assert.ErrorIs(t, err, tracker.ErrMachineInactive)

	// Rejected readings leave no trace.
	var ledgerCount int64
	require.NoError(t, env.db.Model(&model.UsageLedgerEntry{}).Count(&ledgerCount).Error)
	assert.Equal(t, int64(0), ledgerCount)
	machine := env.reloadMachine(t, m.ID)
	assert.Equal(t, float64(50), machine.CurrentUsage)
}

func TestEditLatestManualEntry(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	m := env.createMachine(t, 0)
	env.createSchedule(t, m.ID, 100, 0)

	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(1), 40, ""))
	require.NoError(t, env.engine.ApplyManualReading(ctx, m.ID, day(2), 80, ""))

	var entries []model.UsageLedgerEntry
	require.NoError(t, env.db.Order("id").Find(&entries).Error)
	require.Len(t, entries, 2)

	// Editing an earlier entry would invalidate every later total.
	err := env.engine.EditLatestManualEntry(ctx, entries[0].ID, 45, "")
	assert.ErrorIs(t, err, tracker.ErrNotLatestEntry)

	// The edited value must stay above the prior entry's total.
	err = env.engine.EditLatestManualEntry(ctx, entries[1].ID, 40, "")
	assert.ErrorIs(t, err, tracker.ErrNonPositiveDelta)

	// A valid correction may move the counter down.
	require.NoError(t, env.engine.EditLatestManualEntry(ctx, entries[1].ID, 75, "typo"))
	machine := env.reloadMachine(t, m.ID)
	assert.Equal(t, float64(75), machine.CurrentUsage)

	// An edit that crosses the threshold opens a ticket.
	require.NoError(t, env.engine.EditLatestManualEntry(ctx, entries[1].ID, 105, ""))
	var count int64
	require.NoError(t, env.db.Model(&model.MaintenanceTicket{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestApplyDailySummaryIsIdempotent(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	m := env.createMachine(t, 0)

	row := &model.DailySummary{
		MachineID:     m.ID,
		Day:           day(1),
		FirstActive:   day(1).Add(8 * time.Hour),
		LastActive:    day(1).Add(13 * time.Hour),
		UptimeSeconds: 5 * 3600,
		SampleCount:   10,
	}
	require.NoError(t, env.engine.ApplyDailySummary(ctx, row))
	machine := env.reloadMachine(t, m.ID)
	assert.Equal(t, float64(5), machine.CurrentUsage)

	// Re-running the same day must change nothing.
	require.NoError(t, env.engine.ApplyDailySummary(ctx, row))
	machine = env.reloadMachine(t, m.ID)
	assert.Equal(t, float64(5), machine.CurrentUsage)

	var summaryCount, ledgerCount int64
	require.NoError(t, env.db.Model(&model.DailySummary{}).Count(&summaryCount).Error)
	require.NoError(t, env.db.Model(&model.UsageLedgerEntry{}).Count(&ledgerCount).Error)
	assert.Equal(t, int64(1), summaryCount)
	assert.Equal(t, int64(1), ledgerCount)
}

func TestEditedHistoricalDayAppliesDeltaOnly(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	m := env.createMachine(t, 0)

	first := &model.DailySummary{MachineID: m.ID, Day: day(1), UptimeSeconds: 5 * 3600}
	second := &model.DailySummary{MachineID: m.ID, Day: day(2), UptimeSeconds: 4 * 3600}
	require.NoError(t, env.engine.ApplyDailySummary(ctx, first))
	require.NoError(t, env.engine.ApplyDailySummary(ctx, second))
	assert.Equal(t, float64(9), env.reloadMachine(t, m.ID).CurrentUsage)

	// Corrected samples for day 1: uptime shrinks from 5h to 3h. Only the
	// delta is applied, not the absolute value.
	corrected := &model.DailySummary{MachineID: m.ID, Day: day(1), UptimeSeconds: 3 * 3600}
	require.NoError(t, env.engine.ApplyDailySummary(ctx, corrected))
	assert.Equal(t, float64(7), env.reloadMachine(t, m.ID).CurrentUsage)

	var latest model.UsageLedgerEntry
	require.NoError(t, env.db.Where("machine_id = ?", m.ID).Order("id DESC").First(&latest).Error)
	assert.Equal(t, float64(7), latest.UsageValue)
	assert.True(t, latest.ObservedOn.Equal(day(1)), "correction entry is dated to the edited day")
}

func TestSweepMachineEmitsWarningsAndOverdue(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()
	m := env.createMachine(t, 95)
	warned := env.createSchedule(t, m.ID, 100, 0)
	ticketID := int64(77)
	overdue := &model.MaintenanceSchedule{
		MachineID:            m.ID,
		Description:          "coolant flush",
		IntervalValue:        50,
		LastCompletedAtUsage: 10,
		CurrentTicketID:      &ticketID,
	}
	require.NoError(t, env.db.Create(overdue).Error)

	require.NoError(t, env.engine.SweepMachine(ctx, m.ID))
	assert.Equal(t, 1, env.recorder.count(tracker.EventWarning))
	assert.Equal(t, 1, env.recorder.count(tracker.EventOverdue))
	assert.Equal(t, 0, env.recorder.count(tracker.EventTicketCreated), "the sweep never opens tickets")

	// A second sweep inside the repeat window is silent.
	require.NoError(t, env.engine.SweepMachine(ctx, m.ID))
	assert.Equal(t, 1, env.recorder.count(tracker.EventWarning))
	assert.Equal(t, 1, env.recorder.count(tracker.EventOverdue))

	reloaded := env.reloadSchedule(t, warned.ID)
	assert.NotNil(t, reloaded.LastWarnedAt)

	// The sweep writes nothing but the warn stamp: ticket link and baseline
	// are owned by the serialized update path.
	reloaded = env.reloadSchedule(t, overdue.ID)
	assert.NotNil(t, reloaded.LastWarnedAt)
	require.NotNil(t, reloaded.CurrentTicketID)
	assert.Equal(t, ticketID, *reloaded.CurrentTicketID)
	assert.Equal(t, float64(10), reloaded.LastCompletedAtUsage)
}

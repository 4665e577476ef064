package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"maintenance-tracker-backend/internal/model"
)

// Store defines the interface for all database operations the tracker core
// performs. Methods taking a *gorm.DB run against the caller's transaction;
// the usage-update path groups several of them into one atomic unit.
type Store interface {
	DB() *gorm.DB
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	MachineByID(tx *gorm.DB, id int64) (*model.Machine, error)
	MachineByIDForUpdate(tx *gorm.DB, id int64) (*model.Machine, error)
	ListActiveMachines(ctx context.Context) ([]model.Machine, error)
	SetCurrentUsage(tx *gorm.DB, machineID int64, usage float64) error

	AppendLedgerEntry(tx *gorm.DB, entry *model.UsageLedgerEntry) error
	LatestLedgerEntry(tx *gorm.DB, machineID int64) (*model.UsageLedgerEntry, error)
	PreviousLedgerEntry(tx *gorm.DB, machineID, beforeID int64) (*model.UsageLedgerEntry, error)
	LedgerEntryByID(tx *gorm.DB, id int64) (*model.UsageLedgerEntry, error)
	SaveLedgerEntry(tx *gorm.DB, entry *model.UsageLedgerEntry) error
	EarliestAutoLedgerEntry(tx *gorm.DB, machineID int64) (*model.UsageLedgerEntry, error)
	DeleteAutoLedgerEntries(tx *gorm.DB, machineID int64) (int64, error)

	DailySummaryFor(tx *gorm.DB, machineID int64, day time.Time) (*model.DailySummary, error)
	UpsertDailySummary(tx *gorm.DB, summary *model.DailySummary) error
	ListDailySummaries(tx *gorm.DB, machineID int64) ([]model.DailySummary, error)

	SchedulesForMachine(tx *gorm.DB, machineID int64) ([]model.MaintenanceSchedule, error)
	SchedulesByTicket(tx *gorm.DB, ticketID int64) ([]model.MaintenanceSchedule, error)
	SaveSchedule(tx *gorm.DB, schedule *model.MaintenanceSchedule) error
	StampScheduleWarned(tx *gorm.DB, scheduleID int64, at time.Time) error
	ResetScheduleAfterResolution(tx *gorm.DB, scheduleID int64, usage float64) error

	CreateTicket(tx *gorm.DB, ticket *model.MaintenanceTicket) error
	TicketByID(tx *gorm.DB, id int64) (*model.MaintenanceTicket, error)
	SaveTicket(tx *gorm.DB, ticket *model.MaintenanceTicket) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *gormStore) MachineByID(tx *gorm.DB, id int64) (*model.Machine, error) {
	var m model.Machine
	if err := tx.First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// MachineByIDForUpdate fetches the machine row with a FOR UPDATE lock, so
// the caller's transaction excludes other processes touching the same
// machine (the engine's update path on one side, the reconcile CLI on the
// other). SQLite rejects the FOR UPDATE syntax; its single-writer model
// already gives the same exclusion, so the clause is skipped there.
func (s *gormStore) MachineByIDForUpdate(tx *gorm.DB, id int64) (*model.Machine, error) {
	q := tx
	if tx.Dialector.Name() != "sqlite" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var m model.Machine
	if err := q.First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *gormStore) ListActiveMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&machines).Error; err != nil {
		return nil, err
	}
	return machines, nil
}

func (s *gormStore) SetCurrentUsage(tx *gorm.DB, machineID int64, usage float64) error {
	res := tx.Model(&model.Machine{}).Where("id = ?", machineID).Update("current_usage", usage)
	if res.Error != nil {
		return fmt.Errorf("failed to update current_usage for machine %d: %w", machineID, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *gormStore) AppendLedgerEntry(tx *gorm.DB, entry *model.UsageLedgerEntry) error {
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append ledger entry for machine %d: %w", entry.MachineID, err)
	}
	return nil
}

func (s *gormStore) LatestLedgerEntry(tx *gorm.DB, machineID int64) (*model.UsageLedgerEntry, error) {
	var entry model.UsageLedgerEntry
	err := tx.Where("machine_id = ?", machineID).Order("id DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *gormStore) PreviousLedgerEntry(tx *gorm.DB, machineID, beforeID int64) (*model.UsageLedgerEntry, error) {
	var entry model.UsageLedgerEntry
	err := tx.Where("machine_id = ? AND id < ?", machineID, beforeID).Order("id DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *gormStore) LedgerEntryByID(tx *gorm.DB, id int64) (*model.UsageLedgerEntry, error) {
	var entry model.UsageLedgerEntry
	if err := tx.First(&entry, id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *gormStore) SaveLedgerEntry(tx *gorm.DB, entry *model.UsageLedgerEntry) error {
	return tx.Save(entry).Error
}

func (s *gormStore) EarliestAutoLedgerEntry(tx *gorm.DB, machineID int64) (*model.UsageLedgerEntry, error) {
	var entry model.UsageLedgerEntry
	err := tx.Where("machine_id = ? AND source = ?", machineID, model.SourceAuto).
		Order("observed_on ASC, id ASC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *gormStore) DeleteAutoLedgerEntries(tx *gorm.DB, machineID int64) (int64, error) {
	res := tx.Where("machine_id = ? AND source = ?", machineID, model.SourceAuto).
		Delete(&model.UsageLedgerEntry{})
	return res.RowsAffected, res.Error
}

func (s *gormStore) DailySummaryFor(tx *gorm.DB, machineID int64, day time.Time) (*model.DailySummary, error) {
	var summary model.DailySummary
	err := tx.Where("machine_id = ? AND day = ?", machineID, day).First(&summary).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *gormStore) UpsertDailySummary(tx *gorm.DB, summary *model.DailySummary) error {
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "machine_id"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"first_active", "last_active", "uptime_seconds", "downtime_seconds",
			"avg_reading", "min_reading", "max_reading", "sample_count", "updated_at",
		}),
	}).Create(summary).Error
	if err != nil {
		return fmt.Errorf("failed to upsert daily summary for machine %d: %w", summary.MachineID, err)
	}
	return nil
}

func (s *gormStore) ListDailySummaries(tx *gorm.DB, machineID int64) ([]model.DailySummary, error) {
	var summaries []model.DailySummary
	if err := tx.Where("machine_id = ?", machineID).Order("day ASC").Find(&summaries).Error; err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *gormStore) SchedulesForMachine(tx *gorm.DB, machineID int64) ([]model.MaintenanceSchedule, error) {
	var schedules []model.MaintenanceSchedule
	if err := tx.Where("machine_id = ?", machineID).Order("id").Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

// SchedulesByTicket looks schedules up by their open-ticket link. A ticket
// manually linked from several schedules resolves all of them, so this is
// deliberately not a single-row lookup.
func (s *gormStore) SchedulesByTicket(tx *gorm.DB, ticketID int64) ([]model.MaintenanceSchedule, error) {
	var schedules []model.MaintenanceSchedule
	if err := tx.Where("current_ticket_id = ?", ticketID).Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

func (s *gormStore) SaveSchedule(tx *gorm.DB, schedule *model.MaintenanceSchedule) error {
	if err := tx.Save(schedule).Error; err != nil {
		return fmt.Errorf("failed to save schedule %d: %w", schedule.ID, err)
	}
	return nil
}

// StampScheduleWarned records the warning timestamp without touching any
// other column. The sweep reads schedules outside the machine mutex, so a
// full-row save there could write a stale ticket link or baseline back.
func (s *gormStore) StampScheduleWarned(tx *gorm.DB, scheduleID int64, at time.Time) error {
	err := tx.Model(&model.MaintenanceSchedule{}).Where("id = ?", scheduleID).
		Update("last_warned_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to stamp warning on schedule %d: %w", scheduleID, err)
	}
	return nil
}

// ResetScheduleAfterResolution restarts a schedule's interval after its
// ticket resolved: the ticket link and warn stamp are cleared, and the
// baseline advances to usage unless it is already past it. Only these
// columns are written; a schedule manually linked from another machine may
// be mid-update under that machine's mutex.
func (s *gormStore) ResetScheduleAfterResolution(tx *gorm.DB, scheduleID int64, usage float64) error {
	err := tx.Model(&model.MaintenanceSchedule{}).Where("id = ?", scheduleID).
		Updates(map[string]interface{}{
			"current_ticket_id": nil,
			"last_warned_at":    nil,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to reset schedule %d: %w", scheduleID, err)
	}
	err = tx.Model(&model.MaintenanceSchedule{}).
		Where("id = ? AND last_completed_at_usage < ?", scheduleID, usage).
		Update("last_completed_at_usage", usage).Error
	if err != nil {
		return fmt.Errorf("failed to advance baseline of schedule %d: %w", scheduleID, err)
	}
	return nil
}

func (s *gormStore) CreateTicket(tx *gorm.DB, ticket *model.MaintenanceTicket) error {
	if err := tx.Create(ticket).Error; err != nil {
		return fmt.Errorf("failed to create ticket for machine %d: %w", ticket.MachineID, err)
	}
	return nil
}

func (s *gormStore) TicketByID(tx *gorm.DB, id int64) (*model.MaintenanceTicket, error) {
	var ticket model.MaintenanceTicket
	if err := tx.First(&ticket, id).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *gormStore) SaveTicket(tx *gorm.DB, ticket *model.MaintenanceTicket) error {
	if err := tx.Save(ticket).Error; err != nil {
		return fmt.Errorf("failed to save ticket %d: %w", ticket.ID, err)
	}
	return nil
}

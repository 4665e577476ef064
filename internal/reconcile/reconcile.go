package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"maintenance-tracker-backend/internal/model"
	"maintenance-tracker-backend/internal/store"
)

// ErrMissingHistory is returned when a machine has auto-generated ledger
// entries but no daily-summary history to rebuild them from.
var ErrMissingHistory = errors.New("no daily summary history for machine")

// errDryRun forces the transaction to roll back after a dry run.
var errDryRun = errors.New("dry run")

// Report describes what one machine's repair did (or would do).
type Report struct {
	MachineID    int64
	OldUsage     float64
	Baseline     float64
	NewUsage     float64
	DaysReplayed int
	AutoDeleted  int64
}

// Job rebuilds a machine's automatic ledger history and usage counter from
// its daily summaries when incremental accumulation has drifted (the
// observed failure mode: the first auto entry baking in an already-counted
// manual value, double-counting it on every later day).
//
// The rewrite goes through raw store writes, never through the tracker
// engine, so no threshold evaluation fires against stale schedule state
// while historical entries are re-inserted. Each machine's repair is one
// all-or-nothing transaction that holds the machine row lock for its whole
// duration, the same lock the engine's update path takes, so a live maintd
// cannot read or advance the counter mid-repair. The result is a fixed
// point: running the job twice produces the identical ledger and counter.
type Job struct {
	store  store.Store
	dryRun bool
}

// NewJob creates a reconciliation job. With dryRun set it reports what it
// would change and rolls everything back.
func NewJob(s store.Store, dryRun bool) *Job {
	return &Job{store: s, dryRun: dryRun}
}

// Run repairs a single machine.
func (j *Job) Run(ctx context.Context, machineID int64) (*Report, error) {
	var report *Report
	err := j.store.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		report, err = j.rebuild(tx, machineID)
		if err != nil {
			return err
		}
		if j.dryRun {
			return errDryRun
		}
		return nil
	})
	if errors.Is(err, errDryRun) {
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

// RunAll repairs every machine. A failure for one machine is logged and
// leaves that machine untouched; the others proceed.
func (j *Job) RunAll(ctx context.Context) ([]Report, error) {
	machines, err := j.store.ListActiveMachines(ctx)
	if err != nil {
		return nil, err
	}

	var reports []Report
	failed := 0
	for _, m := range machines {
		report, err := j.Run(ctx, m.ID)
		if err != nil {
			failed++
			log.Printf("Reconcile: machine %d failed, left in pre-repair state: %v", m.ID, err)
			continue
		}
		reports = append(reports, *report)
	}
	if failed > 0 {
		return reports, fmt.Errorf("reconciliation failed for %d of %d machines", failed, len(machines))
	}
	return reports, nil
}

func (j *Job) rebuild(tx *gorm.DB, machineID int64) (*Report, error) {
	m, err := j.store.MachineByIDForUpdate(tx, machineID)
	if err != nil {
		return nil, err
	}

	summaries, err := j.store.ListDailySummaries(tx, machineID)
	if err != nil {
		return nil, err
	}

	// Recover the true baseline: the usage that pre-dates automatic
	// tracking. The earliest auto entry's total minus that day's computed
	// uptime is what the counter really was before tracking started.
	earliest, err := j.store.EarliestAutoLedgerEntry(tx, machineID)
	if err != nil {
		return nil, err
	}
	baseline := m.InitialUsage
	deleted := int64(0)
	if earliest != nil {
		if len(summaries) == 0 {
			return nil, fmt.Errorf("machine %d: %w", machineID, ErrMissingHistory)
		}
		firstDay, err := j.store.DailySummaryFor(tx, machineID, earliest.ObservedOn)
		if err != nil {
			return nil, err
		}
		if firstDay == nil {
			return nil, fmt.Errorf("machine %d: day %s: %w",
				machineID, earliest.ObservedOn.Format("2006-01-02"), ErrMissingHistory)
		}
		baseline = earliest.UsageValue - firstDay.UptimeHours()

		deleted, err = j.store.DeleteAutoLedgerEntries(tx, machineID)
		if err != nil {
			return nil, err
		}
	}

	// Replay the summaries in day order, one entry per day.
	running := baseline
	for _, day := range summaries {
		running += day.UptimeHours()
		entry := &model.UsageLedgerEntry{
			MachineID:  machineID,
			ObservedOn: day.Day,
			UsageValue: running,
			Source:     model.SourceAuto,
			Note:       "reconciled",
		}
		if err := j.store.AppendLedgerEntry(tx, entry); err != nil {
			return nil, err
		}
	}

	report := &Report{
		MachineID:    machineID,
		OldUsage:     m.CurrentUsage,
		Baseline:     baseline,
		NewUsage:     running,
		DaysReplayed: len(summaries),
		AutoDeleted:  deleted,
	}
	if err := j.store.SetCurrentUsage(tx, machineID, running); err != nil {
		return nil, err
	}
	return report, nil
}

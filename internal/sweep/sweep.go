package sweep

import (
	"context"
	"log"
	"time"

	"maintenance-tracker-backend/config"
	"maintenance-tracker-backend/internal/store"
	"maintenance-tracker-backend/internal/tracker"
)

// Service runs the recurring due-check over all active machines: warnings
// for schedules approaching their threshold and overdue reminders for
// schedules past it. It is not bound to any usage event and tolerates
// stale counter snapshots; a notification missed in one cycle is caught in
// the next.
type Service struct {
	cfg    *config.SweepConfig
	store  store.Store
	engine *tracker.Engine
}

// NewService creates the sweep service.
func NewService(cfg *config.SweepConfig, s store.Store, engine *tracker.Engine) *Service {
	return &Service{cfg: cfg, store: s, engine: engine}
}

// Run starts the sweep loop.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Println("Due-check sweep is disabled. Not starting.")
		return
	}
	log.Println("Starting due-check sweep...")

	s.SweepOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Due-check sweep shutting down.")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// SweepOnce performs a single pass over all active machines. Each machine
// gets its own timeout so one stuck evaluation cannot stall the sweep, and
// a failure for one machine never aborts the others.
func (s *Service) SweepOnce(ctx context.Context) {
	machines, err := s.store.ListActiveMachines(ctx)
	if err != nil {
		log.Printf("Sweep: failed to list machines: %v", err)
		return
	}

	for _, m := range machines {
		machineCtx, cancel := context.WithTimeout(ctx, s.cfg.MachineTimeout)
		err := s.engine.SweepMachine(machineCtx, m.ID)
		cancel()
		if err != nil {
			log.Printf("Sweep: machine %d skipped: %v", m.ID, err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

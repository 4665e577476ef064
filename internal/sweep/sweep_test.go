package sweep_test

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

	"maintenance-tracker-backend/config"
	"maintenance-tracker-backend/internal/db"
	"maintenance-tracker-backend/internal/model"
	"maintenance-tracker-backend/internal/store"
	"maintenance-tracker-backend/internal/sweep"
	"maintenance-tracker-backend/internal/tracker"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []tracker.Event
}

func (r *eventRecorder) Dispatch(evt tracker.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
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

func TestSweepOnce(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})
	require.NoError(t, db.Migrate(gormDB))

	appStore := store.NewGormStore(gormDB)
	recorder := &eventRecorder{}
	engine := tracker.NewEngine(appStore, recorder, 10, 24*time.Hour)
	svc := sweep.NewService(&config.SweepConfig{
		Enabled:        true,
		Interval:       time.Minute,
		MachineTimeout: 5 * time.Second,
	}, appStore, engine)

	// Machine near its threshold and one past it.
	near := &model.Machine{Name: "near", IsActive: true, CurrentUsage: 95}
	past := &model.Machine{Name: "past", IsActive: true, CurrentUsage: 120}
	ignored := &model.Machine{Name: "retired", IsActive: false, CurrentUsage: 500}
	for _, m := range []*model.Machine{near, past, ignored} {
		require.NoError(t, gormDB.Create(m).Error)
	}
	for _, s := range []*model.MaintenanceSchedule{
		{MachineID: near.ID, Description: "belts", IntervalValue: 100},
		{MachineID: past.ID, Description: "filters", IntervalValue: 100},
		{MachineID: ignored.ID, Description: "anything", IntervalValue: 100},
	} {
		require.NoError(t, gormDB.Create(s).Error)
	}

	svc.SweepOnce(context.Background())

	assert.Equal(t, 1, recorder.count(tracker.EventWarning))
	assert.Equal(t, 1, recorder.count(tracker.EventOverdue))

	// Repeating inside the warn window stays silent.
	svc.SweepOnce(context.Background())
	assert.Equal(t, 1, recorder.count(tracker.EventWarning))
	assert.Equal(t, 1, recorder.count(tracker.EventOverdue))
}

func TestRunHonoursDisabledFlag(t *testing.T) {
	svc := sweep.NewService(&config.SweepConfig{Enabled: false}, nil, nil)

	done := make(chan struct{})
	go func() {
		svc.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run must return immediately when the sweep is disabled")
	}
}

package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"maintenance-tracker-backend/internal/model"
	"maintenance-tracker-backend/internal/tracker"
)

// ErrReadingOutsideDay is returned when a batch contains a reading that
// does not belong to the day the batch is keyed to.
var ErrReadingOutsideDay = errors.New("reading outside the submitted day")

// Service turns a batch of raw readings for one machine-day into a
// DailySummary row and feeds the uptime delta into the tracker engine.
type Service struct {
	engine *tracker.Engine
	loc    *time.Location
}

// NewService creates the aggregation service. loc is the timezone readings
// are bucketed into calendar days by.
func NewService(engine *tracker.Engine, loc *time.Location) *Service {
	return &Service{engine: engine, loc: loc}
}

// ProcessDay aggregates the given day's readings and applies the result.
// day must already be bucketed (see DayOf); every reading in the batch has
// to fall on that day, otherwise the stored first/last-active bounds would
// escape the row's (machine, day) key. The summary upsert and the
// accumulator/evaluator propagation run in one transaction inside the
// engine, so re-processing an already-seen day with unchanged samples
// changes nothing.
func (s *Service) ProcessDay(ctx context.Context, machineID int64, day time.Time, readings []Reading) error {
	for _, r := range readings {
		if !DayOf(r.At, s.loc).Equal(day) {
			return fmt.Errorf("%w: %s is not on %s",
				ErrReadingOutsideDay, r.At.Format(time.RFC3339), day.Format("2006-01-02"))
		}
	}
	summary, ok := Summarize(readings)
	if !ok {
		// Machine never ran that day; no row, no delta.
		return nil
	}

	row := &model.DailySummary{
		MachineID:       machineID,
		Day:             day,
		FirstActive:     summary.FirstActive,
		LastActive:      summary.LastActive,
		UptimeSeconds:   int64(summary.Uptime / time.Second),
		DowntimeSeconds: int64(summary.Downtime / time.Second),
		AvgReading:      summary.AvgReading,
		MinReading:      summary.MinReading,
		MaxReading:      summary.MaxReading,
		SampleCount:     summary.Samples,
	}
	return s.engine.ApplyDailySummary(ctx, row)
}

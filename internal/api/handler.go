package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"maintenance-tracker-backend/internal/aggregate"
	"maintenance-tracker-backend/internal/store"
	"maintenance-tracker-backend/internal/tracker"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store         store.Store
	engine        *tracker.Engine
	aggregator    *aggregate.Service
	loc           *time.Location
	warnThreshold float64
	webpush       *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, engine *tracker.Engine, aggregator *aggregate.Service, loc *time.Location, warnThreshold float64, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:         s,
		engine:        engine,
		aggregator:    aggregator,
		loc:           loc,
		warnThreshold: warnThreshold,
		webpush:       webpushOptions,
	}
}

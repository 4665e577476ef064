package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"maintenance-tracker-backend/config"
	"maintenance-tracker-backend/internal/aggregate"
	"maintenance-tracker-backend/internal/mw"
	"maintenance-tracker-backend/internal/store"
	"maintenance-tracker-backend/internal/tracker"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, engine *tracker.Engine, aggregator *aggregate.Service, cfg *config.Config, loc *time.Location, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	db := s.DB()
	handler := NewHandler(s, engine, aggregator, loc, cfg.Maintenance.WarnThreshold, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Read-only dashboard endpoints, cached.
		api.GET("/machines", caching, GetMachines(db))
		api.GET("/machines/:machine_id/schedules", caching, handler.GetMachineSchedules)

		// Usage inputs.
		api.POST("/machines/:machine_id/readings", handler.IngestReadings)
		api.POST("/machines/:machine_id/usage", handler.CreateManualEntry)
		api.PUT("/ledger/:entry_id", handler.UpdateManualEntry)

		// External ticket status changes.
		api.PATCH("/tickets/:ticket_id/status", handler.UpdateTicketStatus)

		// Push subscriptions.
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}

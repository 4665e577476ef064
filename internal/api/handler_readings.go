package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"maintenance-tracker-backend/internal/aggregate"
	"maintenance-tracker-backend/internal/tracker"
)

type ingestReadingsRequest struct {
	Day      string              `json:"day"` // "2006-01-02"; derived from the first reading when empty
	Readings []aggregate.Reading `json:"readings" binding:"required"`
}

// IngestReadings handles POST /api/machines/{machine_id}/readings: a batch
// of raw sensor readings for one machine-day, fed through the daily
// aggregator.
func (h *Handler) IngestReadings(c *gin.Context) {
	machineID, err := strconv.ParseInt(c.Param("machine_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid machine ID"})
		return
	}

	var req ingestReadingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Readings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "readings must not be empty"})
		return
	}

	var day time.Time
	if req.Day != "" {
		day, err = time.Parse("2006-01-02", req.Day)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid day, expected YYYY-MM-DD"})
			return
		}
	} else {
		day = aggregate.DayOf(req.Readings[0].At, h.loc)
	}

	if err := h.aggregator.ProcessDay(c.Request.Context(), machineID, day, req.Readings); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "machine not found"})
		case errors.Is(err, aggregate.ErrReadingOutsideDay):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, tracker.ErrMachineInactive):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

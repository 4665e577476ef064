package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"maintenance-tracker-backend/internal/tracker"
)

type manualEntryRequest struct {
	ObservedOn string   `json:"observed_on" binding:"required"` // "2006-01-02"
	UsageValue *float64 `json:"usage_value" binding:"required"`
	Note       string   `json:"note"`
}

// CreateManualEntry handles POST /api/machines/{machine_id}/usage: a
// technician-entered absolute counter reading.
func (h *Handler) CreateManualEntry(c *gin.Context) {
	machineID, err := strconv.ParseInt(c.Param("machine_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid machine ID"})
		return
	}

	var req manualEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	day, err := time.Parse("2006-01-02", req.ObservedOn)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid observed_on, expected YYYY-MM-DD"})
		return
	}

	err = h.engine.ApplyManualReading(c.Request.Context(), machineID, day, *req.UsageValue, req.Note)
	if err != nil {
		h.writeUsageError(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

type editEntryRequest struct {
	UsageValue *float64 `json:"usage_value" binding:"required"`
	Note       string   `json:"note"`
}

// UpdateManualEntry handles PUT /api/ledger/{entry_id}. Only the single
// most recent manual entry can be edited; anything earlier is rejected.
func (h *Handler) UpdateManualEntry(c *gin.Context) {
	entryID, err := strconv.ParseInt(c.Param("entry_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry ID"})
		return
	}

	var req editEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = h.engine.EditLatestManualEntry(c.Request.Context(), entryID, *req.UsageValue, req.Note)
	if err != nil {
		h.writeUsageError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) writeUsageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, tracker.ErrNonPositiveDelta), errors.Is(err, tracker.ErrNegativeUsage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, tracker.ErrNotLatestEntry), errors.Is(err, tracker.ErrMachineInactive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

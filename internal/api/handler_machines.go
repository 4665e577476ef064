package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"maintenance-tracker-backend/internal/model"
)

// MachineResponse represents the API response for a single machine.
type MachineResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Location     string  `json:"location"`
	IsActive     bool    `json:"is_active"`
	CurrentUsage float64 `json:"current_usage"`
	Schedules    int64   `json:"schedules"`
	OpenTickets  int64   `json:"open_tickets"`
}

// GetMachines handles the GET /api/machines request.
func GetMachines(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var machines []model.Machine
		if err := db.Order("id").Find(&machines).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve machines"})
			return
		}

		type aggRow struct {
			MachineID   int64
			Schedules   int64
			OpenTickets int64
		}
		var aggs []aggRow
		if err := db.
			Model(&model.MaintenanceSchedule{}).
			Select("machine_id as machine_id, COUNT(*) as schedules, COUNT(current_ticket_id) as open_tickets").
			Group("machine_id").
			Scan(&aggs).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate schedules"})
			return
		}

		aggMap := make(map[int64]aggRow, len(aggs))
		for _, a := range aggs {
			aggMap[a.MachineID] = a
		}

		responses := make([]MachineResponse, 0, len(machines))
		for _, m := range machines {
			a := aggMap[m.ID] // zero value when the machine has no schedules
			responses = append(responses, MachineResponse{
				ID: m.ID, Name: m.Name, Location: m.Location,
				IsActive: m.IsActive, CurrentUsage: m.CurrentUsage,
				Schedules: a.Schedules, OpenTickets: a.OpenTickets,
			})
		}
		c.JSON(http.StatusOK, responses)
	}
}

// scheduleStatusResponse is a schedule plus the quantities dashboards
// derive from the current counter.
type scheduleStatusResponse struct {
	ID                   int64   `json:"id"`
	Description          string  `json:"description"`
	IntervalValue        float64 `json:"interval_value"`
	LastCompletedAtUsage float64 `json:"last_completed_at_usage"`
	CurrentTicketID      *int64  `json:"current_ticket_id"`
	NextDue              float64 `json:"next_due"`
	Remaining            float64 `json:"remaining"`
	IsOverdue            bool    `json:"is_overdue"`
	IsDueSoon            bool    `json:"is_due_soon"`
}

// GetMachineSchedules handles the GET /api/machines/{machine_id}/schedules request.
func (h *Handler) GetMachineSchedules(c *gin.Context) {
	machineID, err := strconv.ParseInt(c.Param("machine_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid machine ID"})
		return
	}

	db := h.store.DB()
	var machine model.Machine
	if err := db.First(&machine, machineID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "machine not found"})
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve machine"})
		}
		return
	}

	var schedules []model.MaintenanceSchedule
	if err := db.Where("machine_id = ?", machineID).Order("id").Find(&schedules).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve schedules"})
		return
	}

	responses := make([]scheduleStatusResponse, 0, len(schedules))
	for _, s := range schedules {
		remaining := s.Remaining(machine.CurrentUsage)
		responses = append(responses, scheduleStatusResponse{
			ID:                   s.ID,
			Description:          s.Description,
			IntervalValue:        s.IntervalValue,
			LastCompletedAtUsage: s.LastCompletedAtUsage,
			CurrentTicketID:      s.CurrentTicketID,
			NextDue:              s.NextDue(),
			Remaining:            remaining,
			IsOverdue:            remaining < 0,
			IsDueSoon:            remaining >= 0 && remaining <= h.warnThreshold,
		})
	}
	c.JSON(http.StatusOK, responses)
}

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"maintenance-tracker-backend/internal/tracker"
)

type ticketStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateTicketStatus handles PATCH /api/tickets/{ticket_id}/status: the
// external status-change calls the lifecycle controller subscribes to.
// Completed and cancelled resolve the ticket and restart the linked
// schedules; other statuses only update the ticket.
func (h *Handler) UpdateTicketStatus(c *gin.Context) {
	ticketID, err := strconv.ParseInt(c.Param("ticket_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticket ID"})
		return
	}

	var req ticketStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = h.engine.ResolveTicket(c.Request.Context(), ticketID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		case errors.Is(err, tracker.ErrInvalidTicketStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

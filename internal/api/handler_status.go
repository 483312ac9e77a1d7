package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// statusResponse is the facility snapshot served at /api/status.
type statusResponse struct {
	FacilityID      string `json:"facilityId"`
	MaxCapacity     int    `json:"maxCapacity"`
	Occupancy       int    `json:"currentOccupancy"`
	AvailableSpaces int    `json:"availableSpaces"`
	Registered      bool   `json:"registered"`
	ActiveSessions  int    `json:"activeSessions"`
}

// GetStatus handles the GET /api/status request.
func (h *Handler) GetStatus(c *gin.Context) {
	snap := h.tracker.Snapshot()

	sessions, err := h.ledger.ActiveSessions(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve active sessions"})
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		FacilityID:      snap.FacilityID,
		MaxCapacity:     snap.MaxCapacity,
		Occupancy:       snap.Occupancy,
		AvailableSpaces: snap.AvailableSpaces,
		Registered:      snap.Registered,
		ActiveSessions:  len(sessions),
	})
}

// Healthz handles the GET /healthz liveness probe.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

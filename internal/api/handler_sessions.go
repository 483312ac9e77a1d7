package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetSessions handles the GET /api/sessions request. With ?active=1 only
// plates currently inside are returned.
func (h *Handler) GetSessions(c *gin.Context) {
	if c.Query("active") != "1" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "only active=1 listing is supported"})
		return
	}

	sessions, err := h.ledger.ActiveSessions(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve sessions"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// GetSessionsForPlate handles the GET /api/sessions/:plate request and
// returns the plate's visit history, most recent first.
func (h *Handler) GetSessionsForPlate(c *gin.Context) {
	plate := c.Param("plate")
	if plate == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "plate is required"})
		return
	}

	sessions, err := h.ledger.SessionsForPlate(c.Request.Context(), plate)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve sessions"})
		return
	}
	if len(sessions) == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no sessions for plate"})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

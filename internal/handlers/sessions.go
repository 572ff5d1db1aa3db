package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kitchen48/telemetry-service/internal/auth"
	"github.com/kitchen48/telemetry-service/internal/device"
	"github.com/kitchen48/telemetry-service/internal/models"
	"github.com/kitchen48/telemetry-service/internal/session"
)

// SessionResolver finds or creates browsing sessions.
type SessionResolver interface {
	Resolve(ctx context.Context, v session.Visit) string
	AttachUser(ctx context.Context, sessionID, userID string)
}

// RegisterSessionRoutes registers the session correlation endpoints.
//
// POST /sessions/resolve
// - Returns the caller's live session id, creating one if needed. An empty
//   session_id means bookkeeping failed; callers proceed without it.
//
// POST /sessions/:id/user
// - Retroactively attaches a user to an anonymous session after login.
//   Always 204 once validated; attach is best-effort.
func RegisterSessionRoutes(r gin.IRoutes, resolver SessionResolver) {
	r.POST("/sessions/resolve", func(c *gin.Context) {
		ua := c.Request.UserAgent()
		id := resolver.Resolve(c.Request.Context(), session.Visit{
			UserID:     auth.UserID(c),
			DeviceType: device.Classify(ua),
			UserAgent:  ua,
			IPAddress:  c.ClientIP(),
		})
		c.JSON(http.StatusOK, models.SessionResolveResponse{SessionID: id})
	})

	r.POST("/sessions/:id/user", func(c *gin.Context) {
		var req models.AttachUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}
		if req.UserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
			return
		}

		resolver.AttachUser(c.Request.Context(), c.Param("id"), req.UserID)
		c.Status(http.StatusNoContent)
	})
}

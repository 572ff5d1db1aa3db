package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kitchen48/telemetry-service/internal/auth"
	"github.com/kitchen48/telemetry-service/internal/models"
	"github.com/kitchen48/telemetry-service/internal/telemetry"
)

// Producer is the telemetry entry point the track endpoint enqueues into.
type Producer interface {
	Track(in telemetry.TrackInput)
}

// RegisterTrackRoutes registers the ingestion-path endpoint.
//
// POST /track
// - Requires X-API-Key (client app context)
// - Fire-and-forget: 202 means accepted into the in-memory queue, not
//   persisted. Persistence is best-effort.
func RegisterTrackRoutes(r gin.IRoutes, producer Producer) {
	r.POST("/track", func(c *gin.Context) {
		var req models.TrackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}

		if req.EventType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event_type required"})
			return
		}

		producer.Track(telemetry.TrackInput{
			EventType:  req.EventType,
			ClientApp:  auth.ClientApp(c),
			UserID:     auth.UserID(c),
			SessionID:  req.SessionID,
			EntityType: req.EntityType,
			EntityID:   req.EntityID,
			Metadata:   req.Metadata,
			UserAgent:  c.Request.UserAgent(),
		})

		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	})
}

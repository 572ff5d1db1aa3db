package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kitchen48/telemetry-service/internal/models"
)

// EventCounter serves the aggregate read path for the admin UI.
type EventCounter interface {
	CountEvents(ctx context.Context, eventType string, from, to time.Time) (int64, error)
}

// parseRFC3339 parses an RFC3339 timestamp and normalizes it to UTC.
func parseRFC3339(ts string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// RegisterStatsRoutes registers the serving-path endpoint.
//
// GET /stats?event_type=...&from=...&to=...
// - Requires X-API-Key
// - Returns the event count for the window [from,to)
func RegisterStatsRoutes(r gin.IRoutes, counter EventCounter) {
	r.GET("/stats", func(c *gin.Context) {
		eventType := c.Query("event_type")
		fromStr := c.Query("from")
		toStr := c.Query("to")

		if eventType == "" || fromStr == "" || toStr == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event_type, from, to are required"})
			return
		}

		from, err := parseRFC3339(fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		to, err := parseRFC3339(toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}

		// Validate window to avoid confusing results.
		if !from.Before(to) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be < to"})
			return
		}

		count, err := counter.CountEvents(c.Request.Context(), eventType, from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}

		c.JSON(http.StatusOK, models.StatsResponse{
			EventType: eventType,
			Count:     count,
		})
	})
}

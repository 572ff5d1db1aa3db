package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Gin context keys for the authenticated caller.
const (
	clientAppCtxKey = "client_app"
	userIDCtxKey    = "user_id"
)

// APIKeyMiddleware maps X-API-Key → calling app (web frontend, admin UI,
// native apps). The upstream app authenticates end users itself and forwards
// the principal as X-User-ID; this service only correlates, so the header is
// trusted once the app key checks out.
func APIKeyMiddleware(keys map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader("X-API-Key"))
		app, ok := keys[apiKey]
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(clientAppCtxKey, app)
		if userID := strings.TrimSpace(c.GetHeader("X-User-ID")); userID != "" {
			c.Set(userIDCtxKey, userID)
		}
		c.Next()
	}
}

// ClientApp returns the authenticated calling app from the request context.
func ClientApp(c *gin.Context) string {
	v, _ := c.Get(clientAppCtxKey)
	s, _ := v.(string)
	return s
}

// UserID returns the acting end user, or "" for anonymous traffic.
func UserID(c *gin.Context) string {
	v, _ := c.Get(userIDCtxKey)
	s, _ := v.(string)
	return s
}

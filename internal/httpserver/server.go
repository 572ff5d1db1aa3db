package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kitchen48/telemetry-service/internal/auth"
	"github.com/kitchen48/telemetry-service/internal/config"
	"github.com/kitchen48/telemetry-service/internal/handlers"
	"github.com/kitchen48/telemetry-service/internal/session"
	"github.com/kitchen48/telemetry-service/internal/store"
	"github.com/kitchen48/telemetry-service/internal/telemetry"
)

// NewRouter wires public endpoints and authenticated APIs.
// Public: /health, /ready, /metrics
// Authenticated: /track, /sessions/*, /stats
func NewRouter(
	cfg config.Config,
	st *store.PostgresStore,
	tracker *telemetry.Tracker,
	resolver *session.Resolver,
	registry *prometheus.Registry,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the DB dependency is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Prometheus counters, including every fault this service swallows.
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Auth group enforces client-app context via X-API-Key.
	authGroup := r.Group("/")
	authGroup.Use(auth.APIKeyMiddleware(cfg.APIKeys))

	handlers.RegisterTrackRoutes(authGroup, tracker)
	handlers.RegisterSessionRoutes(authGroup, resolver)
	handlers.RegisterStatsRoutes(authGroup, st)

	return r
}

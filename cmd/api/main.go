package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"

	"github.com/kitchen48/telemetry-service/internal/config"
	"github.com/kitchen48/telemetry-service/internal/httpserver"
	"github.com/kitchen48/telemetry-service/internal/session"
	"github.com/kitchen48/telemetry-service/internal/store"
	"github.com/kitchen48/telemetry-service/internal/telemetry"
)

// main boots the service: config → DB → schema → tracker/resolver → HTTP
// server, then drains the tracker on SIGINT/SIGTERM before exiting.
func main() {
	logger := slog.Make(sloghuman.Sink(os.Stderr)).Leveled(slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal(ctx, "load config", slog.Error(err))
	}

	// Connect with backoff so compose-style startup ordering doesn't kill
	// the service before Postgres accepts connections.
	var db *store.PostgresStore
	connect := func() error {
		var err error
		db, err = store.NewPostgresStore(ctx, cfg.DBURL)
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(connect, bo); err != nil {
		logger.Fatal(ctx, "connect database", slog.Error(err))
	}
	defer db.Close()

	// Ensure required tables/indexes exist so `docker compose up --build`
	// is enough.
	if err := db.EnsureSchema(ctx); err != nil {
		logger.Fatal(ctx, "ensure schema", slog.Error(err))
	}

	registry := prometheus.NewRegistry()

	tracker := telemetry.New(telemetry.Options{
		Store:          db,
		Logger:         logger,
		Metrics:        telemetry.NewMetrics(registry),
		FlushInterval:  cfg.FlushInterval,
		FlushThreshold: cfg.FlushThreshold,
	})

	resolver := session.NewResolver(session.Options{
		Store:      db,
		Logger:     logger,
		Registerer: registry,
	})

	router := httpserver.NewRouter(cfg, db, tracker, resolver, registry)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		logger.Info(ctx, "server started", slog.F("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "serve", slog.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info(ctx, "shutting down")

	// Stop accepting requests first so no new events arrive mid-drain,
	// then flush whatever the tracker is still holding.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "http shutdown", slog.Error(err))
	}
	tracker.Close()
}

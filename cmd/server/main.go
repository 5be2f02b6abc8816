package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lotusmap/backend/internal/app"
	"github.com/lotusmap/backend/internal/config"
	"github.com/lotusmap/backend/internal/handlers"
	"github.com/lotusmap/backend/internal/jobs"
	"github.com/lotusmap/backend/internal/services"
)

const (
	shutdownTimeout = 15 * time.Second
	watchRetryDelay = 10 * time.Second
)

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("could not initialize application", "error", err.Error())
	}

	if cfg.SeedCenters {
		if _, err := a.Centers.SeedDefaults(ctx); err != nil {
			log.Error("could not seed centers", "error", err.Error())
		}
	}

	if cfg.WatchChanges {
		go watchProfiles(ctx, a)
	}

	scheduler := jobs.NewScheduler(log)
	if cfg.AnalyticsSchedule != "" {
		if err := scheduler.AddSnapshot(cfg.AnalyticsSchedule, a.Analytics); err != nil {
			log.Error("could not schedule analytics", "error", err.Error())
		}
	}
	scheduler.Start()

	router := handlers.NewRouter(handlers.RouterConfig{
		Auth:        a.Auth,
		CORSOrigins: cfg.CORSOrigins,
		Profiles:    handlers.NewProfileHandler(a.Directory, a.Centers, log),
		Centers:     handlers.NewCenterHandler(a.Centers, log),
		Prayers:     handlers.NewPrayerHandler(a.Prayers, log),
		Moments:     handlers.NewMomentHandler(a.Moments, log),
		Admin:       handlers.NewAdminHandler(a.AdminAuth, a.Directory, a.Analytics, log),
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("LotusMap API server starting", "addr", cfg.ServerAddress, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed to start", "error", err.Error())
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err.Error())
	}
	scheduler.Stop(shutdownCtx)
	a.Close(shutdownCtx)
}

// watchProfiles keeps the profile cache coherent with backend writes,
// reconnecting after stream failures.
func watchProfiles(ctx context.Context, a *app.App) {
	for {
		err := a.Directory.WatchChanges(ctx)
		switch {
		case err == nil || ctx.Err() != nil:
			return
		case errors.Is(err, services.ErrUnsupported):
			a.Log.Info("store has no change feed, relying on cache TTL")
			return
		}
		a.Log.Warning("profile change watch stopped, retrying", "error", err.Error())

		select {
		case <-ctx.Done():
			return
		case <-time.After(watchRetryDelay):
		}
	}
}

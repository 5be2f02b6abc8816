// Command analytics-worker records statistics snapshots outside the API
// server. It runs the cron schedule itself and also accepts POST /run so an
// external scheduler can trigger a snapshot.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/lotusmap/backend/internal/app"
	"github.com/lotusmap/backend/internal/config"
	"github.com/lotusmap/backend/internal/jobs"
)

const jobName = "analytics-snapshot"

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg)
	addr := ":" + getEnv("PORT", "8081")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("could not initialize application", "error", err.Error())
	}

	scheduler := jobs.NewScheduler(log)
	if cfg.AnalyticsSchedule != "" {
		if err := scheduler.AddSnapshot(cfg.AnalyticsSchedule, a.Analytics); err != nil {
			log.Fatal("could not schedule analytics", "error", err.Error())
		}
	}
	scheduler.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/run", runHandler(scheduler, a.Analytics, log))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info("analytics-worker listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("worker failed to start", "error", err.Error())
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	scheduler.Stop(shutdownCtx)
	a.Close(shutdownCtx)
}

// runHandler takes a snapshot on demand. A failure returns 500 so the
// caller retries.
func runHandler(s *jobs.Scheduler, snap jobs.Snapshotter, log logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			log.Warning("[worker] rejected non-POST", "method", r.Method)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var result any
		err := s.Run(r.Context(), jobName, func(ctx context.Context) error {
			v, err := snap.Snapshot(ctx)
			result = v
			return err
		})
		if err != nil {
			http.Error(w, "snapshot failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	})
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

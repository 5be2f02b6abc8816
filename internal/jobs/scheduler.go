// Package jobs runs periodic background work on a cron schedule.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"
	cron "github.com/robfig/cron/v3"

	"github.com/lotusmap/backend/internal/models"
)

// jobTimeout bounds a single run.
const jobTimeout = 2 * time.Minute

// Snapshotter records a statistics snapshot.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*models.AnalyticsSnapshot, error)
}

// Func is a unit of scheduled work.
type Func func(ctx context.Context) error

// Scheduler wraps robfig/cron. Runs are in UTC and a job never overlaps
// with itself.
type Scheduler struct {
	cron *cron.Cron
	log  logging.Logger

	mu   sync.Mutex
	ids  map[string]cron.EntryID
	runs map[string]int
}

func NewScheduler(log logging.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLocation(time.UTC)),
		log:  log,
		ids:  make(map[string]cron.EntryID),
		runs: make(map[string]int),
	}
}

// Add installs fn under name with a standard five-field cron spec.
// Adding a name twice replaces the earlier job.
func (s *Scheduler) Add(name, spec string, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.ids[name]; ok {
		s.cron.Remove(id)
		delete(s.ids, name)
	}

	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		s.Run(context.Background(), name, fn)
	}))
	id, err := s.cron.AddJob(spec, job)
	if err != nil {
		return errors.Wrapf(err, "invalid schedule %q for job %s", spec, name)
	}
	s.ids[name] = id
	s.log.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

// AddSnapshot schedules the daily analytics snapshot.
func (s *Scheduler) AddSnapshot(spec string, snap Snapshotter) error {
	return s.Add("analytics-snapshot", spec, func(ctx context.Context) error {
		_, err := snap.Snapshot(ctx)
		return err
	})
}

// Run executes fn once now, logging the outcome.
func (s *Scheduler) Run(ctx context.Context, name string, fn Func) error {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)

	s.mu.Lock()
	s.runs[name]++
	s.mu.Unlock()

	if err != nil {
		s.log.Error("job failed", "job", name, "error", err.Error())
		return err
	}
	s.log.Info("job finished", "job", name, "took", time.Since(start).String())
	return nil
}

// Runs reports how many times the named job has run.
func (s *Scheduler) Runs(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[name]
}

// Jobs returns the names of installed jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.ids))
	for name := range s.ids {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warning("stopped before running jobs finished")
	}
}

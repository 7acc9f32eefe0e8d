package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job schedules. The rate-limit sweep interval must track ws.SweepInterval.
const (
	ReaperSchedule    = "@every 5m"
	SweeperSchedule   = "@daily"
	RateSweepSchedule = "@every 60s"
)

// Scheduler owns the process's periodic timers. Jobs are registered once at
// startup; Stop halts scheduling and waits for in-flight runs, and is called
// during shutdown before connections are closed.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
	}
}

// Add registers a named job with a cron spec (descriptors like "@every 5m"
// and "@daily" included). Job errors are logged and the schedule keeps
// running; the next cycle retries naturally.
func (s *Scheduler) Add(name, spec string, run func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := run(context.Background()); err != nil {
			s.logger.Error("job failed", "job", name, "error", err)
			return
		}
		s.logger.Debug("job finished", "job", name, "duration_ms", time.Since(start).Milliseconds())
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Start begins running scheduled jobs in their own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and blocks until in-flight jobs complete.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Package jobs contains the periodic consistency jobs and the cron scheduler
// that drives them. Each job runs in sequential batches; a store error aborts
// the run and surfaces to the scheduler, while batches already committed stay
// committed. Re-running finds the same or a smaller backlog, so retries on the
// next cycle are safe.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seantiz/argus/internal/cache"
	"github.com/seantiz/argus/internal/model"
	"github.com/seantiz/argus/internal/ws"
)

const (
	// StaleTimeout is how long a running trace may go without an update
	// before the reaper force-fails it.
	StaleTimeout = time.Hour

	reaperBatchSize = 500

	// maxBatchesPerRun caps one run of a job. The jobs re-issue the same
	// filter query per batch instead of keeping a cursor, so a writer that
	// outpaces the drain could otherwise keep a run alive indefinitely.
	// Whatever is left over is picked up by the next scheduled run.
	maxBatchesPerRun = 1000
)

// Broadcaster is the fan-out surface the jobs need from the connection registry.
type Broadcaster interface {
	Broadcast(evt ws.Event, opts ws.BroadcastOpts)
}

// Invalidator is the cache surface the jobs need.
type Invalidator interface {
	DeleteByPattern(ctx context.Context, pattern string)
}

// ReaperStore is the persistence surface of the reaper.
type ReaperStore interface {
	FindStaleRunning(ctx context.Context, cutoff time.Time, limit int) ([]*model.Trace, error)
	MarkTracesFailed(ctx context.Context, ids []string, endedAt time.Time) error
}

// Reaper force-fails traces stuck in the running state, notifies live
// subscribers, and invalidates the affected trace-list cache entries.
type Reaper struct {
	store      ReaperStore
	registry   Broadcaster
	cache      Invalidator
	logger     *slog.Logger
	staleAfter time.Duration
	batchSize  int
	maxBatches int
}

// NewReaper creates a reaper with the default staleness timeout and batch size.
func NewReaper(s ReaperStore, reg Broadcaster, c Invalidator, logger *slog.Logger) *Reaper {
	return &Reaper{
		store:      s,
		registry:   reg,
		cache:      c,
		logger:     logger,
		staleAfter: StaleTimeout,
		batchSize:  reaperBatchSize,
		maxBatches: maxBatchesPerRun,
	}
}

// Run reaps stale running traces in batches until the backlog is drained,
// returning the total count reaped. One bulk update per batch; broadcasts go
// out per trace and cache invalidation once per distinct project per batch.
func (r *Reaper) Run(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-r.staleAfter)
	total := 0

	for batch := 0; ; batch++ {
		if batch >= r.maxBatches {
			r.logger.Warn("reaper hit batch cap, deferring remainder to next run",
				"batches", batch, "reaped", total)
			break
		}

		traces, err := r.store.FindStaleRunning(ctx, cutoff, r.batchSize)
		if err != nil {
			return total, fmt.Errorf("find stale traces: %w", err)
		}
		if len(traces) == 0 {
			break
		}

		now := time.Now().UTC()
		ids := make([]string, len(traces))
		for i, t := range traces {
			ids[i] = t.ID
		}
		if err := r.store.MarkTracesFailed(ctx, ids, now); err != nil {
			return total, fmt.Errorf("mark traces failed: %w", err)
		}

		projects := make(map[string]bool)
		for _, t := range traces {
			t.Status = model.StatusFailed
			t.UpdatedAt = now
			t.EndedAt = &now
			r.registry.Broadcast(ws.TraceUpdated(t), ws.BroadcastOpts{
				ProjectID: t.ProjectID,
				Channel:   ws.DefaultChannel,
			})
			projects[t.ProjectID] = true
		}
		for projectID := range projects {
			r.cache.DeleteByPattern(ctx, cache.TraceListPrefix(projectID))
		}

		total += len(traces)
		tracesReapedTotal.Add(float64(len(traces)))

		if len(traces) < r.batchSize {
			break
		}
	}

	if total > 0 {
		r.logger.Info("reaped stale traces", "count", total)
	}
	return total, nil
}

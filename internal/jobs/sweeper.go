package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seantiz/argus/internal/model"
)

const sweeperBatchSize = 1000

// SweeperStore is the persistence surface of the retention sweeper.
type SweeperStore interface {
	ListOrganizations(ctx context.Context) ([]*model.Organization, error)
	RetentionDays(ctx context.Context, tier string) (int, error)
	FindExpiredTraceIDs(ctx context.Context, projectIDs []string, cutoff time.Time, limit int) ([]string, error)
	DeleteSpansByTraceIDs(ctx context.Context, traceIDs []string) error
	DeleteTraces(ctx context.Context, ids []string) error
}

// Sweeper deletes traces (and their spans) past each tenant's retention
// horizon, in bounded batches per tenant.
type Sweeper struct {
	store      SweeperStore
	logger     *slog.Logger
	batchSize  int
	maxBatches int
}

// NewSweeper creates a sweeper with the default batch size.
func NewSweeper(s SweeperStore, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:      s,
		logger:     logger,
		batchSize:  sweeperBatchSize,
		maxBatches: maxBatchesPerRun,
	}
}

// Run sweeps every organization's projects, resolving the retention horizon
// from the plan tier. Spans are always deleted before their parent traces,
// even though the schema could be made to cascade: the ordering is treated as
// a correctness requirement, not an optimization. Returns per-organization
// and total deletion counts.
func (s *Sweeper) Run(ctx context.Context) (map[string]int, int, error) {
	orgs, err := s.store.ListOrganizations(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list organizations: %w", err)
	}

	perOrg := make(map[string]int)
	total := 0
	now := time.Now().UTC()

	for _, org := range orgs {
		if len(org.ProjectIDs) == 0 {
			continue
		}

		days, err := s.store.RetentionDays(ctx, org.PlanTier)
		if err != nil {
			return perOrg, total, fmt.Errorf("retention for tier %q: %w", org.PlanTier, err)
		}
		cutoff := now.AddDate(0, 0, -days)

		for batch := 0; ; batch++ {
			if batch >= s.maxBatches {
				s.logger.Warn("sweeper hit batch cap for organization, deferring remainder",
					"org_id", org.ID, "deleted", perOrg[org.ID])
				break
			}

			ids, err := s.store.FindExpiredTraceIDs(ctx, org.ProjectIDs, cutoff, s.batchSize)
			if err != nil {
				return perOrg, total, fmt.Errorf("find expired traces for org %s: %w", org.ID, err)
			}
			if len(ids) == 0 {
				break
			}

			// Children before parent, always.
			if err := s.store.DeleteSpansByTraceIDs(ctx, ids); err != nil {
				return perOrg, total, fmt.Errorf("delete spans for org %s: %w", org.ID, err)
			}
			if err := s.store.DeleteTraces(ctx, ids); err != nil {
				return perOrg, total, fmt.Errorf("delete traces for org %s: %w", org.ID, err)
			}

			perOrg[org.ID] += len(ids)
			total += len(ids)
			tracesSweptTotal.Add(float64(len(ids)))

			if len(ids) < s.batchSize {
				break
			}
		}
	}

	if total > 0 {
		s.logger.Info("swept expired traces", "total", total, "organizations", len(perOrg))
	}
	return perOrg, total, nil
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/argus/internal/model"
)

// DefaultRetentionDays is the retention horizon applied when a plan tier has
// no configured policy. Conservative on purpose: unknown tiers keep data
// rather than lose it early.
const DefaultRetentionDays = 30

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrInvalidTransition is returned when a trace status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store defines the persistence operations for traces, spans, and tenants.
//
// The bulk operations (MarkTracesFailed, DeleteTraces, DeleteSpansByTraceIDs)
// issue a single statement per call; the background jobs rely on that to keep
// one round trip per batch.
type Store interface {
	CreateTrace(ctx context.Context, t *model.Trace) error
	GetTrace(ctx context.Context, id string) (*model.Trace, error)
	ListTraces(ctx context.Context, projectID string, limit, offset int) ([]*model.Trace, int, error)
	UpdateTraceStatus(ctx context.Context, id, status string) error
	FindStaleRunning(ctx context.Context, cutoff time.Time, limit int) ([]*model.Trace, error)
	MarkTracesFailed(ctx context.Context, ids []string, endedAt time.Time) error
	FindExpiredTraceIDs(ctx context.Context, projectIDs []string, cutoff time.Time, limit int) ([]string, error)
	DeleteTraces(ctx context.Context, ids []string) error

	TouchTrace(ctx context.Context, id string) error

	CreateSpan(ctx context.Context, sp *model.Span) error
	ListSpans(ctx context.Context, traceID string) ([]*model.Span, error)
	DeleteSpansByTraceIDs(ctx context.Context, traceIDs []string) error

	CreateOrganization(ctx context.Context, o *model.Organization) error
	ListOrganizations(ctx context.Context) ([]*model.Organization, error)
	CreateProject(ctx context.Context, orgID, projectID, name string) error
	RetentionDays(ctx context.Context, tier string) (int, error)

	Close() error
}

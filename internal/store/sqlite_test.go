package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/seantiz/argus/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestTrace(projectID string) *model.Trace {
	now := time.Now().UTC()
	return &model.Trace{
		ID:        model.NewID(),
		ProjectID: projectID,
		Name:      "test-run",
		Status:    model.StatusRunning,
		Metadata:  []byte(`{"env":"test"}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAndGetTrace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := newTestTrace("proj-1")
	if err := s.CreateTrace(ctx, in); err != nil {
		t.Fatalf("CreateTrace() error = %v", err)
	}

	got, err := s.GetTrace(ctx, in.ID)
	if err != nil {
		t.Fatalf("GetTrace() error = %v", err)
	}
	if got.ID != in.ID {
		t.Errorf("got ID %q, want %q", got.ID, in.ID)
	}
	if got.ProjectID != "proj-1" {
		t.Errorf("got ProjectID %q, want %q", got.ProjectID, "proj-1")
	}
	if got.Status != model.StatusRunning {
		t.Errorf("got Status %q, want %q", got.Status, model.StatusRunning)
	}
	if string(got.Metadata) != `{"env":"test"}` {
		t.Errorf("got Metadata %s, want %s", got.Metadata, `{"env":"test"}`)
	}
	if got.EndedAt != nil {
		t.Errorf("got EndedAt %v, want nil", got.EndedAt)
	}
}

func TestGetTraceNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetTrace(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestListTracesPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		tr := newTestTrace("proj-1")
		tr.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		tr.UpdatedAt = tr.CreatedAt
		if err := s.CreateTrace(ctx, tr); err != nil {
			t.Fatalf("CreateTrace() error = %v", err)
		}
	}
	other := newTestTrace("proj-2")
	if err := s.CreateTrace(ctx, other); err != nil {
		t.Fatalf("CreateTrace() error = %v", err)
	}

	traces, total, err := s.ListTraces(ctx, "proj-1", 2, 0)
	if err != nil {
		t.Fatalf("ListTraces() error = %v", err)
	}
	if total != 5 {
		t.Errorf("got total %d, want 5", total)
	}
	if len(traces) != 2 {
		t.Fatalf("got %d traces, want 2", len(traces))
	}
	// Newest first.
	if !traces[0].CreatedAt.After(traces[1].CreatedAt) {
		t.Errorf("traces not ordered by created_at DESC: %v then %v",
			traces[0].CreatedAt, traces[1].CreatedAt)
	}

	rest, _, err := s.ListTraces(ctx, "proj-1", 10, 2)
	if err != nil {
		t.Fatalf("ListTraces() error = %v", err)
	}
	if len(rest) != 3 {
		t.Errorf("got %d traces at offset 2, want 3", len(rest))
	}
}

func TestUpdateTraceStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tr := newTestTrace("proj-1")
	if err := s.CreateTrace(ctx, tr); err != nil {
		t.Fatalf("CreateTrace() error = %v", err)
	}

	if err := s.UpdateTraceStatus(ctx, tr.ID, model.StatusCompleted); err != nil {
		t.Fatalf("UpdateTraceStatus() error = %v", err)
	}

	got, err := s.GetTrace(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetTrace() error = %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("got Status %q, want %q", got.Status, model.StatusCompleted)
	}
	if got.EndedAt == nil {
		t.Error("got EndedAt nil, want set on terminal transition")
	}
}

func TestUpdateTraceStatusRejectsInvalidTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tr := newTestTrace("proj-1")
	if err := s.CreateTrace(ctx, tr); err != nil {
		t.Fatalf("CreateTrace() error = %v", err)
	}
	if err := s.UpdateTraceStatus(ctx, tr.ID, model.StatusCompleted); err != nil {
		t.Fatalf("UpdateTraceStatus() error = %v", err)
	}

	err := s.UpdateTraceStatus(ctx, tr.ID, model.StatusFailed)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("got error %v, want ErrInvalidTransition", err)
	}

	got, _ := s.GetTrace(ctx, tr.ID)
	if got.Status != model.StatusCompleted {
		t.Errorf("terminal status changed: got %q, want %q", got.Status, model.StatusCompleted)
	}
}

func TestUpdateTraceStatusNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateTraceStatus(context.Background(), "missing", model.StatusCompleted)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestFindStaleRunningAndMarkFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale := newTestTrace("proj-1")
	stale.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	fresh := newTestTrace("proj-1")
	done := newTestTrace("proj-1")
	done.Status = model.StatusCompleted
	done.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)

	for _, tr := range []*model.Trace{stale, fresh, done} {
		if err := s.CreateTrace(ctx, tr); err != nil {
			t.Fatalf("CreateTrace() error = %v", err)
		}
	}

	cutoff := time.Now().UTC().Add(-time.Hour)
	found, err := s.FindStaleRunning(ctx, cutoff, 100)
	if err != nil {
		t.Fatalf("FindStaleRunning() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("got %d stale traces, want 1", len(found))
	}
	if found[0].ID != stale.ID {
		t.Errorf("got stale trace %q, want %q", found[0].ID, stale.ID)
	}

	endedAt := time.Now().UTC()
	if err := s.MarkTracesFailed(ctx, []string{stale.ID}, endedAt); err != nil {
		t.Fatalf("MarkTracesFailed() error = %v", err)
	}

	got, err := s.GetTrace(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetTrace() error = %v", err)
	}
	if got.Status != model.StatusFailed {
		t.Errorf("got Status %q, want %q", got.Status, model.StatusFailed)
	}
	if got.EndedAt == nil {
		t.Error("got EndedAt nil, want set")
	}

	// Marked traces no longer match the stale query.
	again, err := s.FindStaleRunning(ctx, time.Now().UTC(), 100)
	if err != nil {
		t.Fatalf("FindStaleRunning() error = %v", err)
	}
	if len(again) != 0 {
		t.Errorf("got %d stale traces after mark, want 0", len(again))
	}
}

func TestTouchTrace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tr := newTestTrace("proj-1")
	tr.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	if err := s.CreateTrace(ctx, tr); err != nil {
		t.Fatalf("CreateTrace() error = %v", err)
	}

	if err := s.TouchTrace(ctx, tr.ID); err != nil {
		t.Fatalf("TouchTrace() error = %v", err)
	}

	got, err := s.GetTrace(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetTrace() error = %v", err)
	}
	if !got.UpdatedAt.After(tr.UpdatedAt) {
		t.Errorf("UpdatedAt not advanced: got %v, had %v", got.UpdatedAt, tr.UpdatedAt)
	}

	if err := s.TouchTrace(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestExpiredTraceDeletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := newTestTrace("proj-1")
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	recent := newTestTrace("proj-1")
	otherProject := newTestTrace("proj-9")
	otherProject.CreatedAt = old.CreatedAt

	for _, tr := range []*model.Trace{old, recent, otherProject} {
		if err := s.CreateTrace(ctx, tr); err != nil {
			t.Fatalf("CreateTrace() error = %v", err)
		}
	}
	sp := &model.Span{
		ID: model.NewID(), TraceID: old.ID, Name: "step",
		Status: model.StatusCompleted, CreatedAt: old.CreatedAt,
	}
	if err := s.CreateSpan(ctx, sp); err != nil {
		t.Fatalf("CreateSpan() error = %v", err)
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	ids, err := s.FindExpiredTraceIDs(ctx, []string{"proj-1"}, cutoff, 100)
	if err != nil {
		t.Fatalf("FindExpiredTraceIDs() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != old.ID {
		t.Fatalf("got expired IDs %v, want [%s]", ids, old.ID)
	}

	if err := s.DeleteSpansByTraceIDs(ctx, ids); err != nil {
		t.Fatalf("DeleteSpansByTraceIDs() error = %v", err)
	}
	if err := s.DeleteTraces(ctx, ids); err != nil {
		t.Fatalf("DeleteTraces() error = %v", err)
	}

	if _, err := s.GetTrace(ctx, old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("got error %v after delete, want ErrNotFound", err)
	}
	spans, err := s.ListSpans(ctx, old.ID)
	if err != nil {
		t.Fatalf("ListSpans() error = %v", err)
	}
	if len(spans) != 0 {
		t.Errorf("got %d spans after delete, want 0", len(spans))
	}
	if _, err := s.GetTrace(ctx, recent.ID); err != nil {
		t.Errorf("recent trace deleted: %v", err)
	}
}

func TestSpans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tr := newTestTrace("proj-1")
	if err := s.CreateTrace(ctx, tr); err != nil {
		t.Fatalf("CreateTrace() error = %v", err)
	}

	base := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		sp := &model.Span{
			ID:        model.NewID(),
			TraceID:   tr.ID,
			Name:      fmt.Sprintf("step-%d", i),
			Status:    model.StatusRunning,
			Input:     []byte(`{"n":1}`),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.CreateSpan(ctx, sp); err != nil {
			t.Fatalf("CreateSpan() error = %v", err)
		}
	}

	spans, err := s.ListSpans(ctx, tr.ID)
	if err != nil {
		t.Fatalf("ListSpans() error = %v", err)
	}
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}
	for i, sp := range spans {
		want := fmt.Sprintf("step-%d", i)
		if sp.Name != want {
			t.Errorf("span %d: got Name %q, want %q", i, sp.Name, want)
		}
	}
}

func TestOrganizationsAndProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := &model.Organization{
		ID:        model.NewID(),
		Name:      "acme",
		PlanTier:  model.TierPro,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateOrganization(ctx, o); err != nil {
		t.Fatalf("CreateOrganization() error = %v", err)
	}
	if err := s.CreateProject(ctx, o.ID, "proj-1", "widgets"); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if err := s.CreateProject(ctx, o.ID, "proj-2", "gadgets"); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	if err := s.CreateProject(ctx, "missing-org", "proj-3", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got error %v for missing org, want ErrNotFound", err)
	}

	orgs, err := s.ListOrganizations(ctx)
	if err != nil {
		t.Fatalf("ListOrganizations() error = %v", err)
	}
	if len(orgs) != 1 {
		t.Fatalf("got %d organizations, want 1", len(orgs))
	}
	if orgs[0].PlanTier != model.TierPro {
		t.Errorf("got PlanTier %q, want %q", orgs[0].PlanTier, model.TierPro)
	}
	if len(orgs[0].ProjectIDs) != 2 {
		t.Errorf("got %d project IDs, want 2", len(orgs[0].ProjectIDs))
	}
}

func TestRetentionDays(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		tier string
		want int
	}{
		{model.TierFree, 15},
		{model.TierPro, 90},
		{model.TierEnterprise, 365},
		{"legacy-tier", DefaultRetentionDays},
	}
	for _, tt := range tests {
		got, err := s.RetentionDays(ctx, tt.tier)
		if err != nil {
			t.Fatalf("RetentionDays(%q) error = %v", tt.tier, err)
		}
		if got != tt.want {
			t.Errorf("RetentionDays(%q) = %d, want %d", tt.tier, got, tt.want)
		}
	}
}

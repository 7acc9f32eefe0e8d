package model

import (
	"encoding/json"
	"time"
)

// Trace status constants. Running is the only non-terminal status.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Plan tier constants. Tiers without a retention policy row fall back to
// store.DefaultRetentionDays.
const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// validTransitions maps each status to the set of statuses it may transition to.
// Terminal statuses have no entry: once a trace ends, its status is settled.
var validTransitions = map[string]map[string]bool{
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether the given status is an end state.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

// Trace is a top-level execution record for one agent run.
type Trace struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Name      string          `json:"name"`
	Status    string          `json:"status"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
}

// Span is one step within a trace's lifecycle.
type Span struct {
	ID        string          `json:"id"`
	TraceID   string          `json:"trace_id"`
	Name      string          `json:"name"`
	Status    string          `json:"status"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
}

// Organization is a tenant: the ownership boundary for projects, retention,
// and broadcast scoping.
type Organization struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	PlanTier   string    `json:"plan_tier"`
	ProjectIDs []string  `json:"project_ids"`
	CreatedAt  time.Time `json:"created_at"`
}

// Package types defines the domain types shared across the pipeline stages.
package types

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle status of a pipeline run.
type RunStatus string

// Run statuses. At most one run may be RUNNING at any instant; the store
// enforces this with an atomic conditional insert.
const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunPartial   RunStatus = "PARTIAL"
)

// RunCounts aggregates per-stage progress counters for a run.
type RunCounts struct {
	SourcesResearched int `json:"sources_researched"`
	TasksPlanned      int `json:"tasks_planned"`
	ArticlesWritten   int `json:"articles_written"`
	ArticlesApproved  int `json:"articles_approved"`
	ArticlesPublished int `json:"articles_published"`
}

// RunError is one structured entry in a run's error log.
type RunError struct {
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	ItemID  string    `json:"item_id,omitempty"`
	At      time.Time `json:"at"`
}

// Run is one end-to-end execution of the pipeline.
type Run struct {
	ID              uuid.UUID  `json:"id"`
	Status          RunStatus  `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	TriggeredBy     string     `json:"triggered_by"`
	Counts          RunCounts  `json:"counts"`
	TotalTokensUsed int        `json:"total_tokens_used"`
	TotalCostUSD    float64    `json:"total_cost_usd"`
	ErrorLog        []RunError `json:"error_log,omitempty"`
}

// Terminal reports whether the run has reached a final status.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunPartial
}

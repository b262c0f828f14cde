package workflow

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a workflow run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run identifies one end-to-end query execution. SessionID scopes every
// event the run publishes; Attempt counts full restarts of the step
// sequence. Only the AttemptController mutates a Run after creation.
type Run struct {
	ID        string
	SessionID string
	UserID    string
	Query     string
	Attempt   int
	Status    Status
	StartedAt time.Time
}

// NewRun creates a pending run for a submitted query.
func NewRun(sessionID, userID, query string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Query:     query,
		Status:    StatusPending,
		StartedAt: time.Now(),
	}
}

// Scope keys step memoization to one attempt of one run. A new attempt
// produces a new scope, so no result from a failed attempt leaks forward.
type Scope struct {
	RunID   string
	Attempt int
}

// Scope returns the memoization scope for the run's current attempt.
func (r *Run) Scope() Scope {
	return Scope{RunID: r.ID, Attempt: r.Attempt}
}

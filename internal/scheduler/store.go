package scheduler

import (
	"context"
	"errors"
	"time"
)

// State is the persisted lifecycle state of a scheduled job
type State string

const (
	StatePending    State = "PENDING"
	StateDispatched State = "DISPATCHED"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
	StateCancelled  State = "CANCELLED"
)

// Terminal reports whether no further transition can happen from s
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

var (
	// ErrEntryNotFound is returned when no row exists for a job id
	ErrEntryNotFound = errors.New("scheduled job not found")

	// ErrAlreadyClaimed is returned when a job is no longer pending
	ErrAlreadyClaimed = errors.New("scheduled job already claimed")

	// ErrDuplicateEntry is returned when a non-terminal row already exists for a job id
	ErrDuplicateEntry = errors.New("scheduled job already exists")
)

// Entry is one persisted job
type Entry struct {
	JobID        string    `db:"job_id"`
	Payload      []byte    `db:"payload"`
	State        State     `db:"state"`
	Outcome      string    `db:"outcome"` // upload result once COMPLETED
	ErrorMessage string    `db:"error_message"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Result is what Finish records for a dispatched job
type Result struct {
	State        State
	Outcome      string
	ErrorMessage string
}

// Store persists scheduled jobs across process restarts
type Store interface {
	// Enqueue stores a PENDING row. A terminal row with the same id is replaced.
	Enqueue(ctx context.Context, jobID string, payload []byte) error
	// Get returns the row for a job id in any state
	Get(ctx context.Context, jobID string) (Entry, error)
	// Claim moves a PENDING row to DISPATCHED and returns it
	Claim(ctx context.Context, jobID string) (Entry, error)
	// Finish moves a DISPATCHED row to a terminal state
	Finish(ctx context.Context, jobID string, result Result) error
	// Cancel moves a PENDING row to CANCELLED and reports whether it did
	Cancel(ctx context.Context, jobID string) (bool, error)
	// CancelPending cancels every PENDING row
	CancelPending(ctx context.Context) (int, error)
	// Requeue moves every DISPATCHED row back to PENDING
	Requeue(ctx context.Context) (int, error)
	// Pending returns the ids of PENDING rows, oldest first
	Pending(ctx context.Context) ([]string, error)
	// List returns every row that is not COMPLETED
	List(ctx context.Context) ([]Entry, error)
	// Prune deletes terminal rows last updated before the cutoff
	Prune(ctx context.Context, before time.Time) (int, error)
}

// Package transport defines the boundary with the component that performs the
// network exchange for an upload job, and an HTTP implementation of it.
package transport

import (
	"context"

	"github.com/cuongbtq/bg-uploader/internal/upload/domain"
)

// EventType identifies a lifecycle event emitted while a job executes
type EventType int

const (
	// EventProgress reports bytes sent so far
	EventProgress EventType = iota
	// EventFailed reports that the job ended in error; it is always followed by EventCompleted
	EventFailed
	// EventCompleted is the last event for a job, whatever the outcome
	EventCompleted
)

func (t EventType) String() string {
	switch t {
	case EventProgress:
		return "progress"
	case EventFailed:
		return "failed"
	case EventCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result carried by EventCompleted
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Event is a typed lifecycle message sent by an Executor
type Event struct {
	Type       EventType
	JobID      string
	Uploaded   int64
	Total      int64
	StatusCode int
	Err        error
	Outcome    Outcome
}

// Executor performs the network operation for one job.
//
// Execute blocks until the job ends. It sends zero or more EventProgress,
// at most one EventFailed, and exactly one EventCompleted as the final event.
// Cancellation of ctx is honored on a best-effort basis. Execute never closes
// the events channel.
type Executor interface {
	Execute(ctx context.Context, job domain.Job, events chan<- Event)
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, job domain.Job, events chan<- Event)

// Execute calls f
func (f ExecutorFunc) Execute(ctx context.Context, job domain.Job, events chan<- Event) {
	f(ctx, job, events)
}

// Progress, Failed and Completed build events for a job
func Progress(jobID string, uploaded, total int64) Event {
	return Event{Type: EventProgress, JobID: jobID, Uploaded: uploaded, Total: total}
}

func Failed(jobID string, err error) Event {
	return Event{Type: EventFailed, JobID: jobID, Err: err}
}

func Completed(jobID string, outcome Outcome) Event {
	return Event{Type: EventCompleted, JobID: jobID, Outcome: outcome}
}

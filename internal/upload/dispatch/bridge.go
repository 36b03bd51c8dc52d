package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/bg-uploader/internal/upload/domain"
	"github.com/cuongbtq/bg-uploader/internal/upload/registry"
	"github.com/cuongbtq/bg-uploader/internal/upload/transport"
)

// Listener observes job outcomes relayed by the bridge
type Listener interface {
	JobFailed(ctx context.Context, id string, err error)
	JobCompleted(ctx context.Context, id string, outcome transport.Outcome)
}

// Bridge relays executor events into the registry. A failure is recorded
// against the entry; only terminal completion removes it.
type Bridge struct {
	registry *registry.Registry
	logger   *slog.Logger

	mu        sync.RWMutex
	listeners []Listener
}

// NewBridge creates a bridge writing into reg
func NewBridge(reg *registry.Registry, logger *slog.Logger) *Bridge {
	return &Bridge{
		registry: reg,
		logger:   logger,
	}
}

// AddListener registers l for every subsequent outcome
func (b *Bridge) AddListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// OnFailure records that the job ended in error
func (b *Bridge) OnFailure(ctx context.Context, id string, err error) {
	if !b.registry.MarkFailed(id, err) {
		b.logger.Warn("Failure reported for unknown job", slog.String("job_id", id))
	}
	b.logger.Error("Upload job failed", slog.String("job_id", id), slog.Any("error", err))

	for _, l := range b.snapshot() {
		l.JobFailed(ctx, id, err)
	}
}

// OnTerminalCompletion removes the job from the registry
func (b *Bridge) OnTerminalCompletion(ctx context.Context, id string, outcome transport.Outcome) {
	for _, l := range b.snapshot() {
		l.JobCompleted(ctx, id, outcome)
	}

	b.registry.Unregister(id)
	b.logger.Info("Upload job finished",
		slog.String("job_id", id),
		slog.String("outcome", string(outcome)),
	)
}

// Consume reads events for one job until the channel is closed. If the
// channel closes before a terminal event, the job is finalized as failed.
func (b *Bridge) Consume(ctx context.Context, id string, events <-chan transport.Event) {
	var failed, finished bool

	for ev := range events {
		if finished {
			b.logger.Warn("Event received after terminal completion",
				slog.String("job_id", id),
				slog.String("event", ev.Type.String()),
			)
			continue
		}

		switch ev.Type {
		case transport.EventProgress:
			b.logger.Debug("Upload progress",
				slog.String("job_id", id),
				slog.Int64("uploaded", ev.Uploaded),
				slog.Int64("total", ev.Total),
			)
		case transport.EventFailed:
			if failed {
				b.logger.Warn("Duplicate failure event ignored", slog.String("job_id", id))
				continue
			}
			failed = true
			b.OnFailure(ctx, id, ev.Err)
		case transport.EventCompleted:
			finished = true
			b.OnTerminalCompletion(ctx, id, ev.Outcome)
		}
	}

	if finished {
		return
	}

	b.logger.Error("Executor stopped without terminal completion", slog.String("job_id", id))
	if !failed {
		b.OnFailure(ctx, id, fmt.Errorf("%w: executor stopped without completing", domain.ErrTransport))
	}
	b.OnTerminalCompletion(ctx, id, transport.OutcomeFailed)
}

func (b *Bridge) snapshot() []Listener {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Listener(nil), b.listeners...)
}

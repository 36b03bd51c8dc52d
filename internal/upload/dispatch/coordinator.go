// Package dispatch accepts upload jobs, tracks them in the registry and runs
// them on the worker pool.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/bg-uploader/internal/upload/domain"
	"github.com/cuongbtq/bg-uploader/internal/upload/pool"
	"github.com/cuongbtq/bg-uploader/internal/upload/registry"
)

// TaskPool is the part of the worker pool the coordinator needs
type TaskPool interface {
	Submit(task pool.Task) error
}

// Coordinator dispatches jobs at most once per id
type Coordinator struct {
	registry *registry.Registry
	pool     TaskPool
	kinds    *Kinds
	bridge   *Bridge
	logger   *slog.Logger
}

// NewCoordinator wires a coordinator
func NewCoordinator(reg *registry.Registry, p TaskPool, kinds *Kinds, bridge *Bridge, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		registry: reg,
		pool:     p,
		kinds:    kinds,
		bridge:   bridge,
		logger:   logger,
	}
}

// Submit registers the job and queues it for execution. It returns the job id
// as soon as the job is queued; the outcome is reported through the bridge.
// ctx only carries values: cancelling it does not stop the job.
func (c *Coordinator) Submit(ctx context.Context, job domain.Job, notification domain.NotificationConfig) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}

	slot := &placeholder{}
	if !c.registry.Register(job.ID, slot) {
		c.logger.Warn("Rejected duplicate upload job", slog.String("job_id", job.ID))
		return "", fmt.Errorf("%w: %s", domain.ErrDuplicateJobID, job.ID)
	}

	factory, ok := c.kinds.Resolve(job.Kind)
	if !ok {
		c.registry.Unregister(job.ID)
		return "", fmt.Errorf("%w: unsupported request kind %q", domain.ErrInstantiation, job.Kind)
	}

	executor, err := factory(job, notification)
	if err != nil {
		c.registry.Unregister(job.ID)
		return "", fmt.Errorf("%w: %v", domain.ErrInstantiation, err)
	}

	exec := newExecution(context.WithoutCancel(ctx), job, executor, c.bridge, c.logger)
	if !c.registry.Swap(job.ID, slot, exec) {
		exec.Cancel()
		return "", fmt.Errorf("%w: registry entry for %s was removed during dispatch", domain.ErrInstantiation, job.ID)
	}
	slot.bind(exec)

	if err := c.pool.Submit(exec.run); err != nil {
		exec.Cancel()
		c.registry.Unregister(job.ID)
		return "", fmt.Errorf("failed to queue job %s: %w", job.ID, err)
	}

	c.logger.Info("Upload job dispatched",
		slog.String("job_id", job.ID),
		slog.String("kind", string(job.Kind)),
		slog.Int("files", len(job.Files)),
	)

	return job.ID, nil
}

// Cancel requests cancellation of a registered job and reports whether the
// id was registered
func (c *Coordinator) Cancel(id string) bool {
	return c.registry.Cancel(id)
}

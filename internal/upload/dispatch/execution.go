package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/cuongbtq/bg-uploader/internal/upload/domain"
	"github.com/cuongbtq/bg-uploader/internal/upload/transport"
)

// eventBuffer bounds how far the executor may run ahead of the bridge
const eventBuffer = 16

// execution is the running unit for one job. It is the handle stored in the
// registry once dispatch completes.
type execution struct {
	job      domain.Job
	executor transport.Executor
	bridge   *Bridge
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func newExecution(ctx context.Context, job domain.Job, executor transport.Executor, bridge *Bridge, logger *slog.Logger) *execution {
	ctx, cancel := context.WithCancel(ctx)
	return &execution{
		job:      job,
		executor: executor,
		bridge:   bridge,
		logger:   logger.With(slog.String("job_id", job.ID)),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Cancel asks the executor to stop; the job reports its own terminal event
func (e *execution) Cancel() {
	e.cancel()
}

// run executes the job on the calling worker and blocks until the bridge has
// seen every event
func (e *execution) run() {
	events := make(chan transport.Event, eventBuffer)
	done := make(chan struct{})

	go func() {
		defer close(done)
		e.bridge.Consume(context.WithoutCancel(e.ctx), e.job.ID, events)
	}()

	defer func() {
		close(events)
		<-done
		e.cancel()
	}()

	if e.ctx.Err() != nil {
		e.logger.Info("Upload job cancelled before it started")
		events <- transport.Completed(e.job.ID, transport.OutcomeCancelled)
		return
	}

	e.logger.Info("Upload job started", slog.String("kind", string(e.job.Kind)))
	e.execute(events)
}

func (e *execution) execute(events chan<- transport.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Upload executor panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			events <- transport.Failed(e.job.ID, fmt.Errorf("%w: executor panic: %v", domain.ErrTransport, r))
			events <- transport.Completed(e.job.ID, transport.OutcomeFailed)
		}
	}()

	e.executor.Execute(e.ctx, e.job, events)
}

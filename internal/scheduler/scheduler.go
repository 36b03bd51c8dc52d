// Package scheduler persists upload jobs and re-invokes dispatch for them,
// including after the process restarts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/bg-uploader/internal/upload/codec"
	"github.com/cuongbtq/bg-uploader/internal/upload/domain"
	"github.com/cuongbtq/bg-uploader/internal/upload/transport"
)

// finishTimeout bounds store writes made from completion callbacks
const finishTimeout = 5 * time.Second

// Dispatcher runs decoded jobs
type Dispatcher interface {
	Submit(ctx context.Context, job domain.Job, notification domain.NotificationConfig) (string, error)
	Cancel(id string) bool
}

// Config controls housekeeping of finished rows
type Config struct {
	Retention     time.Duration
	PruneInterval time.Duration
}

// Scheduler stores jobs and dispatches them when their notification arrives
type Scheduler struct {
	store    Store
	notifier Notifier
	config   Config
	logger   *slog.Logger

	mu       sync.Mutex
	failures map[string]string
	cancels  map[string]struct{} // cancel requested while DISPATCHED
	draining bool
}

// New creates a scheduler
func New(store Store, notifier Notifier, config Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		notifier: notifier,
		config:   config,
		logger:   logger,
		failures: make(map[string]string),
		cancels:  make(map[string]struct{}),
	}
}

// Schedule persists the job and notifies the consumer. If the notification
// cannot be sent the stored row is cancelled so the job does not run later
// without the caller knowing.
func (s *Scheduler) Schedule(ctx context.Context, job domain.Job, notification domain.NotificationConfig) error {
	payload, err := codec.Encode(job, notification)
	if err != nil {
		return err
	}

	if err := s.store.Enqueue(ctx, job.ID, payload); err != nil {
		return fmt.Errorf("failed to store job %s: %w", job.ID, err)
	}

	s.mu.Lock()
	delete(s.cancels, job.ID)
	s.mu.Unlock()

	if err := s.notifier.Notify(ctx, job.ID); err != nil {
		if _, cancelErr := s.store.Cancel(ctx, job.ID); cancelErr != nil {
			s.logger.Error("Failed to cancel job after notify failure",
				slog.String("job_id", job.ID),
				slog.Any("error", cancelErr),
			)
		}
		return fmt.Errorf("failed to notify job %s: %w", job.ID, err)
	}

	s.logger.Info("Upload job scheduled",
		slog.String("job_id", job.ID),
		slog.Int("payload_size", len(payload)),
	)
	return nil
}

// Run recovers unfinished jobs and consumes notifications until ctx is done
func (s *Scheduler) Run(ctx context.Context, dispatcher Dispatcher) error {
	deliveries, err := s.notifier.Deliveries(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming notifications: %w", err)
	}

	pending, err := s.requeue(ctx)
	if err != nil {
		return err
	}

	// Notify may block until the loop below consumes
	go func() {
		if err := s.notifyAll(ctx, pending); err != nil && ctx.Err() == nil {
			s.logger.Error("Failed to re-notify recovered jobs", slog.Any("error", err))
		}
	}()

	if s.config.PruneInterval > 0 && s.config.Retention > 0 {
		go s.pruneLoop(ctx)
	}

	s.logger.Info("Scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped - context canceled")
			return nil

		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("notification channel closed")
			}
			s.handle(ctx, d, dispatcher)
		}
	}
}

// Recover returns rows left DISPATCHED by a previous process to PENDING and
// re-notifies every pending row
func (s *Scheduler) Recover(ctx context.Context) error {
	pending, err := s.requeue(ctx)
	if err != nil {
		return err
	}
	return s.notifyAll(ctx, pending)
}

// requeue returns DISPATCHED rows to PENDING and loads the pending ids
func (s *Scheduler) requeue(ctx context.Context) ([]string, error) {
	requeued, err := s.store.Requeue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to requeue dispatched jobs: %w", err)
	}

	pending, err := s.store.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending jobs: %w", err)
	}

	s.logger.Info("Recovered scheduled jobs",
		slog.Int("requeued", requeued),
		slog.Int("pending", len(pending)),
	)
	return pending, nil
}

func (s *Scheduler) notifyAll(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := s.notifier.Notify(ctx, id); err != nil {
			return fmt.Errorf("failed to notify job %s: %w", id, err)
		}
	}
	return nil
}

func (s *Scheduler) handle(ctx context.Context, d Delivery, dispatcher Dispatcher) {
	log := s.logger.With(slog.String("job_id", d.JobID))

	entry, err := s.store.Claim(ctx, d.JobID)
	if err != nil {
		if errors.Is(err, ErrAlreadyClaimed) || errors.Is(err, ErrEntryNotFound) {
			log.Debug("Skipping notification for job that is not pending", slog.Any("reason", err))
			s.ack(log, d)
			return
		}
		log.Error("Failed to claim scheduled job", slog.Any("error", err))
		s.nack(log, d, true)
		return
	}

	job, notification, err := codec.Decode(entry.Payload)
	if err == nil && job.ID != d.JobID {
		err = fmt.Errorf("%w: payload belongs to job %q", domain.ErrSerialization, job.ID)
	}
	if err != nil {
		log.Error("Discarding malformed scheduled job", slog.Any("error", err))
		s.finish(ctx, d.JobID, Result{State: StateFailed, ErrorMessage: err.Error()})
		s.ack(log, d)
		return
	}

	if s.cancelRequested(d.JobID) {
		log.Info("Scheduled job cancelled before dispatch")
		s.finish(ctx, d.JobID, Result{State: StateCancelled})
		s.ack(log, d)
		return
	}

	_, err = dispatcher.Submit(ctx, job, notification)
	switch {
	case err == nil:
		log.Info("Scheduled job dispatched")
		// a cancel that arrived while the job was being registered
		if s.cancelRequested(d.JobID) {
			dispatcher.Cancel(d.JobID)
		}
	case errors.Is(err, domain.ErrDuplicateJobID):
		log.Warn("Scheduled job is already running")
	case errors.Is(err, domain.ErrInstantiation), errors.Is(err, domain.ErrInvalidJob):
		log.Error("Scheduled job could not be dispatched", slog.Any("error", err))
		s.finish(ctx, d.JobID, Result{State: StateFailed, ErrorMessage: err.Error()})
	default:
		// left DISPATCHED; Recover picks it up on the next start
		log.Error("Failed to dispatch scheduled job", slog.Any("error", err))
		s.nack(log, d, false)
		return
	}

	s.ack(log, d)
}

// Cancel cancels a job that has not been dispatched yet. For a dispatched
// job it records the request, which stops the job if it has not reached the
// registry and finalizes its row once the upload stops. It reports whether
// the job was pending or dispatched.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) (bool, error) {
	cancelled, err := s.store.Cancel(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel scheduled job %s: %w", jobID, err)
	}
	if cancelled {
		s.logger.Info("Scheduled job cancelled", slog.String("job_id", jobID))
		return true, nil
	}

	entry, err := s.store.Get(ctx, jobID)
	switch {
	case errors.Is(err, ErrEntryNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to look up scheduled job %s: %w", jobID, err)
	case entry.State != StateDispatched:
		return false, nil
	}

	s.mu.Lock()
	s.cancels[jobID] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("Cancel requested for dispatched job", slog.String("job_id", jobID))
	return true, nil
}

// CancelPending cancels every job that has not been dispatched yet
func (s *Scheduler) CancelPending(ctx context.Context) (int, error) {
	n, err := s.store.CancelPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending jobs: %w", err)
	}
	s.logger.Info("Pending scheduled jobs cancelled", slog.Int("count", n))
	return n, nil
}

// CancelAll cancels every pending job and records a cancel request for every
// dispatched one. It returns the number of pending jobs cancelled.
func (s *Scheduler) CancelAll(ctx context.Context) (int, error) {
	n, err := s.CancelPending(ctx)
	if err != nil {
		return 0, err
	}

	entries, err := s.store.List(ctx)
	if err != nil {
		return n, fmt.Errorf("failed to list scheduled jobs: %w", err)
	}

	dispatched := 0
	s.mu.Lock()
	for _, e := range entries {
		if e.State == StateDispatched {
			s.cancels[e.JobID] = struct{}{}
			dispatched++
		}
	}
	s.mu.Unlock()

	if dispatched > 0 {
		s.logger.Info("Cancel requested for dispatched jobs", slog.Int("count", dispatched))
	}
	return n, nil
}

func (s *Scheduler) cancelRequested(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cancels[id]
	return ok
}

// Drain marks the process as shutting down. From then on an upload that ends
// cancelled without a cancel request keeps its DISPATCHED row, so Recover
// runs it again on the next start.
func (s *Scheduler) Drain() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
}

// List returns every stored job that has not completed
func (s *Scheduler) List(ctx context.Context) ([]Entry, error) {
	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled jobs: %w", err)
	}
	return entries, nil
}

// JobFailed keeps the failure so it is stored with the terminal state
func (s *Scheduler) JobFailed(_ context.Context, id string, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.failures[id] = err.Error()
	s.mu.Unlock()
}

// JobCompleted finalizes the stored row of a dispatched job. The row is
// COMPLETED whatever the upload outcome: FAILED and CANCELLED rows are jobs
// that never reached the registry. An upload interrupted by Drain is left
// DISPATCHED.
func (s *Scheduler) JobCompleted(ctx context.Context, id string, outcome transport.Outcome) {
	s.mu.Lock()
	message := s.failures[id]
	delete(s.failures, id)
	_, requested := s.cancels[id]
	interrupted := s.draining && !requested && outcome == transport.OutcomeCancelled
	s.mu.Unlock()

	if interrupted {
		s.logger.Info("Interrupted upload left for recovery", slog.String("job_id", id))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, finishTimeout)
	defer cancel()
	s.finish(ctx, id, Result{
		State:        StateCompleted,
		Outcome:      string(outcome),
		ErrorMessage: message,
	})
}

func (s *Scheduler) finish(ctx context.Context, id string, result Result) {
	s.mu.Lock()
	delete(s.cancels, id)
	s.mu.Unlock()

	err := s.store.Finish(ctx, id, result)
	switch {
	case err == nil:
		s.logger.Debug("Scheduled job finalized",
			slog.String("job_id", id),
			slog.String("state", string(result.State)),
			slog.String("outcome", result.Outcome),
		)
	case errors.Is(err, ErrEntryNotFound):
		// dispatched directly, never stored
	default:
		s.logger.Error("Failed to finalize scheduled job",
			slog.String("job_id", id),
			slog.String("state", string(result.State)),
			slog.Any("error", err),
		)
	}
}

func (s *Scheduler) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Prune(ctx)
		}
	}
}

// Prune deletes finished rows older than the retention window
func (s *Scheduler) Prune(ctx context.Context) {
	n, err := s.store.Prune(ctx, time.Now().Add(-s.config.Retention))
	if err != nil {
		s.logger.Error("Failed to prune scheduled jobs", slog.Any("error", err))
		return
	}
	if n > 0 {
		s.logger.Info("Pruned finished scheduled jobs", slog.Int("count", n))
	}
}

func (s *Scheduler) ack(log *slog.Logger, d Delivery) {
	if err := d.Ack(); err != nil {
		log.Error("Failed to ACK notification", slog.Any("error", err))
	}
}

func (s *Scheduler) nack(log *slog.Logger, d Delivery, requeue bool) {
	if err := d.Nack(requeue); err != nil {
		log.Error("Failed to NACK notification", slog.Any("error", err))
	}
}

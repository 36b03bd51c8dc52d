// Package service is the command surface over the registry and the durable
// scheduler: start, cancel and list upload jobs.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cuongbtq/bg-uploader/internal/scheduler"
	"github.com/cuongbtq/bg-uploader/internal/upload/domain"
	"github.com/cuongbtq/bg-uploader/internal/upload/registry"
)

// Scheduler is the durable scheduler as seen by the command surface
type Scheduler interface {
	Schedule(ctx context.Context, job domain.Job, notification domain.NotificationConfig) error
	Cancel(ctx context.Context, jobID string) (bool, error)
	CancelAll(ctx context.Context) (int, error)
	List(ctx context.Context) ([]scheduler.Entry, error)
}

// JobState is one row of ListJobs
type JobState struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// Service implements the caller facing upload commands
type Service struct {
	registry  *registry.Registry
	scheduler Scheduler
	logger    *slog.Logger
}

// New creates the service
func New(reg *registry.Registry, sched Scheduler, logger *slog.Logger) *Service {
	return &Service{
		registry:  reg,
		scheduler: sched,
		logger:    logger,
	}
}

// StartJob persists the job for dispatch and returns its id
func (s *Service) StartJob(ctx context.Context, job domain.Job, notification domain.NotificationConfig) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}

	if s.registry.Contains(job.ID) {
		return "", fmt.Errorf("%w: %s", domain.ErrDuplicateJobID, job.ID)
	}

	if err := s.scheduler.Schedule(ctx, job, notification); err != nil {
		if errors.Is(err, scheduler.ErrDuplicateEntry) {
			return "", fmt.Errorf("%w: %s", domain.ErrDuplicateJobID, job.ID)
		}
		return "", err
	}

	return job.ID, nil
}

// CancelJob cancels a running or pending job. A running job stays listed
// until its upload stops. The scheduler records the request before the
// registry is asked, so a job claimed but not yet registered is cancelled
// by the scheduler once it registers.
func (s *Service) CancelJob(ctx context.Context, id string) error {
	scheduled, err := s.scheduler.Cancel(ctx, id)
	if err != nil {
		return err
	}

	running := s.registry.Cancel(id)

	if !running && !scheduled {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}

	s.logger.Info("Upload job cancel requested",
		slog.String("job_id", id),
		slog.Bool("running", running),
		slog.Bool("scheduled", scheduled),
	)
	return nil
}

// CancelAllJobs cancels every running and pending job
func (s *Service) CancelAllJobs(ctx context.Context) error {
	pending, err := s.scheduler.CancelAll(ctx)
	if err != nil {
		return err
	}

	running := s.registry.CancelAll()

	s.logger.Info("All upload jobs cancel requested",
		slog.Int("running", running),
		slog.Int("pending", pending),
	)
	return nil
}

// ListJobs merges stored jobs with the registry. The registry is
// authoritative for anything it holds.
func (s *Service) ListJobs(ctx context.Context) ([]JobState, error) {
	entries, err := s.scheduler.List(ctx)
	if err != nil {
		return nil, err
	}

	states := make(map[string]string, len(entries))
	for _, e := range entries {
		switch e.State {
		case scheduler.StatePending:
			states[e.JobID] = domain.StatePending
		case scheduler.StateDispatched:
			states[e.JobID] = domain.StateRunning
		case scheduler.StateFailed, scheduler.StateCancelled:
			states[e.JobID] = domain.StateCancelled
		}
	}

	for _, id := range s.registry.List() {
		states[id] = domain.StateRunning
	}

	jobs := make([]JobState, 0, len(states))
	for id, state := range states {
		jobs = append(jobs, JobState{ID: id, State: state})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })

	return jobs, nil
}

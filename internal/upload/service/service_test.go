package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/bg-uploader/internal/scheduler"
	"github.com/cuongbtq/bg-uploader/internal/scheduler/memory"
	"github.com/cuongbtq/bg-uploader/internal/upload/dispatch"
	"github.com/cuongbtq/bg-uploader/internal/upload/domain"
	"github.com/cuongbtq/bg-uploader/internal/upload/pool"
	"github.com/cuongbtq/bg-uploader/internal/upload/registry"
	"github.com/cuongbtq/bg-uploader/internal/upload/service"
	"github.com/cuongbtq/bg-uploader/internal/upload/transport"
)

const (
	waitFor = 5 * time.Second
	tick    = 5 * time.Millisecond
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rawJob(id string) domain.Job {
	return domain.Job{
		ID:     id,
		URL:    "http://uploads.test/" + id,
		Method: "POST",
		Kind:   domain.KindRawBody,
		Files:  []domain.File{{Path: "/tmp/" + id}},
	}
}

type harness struct {
	svc      *service.Service
	registry *registry.Registry
	store    *memory.Store
	release  chan struct{}
}

// newHarness wires the full stack with an executor that blocks until
// released or cancelled. When dispatching is false the scheduler loop is not
// started, so scheduled jobs stay pending.
func newHarness(t *testing.T, workers int, dispatching bool) *harness {
	t.Helper()
	logger := testLogger()

	h := &harness{
		registry: registry.New(logger),
		store:    memory.NewStore(),
		release:  make(chan struct{}),
	}

	exec := transport.ExecutorFunc(func(ctx context.Context, job domain.Job, events chan<- transport.Event) {
		select {
		case <-h.release:
			events <- transport.Completed(job.ID, transport.OutcomeSucceeded)
		case <-ctx.Done():
			events <- transport.Completed(job.ID, transport.OutcomeCancelled)
		}
	})

	p := pool.New(workers, logger)
	bridge := dispatch.NewBridge(h.registry, logger)
	coordinator := dispatch.NewCoordinator(h.registry, p, dispatch.DefaultKinds(exec), bridge, logger)
	sched := scheduler.New(h.store, memory.NewNotifier(64, logger), scheduler.Config{}, logger)
	bridge.AddListener(sched)

	h.svc = service.New(h.registry, sched, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	if dispatching {
		go func() {
			defer close(done)
			assert.NoError(t, sched.Run(ctx, coordinator))
		}()
	} else {
		close(done)
	}

	t.Cleanup(func() {
		cancel()
		<-done
		h.registry.CancelAll()
		shutdownCtx, stop := context.WithTimeout(context.Background(), waitFor)
		defer stop()
		assert.NoError(t, p.Shutdown(shutdownCtx))
	})

	return h
}

func (h *harness) list(t *testing.T) []service.JobState {
	t.Helper()
	jobs, err := h.svc.ListJobs(context.Background())
	require.NoError(t, err)
	return jobs
}

func (h *harness) waitFor(t *testing.T, want []service.JobState) {
	t.Helper()
	require.Eventually(t, func() bool {
		jobs, err := h.svc.ListJobs(context.Background())
		return err == nil && assert.ObjectsAreEqual(want, jobs)
	}, waitFor, tick)
}

func TestService_CompletedJobIsNoLongerListed(t *testing.T) {
	h := newHarness(t, 2, true)

	id, err := h.svc.StartJob(context.Background(), rawJob("A"), domain.NotificationConfig{})
	require.NoError(t, err)
	assert.Equal(t, "A", id)

	h.waitFor(t, []service.JobState{{ID: "A", State: domain.StateRunning}})

	close(h.release)
	h.waitFor(t, []service.JobState{})
	assert.False(t, h.registry.Contains("A"))
}

func TestService_DuplicateWhileRunning(t *testing.T) {
	h := newHarness(t, 2, true)
	ctx := context.Background()

	_, err := h.svc.StartJob(ctx, rawJob("A"), domain.NotificationConfig{})
	require.NoError(t, err)
	h.waitFor(t, []service.JobState{{ID: "A", State: domain.StateRunning}})

	_, err = h.svc.StartJob(ctx, rawJob("A"), domain.NotificationConfig{})
	assert.ErrorIs(t, err, domain.ErrDuplicateJobID)
	assert.Equal(t, []service.JobState{{ID: "A", State: domain.StateRunning}}, h.list(t))

	close(h.release)
	h.waitFor(t, []service.JobState{})

	// the id is free again once the first job finished
	_, err = h.svc.StartJob(ctx, rawJob("A"), domain.NotificationConfig{})
	require.NoError(t, err)
	h.waitFor(t, []service.JobState{})
}

func TestService_CancelRunningJob(t *testing.T) {
	h := newHarness(t, 2, true)
	ctx := context.Background()

	_, err := h.svc.StartJob(ctx, rawJob("A"), domain.NotificationConfig{})
	require.NoError(t, err)
	h.waitFor(t, []service.JobState{{ID: "A", State: domain.StateRunning}})

	require.NoError(t, h.svc.CancelJob(ctx, "A"))
	h.waitFor(t, []service.JobState{})

	err = h.svc.CancelJob(ctx, "A")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestService_CancelClaimedJob(t *testing.T) {
	h := newHarness(t, 1, false)
	ctx := context.Background()

	// claimed by the scheduler but not registered yet
	_, err := h.svc.StartJob(ctx, rawJob("A"), domain.NotificationConfig{})
	require.NoError(t, err)
	_, err = h.store.Claim(ctx, "A")
	require.NoError(t, err)

	require.NoError(t, h.svc.CancelJob(ctx, "A"))
	assert.Equal(t, []service.JobState{{ID: "A", State: domain.StateRunning}}, h.list(t))
}

func TestService_PendingJobs(t *testing.T) {
	h := newHarness(t, 1, false)
	ctx := context.Background()

	for _, id := range []string{"b", "a"} {
		_, err := h.svc.StartJob(ctx, rawJob(id), domain.NotificationConfig{})
		require.NoError(t, err)
	}

	assert.Equal(t, []service.JobState{
		{ID: "a", State: domain.StatePending},
		{ID: "b", State: domain.StatePending},
	}, h.list(t))

	_, err := h.svc.StartJob(ctx, rawJob("a"), domain.NotificationConfig{})
	assert.ErrorIs(t, err, domain.ErrDuplicateJobID, "a pending id cannot be reused")

	require.NoError(t, h.svc.CancelJob(ctx, "a"))
	assert.Equal(t, []service.JobState{
		{ID: "a", State: domain.StateCancelled},
		{ID: "b", State: domain.StatePending},
	}, h.list(t))

	require.NoError(t, h.svc.CancelAllJobs(ctx))
	assert.Equal(t, []service.JobState{
		{ID: "a", State: domain.StateCancelled},
		{ID: "b", State: domain.StateCancelled},
	}, h.list(t))
}

func TestService_CancelAllJobs(t *testing.T) {
	h := newHarness(t, 2, true)
	ctx := context.Background()

	want := make([]service.JobState, 0, 5)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("job-%d", i)
		_, err := h.svc.StartJob(ctx, rawJob(id), domain.NotificationConfig{})
		require.NoError(t, err)
		want = append(want, service.JobState{ID: id, State: domain.StateRunning})
	}

	// jobs queued behind the two workers are already registered
	h.waitFor(t, want)

	require.NoError(t, h.svc.CancelAllJobs(ctx))
	h.waitFor(t, []service.JobState{})
	assert.Zero(t, h.registry.Len())
}

func TestService_StartJobRejectsInvalidJob(t *testing.T) {
	h := newHarness(t, 1, false)

	job := rawJob("A")
	job.URL = ""

	_, err := h.svc.StartJob(context.Background(), job, domain.NotificationConfig{})
	assert.ErrorIs(t, err, domain.ErrInvalidJob)
	assert.Empty(t, h.list(t))
}

// fakeScheduler answers every call with preset values
type fakeScheduler struct {
	scheduleErr error
	cancelled   bool
	pending     int
	entries     []scheduler.Entry
	err         error
}

func (f *fakeScheduler) Schedule(context.Context, domain.Job, domain.NotificationConfig) error {
	return f.scheduleErr
}

func (f *fakeScheduler) Cancel(context.Context, string) (bool, error) {
	return f.cancelled, f.err
}

func (f *fakeScheduler) CancelAll(context.Context) (int, error) {
	return f.pending, f.err
}

func (f *fakeScheduler) List(context.Context) ([]scheduler.Entry, error) {
	return f.entries, f.err
}

type noopHandle struct{}

func (noopHandle) Cancel() {}

func TestService_ListJobsMerge(t *testing.T) {
	reg := registry.New(testLogger())
	require.True(t, reg.Register("running", noopHandle{}))
	require.True(t, reg.Register("dispatched", noopHandle{}))

	sched := &fakeScheduler{entries: []scheduler.Entry{
		{JobID: "queued", State: scheduler.StatePending},
		{JobID: "dispatched", State: scheduler.StateDispatched},
		{JobID: "handed-off", State: scheduler.StateDispatched},
		{JobID: "broken", State: scheduler.StateFailed},
		{JobID: "dropped", State: scheduler.StateCancelled},
		{JobID: "done", State: scheduler.StateCompleted},
	}}

	jobs, err := service.New(reg, sched, testLogger()).ListJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []service.JobState{
		{ID: "broken", State: domain.StateCancelled},
		{ID: "dispatched", State: domain.StateRunning},
		{ID: "dropped", State: domain.StateCancelled},
		{ID: "handed-off", State: domain.StateRunning},
		{ID: "queued", State: domain.StatePending},
		{ID: "running", State: domain.StateRunning},
	}, jobs)
}

func TestService_SchedulerErrors(t *testing.T) {
	storeDown := errors.New("store unavailable")

	tests := []struct {
		name    string
		sched   *fakeScheduler
		call    func(*service.Service) error
		wantErr error
	}{
		{
			name:  "duplicate stored row",
			sched: &fakeScheduler{scheduleErr: fmt.Errorf("failed to store job A: %w", scheduler.ErrDuplicateEntry)},
			call: func(s *service.Service) error {
				_, err := s.StartJob(context.Background(), rawJob("A"), domain.NotificationConfig{})
				return err
			},
			wantErr: domain.ErrDuplicateJobID,
		},
		{
			name:  "schedule failure",
			sched: &fakeScheduler{scheduleErr: storeDown},
			call: func(s *service.Service) error {
				_, err := s.StartJob(context.Background(), rawJob("A"), domain.NotificationConfig{})
				return err
			},
			wantErr: storeDown,
		},
		{
			name:  "cancel failure",
			sched: &fakeScheduler{err: storeDown},
			call: func(s *service.Service) error {
				return s.CancelJob(context.Background(), "A")
			},
			wantErr: storeDown,
		},
		{
			name:  "cancel unknown",
			sched: &fakeScheduler{},
			call: func(s *service.Service) error {
				return s.CancelJob(context.Background(), "A")
			},
			wantErr: domain.ErrJobNotFound,
		},
		{
			name:  "cancel all failure",
			sched: &fakeScheduler{err: storeDown},
			call: func(s *service.Service) error {
				return s.CancelAllJobs(context.Background())
			},
			wantErr: storeDown,
		},
		{
			name:  "list failure",
			sched: &fakeScheduler{err: storeDown},
			call: func(s *service.Service) error {
				_, err := s.ListJobs(context.Background())
				return err
			},
			wantErr: storeDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := service.New(registry.New(testLogger()), tt.sched, testLogger())
			assert.ErrorIs(t, tt.call(svc), tt.wantErr)
		})
	}
}

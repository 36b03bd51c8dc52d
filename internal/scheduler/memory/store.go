// Package memory provides in-process scheduler backends. Jobs survive only
// as long as the process does.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/bg-uploader/internal/scheduler"
)

type row struct {
	entry scheduler.Entry
	seq   uint64
}

// Store keeps scheduled jobs in a map
type Store struct {
	mu   sync.Mutex
	rows map[string]*row
	seq  uint64
	now  func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		rows: make(map[string]*row),
		now:  time.Now,
	}
}

func (s *Store) Enqueue(_ context.Context, jobID string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, exists := s.rows[jobID]; exists && !r.entry.State.Terminal() {
		return scheduler.ErrDuplicateEntry
	}

	now := s.now()
	s.seq++
	s.rows[jobID] = &row{
		seq: s.seq,
		entry: scheduler.Entry{
			JobID:     jobID,
			Payload:   append([]byte(nil), payload...),
			State:     scheduler.StatePending,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	return nil
}

func (s *Store) Get(_ context.Context, jobID string) (scheduler.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rows[jobID]
	if !exists {
		return scheduler.Entry{}, scheduler.ErrEntryNotFound
	}
	return r.entry, nil
}

func (s *Store) Claim(_ context.Context, jobID string) (scheduler.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rows[jobID]
	if !exists {
		return scheduler.Entry{}, scheduler.ErrEntryNotFound
	}
	if r.entry.State != scheduler.StatePending {
		return scheduler.Entry{}, scheduler.ErrAlreadyClaimed
	}

	r.entry.State = scheduler.StateDispatched
	r.entry.UpdatedAt = s.now()
	return r.entry, nil
}

func (s *Store) Finish(_ context.Context, jobID string, result scheduler.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rows[jobID]
	if !exists || r.entry.State != scheduler.StateDispatched {
		return scheduler.ErrEntryNotFound
	}

	r.entry.State = result.State
	r.entry.Outcome = result.Outcome
	r.entry.ErrorMessage = result.ErrorMessage
	r.entry.UpdatedAt = s.now()
	return nil
}

func (s *Store) Cancel(_ context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rows[jobID]
	if !exists || r.entry.State != scheduler.StatePending {
		return false, nil
	}

	r.entry.State = scheduler.StateCancelled
	r.entry.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) CancelPending(_ context.Context) (int, error) {
	return s.transition(scheduler.StatePending, scheduler.StateCancelled), nil
}

func (s *Store) Requeue(_ context.Context) (int, error) {
	return s.transition(scheduler.StateDispatched, scheduler.StatePending), nil
}

func (s *Store) transition(from, to scheduler.State) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, r := range s.rows {
		if r.entry.State == from {
			r.entry.State = to
			r.entry.UpdatedAt = now
			n++
		}
	}
	return n
}

func (s *Store) Pending(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []*row
	for _, r := range s.rows {
		if r.entry.State == scheduler.StatePending {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.entry.JobID
	}
	return ids, nil
}

func (s *Store) List(_ context.Context) ([]scheduler.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []*row
	for _, r := range s.rows {
		if r.entry.State != scheduler.StateCompleted {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	entries := make([]scheduler.Entry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry
	}
	return entries, nil
}

func (s *Store) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, r := range s.rows {
		if r.entry.State.Terminal() && r.entry.UpdatedAt.Before(before) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

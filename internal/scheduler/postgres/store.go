// Package postgres stores scheduled upload jobs in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/bg-uploader/internal/scheduler"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS upload_jobs (
		job_id        TEXT PRIMARY KEY,
		payload       BYTEA NOT NULL,
		state         TEXT NOT NULL,
		outcome       TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_upload_jobs_state ON upload_jobs (state, created_at)`,
}

// Store implements scheduler.Store on the upload_jobs table
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a store on db
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the table and indexes if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate upload_jobs: %w", err)
		}
	}
	s.logger.Info("Upload jobs table ready")
	return nil
}

// Enqueue inserts a PENDING row, replacing a terminal row with the same id
func (s *Store) Enqueue(ctx context.Context, jobID string, payload []byte) error {
	query := `
		INSERT INTO upload_jobs (job_id, payload, state, outcome, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, '', '', NOW(), NOW())
		ON CONFLICT (job_id) DO UPDATE
		SET payload = EXCLUDED.payload,
		    state = EXCLUDED.state,
		    outcome = '',
		    error_message = '',
		    created_at = NOW(),
		    updated_at = NOW()
		WHERE upload_jobs.state IN ($4, $5, $6)
	`

	res, err := s.db.ExecContext(ctx, query, jobID, payload, scheduler.StatePending,
		scheduler.StateCompleted, scheduler.StateFailed, scheduler.StateCancelled)
	if err != nil {
		return fmt.Errorf("failed to insert upload job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert upload job: %w", err)
	}
	if n == 0 {
		return scheduler.ErrDuplicateEntry
	}
	return nil
}

// Get returns the row for jobID in any state
func (s *Store) Get(ctx context.Context, jobID string) (scheduler.Entry, error) {
	query := `
		SELECT job_id, payload, state, outcome, error_message, created_at, updated_at
		FROM upload_jobs
		WHERE job_id = $1
	`

	var entry scheduler.Entry
	if err := s.db.GetContext(ctx, &entry, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return scheduler.Entry{}, scheduler.ErrEntryNotFound
		}
		return scheduler.Entry{}, fmt.Errorf("failed to get upload job: %w", err)
	}
	return entry, nil
}

// Claim moves a PENDING row to DISPATCHED using optimistic locking
func (s *Store) Claim(ctx context.Context, jobID string) (scheduler.Entry, error) {
	query := `
		UPDATE upload_jobs
		SET state = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND state = $3
		RETURNING job_id, payload, state, outcome, error_message, created_at, updated_at
	`

	var entry scheduler.Entry
	err := s.db.GetContext(ctx, &entry, query, scheduler.StateDispatched, jobID, scheduler.StatePending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return scheduler.Entry{}, s.missing(ctx, jobID)
		}
		return scheduler.Entry{}, fmt.Errorf("failed to claim upload job: %w", err)
	}

	s.logger.Debug("Upload job claimed", slog.String("job_id", jobID))
	return entry, nil
}

// missing tells apart a row that is gone from one that is no longer pending
func (s *Store) missing(ctx context.Context, jobID string) error {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM upload_jobs WHERE job_id = $1)`, jobID); err != nil {
		return fmt.Errorf("failed to look up upload job: %w", err)
	}
	if exists {
		return scheduler.ErrAlreadyClaimed
	}
	return scheduler.ErrEntryNotFound
}

// Finish moves a DISPATCHED row to a terminal state
func (s *Store) Finish(ctx context.Context, jobID string, result scheduler.Result) error {
	query := `
		UPDATE upload_jobs
		SET state = $1,
		    outcome = $2,
		    error_message = $3,
		    updated_at = NOW()
		WHERE job_id = $4
		  AND state = $5
	`

	n, err := s.exec(ctx, query, result.State, result.Outcome, result.ErrorMessage, jobID, scheduler.StateDispatched)
	if err != nil {
		return fmt.Errorf("failed to finish upload job: %w", err)
	}
	if n == 0 {
		return scheduler.ErrEntryNotFound
	}
	return nil
}

func (s *Store) Cancel(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE upload_jobs
		SET state = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND state = $3
	`

	n, err := s.exec(ctx, query, scheduler.StateCancelled, jobID, scheduler.StatePending)
	if err != nil {
		return false, fmt.Errorf("failed to cancel upload job: %w", err)
	}
	return n > 0, nil
}

func (s *Store) CancelPending(ctx context.Context) (int, error) {
	n, err := s.transition(ctx, scheduler.StatePending, scheduler.StateCancelled)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending upload jobs: %w", err)
	}
	return n, nil
}

func (s *Store) Requeue(ctx context.Context) (int, error) {
	n, err := s.transition(ctx, scheduler.StateDispatched, scheduler.StatePending)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue upload jobs: %w", err)
	}
	return n, nil
}

func (s *Store) transition(ctx context.Context, from, to scheduler.State) (int, error) {
	query := `
		UPDATE upload_jobs
		SET state = $1,
		    updated_at = NOW()
		WHERE state = $2
	`
	n, err := s.exec(ctx, query, to, from)
	return int(n), err
}

func (s *Store) Pending(ctx context.Context) ([]string, error) {
	query := `
		SELECT job_id
		FROM upload_jobs
		WHERE state = $1
		ORDER BY created_at, job_id
	`

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, scheduler.StatePending); err != nil {
		return nil, fmt.Errorf("failed to select pending upload jobs: %w", err)
	}
	return ids, nil
}

func (s *Store) List(ctx context.Context) ([]scheduler.Entry, error) {
	query := `
		SELECT job_id, payload, state, outcome, error_message, created_at, updated_at
		FROM upload_jobs
		WHERE state <> $1
		ORDER BY created_at, job_id
	`

	var entries []scheduler.Entry
	if err := s.db.SelectContext(ctx, &entries, query, scheduler.StateCompleted); err != nil {
		return nil, fmt.Errorf("failed to select upload jobs: %w", err)
	}
	return entries, nil
}

func (s *Store) Prune(ctx context.Context, before time.Time) (int, error) {
	query := `
		DELETE FROM upload_jobs
		WHERE state IN ($1, $2, $3)
		  AND updated_at < $4
	`

	n, err := s.exec(ctx, query, scheduler.StateCompleted, scheduler.StateFailed, scheduler.StateCancelled, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune upload jobs: %w", err)
	}
	return int(n), nil
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

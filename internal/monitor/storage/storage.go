package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/queue-monitor/internal/monitor/liveness"
	"github.com/cuongbtq/queue-monitor/internal/monitor/model"
	"github.com/cuongbtq/queue-monitor/shared/postgresql"
)

// Storage persists Push, Exec and Worker records in PostgreSQL.
//
// All single-record lookups run against the primary connection pool, so
// the recorder's decision reads always see its own prior writes. Only
// the dashboard search path could tolerate a lagging replica.
type Storage struct {
	db       *sqlx.DB
	client   *postgresql.Client
	detector liveness.Detector
	logger   *slog.Logger
}

// NewStorage creates a Storage on top of the shared PostgreSQL client.
func NewStorage(pg *postgresql.Client, detector liveness.Detector, logger *slog.Logger) *Storage {
	return &Storage{
		db:       pg.GetDB(),
		client:   pg,
		detector: detector,
		logger:   logger,
	}
}

// Reconnect refreshes the storage session, discarding connections that
// went stale during a long worker lifetime. Sequenced before the
// worker-stop lookup.
func (s *Storage) Reconnect(ctx context.Context) error {
	return s.client.Reconnect(ctx)
}

const pushColumns = `id, sender_name, job_uid, job_class, job_data, context,
	ttr, delay, pushed_at, stopped_at, first_exec_id, last_exec_id`

// CreatePush inserts a new push record and fills in its id. Pushes are
// never deduplicated; every enqueue event gets its own row.
func (s *Storage) CreatePush(ctx context.Context, push *model.Push) error {
	query := `
		INSERT INTO queue_push (
			sender_name, job_uid, job_class, job_data, context,
			ttr, delay, pushed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := s.db.QueryRowContext(
		ctx,
		query,
		push.SenderName,
		push.JobUID,
		push.JobClass,
		push.JobData,
		push.Context,
		push.TTR,
		push.Delay,
		push.PushedAt,
	).Scan(&push.ID)

	if err != nil {
		return fmt.Errorf("failed to create push: %w", err)
	}

	return nil
}

// FindPushByJob returns the most recent push for (senderName, jobUID).
// Queue backends may reuse a job UID after completion, so only the
// latest row is relevant.
func (s *Storage) FindPushByJob(ctx context.Context, senderName, jobUID string) (*model.Push, error) {
	var push model.Push
	query := `
		SELECT ` + pushColumns + `
		FROM queue_push
		WHERE sender_name = $1 AND job_uid = $2
		ORDER BY id DESC
		LIMIT 1
	`

	err := s.db.GetContext(ctx, &push, query, senderName, jobUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrPushNotFound
		}
		return nil, fmt.Errorf("failed to find push by job: %w", err)
	}

	return &push, nil
}

// FindPushByID returns a push by its internal id.
func (s *Storage) FindPushByID(ctx context.Context, id int64) (*model.Push, error) {
	var push model.Push
	query := `SELECT ` + pushColumns + ` FROM queue_push WHERE id = $1`

	err := s.db.GetContext(ctx, &push, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrPushNotFound
		}
		return nil, fmt.Errorf("failed to find push: %w", err)
	}

	return &push, nil
}

// StopPush marks a push as permanently stopped. Idempotent: a second
// call leaves the original stopped_at untouched.
func (s *Storage) StopPush(ctx context.Context, id int64, now time.Time) error {
	query := `
		UPDATE queue_push
		SET stopped_at = $1
		WHERE id = $2 AND stopped_at IS NULL
	`

	if _, err := s.db.ExecContext(ctx, query, now, id); err != nil {
		return fmt.Errorf("failed to stop push: %w", err)
	}

	return nil
}

// BeginExec creates the exec row for a new attempt and repoints the push
// (and optionally the worker) at it, all in one transaction. A partial
// write here would leave the push pointing at an attempt that does not
// exist, so the three updates commit together or not at all.
func (s *Storage) BeginExec(ctx context.Context, push *model.Push, attempt int, workerID *int64, now time.Time) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var execID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO queue_exec (push_id, worker_id, attempt, reserved_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, push.ID, workerID, attempt, now).Scan(&execID)
	if err != nil {
		return 0, fmt.Errorf("failed to create exec: %w", err)
	}

	// first_exec_id is written once and never changes afterwards.
	_, err = tx.ExecContext(ctx, `
		UPDATE queue_push
		SET first_exec_id = COALESCE(first_exec_id, $1),
		    last_exec_id = $1
		WHERE id = $2
	`, execID, push.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to update push exec pointers: %w", err)
	}

	if workerID != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE queue_worker SET last_exec_id = $1 WHERE id = $2
		`, execID, *workerID)
		if err != nil {
			return 0, fmt.Errorf("failed to update worker exec pointer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit exec transaction: %w", err)
	}

	return execID, nil
}

// CloseExec concludes an attempt, setting finished_at, error and retry
// together. Execs are closed exactly once and never mutated otherwise.
func (s *Storage) CloseExec(ctx context.Context, execID int64, execErr *string, retry bool, now time.Time) error {
	query := `
		UPDATE queue_exec
		SET finished_at = $1, error = $2, retry = $3
		WHERE id = $4
	`

	if _, err := s.db.ExecContext(ctx, query, now, execErr, retry, execID); err != nil {
		return fmt.Errorf("failed to close exec: %w", err)
	}

	return nil
}

// GetExec returns an exec by id.
func (s *Storage) GetExec(ctx context.Context, id int64) (*model.Exec, error) {
	var exec model.Exec
	query := `
		SELECT id, push_id, worker_id, attempt, reserved_at, finished_at, error, retry
		FROM queue_exec
		WHERE id = $1
	`

	err := s.db.GetContext(ctx, &exec, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrExecNotFound
		}
		return nil, fmt.Errorf("failed to get exec: %w", err)
	}

	return &exec, nil
}

// ListExecs returns every attempt of a push, oldest first.
func (s *Storage) ListExecs(ctx context.Context, pushID int64) ([]model.Exec, error) {
	var execs []model.Exec
	query := `
		SELECT id, push_id, worker_id, attempt, reserved_at, finished_at, error, retry
		FROM queue_exec
		WHERE push_id = $1
		ORDER BY id ASC
	`

	if err := s.db.SelectContext(ctx, &execs, query, pushID); err != nil {
		return nil, fmt.Errorf("failed to list execs: %w", err)
	}

	return execs, nil
}

// HasFailedExec reports whether any attempt of the push ever errored,
// including attempts that were later retried successfully.
func (s *Storage) HasFailedExec(ctx context.Context, pushID int64) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM queue_exec WHERE push_id = $1 AND error IS NOT NULL
		)
	`

	if err := s.db.GetContext(ctx, &exists, query, pushID); err != nil {
		return false, fmt.Errorf("failed to check failed execs: %w", err)
	}

	return exists, nil
}

// DeprecatedBefore returns ids of pushes older than the cutoff. Used by
// external retention batches; this engine never deletes records itself.
func (s *Storage) DeprecatedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	var ids []int64
	query := `SELECT id FROM queue_push WHERE pushed_at < $1 ORDER BY id ASC`

	if err := s.db.SelectContext(ctx, &ids, query, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list deprecated pushes: %w", err)
	}

	return ids, nil
}

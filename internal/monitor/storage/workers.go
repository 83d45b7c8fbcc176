package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/queue-monitor/internal/monitor/liveness"
	"github.com/cuongbtq/queue-monitor/internal/monitor/model"
)

const workerColumns = `id, sender_name, host, pid, started_at, pinged_at,
	stopped_at, finished_at, last_exec_id`

// openExecCondition mirrors the liveness detector's open-exec fallback:
// an in-progress attempt is evidence of life even when the heartbeat is
// stale.
const openExecCondition = `(last_exec_id IS NOT NULL AND EXISTS (
	SELECT 1 FROM queue_exec e
	WHERE e.id = queue_worker.last_exec_id AND e.finished_at IS NULL
))`

// CreateWorker inserts a new worker record and fills in its id.
func (s *Storage) CreateWorker(ctx context.Context, worker *model.Worker) error {
	query := `
		INSERT INTO queue_worker (sender_name, host, pid, started_at, pinged_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := s.db.QueryRowContext(
		ctx,
		query,
		worker.SenderName,
		worker.Host,
		worker.Pid,
		worker.StartedAt,
		worker.PingedAt,
	).Scan(&worker.ID)

	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	return nil
}

// buildActiveWorkerQuery assembles the single-worker liveness lookup.
// With a positive ping interval the worker must have a fresh heartbeat
// or an open attempt; with the interval disabled any unfinished worker
// qualifies.
func buildActiveWorkerQuery(d liveness.Detector, host string, pid int, now time.Time) (string, []interface{}) {
	query := `
		SELECT ` + workerColumns + `
		FROM queue_worker
		WHERE host = $1 AND pid = $2 AND finished_at IS NULL
	`
	args := []interface{}{host, pid}

	if d.PingInterval > 0 {
		cutoff := now.Add(-d.PingInterval - liveness.Grace)
		query += ` AND (pinged_at > $3 OR ` + openExecCondition + `)`
		args = append(args, cutoff)
	}

	query += ` ORDER BY id DESC LIMIT 1`
	return query, args
}

// FindActiveWorker returns the live worker for (host, pid), applying the
// same predicate the liveness detector uses in memory. At most one
// worker per (host, pid) is active at a time; the newest wins when a
// crashed predecessor still looks alive.
func (s *Storage) FindActiveWorker(ctx context.Context, host string, pid int, now time.Time) (*model.Worker, error) {
	query, args := buildActiveWorkerQuery(s.detector, host, pid, now)

	var worker model.Worker
	err := s.db.GetContext(ctx, &worker, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrWorkerNotFound
		}
		return nil, fmt.Errorf("failed to find active worker: %w", err)
	}

	return &worker, nil
}

// PingWorker refreshes the worker's heartbeat timestamp.
func (s *Storage) PingWorker(ctx context.Context, workerID int64, now time.Time) error {
	query := `UPDATE queue_worker SET pinged_at = $1 WHERE id = $2`

	if _, err := s.db.ExecContext(ctx, query, now, workerID); err != nil {
		return fmt.Errorf("failed to ping worker: %w", err)
	}

	return nil
}

// FinishWorker records a clean process exit.
func (s *Storage) FinishWorker(ctx context.Context, workerID int64, now time.Time) error {
	query := `UPDATE queue_worker SET finished_at = $1 WHERE id = $2`

	if _, err := s.db.ExecContext(ctx, query, now, workerID); err != nil {
		return fmt.Errorf("failed to finish worker: %w", err)
	}

	return nil
}

// RequestWorkerStop marks a worker with an explicit stop request,
// independent from the process actually exiting.
func (s *Storage) RequestWorkerStop(ctx context.Context, workerID int64, now time.Time) error {
	query := `
		UPDATE queue_worker
		SET stopped_at = $1
		WHERE id = $2 AND stopped_at IS NULL
	`

	if _, err := s.db.ExecContext(ctx, query, now, workerID); err != nil {
		return fmt.Errorf("failed to request worker stop: %w", err)
	}

	return nil
}

// WorkerInfo is a worker record together with the derived facts the
// operator views need.
type WorkerInfo struct {
	model.Worker
	ExecStarted int  `db:"exec_started"`
	ExecDone    int  `db:"exec_done"`
	HasOpenExec bool `db:"has_open_exec"`
}

// buildListWorkersQuery assembles the worker roster lookup with the
// same liveness predicate as buildActiveWorkerQuery.
func buildListWorkersQuery(d liveness.Detector, now time.Time) (string, []interface{}) {
	query := `
		SELECT ` + workerColumns + `,
			(SELECT COUNT(*) FROM queue_exec e WHERE e.worker_id = queue_worker.id) AS exec_started,
			(SELECT COUNT(*) FROM queue_exec e WHERE e.worker_id = queue_worker.id AND e.finished_at IS NOT NULL) AS exec_done,
			` + openExecCondition + ` AS has_open_exec
		FROM queue_worker
		WHERE finished_at IS NULL
	`
	args := []interface{}{}

	if d.PingInterval > 0 {
		cutoff := now.Add(-d.PingInterval - liveness.Grace)
		query += ` AND (pinged_at > $1 OR ` + openExecCondition + `)`
		args = append(args, cutoff)
	}

	query += ` ORDER BY id ASC`
	return query, args
}

// ListWorkers returns every live worker with its attempt totals. The
// liveness predicate matches FindActiveWorker.
func (s *Storage) ListWorkers(ctx context.Context, now time.Time) ([]WorkerInfo, error) {
	query, args := buildListWorkersQuery(s.detector, now)

	var workers []WorkerInfo
	if err := s.db.SelectContext(ctx, &workers, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}

	return workers, nil
}

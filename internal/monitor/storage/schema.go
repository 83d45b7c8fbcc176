package storage

import (
	"context"
	"fmt"
)

// Referential integrity between the three tables is maintained by the
// recorder's transactional writes, not by foreign keys. Keeping the
// schema FK-free lets retention jobs prune execs independently.
const schema = `
CREATE TABLE IF NOT EXISTS queue_push (
	id            BIGSERIAL PRIMARY KEY,
	sender_name   TEXT NOT NULL,
	job_uid       TEXT NOT NULL,
	job_class     TEXT NOT NULL,
	job_data      TEXT NOT NULL DEFAULT '',
	context       TEXT NOT NULL DEFAULT '',
	ttr           INTEGER NOT NULL DEFAULT 0,
	delay         INTEGER NOT NULL DEFAULT 0,
	pushed_at     TIMESTAMPTZ NOT NULL,
	stopped_at    TIMESTAMPTZ,
	first_exec_id BIGINT,
	last_exec_id  BIGINT
);

CREATE INDEX IF NOT EXISTS idx_push_job ON queue_push (sender_name, job_uid, id DESC);
CREATE INDEX IF NOT EXISTS idx_push_pushed_at ON queue_push (pushed_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS queue_exec (
	id          BIGSERIAL PRIMARY KEY,
	push_id     BIGINT NOT NULL,
	worker_id   BIGINT,
	attempt     INTEGER NOT NULL,
	reserved_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	error       TEXT,
	retry       BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_exec_push ON queue_exec (push_id);
CREATE INDEX IF NOT EXISTS idx_exec_worker ON queue_exec (worker_id);

CREATE TABLE IF NOT EXISTS queue_worker (
	id           BIGSERIAL PRIMARY KEY,
	sender_name  TEXT NOT NULL,
	host         TEXT NOT NULL,
	pid          INTEGER NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	pinged_at    TIMESTAMPTZ NOT NULL,
	stopped_at   TIMESTAMPTZ,
	finished_at  TIMESTAMPTZ,
	last_exec_id BIGINT
);

CREATE INDEX IF NOT EXISTS idx_worker_event ON queue_worker (host, pid, id DESC);
`

// Migrate creates the record tables if they do not exist yet.
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

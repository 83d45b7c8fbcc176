package model

import "time"

// Push is the durable record of a single job enqueue. A queue backend may
// reuse a job UID after completion, so (SenderName, JobUID) is only unique
// for the most recent push.
type Push struct {
	ID          int64      `db:"id"`
	SenderName  string     `db:"sender_name"`
	JobUID      string     `db:"job_uid"`
	JobClass    string     `db:"job_class"`
	JobData     string     `db:"job_data"`
	Context     string     `db:"context"`
	TTR         int        `db:"ttr"`
	Delay       int        `db:"delay"`
	PushedAt    time.Time  `db:"pushed_at"`
	StoppedAt   *time.Time `db:"stopped_at"`
	FirstExecID *int64     `db:"first_exec_id"`
	LastExecID  *int64     `db:"last_exec_id"`
}

// IsStopped reports whether the push has been administratively stopped.
// A stopped push must never execute or retry again.
func (p *Push) IsStopped() bool {
	return p.StoppedAt != nil
}

// Exec is the record of a single execution attempt of a Push. It is open
// while FinishedAt is nil and is closed exactly once.
type Exec struct {
	ID         int64      `db:"id"`
	PushID     int64      `db:"push_id"`
	WorkerID   *int64     `db:"worker_id"`
	Attempt    int        `db:"attempt"`
	ReservedAt time.Time  `db:"reserved_at"`
	FinishedAt *time.Time `db:"finished_at"`
	Error      *string    `db:"error"`
	Retry      bool       `db:"retry"`
}

// IsOpen reports whether the attempt is still in progress.
func (e *Exec) IsOpen() bool {
	return e.FinishedAt == nil
}

// Worker is the record of a single worker process lifetime. A crashed
// process leaves FinishedAt nil forever, so liveness is decided from
// heartbeat age, not from FinishedAt alone.
type Worker struct {
	ID         int64      `db:"id"`
	SenderName string     `db:"sender_name"`
	Host       string     `db:"host"`
	Pid        int        `db:"pid"`
	StartedAt  time.Time  `db:"started_at"`
	PingedAt   time.Time  `db:"pinged_at"`
	StoppedAt  *time.Time `db:"stopped_at"`
	FinishedAt *time.Time `db:"finished_at"`
	LastExecID *int64     `db:"last_exec_id"`
}

// Duration is the worker's lifetime so far, or its final lifetime once
// the process has exited.
func (w *Worker) Duration(now time.Time) time.Duration {
	if w.FinishedAt != nil {
		return w.FinishedAt.Sub(w.StartedAt)
	}
	return now.Sub(w.StartedAt)
}

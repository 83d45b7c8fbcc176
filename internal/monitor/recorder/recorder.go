package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/queue-monitor/internal/monitor/model"
)

// Store is the persistence the recorder needs. All reads used for
// decisions (push lookup, active-worker lookup) must see the recorder's
// own prior writes; serving them from a lagging replica would make the
// reject/permit decisions unsafe.
type Store interface {
	CreatePush(ctx context.Context, push *model.Push) error
	FindPushByJob(ctx context.Context, senderName, jobUID string) (*model.Push, error)
	FindPushByID(ctx context.Context, id int64) (*model.Push, error)
	StopPush(ctx context.Context, id int64, now time.Time) error
	BeginExec(ctx context.Context, push *model.Push, attempt int, workerID *int64, now time.Time) (int64, error)
	CloseExec(ctx context.Context, execID int64, execErr *string, retry bool, now time.Time) error
	CreateWorker(ctx context.Context, worker *model.Worker) error
	FindActiveWorker(ctx context.Context, host string, pid int, now time.Time) (*model.Worker, error)
	PingWorker(ctx context.Context, workerID int64, now time.Time) error
	FinishWorker(ctx context.Context, workerID int64, now time.Time) error
	RequestWorkerStop(ctx context.Context, workerID int64, now time.Time) error
	Reconnect(ctx context.Context) error
}

// Config holds recorder dependencies.
type Config struct {
	Store        Store
	Logger       *slog.Logger
	TrackWorkers bool
	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Recorder converts the queue's lifecycle events into consistent Push,
// Exec and Worker records. It holds no state of its own between events;
// everything lives in the store.
type Recorder struct {
	store        Store
	logger       *slog.Logger
	trackWorkers bool
	now          func() time.Time
}

// NewRecorder creates a recorder.
func NewRecorder(cfg *Config) *Recorder {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		store:        cfg.Store,
		logger:       cfg.Logger,
		trackWorkers: cfg.TrackWorkers,
		now:          now,
	}
}

// RecordPush records a job enqueue. Every push event gets a fresh row,
// even when a queue backend reuses a job UID.
func (r *Recorder) RecordPush(ctx context.Context, event PushEvent) (int64, error) {
	push := &model.Push{
		SenderName: event.SenderName,
		JobUID:     event.JobUID,
		JobClass:   event.JobClass,
		JobData:    event.JobData,
		Context:    event.Context,
		TTR:        event.TTR,
		Delay:      event.Delay,
		PushedAt:   r.now(),
	}

	if err := r.store.CreatePush(ctx, push); err != nil {
		return 0, fmt.Errorf("record push for %s/%s: %w", event.SenderName, event.JobUID, err)
	}

	r.logger.Info("Push recorded",
		slog.Int64("push_id", push.ID),
		slog.String("sender", event.SenderName),
		slog.String("job_uid", event.JobUID),
		slog.String("job_class", event.JobClass),
	)

	return push.ID, nil
}

// BeginExec decides whether an attempt may start and, if so, records it.
// The exec row, the push pointers and the worker pointer commit in one
// transaction; a partial write would leave the classifier blind to the
// attempt.
func (r *Recorder) BeginExec(ctx context.Context, event ExecEvent) (Decision, error) {
	push, err := r.store.FindPushByJob(ctx, event.SenderName, event.JobUID)
	if err != nil {
		if errors.Is(err, model.ErrPushNotFound) {
			r.logger.Debug("Exec event for unknown push, ignoring",
				slog.String("sender", event.SenderName),
				slog.String("job_uid", event.JobUID),
			)
			return Decision{Outcome: OutcomeIgnore}, nil
		}
		return Decision{}, fmt.Errorf("begin exec for %s/%s: %w", event.SenderName, event.JobUID, err)
	}

	if push.IsStopped() {
		r.logger.Info("Rejecting exec of stopped push",
			slog.Int64("push_id", push.ID),
			slog.String("job_uid", event.JobUID),
			slog.Int("attempt", event.Attempt),
		)
		return Decision{Outcome: OutcomeReject}, nil
	}

	workerID, err := r.currentWorkerID(ctx, event.Host, event.Pid)
	if err != nil {
		return Decision{}, fmt.Errorf("begin exec for %s/%s: %w", event.SenderName, event.JobUID, err)
	}

	execID, err := r.store.BeginExec(ctx, push, event.Attempt, workerID, r.now())
	if err != nil {
		return Decision{}, fmt.Errorf("begin exec for %s/%s: %w", event.SenderName, event.JobUID, err)
	}

	r.logger.Info("Exec started",
		slog.Int64("push_id", push.ID),
		slog.Int64("exec_id", execID),
		slog.Int("attempt", event.Attempt),
	)

	return Decision{Outcome: OutcomeProceed, ExecID: execID}, nil
}

// EndExecSuccess closes the push's current attempt as succeeded. Missing
// correlation or a missing open attempt is not fatal; under correct
// queue behavior it should not happen.
func (r *Recorder) EndExecSuccess(ctx context.Context, senderName, jobUID string) error {
	push, err := r.store.FindPushByJob(ctx, senderName, jobUID)
	if err != nil {
		if errors.Is(err, model.ErrPushNotFound) {
			return nil
		}
		return fmt.Errorf("end exec for %s/%s: %w", senderName, jobUID, err)
	}

	if push.LastExecID == nil {
		r.logger.Warn("Success event for push without attempts",
			slog.Int64("push_id", push.ID),
			slog.String("job_uid", jobUID),
		)
		return nil
	}

	if err := r.store.CloseExec(ctx, *push.LastExecID, nil, false, r.now()); err != nil {
		return fmt.Errorf("end exec for %s/%s: %w", senderName, jobUID, err)
	}

	r.logger.Info("Exec succeeded",
		slog.Int64("push_id", push.ID),
		slog.Int64("exec_id", *push.LastExecID),
	)

	return nil
}

// EndExecError closes the push's current attempt as errored and returns
// whether the queue is allowed to retry. A stopped push forces the
// answer to false regardless of what the queue requested, and the queue
// must honor that by suppressing its own retry scheduling.
func (r *Recorder) EndExecError(ctx context.Context, senderName, jobUID, errMsg string, retryRequested bool) (bool, error) {
	push, err := r.store.FindPushByJob(ctx, senderName, jobUID)
	if err != nil {
		if errors.Is(err, model.ErrPushNotFound) {
			return retryRequested, nil
		}
		return false, fmt.Errorf("end exec error for %s/%s: %w", senderName, jobUID, err)
	}

	retry := retryRequested
	if push.IsStopped() {
		retry = false
	}

	if push.LastExecID == nil {
		r.logger.Warn("Error event for push without attempts",
			slog.Int64("push_id", push.ID),
			slog.String("job_uid", jobUID),
		)
		return retry, nil
	}

	if err := r.store.CloseExec(ctx, *push.LastExecID, &errMsg, retry, r.now()); err != nil {
		return false, fmt.Errorf("end exec error for %s/%s: %w", senderName, jobUID, err)
	}

	r.logger.Info("Exec errored",
		slog.Int64("push_id", push.ID),
		slog.Int64("exec_id", *push.LastExecID),
		slog.Bool("retry", retry),
		slog.String("error", errMsg),
	)

	return retry, nil
}

// WorkerStart records a new worker process lifetime.
func (r *Recorder) WorkerStart(ctx context.Context, senderName, host string, pid int) (int64, error) {
	now := r.now()
	worker := &model.Worker{
		SenderName: senderName,
		Host:       host,
		Pid:        pid,
		StartedAt:  now,
		PingedAt:   now,
	}

	if err := r.store.CreateWorker(ctx, worker); err != nil {
		return 0, fmt.Errorf("worker start on %s:%d: %w", host, pid, err)
	}

	r.logger.Info("Worker started",
		slog.Int64("worker_id", worker.ID),
		slog.String("sender", senderName),
		slog.String("host", host),
		slog.Int("pid", pid),
	)

	return worker.ID, nil
}

// WorkerStop records a clean worker exit. The storage session is
// refreshed first: a connection left idle during a long worker lifetime
// may be broken, and the lookup must not fail on it.
func (r *Recorder) WorkerStop(ctx context.Context, host string, pid int) error {
	if err := r.store.Reconnect(ctx); err != nil {
		return fmt.Errorf("worker stop on %s:%d: %w", host, pid, err)
	}

	worker, err := r.store.FindActiveWorker(ctx, host, pid, r.now())
	if err != nil {
		if errors.Is(err, model.ErrWorkerNotFound) {
			r.logger.Warn("Stop event for unknown worker",
				slog.String("host", host),
				slog.Int("pid", pid),
			)
			return nil
		}
		return fmt.Errorf("worker stop on %s:%d: %w", host, pid, err)
	}

	if err := r.store.FinishWorker(ctx, worker.ID, r.now()); err != nil {
		return fmt.Errorf("worker stop on %s:%d: %w", host, pid, err)
	}

	r.logger.Info("Worker finished",
		slog.Int64("worker_id", worker.ID),
		slog.String("host", host),
		slog.Int("pid", pid),
	)

	return nil
}

// WorkerPing refreshes a worker's heartbeat.
func (r *Recorder) WorkerPing(ctx context.Context, host string, pid int) error {
	worker, err := r.store.FindActiveWorker(ctx, host, pid, r.now())
	if err != nil {
		if errors.Is(err, model.ErrWorkerNotFound) {
			return nil
		}
		return fmt.Errorf("worker ping on %s:%d: %w", host, pid, err)
	}

	if err := r.store.PingWorker(ctx, worker.ID, r.now()); err != nil {
		return fmt.Errorf("worker ping on %s:%d: %w", host, pid, err)
	}

	return nil
}

// RequestWorkerStop flags a worker for shutdown. The worker process
// observes the flag on its next loop iteration and exits on its own;
// the record stays active until the stop event arrives. Idempotent.
func (r *Recorder) RequestWorkerStop(ctx context.Context, workerID int64) error {
	if err := r.store.RequestWorkerStop(ctx, workerID, r.now()); err != nil {
		return fmt.Errorf("request stop of worker %d: %w", workerID, err)
	}

	r.logger.Info("Worker stop requested", slog.Int64("worker_id", workerID))
	return nil
}

// StopPush permanently forbids further attempts and retries of a push.
// Idempotent.
func (r *Recorder) StopPush(ctx context.Context, pushID int64) error {
	if _, err := r.store.FindPushByID(ctx, pushID); err != nil {
		return fmt.Errorf("stop push %d: %w", pushID, err)
	}

	if err := r.store.StopPush(ctx, pushID, r.now()); err != nil {
		return fmt.Errorf("stop push %d: %w", pushID, err)
	}

	r.logger.Info("Push stopped", slog.Int64("push_id", pushID))
	return nil
}

// currentWorkerID resolves the live worker for (host, pid) when worker
// tracking is on. A missing worker is not fatal: the attempt is simply
// recorded without attribution.
func (r *Recorder) currentWorkerID(ctx context.Context, host string, pid int) (*int64, error) {
	if !r.trackWorkers || pid == 0 {
		return nil, nil
	}

	worker, err := r.store.FindActiveWorker(ctx, host, pid, r.now())
	if err != nil {
		if errors.Is(err, model.ErrWorkerNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &worker.ID, nil
}

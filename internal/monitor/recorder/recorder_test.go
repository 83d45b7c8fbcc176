package recorder

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/queue-monitor/internal/monitor/model"
	"github.com/cuongbtq/queue-monitor/internal/monitor/scope"
)

// fakeStore is an in-memory Store with the same write semantics as the
// SQL layer.
type fakeStore struct {
	pushes  map[int64]*model.Push
	execs   map[int64]*model.Exec
	workers map[int64]*model.Worker

	nextPushID   int64
	nextExecID   int64
	nextWorkerID int64

	reconnects       int
	lookupsAfterConn int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pushes:  make(map[int64]*model.Push),
		execs:   make(map[int64]*model.Exec),
		workers: make(map[int64]*model.Worker),
	}
}

func (f *fakeStore) CreatePush(_ context.Context, push *model.Push) error {
	f.nextPushID++
	push.ID = f.nextPushID
	f.pushes[push.ID] = push
	return nil
}

func (f *fakeStore) FindPushByJob(_ context.Context, senderName, jobUID string) (*model.Push, error) {
	var found *model.Push
	for _, p := range f.pushes {
		if p.SenderName == senderName && p.JobUID == jobUID {
			if found == nil || p.ID > found.ID {
				found = p
			}
		}
	}
	if found == nil {
		return nil, model.ErrPushNotFound
	}
	return found, nil
}

func (f *fakeStore) FindPushByID(_ context.Context, id int64) (*model.Push, error) {
	p, ok := f.pushes[id]
	if !ok {
		return nil, model.ErrPushNotFound
	}
	return p, nil
}

func (f *fakeStore) StopPush(_ context.Context, id int64, now time.Time) error {
	p, ok := f.pushes[id]
	if !ok {
		return model.ErrPushNotFound
	}
	if p.StoppedAt == nil {
		stopped := now
		p.StoppedAt = &stopped
	}
	return nil
}

func (f *fakeStore) BeginExec(_ context.Context, push *model.Push, attempt int, workerID *int64, now time.Time) (int64, error) {
	f.nextExecID++
	exec := &model.Exec{
		ID:         f.nextExecID,
		PushID:     push.ID,
		WorkerID:   workerID,
		Attempt:    attempt,
		ReservedAt: now,
	}
	f.execs[exec.ID] = exec

	stored := f.pushes[push.ID]
	if stored.FirstExecID == nil {
		first := exec.ID
		stored.FirstExecID = &first
	}
	last := exec.ID
	stored.LastExecID = &last

	if workerID != nil {
		if w, ok := f.workers[*workerID]; ok {
			workerLast := exec.ID
			w.LastExecID = &workerLast
		}
	}

	return exec.ID, nil
}

func (f *fakeStore) CloseExec(_ context.Context, execID int64, execErr *string, retry bool, now time.Time) error {
	exec, ok := f.execs[execID]
	if !ok {
		return model.ErrExecNotFound
	}
	finished := now
	exec.FinishedAt = &finished
	exec.Error = execErr
	exec.Retry = retry
	return nil
}

func (f *fakeStore) CreateWorker(_ context.Context, worker *model.Worker) error {
	f.nextWorkerID++
	worker.ID = f.nextWorkerID
	f.workers[worker.ID] = worker
	return nil
}

func (f *fakeStore) FindActiveWorker(_ context.Context, host string, pid int, _ time.Time) (*model.Worker, error) {
	f.lookupsAfterConn++
	var found *model.Worker
	for _, w := range f.workers {
		if w.Host == host && w.Pid == pid && w.FinishedAt == nil {
			if found == nil || w.ID > found.ID {
				found = w
			}
		}
	}
	if found == nil {
		return nil, model.ErrWorkerNotFound
	}
	return found, nil
}

func (f *fakeStore) PingWorker(_ context.Context, workerID int64, now time.Time) error {
	w, ok := f.workers[workerID]
	if !ok {
		return model.ErrWorkerNotFound
	}
	w.PingedAt = now
	return nil
}

func (f *fakeStore) FinishWorker(_ context.Context, workerID int64, now time.Time) error {
	w, ok := f.workers[workerID]
	if !ok {
		return model.ErrWorkerNotFound
	}
	finished := now
	w.FinishedAt = &finished
	return nil
}

func (f *fakeStore) RequestWorkerStop(_ context.Context, workerID int64, now time.Time) error {
	w, ok := f.workers[workerID]
	if !ok {
		return nil
	}
	if w.StoppedAt == nil {
		stopped := now
		w.StoppedAt = &stopped
	}
	return nil
}

func (f *fakeStore) Reconnect(_ context.Context) error {
	f.reconnects++
	f.lookupsAfterConn = 0
	return nil
}

func (f *fakeStore) hasFailedExec(pushID int64) bool {
	for _, e := range f.execs {
		if e.PushID == pushID && e.Error != nil {
			return true
		}
	}
	return false
}

func (f *fakeStore) lastExec(push *model.Push) *model.Exec {
	if push.LastExecID == nil {
		return nil
	}
	return f.execs[*push.LastExecID]
}

func newTestRecorder(store Store, trackWorkers bool) *Recorder {
	return NewRecorder(&Config{
		Store:        store,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		TrackWorkers: trackWorkers,
		Clock: func() time.Time {
			return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		},
	})
}

func TestRecorder_PushBeginSuccess(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, false)
	ctx := context.Background()

	pushID, err := rec.RecordPush(ctx, PushEvent{
		SenderName: "default",
		JobUID:     "job-1",
		JobClass:   "app\\jobs\\SendEmail",
		JobData:    `{"to":"user@example.com"}`,
		TTR:        300,
	})
	require.NoError(t, err)
	require.NotZero(t, pushID)

	push := store.pushes[pushID]
	assert.ElementsMatch(t, []scope.Scope{scope.Waiting}, scope.Of(push, nil, false))

	decision, err := rec.BeginExec(ctx, ExecEvent{
		SenderName: "default",
		JobUID:     "job-1",
		Attempt:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeProceed, decision.Outcome)
	require.NotZero(t, decision.ExecID)

	assert.ElementsMatch(t,
		[]scope.Scope{scope.InProgress},
		scope.Of(push, store.lastExec(push), store.hasFailedExec(pushID)),
	)

	require.NoError(t, rec.EndExecSuccess(ctx, "default", "job-1"))

	assert.ElementsMatch(t,
		[]scope.Scope{scope.Done, scope.Success},
		scope.Of(push, store.lastExec(push), store.hasFailedExec(pushID)),
	)
}

func TestRecorder_BeginExec_UnknownPushIgnored(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, false)

	decision, err := rec.BeginExec(context.Background(), ExecEvent{
		SenderName: "default",
		JobUID:     "never-pushed",
		Attempt:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnore, decision.Outcome)
	assert.Empty(t, store.execs)
}

func TestRecorder_BeginExec_StoppedPushRejected(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, false)
	ctx := context.Background()

	pushID, err := rec.RecordPush(ctx, PushEvent{SenderName: "default", JobUID: "job-1", JobClass: "app\\jobs\\SendEmail"})
	require.NoError(t, err)

	require.NoError(t, rec.StopPush(ctx, pushID))

	decision, err := rec.BeginExec(ctx, ExecEvent{SenderName: "default", JobUID: "job-1", Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReject, decision.Outcome)

	// The veto leaves no trace of the attempt behind.
	assert.Empty(t, store.execs)
	assert.Nil(t, store.pushes[pushID].FirstExecID)
	assert.Nil(t, store.pushes[pushID].LastExecID)
}

func TestRecorder_StopPush(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, false)
	ctx := context.Background()

	pushID, err := rec.RecordPush(ctx, PushEvent{SenderName: "default", JobUID: "job-1", JobClass: "app\\jobs\\SendEmail"})
	require.NoError(t, err)

	require.NoError(t, rec.StopPush(ctx, pushID))
	firstStop := *store.pushes[pushID].StoppedAt

	// Idempotent: a second stop keeps the original timestamp.
	require.NoError(t, rec.StopPush(ctx, pushID))
	assert.Equal(t, firstStop, *store.pushes[pushID].StoppedAt)

	err = rec.StopPush(ctx, 9999)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPushNotFound)
}

func TestRecorder_ExecPointers_OverManyAttempts(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, false)
	ctx := context.Background()

	pushID, err := rec.RecordPush(ctx, PushEvent{SenderName: "default", JobUID: "job-1", JobClass: "app\\jobs\\Crunch"})
	require.NoError(t, err)

	var firstExecID int64
	for attempt := 1; attempt <= 10; attempt++ {
		decision, err := rec.BeginExec(ctx, ExecEvent{SenderName: "default", JobUID: "job-1", Attempt: attempt})
		require.NoError(t, err)
		require.Equal(t, OutcomeProceed, decision.Outcome)

		if attempt == 1 {
			firstExecID = decision.ExecID
		}

		push := store.pushes[pushID]
		require.NotNil(t, push.FirstExecID)
		require.NotNil(t, push.LastExecID)
		assert.Equal(t, firstExecID, *push.FirstExecID, "first exec pointer must never move")
		assert.Equal(t, decision.ExecID, *push.LastExecID, "last exec pointer must track the newest attempt")

		retry := attempt < 10
		_, err = rec.EndExecError(ctx, "default", "job-1", "transient failure", retry)
		require.NoError(t, err)
	}

	assert.Len(t, store.execs, 10)
}

func TestRecorder_EndExecError(t *testing.T) {
	t.Run("retry requested and allowed", func(t *testing.T) {
		store := newFakeStore()
		rec := newTestRecorder(store, false)
		ctx := context.Background()

		pushID, err := rec.RecordPush(ctx, PushEvent{SenderName: "default", JobUID: "job-1", JobClass: "app\\jobs\\SendEmail"})
		require.NoError(t, err)

		_, err = rec.BeginExec(ctx, ExecEvent{SenderName: "default", JobUID: "job-1", Attempt: 1})
		require.NoError(t, err)

		retry, err := rec.EndExecError(ctx, "default", "job-1", "connection refused", true)
		require.NoError(t, err)
		assert.True(t, retry)

		push := store.pushes[pushID]
		last := store.lastExec(push)
		require.NotNil(t, last.FinishedAt)
		require.NotNil(t, last.Error)
		assert.Equal(t, "connection refused", *last.Error)
		assert.True(t, last.Retry)

		// Errored with retry pending: back to waiting, failure history kept.
		assert.ElementsMatch(t,
			[]scope.Scope{scope.Waiting, scope.HasFails},
			scope.Of(push, last, store.hasFailedExec(pushID)),
		)
	})

	t.Run("stopped push forces retry off", func(t *testing.T) {
		store := newFakeStore()
		rec := newTestRecorder(store, false)
		ctx := context.Background()

		pushID, err := rec.RecordPush(ctx, PushEvent{SenderName: "default", JobUID: "job-1", JobClass: "app\\jobs\\SendEmail"})
		require.NoError(t, err)

		_, err = rec.BeginExec(ctx, ExecEvent{SenderName: "default", JobUID: "job-1", Attempt: 1})
		require.NoError(t, err)

		require.NoError(t, rec.StopPush(ctx, pushID))

		retry, err := rec.EndExecError(ctx, "default", "job-1", "boom", true)
		require.NoError(t, err)
		assert.False(t, retry, "stop must override the queue's retry request")

		last := store.lastExec(store.pushes[pushID])
		assert.False(t, last.Retry)
	})

	t.Run("unknown push echoes the request", func(t *testing.T) {
		store := newFakeStore()
		rec := newTestRecorder(store, false)

		retry, err := rec.EndExecError(context.Background(), "default", "never-pushed", "boom", true)
		require.NoError(t, err)
		assert.True(t, retry)
	})
}

func TestRecorder_RecoveredPushKeepsFailureHistory(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, false)
	ctx := context.Background()

	pushID, err := rec.RecordPush(ctx, PushEvent{SenderName: "default", JobUID: "job-1", JobClass: "app\\jobs\\SendEmail"})
	require.NoError(t, err)

	_, err = rec.BeginExec(ctx, ExecEvent{SenderName: "default", JobUID: "job-1", Attempt: 1})
	require.NoError(t, err)
	_, err = rec.EndExecError(ctx, "default", "job-1", "boom", true)
	require.NoError(t, err)

	_, err = rec.BeginExec(ctx, ExecEvent{SenderName: "default", JobUID: "job-1", Attempt: 2})
	require.NoError(t, err)
	require.NoError(t, rec.EndExecSuccess(ctx, "default", "job-1"))

	push := store.pushes[pushID]
	assert.ElementsMatch(t,
		[]scope.Scope{scope.Done, scope.Success, scope.HasFails},
		scope.Of(push, store.lastExec(push), store.hasFailedExec(pushID)),
	)
}

func TestRecorder_EndExecSuccess_ToleratesMissingState(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, false)
	ctx := context.Background()

	// Unknown push: dropped silently.
	require.NoError(t, rec.EndExecSuccess(ctx, "default", "never-pushed"))

	// Known push with no attempts: warn and drop.
	_, err := rec.RecordPush(ctx, PushEvent{SenderName: "default", JobUID: "job-1", JobClass: "app\\jobs\\SendEmail"})
	require.NoError(t, err)
	require.NoError(t, rec.EndExecSuccess(ctx, "default", "job-1"))
	assert.Empty(t, store.execs)
}

func TestRecorder_WorkerLifecycle(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, true)
	ctx := context.Background()

	workerID, err := rec.WorkerStart(ctx, "default", "host-a", 4242)
	require.NoError(t, err)
	require.NotZero(t, workerID)

	require.NoError(t, rec.WorkerPing(ctx, "host-a", 4242))

	// An attempt started on this host/pid is attributed to the worker.
	_, err = rec.RecordPush(ctx, PushEvent{SenderName: "default", JobUID: "job-1", JobClass: "app\\jobs\\SendEmail"})
	require.NoError(t, err)

	decision, err := rec.BeginExec(ctx, ExecEvent{
		SenderName: "default",
		JobUID:     "job-1",
		Attempt:    1,
		Host:       "host-a",
		Pid:        4242,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeProceed, decision.Outcome)

	exec := store.execs[decision.ExecID]
	require.NotNil(t, exec.WorkerID)
	assert.Equal(t, workerID, *exec.WorkerID)

	worker := store.workers[workerID]
	require.NotNil(t, worker.LastExecID)
	assert.Equal(t, decision.ExecID, *worker.LastExecID)

	require.NoError(t, rec.WorkerStop(ctx, "host-a", 4242))
	assert.NotNil(t, store.workers[workerID].FinishedAt)

	// Stopping again finds no active worker and is not an error.
	require.NoError(t, rec.WorkerStop(ctx, "host-a", 4242))
}

func TestRecorder_RequestWorkerStop(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, true)
	ctx := context.Background()

	workerID, err := rec.WorkerStart(ctx, "default", "host-a", 4242)
	require.NoError(t, err)

	require.NoError(t, rec.RequestWorkerStop(ctx, workerID))
	require.NotNil(t, store.workers[workerID].StoppedAt)

	// The flag alone does not finish the record; the process still has
	// to report its exit.
	assert.Nil(t, store.workers[workerID].FinishedAt)
}

func TestRecorder_WorkerStop_RefreshesSessionFirst(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, true)
	ctx := context.Background()

	_, err := rec.WorkerStart(ctx, "default", "host-a", 4242)
	require.NoError(t, err)

	store.lookupsAfterConn = 5

	require.NoError(t, rec.WorkerStop(ctx, "host-a", 4242))
	assert.Equal(t, 1, store.reconnects)
	assert.Equal(t, 1, store.lookupsAfterConn, "lookup must run after the session refresh")
}

func TestRecorder_BeginExec_NoAttributionWithoutTracking(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, false)
	ctx := context.Background()

	_, err := rec.WorkerStart(ctx, "default", "host-a", 4242)
	require.NoError(t, err)

	_, err = rec.RecordPush(ctx, PushEvent{SenderName: "default", JobUID: "job-1", JobClass: "app\\jobs\\SendEmail"})
	require.NoError(t, err)

	decision, err := rec.BeginExec(ctx, ExecEvent{
		SenderName: "default",
		JobUID:     "job-1",
		Attempt:    1,
		Host:       "host-a",
		Pid:        4242,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeProceed, decision.Outcome)
	assert.Nil(t, store.execs[decision.ExecID].WorkerID)
}

func TestRecorder_ReusedJobUID_TargetsNewestPush(t *testing.T) {
	store := newFakeStore()
	rec := newTestRecorder(store, false)
	ctx := context.Background()

	firstID, err := rec.RecordPush(ctx, PushEvent{SenderName: "default", JobUID: "job-1", JobClass: "app\\jobs\\SendEmail"})
	require.NoError(t, err)
	secondID, err := rec.RecordPush(ctx, PushEvent{SenderName: "default", JobUID: "job-1", JobClass: "app\\jobs\\SendEmail"})
	require.NoError(t, err)

	decision, err := rec.BeginExec(ctx, ExecEvent{SenderName: "default", JobUID: "job-1", Attempt: 1})
	require.NoError(t, err)
	require.Equal(t, OutcomeProceed, decision.Outcome)

	assert.Nil(t, store.pushes[firstID].LastExecID)
	require.NotNil(t, store.pushes[secondID].LastExecID)
	assert.Equal(t, decision.ExecID, *store.pushes[secondID].LastExecID)
}

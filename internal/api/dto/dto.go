package dto

import "github.com/cuongbtq/queue-monitor/internal/monitor/query"

// PushEventRequest is the push lifecycle hook payload.
type PushEventRequest struct {
	Sender   string `json:"sender" binding:"required"`
	JobUID   string `json:"job_uid" binding:"required"`
	JobClass string `json:"job_class" binding:"required"`
	JobData  string `json:"job_data"`
	Context  string `json:"context"`
	TTR      int    `json:"ttr"`
	Delay    int    `json:"delay"`
}

// BeginExecRequest is sent by the queue before it executes an attempt.
// Host and pid identify the worker process about to run the job.
type BeginExecRequest struct {
	Sender  string `json:"sender" binding:"required"`
	JobUID  string `json:"job_uid" binding:"required"`
	Attempt int    `json:"attempt" binding:"required,min=1"`
	Host    string `json:"host"`
	Pid     int    `json:"pid"`
}

// BeginExecResponse carries the recorder's decision back to the queue.
// A "reject" decision must be honored by skipping the job without
// consuming a retry.
type BeginExecResponse struct {
	Decision string `json:"decision"`
	ExecID   int64  `json:"exec_id,omitempty"`
}

// EndExecRequest reports a successful attempt.
type EndExecRequest struct {
	Sender string `json:"sender" binding:"required"`
	JobUID string `json:"job_uid" binding:"required"`
}

// ExecErrorRequest reports a failed attempt together with the queue's
// own intention to retry.
type ExecErrorRequest struct {
	Sender         string `json:"sender" binding:"required"`
	JobUID         string `json:"job_uid" binding:"required"`
	Error          string `json:"error" binding:"required"`
	RetryRequested bool   `json:"retry_requested"`
}

// ExecErrorResponse tells the queue whether its retry is still allowed.
type ExecErrorResponse struct {
	RetryAllowed bool `json:"retry_allowed"`
}

// WorkerStartRequest reports a new worker process.
type WorkerStartRequest struct {
	Sender string `json:"sender" binding:"required"`
	Host   string `json:"host" binding:"required"`
	Pid    int    `json:"pid" binding:"required"`
}

// WorkerStopRequest reports a clean worker shutdown.
type WorkerStopRequest struct {
	Host string `json:"host" binding:"required"`
	Pid  int    `json:"pid" binding:"required"`
}

// SearchPushesRequest is the dashboard search filter plus pagination.
type SearchPushesRequest struct {
	Scope        string `form:"scope"`
	Sender       string `form:"sender"`
	Class        string `form:"class"`
	Contains     string `form:"contains"`
	PushedAfter  string `form:"pushed_after"`
	PushedBefore string `form:"pushed_before"`
	PageSize     int    `form:"page_size"`
	Cursor       string `form:"cursor"`
}

// PushDTO is the wire shape of a push record.
type PushDTO struct {
	ID          int64   `json:"id"`
	Sender      string  `json:"sender"`
	JobUID      string  `json:"job_uid"`
	JobClass    string  `json:"job_class"`
	JobData     string  `json:"job_data"`
	Context     string  `json:"context,omitempty"`
	TTR         int     `json:"ttr"`
	Delay       int     `json:"delay"`
	PushedAt    string  `json:"pushed_at"`
	StoppedAt   *string `json:"stopped_at,omitempty"`
	FirstExecID *int64  `json:"first_exec_id,omitempty"`
	LastExecID  *int64  `json:"last_exec_id,omitempty"`
}

// ExecDTO is the wire shape of one execution attempt.
type ExecDTO struct {
	ID         int64   `json:"id"`
	PushID     int64   `json:"push_id"`
	WorkerID   *int64  `json:"worker_id,omitempty"`
	Attempt    int     `json:"attempt"`
	ReservedAt string  `json:"reserved_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
	Error      *string `json:"error,omitempty"`
	Retry      bool    `json:"retry"`
}

// SearchPushesResponse is one page of search results. FieldErrors is
// set when the filter was invalid; the page is then empty.
type SearchPushesResponse struct {
	Pushes      []PushDTO          `json:"pushes"`
	NextCursor  string             `json:"next_cursor,omitempty"`
	FieldErrors []query.FieldError `json:"field_errors,omitempty"`
}

// FindPushResponse is a push located by (sender, job_uid) with its
// scope labels.
type FindPushResponse struct {
	Push   PushDTO  `json:"push"`
	Scopes []string `json:"scopes"`
}

// PushDetailResponse is a push with its attempt history and scopes.
type PushDetailResponse struct {
	Push   PushDTO   `json:"push"`
	Execs  []ExecDTO `json:"execs"`
	Scopes []string  `json:"scopes"`
}

// GroupCountDTO is one grouped aggregate row.
type GroupCountDTO struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// WorkerDTO is the wire shape of a live worker.
type WorkerDTO struct {
	ID            int64  `json:"id"`
	Sender        string `json:"sender"`
	Host          string `json:"host"`
	Pid           int    `json:"pid"`
	StartedAt     string `json:"started_at"`
	PingedAt      string `json:"pinged_at"`
	Uptime        string `json:"uptime"`
	Status        string `json:"status"`
	StopRequested bool   `json:"stop_requested"`
	ExecStarted   int    `json:"exec_started"`
	ExecDone      int    `json:"exec_done"`
}

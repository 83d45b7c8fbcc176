package recorder

// PushEvent carries the payload snapshot of a single enqueue.
type PushEvent struct {
	SenderName string
	JobUID     string
	JobClass   string
	JobData    string
	Context    string
	TTR        int
	Delay      int
}

// ExecEvent identifies an execution attempt about to start. Host and Pid
// name the worker process running the attempt; they are passed in
// explicitly rather than read from ambient process state so that several
// simulated workers can share one test process.
type ExecEvent struct {
	SenderName string
	JobUID     string
	Attempt    int
	Host       string
	Pid        int
}

// Outcome is the recorder's verdict on an attempt about to start.
type Outcome int

const (
	// OutcomeIgnore means the event could not be correlated to a known
	// push. Not an error: another, untracked queue instance may have
	// pushed the job.
	OutcomeIgnore Outcome = iota

	// OutcomeReject tells the queue to skip executing the job because
	// its push has been stopped. The queue must not treat this as a
	// failure that consumes a retry.
	OutcomeReject

	// OutcomeProceed permits the attempt; an exec record was created.
	OutcomeProceed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnore:
		return "ignore"
	case OutcomeReject:
		return "reject"
	case OutcomeProceed:
		return "proceed"
	}
	return "unknown"
}

// Decision is the result of BeginExec. ExecID is set only for
// OutcomeProceed.
type Decision struct {
	Outcome Outcome
	ExecID  int64
}

package events

import "fmt"

// Event types carried on the broker. Only fire-and-forget events travel
// this path; begin-exec and exec-error need a synchronous decision reply
// and must use the HTTP hooks instead.
const (
	TypePush        = "push"
	TypeExecDone    = "exec_done"
	TypeWorkerStart = "worker_start"
	TypeWorkerStop  = "worker_stop"
	TypeWorkerPing  = "worker_ping"
)

// Envelope is the wire format of a lifecycle event message. Fields are
// populated per event type; Validate checks the ones the type requires.
type Envelope struct {
	Type     string `json:"type"`
	Sender   string `json:"sender"`
	JobUID   string `json:"job_uid"`
	JobClass string `json:"job_class"`
	JobData  string `json:"job_data"`
	Context  string `json:"context"`
	TTR      int    `json:"ttr"`
	Delay    int    `json:"delay"`
	Host     string `json:"host"`
	Pid      int    `json:"pid"`
}

// Validate checks that the envelope carries the fields its type needs.
func (e *Envelope) Validate() error {
	switch e.Type {
	case TypePush:
		if e.Sender == "" || e.JobUID == "" || e.JobClass == "" {
			return fmt.Errorf("push event requires sender, job_uid and job_class")
		}
	case TypeExecDone:
		if e.Sender == "" || e.JobUID == "" {
			return fmt.Errorf("exec_done event requires sender and job_uid")
		}
	case TypeWorkerStart:
		if e.Sender == "" || e.Host == "" || e.Pid == 0 {
			return fmt.Errorf("worker_start event requires sender, host and pid")
		}
	case TypeWorkerStop, TypeWorkerPing:
		if e.Host == "" || e.Pid == 0 {
			return fmt.Errorf("%s event requires host and pid", e.Type)
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

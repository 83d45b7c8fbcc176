package scope

import "github.com/cuongbtq/queue-monitor/internal/monitor/model"

// Scope is a named classification of a push's current state. Scopes are
// deliberately overlapping: Stopped can co-occur with any other scope, and
// HasFails co-occurs with Done/Success when a later attempt recovered.
// Never collapse them into a single status enum.
type Scope string

const (
	Waiting    Scope = "waiting"
	InProgress Scope = "in-progress"
	Done       Scope = "done"
	Success    Scope = "success"
	Buried     Scope = "buried"
	HasFails   Scope = "failed"
	Stopped    Scope = "stopped"
)

// List returns the scopes exposed to dashboard filters by default.
// HasFails is fully queryable but intentionally not listed; its existence
// subquery is costly on large exec tables.
func List() []Scope {
	return []Scope{Waiting, InProgress, Done, Success, Buried, Stopped}
}

// Known reports whether name is a valid scope, including HasFails.
func Known(name string) bool {
	switch Scope(name) {
	case Waiting, InProgress, Done, Success, Buried, HasFails, Stopped:
		return true
	}
	return false
}

// IsWaiting reports whether the push has no attempt yet, or its last
// attempt ended with a retry pending. A stopped push is never waiting.
func IsWaiting(p *model.Push, lastExec *model.Exec) bool {
	if p.IsStopped() {
		return false
	}
	if p.LastExecID == nil {
		return true
	}
	return lastExec != nil && lastExec.Retry
}

// IsInProgress reports whether the push's last attempt is still open.
func IsInProgress(p *model.Push, lastExec *model.Exec) bool {
	if p.LastExecID == nil {
		return false
	}
	return lastExec != nil && lastExec.IsOpen()
}

// IsDone reports whether the push's last attempt finished and the queue
// will not retry it.
func IsDone(p *model.Push, lastExec *model.Exec) bool {
	if p.LastExecID == nil || lastExec == nil {
		return false
	}
	return lastExec.FinishedAt != nil && !lastExec.Retry
}

// IsSuccess reports whether the push is done without an error.
func IsSuccess(p *model.Push, lastExec *model.Exec) bool {
	return IsDone(p, lastExec) && lastExec.Error == nil
}

// IsBuried reports whether the push is done and its final attempt errored.
func IsBuried(p *model.Push, lastExec *model.Exec) bool {
	return IsDone(p, lastExec) && lastExec.Error != nil
}

// IsStopped reports whether the push has been administratively stopped.
func IsStopped(p *model.Push) bool {
	return p.IsStopped()
}

// Matches evaluates a single scope against a push, its last exec and the
// hasFailedExec fact (whether any attempt of the push ever errored).
// Unknown scopes match nothing.
func Matches(s Scope, p *model.Push, lastExec *model.Exec, hasFailedExec bool) bool {
	switch s {
	case Waiting:
		return IsWaiting(p, lastExec)
	case InProgress:
		return IsInProgress(p, lastExec)
	case Done:
		return IsDone(p, lastExec)
	case Success:
		return IsSuccess(p, lastExec)
	case Buried:
		return IsBuried(p, lastExec)
	case HasFails:
		return hasFailedExec
	case Stopped:
		return IsStopped(p)
	}
	return false
}

// Of returns every scope the push currently belongs to.
func Of(p *model.Push, lastExec *model.Exec, hasFailedExec bool) []Scope {
	var scopes []Scope
	for _, s := range []Scope{Waiting, InProgress, Done, Success, Buried, HasFails, Stopped} {
		if Matches(s, p, lastExec, hasFailedExec) {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

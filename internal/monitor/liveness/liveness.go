package liveness

import (
	"time"

	"github.com/cuongbtq/queue-monitor/internal/monitor/model"
)

// Grace absorbs scheduling jitter in heartbeat delivery. A heartbeat is
// considered fresh while it is younger than PingInterval + Grace.
const Grace = 5 * time.Second

// Detector decides whether a worker record represents a process that is
// believed to still be running.
type Detector struct {
	// PingInterval is the configured heartbeat period of worker
	// processes. Zero disables heartbeat-based liveness entirely.
	PingInterval time.Duration
}

// Active reports whether the worker is live at the given instant.
//
// A worker with an open exec counts as live even when its heartbeat is
// stale: a long job can starve the ping loop, and an in-progress attempt
// is itself evidence of life. A crashed worker mid-job therefore looks
// active until an external reaper judges its exec abandoned.
func (d Detector) Active(w *model.Worker, hasOpenExec bool, now time.Time) bool {
	if w.FinishedAt != nil {
		return false
	}
	if d.PingInterval <= 0 {
		// Without heartbeats the clean finish mark is the only death
		// signal we have.
		return true
	}
	if now.Sub(w.PingedAt) < d.PingInterval+Grace {
		return true
	}
	return w.LastExecID != nil && hasOpenExec
}

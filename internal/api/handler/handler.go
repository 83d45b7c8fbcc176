package handler

import (
	"log/slog"

	"github.com/cuongbtq/queue-monitor/internal/monitor/query"
	"github.com/cuongbtq/queue-monitor/internal/monitor/recorder"
)

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Logger   *slog.Logger
	Recorder *recorder.Recorder
	Query    *query.Service
}

// EventHandler serves the synchronous lifecycle hooks called by queue
// instances.
type EventHandler struct {
	logger   *slog.Logger
	recorder *recorder.Recorder
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(deps *Dependencies) *EventHandler {
	return &EventHandler{
		logger:   deps.Logger,
		recorder: deps.Recorder,
	}
}

// PushHandler serves the dashboard query API over push records.
type PushHandler struct {
	logger   *slog.Logger
	query    *query.Service
	recorder *recorder.Recorder
}

// NewPushHandler creates a PushHandler.
func NewPushHandler(deps *Dependencies) *PushHandler {
	return &PushHandler{
		logger:   deps.Logger,
		query:    deps.Query,
		recorder: deps.Recorder,
	}
}

// WorkerHandler serves the live-worker views and stop requests.
type WorkerHandler struct {
	logger   *slog.Logger
	query    *query.Service
	recorder *recorder.Recorder
}

// NewWorkerHandler creates a WorkerHandler.
func NewWorkerHandler(deps *Dependencies) *WorkerHandler {
	return &WorkerHandler{
		logger:   deps.Logger,
		query:    deps.Query,
		recorder: deps.Recorder,
	}
}

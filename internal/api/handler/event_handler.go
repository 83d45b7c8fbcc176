package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/queue-monitor/internal/api/dto"
	"github.com/cuongbtq/queue-monitor/internal/monitor/recorder"
)

// RecordPush handles POST /api/v1/events/push
func (h *EventHandler) RecordPush(c *gin.Context) {
	var req dto.PushEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid push event", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	pushID, err := h.recorder.RecordPush(c.Request.Context(), recorder.PushEvent{
		SenderName: req.Sender,
		JobUID:     req.JobUID,
		JobClass:   req.JobClass,
		JobData:    req.JobData,
		Context:    req.Context,
		TTR:        req.TTR,
		Delay:      req.Delay,
	})
	if err != nil {
		h.logger.Error("Failed to record push",
			slog.String("sender", req.Sender),
			slog.String("job_uid", req.JobUID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record push"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"push_id": pushID})
}

// BeginExec handles POST /api/v1/events/exec/begin
//
// Returns the recorder's decision; the queue must skip execution on
// "reject" without consuming a retry.
func (h *EventHandler) BeginExec(c *gin.Context) {
	var req dto.BeginExecRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid begin-exec event", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	decision, err := h.recorder.BeginExec(c.Request.Context(), recorder.ExecEvent{
		SenderName: req.Sender,
		JobUID:     req.JobUID,
		Attempt:    req.Attempt,
		Host:       req.Host,
		Pid:        req.Pid,
	})
	if err != nil {
		h.logger.Error("Failed to record exec start",
			slog.String("sender", req.Sender),
			slog.String("job_uid", req.JobUID),
			slog.Int("attempt", req.Attempt),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record exec start"})
		return
	}

	resp := dto.BeginExecResponse{Decision: decision.Outcome.String()}
	if decision.Outcome == recorder.OutcomeProceed {
		resp.ExecID = decision.ExecID
	}
	c.JSON(http.StatusOK, resp)
}

// EndExec handles POST /api/v1/events/exec/done
func (h *EventHandler) EndExec(c *gin.Context) {
	var req dto.EndExecRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid end-exec event", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.recorder.EndExecSuccess(c.Request.Context(), req.Sender, req.JobUID); err != nil {
		h.logger.Error("Failed to record exec success",
			slog.String("sender", req.Sender),
			slog.String("job_uid", req.JobUID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record exec success"})
		return
	}

	c.Status(http.StatusNoContent)
}

// ExecError handles POST /api/v1/events/exec/error
//
// Replies whether the queue's requested retry is still allowed; a
// stopped push forces the answer to false.
func (h *EventHandler) ExecError(c *gin.Context) {
	var req dto.ExecErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid exec-error event", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	retryAllowed, err := h.recorder.EndExecError(c.Request.Context(), req.Sender, req.JobUID, req.Error, req.RetryRequested)
	if err != nil {
		h.logger.Error("Failed to record exec error",
			slog.String("sender", req.Sender),
			slog.String("job_uid", req.JobUID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record exec error"})
		return
	}

	c.JSON(http.StatusOK, dto.ExecErrorResponse{RetryAllowed: retryAllowed})
}

// WorkerStart handles POST /api/v1/events/worker/start
func (h *EventHandler) WorkerStart(c *gin.Context) {
	var req dto.WorkerStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid worker-start event", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	workerID, err := h.recorder.WorkerStart(c.Request.Context(), req.Sender, req.Host, req.Pid)
	if err != nil {
		h.logger.Error("Failed to record worker start",
			slog.String("host", req.Host),
			slog.Int("pid", req.Pid),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record worker start"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"worker_id": workerID})
}

// WorkerStop handles POST /api/v1/events/worker/stop
func (h *EventHandler) WorkerStop(c *gin.Context) {
	var req dto.WorkerStopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid worker-stop event", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.recorder.WorkerStop(c.Request.Context(), req.Host, req.Pid); err != nil {
		h.logger.Error("Failed to record worker stop",
			slog.String("host", req.Host),
			slog.Int("pid", req.Pid),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record worker stop"})
		return
	}

	c.Status(http.StatusNoContent)
}

package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/queue-monitor/internal/api/dto"
)

// ListWorkers handles GET /api/v1/workers
//
// Only workers the liveness detector judges active are returned; a
// crashed process with a stale heartbeat and no open attempt drops out
// of this list on its own.
func (h *WorkerHandler) ListWorkers(c *gin.Context) {
	workers, err := h.query.Workers(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list workers", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list workers"})
		return
	}

	now := time.Now()
	resp := make([]dto.WorkerDTO, len(workers))
	for i := range workers {
		w := &workers[i]
		status := "idle"
		if w.HasOpenExec {
			status = "busy"
		}
		resp[i] = dto.WorkerDTO{
			ID:            w.ID,
			Sender:        w.SenderName,
			Host:          w.Host,
			Pid:           w.Pid,
			StartedAt:     w.StartedAt.Format(time.RFC3339),
			PingedAt:      w.PingedAt.Format(time.RFC3339),
			Uptime:        w.Duration(now).Truncate(time.Second).String(),
			Status:        status,
			StopRequested: w.StoppedAt != nil,
			ExecStarted:   w.ExecStarted,
			ExecDone:      w.ExecDone,
		}
	}

	c.JSON(http.StatusOK, gin.H{"workers": resp})
}

// StopWorker handles POST /api/v1/workers/:worker_id/stop
//
// Flags the worker for shutdown; the process exits on its own and
// reports a worker-stop event when it does.
func (h *WorkerHandler) StopWorker(c *gin.Context) {
	workerID, err := strconv.ParseInt(c.Param("worker_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "worker_id must be an integer"})
		return
	}

	if err := h.recorder.RequestWorkerStop(c.Request.Context(), workerID); err != nil {
		h.logger.Error("Failed to request worker stop",
			slog.Int64("worker_id", workerID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to request worker stop"})
		return
	}

	c.Status(http.StatusNoContent)
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/queue-monitor/internal/api/dto"
	"github.com/cuongbtq/queue-monitor/internal/monitor/model"
	"github.com/cuongbtq/queue-monitor/internal/monitor/query"
)

// SearchPushes handles GET /api/v1/pushes
//
// An invalid filter value returns an empty page with field errors,
// never an unfiltered result set.
func (h *PushHandler) SearchPushes(c *gin.Context) {
	var req dto.SearchPushesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodePushCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return
	}

	filter := query.Filter{
		Scope:        req.Scope,
		Sender:       req.Sender,
		Class:        req.Class,
		Contains:     req.Contains,
		PushedAfter:  req.PushedAfter,
		PushedBefore: req.PushedBefore,
	}

	result, err := h.query.Search(c.Request.Context(), filter, req.PageSize, cursor)
	if err != nil {
		h.logger.Error("Failed to search pushes", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search pushes"})
		return
	}

	resp := dto.SearchPushesResponse{
		Pushes:      make([]dto.PushDTO, len(result.Pushes)),
		FieldErrors: result.Errors,
	}
	for i := range result.Pushes {
		resp.Pushes[i] = toPushDTO(&result.Pushes[i])
	}
	if result.NextCursor != nil {
		resp.NextCursor = EncodePushCursor(result.NextCursor)
	}

	c.JSON(http.StatusOK, resp)
}

// FindPush handles GET /api/v1/pushes/find?sender=&job_uid=
func (h *PushHandler) FindPush(c *gin.Context) {
	sender := c.Query("sender")
	jobUID := c.Query("job_uid")
	if sender == "" || jobUID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender and job_uid are required"})
		return
	}

	summary, err := h.query.FindPush(c.Request.Context(), sender, jobUID)
	if err != nil {
		if errors.Is(err, model.ErrPushNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Push not found"})
			return
		}
		h.logger.Error("Failed to find push",
			slog.String("sender", sender),
			slog.String("job_uid", jobUID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to find push"})
		return
	}

	resp := dto.FindPushResponse{
		Push:   toPushDTO(&summary.Push),
		Scopes: make([]string, len(summary.Scopes)),
	}
	for i, s := range summary.Scopes {
		resp.Scopes[i] = string(s)
	}

	c.JSON(http.StatusOK, resp)
}

// GetPush handles GET /api/v1/pushes/:push_id
func (h *PushHandler) GetPush(c *gin.Context) {
	pushID, err := strconv.ParseInt(c.Param("push_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "push_id must be an integer"})
		return
	}

	detail, err := h.query.GetPush(c.Request.Context(), pushID)
	if err != nil {
		if errors.Is(err, model.ErrPushNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Push not found"})
			return
		}
		h.logger.Error("Failed to get push",
			slog.Int64("push_id", pushID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get push"})
		return
	}

	resp := dto.PushDetailResponse{
		Push:   toPushDTO(&detail.Push),
		Execs:  make([]dto.ExecDTO, len(detail.Execs)),
		Scopes: make([]string, len(detail.Scopes)),
	}
	for i := range detail.Execs {
		resp.Execs[i] = toExecDTO(&detail.Execs[i])
	}
	for i, s := range detail.Scopes {
		resp.Scopes[i] = string(s)
	}

	c.JSON(http.StatusOK, resp)
}

// StopPush handles POST /api/v1/pushes/:push_id/stop
//
// Idempotent: stopping an already-stopped push keeps its original
// stopped_at.
func (h *PushHandler) StopPush(c *gin.Context) {
	pushID, err := strconv.ParseInt(c.Param("push_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "push_id must be an integer"})
		return
	}

	if err := h.recorder.StopPush(c.Request.Context(), pushID); err != nil {
		if errors.Is(err, model.ErrPushNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Push not found"})
			return
		}
		h.logger.Error("Failed to stop push",
			slog.Int64("push_id", pushID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stop push"})
		return
	}

	c.Status(http.StatusNoContent)
}

// GroupByClass handles GET /api/v1/stats/classes
func (h *PushHandler) GroupByClass(c *gin.Context) {
	counts, err := h.query.GroupByClass(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to group by class", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load class stats"})
		return
	}

	resp := make([]dto.GroupCountDTO, len(counts))
	for i, gc := range counts {
		resp[i] = dto.GroupCountDTO{Name: gc.Name, Count: gc.Count}
	}
	c.JSON(http.StatusOK, gin.H{"classes": resp})
}

// GroupBySender handles GET /api/v1/stats/senders
func (h *PushHandler) GroupBySender(c *gin.Context) {
	counts, err := h.query.GroupBySender(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to group by sender", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load sender stats"})
		return
	}

	resp := make([]dto.GroupCountDTO, len(counts))
	for i, gc := range counts {
		resp[i] = dto.GroupCountDTO{Name: gc.Name, Count: gc.Count}
	}
	c.JSON(http.StatusOK, gin.H{"senders": resp})
}

func toPushDTO(push *model.Push) dto.PushDTO {
	d := dto.PushDTO{
		ID:          push.ID,
		Sender:      push.SenderName,
		JobUID:      push.JobUID,
		JobClass:    push.JobClass,
		JobData:     push.JobData,
		Context:     push.Context,
		TTR:         push.TTR,
		Delay:       push.Delay,
		PushedAt:    push.PushedAt.Format(time.RFC3339),
		FirstExecID: push.FirstExecID,
		LastExecID:  push.LastExecID,
	}
	if push.StoppedAt != nil {
		s := push.StoppedAt.Format(time.RFC3339)
		d.StoppedAt = &s
	}
	return d
}

func toExecDTO(exec *model.Exec) dto.ExecDTO {
	d := dto.ExecDTO{
		ID:         exec.ID,
		PushID:     exec.PushID,
		WorkerID:   exec.WorkerID,
		Attempt:    exec.Attempt,
		ReservedAt: exec.ReservedAt.Format(time.RFC3339),
		Error:      exec.Error,
		Retry:      exec.Retry,
	}
	if exec.FinishedAt != nil {
		s := exec.FinishedAt.Format(time.RFC3339)
		d.FinishedAt = &s
	}
	return d
}

package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/queue-monitor/internal/monitor/scope"
)

func TestBuildSearchQuery_NoFilter(t *testing.T) {
	query, args := buildSearchQuery(SearchFilter{PageSize: 20})

	assert.Contains(t, query, "FROM queue_push AS push")
	assert.Contains(t, query, "LEFT JOIN queue_exec AS last_exec")
	assert.Contains(t, query, "ORDER BY push.pushed_at DESC, push.id DESC")
	assert.Contains(t, query, "LIMIT $1")

	// Only the limit argument, sized to over-fetch one row.
	require.Len(t, args, 1)
	assert.Equal(t, 21, args[0])
}

func TestBuildSearchQuery_FieldConditions(t *testing.T) {
	after := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	before := time.Date(2026, 8, 31, 18, 30, 59, 0, time.UTC)

	query, args := buildSearchQuery(SearchFilter{
		Sender:       "default",
		Class:        "SendEmail",
		Contains:     "user@example.com",
		PushedAfter:  &after,
		PushedBefore: &before,
		PageSize:     10,
	})

	assert.Contains(t, query, "push.sender_name = $1")
	assert.Contains(t, query, "push.job_class ILIKE $2")
	assert.Contains(t, query, "(push.job_data ILIKE $3 OR push.context ILIKE $3)")
	assert.Contains(t, query, "push.pushed_at >= $4")
	assert.Contains(t, query, "push.pushed_at <= $5")
	assert.Contains(t, query, "LIMIT $6")

	require.Len(t, args, 6)
	assert.Equal(t, "default", args[0])
	assert.Equal(t, "%SendEmail%", args[1])
	assert.Equal(t, "%user@example.com%", args[2])
	assert.Equal(t, after, args[3])
	assert.Equal(t, before, args[4])
	assert.Equal(t, 11, args[5])
}

func TestBuildSearchQuery_ScopeConditions(t *testing.T) {
	tests := []struct {
		scope scope.Scope
		want  string
	}{
		{scope.Waiting, "(push.last_exec_id IS NULL OR last_exec.retry) AND push.stopped_at IS NULL"},
		{scope.InProgress, "push.last_exec_id IS NOT NULL AND last_exec.finished_at IS NULL"},
		{scope.Done, "last_exec.finished_at IS NOT NULL AND NOT last_exec.retry"},
		{scope.Success, "last_exec.finished_at IS NOT NULL AND NOT last_exec.retry AND last_exec.error IS NULL"},
		{scope.Buried, "last_exec.finished_at IS NOT NULL AND NOT last_exec.retry AND last_exec.error IS NOT NULL"},
		{scope.HasFails, "EXISTS (SELECT 1 FROM queue_exec e WHERE e.push_id = push.id AND e.error IS NOT NULL)"},
		{scope.Stopped, "push.stopped_at IS NOT NULL"},
	}

	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			query, _ := buildSearchQuery(SearchFilter{Scope: tt.scope, PageSize: 20})
			assert.Contains(t, query, tt.want)
		})
	}
}

func TestBuildSearchQuery_Cursor(t *testing.T) {
	cursor := &PushCursor{
		PushedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		ID:       42,
	}

	query, args := buildSearchQuery(SearchFilter{
		Sender:   "default",
		PageSize: 20,
		Cursor:   cursor,
	})

	assert.Contains(t, query, "(push.pushed_at, push.id) < ($2, $3)")
	assert.Contains(t, query, "LIMIT $4")

	require.Len(t, args, 4)
	assert.Equal(t, cursor.PushedAt, args[1])
	assert.Equal(t, cursor.ID, args[2])
	assert.Equal(t, 21, args[3])
}

package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/queue-monitor/internal/monitor/liveness"
)

func TestBuildActiveWorkerQuery_HeartbeatEnabled(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	detector := liveness.Detector{PingInterval: 15 * time.Second}

	query, args := buildActiveWorkerQuery(detector, "worker-1", 4242, now)

	assert.Contains(t, query, "WHERE host = $1 AND pid = $2 AND finished_at IS NULL")
	assert.Contains(t, query, "pinged_at > $3")
	assert.Contains(t, query, "e.finished_at IS NULL")
	assert.Contains(t, query, "ORDER BY id DESC LIMIT 1")

	require.Len(t, args, 3)
	assert.Equal(t, "worker-1", args[0])
	assert.Equal(t, 4242, args[1])
	assert.Equal(t, now.Add(-15*time.Second-liveness.Grace), args[2])
}

func TestBuildActiveWorkerQuery_HeartbeatDisabled(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	detector := liveness.Detector{PingInterval: 0}

	query, args := buildActiveWorkerQuery(detector, "worker-1", 4242, now)

	// Without a heartbeat period any unfinished worker qualifies; there
	// must be no cutoff predicate and no third argument.
	assert.Contains(t, query, "WHERE host = $1 AND pid = $2 AND finished_at IS NULL")
	assert.NotContains(t, query, "pinged_at > $3")
	assert.NotContains(t, query, "$3")

	require.Len(t, args, 2)
	assert.Equal(t, "worker-1", args[0])
	assert.Equal(t, 4242, args[1])
}

func TestBuildListWorkersQuery_HeartbeatEnabled(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	detector := liveness.Detector{PingInterval: 30 * time.Second}

	query, args := buildListWorkersQuery(detector, now)

	assert.Contains(t, query, "AS exec_started")
	assert.Contains(t, query, "AS exec_done")
	assert.Contains(t, query, "AS has_open_exec")
	assert.Contains(t, query, "WHERE finished_at IS NULL")
	assert.Contains(t, query, "pinged_at > $1")
	assert.Contains(t, query, "ORDER BY id ASC")

	require.Len(t, args, 1)
	assert.Equal(t, now.Add(-30*time.Second-liveness.Grace), args[0])
}

func TestBuildListWorkersQuery_HeartbeatDisabled(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	detector := liveness.Detector{PingInterval: 0}

	query, args := buildListWorkersQuery(detector, now)

	assert.Contains(t, query, "WHERE finished_at IS NULL")
	assert.NotContains(t, query, "pinged_at > $1")
	assert.Empty(t, args)
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongbtq/queue-monitor/internal/monitor/model"
	"github.com/cuongbtq/queue-monitor/internal/monitor/scope"
)

// SearchFilter is a fully validated filter; parsing and validation of
// user input happens in the query layer before it gets here.
type SearchFilter struct {
	Scope        scope.Scope
	Sender       string
	Class        string
	Contains     string
	PushedAfter  *time.Time
	PushedBefore *time.Time
	PageSize     int
	Cursor       *PushCursor
}

// PushCursor is a keyset pagination cursor over (pushed_at, id).
type PushCursor struct {
	PushedAt time.Time
	ID       int64
}

// GroupCount is one row of a grouped aggregate, ordered by name.
type GroupCount struct {
	Name  string `db:"name"`
	Count int    `db:"count"`
}

// buildSearchQuery assembles the push search statement. The scope
// conditions are the SQL renditions of the classifier predicates; the
// left join to the last exec is the relational strategy for deriving
// last-attempt state.
func buildSearchQuery(filter SearchFilter) (string, []interface{}) {
	query := `
		SELECT push.id, push.sender_name, push.job_uid, push.job_class,
			push.job_data, push.context, push.ttr, push.delay, push.pushed_at,
			push.stopped_at, push.first_exec_id, push.last_exec_id
		FROM queue_push AS push
		LEFT JOIN queue_exec AS last_exec ON last_exec.id = push.last_exec_id
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.Sender != "" {
		query += fmt.Sprintf(" AND push.sender_name = $%d", argIdx)
		args = append(args, filter.Sender)
		argIdx++
	}

	if filter.Class != "" {
		query += fmt.Sprintf(" AND push.job_class ILIKE $%d", argIdx)
		args = append(args, "%"+filter.Class+"%")
		argIdx++
	}

	if filter.Contains != "" {
		query += fmt.Sprintf(" AND (push.job_data ILIKE $%d OR push.context ILIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+filter.Contains+"%")
		argIdx++
	}

	if filter.PushedAfter != nil {
		query += fmt.Sprintf(" AND push.pushed_at >= $%d", argIdx)
		args = append(args, *filter.PushedAfter)
		argIdx++
	}

	if filter.PushedBefore != nil {
		query += fmt.Sprintf(" AND push.pushed_at <= $%d", argIdx)
		args = append(args, *filter.PushedBefore)
		argIdx++
	}

	switch filter.Scope {
	case scope.Waiting:
		query += " AND (push.last_exec_id IS NULL OR last_exec.retry) AND push.stopped_at IS NULL"
	case scope.InProgress:
		query += " AND push.last_exec_id IS NOT NULL AND last_exec.finished_at IS NULL"
	case scope.Done:
		query += " AND last_exec.finished_at IS NOT NULL AND NOT last_exec.retry"
	case scope.Success:
		query += " AND last_exec.finished_at IS NOT NULL AND NOT last_exec.retry AND last_exec.error IS NULL"
	case scope.Buried:
		query += " AND last_exec.finished_at IS NOT NULL AND NOT last_exec.retry AND last_exec.error IS NOT NULL"
	case scope.HasFails:
		query += " AND EXISTS (SELECT 1 FROM queue_exec e WHERE e.push_id = push.id AND e.error IS NOT NULL)"
	case scope.Stopped:
		query += " AND push.stopped_at IS NOT NULL"
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (push.pushed_at, push.id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.PushedAt, filter.Cursor.ID)
		argIdx += 2
	}

	query += " ORDER BY push.pushed_at DESC, push.id DESC"

	// One extra row tells the caller whether more pages exist.
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	return query, args
}

// Search returns pushes matching the filter, newest first. The result
// holds up to PageSize+1 rows so the caller can detect a next page.
func (s *Storage) Search(ctx context.Context, filter SearchFilter) ([]model.Push, error) {
	query, args := buildSearchQuery(filter)

	var pushes []model.Push
	if err := s.db.SelectContext(ctx, &pushes, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search pushes: %w", err)
	}

	return pushes, nil
}

// CountByClass returns distinct job classes with their push counts,
// ordered by class name.
func (s *Storage) CountByClass(ctx context.Context) ([]GroupCount, error) {
	query := `
		SELECT job_class AS name, COUNT(*) AS count
		FROM queue_push
		GROUP BY job_class
		ORDER BY job_class ASC
	`

	var counts []GroupCount
	if err := s.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("failed to count by class: %w", err)
	}

	return counts, nil
}

// CountBySender returns distinct sender names with their push counts,
// ordered by sender name.
func (s *Storage) CountBySender(ctx context.Context) ([]GroupCount, error) {
	query := `
		SELECT sender_name AS name, COUNT(*) AS count
		FROM queue_push
		GROUP BY sender_name
		ORDER BY sender_name ASC
	`

	var counts []GroupCount
	if err := s.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("failed to count by sender: %w", err)
	}

	return counts, nil
}

package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/cuongbtq/queue-monitor/internal/monitor/model"
	"github.com/cuongbtq/queue-monitor/internal/monitor/scope"
	"github.com/cuongbtq/queue-monitor/internal/monitor/storage"
)

const (
	cacheKeyClasses = "group_by_class"
	cacheKeySenders = "group_by_sender"
)

// Store is the read surface the query service needs.
type Store interface {
	Search(ctx context.Context, filter storage.SearchFilter) ([]model.Push, error)
	CountByClass(ctx context.Context) ([]storage.GroupCount, error)
	CountBySender(ctx context.Context) ([]storage.GroupCount, error)
	FindPushByJob(ctx context.Context, senderName, jobUID string) (*model.Push, error)
	FindPushByID(ctx context.Context, id int64) (*model.Push, error)
	GetExec(ctx context.Context, id int64) (*model.Exec, error)
	HasFailedExec(ctx context.Context, pushID int64) (bool, error)
	ListExecs(ctx context.Context, pushID int64) ([]model.Exec, error)
	ListWorkers(ctx context.Context, now time.Time) ([]storage.WorkerInfo, error)
}

// Result is one page of a push search. When Errors is non-empty the
// filter was invalid and Pushes is empty by design.
type Result struct {
	Pushes     []model.Push
	NextCursor *storage.PushCursor
	Errors     []FieldError
}

// Service builds dashboard result sets over push records. Grouped counts
// are expensive aggregate scans with low write-visibility requirements,
// so they are cached for a bounded period.
type Service struct {
	store  Store
	cache  *gocache.Cache
	logger *slog.Logger
}

// NewService creates a query service; cacheTTL bounds how stale the
// grouped counts may get.
func NewService(store Store, cacheTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		cache:  gocache.New(cacheTTL, 2*cacheTTL),
		logger: logger,
	}
}

// Search returns one page of pushes matching the filter, newest first.
// An invalid filter yields an empty result plus field errors, not an
// unfiltered scan.
func (s *Service) Search(ctx context.Context, filter Filter, pageSize int, cursor *storage.PushCursor) (Result, error) {
	if errs := filter.Validate(); len(errs) > 0 {
		s.logger.Debug("Rejecting invalid search filter",
			slog.Int("field_errors", len(errs)),
		)
		return Result{Errors: errs}, nil
	}

	pushes, err := s.store.Search(ctx, filter.toSearchFilter(pageSize, cursor))
	if err != nil {
		return Result{}, fmt.Errorf("search pushes: %w", err)
	}

	result := Result{Pushes: pushes}
	if len(pushes) > pageSize {
		result.Pushes = pushes[:pageSize]
		last := result.Pushes[len(result.Pushes)-1]
		result.NextCursor = &storage.PushCursor{PushedAt: last.PushedAt, ID: last.ID}
	}

	return result, nil
}

// PushSummary is a push with its scope labels but without the attempt
// history.
type PushSummary struct {
	Push   model.Push
	Scopes []scope.Scope
}

// FindPush returns the most recent push for (senderName, jobUID) with
// its scope labels.
func (s *Service) FindPush(ctx context.Context, senderName, jobUID string) (*PushSummary, error) {
	push, err := s.store.FindPushByJob(ctx, senderName, jobUID)
	if err != nil {
		return nil, err
	}

	scopes, err := s.scopesOf(ctx, push)
	if err != nil {
		return nil, err
	}

	return &PushSummary{Push: *push, Scopes: scopes}, nil
}

// scopesOf labels a push without loading its full attempt list; only
// the newest attempt and the any-failure fact matter here.
func (s *Service) scopesOf(ctx context.Context, push *model.Push) ([]scope.Scope, error) {
	var lastExec *model.Exec
	if push.LastExecID != nil {
		exec, err := s.store.GetExec(ctx, *push.LastExecID)
		if err != nil {
			return nil, err
		}
		lastExec = exec
	}

	hasFails, err := s.store.HasFailedExec(ctx, push.ID)
	if err != nil {
		return nil, err
	}

	return scope.Of(push, lastExec, hasFails), nil
}

// PushDetail is a push with its full attempt history and the scopes it
// currently belongs to.
type PushDetail struct {
	Push   model.Push
	Execs  []model.Exec
	Scopes []scope.Scope
}

// GetPush returns a push with its attempts and scope labels.
func (s *Service) GetPush(ctx context.Context, pushID int64) (*PushDetail, error) {
	push, err := s.store.FindPushByID(ctx, pushID)
	if err != nil {
		return nil, err
	}

	execs, err := s.store.ListExecs(ctx, pushID)
	if err != nil {
		return nil, err
	}

	return &PushDetail{
		Push:   *push,
		Execs:  execs,
		Scopes: classify(push, execs),
	}, nil
}

// GroupByClass returns distinct job classes with counts, name ascending.
func (s *Service) GroupByClass(ctx context.Context) ([]storage.GroupCount, error) {
	return s.cachedCounts(ctx, cacheKeyClasses, s.store.CountByClass)
}

// GroupBySender returns distinct sender names with counts, name ascending.
func (s *Service) GroupBySender(ctx context.Context) ([]storage.GroupCount, error) {
	return s.cachedCounts(ctx, cacheKeySenders, s.store.CountBySender)
}

// Workers returns live workers with derived liveness and activity facts.
func (s *Service) Workers(ctx context.Context) ([]storage.WorkerInfo, error) {
	return s.store.ListWorkers(ctx, time.Now())
}

func (s *Service) cachedCounts(ctx context.Context, key string, load func(context.Context) ([]storage.GroupCount, error)) ([]storage.GroupCount, error) {
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]storage.GroupCount), nil
	}

	counts, err := load(ctx)
	if err != nil {
		return nil, err
	}

	s.cache.SetDefault(key, counts)
	return counts, nil
}

// classify labels a push with every scope it belongs to, using the full
// attempt list for the has-failed fact.
func classify(push *model.Push, execs []model.Exec) []scope.Scope {
	var lastExec *model.Exec
	hasFails := false
	for i := range execs {
		if execs[i].Error != nil {
			hasFails = true
		}
		if push.LastExecID != nil && execs[i].ID == *push.LastExecID {
			lastExec = &execs[i]
		}
	}
	return scope.Of(push, lastExec, hasFails)
}

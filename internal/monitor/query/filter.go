package query

import (
	"strings"
	"time"

	"github.com/cuongbtq/queue-monitor/internal/monitor/scope"
	"github.com/cuongbtq/queue-monitor/internal/monitor/storage"
)

// timeLayout is the minute-granularity format accepted for the pushed-at
// bounds, e.g. "2026-08-31T14:05".
const timeLayout = "2006-01-02T15:04"

// Filter is the raw, user-supplied search filter. Validation failures
// degrade the whole query to an empty result set; they never widen it
// to unfiltered results and never surface as errors past the query
// boundary.
type Filter struct {
	Scope        string
	Sender       string
	Class        string
	Contains     string
	PushedAfter  string
	PushedBefore string
}

// FieldError reports a single invalid filter field back to the caller.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validate checks every field and returns all problems at once.
func (f Filter) Validate() []FieldError {
	var errs []FieldError

	if f.Scope != "" && !scope.Known(f.Scope) {
		errs = append(errs, FieldError{Field: "scope", Message: "unknown scope name"})
	}
	if f.PushedAfter != "" {
		if _, ok := parseMinute(f.PushedAfter, false); !ok {
			errs = append(errs, FieldError{Field: "pushed_after", Message: "invalid timestamp, expected " + timeLayout})
		}
	}
	if f.PushedBefore != "" {
		if _, ok := parseMinute(f.PushedBefore, true); !ok {
			errs = append(errs, FieldError{Field: "pushed_before", Message: "invalid timestamp, expected " + timeLayout})
		}
	}

	return errs
}

// toSearchFilter converts a validated filter into the storage filter.
// Call Validate first; invalid bounds are silently dropped here.
func (f Filter) toSearchFilter(pageSize int, cursor *storage.PushCursor) storage.SearchFilter {
	sf := storage.SearchFilter{
		Scope:    scope.Scope(f.Scope),
		Sender:   strings.TrimSpace(f.Sender),
		Class:    strings.TrimSpace(f.Class),
		Contains: strings.TrimSpace(f.Contains),
		PageSize: pageSize,
		Cursor:   cursor,
	}

	if f.PushedAfter != "" {
		if t, ok := parseMinute(f.PushedAfter, false); ok {
			sf.PushedAfter = &t
		}
	}
	if f.PushedBefore != "" {
		if t, ok := parseMinute(f.PushedBefore, true); ok {
			sf.PushedBefore = &t
		}
	}

	return sf
}

// parseMinute parses a minute-granularity timestamp. The value is
// truncated to the start of its minute; an end bound is extended to the
// final second of the minute so the range stays inclusive.
func parseMinute(value string, isEnd bool) (time.Time, bool) {
	t, err := time.ParseInLocation(timeLayout, value, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	t = t.Truncate(time.Minute)
	if isEnd {
		t = t.Add(59 * time.Second)
	}
	return t, true
}

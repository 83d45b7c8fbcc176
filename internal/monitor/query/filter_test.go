package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Validate(t *testing.T) {
	tests := []struct {
		name       string
		filter     Filter
		wantFields []string
	}{
		{
			name:   "empty filter is valid",
			filter: Filter{},
		},
		{
			name:   "known scope",
			filter: Filter{Scope: "waiting"},
		},
		{
			name:   "queryable but unlisted scope",
			filter: Filter{Scope: "failed"},
		},
		{
			name:       "unknown scope",
			filter:     Filter{Scope: "pending"},
			wantFields: []string{"scope"},
		},
		{
			name:   "valid time bounds",
			filter: Filter{PushedAfter: "2026-08-01T09:00", PushedBefore: "2026-08-31T18:30"},
		},
		{
			name:       "invalid pushed_after",
			filter:     Filter{PushedAfter: "2026-08-01"},
			wantFields: []string{"pushed_after"},
		},
		{
			name:       "invalid pushed_before",
			filter:     Filter{PushedBefore: "31/08/2026 18:30"},
			wantFields: []string{"pushed_before"},
		},
		{
			name:       "all problems reported at once",
			filter:     Filter{Scope: "nope", PushedAfter: "bad", PushedBefore: "also bad"},
			wantFields: []string{"scope", "pushed_after", "pushed_before"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.filter.Validate()

			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.ElementsMatch(t, tt.wantFields, fields)
		})
	}
}

func TestParseMinute(t *testing.T) {
	t.Run("start bound truncates to the minute", func(t *testing.T) {
		got, ok := parseMinute("2026-08-31T14:05", false)
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 8, 31, 14, 5, 0, 0, time.Local), got)
	})

	t.Run("end bound extends to the last second", func(t *testing.T) {
		got, ok := parseMinute("2026-08-31T14:05", true)
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 8, 31, 14, 5, 59, 0, time.Local), got)
	})

	t.Run("equal bounds cover the whole minute", func(t *testing.T) {
		start, ok := parseMinute("2026-08-31T14:05", false)
		require.True(t, ok)
		end, ok := parseMinute("2026-08-31T14:05", true)
		require.True(t, ok)

		inside := time.Date(2026, 8, 31, 14, 5, 30, 0, time.Local)
		assert.False(t, inside.Before(start))
		assert.False(t, inside.After(end))
	})

	t.Run("rejects other layouts", func(t *testing.T) {
		for _, v := range []string{"", "2026-08-31", "2026-08-31T14:05:33", "14:05", "not a time"} {
			_, ok := parseMinute(v, false)
			assert.False(t, ok, "value %q should be rejected", v)
		}
	})
}

func TestFilter_ToSearchFilter(t *testing.T) {
	f := Filter{
		Scope:        "buried",
		Sender:       "  default  ",
		Class:        " SendEmail ",
		Contains:     " user@example.com ",
		PushedAfter:  "2026-08-01T09:00",
		PushedBefore: "2026-08-31T18:30",
	}

	sf := f.toSearchFilter(20, nil)

	assert.Equal(t, "buried", string(sf.Scope))
	assert.Equal(t, "default", sf.Sender)
	assert.Equal(t, "SendEmail", sf.Class)
	assert.Equal(t, "user@example.com", sf.Contains)
	assert.Equal(t, 20, sf.PageSize)
	require.NotNil(t, sf.PushedAfter)
	require.NotNil(t, sf.PushedBefore)
	assert.Equal(t, time.Date(2026, 8, 1, 9, 0, 0, 0, time.Local), *sf.PushedAfter)
	assert.Equal(t, time.Date(2026, 8, 31, 18, 30, 59, 0, time.Local), *sf.PushedBefore)
}

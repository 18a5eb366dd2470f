package models_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/flusio/minz-worker/models"
	"github.com/flusio/minz-worker/test"
)

var now = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func TestAnnotations(t *testing.T) {
	t.Parallel()
	l := models.DefaultLimits()

	j := &models.Job{PerformAt: now.Add(time.Hour)}
	test.AssertDeepEquals(t, j.Annotations(now, l), []string{"scheduled"})

	j = &models.Job{
		PerformAt:      now.Add(-time.Minute),
		LockedAt:       models.NewNullTime(now.Add(-time.Minute)),
		FailedAt:       models.NewNullTime(now.Add(-time.Hour)),
		NumberAttempts: 26,
	}
	test.AssertDeepEquals(t, j.Annotations(now, l), []string{"locked", "failed", "unretriable", "ready"})

	// stale lock, recurring
	j = &models.Job{
		PerformAt:      now,
		Frequency:      "+1 hour",
		LockedAt:       models.NewNullTime(now.Add(-2 * time.Hour)),
		NumberAttempts: 100,
	}
	test.AssertDeepEquals(t, j.Annotations(now, l), []string{"ready"})
}

func TestIsLockedBoundary(t *testing.T) {
	t.Parallel()
	j := &models.Job{LockedAt: models.NewNullTime(now.Add(-time.Hour))}
	test.Assert(t, !j.IsLocked(now, time.Hour), "lock exactly at the timeout is stale")
	j.LockedAt = models.NewNullTime(now.Add(-time.Hour + time.Second))
	test.Assert(t, j.IsLocked(now, time.Hour), "")
}

func TestJobJSON(t *testing.T) {
	t.Parallel()
	j := &models.Job{
		ID:        3,
		Name:      "echo",
		Args:      models.Args{models.String("hi")},
		PerformAt: now,
		Queue:     models.DefaultQueue,
	}
	b, err := json.Marshal(j)
	test.AssertNotError(t, err, "")
	s := string(b)
	test.Assert(t, strings.Contains(s, `"args":["hi"]`), s)
	test.Assert(t, strings.Contains(s, `"locked_at":null`), s)
	test.Assert(t, strings.Contains(s, `"last_error":null`), s)

	var back models.Job
	test.AssertNotError(t, json.Unmarshal(b, &back), "")
	test.AssertDeepEquals(t, back.Args, j.Args)
	test.AssertEquals(t, back.LockedAt.Valid, false)
}

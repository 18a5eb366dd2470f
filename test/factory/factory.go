// Package factory contains helpers for instantiating tests.
package factory

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flusio/minz-worker/models"
	"github.com/flusio/minz-worker/models/db"
	"github.com/flusio/minz-worker/models/jobs"
	"github.com/flusio/minz-worker/test"
)

// Now is the instant most tests pretend it is.
var Now = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

var SampleArgs = models.Args{
	models.String("https://example.com/feed.xml"),
	models.Int(17),
	models.Bool(true),
	models.Null(),
}

var SampleJob = models.Job{
	Name:      "echo",
	Args:      SampleArgs,
	PerformAt: Now,
	Queue:     models.DefaultQueue,
}

var counter int64

// RandomQueue returns a queue name no other test in the process uses. It ends
// with a letter, so the worker doesn't strip anything from it.
func RandomQueue(prefix string) string {
	return fmt.Sprintf("%s_%d_q", prefix, atomic.AddInt64(&counter, 1))
}

// CreateJob inserts j, filling in the name, queue and due date from
// SampleJob when they are empty.
func CreateJob(t testing.TB, j models.Job) *models.Job {
	t.Helper()
	test.SetUp(t)
	if j.Name == "" {
		j.Name = SampleJob.Name
	}
	if j.Queue == "" {
		j.Queue = SampleJob.Queue
	}
	if j.PerformAt.IsZero() {
		j.PerformAt = SampleJob.PerformAt
	}
	job, err := jobs.Create(j, Now)
	test.AssertNotError(t, err, "creating job")
	return job
}

// CreateSampleJob inserts a one-shot "echo" job due at Now in the given queue.
func CreateSampleJob(t testing.TB, queue string) *models.Job {
	t.Helper()
	j := SampleJob
	j.Queue = queue
	return CreateJob(t, j)
}

// SetLockedAt overwrites the lock of a job, bypassing the lock manager.
func SetLockedAt(t testing.TB, id int64, lockedAt models.NullTime) {
	t.Helper()
	_, err := db.Conn.Exec(db.Conn.Rebind("UPDATE jobs SET locked_at = ? WHERE id = ?"), lockedAt, id)
	test.AssertNotError(t, err, "setting locked_at")
}

// SetAttempts overwrites the attempt count of a job.
func SetAttempts(t testing.TB, id int64, attempts int64) {
	t.Helper()
	_, err := db.Conn.Exec(db.Conn.Rebind("UPDATE jobs SET number_attempts = ? WHERE id = ?"), attempts, id)
	test.AssertNotError(t, err, "setting number_attempts")
}

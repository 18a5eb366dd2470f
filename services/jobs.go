package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/flusio/minz-worker/models"
	"github.com/flusio/minz-worker/models/jobs"
	"github.com/flusio/minz-worker/models/locks"
	"github.com/flusio/minz-worker/schedule"
)

// Enqueue validates and stores a job. A job without a PerformAt is due now;
// a job without a Queue goes to the default queue.
func Enqueue(job models.Job, now time.Time) (*models.Job, error) {
	job.Name = strings.TrimSpace(job.Name)
	if job.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidJob)
	}
	if job.Queue == "" {
		job.Queue = models.DefaultQueue
	}
	if job.Queue == models.AllQueues {
		return nil, fmt.Errorf("%w: %q can't be used as a queue name", ErrInvalidJob, models.AllQueues)
	}
	if err := schedule.Validate(job.Frequency, now); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if job.PerformAt.IsZero() {
		job.PerformAt = now
	}
	return jobs.Create(job, now)
}

// PerformAsap stores a one-shot job due now, in the default queue.
func PerformAsap(name string, args models.Args, now time.Time) (*models.Job, error) {
	return Enqueue(models.Job{Name: name, Args: args}, now)
}

// PerformLater stores a one-shot job due at the given time, in the default
// queue.
func PerformLater(name string, args models.Args, at time.Time, now time.Time) (*models.Job, error) {
	if at.IsZero() {
		return nil, fmt.Errorf("%w: perform_at is required", ErrInvalidJob)
	}
	return Enqueue(models.Job{Name: name, Args: args, PerformAt: at}, now)
}

// A Listing is a job along with its status annotations.
type Listing struct {
	*models.Job
	Status []string `json:"status"`
}

// Index lists the jobs in queue ("all" for every queue) by due date.
func Index(queue string, now time.Time, l models.Limits) ([]Listing, error) {
	js, err := jobs.List(queue)
	if err != nil {
		return nil, err
	}
	listings := make([]Listing, len(js))
	for i, j := range js {
		listings[i] = Listing{Job: j, Status: j.Annotations(now, l)}
	}
	return listings, nil
}

// Show returns the job with the given id.
func Show(id int64) (*models.Job, error) {
	job, err := jobs.Get(id)
	if err == jobs.ErrNotFound {
		return nil, notFound(id)
	}
	return job, err
}

// Unfail clears the failure of a job without running it, and resets its
// attempt count.
func Unfail(id int64, now time.Time) error {
	err := jobs.Unfail(id, now)
	if err == jobs.ErrNotFound {
		return notFound(id)
	}
	return err
}

// Unlock clears the lock of a job, whether or not a worker still holds it.
func Unlock(l *locks.Locker, id int64, now time.Time) error {
	err := l.Release(id, now)
	if err == locks.ErrNotFound {
		return notFound(id)
	}
	return err
}

// Delete removes a job.
func Delete(id int64) error {
	err := jobs.Delete(id)
	if err == jobs.ErrNotFound {
		return notFound(id)
	}
	return err
}

func notFound(id int64) error {
	return fmt.Errorf("%w: no job with id %d", ErrNotFound, id)
}

package services

import (
	"errors"
	"fmt"

	"github.com/flusio/minz-worker/registry"
)

// ErrNotFound is returned when the job does not exist, or its type is not
// registered.
var ErrNotFound = registry.ErrNotFound

// ErrLockContention is returned by Run when another worker holds the job.
var ErrLockContention = errors.New("services: job is locked by another worker")

// ErrMalformedJobType is returned by Run when the registered type can't be
// performed. The job is deleted.
var ErrMalformedJobType = errors.New("services: job type can't be performed")

// ErrInvalidJob is returned by Enqueue for jobs that could never run.
var ErrInvalidJob = errors.New("services: invalid job")

// An ExecutionError is returned by Run when the job itself failed. The error
// is recorded on the job, which is kept for another attempt.
type ExecutionError struct {
	JobID    int64
	Name     string
	Attempts int64
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("job %d (%s) failed on attempt %d: %v", e.JobID, e.Name, e.Attempts, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

package models

import (
	"time"
)

// DefaultQueue is the queue a Job is put in when none is given.
const DefaultQueue = "default"

// AllQueues matches every queue when passed to the scheduler query.
const AllQueues = "all"

// DefaultLockTimeout is how long a lock is honored before another worker may
// take the job over.
const DefaultLockTimeout = time.Hour

// DefaultMaxAttempts is the number of attempts after which a job without a
// frequency stops being scheduled.
const DefaultMaxAttempts = 25

// A Job is a unit of work stored in the jobs table, to be run at or after
// PerformAt.
//
// Jobs without a Frequency are deleted once they succeed. Jobs with a
// Frequency are kept and rescheduled after every run.
type Job struct {
	ID             int64      `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	Args           Args       `json:"args" db:"args"`
	PerformAt      time.Time  `json:"perform_at" db:"perform_at"`
	Frequency      string     `json:"frequency" db:"frequency"`
	Queue          string     `json:"queue" db:"queue"`
	LockedAt       NullTime   `json:"locked_at" db:"locked_at"`
	NumberAttempts int64      `json:"number_attempts" db:"number_attempts"`
	LastError      NullString `json:"last_error" db:"last_error"`
	FailedAt       NullTime   `json:"failed_at" db:"failed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// Limits bound how long locks are honored and how many times a one-shot job
// is retried.
type Limits struct {
	LockTimeout time.Duration
	MaxAttempts int64
}

// DefaultLimits returns a one hour lock timeout and 25 attempts.
func DefaultLimits() Limits {
	return Limits{
		LockTimeout: DefaultLockTimeout,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Recurring reports whether the job is rescheduled after it runs.
func (j *Job) Recurring() bool {
	return j.Frequency != ""
}

// IsLocked reports whether a worker holds a lock on the job that has not yet
// gone stale.
func (j *Job) IsLocked(now time.Time, timeout time.Duration) bool {
	return j.LockedAt.Valid && j.LockedAt.Time.After(now.Add(-timeout))
}

// Retriable reports whether the scheduler will still offer the job.
func (j *Job) Retriable(maxAttempts int64) bool {
	return j.Recurring() || j.NumberAttempts <= maxAttempts
}

// Annotations describe the state of the job for listings: "locked",
// "failed", "unretriable", and one of "scheduled" or "ready".
func (j *Job) Annotations(now time.Time, l Limits) []string {
	var a []string
	if j.IsLocked(now, l.LockTimeout) {
		a = append(a, "locked")
	}
	if j.FailedAt.Valid {
		a = append(a, "failed")
	}
	if !j.Retriable(l.MaxAttempts) {
		a = append(a, "unretriable")
	}
	if j.PerformAt.After(now) {
		a = append(a, "scheduled")
	} else {
		a = append(a, "ready")
	}
	return a
}

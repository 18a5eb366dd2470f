package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flusio/minz-worker/clock"
	"github.com/flusio/minz-worker/metrics"
	"github.com/flusio/minz-worker/models"
	"github.com/flusio/minz-worker/models/jobs"
	"github.com/flusio/minz-worker/models/locks"
	"github.com/flusio/minz-worker/registry"
	"github.com/flusio/minz-worker/schedule"
)

// Result describes one call to Run.
type Result struct {
	OK bool
	// Elapsed covers the attempt, from counting it to persisting its
	// outcome.
	Elapsed  time.Duration
	Attempts int64
}

// Runner runs one stored job: it locks it, performs it, and reschedules,
// retries or deletes it depending on the outcome.
type Runner struct {
	Registry *registry.Registry
	Locker   *locks.Locker
	Clock    clock.Clock
	Logger   *slog.Logger
}

// NewRunner creates a Runner for the jobs in reg. The database connection
// must already be established.
func NewRunner(reg *registry.Registry, limits models.Limits) (*Runner, error) {
	l, err := locks.New("jobs", limits.LockTimeout)
	if err != nil {
		return nil, err
	}
	return &Runner{
		Registry: reg,
		Locker:   l,
		Clock:    clock.Default,
		Logger:   slog.Default(),
	}, nil
}

func (r *Runner) clock() clock.Clock {
	if r.Clock == nil {
		return clock.Default
	}
	return r.Clock
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Run performs the job with the given id.
//
// Errors wrapping ErrNotFound, ErrMalformedJobType or ErrLockContention mean
// the job was not performed. A job whose type is not registered is not
// performed either, but the attempt is counted and the job backs off. An *ExecutionError means it was performed and
// failed; the failure is recorded on the job. An error wrapping
// schedule.ErrSchedulingInvariant means the job's frequency is broken; the
// job stays locked until the lock goes stale. Any other error comes from the
// database.
func (r *Runner) Run(ctx context.Context, id int64) (Result, error) {
	logger := r.logger().With("job_id", id)
	inst, err := r.Registry.Load(id)
	if errors.Is(err, registry.ErrUnknownType) {
		metrics.Increment("run.unknown_type")
		logger.Warn("job type is not registered", "err", err)
		return Result{}, r.unknown(logger, id, err)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.Increment("run.not_found")
			logger.Warn("job not found", "err", err)
		}
		return Result{}, err
	}
	job := inst.Job
	logger = logger.With("job_name", job.Name, "queue", job.Queue)

	p, ok := inst.Value.(Performer)
	if !ok {
		logger.Error("job type can't be performed, deleting the job", "type", fmt.Sprintf("%T", inst.Value))
		metrics.Increment("run.malformed")
		if err := jobs.Delete(job.ID); err != nil && err != jobs.ErrNotFound {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %q", ErrMalformedJobType, job.Name)
	}

	if err := r.lock(logger, job); err != nil {
		return Result{}, err
	}

	start := time.Now()
	attempts, err := jobs.IncrementAttempts(job.ID, r.clock().Now())
	if err != nil {
		r.release(logger, job.ID)
		return Result{}, err
	}
	job.NumberAttempts = attempts
	res := Result{Attempts: attempts}

	logger.Debug("performing job", "attempt", attempts)
	runErr := perform(ctx, p, job)
	now := r.clock().Now()

	if runErr == nil {
		err = r.succeed(logger, job, now)
	} else {
		err = r.fail(logger, job, runErr, now)
	}
	res.Elapsed = time.Since(start)
	metrics.Time("run.latency", res.Elapsed)
	metrics.Time(fmt.Sprintf("run.%s.latency", job.Name), res.Elapsed)
	if err != nil {
		return res, err
	}
	if runErr != nil {
		metrics.Increment(fmt.Sprintf("run.%s.failed", job.Name))
		logger.Warn("job failed", "attempt", attempts, "err", runErr, "elapsed", res.Elapsed)
		return res, &ExecutionError{JobID: job.ID, Name: job.Name, Attempts: attempts, Err: runErr}
	}
	metrics.Increment(fmt.Sprintf("run.%s.succeeded", job.Name))
	logger.Info("job succeeded", "attempt", attempts, "elapsed", res.Elapsed)
	res.OK = true
	return res, nil
}

// lock acquires the lock on job, then checks the row still matches the copy
// that was loaded. Another worker may have run the job between the load and
// the lock; its attempt moved perform_at or the attempt count.
func (r *Runner) lock(logger *slog.Logger, job *models.Job) error {
	acquired, err := r.Locker.Acquire(job.ID, r.clock().Now())
	if err != nil {
		return err
	}
	if !acquired {
		if _, err := jobs.Get(job.ID); err == jobs.ErrNotFound {
			metrics.Increment("run.not_found")
			logger.Warn("job was deleted before it could be locked")
			return fmt.Errorf("%w: job %d was deleted", ErrNotFound, job.ID)
		}
		metrics.Increment("run.lock_contention")
		logger.Info("job is locked by another worker")
		return ErrLockContention
	}
	current, err := jobs.Get(job.ID)
	if err == jobs.ErrNotFound {
		return fmt.Errorf("%w: job %d was deleted", ErrNotFound, job.ID)
	}
	if err != nil {
		r.release(logger, job.ID)
		return err
	}
	if current.NumberAttempts != job.NumberAttempts || !current.PerformAt.Equal(job.PerformAt) {
		r.release(logger, job.ID)
		metrics.Increment("run.lock_contention")
		logger.Info("job was run by another worker", "perform_at", current.PerformAt, "attempts", current.NumberAttempts)
		return ErrLockContention
	}
	return nil
}

// unknown records an attempt at a job whose type is not registered, so it
// backs off like a failed job instead of staying at the head of its queue.
// It returns loadErr unless the store fails.
func (r *Runner) unknown(logger *slog.Logger, id int64, loadErr error) error {
	acquired, err := r.Locker.Acquire(id, r.clock().Now())
	if err != nil {
		return err
	}
	if !acquired {
		return loadErr
	}
	now := r.clock().Now()
	attempts, err := jobs.IncrementAttempts(id, now)
	if err != nil {
		r.release(logger, id)
		if err == jobs.ErrNotFound {
			return loadErr
		}
		return err
	}
	next := schedule.RetryAt(now, attempts)
	ferr := jobs.Fail(id, loadErr.Error(), now, next)
	r.release(logger, id)
	if ferr != nil && ferr != jobs.ErrNotFound {
		return ferr
	}
	logger.Debug("job backed off", "attempt", attempts, "perform_at", next)
	return loadErr
}

// Performer is the interface job values implement.
type Performer = registry.Performer

func perform(ctx context.Context, p Performer, job *models.Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return p.Perform(registry.WithJob(ctx, job), job.Args)
}

func (r *Runner) succeed(logger *slog.Logger, job *models.Job, now time.Time) error {
	if !job.Recurring() {
		// Deleting the row releases the lock too.
		return jobs.Delete(job.ID)
	}
	next, err := schedule.Reschedule(job.PerformAt, job.Frequency, now)
	if err != nil {
		return r.invariant(logger, job, err.Error(), err, now)
	}
	if err := jobs.Reschedule(job.ID, next, now); err != nil {
		r.release(logger, job.ID)
		return err
	}
	logger.Debug("job rescheduled", "perform_at", next)
	return r.Locker.Release(job.ID, now)
}

func (r *Runner) fail(logger *slog.Logger, job *models.Job, runErr error, now time.Time) error {
	var next time.Time
	if job.Recurring() {
		var err error
		next, err = schedule.Reschedule(job.PerformAt, job.Frequency, now)
		if err != nil {
			return r.invariant(logger, job, runErr.Error()+"; "+err.Error(), err, now)
		}
	} else {
		next = schedule.RetryAt(now, job.NumberAttempts)
	}
	if err := jobs.Fail(job.ID, runErr.Error(), now, next); err != nil {
		r.release(logger, job.ID)
		return err
	}
	return r.Locker.Release(job.ID, now)
}

// invariant records a frequency that can't be applied. The lock is kept, so
// no worker picks the job up again before the lock goes stale.
func (r *Runner) invariant(logger *slog.Logger, job *models.Job, text string, err error, now time.Time) error {
	metrics.Increment("run.scheduling_invariant")
	logger.Error("job frequency does not advance time", "frequency", job.Frequency, "err", err)
	if ferr := jobs.Fail(job.ID, text, now, job.PerformAt); ferr != nil {
		logger.Error("could not record the failure", "err", ferr)
	}
	if !errors.Is(err, schedule.ErrSchedulingInvariant) {
		// an unparseable frequency can't advance time either
		return fmt.Errorf("job %d (%s): %w: %v", job.ID, job.Name, schedule.ErrSchedulingInvariant, err)
	}
	return fmt.Errorf("job %d (%s): %w", job.ID, job.Name, err)
}

func (r *Runner) release(logger *slog.Logger, id int64) {
	if err := r.Locker.Release(id, r.clock().Now()); err != nil && err != locks.ErrNotFound {
		logger.Error("could not release the lock", "err", err)
	}
}

// The dequeuer retrieves due jobs from the database and runs them, one at a
// time.
//
// To run jobs in parallel, start several worker processes on the same queue.
// The jobs table is the only thing they share.
package dequeuer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/flusio/minz-worker/clock"
	"github.com/flusio/minz-worker/metrics"
	"github.com/flusio/minz-worker/models"
	"github.com/flusio/minz-worker/models/db"
	"github.com/flusio/minz-worker/models/jobs"
	"github.com/flusio/minz-worker/schedule"
	"github.com/flusio/minz-worker/services"
)

// DefaultSleep is how long a worker waits before polling again when no job
// is due.
const DefaultSleep = 3 * time.Second

// State is the state of a Worker.
type State int32

const (
	Starting State = iota
	Polling
	Executing
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Polling:
		return "polling"
	case Executing:
		return "executing"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// A Runner runs the job with the given id. *services.Runner is the
// implementation used outside of tests.
type Runner interface {
	Run(ctx context.Context, id int64) (services.Result, error)
}

// A Worker polls one queue, or every queue, and runs due jobs. A Worker can
// Watch only once.
type Worker struct {
	// Queue is the queue to poll, "all" for every queue.
	Queue string
	// StopAfter stops the worker once it ran that many jobs. Zero means
	// never.
	StopAfter int64
	// Sleep is the time to wait when no job is due.
	Sleep  time.Duration
	Limits models.Limits
	Clock  clock.Clock
	Logger *slog.Logger
	// Recycle is called after every job. An error stops the worker.
	Recycle func() error
	// Notify reports the worker state to the service manager.
	Notify func(state string) error

	runner    Runner
	state     atomic.Int32
	completed atomic.Int64
	stop      chan struct{}
	stopOnce  sync.Once
}

// NormalizeQueue strips trailing digits from a queue name, so "fetchers1"
// and "fetchers2" both poll the "fetchers" queue. A name made only of digits
// is returned as is.
func NormalizeQueue(name string) string {
	trimmed := strings.TrimRight(name, "0123456789")
	if trimmed == "" {
		return name
	}
	return trimmed
}

// New creates a Worker polling queue. An empty queue polls every queue.
func New(queue string, r Runner) *Worker {
	if queue == "" {
		queue = models.AllQueues
	}
	return &Worker{
		Queue:   NormalizeQueue(queue),
		Sleep:   DefaultSleep,
		Limits:  models.DefaultLimits(),
		Clock:   clock.Default,
		Logger:  slog.Default(),
		Recycle: db.Recycle,
		Notify:  sdNotify,
		runner:  r,
		stop:    make(chan struct{}),
	}
}

func sdNotify(state string) error {
	_, err := daemon.SdNotify(false, state)
	return err
}

// State returns the current state of the worker.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Completed returns the number of jobs the worker ran.
func (w *Worker) Completed() int64 {
	return w.completed.Load()
}

// Stop asks the worker to stop once the job it is running, if any,
// completes. It does not wait.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

func (w *Worker) notify(state string) {
	if w.Notify == nil {
		return
	}
	if err := w.Notify(state); err != nil {
		w.Logger.Warn("could not notify the service manager", "state", state, "err", err)
	}
}

// Watch polls for jobs until the worker is stopped, ctx is canceled, or the
// process receives SIGINT or SIGTERM. A job that is running when that
// happens runs to completion.
//
// Watch returns nil when it stopped on request. It returns an error if the
// database can't be reached, or if a job has a frequency that does not
// advance time.
func (w *Worker) Watch(ctx context.Context) error {
	sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	loopCtx, cancel := context.WithCancel(sigCtx)
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	logger := w.Logger.With("queue", w.Queue)
	w.setState(Polling)
	w.notify(daemon.SdNotifyReady)
	logger.Info("watching for jobs", "sleep", w.Sleep, "stop_after", w.StopAfter)

	err := w.loop(loopCtx, logger)

	w.setState(Stopping)
	w.notify(daemon.SdNotifyStopping)
	if err != nil {
		logger.Error("worker stopped on error", "err", err, "completed", w.Completed())
	} else {
		logger.Info("worker stopped", "completed", w.Completed())
	}
	w.setState(Stopped)
	return err
}

func (w *Worker) loop(ctx context.Context, logger *slog.Logger) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		w.notify(daemon.SdNotifyWatchdog)
		id, err := jobs.FindNextEligible(w.Queue, w.Clock.Now(), w.Limits)
		if err == jobs.ErrNotFound {
			metrics.Increment("watch.idle")
			// Returns early when the worker is stopped.
			_ = w.Clock.Sleep(ctx, w.Sleep)
			continue
		}
		if err != nil {
			return fmt.Errorf("dequeuer: polling queue %q: %w", w.Queue, err)
		}

		w.setState(Executing)
		_, err = w.runner.Run(context.WithoutCancel(ctx), id)
		n := w.completed.Add(1)
		if w.Recycle != nil {
			if rerr := w.Recycle(); rerr != nil {
				return fmt.Errorf("dequeuer: recycling the database connection: %w", rerr)
			}
		}
		if err != nil {
			if errors.Is(err, schedule.ErrSchedulingInvariant) {
				return err
			}
			w.logRunError(logger, id, err)
		}
		w.setState(Polling)

		if w.StopAfter > 0 && n >= w.StopAfter {
			logger.Info("stopping after reaching the job limit", "stop_after", w.StopAfter)
			w.Stop()
			return nil
		}
	}
}

func (w *Worker) logRunError(logger *slog.Logger, id int64, err error) {
	var execErr *services.ExecutionError
	switch {
	case errors.As(err, &execErr):
		// The runner already logged it.
		metrics.Increment("watch.job_failed")
	case errors.Is(err, services.ErrLockContention), errors.Is(err, services.ErrNotFound):
		logger.Info("job skipped", "job_id", id, "err", err)
	case errors.Is(err, services.ErrMalformedJobType):
		logger.Warn("malformed job deleted", "job_id", id, "err", err)
	default:
		logger.Error("could not run job", "job_id", id, "err", err)
	}
}

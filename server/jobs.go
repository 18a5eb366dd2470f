package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/flusio/minz-worker/metrics"
	"github.com/flusio/minz-worker/models"
	"github.com/flusio/minz-worker/schedule"
	"github.com/flusio/minz-worker/services"
)

// CreateJobRequest is the body of a request to POST /v1/jobs.
type CreateJobRequest struct {
	Name string      `json:"name"`
	Args models.Args `json:"args"`
	// The earliest time the job can run. Defaults to now.
	PerformAt models.NullTime `json:"perform_at"`
	// Empty for a job that runs once.
	Frequency string `json:"frequency"`
	Queue     string `json:"queue"`
}

// A JobList is the response to GET /v1/jobs.
type JobList struct {
	Jobs []services.Listing `json:"jobs"`
}

// A RunResponse is the response to POST /v1/jobs/:id/run.
type RunResponse struct {
	ID        int64   `json:"id"`
	OK        bool    `json:"ok"`
	Attempts  int64   `json:"attempts"`
	ElapsedMS float64 `json:"elapsed_ms"`
	Error     string  `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// GET/POST /v1/jobs
func jobsHandler(c Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			createJob(c, w, r)
			return
		}
		queue := r.URL.Query().Get("queue")
		if queue == "" {
			queue = models.AllQueues
		}
		listings, err := services.Index(queue, c.Clock.Now(), c.Limits)
		if err != nil {
			writeServerError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, &JobList{Jobs: listings})
	})
}

// POST /v1/jobs
func createJob(c Config, w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		badRequest(w, r, createEmptyErr("name", r.URL.Path))
		return
	}
	defer r.Body.Close()
	var jr CreateJobRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxEnqueueDataSize)).Decode(&jr)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, entityTooLarge(r))
			return
		}
		badRequest(w, r, invalidRequest(r))
		return
	}
	if jr.Name == "" {
		badRequest(w, r, createEmptyErr("name", r.URL.Path))
		return
	}
	now := c.Clock.Now()
	start := time.Now()
	job, err := services.Enqueue(models.Job{
		Name:      jr.Name,
		Args:      jr.Args,
		PerformAt: jr.PerformAt.Time,
		Frequency: jr.Frequency,
		Queue:     jr.Queue,
	}, now)
	metrics.Time("enqueue.latency", time.Since(start))
	if errors.Is(err, services.ErrInvalidJob) {
		badRequest(w, r, invalidParameter(r, err))
		metrics.Increment("enqueue.invalid")
		return
	}
	if err != nil {
		writeServerError(w, r, err)
		metrics.Increment("enqueue.error")
		return
	}
	writeJSON(w, http.StatusCreated, &services.Listing{Job: job, Status: job.Annotations(now, c.Limits)})
	metrics.Increment("enqueue.success")
	metrics.Increment(fmt.Sprintf("enqueue.%s.success", job.Name))
}

// GET/DELETE /v1/jobs/:id
func jobHandler(c Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, wroteResponse := getID(w, r, jobRoute)
		if wroteResponse {
			return
		}
		if r.Method == "DELETE" {
			if err := services.Delete(id); err != nil {
				writeServiceError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			metrics.Increment("job.delete.success")
			return
		}
		showJob(c, w, r, id)
	})
}

func showJob(c Config, w http.ResponseWriter, r *http.Request, id int64) {
	job, err := services.Show(id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &services.Listing{Job: job, Status: job.Annotations(c.Clock.Now(), c.Limits)})
}

// POST /v1/jobs/:id/(run|unfail|unlock)
func jobActionHandler(c Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, wroteResponse := getID(w, r, jobActionRoute)
		if wroteResponse {
			return
		}
		switch routeParam(jobActionRoute, r, "action") {
		case "run":
			runJob(c, w, r, id)
		case "unfail":
			if err := services.Unfail(id, c.Clock.Now()); err != nil {
				writeServiceError(w, r, err)
				return
			}
			showJob(c, w, r, id)
		case "unlock":
			if err := services.Unlock(c.Runner.Locker, id, c.Clock.Now()); err != nil {
				writeServiceError(w, r, err)
				return
			}
			showJob(c, w, r, id)
		}
	})
}

func runJob(c Config, w http.ResponseWriter, r *http.Request, id int64) {
	// The job runs to completion even if the client goes away.
	res, err := c.Runner.Run(context.WithoutCancel(r.Context()), id)
	resp := &RunResponse{
		ID:        id,
		OK:        res.OK,
		Attempts:  res.Attempts,
		ElapsedMS: float64(res.Elapsed) / float64(time.Millisecond),
	}
	var execErr *services.ExecutionError
	if errors.As(err, &execErr) {
		resp.Error = execErr.Err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeServiceError maps errors from the services package to a response.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		notFound(w, new404(r))
	case errors.Is(err, services.ErrLockContention):
		conflict(w, jobLocked(r))
	case errors.Is(err, services.ErrMalformedJobType):
		badRequest(w, r, malformedJobType(r, err))
	case errors.Is(err, schedule.ErrSchedulingInvariant):
		slog.Error("job frequency does not advance time", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, schedulingInvariant(r, err))
	default:
		writeServerError(w, r, err)
	}
}

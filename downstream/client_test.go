package downstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flusio/minz-worker/clock"
	"github.com/flusio/minz-worker/models"
	"github.com/flusio/minz-worker/registry"
	"github.com/flusio/minz-worker/rest"
	"github.com/flusio/minz-worker/services"
	"github.com/flusio/minz-worker/test"
	"github.com/flusio/minz-worker/test/factory"
)

func unavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(&rest.Error{Title: "Service unavailable", ID: "service_unavailable"})
}

func TestPostSendsArgs(t *testing.T) {
	var path, user string
	var params JobParams
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		user, _, _ = r.BasicAuth()
		json.NewDecoder(r.Body).Decode(&params)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer s.Close()
	c := NewClient("jobs", "secret", s.URL, 0)
	args := models.Args{models.String("inv_1"), models.Int(3)}
	err := c.Job.Post(context.Background(), "invoice-shipment", 12, &JobParams{Args: args, Attempts: 2})
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, path, "/v1/jobs/invoice-shipment/12")
	test.AssertEquals(t, user, "jobs")
	test.AssertEquals(t, params.Attempts, int64(2))
	test.AssertDeepEquals(t, params.Args, args)
}

func TestPostRetriesUnavailable(t *testing.T) {
	retryBackoff = time.Millisecond
	defer func() { retryBackoff = 500 * time.Millisecond }()
	var count int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&count, 1) < 3 {
			unavailable(w)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer s.Close()
	c := NewClient("jobs", "secret", s.URL, 0)
	err := c.Job.Post(context.Background(), "echo", 1, &JobParams{})
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, atomic.LoadInt32(&count), int32(3))
}

func TestPostGivesUp(t *testing.T) {
	retryBackoff = time.Millisecond
	defer func() { retryBackoff = 500 * time.Millisecond }()
	var count int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		unavailable(w)
	}))
	defer s.Close()
	c := NewClient("jobs", "secret", s.URL, 0)
	err := c.Job.Post(context.Background(), "echo", 1, &JobParams{})
	test.AssertError(t, err, "")
	test.AssertEquals(t, atomic.LoadInt32(&count), int32(1+serviceUnavailableRetries))
}

func TestPostDoesNotRetryClientErrors(t *testing.T) {
	var count int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"title": "Bad args", "id": "invalid_parameter"}`))
	}))
	defer s.Close()
	c := NewClient("jobs", "secret", s.URL, 0)
	err := c.Job.Post(context.Background(), "echo", 1, &JobParams{})
	test.AssertError(t, err, "")
	test.AssertEquals(t, err.Error(), "Bad args")
	test.AssertEquals(t, atomic.LoadInt32(&count), int32(1))
}

func TestForwardPerformSendsAttemptCount(t *testing.T) {
	defer test.TearDown(t)
	test.SetUp(t)
	var path string
	var params JobParams
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&params)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer s.Close()
	reg := registry.New()
	Register(reg, NewClient("jobs", "secret", s.URL, 100), "invoice-shipment")
	runner, err := services.NewRunner(reg, models.DefaultLimits())
	test.AssertNotError(t, err, "")
	runner.Clock = clock.Freeze(factory.Now)
	runner.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	job := factory.CreateJob(t, models.Job{
		Name:  "invoice-shipment",
		Args:  models.Args{models.Bool(true)},
		Queue: factory.RandomQueue("forward"),
	})
	res, err := runner.Run(context.Background(), job.ID)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, res.Attempts, int64(1))
	test.AssertEquals(t, path, fmt.Sprintf("/v1/jobs/invoice-shipment/%d", job.ID))
	test.AssertEquals(t, params.Attempts, int64(1))
	test.AssertDeepEquals(t, params.Args, models.Args{models.Bool(true)})

	retried := factory.CreateJob(t, models.Job{Name: "invoice-shipment", Queue: factory.RandomQueue("forward")})
	factory.SetAttempts(t, retried.ID, 2)
	res, err = runner.Run(context.Background(), retried.ID)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, res.Attempts, int64(3))
	test.AssertEquals(t, params.Attempts, int64(3))
}

func TestForwardWithoutJob(t *testing.T) {
	f := &Forward{client: NewClient("jobs", "secret", "http://127.0.0.1:1", 0)}
	err := f.Perform(context.Background(), nil)
	test.AssertError(t, err, "")
}

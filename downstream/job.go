package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flusio/minz-worker/metrics"
	"github.com/flusio/minz-worker/models"
	"github.com/flusio/minz-worker/registry"
	"github.com/flusio/minz-worker/rest"
)

// number of times a temporary failure is retried before Post gives up
const serviceUnavailableRetries = 3

var retryBackoff = 500 * time.Millisecond

type JobService struct {
	Client *Client
}

// JobParams is the body of a request to the downstream service.
type JobParams struct {
	Args     models.Args `json:"args"`
	Attempts int64       `json:"attempts"`
}

// Post makes a request to /v1/jobs/:job-name/:job-id with the job arguments.
// The response body is ignored; only nil is returned for a 2xx status code.
// Requests that fail with a 502, 503 or 504 are retried.
func (j *JobService) Post(ctx context.Context, name string, id int64, jp *JobParams) error {
	if jp == nil {
		return errors.New("no job to post")
	}
	if jp.Args == nil {
		jp.Args = models.Args{}
	}
	body, err := json.Marshal(jp)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/v1/jobs/%s/%d", name, id)
	for i := 0; ; i++ {
		err = j.post(ctx, path, body)
		if err == nil || i >= serviceUnavailableRetries || !isUnavailable(err) {
			return err
		}
		metrics.Increment("downstream.post.retry")
		slog.Warn("downstream service unavailable, retrying", "job_id", id, "name", name, "attempt", i+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After((1 << i) * retryBackoff):
		}
	}
}

func (j *JobService) post(ctx context.Context, path string, body []byte) error {
	if err := j.Client.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := j.Client.NewRequest(ctx, "POST", path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	start := time.Now()
	err = j.Client.Do(req, nil)
	metrics.Time("downstream.post.latency", time.Since(start))
	return err
}

func isUnavailable(err error) bool {
	var rerr *rest.Error
	return errors.As(err, &rerr) && rerr.Temporary()
}

// Forward is a job type that posts the job to the downstream service.
type Forward struct {
	client *Client
	job    *models.Job
}

func (f *Forward) Bind(job *models.Job) {
	f.job = job
}

func (f *Forward) Perform(ctx context.Context, args models.Args) error {
	if f.job == nil {
		return errors.New("downstream: no job bound")
	}
	return f.client.Job.Post(ctx, f.job.Name, f.job.ID, &JobParams{
		Args:     args,
		Attempts: f.job.NumberAttempts,
	})
}

// Register registers each of names as a job type that is forwarded to c.
func Register(reg *registry.Registry, c *Client, names ...string) {
	for _, name := range names {
		reg.Register(name, func() interface{} {
			return &Forward{client: c}
		})
	}
}

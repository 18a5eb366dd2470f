// Package downstream forwards jobs to an HTTP service that performs them.
//
// The service must accept POST requests to /v1/jobs/:job-name/:job-id and
// return a 2xx status once the job has been performed.
package downstream

import (
	"net/http"
	"time"

	"github.com/flusio/minz-worker/rest"
	"golang.org/x/time/rate"
)

const defaultHTTPTimeout = 6500 * time.Millisecond

var httpClient = &http.Client{Timeout: defaultHTTPTimeout}

// Client is an API client for the downstream service.
type Client struct {
	*rest.Client

	Job *JobService

	limiter *rate.Limiter
}

// NewClient creates a new Client. At most perSecond requests are made per
// second; zero or less means no limit.
func NewClient(id, token, base string, perSecond float64) *Client {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	c := &Client{
		Client: &rest.Client{
			ID:     id,
			Token:  token,
			Client: httpClient,
			Base:   base,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
	c.Job = &JobService{Client: c}
	return c
}

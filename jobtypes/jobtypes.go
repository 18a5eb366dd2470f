// Package jobtypes registers the job types built into the worker and the
// server.
package jobtypes

import (
	"context"
	"log/slog"

	"github.com/flusio/minz-worker/config"
	"github.com/flusio/minz-worker/downstream"
	"github.com/flusio/minz-worker/models"
	"github.com/flusio/minz-worker/registry"
)

// Echo logs its arguments.
func Echo(ctx context.Context, args models.Args) error {
	attrs := []any{"args", args}
	if job, ok := registry.JobFromContext(ctx); ok {
		attrs = append(attrs, "job_id", job.ID, "attempt", job.NumberAttempts)
	}
	slog.InfoContext(ctx, "echo", attrs...)
	return nil
}

// New returns a registry with "echo", and with the downstream job types when
// a downstream URL is configured.
func New(c *config.Config) *registry.Registry {
	reg := registry.New()
	reg.RegisterFunc("echo", Echo)
	if c.DownstreamURL == "" {
		return reg
	}
	u := config.GetURLOrBail("DOWNSTREAM_URL", c.DownstreamURL)
	if c.DownstreamAuth == "" {
		slog.Warn("no DOWNSTREAM_WORKER_AUTH configured, using an empty password")
	}
	client := downstream.NewClient("jobs", c.DownstreamAuth, u.String(), c.DownstreamRate)
	downstream.Register(reg, client, c.DownstreamJobs...)
	return reg
}

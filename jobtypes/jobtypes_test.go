package jobtypes

import (
	"context"
	"testing"

	"github.com/flusio/minz-worker/config"
	"github.com/flusio/minz-worker/models"
	"github.com/flusio/minz-worker/registry"
	"github.com/flusio/minz-worker/test"
)

func TestNewWithoutDownstream(t *testing.T) {
	t.Parallel()
	reg := New(config.Default())
	test.AssertDeepEquals(t, reg.Names(), []string{"echo"})
}

func TestNewWithDownstream(t *testing.T) {
	t.Parallel()
	c := config.Default()
	c.DownstreamURL = "http://127.0.0.1:9999"
	c.DownstreamJobs = []string{"refresh-feed", "invoice-shipment"}
	reg := New(c)
	test.AssertDeepEquals(t, reg.Names(), []string{"echo", "invoice-shipment", "refresh-feed"})
}

func TestEcho(t *testing.T) {
	t.Parallel()
	ctx := registry.WithJob(context.Background(), &models.Job{ID: 3, Name: "echo"})
	test.AssertNotError(t, Echo(ctx, models.Args{models.String("hello")}), "")
	test.AssertNotError(t, Echo(context.Background(), nil), "")
}

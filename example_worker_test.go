// Run a worker. Configure the following environment variables:
//
// DATABASE_URL: Postgres or SQLite connection string
// PG_WORKER_POOL_SIZE: Maximum number of database connections from this process
// WORKER_QUEUE: Queue to poll, "all" for every queue
//
// Register a job type for every job name you enqueue. Jobs whose name isn't
// registered are left in the database.

package minzworker_test

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/flusio/minz-worker/config"
	"github.com/flusio/minz-worker/dequeuer"
	"github.com/flusio/minz-worker/metrics"
	"github.com/flusio/minz-worker/models"
	"github.com/flusio/minz-worker/registry"
	"github.com/flusio/minz-worker/services"
	"github.com/flusio/minz-worker/setup"
)

func Example_worker() {
	c, err := config.Load("")
	if err != nil {
		slog.Error("could not load the configuration", "err", err)
		os.Exit(1)
	}
	if err := setup.DB(setup.DefaultConnection, c.PoolSize); err != nil {
		slog.Error("could not connect to the database", "err", err)
		os.Exit(1)
	}
	metrics.Namespace = "minz.worker"
	metrics.Start(slog.Default(), time.Minute)

	reg := registry.New()
	reg.RegisterFunc("refresh-feed", func(ctx context.Context, args models.Args) error {
		url, err := args.String(0)
		if err != nil {
			return err
		}
		slog.Info("refreshing", "url", url)
		return nil
	})

	// Enqueue a feed refresh every hour.
	_, err = services.Enqueue(models.Job{
		Name:      "refresh-feed",
		Args:      models.Args{models.String("https://example.com/feed.xml")},
		Frequency: "+1 hour",
		Queue:     "feeds",
	}, time.Now().UTC())
	if err != nil {
		slog.Error("could not enqueue the job", "err", err)
		os.Exit(1)
	}

	runner, err := services.NewRunner(reg, c.Limits())
	if err != nil {
		slog.Error("could not create the runner", "err", err)
		os.Exit(1)
	}
	// Watch returns on SIGINT or SIGTERM, once the running job completes.
	w := dequeuer.New("feeds1", runner)
	if err := w.Watch(context.Background()); err != nil {
		os.Exit(1)
	}
}

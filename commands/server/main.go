// Run the job server.
//
// There is one authenticated user for basic auth, set with AUTH_USER and
// AUTH_PASSWORD. The server refuses to start without a password.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/flusio/minz-worker/clock"
	"github.com/flusio/minz-worker/config"
	"github.com/flusio/minz-worker/jobtypes"
	"github.com/flusio/minz-worker/logger"
	"github.com/flusio/minz-worker/metrics"
	"github.com/flusio/minz-worker/server"
	"github.com/flusio/minz-worker/services"
	"github.com/flusio/minz-worker/setup"
	"github.com/gorilla/handlers"
)

func configure(ctx context.Context, c *config.Config) (http.Handler, error) {
	dbConns, err := config.GetInt("PG_SERVER_POOL_SIZE")
	if err != nil {
		slog.Info("no PG_SERVER_POOL_SIZE configured, using the worker pool size", "pool_size", c.PoolSize)
		dbConns = c.PoolSize
	}
	if c.DatabaseURL != "" {
		os.Setenv("DATABASE_URL", c.DatabaseURL)
	}
	if err = setup.DB(setup.DefaultConnection, dbConns); err != nil {
		return nil, err
	}

	metrics.Namespace = "minz.server"
	metrics.Start(slog.Default(), c.MetricsInterval)

	go setup.MeasureActiveQueries(ctx, 5*time.Second)

	runner, err := services.NewRunner(jobtypes.New(c), c.Limits())
	if err != nil {
		return nil, err
	}
	server.AddUser(c.AuthUser, c.AuthPassword)
	return server.Get(server.DefaultAuthorizer, server.Config{
		Runner: runner,
		Limits: c.Limits(),
		Clock:  clock.Default,
	}), nil
}

func main() {
	c, err := config.Load("")
	if err != nil {
		slog.Error("could not load the configuration", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logger.New(logger.Config{Level: c.LogLevel, Format: c.LogFormat}))
	if c.AuthPassword == "" {
		slog.Error("no AUTH_PASSWORD configured")
		os.Exit(1)
	}

	s, err := configure(context.Background(), c)
	if err != nil {
		slog.Error("could not start the server", "err", err)
		os.Exit(1)
	}

	slog.Info("listening", "port", c.Port)
	err = http.ListenAndServe(":"+c.Port, handlers.LoggingHandler(os.Stdout, s))
	slog.Error("server stopped", "err", err)
	os.Exit(1)
}

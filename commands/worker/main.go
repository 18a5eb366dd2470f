// Run and manage jobs.
//
// Usage:
//
//	worker [-config file] watch [-queue q] [-stop-after n] [-sleep d]
//	worker [-config file] run <id>
//	worker [-config file] index [-queue q]
//	worker [-config file] show <id>
//	worker [-config file] unfail <id>
//	worker [-config file] unlock <id>
//	worker [-config file] delete <id>
//
// Settings are read from the environment (see the config package):
// DATABASE_URL, PG_WORKER_POOL_SIZE, WORKER_QUEUE, WORKER_SLEEP,
// WORKER_STOP_AFTER, JOB_LOCK_TIMEOUT, JOB_MAX_ATTEMPTS, LOG_LEVEL,
// LOG_FORMAT, DOWNSTREAM_URL, DOWNSTREAM_WORKER_AUTH, DOWNSTREAM_RATE and
// DOWNSTREAM_JOBS.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/flusio/minz-worker/config"
	"github.com/flusio/minz-worker/dequeuer"
	"github.com/flusio/minz-worker/jobtypes"
	"github.com/flusio/minz-worker/logger"
	"github.com/flusio/minz-worker/metrics"
	"github.com/flusio/minz-worker/services"
	"github.com/flusio/minz-worker/setup"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: worker [-config file] <command> [arguments]

commands:
  watch [-queue q] [-stop-after n] [-sleep d]  run due jobs until stopped
  run <id>                                     run a job now
  index [-queue q]                             list jobs
  show <id>                                    print a job
  unfail <id>                                  clear the failure of a job
  unlock <id>                                  clear the lock of a job
  delete <id>                                  delete a job`)
}

func checkError(err error) {
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func parseID(args []string) int64 {
	if len(args) != 1 {
		usage()
		os.Exit(2)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		checkError(fmt.Errorf("invalid job id %q", args[0]))
	}
	return id
}

func main() {
	configPath := flag.String("config", "", "YAML config file (default $CONFIG_FILE)")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	c, err := config.Load(*configPath)
	checkError(err)
	slog.SetDefault(logger.New(logger.Config{Level: c.LogLevel, Format: c.LogFormat}))
	if c.DatabaseURL != "" {
		os.Setenv("DATABASE_URL", c.DatabaseURL)
	}

	// We're going to make a lot of requests to the same downstream service.
	httpConns, err := config.GetInt("HTTP_MAX_IDLE_CONNS")
	if err == nil {
		config.SetMaxIdleConnsPerHost(httpConns)
	} else {
		config.SetMaxIdleConnsPerHost(100)
	}

	metrics.Namespace = "minz.worker"
	checkError(setup.DB(setup.DefaultConnection, c.PoolSize))

	cmd, args := flag.Arg(0), flag.Args()[1:]
	now := time.Now().UTC()
	switch cmd {
	case "watch":
		watch(c, args)
	case "run":
		id := parseID(args)
		runner, err := services.NewRunner(jobtypes.New(c), c.Limits())
		checkError(err)
		res, err := runner.Run(context.Background(), id)
		var execErr *services.ExecutionError
		if errors.As(err, &execErr) {
			fmt.Printf("job %d failed on attempt %d after %v: %v\n", id, res.Attempts, res.Elapsed, execErr.Err)
			os.Exit(1)
		}
		checkError(err)
		fmt.Printf("job %d succeeded on attempt %d after %v\n", id, res.Attempts, res.Elapsed)
	case "index":
		fs := flag.NewFlagSet("index", flag.ExitOnError)
		queue := fs.String("queue", "all", "queue to list, \"all\" for every queue")
		fs.Parse(args)
		listings, err := services.Index(*queue, now, c.Limits())
		checkError(err)
		printIndex(listings)
	case "show":
		job, err := services.Show(parseID(args))
		checkError(err)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		checkError(enc.Encode(&services.Listing{Job: job, Status: job.Annotations(now, c.Limits())}))
	case "unfail":
		id := parseID(args)
		checkError(services.Unfail(id, now))
		fmt.Printf("job %d unfailed\n", id)
	case "unlock":
		id := parseID(args)
		runner, err := services.NewRunner(jobtypes.New(c), c.Limits())
		checkError(err)
		checkError(services.Unlock(runner.Locker, id, now))
		fmt.Printf("job %d unlocked\n", id)
	case "delete":
		id := parseID(args)
		checkError(services.Delete(id))
		fmt.Printf("job %d deleted\n", id)
	default:
		usage()
		os.Exit(2)
	}
}

func watch(c *config.Config, args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	queue := fs.String("queue", c.Queue, "queue to poll, \"all\" for every queue")
	stopAfter := fs.Int64("stop-after", c.StopAfter, "stop after running this many jobs, 0 for never")
	sleep := fs.Duration("sleep", c.Sleep, "time to wait when no job is due")
	fs.Parse(args)

	metrics.Start(slog.Default(), c.MetricsInterval)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go setup.MeasureActiveQueries(ctx, 5*time.Second)
	go setup.MeasureQueueDepth(ctx, 5*time.Second)
	go setup.MeasureLockedJobs(ctx, 5*time.Second, c.LockTimeout)

	runner, err := services.NewRunner(jobtypes.New(c), c.Limits())
	checkError(err)
	w := dequeuer.New(*queue, runner)
	w.StopAfter = *stopAfter
	w.Sleep = *sleep
	w.Limits = c.Limits()
	if err := w.Watch(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

func printIndex(listings []services.Listing) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQUEUE\tPERFORM AT\tFREQUENCY\tATTEMPTS\tSTATUS\tLAST ERROR")
	for _, l := range listings {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			l.ID, l.Name, l.Queue, l.PerformAt.Format(time.RFC3339), l.Frequency,
			l.NumberAttempts, strings.Join(l.Status, ","), l.LastError.String)
	}
	tw.Flush()
}

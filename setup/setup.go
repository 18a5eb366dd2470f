// Setup helps initialize applications.
package setup

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/flusio/minz-worker/metrics"
	"github.com/flusio/minz-worker/models/db"
	"github.com/flusio/minz-worker/models/jobs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

var mu sync.Mutex

//go:embed schema/postgres.sql
var postgresSchema string

//go:embed schema/sqlite.sql
var sqliteSchema string

// Only prepared against Postgres.
var activeQueriesStmt *sql.Stmt

func prepare() (err error) {
	if !db.Connected() {
		return errors.New("No DB connection was established, can't query")
	}
	if db.Current != db.Postgres {
		return nil
	}
	activeQueriesStmt, err = db.Conn.Prepare(`-- setup.GetActiveQueries
SELECT count(*) FROM pg_stat_activity
WHERE state='active'
	`)
	return
}

// DefaultConnection connects to the database using the DATABASE_URL
// environment variable.
var DefaultConnection = &DatabaseURLConnector{}

// DatabaseURLConnector connects to the database using the DATABASE_URL
// environment variable. postgres:// URLs use Postgres; sqlite://<path> and
// file:<path> URLs use a SQLite file.
type DatabaseURLConnector struct {
	mu sync.Mutex
}

// Connect to the database using the DATABASE_URL environment variable with the
// given number of database connections.
func (dc *DatabaseURLConnector) Connect(dbConns int) (*sqlx.DB, db.Dialect, error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return nil, "", errors.New("setup: No value provided for DATABASE_URL, cannot connect")
	}
	driver, dsn, dialect, err := ParseDatabaseURL(url)
	if err != nil {
		return nil, "", err
	}
	d, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, "", err
	}
	if dialect == db.SQLite {
		// SQLite allows a single writer; more connections only trade
		// waiting in the pool for waiting on the busy timeout.
		dbConns = 1
	}
	d.SetMaxOpenConns(dbConns)
	return d, dialect, nil
}

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"

// ParseDatabaseURL returns the driver name and data source name to use for
// a DATABASE_URL.
func ParseDatabaseURL(url string) (driver, dsn string, dialect db.Dialect, err error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "postgres", url, db.Postgres, nil
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"):
		path := strings.TrimPrefix(strings.TrimPrefix(url, "sqlite://"), "file:")
		if path == "" || strings.HasPrefix(path, "?") {
			return "", "", "", fmt.Errorf("setup: no path in database URL %q", url)
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return "sqlite", "file:" + path + sep + sqlitePragmas, db.SQLite, nil
	default:
		return "", "", "", fmt.Errorf("setup: unsupported database URL %q", url)
	}
}

// idleConns returns how many idle connections to keep for a pool of
// dbConns connections.
func idleConns(dbConns int) int {
	switch {
	case dbConns > 100:
		return dbConns - 20
	case dbConns > 50:
		return dbConns - 10
	case dbConns > 10:
		return dbConns - 3
	case dbConns > 5:
		return dbConns - 2
	default:
		return dbConns
	}
}

// Migrate creates the jobs table and its indexes, if they don't exist.
func Migrate() error {
	schema := postgresSchema
	if db.Current == db.SQLite {
		schema = sqliteSchema
	}
	_, err := db.Conn.Exec(schema)
	return err
}

func GetActiveQueries() (count int64, err error) {
	if activeQueriesStmt == nil {
		return 0, errors.New("setup: active queries are only counted on Postgres")
	}
	err = activeQueriesStmt.QueryRow().Scan(&count)
	return
}

func every(ctx context.Context, interval time.Duration, f func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f()
		}
	}
}

// MeasureActiveQueries reports the number of active Postgres queries until
// ctx is canceled.
func MeasureActiveQueries(ctx context.Context, interval time.Duration) {
	every(ctx, interval, func() {
		count, err := GetActiveQueries()
		if err == nil {
			metrics.Measure("active_queries.count", count)
		} else {
			metrics.Increment("active_queries.error")
		}
	})
}

// MeasureQueueDepth reports the number of jobs, and of due jobs, until ctx
// is canceled.
func MeasureQueueDepth(ctx context.Context, interval time.Duration) {
	every(ctx, interval, func() {
		allCount, readyCount, err := jobs.CountReadyAndAll(time.Now().UTC())
		if err == nil {
			metrics.Measure("queue_depth.all", int64(allCount))
			metrics.Measure("queue_depth.ready", int64(readyCount))
		} else {
			metrics.Increment("queue_depth.error")
		}
	})
}

// MeasureLockedJobs reports the number of jobs held by a worker until ctx is
// canceled. Locks older than lockTimeout are not counted.
func MeasureLockedJobs(ctx context.Context, interval, lockTimeout time.Duration) {
	every(ctx, interval, func() {
		count, err := jobs.CountLocked(time.Now().UTC().Add(-lockTimeout))
		if err == nil {
			metrics.Measure("jobs.locked", int64(count))
		} else {
			metrics.Increment("jobs.locked.error")
		}
	})
}

// DB initializes a connection to the database, creates the schema and
// prepares queries on all models.
func DB(connector db.Connector, dbConns int) error {
	mu.Lock()
	defer mu.Unlock()
	if db.Connected() {
		if err := db.Conn.Ping(); err == nil {
			// Already connected.
			return nil
		}
	}
	conn, dialect, err := connector.Connect(dbConns)
	if err != nil {
		return errors.New("Could not establish a database connection: " + err.Error())
	}
	if err := conn.Ping(); err != nil {
		return errors.New("Could not establish a database connection: " + err.Error())
	}
	idle := idleConns(dbConns)
	if max := conn.Stats().MaxOpenConnections; max > 0 && idle > max {
		idle = max
	}
	db.Set(conn, dialect, idle)
	if err := Migrate(); err != nil {
		return fmt.Errorf("Could not create the database schema: %w", err)
	}
	return PrepareAll()
}

func PrepareAll() error {
	if err := jobs.Setup(); err != nil {
		return err
	}
	if err := prepare(); err != nil {
		return err
	}
	return nil
}

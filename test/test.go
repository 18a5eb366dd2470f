package test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/flusio/minz-worker/models/db"
	"github.com/flusio/minz-worker/setup"
)

var once sync.Once

// SetUp connects to the test database. When DATABASE_URL is unset, a SQLite
// file in a temporary directory is used, shared by every test in the process.
func SetUp(t testing.TB) {
	t.Helper()
	once.Do(func() {
		if os.Getenv("DATABASE_URL") != "" {
			return
		}
		dir, err := os.MkdirTemp("", "minz-worker-test")
		if err != nil {
			t.Fatal(err)
		}
		os.Setenv("DATABASE_URL", "sqlite://"+filepath.Join(dir, "jobs.db"))
	})
	if err := setup.DB(setup.DefaultConnection, 10); err != nil {
		t.Fatal(err)
	}
}

// TruncateTables deletes all records from the database.
func TruncateTables(t testing.TB) error {
	var name string
	if t == nil {
		name = "TruncateTables"
	} else {
		name = t.Name()
	}
	_, err := db.Conn.Exec(fmt.Sprintf("-- %s\nDELETE FROM jobs", name))
	return err
}

// TearDown deletes all records from the database, and marks the test as failed
// if this was unsuccessful.
func TearDown(t testing.TB) {
	t.Helper()
	if db.Connected() {
		if err := TruncateTables(t); err != nil {
			t.Fatal(err)
		}
	}
}

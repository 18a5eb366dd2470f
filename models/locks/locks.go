// Package locks implements mutual exclusion over database rows, using a
// locked_at timestamp column.
//
// A lock is held by whoever last set locked_at. Locks older than the
// timeout are considered abandoned (the worker holding them crashed), and
// can be taken over without being released.
package locks

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/flusio/minz-worker/models"
	"github.com/flusio/minz-worker/models/db"
)

// ErrNotFound indicates that the row to unlock does not exist.
var ErrNotFound = errors.New("Record not found")

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// A Locker acquires and releases locks on the rows of a single table. The
// table must have id, locked_at and updated_at columns.
type Locker struct {
	Table   string
	Timeout time.Duration

	acquireStmt *sql.Stmt
	releaseStmt *sql.Stmt
}

// New prepares the lock queries for table. The database connection must
// already be established.
func New(table string, timeout time.Duration) (*Locker, error) {
	if !db.Connected() {
		return nil, errors.New("No DB connection was established, can't query")
	}
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("locks: invalid table name %q", table)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("locks: timeout must be positive, got %v", timeout)
	}
	l := &Locker{Table: table, Timeout: timeout}
	var err error
	// A single conditional UPDATE: two workers racing on the same row can't
	// both see it unlocked.
	l.acquireStmt, err = db.Conn.Prepare(db.Conn.Rebind(fmt.Sprintf(`-- locks.Acquire
UPDATE %s
SET locked_at = ?,
	updated_at = ?
WHERE id = ?
	AND (locked_at IS NULL OR locked_at <= ?)`, table)))
	if err != nil {
		return nil, err
	}
	l.releaseStmt, err = db.Conn.Prepare(db.Conn.Rebind(fmt.Sprintf(`-- locks.Release
UPDATE %s
SET locked_at = NULL,
	updated_at = ?
WHERE id = ?`, table)))
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Acquire locks the row with the given id. It returns false, without
// changing anything, if the row is missing or another lock on it is still
// fresh.
func (l *Locker) Acquire(id int64, now time.Time) (bool, error) {
	res, err := l.acquireStmt.Exec(now, now, id, now.Add(-l.Timeout))
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// Release clears the lock on the row with the given id, whoever holds it.
func (l *Locker) Release(id int64, now time.Time) error {
	res, err := l.releaseStmt.Exec(now, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// IsLocked reports whether lockedAt is a lock that has not yet expired.
func (l *Locker) IsLocked(lockedAt models.NullTime, now time.Time) bool {
	return lockedAt.Valid && lockedAt.Time.After(now.Add(-l.Timeout))
}

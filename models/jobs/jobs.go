// Logic for interacting with the "jobs" table.
package jobs

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flusio/minz-worker/models"
	"github.com/flusio/minz-worker/models/db"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound indicates that the job was not found.
var ErrNotFound = errors.New("Job not found")

const fields = `id,
name,
args,
perform_at,
frequency,
queue,
locked_at,
number_attempts,
last_error,
failed_at,
created_at,
updated_at`

var insertStmt *sqlx.Stmt
var getStmt *sqlx.Stmt
var listStmt *sqlx.Stmt
var listQueueStmt *sqlx.Stmt
var deleteStmt *sqlx.Stmt
var nextStmt *sqlx.Stmt
var nextQueueStmt *sqlx.Stmt
var incrementStmt *sqlx.Stmt
var rescheduleStmt *sqlx.Stmt
var failStmt *sqlx.Stmt
var unfailStmt *sqlx.Stmt
var countStmt *sqlx.Stmt
var countLockedStmt *sqlx.Stmt

// eligible is the scheduler predicate: not locked (or the lock went stale),
// due, and either recurring or with attempts left.
const eligible = `(locked_at IS NULL OR locked_at <= ?)
	AND perform_at <= ?
	AND (number_attempts <= ? OR frequency != '')`

func prepare(query string) (*sqlx.Stmt, error) {
	return db.Conn.Preparex(db.Conn.Rebind(query))
}

// Setup prepares all database queries in this package.
func Setup() (err error) {
	if !db.Connected() {
		return errors.New("No database connection, bailing")
	}
	if insertStmt != nil {
		return
	}

	insertStmt, err = prepare(`-- jobs.Create
INSERT INTO jobs (name, args, perform_at, frequency, queue, number_attempts, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 0, ?, ?)
RETURNING id`)
	if err != nil {
		return
	}
	getStmt, err = prepare(fmt.Sprintf(`-- jobs.Get
SELECT %s
FROM jobs
WHERE id = ?`, fields))
	if err != nil {
		return
	}
	listStmt, err = prepare(fmt.Sprintf(`-- jobs.List
SELECT %s
FROM jobs
ORDER BY perform_at ASC, id ASC`, fields))
	if err != nil {
		return
	}
	listQueueStmt, err = prepare(fmt.Sprintf(`-- jobs.List
SELECT %s
FROM jobs
WHERE queue = ?
ORDER BY perform_at ASC, id ASC`, fields))
	if err != nil {
		return
	}
	deleteStmt, err = prepare(`-- jobs.Delete
DELETE FROM jobs
WHERE id = ?`)
	if err != nil {
		return
	}
	nextStmt, err = prepare(fmt.Sprintf(`-- jobs.FindNextEligible
SELECT id
FROM jobs
WHERE %s
ORDER BY perform_at ASC, id ASC
LIMIT 1`, eligible))
	if err != nil {
		return
	}
	nextQueueStmt, err = prepare(fmt.Sprintf(`-- jobs.FindNextEligible
SELECT id
FROM jobs
WHERE %s
	AND queue = ?
ORDER BY perform_at ASC, id ASC
LIMIT 1`, eligible))
	if err != nil {
		return
	}
	incrementStmt, err = prepare(`-- jobs.IncrementAttempts
UPDATE jobs
SET number_attempts = number_attempts + 1,
	updated_at = ?
WHERE id = ?
RETURNING number_attempts`)
	if err != nil {
		return
	}
	rescheduleStmt, err = prepare(`-- jobs.Reschedule
UPDATE jobs
SET perform_at = ?,
	last_error = NULL,
	failed_at = NULL,
	updated_at = ?
WHERE id = ?`)
	if err != nil {
		return
	}
	failStmt, err = prepare(`-- jobs.Fail
UPDATE jobs
SET last_error = ?,
	failed_at = ?,
	perform_at = ?,
	updated_at = ?
WHERE id = ?`)
	if err != nil {
		return
	}
	unfailStmt, err = prepare(`-- jobs.Unfail
UPDATE jobs
SET last_error = NULL,
	failed_at = NULL,
	number_attempts = 0,
	updated_at = ?
WHERE id = ?`)
	if err != nil {
		return
	}
	countStmt, err = prepare(`-- jobs.CountReadyAndAll
SELECT count(*), COALESCE(SUM(CASE WHEN perform_at <= ? THEN 1 ELSE 0 END), 0)
FROM jobs`)
	if err != nil {
		return
	}
	countLockedStmt, err = prepare(`-- jobs.CountLocked
SELECT count(*)
FROM jobs
WHERE locked_at > ?`)
	return
}

func normalize(j *models.Job) {
	j.PerformAt = j.PerformAt.UTC()
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	if j.Args == nil {
		j.Args = models.Args{}
	}
}

// Create inserts job and returns the stored record. ID, timestamps and the
// attempt count are set by the store.
func Create(job models.Job, now time.Time) (*models.Job, error) {
	if job.Args == nil {
		job.Args = models.Args{}
	}
	var id int64
	err := insertStmt.QueryRow(job.Name, job.Args, job.PerformAt.UTC(), job.Frequency, job.Queue, now, now).Scan(&id)
	if err != nil {
		return nil, err
	}
	return Get(id)
}

// Get a job by its id. Returns ErrNotFound if the job does not exist.
func Get(id int64) (*models.Job, error) {
	job := new(models.Job)
	err := getStmt.Get(job, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	normalize(job)
	return job, nil
}

// GetRetry attempts to get the job `attempts` times before giving up.
func GetRetry(id int64, attempts uint8) (job *models.Job, err error) {
	for i := uint8(0); i < attempts; i++ {
		job, err = Get(id)
		if err == nil || err == ErrNotFound {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	return
}

// List returns the jobs in queue by due date, or every job if queue is "all"
// or empty.
func List(queue string) ([]*models.Job, error) {
	var js []*models.Job
	var err error
	if queue == "" || queue == models.AllQueues {
		err = listStmt.Select(&js)
	} else {
		err = listQueueStmt.Select(&js, queue)
	}
	if err != nil {
		return nil, err
	}
	for _, j := range js {
		normalize(j)
	}
	return js, nil
}

// Delete deletes the given job. Returns ErrNotFound if the job does not
// exist.
func Delete(id int64) error {
	res, err := deleteStmt.Exec(id)
	if err != nil {
		return err
	}
	return affected(res)
}

// DeleteRetry attempts to Delete the item `attempts` times.
func DeleteRetry(id int64, attempts uint8) error {
	var err error
	for i := uint8(0); i < attempts; i++ {
		err = Delete(id)
		if err == nil || err == ErrNotFound {
			return err
		}
	}
	return err
}

// FindNextEligible returns the id of the earliest due job in queue that no
// worker holds and that has attempts left. queue "all" matches every queue.
// Returns ErrNotFound if nothing is eligible.
func FindNextEligible(queue string, now time.Time, l models.Limits) (int64, error) {
	var id int64
	var err error
	threshold := now.Add(-l.LockTimeout)
	if queue == models.AllQueues {
		err = nextStmt.QueryRow(threshold, now, l.MaxAttempts).Scan(&id)
	} else {
		err = nextQueueStmt.QueryRow(threshold, now, l.MaxAttempts, queue).Scan(&id)
	}
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return id, err
}

// IncrementAttempts adds one to the job's attempt count and returns the new
// count.
func IncrementAttempts(id int64, now time.Time) (int64, error) {
	var n int64
	err := incrementStmt.QueryRow(now, id).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return n, err
}

// Reschedule moves a job that succeeded to next, and clears any previous
// failure.
func Reschedule(id int64, next, now time.Time) error {
	res, err := rescheduleStmt.Exec(next.UTC(), now, id)
	if err != nil {
		return err
	}
	return affected(res)
}

// Fail records the error of a failed attempt, and moves the job to next.
func Fail(id int64, errText string, now, next time.Time) error {
	res, err := failStmt.Exec(errText, now, next.UTC(), now, id)
	if err != nil {
		return err
	}
	return affected(res)
}

// Unfail clears the failure of a job and resets its attempt count, so a job
// that ran out of attempts is scheduled again.
func Unfail(id int64, now time.Time) error {
	res, err := unfailStmt.Exec(now, id)
	if err != nil {
		return err
	}
	return affected(res)
}

// CountReadyAndAll returns the total number of jobs, and the number of jobs
// that are due.
func CountReadyAndAll(now time.Time) (allCount int, readyCount int, err error) {
	err = countStmt.QueryRow(now).Scan(&allCount, &readyCount)
	return
}

// CountLocked returns the number of jobs locked after since.
func CountLocked(since time.Time) (count int, err error) {
	err = countLockedStmt.QueryRow(since).Scan(&count)
	return
}

func affected(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

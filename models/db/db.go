// Definitions of database objects, and logic for connecting to the database.
package db

import (
	"sync"

	"github.com/jmoiron/sqlx"
)

// Dialect names the SQL database behind Conn.
type Dialect string

const Postgres = Dialect("postgres")
const SQLite = Dialect("sqlite")

var mu sync.Mutex

// Conn is a shared connection used by all database queries.
var Conn *sqlx.DB

// Current is the dialect of Conn.
var Current Dialect

var maxIdle int

// Connector opens a connection pool with at most dbConns connections.
type Connector interface {
	Connect(dbConns int) (*sqlx.DB, Dialect, error)
}

// Connected returns true if a connection exists to the database.
func Connected() bool {
	mu.Lock()
	defer mu.Unlock()
	return Conn != nil
}

// Set stores conn as the shared connection. maxIdleConns is restored by
// Recycle.
func Set(conn *sqlx.DB, d Dialect, maxIdleConns int) {
	mu.Lock()
	defer mu.Unlock()
	Conn = conn
	Current = d
	maxIdle = maxIdleConns
	conn.SetMaxIdleConns(maxIdleConns)
}

// Recycle closes every idle connection in the pool and opens a fresh one.
// Long running workers call this between jobs to bound the resources held by
// any single connection. The error is non-nil if the database can't be
// reached anymore.
func Recycle() error {
	mu.Lock()
	defer mu.Unlock()
	if Conn == nil {
		return nil
	}
	Conn.SetMaxIdleConns(0)
	Conn.SetMaxIdleConns(maxIdle)
	return Conn.Ping()
}

package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// We need to configure a few options to make sure SQLite works well with our app:
	// - WAL Mode so that reads and writes don't block eachother.
	// - A busy timeout, specifying the duration a connection will wait for a lock.
	// - Foreign keys are enforced.
	// - Immediate transactions, so a transaction takes the write lock when it begins
	//   instead of failing halfway with SQLITE_BUSY.
	options = "?_foreign_keys=on&_journal_mode=wal&_busy_timeout=5000&_txlock=immediate"
)

// OpenSQLite opens a SQLite database that allows a single connection.
//
// Verification tokens are consumed with conditional updates, a single
// writer makes those updates strictly ordered. It also means the in-memory
// database (":memory:") is shared by every user of the returned *sql.DB.
//
// See this comment for more information:
// https://github.com/mattn/go-sqlite3/issues/1179#issuecomment-1638083995
func OpenSQLite(dbFile string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbFile+options)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// don't close this connection.
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	return db, nil
}

package blackbox

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	// busyTimeout is the maximum time to wait for a database lock.
	busyTimeout = 5 * time.Second

	connectionTimeout = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS timeseries_index (
    timeseries_id        INTEGER PRIMARY KEY AUTOINCREMENT,
    driver_identifier    VARCHAR(64) NOT NULL,
    driver_signal        VARCHAR(64) NOT NULL,
    server_timeseries_id INTEGER,
    UNIQUE (driver_identifier, driver_signal)
);

CREATE TABLE IF NOT EXISTS timeseries_data (
    timeseries_id INTEGER NOT NULL REFERENCES timeseries_index (timeseries_id),
    timestamp_utc INTEGER NOT NULL,
    value         FLOAT   NOT NULL,
    staging_id    VARCHAR(8),
    staged_at_utc INTEGER,
    PRIMARY KEY (timeseries_id, timestamp_utc)
);

CREATE INDEX IF NOT EXISTS idx_timeseries_data_staging
    ON timeseries_data (staging_id);

CREATE TABLE IF NOT EXISTS api_token (
    token           VARCHAR(4096) PRIMARY KEY,
    valid_until_utc INTEGER NOT NULL
);
`

// Open opens (and if necessary creates) the blackbox database at the
// given path. The connection pool is limited to a single connection
// because SQLite supports only one writer.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating blackbox directory: %w", err)
	}

	connStr := fmt.Sprintf(
		"file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL",
		path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening blackbox database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying blackbox database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating blackbox schema: %w", err)
	}

	_ = os.Chmod(path, filePermissions)

	return db, nil
}

// OpenInMemory opens a private in-memory blackbox, used by tests.
func OpenInMemory() (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory blackbox: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating blackbox schema: %w", err)
	}
	return db, nil
}

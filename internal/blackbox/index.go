package blackbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// IndexEntry is one row of the timeseries_index table: the local
// identity of a (driver, signal) pair and its optional mapping to the
// server's timeseries id.
type IndexEntry struct {
	TimeseriesID       int64
	DriverIdentifier   string
	DriverSignal       string
	ServerTimeseriesID sql.NullInt64
}

// FindIndex returns the index entries matching the given filters,
// ordered by local id. Empty filter strings match everything.
func FindIndex(ctx context.Context, db *sql.DB, driverIdentifier, driverSignal string) ([]IndexEntry, error) {
	query := `SELECT timeseries_id, driver_identifier, driver_signal, server_timeseries_id
	          FROM timeseries_index WHERE 1=1`
	args := []any{}
	if driverIdentifier != "" {
		query += " AND driver_identifier = ?"
		args = append(args, driverIdentifier)
	}
	if driverSignal != "" {
		query += " AND driver_signal = ?"
		args = append(args, driverSignal)
	}
	query += " ORDER BY timeseries_id"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding index entries: %w", err)
	}
	defer rows.Close()

	var entries []IndexEntry
	for rows.Next() {
		var entry IndexEntry
		if err := rows.Scan(&entry.TimeseriesID, &entry.DriverIdentifier,
			&entry.DriverSignal, &entry.ServerTimeseriesID); err != nil {
			return nil, fmt.Errorf("scanning index entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetIndex returns the entry with the given local id.
func GetIndex(ctx context.Context, db *sql.DB, timeseriesID int64) (IndexEntry, error) {
	var entry IndexEntry
	err := db.QueryRowContext(ctx,
		`SELECT timeseries_id, driver_identifier, driver_signal, server_timeseries_id
		 FROM timeseries_index WHERE timeseries_id = ?`, timeseriesID,
	).Scan(&entry.TimeseriesID, &entry.DriverIdentifier,
		&entry.DriverSignal, &entry.ServerTimeseriesID)
	if errors.Is(err, sql.ErrNoRows) {
		return entry, fmt.Errorf("%w: timeseries_id %d", ErrNotFound, timeseriesID)
	}
	if err != nil {
		return entry, fmt.Errorf("getting index entry: %w", err)
	}
	return entry, nil
}

// CreateIndex inserts a new entry without a server mapping and
// returns its local id.
func CreateIndex(ctx context.Context, db *sql.DB, driverIdentifier, driverSignal string) (int64, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO timeseries_index (driver_identifier, driver_signal) VALUES (?, ?)`,
		driverIdentifier, driverSignal)
	if err != nil {
		return 0, fmt.Errorf("creating index entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("creating index entry: %w", err)
	}
	return id, nil
}

// UpdateIndex sets the server timeseries id of an entry.
func UpdateIndex(ctx context.Context, db *sql.DB, timeseriesID, serverTimeseriesID int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE timeseries_index SET server_timeseries_id = ? WHERE timeseries_id = ?`,
		serverTimeseriesID, timeseriesID)
	if err != nil {
		return fmt.Errorf("updating index entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating index entry: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: timeseries_id %d", ErrNotFound, timeseriesID)
	}
	return nil
}

// DeleteIndex removes an entry. Deleting an unknown id is a no-op.
func DeleteIndex(ctx context.Context, db *sql.DB, timeseriesID int64) error {
	if _, err := db.ExecContext(ctx,
		`DELETE FROM timeseries_index WHERE timeseries_id = ?`, timeseriesID); err != nil {
		return fmt.Errorf("deleting index entry: %w", err)
	}
	return nil
}

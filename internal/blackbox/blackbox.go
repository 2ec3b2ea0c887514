package blackbox

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flxdot/carlos-sub000/internal/edge"
	"github.com/flxdot/carlos-sub000/internal/infrastructure/logging"
)

const (
	// sqliteMaxVariables is SQLite's bound-variable cap per statement.
	// Staging binds the row ids plus two fixed parameters.
	sqliteMaxVariables = 999

	// MaxStageValues is the largest page a single Stage call may tag.
	MaxStageValues = sqliteMaxVariables - 2

	// DefaultStageValues is the page size used by the runtime.
	DefaultStageValues = 250

	// stagingTimeout is how long a staging id reserves its rows.
	// After that the rows become eligible again, which re-sends data
	// lost to a dead connection.
	stagingTimeout = 30 * time.Minute
)

// Blackbox buffers sensor readings in the local store and hands them
// out in staged pages for upload.
type Blackbox struct {
	db     *sql.DB
	logger *logging.Logger

	mu sync.Mutex
	// index caches driver_signal to timeseries_id per driver so that
	// recording does not hit the index table on every reading.
	index map[string]map[string]int64
}

// New creates a blackbox on top of an opened database.
func New(db *sql.DB, logger *logging.Logger) *Blackbox {
	return &Blackbox{
		db:     db,
		logger: logger,
		index:  make(map[string]map[string]int64),
	}
}

// Record inserts one reading: a value per signal, all under the same
// timestamp. Index entries are created lazily and the server mapping
// stays unset until the server announces it.
func (b *Blackbox) Record(ctx context.Context, driverIdentifier string, timestamp time.Time, values map[string]float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.hydrateIndex(ctx, driverIdentifier); err != nil {
		return err
	}

	samples := make(map[int64]float64, len(values))
	for signal, value := range values {
		timeseriesID, err := b.timeseriesID(ctx, driverIdentifier, signal)
		if err != nil {
			return err
		}
		samples[timeseriesID] = value
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recording data: %w", err)
	}
	defer tx.Rollback()

	// Re-reading the same second overwrites the value in place so the
	// row keeps its identity and any staging tag it already carries.
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO timeseries_data (timeseries_id, timestamp_utc, value) VALUES (?, ?, ?)
		 ON CONFLICT (timeseries_id, timestamp_utc) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("recording data: %w", err)
	}
	defer stmt.Close()

	unix := timestamp.UTC().Unix()
	for timeseriesID, value := range samples {
		if _, err := stmt.ExecContext(ctx, timeseriesID, unix, value); err != nil {
			return fmt.Errorf("recording data: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recording data: %w", err)
	}

	b.logger.Debug("recorded driver data",
		"driver", driverIdentifier, "signals", len(values))
	return nil
}

// hydrateIndex loads the driver's index entries into the cache on
// first touch. Callers hold the mutex.
func (b *Blackbox) hydrateIndex(ctx context.Context, driverIdentifier string) error {
	if _, ok := b.index[driverIdentifier]; ok {
		return nil
	}
	entries, err := FindIndex(ctx, b.db, driverIdentifier, "")
	if err != nil {
		return err
	}
	driverIndex := make(map[string]int64, len(entries))
	for _, entry := range entries {
		driverIndex[entry.DriverSignal] = entry.TimeseriesID
	}
	b.index[driverIdentifier] = driverIndex
	return nil
}

// timeseriesID resolves a signal's local id, creating the index entry
// when it does not exist yet. Callers hold the mutex.
func (b *Blackbox) timeseriesID(ctx context.Context, driverIdentifier, signal string) (int64, error) {
	if id, ok := b.index[driverIdentifier][signal]; ok {
		return id, nil
	}
	id, err := CreateIndex(ctx, b.db, driverIdentifier, signal)
	if err != nil {
		return 0, err
	}
	b.index[driverIdentifier][signal] = id
	return id, nil
}

// Stage tags up to maxValues eligible samples with a fresh staging id
// and returns them grouped by server timeseries id, newest first.
// Eligible are samples whose index entry carries a server mapping and
// that are either unstaged or whose staging has gone stale. Returns
// nil when nothing is eligible.
func (b *Blackbox) Stage(ctx context.Context, maxValues int) (*edge.DeviceDataPayload, error) {
	if maxValues <= 0 {
		maxValues = DefaultStageValues
	}
	if maxValues > MaxStageValues {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyValues, maxValues, MaxStageValues)
	}

	now := time.Now().UTC()
	staleBefore := now.Add(-stagingTimeout).Unix()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("staging data: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT d.rowid, i.server_timeseries_id, d.timestamp_utc, d.value
		 FROM timeseries_data AS d
		 JOIN timeseries_index AS i ON i.timeseries_id = d.timeseries_id
		 WHERE (d.staging_id IS NULL OR d.staged_at_utc < ?)
		   AND i.server_timeseries_id IS NOT NULL
		 ORDER BY d.timestamp_utc DESC
		 LIMIT ?`, staleBefore, maxValues)
	if err != nil {
		return nil, fmt.Errorf("staging data: %w", err)
	}

	payload := &edge.DeviceDataPayload{
		StagingID: edge.NewStagingID(),
		Data:      make(map[int64]edge.DriverTimeseries),
	}
	var rowIDs []any
	for rows.Next() {
		var (
			rowID              int64
			serverTimeseriesID int64
			timestampUTC       int64
			value              float64
		)
		if err := rows.Scan(&rowID, &serverTimeseriesID, &timestampUTC, &value); err != nil {
			rows.Close()
			return nil, fmt.Errorf("staging data: %w", err)
		}
		rowIDs = append(rowIDs, rowID)

		series := payload.Data[serverTimeseriesID]
		series.TimestampsUTC = append(series.TimestampsUTC, timestampUTC)
		series.Values = append(series.Values, value)
		payload.Data[serverTimeseriesID] = series
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("staging data: %w", err)
	}

	if len(rowIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(rowIDs)), ",")
	args := append([]any{payload.StagingID, now.Unix()}, rowIDs...)
	if _, err := tx.ExecContext(ctx,
		`UPDATE timeseries_data SET staging_id = ?, staged_at_utc = ?
		 WHERE rowid IN (`+placeholders+`)`, args...); err != nil {
		return nil, fmt.Errorf("staging data: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("staging data: %w", err)
	}

	b.logger.Debug("staged samples",
		"staging_id", payload.StagingID, "samples", len(rowIDs))
	return payload, nil
}

// Confirm deletes every sample tagged with the staging id. Confirming
// an unknown id is a no-op, which makes acknowledgement replays safe.
func (b *Blackbox) Confirm(ctx context.Context, stagingID string) error {
	result, err := b.db.ExecContext(ctx,
		`DELETE FROM timeseries_data WHERE staging_id = ?`, stagingID)
	if err != nil {
		return fmt.Errorf("confirming staged data: %w", err)
	}
	deleted, _ := result.RowsAffected()
	b.logger.Debug("confirmed staged data", "staging_id", stagingID, "samples", deleted)
	return nil
}

// UpdateServerMapping writes the server timeseries id for a local
// index entry, making its buffered samples eligible for staging.
func (b *Blackbox) UpdateServerMapping(ctx context.Context, timeseriesID, serverTimeseriesID int64) error {
	return UpdateIndex(ctx, b.db, timeseriesID, serverTimeseriesID)
}

// ReconcileServerMapping applies the server's signal identity map,
// driver identifier to signal identifier to server timeseries id.
// Local index entries are created where missing so that future
// readings map immediately.
func (b *Blackbox) ReconcileServerMapping(ctx context.Context, index map[string]map[string]int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for driverIdentifier, signals := range index {
		if err := b.hydrateIndex(ctx, driverIdentifier); err != nil {
			return err
		}
		for signal, serverTimeseriesID := range signals {
			timeseriesID, err := b.timeseriesID(ctx, driverIdentifier, signal)
			if err != nil {
				return err
			}
			if err := UpdateIndex(ctx, b.db, timeseriesID, serverTimeseriesID); err != nil {
				return err
			}
		}
	}
	return nil
}

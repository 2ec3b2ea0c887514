package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/flxdot/carlos-sub000/internal/infrastructure/logging"
)

const (
	// timeseriesTable is the partitioned samples table.
	timeseriesTable = "carlos.timeseries"

	// maxBatchSize bounds one INSERT statement.
	maxBatchSize = 1000

	// MaxQueryRange caps a single read. Larger requests have caused
	// database timeouts in the past and must be split by the caller.
	MaxQueryRange = 30 * 24 * time.Hour
)

// TimeseriesData holds the samples of one timeseries, timestamps and
// values as parallel arrays in ascending timestamp order.
type TimeseriesData struct {
	TimeseriesID int64
	Timestamps   []time.Time
	Values       []sql.NullFloat64
}

// sampleRow is one row prepared for insert.
type sampleRow struct {
	timestampUTC time.Time
	value        sql.NullFloat64
}

// TimeseriesStore reads and writes the partitioned timeseries table.
type TimeseriesStore struct {
	db     *sql.DB
	logger *logging.Logger
}

func NewTimeseriesStore(db *sql.DB, logger *logging.Logger) *TimeseriesStore {
	return &TimeseriesStore{db: db, logger: logger}
}

// AddTimeseries upserts samples for one timeseries. Values are clamped
// to the storable range, duplicate timestamps within the call coalesce
// to the first non-NULL value, and a missing monthly partition is
// created on the fly before the write is retried.
func (s *TimeseriesStore) AddTimeseries(ctx context.Context, timeseriesID int64, timestamps []time.Time, values []float64) error {
	if len(timestamps) != len(values) {
		return fmt.Errorf("%w: %d timestamps but %d values",
			ErrValidation, len(timestamps), len(values))
	}

	rows := s.buildRows(timeseriesID, timestamps, values)

	for start := 0; start < len(rows); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.insertChunk(ctx, timeseriesID, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// buildRows clamps values and deduplicates timestamps within the
// batch. Duplicates coalesce to the first non-NULL value and are
// logged because they usually point at a misbehaving device clock.
func (s *TimeseriesStore) buildRows(timeseriesID int64, timestamps []time.Time, values []float64) []sampleRow {
	byTimestamp := make(map[int64]int, len(timestamps))
	rows := make([]sampleRow, 0, len(timestamps))

	for i, timestamp := range timestamps {
		utc := timestamp.UTC()
		value := clampValue(values[i])

		if at, seen := byTimestamp[utc.Unix()]; seen {
			rows[at].value = coalesceValues(rows[at].value, value)
			s.logger.Warn("duplicate timestamp in batch, coalescing values",
				"timeseries_id", timeseriesID, "timestamp", utc)
			continue
		}
		byTimestamp[utc.Unix()] = len(rows)
		rows = append(rows, sampleRow{timestampUTC: utc, value: value})
	}
	return rows
}

func (s *TimeseriesStore) insertChunk(ctx context.Context, timeseriesID int64, rows []sampleRow) error {
	if len(rows) == 0 {
		return nil
	}

	stmt, args := buildUpsert(timeseriesID, rows)

	_, err := s.db.ExecContext(ctx, stmt, args...)
	if err == nil {
		return nil
	}
	if !isPGError(err, pgCheckViolation) {
		return fmt.Errorf("inserting timeseries data: %w", err)
	}

	// The timeseries table carries no checks of its own, so a check
	// violation means a row fell outside every existing partition.
	for partition := range partitionsForRows(rows) {
		if err := CreatePartition(ctx, s.db, partition); err != nil {
			return err
		}
		s.logger.Info("created missing timeseries partition", "partition", partition.Name())
	}

	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("inserting timeseries data after partition creation: %w", err)
	}
	return nil
}

// buildUpsert renders a multi-row insert that overwrites the value on
// timestamp collisions, keeping replayed uploads idempotent.
func buildUpsert(timeseriesID int64, rows []sampleRow) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO " + timeseriesTable +
		" (timeseries_id, timestamp_utc, value) VALUES ")

	args := make([]any, 0, 3*len(rows))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "($%d, $%d, $%d)", 3*i+1, 3*i+2, 3*i+3)
		args = append(args, timeseriesID, row.timestampUTC, row.value)
	}
	b.WriteString(" ON CONFLICT (timeseries_id, timestamp_utc)" +
		" DO UPDATE SET value = EXCLUDED.value")
	return b.String(), args
}

// partitionsForRows returns the set of monthly partitions the rows
// fall into.
func partitionsForRows(rows []sampleRow) map[MonthlyPartition]struct{} {
	partitions := make(map[MonthlyPartition]struct{})
	for _, row := range rows {
		partitions[MonthlyPartitionFor(timeseriesTable, row.timestampUTC)] = struct{}{}
	}
	return partitions
}

// GetTimeseries returns the samples of the requested timeseries within
// the range, ascending by timestamp. Timeseries that exist but hold no
// data in the range come back with empty arrays; unknown ids fail with
// ErrNotFound.
func (s *TimeseriesStore) GetTimeseries(ctx context.Context, timeseriesIDs []int64, startAtUTC, endAtUTC time.Time) ([]TimeseriesData, error) {
	if len(timeseriesIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one timeseries_id is required", ErrValidation)
	}
	if !endAtUTC.After(startAtUTC) {
		return nil, fmt.Errorf("%w: the range start must lie before its end", ErrValidation)
	}
	if endAtUTC.Sub(startAtUTC) > MaxQueryRange {
		return nil, fmt.Errorf("%w: requested range exceeds %s, split the request",
			ErrValidation, MaxQueryRange)
	}

	ids := dedupeIDs(timeseriesIDs)

	rows, err := s.db.QueryContext(ctx,
		`SELECT timeseries_id, timestamp_utc, value
		 FROM `+timeseriesTable+`
		 WHERE timeseries_id = ANY($1)
		   AND timestamp_utc >= $2 AND timestamp_utc <= $3
		 ORDER BY timeseries_id, timestamp_utc`,
		ids, startAtUTC.UTC(), endAtUTC.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying timeseries data: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*TimeseriesData, len(ids))
	var result []TimeseriesData
	order := make([]int64, 0, len(ids))
	for rows.Next() {
		var (
			id        int64
			timestamp time.Time
			value     sql.NullFloat64
		)
		if err := rows.Scan(&id, &timestamp, &value); err != nil {
			return nil, fmt.Errorf("scanning timeseries data: %w", err)
		}
		series, ok := byID[id]
		if !ok {
			series = &TimeseriesData{TimeseriesID: id}
			byID[id] = series
			order = append(order, id)
		}
		series.Timestamps = append(series.Timestamps, timestamp.UTC())
		series.Values = append(series.Values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning timeseries data: %w", err)
	}

	// Ids without data either exist (empty result) or are unknown
	// (an error). The device_signal table is the authority.
	if len(byID) < len(ids) {
		existing, err := s.existingTimeseriesIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if !existing[id] {
				return nil, fmt.Errorf("%w: timeseries_id %d", ErrNotFound, id)
			}
			if _, ok := byID[id]; !ok {
				byID[id] = &TimeseriesData{
					TimeseriesID: id,
					Timestamps:   []time.Time{},
					Values:       []sql.NullFloat64{},
				}
				order = append(order, id)
			}
		}
	}

	for _, id := range order {
		result = append(result, *byID[id])
	}
	return result, nil
}

func (s *TimeseriesStore) existingTimeseriesIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timeseries_id FROM carlos.device_signal WHERE timeseries_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("checking timeseries ids: %w", err)
	}
	defer rows.Close()

	existing := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("checking timeseries ids: %w", err)
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

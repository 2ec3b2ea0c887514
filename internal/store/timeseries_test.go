package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/flxdot/carlos-sub000/internal/infrastructure/logging"
)

func newHelperStore() *TimeseriesStore {
	return NewTimeseriesStore(nil, logging.Default())
}

func TestBuildRowsClampsAndDeduplicates(t *testing.T) {
	s := newHelperStore()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	timestamps := []time.Time{at, at.Add(time.Minute), at}
	values := []float64{math.NaN(), 21.5, 42}

	rows := s.buildRows(7, timestamps, values)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 after dedupe", len(rows))
	}

	// The duplicate coalesces to the first non-NULL value: the NaN
	// became NULL, so the later 42 wins.
	if !rows[0].value.Valid || rows[0].value.Float64 != 42 {
		t.Errorf("coalesced value = %v, want 42", rows[0].value)
	}
	if rows[1].value.Float64 != 21.5 {
		t.Errorf("second value = %v, want 21.5", rows[1].value)
	}
}

func TestBuildRowsNormalizesToUTC(t *testing.T) {
	s := newHelperStore()
	zone := time.FixedZone("UTC+2", 2*3600)

	rows := s.buildRows(7,
		[]time.Time{time.Date(2024, 5, 1, 14, 0, 0, 0, zone)},
		[]float64{1})
	if got := rows[0].timestampUTC; got.Hour() != 12 || got.Location() != time.UTC {
		t.Errorf("timestamp = %v, want 12:00 UTC", got)
	}
}

func TestBuildUpsert(t *testing.T) {
	rows := []sampleRow{
		{timestampUTC: time.Unix(0, 0).UTC(), value: sql.NullFloat64{Float64: 1, Valid: true}},
		{timestampUTC: time.Unix(60, 0).UTC(), value: sql.NullFloat64{}},
	}

	stmt, args := buildUpsert(7, rows)
	if !strings.Contains(stmt, "ON CONFLICT (timeseries_id, timestamp_utc)") {
		t.Errorf("statement lacks conflict clause: %s", stmt)
	}
	if !strings.Contains(stmt, "($1, $2, $3), ($4, $5, $6)") {
		t.Errorf("statement lacks row placeholders: %s", stmt)
	}
	if len(args) != 6 {
		t.Fatalf("got %d args, want 6", len(args))
	}
	if args[0] != int64(7) {
		t.Errorf("first arg = %v, want timeseries id 7", args[0])
	}
}

func TestPartitionsForRows(t *testing.T) {
	rows := []sampleRow{
		{timestampUTC: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{timestampUTC: time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)},
		{timestampUTC: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)},
	}

	partitions := partitionsForRows(rows)
	if len(partitions) != 2 {
		t.Fatalf("got %d partitions, want 2", len(partitions))
	}
	want := MonthlyPartition{Table: timeseriesTable, Year: 2024, Month: time.May}
	if _, ok := partitions[want]; !ok {
		t.Errorf("missing partition %v", want.Name())
	}
}

func TestAddTimeseriesLengthMismatch(t *testing.T) {
	s := newHelperStore()
	err := s.AddTimeseries(context.Background(), 7,
		[]time.Time{time.Now()}, []float64{1, 2})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("AddTimeseries() error = %v, want ErrValidation", err)
	}
}

func TestGetTimeseriesValidation(t *testing.T) {
	s := newHelperStore()
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name  string
		ids   []int64
		start time.Time
		end   time.Time
	}{
		{name: "no ids", ids: nil, start: now.Add(-time.Hour), end: now},
		{name: "inverted range", ids: []int64{7}, start: now, end: now.Add(-time.Hour)},
		{name: "empty range", ids: []int64{7}, start: now, end: now},
		{name: "oversized range", ids: []int64{7}, start: now.Add(-MaxQueryRange - time.Hour), end: now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.GetTimeseries(ctx, tt.ids, tt.start, tt.end)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("GetTimeseries() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestDedupeIDs(t *testing.T) {
	got := dedupeIDs([]int64{3, 1, 3, 2, 1})
	want := []int64{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("dedupeIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dedupeIDs()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

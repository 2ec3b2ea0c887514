package store

import (
	"testing"
	"time"
)

func TestMonthlyPartition(t *testing.T) {
	partition := MonthlyPartitionFor("carlos.timeseries",
		time.Date(2024, time.December, 15, 10, 0, 0, 0, time.UTC))

	if got, want := partition.Name(), "carlos.timeseries_y2024m12"; got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
	if got, want := partition.LowerBound(), "'2024-12-01'"; got != want {
		t.Errorf("LowerBound() = %q, want %q", got, want)
	}
	// December rolls the upper bound into the next year.
	if got, want := partition.UpperBound(), "'2025-01-01'"; got != want {
		t.Errorf("UpperBound() = %q, want %q", got, want)
	}
}

func TestMonthlyPartitionNormalizesZone(t *testing.T) {
	zone := time.FixedZone("UTC+5", 5*3600)
	// 01:30+05:00 on March 1st is still February in UTC.
	partition := MonthlyPartitionFor("carlos.timeseries",
		time.Date(2024, time.March, 1, 1, 30, 0, 0, zone))

	if partition.Month != time.February {
		t.Errorf("Month = %v, want February", partition.Month)
	}
}

func TestQuarterlyPartition(t *testing.T) {
	tests := []struct {
		month     time.Month
		wantName  string
		wantLower string
		wantUpper string
	}{
		{time.January, "carlos.timeseries_y2024q1", "'2024-01-01'", "'2024-04-01'"},
		{time.June, "carlos.timeseries_y2024q2", "'2024-04-01'", "'2024-07-01'"},
		{time.December, "carlos.timeseries_y2024q4", "'2024-10-01'", "'2025-01-01'"},
	}

	for _, tt := range tests {
		partition := QuarterlyPartitionFor("carlos.timeseries",
			time.Date(2024, tt.month, 10, 0, 0, 0, 0, time.UTC))
		if partition.Name() != tt.wantName {
			t.Errorf("Name() = %q, want %q", partition.Name(), tt.wantName)
		}
		if partition.LowerBound() != tt.wantLower {
			t.Errorf("LowerBound() = %q, want %q", partition.LowerBound(), tt.wantLower)
		}
		if partition.UpperBound() != tt.wantUpper {
			t.Errorf("UpperBound() = %q, want %q", partition.UpperBound(), tt.wantUpper)
		}
	}
}

func TestYearlyPartition(t *testing.T) {
	partition := YearlyPartition{Table: "carlos.timeseries", Year: 2024}

	if got, want := partition.Name(), "carlos.timeseries_y2024"; got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
	if got, want := partition.LowerBound(), "'2024-01-01'"; got != want {
		t.Errorf("LowerBound() = %q, want %q", got, want)
	}
	if got, want := partition.UpperBound(), "'2025-01-01'"; got != want {
		t.Errorf("UpperBound() = %q, want %q", got, want)
	}
}

func TestBucketPartition(t *testing.T) {
	tests := []struct {
		name       string
		id         int64
		bucketSize int64
		wantName   string
		wantLower  string
		wantUpper  string
	}{
		{
			name: "kilo buckets abbreviate",
			id:   17500, bucketSize: 1000,
			wantName:  "carlos.timeseries_0017k_0018k",
			wantLower: "17000", wantUpper: "18000",
		},
		{
			name: "mega buckets abbreviate",
			id:   2_500_000, bucketSize: 1_000_000,
			wantName:  "carlos.timeseries_0002m_0003m",
			wantLower: "2000000", wantUpper: "3000000",
		},
		{
			name: "odd sizes spell out the bounds",
			id:   120, bucketSize: 50,
			wantName:  "carlos.timeseries_100_150",
			wantLower: "100", wantUpper: "150",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			partition := BucketPartition{
				Table: "carlos.timeseries", ID: tt.id, BucketSize: tt.bucketSize,
			}
			if partition.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", partition.Name(), tt.wantName)
			}
			if partition.LowerBound() != tt.wantLower {
				t.Errorf("LowerBound() = %q, want %q", partition.LowerBound(), tt.wantLower)
			}
			if partition.UpperBound() != tt.wantUpper {
				t.Errorf("UpperBound() = %q, want %q", partition.UpperBound(), tt.wantUpper)
			}
		})
	}
}

func TestPartitionsAreComparable(t *testing.T) {
	a := MonthlyPartitionFor("carlos.timeseries", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	b := MonthlyPartitionFor("carlos.timeseries", time.Date(2024, 5, 30, 23, 59, 0, 0, time.UTC))

	set := map[MonthlyPartition]struct{}{a: {}, b: {}}
	if len(set) != 1 {
		t.Errorf("partitions of the same month hash to %d entries, want 1", len(set))
	}
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Partition describes one range partition of a partitioned table.
// Implementations are comparable value types so they can be
// deduplicated in a map.
type Partition interface {
	// BaseTable returns the qualified name of the partitioned table.
	BaseTable() string

	// Name returns the qualified name of the partition itself.
	Name() string

	// LowerBound and UpperBound return the bound literals for the
	// FOR VALUES FROM ... TO ... clause. The lower bound is
	// inclusive, the upper exclusive.
	LowerBound() string
	UpperBound() string
}

// MonthlyPartition covers one calendar month.
type MonthlyPartition struct {
	Table string
	Year  int
	Month time.Month
}

// MonthlyPartitionFor returns the partition holding the timestamp.
func MonthlyPartitionFor(table string, timestamp time.Time) MonthlyPartition {
	utc := timestamp.UTC()
	return MonthlyPartition{Table: table, Year: utc.Year(), Month: utc.Month()}
}

func (p MonthlyPartition) BaseTable() string { return p.Table }

func (p MonthlyPartition) Name() string {
	return fmt.Sprintf("%s_y%dm%d", p.Table, p.Year, int(p.Month))
}

func (p MonthlyPartition) LowerBound() string {
	return dateLiteral(p.Year, p.Month)
}

func (p MonthlyPartition) UpperBound() string {
	year, month := p.Year, p.Month+1
	if month > time.December {
		year, month = year+1, time.January
	}
	return dateLiteral(year, month)
}

// QuarterlyPartition covers one calendar quarter.
type QuarterlyPartition struct {
	Table   string
	Year    int
	Quarter int
}

// QuarterlyPartitionFor returns the partition holding the timestamp.
func QuarterlyPartitionFor(table string, timestamp time.Time) QuarterlyPartition {
	utc := timestamp.UTC()
	return QuarterlyPartition{
		Table:   table,
		Year:    utc.Year(),
		Quarter: (int(utc.Month())-1)/3 + 1,
	}
}

func (p QuarterlyPartition) BaseTable() string { return p.Table }

func (p QuarterlyPartition) Name() string {
	return fmt.Sprintf("%s_y%dq%d", p.Table, p.Year, p.Quarter)
}

func (p QuarterlyPartition) LowerBound() string {
	return dateLiteral(p.Year, time.Month((p.Quarter-1)*3+1))
}

func (p QuarterlyPartition) UpperBound() string {
	year, month := p.Year, p.Quarter*3+1
	if month > 12 {
		year, month = year+1, 1
	}
	return dateLiteral(year, time.Month(month))
}

// YearlyPartition covers one calendar year.
type YearlyPartition struct {
	Table string
	Year  int
}

func (p YearlyPartition) BaseTable() string { return p.Table }

func (p YearlyPartition) Name() string {
	return fmt.Sprintf("%s_y%d", p.Table, p.Year)
}

func (p YearlyPartition) LowerBound() string { return dateLiteral(p.Year, time.January) }
func (p YearlyPartition) UpperBound() string { return dateLiteral(p.Year+1, time.January) }

// BucketPartition groups rows by integer id into buckets of
// BucketSize ids each.
type BucketPartition struct {
	Table      string
	ID         int64
	BucketSize int64
}

func (p BucketPartition) BaseTable() string { return p.Table }

func (p BucketPartition) bucketNo() int64 { return p.ID / p.BucketSize }

func (p BucketPartition) lowerInt() int64 { return p.bucketNo() * p.BucketSize }
func (p BucketPartition) upperInt() int64 { return (p.bucketNo() + 1) * p.BucketSize }

// Name abbreviates bucket bounds with k and m suffixes when the
// bucket size divides evenly, so a 1000-wide bucket at 17000 becomes
// table_0017k_0018k.
func (p BucketPartition) Name() string {
	breakpoints := []struct {
		size   int64
		suffix string
	}{
		{1_000_000, "m"},
		{1_000, "k"},
	}
	suffix := fmt.Sprintf("%d_%d", p.lowerInt(), p.upperInt())
	for _, bp := range breakpoints {
		if p.BucketSize >= bp.size && p.BucketSize%bp.size == 0 {
			suffix = fmt.Sprintf("%04d%s_%04d%s",
				p.lowerInt()/bp.size, bp.suffix, p.upperInt()/bp.size, bp.suffix)
			break
		}
	}
	return fmt.Sprintf("%s_%s", p.Table, strings.ToLower(suffix))
}

func (p BucketPartition) LowerBound() string { return fmt.Sprintf("%d", p.lowerInt()) }
func (p BucketPartition) UpperBound() string { return fmt.Sprintf("%d", p.upperInt()) }

func dateLiteral(year int, month time.Month) string {
	return fmt.Sprintf("'%04d-%02d-01'", year, int(month))
}

// CreatePartition creates the partition unless it already exists.
// Losing the race against another writer is fine: the duplicate-table
// error is swallowed.
func CreatePartition(ctx context.Context, db *sql.DB, partition Partition) error {
	exists, err := tableExists(ctx, db, partition.Name())
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	stmt := fmt.Sprintf(
		"CREATE TABLE %s PARTITION OF %s FOR VALUES FROM (%s) TO (%s)",
		partition.Name(), partition.BaseTable(),
		partition.LowerBound(), partition.UpperBound())

	if _, err := db.ExecContext(ctx, stmt); err != nil {
		if isPGError(err, pgDuplicateTable) {
			return nil
		}
		return fmt.Errorf("creating partition %s: %w", partition.Name(), err)
	}
	return nil
}

func tableExists(ctx context.Context, db *sql.DB, qualifiedName string) (bool, error) {
	schema, table, found := strings.Cut(qualifiedName, ".")
	if !found {
		schema, table = "public", qualifiedName
	}

	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (
		    SELECT FROM information_schema.tables
		    WHERE table_schema = $1 AND table_name = $2)`,
		schema, table,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", qualifiedName, err)
	}
	return exists, nil
}

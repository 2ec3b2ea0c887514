package store

import (
	"database/sql"
	"math"
)

// MaxAbsReal is the largest magnitude a Postgres REAL column can hold,
// the single-precision float maximum. Storing it already loses
// precision but does not error.
const MaxAbsReal = (2 - 1.0/(1<<23)) * (1 << 127)

// clampValue maps a raw sample value onto the storable range. NaN and
// infinities become NULL, magnitudes beyond MaxAbsReal are capped with
// their sign kept.
func clampValue(value float64) sql.NullFloat64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return sql.NullFloat64{}
	}
	if value > MaxAbsReal {
		value = MaxAbsReal
	} else if value < -MaxAbsReal {
		value = -MaxAbsReal
	}
	return sql.NullFloat64{Float64: value, Valid: true}
}

// coalesceValues takes the first non-NULL of two values.
func coalesceValues(a, b sql.NullFloat64) sql.NullFloat64 {
	if a.Valid {
		return a
	}
	return b
}

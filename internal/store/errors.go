package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates a device, driver, signal or timeseries
	// that does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrValidation indicates invalid query or ingest arguments.
	ErrValidation = errors.New("store: validation failed")
)

// Postgres error codes handled by the store. The full list lives at
// https://www.postgresql.org/docs/current/errcodes-appendix.html.
const (
	pgCheckViolation  = "23514"
	pgDuplicateTable  = "42P07"
	pgUniqueViolation = "23505"
)

// isPGError reports whether err carries the given Postgres SQLSTATE.
func isPGError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

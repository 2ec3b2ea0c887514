package blackbox

import "errors"

var (
	// ErrNotFound indicates an index entry that does not exist.
	ErrNotFound = errors.New("blackbox: not found")

	// ErrTooManyValues indicates a stage request exceeding the
	// embedded store's bound-variable budget.
	ErrTooManyValues = errors.New("blackbox: stage request exceeds variable limit")
)

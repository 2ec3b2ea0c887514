package driver

import "errors"

var (
	// ErrUnknownModule indicates a driver_module with no registered
	// implementation.
	ErrUnknownModule = errors.New("driver: unknown driver module")

	// ErrDuplicateModule indicates a second registration under an
	// already taken module name.
	ErrDuplicateModule = errors.New("driver: driver module already registered")

	// ErrInvalidConfig indicates a driver configuration that failed
	// validation.
	ErrInvalidConfig = errors.New("driver: invalid driver config")
)

package device

import "errors"

// Sentinel errors for the device package.
var (
	// ErrUpdateRequested is returned by the runtime when the server
	// announced a newer edge version and the updater should take over.
	ErrUpdateRequested = errors.New("device: software update requested")

	// ErrInvalidSettings is returned for unusable configuration files.
	ErrInvalidSettings = errors.New("device: invalid settings")
)

package backend

import "errors"

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrUnknownBackend is returned when a backend name cannot be parsed.
	ErrUnknownBackend = errors.New("backend: unknown backend name")
)

package domain

import "errors"

// Domain errors are returned by construction and lifecycle calls and by
// adapters. They can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running service.
	ErrAlreadyRunning = errors.New("usercoord: already running")

	// ErrNotRunning is returned when an operation needs a running service.
	ErrNotRunning = errors.New("usercoord: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("usercoord: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("usercoord: invalid configuration")

	// ErrUserNotFound is returned by identity stores for unknown users.
	ErrUserNotFound = errors.New("usercoord: user not found")

	// ErrNotSupported is returned by a coordinator lacking a capability.
	ErrNotSupported = errors.New("usercoord: coordinator capability not supported")

	// ErrRequestPending is returned by a coordinator that already has a
	// request of the same kind outstanding.
	ErrRequestPending = errors.New("usercoord: request of the same kind already pending")

	// ErrMalformedResponse is returned when a coordinator answer cannot be interpreted.
	ErrMalformedResponse = errors.New("usercoord: malformed coordinator response")

	// ErrListenerNotComparable is returned when an in-process listener cannot
	// be identified by equality.
	ErrListenerNotComparable = errors.New("usercoord: listener is not comparable")
)

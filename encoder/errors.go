package encoder

import "errors"

// Setup errors
var (
	// ErrNoBackend indicates a Config without a codec backend.
	ErrNoBackend = errors.New("no codec backend configured")

	// ErrInvalidConfig indicates an unusable channel count or rate.
	ErrInvalidConfig = errors.New("invalid encoder configuration")
)

// Per-call errors
var (
	// ErrInvalidInput indicates a PCM block whose shape does not match
	// the configured channel count.
	ErrInvalidInput = errors.New("invalid pcm input")

	// ErrClosed indicates use of a closed engine.
	ErrClosed = errors.New("encoder closed")
)

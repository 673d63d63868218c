package decoder

import "errors"

// Per-frame errors. The frame is dropped and the engine stays usable.
var (
	// ErrCorruptFrame indicates a frame the codec could not decode.
	ErrCorruptFrame = errors.New("corrupted opus frame")

	// ErrOverTrim indicates an end-trim that would discard every sample
	// of the frame.
	ErrOverTrim = errors.New("end trim exceeds frame length")
)

// Stream errors. The engine accepts no further frames.
var (
	// ErrStreamFailed indicates that the stream header or the codec
	// decoder could not be set up. The failure is terminal.
	ErrStreamFailed = errors.New("opus stream failed")

	// ErrClosed indicates use of a closed engine.
	ErrClosed = errors.New("decoder closed")
)

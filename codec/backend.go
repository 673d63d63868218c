// Package codec defines the boundary between the transcoding engines and
// the library that performs Opus bitstream arithmetic.
//
// A Backend creates per-stream decoders and encoders for single Opus
// elementary streams. MultistreamDecoder and MultistreamEncoder compose
// them into the multistream layout described by a Geometry: packets are
// split and joined with self-delimited framing, and channels are routed
// through the stream map.
//
// Backends may implement optional capabilities (GainController,
// LookaheadReporter, BitrateController). Engines check for them once at
// construction and cache the result.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by the codec layer.
var (
	// ErrInvalidGeometry indicates stream counts or a mapping that cannot
	// describe a valid multistream layout.
	ErrInvalidGeometry = errors.New("invalid multistream geometry")

	// ErrBufferTooSmall indicates an output buffer too small for the frame.
	ErrBufferTooSmall = errors.New("output buffer too small")

	// ErrStreamMismatch indicates elementary streams that decoded to
	// different sample counts.
	ErrStreamMismatch = errors.New("elementary streams disagree on frame size")

	// ErrUnsupported indicates an operation the backend cannot perform.
	ErrUnsupported = errors.New("operation not supported by codec backend")

	// ErrClosed indicates use of a codec after Close.
	ErrClosed = errors.New("codec closed")
)

// MaxFrameSamples is the largest Opus packet duration in samples per
// channel at 48 kHz (120 ms).
const MaxFrameSamples = 5760

// Application selects the encoder tuning.
type Application int

const (
	ApplicationAudio Application = iota
	ApplicationVoIP
	ApplicationRestrictedLowDelay
)

// String returns the application name.
func (a Application) String() string {
	switch a {
	case ApplicationAudio:
		return "audio"
	case ApplicationVoIP:
		return "voip"
	case ApplicationRestrictedLowDelay:
		return "lowdelay"
	default:
		return fmt.Sprintf("Application(%d)", int(a))
	}
}

// ParseApplication maps a name to an Application. Unknown names return
// ApplicationAudio and false.
func ParseApplication(name string) (Application, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "audio", "":
		return ApplicationAudio, true
	case "voip", "voice":
		return ApplicationVoIP, true
	case "lowdelay", "restricted-lowdelay", "restricted_lowdelay":
		return ApplicationRestrictedLowDelay, true
	default:
		return ApplicationAudio, false
	}
}

// StreamDecoder decodes one elementary stream.
type StreamDecoder interface {
	// Decode decodes packet into interleaved pcm and returns the number of
	// samples per channel written.
	Decode(packet []byte, pcm []float32) (int, error)
	// Reset clears the decoder history.
	Reset() error
	// Close releases the decoder.
	Close() error
}

// StreamEncoder encodes one elementary stream.
type StreamEncoder interface {
	// Encode encodes exactly one frame of interleaved pcm into out and
	// returns the packet length.
	Encode(pcm []float32, out []byte) (int, error)
	// Reset clears the encoder history.
	Reset() error
	// Close releases the encoder.
	Close() error
}

// Backend creates elementary stream codecs.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// NewStreamDecoder creates a decoder producing pcm at sampleRate.
	NewStreamDecoder(sampleRate, channels int) (StreamDecoder, error)
	// NewStreamEncoder creates an encoder consuming pcm at sampleRate.
	NewStreamEncoder(sampleRate, channels int, app Application) (StreamEncoder, error)
}

// GainController is implemented by decoders that can apply the header's
// output gain internally.
type GainController interface {
	// SetGain sets the output gain in Q7.8 dB.
	SetGain(q78 int) error
}

// LookaheadReporter is implemented by encoders that report their
// algorithmic delay.
type LookaheadReporter interface {
	// Lookahead returns the delay in samples per channel at the encoder rate.
	Lookahead() (int, error)
}

// BitrateController is implemented by encoders with a target bitrate.
type BitrateController interface {
	// SetBitrate sets the target bitrate in bits per second.
	SetBitrate(bps int) error
}

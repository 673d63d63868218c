// Package codectest provides a deterministic codec backend for tests.
//
// The simulated codec does not compress audio. Each frame carries, per
// channel, the start value and per-sample step of a linear ramp, so ramps
// and constant signals survive an encode and decode unchanged while packets
// stay small. Frames of 120, 240, 480 and 960 samples are tagged with the
// CELT fullband TOC configuration for their size, so packet inspection
// treats them as ordinary Opus packets.
//
// The Backend records every codec it creates and every frame handed to an
// encoder, and can be configured to fail construction or individual encodes.
package codectest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/opd-ai/opustranscode/codec"
	"github.com/sirupsen/logrus"
)

// Errors produced by the simulated codec.
var (
	// ErrCorruptPayload indicates a frame whose length does not match the
	// ramp layout.
	ErrCorruptPayload = errors.New("simulated codec: corrupt payload")

	// ErrUnsupportedFrameSize indicates an encode with a frame size the
	// simulated codec has no TOC configuration for.
	ErrUnsupportedFrameSize = errors.New("simulated codec: unsupported frame size")

	// ErrInjected is returned by injected failures.
	ErrInjected = errors.New("simulated codec: injected failure")
)

// Backend is a configurable simulated codec backend.
type Backend struct {
	// Lookahead is the delay reported by encoders, in samples.
	Lookahead int
	// NoLookahead makes encoders omit the LookaheadReporter capability.
	NoLookahead bool
	// GainControl makes decoders implement codec.GainController.
	GainControl bool
	// FailDecoderCreate and FailEncoderCreate make construction fail.
	FailDecoderCreate bool
	FailEncoderCreate bool
	// FailEncode reports whether the n-th encode call (0-based, counted
	// across all encoders of this backend) fails.
	FailEncode func(n int) bool

	mu        sync.Mutex
	decoders  []*Decoder
	encoders  []*Encoder
	encodeLog []EncodeRecord
}

// EncodeRecord captures one encode call.
type EncodeRecord struct {
	Stream   int // index of the encoder in creation order
	Channels int
	Input    []float32
	Success  bool
}

// NewBackend returns a backend with the given encoder lookahead.
func NewBackend(lookahead int) *Backend {
	logrus.WithFields(logrus.Fields{
		"function":  "codectest.NewBackend",
		"lookahead": lookahead,
	}).Debug("Creating simulated codec backend")
	return &Backend{Lookahead: lookahead}
}

// Name implements codec.Backend.
func (b *Backend) Name() string {
	return "codectest"
}

// NewStreamDecoder implements codec.Backend.
func (b *Backend) NewStreamDecoder(sampleRate, channels int) (codec.StreamDecoder, error) {
	if b.FailDecoderCreate {
		return nil, fmt.Errorf("create decoder: %w", ErrInjected)
	}
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("simulated decoder: %d channels", channels)
	}

	d := &Decoder{sampleRate: sampleRate, channels: channels, gain: 1}

	b.mu.Lock()
	b.decoders = append(b.decoders, d)
	b.mu.Unlock()

	if b.GainControl {
		return &gainDecoder{d}, nil
	}
	return d, nil
}

// NewStreamEncoder implements codec.Backend.
func (b *Backend) NewStreamEncoder(sampleRate, channels int, app codec.Application) (codec.StreamEncoder, error) {
	if b.FailEncoderCreate {
		return nil, fmt.Errorf("create encoder: %w", ErrInjected)
	}
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("simulated encoder: %d channels", channels)
	}

	b.mu.Lock()
	e := &Encoder{
		backend:     b,
		index:       len(b.encoders),
		sampleRate:  sampleRate,
		channels:    channels,
		Application: app,
	}
	b.encoders = append(b.encoders, e)
	b.mu.Unlock()

	if b.NoLookahead {
		return &plainEncoder{e}, nil
	}
	return e, nil
}

// Decoders returns the decoders created so far.
func (b *Backend) Decoders() []*Decoder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Decoder(nil), b.decoders...)
}

// Encoders returns the encoders created so far.
func (b *Backend) Encoders() []*Encoder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Encoder(nil), b.encoders...)
}

// EncodeLog returns every encode call in order.
func (b *Backend) EncodeLog() []EncodeRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]EncodeRecord(nil), b.encodeLog...)
}

// record appends an encode call and reports whether it should fail.
func (b *Backend) record(r EncodeRecord) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	fail := b.FailEncode != nil && b.FailEncode(len(b.encodeLog))
	r.Success = !fail
	b.encodeLog = append(b.encodeLog, r)
	return fail
}

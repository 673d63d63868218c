package opustranscode

import (
	"errors"
	"fmt"

	"github.com/opd-ai/opustranscode/audio"
	"github.com/opd-ai/opustranscode/codec"
	"github.com/opd-ai/opustranscode/decoder"
	"github.com/opd-ai/opustranscode/encoder"
	"github.com/sirupsen/logrus"
)

// Types exchanged with the host.
type (
	Format          = audio.Format
	Block           = audio.Block
	PCMBuffer       = audio.PCMBuffer
	CompressedFrame = audio.CompressedFrame
)

// ErrNoEncoderBackend is returned by OpenEncoder when no encoder backend
// is configured and none is built in.
var ErrNoEncoderBackend = errors.New("no opus encoder backend available")

// Options contains decoder and encoder configuration.
type Options struct {
	// DecodeBackend decodes elementary streams. Nil selects libopus when
	// built with cgo and the pure Go pion decoder otherwise. The pion
	// decoder handles only mono SILK packets of one 20 ms frame; CELT,
	// hybrid and stereo packets are dropped as corrupt frames.
	DecodeBackend codec.Backend
	// EncodeBackend encodes elementary streams. Nil selects libopus when
	// built with cgo.
	EncodeBackend codec.Backend
	// Application is the encoder tuning: "audio", "voip" or "lowdelay".
	// Unknown values fall back to "audio".
	Application string
	// ApplyPreSkip discards the header pre-skip at the start of decoded
	// streams.
	ApplyPreSkip bool
	// Vendor names the encoder in generated comment headers.
	Vendor string
	// FlushTail makes Encoder.Drain emit the final partial frame padded
	// with silence instead of discarding it.
	FlushTail bool
}

// NewDefaultOptions creates a new default options object.
func NewDefaultOptions() *Options {
	return &Options{
		DecodeBackend: defaultDecodeBackend(),
		EncodeBackend: defaultEncodeBackend(),
		Application:   codec.ApplicationAudio.String(),
		ApplyPreSkip:  false,
		Vendor:        "opustranscode",
	}
}

// Decoder decodes one Opus stream to float PCM.
type Decoder struct {
	*decoder.Engine
}

// OpenDecoder opens a decoder for a stream described by format. A nil
// opts uses NewDefaultOptions.
//
// Parameters:
//   - format: Negotiated channel count, sample rate and codec extradata
//   - opts: Decoder options, or nil
//
// Returns:
//   - *Decoder: The decoder
//   - error: Header or codec setup failure
func OpenDecoder(format Format, opts *Options) (*Decoder, error) {
	if opts == nil {
		opts = NewDefaultOptions()
	}
	backend := opts.DecodeBackend
	if backend == nil {
		backend = defaultDecodeBackend()
	}
	engine, err := decoder.Open(format, decoder.Options{
		Backend:      backend,
		ApplyPreSkip: opts.ApplyPreSkip,
	})
	if err != nil {
		return nil, fmt.Errorf("open decoder: %w", err)
	}
	return &Decoder{Engine: engine}, nil
}

// Encoder encodes float PCM into an Opus stream.
type Encoder struct {
	*encoder.Engine
}

// OpenEncoder opens an encoder for channels channels of PCM at
// sampleRate Hz. A bitrate of 0 leaves the codec default. A nil opts
// uses NewDefaultOptions.
//
// Parameters:
//   - channels: Input channel count, 1 to 8
//   - sampleRate: Input sample rate in Hz, resampled to 48000 if different
//   - bitrate: Target bitrate in bits per second, or 0
//   - opts: Encoder options, or nil
//
// Returns:
//   - *Encoder: The encoder; Extradata holds the stream headers
//   - error: Configuration or codec setup failure
func OpenEncoder(channels, sampleRate, bitrate int, opts *Options) (*Encoder, error) {
	if opts == nil {
		opts = NewDefaultOptions()
	}
	backend := opts.EncodeBackend
	if backend == nil {
		backend = defaultEncodeBackend()
	}
	if backend == nil {
		return nil, ErrNoEncoderBackend
	}

	app, ok := codec.ParseApplication(opts.Application)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function":    "OpenEncoder",
			"application": opts.Application,
			"fallback":    app.String(),
		}).Warn("Unknown encoder application, using default")
	}

	engine, err := encoder.Open(encoder.Config{
		Channels:    channels,
		SampleRate:  sampleRate,
		Bitrate:     bitrate,
		Application: app,
		Backend:     backend,
		Vendor:      opts.Vendor,
		FlushTail:   opts.FlushTail,
	})
	if err != nil {
		return nil, fmt.Errorf("open encoder: %w", err)
	}
	return &Encoder{Engine: engine}, nil
}

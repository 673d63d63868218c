// Package pionopus adapts the pure-Go pion/opus decoder to codec.Backend.
//
// pion/opus has no encoder, so this backend is decode-only:
// NewStreamEncoder reports codec.ErrUnsupported. Its decoder handles mono
// SILK packets carrying one 20 ms frame at narrow, medium or wide band.
// CELT, hybrid, stereo SILK and other frame durations fail to decode, and
// the decode engine drops them as corrupt frames. Output is produced at
// 48 kHz. A mono decode feeding a coupled stream is duplicated into both
// channels.
package pionopus

import (
	"fmt"

	"github.com/opd-ai/opustranscode/codec"
	"github.com/opd-ai/opustranscode/packet"
	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// SampleRate is the only output rate pion/opus produces.
const SampleRate = 48000

// Backend creates pion/opus stream decoders.
type Backend struct{}

// New returns the pion/opus backend.
func New() *Backend {
	return &Backend{}
}

// Name implements codec.Backend.
func (b *Backend) Name() string {
	return "pion"
}

// NewStreamDecoder implements codec.Backend.
func (b *Backend) NewStreamDecoder(sampleRate, channels int) (codec.StreamDecoder, error) {
	if sampleRate != SampleRate {
		return nil, fmt.Errorf("%w: pion decoder output rate %d", codec.ErrUnsupported, sampleRate)
	}
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: %d channels per stream", codec.ErrUnsupported, channels)
	}

	logrus.WithFields(logrus.Fields{
		"function": "pionopus.NewStreamDecoder",
		"channels": channels,
	}).Debug("Creating pion opus decoder")

	return &Decoder{
		dec:      opus.NewDecoder(),
		channels: channels,
	}, nil
}

// NewStreamEncoder implements codec.Backend. pion/opus has no encoder.
func (b *Backend) NewStreamEncoder(sampleRate, channels int, app codec.Application) (codec.StreamEncoder, error) {
	return nil, fmt.Errorf("%w: pion backend cannot encode", codec.ErrUnsupported)
}

// silkFrameSamples is the size of pion's internal SILK frame buffer: one
// 20 ms frame at 16 kHz.
const silkFrameSamples = 320

// Decoder wraps one pion/opus decoder.
type Decoder struct {
	dec      opus.Decoder
	channels int
	scratch  []float32 // pion's 16 kHz frame repeated three times
	native   []float32
	closed   bool
}

// Decode implements codec.StreamDecoder. The sample count comes from the
// packet's TOC since pion/opus does not report it.
func (d *Decoder) Decode(data []byte, pcm []float32) (int, error) {
	if d.closed {
		return 0, codec.ErrClosed
	}
	n, err := packet.SampleCount(data, SampleRate)
	if err != nil {
		return 0, err
	}
	if len(pcm) < n*d.channels {
		return 0, fmt.Errorf("%w: need %d samples", codec.ErrBufferTooSmall, n*d.channels)
	}

	if d.scratch == nil {
		d.scratch = make([]float32, 3*silkFrameSamples)
		d.native = make([]float32, silkFrameSamples)
	}
	bandwidth, _, err := d.dec.DecodeFloat32(data, d.scratch)
	if err != nil {
		return 0, fmt.Errorf("pion decode: %w", err)
	}

	// pion writes the frame at the coded rate and then repeats every
	// sample three times, which is only right for wide band.
	rate := bandwidth.SampleRate()
	if rate == 0 || SampleRate%rate != 0 || n*rate/SampleRate > silkFrameSamples {
		return 0, fmt.Errorf("%w: pion %s output", codec.ErrUnsupported, bandwidth.String())
	}
	native := d.native[:n*rate/SampleRate]
	for k := range native {
		native[k] = d.scratch[3*k]
	}

	logrus.WithFields(logrus.Fields{
		"function":  "pionopus.Decode",
		"bandwidth": bandwidth.String(),
		"rate":      rate,
		"samples":   n,
	}).Debug("Decoded pion opus packet")

	return upsample(native, SampleRate/rate, d.channels, pcm), nil
}

// upsample repeats each native sample factor times into interleaved pcm,
// copying it to every channel. It returns the samples written per
// channel.
func upsample(native []float32, factor, channels int, pcm []float32) int {
	i := 0
	for _, v := range native {
		for j := 0; j < factor; j++ {
			for c := 0; c < channels; c++ {
				pcm[i*channels+c] = v
			}
			i++
		}
	}
	return i
}

// Reset implements codec.StreamDecoder by replacing the decoder state.
func (d *Decoder) Reset() error {
	if d.closed {
		return codec.ErrClosed
	}
	d.dec = opus.NewDecoder()
	return nil
}

// Close implements codec.StreamDecoder.
func (d *Decoder) Close() error {
	d.closed = true
	d.scratch = nil
	d.native = nil
	return nil
}

//go:build cgo

// Package libopus adapts the cgo libopus bindings from hraban/opus to
// codec.Backend. It needs libopus and its pkg-config file at build time.
package libopus

import (
	"fmt"

	"github.com/hraban/opus"
	"github.com/opd-ai/opustranscode/codec"
	"github.com/sirupsen/logrus"
)

// Backend creates libopus stream decoders and encoders.
type Backend struct{}

// New returns the libopus backend.
func New() *Backend {
	return &Backend{}
}

// Name implements codec.Backend.
func (b *Backend) Name() string {
	return "libopus"
}

// NewStreamDecoder implements codec.Backend.
func (b *Backend) NewStreamDecoder(sampleRate, channels int) (codec.StreamDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("libopus decoder: %w", err)
	}
	return &Decoder{dec: dec, sampleRate: sampleRate, channels: channels}, nil
}

// NewStreamEncoder implements codec.Backend.
func (b *Backend) NewStreamEncoder(sampleRate, channels int, app codec.Application) (codec.StreamEncoder, error) {
	e := &Encoder{sampleRate: sampleRate, channels: channels, app: app}
	if err := e.create(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "libopus.NewStreamEncoder",
		"sample_rate": sampleRate,
		"channels":    channels,
		"application": app.String(),
	}).Debug("Created libopus encoder")

	return e, nil
}

// Decoder wraps one libopus decoder.
type Decoder struct {
	dec        *opus.Decoder
	sampleRate int
	channels   int
}

// Decode implements codec.StreamDecoder.
func (d *Decoder) Decode(data []byte, pcm []float32) (int, error) {
	if d.dec == nil {
		return 0, codec.ErrClosed
	}
	n, err := d.dec.DecodeFloat32(data, pcm)
	if err != nil {
		return 0, fmt.Errorf("libopus decode: %w", err)
	}
	return n, nil
}

// Reset implements codec.StreamDecoder. The bindings expose no reset
// control, so the decoder is recreated.
func (d *Decoder) Reset() error {
	if d.dec == nil {
		return codec.ErrClosed
	}
	dec, err := opus.NewDecoder(d.sampleRate, d.channels)
	if err != nil {
		return fmt.Errorf("libopus decoder reset: %w", err)
	}
	d.dec = dec
	return nil
}

// Close implements codec.StreamDecoder.
func (d *Decoder) Close() error {
	d.dec = nil
	return nil
}

// Encoder wraps one libopus encoder.
type Encoder struct {
	enc        *opus.Encoder
	sampleRate int
	channels   int
	app        codec.Application
	bitrate    int
}

func (e *Encoder) create() error {
	enc, err := opus.NewEncoder(e.sampleRate, e.channels, application(e.app))
	if err != nil {
		return fmt.Errorf("libopus encoder: %w", err)
	}
	if e.bitrate > 0 {
		if err := enc.SetBitrate(e.bitrate); err != nil {
			return fmt.Errorf("libopus bitrate: %w", err)
		}
	}
	e.enc = enc
	return nil
}

func application(app codec.Application) opus.Application {
	switch app {
	case codec.ApplicationVoIP:
		return opus.AppVoIP
	case codec.ApplicationRestrictedLowDelay:
		return opus.AppRestrictedLowdelay
	default:
		return opus.AppAudio
	}
}

// Encode implements codec.StreamEncoder.
func (e *Encoder) Encode(pcm []float32, out []byte) (int, error) {
	if e.enc == nil {
		return 0, codec.ErrClosed
	}
	n, err := e.enc.EncodeFloat32(pcm, out)
	if err != nil {
		return 0, fmt.Errorf("libopus encode: %w", err)
	}
	return n, nil
}

// Lookahead implements codec.LookaheadReporter. libopus reports 2.5 ms
// plus 4 ms of delay compensation, or 2.5 ms alone in restricted low-delay
// mode; the bindings do not expose the query, so it is computed.
func (e *Encoder) Lookahead() (int, error) {
	if e.enc == nil {
		return 0, codec.ErrClosed
	}
	lookahead := e.sampleRate / 400
	if e.app != codec.ApplicationRestrictedLowDelay {
		lookahead += e.sampleRate / 250
	}
	return lookahead, nil
}

// SetBitrate implements codec.BitrateController.
func (e *Encoder) SetBitrate(bps int) error {
	if e.enc == nil {
		return codec.ErrClosed
	}
	if err := e.enc.SetBitrate(bps); err != nil {
		return fmt.Errorf("libopus bitrate: %w", err)
	}
	e.bitrate = bps
	return nil
}

// Reset implements codec.StreamEncoder by recreating the encoder with the
// same settings.
func (e *Encoder) Reset() error {
	if e.enc == nil {
		return codec.ErrClosed
	}
	return e.create()
}

// Close implements codec.StreamEncoder.
func (e *Encoder) Close() error {
	e.enc = nil
	return nil
}

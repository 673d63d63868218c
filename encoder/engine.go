// Package encoder turns timestamped float PCM into fixed 20 ms Opus
// packets and the stream headers a container needs to carry them.
//
// The engine compensates for encoder lookahead twice: a matching run of
// silence is encoded ahead of the first real sample, and every output
// timestamp is shifted back by the samples still held inside the engine.
// The header's pre-skip tells decoders how much to discard.
//
// Engines are not safe for concurrent use. The host serializes calls.
package encoder

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/opd-ai/opustranscode/audio"
	"github.com/opd-ai/opustranscode/codec"
	"github.com/opd-ai/opustranscode/header"
	"github.com/opd-ai/opustranscode/metrics"
	"github.com/sirupsen/logrus"
)

// FrameSize is the number of samples per channel in every packet, 20 ms
// at the 48 kHz codec rate.
const FrameSize = 960

// CodecRate is the rate the codec runs at. Other input rates are
// resampled.
const CodecRate = header.OutputSampleRate

var nextID atomic.Uint64

// Config describes the PCM the engine accepts and how to encode it.
type Config struct {
	Channels   int
	SampleRate int // input rate in Hz; 0 means 48000
	// Bitrate is the target bitrate in bits per second; 0 leaves the
	// codec default.
	Bitrate     int
	Application codec.Application
	Backend     codec.Backend
	// Vendor names the encoder in the comment header.
	Vendor string
	// FlushTail makes Drain encode the held partial frame padded with
	// silence. Without it the tail is discarded, so every packet carries
	// a full frame of source material.
	FlushTail bool
}

// Engine encodes one Opus stream.
type Engine struct {
	id      uint64
	backend codec.Backend
	cfg     Config

	header    *header.StreamHeader
	extradata []byte
	enc       *codec.MultistreamEncoder
	resampler *audio.Resampler // nil at the codec rate

	acc       *accumulator
	out       []byte
	lookahead int
	delay     int           // samples taken in but not yet emitted, plus lookahead
	next      time.Duration // timestamp of the next frame
	closed    bool
}

// Open creates an encoder for cfg and prepares its stream headers.
//
// The header is written twice: once synthesized from the channel count
// to create the codec encoder, and again with the pre-skip set to the
// lookahead the encoder then reports.
//
// Parameters:
//   - cfg: Input format and encoder settings
//
// Returns:
//   - *Engine: The ready engine
//   - error: Invalid configuration or codec setup failure
func Open(cfg Config) (*Engine, error) {
	if cfg.Backend == nil {
		return nil, ErrNoBackend
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = CodecRate
	}
	if cfg.SampleRate < 0 || cfg.Channels < 1 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidConfig, cfg.Channels, cfg.SampleRate)
	}

	h, err := header.Synthesize(cfg.Channels, cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	perm, _, err := h.Layout()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	e := &Engine{
		id:      nextID.Add(1),
		backend: cfg.Backend,
		cfg:     cfg,
	}

	e.enc, err = codec.NewMultistreamEncoder(cfg.Backend, h.Geometry(perm), CodecRate, cfg.Application)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "encoder.Open",
			"encoder":  e.id,
			"backend":  cfg.Backend.Name(),
			"channels": cfg.Channels,
			"error":    err.Error(),
		}).Error("Failed to create codec encoder")
		return nil, err
	}

	if cfg.Bitrate > 0 {
		if err := e.enc.SetBitrate(cfg.Bitrate); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "encoder.Open",
				"encoder":  e.id,
				"bitrate":  cfg.Bitrate,
				"error":    err.Error(),
			}).Warn("Bitrate not applied, using codec default")
		}
	}

	lookahead, err := e.enc.Lookahead()
	if err != nil || lookahead < 0 || lookahead > int(^uint16(0)) {
		logrus.WithFields(logrus.Fields{
			"function":  "encoder.Open",
			"encoder":   e.id,
			"lookahead": lookahead,
			"error":     fmt.Sprint(err),
		}).Error("Unable to get lookahead, encoding without padding")
		lookahead = 0
	}
	e.lookahead = lookahead
	e.header = h.WithPreSkip(uint16(lookahead))

	vendor := cfg.Vendor
	if vendor == "" {
		vendor = "opustranscode " + cfg.Backend.Name()
	}
	e.extradata, err = header.BuildExtradata(e.header, &header.Tags{Vendor: vendor})
	if err != nil {
		e.enc.Close()
		return nil, err
	}

	if cfg.SampleRate != CodecRate {
		e.resampler, err = audio.NewResampler(audio.ResamplerConfig{
			InputRate:  cfg.SampleRate,
			OutputRate: CodecRate,
			Channels:   cfg.Channels,
		})
		if err != nil {
			e.enc.Close()
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	e.acc = newAccumulator(cfg.Channels, FrameSize, lookahead)
	e.out = make([]byte, e.enc.MaxPacketBytes())
	e.delay = lookahead
	e.next = audio.NoTimestamp

	metrics.EncodersOpen.Inc()
	logrus.WithFields(logrus.Fields{
		"function":    "encoder.Open",
		"encoder":     e.id,
		"backend":     cfg.Backend.Name(),
		"channels":    cfg.Channels,
		"sample_rate": cfg.SampleRate,
		"bitrate":     cfg.Bitrate,
		"application": cfg.Application.String(),
		"streams":     e.header.Streams,
		"pre_skip":    lookahead,
	}).Info("Opus encoder opened")

	return e, nil
}

// Header returns the stream header, with pre-skip set.
func (e *Engine) Header() *header.StreamHeader {
	return e.header
}

// Extradata returns the Xiph-laced identification and comment headers.
func (e *Engine) Extradata() []byte {
	return e.extradata
}

// Lookahead returns the encoder delay in samples at 48 kHz.
func (e *Engine) Lookahead() int {
	return e.lookahead
}

// Encode consumes one PCM block and returns the frames it completes.
//
// Samples that do not fill a frame are kept for the next call. A frame
// the codec fails to encode is dropped and counted; the following frames
// keep their timestamps.
func (e *Engine) Encode(in *audio.PCMBuffer) ([]audio.CompressedFrame, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if in.Channels != e.cfg.Channels || len(in.Data) != in.Samples*in.Channels {
		return nil, fmt.Errorf("%w: %d samples of %d channels in %d values, want %d channels",
			ErrInvalidInput, in.Samples, in.Channels, len(in.Data), e.cfg.Channels)
	}

	data := in.Data
	if e.resampler != nil {
		var err error
		if data, err = e.resampler.Resample(data); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	samples := len(data) / e.cfg.Channels

	// Timestamp of the first sample still held, which the next frame
	// starts with.
	pts := e.next
	if in.HasPTS() {
		pts = in.PTS - audio.SamplesToDuration(e.delay, CodecRate)
	} else if pts == audio.NoTimestamp {
		pts = -audio.SamplesToDuration(e.delay, CodecRate)
	}
	e.delay += samples

	var frames []audio.CompressedFrame
	for e.acc.pending()+samples >= FrameSize {
		e.padStart()
		n := e.acc.fill(data)
		data = data[n*e.cfg.Channels:]
		samples -= n
		if !e.acc.full() {
			continue
		}

		frame, ok := e.encodeFrame(pts, FrameSize)
		if ok {
			frames = append(frames, frame)
		}
		e.delay -= FrameSize
		pts += audio.SamplesToDuration(FrameSize, CodecRate)
	}
	e.padStart()
	e.acc.fill(data)
	e.next = pts

	logrus.WithFields(logrus.Fields{
		"function": "encoder.Encode",
		"encoder":  e.id,
		"input":    in.Samples,
		"frames":   len(frames),
		"held":     e.acc.filled,
		"delay":    e.delay,
	}).Debug("Encoded block")

	return frames, nil
}

// encodeFrame encodes the accumulated frame and empties the accumulator.
func (e *Engine) encodeFrame(pts time.Duration, samples int) (audio.CompressedFrame, bool) {
	defer e.acc.next()

	n, err := e.enc.Encode(e.acc.frame(), FrameSize, e.out)
	if err != nil {
		metrics.EncoderFailuresTotal.WithLabelValues(e.backend.Name()).Inc()
		logrus.WithFields(logrus.Fields{
			"function": "encoder.encodeFrame",
			"encoder":  e.id,
			"pts":      pts,
			"error":    err.Error(),
		}).Warn("Frame encode failed, dropping frame")
		return audio.CompressedFrame{}, false
	}

	metrics.EncoderFramesTotal.WithLabelValues(e.backend.Name()).Inc()
	metrics.EncoderBytesTotal.WithLabelValues(e.backend.Name()).Add(float64(n))
	return audio.CompressedFrame{
		PTS:      pts,
		Duration: audio.SamplesToDuration(samples, CodecRate),
		Payload:  append([]byte(nil), e.out[:n]...),
	}, true
}

// Drain ends the stream and starts a new one. Samples that do not fill a
// frame are discarded unless Config.FlushTail is set, in which case they
// are encoded as a final frame completed with silence. That frame's
// Duration covers only the held input, so a decoder given it as the
// segment duration trims the silence. Drain returns nil when no frame is
// emitted.
func (e *Engine) Drain() ([]audio.CompressedFrame, error) {
	if e.closed {
		return nil, ErrClosed
	}
	defer e.restart()

	e.padStart()
	if e.acc.real == 0 {
		return nil, nil
	}
	if !e.cfg.FlushTail {
		logrus.WithFields(logrus.Fields{
			"function": "encoder.Drain",
			"encoder":  e.id,
			"held":     e.acc.real,
		}).Debug("Discarded partial final frame")
		return nil, nil
	}

	pts := e.next
	if pts == audio.NoTimestamp {
		pts = 0
	}
	// Head padding counts toward the duration; pre-skip removes it.
	held := e.acc.filled
	e.acc.padToFrame()
	frame, ok := e.encodeFrame(pts, held)
	if !ok {
		return nil, nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "encoder.Drain",
		"encoder":  e.id,
		"held":     held,
	}).Debug("Drained final frame")
	return []audio.CompressedFrame{frame}, nil
}

// Reset discards held input and returns the engine to the start of a new
// stream: the codec state is reset and the lookahead padding is queued
// again.
func (e *Engine) Reset() error {
	if e.closed {
		return ErrClosed
	}
	e.restart()
	return e.enc.Reset()
}

func (e *Engine) restart() {
	e.acc.reset(e.lookahead)
	e.delay = e.lookahead
	e.next = audio.NoTimestamp
	if e.resampler != nil {
		e.resampler.Reset()
	}
}

// padStart moves queued start-of-stream silence into the frame.
func (e *Engine) padStart() {
	if n := e.acc.drainPadding(); n > 0 {
		metrics.EncoderPaddingSamplesTotal.Add(float64(n))
	}
}

// Close releases the codec encoder. Further calls return ErrClosed.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	metrics.EncodersOpen.Dec()

	err := e.enc.Close()
	logrus.WithFields(logrus.Fields{
		"function": "encoder.Close",
		"encoder":  e.id,
	}).Info("Opus encoder closed")
	return err
}

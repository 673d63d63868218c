// Package decoder turns compressed Opus frames into timestamped,
// channel-ordered float PCM.
//
// An Engine owns one codec decoder for the lifetime of a stream. Its
// lifecycle is an explicit state machine: the identification header is
// accepted first, the codec decoder is built from it, and every later
// frame is decoded, trimmed, gain corrected and stamped from a sample
// clock that only the host's timestamps can rebase.
//
// Engines are not safe for concurrent use. The host serializes calls.
package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/looplab/fsm"
	"github.com/opd-ai/opustranscode/audio"
	"github.com/opd-ai/opustranscode/channels"
	"github.com/opd-ai/opustranscode/codec"
	"github.com/opd-ai/opustranscode/codec/pionopus"
	"github.com/opd-ai/opustranscode/header"
	"github.com/opd-ai/opustranscode/metrics"
	"github.com/opd-ai/opustranscode/packet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Frame size envelope at 48 kHz.
const (
	MinFrameSamples = 120
	MaxFrameSamples = codec.MaxFrameSamples
)

var nextID atomic.Uint64

// Options configures an Engine.
type Options struct {
	// Backend supplies the per-stream codec decoders. Nil selects the
	// pure Go pion backend, which decodes mono SILK packets only.
	Backend codec.Backend

	// ApplyPreSkip discards the header's pre-skip samples at the start
	// of the stream.
	ApplyPreSkip bool
}

// Engine decodes one Opus stream.
type Engine struct {
	id      uint64
	backend codec.Backend
	opts    Options
	sm      *fsm.FSM

	header   *header.StreamHeader
	tags     *header.Tags
	embedded bool // header came from extradata or the stream, not synthesized
	perm     channels.Permutation
	layout   channels.Layout

	dec        *codec.MultistreamDecoder
	manualGain *audio.GainEffect // nil when the codec applies the gain
	clock      *SampleClock
	pcm        []float32
	preSkip    int
	opened     bool
}

// Open parses the stream header from format and prepares an engine.
//
// A header embedded in format.Extra is accepted at once and the codec
// decoder is built; any failure fails Open. Without one, a header is
// synthesized from the format and the engine waits in
// StateHeaderPending, where an in-band identification header may still
// replace it.
//
// Parameters:
//   - format: Negotiated channel count, sample rate and extradata
//   - opts: Engine options
//
// Returns:
//   - *Engine: The engine, in StateHeaderPending or StateReady
//   - error: Header or codec setup failure
func Open(format audio.Format, opts Options) (*Engine, error) {
	backend := opts.Backend
	if backend == nil {
		backend = pionopus.New()
	}

	e := &Engine{
		id:      nextID.Add(1),
		backend: backend,
		opts:    opts,
		clock:   NewSampleClock(header.OutputSampleRate),
	}
	e.sm = newStateMachine(e.id)
	if err := fire(e.sm, eventOpen); err != nil {
		return nil, err
	}

	h, tags, err := header.ParseExtradata(format.Extra, format.Channels, format.SampleRate)
	source := "synthesized"
	if header.HasEmbeddedHeader(format.Extra) {
		source = "extradata"
	}
	if err != nil {
		metrics.HeadersTotal.WithLabelValues(source, "error").Inc()
		logrus.WithFields(logrus.Fields{
			"function":  "decoder.Open",
			"decoder":   e.id,
			"channels":  format.Channels,
			"extra_len": len(format.Extra),
			"error":     err.Error(),
		}).Error("Failed to read stream header")
		return nil, err
	}
	metrics.HeadersTotal.WithLabelValues(source, "ok").Inc()

	e.tags = tags
	e.embedded = source == "extradata"
	if err := e.setHeader(h); err != nil {
		return nil, err
	}
	if e.embedded {
		if err := e.start(); err != nil {
			e.Close()
			return nil, err
		}
	}

	e.opened = true
	metrics.DecodersOpen.Inc()
	logrus.WithFields(logrus.Fields{
		"function": "decoder.Open",
		"decoder":  e.id,
		"backend":  backend.Name(),
		"source":   source,
		"channels": h.Channels,
		"family":   h.MappingFamily,
		"state":    e.State().String(),
	}).Info("Opus decoder opened")

	return e, nil
}

// setHeader installs h and derives the output channel layout.
func (e *Engine) setHeader(h *header.StreamHeader) error {
	perm, layout, err := h.Layout()
	if err != nil {
		return fmt.Errorf("%w: %w", header.ErrCorruptHeader, err)
	}
	e.header = h
	e.perm = perm
	e.layout = layout
	return nil
}

// start builds the codec decoder for the accepted header and moves the
// engine to StateReady. Construction is attempted once per stream.
func (e *Engine) start() error {
	h := e.header
	dec, err := codec.NewMultistreamDecoder(e.backend, h.Geometry(e.perm), header.OutputSampleRate)
	if err != nil {
		if ferr := fire(e.sm, eventFail); ferr != nil {
			logrus.WithError(ferr).Warn("Failed to record decoder failure")
		}
		logrus.WithFields(logrus.Fields{
			"function": "decoder.start",
			"decoder":  e.id,
			"backend":  e.backend.Name(),
			"error":    err.Error(),
		}).Error("Failed to create codec decoder")
		return fmt.Errorf("%w: %w", ErrStreamFailed, err)
	}
	e.dec = dec

	if h.OutputGain != 0 {
		if dec.SupportsGain() {
			if err := dec.SetGain(int(h.OutputGain)); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "decoder.start",
					"decoder":  e.id,
					"gain":     h.OutputGain,
					"error":    err.Error(),
				}).Warn("Codec rejected output gain, scaling manually")
				e.manualGain = audio.NewHeaderGainEffect(h.OutputGain)
			}
		} else {
			e.manualGain = audio.NewHeaderGainEffect(h.OutputGain)
		}
	}

	e.pcm = make([]float32, MaxFrameSamples*h.Channels)
	if e.opts.ApplyPreSkip {
		e.preSkip = int(h.PreSkip)
	}

	if err := fire(e.sm, eventAcceptHeader); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "decoder.start",
		"decoder":     e.id,
		"channels":    h.Channels,
		"streams":     h.Streams,
		"coupled":     h.CoupledStreams,
		"layout":      e.layout.String(),
		"manual_gain": e.manualGain != nil,
		"pre_skip":    e.preSkip,
	}).Debug("Codec decoder ready")
	return nil
}

// State returns the engine's lifecycle state.
func (e *Engine) State() State {
	return stateFromString(e.sm.Current())
}

// Header returns the accepted stream header.
func (e *Engine) Header() *header.StreamHeader {
	return e.header
}

// Tags returns the stream's comment header, or nil if none was seen.
func (e *Engine) Tags() *header.Tags {
	return e.tags
}

// Layout returns the output channel layout.
func (e *Engine) Layout() channels.Layout {
	return e.layout
}

// Decode decodes one compressed frame.
//
// A nil buffer with a nil error means the frame was consumed without
// producing audio: a header packet, a frame flagged corrupted, a frame
// outside the size envelope, or a frame before the first timestamp.
// ErrCorruptFrame and ErrOverTrim drop the frame but leave the engine
// usable. ErrStreamFailed and ErrClosed are terminal.
func (e *Engine) Decode(block audio.Block) (*audio.PCMBuffer, error) {
	switch e.State() {
	case StateClosed:
		return nil, ErrClosed
	case StateFailed:
		metrics.DecoderDroppedFramesTotal.WithLabelValues(metrics.DropStreamFailed).Inc()
		return nil, ErrStreamFailed
	case StateHeaderPending:
		consumed, err := e.acceptInBand(block.Payload)
		if err != nil || consumed {
			return nil, err
		}
	case StateDraining:
		if err := fire(e.sm, eventResume); err != nil {
			return nil, err
		}
	}

	if block.Corrupted() || block.Discontinuity() {
		e.Flush()
		if block.Corrupted() {
			e.drop(metrics.DropCorrupted, block)
			return nil, nil
		}
	}

	if block.HasPTS() && (!e.clock.Defined() || block.PTS > e.clock.Now()) {
		e.clock.Set(block.PTS)
	}
	if !e.clock.Defined() {
		e.drop(metrics.DropNoClock, block)
		return nil, nil
	}

	return e.decodeFrame(block)
}

// acceptInBand handles packets that arrive before the codec decoder is
// built. It reports whether payload was a header packet.
func (e *Engine) acceptInBand(payload []byte) (bool, error) {
	switch {
	case bytes.HasPrefix(payload, []byte(header.Magic)):
		h, err := header.Parse(payload)
		if err != nil {
			metrics.HeadersTotal.WithLabelValues("inband", "error").Inc()
			if ferr := fire(e.sm, eventFail); ferr != nil {
				logrus.WithError(ferr).Warn("Failed to record decoder failure")
			}
			return true, fmt.Errorf("%w: %w", ErrStreamFailed, err)
		}
		metrics.HeadersTotal.WithLabelValues("inband", "ok").Inc()
		if err := e.setHeader(h); err != nil {
			_ = fire(e.sm, eventFail)
			return true, fmt.Errorf("%w: %w", ErrStreamFailed, err)
		}
		e.embedded = true
		logrus.WithFields(logrus.Fields{
			"function": "decoder.acceptInBand",
			"decoder":  e.id,
			"channels": h.Channels,
			"family":   h.MappingFamily,
		}).Debug("Accepted in-band stream header")
		return true, nil

	case bytes.HasPrefix(payload, []byte(header.TagsMagic)):
		tags, err := header.ParseTags(payload)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "decoder.acceptInBand",
				"decoder":  e.id,
				"error":    err.Error(),
			}).Warn("Ignoring malformed comment header")
			return true, nil
		}
		e.tags = tags
		return true, nil
	}

	return false, e.start()
}

// decodeFrame runs the codec and shapes its output for a frame that has
// passed the flag and clock checks.
func (e *Engine) decodeFrame(block audio.Block) (*audio.PCMBuffer, error) {
	if len(block.Payload) == 0 {
		e.drop(metrics.DropEmpty, block)
		return nil, nil
	}

	estimated, err := packet.SampleCount(block.Payload, header.OutputSampleRate)
	if err != nil || estimated < MinFrameSamples || estimated > MaxFrameSamples {
		e.drop(metrics.DropEnvelope, block)
		return nil, nil
	}

	timer := prometheus.NewTimer(metrics.DecodeDuration)
	decoded, err := e.dec.Decode(block.Payload, e.pcm)
	timer.ObserveDuration()
	if err != nil {
		e.drop(metrics.DropDecodeError, block)
		logrus.WithFields(logrus.Fields{
			"function": "decoder.Decode",
			"decoder":  e.id,
			"bytes":    len(block.Payload),
			"error":    err.Error(),
		}).Warn("Corrupted stream, dropping frame")
		return nil, fmt.Errorf("%w: %w", ErrCorruptFrame, err)
	}

	// The container's count wins over the estimate, bounded by what the
	// codec produced.
	count := estimated
	if block.SampleCount > 0 {
		count = block.SampleCount
	}
	if count > decoded {
		count = decoded
	}

	// End trim is measured against the declared count, not the decoded
	// length, so a declared 500 with a 100-sample duration keeps 100
	// samples instead of failing as an over-trim.
	trim := 0
	if block.SegmentDuration > 0 && block.SegmentDuration < audio.SamplesToDuration(count, header.OutputSampleRate) {
		keep := audio.DurationToSamples(block.SegmentDuration, header.OutputSampleRate)
		trim = count - min(max(keep, 0), count)
	}
	if trim >= count {
		e.drop(metrics.DropOverTrim, block)
		return nil, fmt.Errorf("%w: trim %d of %d samples", ErrOverTrim, trim, count)
	}

	// Codec latency: keep the tail of what was decoded.
	offset := decoded - count
	count -= trim
	metrics.DecoderTrimmedSamplesTotal.Add(float64(trim))

	if e.preSkip > 0 {
		skip := min(e.preSkip, count)
		e.preSkip -= skip
		offset += skip
		count -= skip
		metrics.DecoderTrimmedSamplesTotal.Add(float64(skip))
		if count == 0 {
			logrus.WithFields(logrus.Fields{
				"function":  "decoder.Decode",
				"decoder":   e.id,
				"remaining": e.preSkip,
			}).Debug("Frame consumed by pre-skip")
			return nil, nil
		}
	}

	ch := e.header.Channels
	out := audio.NewPCMBuffer(ch, count)
	copy(out.Data, e.pcm[offset*ch:(offset+count)*ch])

	if e.manualGain != nil {
		if err := e.manualGain.Process(out.Data); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptFrame, err)
		}
	}

	out.PTS = e.clock.Now()
	out.Duration = e.clock.Advance(count) - out.PTS

	metrics.DecoderFramesTotal.WithLabelValues(e.backend.Name()).Inc()
	metrics.DecoderSamplesTotal.WithLabelValues(e.backend.Name()).Add(float64(count))
	logrus.WithFields(logrus.Fields{
		"function": "decoder.Decode",
		"decoder":  e.id,
		"samples":  count,
		"decoded":  decoded,
		"trim":     trim,
		"pts":      out.PTS,
	}).Debug("Decoded frame")

	return out, nil
}

func (e *Engine) drop(reason string, block audio.Block) {
	metrics.DecoderDroppedFramesTotal.WithLabelValues(reason).Inc()
	logrus.WithFields(logrus.Fields{
		"function": "decoder.Decode",
		"decoder":  e.id,
		"reason":   reason,
		"bytes":    len(block.Payload),
	}).Debug("Dropped frame")
}

// Flush forgets the sample clock so the next timestamped frame sets a new
// baseline. Codec state is kept. A draining engine becomes ready again.
// Before the header is accepted there is no codec to be ready, so the
// engine stays in StateHeaderPending and only the clock is cleared.
func (e *Engine) Flush() {
	e.clock.Reset()
	metrics.DecoderFlushesTotal.Inc()
	if s := e.State(); s == StateReady || s == StateDraining {
		if err := fire(e.sm, eventFlush); err != nil {
			logrus.WithError(err).Warn("Flush transition failed")
		}
	}
	logrus.WithFields(logrus.Fields{
		"function": "decoder.Flush",
		"decoder":  e.id,
	}).Debug("Decoder flushed")
}

// Drain marks the end of the input. The codec holds no delayed output, so
// nothing is returned; a later Decode resumes the stream.
func (e *Engine) Drain() error {
	switch e.State() {
	case StateClosed:
		return ErrClosed
	case StateReady:
		return fire(e.sm, eventDrain)
	}
	return nil
}

// Close releases the codec decoder. Further calls return ErrClosed.
func (e *Engine) Close() error {
	if e.State() == StateClosed {
		return nil
	}
	var err error
	if e.dec != nil {
		err = e.dec.Close()
		e.dec = nil
	}
	if ferr := fire(e.sm, eventClose); ferr != nil {
		err = errors.Join(err, ferr)
	}
	if e.opened {
		metrics.DecodersOpen.Dec()
	}

	logrus.WithFields(logrus.Fields{
		"function": "decoder.Close",
		"decoder":  e.id,
	}).Info("Opus decoder closed")
	return err
}

package decoder

import (
	"testing"
	"time"

	"github.com/opd-ai/opustranscode/audio"
	"github.com/opd-ai/opustranscode/channels"
	"github.com/opd-ai/opustranscode/codec/codectest"
	"github.com/opd-ai/opustranscode/header"
	"github.com/opd-ai/opustranscode/metrics"
	"github.com/opd-ai/opustranscode/packet"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameDuration = 20 * time.Millisecond

func headerBytes(t *testing.T, h *header.StreamHeader) []byte {
	t.Helper()
	b, err := h.MarshalBinary()
	require.NoError(t, err)
	return b
}

func stereoHeader(t *testing.T) *header.StreamHeader {
	t.Helper()
	h, err := header.Synthesize(2, 48000)
	require.NoError(t, err)
	return h
}

// openWithHeader opens an engine whose header is embedded in the format.
func openWithHeader(t *testing.T, h *header.StreamHeader, b *codectest.Backend, opts Options) *Engine {
	t.Helper()
	opts.Backend = b
	e, err := Open(audio.Format{Channels: h.Channels, SampleRate: 48000, Extra: headerBytes(t, h)}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func block(payload []byte, pts time.Duration) audio.Block {
	return audio.Block{Payload: payload, PTS: pts}
}

func stereoFrame(left, right codectest.Ramp) []byte {
	return codectest.MustPacket(960, 1, left, right)
}

func TestOpenWithEmbeddedHeaderIsReady(t *testing.T) {
	b := codectest.NewBackend(0)
	e := openWithHeader(t, stereoHeader(t), b, Options{})

	assert.Equal(t, StateReady, e.State())
	assert.Len(t, b.Decoders(), 1)
	assert.Equal(t, 2, e.Header().Channels)
	assert.Equal(t, channels.LayoutPositional, e.Layout().Kind)
}

func TestOpenSynthesizedHeaderWaitsForFirstFrame(t *testing.T) {
	b := codectest.NewBackend(0)
	e, err := Open(audio.Format{Channels: 2, SampleRate: 44100}, Options{Backend: b})
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, StateHeaderPending, e.State())
	assert.Empty(t, b.Decoders())
	assert.Equal(t, uint32(44100), e.Header().InputSampleRate)

	out, err := e.Decode(block(stereoFrame(codectest.Constant(0.25), codectest.Constant(-0.5)), 0))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, StateReady, e.State())
	assert.Len(t, b.Decoders(), 1)
	assert.Equal(t, 960, out.Samples)
}

func TestOpenErrors(t *testing.T) {
	t.Run("corrupt header", func(t *testing.T) {
		raw := headerBytes(t, stereoHeader(t))
		raw[8] = 0 // version
		_, err := Open(audio.Format{Channels: 2, Extra: raw}, Options{Backend: codectest.NewBackend(0)})
		assert.ErrorIs(t, err, header.ErrCorruptHeader)
	})

	t.Run("unsupported channel count", func(t *testing.T) {
		_, err := Open(audio.Format{Channels: 9, SampleRate: 48000}, Options{Backend: codectest.NewBackend(0)})
		assert.ErrorIs(t, err, header.ErrUnsupportedChannelCount)
	})

	t.Run("codec construction", func(t *testing.T) {
		b := codectest.NewBackend(0)
		b.FailDecoderCreate = true
		_, err := Open(audio.Format{Channels: 2, Extra: headerBytes(t, stereoHeader(t))}, Options{Backend: b})
		assert.ErrorIs(t, err, ErrStreamFailed)
	})
}

func TestDeferredConstructionFailureIsTerminal(t *testing.T) {
	b := codectest.NewBackend(0)
	b.FailDecoderCreate = true
	e, err := Open(audio.Format{Channels: 2, SampleRate: 48000}, Options{Backend: b})
	require.NoError(t, err)
	defer e.Close()

	frame := stereoFrame(codectest.Constant(0), codectest.Constant(0))
	_, err = e.Decode(block(frame, 0))
	assert.ErrorIs(t, err, ErrStreamFailed)
	assert.Equal(t, StateFailed, e.State())

	b.FailDecoderCreate = false
	_, err = e.Decode(block(frame, 0))
	assert.ErrorIs(t, err, ErrStreamFailed)
	assert.Empty(t, b.Decoders())
}

func TestInBandHeaders(t *testing.T) {
	b := codectest.NewBackend(0)
	e, err := Open(audio.Format{Channels: 2, SampleRate: 48000}, Options{Backend: b})
	require.NoError(t, err)
	defer e.Close()

	mono, err := header.Synthesize(1, 48000)
	require.NoError(t, err)
	out, err := e.Decode(block(headerBytes(t, mono), audio.NoTimestamp))
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 1, e.Header().Channels)
	assert.Equal(t, StateHeaderPending, e.State())

	tags := &header.Tags{Vendor: "test"}
	tags.Add("TITLE", "tone")
	raw, err := tags.MarshalBinary()
	require.NoError(t, err)
	out, err = e.Decode(block(raw, audio.NoTimestamp))
	require.NoError(t, err)
	assert.Nil(t, out)
	require.NotNil(t, e.Tags())
	title, ok := e.Tags().Get("title")
	assert.True(t, ok)
	assert.Equal(t, "tone", title)

	out, err = e.Decode(block(codectest.MustPacket(960, 1, codectest.Constant(0.5)), 0))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 1, out.Channels)
	assert.Equal(t, 0.5, float64(out.Data[0]))
}

func TestCorruptInBandHeaderFailsStream(t *testing.T) {
	e, err := Open(audio.Format{Channels: 2, SampleRate: 48000}, Options{Backend: codectest.NewBackend(0)})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Decode(block([]byte("OpusHead\x01"), 0))
	assert.ErrorIs(t, err, ErrStreamFailed)
	assert.ErrorIs(t, err, header.ErrCorruptHeader)
	assert.Equal(t, StateFailed, e.State())
}

func TestStereoOrderPreserved(t *testing.T) {
	e := openWithHeader(t, stereoHeader(t), codectest.NewBackend(0), Options{})

	out, err := e.Decode(block(stereoFrame(codectest.Constant(0.25), codectest.Constant(-0.5)), 0))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 2, out.Channels)
	for _, v := range out.Channel(0) {
		assert.Equal(t, float32(0.25), v)
	}
	for _, v := range out.Channel(1) {
		assert.Equal(t, float32(-0.5), v)
	}
}

func TestSixChannelOutputIsCanonical(t *testing.T) {
	h, err := header.Synthesize(6, 48000)
	require.NoError(t, err)
	require.Equal(t, 1, h.MappingFamily)
	e := openWithHeader(t, h, codectest.NewBackend(0), Options{})

	// Decoded channel k carries k/10; declared channel j carries the
	// decoded channel its map entry names.
	frame := codectest.Multistream(
		codectest.MustPacket(960, 1, codectest.Constant(0.0), codectest.Constant(0.1)),
		codectest.MustPacket(960, 1, codectest.Constant(0.2), codectest.Constant(0.3)),
		codectest.MustPacket(960, 1, codectest.Constant(0.4)),
		codectest.MustPacket(960, 1, codectest.Constant(0.5)),
	)
	declared := make([]float32, h.Channels)
	for j, idx := range h.StreamMap {
		declared[j] = float32(idx) / 10
	}

	out, err := e.Decode(block(frame, 0))
	require.NoError(t, err)
	require.NotNil(t, out)

	perm, _, err := h.Layout()
	require.NoError(t, err)
	inv := perm.Inverse()
	for i := 0; i < h.Channels; i++ {
		assert.InDelta(t, declared[inv[i]], out.Channel(i)[0], 1e-7, "output channel %d", i)
	}
	// FL FR RL RR FC LFE
	assert.InDeltaSlice(t, []float32{0.0, 0.1, 0.2, 0.3, 0.4, 0.5}, out.Data[:6], 1e-7)
}

func TestAmbisonicOutputFollowsStreamMap(t *testing.T) {
	h := &header.StreamHeader{
		Version:        1,
		Channels:       4,
		MappingFamily:  2,
		Streams:        2,
		CoupledStreams: 2,
		StreamMap:      []byte{3, 2, 1, 0},
	}
	e := openWithHeader(t, h, codectest.NewBackend(0), Options{})
	assert.Equal(t, channels.LayoutAmbisonic, e.Layout().Kind)

	frame := codectest.Multistream(
		codectest.MustPacket(960, 1, codectest.Constant(0.0), codectest.Constant(0.1)),
		codectest.MustPacket(960, 1, codectest.Constant(0.2), codectest.Constant(0.3)),
	)
	out, err := e.Decode(block(frame, 0))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.3, 0.2, 0.1, 0.0}, out.Data[:4], 1e-7)
}

func TestClockIsMonotonicBetweenFlushes(t *testing.T) {
	e := openWithHeader(t, stereoHeader(t), codectest.NewBackend(0), Options{})
	frame := stereoFrame(codectest.Constant(0), codectest.Constant(0))

	pts := []time.Duration{
		time.Second,
		audio.NoTimestamp,
		time.Second, // stale, ignored
		audio.NoTimestamp,
		2 * time.Second, // forward jump rebases
		audio.NoTimestamp,
	}
	want := []time.Duration{
		time.Second,
		time.Second + frameDuration,
		time.Second + 2*frameDuration,
		time.Second + 3*frameDuration,
		2 * time.Second,
		2*time.Second + frameDuration,
	}

	last := time.Duration(0)
	for i, p := range pts {
		out, err := e.Decode(block(frame, p))
		require.NoError(t, err)
		require.NotNil(t, out)
		assert.Equal(t, want[i], out.PTS, "frame %d", i)
		assert.Equal(t, frameDuration, out.Duration)
		assert.GreaterOrEqual(t, out.PTS, last)
		last = out.PTS + out.Duration
	}
}

func TestFlushRebasesOnNextTimestamp(t *testing.T) {
	e := openWithHeader(t, stereoHeader(t), codectest.NewBackend(0), Options{})
	frame := stereoFrame(codectest.Constant(0), codectest.Constant(0))

	_, err := e.Decode(block(frame, 10*time.Second))
	require.NoError(t, err)

	e.Flush()
	assert.Equal(t, StateReady, e.State())

	out, err := e.Decode(block(frame, audio.NoTimestamp))
	require.NoError(t, err)
	assert.Nil(t, out, "no clock until a timestamp arrives")

	out, err = e.Decode(block(frame, time.Second))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, time.Second, out.PTS)
}

func TestFlushBeforeHeaderOnlyClearsClock(t *testing.T) {
	b := codectest.NewBackend(0)
	e, err := Open(audio.Format{Channels: 2, SampleRate: 48000}, Options{Backend: b})
	require.NoError(t, err)
	defer e.Close()

	flushes := testutil.ToFloat64(metrics.DecoderFlushesTotal)
	e.Flush()
	assert.Equal(t, StateHeaderPending, e.State())
	assert.False(t, e.clock.Defined())
	assert.Equal(t, flushes+1, testutil.ToFloat64(metrics.DecoderFlushesTotal))
	assert.Empty(t, b.Decoders())

	out, err := e.Decode(block(stereoFrame(codectest.Constant(0), codectest.Constant(0)), 5*time.Second))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, StateReady, e.State())
	assert.Equal(t, 5*time.Second, out.PTS)
}

func TestFramesBeforeFirstTimestampAreDropped(t *testing.T) {
	b := codectest.NewBackend(0)
	e := openWithHeader(t, stereoHeader(t), b, Options{})
	frame := stereoFrame(codectest.Constant(0), codectest.Constant(0))

	dropped := testutil.ToFloat64(metrics.DecoderDroppedFramesTotal.WithLabelValues(metrics.DropNoClock))
	out, err := e.Decode(block(frame, audio.NoTimestamp))
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, dropped+1, testutil.ToFloat64(metrics.DecoderDroppedFramesTotal.WithLabelValues(metrics.DropNoClock)))
	assert.Zero(t, b.Decoders()[0].Decoded)
}

func TestFrameSizeEnvelope(t *testing.T) {
	e := openWithHeader(t, stereoHeader(t), codectest.NewBackend(0), Options{})
	ramp := codectest.Constant(0)

	_, err := e.Decode(block(codectest.MustPacket(960, 1, ramp, ramp), 0))
	require.NoError(t, err)
	next := frameDuration

	tests := []struct {
		name    string
		payload []byte
		samples int
	}{
		{"smallest", codectest.MustPacket(120, 1, ramp, ramp), 120},
		{"too long", codectest.MustPacket(960, 7, ramp, ramp), 0},
		{"largest", codectest.MustPacket(960, 6, ramp, ramp), 5760},
		{"unparseable", []byte{0x03}, 0},
		{"empty", []byte{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.Decode(block(tt.payload, audio.NoTimestamp))
			require.NoError(t, err)
			if tt.samples == 0 {
				assert.Nil(t, out)
				return
			}
			require.NotNil(t, out)
			assert.Equal(t, tt.samples, out.Samples)
			assert.Equal(t, next, out.PTS, "skipped frames must not advance the clock")
			next += out.Duration
		})
	}
}

func TestCorruptFrameIsRecoverable(t *testing.T) {
	e := openWithHeader(t, stereoHeader(t), codectest.NewBackend(0), Options{})

	bad, err := packet.Build(packet.MakeTOC(31, true, 0), [][]byte{{1, 2, 3}}, false)
	require.NoError(t, err)
	out, err := e.Decode(block(bad, 0))
	assert.ErrorIs(t, err, ErrCorruptFrame)
	assert.ErrorIs(t, err, codectest.ErrCorruptPayload)
	assert.Nil(t, out)
	assert.Equal(t, StateReady, e.State())

	out, err = e.Decode(block(stereoFrame(codectest.Constant(0), codectest.Constant(0)), audio.NoTimestamp))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, time.Duration(0), out.PTS, "failed frame must not advance the clock")
}

func TestEndTrim(t *testing.T) {
	hundred := audio.SamplesToDuration(100, 48000)
	ramp := codectest.Ramp{Start: 0, Step: 1}

	tests := []struct {
		name     string
		declared int
		segment  time.Duration
		samples  int
		first    float32
	}{
		{"no hints", 0, 0, 960, 0},
		{"duration hint trims trailing samples", 0, hundred, 100, 0},
		{"declared count keeps the tail", 100, 0, 100, 860},
		{"declared count and matching duration", 100, hundred, 100, 860},
		{"declared count and shorter duration", 500, hundred, 100, 460},
		{"hint longer than frame", 0, time.Second, 960, 0},
		{"declared count above decoded", 2000, 0, 960, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := openWithHeader(t, stereoHeader(t), codectest.NewBackend(0), Options{})
			out, err := e.Decode(audio.Block{
				Payload:         stereoFrame(ramp, ramp),
				PTS:             0,
				SampleCount:     tt.declared,
				SegmentDuration: tt.segment,
			})
			require.NoError(t, err)
			require.NotNil(t, out)
			assert.Equal(t, tt.samples, out.Samples)
			assert.Len(t, out.Data, tt.samples*2)
			assert.Equal(t, tt.first, out.Data[0])
			assert.Equal(t, tt.first+float32(tt.samples-1), out.Data[len(out.Data)-1])
			assert.Equal(t, audio.SamplesToDuration(tt.samples, 48000), out.Duration)
		})
	}
}

func TestOverTrimDropsFrame(t *testing.T) {
	e := openWithHeader(t, stereoHeader(t), codectest.NewBackend(0), Options{})
	frame := stereoFrame(codectest.Constant(0), codectest.Constant(0))

	out, err := e.Decode(audio.Block{Payload: frame, PTS: 0, SegmentDuration: time.Nanosecond})
	assert.ErrorIs(t, err, ErrOverTrim)
	assert.Nil(t, out)

	out, err = e.Decode(block(frame, audio.NoTimestamp))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, time.Duration(0), out.PTS)
}

func TestBlockFlags(t *testing.T) {
	b := codectest.NewBackend(0)
	e := openWithHeader(t, stereoHeader(t), b, Options{})
	frame := stereoFrame(codectest.Constant(0), codectest.Constant(0))

	_, err := e.Decode(block(frame, time.Second))
	require.NoError(t, err)

	out, err := e.Decode(audio.Block{Payload: frame, PTS: 5 * time.Second, Flags: audio.FlagCorrupted})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 1, b.Decoders()[0].Decoded, "corrupted frames are not decoded")

	out, err = e.Decode(block(frame, audio.NoTimestamp))
	require.NoError(t, err)
	assert.Nil(t, out, "corruption flushes the clock")

	_, err = e.Decode(block(frame, 3*time.Second))
	require.NoError(t, err)
	out, err = e.Decode(audio.Block{Payload: frame, PTS: time.Second, Flags: audio.FlagDiscontinuity})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, time.Second, out.PTS, "discontinuity rebases even backwards")
}

func TestOutputGain(t *testing.T) {
	h := stereoHeader(t).WithOutputGain(5120) // +20 dB
	frame := stereoFrame(codectest.Constant(0.05), codectest.Constant(-0.025))

	t.Run("manual scaling", func(t *testing.T) {
		b := codectest.NewBackend(0)
		e := openWithHeader(t, h, b, Options{})
		out, err := e.Decode(block(frame, 0))
		require.NoError(t, err)
		assert.InDelta(t, 0.5, out.Data[0], 1e-6)
		assert.InDelta(t, -0.25, out.Data[1], 1e-6)
		assert.Zero(t, b.Decoders()[0].GainQ78)
	})

	t.Run("codec gain control", func(t *testing.T) {
		b := codectest.NewBackend(0)
		b.GainControl = true
		e := openWithHeader(t, h, b, Options{})
		out, err := e.Decode(block(frame, 0))
		require.NoError(t, err)
		assert.InDelta(t, 0.5, out.Data[0], 1e-6)
		assert.InDelta(t, -0.25, out.Data[1], 1e-6)
		assert.Equal(t, 5120, b.Decoders()[0].GainQ78)
	})
}

func TestPreSkip(t *testing.T) {
	h := stereoHeader(t).WithPreSkip(1000)
	ramp := func(start float32) codectest.Ramp { return codectest.Ramp{Start: start, Step: 1} }

	e := openWithHeader(t, h, codectest.NewBackend(0), Options{ApplyPreSkip: true})
	out, err := e.Decode(block(stereoFrame(ramp(0), ramp(0)), 0))
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = e.Decode(block(stereoFrame(ramp(960), ramp(960)), audio.NoTimestamp))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 920, out.Samples)
	assert.Equal(t, float32(1000), out.Data[0])
	assert.Equal(t, time.Duration(0), out.PTS)

	e2 := openWithHeader(t, h, codectest.NewBackend(0), Options{})
	out, err = e2.Decode(block(stereoFrame(ramp(0), ramp(0)), 0))
	require.NoError(t, err)
	assert.Equal(t, 960, out.Samples)
}

func TestDrainAndResume(t *testing.T) {
	e := openWithHeader(t, stereoHeader(t), codectest.NewBackend(0), Options{})
	frame := stereoFrame(codectest.Constant(0), codectest.Constant(0))

	require.NoError(t, e.Drain())
	assert.Equal(t, StateDraining, e.State())

	out, err := e.Decode(block(frame, 0))
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Equal(t, StateReady, e.State())

	require.NoError(t, e.Drain())
	e.Flush()
	assert.Equal(t, StateReady, e.State())
}

func TestCloseReleasesOnce(t *testing.T) {
	b := codectest.NewBackend(0)
	h, err := header.Synthesize(6, 48000)
	require.NoError(t, err)
	e, err := Open(audio.Format{Channels: 6, Extra: headerBytes(t, h)}, Options{Backend: b})
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Equal(t, StateClosed, e.State())
	for _, d := range b.Decoders() {
		assert.Equal(t, 1, d.Closes)
	}

	_, err = e.Decode(block(nil, 0))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, e.Drain(), ErrClosed)
}

func TestOpenGauge(t *testing.T) {
	before := testutil.ToFloat64(metrics.DecodersOpen)
	e, err := Open(audio.Format{Channels: 2, SampleRate: 48000}, Options{Backend: codectest.NewBackend(0)})
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.DecodersOpen))
	require.NoError(t, e.Close())
	assert.Equal(t, before, testutil.ToFloat64(metrics.DecodersOpen))
}

func TestStateString(t *testing.T) {
	for s := StateUninitialized; s <= StateClosed; s++ {
		assert.Equal(t, s, stateFromString(s.String()))
	}
	assert.Equal(t, "State(42)", State(42).String())
}

func BenchmarkDecodeStereo(b *testing.B) {
	h, err := header.Synthesize(2, 48000)
	if err != nil {
		b.Fatal(err)
	}
	extra, err := h.MarshalBinary()
	if err != nil {
		b.Fatal(err)
	}
	e, err := Open(audio.Format{Channels: 2, Extra: extra}, Options{Backend: codectest.NewBackend(0)})
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()
	frame := codectest.MustPacket(960, 1, codectest.Constant(0.1), codectest.Constant(0.2))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Decode(audio.Block{Payload: frame, PTS: audio.SamplesToDuration(960*i, 48000)}); err != nil {
			b.Fatal(err)
		}
	}
}

package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleDurationConversion(t *testing.T) {
	tests := []struct {
		samples  int
		rate     int
		duration time.Duration
	}{
		{960, 48000, 20 * time.Millisecond},
		{312, 48000, 6500 * time.Microsecond},
		{48000 * 3600 * 60, 48000, 60 * time.Hour},
		{1, 44100, 22675 * time.Nanosecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.duration, SamplesToDuration(tt.samples, tt.rate))
	}

	assert.Equal(t, 960, DurationToSamples(20*time.Millisecond, 48000))
	assert.Equal(t, 48000*3600*60, DurationToSamples(60*time.Hour, 48000))
	assert.Zero(t, DurationToSamples(time.Second, 0))
	assert.Zero(t, SamplesToDuration(10, 0))
}

func TestDurationToSamplesInvertsSamplesToDuration(t *testing.T) {
	for _, rate := range []int{8000, 44100, 48000} {
		for _, n := range []int{1, 99, 100, 101, 312, 959, 960, 5760, 48000*7 + 13} {
			d := SamplesToDuration(n, rate)
			assert.Equal(t, n, DurationToSamples(d, rate), "%d samples at %d Hz", n, rate)
			assert.Equal(t, -n, DurationToSamples(-d, rate), "-%d samples at %d Hz", n, rate)
		}
	}
	assert.Equal(t, 100, DurationToSamples(2083333*time.Nanosecond, 48000))
}

func TestBlockFlags(t *testing.T) {
	b := Block{PTS: NoTimestamp, Flags: FlagCorrupted}
	assert.False(t, b.HasPTS())
	assert.True(t, b.Corrupted())
	assert.False(t, b.Discontinuity())

	b = Block{PTS: 0, Flags: FlagDiscontinuity}
	assert.True(t, b.HasPTS())
	assert.False(t, b.Corrupted())
	assert.True(t, b.Discontinuity())
}

func TestPCMBufferHasPTS(t *testing.T) {
	buf := NewPCMBuffer(1, 1)
	assert.False(t, buf.HasPTS())
	buf.PTS = 0
	assert.True(t, buf.HasPTS())
}

func TestPCMBufferChannel(t *testing.T) {
	buf := NewPCMBuffer(2, 3)
	copy(buf.Data, []float32{1, -1, 2, -2, 3, -3})
	assert.Equal(t, []float32{1, 2, 3}, buf.Channel(0))
	assert.Equal(t, []float32{-1, -2, -3}, buf.Channel(1))
	assert.Equal(t, NoTimestamp, buf.PTS)
}

func TestGainFromQ78(t *testing.T) {
	tests := []struct {
		q        int16
		expected float64
	}{
		{0, 1},
		{5120, 10},
		{-5120, 0.1},
		{256, 1.1220184543},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.expected, GainFromQ78(tt.q), 1e-9)
	}
}

func TestGainEffect(t *testing.T) {
	g, err := NewGainEffect(2)
	require.NoError(t, err)
	assert.False(t, g.IsUnity())

	samples := []float32{0.25, -0.5, 0.75}
	require.NoError(t, g.Process(samples))
	assert.Equal(t, []float32{0.5, -1, 1.5}, samples)
	assert.Contains(t, g.Name(), "Gain")

	_, err = NewGainEffect(-1)
	assert.Error(t, err)

	unity := NewHeaderGainEffect(0)
	assert.True(t, unity.IsUnity())
	samples = []float32{0.1}
	require.NoError(t, unity.Process(samples))
	assert.Equal(t, []float32{0.1}, samples)
}

func TestResamplerUpsampleAcrossCalls(t *testing.T) {
	r, err := NewResampler(ResamplerConfig{InputRate: 24000, OutputRate: 48000, Channels: 1})
	require.NoError(t, err)

	out, err := r.Resample([]float32{0, 1, 2, 3})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 0.5, 1, 1.5, 2, 2.5, 3}, out, 1e-6)

	out, err = r.Resample([]float32{4, 5})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{3.5, 4, 4.5, 5}, out, 1e-6)

	r.Reset()
	out, err = r.Resample([]float32{2, 2})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{2, 2, 2}, out, 1e-6)
}

func TestResamplerStereoDownsample(t *testing.T) {
	r, err := NewResampler(ResamplerConfig{InputRate: 96000, OutputRate: 48000, Channels: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Channels())

	in := []float32{0, 10, 1, 11, 2, 12, 3, 13}
	out, err := r.Resample(in)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 10, 2, 12}, out, 1e-6)
}

func TestResamplerSameRateAndErrors(t *testing.T) {
	r, err := NewResampler(ResamplerConfig{InputRate: 48000, OutputRate: 48000, Channels: 2})
	require.NoError(t, err)

	in := []float32{1, 2, 3, 4}
	out, err := r.Resample(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	out[0] = 9
	assert.Equal(t, float32(1), in[0])

	_, err = r.Resample([]float32{1, 2, 3})
	assert.Error(t, err)

	_, err = NewResampler(ResamplerConfig{InputRate: 0, OutputRate: 48000, Channels: 1})
	assert.Error(t, err)
	_, err = NewResampler(ResamplerConfig{InputRate: 44100, OutputRate: 48000, Channels: 0})
	assert.Error(t, err)
}

func TestResamplerCalculateOutputSize(t *testing.T) {
	r, err := NewResampler(ResamplerConfig{InputRate: 44100, OutputRate: 48000, Channels: 2})
	require.NoError(t, err)
	assert.Equal(t, 96000, r.CalculateOutputSize(88200))
	assert.Equal(t, 44100, r.InputRate())
	assert.Equal(t, 48000, r.OutputRate())
}

func BenchmarkResampler(b *testing.B) {
	r, err := NewResampler(ResamplerConfig{InputRate: 44100, OutputRate: 48000, Channels: 2})
	if err != nil {
		b.Fatal(err)
	}
	in := make([]float32, 882*2)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Resample(in); err != nil {
			b.Fatal(err)
		}
	}
}

// Package audio defines the sample and frame types exchanged with the host
// and the sample-level processing applied between codec and host: output
// gain and sample rate conversion.
//
// # Timestamps
//
// All timestamps and durations are time.Duration values on the host's
// media clock. NoTimestamp marks a block that carries no timestamp.
//
// # Sample layout
//
// PCM is interleaved float32 with nominal full scale of [-1, 1]:
//
//	buf := audio.NewPCMBuffer(2, 960)
//	buf.Data[i*buf.Channels+c] // sample i of channel c
package audio

import (
	"math"
	"time"
)

// NoTimestamp marks a missing timestamp.
const NoTimestamp time.Duration = math.MinInt64

// Format describes a compressed input stream as negotiated by the host.
type Format struct {
	Channels   int
	SampleRate int
	// Extra is the codec extradata, if any.
	Extra []byte
}

// Flags describe the state of a compressed block.
type Flags uint8

const (
	// FlagCorrupted marks a block whose payload is known to be damaged.
	FlagCorrupted Flags = 1 << iota
	// FlagDiscontinuity marks a block that does not follow the previous one.
	FlagDiscontinuity
)

// Block is one compressed frame handed to a decoder.
type Block struct {
	Payload []byte
	PTS     time.Duration
	Flags   Flags
	// SampleCount is the container's authoritative sample count for this
	// frame, or 0 when unknown.
	SampleCount int
	// SegmentDuration is the duration the container declares for this
	// frame, or 0 when none. A value shorter than the decoded frame trims
	// trailing samples.
	SegmentDuration time.Duration
}

// HasPTS reports whether the block carries a timestamp.
func (b Block) HasPTS() bool {
	return b.PTS != NoTimestamp
}

// Corrupted reports whether FlagCorrupted is set.
func (b Block) Corrupted() bool {
	return b.Flags&FlagCorrupted != 0
}

// Discontinuity reports whether FlagDiscontinuity is set.
func (b Block) Discontinuity() bool {
	return b.Flags&FlagDiscontinuity != 0
}

// PCMBuffer is interleaved float32 audio with its timing.
type PCMBuffer struct {
	PTS      time.Duration
	Duration time.Duration
	Samples  int // per channel
	Channels int
	Data     []float32
}

// NewPCMBuffer allocates a buffer for samples samples of channels channels.
func NewPCMBuffer(channels, samples int) *PCMBuffer {
	return &PCMBuffer{
		PTS:      NoTimestamp,
		Samples:  samples,
		Channels: channels,
		Data:     make([]float32, samples*channels),
	}
}

// HasPTS reports whether the buffer carries a timestamp.
func (p *PCMBuffer) HasPTS() bool {
	return p.PTS != NoTimestamp
}

// Channel returns a copy of one channel's samples.
func (p *PCMBuffer) Channel(c int) []float32 {
	out := make([]float32, p.Samples)
	for i := range out {
		out[i] = p.Data[i*p.Channels+c]
	}
	return out
}

// CompressedFrame is one encoded packet with its timing.
type CompressedFrame struct {
	PTS      time.Duration
	Duration time.Duration
	Payload  []byte
}

// SamplesToDuration converts a sample count at rate to a duration,
// truncating toward zero.
func SamplesToDuration(samples, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	secs := int64(samples) / int64(rate)
	rem := int64(samples) % int64(rate)
	return time.Duration(secs)*time.Second + time.Duration(rem*int64(time.Second)/int64(rate))
}

// DurationToSamples converts a duration to a sample count at rate,
// rounding to the nearest sample so that it inverts SamplesToDuration.
func DurationToSamples(d time.Duration, rate int) int {
	if rate <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	rem := int64(d%time.Second) * int64(rate)
	half := int64(time.Second) / 2
	if rem < 0 {
		half = -half
	}
	return int(secs*int64(rate) + (rem+half)/int64(time.Second))
}

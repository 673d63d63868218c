package codec

import "fmt"

// silent marks a stream map entry with no source channel.
const silent = 255

// Geometry describes how output channels map onto elementary streams.
//
// Decoded stream channels are numbered with coupled streams first: index
// 2s and 2s+1 are the two channels of coupled stream s, and index
// 2*CoupledStreams+k is mono stream CoupledStreams+k. Mapping gives that
// index for every output channel, or 255 for silence. When DemixingMatrix
// is set, Mapping is ignored and the output is the matrix product of the
// decoded stream channels.
type Geometry struct {
	Channels       int
	Streams        int
	CoupledStreams int
	Mapping        []byte
	// DemixingMatrix is column-major, Channels rows by
	// Streams+CoupledStreams columns, in units of 1/32768.
	DemixingMatrix []int16
}

// DecodedChannels returns the number of channels carried by all streams.
func (g Geometry) DecodedChannels() int {
	return g.Streams + g.CoupledStreams
}

// StreamChannels returns the channel count of stream s.
func (g Geometry) StreamChannels(s int) int {
	if s < g.CoupledStreams {
		return 2
	}
	return 1
}

// firstChannel returns the decoded channel index of the first channel of
// stream s.
func (g Geometry) firstChannel(s int) int {
	if s < g.CoupledStreams {
		return 2 * s
	}
	return 2*g.CoupledStreams + (s - g.CoupledStreams)
}

// Validate checks the geometry for internal consistency.
func (g Geometry) Validate() error {
	if g.Channels < 1 || g.Channels > 255 {
		return fmt.Errorf("%w: %d channels", ErrInvalidGeometry, g.Channels)
	}
	if g.Streams < 1 || g.CoupledStreams < 0 || g.CoupledStreams > g.Streams {
		return fmt.Errorf("%w: %d streams, %d coupled", ErrInvalidGeometry, g.Streams, g.CoupledStreams)
	}
	if g.Streams+g.CoupledStreams > 255 {
		return fmt.Errorf("%w: %d decoded channels", ErrInvalidGeometry, g.Streams+g.CoupledStreams)
	}

	if g.DemixingMatrix != nil {
		want := g.Channels * g.DecodedChannels()
		if len(g.DemixingMatrix) != want {
			return fmt.Errorf("%w: demixing matrix has %d entries, want %d", ErrInvalidGeometry, len(g.DemixingMatrix), want)
		}
		return nil
	}

	if len(g.Mapping) != g.Channels {
		return fmt.Errorf("%w: mapping has %d entries for %d channels", ErrInvalidGeometry, len(g.Mapping), g.Channels)
	}
	for c, idx := range g.Mapping {
		if idx != silent && int(idx) >= g.DecodedChannels() {
			return fmt.Errorf("%w: channel %d maps to %d", ErrInvalidGeometry, c, idx)
		}
	}
	return nil
}

// sourceChannels returns, for every decoded channel index, the first output
// channel mapped to it or -1. Encoders use it to pick stream inputs.
func (g Geometry) sourceChannels() []int {
	src := make([]int, g.DecodedChannels())
	for i := range src {
		src[i] = -1
	}
	for c, idx := range g.Mapping {
		if idx != silent && src[idx] < 0 {
			src[idx] = c
		}
	}
	return src
}

package header

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/opustranscode/channels"
	"github.com/opd-ai/opustranscode/codec"
	"github.com/sirupsen/logrus"
)

// Magic starts every identification header.
const Magic = "OpusHead"

// OutputSampleRate is the fixed decode rate. InputSampleRate is informational.
const OutputSampleRate = 48000

// Record sizes.
const (
	baseSize      = 19 // magic through mapping family
	multiHeadSize = 21 // plus stream and coupled counts
)

// Channel limits per mapping family.
const (
	maxChannelsFamily0    = 2
	maxChannelsFamily1    = 8
	maxChannelsAmbisonic  = 18
	silentChannel         = 255
	maxStreamsPlusCoupled = 255
)

// StreamHeader is a parsed identification header. It is treated as
// immutable once constructed: callers must not modify the slices, and
// WithPreSkip returns a patched copy.
type StreamHeader struct {
	Version         uint8
	Channels        int
	PreSkip         uint16
	InputSampleRate uint32
	OutputGain      int16 // Q7.8 dB
	MappingFamily   int
	Streams         int
	CoupledStreams  int

	// StreamMap has one entry per channel: the index into the decoded
	// stream channels, or 255 for silence. Nil for family 3.
	StreamMap []byte

	// DemixingMatrix holds the family 3 matrix as signed 16-bit values,
	// column-major with Channels rows and Streams+CoupledStreams columns.
	DemixingMatrix []int16
}

// Parse decodes and validates an identification header. Bytes after the
// record are ignored.
func Parse(b []byte) (*StreamHeader, error) {
	h, err := parse(b)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "header.Parse",
			"length":   len(b),
			"error":    err.Error(),
		}).Error("Failed to parse opus header")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":       "header.Parse",
		"channels":       h.Channels,
		"mapping_family": h.MappingFamily,
		"streams":        h.Streams,
		"coupled":        h.CoupledStreams,
		"pre_skip":       h.PreSkip,
		"input_rate":     h.InputSampleRate,
		"output_gain":    h.OutputGain,
	}).Debug("Parsed opus header")

	return h, nil
}

func parse(b []byte) (*StreamHeader, error) {
	if len(b) < baseSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrCorruptHeader, len(b), baseSize)
	}
	if !bytes.Equal(b[:8], []byte(Magic)) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptHeader, b[:8])
	}

	h := &StreamHeader{
		Version:         b[8],
		Channels:        int(b[9]),
		PreSkip:         binary.LittleEndian.Uint16(b[10:12]),
		InputSampleRate: binary.LittleEndian.Uint32(b[12:16]),
		OutputGain:      int16(binary.LittleEndian.Uint16(b[16:18])),
		MappingFamily:   int(b[18]),
	}

	// Versions 1..15 share the same layout; 0 and higher major versions
	// are unknown.
	if h.Version == 0 || h.Version > 15 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptHeader, h.Version)
	}
	if h.Channels == 0 {
		return nil, fmt.Errorf("%w: zero channels", ErrCorruptHeader)
	}
	if h.MappingFamily > 3 {
		return nil, fmt.Errorf("%w: family %d", ErrUnsupportedMappingFamily, h.MappingFamily)
	}

	if h.MappingFamily == 0 {
		if h.Channels > maxChannelsFamily0 {
			return nil, fmt.Errorf("%w: %d channels for mapping family 0", ErrCorruptHeader, h.Channels)
		}
		h.Streams = 1
		h.CoupledStreams = h.Channels - 1
		h.StreamMap = identityMap(h.Channels)
		return h, nil
	}

	if len(b) < multiHeadSize {
		return nil, fmt.Errorf("%w: truncated stream counts", ErrCorruptHeader)
	}
	h.Streams = int(b[19])
	h.CoupledStreams = int(b[20])

	if err := h.validateLayout(); err != nil {
		return nil, err
	}

	rest := b[multiHeadSize:]
	if h.MappingFamily == 3 {
		size := 2 * h.Channels * (h.Streams + h.CoupledStreams)
		if len(rest) < size {
			return nil, fmt.Errorf("%w: demixing matrix needs %d bytes, have %d", ErrCorruptHeader, size, len(rest))
		}
		h.DemixingMatrix = make([]int16, size/2)
		for i := range h.DemixingMatrix {
			h.DemixingMatrix[i] = int16(binary.LittleEndian.Uint16(rest[2*i:]))
		}
		return h, nil
	}

	if len(rest) < h.Channels {
		return nil, fmt.Errorf("%w: stream map needs %d bytes, have %d", ErrCorruptHeader, h.Channels, len(rest))
	}
	h.StreamMap = make([]byte, h.Channels)
	copy(h.StreamMap, rest[:h.Channels])

	total := h.Streams + h.CoupledStreams
	for i, idx := range h.StreamMap {
		if idx != silentChannel && int(idx) >= total {
			return nil, fmt.Errorf("%w: channel %d maps to %d, only %d decoded channels",
				ErrCorruptHeader, i, idx, total)
		}
	}
	return h, nil
}

// validateLayout checks channel limits and stream counts for families 1..3.
func (h *StreamHeader) validateLayout() error {
	switch h.MappingFamily {
	case 1:
		if h.Channels > maxChannelsFamily1 {
			return fmt.Errorf("%w: %d channels for mapping family 1", ErrCorruptHeader, h.Channels)
		}
	case 2, 3:
		if h.Channels > maxChannelsAmbisonic {
			return fmt.Errorf("%w: %d channels for mapping family %d", ErrCorruptHeader, h.Channels, h.MappingFamily)
		}
		if _, err := channels.DecomposeAmbisonic(h.Channels); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptHeader, err)
		}
	}

	if h.Streams < 1 {
		return fmt.Errorf("%w: zero streams", ErrCorruptHeader)
	}
	if h.CoupledStreams > h.Streams {
		return fmt.Errorf("%w: %d coupled streams exceed %d streams", ErrCorruptHeader, h.CoupledStreams, h.Streams)
	}
	if h.Streams+h.CoupledStreams > maxStreamsPlusCoupled {
		return fmt.Errorf("%w: %d streams plus %d coupled exceed 255", ErrCorruptHeader, h.Streams, h.CoupledStreams)
	}
	if h.MappingFamily == 1 && h.Streams+h.CoupledStreams > h.Channels {
		return fmt.Errorf("%w: %d streams plus %d coupled exceed %d channels",
			ErrCorruptHeader, h.Streams, h.CoupledStreams, h.Channels)
	}
	return nil
}

// MarshalBinary serializes the header in the identification header layout.
func (h *StreamHeader) MarshalBinary() ([]byte, error) {
	if h.Channels < 1 || h.Channels > 255 {
		return nil, fmt.Errorf("%w: %d channels", ErrCorruptHeader, h.Channels)
	}
	if h.MappingFamily < 0 || h.MappingFamily > 3 {
		return nil, fmt.Errorf("%w: family %d", ErrUnsupportedMappingFamily, h.MappingFamily)
	}

	size := baseSize
	if h.MappingFamily > 0 {
		size = multiHeadSize
		if h.MappingFamily == 3 {
			size += 2 * len(h.DemixingMatrix)
		} else {
			if len(h.StreamMap) != h.Channels {
				return nil, fmt.Errorf("%w: stream map has %d entries for %d channels",
					ErrCorruptHeader, len(h.StreamMap), h.Channels)
			}
			size += h.Channels
		}
	}

	out := make([]byte, size)
	copy(out, Magic)
	version := h.Version
	if version == 0 {
		version = 1
	}
	out[8] = version
	out[9] = byte(h.Channels)
	binary.LittleEndian.PutUint16(out[10:12], h.PreSkip)
	binary.LittleEndian.PutUint32(out[12:16], h.InputSampleRate)
	binary.LittleEndian.PutUint16(out[16:18], uint16(h.OutputGain))
	out[18] = byte(h.MappingFamily)

	if h.MappingFamily == 0 {
		return out, nil
	}

	out[19] = byte(h.Streams)
	out[20] = byte(h.CoupledStreams)
	if h.MappingFamily == 3 {
		for i, v := range h.DemixingMatrix {
			binary.LittleEndian.PutUint16(out[multiHeadSize+2*i:], uint16(v))
		}
		return out, nil
	}
	copy(out[multiHeadSize:], h.StreamMap)
	return out, nil
}

// WithPreSkip returns a copy of h with PreSkip replaced.
func (h *StreamHeader) WithPreSkip(preSkip uint16) *StreamHeader {
	c := h.clone()
	c.PreSkip = preSkip
	return c
}

// WithOutputGain returns a copy of h with OutputGain replaced.
func (h *StreamHeader) WithOutputGain(gain int16) *StreamHeader {
	c := h.clone()
	c.OutputGain = gain
	return c
}

func (h *StreamHeader) clone() *StreamHeader {
	c := *h
	if h.StreamMap != nil {
		c.StreamMap = append([]byte(nil), h.StreamMap...)
	}
	if h.DemixingMatrix != nil {
		c.DemixingMatrix = append([]int16(nil), h.DemixingMatrix...)
	}
	return &c
}

// Layout derives the output channel permutation and layout for h.
func (h *StreamHeader) Layout() (channels.Permutation, channels.Layout, error) {
	return channels.ForHeader(h.Channels, h.MappingFamily)
}

// Geometry returns the stream geometry handed to the codec layer. For
// positional layouts the stream map is reordered by perm so the decoder
// writes channels in canonical order.
func (h *StreamHeader) Geometry(perm channels.Permutation) codec.Geometry {
	g := codec.Geometry{
		Channels:       h.Channels,
		Streams:        h.Streams,
		CoupledStreams: h.CoupledStreams,
	}
	if h.MappingFamily == 3 {
		g.DemixingMatrix = append([]int16(nil), h.DemixingMatrix...)
		return g
	}
	if h.MappingFamily <= 1 && perm != nil {
		g.Mapping = perm.Apply(h.StreamMap)
	} else {
		g.Mapping = append([]byte(nil), h.StreamMap...)
	}
	return g
}

func identityMap(n int) []byte {
	m := make([]byte, n)
	for i := range m {
		m[i] = byte(i)
	}
	return m
}

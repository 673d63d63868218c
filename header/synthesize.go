package header

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Defaults used when the negotiated format leaves channels or rate unset.
const (
	DefaultChannels   = 2
	DefaultSampleRate = 48000
)

// vorbisLayout is the default stream layout for a channel count in the
// Vorbis channel order.
type vorbisLayout struct {
	streams int
	coupled int
	mapping []byte
}

var vorbisLayouts = [9]vorbisLayout{
	{},
	{1, 0, []byte{0}},
	{1, 1, []byte{0, 1}},
	{2, 1, []byte{0, 2, 1}},
	{2, 2, []byte{0, 1, 2, 3}},
	{3, 2, []byte{0, 4, 1, 2, 3}},
	{4, 2, []byte{0, 4, 1, 2, 3, 5}},
	{5, 2, []byte{0, 4, 1, 2, 3, 5, 6}},
	{5, 3, []byte{0, 6, 1, 2, 3, 4, 5, 7}},
}

// Synthesize builds a header for a stream that carries none, such as one
// negotiated out of band. Zero channels or rate fall back to the defaults.
// Pre-skip starts at 0; an encoder patches it with WithPreSkip once its
// lookahead is known. One or two channels use mapping family 0, three to
// eight use family 1 with the Vorbis default layout.
func Synthesize(channelCount, sampleRate int) (*StreamHeader, error) {
	if channelCount == 0 {
		channelCount = DefaultChannels
	}
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}

	if channelCount < 1 || channelCount > len(vorbisLayouts)-1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChannelCount, channelCount)
	}
	if sampleRate < 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrCorruptHeader, sampleRate)
	}

	layout := vorbisLayouts[channelCount]
	h := &StreamHeader{
		Version:         1,
		Channels:        channelCount,
		InputSampleRate: uint32(sampleRate),
		Streams:         layout.streams,
		CoupledStreams:  layout.coupled,
		StreamMap:       append([]byte(nil), layout.mapping...),
	}
	if channelCount > 2 {
		h.MappingFamily = 1
	}

	logrus.WithFields(logrus.Fields{
		"function":       "header.Synthesize",
		"channels":       h.Channels,
		"sample_rate":    sampleRate,
		"mapping_family": h.MappingFamily,
		"streams":        h.Streams,
		"coupled":        h.CoupledStreams,
	}).Debug("Synthesized opus header")

	return h, nil
}

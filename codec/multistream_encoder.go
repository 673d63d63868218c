package codec

import (
	"fmt"

	"github.com/opd-ai/opustranscode/packet"
	"github.com/sirupsen/logrus"
)

// maxStreamPacket is the largest single-frame packet one stream produces.
const maxStreamPacket = 1275 + 3

// MultistreamEncoder routes interleaved input channels to per-stream
// encoders and joins their packets into multistream packets.
type MultistreamEncoder struct {
	backend   string
	geometry  Geometry
	encoders  []StreamEncoder
	sources   []int // decoded channel index -> input channel, or -1
	input     [][]float32
	packets   [][]byte
	lookahead LookaheadReporter
	bitrate   []BitrateController // nil unless every stream encoder supports it
	closed    bool
}

// NewMultistreamEncoder creates one stream encoder per elementary stream.
// Family 3 geometries are not encodable.
func NewMultistreamEncoder(b Backend, g Geometry, sampleRate int, app Application) (*MultistreamEncoder, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if g.DemixingMatrix != nil {
		return nil, fmt.Errorf("%w: encoding with a demixing matrix", ErrUnsupported)
	}

	e := &MultistreamEncoder{
		backend:  b.Name(),
		geometry: g,
		encoders: make([]StreamEncoder, 0, g.Streams),
		sources:  g.sourceChannels(),
		input:    make([][]float32, g.Streams),
		packets:  make([][]byte, g.Streams),
	}

	bitrate := make([]BitrateController, 0, g.Streams)
	for s := 0; s < g.Streams; s++ {
		enc, err := b.NewStreamEncoder(sampleRate, g.StreamChannels(s), app)
		if err != nil {
			e.Close()
			logrus.WithFields(logrus.Fields{
				"function": "NewMultistreamEncoder",
				"backend":  b.Name(),
				"stream":   s,
				"error":    err.Error(),
			}).Error("Failed to create stream encoder")
			return nil, fmt.Errorf("stream %d encoder: %w", s, err)
		}
		e.encoders = append(e.encoders, enc)
		e.packets[s] = make([]byte, maxStreamPacket)
		if s == 0 {
			if lr, ok := enc.(LookaheadReporter); ok {
				e.lookahead = lr
			}
		}
		if bc, ok := enc.(BitrateController); ok {
			bitrate = append(bitrate, bc)
		}
	}
	if len(bitrate) == g.Streams {
		e.bitrate = bitrate
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewMultistreamEncoder",
		"backend":     b.Name(),
		"channels":    g.Channels,
		"streams":     g.Streams,
		"coupled":     g.CoupledStreams,
		"application": app.String(),
	}).Debug("Multistream encoder created")

	return e, nil
}

// Geometry returns the encoder's stream geometry.
func (e *MultistreamEncoder) Geometry() Geometry {
	return e.geometry
}

// MaxPacketBytes returns the worst-case size of one encoded packet.
func (e *MultistreamEncoder) MaxPacketBytes() int {
	return packet.MaxMultistreamPacketBytes(e.geometry.Streams)
}

// Lookahead implements LookaheadReporter using the first stream encoder.
func (e *MultistreamEncoder) Lookahead() (int, error) {
	if e.lookahead == nil {
		return 0, ErrUnsupported
	}
	return e.lookahead.Lookahead()
}

// SetBitrate splits bps across streams in proportion to their channel
// counts.
func (e *MultistreamEncoder) SetBitrate(bps int) error {
	if e.bitrate == nil {
		return ErrUnsupported
	}
	g := e.geometry
	total := g.DecodedChannels()
	for s, bc := range e.bitrate {
		share := bps * g.StreamChannels(s) / total
		if err := bc.SetBitrate(share); err != nil {
			return fmt.Errorf("stream %d bitrate: %w", s, err)
		}
	}
	return nil
}

// Encode encodes frameSize samples per channel of interleaved pcm into out
// and returns the packet length.
func (e *MultistreamEncoder) Encode(pcm []float32, frameSize int, out []byte) (int, error) {
	if e.closed {
		return 0, ErrClosed
	}
	g := e.geometry
	if len(pcm) < frameSize*g.Channels {
		return 0, fmt.Errorf("%w: input has %d samples, need %d", ErrBufferTooSmall, len(pcm), frameSize*g.Channels)
	}

	for s, enc := range e.encoders {
		in := e.streamInput(s, pcm, frameSize)
		n, err := enc.Encode(in, e.packets[s][:cap(e.packets[s])])
		if err != nil {
			return 0, fmt.Errorf("stream %d: %w", s, err)
		}
		e.packets[s] = e.packets[s][:n]
	}

	joined, err := packet.JoinMultistream(e.packets)
	if err != nil {
		return 0, err
	}
	if len(joined) > len(out) {
		return 0, fmt.Errorf("%w: packet is %d bytes, buffer %d", ErrBufferTooSmall, len(joined), len(out))
	}
	return copy(out, joined), nil
}

// streamInput gathers the input channels feeding stream s.
func (e *MultistreamEncoder) streamInput(s int, pcm []float32, frameSize int) []float32 {
	g := e.geometry
	ch := g.StreamChannels(s)
	need := frameSize * ch
	if cap(e.input[s]) < need {
		e.input[s] = make([]float32, need)
	}
	in := e.input[s][:need]

	first := g.firstChannel(s)
	for k := 0; k < ch; k++ {
		src := e.sources[first+k]
		for i := 0; i < frameSize; i++ {
			if src < 0 {
				in[i*ch+k] = 0
			} else {
				in[i*ch+k] = pcm[i*g.Channels+src]
			}
		}
	}
	return in
}

// Reset clears every stream encoder's history.
func (e *MultistreamEncoder) Reset() error {
	if e.closed {
		return ErrClosed
	}
	for s, enc := range e.encoders {
		if err := enc.Reset(); err != nil {
			return fmt.Errorf("stream %d reset: %w", s, err)
		}
	}
	return nil
}

// Close releases every stream encoder. Subsequent calls return nil.
func (e *MultistreamEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	var first error
	for s, enc := range e.encoders {
		if err := enc.Close(); err != nil && first == nil {
			first = fmt.Errorf("stream %d close: %w", s, err)
		}
	}
	e.encoders = nil
	return first
}

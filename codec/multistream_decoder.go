package codec

import (
	"fmt"

	"github.com/opd-ai/opustranscode/packet"
	"github.com/sirupsen/logrus"
)

// MultistreamDecoder decodes multistream packets into interleaved output
// channels.
type MultistreamDecoder struct {
	backend    string
	geometry   Geometry
	sampleRate int
	decoders   []StreamDecoder
	scratch    [][]float32
	demix      []float32
	gain       []GainController // nil unless every stream decoder supports gain
	closed     bool
}

// NewMultistreamDecoder creates one stream decoder per elementary stream.
// A failure closes every decoder created so far.
func NewMultistreamDecoder(b Backend, g Geometry, sampleRate int) (*MultistreamDecoder, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	d := &MultistreamDecoder{
		backend:    b.Name(),
		geometry:   g,
		sampleRate: sampleRate,
		decoders:   make([]StreamDecoder, 0, g.Streams),
		scratch:    make([][]float32, g.Streams),
	}

	gain := make([]GainController, 0, g.Streams)
	for s := 0; s < g.Streams; s++ {
		ch := g.StreamChannels(s)
		dec, err := b.NewStreamDecoder(sampleRate, ch)
		if err != nil {
			d.Close()
			logrus.WithFields(logrus.Fields{
				"function": "NewMultistreamDecoder",
				"backend":  b.Name(),
				"stream":   s,
				"error":    err.Error(),
			}).Error("Failed to create stream decoder")
			return nil, fmt.Errorf("stream %d decoder: %w", s, err)
		}
		d.decoders = append(d.decoders, dec)
		d.scratch[s] = make([]float32, MaxFrameSamples*ch)
		if gc, ok := dec.(GainController); ok {
			gain = append(gain, gc)
		}
	}
	if len(gain) == g.Streams {
		d.gain = gain
	}
	if g.DemixingMatrix != nil {
		d.demix = make([]float32, len(g.DemixingMatrix))
		for i, v := range g.DemixingMatrix {
			d.demix[i] = float32(v) / 32768
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NewMultistreamDecoder",
		"backend":      b.Name(),
		"channels":     g.Channels,
		"streams":      g.Streams,
		"coupled":      g.CoupledStreams,
		"gain_control": d.gain != nil,
		"demixing":     d.demix != nil,
	}).Debug("Multistream decoder created")

	return d, nil
}

// Geometry returns the decoder's stream geometry.
func (d *MultistreamDecoder) Geometry() Geometry {
	return d.geometry
}

// SupportsGain reports whether the header gain can be applied internally.
func (d *MultistreamDecoder) SupportsGain() bool {
	return d.gain != nil
}

// SetGain implements GainController when every stream decoder does.
func (d *MultistreamDecoder) SetGain(q78 int) error {
	if d.gain == nil {
		return ErrUnsupported
	}
	for s, gc := range d.gain {
		if err := gc.SetGain(q78); err != nil {
			return fmt.Errorf("stream %d gain: %w", s, err)
		}
	}
	return nil
}

// Decode decodes one multistream packet into interleaved pcm and returns
// the number of samples per channel written.
func (d *MultistreamDecoder) Decode(data []byte, pcm []float32) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	g := d.geometry

	packets, err := packet.SplitMultistream(data, g.Streams)
	if err != nil {
		return 0, err
	}

	samples := -1
	for s, dec := range d.decoders {
		n, err := dec.Decode(packets[s], d.scratch[s])
		if err != nil {
			return 0, fmt.Errorf("stream %d: %w", s, err)
		}
		if samples >= 0 && n != samples {
			return 0, fmt.Errorf("%w: stream %d has %d samples, stream 0 has %d", ErrStreamMismatch, s, n, samples)
		}
		samples = n
	}

	if len(pcm) < samples*g.Channels {
		return 0, fmt.Errorf("%w: need %d, have %d", ErrBufferTooSmall, samples*g.Channels, len(pcm))
	}

	if d.demix != nil {
		d.applyDemixing(pcm, samples)
	} else {
		d.route(pcm, samples)
	}
	return samples, nil
}

// decoded returns sample i of decoded channel idx.
func (d *MultistreamDecoder) decoded(idx, i int) float32 {
	g := d.geometry
	if idx < 2*g.CoupledStreams {
		return d.scratch[idx/2][2*i+idx%2]
	}
	return d.scratch[g.CoupledStreams+idx-2*g.CoupledStreams][i]
}

func (d *MultistreamDecoder) route(pcm []float32, samples int) {
	g := d.geometry
	for c, idx := range g.Mapping {
		if idx == silent {
			for i := 0; i < samples; i++ {
				pcm[i*g.Channels+c] = 0
			}
			continue
		}
		for i := 0; i < samples; i++ {
			pcm[i*g.Channels+c] = d.decoded(int(idx), i)
		}
	}
}

func (d *MultistreamDecoder) applyDemixing(pcm []float32, samples int) {
	g := d.geometry
	rows := g.Channels
	cols := g.DecodedChannels()
	for i := 0; i < samples; i++ {
		out := pcm[i*rows : (i+1)*rows]
		for r := range out {
			out[r] = 0
		}
		for col := 0; col < cols; col++ {
			v := d.decoded(col, i)
			if v == 0 {
				continue
			}
			for r := 0; r < rows; r++ {
				out[r] += d.demix[col*rows+r] * v
			}
		}
	}
}

// Reset clears every stream decoder's history.
func (d *MultistreamDecoder) Reset() error {
	if d.closed {
		return ErrClosed
	}
	for s, dec := range d.decoders {
		if err := dec.Reset(); err != nil {
			return fmt.Errorf("stream %d reset: %w", s, err)
		}
	}
	return nil
}

// Close releases every stream decoder. Subsequent calls return nil.
func (d *MultistreamDecoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var first error
	for s, dec := range d.decoders {
		if err := dec.Close(); err != nil && first == nil {
			first = fmt.Errorf("stream %d close: %w", s, err)
		}
	}
	d.decoders = nil
	return first
}

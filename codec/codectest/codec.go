package codectest

import (
	"fmt"
	"math"

	"github.com/opd-ai/opustranscode/codec"
	"github.com/opd-ai/opustranscode/packet"
)

// Decoder is a simulated elementary stream decoder.
type Decoder struct {
	sampleRate int
	channels   int
	gain       float32

	// Decoded counts successful Decode calls.
	Decoded int
	// Resets counts Reset calls.
	Resets int
	// Closes counts Close calls.
	Closes int
	// GainQ78 is the last gain pushed through SetGain.
	GainQ78 int
}

// Channels returns the decoder channel count.
func (d *Decoder) Channels() int {
	return d.channels
}

// Decode implements codec.StreamDecoder.
func (d *Decoder) Decode(data []byte, pcm []float32) (int, error) {
	p, err := packet.Parse(data, false)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	frameSize := p.TOC.FrameSize * d.sampleRate / 48000
	total := frameSize * len(p.Frames)
	if len(pcm) < total*d.channels {
		return 0, fmt.Errorf("%w: need %d samples", codec.ErrBufferTooSmall, total*d.channels)
	}

	for j, frame := range p.Frames {
		ramps, err := readRamps(frame, d.channels)
		if err != nil {
			return 0, err
		}
		base := j * frameSize
		for i := 0; i < frameSize; i++ {
			for c, r := range ramps {
				pcm[(base+i)*d.channels+c] = r.At(i) * d.gain
			}
		}
	}
	d.Decoded++
	return total, nil
}

// Reset implements codec.StreamDecoder.
func (d *Decoder) Reset() error {
	d.Resets++
	return nil
}

// Close implements codec.StreamDecoder.
func (d *Decoder) Close() error {
	d.Closes++
	return nil
}

// gainDecoder adds codec.GainController to Decoder.
type gainDecoder struct {
	*Decoder
}

func (g *gainDecoder) SetGain(q78 int) error {
	g.GainQ78 = q78
	g.gain = float32(math.Pow(10, float64(q78)/5120))
	return nil
}

// Encoder is a simulated elementary stream encoder.
type Encoder struct {
	backend     *Backend
	index       int
	sampleRate  int
	channels    int
	Application codec.Application

	// Bitrate is the last value passed to SetBitrate.
	Bitrate int
	// Resets counts Reset calls.
	Resets int
	// Closes counts Close calls.
	Closes int
}

// Channels returns the encoder channel count.
func (e *Encoder) Channels() int {
	return e.channels
}

// Encode implements codec.StreamEncoder. The frame is fitted with a ramp
// through its first and last sample of every channel.
func (e *Encoder) Encode(pcm []float32, out []byte) (int, error) {
	frameSize := len(pcm) / e.channels
	input := append([]float32(nil), pcm...)
	if e.backend.record(EncodeRecord{Stream: e.index, Channels: e.channels, Input: input}) {
		return 0, ErrInjected
	}

	config, ok := configBySize[frameSize*48000/e.sampleRate]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedFrameSize, frameSize)
	}
	size := 1 + rampBytes(e.channels)
	if len(out) < size {
		return 0, codec.ErrBufferTooSmall
	}

	ramps := make([]Ramp, e.channels)
	for c := range ramps {
		first := pcm[c]
		last := pcm[(frameSize-1)*e.channels+c]
		ramps[c].Start = first
		if frameSize > 1 {
			ramps[c].Step = (last - first) / float32(frameSize-1)
		}
	}
	out[0] = packet.MakeTOC(config, e.channels == 2, 0)
	putRamps(out[1:], ramps)
	return size, nil
}

// Lookahead implements codec.LookaheadReporter.
func (e *Encoder) Lookahead() (int, error) {
	return e.backend.Lookahead, nil
}

// SetBitrate implements codec.BitrateController.
func (e *Encoder) SetBitrate(bps int) error {
	e.Bitrate = bps
	return nil
}

// Reset implements codec.StreamEncoder.
func (e *Encoder) Reset() error {
	e.Resets++
	return nil
}

// Close implements codec.StreamEncoder.
func (e *Encoder) Close() error {
	e.Closes++
	return nil
}

// plainEncoder hides the optional capabilities of Encoder.
type plainEncoder struct {
	enc *Encoder
}

func (p *plainEncoder) Encode(pcm []float32, out []byte) (int, error) { return p.enc.Encode(pcm, out) }
func (p *plainEncoder) Reset() error                                  { return p.enc.Reset() }
func (p *plainEncoder) Close() error                                  { return p.enc.Close() }

package codectest

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/opd-ai/opustranscode/packet"
)

// configBySize maps frame sizes at 48 kHz to CELT fullband configurations.
var configBySize = map[int]uint8{
	120: 28,
	240: 29,
	480: 30,
	960: 31,
}

// Ramp describes one channel of a simulated frame.
type Ramp struct {
	Start float32
	Step  float32
}

// At returns sample i of the ramp.
func (r Ramp) At(i int) float32 {
	return r.Start + r.Step*float32(i)
}

func rampBytes(channels int) int {
	return 8 * channels
}

func putRamps(dst []byte, ramps []Ramp) {
	for c, r := range ramps {
		binary.LittleEndian.PutUint32(dst[8*c:], math.Float32bits(r.Start))
		binary.LittleEndian.PutUint32(dst[8*c+4:], math.Float32bits(r.Step))
	}
}

func readRamps(src []byte, channels int) ([]Ramp, error) {
	if len(src) != rampBytes(channels) {
		return nil, fmt.Errorf("%w: frame of %d bytes for %d channels", ErrCorruptPayload, len(src), channels)
	}
	ramps := make([]Ramp, channels)
	for c := range ramps {
		ramps[c].Start = math.Float32frombits(binary.LittleEndian.Uint32(src[8*c:]))
		ramps[c].Step = math.Float32frombits(binary.LittleEndian.Uint32(src[8*c+4:]))
	}
	return ramps, nil
}

// Packet builds a single-stream packet of frames frames, each frameSize
// samples long, continuing the given per-channel ramps across frames.
func Packet(frameSize, frames int, ramps ...Ramp) ([]byte, error) {
	config, ok := configBySize[frameSize]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFrameSize, frameSize)
	}
	if len(ramps) < 1 || len(ramps) > 2 {
		return nil, fmt.Errorf("simulated packet: %d channels", len(ramps))
	}

	payloads := make([][]byte, frames)
	for j := range payloads {
		shifted := make([]Ramp, len(ramps))
		for c, r := range ramps {
			shifted[c] = Ramp{Start: r.At(j * frameSize), Step: r.Step}
		}
		payloads[j] = make([]byte, rampBytes(len(ramps)))
		putRamps(payloads[j], shifted)
	}
	return packet.Build(packet.MakeTOC(config, len(ramps) == 2, 0), payloads, false)
}

// MustPacket is Packet for test fixtures; it panics on error.
func MustPacket(frameSize, frames int, ramps ...Ramp) []byte {
	p, err := Packet(frameSize, frames, ramps...)
	if err != nil {
		panic(err)
	}
	return p
}

// Multistream joins per-stream packets into one multistream packet.
func Multistream(streams ...[]byte) []byte {
	p, err := packet.JoinMultistream(streams)
	if err != nil {
		panic(err)
	}
	return p
}

// Constant returns a flat ramp.
func Constant(v float32) Ramp {
	return Ramp{Start: v}
}

package packet

import (
	"errors"
	"fmt"
)

// Errors returned by packet inspection and framing.
var (
	// ErrPacketTooShort indicates the data ended before the framing did.
	ErrPacketTooShort = errors.New("opus packet too short")

	// ErrInvalidPacket indicates framing that violates RFC 6716 section 3.
	ErrInvalidPacket = errors.New("invalid opus packet framing")

	// ErrInvalidFrameCount indicates a code 3 frame count of 0 or above 48.
	ErrInvalidFrameCount = errors.New("invalid opus frame count")

	// ErrInvalidStreamCount indicates a multistream stream count below 1.
	ErrInvalidStreamCount = errors.New("invalid multistream stream count")
)

// Mode is the Opus coding mode selected by the TOC configuration.
type Mode uint8

const (
	// ModeSILK is the linear-prediction mode (configs 0-11).
	ModeSILK Mode = iota
	// ModeHybrid combines SILK and CELT (configs 12-15).
	ModeHybrid
	// ModeCELT is the transform mode (configs 16-31).
	ModeCELT
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeSILK:
		return "SILK"
	case ModeHybrid:
		return "Hybrid"
	case ModeCELT:
		return "CELT"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Bandwidth is the audio bandwidth selected by the TOC configuration.
type Bandwidth uint8

const (
	BandwidthNarrowband Bandwidth = iota
	BandwidthMediumband
	BandwidthWideband
	BandwidthSuperwideband
	BandwidthFullband
)

// String returns the bandwidth name.
func (b Bandwidth) String() string {
	switch b {
	case BandwidthNarrowband:
		return "Narrowband"
	case BandwidthMediumband:
		return "Mediumband"
	case BandwidthWideband:
		return "Wideband"
	case BandwidthSuperwideband:
		return "Superwideband"
	case BandwidthFullband:
		return "Fullband"
	default:
		return fmt.Sprintf("Bandwidth(%d)", uint8(b))
	}
}

// TOC is a decoded table-of-contents byte.
type TOC struct {
	Config    uint8
	Mode      Mode
	Bandwidth Bandwidth
	FrameSize int // samples per frame at 48 kHz
	Stereo    bool
	FrameCode uint8
}

type configEntry struct {
	mode      Mode
	bandwidth Bandwidth
	frameSize int
}

// configTable follows RFC 6716 section 3.1, frame sizes at 48 kHz.
var configTable = [32]configEntry{
	{ModeSILK, BandwidthNarrowband, 480},
	{ModeSILK, BandwidthNarrowband, 960},
	{ModeSILK, BandwidthNarrowband, 1920},
	{ModeSILK, BandwidthNarrowband, 2880},
	{ModeSILK, BandwidthMediumband, 480},
	{ModeSILK, BandwidthMediumband, 960},
	{ModeSILK, BandwidthMediumband, 1920},
	{ModeSILK, BandwidthMediumband, 2880},
	{ModeSILK, BandwidthWideband, 480},
	{ModeSILK, BandwidthWideband, 960},
	{ModeSILK, BandwidthWideband, 1920},
	{ModeSILK, BandwidthWideband, 2880},
	{ModeHybrid, BandwidthSuperwideband, 480},
	{ModeHybrid, BandwidthSuperwideband, 960},
	{ModeHybrid, BandwidthFullband, 480},
	{ModeHybrid, BandwidthFullband, 960},
	{ModeCELT, BandwidthNarrowband, 120},
	{ModeCELT, BandwidthNarrowband, 240},
	{ModeCELT, BandwidthNarrowband, 480},
	{ModeCELT, BandwidthNarrowband, 960},
	{ModeCELT, BandwidthWideband, 120},
	{ModeCELT, BandwidthWideband, 240},
	{ModeCELT, BandwidthWideband, 480},
	{ModeCELT, BandwidthWideband, 960},
	{ModeCELT, BandwidthSuperwideband, 120},
	{ModeCELT, BandwidthSuperwideband, 240},
	{ModeCELT, BandwidthSuperwideband, 480},
	{ModeCELT, BandwidthSuperwideband, 960},
	{ModeCELT, BandwidthFullband, 120},
	{ModeCELT, BandwidthFullband, 240},
	{ModeCELT, BandwidthFullband, 480},
	{ModeCELT, BandwidthFullband, 960},
}

// ParseTOC decodes a TOC byte.
func ParseTOC(b byte) TOC {
	config := b >> 3
	entry := configTable[config]
	return TOC{
		Config:    config,
		Mode:      entry.mode,
		Bandwidth: entry.bandwidth,
		FrameSize: entry.frameSize,
		Stereo:    b&0x04 != 0,
		FrameCode: b & 0x03,
	}
}

// MakeTOC builds a TOC byte from a configuration index, stereo flag and
// frame count code.
func MakeTOC(config uint8, stereo bool, frameCode uint8) byte {
	toc := (config & 0x1F) << 3
	if stereo {
		toc |= 0x04
	}
	return toc | frameCode&0x03
}

// ConfigFor returns the configuration index for a mode, bandwidth and frame
// size, or -1 when the combination does not exist.
func ConfigFor(mode Mode, bandwidth Bandwidth, frameSize int) int {
	for i, entry := range configTable {
		if entry.mode == mode && entry.bandwidth == bandwidth && entry.frameSize == frameSize {
			return i
		}
	}
	return -1
}

// FrameCount returns the number of frames in a packet.
func FrameCount(data []byte) (int, error) {
	if len(data) < 1 {
		return 0, ErrPacketTooShort
	}
	switch data[0] & 0x03 {
	case 0:
		return 1, nil
	case 1, 2:
		return 2, nil
	default:
		if len(data) < 2 {
			return 0, ErrPacketTooShort
		}
		n := int(data[1] & 0x3F)
		if n == 0 || n > 48 {
			return 0, ErrInvalidFrameCount
		}
		return n, nil
	}
}

// SamplesPerFrame returns the per-frame sample count of a packet at the
// given output rate, or 0 for an empty packet.
func SamplesPerFrame(data []byte, sampleRate int) int {
	if len(data) < 1 {
		return 0
	}
	return ParseTOC(data[0]).FrameSize * sampleRate / 48000
}

// SampleCount returns the number of samples per channel the packet decodes
// to at the given output rate. It only reads the TOC and frame count fields,
// so it can be used to reject packets before they reach a decoder.
func SampleCount(data []byte, sampleRate int) (int, error) {
	frames, err := FrameCount(data)
	if err != nil {
		return 0, err
	}
	return frames * SamplesPerFrame(data, sampleRate), nil
}

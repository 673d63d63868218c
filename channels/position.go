// Package channels maps the channel order declared by a multistream header
// onto the canonical output order.
//
// Headers with mapping family 0 or 1 list their channels in the Vorbis
// reference order (front-left, front-center, front-right, ...). Output
// buffers always use the canonical order given by CanonicalOrder. For three
// to eight channels a Permutation moves every declared channel into its
// canonical slot:
//
//	perm, layout, err := channels.ForHeader(6, 1)
//	if err != nil {
//	    return err
//	}
//	canonicalMap := perm.Apply(streamMap)
//
// Mapping families 2 and 3 carry ambisonic channels. No permutation is built
// for them; instead the channel count is decomposed into an ambisonic order
// and a non-diegetic remainder.
package channels

import (
	"errors"
	"strings"
)

// Errors returned by the channel mapper.
var (
	// ErrUnsupportedChannelCount indicates a channel count with no
	// reference layout for the requested mapping family.
	ErrUnsupportedChannelCount = errors.New("unsupported channel count")

	// ErrInvalidDeclaredOrder indicates a declared order that does not
	// cover the layout mask exactly once per position.
	ErrInvalidDeclaredOrder = errors.New("declared channel order does not match layout")

	// ErrInvalidAmbisonicLayout indicates an ambisonic channel count whose
	// non-diegetic remainder is neither 0 nor 2.
	ErrInvalidAmbisonicLayout = errors.New("invalid ambisonic channel layout")

	// ErrUnsupportedFamily indicates a mapping family outside 0..3.
	ErrUnsupportedFamily = errors.New("unsupported channel mapping family")
)

// Position is a physical speaker role. Positions are bit flags so a set of
// them can be carried as a layout mask.
type Position uint32

const (
	PositionFrontLeft Position = 1 << iota
	PositionFrontRight
	PositionSideLeft
	PositionSideRight
	PositionRearLeft
	PositionRearRight
	PositionRearCenter
	PositionFrontCenter
	PositionLowFrequency
)

// CanonicalOrder is the order in which positions appear in output buffers.
// A layout uses the subsequence of positions present in its mask.
var CanonicalOrder = []Position{
	PositionFrontLeft,
	PositionFrontRight,
	PositionSideLeft,
	PositionSideRight,
	PositionRearLeft,
	PositionRearRight,
	PositionRearCenter,
	PositionFrontCenter,
	PositionLowFrequency,
}

var positionNames = map[Position]string{
	PositionFrontLeft:    "FL",
	PositionFrontRight:   "FR",
	PositionSideLeft:     "SL",
	PositionSideRight:    "SR",
	PositionRearLeft:     "RL",
	PositionRearRight:    "RR",
	PositionRearCenter:   "RC",
	PositionFrontCenter:  "FC",
	PositionLowFrequency: "LFE",
}

// String returns the short speaker name, or the names of all set bits
// joined with '|' for a mask.
func (p Position) String() string {
	if name, ok := positionNames[p]; ok {
		return name
	}
	if p == 0 {
		return "none"
	}
	var parts []string
	for _, pos := range CanonicalOrder {
		if p&pos != 0 {
			parts = append(parts, positionNames[pos])
		}
	}
	return strings.Join(parts, "|")
}

// Count returns the number of positions set in the mask.
func (p Position) Count() int {
	n := 0
	for _, pos := range CanonicalOrder {
		if p&pos != 0 {
			n++
		}
	}
	return n
}

// declaredOrders holds the Vorbis reference order for each channel count.
var declaredOrders = [9][]Position{
	nil,
	{PositionFrontCenter},
	{PositionFrontLeft, PositionFrontRight},
	{PositionFrontLeft, PositionFrontCenter, PositionFrontRight},
	{PositionFrontLeft, PositionFrontRight, PositionRearLeft, PositionRearRight},
	{PositionFrontLeft, PositionFrontCenter, PositionFrontRight, PositionRearLeft, PositionRearRight},
	{PositionFrontLeft, PositionFrontCenter, PositionFrontRight, PositionRearLeft, PositionRearRight,
		PositionLowFrequency},
	{PositionFrontLeft, PositionFrontCenter, PositionFrontRight, PositionSideLeft, PositionSideRight,
		PositionRearCenter, PositionLowFrequency},
	{PositionFrontLeft, PositionFrontCenter, PositionFrontRight, PositionSideLeft, PositionSideRight,
		PositionRearLeft, PositionRearRight, PositionLowFrequency},
}

// MaxPositionalChannels is the largest channel count with a reference layout.
const MaxPositionalChannels = 8

// DeclaredOrder returns the reference order in which a header with n
// channels lists them, or nil when n has no reference layout.
func DeclaredOrder(n int) []Position {
	if n < 1 || n > MaxPositionalChannels {
		return nil
	}
	out := make([]Position, n)
	copy(out, declaredOrders[n])
	return out
}

// LayoutMask returns the physical speaker mask for n channels, or 0 when n
// has no reference layout.
func LayoutMask(n int) Position {
	if n < 1 || n > MaxPositionalChannels {
		return 0
	}
	var mask Position
	for _, pos := range declaredOrders[n] {
		mask |= pos
	}
	return mask
}

// canonicalSlots lists the positions of mask in canonical order.
func canonicalSlots(mask Position) []Position {
	slots := make([]Position, 0, len(CanonicalOrder))
	for _, pos := range CanonicalOrder {
		if mask&pos != 0 {
			slots = append(slots, pos)
		}
	}
	return slots
}

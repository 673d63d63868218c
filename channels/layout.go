package channels

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// LayoutKind tells positional speaker layouts from ambisonic ones.
type LayoutKind int

const (
	LayoutPositional LayoutKind = iota
	LayoutAmbisonic
)

// String returns the layout kind name.
func (k LayoutKind) String() string {
	if k == LayoutAmbisonic {
		return "ambisonic"
	}
	return "positional"
}

// Ambisonics describes an ambisonic channel count. Order is the largest N
// with N*N <= channels, and NonDiegetic the stereo remainder.
type Ambisonics struct {
	Order       int
	NonDiegetic int
}

// Channels returns the total channel count described.
func (a Ambisonics) Channels() int {
	return a.Order*a.Order + a.NonDiegetic
}

// SphericalOrder returns the spherical harmonic order, one less than Order.
func (a Ambisonics) SphericalOrder() int {
	return a.Order - 1
}

// DecomposeAmbisonic splits n into an ambisonic order and a non-diegetic
// remainder, which must be 0 or 2.
func DecomposeAmbisonic(n int) (Ambisonics, error) {
	if n < 1 {
		return Ambisonics{}, fmt.Errorf("%w: %d channels", ErrInvalidAmbisonicLayout, n)
	}
	order := int(math.Sqrt(float64(n)))
	// Guard against rounding in the square root for perfect squares.
	for order*order > n {
		order--
	}
	for (order+1)*(order+1) <= n {
		order++
	}
	rem := n - order*order
	if rem != 0 && rem != 2 {
		return Ambisonics{}, fmt.Errorf("%w: %d channels leave remainder %d", ErrInvalidAmbisonicLayout, n, rem)
	}
	return Ambisonics{Order: order, NonDiegetic: rem}, nil
}

// Layout is the output channel layout of a stream.
type Layout struct {
	Kind       LayoutKind
	Channels   int
	Mask       Position   // positional layouts only
	Order      []Position // canonical output order, positional layouts only
	Ambisonics Ambisonics // ambisonic layouts only
}

// String summarizes the layout for logs.
func (l Layout) String() string {
	if l.Kind == LayoutAmbisonic {
		return fmt.Sprintf("ambisonic order=%d channels=%d+%d",
			l.Ambisonics.SphericalOrder(), l.Channels-l.Ambisonics.NonDiegetic, l.Ambisonics.NonDiegetic)
	}
	return fmt.Sprintf("positional %s", l.Mask)
}

// ForHeader derives the permutation and output layout for a stream with n
// channels and the given mapping family. The permutation is nil when no
// reordering applies: two channels or fewer, or an ambisonic family.
func ForHeader(n, family int) (Permutation, Layout, error) {
	switch {
	case family < 0 || family > 3:
		return nil, Layout{}, fmt.Errorf("%w: %d", ErrUnsupportedFamily, family)

	case family >= 2:
		amb, err := DecomposeAmbisonic(n)
		if err != nil {
			return nil, Layout{}, err
		}
		logrus.WithFields(logrus.Fields{
			"function":     "ForHeader",
			"channels":     n,
			"order":        amb.SphericalOrder(),
			"non_diegetic": amb.NonDiegetic,
		}).Debug("Ambisonic layout")
		return nil, Layout{Kind: LayoutAmbisonic, Channels: n, Ambisonics: amb}, nil
	}

	if n < 1 || n > MaxPositionalChannels {
		return nil, Layout{}, fmt.Errorf("%w: %d channels for family %d", ErrUnsupportedChannelCount, n, family)
	}

	mask := LayoutMask(n)
	layout := Layout{
		Kind:     LayoutPositional,
		Channels: n,
		Mask:     mask,
		Order:    canonicalSlots(mask),
	}
	if n <= 2 {
		return nil, layout, nil
	}

	perm, err := BuildPermutation(DeclaredOrder(n), mask, n)
	if err != nil {
		return nil, Layout{}, err
	}
	return perm, layout, nil
}

package channels

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForHeaderPermutations(t *testing.T) {
	tests := []struct {
		channels int
		expected Permutation
	}{
		{3, Permutation{0, 2, 1}},
		{4, Permutation{0, 1, 2, 3}},
		{5, Permutation{0, 4, 1, 2, 3}},
		{6, Permutation{0, 4, 1, 2, 3, 5}},
		{7, Permutation{0, 5, 1, 2, 3, 4, 6}},
		{8, Permutation{0, 6, 1, 2, 3, 4, 5, 7}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_channels", tt.channels), func(t *testing.T) {
			perm, layout, err := ForHeader(tt.channels, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, perm)
			assert.Equal(t, LayoutPositional, layout.Kind)
			assert.Equal(t, tt.channels, layout.Mask.Count())
			assert.Len(t, layout.Order, tt.channels)
		})
	}
}

func TestForHeaderNoPermutationForStereoAndMono(t *testing.T) {
	for _, family := range []int{0, 1} {
		for _, n := range []int{1, 2} {
			perm, layout, err := ForHeader(n, family)
			require.NoError(t, err)
			assert.Nil(t, perm)
			assert.True(t, perm.IsIdentity())
			assert.Equal(t, n, layout.Channels)

			streamMap := []byte{0, 1}[:n]
			assert.Equal(t, streamMap, perm.Apply(streamMap))
		}
	}
}

func TestPermutationRoundTrip(t *testing.T) {
	for n := 3; n <= MaxPositionalChannels; n++ {
		t.Run(fmt.Sprintf("%d_channels", n), func(t *testing.T) {
			perm, _, err := ForHeader(n, 1)
			require.NoError(t, err)

			streamMap := make([]byte, n)
			for i := range streamMap {
				streamMap[i] = byte(10 + i)
			}

			assert.Equal(t, streamMap, perm.Inverse().Apply(perm.Apply(streamMap)))
			assert.Equal(t, streamMap, perm.Apply(perm.Inverse().Apply(streamMap)))
		})
	}
}

func TestSixChannelCanonicalOrder(t *testing.T) {
	perm, layout, err := ForHeader(6, 1)
	require.NoError(t, err)

	declared := DeclaredOrder(6)
	inv := perm.Inverse()

	// Two interleaved sample frames, each channel tagged by its declared index.
	pcm := []float32{0, 1, 2, 3, 4, 5, 10, 11, 12, 13, 14, 15}
	perm.ApplyInterleaved(pcm)

	for i := 0; i < 6; i++ {
		assert.Equal(t, float32(inv[i]), pcm[i], "channel %d", i)
		assert.Equal(t, float32(10+inv[i]), pcm[6+i], "channel %d", i)
		assert.Equal(t, layout.Order[i], declared[inv[i]])
	}
	assert.Equal(t, []Position{
		PositionFrontLeft, PositionFrontRight, PositionRearLeft,
		PositionRearRight, PositionFrontCenter, PositionLowFrequency,
	}, layout.Order)
}

func TestBuildPermutationErrors(t *testing.T) {
	tests := []struct {
		name     string
		declared []Position
		mask     Position
		n        int
	}{
		{"short_declared", []Position{PositionFrontLeft}, LayoutMask(3), 3},
		{"mask_size_mismatch", DeclaredOrder(3), LayoutMask(4), 3},
		{"position_outside_mask", []Position{PositionFrontLeft, PositionFrontRight, PositionLowFrequency},
			LayoutMask(3), 3},
		{"duplicate_position", []Position{PositionFrontLeft, PositionFrontLeft, PositionFrontRight},
			LayoutMask(3), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildPermutation(tt.declared, tt.mask, tt.n)
			assert.ErrorIs(t, err, ErrInvalidDeclaredOrder)
		})
	}
}

func TestDecomposeAmbisonic(t *testing.T) {
	tests := []struct {
		channels    int
		order       int
		nonDiegetic int
		valid       bool
	}{
		{1, 1, 0, true},
		{3, 1, 2, true},
		{4, 2, 0, true},
		{6, 2, 2, true},
		{9, 3, 0, true},
		{11, 3, 2, true},
		{16, 4, 0, true},
		{18, 4, 2, true},
		{2, 0, 0, false},
		{5, 0, 0, false},
		{8, 0, 0, false},
		{17, 0, 0, false},
		{0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_channels", tt.channels), func(t *testing.T) {
			amb, err := DecomposeAmbisonic(tt.channels)
			if !tt.valid {
				assert.ErrorIs(t, err, ErrInvalidAmbisonicLayout)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.order, amb.Order)
			assert.Equal(t, tt.nonDiegetic, amb.NonDiegetic)
			assert.Equal(t, tt.channels, amb.Channels())
		})
	}
}

func TestForHeaderAmbisonic(t *testing.T) {
	perm, layout, err := ForHeader(11, 2)
	require.NoError(t, err)
	assert.Nil(t, perm)
	assert.Equal(t, LayoutAmbisonic, layout.Kind)
	assert.Equal(t, 2, layout.Ambisonics.SphericalOrder())
	assert.Contains(t, layout.String(), "ambisonic")

	_, _, err = ForHeader(5, 3)
	assert.ErrorIs(t, err, ErrInvalidAmbisonicLayout)
}

func TestForHeaderErrors(t *testing.T) {
	_, _, err := ForHeader(9, 1)
	assert.ErrorIs(t, err, ErrUnsupportedChannelCount)

	_, _, err = ForHeader(2, 255)
	assert.ErrorIs(t, err, ErrUnsupportedFamily)
}

func TestPositionString(t *testing.T) {
	assert.Equal(t, "FL", PositionFrontLeft.String())
	assert.Equal(t, "FL|FR|FC", LayoutMask(3).String())
	assert.Equal(t, "none", Position(0).String())
}

package channels

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Permutation moves declared channel i to canonical slot p[i]. A nil
// Permutation is the identity.
type Permutation []int

// BuildPermutation compares the declared channel order with the canonical
// order restricted to mask and returns, for each declared channel, the
// canonical slot it belongs in. The first n entries of declared are used.
func BuildPermutation(declared []Position, mask Position, n int) (Permutation, error) {
	if n < 1 || len(declared) < n {
		return nil, fmt.Errorf("%w: %d channels, %d declared", ErrInvalidDeclaredOrder, n, len(declared))
	}

	slots := canonicalSlots(mask)
	if len(slots) != n {
		return nil, fmt.Errorf("%w: mask %s has %d positions, want %d",
			ErrInvalidDeclaredOrder, mask, len(slots), n)
	}

	index := make(map[Position]int, n)
	for i, pos := range slots {
		index[pos] = i
	}

	perm := make(Permutation, n)
	used := make([]bool, n)
	for i, pos := range declared[:n] {
		slot, ok := index[pos]
		if !ok {
			return nil, fmt.Errorf("%w: %s not in mask %s", ErrInvalidDeclaredOrder, pos, mask)
		}
		if used[slot] {
			return nil, fmt.Errorf("%w: %s declared twice", ErrInvalidDeclaredOrder, pos)
		}
		used[slot] = true
		perm[i] = slot
	}

	logrus.WithFields(logrus.Fields{
		"function":    "BuildPermutation",
		"channels":    n,
		"mask":        mask.String(),
		"permutation": []int(perm),
	}).Debug("Built channel permutation")

	return perm, nil
}

// Inverse returns the permutation that undoes p.
func (p Permutation) Inverse() Permutation {
	if p == nil {
		return nil
	}
	inv := make(Permutation, len(p))
	for i, slot := range p {
		inv[slot] = i
	}
	return inv
}

// IsIdentity reports whether p leaves every channel in place.
func (p Permutation) IsIdentity() bool {
	for i, slot := range p {
		if slot != i {
			return false
		}
	}
	return true
}

// Apply returns a copy of src with entry i moved to index p[i]. It is used
// on per-channel stream maps so that decoders write canonical order directly.
func (p Permutation) Apply(src []byte) []byte {
	dst := make([]byte, len(src))
	if p == nil || len(p) != len(src) {
		copy(dst, src)
		return dst
	}
	for i, slot := range p {
		dst[slot] = src[i]
	}
	return dst
}

// ApplyInterleaved reorders interleaved float samples in place so that the
// channel at declared index i ends up at canonical index p[i].
func (p Permutation) ApplyInterleaved(pcm []float32) {
	n := len(p)
	if n == 0 || p.IsIdentity() {
		return
	}
	frame := make([]float32, n)
	for off := 0; off+n <= len(pcm); off += n {
		for i, slot := range p {
			frame[slot] = pcm[off+i]
		}
		copy(pcm[off:off+n], frame)
	}
}

package audio

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Effect processes interleaved float samples in place.
type Effect interface {
	// Process applies the effect to samples.
	Process(samples []float32) error

	// Name returns a human-readable name for the effect.
	Name() string
}

// GainEffect multiplies every sample by a linear gain.
//
// Gain values: 0.0 = silence, 1.0 = no change, >1.0 = amplification.
// Float samples are not clipped; full-scale overs are counted and logged.
type GainEffect struct {
	gain float32
}

// NewGainEffect creates a gain effect from a linear multiplier.
//
// Parameters:
//   - gain: Linear gain multiplier (0.0 = silence, 1.0 = unity, 2.0 = +6dB)
//
// Returns:
//   - *GainEffect: New gain effect instance
//   - error: Validation error if gain is negative or not finite
func NewGainEffect(gain float64) (*GainEffect, error) {
	if gain < 0 || math.IsNaN(gain) || math.IsInf(gain, 0) {
		logrus.WithFields(logrus.Fields{
			"function": "NewGainEffect",
			"gain":     gain,
			"error":    "gain must be finite and non-negative",
		}).Error("Gain validation failed")
		return nil, fmt.Errorf("invalid gain: %f", gain)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewGainEffect",
		"gain":     gain,
	}).Debug("Gain effect created")

	return &GainEffect{gain: float32(gain)}, nil
}

// GainFromQ78 converts a Q7.8 dB gain to a linear multiplier,
// 10^(q/(20*256)).
func GainFromQ78(q int16) float64 {
	return math.Pow(10, float64(q)/5120)
}

// NewHeaderGainEffect creates a gain effect from a Q7.8 dB header gain.
func NewHeaderGainEffect(q int16) *GainEffect {
	// Any int16 yields a finite positive multiplier.
	return &GainEffect{gain: float32(GainFromQ78(q))}
}

// Gain returns the linear multiplier.
func (g *GainEffect) Gain() float64 {
	return float64(g.gain)
}

// IsUnity reports whether the effect leaves samples unchanged.
func (g *GainEffect) IsUnity() bool {
	return g.gain == 1
}

// Process implements Effect.
func (g *GainEffect) Process(samples []float32) error {
	if len(samples) == 0 || g.gain == 1 {
		return nil
	}

	overs := 0
	for i, s := range samples {
		v := s * g.gain
		if v > 1 || v < -1 {
			overs++
		}
		samples[i] = v
	}

	if overs > 0 {
		logrus.WithFields(logrus.Fields{
			"function":     "GainEffect.Process",
			"sample_count": len(samples),
			"gain":         g.gain,
			"overs":        overs,
		}).Debug("Gain pushed samples beyond full scale")
	}
	return nil
}

// Name implements Effect.
func (g *GainEffect) Name() string {
	return fmt.Sprintf("Gain(%.3f)", g.gain)
}

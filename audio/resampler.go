package audio

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Resampler converts interleaved float audio between sample rates.
//
// Uses linear interpolation, carrying the last input frame across calls so
// a stream can be resampled block by block without seams.
type Resampler struct {
	inputRate   int
	outputRate  int
	channels    int
	lastSamples []float32 // final input frame of the previous call
	position    float64   // next output position, in input frames of the current call
}

// ResamplerConfig holds configuration for creating a resampler.
type ResamplerConfig struct {
	InputRate  int // Input sample rate in Hz
	OutputRate int // Output sample rate in Hz
	Channels   int // Number of interleaved channels
}

// NewResampler creates a new audio resampler instance.
//
// Parameters:
//   - config: Resampler configuration
//
// Returns:
//   - *Resampler: New resampler instance
//   - error: Invalid rate or channel count
func NewResampler(config ResamplerConfig) (*Resampler, error) {
	if config.InputRate <= 0 || config.OutputRate <= 0 {
		logrus.WithFields(logrus.Fields{
			"function":    "NewResampler",
			"input_rate":  config.InputRate,
			"output_rate": config.OutputRate,
			"error":       "invalid sample rates",
		}).Error("Sample rate validation failed")
		return nil, fmt.Errorf("invalid sample rates: input=%d, output=%d", config.InputRate, config.OutputRate)
	}
	if config.Channels < 1 || config.Channels > 255 {
		logrus.WithFields(logrus.Fields{
			"function": "NewResampler",
			"channels": config.Channels,
			"error":    "unsupported channel count",
		}).Error("Channel count validation failed")
		return nil, fmt.Errorf("unsupported channel count: %d", config.Channels)
	}

	r := &Resampler{
		inputRate:   config.InputRate,
		outputRate:  config.OutputRate,
		channels:    config.Channels,
		lastSamples: make([]float32, config.Channels),
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewResampler",
		"input_rate":  r.inputRate,
		"output_rate": r.outputRate,
		"channels":    r.channels,
		"ratio":       float64(config.InputRate) / float64(config.OutputRate),
	}).Info("Audio resampler created successfully")

	return r, nil
}

// Resample converts a block of interleaved samples. The number of output
// frames per call varies by at most one from the ideal ratio; across a
// stream the totals match.
func (r *Resampler) Resample(input []float32) ([]float32, error) {
	if len(input)%r.channels != 0 {
		return nil, fmt.Errorf("input samples (%d) not aligned to channel count (%d)", len(input), r.channels)
	}
	if len(input) == 0 {
		return nil, nil
	}
	if r.inputRate == r.outputRate {
		out := make([]float32, len(input))
		copy(out, input)
		return out, nil
	}

	ratio := float64(r.inputRate) / float64(r.outputRate)
	inputFrames := len(input) / r.channels
	output := make([]float32, 0, r.CalculateOutputSize(len(input))+r.channels)

	// Index -1 is the last frame of the previous call; positions up to the
	// last input frame can be produced now.
	for r.position <= float64(inputFrames-1) {
		base := math.Floor(r.position)
		idx := int(base)
		frac := float32(r.position - base)
		for ch := 0; ch < r.channels; ch++ {
			a := r.sampleAt(input, idx, ch)
			if frac == 0 {
				output = append(output, a)
				continue
			}
			b := r.sampleAt(input, idx+1, ch)
			output = append(output, a*(1-frac)+b*frac)
		}
		r.position += ratio
	}

	r.position -= float64(inputFrames)
	copy(r.lastSamples, input[len(input)-r.channels:])

	logrus.WithFields(logrus.Fields{
		"function":      "Resample",
		"input_frames":  inputFrames,
		"output_frames": len(output) / r.channels,
		"position":      r.position,
	}).Debug("Resampled block")

	return output, nil
}

func (r *Resampler) sampleAt(input []float32, idx, ch int) float32 {
	if idx < 0 {
		return r.lastSamples[ch]
	}
	return input[idx*r.channels+ch]
}

// InputRate returns the configured input sample rate.
func (r *Resampler) InputRate() int {
	return r.inputRate
}

// OutputRate returns the configured output sample rate.
func (r *Resampler) OutputRate() int {
	return r.outputRate
}

// Channels returns the configured number of channels.
func (r *Resampler) Channels() int {
	return r.channels
}

// CalculateOutputSize estimates the output size in samples for an input
// size in samples.
func (r *Resampler) CalculateOutputSize(inputSize int) int {
	if r.inputRate == r.outputRate {
		return inputSize
	}
	frames := inputSize / r.channels
	outFrames := int(float64(frames)*float64(r.outputRate)/float64(r.inputRate) + 0.5)
	return outFrames * r.channels
}

// Reset clears the carried state, for a new stream or after a
// discontinuity.
func (r *Resampler) Reset() {
	logrus.WithFields(logrus.Fields{
		"function":     "Resampler.Reset",
		"old_position": r.position,
	}).Debug("Resetting resampler state")

	r.position = 0
	for i := range r.lastSamples {
		r.lastSamples[i] = 0
	}
}

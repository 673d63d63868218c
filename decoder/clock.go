package decoder

import (
	"time"

	"github.com/opd-ai/opustranscode/audio"
)

// SampleClock tracks the presentation time of the next output sample.
// Time is derived from a base timestamp plus a sample count, so advancing
// by many small frames never accumulates rounding error.
type SampleClock struct {
	rate    int
	base    time.Duration
	samples int64
	defined bool
}

// NewSampleClock returns an undefined clock counting at rate Hz.
func NewSampleClock(rate int) *SampleClock {
	return &SampleClock{rate: rate}
}

// Defined reports whether the clock has a baseline.
func (c *SampleClock) Defined() bool {
	return c.defined
}

// Set rebases the clock at t.
func (c *SampleClock) Set(t time.Duration) {
	c.base = t
	c.samples = 0
	c.defined = true
}

// Reset makes the clock undefined until the next Set.
func (c *SampleClock) Reset() {
	c.base = 0
	c.samples = 0
	c.defined = false
}

// Now returns the current time, or audio.NoTimestamp when undefined.
func (c *SampleClock) Now() time.Duration {
	if !c.defined {
		return audio.NoTimestamp
	}
	return c.base + audio.SamplesToDuration(int(c.samples), c.rate)
}

// Advance moves the clock forward by n samples and returns the new time.
func (c *SampleClock) Advance(n int) time.Duration {
	if !c.defined {
		return audio.NoTimestamp
	}
	c.samples += int64(n)
	return c.Now()
}

package encoder

// accumulator collects interleaved samples until a full frame is
// available. Start-of-stream silence is queued as padding and always
// enters the frame before any real samples.
type accumulator struct {
	channels  int
	frameSize int
	buf       []float32
	filled    int // samples per channel in buf
	real      int // of filled, samples that came from input
	padding   int // silence samples not yet in buf
}

func newAccumulator(channels, frameSize, padding int) *accumulator {
	return &accumulator{
		channels:  channels,
		frameSize: frameSize,
		buf:       make([]float32, channels*frameSize),
		padding:   padding,
	}
}

func (a *accumulator) space() int {
	return a.frameSize - a.filled
}

// pending returns the samples per channel that are buffered or queued.
func (a *accumulator) pending() int {
	return a.filled + a.padding
}

func (a *accumulator) full() bool {
	return a.filled == a.frameSize
}

// drainPadding moves queued silence into the frame and returns the
// number of samples moved.
func (a *accumulator) drainPadding() int {
	n := min(a.padding, a.space())
	clear(a.buf[a.filled*a.channels : (a.filled+n)*a.channels])
	a.filled += n
	a.padding -= n
	return n
}

// fill copies as much of src as fits and returns the samples per channel
// consumed. Queued padding must be drained first.
func (a *accumulator) fill(src []float32) int {
	if a.padding > 0 {
		return 0
	}
	n := min(len(src)/a.channels, a.space())
	copy(a.buf[a.filled*a.channels:], src[:n*a.channels])
	a.filled += n
	a.real += n
	return n
}

// padToFrame completes a partial frame with silence.
func (a *accumulator) padToFrame() {
	clear(a.buf[a.filled*a.channels:])
	a.filled = a.frameSize
}

// frame returns the buffered frame. Valid until the next call.
func (a *accumulator) frame() []float32 {
	return a.buf
}

// next empties the frame buffer. Queued padding is kept.
func (a *accumulator) next() {
	a.filled = 0
	a.real = 0
}

// reset empties the buffer and queues padding samples of silence.
func (a *accumulator) reset(padding int) {
	a.next()
	a.padding = padding
}

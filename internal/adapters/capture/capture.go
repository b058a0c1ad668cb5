// Package capture defines the contract for frame-delivery sources. The
// capture devices themselves live outside this core; this package carries
// the frame shape the motion detector and cadence profiler consume.
package capture

import (
	"sync"
)

// Default synthetic source configuration constants.
const (
	defaultBufferSize = 16
)

// Frame is a single delivered video frame as a luminance plane.
//
// Immutability contract: publishers must not modify Pix after emitting the
// frame; consumers get read-only access. Frames are shared by reference.
type Frame struct {
	// Pix holds one byte per pixel, row-major, Width*Height long.
	Pix []byte

	// Width of the frame in pixels.
	Width int

	// Height of the frame in pixels.
	Height int

	// DeliveredAt is the local monotonic time (ms) the frame reached the
	// consumer.
	DeliveredAt float64

	// CapturedAt is the hardware capture timestamp on the local monotonic
	// timeline (ms), when the source exposes one. Nil otherwise.
	CapturedAt *float64

	// Seq is a monotonically increasing sequence number assigned by the
	// source. Used for drop detection.
	Seq uint64
}

// Luma returns the luminance value at (x, y). The caller is responsible for
// bounds.
func (f Frame) Luma(x, y int) byte {
	return f.Pix[y*f.Width+x]
}

// Source delivers frames until closed.
type Source interface {
	// Frames returns the delivery channel. The channel is closed when the
	// source shuts down.
	Frames() <-chan Frame
}

// Option applies a configuration option to the Synthetic source.
type Option func(*Synthetic)

// WithBufferSize sets the delivery channel buffer.
func WithBufferSize(n int) Option {
	return func(s *Synthetic) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// Synthetic is an in-process frame source fed by calling Emit. It backs
// tests and cadence measurement without a real capture device.
type Synthetic struct {
	bufferSize int

	mu     sync.Mutex
	ch     chan Frame
	seq    uint64
	closed bool
}

// NewSynthetic creates a synthetic frame source.
func NewSynthetic(opts ...Option) *Synthetic {
	s := &Synthetic{
		bufferSize: defaultBufferSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.ch = make(chan Frame, s.bufferSize)
	return s
}

// Frames returns the delivery channel.
func (s *Synthetic) Frames() <-chan Frame {
	return s.ch
}

// Emit assigns the next sequence number and delivers the frame. Delivery is
// non-blocking; the frame is dropped when the buffer is full. Returns false
// on drop or after Close.
func (s *Synthetic) Emit(f Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.seq++
	f.Seq = s.seq
	select {
	case s.ch <- f:
		return true
	default:
		return false
	}
}

// Close shuts the source down and closes the delivery channel.
func (s *Synthetic) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// UniformFrame builds a frame filled with a single luminance value. Test
// and demo helper.
func UniformFrame(width, height int, value byte, deliveredAt float64) Frame {
	pix := make([]byte, width*height)
	for i := range pix {
		pix[i] = value
	}
	return Frame{Pix: pix, Width: width, Height: height, DeliveredAt: deliveredAt}
}

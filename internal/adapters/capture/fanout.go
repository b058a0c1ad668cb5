package capture

import (
	"context"
	"sync"

	"github.com/Areo-RGB/sprintgates/pkg/metrics"
)

// Fanout replicates one source's frames to every subscriber so independent
// consumers each see the full stream. A Source's channel supports a single
// receiver; handing it to two consumers splits the stream between them.
//
// Per-subscriber delivery is non-blocking: a consumer with a full buffer
// loses the frame without stalling the others.
type Fanout struct {
	src        Source
	bufferSize int

	mu     sync.Mutex
	subs   []chan Frame
	closed bool
}

// FanoutOption applies a configuration option to the Fanout.
type FanoutOption func(*Fanout)

// WithFanoutBuffer sets the per-subscriber channel buffer.
func WithFanoutBuffer(n int) FanoutOption {
	return func(f *Fanout) {
		if n > 0 {
			f.bufferSize = n
		}
	}
}

// NewFanout wraps a single-consumer source for multiple subscribers.
func NewFanout(src Source, opts ...FanoutOption) *Fanout {
	f := &Fanout{
		src:        src,
		bufferSize: defaultBufferSize,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Subscribe registers a consumer and returns its private source. A
// subscription taken after the fanout shut down yields an already-closed
// channel.
func (f *Fanout) Subscribe() Source {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan Frame, f.bufferSize)
	if f.closed {
		close(ch)
	} else {
		f.subs = append(f.subs, ch)
	}
	return subscription(ch)
}

// subscription adapts one fan-out channel to the Source contract.
type subscription <-chan Frame

func (s subscription) Frames() <-chan Frame { return s }

// Run forwards frames until the context is cancelled or the upstream
// channel closes, then closes every subscriber channel.
func (f *Fanout) Run(ctx context.Context) {
	defer f.close()

	frames := f.src.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			f.deliver(frame)
		}
	}
}

func (f *Fanout) deliver(frame Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs {
		select {
		case ch <- frame:
		default:
			metrics.RecordFrameDrop()
		}
	}
}

func (f *Fanout) close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}

// Package timesource defines the contract for querying a reference time
// source via round trips. The concrete wire protocol lives outside this
// core; implementations here are in-process.
package timesource

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/Areo-RGB/sprintgates/internal/timeutil"
)

// Default loopback configuration constants.
const (
	defaultMinLatency = 5 * time.Millisecond
	defaultMaxLatency = 25 * time.Millisecond
	defaultRandomSeed = 42
)

// Source returns the reference "now" in milliseconds. One call is one
// round trip; the call blocks for the full round-trip latency.
type Source interface {
	ReferenceNow(ctx context.Context) (float64, error)
}

// Echo is the reply of an asymmetric 4-timestamp exchange.
type Echo struct {
	ServerReceive    float64 // reference time the request arrived
	ServerSend       float64 // reference time the reply was sent
	EchoedClientSend float64 // client send time echoed back unchanged
}

// EchoSource performs the asymmetric 4-timestamp exchange. Sources that can
// also echo their own receive/send timestamps implement this in addition to
// Source.
type EchoSource interface {
	Exchange(ctx context.Context, clientSend float64) (Echo, error)
}

// Option applies a configuration option to the Loopback source.
type Option func(*Loopback)

// WithTrueOffset sets the simulated reference-minus-local offset in ms.
func WithTrueOffset(ms float64) Option {
	return func(l *Loopback) {
		l.trueOffset = ms
	}
}

// WithLatencyRange sets the simulated one-way latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(l *Loopback) {
		if minLatency > 0 && maxLatency > minLatency {
			l.minLatency = minLatency
			l.maxLatency = maxLatency
		}
	}
}

// WithSeed sets the random seed for deterministic latency simulation.
func WithSeed(seed int64) Option {
	return func(l *Loopback) {
		l.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic seed for reproducible testing
	}
}

// Loopback simulates a reachable reference time source whose clock runs a
// fixed offset ahead of the local monotonic timeline. Useful for tests and
// for running the engine without a peer.
type Loopback struct {
	clock      timeutil.Clock
	mono       *timeutil.Monotonic
	trueOffset float64
	minLatency time.Duration
	maxLatency time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLoopback creates a loopback source on the given clock and monotonic
// timeline.
func NewLoopback(clock timeutil.Clock, mono *timeutil.Monotonic, opts ...Option) *Loopback {
	l := &Loopback{
		clock:      clock,
		mono:       mono,
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible testing
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// ReferenceNow simulates one symmetric round trip: sleep the upload leg,
// sample the simulated reference clock, sleep the download leg.
func (l *Loopback) ReferenceNow(ctx context.Context) (float64, error) {
	if err := l.wait(ctx); err != nil {
		return 0, err
	}
	ref := l.mono.NowMs() + l.trueOffset
	if err := l.wait(ctx); err != nil {
		return 0, err
	}
	return ref, nil
}

// Exchange simulates the asymmetric 4-timestamp exchange.
func (l *Loopback) Exchange(ctx context.Context, clientSend float64) (Echo, error) {
	if err := l.wait(ctx); err != nil {
		return Echo{}, err
	}
	recv := l.mono.NowMs() + l.trueOffset
	send := l.mono.NowMs() + l.trueOffset
	if err := l.wait(ctx); err != nil {
		return Echo{}, err
	}
	return Echo{
		ServerReceive:    recv,
		ServerSend:       send,
		EchoedClientSend: clientSend,
	}, nil
}

// wait blocks for one simulated one-way latency leg.
func (l *Loopback) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("time source probe cancelled: %w", err)
	}
	l.mu.Lock()
	latency := l.minLatency + time.Duration(l.rng.Int63n(int64(l.maxLatency-l.minLatency)))
	l.mu.Unlock()
	l.clock.Sleep(latency)
	return nil
}

// Package race windows the corrected gate event stream into races and
// derives per-segment timing, velocity, and acceleration.
//
// The aggregator keeps an append-only event log and derives windows on
// read: events are sorted by unified timestamp and sliced into consecutive
// fixed-size chunks of the configured gate count. Arrival order is never
// trusted; network jitter may reorder it.
package race

import (
	"context"
	"sort"
	"sync"

	"github.com/Areo-RGB/sprintgates/internal/domain/model"
	"github.com/Areo-RGB/sprintgates/pkg/logger"
	"github.com/Areo-RGB/sprintgates/pkg/metrics"
)

// Default aggregator configuration constants.
const (
	defaultGateCount = 2
	minGateCount     = 2
	msPerSecond      = 1000.0
)

// Split is one gate crossing inside a race, with metrics derived against
// the previous crossing. Velocity and acceleration are only present when
// the distance configuration covers the segment.
type Split struct {
	Timestamp       float64 // unified ms
	Delta           float64 // ms since the previous crossing; 0 at the start line
	Velocity        float64 // m/s over the segment ending here
	HasVelocity     bool
	Acceleration    float64 // m/s² change across this segment
	HasAcceleration bool
}

// Race is a derived, non-stored view of one window of consecutive events.
type Race struct {
	Ordinal  int // position in chronological window order, 0-based
	Events   []model.GateEvent
	Splits   []Split
	Complete bool
	Elapsed  float64 // ms; live (now - first) while in progress
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithGateCount sets the initial number of gates forming one race.
func WithGateCount(n int) Option {
	return func(a *Aggregator) {
		if n >= minGateCount {
			a.gateCount = n
		}
	}
}

// WithDistances sets the initial distance configuration.
func WithDistances(d model.DistanceConfig) Option {
	return func(a *Aggregator) {
		a.distances = append(model.DistanceConfig(nil), d...)
	}
}

// WithLogger sets a custom logger for the aggregator.
func WithLogger(log logger.Logger) Option {
	return func(a *Aggregator) {
		if log != nil {
			a.log = log
		}
	}
}

// Aggregator owns the append-only gate event log. Events are appended from
// one producer path and read-derived into windows; stored events are never
// mutated.
type Aggregator struct {
	log logger.Logger

	mu        sync.RWMutex
	gateCount int
	distances model.DistanceConfig
	events    []model.GateEvent
}

// New creates an Aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		log:       logger.Get().Named("race"),
		gateCount: defaultGateCount,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Append adds a corrected event to the log in arrival order.
func (a *Aggregator) Append(e model.GateEvent) {
	a.mu.Lock()
	a.events = append(a.events, e)
	n := len(a.events)
	a.mu.Unlock()

	metrics.RecordEventAppended()
	metrics.UpdateEventLogSize(n)
}

// Clear atomically empties the event log.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.events = nil
	a.mu.Unlock()

	metrics.UpdateEventLogSize(0)
}

// SetGateCount changes the race size. Windows of mixed sizes must never
// coexist, so the existing log is cleared.
func (a *Aggregator) SetGateCount(ctx context.Context, n int) error {
	if n < minGateCount {
		return ErrInvalidGateCount
	}

	a.mu.Lock()
	a.gateCount = n
	a.events = nil
	a.mu.Unlock()

	metrics.UpdateEventLogSize(0)
	a.log.Info(ctx, "gate count changed; event log cleared", logger.Int("gates", n))
	return nil
}

// GateCount returns the current race size.
func (a *Aggregator) GateCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.gateCount
}

// SetDistances replaces the distance configuration. Derived windows are
// unaffected; only velocity and acceleration reporting changes.
func (a *Aggregator) SetDistances(d model.DistanceConfig) {
	a.mu.Lock()
	a.distances = append(model.DistanceConfig(nil), d...)
	a.mu.Unlock()
}

// Events returns a copy of the log in arrival order.
func (a *Aggregator) Events() []model.GateEvent {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]model.GateEvent(nil), a.events...)
}

// Races derives the current windows. nowUnified feeds the live elapsed
// time of the one in-progress race, if any.
func (a *Aggregator) Races(nowUnified float64) []Race {
	a.mu.RLock()
	sorted := append([]model.GateEvent(nil), a.events...)
	gateCount := a.gateCount
	distances := a.distances
	a.mu.RUnlock()

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	var races []Race
	for start := 0; start < len(sorted); start += gateCount {
		end := start + gateCount
		if end > len(sorted) {
			end = len(sorted)
		}
		window := sorted[start:end]
		complete := len(window) == gateCount

		elapsed := nowUnified - window[0].Timestamp
		if complete {
			elapsed = window[len(window)-1].Timestamp - window[0].Timestamp
		}

		races = append(races, Race{
			Ordinal:  len(races),
			Events:   window,
			Splits:   deriveSplits(window, distances),
			Complete: complete,
			Elapsed:  elapsed,
		})
	}

	metrics.UpdateRacesDerived(len(races))
	return races
}

// deriveSplits computes per-crossing deltas and, when distances cover the
// segments, velocity and acceleration. The start line has velocity 0 by
// definition; segments missing a distance value report their metrics as
// unavailable rather than a computed-but-meaningless number.
func deriveSplits(window []model.GateEvent, distances model.DistanceConfig) []Split {
	splits := make([]Split, len(window))
	haveDistances := len(distances) > 0

	prevVelocity := 0.0
	prevVelocityOK := haveDistances
	for i, e := range window {
		s := Split{Timestamp: e.Timestamp}
		if i == 0 {
			if haveDistances {
				s.Velocity = 0
				s.HasVelocity = true
			}
			splits[i] = s
			continue
		}

		s.Delta = e.Timestamp - window[i-1].Timestamp
		dtSec := s.Delta / msPerSecond

		dCur, okCur := distances.GateDistance(i)
		dPrev, okPrev := distances.GateDistance(i - 1)
		if haveDistances && okCur && okPrev && dtSec > 0 {
			s.Velocity = (dCur - dPrev) / dtSec
			s.HasVelocity = true
			if prevVelocityOK {
				s.Acceleration = (s.Velocity - prevVelocity) / dtSec
				s.HasAcceleration = true
			}
			prevVelocity = s.Velocity
			prevVelocityOK = true
		} else {
			prevVelocityOK = false
		}
		splits[i] = s
	}
	return splits
}

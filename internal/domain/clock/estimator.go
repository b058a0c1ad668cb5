// Package clock maintains the offset between the local monotonic timeline
// and a reference time source.
//
// The estimator owns the single ClockOffset scalar: unified time is local
// monotonic time plus this offset. Updates go through exactly two paths,
// the startup burst (plain mean, no smoothing) and the periodic drift
// correction (outlier-filtered, clamped, EMA-smoothed). Consumers read
// snapshots, never a live reference.
package clock

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/Areo-RGB/sprintgates/internal/adapters/timesource"
	"github.com/Areo-RGB/sprintgates/internal/domain/model"
	"github.com/Areo-RGB/sprintgates/internal/timeutil"
	"github.com/Areo-RGB/sprintgates/pkg/logger"
	"github.com/Areo-RGB/sprintgates/pkg/metrics"
)

// Default estimator configuration constants.
const (
	defaultStartupSamples   = 5
	defaultStartupSpacing   = 100 * time.Millisecond
	defaultSyncSamples      = 5
	defaultSyncSpacing      = 50 * time.Millisecond
	defaultSyncInterval     = 30 * time.Second
	defaultRTTOutlierMS     = 200
	defaultEchoRTTOutlierMS = 500
	defaultMaxCorrectionMS  = 50
	defaultSmoothingAlpha   = 0.3
)

// Estimator turns round-trip probes into a smoothed, outlier-resistant
// clock offset. Single writer: all mutation happens on the goroutine that
// holds the busy flag, so "now" never regresses by more than the clamp in
// one correction step.
type Estimator struct {
	source timesource.Source
	echo   timesource.EchoSource
	clock  timeutil.Clock
	mono   *timeutil.Monotonic
	log    logger.Logger

	startupSamples int
	startupSpacing time.Duration
	syncSamples    int
	syncSpacing    time.Duration
	syncInterval   time.Duration
	rttOutlier     float64
	echoRTTOutlier float64
	maxCorrection  float64
	alpha          float64

	mu          sync.RWMutex
	offset      float64
	initialized bool

	syncing atomic.Bool
	closed  atomic.Bool
}

// New creates an Estimator probing the given source on the given clock.
func New(src timesource.Source, clk timeutil.Clock, mono *timeutil.Monotonic, opts ...Option) *Estimator {
	e := &Estimator{
		source:         src,
		clock:          clk,
		mono:           mono,
		log:            logger.Get().Named("clock"),
		startupSamples: defaultStartupSamples,
		startupSpacing: defaultStartupSpacing,
		syncSamples:    defaultSyncSamples,
		syncSpacing:    defaultSyncSpacing,
		syncInterval:   defaultSyncInterval,
		rttOutlier:     defaultRTTOutlierMS,
		echoRTTOutlier: defaultEchoRTTOutlierMS,
		maxCorrection:  defaultMaxCorrectionMS,
		alpha:          defaultSmoothingAlpha,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Offset returns the current offset snapshot in ms.
func (e *Estimator) Offset() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.offset
}

// Initialized reports whether the startup burst has produced an offset.
func (e *Estimator) Initialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}

// collectSample performs one symmetric round trip.
func (e *Estimator) collectSample(ctx context.Context) (model.ClockSample, error) {
	send := e.mono.NowMs()
	ref, err := e.source.ReferenceNow(ctx)
	if err != nil {
		return model.ClockSample{}, err
	}
	recv := e.mono.NowMs()
	s := model.ClockSample{
		LocalSend:     send,
		LocalReceive:  recv,
		ReferenceTime: ref,
		RTT:           recv - send,
	}
	metrics.RecordRoundTrip(s.RTT)
	return s, nil
}

// collectBurst gathers up to n samples spaced apart, skipping transient
// probe failures.
func (e *Estimator) collectBurst(ctx context.Context, n int, spacing time.Duration) []model.ClockSample {
	samples := make([]model.ClockSample, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			e.clock.Sleep(spacing)
		}
		if ctx.Err() != nil {
			break
		}
		s, err := e.collectSample(ctx)
		if err != nil {
			e.log.Debug(ctx, "probe failed", logger.Int("probe", i), logger.Error(err))
			continue
		}
		samples = append(samples, s)
	}
	return samples
}

// Startup runs the initial burst on first reachability of the reference
// source and sets the offset to the plain mean of the per-sample estimates.
// There is no prior estimate to protect, so no smoothing is applied.
func (e *Estimator) Startup(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}

	samples := e.collectBurst(ctx, e.startupSamples, e.startupSpacing)
	if len(samples) == 0 {
		// Reference source unreachable: offset stays at its default and
		// events flow uncompensated.
		e.log.Warn(ctx, "startup burst yielded no samples; offset stays at default")
		return ErrNoValidSamples
	}

	estimates := make([]float64, len(samples))
	for i, s := range samples {
		estimates[i] = s.EstimatedOffset()
	}
	mean := stat.Mean(estimates, nil)

	e.mu.Lock()
	if !e.closed.Load() {
		e.offset = mean
		e.initialized = true
	}
	e.mu.Unlock()

	metrics.UpdateClockOffset(mean)
	e.log.Info(ctx, "startup offset established",
		logger.Float64("offset_ms", mean),
		logger.Int("samples", len(samples)),
	)
	return nil
}

// Sync runs one drift correction cycle and returns the offset after it.
//
// The cycle collects a short burst, rejects congested samples (RTT above
// the outlier bound invalidates the symmetric-latency assumption), picks
// the lowest-RTT survivor as the tightest latency bound, clamps the raw
// correction, and folds it in with EMA smoothing. A cycle already in
// flight makes this call a no-op on the unmodified current offset.
func (e *Estimator) Sync(ctx context.Context) (float64, error) {
	if e.closed.Load() {
		return e.Offset(), ErrClosed
	}
	if !e.syncing.CompareAndSwap(false, true) {
		metrics.RecordSyncSkipped()
		return e.Offset(), ErrSyncInFlight
	}
	defer e.syncing.Store(false)

	samples := e.collectBurst(ctx, e.syncSamples, e.syncSpacing)
	best, ok := e.bestSample(samples)
	if !ok {
		metrics.RecordSyncFailure()
		e.log.Warn(ctx, "sync cycle yielded no valid samples; offset unchanged")
		return e.Offset(), ErrNoValidSamples
	}

	// A probe completing after teardown must not resurrect the estimator.
	if e.closed.Load() {
		return e.Offset(), ErrClosed
	}

	e.mu.Lock()
	raw := best.EstimatedOffset() - e.offset
	clamped := clamp(raw, e.maxCorrection)
	e.offset += clamped * e.alpha
	newOffset := e.offset
	e.mu.Unlock()

	metrics.RecordSyncCycle()
	metrics.RecordCorrection(clamped * e.alpha)
	metrics.UpdateClockOffset(newOffset)
	e.log.Debug(ctx, "drift correction applied",
		logger.Float64("raw_ms", raw),
		logger.Float64("applied_ms", clamped*e.alpha),
		logger.Float64("offset_ms", newOffset),
		logger.Float64("best_rtt_ms", best.RTT),
	)
	return newOffset, nil
}

// bestSample filters outliers and returns the lowest-RTT survivor.
func (e *Estimator) bestSample(samples []model.ClockSample) (model.ClockSample, bool) {
	var best model.ClockSample
	found := false
	for _, s := range samples {
		if s.RTT > e.rttOutlier {
			metrics.RecordSampleRejected()
			continue
		}
		if !found || s.RTT < best.RTT {
			best = s
			found = true
		}
	}
	return best, found
}

// Run drives the periodic drift correction loop until ctx is cancelled.
// The first cycle fires after one full interval so it does not overlap the
// startup burst.
func (e *Estimator) Run(ctx context.Context) {
	ticker := e.clock.NewTicker(e.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if _, err := e.Sync(ctx); err != nil {
				e.log.Debug(ctx, "sync cycle incomplete", logger.Error(err))
			}
		}
	}
}

// Close tears the estimator down. In-flight probes that cannot be
// cancelled are ignored on completion.
func (e *Estimator) Close() {
	e.closed.Store(true)
}

// clamp bounds v to [-limit, limit].
func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}

// Package calibration measures local timing characteristics and publishes
// CalibrationStats snapshots.
//
// A calibration run combines the network offset measurement with a local
// scheduler jitter measurement, and optionally a capture cadence
// measurement when a frame source is supplied. The run never fails to its
// caller: sub-measurement failures are logged and the prior (or default)
// value is retained.
package calibration

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/Areo-RGB/sprintgates/internal/adapters/capture"
	clocksync "github.com/Areo-RGB/sprintgates/internal/domain/clock"
	"github.com/Areo-RGB/sprintgates/internal/domain/model"
	"github.com/Areo-RGB/sprintgates/internal/timeutil"
	"github.com/Areo-RGB/sprintgates/pkg/logger"
	"github.com/Areo-RGB/sprintgates/pkg/metrics"
)

// Default profiler configuration constants.
const (
	defaultJitterSamples = 50
	defaultJitterWait    = 10 * time.Millisecond
	defaultCadenceWindow = time.Second
	msPerSecond          = 1000.0
)

// Profiler runs calibration and holds the latest stats snapshot.
// Single-writer: only Calibrate replaces the snapshot; readers get copies.
type Profiler struct {
	estimator *clocksync.Estimator
	clock     timeutil.Clock
	mono      *timeutil.Monotonic
	log       logger.Logger

	jitterSamples int
	jitterWait    time.Duration
	cadenceWindow time.Duration
	source        capture.Source

	mu    sync.RWMutex
	stats model.CalibrationStats
}

// Option applies a configuration option to the Profiler.
type Option func(*Profiler)

// WithJitterProfile configures the jitter measurement burst.
func WithJitterProfile(samples int, wait time.Duration) Option {
	return func(p *Profiler) {
		if samples > 0 {
			p.jitterSamples = samples
		}
		if wait > 0 {
			p.jitterWait = wait
		}
	}
}

// WithCadenceWindow sets the wall-time window for frame rate measurement.
func WithCadenceWindow(window time.Duration) Option {
	return func(p *Profiler) {
		if window > 0 {
			p.cadenceWindow = window
		}
	}
}

// WithCaptureSource supplies a frame source for cadence measurement.
// Without one the cadence step is skipped.
func WithCaptureSource(src capture.Source) Option {
	return func(p *Profiler) {
		p.source = src
	}
}

// WithLogger sets a custom logger for the profiler.
func WithLogger(log logger.Logger) Option {
	return func(p *Profiler) {
		if log != nil {
			p.log = log
		}
	}
}

// New creates a Profiler bound to an offset estimator.
func New(est *clocksync.Estimator, clk timeutil.Clock, mono *timeutil.Monotonic, opts ...Option) *Profiler {
	p := &Profiler{
		estimator:     est,
		clock:         clk,
		mono:          mono,
		log:           logger.Get().Named("calibration"),
		jitterSamples: defaultJitterSamples,
		jitterWait:    defaultJitterWait,
		cadenceWindow: defaultCadenceWindow,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Stats returns the current calibration snapshot.
func (p *Profiler) Stats() model.CalibrationStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// MeasureJitter schedules fixed waits and measures how far the scheduler
// overshoots each one. The mean overshoot is the system lag that inflates
// every timestamp taken "now"; the standard deviation is reported as
// jitter.
func (p *Profiler) MeasureJitter(ctx context.Context) (lag, stddev float64, err error) {
	overshoots := make([]float64, 0, p.jitterSamples)
	want := timeutil.Ms(p.jitterWait)
	for i := 0; i < p.jitterSamples; i++ {
		if ctx.Err() != nil {
			return 0, 0, ctx.Err()
		}
		before := p.mono.NowMs()
		p.clock.Sleep(p.jitterWait)
		overshoots = append(overshoots, p.mono.NowMs()-before-want)
	}
	if len(overshoots) == 0 {
		return 0, 0, ErrNoSamples
	}
	return stat.Mean(overshoots, nil), stat.StdDev(overshoots, nil), nil
}

// MeasureCadence counts frames delivered during one wall-time window and
// derives the frame rate and frame duration. FrameDuration is used as a
// statistical latency estimate (half a frame period) for sources without a
// hardware capture timestamp.
func (p *Profiler) MeasureCadence(ctx context.Context, src capture.Source) (rate, frameDuration float64, err error) {
	if src == nil {
		return 0, 0, ErrNoCaptureSource
	}
	deadline := p.clock.NewTimer(p.cadenceWindow)
	defer deadline.Stop()

	count := 0
	frames := src.Frames()
	for {
		// Drain already-delivered frames before checking the deadline so a
		// burst arriving just before the window closes is still counted.
		select {
		case _, ok := <-frames:
			if !ok {
				return 0, 0, ErrNoFrames
			}
			count++
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		case <-deadline.C():
			if count == 0 {
				return 0, 0, ErrNoFrames
			}
			rate = float64(count) / p.cadenceWindow.Seconds()
			return rate, msPerSecond / rate, nil
		case _, ok := <-frames:
			if !ok {
				return 0, 0, ErrNoFrames
			}
			count++
		}
	}
}

// Calibrate runs a full calibration pass and atomically publishes one new
// stats snapshot. Offset and jitter are measured concurrently; cadence
// runs afterwards when a capture source is available. Failures are
// absorbed: the affected fields keep their previous values and the run
// still publishes.
func (p *Profiler) Calibrate(ctx context.Context) model.CalibrationStats {
	next := p.Stats()

	var wg sync.WaitGroup
	var latencies clocksync.Latencies
	var latErr error
	var lag, stddev float64
	var jitterErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		if !p.estimator.Initialized() {
			if err := p.estimator.Startup(ctx); err != nil {
				latErr = err
				return
			}
		}
		latencies, latErr = p.estimator.MeasureLatencies(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		lag, stddev, jitterErr = p.MeasureJitter(ctx)
	}()

	wg.Wait()

	if latErr != nil {
		p.log.Warn(ctx, "network measurement failed; keeping previous values", logger.Error(latErr))
	} else {
		next.RTT = latencies.RTT
		next.UploadLatency = latencies.Upload
		next.DownloadLatency = latencies.Download
	}
	next.Offset = p.estimator.Offset()

	if jitterErr != nil {
		p.log.Warn(ctx, "jitter measurement failed; keeping previous values", logger.Error(jitterErr))
	} else {
		next.SystemLag = lag
		next.JitterStdDev = stddev
		metrics.UpdateSystemLag(lag)
		metrics.UpdateJitterStdDev(stddev)
	}

	if p.source != nil {
		rate, frameDuration, err := p.MeasureCadence(ctx, p.source)
		if err != nil {
			p.log.Warn(ctx, "cadence measurement failed; keeping previous values", logger.Error(err))
		} else {
			next.FrameRate = rate
			next.FrameDuration = frameDuration
			metrics.UpdateFrameRate(rate)
		}
	}

	// Calibration requires a reachable reference source at least once; a
	// run without one leaves the device uncalibrated and events flow with
	// uncompensated timestamps.
	next.Calibrated = p.estimator.Initialized()

	p.mu.Lock()
	p.stats = next
	p.mu.Unlock()

	metrics.RecordCalibrationRun()
	p.log.Info(ctx, "calibration run published",
		logger.Bool("calibrated", next.Calibrated),
		logger.Float64("offset_ms", next.Offset),
		logger.Float64("system_lag_ms", next.SystemLag),
		logger.Float64("frame_rate", next.FrameRate),
	)
	return next
}

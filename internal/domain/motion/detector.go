// Package motion detects gate crossings by watching a vertical tripwire
// strip at the center of a frame stream.
//
// The detector knows nothing about races or clock offsets: it emits raw
// triggers with latency metadata, fire-and-forget, into a sink.
package motion

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/Areo-RGB/sprintgates/internal/adapters/capture"
	"github.com/Areo-RGB/sprintgates/internal/domain/model"
	"github.com/Areo-RGB/sprintgates/internal/timeutil"
	"github.com/Areo-RGB/sprintgates/pkg/logger"
	"github.com/Areo-RGB/sprintgates/pkg/metrics"
)

// Default detector configuration constants.
const (
	defaultThreshold     = 25.0
	defaultCooldown      = 2 * time.Second
	defaultTripwireWidth = 10
)

// Sink receives emitted triggers. Enqueue must not block; a false return
// means the trigger was dropped.
type Sink interface {
	Enqueue(ctx context.Context, t model.RawTrigger) bool
}

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithThreshold sets the mean-absolute-difference sensitivity threshold.
func WithThreshold(threshold float64) Option {
	return func(d *Detector) {
		if threshold > 0 {
			d.threshold = threshold
		}
	}
}

// WithCooldown sets the minimum local time between accepted triggers.
func WithCooldown(cooldown time.Duration) Option {
	return func(d *Detector) {
		if cooldown > 0 {
			d.cooldown = cooldown
		}
	}
}

// WithTripwireWidth sets the width in pixels of the monitored strip.
func WithTripwireWidth(width int) Option {
	return func(d *Detector) {
		if width > 0 {
			d.stripWidth = width
		}
	}
}

// WithLogger sets a custom logger for the detector.
func WithLogger(log logger.Logger) Option {
	return func(d *Detector) {
		if log != nil {
			d.log = log
		}
	}
}

// Detector computes per-frame motion energy in the tripwire region and
// emits triggers when it crosses the threshold.
type Detector struct {
	sink Sink
	mono *timeutil.Monotonic
	log  logger.Logger

	threshold  float64
	cooldown   time.Duration
	stripWidth int

	mu          sync.Mutex
	armed       bool
	prev        *capture.Frame
	lastTrigger float64
}

// New creates a Detector emitting into the given sink.
func New(sink Sink, mono *timeutil.Monotonic, opts ...Option) *Detector {
	d := &Detector{
		sink:        sink,
		mono:        mono,
		log:         logger.Get().Named("motion"),
		threshold:   defaultThreshold,
		cooldown:    defaultCooldown,
		stripWidth:  defaultTripwireWidth,
		lastTrigger: math.Inf(-1),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Arm enables trigger emission.
func (d *Detector) Arm() {
	d.mu.Lock()
	d.armed = true
	d.mu.Unlock()
}

// Disarm disables trigger emission. Frames keep flowing so the previous
// frame stays warm.
func (d *Detector) Disarm() {
	d.mu.Lock()
	d.armed = false
	d.mu.Unlock()
}

// Armed reports whether the detector is armed.
func (d *Detector) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

// Run consumes the frame source until ctx is cancelled or the source
// closes.
func (d *Detector) Run(ctx context.Context, src capture.Source) {
	frames := src.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			d.Process(ctx, f)
		}
	}
}

// Process handles one delivered frame and reports whether it fired a
// trigger.
func (d *Detector) Process(ctx context.Context, f capture.Frame) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A frame with no pixels cannot be differenced; the strip mean would
	// divide by zero.
	if f.Width <= 0 || f.Height <= 0 {
		return false
	}

	// Dimensions are part of the comparison's validity: a resize
	// invalidates the stored frame.
	if d.prev != nil && (d.prev.Width != f.Width || d.prev.Height != f.Height) {
		d.prev = nil
	}
	if d.prev == nil {
		d.prev = &f
		return false
	}

	started := d.mono.NowMs()
	delta := d.tripwireDelta(*d.prev, f)
	processing := d.mono.NowMs() - started
	d.prev = &f

	if !d.armed || delta <= d.threshold {
		return false
	}
	if f.DeliveredAt-d.lastTrigger < timeutil.Ms(d.cooldown) {
		metrics.RecordTriggerSuppressed()
		return false
	}
	d.lastTrigger = f.DeliveredAt

	meta := &model.MotionMetadata{ProcessingLatency: processing}
	if f.CapturedAt != nil {
		lat := f.DeliveredAt - *f.CapturedAt
		meta.CameraLatency = &lat
	}
	trigger := model.RawTrigger{
		Source:    model.SourceMotion,
		LocalTime: f.DeliveredAt,
		Meta:      meta,
	}
	if !d.sink.Enqueue(ctx, trigger) {
		d.log.Warn(ctx, "trigger dropped by sink", logger.Float64("delta", delta))
		return false
	}
	metrics.RecordTrigger(string(model.SourceMotion))
	d.log.Debug(ctx, "motion trigger emitted",
		logger.Float64("delta", delta),
		logger.Float64("local_ms", f.DeliveredAt),
	)
	return true
}

// tripwireDelta computes the mean absolute luminance difference over the
// fixed-width strip at the horizontal center of both frames.
func (d *Detector) tripwireDelta(prev, cur capture.Frame) float64 {
	width := d.stripWidth
	if width > cur.Width {
		width = cur.Width
	}
	x0 := (cur.Width - width) / 2

	var sum float64
	for y := 0; y < cur.Height; y++ {
		for x := x0; x < x0+width; x++ {
			diff := int(cur.Luma(x, y)) - int(prev.Luma(x, y))
			if diff < 0 {
				diff = -diff
			}
			sum += float64(diff)
		}
	}
	return sum / float64(width*cur.Height)
}

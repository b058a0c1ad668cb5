package clock

import (
	"time"

	"github.com/Areo-RGB/sprintgates/internal/adapters/timesource"
	"github.com/Areo-RGB/sprintgates/pkg/logger"
)

// Option applies a configuration option to the Estimator.
type Option func(*Estimator)

// WithEchoSource supplies an asymmetric 4-timestamp exchange source. When
// present it takes priority over the symmetric method for latency
// measurement.
func WithEchoSource(src timesource.EchoSource) Option {
	return func(e *Estimator) {
		e.echo = src
	}
}

// WithStartupBurst configures the startup burst sample count and spacing.
func WithStartupBurst(samples int, spacing time.Duration) Option {
	return func(e *Estimator) {
		if samples > 0 {
			e.startupSamples = samples
		}
		if spacing > 0 {
			e.startupSpacing = spacing
		}
	}
}

// WithSyncBurst configures the periodic correction sample count and spacing.
func WithSyncBurst(samples int, spacing time.Duration) Option {
	return func(e *Estimator) {
		if samples > 0 {
			e.syncSamples = samples
		}
		if spacing > 0 {
			e.syncSpacing = spacing
		}
	}
}

// WithSyncInterval sets the period of the drift correction loop.
func WithSyncInterval(interval time.Duration) Option {
	return func(e *Estimator) {
		if interval > 0 {
			e.syncInterval = interval
		}
	}
}

// WithRTTOutlier sets the symmetric-sample RTT rejection bound in ms.
func WithRTTOutlier(ms float64) Option {
	return func(e *Estimator) {
		if ms > 0 {
			e.rttOutlier = ms
		}
	}
}

// WithEchoRTTOutlier sets the asymmetric-sample RTT rejection bound in ms.
func WithEchoRTTOutlier(ms float64) Option {
	return func(e *Estimator) {
		if ms > 0 {
			e.echoRTTOutlier = ms
		}
	}
}

// WithMaxCorrection sets the per-cycle correction clamp in ms.
func WithMaxCorrection(ms float64) Option {
	return func(e *Estimator) {
		if ms > 0 {
			e.maxCorrection = ms
		}
	}
}

// WithSmoothingAlpha sets the EMA factor applied to clamped corrections.
func WithSmoothingAlpha(alpha float64) Option {
	return func(e *Estimator) {
		if alpha > 0 && alpha <= 1 {
			e.alpha = alpha
		}
	}
}

// WithLogger sets a custom logger for the estimator.
func WithLogger(log logger.Logger) Option {
	return func(e *Estimator) {
		if log != nil {
			e.log = log
		}
	}
}

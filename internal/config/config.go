// Package config defines engine configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"time"
)

// Config contains process configuration. Durations use Go duration syntax in
// YAML/env (e.g. "30s", "50ms").
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the metrics HTTP listen address, e.g. ":9090".
	Addr string `koanf:"addr"`

	// SyncInterval is the period of the drift correction loop.
	SyncInterval time.Duration `koanf:"sync_interval"`

	// StartupSamples is the number of round trips in the startup burst.
	StartupSamples int `koanf:"startup_samples"`

	// StartupSpacing is the delay between startup burst probes.
	StartupSpacing time.Duration `koanf:"startup_spacing"`

	// SyncSamples is the number of round trips per drift correction cycle.
	SyncSamples int `koanf:"sync_samples"`

	// SyncSpacing is the delay between drift correction probes.
	SyncSpacing time.Duration `koanf:"sync_spacing"`

	// RTTOutlierMS rejects symmetric samples whose RTT exceeds this bound.
	RTTOutlierMS float64 `koanf:"rtt_outlier_ms"`

	// EchoRTTOutlierMS rejects asymmetric (4-timestamp) samples whose RTT
	// exceeds this bound.
	EchoRTTOutlierMS float64 `koanf:"echo_rtt_outlier_ms"`

	// MaxCorrectionMS clamps the per-cycle offset correction.
	MaxCorrectionMS float64 `koanf:"max_correction_ms"`

	// SmoothingAlpha is the EMA factor applied to clamped corrections.
	SmoothingAlpha float64 `koanf:"smoothing_alpha"`

	// JitterSamples is the number of scheduled waits in a jitter measurement.
	JitterSamples int `koanf:"jitter_samples"`

	// JitterWait is the nominal duration of each scheduled wait.
	JitterWait time.Duration `koanf:"jitter_wait"`

	// CadenceWindow is the wall-time window for frame rate measurement.
	CadenceWindow time.Duration `koanf:"cadence_window"`

	// TriggerCooldown is the minimum local time between accepted motion
	// triggers.
	TriggerCooldown time.Duration `koanf:"trigger_cooldown"`

	// MotionThreshold is the tripwire mean-absolute-difference threshold.
	MotionThreshold float64 `koanf:"motion_threshold"`

	// TripwireWidth is the width in pixels of the monitored strip.
	TripwireWidth int `koanf:"tripwire_width"`

	// GateCount is the number of gate events forming one race.
	GateCount int `koanf:"gate_count"`

	// QueueSize bounds the in-memory raw trigger queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of compensation workers.
	WorkerCount int `koanf:"worker_count"`

	// Distances holds per-gate cumulative distances in meters; index i is
	// the distance at gate i+1 (gate 0 is the start). Optional.
	Distances []float64 `koanf:"distances"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":9090",
		SyncInterval:     30 * time.Second,
		StartupSamples:   5,
		StartupSpacing:   100 * time.Millisecond,
		SyncSamples:      5,
		SyncSpacing:      50 * time.Millisecond,
		RTTOutlierMS:     200,
		EchoRTTOutlierMS: 500,
		MaxCorrectionMS:  50,
		SmoothingAlpha:   0.3,
		JitterSamples:    50,
		JitterWait:       10 * time.Millisecond,
		CadenceWindow:    time.Second,
		TriggerCooldown:  2 * time.Second,
		MotionThreshold:  25,
		TripwireWidth:    10,
		GateCount:        2,
		QueueSize:        1024,
		WorkerCount:      2,
	}
}

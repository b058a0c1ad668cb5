// Package metrics provides Prometheus metrics for the sprintgates timing engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the timing engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Clock synchronization metrics.
	clockOffsetMs        prometheus.Gauge
	syncCycles           prometheus.Counter
	syncCyclesSkipped    prometheus.Counter
	syncFailures         prometheus.Counter
	samplesRejected      prometheus.Counter
	correctionMagnitude  prometheus.Histogram
	roundTripTime        prometheus.Histogram

	// Calibration metrics.
	calibrationRuns prometheus.Counter
	systemLagMs     prometheus.Gauge
	jitterStdDevMs  prometheus.Gauge
	frameRate       prometheus.Gauge
	frameDrops      prometheus.Counter

	// Trigger and event metrics.
	triggersEmitted    *prometheus.CounterVec
	triggersSuppressed prometheus.Counter
	eventsAppended     prometheus.Counter
	eventLogSize       prometheus.Gauge
	racesDerived       prometheus.Gauge

	// Pipeline metrics.
	queueDepth          prometheus.Gauge
	queueEnqueueErrors  prometheus.Counter
	compensationLatency prometheus.Histogram

	// Bus metrics.
	busPublishes *prometheus.CounterVec
	busDrops     *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Registry returns the registry backing the global manager, for exposing
// via promhttp.
func Registry() *prometheus.Registry {
	return customRegistry
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "sprintgates",
		subsystem:        "timing",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	factory := promauto.With(m.registry)

	m.clockOffsetMs = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "clock_offset_ms",
		Help:      "Current estimated clock offset against the reference time source in milliseconds.",
	})
	m.syncCycles = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_cycles_total",
		Help:      "Completed periodic drift correction cycles.",
	})
	m.syncCyclesSkipped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_cycles_skipped_total",
		Help:      "Sync cycles skipped because another cycle was already in flight.",
	})
	m.syncFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_failures_total",
		Help:      "Sync cycles that yielded no valid samples.",
	})
	m.samplesRejected = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "samples_rejected_total",
		Help:      "Round-trip samples rejected by outlier heuristics.",
	})
	m.correctionMagnitude = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "correction_magnitude_ms",
		Help:      "Absolute clamped offset correction applied per sync cycle in milliseconds.",
		Buckets:   []float64{1, 2, 5, 10, 20, 35, 50},
	})
	m.roundTripTime = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "round_trip_time_ms",
		Help:      "Observed round-trip time per probe in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 200, 500},
	})

	m.calibrationRuns = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "calibration_runs_total",
		Help:      "Completed full calibration runs.",
	})
	m.systemLagMs = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_lag_ms",
		Help:      "Measured scheduler/runtime lag in milliseconds.",
	})
	m.jitterStdDevMs = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "jitter_stddev_ms",
		Help:      "Standard deviation of scheduler wait overshoot in milliseconds.",
	})
	m.frameRate = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "capture_frame_rate",
		Help:      "Measured capture source frame rate in frames per second.",
	})
	m.frameDrops = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "capture_frame_drops_total",
		Help:      "Frames dropped for slow capture subscribers.",
	})

	m.triggersEmitted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "triggers_emitted_total",
		Help:      "Gate triggers emitted, by source.",
	}, []string{"source"})
	m.triggersSuppressed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "triggers_suppressed_total",
		Help:      "Motion triggers suppressed by the cooldown window.",
	})
	m.eventsAppended = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_appended_total",
		Help:      "Compensated gate events appended to the race log.",
	})
	m.eventLogSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "event_log_size",
		Help:      "Current number of gate events in the race log.",
	})
	m.racesDerived = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "races_derived",
		Help:      "Number of race windows derived on the last read.",
	})

	m.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "trigger_queue_depth",
		Help:      "Current depth of the raw trigger queue.",
	})
	m.queueEnqueueErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "trigger_queue_enqueue_errors_total",
		Help:      "Trigger enqueue attempts rejected (full or closed queue).",
	})
	m.compensationLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "compensation_latency_ms",
		Help:      "Time spent compensating and appending a single trigger in milliseconds.",
		Buckets:   m.histogramBuckets,
	})

	m.busPublishes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bus_publishes_total",
		Help:      "Messages published on the device bus, by topic.",
	}, []string{"topic"})
	m.busDrops = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bus_drops_total",
		Help:      "Messages dropped for slow bus subscribers, by topic.",
	}, []string{"topic"})
}

// Package-level helpers operating on the global manager.

// UpdateClockOffset sets the current offset gauge.
func UpdateClockOffset(ms float64) {
	if globalManager.enabled {
		globalManager.clockOffsetMs.Set(ms)
	}
}

// RecordSyncCycle counts a completed drift correction cycle.
func RecordSyncCycle() {
	if globalManager.enabled {
		globalManager.syncCycles.Inc()
	}
}

// RecordSyncSkipped counts a cycle skipped by the busy flag.
func RecordSyncSkipped() {
	if globalManager.enabled {
		globalManager.syncCyclesSkipped.Inc()
	}
}

// RecordSyncFailure counts a cycle that yielded no valid samples.
func RecordSyncFailure() {
	if globalManager.enabled {
		globalManager.syncFailures.Inc()
	}
}

// RecordSampleRejected counts a probe sample rejected as an outlier.
func RecordSampleRejected() {
	if globalManager.enabled {
		globalManager.samplesRejected.Inc()
	}
}

// RecordCorrection observes the absolute applied correction in milliseconds.
func RecordCorrection(ms float64) {
	if globalManager.enabled {
		if ms < 0 {
			ms = -ms
		}
		globalManager.correctionMagnitude.Observe(ms)
	}
}

// RecordRoundTrip observes a probe round-trip time in milliseconds.
func RecordRoundTrip(ms float64) {
	if globalManager.enabled {
		globalManager.roundTripTime.Observe(ms)
	}
}

// RecordCalibrationRun counts a completed calibration run.
func RecordCalibrationRun() {
	if globalManager.enabled {
		globalManager.calibrationRuns.Inc()
	}
}

// UpdateSystemLag sets the measured scheduler lag gauge.
func UpdateSystemLag(ms float64) {
	if globalManager.enabled {
		globalManager.systemLagMs.Set(ms)
	}
}

// UpdateJitterStdDev sets the jitter standard deviation gauge.
func UpdateJitterStdDev(ms float64) {
	if globalManager.enabled {
		globalManager.jitterStdDevMs.Set(ms)
	}
}

// UpdateFrameRate sets the measured capture frame rate gauge.
func UpdateFrameRate(fps float64) {
	if globalManager.enabled {
		globalManager.frameRate.Set(fps)
	}
}

// RecordFrameDrop counts a frame dropped for a slow capture subscriber.
func RecordFrameDrop() {
	if globalManager.enabled {
		globalManager.frameDrops.Inc()
	}
}

// RecordTrigger counts an emitted trigger for the given source label.
func RecordTrigger(source string) {
	if globalManager.enabled {
		globalManager.triggersEmitted.WithLabelValues(source).Inc()
	}
}

// RecordTriggerSuppressed counts a motion trigger suppressed by cooldown.
func RecordTriggerSuppressed() {
	if globalManager.enabled {
		globalManager.triggersSuppressed.Inc()
	}
}

// RecordEventAppended counts a compensated event appended to the log.
func RecordEventAppended() {
	if globalManager.enabled {
		globalManager.eventsAppended.Inc()
	}
}

// UpdateEventLogSize sets the current event log size gauge.
func UpdateEventLogSize(n int) {
	if globalManager.enabled {
		globalManager.eventLogSize.Set(float64(n))
	}
}

// UpdateRacesDerived sets the derived race window count gauge.
func UpdateRacesDerived(n int) {
	if globalManager.enabled {
		globalManager.racesDerived.Set(float64(n))
	}
}

// UpdateQueueDepth sets the trigger queue depth gauge.
func UpdateQueueDepth(n int) {
	if globalManager.enabled {
		globalManager.queueDepth.Set(float64(n))
	}
}

// RecordQueueEnqueueError counts a rejected enqueue attempt.
func RecordQueueEnqueueError() {
	if globalManager.enabled {
		globalManager.queueEnqueueErrors.Inc()
	}
}

// RecordCompensationLatency observes end-to-end compensation latency in ms.
func RecordCompensationLatency(ms float64) {
	if globalManager.enabled {
		globalManager.compensationLatency.Observe(ms)
	}
}

// RecordBusPublish counts a publish on the given topic.
func RecordBusPublish(topic string) {
	if globalManager.enabled {
		globalManager.busPublishes.WithLabelValues(topic).Inc()
	}
}

// RecordBusDrop counts a dropped delivery on the given topic.
func RecordBusDrop(topic string) {
	if globalManager.enabled {
		globalManager.busDrops.WithLabelValues(topic).Inc()
	}
}

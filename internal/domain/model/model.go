// Package model contains domain models passed between layers.
//
// All timestamps are fractional milliseconds. Local times live on the
// device's monotonic timeline; unified times live on the shared reference
// timeline (local + offset).
package model

// Source identifies how a gate event was triggered.
type Source string

// Trigger sources.
const (
	SourceManual Source = "manual"
	SourceMotion Source = "motion"
)

// ClockSample is one symmetric round-trip probe against the reference time
// source. Immutable; consumed, never mutated.
type ClockSample struct {
	LocalSend     float64 // local monotonic time the probe was sent
	LocalReceive  float64 // local monotonic time the reply arrived
	ReferenceTime float64 // reference "now" carried in the reply
	RTT           float64 // LocalReceive - LocalSend
}

// EstimatedOffset derives the offset implied by this sample under the
// symmetric-latency assumption: the reference timestamp was produced half a
// round trip before the reply arrived.
func (s ClockSample) EstimatedOffset() float64 {
	return s.ReferenceTime + s.RTT/2 - s.LocalReceive
}

// EchoSample is one asymmetric 4-timestamp exchange: t1 local send, t2
// reference receive, t3 reference send, t4 local receive.
type EchoSample struct {
	T1 float64
	T2 float64
	T3 float64
	T4 float64
}

// Offset returns the clock offset implied by the exchange.
func (s EchoSample) Offset() float64 {
	return ((s.T2 - s.T1) + (s.T3 - s.T4)) / 2
}

// RTT returns the round-trip time excluding reference-side processing.
func (s EchoSample) RTT() float64 {
	return (s.T4 - s.T1) - (s.T3 - s.T2)
}

// UploadLatency returns the one-way client-to-reference latency.
func (s EchoSample) UploadLatency() float64 {
	return (s.T2 - s.T1) - s.Offset()
}

// DownloadLatency returns the one-way reference-to-client latency.
func (s EchoSample) DownloadLatency() float64 {
	return (s.T4 - s.T3) + s.Offset()
}

// CalibrationStats is an immutable snapshot of the last full calibration
// run. It is replaced atomically, never partially updated.
type CalibrationStats struct {
	Offset          float64 // ms added to local monotonic time to reach reference time
	RTT             float64 // representative round-trip time, ms
	JitterStdDev    float64 // stddev of scheduler wait overshoot, ms
	UploadLatency   float64 // one-way upload latency, ms
	DownloadLatency float64 // one-way download latency, ms
	FrameRate       float64 // measured capture frames per second
	FrameDuration   float64 // 1000/FrameRate, ms; 0 when unmeasured
	SystemLag       float64 // mean scheduler wait overshoot, ms
	Calibrated      bool
}

// MotionMetadata carries per-trigger latency measurements. Attached at
// event creation time only; never recomputed later.
type MotionMetadata struct {
	// ProcessingLatency is the wall time spent computing the motion delta, ms.
	ProcessingLatency float64

	// CameraLatency is frame delivery time minus hardware capture time, ms.
	// Nil when the capture source exposes no capture timestamp.
	CameraLatency *float64
}

// RawTrigger is an uncompensated trigger on its way to the compensation
// worker. LocalTime is the local monotonic time at the moment of the
// trigger.
type RawTrigger struct {
	Source    Source
	LocalTime float64
	Meta      *MotionMetadata
}

// GateEvent is a compensated, immutable gate crossing on the unified
// timeline. Created once by the compensation worker; removed from the log
// only by an explicit clear.
type GateEvent struct {
	ID        string  // unique id
	Timestamp float64 // unified time, ms
	Source    Source
}

// DistanceConfig is the ordered sequence of cumulative per-gate distances in
// meters. Index i is the distance at gate i+1; gate 0 is the start at an
// implicit distance of 0.
type DistanceConfig []float64

// GateDistance returns the cumulative distance at the given gate index
// (0-based over a race's events). ok is false for gate 0's predecessor-less
// position or when no distance is configured for the gate.
func (d DistanceConfig) GateDistance(gate int) (float64, bool) {
	if gate == 0 {
		return 0, true
	}
	idx := gate - 1
	if idx < 0 || idx >= len(d) {
		return 0, false
	}
	return d[idx], true
}

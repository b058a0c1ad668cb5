package clock

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrNoValidSamples reports a probe burst in which every sample failed
	// or was rejected as an outlier. Soft: the current offset is unchanged.
	ErrNoValidSamples = errors.New("no valid clock samples")

	// ErrSyncInFlight reports a sync cycle skipped because another one was
	// already running. Soft: the current offset is unchanged.
	ErrSyncInFlight = errors.New("sync cycle already in flight")

	// ErrClosed reports an operation on a torn-down estimator.
	ErrClosed = errors.New("estimator closed")
)

package calibration

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNoSamples       = errors.New("no jitter samples collected")
	ErrNoCaptureSource = errors.New("no capture source supplied")
	ErrNoFrames        = errors.New("no frames delivered during cadence window")
)

package race

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrInvalidGateCount rejects a race size smaller than a start and a
	// finish gate.
	ErrInvalidGateCount = errors.New("gate count must be at least 2")
)

// Package compensate turns a local trigger time into a single corrected
// timestamp on the unified timeline.
//
// Unified is pure and non-blocking: identical inputs always produce the
// identical timestamp, and compensation happens exactly once, at event
// creation.
package compensate

import (
	"github.com/Areo-RGB/sprintgates/internal/domain/model"
)

// Unified combines the current offset, calibration constants, and per-event
// metadata into the corrected event timestamp in unified milliseconds.
//
// The hardware capture timestamp always takes priority over the statistical
// half-frame estimate; the two are mutually exclusive, never summed.
func Unified(localNow, offset float64, stats model.CalibrationStats, source model.Source, meta *model.MotionMetadata) float64 {
	unified := localNow + offset

	if stats.Calibrated {
		unified -= stats.SystemLag
		if source == model.SourceMotion {
			// The half-frame estimate stands in whenever the event lacks a
			// hardware capture timestamp, including events with no metadata
			// at all.
			switch {
			case meta != nil && meta.CameraLatency != nil:
				unified -= *meta.CameraLatency
			case stats.FrameDuration > 0:
				unified -= stats.FrameDuration / 2
			}
			if meta != nil {
				unified -= meta.ProcessingLatency
			}
		}
		return unified
	}

	// Uncalibrated devices still honor per-event hardware measurements;
	// only the statistical estimates require calibration.
	if source == model.SourceMotion && meta != nil {
		if meta.CameraLatency != nil {
			unified -= *meta.CameraLatency
		}
		unified -= meta.ProcessingLatency
	}
	return unified
}

package motion_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Areo-RGB/sprintgates/internal/adapters/capture"
	"github.com/Areo-RGB/sprintgates/internal/domain/model"
	"github.com/Areo-RGB/sprintgates/internal/domain/motion"
	"github.com/Areo-RGB/sprintgates/internal/timeutil"
	"github.com/Areo-RGB/sprintgates/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// recordingSink collects every enqueued trigger.
type recordingSink struct {
	triggers []model.RawTrigger
	reject   bool
}

func (s *recordingSink) Enqueue(_ context.Context, t model.RawTrigger) bool {
	if s.reject {
		return false
	}
	s.triggers = append(s.triggers, t)
	return true
}

func newDetector(sink motion.Sink, opts ...motion.Option) *motion.Detector {
	mc := timeutil.NewMockClock(time.Unix(0, 0))
	mono := timeutil.NewMonotonic(mc)
	return motion.New(sink, mono, opts...)
}

func TestDetector_Process(t *testing.T) {
	ctx := context.Background()

	Convey("Given an armed detector", t, func() {
		sink := &recordingSink{}
		d := newDetector(sink, motion.WithThreshold(25))
		d.Arm()

		Convey("When the first frame arrives", func() {
			fired := d.Process(ctx, capture.UniformFrame(8, 8, 0, 0))

			Convey("Then there is nothing to compare against yet", func() {
				So(fired, ShouldBeFalse)
				So(sink.triggers, ShouldBeEmpty)
			})
		})

		Convey("When a frame changes the tripwire past the threshold", func() {
			d.Process(ctx, capture.UniformFrame(8, 8, 0, 0))
			fired := d.Process(ctx, capture.UniformFrame(8, 8, 200, 5))

			Convey("Then a trigger is emitted at the frame delivery time", func() {
				So(fired, ShouldBeTrue)
				So(sink.triggers, ShouldHaveLength, 1)
				So(sink.triggers[0].Source, ShouldEqual, model.SourceMotion)
				So(sink.triggers[0].LocalTime, ShouldEqual, 5.0)
			})

			Convey("Then the trigger carries processing metadata", func() {
				So(sink.triggers[0].Meta, ShouldNotBeNil)
				So(sink.triggers[0].Meta.ProcessingLatency, ShouldBeGreaterThanOrEqualTo, 0)
				So(sink.triggers[0].Meta.CameraLatency, ShouldBeNil)
			})
		})

		Convey("When a change stays below the threshold", func() {
			d.Process(ctx, capture.UniformFrame(8, 8, 0, 0))
			fired := d.Process(ctx, capture.UniformFrame(8, 8, 20, 5))

			Convey("Then no trigger fires", func() {
				So(fired, ShouldBeFalse)
				So(sink.triggers, ShouldBeEmpty)
			})
		})

		Convey("When frames with no pixels arrive", func() {
			degenerate := capture.Frame{Width: 8, Height: 0, DeliveredAt: 5}
			first := d.Process(ctx, degenerate)
			second := d.Process(ctx, degenerate)
			third := d.Process(ctx, capture.Frame{Width: 0, Height: 8, DeliveredAt: 6})

			Convey("Then they are rejected instead of differenced", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeFalse)
				So(third, ShouldBeFalse)
				So(sink.triggers, ShouldBeEmpty)
			})

			Convey("Then a valid stream afterwards still detects", func() {
				d.Process(ctx, capture.UniformFrame(8, 8, 0, 10))
				So(d.Process(ctx, capture.UniformFrame(8, 8, 200, 15)), ShouldBeTrue)
			})
		})

		Convey("When the frame carries a hardware capture timestamp", func() {
			d.Process(ctx, capture.UniformFrame(8, 8, 0, 0))
			f := capture.UniformFrame(8, 8, 200, 50)
			captured := 42.0
			f.CapturedAt = &captured
			fired := d.Process(ctx, f)

			Convey("Then the camera latency is delivery minus capture", func() {
				So(fired, ShouldBeTrue)
				So(sink.triggers[0].Meta.CameraLatency, ShouldNotBeNil)
				So(*sink.triggers[0].Meta.CameraLatency, ShouldAlmostEqual, 8.0, 1e-9)
			})
		})

		Convey("When the frame dimensions change", func() {
			d.Process(ctx, capture.UniformFrame(8, 8, 0, 0))
			fired := d.Process(ctx, capture.UniformFrame(16, 8, 200, 5))

			Convey("Then the stale frame is discarded instead of compared", func() {
				So(fired, ShouldBeFalse)
				So(sink.triggers, ShouldBeEmpty)
			})

			Convey("And the next same-sized frame compares normally", func() {
				fired := d.Process(ctx, capture.UniformFrame(16, 8, 0, 10))
				So(fired, ShouldBeTrue)
			})
		})

		Convey("When the sink rejects the trigger", func() {
			sink.reject = true
			d.Process(ctx, capture.UniformFrame(8, 8, 0, 0))
			fired := d.Process(ctx, capture.UniformFrame(8, 8, 200, 5))

			Convey("Then the drop is reported", func() {
				So(fired, ShouldBeFalse)
			})
		})
	})

	Convey("Given a disarmed detector", t, func() {
		sink := &recordingSink{}
		d := newDetector(sink)

		Convey("When motion crosses the threshold", func() {
			d.Process(ctx, capture.UniformFrame(8, 8, 0, 0))
			fired := d.Process(ctx, capture.UniformFrame(8, 8, 200, 5))

			Convey("Then nothing fires but the frame history stays warm", func() {
				So(fired, ShouldBeFalse)
				So(d.Armed(), ShouldBeFalse)

				d.Arm()
				So(d.Process(ctx, capture.UniformFrame(8, 8, 0, 10)), ShouldBeTrue)
			})
		})
	})
}

func TestDetector_Cooldown(t *testing.T) {
	ctx := context.Background()

	Convey("Given an armed detector with a 2000ms cooldown", t, func() {
		sink := &recordingSink{}
		d := newDetector(sink, motion.WithCooldown(2*time.Second))
		d.Arm()

		// Alternate luminance so every comparison crosses the threshold.
		value := func(i int) byte {
			if i%2 == 0 {
				return 0
			}
			return 200
		}

		Convey("When motion fires at 0ms, 1500ms, and 2100ms", func() {
			d.Process(ctx, capture.UniformFrame(8, 8, 200, -10))
			first := d.Process(ctx, capture.UniformFrame(8, 8, value(0), 0))
			second := d.Process(ctx, capture.UniformFrame(8, 8, value(1), 1500))
			third := d.Process(ctx, capture.UniformFrame(8, 8, value(2), 2100))

			Convey("Then the 1500ms trigger is suppressed", func() {
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				So(third, ShouldBeTrue)
			})

			Convey("Then only the surviving triggers reach the sink", func() {
				So(sink.triggers, ShouldHaveLength, 2)
				So(sink.triggers[0].LocalTime, ShouldEqual, 0.0)
				So(sink.triggers[1].LocalTime, ShouldEqual, 2100.0)
			})
		})

		Convey("When the very first trigger arrives", func() {
			d.Process(ctx, capture.UniformFrame(8, 8, 0, 0))
			fired := d.Process(ctx, capture.UniformFrame(8, 8, 200, 5))

			Convey("Then no cooldown applies before any trigger exists", func() {
				So(fired, ShouldBeTrue)
			})
		})
	})
}

func TestDetector_Run(t *testing.T) {
	Convey("Given a detector consuming a frame source", t, func() {
		sink := &recordingSink{}
		d := newDetector(sink)
		d.Arm()

		src := capture.NewSynthetic(capture.WithBufferSize(8))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			d.Run(ctx, src)
		}()

		Convey("When frames flow and the source closes", func() {
			So(src.Emit(capture.UniformFrame(8, 8, 0, 0)), ShouldBeTrue)
			So(src.Emit(capture.UniformFrame(8, 8, 200, 5)), ShouldBeTrue)
			src.Close()

			Convey("Then the loop drains the frames and exits", func() {
				select {
				case <-done:
				case <-time.After(2 * time.Second):
					So("run loop did not exit", ShouldBeEmpty)
				}
				So(sink.triggers, ShouldHaveLength, 1)
			})
		})
	})
}

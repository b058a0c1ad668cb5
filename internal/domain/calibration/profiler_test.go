package calibration_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Areo-RGB/sprintgates/internal/adapters/capture"
	"github.com/Areo-RGB/sprintgates/internal/adapters/timesource"
	"github.com/Areo-RGB/sprintgates/internal/domain/calibration"
	clocksync "github.com/Areo-RGB/sprintgates/internal/domain/clock"
	"github.com/Areo-RGB/sprintgates/internal/timeutil"
	"github.com/Areo-RGB/sprintgates/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var errUnreachable = errors.New("reference unreachable")

type failingSource struct{}

func (failingSource) ReferenceNow(context.Context) (float64, error) {
	return 0, errUnreachable
}

func TestProfiler_MeasureJitter(t *testing.T) {
	Convey("Given a scheduler that overshoots every wait by 2ms", t, func() {
		mc := timeutil.NewMockClock(time.Unix(0, 0))
		mc.SetSleepLag(2 * time.Millisecond)
		mono := timeutil.NewMonotonic(mc)
		est := clocksync.New(failingSource{}, mc, mono)
		p := calibration.New(est, mc, mono,
			calibration.WithJitterProfile(10, 5*time.Millisecond),
		)

		Convey("When jitter is measured", func() {
			lag, stddev, err := p.MeasureJitter(context.Background())

			Convey("Then the mean overshoot is the system lag", func() {
				So(err, ShouldBeNil)
				So(lag, ShouldAlmostEqual, 2.0, 1e-9)
			})

			Convey("Then a constant overshoot has zero jitter", func() {
				So(err, ShouldBeNil)
				So(stddev, ShouldAlmostEqual, 0.0, 1e-9)
			})
		})
	})

	Convey("Given a cancelled context", t, func() {
		mc := timeutil.NewMockClock(time.Unix(0, 0))
		mono := timeutil.NewMonotonic(mc)
		est := clocksync.New(failingSource{}, mc, mono)
		p := calibration.New(est, mc, mono)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Convey("Then the measurement aborts", func() {
			_, _, err := p.MeasureJitter(ctx)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestProfiler_MeasureCadence(t *testing.T) {
	Convey("Given a source that delivered 30 frames in the window", t, func() {
		mc := timeutil.NewMockClock(time.Unix(0, 0))
		mono := timeutil.NewMonotonic(mc)
		est := clocksync.New(failingSource{}, mc, mono)
		p := calibration.New(est, mc, mono,
			calibration.WithCadenceWindow(time.Second),
		)

		src := capture.NewSynthetic(capture.WithBufferSize(64))
		for i := 0; i < 30; i++ {
			So(src.Emit(capture.UniformFrame(4, 4, 0, float64(i))), ShouldBeTrue)
		}

		Convey("When cadence is measured", func() {
			type result struct {
				rate, dur float64
				err       error
			}
			done := make(chan result, 1)
			go func() {
				rate, dur, err := p.MeasureCadence(context.Background(), src)
				done <- result{rate, dur, err}
			}()

			var got result
			deadline := time.Now().Add(2 * time.Second)
		poll:
			for {
				select {
				case got = <-done:
					break poll
				default:
					if time.Now().After(deadline) {
						break poll
					}
					mc.Advance(100 * time.Millisecond)
					time.Sleep(time.Millisecond)
				}
			}

			Convey("Then the rate and frame duration follow from the count", func() {
				So(got.err, ShouldBeNil)
				So(got.rate, ShouldAlmostEqual, 30.0, 1e-9)
				So(got.dur, ShouldAlmostEqual, 1000.0/30.0, 1e-9)
			})
		})
	})

	Convey("Given a second consumer competing for the capture stream", t, func() {
		mc := timeutil.NewMockClock(time.Unix(0, 0))
		mono := timeutil.NewMonotonic(mc)
		est := clocksync.New(failingSource{}, mc, mono)
		p := calibration.New(est, mc, mono,
			calibration.WithCadenceWindow(time.Second),
		)

		src := capture.NewSynthetic(capture.WithBufferSize(64))
		fan := capture.NewFanout(src, capture.WithFanoutBuffer(64))
		competing := fan.Subscribe()
		cadence := fan.Subscribe()

		ctx, cancel := context.WithCancel(context.Background())
		Reset(cancel)
		go fan.Run(ctx)
		go func() {
			for range competing.Frames() {
			}
		}()

		for i := 0; i < 30; i++ {
			So(src.Emit(capture.UniformFrame(4, 4, 0, float64(i))), ShouldBeTrue)
		}
		forwarded := time.Now().Add(2 * time.Second)
		for len(cadence.Frames()) < 30 && time.Now().Before(forwarded) {
			time.Sleep(time.Millisecond)
		}
		So(len(cadence.Frames()), ShouldEqual, 30)

		Convey("When cadence is measured on its own subscription", func() {
			type result struct {
				rate float64
				err  error
			}
			done := make(chan result, 1)
			go func() {
				rate, _, err := p.MeasureCadence(context.Background(), cadence)
				done <- result{rate, err}
			}()

			var got result
			deadline := time.Now().Add(2 * time.Second)
		poll:
			for {
				select {
				case got = <-done:
					break poll
				default:
					if time.Now().After(deadline) {
						break poll
					}
					mc.Advance(100 * time.Millisecond)
					time.Sleep(time.Millisecond)
				}
			}

			Convey("Then the competing consumer does not dilute the rate", func() {
				So(got.err, ShouldBeNil)
				So(got.rate, ShouldAlmostEqual, 30.0, 1e-9)
			})
		})
	})

	Convey("Given no capture source", t, func() {
		mc := timeutil.NewMockClock(time.Unix(0, 0))
		mono := timeutil.NewMonotonic(mc)
		est := clocksync.New(failingSource{}, mc, mono)
		p := calibration.New(est, mc, mono)

		Convey("Then the measurement is refused", func() {
			_, _, err := p.MeasureCadence(context.Background(), nil)
			So(errors.Is(err, calibration.ErrNoCaptureSource), ShouldBeTrue)
		})
	})

	Convey("Given a source that delivers nothing", t, func() {
		mc := timeutil.NewMockClock(time.Unix(0, 0))
		mono := timeutil.NewMonotonic(mc)
		est := clocksync.New(failingSource{}, mc, mono)
		p := calibration.New(est, mc, mono,
			calibration.WithCadenceWindow(100*time.Millisecond),
		)
		src := capture.NewSynthetic()

		Convey("When cadence is measured", func() {
			done := make(chan error, 1)
			go func() {
				_, _, err := p.MeasureCadence(context.Background(), src)
				done <- err
			}()

			var err error
			deadline := time.Now().Add(2 * time.Second)
		poll:
			for {
				select {
				case err = <-done:
					break poll
				default:
					if time.Now().After(deadline) {
						break poll
					}
					mc.Advance(50 * time.Millisecond)
					time.Sleep(time.Millisecond)
				}
			}

			Convey("Then the window closing empty is an error", func() {
				So(errors.Is(err, calibration.ErrNoFrames), ShouldBeTrue)
			})
		})
	})
}

func TestProfiler_Calibrate(t *testing.T) {
	Convey("Given a reachable loopback reference 100ms ahead", t, func() {
		mc := timeutil.NewMockClock(time.Unix(0, 0))
		mono := timeutil.NewMonotonic(mc)
		lb := timesource.NewLoopback(mc, mono,
			timesource.WithTrueOffset(100),
			timesource.WithLatencyRange(5*time.Millisecond, 6*time.Millisecond),
		)
		est := clocksync.New(lb, mc, mono,
			clocksync.WithStartupBurst(3, time.Millisecond),
			clocksync.WithSyncBurst(3, time.Millisecond),
		)
		p := calibration.New(est, mc, mono,
			calibration.WithJitterProfile(5, time.Millisecond),
		)

		Convey("When a calibration run completes", func() {
			stats := p.Calibrate(context.Background())

			Convey("Then the device is calibrated with a close offset", func() {
				So(stats.Calibrated, ShouldBeTrue)
				So(stats.Offset, ShouldAlmostEqual, 100.0, 5.0)
				So(est.Initialized(), ShouldBeTrue)
			})

			Convey("Then the latency profile is populated", func() {
				So(stats.RTT, ShouldBeGreaterThan, 0)
				So(stats.UploadLatency, ShouldBeGreaterThan, 0)
				So(stats.DownloadLatency, ShouldBeGreaterThan, 0)
			})

			Convey("Then the published snapshot matches the returned one", func() {
				So(p.Stats(), ShouldResemble, stats)
			})

			Convey("Then cadence stays unmeasured without a capture source", func() {
				So(stats.FrameRate, ShouldEqual, 0.0)
				So(stats.FrameDuration, ShouldEqual, 0.0)
			})
		})
	})

	Convey("Given an unreachable reference source", t, func() {
		mc := timeutil.NewMockClock(time.Unix(0, 0))
		mc.SetSleepLag(time.Millisecond)
		mono := timeutil.NewMonotonic(mc)
		est := clocksync.New(failingSource{}, mc, mono,
			clocksync.WithStartupBurst(1, time.Millisecond),
		)
		p := calibration.New(est, mc, mono,
			calibration.WithJitterProfile(5, time.Millisecond),
		)

		Convey("When a calibration run completes", func() {
			stats := p.Calibrate(context.Background())

			Convey("Then the device stays uncalibrated", func() {
				So(stats.Calibrated, ShouldBeFalse)
				So(stats.Offset, ShouldEqual, 0.0)
			})

			Convey("Then the local measurements still publish", func() {
				So(stats.SystemLag, ShouldAlmostEqual, 1.0, 1e-9)
			})
		})
	})
}

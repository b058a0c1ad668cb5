package timeutil_test

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Areo-RGB/sprintgates/internal/timeutil"
)

func TestMs(t *testing.T) {
	Convey("Given duration conversions", t, func() {
		So(timeutil.Ms(time.Second), ShouldEqual, 1000.0)
		So(timeutil.Ms(time.Millisecond), ShouldEqual, 1.0)
		So(timeutil.Ms(500*time.Microsecond), ShouldEqual, 0.5)
		So(timeutil.Ms(0), ShouldEqual, 0.0)
	})
}

func TestMonotonic(t *testing.T) {
	Convey("Given a monotonic timeline on a mock clock", t, func() {
		mc := timeutil.NewMockClock(time.Unix(1000, 0))
		mono := timeutil.NewMonotonic(mc)

		Convey("Then it starts at zero", func() {
			So(mono.NowMs(), ShouldEqual, 0.0)
		})

		Convey("When the clock advances", func() {
			mc.Advance(1500 * time.Millisecond)

			Convey("Then NowMs reflects the elapsed milliseconds", func() {
				So(mono.NowMs(), ShouldEqual, 1500.0)
			})
		})
	})
}

func TestMockClock_Sleep(t *testing.T) {
	Convey("Given a mock clock", t, func() {
		mc := timeutil.NewMockClock(time.Unix(0, 0))

		Convey("When sleeping", func() {
			mc.Sleep(10 * time.Millisecond)

			Convey("Then time advances by the requested duration", func() {
				So(mc.Now(), ShouldEqual, time.Unix(0, 0).Add(10*time.Millisecond))
			})

			Convey("And the sleep is recorded", func() {
				So(mc.Sleeps(), ShouldResemble, []time.Duration{10 * time.Millisecond})
			})
		})

		Convey("When a sleep lag is configured", func() {
			mc.SetSleepLag(2 * time.Millisecond)
			mc.Sleep(10 * time.Millisecond)

			Convey("Then every sleep overshoots by the lag", func() {
				So(mc.Now(), ShouldEqual, time.Unix(0, 0).Add(12*time.Millisecond))
			})
		})
	})
}

func TestMockClock_Timer(t *testing.T) {
	Convey("Given a timer on a mock clock", t, func() {
		mc := timeutil.NewMockClock(time.Unix(0, 0))
		timer := mc.NewTimer(100 * time.Millisecond)

		Convey("Then it does not fire before its deadline", func() {
			mc.Advance(50 * time.Millisecond)
			select {
			case <-timer.C():
				So("fired early", ShouldBeEmpty)
			default:
			}
		})

		Convey("When the deadline passes", func() {
			mc.Advance(100 * time.Millisecond)

			Convey("Then the timer fires once", func() {
				select {
				case <-timer.C():
				default:
					So("did not fire", ShouldBeEmpty)
				}
			})
		})

		Convey("When the timer is stopped first", func() {
			So(timer.Stop(), ShouldBeTrue)
			mc.Advance(time.Second)

			Convey("Then it never fires", func() {
				select {
				case <-timer.C():
					So("fired after stop", ShouldBeEmpty)
				default:
				}
			})
		})
	})
}

func TestMockClock_Ticker(t *testing.T) {
	Convey("Given a ticker on a mock clock", t, func() {
		mc := timeutil.NewMockClock(time.Unix(0, 0))
		ticker := mc.NewTicker(100 * time.Millisecond)

		Convey("When the interval elapses repeatedly", func() {
			ticks := 0
			for i := 0; i < 3; i++ {
				mc.Advance(100 * time.Millisecond)
				select {
				case <-ticker.C():
					ticks++
				default:
				}
			}

			Convey("Then one tick is delivered per interval", func() {
				So(ticks, ShouldEqual, 3)
			})
		})

		Convey("When the ticker is stopped", func() {
			ticker.Stop()
			mc.Advance(time.Second)

			Convey("Then no further ticks arrive", func() {
				select {
				case <-ticker.C():
					So("ticked after stop", ShouldBeEmpty)
				default:
				}
			})
		})
	})
}

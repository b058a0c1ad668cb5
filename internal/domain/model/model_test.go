package model_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Areo-RGB/sprintgates/internal/domain/model"
)

func TestClockSample_EstimatedOffset(t *testing.T) {
	Convey("Given a symmetric round-trip sample", t, func() {
		s := model.ClockSample{
			LocalSend:     1000,
			LocalReceive:  1020,
			ReferenceTime: 2010,
			RTT:           20,
		}

		Convey("Then the offset assumes the reply travelled half a round trip", func() {
			// 2010 + 10 - 1020 = 1000
			So(s.EstimatedOffset(), ShouldEqual, 1000.0)
		})
	})

	Convey("Given a reference clock behind the local clock", t, func() {
		s := model.ClockSample{
			LocalSend:     5000,
			LocalReceive:  5010,
			ReferenceTime: 4505,
			RTT:           10,
		}

		Convey("Then the offset is negative", func() {
			So(s.EstimatedOffset(), ShouldEqual, -500.0)
		})
	})
}

func TestEchoSample(t *testing.T) {
	Convey("Given an asymmetric 4-timestamp exchange", t, func() {
		// True offset 100, upload 30, download 10, processing 5.
		s := model.EchoSample{
			T1: 1000,
			T2: 1130, // 1000 + 30 upload + 100 offset
			T3: 1135, // + 5 processing
			T4: 1045, // 1035 reference send - 100 offset + 10 download
		}

		Convey("Then the round trip excludes reference-side processing", func() {
			So(s.RTT(), ShouldEqual, 40.0)
		})

		Convey("Then the offset folds both legs", func() {
			// ((1130-1000) + (1135-1045)) / 2 = (130 + 90) / 2 = 110
			So(s.Offset(), ShouldEqual, 110.0)
		})

		Convey("Then upload and download latencies sum to the RTT", func() {
			So(s.UploadLatency()+s.DownloadLatency(), ShouldAlmostEqual, s.RTT(), 1e-9)
			So(s.UploadLatency(), ShouldEqual, 20.0)
			So(s.DownloadLatency(), ShouldEqual, 20.0)
		})
	})
}

func TestDistanceConfig_GateDistance(t *testing.T) {
	Convey("Given cumulative distances for three gates past the start", t, func() {
		d := model.DistanceConfig{10, 20, 30}

		Convey("Then gate 0 is the start line at distance zero", func() {
			dist, ok := d.GateDistance(0)
			So(ok, ShouldBeTrue)
			So(dist, ShouldEqual, 0.0)
		})

		Convey("Then configured gates report their distance", func() {
			dist, ok := d.GateDistance(1)
			So(ok, ShouldBeTrue)
			So(dist, ShouldEqual, 10.0)

			dist, ok = d.GateDistance(3)
			So(ok, ShouldBeTrue)
			So(dist, ShouldEqual, 30.0)
		})

		Convey("Then gates beyond the configuration are unavailable", func() {
			_, ok := d.GateDistance(4)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given an empty distance configuration", t, func() {
		d := model.DistanceConfig{}

		Convey("Then only the start line resolves", func() {
			_, ok := d.GateDistance(0)
			So(ok, ShouldBeTrue)
			_, ok = d.GateDistance(1)
			So(ok, ShouldBeFalse)
		})
	})
}

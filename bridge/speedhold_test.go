package main

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSpeedHold(t *testing.T) {
	Convey("Given a proportional-only speed hold", t, func() {
		cfg := SpeedHoldConfig{Kp: 10, MaxThrottlePct: 40, MaxBrakePct: 60, IntegralLimit: 10}
		h := NewSpeedHold(cfg, 5)

		Convey("It throttles below target", func() {
			thr, brk := h.Update(4, 0.1)
			So(thr, ShouldAlmostEqual, 10, 1e-9)
			So(brk, ShouldEqual, 0)
		})

		Convey("It brakes above target", func() {
			thr, brk := h.Update(6.5, 0.1)
			So(thr, ShouldEqual, 0)
			So(brk, ShouldAlmostEqual, 15, 1e-9)
		})

		Convey("It saturates at the configured limits", func() {
			thr, _ := h.Update(0, 0.1)
			So(thr, ShouldEqual, 40)
			_, brk := h.Update(20, 0.1)
			So(brk, ShouldEqual, 60)
		})

		Convey("It is idle at target", func() {
			thr, brk := h.Update(5, 0.1)
			So(thr, ShouldEqual, 0)
			So(brk, ShouldEqual, 0)
		})
	})

	Convey("Given an integrating speed hold", t, func() {
		cfg := SpeedHoldConfig{Ki: 1, MaxThrottlePct: 40, MaxBrakePct: 60, IntegralLimit: 2}
		h := NewSpeedHold(cfg, 10)

		Convey("The integral is bounded", func() {
			for i := 0; i < 100; i++ {
				h.Update(9, 1)
			}
			So(h.Diagnostics().Integral, ShouldEqual, 2)
			thr, _ := h.Update(9, 0)
			So(thr, ShouldEqual, 2)
		})

		Convey("SetTarget clears the accumulated state", func() {
			h.Update(9, 1)
			h.SetTarget(3)
			So(h.Target(), ShouldEqual, 3)
			d := h.Diagnostics()
			So(d.Integral, ShouldEqual, 0)
			So(d.Error, ShouldEqual, 0)
			So(d.TargetMPS, ShouldEqual, 3)
		})
	})

	Convey("The derivative term skips the first sample", t, func() {
		h := NewSpeedHold(SpeedHoldConfig{Kd: 1, MaxThrottlePct: 100, MaxBrakePct: 100, IntegralLimit: 1}, 10)
		thr, brk := h.Update(5, 0.1)
		So(thr, ShouldEqual, 0)
		So(brk, ShouldEqual, 0)

		// error 5 -> 4 over 0.1 s
		_, brk = h.Update(6, 0.1)
		So(brk, ShouldAlmostEqual, 10, 1e-9)
	})
}

package dbw

import (
	"errors"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestOutboundStore(t *testing.T) {
	Convey("a new outbound store", t, func() {
		s := NewOutboundStore()

		Convey("holds exactly the six command identifiers", func() {
			snap := s.Snapshot()
			So(len(snap), ShouldEqual, 6)
			for _, id := range OutboundIDs() {
				_, ok := snap[id]
				So(ok, ShouldBeTrue)
			}
		})

		Convey("starts neutral", func() {
			in, err := DecodeIntent(s.Snapshot())
			So(err, ShouldBeNil)
			So(in, ShouldResemble, Intent{})

			gear, _ := s.Get(IDGear)
			So(gear, ShouldResemble, Payload{0x01, 0x04})
			park, _ := s.Get(IDPark)
			So(park, ShouldResemble, Payload{})
		})

		Convey("rejects identifiers outside the command set", func() {
			So(errors.Is(s.Set(IDSpeedReport, Payload{}), ErrUnknownID), ShouldBeTrue)
			So(errors.Is(s.Set(0x7FF+1, Payload{}), ErrUnknownID), ShouldBeTrue)
			So(s.Len(), ShouldEqual, 6)
		})

		Convey("snapshots are copies", func() {
			snap := s.Snapshot()
			snap[IDPark] = Payload{9}
			delete(snap, IDMode)
			p, _ := s.Get(IDPark)
			So(p, ShouldResemble, Payload{})
			So(s.Len(), ShouldEqual, 6)
		})
	})
}

func TestInboundStore(t *testing.T) {
	Convey("an inbound store", t, func() {
		s := NewInboundStore()

		Convey("reports never-observed identifiers as absent", func() {
			_, ok := s.Get(IDSpeedReport)
			So(ok, ShouldBeFalse)
			So(s.Len(), ShouldEqual, 0)
		})

		Convey("keeps the last write per identifier", func() {
			So(s.Set(IDSpeedReport, Payload{1}), ShouldBeNil)
			So(s.Set(IDSpeedReport, Payload{2}), ShouldBeNil)
			So(s.Set(0x123, Payload{3}), ShouldBeNil)
			p, ok := s.Get(IDSpeedReport)
			So(ok, ShouldBeTrue)
			So(p, ShouldResemble, Payload{2})
			So(s.Len(), ShouldEqual, 2)
		})

		Convey("tolerates concurrent writers and readers", func() {
			var wg sync.WaitGroup
			for w := 0; w < 4; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < 500; i++ {
						_ = s.Set(MessageID(0x500+w), Payload{byte(i)})
						_ = s.Snapshot()
					}
				}(w)
			}
			wg.Wait()
			So(s.Len(), ShouldEqual, 4)
			p, _ := s.Get(0x500)
			So(p[0], ShouldEqual, byte(499%256))
		})
	})
}

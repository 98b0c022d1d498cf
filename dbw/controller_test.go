package dbw

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.einride.tech/can"

	"dbw-can-bridge/utils"
)

type testTransport struct {
	mu        sync.Mutex
	sent      []Frame
	failIDs   map[MessageID]bool
	queue     []can.Frame
	pollErr   error
	pulls     int
	shutdowns int
}

func newTestTransport() *testTransport {
	return &testTransport{failIDs: make(map[MessageID]bool)}
}

func (t *testTransport) Send(_ context.Context, id MessageID, p Payload) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failIDs[id] {
		return errors.New("simulated tx error")
	}
	t.sent = append(t.sent, Frame{ID: id, Payload: p})
	return nil
}

func (t *testTransport) Available() iter.Seq2[can.Frame, error] {
	return func(yield func(can.Frame, error) bool) {
		for {
			t.mu.Lock()
			if t.pollErr != nil {
				err := t.pollErr
				t.pollErr = nil
				t.pulls++
				t.mu.Unlock()
				if !yield(can.Frame{}, err) {
					return
				}
				continue
			}
			if len(t.queue) == 0 {
				t.mu.Unlock()
				return
			}
			f := t.queue[0]
			t.queue = t.queue[1:]
			t.pulls++
			t.mu.Unlock()
			if !yield(f, nil) {
				return
			}
		}
	}
}

func (t *testTransport) Shutdown() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shutdowns++
	return nil
}

func (t *testTransport) push(frames ...can.Frame) {
	t.mu.Lock()
	t.queue = append(t.queue, frames...)
	t.mu.Unlock()
}

func (t *testTransport) sentFrames() []Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Frame(nil), t.sent...)
}

func (t *testTransport) counts() (pulls, queued, shutdowns int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pulls, len(t.queue), t.shutdowns
}

func dataFrame(id uint32, data ...byte) can.Frame {
	f := can.Frame{ID: id, Length: 8}
	copy(f.Data[:], data)
	return f
}

// idleConfig keeps both tickers far away so tests can drive cycles by hand.
func idleConfig() Config {
	return Config{TxPeriod: time.Hour, RxPeriod: time.Hour, RxBatch: DefaultRxBatch}
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func TestControllerLifecycle(t *testing.T) {
	log := utils.NewLogger(nil, utils.ERROR)

	Convey("a new controller", t, func() {
		tr := newTestTransport()
		c, err := NewController(idleConfig(), tr, log)
		So(err, ShouldBeNil)

		Convey("is running with a total outbound store", func() {
			So(c.State(), ShouldEqual, StateRunning)
			snap := c.OutboundSnapshot()
			So(len(snap), ShouldEqual, 6)
			for _, id := range OutboundIDs() {
				So(snap, ShouldContainKey, id)
			}
			So(len(c.InboundSnapshot()), ShouldEqual, 0)
			So(c.Close(), ShouldBeNil)
		})

		Convey("closes once and releases the transport once", func() {
			So(c.Close(), ShouldBeNil)
			So(c.Close(), ShouldBeNil)
			So(c.State(), ShouldEqual, StateClosed)
			_, _, shutdowns := tr.counts()
			So(shutdowns, ShouldEqual, 1)

			Convey("and refuses writes afterwards", func() {
				So(errors.Is(c.SetOutbound(IDSteer, Payload{}), ErrClosed), ShouldBeTrue)
			})
		})

		Convey("rejects unknown outbound identifiers", func() {
			err := c.SetOutbound(IDSpeedReport, Payload{1})
			So(errors.Is(err, ErrUnknownID), ShouldBeTrue)
			So(c.Close(), ShouldBeNil)
		})
	})

	Convey("independent controllers do not share state", t, func() {
		a, err := NewController(idleConfig(), newTestTransport(), log)
		So(err, ShouldBeNil)
		b, err := NewController(idleConfig(), newTestTransport(), log)
		So(err, ShouldBeNil)

		So(a.SetOutbound(IDPark, Payload{1}), ShouldBeNil)
		pb, _ := b.outbound.Get(IDPark)
		So(pb, ShouldResemble, Payload{})

		So(a.Close(), ShouldBeNil)
		So(b.Close(), ShouldBeNil)
	})

	Convey("nil transports are refused", t, func() {
		_, err := NewController(idleConfig(), nil, log)
		So(err, ShouldNotBeNil)
	})
}

func TestTransmit(t *testing.T) {
	log := utils.NewLogger(nil, utils.CRITICAL)

	Convey("one transmit cycle", t, func() {
		tr := newTestTransport()
		c, err := NewController(idleConfig(), tr, log)
		So(err, ShouldBeNil)
		defer c.Close()

		Convey("sends every outbound identifier exactly once", func() {
			c.transmitCycle(context.Background())
			sent := tr.sentFrames()
			So(len(sent), ShouldEqual, 6)
			seen := map[MessageID]int{}
			for _, f := range sent {
				seen[f.ID]++
			}
			for _, id := range OutboundIDs() {
				So(seen[id], ShouldEqual, 1)
			}
			So(c.Stats().TxCycles, ShouldEqual, 1)
		})

		Convey("keeps going after a failed send", func() {
			tr.mu.Lock()
			tr.failIDs[IDBrake] = true
			tr.mu.Unlock()

			c.transmitCycle(context.Background())
			sent := tr.sentFrames()
			So(len(sent), ShouldEqual, 5)
			So(sent[len(sent)-1].ID, ShouldEqual, IDMode)
			So(c.Stats().SendErrors, ShouldEqual, 1)
			So(c.Stats().Sent, ShouldEqual, 5)
		})
	})

	Convey("a written frame reaches the bus within a period", t, func() {
		tr := newTestTransport()
		cfg := idleConfig()
		cfg.TxPeriod = 5 * time.Millisecond
		c, err := NewController(cfg, tr, log)
		So(err, ShouldBeNil)
		defer c.Close()

		p, err := EncodeSteer(-90)
		So(err, ShouldBeNil)
		So(c.SetOutbound(IDSteer, p), ShouldBeNil)

		ok := waitFor(time.Second, func() bool {
			for _, f := range tr.sentFrames() {
				if f.ID == IDSteer && f.Payload == p {
					return true
				}
			}
			return false
		})
		So(ok, ShouldBeTrue)
	})

	Convey("an intent installs throttle, brake and steer together", t, func() {
		c, err := NewController(idleConfig(), newTestTransport(), log)
		So(err, ShouldBeNil)
		defer c.Close()

		So(c.ApplyIntent(Intent{ThrottlePct: 12.3, BrakePct: 0, SteerDeg: 45}), ShouldBeNil)
		in, err := c.Intent()
		So(err, ShouldBeNil)
		So(in.ThrottlePct, ShouldAlmostEqual, 12.3, 1e-9)
		So(in.SteerDeg, ShouldEqual, 45.0)

		err = c.ApplyIntent(Intent{ThrottlePct: 50, BrakePct: -1})
		So(errors.Is(err, ErrDomain), ShouldBeTrue)
		in, _ = c.Intent()
		So(in.ThrottlePct, ShouldAlmostEqual, 12.3, 1e-9)
	})
}

func TestReceive(t *testing.T) {
	log := utils.NewLogger(nil, utils.CRITICAL)

	Convey("a receive cycle", t, func() {
		tr := newTestTransport()
		c, err := NewController(idleConfig(), tr, log)
		So(err, ShouldBeNil)
		defer c.Close()

		Convey("pulls no more than the batch bound", func() {
			for i := 0; i < 50; i++ {
				tr.push(dataFrame(0x500, 0, 0, 0, 0, byte(i)))
			}
			So(c.receiveCycle(), ShouldEqual, DefaultRxBatch)
			pulls, queued, _ := tr.counts()
			So(pulls, ShouldEqual, 21)
			So(queued, ShouldEqual, 29)

			p, ok := c.Inbound(IDThrottleReport)
			So(ok, ShouldBeTrue)
			So(p[4], ShouldEqual, byte(20))

			Convey("and returns early when the transport runs dry", func() {
				So(c.receiveCycle(), ShouldEqual, 21)
				So(c.receiveCycle(), ShouldEqual, 8)
				So(c.receiveCycle(), ShouldEqual, 0)
				p, _ := c.Inbound(IDThrottleReport)
				So(p[4], ShouldEqual, byte(49))
			})
		})

		Convey("skips malformed frames and poll errors", func() {
			short := dataFrame(0x501, 1)
			short.Length = 3
			ext := dataFrame(0x1234567)
			ext.IsExtended = true
			remote := dataFrame(0x502)
			remote.IsRemote = true
			tr.push(short, ext, remote, dataFrame(0x505, 0, 0, 0xFF, 0xFF))
			tr.mu.Lock()
			tr.pollErr = errors.New("bus off")
			tr.mu.Unlock()

			So(c.receiveCycle(), ShouldEqual, 5)
			snap := c.InboundSnapshot()
			So(len(snap), ShouldEqual, 1)
			speed := *c.Telemetry().SpeedMPS
			So(speed, ShouldEqual, -0.001)

			st := c.Stats()
			So(st.Malformed, ShouldEqual, 3)
			So(st.PollErrors, ShouldEqual, 1)
			So(st.Received, ShouldEqual, 1)
		})
	})

	Convey("the receive loop drains on its own", t, func() {
		tr := newTestTransport()
		cfg := idleConfig()
		cfg.RxPeriod = 2 * time.Millisecond
		c, err := NewController(cfg, tr, log)
		So(err, ShouldBeNil)
		defer c.Close()

		tr.push(dataFrame(0x502, 1, 0, 0, 0x01, 0xF4+10))
		ok := waitFor(time.Second, func() bool {
			_, ok := c.Inbound(IDSteerReport)
			return ok
		})
		So(ok, ShouldBeTrue)
		So(*c.Telemetry().SteerDeg, ShouldEqual, 10.0)
	})
}

func TestSimulationFixture(t *testing.T) {
	log := utils.NewLogger(nil, utils.CRITICAL)

	Convey("a controller seeded from a fixture", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "debug.txt")
		So(os.WriteFile(path, []byte("505:00 00 00 64 00 00 00 00\n"), 0644), ShouldBeNil)

		var out bytes.Buffer
		sim := NewSimulated(&out)
		cfg := idleConfig()
		cfg.FixturePath = path
		c, err := NewController(cfg, sim, log)
		So(err, ShouldBeNil)

		p, ok := c.Inbound(IDSpeedReport)
		So(ok, ShouldBeTrue)
		So(p, ShouldResemble, Payload{0, 0, 0, 0x64, 0, 0, 0, 0})
		So(*c.Telemetry().SpeedMPS, ShouldEqual, 0.1)
		So(c.Telemetry().ThrottlePct, ShouldBeNil)

		c.transmitCycle(context.Background())
		So(c.Close(), ShouldBeNil)
		So(out.String(), ShouldContainSubstring, "OPERATION>>> Throttle: 0.0 %, Brake: 0.0 %, Steering: 0.0 deg")
	})

	Convey("a broken fixture aborts construction and releases the transport", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "debug.txt")
		So(os.WriteFile(path, []byte("505 00 00\n"), 0644), ShouldBeNil)

		tr := newTestTransport()
		cfg := idleConfig()
		cfg.FixturePath = path
		c, err := NewController(cfg, tr, log)
		So(c, ShouldBeNil)
		So(errors.Is(err, ErrFixtureParse), ShouldBeTrue)
		_, _, shutdowns := tr.counts()
		So(shutdowns, ShouldEqual, 1)
	})
}

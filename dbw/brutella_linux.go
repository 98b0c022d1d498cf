//go:build linux

package dbw

import (
	"context"
	"fmt"
	"iter"
	"net"
	"sync"
	"sync/atomic"

	brutella "github.com/brutella/can"
	"go.einride.tech/can"

	"dbw-can-bridge/utils"
)

// SocketCAN id flags as carried in brutella frame IDs.
const (
	canEffFlag = 0x80000000
	canRtrFlag = 0x40000000
	canEffMask = 0x1FFFFFFF
)

// Brutella is the hardware transport on top of github.com/brutella/can.
// The bus publishes received frames to a subscribed handler, which buffers
// them for Available.
type Brutella struct {
	log *utils.Logger
	bus *brutella.Bus

	frames  chan can.Frame
	errs    chan error
	dropped atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewBrutella opens ifname and starts the bus read loop.
func NewBrutella(ifname string, rxBuffer int, log *utils.Logger) (*Brutella, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("brutella: interface %s: %w", ifname, err)
	}
	conn, err := brutella.NewReadWriteCloserForInterface(iface)
	if err != nil {
		return nil, fmt.Errorf("brutella: open %s: %w", ifname, err)
	}
	if rxBuffer <= 0 {
		rxBuffer = DefaultRxBuffer
	}

	b := &Brutella{
		log:    log,
		bus:    brutella.NewBus(conn),
		frames: make(chan can.Frame, rxBuffer),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	b.bus.SubscribeFunc(b.handle)
	go func() {
		defer close(b.done)
		if err := b.bus.ConnectAndPublish(); err != nil {
			select {
			case b.errs <- err:
			default:
			}
		}
	}()
	return b, nil
}

func (b *Brutella) handle(f brutella.Frame) {
	cf := can.Frame{
		ID:         f.ID & canEffMask,
		Length:     f.Length,
		Data:       can.Data(f.Data),
		IsExtended: f.ID&canEffFlag != 0,
		IsRemote:   f.ID&canRtrFlag != 0,
	}
	if !cf.IsExtended {
		cf.ID &= maxStdID
	}
	select {
	case b.frames <- cf:
	default:
		b.dropped.Add(1)
	}
}

func (b *Brutella) Send(_ context.Context, id MessageID, payload Payload) error {
	f := brutella.Frame{
		ID:     uint32(id),
		Length: uint8(len(payload)),
		Data:   payload,
	}
	if b.log.Enabled(utils.TRACE) {
		b.log.Trace("TX %s", toCANFrame(id, payload).String())
	}
	return b.bus.Publish(f)
}

func (b *Brutella) Available() iter.Seq2[can.Frame, error] {
	return func(yield func(can.Frame, error) bool) {
		for f, err := range drainChan(b.frames) {
			if !yield(f, err) {
				return
			}
		}
		select {
		case err := <-b.errs:
			yield(can.Frame{}, err)
		default:
		}
	}
}

// Dropped counts frames discarded because the receive buffer was full.
func (b *Brutella) Dropped() uint64 { return b.dropped.Load() }

func (b *Brutella) Shutdown() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.bus.Disconnect()
		<-b.done
	})
	return b.closeErr
}

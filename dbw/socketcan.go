package dbw

import (
	"context"
	"fmt"
	"iter"
	"net"
	"sync"
	"sync/atomic"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"dbw-can-bridge/utils"
)

// DefaultRxBuffer is how many received frames the pump holds between drains.
const DefaultRxBuffer = 256

// SocketCANConfig selects the interface and optional link setup.
type SocketCANConfig struct {
	Interface string
	// Bitrate, when non-zero, is applied and the link brought up before dialing.
	// Needs CAP_NET_ADMIN and is only supported on Linux.
	Bitrate  uint32
	RxBuffer int
}

// SocketCAN is the hardware transport on top of Einride's socketcan package.
// One connection is used for transmit; a second is read by a background pump
// so that Available never blocks.
type SocketCAN struct {
	log *utils.Logger

	txConn net.Conn
	tx     *socketcan.Transmitter
	rxConn net.Conn
	recv   *socketcan.Receiver

	frames  chan can.Frame
	errs    chan error
	dropped atomic.Uint64

	pumpDone  chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewSocketCAN opens the interface for transmit and receive.
func NewSocketCAN(ctx context.Context, cfg SocketCANConfig, log *utils.Logger) (*SocketCAN, error) {
	if cfg.Interface == "" {
		return nil, fmt.Errorf("socketcan: no interface given")
	}
	if cfg.RxBuffer <= 0 {
		cfg.RxBuffer = DefaultRxBuffer
	}
	if cfg.Bitrate > 0 {
		if err := configureLink(cfg.Interface, cfg.Bitrate); err != nil {
			return nil, fmt.Errorf("socketcan: configure %s: %w", cfg.Interface, err)
		}
		log.Info("Configured %s bitrate=%d", cfg.Interface, cfg.Bitrate)
	}

	txConn, err := socketcan.DialContext(ctx, "can", cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	rxConn, err := socketcan.DialContext(ctx, "can", cfg.Interface)
	if err != nil {
		_ = txConn.Close()
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}

	s := &SocketCAN{
		log:      log,
		txConn:   txConn,
		tx:       socketcan.NewTransmitter(txConn),
		rxConn:   rxConn,
		recv:     socketcan.NewReceiver(rxConn),
		frames:   make(chan can.Frame, cfg.RxBuffer),
		errs:     make(chan error, 1),
		pumpDone: make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

func (s *SocketCAN) Send(ctx context.Context, id MessageID, payload Payload) error {
	f := toCANFrame(id, payload)
	if s.log.Enabled(utils.TRACE) {
		s.log.Trace("TX %s", f.String())
	}
	return s.tx.TransmitFrame(ctx, f)
}

// Available yields the frames buffered by the pump, then any pending pump error.
func (s *SocketCAN) Available() iter.Seq2[can.Frame, error] {
	return func(yield func(can.Frame, error) bool) {
		for f, err := range drainChan(s.frames) {
			if !yield(f, err) {
				return
			}
		}
		select {
		case err := <-s.errs:
			yield(can.Frame{}, err)
		default:
		}
	}
}

// Dropped counts frames discarded because the pump buffer was full.
func (s *SocketCAN) Dropped() uint64 { return s.dropped.Load() }

func (s *SocketCAN) Shutdown() error {
	s.closeOnce.Do(func() {
		rxErr := s.rxConn.Close()
		<-s.pumpDone
		txErr := s.txConn.Close()
		if rxErr != nil {
			s.closeErr = rxErr
		} else {
			s.closeErr = txErr
		}
	})
	return s.closeErr
}

// pump blocks on the receiver until the connection is closed.
func (s *SocketCAN) pump() {
	defer close(s.pumpDone)
	for s.recv.Receive() {
		if s.recv.HasErrorFrame() {
			s.log.Debug("RX error frame: %v", s.recv.ErrorFrame())
			continue
		}
		f := s.recv.Frame()
		if s.log.Enabled(utils.TRACE) {
			s.log.Trace("RX %s", f.String())
		}
		select {
		case s.frames <- f:
		default:
			s.dropped.Add(1)
		}
	}
	if err := s.recv.Err(); err != nil {
		select {
		case s.errs <- err:
		default:
		}
	}
}

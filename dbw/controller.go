package dbw

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dbw-can-bridge/utils"
)

// Loop defaults. The hardware transmit period differs from the simulation
// one; the caller picks TxPeriod when it picks the transport.
const (
	DefaultTxPeriod    = 10 * time.Millisecond
	DefaultSimTxPeriod = 100 * time.Millisecond
	DefaultRxPeriod    = 50 * time.Millisecond
	DefaultRxBatch     = 21
)

// Config tunes the controller loops.
type Config struct {
	TxPeriod time.Duration
	RxPeriod time.Duration
	// RxBatch caps the frames pulled from the transport per receive cycle.
	RxBatch int
	// FixturePath, if set, seeds the inbound store before the loops start.
	FixturePath string
}

func DefaultConfig() Config {
	return Config{
		TxPeriod: DefaultTxPeriod,
		RxPeriod: DefaultRxPeriod,
		RxBatch:  DefaultRxBatch,
	}
}

func (cfg Config) withDefaults() Config {
	if cfg.TxPeriod <= 0 {
		cfg.TxPeriod = DefaultTxPeriod
	}
	if cfg.RxPeriod <= 0 {
		cfg.RxPeriod = DefaultRxPeriod
	}
	if cfg.RxBatch <= 0 {
		cfg.RxBatch = DefaultRxBatch
	}
	return cfg
}

// State is the controller lifecycle stage.
type State int32

const (
	StateConstructed State = iota
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats are cumulative loop counters.
type Stats struct {
	Sent       uint64 `json:"sent"`
	SendErrors uint64 `json:"send_errors"`
	TxCycles   uint64 `json:"tx_cycles"`
	Received   uint64 `json:"received"`
	Malformed  uint64 `json:"malformed"`
	PollErrors uint64 `json:"poll_errors"`
	RxCycles   uint64 `json:"rx_cycles"`
}

type counters struct {
	sent       atomic.Uint64
	sendErrors atomic.Uint64
	txCycles   atomic.Uint64
	received   atomic.Uint64
	malformed  atomic.Uint64
	pollErrors atomic.Uint64
	rxCycles   atomic.Uint64
}

// Controller owns the outbound and inbound stores, the transport and the two
// loops moving frames between them. Construct it with NewController; it runs
// until Close.
type Controller struct {
	cfg       Config
	log       *utils.Logger
	transport Transport

	outbound *Store
	inbound  *Store

	state  atomic.Int32
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error

	stats counters
}

// NewController initialises both stores, seeds the inbound store from the
// fixture if one is configured, and starts the transmit and receive loops.
// The controller takes ownership of t: it is shut down on Close, or right
// away if construction fails.
func NewController(cfg Config, t Transport, log *utils.Logger) (*Controller, error) {
	if t == nil {
		return nil, fmt.Errorf("dbw: nil transport")
	}
	if log == nil {
		log = utils.NewLogger(nil, utils.CRITICAL)
	}
	c := &Controller{
		cfg:       cfg.withDefaults(),
		log:       log,
		transport: t,
		outbound:  NewOutboundStore(),
		inbound:   NewInboundStore(),
	}
	c.state.Store(int32(StateConstructed))

	if c.cfg.FixturePath != "" {
		seed, err := LoadFixture(c.cfg.FixturePath)
		if err != nil {
			_ = t.Shutdown()
			return nil, fmt.Errorf("load fixture %s: %w", c.cfg.FixturePath, err)
		}
		for id, p := range seed {
			_ = c.inbound.Set(id, p)
		}
		log.Info("Seeded %d inbound frames from %s", len(seed), c.cfg.FixturePath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(2)
	go c.transmitLoop(ctx)
	go c.receiveLoop(ctx)
	c.state.Store(int32(StateRunning))
	return c, nil
}

// Close stops both loops, waits for them to return and then shuts the
// transport down. Further calls return nil.
func (c *Controller) Close() error {
	first := false
	c.closeOnce.Do(func() {
		first = true
		c.cancel()
		c.wg.Wait()
		c.state.Store(int32(StateClosed))
		c.closeErr = c.transport.Shutdown()
		c.log.Info("Controller closed sent=%d received=%d", c.stats.sent.Load(), c.stats.received.Load())
	})
	if !first {
		return nil
	}
	return c.closeErr
}

func (c *Controller) State() State { return State(c.state.Load()) }

// SetOutbound replaces the command frame for id. Only the outbound command
// identifiers are accepted.
func (c *Controller) SetOutbound(id MessageID, p Payload) error {
	if c.State() == StateClosed {
		return ErrClosed
	}
	if err := c.outbound.Set(id, p); err != nil {
		return fmt.Errorf("%w: %v", err, id)
	}
	return nil
}

// ApplyIntent encodes in and installs the throttle, brake and steer frames.
// Nothing is installed if any component fails to encode.
func (c *Controller) ApplyIntent(in Intent) error {
	frames, err := in.Frames()
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := c.SetOutbound(f.ID, f.Payload); err != nil {
			return err
		}
	}
	return nil
}

// OutboundSnapshot copies the current command set.
func (c *Controller) OutboundSnapshot() map[MessageID]Payload { return c.outbound.Snapshot() }

// InboundSnapshot copies the last payload seen per identifier. Entries of
// different identifiers may come from different receive cycles.
func (c *Controller) InboundSnapshot() map[MessageID]Payload { return c.inbound.Snapshot() }

// Inbound returns the last payload seen for id.
func (c *Controller) Inbound(id MessageID) (Payload, bool) { return c.inbound.Get(id) }

// Telemetry decodes the current inbound snapshot.
func (c *Controller) Telemetry() Telemetry { return DecodeTelemetry(c.inbound.Snapshot()) }

// Intent decodes the currently commanded throttle, brake and steering.
func (c *Controller) Intent() (Intent, error) { return DecodeIntent(c.outbound.Snapshot()) }

func (c *Controller) Stats() Stats {
	return Stats{
		Sent:       c.stats.sent.Load(),
		SendErrors: c.stats.sendErrors.Load(),
		TxCycles:   c.stats.txCycles.Load(),
		Received:   c.stats.received.Load(),
		Malformed:  c.stats.malformed.Load(),
		PollErrors: c.stats.pollErrors.Load(),
		RxCycles:   c.stats.rxCycles.Load(),
	}
}

package dbw

import (
	"context"
	"time"
)

// transmitLoop pushes the whole outbound store to the bus once per TxPeriod.
func (c *Controller) transmitLoop(ctx context.Context) {
	defer c.wg.Done()
	c.log.Debug("TX loop started period=%s", c.cfg.TxPeriod)
	defer c.log.Debug("TX loop stopped")

	ticker := time.NewTicker(c.cfg.TxPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.transmitCycle(ctx)
		}
	}
}

// transmitCycle sends every outbound entry once. A failed send is logged and
// the remaining identifiers are still attempted.
func (c *Controller) transmitCycle(ctx context.Context) {
	snap := c.outbound.Snapshot()
	for _, id := range sortedIDs(snap) {
		if ctx.Err() != nil {
			return
		}
		if err := c.transport.Send(ctx, id, snap[id]); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.stats.sendErrors.Add(1)
			c.log.Error("%v", &TransportError{Op: "send", ID: id, Err: err})
			continue
		}
		c.stats.sent.Add(1)
	}
	c.stats.txCycles.Add(1)
	if obs, ok := c.transport.(CycleObserver); ok {
		obs.EndCycle()
	}
}

// receiveLoop drains available frames into the inbound store once per RxPeriod.
func (c *Controller) receiveLoop(ctx context.Context) {
	defer c.wg.Done()
	c.log.Debug("RX loop started period=%s batch=%d", c.cfg.RxPeriod, c.cfg.RxBatch)
	defer c.log.Debug("RX loop stopped")

	ticker := time.NewTicker(c.cfg.RxPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.receiveCycle()
		}
	}
}

// receiveCycle pulls at most RxBatch items from the transport and returns how
// many were pulled. It never waits for frames that have not arrived yet.
func (c *Controller) receiveCycle() int {
	pulled := 0
	if c.cfg.RxBatch <= 0 {
		return 0
	}
	for raw, err := range c.transport.Available() {
		pulled++
		if err != nil {
			c.stats.pollErrors.Add(1)
			c.log.Error("%v", &TransportError{Op: "poll", Err: err})
		} else if f, ferr := fromCANFrame(raw); ferr != nil {
			c.stats.malformed.Add(1)
			c.log.Debug("RX skipped: %v", ferr)
		} else {
			_ = c.inbound.Set(f.ID, f.Payload)
			c.stats.received.Add(1)
		}
		if pulled >= c.cfg.RxBatch {
			break
		}
	}
	c.stats.rxCycles.Add(1)
	return pulled
}

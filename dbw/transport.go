package dbw

import (
	"context"
	"fmt"
	"iter"

	"go.einride.tech/can"
)

// Transport is the bus collaborator the controller loops run against.
// Implementations must be safe for one sending and one polling goroutine
// running at the same time.
type Transport interface {
	// Send transmits one frame.
	Send(ctx context.Context, id MessageID, payload Payload) error

	// Available yields the frames that have already arrived. It never blocks
	// waiting for traffic and ends once the backlog is empty; the consumer
	// may stop early.
	Available() iter.Seq2[can.Frame, error]

	// Shutdown releases the underlying bus handle.
	Shutdown() error
}

// CycleObserver is implemented by transports that want to know when the
// transmit loop has finished one full pass over the outbound store.
type CycleObserver interface {
	EndCycle()
}

func toCANFrame(id MessageID, p Payload) can.Frame {
	return can.Frame{
		ID:     uint32(id),
		Length: uint8(len(p)),
		Data:   can.Data(p),
	}
}

// fromCANFrame validates a received frame. Only standard data frames with a
// full 8-byte payload are accepted.
func fromCANFrame(f can.Frame) (Frame, error) {
	if err := f.Validate(); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch {
	case f.IsExtended:
		return Frame{}, fmt.Errorf("%w: extended id 0x%X", ErrMalformedFrame, f.ID)
	case f.IsRemote:
		return Frame{}, fmt.Errorf("%w: remote frame 0x%X", ErrMalformedFrame, f.ID)
	case f.Length != 8:
		return Frame{}, fmt.Errorf("%w: 0x%X has %d data bytes", ErrMalformedFrame, f.ID, f.Length)
	}
	return Frame{ID: MessageID(f.ID), Payload: Payload(f.Data)}, nil
}

// drainChan yields buffered frames from ch without blocking.
func drainChan(ch <-chan can.Frame) iter.Seq2[can.Frame, error] {
	return func(yield func(can.Frame, error) bool) {
		for {
			select {
			case f, ok := <-ch:
				if !ok {
					return
				}
				if !yield(f, nil) {
					return
				}
			default:
				return
			}
		}
	}
}

package dbw

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/sasha-s/go-deadlock"
	"go.einride.tech/can"
)

// Simulated stands in for the bus when no hardware is attached. It keeps the
// last frame sent per identifier and, at the end of every transmit cycle,
// prints the commanded intent. It never produces inbound traffic; simulated
// telemetry comes from a fixture seeded into the inbound store.
type Simulated struct {
	out io.Writer

	mu     deadlock.Mutex
	sent   map[MessageID]Payload
	sends  uint64
	cycles uint64
	closed bool
}

// NewSimulated prints cycle reports to w, or to stdout when w is nil.
func NewSimulated(w io.Writer) *Simulated {
	if w == nil {
		w = os.Stdout
	}
	return &Simulated{out: w, sent: make(map[MessageID]Payload)}
}

func (s *Simulated) Send(_ context.Context, id MessageID, payload Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.sent[id] = payload
	s.sends++
	return nil
}

func (s *Simulated) Available() iter.Seq2[can.Frame, error] {
	return func(func(can.Frame, error) bool) {}
}

// EndCycle prints the throttle, brake and steering currently commanded.
func (s *Simulated) EndCycle() {
	s.mu.Lock()
	s.cycles++
	in, err := DecodeIntent(s.sent)
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	if err != nil {
		fmt.Fprintf(s.out, "OPERATION>>> undecodable command set: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "OPERATION>>> %s\n", in)
}

// Sent returns a copy of the last payload transmitted for each identifier.
func (s *Simulated) Sent() map[MessageID]Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[MessageID]Payload, len(s.sent))
	for id, p := range s.sent {
		out[id] = p
	}
	return out
}

// Counts returns the number of frames sent and transmit cycles completed.
func (s *Simulated) Counts() (sends, cycles uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sends, s.cycles
}

func (s *Simulated) Shutdown() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

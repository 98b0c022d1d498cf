package dbw

import (
	"errors"
	"fmt"
)

var (
	// ErrDomain means a physical value outside the encoder's domain (negative percent, NaN).
	ErrDomain = errors.New("dbw: value out of domain")
	// ErrEncodeOverflow means the scaled value does not fit the 16-bit wire field.
	ErrEncodeOverflow = errors.New("dbw: encoded value overflows field")
	// ErrMalformedFrame means a payload too short for the decoded field, or an unusable bus frame.
	ErrMalformedFrame = errors.New("dbw: malformed frame")
	// ErrFixtureParse means a simulation fixture line could not be parsed.
	ErrFixtureParse = errors.New("dbw: fixture parse error")
	// ErrUnknownID means an identifier outside the outbound command set.
	ErrUnknownID = errors.New("dbw: unknown message identifier")
	// ErrClosed is returned by operations on a closed controller or transport.
	ErrClosed = errors.New("dbw: closed")
)

// TransportError wraps a failure of the bus transport during send or poll.
type TransportError struct {
	Op  string // "send" or "poll"
	ID  MessageID
	Err error
}

func (e *TransportError) Error() string {
	if e.Op == "send" {
		return fmt.Sprintf("dbw: transport %s %v: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("dbw: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

//go:build !linux

package dbw

import (
	"context"
	"errors"
	"iter"

	"go.einride.tech/can"

	"dbw-can-bridge/utils"
)

var errBrutellaPlatform = errors.New("brutella: SocketCAN requires linux")

// Brutella is only available on Linux.
type Brutella struct{}

func NewBrutella(string, int, *utils.Logger) (*Brutella, error) {
	return nil, errBrutellaPlatform
}

func (b *Brutella) Send(context.Context, MessageID, Payload) error { return errBrutellaPlatform }

func (b *Brutella) Available() iter.Seq2[can.Frame, error] {
	return func(func(can.Frame, error) bool) {}
}

func (b *Brutella) Dropped() uint64 { return 0 }

func (b *Brutella) Shutdown() error { return nil }

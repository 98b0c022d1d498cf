//go:build linux

package dbw

import (
	"go.einride.tech/can/pkg/candevice"
)

// configureLink sets the bitrate of a SocketCAN device and brings it up.
// The link must be down to change the bitrate.
func configureLink(iface string, bitrate uint32) error {
	d, err := candevice.New(iface)
	if err != nil {
		return err
	}
	up, err := d.IsUp()
	if err != nil {
		return err
	}
	if up {
		if err := d.SetDown(); err != nil {
			return err
		}
	}
	if err := d.SetBitrate(bitrate); err != nil {
		return err
	}
	return d.SetUp()
}

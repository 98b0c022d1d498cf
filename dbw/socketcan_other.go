//go:build !linux

package dbw

import "errors"

func configureLink(string, uint32) error {
	return errors.New("link configuration requires linux")
}

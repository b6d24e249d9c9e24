//go:build darwin || linux

package socket

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// ReuseAddr is a Control function for net.Dialer and net.ListenConfig that
// sets SO_REUSEADDR before bind/connect, so a fresh connection can claim a
// local port still sitting in TIME_WAIT from a previous one.
func ReuseAddr(network, address string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}

// ReusePort additionally sets SO_REUSEPORT, letting multiple processes on the
// same host bind the same datagram port. Required for two multicast readers
// of one group on one machine.
func ReusePort(network, address string, c syscall.RawConn) error {
	if err := ReuseAddr(network, address, c); err != nil {
		return err
	}
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}

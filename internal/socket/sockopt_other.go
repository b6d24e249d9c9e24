//go:build !darwin && !linux

package socket

import "syscall"

// On platforms without SO_REUSEPORT the controls are no-ops; the stream
// transport still works, and multiple multicast readers per host are not
// supported.
func ReuseAddr(network, address string, c syscall.RawConn) error { return nil }

func ReusePort(network, address string, c syscall.RawConn) error { return nil }

// Package diag implements the diagnostic channel bitmask and a small
// structured logger gated by it.
//
// Each channel is an independently toggleable category of runtime logging:
// data sent, data received, socket status transitions, and exceptions.
// The bitmask is plain configuration — it is passed into components at
// construction and never mutated afterwards.
package diag

import (
	"fmt"
	"strings"
)

// Flags is a set of diagnostic channels encoded as a bit field.
type Flags uint32

const (
	// None disables all diagnostic channels.
	None Flags = 0x0

	// Send logs data written to sockets.
	Send Flags = 0x1

	// Recv logs data read from sockets.
	Recv Flags = 0x2

	// Exceptions logs errors raised while sending or receiving.
	Exceptions Flags = 0x4

	// Status logs socket status transitions (open/close, peer counts).
	Status Flags = 0x8

	// IO is Send | Recv.
	IO = Send | Recv

	// All enables every channel.
	All = IO | Exceptions | Status
)

// Has reports whether every channel in f2 is enabled in f.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 != 0
}

var flagNames = []struct {
	flag Flags
	name string
}{
	{Send, "send"},
	{Recv, "recv"},
	{Exceptions, "exceptions"},
	{Status, "status"},
}

// String renders the enabled channels as a pipe-separated list,
// e.g. "send|recv|status". Returns "none" when no channel is set.
func (f Flags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Parse converts a list of channel names (separated by commas or pipes)
// into a Flags value. The aggregate names "io" and "all" are accepted,
// as are "none" and the empty string.
func Parse(s string) (Flags, error) {
	var f Flags
	s = strings.ReplaceAll(s, "|", ",")
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "", "none":
		case "send":
			f |= Send
		case "recv", "receive":
			f |= Recv
		case "exceptions":
			f |= Exceptions
		case "status":
			f |= Status
		case "io":
			f |= IO
		case "all":
			f |= All
		default:
			return None, fmt.Errorf("diag: unknown channel %q", strings.TrimSpace(part))
		}
	}
	return f, nil
}

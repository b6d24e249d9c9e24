// Package config holds the named defaults shared by the stream and multicast
// transports, and an environment-driven Config for the CLI.
//
// There is deliberately no package-level mutable state: callers load or
// construct a Config once and pass it (or the relevant fields) into each
// component at construction.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	// DefaultPort is the port used when none is specified.
	DefaultPort = 2011

	// DefaultGroupAddr is the multicast session address used when none is
	// specified.
	DefaultGroupAddr = "227.27.27.27"

	// DefaultHost is the host used when none is specified.
	DefaultHost = "localhost"

	// MaxDatagramSize bounds the payload of a single multicast datagram.
	// Larger sends are rejected; larger received datagrams are dropped.
	MaxDatagramSize = 1000

	// DefaultFanoutWorkers sizes the broadcast dispatcher's worker pool.
	DefaultFanoutWorkers = 10

	// DefaultWriteTimeout bounds a single WriteLine against a stalled peer.
	DefaultWriteTimeout = 10 * time.Second
)

// Config carries every tunable the transports and the CLI consume.
type Config struct {
	Host          string        `env:"SOCKET_HOST" envDefault:"localhost"`
	Port          int           `env:"SOCKET_PORT" envDefault:"2011"`
	GroupAddr     string        `env:"SOCKET_GROUP" envDefault:"227.27.27.27"`
	MaxDatagram   int           `env:"SOCKET_MAX_DATAGRAM" envDefault:"1000"`
	FanoutWorkers int           `env:"SOCKET_FANOUT_WORKERS" envDefault:"10"`
	RatePerSec    int           `env:"SOCKET_RATE_PER_SEC" envDefault:"0"`
	WriteTimeout  time.Duration `env:"SOCKET_WRITE_TIMEOUT" envDefault:"10s"`
	Debug         string        `env:"SOCKET_DEBUG" envDefault:""`
}

// Default returns a Config populated with the package defaults.
func Default() Config {
	return Config{
		Host:          DefaultHost,
		Port:          DefaultPort,
		GroupAddr:     DefaultGroupAddr,
		MaxDatagram:   MaxDatagramSize,
		FanoutWorkers: DefaultFanoutWorkers,
		WriteTimeout:  DefaultWriteTimeout,
	}
}

// Load builds a Config from the environment, falling back to the defaults
// above for unset variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

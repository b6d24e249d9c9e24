package diag

import (
	"io"

	"github.com/rs/zerolog"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Logger emits diagnostic events on the channels enabled in its Flags.
// A nil *Logger is a safe no-op, so components can accept one optionally.
type Logger struct {
	zl    zerolog.Logger
	flags Flags
}

// New creates a Logger writing human-readable output to w with the given
// channels enabled.
func New(w io.Writer, flags Flags) *Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
	zl := zerolog.New(cw).With().Timestamp().Logger()
	return &Logger{zl: zl, flags: flags}
}

// NewWithLogger wraps an existing zerolog.Logger. Used when the caller
// already owns a configured root logger.
func NewWithLogger(zl zerolog.Logger, flags Flags) *Logger {
	return &Logger{zl: zl, flags: flags}
}

// Nop returns a logger with every channel disabled.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), flags: None}
}

// Flags returns the enabled channel set.
func (l *Logger) Flags() Flags {
	if l == nil {
		return None
	}
	return l.flags
}

// Send logs an outbound line on the send channel.
func (l *Logger) Send(line string) {
	if l == nil || !l.flags.Has(Send) {
		return
	}
	l.zl.Debug().Str("dir", "send").Msg(line)
}

// Recv logs an inbound line on the receive channel.
func (l *Logger) Recv(line string) {
	if l == nil || !l.flags.Has(Recv) {
		return
	}
	l.zl.Debug().Str("dir", "recv").Msg(line)
}

// Statusf logs a socket status transition on the status channel.
func (l *Logger) Statusf(format string, args ...any) {
	if l == nil || !l.flags.Has(Status) {
		return
	}
	l.zl.Info().Msgf(format, args...)
}

// StatusCount logs a status transition together with the live peer count.
func (l *Logger) StatusCount(msg string, peers int) {
	if l == nil || !l.flags.Has(Status) {
		return
	}
	l.zl.Info().Int("peers", peers).Msg(msg)
}

// Exception logs an error on the exceptions channel.
func (l *Logger) Exception(err error, msg string) {
	if l == nil || !l.flags.Has(Exceptions) {
		return
	}
	l.zl.Error().Err(err).Msg(msg)
}

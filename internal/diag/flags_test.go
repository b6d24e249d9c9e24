package diag

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagUnions(t *testing.T) {
	assert.Equal(t, Send|Recv, IO)
	assert.Equal(t, Send|Recv|Exceptions|Status, All)
	assert.True(t, IO.Has(Send))
	assert.True(t, IO.Has(Recv))
	assert.False(t, IO.Has(Status))
	assert.False(t, None.Has(Send))
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "send", Send.String())
	assert.Equal(t, "send|recv", IO.String())
	assert.Equal(t, "send|recv|exceptions|status", All.String())
	assert.Equal(t, "recv|status", (Recv | Status).String())
}

func TestParse(t *testing.T) {
	for input, want := range map[string]Flags{
		"":                None,
		"none":            None,
		"send":            Send,
		"send,recv":       IO,
		"io":              IO,
		"all":             All,
		"send|status":     Send | Status,
		" Recv , Status ": Recv | Status,
		"receive":         Recv,
		"exceptions,io":   IO | Exceptions,
	} {
		got, err := Parse(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, got, "input %q", input)
	}

	_, err := Parse("send,bogus")
	require.Error(t, err)
}

func TestLoggerGatesByChannel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Send|Status)

	l.Send("outbound line")
	l.Recv("inbound line")
	l.Statusf("peer count %d", 3)
	l.Exception(assert.AnError, "boom")

	out := buf.String()
	assert.Contains(t, out, "outbound line")
	assert.NotContains(t, out, "inbound line")
	assert.Contains(t, out, "peer count 3")
	assert.NotContains(t, out, "boom")
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Send("x")
	l.Recv("x")
	l.Statusf("x")
	l.StatusCount("x", 1)
	l.Exception(assert.AnError, "x")
	assert.Equal(t, None, l.Flags())
}

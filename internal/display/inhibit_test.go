package display

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	method string
	args   []interface{}
}

type fakeBus struct {
	calls []recordedCall
	err   error
}

func (b *fakeBus) Call(method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	b.calls = append(b.calls, recordedCall{method: method, args: args})
	if b.err != nil {
		return &dbus.Call{Err: b.err}
	}
	if method == screenSaverInterface+".Inhibit" {
		return &dbus.Call{Body: []interface{}{uint32(42)}}
	}
	return &dbus.Call{}
}

func TestInhibitor_InhibitAndRelease(t *testing.T) {
	bus := &fakeBus{}
	s := &ScreenSaverInhibitor{obj: bus}

	require.NoError(t, s.Inhibit("illuminate", "installation running"))
	require.NoError(t, s.Inhibit("illuminate", "installation running"))
	require.Len(t, bus.calls, 1, "second Inhibit is a no-op")
	assert.Equal(t, []interface{}{"illuminate", "installation running"}, bus.calls[0].args)

	require.NoError(t, s.Close())
	require.Len(t, bus.calls, 2)
	assert.Equal(t, screenSaverInterface+".UnInhibit", bus.calls[1].method)
	assert.Equal(t, []interface{}{uint32(42)}, bus.calls[1].args)

	require.NoError(t, s.Release())
	assert.Len(t, bus.calls, 2, "release when not inhibited does nothing")
}

func TestInhibitor_CallError(t *testing.T) {
	bus := &fakeBus{err: errors.New("no such interface")}
	s := &ScreenSaverInhibitor{obj: bus}

	err := s.Inhibit("illuminate", "installation running")
	assert.ErrorContains(t, err, "no such interface")
	assert.NoError(t, s.Release())
}

package control

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hypebeast/go-osc/osc"
)

// ParseArg turns a command-line token into the OSC argument it most
// plausibly means: int32, float32, bool, or string.
func ParseArg(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int32(i)
	}
	if f, err := strconv.ParseFloat(s, 32); err == nil {
		return float32(f)
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// Send delivers one OSC message to host:port.
func Send(host string, port int, address string, args ...interface{}) error {
	if !strings.HasPrefix(address, "/") {
		return fmt.Errorf("invalid OSC address %q: must start with /", address)
	}
	client := osc.NewClient(host, port)
	if err := client.Send(osc.NewMessage(address, args...)); err != nil {
		return fmt.Errorf("failed to send %s to %s:%d: %w", address, host, port, err)
	}
	return nil
}

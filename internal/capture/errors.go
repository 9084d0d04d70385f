package capture

import (
	"errors"
	"strings"
)

var (
	// ErrDeviceUnavailable means the device is missing, busy, or could not be opened.
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrUnsupportedMode means the device refused the requested resolution or format.
	ErrUnsupportedMode = errors.New("capture mode unsupported")
)

// Status is the outcome of a selection request.
type Status int

const (
	StatusOK Status = iota
	StatusOutOfRange
	StatusDeviceUnavailable
	StatusUnsupportedMode
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusOutOfRange:
		return "out_of_range"
	case StatusDeviceUnavailable:
		return "device_unavailable"
	case StatusUnsupportedMode:
		return "unsupported_mode"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText lets Status render as its name in JSON and YAML.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Classify maps a backend error onto a selection Status.
// Sentinel errors win; otherwise the message is matched against known
// GStreamer and V4L2 phrasing, mode problems before availability problems.
func Classify(err error) Status {
	if err == nil {
		return StatusOK
	}
	if errors.Is(err, ErrUnsupportedMode) {
		return StatusUnsupportedMode
	}
	if errors.Is(err, ErrDeviceUnavailable) {
		return StatusDeviceUnavailable
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, unsupportedKeywords) {
		return StatusUnsupportedMode
	}
	if containsAny(msg, unavailableKeywords) {
		return StatusDeviceUnavailable
	}
	return StatusFailed
}

// classifyMessage wraps a raw backend message with the sentinel it maps to.
func classifyMessage(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, unsupportedKeywords):
		return &backendError{msg: msg, kind: ErrUnsupportedMode}
	case containsAny(lower, unavailableKeywords):
		return &backendError{msg: msg, kind: ErrDeviceUnavailable}
	default:
		return errors.New(msg)
	}
}

type backendError struct {
	msg  string
	kind error
}

func (e *backendError) Error() string { return e.kind.Error() + ": " + e.msg }

func (e *backendError) Unwrap() error { return e.kind }

var unsupportedKeywords = []string{
	"not-negotiated",
	"not negotiated",
	"negotiation",
	"caps",
	"format",
	"unsupported",
	"resolution",
}

var unavailableKeywords = []string{
	"busy",
	"no such file",
	"no such device",
	"not found",
	"permission denied",
	"disconnected",
	"could not open",
	"cannot identify device",
	"not a capture device",
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

package capture

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/illuminate/internal/compositor"
	"github.com/bryanchriswhite/illuminate/internal/logger"
)

// State is the lifecycle state of a capture session.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText lets State render as its name in JSON and YAML.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Backend names a stream implementation.
type Backend string

const (
	BackendGst        Backend = "gst"
	BackendSubprocess Backend = "subprocess"
	BackendPattern    Backend = "pattern"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendGst, BackendSubprocess, BackendPattern:
		return Backend(s), nil
	case "":
		return BackendGst, nil
	default:
		return "", fmt.Errorf("unknown capture backend %q", s)
	}
}

// NewOpener returns an Opener for the given backend. Test-pattern device
// IDs are always served by PatternStream.
func NewOpener(backend Backend, fps int) Opener {
	return func(d Descriptor) (Stream, error) {
		if IsPattern(d.DeviceID) || backend == BackendPattern {
			return NewPatternStream(d, fps)
		}
		switch backend {
		case BackendSubprocess:
			return NewSubprocessStream(d, fps)
		default:
			return NewGstStream(d, fps)
		}
	}
}

// NewEnumerator returns the device enumerator for a backend. The pattern
// backend lists only the synthetic device; the others list V4L2 cameras
// followed by the synthetic one when withPattern is set.
func NewEnumerator(backend Backend, withPattern bool) Enumerator {
	if backend == BackendPattern {
		return PatternEnumerator{}
	}
	v4l2 := NewV4L2Enumerator()
	if withPattern {
		return PatternEnumerator{Next: v4l2}
	}
	return v4l2
}

// Session owns at most one open stream at a time.
type Session struct {
	catalog *Catalog
	open    Opener

	mu         sync.RWMutex
	state      State
	active     *Descriptor
	stream     Stream
	seq        uint64
	frame      *compositor.Frame
	lastStatus Status
}

// NewSession creates an idle session over catalog.
func NewSession(catalog *Catalog, open Opener) *Session {
	return &Session{
		catalog: catalog,
		open:    open,
		state:   StateIdle,
		frame:   &compositor.Frame{},
	}
}

// Catalog returns the catalog the session selects from.
func (s *Session) Catalog() *Catalog { return s.catalog }

// Select stops any running stream and starts the descriptor at index.
// An out-of-range index leaves the current session untouched.
func (s *Session) Select(index int) Status {
	log := logger.WithComponent("capture")

	d, ok := s.catalog.At(index)
	if !ok {
		log.Warn().
			Int("index", index).
			Int("sources", s.catalog.Len()).
			Msg("Camera index out of range")
		s.setStatus(StatusOutOfRange)
		return StatusOutOfRange
	}

	s.Stop()

	s.mu.Lock()
	s.state = StateStarting
	s.mu.Unlock()

	log.Info().Int("index", index).Str("source", d.Label()).Msg("Starting camera")

	stream, err := s.open(d)
	if err == nil {
		err = stream.Start()
		if err != nil {
			_ = stream.Stop()
		}
	}

	if err != nil {
		status := Classify(err)

		s.mu.Lock()
		s.state = StateFailed
		s.mu.Unlock()

		log.Error().
			Err(err).
			Int("index", index).
			Str("source", d.Label()).
			Stringer("status", status).
			Msg("Failed to start camera")

		s.mu.Lock()
		s.state = StateIdle
		s.active = nil
		s.stream = nil
		s.lastStatus = status
		s.mu.Unlock()
		return status
	}

	s.mu.Lock()
	s.state = StateRunning
	s.active = &d
	s.stream = stream
	s.seq = 0
	s.lastStatus = StatusOK
	s.mu.Unlock()

	log.Info().Str("source", d.Label()).Msg("Camera running")
	return StatusOK
}

// SelectByName selects the first descriptor matching name and resolution.
func (s *Session) SelectByName(name string, width, height int) Status {
	index, ok := s.catalog.FindByName(name, width, height)
	if !ok {
		logger.WithComponent("capture").Warn().
			Str("name", name).
			Int("width", width).
			Int("height", height).
			Msg("No source with that name and resolution")
		s.setStatus(StatusOutOfRange)
		return StatusOutOfRange
	}
	return s.Select(index)
}

// PollFrame returns the newest frame when one arrived since the last call.
// The returned frame is owned by the session and valid until the next call.
func (s *Session) PollFrame() (*compositor.Frame, bool) {
	s.mu.Lock()
	stream := s.stream
	active := s.active
	s.mu.Unlock()

	if stream == nil {
		return nil, false
	}

	if err := stream.Err(); err != nil {
		logger.WithComponent("capture").Error().
			Err(err).
			Str("source", active.Label()).
			Msg("Camera stream ended")
		s.Stop()
		s.setStatus(Classify(err))
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := stream.Poll(s.frame, s.seq)
	if !ok {
		return nil, false
	}
	s.seq = seq

	if s.frame.Width != active.Width || s.frame.Height != active.Height {
		logger.WithComponent("capture").Warn().
			Int("width", s.frame.Width).
			Int("height", s.frame.Height).
			Str("source", active.Label()).
			Msg("Dropping frame with unexpected size")
		return nil, false
	}
	return s.frame, true
}

// Stop releases the stream, if any. Safe to call repeatedly.
func (s *Session) Stop() {
	s.mu.Lock()
	stream := s.stream
	active := s.active
	s.stream = nil
	s.active = nil
	s.state = StateIdle
	s.mu.Unlock()

	if stream == nil {
		return
	}
	if err := stream.Stop(); err != nil {
		logger.WithComponent("capture").Warn().Err(err).Str("source", active.Label()).Msg("Error stopping camera")
	}
}

// IsActive reports whether a stream is running.
func (s *Session) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateRunning && s.active != nil
}

// Active returns the running descriptor.
func (s *Session) Active() (Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return Descriptor{}, false
	}
	return *s.active, true
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastStatus returns the result of the most recent selection.
func (s *Session) LastStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStatus
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.lastStatus = st
	s.mu.Unlock()
}

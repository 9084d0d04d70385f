package display

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/illuminate/internal/logger"
	"github.com/godbus/dbus/v5"
)

const (
	screenSaverService   = "org.freedesktop.ScreenSaver"
	screenSaverPath      = "/org/freedesktop/ScreenSaver"
	screenSaverInterface = "org.freedesktop.ScreenSaver"
)

// caller is the part of dbus.BusObject the inhibitor needs.
type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// ScreenSaverInhibitor keeps the desktop from blanking the projector while
// the installation runs.
type ScreenSaverInhibitor struct {
	conn *dbus.Conn
	obj  caller

	mu     sync.Mutex
	cookie uint32
	active bool
}

// NewScreenSaverInhibitor connects to the session bus and checks that a
// screensaver service is present.
func NewScreenSaverInhibitor() (*ScreenSaverInhibitor, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to list D-Bus names: %w", err)
	}

	found := false
	for _, name := range names {
		if name == screenSaverService {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, fmt.Errorf("%s not found on D-Bus", screenSaverService)
	}

	return &ScreenSaverInhibitor{
		conn: conn,
		obj:  conn.Object(screenSaverService, dbus.ObjectPath(screenSaverPath)),
	}, nil
}

// Inhibit blocks screen blanking until Release. Repeated calls are no-ops.
func (s *ScreenSaverInhibitor) Inhibit(app, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return nil
	}

	var cookie uint32
	if err := s.obj.Call(screenSaverInterface+".Inhibit", 0, app, reason).Store(&cookie); err != nil {
		return fmt.Errorf("failed to inhibit screensaver: %w", err)
	}
	s.cookie = cookie
	s.active = true

	logger.WithComponent("display").Info().Uint32("cookie", cookie).Msg("Screensaver inhibited")
	return nil
}

// Release lifts the inhibition. Safe to call when not inhibited.
func (s *ScreenSaverInhibitor) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil
	}
	s.active = false

	if err := s.obj.Call(screenSaverInterface+".UnInhibit", 0, s.cookie).Err; err != nil {
		return fmt.Errorf("failed to release screensaver inhibition: %w", err)
	}
	logger.WithComponent("display").Info().Uint32("cookie", s.cookie).Msg("Screensaver released")
	return nil
}

// Close releases the inhibition and the bus connection.
func (s *ScreenSaverInhibitor) Close() error {
	err := s.Release()
	if s.conn != nil {
		s.conn.Close()
	}
	return err
}

// Package engine runs the installation's tick loop.
//
// Each tick drains the control queue, advances the hue oscillator while a camera
// is running, composites the newest camera frame and presents the result (or a
// status message) to every sink. The tick goroutine is the only writer of the
// effect parameters, the compositor and the capture selection; other goroutines
// read the Status snapshot published at the end of each tick.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/illuminate/internal/capture"
	"github.com/bryanchriswhite/illuminate/internal/compositor"
	"github.com/bryanchriswhite/illuminate/internal/control"
	"github.com/bryanchriswhite/illuminate/internal/layout"
	"github.com/bryanchriswhite/illuminate/internal/logger"
	"github.com/bryanchriswhite/illuminate/internal/output"
	"github.com/bryanchriswhite/illuminate/internal/overlay"
	"github.com/bryanchriswhite/illuminate/internal/params"
	"github.com/bryanchriswhite/illuminate/internal/settings"
)

const (
	// DefaultTickRate is the UI tick frequency in Hz.
	DefaultTickRate = 60

	// statusRefresh is how often an unchanged status frame is presented again,
	// so sinks that attach late (MJPEG clients) still receive a picture.
	statusRefresh = time.Second
)

// Options configures an engine.
type Options struct {
	Session *capture.Session
	Queue   *control.Queue
	Store   *settings.Store
	Sinks   []output.Sink
	Workers int
	// TickRate is used by Run. Zero means DefaultTickRate.
	TickRate int
}

// Status is the state published after every tick.
type Status struct {
	State        capture.State       `json:"state"`
	LastResult   capture.Status      `json:"last_result"`
	Camera       *capture.Descriptor `json:"camera,omitempty"`
	Message      string              `json:"message,omitempty"`
	Params       params.Snapshot     `json:"params"`
	HuePosition  float64             `json:"hue_position"`
	HueDirection string              `json:"hue_direction"`
	SkipCount    int                 `json:"skip_count"`
	Compositor   compositor.Stats    `json:"compositor"`
	Ticks        uint64              `json:"ticks"`
	QueueDropped uint64              `json:"queue_dropped"`
	Sinks        []string            `json:"sinks"`
}

// sinkState remembers what was last presented to one sink.
type sinkState struct {
	sink    output.Sink
	width   int
	height  int
	message string
	status  *compositor.Frame
	at      time.Time
	failing bool
}

// Engine ties capture, control, compositing and presentation together.
type Engine struct {
	params     *params.Parameters
	comp       *compositor.Compositor
	osc        *compositor.HueOscillator
	session    *capture.Session
	queue      *control.Queue
	dispatcher *control.Dispatcher
	store      *settings.Store
	sinks      []*sinkState
	tickRate   int
	ticks      uint64
	now        func() time.Time

	mu     sync.RWMutex
	status Status

	quit     chan struct{}
	quitOnce sync.Once
}

// New creates an engine. Session and Queue are required.
func New(opts Options) (*Engine, error) {
	if opts.Session == nil {
		return nil, errors.New("engine: session is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("engine: control queue is required")
	}
	if opts.Store == nil {
		opts.Store = settings.NewStore(settings.DefaultPath())
	}
	if opts.TickRate <= 0 {
		opts.TickRate = DefaultTickRate
	}

	e := &Engine{
		params:   params.New(),
		comp:     compositor.New(opts.Workers),
		osc:      compositor.NewHueOscillator(),
		session:  opts.Session,
		queue:    opts.Queue,
		store:    opts.Store,
		tickRate: opts.TickRate,
		now:      time.Now,
		quit:     make(chan struct{}),
	}
	e.dispatcher = control.NewDispatcher(e)
	for _, s := range opts.Sinks {
		e.AddSink(s)
	}
	e.publish("")
	return e, nil
}

// AddSink registers a sink. It must be called before the tick loop starts.
func (e *Engine) AddSink(s output.Sink) {
	e.sinks = append(e.sinks, &sinkState{sink: s})
}

// Dispatcher returns the control dispatcher, for listing addresses.
func (e *Engine) Dispatcher() *control.Dispatcher { return e.dispatcher }

// Queue returns the control queue fed by every transport.
func (e *Engine) Queue() *control.Queue { return e.queue }

// Catalog returns the device catalog.
func (e *Engine) Catalog() *capture.Catalog { return e.session.Catalog() }

// Params returns the live effect parameters. Only the tick goroutine may use it.
func (e *Engine) Params() *params.Parameters { return e.params }

// Select starts the camera at index. A new camera starts with fresh history and
// the select zoom.
func (e *Engine) Select(index int) capture.Status {
	st := e.session.Select(index)
	if st == capture.StatusOutOfRange {
		return st
	}
	e.comp.Reset()
	if st == capture.StatusOK {
		e.params.SetZoom(params.SelectZoom)
	}
	return st
}

// Rescan re-enumerates capture devices. The running camera is not affected.
func (e *Engine) Rescan() error {
	if err := e.session.Catalog().Rescan(); err != nil {
		return fmt.Errorf("rescan devices: %w", err)
	}
	logger.WithComponent("engine").Info().
		Int("sources", e.session.Catalog().Len()).
		Msg("Device list refreshed")
	return nil
}

// SaveSettings persists the parameters and the running camera.
func (e *Engine) SaveSettings() error {
	var cam *settings.Camera
	if d, ok := e.session.Active(); ok {
		cam = &settings.Camera{Name: d.Name, Width: d.Width, Height: d.Height}
	}
	if err := e.store.Save(e.params.Snapshot(), cam); err != nil {
		return err
	}
	logger.WithComponent("engine").Info().Str("path", e.store.Path()).Msg("Settings saved")
	return nil
}

// LoadSettings restores saved parameters. The saved camera is selected first when
// it differs from the running one, so the saved zoom wins over the select zoom.
// A file that cannot be read or parsed changes nothing.
func (e *Engine) LoadSettings() error {
	log := logger.WithComponent("engine")

	rec, err := e.store.Load()
	if err != nil {
		return err
	}

	if cam := rec.Camera; cam != nil {
		d, ok := e.session.Active()
		if !ok || !d.Matches(cam.Name, cam.Width, cam.Height) {
			index, found := e.session.Catalog().FindByName(cam.Name, cam.Width, cam.Height)
			if found {
				e.Select(index)
			} else {
				log.Warn().
					Str("name", cam.Name).
					Int("width", cam.Width).
					Int("height", cam.Height).
					Msg("Saved camera not found, keeping current camera")
			}
		}
	}

	e.params.Apply(rec.Params)
	log.Info().Str("path", e.store.Path()).Msg("Settings loaded")
	return nil
}

// Quit asks the tick loop to stop. Safe to call from any goroutine.
func (e *Engine) Quit() {
	e.quitOnce.Do(func() {
		logger.WithComponent("engine").Info().Msg("Quit requested")
		close(e.quit)
	})
}

// Done is closed once Quit has been called.
func (e *Engine) Done() <-chan struct{} { return e.quit }

// Submit queues a control message. Safe to call from any goroutine.
func (e *Engine) Submit(m control.Message) { e.queue.Push(m) }

// Tick runs one iteration of the loop. It never fails; sink errors and panics
// are logged.
func (e *Engine) Tick() {
	e.ticks++

	e.dispatcher.DispatchAll(e.queue.Drain())

	snap := e.params.Snapshot()
	if e.session.IsActive() {
		lo, hi := snap.HueBounds()
		e.osc.Advance(snap.HueRotSpeed*compositor.HueSpeedFactor, lo, hi)
	}

	fresh := false
	if frame, ok := e.session.PollFrame(); ok {
		fresh = e.comp.Composite(frame, snap, e.osc.Position()) != nil
	}

	var shown *compositor.Frame
	msg := ""
	switch {
	case !e.session.IsActive():
		msg = overlay.MessageSelectCamera
	case e.comp.Display() == nil:
		msg = overlay.MessageWaiting
	default:
		shown = e.comp.Display()
	}

	now := e.now()
	for _, st := range e.sinks {
		e.present(st, shown, msg, fresh, now)
	}

	e.publish(msg)
}

func (e *Engine) present(st *sinkState, shown *compositor.Frame, msg string, fresh bool, now time.Time) {
	w, h := st.sink.Viewport()
	if w <= 0 || h <= 0 {
		return
	}
	resized := w != st.width || h != st.height

	frame := shown
	if frame == nil {
		if st.status == nil || resized || st.message != msg {
			st.status = overlay.StatusFrame(w, h, msg)
		} else if now.Sub(st.at) < statusRefresh {
			return
		}
		frame = st.status
	} else if !fresh && !resized && st.message == "" {
		return
	}

	st.width, st.height, st.message, st.at = w, h, msg, now
	e.presentTo(st, frame, layout.Fit(frame.Width, frame.Height, w, h))
}

func (e *Engine) presentTo(st *sinkState, frame *compositor.Frame, dst layout.Rect) {
	log := logger.WithComponent("engine")
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("sink", st.sink.Name()).
				Interface("panic", r).
				Msg("Sink panicked while presenting")
			st.failing = true
		}
	}()

	if err := st.sink.Present(frame, dst); err != nil {
		if !st.failing {
			log.Warn().Err(err).Str("sink", st.sink.Name()).Msg("Failed to present frame")
		}
		st.failing = true
		return
	}
	if st.failing {
		log.Info().Str("sink", st.sink.Name()).Msg("Sink recovered")
	}
	st.failing = false
}

func (e *Engine) publish(msg string) {
	s := Status{
		State:        e.session.State(),
		LastResult:   e.session.LastStatus(),
		Message:      msg,
		Params:       e.params.Snapshot(),
		HuePosition:  e.osc.Position(),
		HueDirection: e.osc.Direction().String(),
		SkipCount:    e.comp.SkipCount(),
		Compositor:   e.comp.Stats(),
		Ticks:        e.ticks,
		QueueDropped: e.queue.Dropped(),
		Sinks:        make([]string, 0, len(e.sinks)),
	}
	if d, ok := e.session.Active(); ok {
		s.Camera = &d
	}
	for _, st := range e.sinks {
		s.Sinks = append(s.Sinks, st.sink.Name())
	}

	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// Status returns the state published by the most recent tick.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Snapshot returns the effect parameters as of the most recent tick.
func (e *Engine) Snapshot() params.Snapshot {
	return e.Status().Params
}

// Run ticks at the configured rate until ctx is cancelled or Quit is called,
// then releases the camera.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(e.tickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer e.Shutdown()

	logger.WithComponent("engine").Info().
		Int("tick_rate", e.tickRate).
		Dur("interval", interval).
		Int("sinks", len(e.sinks)).
		Msg("Tick loop started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.quit:
			return nil
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Shutdown releases the camera. Safe to call more than once.
func (e *Engine) Shutdown() {
	e.session.Stop()
	e.publish(overlay.MessageSelectCamera)
	logger.WithComponent("engine").Info().Msg("Camera released")
}

package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/illuminate/internal/capture"
	"github.com/bryanchriswhite/illuminate/internal/compositor"
	"github.com/bryanchriswhite/illuminate/internal/control"
	"github.com/bryanchriswhite/illuminate/internal/layout"
	"github.com/bryanchriswhite/illuminate/internal/output"
	"github.com/bryanchriswhite/illuminate/internal/overlay"
	"github.com/bryanchriswhite/illuminate/internal/params"
	"github.com/bryanchriswhite/illuminate/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type devices []capture.Device

func (d devices) Devices() ([]capture.Device, error) { return d, nil }

// stream is a capture.Stream whose frames are pushed by the test.
type stream struct {
	desc     capture.Descriptor
	mu       sync.Mutex
	frame    *compositor.Frame
	seq      uint64
	err      error
	startErr error
	stopped  bool
}

func (s *stream) Start() error { return s.startErr }

func (s *stream) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

func (s *stream) Poll(dst *compositor.Frame, since uint64) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil || s.seq <= since {
		return s.seq, false
	}
	dst.Assign(s.frame)
	return s.seq, true
}

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) push(r, g, b uint8) {
	f := compositor.NewFrame(s.desc.Width, s.desc.Height)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			f.Set(x, y, r, g, b)
		}
	}
	s.mu.Lock()
	s.frame = f
	s.seq++
	s.mu.Unlock()
}

type opener struct {
	streams  []*stream
	startErr map[string]error
}

func (o *opener) open(d capture.Descriptor) (capture.Stream, error) {
	s := &stream{desc: d, startErr: o.startErr[d.DeviceID]}
	o.streams = append(o.streams, s)
	return s, nil
}

func (o *opener) last() *stream { return o.streams[len(o.streams)-1] }

type presented struct {
	width, height int
	dst           layout.Rect
}

type sink struct {
	name   string
	w, h   int
	frames []presented
	err    error
	panics bool
}

func (s *sink) Name() string         { return s.name }
func (s *sink) Viewport() (int, int) { return s.w, s.h }
func (s *sink) count() int           { return len(s.frames) }
func (s *sink) lastFrame() presented { return s.frames[len(s.frames)-1] }

func (s *sink) Present(f *compositor.Frame, dst layout.Rect) error {
	if s.panics {
		panic("boom")
	}
	s.frames = append(s.frames, presented{width: f.Width, height: f.Height, dst: dst})
	return s.err
}

type fixture struct {
	engine *Engine
	opener *opener
	sink   *sink
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	catalog := capture.NewCatalog(devices{
		{ID: "/dev/video0", Name: "Cam A"},
		{ID: "/dev/video2", Name: "Cam B"},
	}, nil, capture.EnumerateAll, []capture.Resolution{{Width: 8, Height: 6}})
	_, err := catalog.Enumerate()
	require.NoError(t, err)

	o := &opener{startErr: map[string]error{}}
	sk := &sink{name: "test", w: 16, h: 12}

	e, err := New(Options{
		Session: capture.NewSession(catalog, o.open),
		Queue:   control.NewQueue(0),
		Store:   settings.NewStore(filepath.Join(t.TempDir(), "settings.yaml")),
		Sinks:   []output.Sink{sk},
	})
	require.NoError(t, err)

	f := &fixture{engine: e, opener: o, sink: sk, clock: time.Unix(1000, 0)}
	e.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) send(address string, args ...interface{}) {
	f.engine.Submit(control.Message{Address: address, Args: args, Source: "test"})
}

func TestNew_RequiresSessionAndQueue(t *testing.T) {
	_, err := New(Options{Queue: control.NewQueue(0)})
	assert.Error(t, err)

	catalog := capture.NewCatalog(devices{}, nil, capture.EnumerateAll, nil)
	_, err = New(Options{Session: capture.NewSession(catalog, (&opener{}).open)})
	assert.Error(t, err)
}

func TestTick_NoCameraShowsSelectMessage(t *testing.T) {
	f := newFixture(t)

	f.engine.Tick()

	require.Equal(t, 1, f.sink.count())
	p := f.sink.lastFrame()
	assert.Equal(t, 16, p.width)
	assert.Equal(t, 12, p.height)
	assert.Equal(t, layout.Rect{X1: 16, Y1: 12}, p.dst)

	st := f.engine.Status()
	assert.Equal(t, overlay.MessageSelectCamera, st.Message)
	assert.Equal(t, capture.StateIdle, st.State)
	assert.Nil(t, st.Camera)
	assert.Equal(t, uint64(1), st.Ticks)
}

func TestTick_StatusFrameIsRefreshedPeriodically(t *testing.T) {
	f := newFixture(t)

	f.engine.Tick()
	f.engine.Tick()
	assert.Equal(t, 1, f.sink.count(), "unchanged status is not presented every tick")

	f.clock = f.clock.Add(statusRefresh)
	f.engine.Tick()
	assert.Equal(t, 2, f.sink.count())

	f.sink.w, f.sink.h = 20, 10
	f.engine.Tick()
	require.Equal(t, 3, f.sink.count(), "viewport change presents immediately")
	assert.Equal(t, 20, f.sink.lastFrame().width)
}

func TestTick_SelectThenComposite(t *testing.T) {
	f := newFixture(t)

	f.send("/1/camera", int32(1))
	f.engine.Tick()

	st := f.engine.Status()
	require.NotNil(t, st.Camera)
	assert.Equal(t, "Cam B", st.Camera.Name)
	assert.Equal(t, capture.StateRunning, st.State)
	assert.Equal(t, overlay.MessageWaiting, st.Message)
	assert.Equal(t, params.SelectZoom, st.Params.Zoom)

	f.opener.last().push(200, 10, 10)
	f.engine.Tick()

	st = f.engine.Status()
	assert.Empty(t, st.Message)
	assert.Equal(t, uint64(1), st.Compositor.Frames)

	p := f.sink.lastFrame()
	assert.Equal(t, 8, p.width)
	assert.Equal(t, 6, p.height)
	assert.Equal(t, layout.Fit(8, 6, 16, 12), p.dst)

	n := f.sink.count()
	f.engine.Tick()
	assert.Equal(t, n, f.sink.count(), "no new camera frame, nothing presented")
}

func TestTick_ControlAppliesBeforeComposite(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, capture.StatusOK, f.engine.Select(0))

	f.opener.last().push(100, 100, 100)
	f.send("/1/blur_amt", float32(0.25))
	f.engine.Tick()

	assert.Equal(t, 0.25, f.engine.Snapshot().Feedback)
}

func TestTick_HueOscillatorAdvancesOnlyWhileActive(t *testing.T) {
	f := newFixture(t)

	f.send("/1/col_rot_speed", float32(1))
	f.engine.Tick()
	f.engine.Tick()
	assert.Equal(t, 0.0, f.engine.Status().HuePosition)

	require.Equal(t, capture.StatusOK, f.engine.Select(0))
	f.engine.Tick()
	assert.InDelta(t, compositor.HueSpeedFactor, f.engine.Status().HuePosition, 1e-12)

	// A new camera does not reset the oscillator.
	require.Equal(t, capture.StatusOK, f.engine.Select(1))
	f.engine.Tick()
	assert.InDelta(t, 2*compositor.HueSpeedFactor, f.engine.Status().HuePosition, 1e-12)
}

func TestSelect_OutOfRangeKeepsHistory(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, capture.StatusOK, f.engine.Select(0))
	f.engine.Params().SetZoom(400)
	f.opener.last().push(1, 2, 3)
	f.engine.Tick()

	assert.Equal(t, capture.StatusOutOfRange, f.engine.Select(7))
	f.engine.Tick()

	st := f.engine.Status()
	assert.Empty(t, st.Message)
	assert.Equal(t, 400.0, st.Params.Zoom)
	assert.Equal(t, capture.StatusOutOfRange, st.LastResult)
	require.NotNil(t, st.Camera)
	assert.Equal(t, "Cam A", st.Camera.Name)
}

func TestSelect_FailureLeavesNoCamera(t *testing.T) {
	f := newFixture(t)
	f.opener.startErr["/dev/video2"] = capture.ErrDeviceUnavailable

	require.Equal(t, capture.StatusOK, f.engine.Select(0))
	assert.Equal(t, capture.StatusDeviceUnavailable, f.engine.Select(1))
	assert.True(t, f.opener.streams[0].stopped, "previous camera released first")

	f.engine.Tick()
	st := f.engine.Status()
	assert.Equal(t, overlay.MessageSelectCamera, st.Message)
	assert.Nil(t, st.Camera)
}

func TestTick_StreamErrorReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, capture.StatusOK, f.engine.Select(0))
	f.opener.last().push(1, 1, 1)
	f.engine.Tick()

	s := f.opener.last()
	s.mu.Lock()
	s.err = errors.New("Device '/dev/video0' was disconnected")
	s.mu.Unlock()

	f.engine.Tick()
	f.engine.Tick()

	st := f.engine.Status()
	assert.Equal(t, capture.StateIdle, st.State)
	assert.Equal(t, overlay.MessageSelectCamera, st.Message)
}

func TestSaveLoad_RestoresParamsAndCamera(t *testing.T) {
	f := newFixture(t)
	e := f.engine

	require.Equal(t, capture.StatusOK, e.Select(1))
	e.Params().SetZoom(725)
	e.Params().SetFeedback(0.3)
	e.Params().SetFrameSkip(2)
	saved := e.Params().Snapshot()
	require.NoError(t, e.SaveSettings())

	require.Equal(t, capture.StatusOK, e.Select(0))
	e.Params().SetZoom(60)
	e.Params().SetFeedback(1)

	require.NoError(t, e.LoadSettings())

	d, ok := e.session.Active()
	require.True(t, ok)
	assert.Equal(t, "Cam B", d.Name)
	assert.Equal(t, saved, e.Params().Snapshot(), "saved zoom wins over select zoom")
}

func TestLoad_SameCameraIsNotReselected(t *testing.T) {
	f := newFixture(t)
	e := f.engine

	require.Equal(t, capture.StatusOK, e.Select(0))
	require.NoError(t, e.SaveSettings())
	opened := len(f.opener.streams)

	require.NoError(t, e.LoadSettings())
	assert.Len(t, f.opener.streams, opened)
}

func TestLoad_MissingFileChangesNothing(t *testing.T) {
	f := newFixture(t)
	e := f.engine
	e.Params().SetZoom(999)
	before := e.Params().Snapshot()

	err := e.LoadSettings()
	require.Error(t, err)
	assert.ErrorIs(t, err, settings.ErrNoSettings)
	assert.Equal(t, before, e.Params().Snapshot())
}

func TestRescan_KeepsRunningCamera(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, capture.StatusOK, f.engine.Select(1))

	f.send("/1/rescan")
	f.engine.Tick()

	assert.True(t, f.engine.session.IsActive())
	assert.Equal(t, 2, f.engine.Catalog().Len())
}

func TestTick_SinkFailuresDoNotStopLoop(t *testing.T) {
	f := newFixture(t)
	bad := &sink{name: "bad", w: 4, h: 4, panics: true}
	failing := &sink{name: "failing", w: 4, h: 4, err: errors.New("closed")}
	f.engine.AddSink(bad)
	f.engine.AddSink(failing)

	assert.NotPanics(t, func() { f.engine.Tick() })
	assert.Equal(t, 1, f.sink.count())
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, []string{"test", "bad", "failing"}, f.engine.Status().Sinks)
}

func TestTick_UnknownAddressIsIgnored(t *testing.T) {
	f := newFixture(t)
	before := f.engine.Params().Snapshot()

	f.send("/2/nothing", float32(1))
	f.send("/1/zoom")
	assert.NotPanics(t, func() { f.engine.Tick() })
	assert.Equal(t, before, f.engine.Snapshot())
}

func TestRun_QuitStopsLoopAndReleasesCamera(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, capture.StatusOK, f.engine.Select(0))
	f.send("/1/quit")

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}

	assert.True(t, f.opener.last().stopped)
	assert.False(t, f.engine.session.IsActive())

	select {
	case <-f.engine.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestRun_ContextCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestQuit_Idempotent(t *testing.T) {
	f := newFixture(t)
	assert.NotPanics(t, func() {
		f.engine.Quit()
		f.engine.Quit()
	})
}

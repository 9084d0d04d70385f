// Package display shows the composite in a window: a raw X11 window over
// xgb, or an Ebitengine window.
package display

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/illuminate/internal/compositor"
	"github.com/bryanchriswhite/illuminate/internal/layout"
	"github.com/bryanchriswhite/illuminate/internal/logger"
	"github.com/bryanchriswhite/illuminate/internal/output"
	xdraw "golang.org/x/image/draw"
)

// keysymEscape is XK_Escape.
const keysymEscape = 0xff1b

// Config describes the window. Zero width or height means the full screen.
type Config struct {
	Width      int
	Height     int
	Fullscreen bool
	Title      string
}

// X11Window is a full-screen output window driven over the X protocol.
type X11Window struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	window xproto.Window
	gc     xproto.Gcontext
	title  string
	full   bool

	escape   xproto.Keycode
	renderer *output.Renderer
	data     []byte

	mu       sync.RWMutex
	width    int
	height   int
	running  bool
	onQuit   func()
	stopChan chan struct{}
}

// NewX11Window connects to the X server named by $DISPLAY.
func NewX11Window(cfg Config) (*X11Window, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	width, height := cfg.Width, cfg.Height
	if width <= 0 || height <= 0 {
		width, height = int(screen.WidthInPixels), int(screen.HeightInPixels)
	}
	title := cfg.Title
	if title == "" {
		title = "Illuminate"
	}

	return &X11Window{
		conn:     conn,
		screen:   screen,
		title:    title,
		full:     cfg.Fullscreen,
		width:    width,
		height:   height,
		renderer: output.NewRenderer(xdraw.ApproxBiLinear),
		stopChan: make(chan struct{}),
	}, nil
}

// OnQuit registers the callback run when Escape is pressed or the window closes.
func (m *X11Window) OnQuit(fn func()) {
	m.mu.Lock()
	m.onQuit = fn
	m.mu.Unlock()
}

// Start creates and shows the window
func (m *X11Window) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("display already running")
	}

	windowID, err := xproto.NewWindowId(m.conn)
	if err != nil {
		return fmt.Errorf("failed to create window ID: %w", err)
	}
	m.window = windowID

	mask := uint32(xproto.CwBackPixel | xproto.CwEventMask)
	values := []uint32{
		0x000000, // Black background
		xproto.EventMaskExposure | xproto.EventMaskStructureNotify | xproto.EventMaskKeyPress,
	}

	err = xproto.CreateWindowChecked(
		m.conn,
		m.screen.RootDepth,
		m.window,
		m.screen.Root,
		0, 0,
		uint16(m.width), uint16(m.height),
		0,
		xproto.WindowClassInputOutput,
		m.screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}

	log := logger.WithComponent("display")

	if err := m.setWindowTitle(m.title); err != nil {
		log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := m.setWindowClass("illuminate", "Illuminate"); err != nil {
		log.Warn().Err(err).Msg("Failed to set window class")
	}
	if m.full {
		if err := m.setFullscreen(); err != nil {
			log.Warn().Err(err).Msg("Failed to request fullscreen")
		}
	}

	if err := xproto.MapWindowChecked(m.conn, m.window).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(m.conn)
	if err != nil {
		return fmt.Errorf("failed to create graphics context: %w", err)
	}
	if err := xproto.CreateGCChecked(m.conn, gc, xproto.Drawable(m.window), 0, nil).Check(); err != nil {
		return fmt.Errorf("failed to create GC: %w", err)
	}
	m.gc = gc

	m.escape = m.lookupKeycode(keysymEscape)
	m.conn.Sync()
	m.running = true

	go m.eventLoop(m.stopChan)

	log.Info().
		Int("width", m.width).
		Int("height", m.height).
		Bool("fullscreen", m.full).
		Uint32("window_id", uint32(m.window)).
		Msg("Display window created")
	return nil
}

// Stop closes the window
func (m *X11Window) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopChan)

	if m.gc != 0 {
		xproto.FreeGC(m.conn, m.gc)
	}
	if m.window != 0 {
		xproto.DestroyWindow(m.conn, m.window)
		m.conn.Sync()
	}
	m.conn.Close()

	logger.WithComponent("display").Info().Msg("Display window closed")
	return nil
}

// Name implements output.Sink.
func (m *X11Window) Name() string { return "X11 Window" }

// Viewport implements output.Sink. It tracks ConfigureNotify events.
func (m *X11Window) Viewport() (int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.width, m.height
}

// Present scales frame into dst and pushes it to the window.
func (m *X11Window) Present(frame *compositor.Frame, dst layout.Rect) error {
	m.mu.RLock()
	running := m.running
	width, height := m.width, m.height
	m.mu.RUnlock()

	if !running {
		return fmt.Errorf("display not running")
	}

	img := m.renderer.Render(frame, dst, width, height)

	format, err := m.pixmapFormat()
	if err != nil {
		return err
	}
	stride := format.stride(width)
	if cap(m.data) < stride*height {
		m.data = make([]byte, stride*height)
	}
	m.data = m.data[:stride*height]
	if err := toBGRx(m.data, img.Pix, width, height, format); err != nil {
		return err
	}

	return m.putImage(width, height, stride)
}

// pixmapFormat describes how the server lays out pixels at the root depth.
type pixmapFormat struct {
	depth         uint8
	bytesPerPixel int
	padBytes      int
}

func (f pixmapFormat) stride(width int) int {
	unpadded := width * f.bytesPerPixel
	return ((unpadded + f.padBytes - 1) / f.padBytes) * f.padBytes
}

func (m *X11Window) pixmapFormat() (pixmapFormat, error) {
	depth := m.screen.RootDepth
	for _, format := range xproto.Setup(m.conn).PixmapFormats {
		if format.Depth == depth {
			return pixmapFormat{
				depth:         depth,
				bytesPerPixel: int(format.BitsPerPixel) / 8,
				padBytes:      int(format.ScanlinePad) / 8,
			}, nil
		}
	}
	return pixmapFormat{}, fmt.Errorf("no format found for depth %d", depth)
}

// toBGRx converts tightly packed RGBA rows into the server's pixel layout.
// Byte order matches X11 visual masks: 0xff (B), 0xff00 (G), 0xff0000 (R).
func toBGRx(dst, rgba []byte, width, height int, f pixmapFormat) error {
	if f.bytesPerPixel != 3 && f.bytesPerPixel != 4 {
		return fmt.Errorf("unsupported bytes per pixel: %d", f.bytesPerPixel)
	}
	stride := f.stride(width)
	for y := 0; y < height; y++ {
		src := rgba[y*width*4 : (y+1)*width*4]
		row := dst[y*stride:]
		for x := 0; x < width; x++ {
			s := x * 4
			d := x * f.bytesPerPixel
			row[d] = src[s+2]
			row[d+1] = src[s+1]
			row[d+2] = src[s]
			if f.bytesPerPixel == 4 {
				if f.depth == 32 {
					row[d+3] = src[s+3]
				} else {
					row[d+3] = 0
				}
			}
		}
	}
	return nil
}

// stripRows returns how many rows fit in one PutImage request.
// maxRequestUnits is the server's limit in 4-byte units.
func stripRows(maxRequestUnits uint16, stride, height int) int {
	// PutImage has a 24-byte header.
	maxBytes := int(maxRequestUnits)*4 - 24
	rows := maxBytes / stride
	if rows < 1 {
		rows = 1
	}
	if rows > height {
		rows = height
	}
	return rows
}

// putImage sends m.data in horizontal strips that respect the maximum
// request length.
func (m *X11Window) putImage(width, height, stride int) error {
	rows := stripRows(xproto.Setup(m.conn).MaximumRequestLength, stride, height)
	depth := m.screen.RootDepth

	for y := 0; y < height; y += rows {
		n := rows
		if y+n > height {
			n = height - y
		}
		err := xproto.PutImageChecked(
			m.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(m.window),
			m.gc,
			uint16(width),
			uint16(n),
			0, int16(y),
			0,
			depth,
			m.data[y*stride:(y+n)*stride],
		).Check()
		if err != nil {
			return fmt.Errorf("failed to put image: %w", err)
		}
	}
	return nil
}

// eventLoop handles key presses, resizes and window close.
func (m *X11Window) eventLoop(stop <-chan struct{}) {
	log := logger.WithComponent("display")
	for {
		ev, err := m.conn.WaitForEvent()
		select {
		case <-stop:
			return
		default:
		}
		if ev == nil && err == nil {
			// Connection closed.
			m.quit()
			return
		}
		if err != nil {
			log.Debug().Str("error", err.Error()).Msg("X11 error event")
			continue
		}

		switch e := ev.(type) {
		case xproto.KeyPressEvent:
			if m.escape != 0 && e.Detail == m.escape {
				log.Info().Msg("Escape pressed")
				m.quit()
			}
		case xproto.ConfigureNotifyEvent:
			m.mu.Lock()
			if int(e.Width) != m.width || int(e.Height) != m.height {
				m.width, m.height = int(e.Width), int(e.Height)
				log.Debug().Int("width", m.width).Int("height", m.height).Msg("Window resized")
			}
			m.mu.Unlock()
		case xproto.DestroyNotifyEvent:
			m.quit()
			return
		}
	}
}

func (m *X11Window) quit() {
	m.mu.RLock()
	fn := m.onQuit
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// lookupKeycode finds the first keycode producing keysym, or 0.
func (m *X11Window) lookupKeycode(keysym xproto.Keysym) xproto.Keycode {
	setup := xproto.Setup(m.conn)
	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)
	reply, err := xproto.GetKeyboardMapping(m.conn, setup.MinKeycode, count).Reply()
	if err != nil {
		logger.WithComponent("display").Warn().Err(err).Msg("Failed to read keyboard mapping")
		return 0
	}
	return findKeycode(reply.Keysyms, int(reply.KeysymsPerKeycode), setup.MinKeycode, keysym)
}

func findKeycode(keysyms []xproto.Keysym, perKeycode int, min xproto.Keycode, want xproto.Keysym) xproto.Keycode {
	if perKeycode <= 0 {
		return 0
	}
	for i, ks := range keysyms {
		if ks == want {
			return min + xproto.Keycode(i/perKeycode)
		}
	}
	return 0
}

// setWindowTitle sets the window title
func (m *X11Window) setWindowTitle(title string) error {
	titleAtom, err := m.getAtom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := m.getAtom("UTF8_STRING")
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(
		m.conn,
		xproto.PropModeReplace,
		m.window,
		titleAtom,
		utf8Atom,
		8,
		uint32(len(title)),
		[]byte(title),
	).Check()
}

// setWindowClass sets the window class
func (m *X11Window) setWindowClass(instance, class string) error {
	classAtom, err := m.getAtom("WM_CLASS")
	if err != nil {
		return err
	}

	// WM_CLASS format: instance\0class\0
	classStr := instance + "\x00" + class + "\x00"

	return xproto.ChangePropertyChecked(
		m.conn,
		xproto.PropModeReplace,
		m.window,
		classAtom,
		xproto.AtomString,
		8,
		uint32(len(classStr)),
		[]byte(classStr),
	).Check()
}

// setFullscreen asks the window manager for _NET_WM_STATE_FULLSCREEN.
func (m *X11Window) setFullscreen() error {
	stateAtom, err := m.getAtom("_NET_WM_STATE")
	if err != nil {
		return err
	}
	fullAtom, err := m.getAtom("_NET_WM_STATE_FULLSCREEN")
	if err != nil {
		return err
	}
	data := make([]byte, 4)
	xgb.Put32(data, uint32(fullAtom))
	return xproto.ChangePropertyChecked(
		m.conn,
		xproto.PropModeReplace,
		m.window,
		stateAtom,
		xproto.AtomAtom,
		32,
		1,
		data,
	).Check()
}

// getAtom gets an atom ID by name
func (m *X11Window) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(m.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

package display

import (
	"image"
	"sync"

	"github.com/bryanchriswhite/illuminate/internal/compositor"
	"github.com/bryanchriswhite/illuminate/internal/layout"
	"github.com/bryanchriswhite/illuminate/internal/logger"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// EbitenWindow renders the composite with Ebitengine. Its Update callback
// drives the engine tick at Ebitengine's 60 TPS, so Run must be called
// from the main goroutine in place of the engine's own loop.
type EbitenWindow struct {
	cfg    Config
	tick   func()
	onQuit func()

	mu          sync.Mutex
	frame       *image.RGBA
	dst         layout.Rect
	dirty       bool
	ebitenImage *ebiten.Image
	viewW       int
	viewH       int
	quit        bool
}

// NewEbitenWindow creates a window that calls tick once per update.
func NewEbitenWindow(cfg Config, tick func()) *EbitenWindow {
	w, h := cfg.Width, cfg.Height
	if w <= 0 || h <= 0 {
		w, h = 1280, 720
	}
	if cfg.Title == "" {
		cfg.Title = "Illuminate"
	}
	return &EbitenWindow{
		cfg:   cfg,
		tick:  tick,
		viewW: w,
		viewH: h,
	}
}

// OnQuit registers the callback run when Escape is pressed.
func (d *EbitenWindow) OnQuit(fn func()) { d.onQuit = fn }

// RequestQuit makes the next Update end the game loop.
func (d *EbitenWindow) RequestQuit() {
	d.mu.Lock()
	d.quit = true
	d.mu.Unlock()
}

// Run starts the Ebitengine game loop. Must be called from the main goroutine.
func (d *EbitenWindow) Run() error {
	ebiten.SetWindowSize(d.viewW, d.viewH)
	ebiten.SetWindowTitle(d.cfg.Title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetFullscreen(d.cfg.Fullscreen)
	ebiten.SetTPS(60)

	logger.WithComponent("display").Info().
		Int("width", d.viewW).
		Int("height", d.viewH).
		Bool("fullscreen", d.cfg.Fullscreen).
		Msg("Ebiten window starting")

	err := ebiten.RunGame(d)
	if err == ebiten.Termination {
		return nil
	}
	return err
}

// Name implements output.Sink.
func (d *EbitenWindow) Name() string { return "Ebiten Window" }

// Viewport implements output.Sink.
func (d *EbitenWindow) Viewport() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewW, d.viewH
}

// Present stores the frame for the next Draw.
func (d *EbitenWindow) Present(frame *compositor.Frame, dst layout.Rect) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !frame.Valid() {
		d.frame = nil
		return nil
	}
	d.frame = frame.ToRGBA(d.frame)
	d.dst = dst
	d.dirty = true
	return nil
}

// --- ebiten.Game interface ---

func (d *EbitenWindow) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		logger.WithComponent("display").Info().Msg("Escape pressed")
		if d.onQuit != nil {
			d.onQuit()
		}
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF11) {
		ebiten.SetFullscreen(!ebiten.IsFullscreen())
	}

	if d.tick != nil {
		d.tick()
	}

	d.mu.Lock()
	quit := d.quit
	d.mu.Unlock()
	if quit {
		return ebiten.Termination
	}
	return nil
}

func (d *EbitenWindow) Draw(screen *ebiten.Image) {
	d.mu.Lock()
	frame := d.frame
	dst := d.dst
	if frame != nil && d.dirty {
		if d.ebitenImage == nil ||
			d.ebitenImage.Bounds().Dx() != frame.Bounds().Dx() ||
			d.ebitenImage.Bounds().Dy() != frame.Bounds().Dy() {
			d.ebitenImage = ebiten.NewImage(frame.Bounds().Dx(), frame.Bounds().Dy())
		}
		d.ebitenImage.WritePixels(frame.Pix)
		d.dirty = false
	}
	img := d.ebitenImage
	d.mu.Unlock()

	if frame == nil || img == nil || dst.Empty() {
		return
	}

	sx, sy := fitScale(dst, frame.Bounds().Dx(), frame.Bounds().Dy())
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(sx, sy)
	op.GeoM.Translate(dst.X0, dst.Y0)
	op.Filter = ebiten.FilterLinear
	screen.DrawImage(img, op)
}

func (d *EbitenWindow) Layout(outsideWidth, outsideHeight int) (int, int) {
	d.mu.Lock()
	d.viewW, d.viewH = outsideWidth, outsideHeight
	d.mu.Unlock()
	return outsideWidth, outsideHeight
}

// fitScale returns the scale factors mapping a w×h image onto dst.
func fitScale(dst layout.Rect, w, h int) (float64, float64) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	return dst.Width() / float64(w), dst.Height() / float64(h)
}

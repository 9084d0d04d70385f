// Package output renders composite frames to their destinations.
package output

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/bryanchriswhite/illuminate/internal/compositor"
	"github.com/bryanchriswhite/illuminate/internal/layout"
	xdraw "golang.org/x/image/draw"
)

// Sink is a destination for composite frames.
// This allows swapping between different presentation methods:
// - X11 window
// - Ebiten window
// - MJPEG HTTP stream
type Sink interface {
	// Name returns a human-readable name for this sink
	Name() string

	// Viewport returns the drawable area the frame is fitted into
	Viewport() (width, height int)

	// Present draws frame scaled into dst, which is in viewport pixels and
	// may extend past the viewport edges
	Present(frame *compositor.Frame, dst layout.Rect) error
}

// Lifecycle is implemented by sinks that own resources.
type Lifecycle interface {
	Start() error
	Stop() error
}

// Config holds common configuration for all output types
type Config struct {
	Width  int
	Height int
	FPS    int
}

// Renderer scales frames into a reusable RGBA canvas.
type Renderer struct {
	scaler xdraw.Scaler
	src    *image.RGBA
	canvas *image.RGBA
}

// NewRenderer creates a renderer using scaler, or bilinear when nil.
func NewRenderer(scaler xdraw.Scaler) *Renderer {
	if scaler == nil {
		scaler = xdraw.BiLinear
	}
	return &Renderer{scaler: scaler}
}

// Render draws frame into a width×height canvas at dst. Pixels outside
// dst are black. The returned image is reused by the next call.
func (r *Renderer) Render(frame *compositor.Frame, dst layout.Rect, width, height int) *image.RGBA {
	if r.canvas == nil || r.canvas.Rect.Dx() != width || r.canvas.Rect.Dy() != height {
		r.canvas = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	draw.Draw(r.canvas, r.canvas.Rect, image.NewUniform(color.RGBA{0, 0, 0, 255}), image.Point{}, draw.Src)

	if !frame.Valid() || dst.Empty() {
		return r.canvas
	}

	r.src = frame.ToRGBA(r.src)
	target := image.Rect(
		int(math.Round(dst.X0)),
		int(math.Round(dst.Y0)),
		int(math.Round(dst.X1)),
		int(math.Round(dst.Y1)),
	)
	r.scaler.Scale(r.canvas, target, r.src, r.src.Rect, draw.Src, nil)
	return r.canvas
}

// Package overlay draws text onto frames: the status screens shown when no
// camera is running and the optional HUD on the preview stream.
package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Messages shown instead of a composite.
const (
	MessageSelectCamera = "Please select a camera"
	MessageWaiting      = "Waiting for camera..."
)

// lineHeight is the advance of basicfont.Face7x13.
const lineHeight = 13

// Text is a block of lines drawn at a fixed position.
type Text struct {
	Lines    []string
	X, Y     int
	Color    color.RGBA
	Backdrop *color.RGBA
	Padding  int
	Opacity  float64
	face     font.Face
}

// NewText creates white text with a translucent black backdrop.
func NewText(x, y int, lines ...string) *Text {
	return &Text{
		Lines:    lines,
		X:        x,
		Y:        y,
		Color:    color.RGBA{255, 255, 255, 255},
		Backdrop: &color.RGBA{0, 0, 0, 160},
		Padding:  5,
		Opacity:  1,
		face:     basicfont.Face7x13,
	}
}

// Size returns the rendered width and height including padding.
func (t *Text) Size() (int, int) {
	d := &font.Drawer{Face: t.face}
	width := 0
	for _, line := range t.Lines {
		if w := d.MeasureString(line).Ceil(); w > width {
			width = w
		}
	}
	return width + t.Padding*2, len(t.Lines)*lineHeight + t.Padding*2
}

// Render draws the block onto img.
func (t *Text) Render(img *image.RGBA) {
	if len(t.Lines) == 0 {
		return
	}

	w, h := t.Size()
	if t.Backdrop != nil {
		bg := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(bg, bg.Bounds(), &image.Uniform{*t.Backdrop}, image.Point{}, draw.Src)
		BlendImage(img, bg, t.X, t.Y, t.Opacity)
	}

	textImg := image.NewRGBA(image.Rect(0, 0, w-t.Padding*2, h-t.Padding*2))
	d := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(t.Color),
		Face: t.face,
	}
	for i, line := range t.Lines {
		// Baseline sits 3px above the bottom of each 13px cell.
		d.Dot = fixed.Point26_6{X: 0, Y: fixed.I((i+1)*lineHeight - 3)}
		d.DrawString(line)
	}

	BlendImage(img, textImg, t.X+t.Padding, t.Y+t.Padding, t.Opacity)
}

// BlendImage alpha-blends src onto dst at (x, y), clipping at the edges.
func BlendImage(dst *image.RGBA, src *image.RGBA, x, y int, opacity float64) {
	sb := src.Bounds()
	db := dst.Bounds()

	for sy := sb.Min.Y; sy < sb.Max.Y; sy++ {
		dy := y + sy - sb.Min.Y
		if dy < db.Min.Y || dy >= db.Max.Y {
			continue
		}
		for sx := sb.Min.X; sx < sb.Max.X; sx++ {
			dx := x + sx - sb.Min.X
			if dx < db.Min.X || dx >= db.Max.X {
				continue
			}

			s := src.RGBAAt(sx, sy)
			alpha := float64(s.A) / 255 * opacity
			if alpha <= 0 {
				continue
			}

			d := dst.RGBAAt(dx, dy)
			// src is premultiplied, so its colour already carries its own alpha.
			blend := func(sc, dc uint8) uint8 {
				return uint8(float64(sc)*opacity + float64(dc)*(1-alpha))
			}
			dst.SetRGBA(dx, dy, color.RGBA{
				R: blend(s.R, d.R),
				G: blend(s.G, d.G),
				B: blend(s.B, d.B),
				A: uint8(alpha*255 + float64(d.A)*(1-alpha)),
			})
		}
	}
}

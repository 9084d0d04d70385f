package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/bryanchriswhite/illuminate/internal/compositor"
)

// StatusImage renders msg centred on a black width×height canvas.
func StatusImage(width, height int, msg string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{0, 0, 0, 255}}, image.Point{}, draw.Src)

	t := NewText(0, 0, msg)
	t.Backdrop = nil
	tw, th := t.Size()
	t.X = (width - tw) / 2
	t.Y = (height - th) / 2
	t.Render(img)
	return img
}

// StatusFrame is StatusImage converted to a compositor frame.
func StatusFrame(width, height int, msg string) *compositor.Frame {
	if width <= 0 || height <= 0 {
		return &compositor.Frame{}
	}
	img := StatusImage(width, height, msg)
	f := &compositor.Frame{}
	// Dimensions come from img itself, so this cannot fail.
	_ = f.FromRGBA(img.Pix, width, height, img.Stride)
	return f
}

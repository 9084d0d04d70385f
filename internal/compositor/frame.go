package compositor

import (
	"fmt"
	"image"
)

// BytesPerPixel is the packed size of one RGB triple.
const BytesPerPixel = 3

// Frame is a width×height grid of packed 8-bit RGB triples.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewFrame allocates a black frame.
func NewFrame(width, height int) *Frame {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*BytesPerPixel),
	}
}

// Valid reports whether the frame is non-empty and its buffer matches its dimensions.
func (f *Frame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Pix) == f.Width*f.Height*BytesPerPixel
}

// SameSize reports whether both frames have identical dimensions.
func (f *Frame) SameSize(o *Frame) bool {
	return f != nil && o != nil && f.Width == o.Width && f.Height == o.Height && len(f.Pix) == len(o.Pix)
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := &Frame{Width: f.Width, Height: f.Height, Pix: make([]uint8, len(f.Pix))}
	copy(c.Pix, f.Pix)
	return c
}

// CopyFrom overwrites f with src. Both frames must have the same size.
func (f *Frame) CopyFrom(src *Frame) error {
	if !f.SameSize(src) {
		return fmt.Errorf("frame size mismatch: %dx%d vs %dx%d", f.Width, f.Height, src.Width, src.Height)
	}
	copy(f.Pix, src.Pix)
	return nil
}

// Assign makes f a copy of src, reallocating f's buffer when the sizes differ.
func (f *Frame) Assign(src *Frame) {
	if len(f.Pix) != len(src.Pix) {
		f.Pix = make([]uint8, len(src.Pix))
	}
	f.Width, f.Height = src.Width, src.Height
	copy(f.Pix, src.Pix)
}

// At returns the RGB triple at (x, y).
func (f *Frame) At(x, y int) (r, g, b uint8) {
	i := (y*f.Width + x) * BytesPerPixel
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Set writes the RGB triple at (x, y).
func (f *Frame) Set(x, y int, r, g, b uint8) {
	i := (y*f.Width + x) * BytesPerPixel
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
}

// FromRGBA fills f from 4-byte-per-pixel RGBA (or RGBx) data with the given row stride,
// reallocating when the dimensions differ.
func (f *Frame) FromRGBA(data []byte, width, height, stride int) error {
	if width <= 0 || height <= 0 || stride < width*4 || len(data) < stride*(height-1)+width*4 {
		return fmt.Errorf("short RGBA buffer: %d bytes for %dx%d stride %d", len(data), width, height, stride)
	}
	if f.Width != width || f.Height != height || len(f.Pix) != width*height*BytesPerPixel {
		f.Width, f.Height = width, height
		f.Pix = make([]uint8, width*height*BytesPerPixel)
	}

	dst := 0
	for y := 0; y < height; y++ {
		row := data[y*stride : y*stride+width*4]
		for x := 0; x < width*4; x += 4 {
			f.Pix[dst] = row[x]
			f.Pix[dst+1] = row[x+1]
			f.Pix[dst+2] = row[x+2]
			dst += BytesPerPixel
		}
	}
	return nil
}

// ToRGBA converts the frame into an opaque *image.RGBA, reusing dst when it has the right size.
func (f *Frame) ToRGBA(dst *image.RGBA) *image.RGBA {
	if dst == nil || dst.Bounds().Dx() != f.Width || dst.Bounds().Dy() != f.Height {
		dst = image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	}

	src := 0
	for y := 0; y < f.Height; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+f.Width*4]
		for x := 0; x < len(row); x += 4 {
			row[x] = f.Pix[src]
			row[x+1] = f.Pix[src+1]
			row[x+2] = f.Pix[src+2]
			row[x+3] = 0xff
			src += BytesPerPixel
		}
	}
	return dst
}

// Package layout computes where the composite is drawn inside the output viewport.
package layout

import "fmt"

// Rect is a destination rectangle in viewport pixels.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Width returns the horizontal extent of the rectangle
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns the vertical extent of the rectangle
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Empty reports whether the rectangle has no area
func (r Rect) Empty() bool { return r.Width() <= 0 || r.Height() <= 0 }

func (r Rect) String() string {
	return fmt.Sprintf("(%.1f,%.1f)-(%.1f,%.1f)", r.X0, r.Y0, r.X1, r.Y1)
}

// Fit scales a sourceW×sourceH frame uniformly into a viewportW×viewportH area.
//
// The width multiplier is tried first. When the source is shorter than the viewport the
// height multiplier is used instead and any horizontal overflow is left to the renderer
// to crop. The origin stays at (0,0).
func Fit(sourceW, sourceH, viewportW, viewportH int) Rect {
	if sourceW <= 0 || sourceH <= 0 || viewportW <= 0 || viewportH <= 0 {
		return Rect{}
	}

	sw, sh := float64(sourceW), float64(sourceH)
	multiplier := float64(viewportW) / sw
	if sh < float64(viewportH) {
		multiplier = float64(viewportH) / sh
	}

	return Rect{X0: 0, Y0: 0, X1: sw * multiplier, Y1: sh * multiplier}
}

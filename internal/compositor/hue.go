package compositor

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// HueSpeedFactor converts the user-facing rotation speed into a per-tick oscillator step.
const HueSpeedFactor = 0.01

// WrapUnit wraps h into [0,1), handling values above 1 and below 0.
func WrapUnit(h float64) float64 {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0
	}
	w := math.Mod(h, 1)
	if w < 0 {
		w++
	}
	// -tiny + 1 rounds to exactly 1 in float64
	if w >= 1 {
		w = 0
	}
	return w
}

// RotateHue shifts the hue of an RGB triple by shift turns.
func RotateHue(r, g, b uint8, shift float64) (uint8, uint8, uint8) {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	h, s, v := c.Hsv()
	h = WrapUnit(h/360+shift) * 360
	return colorful.Hsv(h, s, v).Clamped().RGB255()
}

// Direction is the travel direction of a HueOscillator.
type Direction int

const (
	Forward  Direction = 1
	Backward Direction = -1
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// HueOscillator is a bounded counter that reverses direction at its bounds.
type HueOscillator struct {
	position  float64
	direction Direction
}

// NewHueOscillator returns an oscillator at position 0 moving forward.
func NewHueOscillator() *HueOscillator {
	return &HueOscillator{direction: Forward}
}

// Position returns the raw oscillator position. It may lie outside [0,1).
func (o *HueOscillator) Position() float64 { return o.position }

// Direction returns the current travel direction.
func (o *HueOscillator) Direction() Direction { return o.direction }

// Advance moves the position by step in the current direction. When the new position
// would leave [lo, hi] it is clamped to the exceeded bound and the direction reverses.
func (o *HueOscillator) Advance(step, lo, hi float64) {
	if math.IsNaN(step) || math.IsInf(step, 0) {
		return
	}
	if lo > hi {
		lo, hi = hi, lo
	}

	p := o.position + step*float64(o.direction)
	switch {
	case p > hi:
		p = hi
		o.direction = Backward
	case p < lo:
		p = lo
		o.direction = Forward
	}
	o.position = p
}

// FrameSkipCounter gates decay so it fires once every skip+1 frames.
type FrameSkipCounter struct {
	count int
}

// Tick reports whether decay fires on this frame and advances the counter.
// With skip=2 the counter reads 0,1,2,0,1,2,… and fires on 0.
func (c *FrameSkipCounter) Tick(skip int) bool {
	fire := c.count == 0
	if c.count >= skip {
		c.count = 0
	} else {
		c.count++
	}
	return fire
}

// Count returns the frames elapsed since the last decay.
func (c *FrameSkipCounter) Count() int { return c.count }

// Reset puts the counter back to a decay frame.
func (c *FrameSkipCounter) Reset() { c.count = 0 }

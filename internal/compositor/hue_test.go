package compositor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
)

func TestWrapUnit(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{0.25, 0.25},
		{1, 0},
		{1.25, 0.25},
		{2.5, 0.5},
		{-0.25, 0.75},
		{-1, 0},
		{-1.75, 0.25},
		{-1e-18, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}

	for _, tt := range tests {
		got := WrapUnit(tt.in)
		assert.InDelta(t, tt.want, got, 1e-12, "WrapUnit(%v)", tt.in)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.Less(t, got, 1.0)
	}
}

func TestWrapUnit_ClosedAndReversible(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		h := rng.Float64()
		r := (rng.Float64() - 0.5) * 6

		rotated := WrapUnit(h + r)
		assert.GreaterOrEqual(t, rotated, 0.0)
		assert.Less(t, rotated, 1.0)

		back := WrapUnit(rotated - r)
		// distance on the unit circle
		d := math.Abs(back - h)
		d = math.Min(d, 1-d)
		assert.Less(t, d, 1e-9)
	}
}

func TestRotateHue(t *testing.T) {
	t.Run("zero shift is identity", func(t *testing.T) {
		rng := rand.New(rand.NewSource(3))
		for i := 0; i < 1000; i++ {
			r, g, b := uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256))
			r2, g2, b2 := RotateHue(r, g, b, 0)
			assert.Equal(t, []uint8{r, g, b}, []uint8{r2, g2, b2})
		}
	})

	t.Run("full turn is identity", func(t *testing.T) {
		r, g, b := RotateHue(12, 200, 90, 1)
		assert.Equal(t, []uint8{12, 200, 90}, []uint8{r, g, b})
	})

	t.Run("grey is unchanged", func(t *testing.T) {
		r, g, b := RotateHue(128, 128, 128, 0.4)
		assert.Equal(t, []uint8{128, 128, 128}, []uint8{r, g, b})
	})

	t.Run("rotate and back restores hue", func(t *testing.T) {
		r, g, b := RotateHue(255, 128, 0, 0.3)
		r, g, b = RotateHue(r, g, b, -0.3)
		c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
		h, _, _ := c.Hsv()
		orig, _, _ := colorful.Color{R: 1, G: 128.0 / 255, B: 0}.Hsv()
		assert.InDelta(t, orig, h, 1.0)
	})
}

func TestHueOscillator_Bounce(t *testing.T) {
	o := NewHueOscillator()
	lo, hi := 0.3, 0.7

	// starts at 0, below the band: snaps to the lower bound
	o.Advance(0.05, lo, hi)
	assert.InDelta(t, 0.3, o.Position(), 1e-12)
	assert.Equal(t, Forward, o.Direction())

	for i := 0; i < 7; i++ {
		o.Advance(0.05, lo, hi)
	}
	assert.InDelta(t, 0.65, o.Position(), 1e-9)
	assert.Equal(t, Forward, o.Direction())

	o.Advance(0.1, lo, hi)
	assert.Equal(t, 0.7, o.Position(), "clamps to upper bound")
	assert.Equal(t, Backward, o.Direction())

	o.Advance(0.3, lo, hi)
	assert.InDelta(t, 0.4, o.Position(), 1e-9)
	assert.Equal(t, Backward, o.Direction())

	o.Advance(0.2, lo, hi)
	assert.Equal(t, 0.3, o.Position(), "clamps to lower bound")
	assert.Equal(t, Forward, o.Direction())
}

func TestHueOscillator_EdgeCases(t *testing.T) {
	o := NewHueOscillator()
	o.Advance(math.NaN(), 0, 1)
	assert.Equal(t, 0.0, o.Position())

	// swapped bounds behave like ordered bounds
	o.Advance(2, 1, 0)
	assert.Equal(t, 1.0, o.Position())
	assert.Equal(t, Backward, o.Direction())

	// zero width pins the oscillator to the centre
	p := NewHueOscillator()
	for i := 0; i < 5; i++ {
		p.Advance(0.01, 0.5, 0.5)
		assert.Equal(t, 0.5, p.Position())
	}
}

func TestFrameSkipCounter(t *testing.T) {
	var c FrameSkipCounter
	var counts []int
	var fired []int
	for tick := 0; tick < 9; tick++ {
		counts = append(counts, c.Count())
		if c.Tick(2) {
			fired = append(fired, tick)
		}
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0, 1, 2}, counts)
	assert.Equal(t, []int{0, 3, 6}, fired)
}

func TestFrameSkipCounter_ZeroSkipAlwaysFires(t *testing.T) {
	var c FrameSkipCounter
	for i := 0; i < 5; i++ {
		assert.True(t, c.Tick(0))
	}
}

func TestFrameSkipCounter_SkipLowered(t *testing.T) {
	var c FrameSkipCounter
	c.Tick(5)
	c.Tick(5)
	c.Tick(5) // count is 3
	assert.False(t, c.Tick(1))
	assert.True(t, c.Tick(1))
}

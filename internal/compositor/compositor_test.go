package compositor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/bryanchriswhite/illuminate/internal/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidFrame(w, h int, r, g, b uint8) *Frame {
	f := NewFrame(w, h)
	for i := 0; i < len(f.Pix); i += BytesPerPixel {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
	}
	return f
}

func randomFrame(rng *rand.Rand, w, h int) *Frame {
	f := NewFrame(w, h)
	rng.Read(f.Pix)
	return f
}

func blurParams(feedback float64, skip int) params.Snapshot {
	p := params.New()
	p.SetBlur(true)
	p.SetFeedback(feedback)
	p.SetFrameSkip(skip)
	p.SetNewFrameMix(0)
	return p.Snapshot()
}

func TestComposite_FirstFrameSeedsBuffers(t *testing.T) {
	c := New(1)
	newest := solidFrame(4, 3, 10, 20, 30)

	p := params.Defaults()
	p.HueRotOn = true
	out := c.Composite(newest, p, 0.5)

	require.NotNil(t, out)
	assert.Equal(t, newest.Pix, c.Retained().Pix)
	assert.Equal(t, newest.Pix, out.Pix)
	assert.Equal(t, []uint8{10, 20, 30}, newest.Pix[:3], "first frame must not be hue rotated")

	// buffers are copies, not aliases
	newest.Pix[0] = 99
	assert.Equal(t, uint8(10), c.Retained().Pix[0])
	assert.Equal(t, uint8(10), out.Pix[0])
}

func TestComposite_DecayAndLighten(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, feedback := range []float64{0, 0.01, 0.125, 0.5, 0.9, 1} {
		c := New(1)
		seed := randomFrame(rng, 16, 8)
		c.Composite(seed, params.Defaults(), 0)

		before := c.Retained().Clone()
		newest := randomFrame(rng, 16, 8)
		c.Composite(newest, blurParams(feedback, 0), 0)

		after := c.Retained()
		for i := range after.Pix {
			assert.GreaterOrEqual(t, after.Pix[i], newest.Pix[i], "trail never dimmer than live input")
			decayed := uint8(float64(before.Pix[i]) * math.Cbrt(feedback))
			assert.LessOrEqual(t, decayed, before.Pix[i])
			assert.GreaterOrEqual(t, after.Pix[i], decayed)
			assert.Equal(t, max(decayed, newest.Pix[i]), after.Pix[i])
		}
	}
}

func TestComposite_CubeRootFeedback(t *testing.T) {
	c := New(1)
	c.Composite(solidFrame(2, 2, 200, 100, 50), params.Defaults(), 0)

	out := c.Composite(solidFrame(2, 2, 0, 0, 0), blurParams(0.125, 0), 0)

	// cbrt(0.125) = 0.5
	for i, want := range []float64{100, 50, 25} {
		assert.InDelta(t, want, float64(c.Retained().Pix[i]), 1)
		assert.InDelta(t, want, float64(out.Pix[i]), 1)
	}
}

func TestComposite_BlurOffPassesThrough(t *testing.T) {
	c := New(1)
	c.Composite(solidFrame(3, 3, 250, 250, 250), params.Defaults(), 0)

	newest := solidFrame(3, 3, 1, 2, 3)
	p := params.Defaults()
	p.BlurOn = false
	out := c.Composite(newest, p, 0)

	assert.Equal(t, newest.Pix, c.Retained().Pix)
	assert.Equal(t, newest.Pix, out.Pix)
}

func TestComposite_NewestFrameMix(t *testing.T) {
	tests := []struct {
		name   string
		mix    float64
		expect uint8
	}{
		{"pure trail", 0, 200},
		{"pure live", 1, 100},
		{"half", 0.5, 150},
		{"quarter", 0.25, 175},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(1)
			c.Composite(solidFrame(2, 2, 200, 200, 200), params.Defaults(), 0)

			p := blurParams(1, 0)
			p.NewFrameMix = tt.mix
			out := c.Composite(solidFrame(2, 2, 100, 100, 100), p, 0)

			// feedback 1 keeps the trail at 200, lighten keeps max(200,100)
			assert.Equal(t, uint8(200), c.Retained().Pix[0])
			assert.Equal(t, tt.expect, out.Pix[0])
		})
	}
}

func TestComposite_FrameSkipGating(t *testing.T) {
	c := New(1)
	c.Composite(solidFrame(2, 2, 0, 0, 0), params.Defaults(), 0)

	p := blurParams(0.5, 2)
	var fired []int
	for tick := 0; tick < 9; tick++ {
		before := c.Stats().Decays
		c.Composite(solidFrame(2, 2, 0, 0, 0), p, 0)
		if c.Stats().Decays > before {
			fired = append(fired, tick)
		}
	}
	assert.Equal(t, []int{0, 3, 6}, fired)
}

func TestComposite_SkippedTickStillLightens(t *testing.T) {
	c := New(1)
	c.Composite(solidFrame(1, 1, 100, 100, 100), params.Defaults(), 0)

	p := blurParams(0, 1)
	c.Composite(solidFrame(1, 1, 0, 0, 0), p, 0) // decay tick: trail wiped
	assert.Equal(t, uint8(0), c.Retained().Pix[0])

	c.Composite(solidFrame(1, 1, 80, 80, 80), p, 0) // skipped tick
	assert.Equal(t, uint8(80), c.Retained().Pix[0])
}

func TestComposite_HueRotationMutatesNewest(t *testing.T) {
	c := New(1)
	c.Composite(solidFrame(2, 2, 0, 0, 0), params.Defaults(), 0)

	newest := solidFrame(2, 2, 255, 0, 0)
	p := params.Defaults()
	p.HueRotOn = true
	p.NewFrameMix = 1
	out := c.Composite(newest, p, 1.0/3.0)

	// red rotated by a third of a turn is green
	r, g, b := newest.At(0, 0)
	assert.Equal(t, uint8(0), r)
	assert.Equal(t, uint8(255), g)
	assert.Equal(t, uint8(0), b)
	assert.Equal(t, newest.Pix, out.Pix)
}

func TestComposite_ResolutionChangeReallocates(t *testing.T) {
	c := New(1)
	c.Composite(solidFrame(4, 4, 10, 10, 10), params.Defaults(), 0)
	c.Composite(solidFrame(4, 4, 20, 20, 20), blurParams(0.9, 0), 0)

	newest := solidFrame(8, 2, 50, 60, 70)
	out := c.Composite(newest, blurParams(0.9, 0), 0)

	require.NotNil(t, out)
	assert.Equal(t, 8, out.Width)
	assert.Equal(t, 2, out.Height)
	assert.Equal(t, newest.Pix, c.Retained().Pix)
	assert.Equal(t, uint64(2), c.Stats().Reallocations)
}

func TestComposite_RejectsMalformedFrame(t *testing.T) {
	c := New(1)
	assert.Nil(t, c.Composite(nil, params.Defaults(), 0))

	good := c.Composite(solidFrame(2, 2, 1, 1, 1), params.Defaults(), 0)
	require.NotNil(t, good)

	bad := &Frame{Width: 2, Height: 2, Pix: make([]uint8, 5)}
	assert.Same(t, good, c.Composite(bad, params.Defaults(), 0))
	assert.Equal(t, uint64(2), c.Stats().Rejected)
}

func TestComposite_ParallelMatchesSerial(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	serial := New(1)
	parallel := New(4)

	p := blurParams(0.8, 1)
	p.HueRotOn = true
	p.NewFrameMix = 0.3

	for i := 0; i < 6; i++ {
		f := randomFrame(rng, 33, 17)
		a := serial.Composite(f.Clone(), p, float64(i)*0.07)
		b := parallel.Composite(f.Clone(), p, float64(i)*0.07)
		require.Equal(t, a.Pix, b.Pix, "frame %d", i)
	}
}

func TestMakeBands(t *testing.T) {
	bands := makeBands(10, 3)
	assert.Equal(t, []band{{0, 4}, {4, 8}, {8, 10}}, bands)
	assert.Equal(t, []band{{0, 2}}, makeBands(2, 1))
	assert.Len(t, makeBands(2, 8), 2)
}

func TestReset(t *testing.T) {
	c := New(1)
	c.Composite(solidFrame(2, 2, 1, 1, 1), params.Defaults(), 0)
	c.Reset()
	assert.Nil(t, c.Display())
	assert.Nil(t, c.Retained())
}


// Package compositor implements the feedback compositing engine.
//
// Each frame the compositor combines the newest captured frame with its own retained
// history and produces a display frame:
//
//	newest ──hue rotation (in place)──┐
//	                                  ├─ decay + lighten ─> retained ─┐
//	retained (previous frame) ────────┘                               ├─ mix ─> display
//	newest ───────────────────────────────────────────────────────────┘
//
// Retained and display buffers are allocated on the first frame and reused for every
// following frame of the same resolution.
package compositor

import (
	"math"

	"github.com/bryanchriswhite/illuminate/internal/logger"
	"github.com/bryanchriswhite/illuminate/internal/params"
	"github.com/sourcegraph/conc/iter"
)

// Stats counts compositor activity since creation.
type Stats struct {
	Frames        uint64 `json:"frames"`
	Decays        uint64 `json:"decays"`
	Reallocations uint64 `json:"reallocations"`
	Rejected      uint64 `json:"rejected"`
}

type band struct {
	y0, y1 int
}

// pass holds the per-frame values shared by every row of one compositing pass.
type pass struct {
	newest   *Frame
	hueOn    bool
	hueShift float64
	blurOn   bool
	decay    bool
	factor   float64
	mix      float64
}

// Compositor owns the retained and display buffers.
type Compositor struct {
	retained *Frame
	display  *Frame
	skip     FrameSkipCounter
	workers  int
	bands    []band
	stats    Stats
}

// New creates a compositor. workers > 1 splits each pass into row bands processed in
// parallel; the result is identical to a serial pass.
func New(workers int) *Compositor {
	if workers < 1 {
		workers = 1
	}
	return &Compositor{workers: workers}
}

// Display returns the most recent display frame, or nil before the first frame.
func (c *Compositor) Display() *Frame { return c.display }

// Retained returns the history buffer, or nil before the first frame.
func (c *Compositor) Retained() *Frame { return c.retained }

// SkipCount returns the frames elapsed since decay last fired.
func (c *Compositor) SkipCount() int { return c.skip.Count() }

// Stats returns a copy of the activity counters.
func (c *Compositor) Stats() Stats { return c.stats }

// Reset drops the retained history. The next frame re-seeds both buffers.
func (c *Compositor) Reset() {
	c.retained = nil
	c.display = nil
	c.bands = nil
	c.skip.Reset()
}

// Composite runs one compositing pass. newest is modified in place when hue rotation
// is enabled. huePosition is the hue oscillator position in turns. It returns the
// display frame, or nil when newest is unusable and no previous display exists.
func (c *Compositor) Composite(newest *Frame, p params.Snapshot, huePosition float64) *Frame {
	log := logger.WithComponent("compositor")

	if !newest.Valid() {
		c.stats.Rejected++
		w, h := 0, 0
		if newest != nil {
			w, h = newest.Width, newest.Height
		}
		log.Warn().Int("width", w).Int("height", h).Msg("Rejected malformed frame")
		return c.display
	}

	if !c.retained.SameSize(newest) || !c.display.SameSize(newest) {
		if c.retained != nil {
			log.Info().
				Int("old_width", c.retained.Width).
				Int("old_height", c.retained.Height).
				Int("width", newest.Width).
				Int("height", newest.Height).
				Msg("Resolution changed, reallocating buffers")
		}
		c.retained = newest.Clone()
		c.display = c.retained.Clone()
		c.bands = makeBands(newest.Height, c.workers)
		c.skip.Reset()
		c.stats.Reallocations++
		c.stats.Frames++
		return c.display
	}

	ps := pass{
		newest:   newest,
		hueOn:    p.HueRotOn,
		hueShift: WrapUnit(huePosition),
		blurOn:   p.BlurOn,
		factor:   math.Cbrt(p.Feedback),
		mix:      p.NewFrameMix,
	}
	if p.BlurOn {
		ps.decay = c.skip.Tick(p.FrameSkip)
		if ps.decay {
			c.stats.Decays++
		}
	}

	if c.workers > 1 && len(c.bands) > 1 {
		it := iter.Iterator[band]{MaxGoroutines: c.workers}
		it.ForEach(c.bands, func(b *band) {
			c.compositeRows(&ps, b.y0, b.y1)
		})
	} else {
		c.compositeRows(&ps, 0, newest.Height)
	}

	c.stats.Frames++
	return c.display
}

// compositeRows processes rows [y0, y1). Each pixel depends only on the pixels at the
// same position in the three buffers.
func (c *Compositor) compositeRows(ps *pass, y0, y1 int) {
	nw := ps.newest.Pix
	rt := c.retained.Pix
	dp := c.display.Pix
	keep := 1 - ps.mix

	start := y0 * ps.newest.Width * BytesPerPixel
	end := y1 * ps.newest.Width * BytesPerPixel

	for i := start; i < end; i += BytesPerPixel {
		if ps.hueOn {
			nw[i], nw[i+1], nw[i+2] = RotateHue(nw[i], nw[i+1], nw[i+2], ps.hueShift)
		}

		for ch := i; ch < i+BytesPerPixel; ch++ {
			if ps.blurOn {
				r := rt[ch]
				if ps.decay {
					r = uint8(float64(r) * ps.factor)
				}
				// lighten
				if nw[ch] > r {
					r = nw[ch]
				}
				rt[ch] = r
			} else {
				rt[ch] = nw[ch]
			}
			dp[ch] = uint8(float64(rt[ch])*keep + float64(nw[ch])*ps.mix)
		}
	}
}

func makeBands(height, workers int) []band {
	if workers <= 1 || height <= 0 {
		return []band{{0, height}}
	}
	if workers > height {
		workers = height
	}
	bands := make([]band, 0, workers)
	step := (height + workers - 1) / workers
	for y := 0; y < height; y += step {
		y1 := y + step
		if y1 > height {
			y1 = height
		}
		bands = append(bands, band{y, y1})
	}
	return bands
}

package params

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	p := New()
	s := p.Snapshot()

	assert.Equal(t, 300.0, s.Zoom)
	assert.Equal(t, -675.0, s.MoveL2R)
	assert.Equal(t, -500.0, s.MoveT2B)
	assert.Equal(t, 0.9, s.Feedback)
	assert.True(t, s.FlipHorz)
	assert.False(t, s.BlurOn)
	assert.False(t, s.HueRotOn)
	assert.Equal(t, 0.0, s.NewFrameMix)
}

func TestSetters_Clamp(t *testing.T) {
	tests := []struct {
		name  string
		set   func(p *Parameters)
		check func(t *testing.T, s Snapshot)
	}{
		{
			name:  "feedback above one",
			set:   func(p *Parameters) { p.SetFeedback(1.7) },
			check: func(t *testing.T, s Snapshot) { assert.Equal(t, 1.0, s.Feedback) },
		},
		{
			name:  "feedback below zero",
			set:   func(p *Parameters) { p.SetFeedback(-0.2) },
			check: func(t *testing.T, s Snapshot) { assert.Equal(t, 0.0, s.Feedback) },
		},
		{
			name:  "mix above one",
			set:   func(p *Parameters) { p.SetNewFrameMix(3) },
			check: func(t *testing.T, s Snapshot) { assert.Equal(t, 1.0, s.NewFrameMix) },
		},
		{
			name:  "zoom below range",
			set:   func(p *Parameters) { p.SetZoom(10) },
			check: func(t *testing.T, s Snapshot) { assert.Equal(t, MinZoom, s.Zoom) },
		},
		{
			name: "move out of range",
			set:  func(p *Parameters) { p.SetMove(2000, -2000) },
			check: func(t *testing.T, s Snapshot) {
				assert.Equal(t, MaxMove, s.MoveL2R)
				assert.Equal(t, -MaxMove, s.MoveT2B)
			},
		},
		{
			name:  "negative frame skip",
			set:   func(p *Parameters) { p.SetFrameSkip(-4) },
			check: func(t *testing.T, s Snapshot) { assert.Equal(t, 0, s.FrameSkip) },
		},
		{
			name:  "huge frame skip",
			set:   func(p *Parameters) { p.SetFrameSkip(1 << 20) },
			check: func(t *testing.T, s Snapshot) { assert.Equal(t, MaxFrameSkip, s.FrameSkip) },
		},
		{
			name:  "NaN keeps previous value",
			set:   func(p *Parameters) { p.SetFeedback(math.NaN()) },
			check: func(t *testing.T, s Snapshot) { assert.Equal(t, 0.9, s.Feedback) },
		},
		{
			name:  "Inf keeps previous value",
			set:   func(p *Parameters) { p.SetSkew(math.Inf(1)) },
			check: func(t *testing.T, s Snapshot) { assert.Equal(t, 0.0, s.Skew) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			tt.set(p)
			tt.check(t, p.Snapshot())
		})
	}
}

func TestApply_RoundTrip(t *testing.T) {
	want := Snapshot{
		Zoom:        725,
		MoveL2R:     12.5,
		MoveT2B:     -33,
		Skew:        42,
		FlipHorz:    false,
		FlipVert:    true,
		Feedback:    0.25,
		FrameSkip:   3,
		BlurOn:      true,
		HueRotOn:    true,
		HueRotSpeed: 0.4,
		HueCenter:   0.3,
		HueWidth:    0.2,
		NewFrameMix: 0.6,
	}

	p := New()
	p.Apply(want)
	assert.Equal(t, want, p.Snapshot())
}

func TestHueBounds(t *testing.T) {
	s := Defaults()
	s.HueCenter = 0.5
	s.HueWidth = 0.4

	lo, hi := s.HueBounds()
	assert.InDelta(t, 0.3, lo, 1e-12)
	assert.InDelta(t, 0.7, hi, 1e-12)
}

// Package params holds the live-tunable effect parameters of the installation.
//
// A single Parameters value is owned by the engine and passed by reference to the
// compositor and the control dispatcher. Every mutation goes through a setter that
// clamps its argument into the parameter's natural range, so readers never observe
// an out-of-range or non-finite value.
package params

import "math"

// Natural ranges of the camera-rig transform and effect values.
const (
	MinZoom      = 50.0
	MaxZoom      = 1500.0
	MaxMove      = 1500.0
	MaxSkew      = 85.0
	MaxFrameSkip = 600

	// SelectZoom is the camera distance applied whenever a new camera starts.
	SelectZoom = 1100.0
)

// Snapshot is a plain copy of every effect parameter.
type Snapshot struct {
	Zoom        float64 `json:"zoom" yaml:"zoom"`
	MoveL2R     float64 `json:"move_l2r" yaml:"movel2r"`
	MoveT2B     float64 `json:"move_t2b" yaml:"movet2b"`
	Skew        float64 `json:"skew" yaml:"skew"`
	FlipHorz    bool    `json:"flip_horz" yaml:"fliphorz"`
	FlipVert    bool    `json:"flip_vert" yaml:"flipvert"`
	Feedback    float64 `json:"feedback" yaml:"feedback"`
	FrameSkip   int     `json:"frame_skip" yaml:"frameskip"`
	BlurOn      bool    `json:"blur_on" yaml:"bluron"`
	HueRotOn    bool    `json:"hue_rot_on" yaml:"huemodon"`
	HueRotSpeed float64 `json:"hue_rot_speed" yaml:"huerotspeed"`
	HueCenter   float64 `json:"hue_center" yaml:"huecenter"`
	HueWidth    float64 `json:"hue_width" yaml:"huewidth"`
	NewFrameMix float64 `json:"new_frame_mix" yaml:"newframemix"`
}

// Defaults returns the values the installation starts with.
func Defaults() Snapshot {
	return Snapshot{
		Zoom:        300,
		MoveL2R:     -675,
		MoveT2B:     -500,
		Skew:        0,
		FlipHorz:    true,
		Feedback:    0.9,
		FrameSkip:   0,
		HueRotSpeed: 0,
		HueCenter:   0.5,
		HueWidth:    1.0,
		NewFrameMix: 0,
	}
}

// Parameters is the mutable effect parameter bundle.
type Parameters struct {
	s Snapshot
}

// New returns parameters initialised to Defaults.
func New() *Parameters {
	return &Parameters{s: Defaults()}
}

// Snapshot returns a copy of the current values.
func (p *Parameters) Snapshot() Snapshot {
	return p.s
}

// Apply replaces every value with the clamped values of s.
// Non-finite fields in s keep their current value.
func (p *Parameters) Apply(s Snapshot) {
	p.SetZoom(s.Zoom)
	p.SetMove(s.MoveL2R, s.MoveT2B)
	p.SetSkew(s.Skew)
	p.SetFlipHorz(s.FlipHorz)
	p.SetFlipVert(s.FlipVert)
	p.SetFeedback(s.Feedback)
	p.SetFrameSkip(s.FrameSkip)
	p.SetBlur(s.BlurOn)
	p.SetHueRotation(s.HueRotOn)
	p.SetHueSpeed(s.HueRotSpeed)
	p.SetHueCenter(s.HueCenter)
	p.SetHueWidth(s.HueWidth)
	p.SetNewFrameMix(s.NewFrameMix)
}

func (p *Parameters) SetZoom(v float64) { p.s.Zoom = clamp(v, MinZoom, MaxZoom, p.s.Zoom) }

func (p *Parameters) SetMove(l2r, t2b float64) {
	p.s.MoveL2R = clamp(l2r, -MaxMove, MaxMove, p.s.MoveL2R)
	p.s.MoveT2B = clamp(t2b, -MaxMove, MaxMove, p.s.MoveT2B)
}

func (p *Parameters) SetSkew(v float64) { p.s.Skew = clamp(v, -MaxSkew, MaxSkew, p.s.Skew) }

func (p *Parameters) SetFlipHorz(on bool) { p.s.FlipHorz = on }

func (p *Parameters) SetFlipVert(on bool) { p.s.FlipVert = on }

// SetFeedback sets the trail feedback amount, clamped to [0,1].
func (p *Parameters) SetFeedback(v float64) { p.s.Feedback = clamp(v, 0, 1, p.s.Feedback) }

// SetFrameSkip sets how many frames are skipped between two decay applications.
func (p *Parameters) SetFrameSkip(n int) {
	if n < 0 {
		n = 0
	}
	if n > MaxFrameSkip {
		n = MaxFrameSkip
	}
	p.s.FrameSkip = n
}

func (p *Parameters) SetBlur(on bool) { p.s.BlurOn = on }

func (p *Parameters) SetHueRotation(on bool) { p.s.HueRotOn = on }

func (p *Parameters) SetHueSpeed(v float64) { p.s.HueRotSpeed = clamp(v, 0, 1, p.s.HueRotSpeed) }

func (p *Parameters) SetHueCenter(v float64) { p.s.HueCenter = clamp(v, 0, 1, p.s.HueCenter) }

func (p *Parameters) SetHueWidth(v float64) { p.s.HueWidth = clamp(v, 0, 1, p.s.HueWidth) }

// SetNewFrameMix sets the fraction of the live frame in the output, clamped to [0,1].
func (p *Parameters) SetNewFrameMix(v float64) {
	p.s.NewFrameMix = clamp(v, 0, 1, p.s.NewFrameMix)
}

// HueBounds returns the oscillation interval centre ± width/2.
func (s Snapshot) HueBounds() (lo, hi float64) {
	half := s.HueWidth / 2
	return s.HueCenter - half, s.HueCenter + half
}

func clamp(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

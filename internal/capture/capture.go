// Package capture enumerates camera sources and owns the single live capture session.
package capture

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/illuminate/internal/compositor"
)

// Device is a physically present capture device.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Resolution is a capture mode width×height.
type Resolution struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ParseResolution parses "640x480".
func ParseResolution(s string) (Resolution, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return Resolution{}, fmt.Errorf("invalid resolution %q: expected WIDTHxHEIGHT", s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution width %q: %w", parts[0], err)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution height %q: %w", parts[1], err)
	}
	if w <= 0 || h <= 0 {
		return Resolution{}, fmt.Errorf("invalid resolution %q: dimensions must be positive", s)
	}
	return Resolution{Width: w, Height: h}, nil
}

// SortResolutions orders resolutions ascending by pixel count, then width.
func SortResolutions(res []Resolution) {
	sort.SliceStable(res, func(i, j int) bool {
		pi, pj := res[i].Width*res[i].Height, res[j].Width*res[j].Height
		if pi != pj {
			return pi < pj
		}
		return res[i].Width < res[j].Width
	})
}

// Descriptor identifies a selectable (device, resolution) pair.
type Descriptor struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Label is the human-readable form used in logs and the device list.
func (d Descriptor) Label() string {
	return fmt.Sprintf("%s %dx%d", d.Name, d.Width, d.Height)
}

// Matches reports whether d is the named source at the given resolution.
func (d Descriptor) Matches(name string, width, height int) bool {
	return d.Name == name && d.Width == width && d.Height == height
}

// Stream is one open camera stream.
type Stream interface {
	// Start acquires the device and begins delivering frames.
	Start() error

	// Stop releases the device. Safe to call more than once.
	Stop() error

	// Poll copies the newest frame into dst when its sequence number is greater
	// than since. It never blocks.
	Poll(dst *compositor.Frame, since uint64) (seq uint64, ok bool)

	// Err returns the error that ended a running stream, or nil.
	Err() error
}

// Opener creates a stream for a descriptor without starting it.
type Opener func(d Descriptor) (Stream, error)

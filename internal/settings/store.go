// Package settings persists effect parameters and the active camera to a
// flat YAML file.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bryanchriswhite/illuminate/internal/logger"
	"github.com/bryanchriswhite/illuminate/internal/params"
	"gopkg.in/yaml.v3"
)

// ErrNoSettings is returned by Load when the settings file does not exist.
var ErrNoSettings = errors.New("no saved settings")

// Camera identifies a capture source by name and resolution.
type Camera struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Record is the content of a settings file.
type Record struct {
	Params params.Snapshot `json:"params"`
	Camera *Camera         `json:"camera,omitempty"`
}

// file mirrors the on-disk layout. Pointers detect missing keys.
type file struct {
	Zoom        *float64 `yaml:"zoom"`
	MoveL2R     *float64 `yaml:"movel2r"`
	MoveT2B     *float64 `yaml:"movet2b"`
	Skew        *float64 `yaml:"skew"`
	FlipHorz    *bool    `yaml:"fliphorz"`
	FlipVert    *bool    `yaml:"flipvert"`
	Feedback    *float64 `yaml:"feedback"`
	FrameSkip   *int     `yaml:"frameskip"`
	BlurOn      *bool    `yaml:"bluron"`
	HueRotOn    *bool    `yaml:"huemodon"`
	HueRotSpeed *float64 `yaml:"huerotspeed"`
	HueCenter   *float64 `yaml:"huecenter"`
	HueWidth    *float64 `yaml:"huewidth"`
	NewFrameMix *float64 `yaml:"newframemix"`
	CamName     *string  `yaml:"camname,omitempty"`
	CamWidth    *int     `yaml:"camwidth,omitempty"`
	CamHeight   *int     `yaml:"camheight,omitempty"`
}

// Store reads and writes one settings file.
type Store struct {
	path string
}

// NewStore creates a store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath returns ~/.config/illuminate/settings.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "illuminate-settings.yaml"
	}
	return filepath.Join(dir, "illuminate", "settings.yaml")
}

// Path returns the file location.
func (s *Store) Path() string { return s.path }

// Save writes the snapshot and, when cam is non-nil, the active camera.
// The file is replaced atomically.
func (s *Store) Save(snap params.Snapshot, cam *Camera) error {
	f := file{
		Zoom:        &snap.Zoom,
		MoveL2R:     &snap.MoveL2R,
		MoveT2B:     &snap.MoveT2B,
		Skew:        &snap.Skew,
		FlipHorz:    &snap.FlipHorz,
		FlipVert:    &snap.FlipVert,
		Feedback:    &snap.Feedback,
		FrameSkip:   &snap.FrameSkip,
		BlurOn:      &snap.BlurOn,
		HueRotOn:    &snap.HueRotOn,
		HueRotSpeed: &snap.HueRotSpeed,
		HueCenter:   &snap.HueCenter,
		HueWidth:    &snap.HueWidth,
		NewFrameMix: &snap.NewFrameMix,
	}
	if cam != nil {
		f.CamName = &cam.Name
		f.CamWidth = &cam.Width
		f.CamHeight = &cam.Height
	}

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}

	logger.WithComponent("settings").Info().Str("path", s.path).Msg("Settings saved")
	return nil
}

// Load reads the whole file. Any missing, unreadable or ill-typed key
// fails the load and nothing is returned, so callers never apply a
// partial record.
func (s *Store) Load() (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, fmt.Errorf("%w: %s", ErrNoSettings, s.path)
		}
		return Record{}, fmt.Errorf("failed to read settings: %w", err)
	}
	return Parse(data)
}

// Parse decodes a settings document.
func Parse(data []byte) (Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Record{}, errors.New("settings file is empty")
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Record{}, fmt.Errorf("failed to parse settings: %w", err)
	}

	var missing []string
	need := func(ok bool, key string) {
		if !ok {
			missing = append(missing, key)
		}
	}
	need(f.Zoom != nil, "zoom")
	need(f.MoveL2R != nil, "movel2r")
	need(f.MoveT2B != nil, "movet2b")
	need(f.Skew != nil, "skew")
	need(f.FlipHorz != nil, "fliphorz")
	need(f.FlipVert != nil, "flipvert")
	need(f.Feedback != nil, "feedback")
	need(f.FrameSkip != nil, "frameskip")
	need(f.BlurOn != nil, "bluron")
	need(f.HueRotOn != nil, "huemodon")
	need(f.HueRotSpeed != nil, "huerotspeed")
	need(f.HueCenter != nil, "huecenter")
	need(f.HueWidth != nil, "huewidth")
	need(f.NewFrameMix != nil, "newframemix")
	if len(missing) > 0 {
		return Record{}, fmt.Errorf("settings missing keys: %v", missing)
	}

	rec := Record{Params: params.Snapshot{
		Zoom:        *f.Zoom,
		MoveL2R:     *f.MoveL2R,
		MoveT2B:     *f.MoveT2B,
		Skew:        *f.Skew,
		FlipHorz:    *f.FlipHorz,
		FlipVert:    *f.FlipVert,
		Feedback:    *f.Feedback,
		FrameSkip:   *f.FrameSkip,
		BlurOn:      *f.BlurOn,
		HueRotOn:    *f.HueRotOn,
		HueRotSpeed: *f.HueRotSpeed,
		HueCenter:   *f.HueCenter,
		HueWidth:    *f.HueWidth,
		NewFrameMix: *f.NewFrameMix,
	}}

	camKeys := 0
	for _, set := range []bool{f.CamName != nil, f.CamWidth != nil, f.CamHeight != nil} {
		if set {
			camKeys++
		}
	}
	switch camKeys {
	case 0:
	case 3:
		rec.Camera = &Camera{Name: *f.CamName, Width: *f.CamWidth, Height: *f.CamHeight}
	default:
		return Record{}, errors.New("settings camera entry incomplete: need camname, camwidth and camheight")
	}

	return rec, nil
}

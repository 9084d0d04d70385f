package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bryanchriswhite/illuminate/internal/capture"
	"github.com/bryanchriswhite/illuminate/internal/logger"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	LogLevel     string `json:"log_level" yaml:"log_level"`
	LogPretty    bool   `json:"log_pretty" yaml:"log_pretty"`
	SettingsPath string `json:"settings_path" yaml:"settings_path"`

	OSC        OSCConfig        `json:"osc" yaml:"osc"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Display    DisplayConfig    `json:"display" yaml:"display"`
	Capture    CaptureConfig    `json:"capture" yaml:"capture"`
	Compositor CompositorConfig `json:"compositor" yaml:"compositor"`
	MJPEG      MJPEGConfig      `json:"mjpeg" yaml:"mjpeg"`
}

// OSCConfig is the UDP control listener.
type OSCConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
}

// ServerConfig is the HTTP API and stream server.
type ServerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

// DisplayConfig selects the window the composite is projected into.
// Zero width or height means the full screen.
type DisplayConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	Width   int    `json:"width" yaml:"width"`
	Height  int    `json:"height" yaml:"height"`
	FPS     int    `json:"fps" yaml:"fps"`
	// InhibitScreensaver asks the desktop session not to blank the screen.
	InhibitScreensaver bool `json:"inhibit_screensaver" yaml:"inhibit_screensaver"`
}

// CaptureConfig controls device enumeration and the stream backend.
type CaptureConfig struct {
	Backend     string   `json:"backend" yaml:"backend"`
	Enumerate   string   `json:"enumerate" yaml:"enumerate"`
	Resolutions []string `json:"resolutions" yaml:"resolutions"`
	FPS         int      `json:"fps" yaml:"fps"`
	TestPattern bool     `json:"test_pattern" yaml:"test_pattern"`
	// AutoSelect is the source index started at launch, -1 for none.
	AutoSelect int `json:"auto_select" yaml:"auto_select"`
}

// CompositorConfig tunes the frame compositor. Zero workers means one per CPU.
type CompositorConfig struct {
	Workers int `json:"workers" yaml:"workers"`
}

// MJPEGConfig is the browser preview stream.
type MJPEGConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Quality int  `json:"quality" yaml:"quality"`
	FPS     int  `json:"fps" yaml:"fps"`
	Width   int  `json:"width" yaml:"width"`
	Height  int  `json:"height" yaml:"height"`
	// HUD draws the camera and parameter readout over the preview.
	HUD bool `json:"hud" yaml:"hud"`
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		LogLevel:     "info",
		SettingsPath: "",
		OSC: OSCConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8000,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Display: DisplayConfig{
			Backend:            "x11",
			FPS:                60,
			InhibitScreensaver: true,
		},
		Capture: CaptureConfig{
			Backend:     string(capture.BackendGst),
			Enumerate:   string(capture.EnumerateAll),
			Resolutions: []string{"640x480"},
			FPS:         30,
			AutoSelect:  -1,
		},
		MJPEG: MJPEGConfig{
			Enabled: true,
			Quality: 80,
			FPS:     30,
			Width:   1280,
			Height:  720,
			HUD:     true,
		},
	}
}

// Validate checks every enumerated value and range.
func (c *Config) Validate() error {
	if _, err := capture.ParseBackend(c.Capture.Backend); err != nil {
		return err
	}
	if _, err := capture.ParseEnumerateMode(c.Capture.Enumerate); err != nil {
		return err
	}
	if _, err := c.ParsedResolutions(); err != nil {
		return err
	}
	switch c.Display.Backend {
	case "x11", "ebiten", "none":
	default:
		return fmt.Errorf("unknown display backend %q (use x11, ebiten or none)", c.Display.Backend)
	}
	for name, port := range map[string]int{"osc.port": c.OSC.Port, "server.port": c.Server.Port} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("invalid %s: %d", name, port)
		}
	}
	if c.MJPEG.Quality < 1 || c.MJPEG.Quality > 100 {
		return fmt.Errorf("invalid mjpeg.quality: %d (1-100)", c.MJPEG.Quality)
	}
	if c.Compositor.Workers < 0 {
		return fmt.Errorf("invalid compositor.workers: %d", c.Compositor.Workers)
	}
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", c.LogLevel)
	}
	return nil
}

// ParsedResolutions returns capture.resolutions as Resolution values.
func (c *Config) ParsedResolutions() ([]capture.Resolution, error) {
	out := make([]capture.Resolution, 0, len(c.Capture.Resolutions))
	for _, s := range c.Capture.Resolutions {
		r, err := capture.ParseResolution(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns ~/.config/illuminate/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "illuminate", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty. A missing
// file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config loaded")

	return m, nil
}

// load reads the configuration from disk. Keys absent from the file keep
// their defaults.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg, err := decode(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

func decode(data []byte) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}

	cfg := *m.config
	cfg.Capture.Resolutions = append([]string(nil), m.config.Capture.Resolutions...)
	return &cfg
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Msg("Failed to marshal config")
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// Update validates and replaces the entire configuration
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// Value returns the value at a dotted key such as "osc.port".
func (m *Manager) Value(key string) (interface{}, error) {
	tree, err := toTree(m.Get())
	if err != nil {
		return nil, err
	}

	var node interface{} = tree
	for _, part := range strings.Split(key, ".") {
		mp, ok := node.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("configuration key not found: %s", key)
		}
		node, ok = mp[part]
		if !ok {
			return nil, fmt.Errorf("configuration key not found: %s", key)
		}
	}
	return node, nil
}

// SetValue parses value as a YAML scalar, stores it at the dotted key,
// validates the result and saves.
func (m *Manager) SetValue(key, value string) error {
	tree, err := toTree(m.Get())
	if err != nil {
		return err
	}

	var parsed interface{}
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		return fmt.Errorf("invalid value %q: %w", value, err)
	}

	parts := strings.Split(key, ".")
	node := tree
	for _, part := range parts[:len(parts)-1] {
		next, ok := node[part].(map[string]interface{})
		if !ok {
			return fmt.Errorf("configuration key not found: %s", key)
		}
		node = next
	}
	last := parts[len(parts)-1]
	if _, ok := node[last]; !ok {
		return fmt.Errorf("configuration key not found: %s", key)
	}
	node[last] = parsed

	data, err := yaml.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	cfg, err := decode(data)
	if err != nil {
		return err
	}
	return m.Update(cfg)
}

// Keys lists every dotted key in sorted order.
func (m *Manager) Keys() []string {
	tree, err := toTree(m.Get())
	if err != nil {
		return nil
	}
	var keys []string
	var walk func(prefix string, mp map[string]interface{})
	walk = func(prefix string, mp map[string]interface{}) {
		for k, v := range mp {
			full := k
			if prefix != "" {
				full = prefix + "." + k
			}
			if child, ok := v.(map[string]interface{}); ok {
				walk(full, child)
				continue
			}
			keys = append(keys, full)
		}
	}
	walk("", tree)
	sort.Strings(keys)
	return keys
}

func toTree(cfg *Config) (map[string]interface{}, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	tree := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return tree, nil
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}

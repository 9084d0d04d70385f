package output

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/illuminate/internal/compositor"
	"github.com/bryanchriswhite/illuminate/internal/layout"
	"github.com/bryanchriswhite/illuminate/internal/logger"
	"github.com/bryanchriswhite/illuminate/internal/overlay"
)

// MJPEGConfig configures the preview stream.
type MJPEGConfig struct {
	Config
	Quality int
	// HUD, when set, returns lines drawn in the top-left corner of every frame.
	HUD func() []string
}

// MJPEGOutput streams frames as Motion JPEG over HTTP so the installation
// can be previewed from a browser.
type MJPEGOutput struct {
	config   MJPEGConfig
	renderer *Renderer
	running  bool
	mu       sync.RWMutex

	lastEncode time.Time
	lastUpdate time.Time
	latest     []byte

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameCount uint64
	startTime  time.Time
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(config MJPEGConfig) *MJPEGOutput {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = 80
	}
	if config.Width <= 0 || config.Height <= 0 {
		config.Width, config.Height = 1280, 720
	}
	return &MJPEGOutput{
		config:   config,
		renderer: NewRenderer(nil),
		clients:  make(map[chan []byte]struct{}),
	}
}

// Start initializes the MJPEG output
// Note: The HTTP handler is registered separately via GetHTTPHandler()
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	logger.WithComponent("mjpeg").Info().
		Int("width", m.config.Width).
		Int("height", m.config.Height).
		Int("fps", m.config.FPS).
		Msg("Output started")
	return nil
}

// Stop cleanly shuts down the output
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("mjpeg").Info().Uint64("frames", m.frameCount).Msg("Output stopped")
	return nil
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// Viewport implements Sink.
func (m *MJPEGOutput) Viewport() (int, int) {
	return m.config.Width, m.config.Height
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Present encodes the frame and sends it to every connected client. Calls
// faster than the configured FPS are dropped, as is all work when nobody
// is watching.
func (m *MJPEGOutput) Present(frame *compositor.Frame, dst layout.Rect) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("MJPEG output not running")
	}
	now := time.Now()
	if m.config.FPS > 0 && now.Sub(m.lastEncode) < time.Second/time.Duration(m.config.FPS) {
		m.mu.Unlock()
		return nil
	}
	m.lastEncode = now
	m.mu.Unlock()

	if m.ClientCount() == 0 {
		return nil
	}

	img := m.renderer.Render(frame, dst, m.config.Width, m.config.Height)
	if m.config.HUD != nil {
		overlay.NewText(8, 8, m.config.HUD()...).Render(img)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	m.mu.Lock()
	m.latest = jpegData
	m.lastUpdate = now
	m.frameCount++
	m.mu.Unlock()

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip this frame
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// ClientCount returns the number of connected stream clients.
func (m *MJPEGOutput) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// Latest returns the most recently encoded JPEG, or nil.
func (m *MJPEGOutput) Latest() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// GetHTTPHandler returns an http.Handler for the MJPEG stream
// Mount this at /stream or similar endpoint
func (m *MJPEGOutput) GetHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.IsRunning() {
			http.Error(w, "stream not running", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2)

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		// Send headers now so clients see the stream before the first frame.
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		log := logger.WithComponent("mjpeg")
		log.Info().Int("clients", clientCount).Str("remote", r.RemoteAddr).Msg("Client connected")

		defer func() {
			m.clientsMu.Lock()
			if _, ok := m.clients[frameChan]; ok {
				delete(m.clients, frameChan)
			}
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("Client disconnected")
		}()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if err := writePart(w, jpegData); err != nil {
					return
				}
			}
		}
	}
}

func writePart(w http.ResponseWriter, jpegData []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// GetSnapshotHandler serves the latest encoded frame as a single JPEG.
func (m *MJPEGOutput) GetSnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := m.Latest()
		if data == nil {
			http.Error(w, "no frame yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(data)
	}
}

// GetStatsHandler returns an HTTP handler that shows stream statistics
func (m *MJPEGOutput) GetStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		running := m.running
		frameCount := m.frameCount
		startTime := m.startTime
		lastUpdate := m.lastUpdate
		m.mu.RUnlock()

		clientCount := m.ClientCount()

		var fps float64
		if running && !startTime.IsZero() {
			elapsed := time.Since(startTime).Seconds()
			if elapsed > 0 {
				fps = float64(frameCount) / elapsed
			}
		}

		status, statusClass := "Stopped", "status-stopped"
		if running {
			status, statusClass = "Running", "status-running"
		}
		last := "Never"
		if !lastUpdate.IsZero() {
			last = time.Since(lastUpdate).Round(time.Millisecond).String() + " ago"
		}
		uptime := "N/A"
		if !startTime.IsZero() {
			uptime = time.Since(startTime).Round(time.Second).String()
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Illuminate - Stream Stats</title>
    <style>
        body { font-family: monospace; padding: 20px; background: #1e1e1e; color: #d4d4d4; }
        .stat { margin: 10px 0; }
        .label { color: #569cd6; }
        .value { color: #4ec9b0; }
        .status-running { color: #4ec9b0; }
        .status-stopped { color: #ce9178; }
    </style>
</head>
<body>
    <h1>Illuminate Preview Stream</h1>
    <div class="stat"><span class="label">Status:</span> <span class="value %s">%s</span></div>
    <div class="stat"><span class="label">Resolution:</span> <span class="value">%dx%d @ %d FPS (target)</span></div>
    <div class="stat"><span class="label">Actual FPS:</span> <span class="value">%.2f</span></div>
    <div class="stat"><span class="label">Total Frames:</span> <span class="value">%d</span></div>
    <div class="stat"><span class="label">Connected Clients:</span> <span class="value">%d</span></div>
    <div class="stat"><span class="label">Last Update:</span> <span class="value">%s</span></div>
    <div class="stat"><span class="label">Uptime:</span> <span class="value">%s</span></div>
    <p><a href="/" style="color: #569cd6;">View Stream</a></p>
</body>
</html>`,
			statusClass, status,
			m.config.Width, m.config.Height, m.config.FPS,
			fps,
			frameCount,
			clientCount,
			last,
			uptime,
		)
	}
}

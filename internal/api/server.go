package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bryanchriswhite/illuminate/internal/capture"
	"github.com/bryanchriswhite/illuminate/internal/config"
	"github.com/bryanchriswhite/illuminate/internal/control"
	"github.com/bryanchriswhite/illuminate/internal/engine"
	"github.com/bryanchriswhite/illuminate/internal/logger"
	"github.com/bryanchriswhite/illuminate/internal/output"
	"github.com/bryanchriswhite/illuminate/internal/params"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// statusInterval is how often the control WebSocket pushes engine status.
const statusInterval = 500 * time.Millisecond

// Engine is the part of the engine the API uses. Every method is safe to call
// from HTTP handler goroutines.
type Engine interface {
	Status() engine.Status
	Snapshot() params.Snapshot
	Catalog() *capture.Catalog
	Dispatcher() *control.Dispatcher
	Submit(m control.Message)
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	engine    Engine
	configMgr *config.Manager
	mjpeg     *output.MJPEGOutput
	upgrader  websocket.Upgrader

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates a new API server. configMgr and mjpeg may be nil.
func NewServer(eng Engine, configMgr *config.Manager, mjpeg *output.MJPEGOutput) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		engine:    eng,
		configMgr: configMgr,
		mjpeg:     mjpeg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // control surfaces are served from other hosts on the LAN
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/params", s.handleParams).Methods("GET")
	api.HandleFunc("/config", s.handleConfig).Methods("GET")

	// Capture sources
	api.HandleFunc("/devices", s.handleDevices).Methods("GET")
	api.HandleFunc("/devices/rescan", s.handleRescan).Methods("POST")
	api.HandleFunc("/devices/{index:[0-9]+}/select", s.handleSelect).Methods("POST")

	// Control messages, same addresses as OSC
	api.HandleFunc("/control", s.handleControl).Methods("POST")
	api.HandleFunc("/control/addresses", s.handleAddresses).Methods("GET")
	api.HandleFunc("/control/ws", s.handleControlSocket)

	if s.mjpeg != nil {
		s.router.HandleFunc("/stream", s.mjpeg.GetHTTPHandler())
		s.router.HandleFunc("/stats", s.mjpeg.GetStatsHandler())
		s.router.HandleFunc("/snapshot.jpg", s.mjpeg.GetSnapshotHandler())
		s.router.HandleFunc("/", s.mjpeg.GetViewerHandler())
	} else {
		s.router.HandleFunc("/", s.handleIndex)
	}
}

// Handler returns the router wrapped with CORS headers.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithComponent("api").Info().Str("addr", addr).Msg("HTTP server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		writeError(w, http.StatusNotFound, "no configuration loaded")
		return
	}
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

// device is one entry of the device list.
type device struct {
	Index  int    `json:"index"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
	capture.Descriptor
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	status := s.engine.Status()
	all := s.engine.Catalog().All()

	list := make([]device, 0, len(all))
	for i, d := range all {
		list = append(list, device{
			Index:      i,
			Label:      d.Label(),
			Active:     status.Camera != nil && *status.Camera == d,
			Descriptor: d,
		})
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	s.submit(r, control.Message{Address: "/1/rescan"})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid device index")
		return
	}
	if n := s.engine.Catalog().Len(); index >= n {
		writeError(w, http.StatusNotFound, fmt.Sprintf("device index %d out of range (%d sources)", index, n))
		return
	}

	s.submit(r, control.Message{Address: "/1/camera", Args: []interface{}{int32(index)}})
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "queued", "index": index})
}

// controlRequest is one control message in JSON form.
type controlRequest struct {
	Address string        `json:"address"`
	Args    []interface{} `json:"args"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	if _, ok := s.engine.Dispatcher().Routes()[req.Address]; !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown address %s", req.Address))
		return
	}

	s.submit(r, control.Message{Address: req.Address, Args: req.Args})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// address describes one control address.
type address struct {
	Address     string `json:"address"`
	Arity       int    `json:"arity"`
	Description string `json:"description"`
}

func (s *Server) handleAddresses(w http.ResponseWriter, r *http.Request) {
	d := s.engine.Dispatcher()
	routes := d.Routes()

	list := make([]address, 0, len(routes))
	for _, a := range d.Addresses() {
		list = append(list, address{Address: a, Arity: routes[a].Arity, Description: routes[a].Description})
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleControlSocket(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log.Info().Str("remote", r.RemoteAddr).Msg("Control socket connected")

	done := make(chan struct{})
	var writeMu sync.Mutex

	go func() {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteJSON(s.engine.Status())
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()
	defer close(done)

	for {
		var req controlRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Control socket read failed")
			}
			log.Info().Str("remote", r.RemoteAddr).Msg("Control socket disconnected")
			return
		}
		if req.Address == "" {
			continue
		}
		s.submit(r, control.Message{Address: req.Address, Args: req.Args})
	}
}

func (s *Server) submit(r *http.Request, m control.Message) {
	m.Source = "http:" + r.RemoteAddr
	logger.WithComponent("api").Debug().Str("message", m.String()).Str("source", m.Source).Msg("Queued control message")
	s.engine.Submit(m)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Illuminate</title>
    <style>
        body { font-family: sans-serif; max-width: 800px; margin: 50px auto; padding: 20px; background: #111; color: #ddd; }
        a { color: #7fb0ff; }
        code { background: #222; padding: 2px 6px; border-radius: 3px; }
    </style>
</head>
<body>
    <h1>Illuminate</h1>
    <p>The preview stream is disabled. Start with <code>--mjpeg</code> to watch the output here.</p>
    <h3>API Endpoints:</h3>
    <ul>
        <li><a href="/api/health">/api/health</a></li>
        <li><a href="/api/status">/api/status</a></li>
        <li><a href="/api/params">/api/params</a></li>
        <li><a href="/api/devices">/api/devices</a></li>
        <li><a href="/api/control/addresses">/api/control/addresses</a></li>
    </ul>
</body>
</html>`

	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(html))
}

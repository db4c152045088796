package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/chambercam/internal/chamber"
	"github.com/banshee-data/chambercam/internal/eventdb"
	"github.com/banshee-data/chambercam/internal/monitoring"
	"github.com/banshee-data/chambercam/internal/version"
)

// ANSI escape codes for request log coloring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the tuning and history API around one engine and one
// capture controller.
type Server struct {
	engine     *chamber.Engine
	db         *eventdb.DB
	controller *Controller
	hub        *Hub
	preview    *Preview
	presets    *PresetStore
	runCtx     context.Context

	mu     sync.Mutex
	config *chamber.TuningConfig
}

// NewServer wires the API. runCtx bounds capture runs started over HTTP;
// initial is the tuning config the engine booted with (nil means defaults).
func NewServer(runCtx context.Context, engine *chamber.Engine, db *eventdb.DB, controller *Controller, presets *PresetStore, initial *chamber.TuningConfig) *Server {
	if initial == nil {
		initial = &chamber.TuningConfig{}
	}
	return &Server{
		engine:     engine,
		db:         db,
		controller: controller,
		hub:        NewHub(),
		preview:    NewPreview(),
		presets:    presets,
		runCtx:     runCtx,
		config:     initial,
	}
}

// ResultSink returns the per-frame observer to hang on the engine: results
// fan out to websocket clients and the MJPEG preview.
func (s *Server) ResultSink() func(chamber.Result) {
	return func(res chamber.Result) {
		s.hub.Broadcast(res)
		s.preview.Observe(res)
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/params", s.handleParams)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/capture/start", s.startCapture)
	mux.HandleFunc("/api/capture/stop", s.stopCapture)
	mux.HandleFunc("/api/capture/status", s.captureStatus)
	mux.HandleFunc("/api/presets", s.handlePresets)
	mux.HandleFunc("/api/presets/apply", s.applyPreset)
	mux.Handle("/preview", s.preview)
	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.HandleFunc("/charts/events", s.eventsChart)
	mux.HandleFunc("/debug/scores.png", s.scoresPlot)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// handleParams serves the current tuning config and accepts partial updates.
// A rejected update leaves the engine on its previous settings and reports
// the validation failure.
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		cfg := *s.config
		s.mu.Unlock()
		json.NewEncoder(w).Encode(cfg)

	case http.MethodPost:
		var patch chamber.TuningConfig
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid config JSON: %v", err))
			return
		}

		s.mu.Lock()
		merged := *s.config
		merged.Merge(&patch)
		s.mu.Unlock()

		if err := s.engine.Apply(merged.Resolve()); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		s.mu.Lock()
		s.config = &merged
		s.mu.Unlock()
		json.NewEncoder(w).Encode(merged)

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	var since time.Time
	if sv := r.URL.Query().Get("since"); sv != "" {
		parsed, err := time.Parse(time.RFC3339, sv)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'since' parameter, want RFC3339")
			return
		}
		since = parsed
	}

	events, err := s.db.ListEvents(limit, since)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}
	if events == nil {
		events = []chamber.Event{}
	}
	json.NewEncoder(w).Encode(events)
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	total, err := s.db.CountEvents()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to count events: %v", err))
		return
	}

	resp := struct {
		Version     string                `json:"version"`
		State       string                `json:"state"`
		Run         chamber.StatsSnapshot `json:"run"`
		TotalEvents int64                 `json:"total_events"`
		WSClients   int                   `json:"ws_clients"`
	}{
		Version:     version.Version,
		State:       s.controller.State(),
		Run:         s.engine.Stats().Snapshot(),
		TotalEvents: total,
		WSClients:   s.hub.ClientCount(),
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) startCapture(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if err := s.controller.Start(s.runCtx); err != nil {
		s.writeJSONError(w, http.StatusConflict, err.Error())
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"state": StateCapturing})
}

func (s *Server) stopCapture(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.controller.Stop()
	json.NewEncoder(w).Encode(map[string]string{"state": s.controller.State()})
}

func (s *Server) captureStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	resp := map[string]string{"state": s.controller.State()}
	if err := s.controller.LastError(); err != nil {
		resp["last_error"] = err.Error()
	}
	json.NewEncoder(w).Encode(resp)
}

// handlePresets lists presets and saves a tuning config under a name.
func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		names, err := s.presets.List()
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to list presets: %v", err))
			return
		}
		if names == nil {
			names = []string{}
		}
		json.NewEncoder(w).Encode(names)

	case http.MethodPost:
		var req struct {
			Name   string                `json:"name"`
			Config *chamber.TuningConfig `json:"config,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
			return
		}

		// A request without an explicit config snapshots the live tuning.
		cfg := req.Config
		if cfg == nil {
			s.mu.Lock()
			snapshot := *s.config
			s.mu.Unlock()
			cfg = &snapshot
		}
		if err := cfg.Resolve().Validate(); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.presets.Save(req.Name, cfg); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"saved": req.Name})

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// applyPreset loads a named preset and makes it the live configuration.
func (s *Server) applyPreset(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	cfg, err := s.presets.Load(req.Name)
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("failed to load preset: %v", err))
		return
	}
	if err := s.engine.Apply(cfg.Resolve()); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	json.NewEncoder(w).Encode(cfg)
}

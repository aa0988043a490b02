// ABOUTME: Local development emulator for the dashboard backend: the phase API
// ABOUTME: plus the chat and pipeline websocket channels, behind one chi router.
package devserver

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"

	"github.com/2389-research/pulse/render"
)

// run tracks one pipeline run started through the API.
type run struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// Config tunes the emulator. Zero values give a usable interactive server;
// tests shrink StepDelay to keep runs fast.
type Config struct {
	Token     string        // required bearer/query token; empty disables auth
	Steps     int           // progress steps per pipeline run (default 4)
	StepDelay time.Duration // delay between progress frames (default 300ms)
}

// Server emulates the dashboard backend for local development. It scripts
// chat turns and drives pipeline runs to completion with progress frames.
type Server struct {
	cfg    Config
	router chi.Router

	mu        sync.Mutex
	connected bool
	runs      map[string]*run
	order     []string
	cancels   map[string]chan struct{}

	hub      *hub
	renderer *render.Renderer
}

// NewServer creates the emulator with its routes wired.
func NewServer(cfg Config) *Server {
	if cfg.Steps == 0 {
		cfg.Steps = 4
	}
	if cfg.StepDelay == 0 {
		cfg.StepDelay = 300 * time.Millisecond
	}
	s := &Server{
		cfg:      cfg,
		runs:     make(map[string]*run),
		cancels:  make(map[string]chan struct{}),
		hub:      newHub(),
		renderer: render.NewRenderer(5 * time.Minute),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the http.Handler for the emulator, suitable for
// http.Server or httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter constructs the chi router with all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ws/chat", s.handleChatSocket)
	r.Get("/ws/pipeline", s.handlePipelineSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/connect", s.handleConnect)
		r.Post("/extractions", s.handleStartExtraction)
		r.Post("/analyses", s.handleStartAnalysis)
		r.Post("/generations", s.handleStartGeneration)
		r.Get("/runs", s.handleListRuns)
		r.Route("/runs/{runID}", func(r chi.Router) {
			r.Get("/", s.handleRunStatus)
			r.Post("/cancel", s.handleCancelRun)
		})
		r.Post("/render", s.handleRender)
	})

	return r
}

// requireToken checks the Authorization header against the configured token.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.Token {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Driver string `json:"driver"`
		DSN    string `json:"dsn"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Driver == "" || req.DSN == "" {
		writeError(w, http.StatusBadRequest, "driver and dsn are required")
		return
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	log.Printf("devserver: connected upstream driver=%s", req.Driver)
	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

func (s *Server) handleStartExtraction(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		writeError(w, http.StatusConflict, "not connected to an upstream source")
		return
	}
	s.startRun(w, "extraction")
}

func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExtractionID string `json:"extraction_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ExtractionID == "" {
		writeError(w, http.StatusBadRequest, "extraction_id is required")
		return
	}
	if !s.runExists(req.ExtractionID) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown extraction %s", req.ExtractionID))
		return
	}
	s.startRun(w, "analysis")
}

func (s *Server) handleStartGeneration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AnalysisID string `json:"analysis_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AnalysisID == "" {
		writeError(w, http.StatusBadRequest, "analysis_id is required")
		return
	}
	if !s.runExists(req.AnalysisID) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown analysis %s", req.AnalysisID))
		return
	}
	s.startRun(w, "generation")
}

// startRun registers a run, responds with its id, and drives progress frames
// on the pipeline channel in the background.
func (s *Server) startRun(w http.ResponseWriter, kind string) {
	id := newRunID()
	cancel := make(chan struct{})

	s.mu.Lock()
	s.runs[id] = &run{
		ID:        id,
		Kind:      kind,
		Status:    "running",
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	s.order = append(s.order, id)
	s.cancels[id] = cancel
	s.mu.Unlock()

	go s.driveRun(id, kind, cancel)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) runExists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[id]
	return ok
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	s.mu.Lock()
	rn, ok := s.runs[id]
	var copied run
	if ok {
		copied = *rn
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown run %s", id))
		return
	}
	writeJSON(w, http.StatusOK, copied)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]run, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, *s.runs[s.order[i]])
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	if ok {
		delete(s.cancels, id)
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no cancellable run %s", id))
		return
	}
	close(cancel)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// driveRun emits progress frames for a run and settles it to a terminal
// status, honoring cancellation between steps.
func (s *Server) driveRun(id, kind string, cancel <-chan struct{}) {
	for step := 1; step <= s.cfg.Steps; step++ {
		select {
		case <-cancel:
			s.finishRun(id, "cancelled", "")
			s.hub.broadcast(map[string]any{
				"type":   kind + "_cancelled",
				"phase":  kind,
				"status": "cancelled",
			})
			return
		case <-time.After(s.cfg.StepDelay):
		}
		s.hub.broadcast(map[string]any{
			"type":    kind + "_progress",
			"phase":   kind,
			"status":  "running",
			"detail":  fmt.Sprintf("step %d of %d", step, s.cfg.Steps),
			"current": step,
			"total":   s.cfg.Steps,
		})
	}

	s.finishRun(id, "done", "")
	s.hub.broadcast(map[string]any{
		"type":   kind + "_complete",
		"phase":  kind,
		"status": "done",
		"detail": "finished",
	})
}

func (s *Server) finishRun(id, status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rn, ok := s.runs[id]
	if !ok {
		return
	}
	rn.Status = status
	rn.Error = errMsg
	rn.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	delete(s.cancels, id)
}

// handleRender previews assistant markdown as the web dashboard would
// display it. Useful when scripting chat replies against the emulator.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Markdown string `json:"markdown"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"html": string(s.renderer.Markdown(req.Markdown)),
	})
}

func newRunID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("devserver: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

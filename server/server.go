// Package server exposes the engine over HTTP: a small JSON control API for
// creating and steering sessions plus a WebSocket endpoint that streams a
// session's pushes to observers.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/agentstage/core"
	"github.com/hupe1980/agentstage/engine"
	"github.com/hupe1980/agentstage/logging"
	"github.com/hupe1980/agentstage/scenario"
)

// Options configures a Server.
type Options struct {
	Logger logging.Logger

	// CheckOrigin decides which WebSocket origins are accepted. Defaults to
	// accepting every origin, matching the open CORS policy of the API.
	CheckOrigin func(r *http.Request) bool

	// WriteTimeout bounds a single WebSocket write.
	WriteTimeout time.Duration

	// MaxBodyBytes caps JSON request bodies. Defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// DefaultMaxBodyBytes is the default request body limit.
const DefaultMaxBodyBytes = 1 << 20

// Server serves the control API and the push stream of one Engine.
type Server struct {
	engine   *engine.Engine
	logger   logging.Logger
	upgrader websocket.Upgrader
	opts     Options
}

// New creates a Server for eng.
func New(eng *engine.Engine, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:       logging.NoOpLogger{},
		CheckOrigin:  func(*http.Request) bool { return true },
		WriteTimeout: 10 * time.Second,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Server{
		engine: eng,
		logger: logging.WithComponent(opts.Logger, "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
		opts: opts,
	}
}

// Handler returns the routed handler with CORS and request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", healthHandler)
	mux.HandleFunc("GET /api/scenarios", s.handleScenarios)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/session/create", s.handleCreate)
	mux.HandleFunc("GET /api/session/{id}", s.handleSnapshot)
	mux.HandleFunc("DELETE /api/session/{id}", s.handleDelete)
	mux.HandleFunc("POST /api/session/{id}/start", s.handleStart)
	mux.HandleFunc("POST /api/session/{id}/stop", s.handleStop)
	mux.HandleFunc("POST /api/session/{id}/director", s.handleDirector)
	mux.HandleFunc("POST /api/session/{id}/godmode", s.handleDirector)
	mux.HandleFunc("GET /api/session/{id}/transcript", s.handleTranscript)
	mux.HandleFunc("GET /api/session/{id}/export", s.handleExport)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return chain(mux, s.withLogging, withCORS)
}

type createSessionRequest struct {
	ScenarioID    string       `json:"scenarioId,omitempty"`
	Scenario      string       `json:"scenario"`
	InitialPrompt string       `json:"initialPrompt"`
	Agents        []core.Agent `json:"agents"`
	SecretRoles   bool         `json:"secretRoles,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type directorRequest struct {
	Prompt string `json:"prompt"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type transcriptResponse struct {
	Transcript []core.Entry `json:"transcript"`
}

// spec merges the request with a preset when scenarioId names one. Explicit
// fields win over preset defaults.
func (req createSessionRequest) spec() (core.SessionSpec, error) {
	spec := core.SessionSpec{
		Scenario:      req.Scenario,
		InitialPrompt: req.InitialPrompt,
		Agents:        req.Agents,
		SecretRoles:   req.SecretRoles,
	}
	if req.ScenarioID == "" {
		return spec, nil
	}
	preset, err := scenario.Lookup(req.ScenarioID)
	if err != nil {
		return core.SessionSpec{}, err
	}
	def := preset.Spec(req.SecretRoles)
	if spec.Scenario == "" {
		spec.Scenario = def.Scenario
	}
	if spec.InitialPrompt == "" {
		spec.InitialPrompt = def.InitialPrompt
	}
	if len(spec.Agents) == 0 {
		spec.Agents = def.Agents
	}
	return spec, nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	spec, err := req.spec()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.engine.CreateSession(spec)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createSessionResponse{SessionID: sess.ID, Message: "Session created"})
}

// decodeJSON reads a size-capped JSON body into v and writes the error
// response itself when that fails.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Start(r.PathValue("id")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Session started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Stop(r.PathValue("id")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Session stopped"})
}

func (s *Server) handleDirector(w http.ResponseWriter, r *http.Request) {
	var req directorRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.InjectDirectorPrompt(r.PathValue("id"), req.Prompt); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "God mode prompt injected"})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.Transcript(r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if entries == nil {
		entries = []core.Entry{}
	}
	writeJSON(w, http.StatusOK, transcriptResponse{Transcript: entries})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := core.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	data, err := s.engine.Export(id, format)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	contentType := "application/json"
	if format == core.FormatText {
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+"."+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshot(r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Session deleted"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.engine.Sessions()})
}

func (s *Server) handleScenarios(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": scenario.All()})
}

// healthHandler returns a simple health check response.
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, engine.ErrInvalidSession), errors.Is(err, engine.ErrEmptyInstruction):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// Package httpapi exposes the chat service over HTTP. Replies stream to the
// client as server-sent events.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"prodscout/internal/llm"
	"prodscout/internal/session"
	"prodscout/internal/transport"
)

// Server routes session lifecycle and message requests to the registry.
type Server struct {
	registry *session.Registry
	logger   *zap.Logger
}

// NewServer creates an HTTP server over the given session registry.
func NewServer(registry *session.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{registry: registry, logger: logger}
}

// Router builds the handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/sessions", s.createSession)
	r.Delete("/sessions/{id}", s.deleteSession)
	r.Post("/sessions/{id}/messages", s.postMessage)
	r.Get("/sessions/{id}/history", s.getHistory)

	return r
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type postMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess := s.registry.Create()
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: sess.ID()})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	s.registry.Remove(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// postMessage runs one turn and streams the reply as SSE. A completion
// failure after the stream has started is reported as an `error` event; the
// session history is left untouched by the failed turn.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	sess := s.registry.Get(chi.URLParam(r, "id"))
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	var req postMessageRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Content == "" {
		http.Error(w, "content required", http.StatusBadRequest)
		return
	}

	sse, err := transport.NewSSE(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if _, err := sess.HandleUserTurn(r.Context(), req.Content, sse); err != nil {
		s.logger.Error("turn failed", zap.String("session", sess.ID()), zap.Error(err))
		// Headers are already out; the failure notice has to travel in-band.
		writeSSEError(w, err)
	}
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	sess := s.registry.Get(chi.URLParam(r, "id"))
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.History())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSSEError(w http.ResponseWriter, err error) {
	var cerr *llm.CompletionError
	msg := "completion failed"
	if errors.As(err, &cerr) {
		msg = cerr.Error()
	}
	payload, _ := json.Marshal(msg)
	_, _ = io.WriteString(w, "event: error\ndata: "+string(payload)+"\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

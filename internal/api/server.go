// Package api is the HTTP surface of the assistant: chat, tasks,
// transactions, transcription and calendar sync, all scoped to the
// configured owner and protected by a bearer token.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/eduplay1216-alt/myjarvis/internal/logging"
	"github.com/eduplay1216-alt/myjarvis/internal/reconcile"
	"github.com/eduplay1216-alt/myjarvis/internal/store"
)

// ChatEngine runs one conversation turn.
type ChatEngine interface {
	HandleTurn(ctx context.Context, owner, userText string) (string, error)
}

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, mimeType string, audio []byte) (string, error)
}

// Syncer runs a calendar reconciliation pass.
type Syncer interface {
	Sync(ctx context.Context, owner string) (*reconcile.Result, error)
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	store       *store.Store
	engine      ChatEngine
	transcriber Transcriber
	syncer      Syncer
	owner       string
	authToken   string
}

// NewServer creates the API server. transcriber and syncer may be nil
// when the corresponding integration is not configured.
func NewServer(st *store.Store, engine ChatEngine, transcriber Transcriber, syncer Syncer, owner, authToken string) *Server {
	return &Server{
		store:       st,
		engine:      engine,
		transcriber: transcriber,
		syncer:      syncer,
		owner:       owner,
		authToken:   authToken,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.Handle("POST /api/chat", s.auth(s.handleChat))
	mux.Handle("POST /api/transcribe", s.auth(s.handleTranscribe))

	mux.Handle("GET /api/tasks", s.auth(s.handleGetTasks))
	mux.Handle("POST /api/tasks", s.auth(s.handleAddTask))
	mux.Handle("PATCH /api/tasks/{id}", s.auth(s.handleUpdateTask))
	mux.Handle("DELETE /api/tasks/{id}", s.auth(s.handleDeleteTask))

	mux.Handle("GET /api/transactions", s.auth(s.handleGetTransactions))
	mux.Handle("POST /api/transactions", s.auth(s.handleAddTransaction))
	mux.Handle("GET /api/summary", s.auth(s.handleSummary))

	mux.Handle("GET /api/messages", s.auth(s.handleGetMessages))
	mux.Handle("POST /api/sync", s.auth(s.handleSync))

	return s.requestID(mux)
}

// requestID tags every request with an ID for log correlation.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)
		logging.Debug("api", "%s %s rid=%s", r.Method, r.URL.Path, rid)
		next.ServeHTTP(w, r)
	})
}

// auth enforces the bearer token on API routes.
func (s *Server) auth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.authToken {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("api", "encode response: %v", err)
	}
}

// writeStoreError maps store errors to HTTP codes. Schema mismatches
// surface as a configuration error payload so the UI can show a
// persistent banner instead of a transient failure.
func writeStoreError(w http.ResponseWriter, err error) {
	if ce, ok := store.AsConfigError(err); ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":        ce.Error(),
			"config_error": true,
		})
		return
	}
	if err == store.ErrNotFound {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
}

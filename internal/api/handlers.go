package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/eduplay1216-alt/myjarvis/internal/conversation"
	"github.com/eduplay1216-alt/myjarvis/internal/logging"
	"github.com/eduplay1216-alt/myjarvis/internal/store"
)

const maxAudioBytes = 20 << 20 // 20 MiB

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "message is required"})
		return
	}

	reply, err := s.engine.HandleTurn(r.Context(), s.owner, req.Message)
	if errors.Is(err, conversation.ErrBusy) {
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
		return
	}
	if err != nil {
		// The turn failed but the engine already produced and persisted
		// an apology. Return it so the client renders the same message
		// the log holds.
		logging.Warn("api", "chat turn failed: %v", err)
		writeJSON(w, http.StatusOK, chatResponse{Reply: reply, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "transcription is not configured"})
		return
	}
	mimeType := r.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	audio, err := io.ReadAll(io.LimitReader(r.Body, maxAudioBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "read audio: " + err.Error()})
		return
	}
	if len(audio) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "empty audio body"})
		return
	}
	if len(audio) > maxAudioBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "audio too large"})
		return
	}

	text, err := s.transcriber.Transcribe(r.Context(), mimeType, audio)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"text": text})
}

func (s *Server) handleGetTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.GetTasks(s.owner)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

type taskRequest struct {
	Description string     `json:"description"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Duration    *int       `json:"duration,omitempty"`
	IsCompleted *bool      `json:"is_completed,omitempty"`
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Description == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "description is required"})
		return
	}
	task := &store.Task{
		Owner:       s.owner,
		Description: req.Description,
		DueAt:       req.DueAt,
		Duration:    req.Duration,
	}
	if err := s.store.AddTask(task); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"task": task})
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid task id"})
		return
	}
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}

	patch := store.TaskPatch{
		DueAt:       req.DueAt,
		Duration:    req.Duration,
		IsCompleted: req.IsCompleted,
	}
	if req.Description != "" {
		patch.Description = &req.Description
	}

	if err := s.store.UpdateTask(s.owner, id, patch); err != nil {
		writeStoreError(w, err)
		return
	}
	task, err := s.store.GetTask(s.owner, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid task id"})
		return
	}
	if err := s.store.DeleteTask(s.owner, id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.store.GetTransactions(s.owner)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if txs == nil {
		txs = []*store.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

type transactionRequest struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Description == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "description is required"})
		return
	}
	if req.Type != store.TypeIncome && req.Type != store.TypeExpense {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "type must be receita or despesa"})
		return
	}
	tx := &store.Transaction{
		Owner:       s.owner,
		Description: req.Description,
		Amount:      req.Amount,
		Type:        req.Type,
	}
	if err := s.store.AddTransaction(tx); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transaction": tx})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.store.GetSummary(s.owner)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": sum})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.GetMessages(s.owner)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*store.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "calendar integration is not configured"})
		return
	}
	res, err := s.syncer.Sync(r.Context(), s.owner)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/argus/internal/model"
	"github.com/seantiz/argus/internal/store"
	"github.com/seantiz/argus/internal/ws"
)

// createSpanRequest is the JSON body for POST /v1/traces/{id}/spans.
type createSpanRequest struct {
	Name   string          `json:"name"`
	Status string          `json:"status"`
	Input  json.RawMessage `json:"input"`
	Output json.RawMessage `json:"output"`
}

func (s *Server) handleCreateSpan(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "id")

	var req createSpanRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Status == "" {
		req.Status = model.StatusRunning
	}

	t, err := s.store.GetTrace(r.Context(), traceID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "trace not found")
		return
	}
	if err != nil {
		s.logger.Error("get trace for span", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create span")
		return
	}

	sp := &model.Span{
		ID:        model.NewID(),
		TraceID:   t.ID,
		Name:      req.Name,
		Status:    req.Status,
		Input:     req.Input,
		Output:    req.Output,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateSpan(r.Context(), sp); err != nil {
		s.logger.Error("create span", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create span")
		return
	}

	// Span activity keeps the parent trace out of the idle reaper's window.
	if err := s.store.TouchTrace(r.Context(), t.ID); err != nil {
		s.logger.Warn("touch trace", "trace_id", t.ID, "error", err)
	}

	s.registry.Broadcast(ws.SpanCreated(sp), ws.BroadcastOpts{
		ProjectID: t.ProjectID,
		Channel:   ws.SpanChannel,
	})

	s.writeJSON(w, http.StatusCreated, sp)
}

func (s *Server) handleListSpans(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "id")

	if _, err := s.store.GetTrace(r.Context(), traceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "trace not found")
			return
		}
		s.logger.Error("get trace for spans", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list spans")
		return
	}

	spans, err := s.store.ListSpans(r.Context(), traceID)
	if err != nil {
		s.logger.Error("list spans", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list spans")
		return
	}
	if spans == nil {
		spans = []*model.Span{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"spans": spans})
}

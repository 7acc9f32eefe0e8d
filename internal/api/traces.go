package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/argus/internal/cache"
	"github.com/seantiz/argus/internal/model"
	"github.com/seantiz/argus/internal/store"
	"github.com/seantiz/argus/internal/ws"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB

	listCacheTTL = 30 * time.Second
)

// createTraceRequest is the JSON body for POST /v1/traces.
type createTraceRequest struct {
	ProjectID string          `json:"project_id"`
	Name      string          `json:"name"`
	Metadata  json.RawMessage `json:"metadata"`
}

// updateTraceRequest is the JSON body for PATCH /v1/traces/{id}.
type updateTraceRequest struct {
	Status string `json:"status"`
}

// listTracesResponse wraps the paginated list response.
type listTracesResponse struct {
	Traces []*model.Trace `json:"traces"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

func (s *Server) handleCreateTrace(w http.ResponseWriter, r *http.Request) {
	var req createTraceRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.ProjectID == "" {
		s.writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	now := time.Now().UTC()
	t := &model.Trace{
		ID:        model.NewID(),
		ProjectID: req.ProjectID,
		Name:      req.Name,
		Status:    model.StatusRunning,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateTrace(r.Context(), t); err != nil {
		s.logger.Error("create trace", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create trace")
		return
	}

	s.cache.DeleteByPattern(r.Context(), cache.TraceListPrefix(t.ProjectID))
	s.registry.Broadcast(ws.TraceCreated(t), ws.BroadcastOpts{
		ProjectID: t.ProjectID,
		Channel:   ws.DefaultChannel,
	})

	s.writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := s.store.GetTrace(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "trace not found")
		return
	}
	if err != nil {
		s.logger.Error("get trace", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get trace")
		return
	}

	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		s.writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	key := cache.TraceListKey(projectID, cache.HashParams(map[string]any{
		"limit":  limit,
		"offset": offset,
	}))

	resp, err := cache.Cached(r.Context(), s.cache, key, listCacheTTL, func() (listTracesResponse, error) {
		traces, total, err := s.store.ListTraces(r.Context(), projectID, limit, offset)
		if err != nil {
			return listTracesResponse{}, err
		}
		if traces == nil {
			traces = []*model.Trace{}
		}
		return listTracesResponse{Traces: traces, Total: total, Limit: limit, Offset: offset}, nil
	})
	if err != nil {
		s.logger.Error("list traces", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list traces")
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateTraceStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateTraceRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Status == "" {
		s.writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	err := s.store.UpdateTraceStatus(r.Context(), id, req.Status)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "trace not found")
		return
	}
	if errors.Is(err, store.ErrInvalidTransition) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("update trace status", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update trace")
		return
	}

	t, err := s.store.GetTrace(r.Context(), id)
	if err != nil {
		s.logger.Error("get updated trace", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve trace")
		return
	}

	s.cache.DeleteByPattern(r.Context(), cache.TraceListPrefix(t.ProjectID))
	s.registry.Broadcast(ws.TraceUpdated(t), ws.BroadcastOpts{
		ProjectID: t.ProjectID,
		Channel:   ws.DefaultChannel,
	})

	s.writeJSON(w, http.StatusOK, t)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

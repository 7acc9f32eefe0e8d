package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/argus/internal/model"
	"github.com/seantiz/argus/internal/store"
)

// createOrganizationRequest is the JSON body for POST /v1/organizations.
type createOrganizationRequest struct {
	Name     string `json:"name"`
	PlanTier string `json:"plan_tier"`
}

// createProjectRequest is the JSON body for POST /v1/organizations/{id}/projects.
type createProjectRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.PlanTier == "" {
		req.PlanTier = model.TierFree
	}

	o := &model.Organization{
		ID:        model.NewID(),
		Name:      req.Name,
		PlanTier:  req.PlanTier,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateOrganization(r.Context(), o); err != nil {
		s.logger.Error("create organization", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create organization")
		return
	}

	s.writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.store.ListOrganizations(r.Context())
	if err != nil {
		s.logger.Error("list organizations", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list organizations")
		return
	}
	if orgs == nil {
		orgs = []*model.Organization{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "id")

	var req createProjectRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	projectID := model.NewID()
	err := s.store.CreateProject(r.Context(), orgID, projectID, req.Name)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "organization not found")
		return
	}
	if err != nil {
		s.logger.Error("create project", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create project")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{
		"id":              projectID,
		"organization_id": orgID,
		"name":            req.Name,
	})
}

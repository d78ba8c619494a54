package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/content-pipeline/internal/store"
	"github.com/jonathan/content-pipeline/internal/types"
)

// SourceRequest is the request body for creating or updating a source.
type SourceRequest struct {
	Name               string  `json:"name"`
	URL                string  `json:"url"`
	Kind               string  `json:"kind"`
	Category           string  `json:"category"`
	IsActive           *bool   `json:"is_active,omitempty"`
	FetchIntervalHours int     `json:"fetch_interval_hours"`
	Reliability        float64 `json:"reliability"`
}

func (req *SourceRequest) validate() error {
	if req.Name == "" {
		return &ErrValidation{Field: "name", Message: "is required"}
	}
	if req.URL == "" {
		return &ErrValidation{Field: "url", Message: "is required"}
	}
	if !types.ValidSourceKind(types.SourceKind(req.Kind)) {
		return &ErrValidation{Field: "kind", Message: "must be one of feed, regulatory-body, report, paper, site"}
	}
	if req.Category == "" {
		return &ErrValidation{Field: "category", Message: "is required"}
	}
	if req.Reliability < 0 || req.Reliability > 1 {
		return &ErrValidation{Field: "reliability", Message: "must be between 0 and 1"}
	}
	return nil
}

func (req *SourceRequest) apply(src *types.Source) {
	src.Name = req.Name
	src.URL = req.URL
	src.Kind = types.SourceKind(req.Kind)
	src.Category = req.Category
	src.IsActive = true
	if req.IsActive != nil {
		src.IsActive = *req.IsActive
	}
	src.FetchIntervalHours = req.FetchIntervalHours
	if src.FetchIntervalHours == 0 {
		src.FetchIntervalHours = 24
	}
	src.Reliability = req.Reliability
}

// handleListSources lists sources, optionally filtered by kind, category and
// active state.
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	filters := store.SourceFilters{
		Kind:       types.SourceKind(r.URL.Query().Get("kind")),
		Category:   r.URL.Query().Get("category"),
		OnlyActive: r.URL.Query().Get("active") == "true",
	}
	sources, err := s.store.ListSources(r.Context(), filters)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if sources == nil {
		sources = []types.Source{}
	}
	s.jsonResponse(w, http.StatusOK, sources)
}

// handleCreateSource registers a new source.
func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req SourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		s.errorFrom(w, err)
		return
	}

	var src types.Source
	req.apply(&src)
	if err := s.store.CreateSource(r.Context(), &src); err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, src)
}

// handleGetSource returns one source by id.
func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid source id")
		return
	}
	src, err := s.store.GetSource(r.Context(), id)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, src)
}

// handleUpdateSource replaces the mutable fields of a source.
func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid source id")
		return
	}
	var req SourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		s.errorFrom(w, err)
		return
	}

	src, err := s.store.GetSource(r.Context(), id)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	req.apply(src)
	if err := s.store.UpdateSource(r.Context(), src); err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, src)
}

// handleDeleteSource removes a source and its evidence.
func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid source id")
		return
	}
	if err := s.store.DeleteSource(r.Context(), id); err != nil {
		s.errorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

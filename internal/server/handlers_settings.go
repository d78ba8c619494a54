package server

import (
	"encoding/json"
	"net/http"

	"github.com/jonathan/content-pipeline/internal/config"
)

// handleGetSettings returns the effective configuration: defaults overlaid
// with stored settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	stored, err := s.store.AllSettings(r.Context())
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	cfg, err := config.FromSettings(stored)
	if err != nil {
		// Stored settings that no longer validate are surfaced, not hidden.
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, cfg)
}

// handlePutSettings validates and persists a batch of settings. The whole
// batch is checked before anything is written; an invalid entry rejects the
// request without partial application.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(updates) == 0 {
		s.errorResponse(w, http.StatusBadRequest, "no settings provided")
		return
	}

	for key, value := range updates {
		if err := config.ValidateValue(key, value); err != nil {
			s.errorFrom(w, &ErrValidation{Field: key, Message: err.Error()})
			return
		}
	}

	for key, value := range updates {
		if err := s.store.PutSetting(r.Context(), key, value); err != nil {
			s.errorFrom(w, err)
			return
		}
	}
	s.handleGetSettings(w, r)
}

// handleGetSetting returns the effective value of a single key.
func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !config.KnownKey(key) {
		s.errorFrom(w, &ErrValidation{Field: key, Message: "unknown setting key"})
		return
	}
	stored, err := s.store.AllSettings(r.Context())
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	cfg, err := config.FromSettings(stored)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	value, err := cfg.Value(key)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

// handlePutSetting validates and persists a single key.
func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := config.ValidateValue(key, body.Value); err != nil {
		s.errorFrom(w, &ErrValidation{Field: key, Message: err.Error()})
		return
	}
	if err := s.store.PutSetting(r.Context(), key, body.Value); err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"key": key, "value": body.Value})
}

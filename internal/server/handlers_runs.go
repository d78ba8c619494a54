package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/content-pipeline/internal/types"
)

// TriggerRequest is the optional request body for POST /run.
type TriggerRequest struct {
	TriggeredBy string `json:"triggeredBy"`
}

// RunResponse is a run with its task summaries.
type RunResponse struct {
	Run   *types.Run          `json:"run"`
	Tasks []types.TaskSummary `json:"tasks"`
}

// handleTriggerRun executes a pipeline run and responds when it finishes.
// The single-flight guarantee makes a second trigger while one is RUNNING
// come back as a conflict.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	// The body is optional; malformed JSON is still rejected.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "api"
	}

	run, err := s.coordinator.Execute(r.Context(), req.TriggeredBy)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	tasks, err := s.store.TaskSummariesForRun(r.Context(), run.ID)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, RunResponse{Run: run, Tasks: tasks})
}

// handleLatestRun returns the most recent run and its tasks.
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.LatestRun(r.Context())
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if run == nil {
		s.errorResponse(w, http.StatusNotFound, "no runs yet")
		return
	}
	s.respondWithRun(w, r, run)
}

// handleGetRun returns one run by id.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.respondWithRun(w, r, run)
}

func (s *Server) respondWithRun(w http.ResponseWriter, r *http.Request, run *types.Run) {
	tasks, err := s.store.TaskSummariesForRun(r.Context(), run.ID)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, RunResponse{Run: run, Tasks: tasks})
}

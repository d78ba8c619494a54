package server

import (
	"net/http"

	"github.com/jonathan/content-pipeline/internal/config"
)

// HealthResponse reports the state of each dependency the pipeline needs to
// complete a run.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleHealth runs the readiness checks: database, model connectivity,
// stored settings, active sources, and the auth secret.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, 5)
	healthy := true

	fail := func(name string, err error) {
		checks[name] = "failed: " + err.Error()
		healthy = false
	}

	if err := s.store.Ping(r.Context()); err != nil {
		fail("storage", err)
	} else {
		checks["storage"] = "ok"
	}

	if err := s.prober.Probe(r.Context()); err != nil {
		fail("modelGateway", err)
	} else {
		checks["modelGateway"] = "ok"
	}

	stored, err := s.store.AllSettings(r.Context())
	if err != nil {
		fail("config", err)
	} else if _, err = config.FromSettings(stored); err != nil {
		fail("config", err)
	} else {
		checks["config"] = "ok"
	}

	hasSources, err := s.store.HasActiveSource(r.Context())
	switch {
	case err != nil:
		fail("activeSources", err)
	case !hasSources:
		checks["activeSources"] = "no active sources"
		healthy = false
	default:
		checks["activeSources"] = "ok"
	}

	if s.secret == "" {
		checks["sharedSecret"] = "not configured"
		healthy = false
	} else {
		checks["sharedSecret"] = "ok"
	}

	status := http.StatusOK
	response := HealthResponse{Status: "healthy", Checks: checks}
	if !healthy {
		status = http.StatusServiceUnavailable
		response.Status = "unhealthy"
	}
	s.jsonResponse(w, status, response)
}

package api

import (
	"context"
	"net/http"

	"github.com/seantiz/modelrouter/internal/model"
)

type healthResponse struct {
	Status            string   `json:"status"`
	Message           string   `json:"message"`
	AvailableBackends []string `json:"available_backends"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:            "ok",
		Message:           "model router is running",
		AvailableBackends: append(s.registry.IDs(), model.BackendEnsemble),
	})
}

// jobsHealthResponse reports whether the job manager can accept work.
type jobsHealthResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// handleJobsHealth probes the job manager under a deadline so an
// unresponsive worker pool reports "disconnected" instead of hanging.
func (s *Server) handleJobsHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.probeTimeout)
	defer cancel()

	if err := s.jobs.Ping(ctx); err != nil {
		s.logger.Warn("job manager probe failed", "error", err)
		s.writeJSON(w, http.StatusOK, jobsHealthResponse{Status: "disconnected", Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, jobsHealthResponse{Success: true, Status: "connected"})
}

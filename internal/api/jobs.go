package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/modelrouter/internal/jobs"
	"github.com/seantiz/modelrouter/internal/model"
)

type jobResultResponse struct {
	Success bool             `json:"success"`
	State   model.JobState   `json:"state"`
	Result  *model.JobResult `json:"result,omitempty"`
	Error   *model.JobError  `json:"error,omitempty"`
	Message string           `json:"message,omitempty"`
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.jobs.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err, "job status")
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// handleJobResult answers 200 for finished jobs (successful or failed) and
// 202 while the job is still pending or running.
func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.jobs.Result(r.Context(), chi.URLParam(r, "id"))

	var nre *jobs.NotReadyError
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, jobResultResponse{Success: true, State: model.StateSuccess, Result: res})
	case errors.As(err, &nre) && nre.Failure != nil:
		s.writeJSON(w, http.StatusOK, jobResultResponse{State: nre.State, Error: nre.Failure})
	case errors.As(err, &nre):
		s.writeJSON(w, http.StatusAccepted, jobResultResponse{
			State:   nre.State,
			Message: "job is not yet completed, current state: " + string(nre.State),
		})
	default:
		s.writeFailure(w, r, err, "job result")
	}
}

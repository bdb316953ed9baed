package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/jobs"
	"github.com/seantiz/modelrouter/internal/model"
)

// trainRequest is the optional JSON body of the training endpoints. Zero
// fields take the defaults of model.DefaultTrainParams.
type trainRequest struct {
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learning_rate"`
	HiddenSizes  []int   `json:"hidden_sizes"`
}

type trainResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Backend string           `json:"backend"`
	Result  *model.JobResult `json:"result"`
}

type trainAsyncResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
	Backend string `json:"backend"`
}

// decodeTrain validates the backend path parameter and the request body.
func (s *Server) decodeTrain(w http.ResponseWriter, r *http.Request) (model.JobSpec, bool) {
	id := chi.URLParam(r, "backend")
	if id != model.TrainAll && !s.registry.Has(id) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown backend %q", id))
		return model.JobSpec{}, false
	}

	var req trainRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return model.JobSpec{}, false
	}

	params := model.TrainParams{
		Epochs:       req.Epochs,
		LearningRate: req.LearningRate,
		HiddenSizes:  req.HiddenSizes,
	}
	if err := params.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return model.JobSpec{}, false
	}
	markModelUsed(r, id)
	return model.JobSpec{Backend: id, Params: params.WithDefaults()}, true
}

// handleTrain trains synchronously and responds when training finishes.
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	spec, ok := s.decodeTrain(w, r)
	if !ok {
		return
	}

	// Training can outlast the server's write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Warn("clear write deadline for training", "error", err)
	}

	s.logger.Info("synchronous training started", "backend", spec.Backend)
	res, err := jobs.Train(r.Context(), s.registry, spec, nil)
	if err != nil {
		s.writeFailure(w, r, err, "training")
		return
	}

	s.writeJSON(w, http.StatusOK, trainResponse{
		Success: true,
		Message: res.Message,
		Backend: spec.Backend,
		Result:  res,
	})
}

func (s *Server) handleTrainAsync(w http.ResponseWriter, r *http.Request) {
	spec, ok := s.decodeTrain(w, r)
	if !ok {
		return
	}

	id, err := s.jobs.Submit(r.Context(), spec)
	if errors.Is(err, backend.ErrUnknownBackend) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.writeFailure(w, r, err, "job submission")
		return
	}

	w.Header().Set("Location", "/v1/jobs/"+id)
	s.writeJSON(w, http.StatusAccepted, trainAsyncResponse{
		Success: true,
		JobID:   id,
		Message: fmt.Sprintf("training job submitted for %s", spec.Backend),
		Backend: spec.Backend,
	})
}

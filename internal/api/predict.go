package api

import (
	"fmt"
	"math"
	"net/http"
	"slices"
	"strings"

	"github.com/seantiz/modelrouter/internal/backend/learn"
	"github.com/seantiz/modelrouter/internal/model"
)

// predictRequest is the JSON body for the routing and prediction endpoints.
// Missing features take per-feature defaults in the backends; unknown keys,
// at the top level or among the features, are rejected.
type predictRequest struct {
	Features   map[string]float64 `json:"features"`
	Preference string             `json:"model_preference"`
	Criteria   map[string]any     `json:"criteria"`
}

type predictResponse struct {
	Success             bool                `json:"success"`
	PredictedPrice      float64             `json:"predicted_price"`
	ModelUsed           string              `json:"model_used"`
	RoutingExplanation  string              `json:"routing_explanation"`
	FeaturesUsed        map[string]float64  `json:"features_used"`
	EnsemblePredictions map[string]float64  `json:"ensemble_predictions,omitempty"`
	Excluded            []string            `json:"excluded,omitempty"`
	Routing             model.RoutingResult `json:"routing"`
}

type compareResponse struct {
	Success           bool                `json:"success"`
	Predictions       map[string]*float64 `json:"predictions"`
	AveragePrediction float64             `json:"average_prediction"`
	Available         int                 `json:"available"`
	FeaturesUsed      map[string]float64  `json:"features_used"`
}

func (s *Server) decodePredict(w http.ResponseWriter, r *http.Request) (predictRequest, bool) {
	var req predictRequest
	if err := decodeStrictBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return req, false
	}
	if unknown := unknownFeatures(req.Features); len(unknown) > 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown features %s; expected any of %s",
			strings.Join(unknown, ", "), strings.Join(learn.FeatureNames, ", ")))
		return req, false
	}
	if req.Features == nil {
		req.Features = map[string]float64{}
	}
	if req.Preference == "" {
		req.Preference = model.PreferenceAuto
	}
	return req, true
}

// unknownFeatures returns the sorted keys of features that no backend reads.
func unknownFeatures(features map[string]float64) []string {
	var unknown []string
	for name := range features {
		if !learn.IsFeature(name) {
			unknown = append(unknown, name)
		}
	}
	slices.Sort(unknown)
	return unknown
}

// route runs the decision graph. A failure here is a server
// misconfiguration, never a client error.
func (s *Server) route(w http.ResponseWriter, req predictRequest) (model.RoutingResult, bool) {
	res, err := s.routing.Route(req.Features, req.Preference, model.ParseCriteria(req.Criteria))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "routing misconfigured: "+err.Error())
		return model.RoutingResult{}, false
	}
	return res, true
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePredict(w, r)
	if !ok {
		return
	}
	res, ok := s.route(w, req)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePredict(w, r)
	if !ok {
		return
	}
	routing, ok := s.route(w, req)
	if !ok {
		return
	}

	markModelUsed(r, routing.SelectedBackend)
	p, err := s.dispatcher.Predict(r.Context(), routing, req.Features)
	if err != nil {
		s.writeFailure(w, r, err, "prediction")
		return
	}
	markModelUsed(r, p.Backend)
	predictedPrice.WithLabelValues(p.Backend).Observe(p.Value)

	resp := predictResponse{
		Success:            true,
		PredictedPrice:     roundCents(p.Value),
		ModelUsed:          p.Backend,
		RoutingExplanation: routing.Explanation,
		FeaturesUsed:       req.Features,
		Excluded:           p.Excluded,
		Routing:            routing,
	}
	if p.Members != nil {
		resp.EnsemblePredictions = make(map[string]float64, len(p.Members))
		for id, v := range p.Members {
			resp.EnsemblePredictions[id] = roundCents(v)
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePredict(w, r)
	if !ok {
		return
	}

	markModelUsed(r, compareLabel)
	cmp, err := s.dispatcher.Compare(r.Context(), req.Features)
	if err != nil {
		s.writeFailure(w, r, err, "comparison")
		return
	}
	for id, v := range cmp.Predictions {
		if v != nil {
			rounded := roundCents(*v)
			cmp.Predictions[id] = &rounded
		}
	}

	s.writeJSON(w, http.StatusOK, compareResponse{
		Success:           true,
		Predictions:       cmp.Predictions,
		AveragePrediction: roundCents(cmp.Average),
		Available:         cmp.Available,
		FeaturesUsed:      req.Features,
	})
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

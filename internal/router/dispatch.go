package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/model"
)

// Prediction is the outcome of dispatching a routed request.
type Prediction struct {
	Backend string  `json:"backend"`
	Value   float64 `json:"value"`
	// Members holds each ensemble member's score; nil for single backends.
	Members map[string]float64 `json:"members,omitempty"`
	// Excluded lists ensemble members skipped because they were not trained.
	Excluded []string `json:"excluded,omitempty"`
}

// Comparison holds every backend's prediction side by side. A nil entry
// means the backend is not trained.
type Comparison struct {
	Predictions map[string]*float64 `json:"predictions"`
	Average     float64             `json:"average"`
	Available   int                 `json:"available"`
}

// Dispatcher invokes backends from the registry on behalf of routed requests.
type Dispatcher struct {
	registry *backend.Registry
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over reg.
func NewDispatcher(reg *backend.Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: reg, logger: logger}
}

// Predict runs the prediction chosen by routing. A single backend that is not
// trained yields backend.ErrNotTrained. For the ensemble, untrained members
// are skipped and reported in Excluded; if none remain the result is
// ErrNoBackendAvailable. Any other backend failure aborts the request.
func (d *Dispatcher) Predict(ctx context.Context, routing model.RoutingResult, features map[string]float64) (Prediction, error) {
	if !routing.IsEnsemble() {
		b, err := d.registry.Get(routing.SelectedBackend)
		if err != nil {
			return Prediction{}, err
		}
		v, err := b.Predict(ctx, features)
		if err != nil {
			return Prediction{}, fmt.Errorf("predict with %s: %w", routing.SelectedBackend, err)
		}
		return Prediction{Backend: routing.SelectedBackend, Value: v}, nil
	}

	members := make(map[string]float64)
	var excluded []string
	for _, id := range d.registry.IDs() {
		b, err := d.registry.Get(id)
		if err != nil {
			return Prediction{}, err
		}
		v, err := b.Predict(ctx, features)
		if errors.Is(err, backend.ErrNotTrained) {
			d.logger.Warn("ensemble member excluded", "backend", id, "reason", "not trained")
			ensembleExclusionsTotal.WithLabelValues(id).Inc()
			excluded = append(excluded, id)
			continue
		}
		if err != nil {
			return Prediction{}, fmt.Errorf("ensemble member %s: %w", id, err)
		}
		members[id] = v
	}

	v, err := Aggregate(members)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{
		Backend:  model.BackendEnsemble,
		Value:    v,
		Members:  members,
		Excluded: excluded,
	}, nil
}

// Compare asks every registered backend for a prediction. Backends that are
// not trained appear with a nil value. Other failures are returned.
func (d *Dispatcher) Compare(ctx context.Context, features map[string]float64) (Comparison, error) {
	cmp := Comparison{Predictions: make(map[string]*float64)}
	available := make(map[string]float64)

	for _, id := range d.registry.IDs() {
		b, err := d.registry.Get(id)
		if err != nil {
			return Comparison{}, err
		}
		v, err := b.Predict(ctx, features)
		if errors.Is(err, backend.ErrNotTrained) {
			cmp.Predictions[id] = nil
			continue
		}
		if err != nil {
			return Comparison{}, fmt.Errorf("compare %s: %w", id, err)
		}
		cmp.Predictions[id] = &v
		available[id] = v
	}

	if avg, err := Aggregate(available); err == nil {
		cmp.Average = avg
	}
	cmp.Available = len(available)
	return cmp, nil
}

package backend

import (
	"context"
	"errors"

	"github.com/seantiz/modelrouter/internal/model"
)

var (
	// ErrNotTrained is returned by Predict when a backend has no usable
	// trained state.
	ErrNotTrained = errors.New("backend not trained")

	// ErrUnknownBackend is returned when an identifier does not name a
	// registered backend. Reaching it from the router means the registry and
	// the routing tables disagree.
	ErrUnknownBackend = errors.New("unknown backend")
)

// ProgressFunc receives progress reports during training. current and total
// are in backend-defined units (usually epochs).
type ProgressFunc func(current, total int, message string)

// Backend is the interface that every predictive backend must implement.
type Backend interface {
	// Predict returns a score for the given named features. It fails with
	// ErrNotTrained when no trained state is available.
	Predict(ctx context.Context, features map[string]float64) (float64, error)

	// Train fits the backend and returns its evaluation metrics. report may be
	// nil. The context carries cancellation.
	Train(ctx context.Context, params model.TrainParams, report ProgressFunc) (model.TrainMetrics, error)

	// Trained reports whether Predict can currently succeed.
	Trained() bool
}

// Package backendtest provides a configurable in-memory Backend for tests and
// for the e2e test server.
package backendtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/model"
)

// Stub is a deterministic Backend. A zero Stub is untrained and trains
// instantly.
type Stub struct {
	// Value is returned by Predict once the stub is trained.
	Value float64
	// PredictErr, when set, is returned by Predict instead of Value.
	PredictErr error
	// TrainErr, when set, makes Train fail after reporting its steps.
	TrainErr error
	// TrainPanic makes Train panic with this value.
	TrainPanic any
	// Steps is the number of progress reports Train emits.
	Steps int
	// StepDelay is slept between progress reports.
	StepDelay time.Duration
	// Metrics is returned by a successful Train.
	Metrics model.TrainMetrics

	mu      sync.Mutex
	trained bool
	calls   int
}

var _ backend.Backend = (*Stub)(nil)

// NewTrained returns a trained stub predicting value.
func NewTrained(value float64) *Stub {
	return &Stub{Value: value, trained: true}
}

// Predict implements backend.Backend.
func (s *Stub) Predict(_ context.Context, _ map[string]float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PredictErr != nil {
		return 0, s.PredictErr
	}
	if !s.trained {
		return 0, backend.ErrNotTrained
	}
	return s.Value, nil
}

// Train implements backend.Backend.
func (s *Stub) Train(ctx context.Context, _ model.TrainParams, report backend.ProgressFunc) (model.TrainMetrics, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	for i := 1; i <= s.Steps; i++ {
		if s.StepDelay > 0 {
			select {
			case <-time.After(s.StepDelay):
			case <-ctx.Done():
				return model.TrainMetrics{}, ctx.Err()
			}
		}
		if report != nil {
			report(i, s.Steps, fmt.Sprintf("step %d/%d", i, s.Steps))
		}
	}
	if s.TrainPanic != nil {
		panic(s.TrainPanic)
	}
	if s.TrainErr != nil {
		return model.TrainMetrics{}, s.TrainErr
	}

	s.mu.Lock()
	s.trained = true
	s.mu.Unlock()
	return s.Metrics, nil
}

// Trained implements backend.Backend.
func (s *Stub) Trained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trained
}

// TrainCalls returns how many times Train was invoked.
func (s *Stub) TrainCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

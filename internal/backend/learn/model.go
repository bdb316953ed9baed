package learn

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/model"
)

const (
	testFraction = 0.2
	splitSeed    = 42
)

// ArtifactSink persists trained state. The SQLite store implements it.
type ArtifactSink interface {
	SaveArtifact(ctx context.Context, a model.Artifact) error
}

// trainedState is everything Predict needs. It is never mutated once
// published.
type trainedState struct {
	xScaler Scaler
	yScaler Scaler
	est     estimator
}

// artifactState is the serialized form of trainedState.
type artifactState struct {
	XScaler   Scaler          `json:"x_scaler"`
	YScaler   Scaler          `json:"y_scaler"`
	Estimator json.RawMessage `json:"estimator"`
}

// Model adapts an estimator to backend.Backend.
type Model struct {
	id           string
	newEstimator func() estimator
	train, test  Dataset
	sink         ArtifactSink

	mu    sync.RWMutex
	state *trainedState
}

var _ backend.Backend = (*Model)(nil)

// New returns an untrained built-in backend for id (one of model.BackendLinear,
// model.BackendMLP, model.BackendKNN) that trains on data. sink may be nil.
func New(id string, data Dataset, sink ArtifactSink) (*Model, error) {
	var factory func() estimator
	switch id {
	case model.BackendLinear:
		factory = func() estimator { return &linear{} }
	case model.BackendMLP:
		factory = func() estimator { return &mlp{} }
	case model.BackendKNN:
		factory = func() estimator { return &knn{} }
	default:
		return nil, fmt.Errorf("%w: no built-in learner for %q", backend.ErrUnknownBackend, id)
	}
	if data.Len() < 2 {
		return nil, fmt.Errorf("dataset too small: %d samples", data.Len())
	}

	train, test := data.Split(testFraction, splitSeed)
	return &Model{
		id:           id,
		newEstimator: factory,
		train:        train,
		test:         test,
		sink:         sink,
	}, nil
}

// ID returns the backend identifier the model was built for.
func (m *Model) ID() string { return m.id }

// Trained implements backend.Backend.
func (m *Model) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state != nil
}

// Predict implements backend.Backend.
func (m *Model) Predict(_ context.Context, features map[string]float64) (float64, error) {
	m.mu.RLock()
	st := m.state
	m.mu.RUnlock()
	if st == nil {
		return 0, fmt.Errorf("%s: %w", m.id, backend.ErrNotTrained)
	}
	return st.predict(Vectorize(features)), nil
}

func (st *trainedState) predict(row []float64) float64 {
	return st.yScaler.unscale(st.est.predict(st.xScaler.Transform(row)))
}

// Train implements backend.Backend. The new state is persisted through the
// sink before it replaces the current one; if persisting fails the previous
// state stays in place.
func (m *Model) Train(ctx context.Context, params model.TrainParams, report backend.ProgressFunc) (model.TrainMetrics, error) {
	params = params.WithDefaults()

	xs := FitScaler(m.train.X)
	ys := fitTarget(m.train.Y)
	X := xs.TransformAll(m.train.X)
	y := make([]float64, len(m.train.Y))
	for i, v := range m.train.Y {
		y[i] = ys.scale(v)
	}

	est := m.newEstimator()
	losses, err := est.fit(ctx, X, y, params, report)
	if err != nil {
		return model.TrainMetrics{}, fmt.Errorf("train %s: %w", m.id, err)
	}

	st := &trainedState{xScaler: xs, yScaler: ys, est: est}
	metrics := model.TrainMetrics{
		Backend:   m.id,
		TrainR2:   st.r2(m.train),
		TestR2:    st.r2(m.test),
		TrainRMSE: st.rmse(m.train),
		TestRMSE:  st.rmse(m.test),
		Losses:    losses,
	}
	if len(losses) > 0 {
		metrics.FinalLoss = losses[len(losses)-1]
	}

	if m.sink != nil {
		a, err := st.artifact(m.id, params, metrics)
		if err != nil {
			return model.TrainMetrics{}, err
		}
		if err := m.sink.SaveArtifact(ctx, a); err != nil {
			return model.TrainMetrics{}, fmt.Errorf("save artifact for %s: %w", m.id, err)
		}
	}

	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
	return metrics, nil
}

// Restore loads previously persisted state.
func (m *Model) Restore(a model.Artifact) error {
	if a.Backend != m.id {
		return fmt.Errorf("artifact for %q cannot restore %q", a.Backend, m.id)
	}
	var as artifactState
	if err := json.Unmarshal(a.State, &as); err != nil {
		return fmt.Errorf("decode artifact state: %w", err)
	}
	est := m.newEstimator()
	if err := json.Unmarshal(as.Estimator, est); err != nil {
		return fmt.Errorf("decode %s estimator: %w", m.id, err)
	}

	m.mu.Lock()
	m.state = &trainedState{xScaler: as.XScaler, yScaler: as.YScaler, est: est}
	m.mu.Unlock()
	return nil
}

func (st *trainedState) artifact(id string, params model.TrainParams, metrics model.TrainMetrics) (model.Artifact, error) {
	estJSON, err := json.Marshal(st.est)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("encode %s estimator: %w", id, err)
	}
	state, err := json.Marshal(artifactState{
		XScaler:   st.xScaler,
		YScaler:   st.yScaler,
		Estimator: estJSON,
	})
	if err != nil {
		return model.Artifact{}, fmt.Errorf("encode artifact state: %w", err)
	}
	metrics.Losses = nil
	return model.Artifact{
		Backend:   id,
		Params:    params,
		State:     state,
		Metrics:   metrics,
		TrainedAt: time.Now().UTC(),
	}, nil
}

// predictAll runs the estimator over every row of d in target units.
func (st *trainedState) predictAll(d Dataset) []float64 {
	out := make([]float64, d.Len())
	for i, row := range d.X {
		out[i] = st.predict(row)
	}
	return out
}

// r2 is the coefficient of determination over d in target units. A
// constant target has no variance to explain and scores 0.
func (st *trainedState) r2(d Dataset) float64 {
	if d.Len() == 0 || stat.Variance(d.Y, nil) == 0 {
		return 0
	}
	return stat.RSquaredFrom(st.predictAll(d), d.Y, nil)
}

// rmse is the root mean squared error over d in target units.
func (st *trainedState) rmse(d Dataset) float64 {
	if d.Len() == 0 {
		return 0
	}
	return floats.Distance(st.predictAll(d), d.Y, 2) / math.Sqrt(float64(d.Len()))
}

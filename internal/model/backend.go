package model

import (
	"fmt"
	"time"
)

// Built-in backend identifiers.
const (
	BackendLinear = "linear"
	BackendMLP    = "mlp"
	BackendKNN    = "knn"
)

// Virtual identifiers understood by the router and the job manager.
const (
	BackendEnsemble = "ensemble"
	PreferenceAuto  = "auto"
	TrainAll        = "all"
)

// Characteristics describes a backend for humans. It is surfaced on routing
// results and by the characteristics endpoint.
type Characteristics struct {
	Name           string   `json:"name" yaml:"name"`
	Architecture   string   `json:"architecture" yaml:"architecture"`
	Strengths      []string `json:"strengths" yaml:"strengths"`
	BestFor        string   `json:"best_for" yaml:"best_for"`
	TrainingSpeed  string   `json:"training_speed" yaml:"training_speed"`
	InferenceSpeed string   `json:"inference_speed" yaml:"inference_speed"`
	TypicalUse     string   `json:"typical_use" yaml:"typical_use"`
	Explanation    string   `json:"explanation" yaml:"explanation"`
}

// TrainParams are the hyperparameters accepted by a training request.
type TrainParams struct {
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learning_rate"`
	HiddenSizes  []int   `json:"hidden_sizes"`
}

// Training defaults.
const (
	DefaultEpochs       = 500
	DefaultLearningRate = 0.001
)

// Upper bounds on requested hyperparameters. A single job holds the whole
// network and every epoch's loss in memory.
const (
	MaxEpochs       = 10_000
	MaxHiddenLayers = 8
	MaxHiddenSize   = 1024
)

// Validate rejects negative values and values above the Max limits. Zero
// fields are left for WithDefaults.
func (p TrainParams) Validate() error {
	if p.Epochs < 0 || p.LearningRate < 0 {
		return fmt.Errorf("epochs and learning_rate must not be negative")
	}
	if p.Epochs > MaxEpochs {
		return fmt.Errorf("epochs %d exceeds the limit of %d", p.Epochs, MaxEpochs)
	}
	if len(p.HiddenSizes) > MaxHiddenLayers {
		return fmt.Errorf("%d hidden layers exceeds the limit of %d", len(p.HiddenSizes), MaxHiddenLayers)
	}
	for _, s := range p.HiddenSizes {
		if s > MaxHiddenSize {
			return fmt.Errorf("hidden layer size %d exceeds the limit of %d", s, MaxHiddenSize)
		}
	}
	return nil
}

// DefaultTrainParams returns the hyperparameters used when a request omits them.
func DefaultTrainParams() TrainParams {
	return TrainParams{
		Epochs:       DefaultEpochs,
		LearningRate: DefaultLearningRate,
		HiddenSizes:  []int{64, 32, 16},
	}
}

// WithDefaults returns a copy of p with zero or invalid fields replaced by
// their defaults.
func (p TrainParams) WithDefaults() TrainParams {
	d := DefaultTrainParams()
	if p.Epochs > 0 {
		d.Epochs = p.Epochs
	}
	if p.LearningRate > 0 {
		d.LearningRate = p.LearningRate
	}
	if len(p.HiddenSizes) > 0 {
		sizes := make([]int, 0, len(p.HiddenSizes))
		for _, s := range p.HiddenSizes {
			if s > 0 {
				sizes = append(sizes, s)
			}
		}
		if len(sizes) > 0 {
			d.HiddenSizes = sizes
		}
	}
	return d
}

// TrainMetrics is what a backend reports after a successful training run.
// RMSE values are in target units.
type TrainMetrics struct {
	Backend   string    `json:"backend"`
	TrainR2   float64   `json:"train_r2"`
	TestR2    float64   `json:"test_r2"`
	TrainRMSE float64   `json:"train_rmse"`
	TestRMSE  float64   `json:"test_rmse"`
	FinalLoss float64   `json:"final_loss"`
	Losses    []float64 `json:"losses,omitempty"`
}

// Artifact is the persisted trained state of a backend.
type Artifact struct {
	Backend   string       `json:"backend"`
	Params    TrainParams  `json:"params"`
	State     []byte       `json:"state"`
	Metrics   TrainMetrics `json:"metrics"`
	TrainedAt time.Time    `json:"trained_at"`
}

package learn

import (
	"context"
	"math/rand/v2"

	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/model"
)

const (
	batchSize = 32
	initSeed  = 42
)

// estimator is a regressor over standardized inputs and targets. Fitted
// estimators are read-only and must be safe for concurrent predict calls.
type estimator interface {
	// fit trains on X, y and returns the per-epoch training loss.
	fit(ctx context.Context, X [][]float64, y []float64, params model.TrainParams, report backend.ProgressFunc) ([]float64, error)
	predict(x []float64) float64
}

// minibatches calls fn with the sample indices of each shuffled batch.
func minibatches(rng *rand.Rand, n int, fn func(batch []int)) {
	idx := rng.Perm(n)
	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)
		fn(idx[start:end])
	}
}

package learn

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/model"
)

const defaultK = 5

// knn predicts the mean target of the K nearest training samples by
// Euclidean distance. Fitting memorises the standardized training set.
type knn struct {
	K int         `json:"k"`
	X [][]float64 `json:"x"`
	Y []float64   `json:"y"`
}

func (k *knn) fit(ctx context.Context, X [][]float64, y []float64, _ model.TrainParams, report backend.ProgressFunc) ([]float64, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("knn: empty training set")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k.K = min(defaultK, len(X))
	k.X = X
	k.Y = y
	if report != nil {
		report(1, 1, fmt.Sprintf("indexed %d samples", len(X)))
	}
	return nil, nil
}

func (k *knn) predict(x []float64) float64 {
	type neighbour struct{ dist, y float64 }
	ns := make([]neighbour, len(k.X))
	for i, row := range k.X {
		n := min(len(row), len(x))
		ns[i] = neighbour{floats.Distance(row[:n], x[:n], 2), k.Y[i]}
	}
	sort.Slice(ns, func(i, j int) bool { return ns[i].dist < ns[j].dist })

	ys := make([]float64, k.K)
	for i, n := range ns[:k.K] {
		ys[i] = n.y
	}
	return stat.Mean(ys, nil)
}

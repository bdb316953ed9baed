package learn

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/model"
)

// linear is y = w·x + b trained with mini-batch Adam on squared error.
// Params holds the weights followed by the bias.
type linear struct {
	Params []float64 `json:"params"`
}

func (l *linear) fit(ctx context.Context, X [][]float64, y []float64, params model.TrainParams, report backend.ProgressFunc) ([]float64, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("linear: empty training set")
	}
	dim := len(X[0])
	l.Params = make([]float64, dim+1)
	opt := newAdam(len(l.Params), params.LearningRate)
	rng := rand.New(rand.NewPCG(initSeed, 1))
	grads := make([]float64, len(l.Params))

	losses := make([]float64, 0, params.Epochs)
	for epoch := 1; epoch <= params.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return losses, err
		}
		var sum float64
		minibatches(rng, len(X), func(batch []int) {
			clear(grads)
			for _, i := range batch {
				diff := l.predict(X[i]) - y[i]
				sum += diff * diff
				for j, v := range X[i] {
					grads[j] += 2 * diff * v
				}
				grads[dim] += 2 * diff
			}
			n := float64(len(batch))
			for j := range grads {
				grads[j] /= n
			}
			opt.step(l.Params, grads)
		})
		losses = append(losses, sum/float64(len(X)))
		if report != nil {
			report(epoch, params.Epochs, fmt.Sprintf("epoch %d/%d", epoch, params.Epochs))
		}
	}
	return losses, nil
}

func (l *linear) predict(x []float64) float64 {
	dim := len(l.Params) - 1
	n := min(dim, len(x))
	return floats.Dot(l.Params[:n], x[:n]) + l.Params[dim]
}

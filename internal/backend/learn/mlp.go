package learn

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/model"
)

// mlp is a dense feed-forward network with ReLU hidden layers and a linear
// output unit. Params stores, per layer, the out×in weight matrix in row-major
// order followed by the out biases.
type mlp struct {
	Sizes  []int     `json:"sizes"`
	Params []float64 `json:"params"`
}

// layerOffset returns where layer l's weights start in Params.
func (m *mlp) layerOffset(l int) int {
	off := 0
	for k := 0; k < l; k++ {
		off += m.Sizes[k+1]*m.Sizes[k] + m.Sizes[k+1]
	}
	return off
}

func (m *mlp) init(rng *rand.Rand) {
	total := m.layerOffset(len(m.Sizes) - 1)
	m.Params = make([]float64, total)
	for l := 0; l < len(m.Sizes)-1; l++ {
		in, out := m.Sizes[l], m.Sizes[l+1]
		off := m.layerOffset(l)
		scale := math.Sqrt(2.0 / float64(in))
		for i := 0; i < out*in; i++ {
			m.Params[off+i] = rng.NormFloat64() * scale
		}
	}
}

// forward returns the activations of every layer, input included.
func (m *mlp) forward(x []float64) [][]float64 {
	acts := make([][]float64, len(m.Sizes))
	acts[0] = x
	last := len(m.Sizes) - 2
	for l := 0; l <= last; l++ {
		in, out := m.Sizes[l], m.Sizes[l+1]
		off := m.layerOffset(l)
		w := m.Params[off : off+out*in]
		b := m.Params[off+out*in : off+out*in+out]
		a := make([]float64, out)
		for o := 0; o < out; o++ {
			z := b[o] + floats.Dot(w[o*in:(o+1)*in], acts[l])
			if l < last && z < 0 {
				z = 0
			}
			a[o] = z
		}
		acts[l+1] = a
	}
	return acts
}

// backward accumulates d(loss)/d(params) for one sample into grads and
// returns the squared error.
func (m *mlp) backward(x []float64, y float64, grads []float64) float64 {
	acts := m.forward(x)
	last := len(m.Sizes) - 2
	diff := acts[last+1][0] - y
	delta := []float64{2 * diff}

	for l := last; l >= 0; l-- {
		in, out := m.Sizes[l], m.Sizes[l+1]
		off := m.layerOffset(l)
		w := m.Params[off : off+out*in]
		for o := 0; o < out; o++ {
			for i := 0; i < in; i++ {
				grads[off+o*in+i] += delta[o] * acts[l][i]
			}
			grads[off+out*in+o] += delta[o]
		}
		if l == 0 {
			break
		}
		prev := make([]float64, in)
		for i := 0; i < in; i++ {
			if acts[l][i] <= 0 {
				continue // ReLU gate
			}
			var s float64
			for o := 0; o < out; o++ {
				s += w[o*in+i] * delta[o]
			}
			prev[i] = s
		}
		delta = prev
	}
	return diff * diff
}

func (m *mlp) fit(ctx context.Context, X [][]float64, y []float64, params model.TrainParams, report backend.ProgressFunc) ([]float64, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("mlp: empty training set")
	}
	m.Sizes = append([]int{len(X[0])}, params.HiddenSizes...)
	m.Sizes = append(m.Sizes, 1)

	rng := rand.New(rand.NewPCG(initSeed, 2))
	m.init(rng)
	opt := newAdam(len(m.Params), params.LearningRate)
	grads := make([]float64, len(m.Params))

	losses := make([]float64, 0, params.Epochs)
	for epoch := 1; epoch <= params.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return losses, err
		}
		var sum float64
		minibatches(rng, len(X), func(batch []int) {
			clear(grads)
			for _, i := range batch {
				sum += m.backward(X[i], y[i], grads)
			}
			n := float64(len(batch))
			for j := range grads {
				grads[j] /= n
			}
			opt.step(m.Params, grads)
		})
		losses = append(losses, sum/float64(len(X)))
		if report != nil {
			report(epoch, params.Epochs, fmt.Sprintf("epoch %d/%d", epoch, params.Epochs))
		}
	}
	return losses, nil
}

func (m *mlp) predict(x []float64) float64 {
	acts := m.forward(x)
	return acts[len(acts)-1][0]
}

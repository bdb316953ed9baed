package jobs

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/model"
)

// Train runs the training described by spec synchronously. For
// model.TrainAll every registered backend is trained in id order, one after
// another, and report is called at each backend boundary with the number of
// backends completed so far; the first failure stops the sequence. Errors
// carry a stack trace that fmt's %+v verb renders.
func Train(ctx context.Context, reg *backend.Registry, spec model.JobSpec, report backend.ProgressFunc) (*model.JobResult, error) {
	if report == nil {
		report = func(int, int, string) {}
	}
	if spec.Backend == model.TrainAll {
		return trainAll(ctx, reg, spec.Params, report)
	}
	return trainOne(ctx, reg, spec.Backend, spec.Params, report)
}

func trainOne(ctx context.Context, reg *backend.Registry, id string, params model.TrainParams, report backend.ProgressFunc) (*model.JobResult, error) {
	b, err := reg.Get(id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	metrics, err := b.Train(ctx, params, report)
	if err != nil {
		return nil, errors.Wrapf(err, "train %s", id)
	}
	return &model.JobResult{
		Backend: id,
		Message: fmt.Sprintf("%s model trained successfully", id),
		Metrics: &metrics,
	}, nil
}

func trainAll(ctx context.Context, reg *backend.Registry, params model.TrainParams, report backend.ProgressFunc) (*model.JobResult, error) {
	ids := reg.IDs()
	total := len(ids)
	results := make(map[string]model.TrainMetrics, total)

	report(0, total, "starting")
	for i, id := range ids {
		b, err := reg.Get(id)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		metrics, err := b.Train(ctx, params, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "train %s (%d of %d)", id, i+1, total)
		}
		results[id] = metrics
		report(i+1, total, fmt.Sprintf("%s trained", id))
	}

	return &model.JobResult{
		Backend: model.TrainAll,
		Message: fmt.Sprintf("%d models trained successfully", total),
		Results: results,
	}, nil
}

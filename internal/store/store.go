package store

import (
	"context"

	"github.com/seantiz/modelrouter/internal/model"
)

// RunStats holds aggregate training statistics.
type RunStats struct {
	Total          int            `json:"total"`
	CountByState   map[string]int `json:"count_by_state"`
	CountByBackend map[string]int `json:"count_by_backend"`
	AvgDurationMS  float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for trained artifacts and
// training history.
type Store interface {
	SaveArtifact(ctx context.Context, a model.Artifact) error
	GetArtifact(ctx context.Context, backend string) (*model.Artifact, error)
	ListArtifacts(ctx context.Context) ([]*model.Artifact, error)
	RecordRun(ctx context.Context, run model.TrainingRun) error
	ListRuns(ctx context.Context, limit, offset int) ([]*model.TrainingRun, int, error)
	GetRunStats(ctx context.Context) (*RunStats, error)
	Close() error
}

package store

import (
	"context"

	"github.com/parismobility/velocast/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the forecasting pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, dataPath, modelPath string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, metrics *model.Metrics, featureNames []string) error
	FailRun(ctx context.Context, runID string, runErr string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	LatestRun(ctx context.Context) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Predictions
	InsertPredictions(ctx context.Context, runID string, preds []model.Prediction) (int, error)
	ListPredictions(ctx context.Context, runID string, limit int) ([]model.Prediction, error)

	// Raw observations. Keyed by (counter, hour): re-ingesting an
	// overlapping date range replaces the old values.
	SaveObservations(ctx context.Context, records []model.CounterRecord) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

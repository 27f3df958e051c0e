package model

import "time"

// RunStatus represents the current state of a training run.
type RunStatus string

const (
	RunStatusQueued        RunStatus = "queued"
	RunStatusPreprocessing RunStatus = "preprocessing"
	RunStatusTraining      RunStatus = "training"
	RunStatusComplete      RunStatus = "complete"
	RunStatusFailed        RunStatus = "failed"
)

// Run represents one training run of the forecasting pipeline.
type Run struct {
	ID           string    `json:"id"`
	DataPath     string    `json:"data_path"`
	ModelPath    string    `json:"model_path"`
	Status       RunStatus `json:"status"`
	Metrics      *Metrics  `json:"metrics,omitempty"`
	FeatureNames []string  `json:"feature_names,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Metrics holds evaluation results on the held-out chronological slice.
type Metrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
	Rows int     `json:"n_rows"`
}

// Prediction is one predicted hourly count for a (site, hour) pair.
// Actual and AbsError are set only when ground truth was available.
type Prediction struct {
	Timestamp time.Time `json:"timestamp"`
	SiteID    string    `json:"site_id"`
	Predicted float64   `json:"predicted"`
	Actual    *float64  `json:"actual,omitempty"`
	AbsError  *float64  `json:"abs_error,omitempty"`
}

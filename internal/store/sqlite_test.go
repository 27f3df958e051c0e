package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parismobility/velocast/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "velocast.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteCreateAndGetRun(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "data/march.csv", "models/march.json")
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "data/march.csv", got.DataPath)
	assert.Equal(t, "models/march.json", got.ModelPath)
	assert.Nil(t, got.Metrics)
	assert.Empty(t, got.Error)
}

func TestSQLiteGetRun_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.GetRun(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLiteUpdateRunStatus(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "d.csv", "m.json")
	require.NoError(t, err)

	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusTraining))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusTraining, got.Status)

	err = s.UpdateRunStatus(ctx, "missing", model.RunStatusTraining)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteCompleteRun(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "d.csv", "m.json")
	require.NoError(t, err)

	metrics := &model.Metrics{MAE: 12.5, RMSE: 20.1, R2: 0.87, Rows: 4800}
	names := []string{"site_id", "lag_24", "hour_sin"}
	require.NoError(t, s.CompleteRun(ctx, run.ID, metrics, names))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Metrics)
	assert.Equal(t, *metrics, *got.Metrics)
	assert.Equal(t, names, got.FeatureNames)
}

func TestSQLiteFailRun(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "d.csv", "m.json")
	require.NoError(t, err)
	require.NoError(t, s.FailRun(ctx, run.ID, "weather source unreachable"))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "weather source unreachable", got.Error)
}

func TestSQLiteLatestRun(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	first, err := s.CreateRun(ctx, "a.csv", "a.json")
	require.NoError(t, err)
	require.NoError(t, s.CompleteRun(ctx, first.ID, &model.Metrics{}, nil))

	// Queued runs never surface as latest.
	_, err = s.CreateRun(ctx, "b.csv", "b.json")
	require.NoError(t, err)

	latest, err = s.LatestRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, first.ID, latest.ID)
}

func TestSQLiteListRuns(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		run, err := s.CreateRun(ctx, "d.csv", "m.json")
		require.NoError(t, err)
		if i == 0 {
			require.NoError(t, s.FailRun(ctx, run.ID, "boom"))
		}
	}

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	failed, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].Error)

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLitePredictionsRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "d.csv", "m.json")
	require.NoError(t, err)

	actual := 40.0
	absErr := 2.5
	ts := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)
	preds := []model.Prediction{
		{Timestamp: ts, SiteID: "100003096", Predicted: 42.5, Actual: &actual, AbsError: &absErr},
		{Timestamp: ts.Add(time.Hour), SiteID: "100003096", Predicted: 39.0},
	}

	n, err := s.InsertPredictions(ctx, run.ID, preds)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.ListPredictions(ctx, run.ID, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "100003096", got[0].SiteID)
	assert.Equal(t, 42.5, got[0].Predicted)
	require.NotNil(t, got[0].Actual)
	assert.Equal(t, 40.0, *got[0].Actual)
	require.NotNil(t, got[0].AbsError)
	assert.Equal(t, 2.5, *got[0].AbsError)
	assert.Nil(t, got[1].Actual)
	assert.Nil(t, got[1].AbsError)
}

func TestSQLiteSaveObservations_UpsertOnOverlap(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	ts := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)
	first := []model.CounterRecord{
		{CounterID: "c1", SiteID: "100003096", Timestamp: ts, HourlyCount: 42, RawCoordinate: "48.85,2.35"},
		{CounterID: "c1", SiteID: "100003096", Timestamp: ts.Add(time.Hour), HourlyCount: 17},
		{CounterID: "c2", SiteID: "100003097"}, // zero timestamp, skipped
		{CounterID: "c3", SiteID: "100003098", Timestamp: ts, HourlyCount: math.NaN()}, // missing count, skipped
	}

	n, err := s.SaveObservations(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Re-ingesting the same hour replaces the count instead of duplicating.
	n, err = s.SaveObservations(ctx, []model.CounterRecord{
		{CounterID: "c1", SiteID: "100003096", Timestamp: ts, HourlyCount: 45, RawCoordinate: "48.85,2.35"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var total int
	var count float64
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM observations`).Scan(&total))
	require.NoError(t, s.db.QueryRow(`SELECT count FROM observations WHERE counter_id = 'c1' AND ts = ?`, ts).Scan(&count))
	assert.Equal(t, 2, total)
	assert.Equal(t, 45.0, count)
}

func TestSQLiteInsertPredictions_Empty(t *testing.T) {
	s := newTestSQLiteStore(t)

	n, err := s.InsertPredictions(context.Background(), "whatever", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/parismobility/velocast/internal/db"
	"github.com/parismobility/velocast/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, data_path, model_path, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"get_run":           `SELECT id, data_path, model_path, status, metrics, feature_names, error, created_at, updated_at FROM runs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	data_path     TEXT NOT NULL,
	model_path    TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'queued',
	metrics       JSONB,
	feature_names JSONB,
	error         TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS predictions (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	ts        TIMESTAMPTZ NOT NULL,
	site_id   TEXT NOT NULL,
	predicted DOUBLE PRECISION NOT NULL,
	actual    DOUBLE PRECISION,
	abs_error DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS observations (
	counter_id TEXT NOT NULL,
	site_id    TEXT NOT NULL,
	ts         TIMESTAMPTZ NOT NULL,
	count      DOUBLE PRECISION NOT NULL,
	coordinate TEXT,
	PRIMARY KEY (counter_id, ts)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_predictions_run ON predictions(run_id);
CREATE INDEX IF NOT EXISTS idx_predictions_site_ts ON predictions(site_id, ts);
CREATE INDEX IF NOT EXISTS idx_observations_site_ts ON observations(site_id, ts);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, dataPath, modelPath string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, data_path, model_path, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, dataPath, modelPath, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		DataPath:  dataPath,
		ModelPath: modelPath,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, metrics *model.Metrics, featureNames []string) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal metrics")
	}
	namesJSON, err := json.Marshal(featureNames)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal feature names")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET metrics = $1, feature_names = $2, status = $3, updated_at = $4 WHERE id = $5`,
		metricsJSON, namesJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, data_path, model_path, status, metrics, feature_names, error, created_at, updated_at
		 FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) LatestRun(ctx context.Context) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, data_path, model_path, status, metrics, feature_names, error, created_at, updated_at
		 FROM runs WHERE status = $1 ORDER BY created_at DESC LIMIT 1`,
		string(model.RunStatusComplete),
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest run")
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, data_path, model_path, status, metrics, feature_names, error, created_at, updated_at
	          FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) InsertPredictions(ctx context.Context, runID string, preds []model.Prediction) (int, error) {
	rows := make([][]any, len(preds))
	for i, p := range preds {
		rows[i] = []any{runID, p.Timestamp, p.SiteID, p.Predicted, p.Actual, p.AbsError}
	}

	n, err := db.CopyFrom(ctx, s.pool, "predictions",
		[]string{"run_id", "ts", "site_id", "predicted", "actual", "abs_error"}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: insert predictions for run %s", runID)
	}
	return int(n), nil
}

func (s *PostgresStore) SaveObservations(ctx context.Context, records []model.CounterRecord) (int64, error) {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		if rec.Timestamp.IsZero() || math.IsNaN(rec.HourlyCount) {
			continue
		}
		rows = append(rows, []any{rec.CounterID, rec.SiteID, rec.Timestamp, rec.HourlyCount, rec.RawCoordinate})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "observations",
		Columns:      []string{"counter_id", "site_id", "ts", "count", "coordinate"},
		ConflictKeys: []string{"counter_id", "ts"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save observations")
	}
	return n, nil
}

func (s *PostgresStore) ListPredictions(ctx context.Context, runID string, limit int) ([]model.Prediction, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT ts, site_id, predicted, actual, abs_error FROM predictions
		 WHERE run_id = $1 ORDER BY ts, site_id LIMIT $2`,
		runID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list predictions")
	}
	defer rows.Close()

	var preds []model.Prediction
	for rows.Next() {
		var p model.Prediction
		if err := rows.Scan(&p.Timestamp, &p.SiteID, &p.Predicted, &p.Actual, &p.AbsError); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prediction")
		}
		preds = append(preds, p)
	}
	return preds, eris.Wrap(rows.Err(), "postgres: list predictions iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var metricsJSON, namesJSON []byte
	var runErr *string

	err := row.Scan(&r.ID, &r.DataPath, &r.ModelPath, &r.Status, &metricsJSON, &namesJSON, &runErr, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(metricsJSON) > 0 {
		r.Metrics = &model.Metrics{}
		if err := json.Unmarshal(metricsJSON, r.Metrics); err != nil {
			return nil, eris.Wrap(err, "unmarshal metrics")
		}
	}
	if len(namesJSON) > 0 {
		if err := json.Unmarshal(namesJSON, &r.FeatureNames); err != nil {
			return nil, eris.Wrap(err, "unmarshal feature names")
		}
	}
	if runErr != nil {
		r.Error = *runErr
	}
	return &r, nil
}

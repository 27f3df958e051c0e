package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/parismobility/velocast/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	data_path     TEXT NOT NULL,
	model_path    TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'queued',
	metrics       TEXT,
	feature_names TEXT,
	error         TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS predictions (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	ts        DATETIME NOT NULL,
	site_id   TEXT NOT NULL,
	predicted REAL NOT NULL,
	actual    REAL,
	abs_error REAL
);

CREATE TABLE IF NOT EXISTS observations (
	counter_id TEXT NOT NULL,
	site_id    TEXT NOT NULL,
	ts         DATETIME NOT NULL,
	count      REAL NOT NULL,
	coordinate TEXT,
	PRIMARY KEY (counter_id, ts)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_predictions_run ON predictions(run_id);
CREATE INDEX IF NOT EXISTS idx_predictions_site_ts ON predictions(site_id, ts);
CREATE INDEX IF NOT EXISTS idx_observations_site_ts ON observations(site_id, ts);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, dataPath, modelPath string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, data_path, model_path, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, dataPath, modelPath, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, metrics *model.Metrics, featureNames []string) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metrics")
	}
	namesJSON, err := json.Marshal(featureNames)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal feature names")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET metrics = ?, feature_names = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(metricsJSON), string(namesJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data_path, model_path, status, metrics, feature_names, error, created_at, updated_at
		 FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data_path, model_path, status, metrics, feature_names, error, created_at, updated_at
		 FROM runs WHERE status = ? ORDER BY created_at DESC LIMIT 1`,
		string(model.RunStatusComplete),
	)
	r, err := scanRun(row)
	if eris.Is(err, errRunNotFound) {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, data_path, model_path, status, metrics, feature_names, error, created_at, updated_at
	          FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) InsertPredictions(ctx context.Context, runID string, preds []model.Prediction) (int, error) {
	if len(preds) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin predictions tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO predictions (run_id, ts, site_id, predicted, actual, abs_error) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare predictions insert")
	}
	defer stmt.Close()

	for _, p := range preds {
		if _, err := stmt.ExecContext(ctx, runID, p.Timestamp, p.SiteID, p.Predicted, p.Actual, p.AbsError); err != nil {
			return 0, eris.Wrap(err, "sqlite: insert prediction")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit predictions")
	}
	return len(preds), nil
}

func (s *SQLiteStore) ListPredictions(ctx context.Context, runID string, limit int) ([]model.Prediction, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, site_id, predicted, actual, abs_error FROM predictions
		 WHERE run_id = ? ORDER BY ts, site_id LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list predictions")
	}
	defer rows.Close()

	var preds []model.Prediction
	for rows.Next() {
		var p model.Prediction
		if err := rows.Scan(&p.Timestamp, &p.SiteID, &p.Predicted, &p.Actual, &p.AbsError); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prediction")
		}
		preds = append(preds, p)
	}
	return preds, eris.Wrap(rows.Err(), "sqlite: list predictions iterate")
}

func (s *SQLiteStore) SaveObservations(ctx context.Context, records []model.CounterRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin observations tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO observations (counter_id, site_id, ts, count, coordinate) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(counter_id, ts) DO UPDATE SET count = excluded.count, coordinate = excluded.coordinate`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare observations upsert")
	}
	defer stmt.Close()

	var saved int64
	for _, rec := range records {
		if rec.Timestamp.IsZero() || math.IsNaN(rec.HourlyCount) {
			continue
		}
		if _, err := stmt.ExecContext(ctx, rec.CounterID, rec.SiteID, rec.Timestamp, rec.HourlyCount, rec.RawCoordinate); err != nil {
			return 0, eris.Wrap(err, "sqlite: upsert observation")
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit observations")
	}
	return saved, nil
}

// helpers

var errRunNotFound = eris.New("run not found")

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var metricsJSON, namesJSON, runErr sql.NullString

	err := row.Scan(&r.ID, &r.DataPath, &r.ModelPath, &r.Status, &metricsJSON, &namesJSON, &runErr, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errRunNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if metricsJSON.Valid && metricsJSON.String != "" {
		r.Metrics = &model.Metrics{}
		if err := json.Unmarshal([]byte(metricsJSON.String), r.Metrics); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal metrics")
		}
	}
	if namesJSON.Valid && namesJSON.String != "" {
		if err := json.Unmarshal([]byte(namesJSON.String), &r.FeatureNames); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal feature names")
		}
	}
	if runErr.Valid {
		r.Error = runErr.String
	}
	return &r, nil
}

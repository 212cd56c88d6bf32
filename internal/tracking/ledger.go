// Package tracking records pipeline runs in a local SQLite database so
// cross-validation scores and selected thresholds can be compared across runs.
package tracking

import (
	"context"
	"database/sql"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one invocation of a pipeline command.
type Run struct {
	ID         string
	Command    string
	ConfigPath string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// FoldRecord holds the diagnostics of one cross-validation fold.
type FoldRecord struct {
	Fold          int
	TrainSize     int
	ValidSize     int
	MacroF1       float64
	AUC           float64
	LogLoss       float64
	BestIteration int
}

// ThresholdRecord is one evaluated threshold candidate.
type ThresholdRecord struct {
	TargetPos int // 0 when the strategy has no quota
	Threshold float64
	MacroF1   float64
	NPos      int
	Selected  bool
}

// Ledger is a SQLite-backed run ledger. It is safe for concurrent use.
type Ledger struct{ db *sql.DB }

// Open opens or creates the ledger at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open ledger %s", path)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "configure ledger")
	}
	l := &Ledger{db: db}
	if err := l.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

func (l *Ledger) migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS runs (
	  id TEXT PRIMARY KEY,
	  command TEXT NOT NULL,
	  config_path TEXT,
	  status TEXT NOT NULL,
	  error TEXT,
	  started_at INTEGER NOT NULL,
	  finished_at INTEGER
	);
	CREATE TABLE IF NOT EXISTS fold_metrics (
	  run_id TEXT NOT NULL REFERENCES runs(id),
	  fold INTEGER NOT NULL,
	  train_size INTEGER NOT NULL,
	  valid_size INTEGER NOT NULL,
	  macro_f1 REAL,
	  auc REAL,
	  logloss REAL,
	  best_iteration INTEGER,
	  PRIMARY KEY (run_id, fold)
	);
	CREATE TABLE IF NOT EXISTS run_metrics (
	  run_id TEXT NOT NULL REFERENCES runs(id),
	  name TEXT NOT NULL,
	  value REAL,
	  PRIMARY KEY (run_id, name)
	);
	CREATE TABLE IF NOT EXISTS thresholds (
	  run_id TEXT NOT NULL REFERENCES runs(id),
	  seq INTEGER NOT NULL,
	  target_pos INTEGER,
	  thr REAL NOT NULL,
	  macro_f1 REAL,
	  n_pos INTEGER NOT NULL,
	  selected INTEGER NOT NULL DEFAULT 0,
	  PRIMARY KEY (run_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`)
	if err != nil {
		return errors.Wrap(err, "migrate ledger")
	}
	return nil
}

// StartRun inserts r with status running.
func (l *Ledger) StartRun(ctx context.Context, r Run) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs(id, command, config_path, status, started_at) VALUES(?,?,?,?,?)`,
		r.ID, r.Command, r.ConfigPath, StatusRunning, r.StartedAt.UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "start run %s", r.ID)
	}
	return nil
}

// FinishRun marks the run succeeded, or failed with runErr.
func (l *Ledger) FinishRun(ctx context.Context, id string, finishedAt time.Time, runErr error) error {
	status, msg := StatusSucceeded, sql.NullString{}
	if runErr != nil {
		status = StatusFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET status=?, error=?, finished_at=? WHERE id=?`,
		status, msg, finishedAt.UnixMilli(), id)
	if err != nil {
		return errors.Wrapf(err, "finish run %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf("finish run %s: no such run", id)
	}
	return nil
}

// RecordFold stores the diagnostics of one fold.
func (l *Ledger) RecordFold(ctx context.Context, runID string, f FoldRecord) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO fold_metrics(run_id, fold, train_size, valid_size, macro_f1, auc, logloss, best_iteration)
		 VALUES(?,?,?,?,?,?,?,?)`,
		runID, f.Fold, f.TrainSize, f.ValidSize, nullable(f.MacroF1), nullable(f.AUC), nullable(f.LogLoss), f.BestIteration)
	if err != nil {
		return errors.Wrapf(err, "record fold %d", f.Fold)
	}
	return nil
}

// RecordMetric stores a named scalar for the run, replacing an earlier value.
func (l *Ledger) RecordMetric(ctx context.Context, runID, name string, value float64) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO run_metrics(run_id, name, value) VALUES(?,?,?)`,
		runID, name, nullable(value))
	if err != nil {
		return errors.Wrapf(err, "record metric %s", name)
	}
	return nil
}

// RecordThresholds stores the evaluated threshold grid in one transaction.
func (l *Ledger) RecordThresholds(ctx context.Context, runID string, points []ThresholdRecord) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin thresholds")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO thresholds(run_id, seq, target_pos, thr, macro_f1, n_pos, selected) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		return errors.Wrap(err, "prepare thresholds")
	}
	defer stmt.Close()

	for i, p := range points {
		target := sql.NullInt64{Int64: int64(p.TargetPos), Valid: p.TargetPos > 0}
		if _, err := stmt.ExecContext(ctx, runID, i, target, p.Threshold, nullable(p.MacroF1), p.NPos, p.Selected); err != nil {
			return errors.Wrapf(err, "record threshold %d", i)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit thresholds")
	}
	return nil
}

// Runs returns every run, newest first.
func (l *Ledger) Runs(ctx context.Context) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, command, COALESCE(config_path, ''), status, COALESCE(error, ''), started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Command, &r.ConfigPath, &r.Status, &r.Error, &started, &finished); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		if finished.Valid {
			r.FinishedAt = time.UnixMilli(finished.Int64).UTC()
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Folds returns the fold diagnostics of a run ordered by fold.
func (l *Ledger) Folds(ctx context.Context, runID string) ([]FoldRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT fold, train_size, valid_size, macro_f1, auc, logloss, COALESCE(best_iteration, -1)
		 FROM fold_metrics WHERE run_id=? ORDER BY fold`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query folds")
	}
	defer rows.Close()

	var out []FoldRecord
	for rows.Next() {
		var f FoldRecord
		var f1, auc, ll sql.NullFloat64
		if err := rows.Scan(&f.Fold, &f.TrainSize, &f.ValidSize, &f1, &auc, &ll, &f.BestIteration); err != nil {
			return nil, errors.Wrap(err, "scan fold")
		}
		f.MacroF1, f.AUC, f.LogLoss = orNaN(f1), orNaN(auc), orNaN(ll)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Metrics returns the named scalars of a run.
func (l *Ledger) Metrics(ctx context.Context, runID string) (map[string]float64, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT name, value FROM run_metrics WHERE run_id=?`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query metrics")
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var name string
		var v sql.NullFloat64
		if err := rows.Scan(&name, &v); err != nil {
			return nil, errors.Wrap(err, "scan metric")
		}
		out[name] = orNaN(v)
	}
	return out, rows.Err()
}

// Thresholds returns the threshold grid of a run in insertion order.
func (l *Ledger) Thresholds(ctx context.Context, runID string) ([]ThresholdRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT COALESCE(target_pos, 0), thr, macro_f1, n_pos, selected FROM thresholds WHERE run_id=? ORDER BY seq`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query thresholds")
	}
	defer rows.Close()

	var out []ThresholdRecord
	for rows.Next() {
		var p ThresholdRecord
		var f1 sql.NullFloat64
		if err := rows.Scan(&p.TargetPos, &p.Threshold, &f1, &p.NPos, &p.Selected); err != nil {
			return nil, errors.Wrap(err, "scan threshold")
		}
		p.MacroF1 = orNaN(f1)
		out = append(out, p)
	}
	return out, rows.Err()
}

// nullable stores NaN as NULL; SQLite has no NaN.
func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

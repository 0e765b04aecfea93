// Package sqlite implements the C11 benchmark store over modernc.org/sqlite.
// Grounded on the pack repo zamorofthat-elida's internal/storage/sqlite.go:
// same sql.Open/WAL/migrate-schema shape, narrowed to the benchmark domain's
// three tables plus dataset metadata.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	bm "github.com/dannycabezas/semantic-firewall/internal/domain/benchmark"
)

const schema = `
CREATE TABLE IF NOT EXISTS benchmark_runs (
	id TEXT PRIMARY KEY,
	dataset_name TEXT NOT NULL,
	dataset_source TEXT NOT NULL,
	dataset_split TEXT NOT NULL,
	config_snapshot TEXT,
	start_time DATETIME NOT NULL,
	end_time DATETIME,
	status TEXT NOT NULL,
	total_samples INTEGER NOT NULL DEFAULT 0,
	processed_samples INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON benchmark_runs(status);

CREATE TABLE IF NOT EXISTS benchmark_results (
	run_id TEXT NOT NULL,
	sample_index INTEGER NOT NULL,
	input_text TEXT NOT NULL,
	expected_label TEXT NOT NULL,
	predicted_label TEXT NOT NULL,
	is_correct INTEGER NOT NULL,
	result_type TEXT NOT NULL,
	analysis_details TEXT,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, sample_index)
);

CREATE INDEX IF NOT EXISTS idx_results_run_id ON benchmark_results(run_id);
CREATE INDEX IF NOT EXISTS idx_results_result_type ON benchmark_results(result_type);

CREATE TABLE IF NOT EXISTS benchmark_metrics (
	run_id TEXT PRIMARY KEY,
	tp INTEGER NOT NULL DEFAULT 0,
	fp INTEGER NOT NULL DEFAULT 0,
	tn INTEGER NOT NULL DEFAULT 0,
	fn INTEGER NOT NULL DEFAULT 0,
	precision_ REAL NOT NULL DEFAULT 0,
	recall REAL NOT NULL DEFAULT 0,
	f1 REAL NOT NULL DEFAULT 0,
	accuracy REAL NOT NULL DEFAULT 0,
	avg_latency_ms REAL NOT NULL DEFAULT 0,
	p50_latency_ms REAL NOT NULL DEFAULT 0,
	p95_latency_ms REAL NOT NULL DEFAULT 0,
	p99_latency_ms REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dataset_metadata (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	file_key TEXT NOT NULL,
	file_type TEXT NOT NULL,
	total_samples INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
`

// Store is the modernc.org/sqlite-backed implementation of bm.Store.
type Store struct {
	db *sql.DB
}

// Open creates (or migrates) a benchmark store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("benchmark store initialized", "path", dbPath)
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateRun(run *bm.Run) error {
	_, err := s.db.Exec(`
		INSERT INTO benchmark_runs
		(id, dataset_name, dataset_source, dataset_split, config_snapshot, start_time, end_time, status, total_samples, processed_samples, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DatasetName, run.DatasetSource, run.DatasetSplit, run.ConfigSnapshot,
		run.StartTime, run.EndTime, run.Status, run.TotalSamples, run.ProcessedSamples, run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) UpdateRun(run *bm.Run) error {
	_, err := s.db.Exec(`
		UPDATE benchmark_runs
		SET dataset_name = ?, dataset_source = ?, dataset_split = ?, config_snapshot = ?,
		    start_time = ?, end_time = ?, status = ?, total_samples = ?, processed_samples = ?, error_message = ?
		WHERE id = ?`,
		run.DatasetName, run.DatasetSource, run.DatasetSplit, run.ConfigSnapshot,
		run.StartTime, run.EndTime, run.Status, run.TotalSamples, run.ProcessedSamples, run.ErrorMessage,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(runID string) (*bm.Run, error) {
	row := s.db.QueryRow(`
		SELECT id, dataset_name, dataset_source, dataset_split, config_snapshot, start_time, end_time, status, total_samples, processed_samples, error_message
		FROM benchmark_runs WHERE id = ?`, runID)
	return scanRun(row)
}

func (s *Store) ListRuns() ([]*bm.Run, error) {
	rows, err := s.db.Query(`
		SELECT id, dataset_name, dataset_source, dataset_split, config_snapshot, start_time, end_time, status, total_samples, processed_samples, error_message
		FROM benchmark_runs ORDER BY start_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*bm.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*bm.Run, error) {
	var r bm.Run
	var configSnapshot, errorMessage sql.NullString
	var endTime sql.NullTime
	err := row.Scan(
		&r.ID, &r.DatasetName, &r.DatasetSource, &r.DatasetSplit, &configSnapshot,
		&r.StartTime, &endTime, &r.Status, &r.TotalSamples, &r.ProcessedSamples, &errorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.ConfigSnapshot = configSnapshot.String
	r.ErrorMessage = errorMessage.String
	if endTime.Valid {
		r.EndTime = &endTime.Time
	}
	return &r, nil
}

// SaveResultsBatch persists results in a single transaction, replacing any
// existing row for the same (run_id, sample_index) pair.
func (s *Store) SaveResultsBatch(results []bm.Result) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin results batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO benchmark_results
		(run_id, sample_index, input_text, expected_label, predicted_label, is_correct, result_type, analysis_details, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare results batch: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.Exec(
			r.RunID, r.SampleIndex, r.InputText, r.ExpectedLabel, r.PredictedLabel,
			r.IsCorrect, r.ResultType, r.AnalysisDetails, r.LatencyMs, r.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert result sample_index=%d: %w", r.SampleIndex, err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetResults(runID string, resultType bm.ResultType, limit, offset int) ([]bm.Result, error) {
	query := `
		SELECT run_id, sample_index, input_text, expected_label, predicted_label, is_correct, result_type, analysis_details, latency_ms, created_at
		FROM benchmark_results WHERE run_id = ?`
	args := []any{runID}

	if resultType != "" {
		query += " AND result_type = ?"
		args = append(args, resultType)
	}
	query += " ORDER BY sample_index ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get results: %w", err)
	}
	defer rows.Close()

	var results []bm.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) GetResultsBySampleIndex(runID string) (map[int]bm.Result, error) {
	rows, err := s.db.Query(`
		SELECT run_id, sample_index, input_text, expected_label, predicted_label, is_correct, result_type, analysis_details, latency_ms, created_at
		FROM benchmark_results WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("get results by sample index: %w", err)
	}
	defer rows.Close()

	out := make(map[int]bm.Result)
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out[r.SampleIndex] = r
	}
	return out, rows.Err()
}

func (s *Store) GetErrors(runID string) ([]bm.Result, error) {
	return s.GetResults(runID, bm.ResultError, 0, 0)
}

func scanResult(rows *sql.Rows) (bm.Result, error) {
	var r bm.Result
	var analysisDetails sql.NullString
	err := rows.Scan(
		&r.RunID, &r.SampleIndex, &r.InputText, &r.ExpectedLabel, &r.PredictedLabel,
		&r.IsCorrect, &r.ResultType, &analysisDetails, &r.LatencyMs, &r.CreatedAt,
	)
	if err != nil {
		return bm.Result{}, fmt.Errorf("scan result: %w", err)
	}
	r.AnalysisDetails = analysisDetails.String
	return r, nil
}

func (s *Store) SaveMetrics(m *bm.Metrics) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO benchmark_metrics
		(run_id, tp, fp, tn, fn, precision_, recall, f1, accuracy, avg_latency_ms, p50_latency_ms, p95_latency_ms, p99_latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.TP, m.FP, m.TN, m.FN, m.Precision, m.Recall, m.F1, m.Accuracy,
		m.AvgLatencyMs, m.P50LatencyMs, m.P95LatencyMs, m.P99LatencyMs,
	)
	if err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	return nil
}

func (s *Store) GetMetrics(runID string) (*bm.Metrics, error) {
	row := s.db.QueryRow(`
		SELECT run_id, tp, fp, tn, fn, precision_, recall, f1, accuracy, avg_latency_ms, p50_latency_ms, p95_latency_ms, p99_latency_ms
		FROM benchmark_metrics WHERE run_id = ?`, runID)

	var m bm.Metrics
	err := row.Scan(
		&m.RunID, &m.TP, &m.FP, &m.TN, &m.FN, &m.Precision, &m.Recall, &m.F1, &m.Accuracy,
		&m.AvgLatencyMs, &m.P50LatencyMs, &m.P95LatencyMs, &m.P99LatencyMs,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("metrics not found for run %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get metrics: %w", err)
	}
	return &m, nil
}

func (s *Store) SaveDataset(meta *bm.DatasetMetadata) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO dataset_metadata
		(id, name, description, file_key, file_type, total_samples, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.Name, meta.Description, meta.FileKey, meta.FileType, meta.TotalSamples, meta.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}
	return nil
}

func (s *Store) GetDataset(id string) (*bm.DatasetMetadata, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, file_key, file_type, total_samples, created_at
		FROM dataset_metadata WHERE id = ?`, id)

	var d bm.DatasetMetadata
	var description sql.NullString
	err := row.Scan(&d.ID, &d.Name, &description, &d.FileKey, &d.FileType, &d.TotalSamples, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dataset not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset: %w", err)
	}
	d.Description = description.String
	return &d, nil
}

func (s *Store) ListDatasets() ([]*bm.DatasetMetadata, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, file_key, file_type, total_samples, created_at
		FROM dataset_metadata ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var out []*bm.DatasetMetadata
	for rows.Next() {
		var d bm.DatasetMetadata
		var description sql.NullString
		if err := rows.Scan(&d.ID, &d.Name, &description, &d.FileKey, &d.FileType, &d.TotalSamples, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		d.Description = description.String
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *Store) DeleteDataset(id string) error {
	_, err := s.db.Exec(`DELETE FROM dataset_metadata WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	return nil
}

var _ bm.Store = (*Store)(nil)

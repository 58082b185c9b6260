package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"infra-insight/internal/models"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the history of generated reports.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// AnomalyRecord is one persisted anomaly together with the report it belongs to.
type AnomalyRecord struct {
	ReportID  string `json:"report_id"`
	Timestamp string `json:"timestamp"`
	models.Anomaly
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies the
// schema. Use ":memory:" for a throwaway store. The caller must call Close.
func NewSQLiteStore(dbPath string, log *zap.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection: SQLite serialises writers anyway and :memory: is per-connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migration: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const stmt = `
CREATE TABLE IF NOT EXISTS reports (
    id                   TEXT PRIMARY KEY,
    ts                   TEXT NOT NULL,
    anomaly_count        INTEGER NOT NULL DEFAULT 0,
    recommendation_count INTEGER NOT NULL DEFAULT 0,
    payload              TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_ts ON reports(ts DESC);

CREATE TABLE IF NOT EXISTS anomalies (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    report_id   TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
    ts          TEXT NOT NULL,
    metric      TEXT NOT NULL,
    value       REAL NOT NULL,
    threshold   REAL NOT NULL,
    severity    TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_anomalies_metric_ts ON anomalies(metric, ts DESC);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("create report tables: %w", err)
	}
	s.log.Debug("SQLite migration applied")
	return nil
}

// Save stores a report and its anomalies in a single transaction. Saving an
// existing id replaces it.
func (s *SQLiteStore) Save(ctx context.Context, r *models.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO reports (id, ts, anomaly_count, recommendation_count, payload)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    ts = excluded.ts,
    anomaly_count = excluded.anomaly_count,
    recommendation_count = excluded.recommendation_count,
    payload = excluded.payload`,
		r.ID, r.Timestamp, len(r.Anomalies), len(r.Recommendations), string(payload)); err != nil {
		return fmt.Errorf("upsert report %s: %w", r.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM anomalies WHERE report_id = ?`, r.ID); err != nil {
		return fmt.Errorf("clear anomalies for %s: %w", r.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO anomalies (report_id, ts, metric, value, threshold, severity, description)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range r.Anomalies {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Timestamp, a.Metric, a.Value, a.Threshold, string(a.Severity), a.Description); err != nil {
			return fmt.Errorf("exec insert for %s: %w", a.Metric, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	s.log.Debug("report persisted", zap.String("report_id", r.ID), zap.Int("anomalies", len(r.Anomalies)))
	return nil
}

// Get returns the report with the given id or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Report, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM reports WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query report %s: %w", id, err)
	}
	return decodePayload(payload)
}

// List returns up to limit reports, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*models.Report, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM reports ORDER BY ts DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	reports := []*models.Report{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r, err := decodePayload(payload)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// AnomalyHistory returns the latest persisted anomalies for one metric,
// newest first.
func (s *SQLiteStore) AnomalyHistory(ctx context.Context, metric string, limit int) ([]AnomalyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT report_id, ts, metric, value, threshold, severity, description
FROM anomalies WHERE metric = ? ORDER BY ts DESC, id DESC LIMIT ?`, metric, limit)
	if err != nil {
		return nil, fmt.Errorf("query anomaly history: %w", err)
	}
	defer rows.Close()

	out := []AnomalyRecord{}
	for rows.Next() {
		var rec AnomalyRecord
		var severity string
		if err := rows.Scan(&rec.ReportID, &rec.Timestamp, &rec.Metric, &rec.Value, &rec.Threshold, &severity, &rec.Description); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		rec.Severity = models.Severity(severity)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close shuts down the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func decodePayload(payload string) (*models.Report, error) {
	var r models.Report
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("decode stored report: %w", err)
	}
	return &r, nil
}

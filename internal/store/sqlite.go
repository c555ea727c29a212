package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/khanhnv2901/webposture/internal/progress"
	apperrors "github.com/khanhnv2901/webposture/internal/shared/errors"
)

//go:embed schema.sql
var schemaFS embed.FS

// maxHistoryLimit caps how many rows a history query may return.
const maxHistoryLimit = 100

// timeLayout is RFC3339 with fixed-width nanoseconds. Trailing fraction
// zeros are kept so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens the database at path, creating parent directories
// as needed. The special path ":memory:" opens an in-memory database.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// applySchema sets pragmas and creates the tables.
func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveScan(ctx context.Context, rec ScanRecord) error {
	report := rec.Report
	if report == nil {
		report = json.RawMessage("{}")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scans (id, url, domain, client_ip, grade, risk_score, risk_level, created_at, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.URL, rec.Domain, rec.ClientIP, rec.Grade, rec.RiskScore, rec.RiskLevel,
		rec.CreatedAt.UTC().Format(timeLayout), string(report))
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentScans(ctx context.Context, limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, domain, client_ip, grade, risk_score, risk_level, created_at
		FROM scans ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	records := []ScanRecord{}
	for rows.Next() {
		var rec ScanRecord
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.URL, &rec.Domain, &rec.ClientIP, &rec.Grade,
			&rec.RiskScore, &rec.RiskLevel, &createdAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) ScanByID(ctx context.Context, id string) (ScanRecord, error) {
	var rec ScanRecord
	var createdAt, report string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, url, domain, client_ip, grade, risk_score, risk_level, created_at, report
		FROM scans WHERE id = ?`, id).
		Scan(&rec.ID, &rec.URL, &rec.Domain, &rec.ClientIP, &rec.Grade,
			&rec.RiskScore, &rec.RiskLevel, &createdAt, &report)
	if errors.Is(err, sql.ErrNoRows) {
		return ScanRecord{}, apperrors.ErrScanNotFound
	}
	if err != nil {
		return ScanRecord{}, fmt.Errorf("query scan: %w", err)
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.Report = json.RawMessage(report)
	return rec, nil
}

// RecordProgress upserts the latest snapshot for a scan. It satisfies
// progress.Sink.
func (s *SQLiteStore) RecordProgress(snap progress.Snapshot) error {
	details, err := json.Marshal(snap.StepDetails)
	if err != nil {
		return fmt.Errorf("marshal step details: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO scan_progress
			(scan_id, url, current_step, progress_percentage, step_details,
			 is_complete, has_error, error_message, is_cancelled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scan_id) DO UPDATE SET
			current_step = excluded.current_step,
			progress_percentage = excluded.progress_percentage,
			step_details = excluded.step_details,
			is_complete = excluded.is_complete,
			has_error = excluded.has_error,
			error_message = excluded.error_message,
			is_cancelled = excluded.is_cancelled,
			updated_at = excluded.updated_at`,
		snap.ScanID, snap.URL, snap.CurrentStep, snap.ProgressPercentage, string(details),
		boolToInt(snap.IsComplete), boolToInt(snap.HasError), snap.ErrorMessage,
		boolToInt(snap.IsCancelled), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PruneProgress(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scan_progress WHERE updated_at < ?`,
		cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune progress: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

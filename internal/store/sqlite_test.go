package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/khanhnv2901/webposture/internal/progress"
	apperrors "github.com/khanhnv2901/webposture/internal/shared/errors"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id string, createdAt time.Time) ScanRecord {
	return ScanRecord{
		ID:        id,
		URL:       "https://example.com",
		Domain:    "example.com",
		ClientIP:  "198.51.100.7",
		Grade:     "B",
		RiskScore: 18,
		RiskLevel: "MINIMAL",
		CreatedAt: createdAt,
		Report:    json.RawMessage(`{"overall_grade":"B"}`),
	}
}

func TestSQLiteStore_SaveAndFetch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("scan-1", time.Now())
	if err := s.SaveScan(ctx, rec); err != nil {
		t.Fatalf("SaveScan returned error: %v", err)
	}

	got, err := s.ScanByID(ctx, "scan-1")
	if err != nil {
		t.Fatalf("ScanByID returned error: %v", err)
	}
	if got.URL != rec.URL || got.Grade != "B" || got.RiskScore != 18 {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.ClientIP != "198.51.100.7" {
		t.Errorf("ClientIP = %q, want 198.51.100.7", got.ClientIP)
	}

	var report map[string]any
	if err := json.Unmarshal(got.Report, &report); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if report["overall_grade"] != "B" {
		t.Errorf("report = %v", report)
	}
}

func TestSQLiteStore_ScanByIDNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.ScanByID(context.Background(), "missing")
	if !errors.Is(err, apperrors.ErrScanNotFound) {
		t.Errorf("ScanByID = %v, want ErrScanNotFound", err)
	}
}

func TestSQLiteStore_RecentScansOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 15; i++ {
		rec := sampleRecord(fmt.Sprintf("scan-%02d", i), base.Add(time.Duration(i)*time.Minute))
		if err := s.SaveScan(ctx, rec); err != nil {
			t.Fatalf("SaveScan: %v", err)
		}
	}

	records, err := s.RecentScans(ctx, 5)
	if err != nil {
		t.Fatalf("RecentScans returned error: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("got %d records, want 5", len(records))
	}
	if records[0].ID != "scan-14" {
		t.Errorf("newest first: got %s", records[0].ID)
	}

	// zero limit falls back to the default of 10
	records, err = s.RecentScans(ctx, 0)
	if err != nil {
		t.Fatalf("RecentScans returned error: %v", err)
	}
	if len(records) != 10 {
		t.Errorf("default limit: got %d records, want 10", len(records))
	}
}

func TestSQLiteStore_RecentScansSubsecondOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Fractions whose text forms have different lengths. A variable-width
	// timestamp format would sort .2 after .25 in the TEXT column.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := sampleRecord("scan-early", base.Add(200*time.Millisecond))
	later := sampleRecord("scan-late", base.Add(250*time.Millisecond))

	if err := s.SaveScan(ctx, earlier); err != nil {
		t.Fatalf("SaveScan: %v", err)
	}
	if err := s.SaveScan(ctx, later); err != nil {
		t.Fatalf("SaveScan: %v", err)
	}

	records, err := s.RecentScans(ctx, 2)
	if err != nil {
		t.Fatalf("RecentScans returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID != "scan-late" || records[1].ID != "scan-early" {
		t.Errorf("order = %s, %s; want scan-late first", records[0].ID, records[1].ID)
	}
	if !records[0].CreatedAt.Equal(later.CreatedAt) {
		t.Errorf("CreatedAt round-trip = %v, want %v", records[0].CreatedAt, later.CreatedAt)
	}
}

func TestSQLiteStore_RecordProgressUpsert(t *testing.T) {
	s := openTestStore(t)

	snap := progress.Snapshot{
		ScanID:             "scan-1",
		URL:                "https://example.com",
		CurrentStep:        "Checking HTTP Security Headers",
		ProgressPercentage: 10,
	}
	if err := s.RecordProgress(snap); err != nil {
		t.Fatalf("RecordProgress returned error: %v", err)
	}

	snap.CurrentStep = "Complete"
	snap.ProgressPercentage = 100
	snap.IsComplete = true
	if err := s.RecordProgress(snap); err != nil {
		t.Fatalf("RecordProgress update returned error: %v", err)
	}

	var count, pct, complete int
	row := s.db.QueryRow(`SELECT COUNT(*), MAX(progress_percentage), MAX(is_complete) FROM scan_progress`)
	if err := row.Scan(&count, &pct, &complete); err != nil {
		t.Fatalf("query progress: %v", err)
	}
	if count != 1 || pct != 100 || complete != 1 {
		t.Errorf("count/pct/complete = %d/%d/%d, want 1/100/1", count, pct, complete)
	}
}

func TestSQLiteStore_PruneProgress(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordProgress(progress.Snapshot{ScanID: "old", URL: "https://example.com"}); err != nil {
		t.Fatalf("RecordProgress: %v", err)
	}

	removed, err := s.PruneProgress(context.Background(), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("PruneProgress returned error: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	removed, err = s.PruneProgress(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PruneProgress returned error: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}

// Package store persists finished scans and progress snapshots.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/khanhnv2901/webposture/internal/progress"
)

// ScanRecord is one persisted scan result. Report holds the full response
// document as JSON.
type ScanRecord struct {
	ID        string          `json:"scan_id"`
	URL       string          `json:"url"`
	Domain    string          `json:"domain"`
	ClientIP  string          `json:"client_ip"`
	Grade     string          `json:"overall_grade"`
	RiskScore int             `json:"risk_score"`
	RiskLevel string          `json:"risk_level"`
	CreatedAt time.Time       `json:"created_at"`
	Report    json.RawMessage `json:"report,omitempty"`
}

// Store is the persistence boundary for scan results and progress.
type Store interface {
	// SaveScan persists a finished scan.
	SaveScan(ctx context.Context, rec ScanRecord) error
	// RecentScans returns the newest scans first, up to limit.
	RecentScans(ctx context.Context, limit int) ([]ScanRecord, error)
	// ScanByID returns one scan with its full report, or ErrScanNotFound.
	ScanByID(ctx context.Context, id string) (ScanRecord, error)
	// RecordProgress stores a progress snapshot, replacing any previous
	// one for the same scan.
	RecordProgress(snap progress.Snapshot) error
	// PruneProgress drops progress rows recorded before cutoff.
	PruneProgress(ctx context.Context, cutoff time.Time) (int64, error)
	// Close releases the underlying database.
	Close() error
}

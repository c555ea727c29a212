package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/webposture/internal/probe"
	"github.com/khanhnv2901/webposture/internal/progress"
	"github.com/khanhnv2901/webposture/internal/risk"
	"github.com/khanhnv2901/webposture/internal/safety"
	apperrors "github.com/khanhnv2901/webposture/internal/shared/errors"
	"github.com/khanhnv2901/webposture/internal/store"
)

// Request is one scan submission.
type Request struct {
	URL          string              `json:"url"`
	ClientIP     string              `json:"-"`
	Attestations safety.Attestations `json:"attestations"`

	// OnSession, when set, receives the progress session ID as soon as
	// the scan is admitted, before any probe runs.
	OnSession func(id string) `json:"-"`
}

// Report is the full response document for a finished scan.
type Report struct {
	ScanID          string                `json:"scan_id"`
	URL             string                `json:"url"`
	ScanTimestamp   time.Time             `json:"scan_timestamp"`
	ProgressScanID  string                `json:"progress_scan_id"`
	RiskScore       int                   `json:"risk_score"`
	RiskLevel       string                `json:"risk_level"`
	OverallGrade    string                `json:"overall_grade"`
	SecurityPosture string                `json:"security_posture"`
	HTTPGrade       string                `json:"http_grade"`
	SSLGrade        string                `json:"ssl_grade"`
	DNSGrade        string                `json:"dns_grade"`
	TechGrade       string                `json:"tech_grade"`
	OWASPScore      int                   `json:"owasp_compliance_score"`
	Compliant       int                   `json:"compliant_categories"`
	NonCompliant    int                   `json:"non_compliant_categories"`
	TopRisks        []risk.TopRisk        `json:"top_risks"`
	CriticalIssues  int                   `json:"critical_issues_count"`
	HighIssues      int                   `json:"high_issues_count"`
	HTTPScan        *probe.HeaderReport   `json:"http_scan,omitempty"`
	SSLScan         *probe.TLSReport      `json:"ssl_scan,omitempty"`
	DNSScan         *probe.DNSReport      `json:"dns_scan,omitempty"`
	TechScan        *probe.TechReport     `json:"tech_scan,omitempty"`
	OWASP           *risk.OWASPAssessment `json:"owasp_assessment"`
	RiskAnalysis    *risk.Verdict         `json:"risk_analysis"`
	DurationMS      int64                 `json:"scan_duration_ms"`
	Recommendations []string              `json:"recommendations"`
	Errors          []string              `json:"errors"`
}

// Service coordinates the safety gate, probes, risk scoring, and storage
// for scan requests.
type Service struct {
	Gate    *safety.Gate
	Orch    *Orchestrator
	Tracker *progress.Tracker
	Store   store.Store
	Logger  *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewService wires a Service from its parts. store may be nil for
// ephemeral use.
func NewService(gate *safety.Gate, orch *Orchestrator, tracker *progress.Tracker, st store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Gate:    gate,
		Orch:    orch,
		Tracker: tracker,
		Store:   st,
		Logger:  logger,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Run validates a request, executes the scan pipeline, and returns the
// report. Gate rejections are returned before any session state exists.
func (s *Service) Run(ctx context.Context, req Request) (*Report, error) {
	if rej := s.Gate.Authorize(ctx, req.URL, req.ClientIP, req.Attestations); rej != nil {
		return nil, rej
	}

	start := time.Now()
	id := s.Tracker.Create(req.URL)

	// A fault anywhere in the pipeline must not leave the session
	// dangling in a non-terminal state.
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("scan pipeline panic: %v", r)
			s.Tracker.Fail(id, msg)
			s.Logger.Error("scan panicked",
				zap.String("scan_id", id),
				zap.Any("panic", r))
			panic(r)
		}
	}()

	if req.OnSession != nil {
		req.OnSession(id)
	}

	scanCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.cancels, id)
		s.mu.Unlock()
	}()

	s.Tracker.Advance(id, 1, 0)
	target := probe.ParseTarget(req.URL)
	s.Tracker.Advance(id, 1, 1)

	s.Logger.Info("scan started",
		zap.String("scan_id", id),
		zap.String("url", req.URL),
		zap.String("client", req.ClientIP))

	bundle, err := s.Orch.Run(scanCtx, id, target)
	if err != nil {
		if s.Tracker.Cancelled(id) || scanCtx.Err() != nil {
			s.Logger.Info("scan cancelled", zap.String("scan_id", id))
			return nil, fmt.Errorf("%w: %s", apperrors.ErrScanCancelled, id)
		}
		s.Tracker.Fail(id, err.Error())
		return nil, fmt.Errorf("scan pipeline: %w", err)
	}

	s.Tracker.Advance(id, 6, 0)
	verdict := risk.Score(bundle)
	s.Tracker.Advance(id, 6, 1)
	owasp := risk.AssessOWASP(bundle)

	s.Tracker.Advance(id, 7, 0)
	report := s.buildReport(id, req.URL, bundle, verdict, owasp, time.Since(start))

	if err := s.persist(ctx, report, target, req.ClientIP); err != nil {
		// storage failure keeps the scan result usable
		s.Logger.Error("persist scan failed",
			zap.String("scan_id", id),
			zap.Error(err))
	}

	s.Tracker.Complete(id)
	s.Logger.Info("scan finished",
		zap.String("scan_id", id),
		zap.String("grade", report.OverallGrade),
		zap.Int("risk_score", report.RiskScore),
		zap.Int64("duration_ms", report.DurationMS))
	return report, nil
}

func (s *Service) buildReport(id, url string, bundle *probe.Bundle, verdict *risk.Verdict, owasp *risk.OWASPAssessment, elapsed time.Duration) *Report {
	report := &Report{
		ScanID:          id,
		URL:             url,
		ScanTimestamp:   time.Now().UTC(),
		ProgressScanID:  id,
		RiskScore:       verdict.WeightedScore,
		RiskLevel:       verdict.RiskLevel,
		OverallGrade:    verdict.Grade,
		SecurityPosture: verdict.Summary.SecurityPosture,
		HTTPGrade:       componentGrade(verdict, "http_headers"),
		SSLGrade:        componentGrade(verdict, "ssl_tls"),
		DNSGrade:        componentGrade(verdict, "dns_security"),
		TechGrade:       componentGrade(verdict, "technology"),
		OWASPScore:      owasp.ComplianceScore,
		Compliant:       len(owasp.Compliant),
		NonCompliant:    len(owasp.NonCompliant),
		TopRisks:        verdict.TopRisks,
		CriticalIssues:  verdict.Summary.TotalIssues.Critical,
		HighIssues:      verdict.Summary.TotalIssues.High,
		HTTPScan:        bundle.Headers.Report,
		SSLScan:         bundle.TLS.Report,
		DNSScan:         bundle.DNS.Report,
		TechScan:        bundle.Tech.Report,
		OWASP:           owasp,
		RiskAnalysis:    verdict,
		DurationMS:      elapsed.Milliseconds(),
		Recommendations: compileRecommendations(bundle),
		Errors:          collectProbeErrors(bundle),
	}
	return report
}

// collectProbeErrors gathers the failure reasons of partially failed
// scans into one top-level list.
func collectProbeErrors(bundle *probe.Bundle) []string {
	errs := []string{}
	if bundle.Headers.Err != "" {
		errs = append(errs, fmt.Sprintf("http_headers: %s", bundle.Headers.Err))
	}
	if bundle.TLS.Err != "" {
		errs = append(errs, fmt.Sprintf("ssl_tls: %s", bundle.TLS.Err))
	}
	if bundle.DNS.Err != "" {
		errs = append(errs, fmt.Sprintf("dns_security: %s", bundle.DNS.Err))
	}
	if bundle.Tech.Err != "" {
		errs = append(errs, fmt.Sprintf("technology: %s", bundle.Tech.Err))
	}
	return errs
}

// compileRecommendations flattens the per-probe findings into one tagged
// list for the summary view.
func compileRecommendations(bundle *probe.Bundle) []string {
	recs := []string{}

	if bundle.Headers.OK() {
		for _, name := range bundle.Headers.Report.Missing {
			fix := "Add this header"
			if status, ok := bundle.Headers.Report.Analysis[name]; ok && status.Recommended != "" {
				fix = status.Recommended
			}
			recs = append(recs, fmt.Sprintf("[HTTP] %s: %s", name, fix))
		}
	}

	if bundle.TLS.OK() {
		tls := bundle.TLS.Report
		if !tls.CertValid {
			recs = append(recs, "[SSL] Obtain a valid SSL certificate from a trusted CA")
		}
		for _, issue := range tls.Issues {
			if strings.Contains(strings.ToLower(issue), "insecure protocol") {
				recs = append(recs, "[SSL] Upgrade to TLS 1.2 or higher")
				break
			}
		}
	}

	if bundle.DNS.OK() {
		dns := bundle.DNS.Report
		if !dns.SPF.Present {
			recs = append(recs, "[DNS] Add SPF record to prevent email spoofing")
		}
		if !dns.DMARC.Present {
			recs = append(recs, "[DNS] Add DMARC record for email authentication")
		}
	}

	return recs
}

func componentGrade(verdict *risk.Verdict, component string) string {
	if cs, ok := verdict.ComponentScores[component]; ok {
		return cs.Grade
	}
	return "N/A"
}

func (s *Service) persist(ctx context.Context, report *Report, target *probe.TargetInfo, clientIP string) error {
	if s.Store == nil {
		return nil
	}
	doc, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return s.Store.SaveScan(ctx, store.ScanRecord{
		ID:        report.ScanID,
		URL:       report.URL,
		Domain:    target.Host,
		ClientIP:  clientIP,
		Grade:     report.OverallGrade,
		RiskScore: report.RiskScore,
		RiskLevel: report.RiskLevel,
		CreatedAt: report.ScanTimestamp,
		Report:    doc,
	})
}

// Progress returns the live progress snapshot for a scan session.
func (s *Service) Progress(id string) (progress.Snapshot, error) {
	return s.Tracker.Read(id)
}

// Cancel stops a running scan. The session is marked cancelled and the
// pipeline context is torn down.
func (s *Service) Cancel(id string) error {
	if err := s.Tracker.Cancel(id); err != nil {
		return err
	}
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// History returns recent persisted scans, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]store.ScanRecord, error) {
	if s.Store == nil {
		return []store.ScanRecord{}, nil
	}
	return s.Store.RecentScans(ctx, limit)
}

// Details returns one persisted scan with its full report.
func (s *Service) Details(ctx context.Context, id string) (store.ScanRecord, error) {
	if s.Store == nil {
		return store.ScanRecord{}, apperrors.ErrScanNotFound
	}
	return s.Store.ScanByID(ctx, id)
}

package risk

import (
	"strings"
	"testing"

	"github.com/khanhnv2901/webposture/internal/probe"
)

func compliantBundle() *probe.Bundle {
	return &probe.Bundle{
		Headers: probe.HeaderOutcome{Report: &probe.HeaderReport{
			Analysis: map[string]probe.HeaderStatus{
				"Referrer-Policy":              {Present: true},
				"Cross-Origin-Opener-Policy":   {Present: true},
				"Cross-Origin-Resource-Policy": {Present: true},
				"Content-Security-Policy":      {Present: true, Score: 95},
				"X-Frame-Options":              {Present: true},
			},
		}},
		TLS: probe.TLSOutcome{Report: &probe.TLSReport{
			HTTPSEnabled: true,
			HSTS:         probe.HSTSInfo{Present: true},
		}},
		DNS: probe.DNSOutcome{Report: &probe.DNSReport{
			SPF:    probe.SPFInfo{Present: true},
			DMARC:  probe.DMARCInfo{Present: true},
			DNSSEC: probe.DNSSECInfo{Enabled: true},
		}},
		Tech: probe.TechOutcome{Report: &probe.TechReport{}},
	}
}

func TestAssessOWASP_AllCompliant(t *testing.T) {
	a := AssessOWASP(compliantBundle())

	if len(a.Findings) != 10 {
		t.Fatalf("Findings = %d categories, want 10", len(a.Findings))
	}
	if a.ComplianceScore != 100 {
		t.Errorf("ComplianceScore = %d, want 100", a.ComplianceScore)
	}
	if len(a.NonCompliant) != 0 {
		t.Errorf("NonCompliant = %v, want empty", a.NonCompliant)
	}
	if !strings.HasPrefix(a.Summary.Verdict, "EXCELLENT") {
		t.Errorf("Verdict = %q", a.Summary.Verdict)
	}
}

func TestAssessOWASP_HeaderMappings(t *testing.T) {
	bundle := compliantBundle()
	bundle.Headers.Report.Analysis = map[string]probe.HeaderStatus{
		"Referrer-Policy":         {Present: false},
		"Content-Security-Policy": {Present: true, Score: 65},
		"X-Frame-Options":         {Present: false},
	}
	bundle.Headers.Report.Missing = []string{"a", "b", "c", "d"}

	a := AssessOWASP(bundle)

	if a.Findings["A01:2021"].Status != statusNonCompliant {
		t.Error("A01 should flip on missing Referrer-Policy")
	}
	if a.Findings["A03:2021"].Status != statusNonCompliant {
		t.Error("A03 should flip on weak CSP score")
	}
	if a.Findings["A04:2021"].Status != statusNonCompliant {
		t.Error("A04 should flip on missing X-Frame-Options")
	}
	if a.Findings["A05:2021"].Status != statusNonCompliant {
		t.Error("A05 should flip when more than 3 headers are missing")
	}
	if len(a.Findings["A03:2021"].Recommendations) == 0 {
		t.Error("non-compliant category should carry recommendations")
	}
}

func TestAssessOWASP_NoHTTPSIsCriticalFinding(t *testing.T) {
	bundle := compliantBundle()
	bundle.TLS.Report.HTTPSEnabled = false

	a := AssessOWASP(bundle)

	if a.Findings["A02:2021"].Status != statusNonCompliant {
		t.Error("A02 should flip without HTTPS")
	}
	if len(a.Critical) != 1 || a.Critical[0].Issue != "No HTTPS encryption" {
		t.Errorf("Critical = %v", a.Critical)
	}
	if len(a.Summary.PriorityActions) == 0 || a.Summary.PriorityActions[0] != "[CRITICAL] No HTTPS encryption" {
		t.Errorf("PriorityActions = %v", a.Summary.PriorityActions)
	}
}

func TestAssessOWASP_OutdatedSoftware(t *testing.T) {
	bundle := compliantBundle()
	bundle.Tech.Report.Vulnerabilities = []probe.TechVulnerability{
		{Type: "Outdated Software", Severity: probe.SeverityHigh, Description: "PHP 5 is end-of-life and unsupported"},
		{Type: "Information Disclosure", Severity: probe.SeverityLow, Description: "Server version disclosed"},
	}

	a := AssessOWASP(bundle)

	if a.Findings["A06:2021"].Status != statusNonCompliant {
		t.Error("A06 should flip on outdated software")
	}
	if len(a.Critical) != 1 || a.Critical[0].Severity != probe.SeverityHigh {
		t.Errorf("Critical = %v", a.Critical)
	}
	// the low severity disclosure finding must not reach A06
	if len(a.Findings["A06:2021"].IssuesFound) != 1 {
		t.Errorf("A06 issues = %v", a.Findings["A06:2021"].IssuesFound)
	}
}

func TestAssessOWASP_ComplianceScore(t *testing.T) {
	bundle := compliantBundle()
	bundle.DNS.Report.SPF.Present = false
	bundle.TLS.Report.HSTS.Present = false

	a := AssessOWASP(bundle)

	// A02 and A05 non-compliant, 8 of 10 remain
	if a.ComplianceScore != 80 {
		t.Errorf("ComplianceScore = %d, want 80", a.ComplianceScore)
	}
	if len(a.Compliant) != 8 || len(a.NonCompliant) != 2 {
		t.Errorf("compliant/non-compliant = %d/%d", len(a.Compliant), len(a.NonCompliant))
	}
	if !strings.HasPrefix(a.Summary.Verdict, "GOOD") {
		t.Errorf("Verdict = %q", a.Summary.Verdict)
	}
}

func TestAssessOWASP_FailedProbesLeaveCategoriesCompliant(t *testing.T) {
	bundle := &probe.Bundle{
		Headers: probe.HeaderOutcome{Err: "unreachable"},
		TLS:     probe.TLSOutcome{Err: "unreachable"},
		DNS:     probe.DNSOutcome{Err: "unreachable"},
		Tech:    probe.TechOutcome{Err: "unreachable"},
	}

	a := AssessOWASP(bundle)
	if a.ComplianceScore != 100 {
		t.Errorf("ComplianceScore = %d, failed probes should not flip categories", a.ComplianceScore)
	}
}

package risk

import (
	"fmt"
	"strings"
	"time"

	"github.com/khanhnv2901/webposture/internal/probe"
)

// owaspCategory is one OWASP Top 10 2021 entry.
type owaspCategory struct {
	ID          string
	Name        string
	Description string
	Severity    string
}

// The OWASP Top 10 2021 catalog in order.
var owaspCategories = []owaspCategory{
	{"A01:2021", "Broken Access Control", "Failures related to authentication and authorization lead to unauthorized access", probe.SeverityCritical},
	{"A02:2021", "Cryptographic Failures", "Failures related to cryptography leading to sensitive data exposure", probe.SeverityCritical},
	{"A03:2021", "Injection", "Injection flaws occur when untrusted data is sent to an interpreter", probe.SeverityCritical},
	{"A04:2021", "Insecure Design", "Risks related to design and architectural flaws", probe.SeverityHigh},
	{"A05:2021", "Security Misconfiguration", "Security misconfiguration is the most common vulnerability", probe.SeverityHigh},
	{"A06:2021", "Vulnerable and Outdated Components", "Using components with known vulnerabilities", probe.SeverityHigh},
	{"A07:2021", "Identification and Authentication Failures", "Authentication-related implementations that could allow attackers to compromise passwords, keys, or session tokens", probe.SeverityHigh},
	{"A08:2021", "Software and Data Integrity Failures", "Code and infrastructure that does not protect against integrity violations", probe.SeverityMedium},
	{"A09:2021", "Security Logging and Monitoring Failures", "Insufficient logging and monitoring coupled with missing or ineffective integration with incident response", probe.SeverityMedium},
	{"A10:2021", "Server-Side Request Forgery (SSRF)", "SSRF flaws occur when web application fetches a remote resource without validating the user-supplied URL", probe.SeverityMedium},
}

// OWASPFinding is the assessed state of one category for a target.
type OWASPFinding struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Severity        string   `json:"severity"`
	Status          string   `json:"your_status"`
	IssuesFound     []string `json:"issues_found"`
	Recommendations []string `json:"recommendations"`
}

// CriticalFinding is a finding serious enough to surface on its own.
type CriticalFinding struct {
	Category string `json:"category"`
	Issue    string `json:"issue"`
	Severity string `json:"severity"`
}

// OWASPSummary is the executive view of the compliance assessment.
type OWASPSummary struct {
	OverallCompliance     string   `json:"overall_compliance"`
	CompliantCount        int      `json:"compliant_count"`
	NonCompliantCount     int      `json:"non_compliant_count"`
	CriticalFindingsCount int      `json:"critical_findings_count"`
	Verdict               string   `json:"verdict"`
	PriorityActions       []string `json:"priority_actions"`
}

// OWASPAssessment maps scan findings onto the OWASP Top 10 2021.
type OWASPAssessment struct {
	Timestamp       time.Time                `json:"assessment_timestamp"`
	Findings        map[string]*OWASPFinding `json:"owasp_findings"`
	ComplianceScore int                      `json:"compliance_score"`
	Compliant       []string                 `json:"compliant_categories"`
	NonCompliant    []string                 `json:"non_compliant_categories"`
	Critical        []CriticalFinding        `json:"critical_findings"`
	Summary         OWASPSummary             `json:"summary"`
}

const (
	statusCompliant    = "COMPLIANT"
	statusNonCompliant = "NON-COMPLIANT"
)

// AssessOWASP evaluates the probe results against all ten categories.
// Every category starts compliant and flips when a mapped finding hits it.
func AssessOWASP(bundle *probe.Bundle) *OWASPAssessment {
	a := &OWASPAssessment{
		Timestamp:    time.Now().UTC(),
		Findings:     make(map[string]*OWASPFinding, len(owaspCategories)),
		Compliant:    []string{},
		NonCompliant: []string{},
		Critical:     []CriticalFinding{},
	}
	for _, cat := range owaspCategories {
		a.Findings[cat.ID] = &OWASPFinding{
			Name:            cat.Name,
			Description:     cat.Description,
			Severity:        cat.Severity,
			Status:          statusCompliant,
			IssuesFound:     []string{},
			Recommendations: []string{},
		}
	}

	a.mapHeaderFindings(bundle.Headers)
	a.mapTLSFindings(bundle.TLS)
	a.mapDNSFindings(bundle.DNS)
	a.mapTechFindings(bundle.Tech)

	a.calculateCompliance()
	a.Summary = a.buildSummary()
	return a
}

func (a *OWASPAssessment) flag(categoryID, issue string) {
	f := a.Findings[categoryID]
	f.IssuesFound = append(f.IssuesFound, issue)
	f.Status = statusNonCompliant
}

func (a *OWASPAssessment) mapHeaderFindings(outcome probe.HeaderOutcome) {
	if !outcome.OK() {
		return
	}
	report := outcome.Report

	for _, header := range []string{"Referrer-Policy", "Cross-Origin-Opener-Policy", "Cross-Origin-Resource-Policy"} {
		if status, ok := report.Analysis[header]; ok && !status.Present {
			a.flag("A01:2021", "Missing "+header+" header")
		}
	}

	if csp, ok := report.Analysis["Content-Security-Policy"]; ok {
		if !csp.Present || csp.Score < 80 {
			a.flag("A03:2021", "Missing or weak Content-Security-Policy")
		}
	}

	if xfo, ok := report.Analysis["X-Frame-Options"]; ok && !xfo.Present {
		a.flag("A04:2021", "Missing X-Frame-Options (clickjacking risk)")
	}

	if len(report.Missing) > 3 {
		a.flag("A05:2021", fmt.Sprintf("%d security headers missing", len(report.Missing)))
	}
}

func (a *OWASPAssessment) mapTLSFindings(outcome probe.TLSOutcome) {
	if !outcome.OK() {
		return
	}
	report := outcome.Report

	if !report.HTTPSEnabled {
		a.flag("A02:2021", "Website not using HTTPS")
		a.Critical = append(a.Critical, CriticalFinding{
			Category: "A02:2021 - Cryptographic Failures",
			Issue:    "No HTTPS encryption",
			Severity: probe.SeverityCritical,
		})
	}

	for _, issue := range report.Issues {
		lower := strings.ToLower(issue)
		if strings.Contains(lower, "expired") || strings.Contains(lower, "tls") || strings.Contains(lower, "cipher") {
			a.flag("A02:2021", issue)
		}
	}

	if !report.HSTS.Present {
		a.flag("A02:2021", "Missing HSTS header")
	}
}

func (a *OWASPAssessment) mapDNSFindings(outcome probe.DNSOutcome) {
	if !outcome.OK() {
		return
	}
	report := outcome.Report

	if !report.SPF.Present {
		a.flag("A05:2021", "Missing SPF record (email security)")
	}
	if !report.DMARC.Present {
		a.flag("A05:2021", "Missing DMARC record (email security)")
	}
	if !report.DNSSEC.Enabled {
		a.flag("A05:2021", "DNSSEC not enabled")
	}
}

func (a *OWASPAssessment) mapTechFindings(outcome probe.TechOutcome) {
	if !outcome.OK() {
		return
	}
	report := outcome.Report

	if report.WebServerVer != "" {
		a.flag("A05:2021", fmt.Sprintf("Server version disclosure: %s/%s", report.WebServer, report.WebServerVer))
	}

	for _, vuln := range report.Vulnerabilities {
		if vuln.Type != "Outdated Software" {
			continue
		}
		a.flag("A06:2021", vuln.Description)
		if vuln.Severity == probe.SeverityHigh {
			a.Critical = append(a.Critical, CriticalFinding{
				Category: "A06:2021 - Vulnerable and Outdated Components",
				Issue:    vuln.Description,
				Severity: probe.SeverityHigh,
			})
		}
	}
}

func (a *OWASPAssessment) calculateCompliance() {
	compliant := 0
	for _, cat := range owaspCategories {
		finding := a.Findings[cat.ID]
		if finding.Status == statusCompliant {
			compliant++
			a.Compliant = append(a.Compliant, cat.ID)
			continue
		}
		a.NonCompliant = append(a.NonCompliant, cat.ID)
		finding.Recommendations = categoryRecommendations(cat.ID)
	}
	a.ComplianceScore = compliant * 100 / len(owaspCategories)
}

func categoryRecommendations(categoryID string) []string {
	switch categoryID {
	case "A01:2021":
		return []string{
			"Implement proper access control headers (CORS, Referrer-Policy)",
			"Use principle of least privilege for all resources",
		}
	case "A02:2021":
		return []string{
			"Enable HTTPS with TLS 1.2+ on all pages",
			"Implement HSTS with long max-age",
			"Use strong cipher suites only",
		}
	case "A03:2021":
		return []string{
			"Implement strict Content-Security-Policy",
			"Use parameterized queries to prevent SQL injection",
			"Validate and sanitize all user inputs",
		}
	case "A04:2021":
		return []string{
			"Implement anti-clickjacking headers (X-Frame-Options, CSP frame-ancestors)",
			"Use secure-by-design principles in architecture",
		}
	case "A05:2021":
		return []string{
			"Remove server version disclosure from headers",
			"Implement all recommended security headers",
			"Use principle of least privilege in configurations",
		}
	case "A06:2021":
		return []string{
			"Keep all software components up-to-date",
			"Remove unused dependencies and features",
			"Monitor CVE databases for known vulnerabilities",
		}
	}
	return []string{}
}

func (a *OWASPAssessment) buildSummary() OWASPSummary {
	return OWASPSummary{
		OverallCompliance:     fmt.Sprintf("%d%%", a.ComplianceScore),
		CompliantCount:        len(a.Compliant),
		NonCompliantCount:     len(a.NonCompliant),
		CriticalFindingsCount: len(a.Critical),
		Verdict:               complianceVerdict(a.ComplianceScore),
		PriorityActions:       a.priorityActions(),
	}
}

func complianceVerdict(score int) string {
	switch {
	case score >= 90:
		return "EXCELLENT - Strong OWASP Top 10 compliance"
	case score >= 70:
		return "GOOD - Moderate compliance with room for improvement"
	case score >= 50:
		return "FAIR - Multiple OWASP categories need attention"
	default:
		return "POOR - Significant security gaps identified"
	}
}

// priorityActions lists the critical findings first, then the first issue
// of each non-compliant critical category, capped at five.
func (a *OWASPAssessment) priorityActions() []string {
	actions := []string{}

	critical := a.Critical
	if len(critical) > 3 {
		critical = critical[:3]
	}
	for _, finding := range critical {
		actions = append(actions, "[CRITICAL] "+finding.Issue)
	}

	for _, categoryID := range a.NonCompliant {
		if len(actions) >= 5 {
			break
		}
		finding := a.Findings[categoryID]
		if finding.Severity == probe.SeverityCritical && len(finding.IssuesFound) > 0 {
			actions = append(actions, fmt.Sprintf("[%s] %s", categoryID, finding.IssuesFound[0]))
		}
	}

	if len(actions) > 5 {
		actions = actions[:5]
	}
	return actions
}

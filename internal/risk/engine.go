package risk

import (
	"sort"
	"strings"
	"time"

	"github.com/khanhnv2901/webposture/internal/probe"
	"github.com/khanhnv2901/webposture/internal/shared/constants"
)

// Component weights for the overall risk score. Encryption carries the
// most, DNS posture the least.
const (
	weightHTTP = 0.30
	weightTLS  = 0.35
	weightDNS  = 0.15
	weightTech = 0.20
)

// Fallback risk points when a probe failed outright.
const (
	failedHTTPRisk = 100
	failedTLSRisk  = 100
	failedDNSRisk  = 50
	failedTechRisk = 50
)

// ComponentScore is the contribution of one probe to the overall verdict.
type ComponentScore struct {
	RiskPoints int     `json:"risk_points"`
	Weight     float64 `json:"weight"`
	Grade      string  `json:"grade"`
	Status     string  `json:"status"` // scanned or error
}

// Breakdown buckets individual findings by severity.
type Breakdown struct {
	Critical []string `json:"critical_issues"`
	High     []string `json:"high_issues"`
	Medium   []string `json:"medium_issues"`
	Low      []string `json:"low_issues"`
}

// TopRisk is one entry in the ranked list of the most serious findings.
type TopRisk struct {
	Rank     int    `json:"rank"`
	Severity string `json:"severity"`
	Category string `json:"category"`
	Issue    string `json:"issue"`
	Impact   string `json:"impact"`
	Fix      string `json:"fix"`
}

// IssueCounts tallies breakdown entries per severity.
type IssueCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Summary is the executive view of the verdict.
type Summary struct {
	SecurityPosture string      `json:"security_posture"`
	Description     string      `json:"description"`
	OverallGrade    string      `json:"overall_grade"`
	RiskScore       int         `json:"risk_score"`
	RiskLevel       string      `json:"risk_level"`
	TotalIssues     IssueCounts `json:"total_issues"`
	Recommendation  string      `json:"recommendation"`
}

// Verdict is the full weighted risk assessment over all probe results.
type Verdict struct {
	Timestamp       time.Time                 `json:"timestamp"`
	ComponentScores map[string]ComponentScore `json:"component_scores"`
	WeightedScore   int                       `json:"weighted_risk_score"`
	RiskLevel       string                    `json:"overall_risk_level"`
	Grade           string                    `json:"overall_grade"`
	Breakdown       Breakdown                 `json:"risk_breakdown"`
	TopRisks        []TopRisk                 `json:"top_risks"`
	Summary         Summary                   `json:"security_summary"`
}

// Score aggregates all probe outcomes into a weighted verdict. Failed
// probes contribute fixed fallback risk so an unreachable component never
// reads as safe.
func Score(bundle *probe.Bundle) *Verdict {
	httpRisk, httpGrade, httpStatus := failedHTTPRisk, "F", "error"
	if bundle.Headers.OK() {
		httpRisk, httpGrade, httpStatus = bundle.Headers.Report.RiskPoints, bundle.Headers.Report.Grade, "scanned"
	}

	tlsRisk, tlsGrade, tlsStatus := failedTLSRisk, "F", "error"
	if bundle.TLS.OK() {
		tlsRisk, tlsGrade, tlsStatus = bundle.TLS.Report.RiskPoints, bundle.TLS.Report.Grade, "scanned"
	}

	dnsRisk, dnsGrade, dnsStatus := failedDNSRisk, "F", "error"
	if bundle.DNS.OK() {
		dnsRisk, dnsGrade, dnsStatus = bundle.DNS.Report.RiskPoints, bundle.DNS.Report.Grade, "scanned"
	}

	techRisk, techGrade, techStatus := failedTechRisk, "F", "error"
	if bundle.Tech.OK() {
		techRisk, techGrade, techStatus = technologyRisk(bundle.Tech.Report), bundle.Tech.Report.Grade, "scanned"
	}

	weighted := float64(httpRisk)*weightHTTP +
		float64(tlsRisk)*weightTLS +
		float64(dnsRisk)*weightDNS +
		float64(techRisk)*weightTech
	score := int(weighted)

	v := &Verdict{
		Timestamp: time.Now().UTC(),
		ComponentScores: map[string]ComponentScore{
			"http_headers": {RiskPoints: httpRisk, Weight: weightHTTP, Grade: httpGrade, Status: httpStatus},
			"ssl_tls":      {RiskPoints: tlsRisk, Weight: weightTLS, Grade: tlsGrade, Status: tlsStatus},
			"dns_security": {RiskPoints: dnsRisk, Weight: weightDNS, Grade: dnsGrade, Status: dnsStatus},
			"technology":   {RiskPoints: techRisk, Weight: weightTech, Grade: techGrade, Status: techStatus},
		},
		WeightedScore: score,
		RiskLevel:     riskLevel(score),
		Grade:         riskGrade(score),
		Breakdown:     buildBreakdown(bundle),
		TopRisks:      topRisks(bundle),
	}
	v.Summary = buildSummary(v)
	return v
}

// technologyRisk derives risk points from the fingerprint. The tech probe
// grades itself but does not publish risk points, so they are computed here.
func technologyRisk(r *probe.TechReport) int {
	risk := 0
	if r.WebServerVer != "" {
		risk += 10
	}
	for _, vuln := range r.Vulnerabilities {
		switch vuln.Severity {
		case probe.SeverityHigh:
			risk += 15
		case probe.SeverityMedium:
			risk += 8
		case probe.SeverityLow:
			risk += 3
		}
	}
	if len(r.SecurityTech) == 0 {
		risk += 20
	}
	if risk > 100 {
		risk = 100
	}
	return risk
}

func riskLevel(score int) string {
	switch {
	case score >= 80:
		return "CRITICAL"
	case score >= 60:
		return "HIGH"
	case score >= 40:
		return "MEDIUM"
	case score >= 20:
		return "LOW"
	default:
		return "MINIMAL"
	}
}

func riskGrade(score int) string {
	switch {
	case score <= 10:
		return "A"
	case score <= 25:
		return "B"
	case score <= 45:
		return "C"
	case score <= 70:
		return "D"
	default:
		return "F"
	}
}

func buildBreakdown(bundle *probe.Bundle) Breakdown {
	b := Breakdown{
		Critical: []string{},
		High:     []string{},
		Medium:   []string{},
		Low:      []string{},
	}

	if bundle.Headers.OK() {
		for _, header := range missingHeadersBySeverity(bundle.Headers.Report, probe.SeverityCritical) {
			b.Critical = append(b.Critical, "Missing critical header: "+header)
		}
		for _, header := range missingHeadersBySeverity(bundle.Headers.Report, probe.SeverityHigh) {
			b.High = append(b.High, "Missing header: "+header)
		}
	}

	if bundle.TLS.OK() {
		for _, issue := range bundle.TLS.Report.Issues {
			lower := strings.ToLower(issue)
			switch {
			case strings.Contains(lower, "expired") || strings.Contains(lower, "weak"):
				b.Critical = append(b.Critical, "SSL/TLS: "+issue)
			case strings.Contains(lower, "hsts"):
				b.High = append(b.High, "SSL/TLS: "+issue)
			default:
				b.Medium = append(b.Medium, "SSL/TLS: "+issue)
			}
		}
	}

	if bundle.DNS.OK() {
		for _, issue := range bundle.DNS.Report.Issues {
			lower := strings.ToLower(issue)
			if strings.Contains(lower, "spf") || strings.Contains(lower, "dmarc") {
				b.High = append(b.High, "DNS: "+issue)
			} else {
				b.Medium = append(b.Medium, "DNS: "+issue)
			}
		}
	}

	if bundle.Tech.OK() {
		for _, vuln := range bundle.Tech.Report.Vulnerabilities {
			text := "Tech: " + vuln.Description
			switch vuln.Severity {
			case probe.SeverityHigh:
				b.High = append(b.High, text)
			case probe.SeverityMedium:
				b.Medium = append(b.Medium, text)
			default:
				b.Low = append(b.Low, text)
			}
		}
	}

	return b
}

// missingHeadersBySeverity lists absent headers of the given severity in
// stable order.
func missingHeadersBySeverity(r *probe.HeaderReport, severity string) []string {
	names := []string{}
	for name, status := range r.Analysis {
		if !status.Present && status.Severity == severity {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func topRisks(bundle *probe.Bundle) []TopRisk {
	risks := []TopRisk{}

	if bundle.TLS.OK() && !bundle.TLS.Report.HTTPSEnabled {
		risks = append(risks, TopRisk{
			Rank:     1,
			Severity: probe.SeverityCritical,
			Category: "Encryption",
			Issue:    "Website not using HTTPS",
			Impact:   "All data transmitted in plaintext",
			Fix:      "Enable HTTPS with valid SSL certificate",
		})
	}

	if bundle.TLS.OK() && bundle.TLS.Report.Certificate != nil && bundle.TLS.Report.Certificate.Expired {
		risks = append(risks, TopRisk{
			Rank:     2,
			Severity: probe.SeverityCritical,
			Category: "Certificate",
			Issue:    "SSL certificate expired",
			Impact:   "Site inaccessible, users see security warnings",
			Fix:      "Renew SSL certificate immediately",
		})
	}

	if bundle.Headers.OK() {
		if missing := missingHeadersBySeverity(bundle.Headers.Report, probe.SeverityCritical); len(missing) > 0 {
			if len(missing) > 2 {
				missing = missing[:2]
			}
			risks = append(risks, TopRisk{
				Rank:     3,
				Severity: probe.SeverityCritical,
				Category: "HTTP Headers",
				Issue:    "Missing critical security headers: " + strings.Join(missing, ", "),
				Impact:   "Vulnerable to XSS, clickjacking, and injection attacks",
				Fix:      "Implement recommended security headers",
			})
		}
	}

	if bundle.TLS.OK() {
		for _, issue := range bundle.TLS.Report.Issues {
			lower := strings.ToLower(issue)
			if strings.Contains(lower, "tls") || strings.Contains(lower, "cipher") {
				risks = append(risks, TopRisk{
					Rank:     4,
					Severity: probe.SeverityHigh,
					Category: "Encryption",
					Issue:    issue,
					Impact:   "Vulnerable to protocol-level attacks",
					Fix:      "Upgrade to TLS 1.2+ with strong ciphers",
				})
				break
			}
		}
	}

	if bundle.DNS.OK() {
		if !bundle.DNS.Report.SPF.Present || !bundle.DNS.Report.DMARC.Present {
			risks = append(risks, TopRisk{
				Rank:     5,
				Severity: probe.SeverityHigh,
				Category: "Email Security",
				Issue:    "Missing SPF/DMARC records",
				Impact:   "Domain can be spoofed in phishing emails",
				Fix:      "Configure SPF and DMARC DNS records",
			})
		}
	}

	sort.Slice(risks, func(i, j int) bool { return risks[i].Rank < risks[j].Rank })
	if len(risks) > constants.TopRiskLimit {
		risks = risks[:constants.TopRiskLimit]
	}
	return risks
}

func buildSummary(v *Verdict) Summary {
	score := v.WeightedScore

	var posture, description string
	switch {
	case score <= 10:
		posture = "EXCELLENT"
		description = "Strong security controls in place across all areas"
	case score <= 25:
		posture = "GOOD"
		description = "Solid security with minor improvements needed"
	case score <= 45:
		posture = "FAIR"
		description = "Moderate security gaps requiring attention"
	case score <= 70:
		posture = "POOR"
		description = "Significant security vulnerabilities identified"
	default:
		posture = "CRITICAL"
		description = "Major security risks requiring immediate action"
	}

	return Summary{
		SecurityPosture: posture,
		Description:     description,
		OverallGrade:    v.Grade,
		RiskScore:       score,
		RiskLevel:       v.RiskLevel,
		TotalIssues: IssueCounts{
			Critical: len(v.Breakdown.Critical),
			High:     len(v.Breakdown.High),
			Medium:   len(v.Breakdown.Medium),
			Low:      len(v.Breakdown.Low),
		},
		Recommendation: overallRecommendation(score),
	}
}

func overallRecommendation(score int) string {
	switch {
	case score <= 10:
		return "Maintain current security controls and monitor for new threats"
	case score <= 25:
		return "Address minor security gaps to achieve optimal security"
	case score <= 45:
		return "Prioritize implementing missing security controls"
	case score <= 70:
		return "Immediate action required to fix multiple security vulnerabilities"
	default:
		return "URGENT: Critical security issues require immediate remediation"
	}
}

package probe

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// HeaderSpec describes one security header and how its absence is weighted.
type HeaderSpec struct {
	Name        string
	Description string
	Recommended string
	Severity    string
	OWASP       string
}

// headerSpecs is the catalog of response headers the probe grades.
var headerSpecs = map[string]HeaderSpec{
	"Strict-Transport-Security": {
		Name:        "Strict-Transport-Security",
		Description: "Forces HTTPS connections and prevents protocol downgrade attacks",
		Recommended: "max-age=31536000; includeSubDomains; preload",
		Severity:    SeverityCritical,
		OWASP:       "A02:2021",
	},
	"Content-Security-Policy": {
		Name:        "Content-Security-Policy",
		Description: "Prevents XSS, clickjacking, and other code injection attacks",
		Recommended: "default-src 'self'; script-src 'self'; object-src 'none'",
		Severity:    SeverityCritical,
		OWASP:       "A03:2021",
	},
	"X-Frame-Options": {
		Name:        "X-Frame-Options",
		Description: "Prevents clickjacking by controlling iframe embedding",
		Recommended: "DENY or SAMEORIGIN",
		Severity:    SeverityHigh,
		OWASP:       "A04:2021",
	},
	"X-Content-Type-Options": {
		Name:        "X-Content-Type-Options",
		Description: "Prevents MIME-sniffing attacks",
		Recommended: "nosniff",
		Severity:    SeverityMedium,
		OWASP:       "A05:2021",
	},
	"Referrer-Policy": {
		Name:        "Referrer-Policy",
		Description: "Controls referrer information sent with requests",
		Recommended: "strict-origin-when-cross-origin or no-referrer",
		Severity:    SeverityMedium,
		OWASP:       "A01:2021",
	},
	"Permissions-Policy": {
		Name:        "Permissions-Policy",
		Description: "Controls browser features and APIs available to the page",
		Recommended: "geolocation=(), microphone=(), camera=()",
		Severity:    SeverityMedium,
		OWASP:       "A05:2021",
	},
	"X-XSS-Protection": {
		Name:        "X-XSS-Protection",
		Description: "Legacy XSS filter (deprecated but still widely used)",
		Recommended: "1; mode=block",
		Severity:    SeverityLow,
		OWASP:       "A03:2021",
	},
	"X-Permitted-Cross-Domain-Policies": {
		Name:        "X-Permitted-Cross-Domain-Policies",
		Description: "Controls cross-domain requests from Flash and PDF",
		Recommended: "none",
		Severity:    SeverityLow,
		OWASP:       "A05:2021",
	},
	"Cross-Origin-Embedder-Policy": {
		Name:        "Cross-Origin-Embedder-Policy",
		Description: "Controls loading of cross-origin resources",
		Recommended: "require-corp",
		Severity:    SeverityMedium,
		OWASP:       "A01:2021",
	},
	"Cross-Origin-Opener-Policy": {
		Name:        "Cross-Origin-Opener-Policy",
		Description: "Isolates browsing context to protect from cross-origin attacks",
		Recommended: "same-origin",
		Severity:    SeverityMedium,
		OWASP:       "A01:2021",
	},
	"Cross-Origin-Resource-Policy": {
		Name:        "Cross-Origin-Resource-Policy",
		Description: "Protects resources from being loaded by other origins",
		Recommended: "same-origin",
		Severity:    SeverityMedium,
		OWASP:       "A01:2021",
	},
	"Cache-Control": {
		Name:        "Cache-Control",
		Description: "Controls caching behavior (critical for sensitive data)",
		Recommended: "no-store, no-cache, must-revalidate (for sensitive pages)",
		Severity:    SeverityMedium,
		OWASP:       "A01:2021",
	},
	"Expect-CT": {
		Name:        "Expect-CT",
		Description: "Enforces Certificate Transparency requirements",
		Recommended: "max-age=86400, enforce",
		Severity:    SeverityLow,
		OWASP:       "A02:2021",
	},
	"Feature-Policy": {
		Name:        "Feature-Policy",
		Description: "Legacy version of Permissions-Policy",
		Recommended: "geolocation 'none'; microphone 'none'; camera 'none'",
		Severity:    SeverityLow,
		OWASP:       "A05:2021",
	},
	"X-Download-Options": {
		Name:        "X-Download-Options",
		Description: "Prevents IE from executing downloaded files in site context",
		Recommended: "noopen",
		Severity:    SeverityLow,
		OWASP:       "A05:2021",
	},
}

// missingHeaderRisk is the risk-point cost of an absent header per severity.
var missingHeaderRisk = map[string]int{
	SeverityCritical: 15,
	SeverityHigh:     10,
	SeverityMedium:   5,
	SeverityLow:      2,
}

// severityWeights drive the weighted overall header grade.
var severityWeights = map[string]float64{
	SeverityCritical: 4.0,
	SeverityHigh:     3.0,
	SeverityMedium:   2.0,
	SeverityLow:      1.0,
}

// HeaderStatus holds the per-header grading result.
type HeaderStatus struct {
	Present     bool   `json:"present"`
	Value       string `json:"value,omitempty"`
	Grade       string `json:"grade"`
	Score       int    `json:"score"`
	Feedback    string `json:"feedback"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Recommended string `json:"recommended_value"`
	OWASP       string `json:"owasp_category"`
}

// HeaderReport is the result of one header probe run.
type HeaderReport struct {
	URL             string                  `json:"url"`
	ScannedAt       time.Time               `json:"scan_timestamp"`
	StatusCode      int                     `json:"status_code"`
	FinalURL        string                  `json:"final_url"`
	Found           map[string]string       `json:"headers_found"`
	Missing         []string                `json:"headers_missing"`
	Analysis        map[string]HeaderStatus `json:"header_analysis"`
	Grade           string                  `json:"overall_grade"`
	Score           int                     `json:"overall_score"`
	RiskPoints      int                     `json:"risk_points"`
	Recommendations []Recommendation        `json:"recommendations"`
}

// HeaderProbe fetches a page with a plain GET and grades its security headers.
type HeaderProbe struct {
	Timeout   time.Duration
	UserAgent string
	Transport http.RoundTripper
}

func (p *HeaderProbe) client() *http.Client {
	return &http.Client{
		Timeout:   p.Timeout,
		Transport: p.Transport,
	}
}

func (p *HeaderProbe) userAgent() string {
	if p.UserAgent != "" {
		return p.UserAgent
	}
	return "webposture-scanner/1.0 (passive assessment)"
}

// Scan performs the header analysis against the target URL.
func (p *HeaderProbe) Scan(ctx context.Context, target *TargetInfo) (*HeaderReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.FullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent())

	resp, err := p.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	report := &HeaderReport{
		URL:        target.FullURL,
		ScannedAt:  time.Now().UTC(),
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		Found:      make(map[string]string),
		Missing:    []string{},
		Analysis:   make(map[string]HeaderStatus),
	}

	riskPoints := 0
	for name, spec := range headerSpecs {
		value := resp.Header.Get(name)
		present := value != ""

		grade, score, feedback := gradeHeader(name, value, present)
		report.Analysis[name] = HeaderStatus{
			Present:     present,
			Value:       value,
			Grade:       grade,
			Score:       score,
			Feedback:    feedback,
			Severity:    spec.Severity,
			Description: spec.Description,
			Recommended: spec.Recommended,
			OWASP:       spec.OWASP,
		}

		if present {
			report.Found[name] = value
		} else {
			report.Missing = append(report.Missing, name)
			riskPoints += missingHeaderRisk[spec.Severity]
		}
	}
	sort.Strings(report.Missing)

	if riskPoints > 100 {
		riskPoints = 100
	}
	report.RiskPoints = riskPoints
	report.Grade, report.Score = overallHeaderGrade(report.Analysis)
	report.Recommendations = headerRecommendations(report.Analysis)

	return report, nil
}

// gradeHeader grades a single header value. A missing header is graded by
// severity; a present header is graded by value quality.
func gradeHeader(name, value string, present bool) (grade string, score int, feedback string) {
	spec := headerSpecs[name]

	if !present {
		switch spec.Severity {
		case SeverityCritical:
			grade, score = "F", 0
		case SeverityHigh:
			grade, score = "D", 40
		case SeverityMedium:
			grade, score = "C", 60
		default:
			grade, score = "B", 70
		}
		return grade, score, fmt.Sprintf("Header missing. Severity: %s. %s", spec.Severity, spec.Description)
	}

	lower := strings.ToLower(value)

	switch name {
	case "Strict-Transport-Security":
		return gradeHSTS(lower)

	case "Content-Security-Policy":
		if !strings.Contains(lower, "default-src") && !strings.Contains(lower, "script-src") {
			return "D", 50, "CSP present but missing critical directives (default-src or script-src)"
		}
		if strings.Contains(lower, "'unsafe-inline'") || strings.Contains(lower, "'unsafe-eval'") {
			return "C", 65, "CSP present but uses unsafe directives that weaken protection"
		}
		return "A", 95, "Strong CSP configuration"

	case "X-Frame-Options":
		if lower == "deny" || lower == "sameorigin" {
			return "A", 100, "Perfect configuration: " + strings.ToUpper(lower)
		}
		return "C", 70, "X-Frame-Options present but value may not provide full protection"

	case "X-Content-Type-Options":
		if lower == "nosniff" {
			return "A", 100, "Perfect configuration"
		}
		return "C", 70, `Header present but incorrect value (should be "nosniff")`

	case "Referrer-Policy":
		switch lower {
		case "no-referrer", "strict-origin-when-cross-origin", "same-origin":
			return "A", 95, "Strong referrer policy"
		}
		return "B", 80, "Referrer policy present but consider stricter option"

	case "X-XSS-Protection":
		if strings.Contains(lower, "1") && strings.Contains(lower, "mode=block") {
			return "B", 80, "Configured correctly (though header is deprecated, CSP preferred)"
		}
		return "C", 60, "Present but not optimally configured"
	}

	if len(value) > 50 {
		value = value[:50]
	}
	return "B", 85, "Header present: " + value
}

func gradeHSTS(lower string) (string, int, string) {
	parts := strings.SplitN(lower, "max-age=", 2)
	if len(parts) != 2 {
		return "D", 40, "HSTS present but missing max-age directive"
	}

	raw := strings.TrimSpace(strings.SplitN(parts[1], ";", 2)[0])
	maxAge, err := strconv.Atoi(raw)
	if err != nil {
		return "D", 50, "HSTS present but invalid max-age value"
	}

	switch {
	case maxAge >= 31536000:
		if strings.Contains(lower, "includesubdomains") && strings.Contains(lower, "preload") {
			return "A", 100, "Perfect HSTS configuration with preload"
		}
		return "A", 95, "Strong HSTS configuration"
	case maxAge >= 15768000:
		return "B", 85, "Good HSTS but consider longer max-age (1 year recommended)"
	default:
		return "C", 70, "HSTS max-age too short, increase to at least 1 year"
	}
}

// overallHeaderGrade computes the severity-weighted grade across all headers.
func overallHeaderGrade(analysis map[string]HeaderStatus) (string, int) {
	totalScore := 0.0
	totalWeight := 0.0

	for name, status := range analysis {
		spec, ok := headerSpecs[name]
		if !ok {
			continue
		}
		weight := severityWeights[spec.Severity]
		totalScore += float64(status.Score) * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return "F", 0
	}
	score := int(totalScore / totalWeight)

	switch {
	case score >= 95:
		return "A", score
	case score >= 85:
		return "B", score
	case score >= 70:
		return "C", score
	case score >= 50:
		return "D", score
	default:
		return "F", score
	}
}

// headerRecommendations emits fixes for every header scoring under 90,
// ordered critical-first and capped at 10.
func headerRecommendations(analysis map[string]HeaderStatus) []Recommendation {
	recs := []Recommendation{}

	for _, severity := range []string{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow} {
		names := make([]string, 0, len(analysis))
		for name, status := range analysis {
			if status.Severity == severity && status.Score < 90 {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			status := analysis[name]
			recs = append(recs, Recommendation{
				Priority:         severity,
				Header:           name,
				Issue:            status.Feedback,
				Fix:              fmt.Sprintf("Add or improve '%s' header", name),
				RecommendedValue: status.Recommended,
				Impact:           status.Description,
			})
		}
	}

	if len(recs) > 10 {
		recs = recs[:10]
	}
	return recs
}

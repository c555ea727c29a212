package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/khanhnv2901/webposture/internal/shared/constants"
)

// TechVulnerability records an information-disclosure or outdated-software
// finding derived from the fingerprint.
type TechVulnerability struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Component   string `json:"component"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description"`
	Risk        string `json:"risk"`
}

// TechReport is the result of one technology probe run.
type TechReport struct {
	URL             string              `json:"url"`
	ScannedAt       time.Time           `json:"scan_timestamp"`
	WebServer       string              `json:"web_server,omitempty"`
	WebServerVer    string              `json:"web_server_version,omitempty"`
	Languages       []string            `json:"programming_language"`
	Frameworks      []string            `json:"frameworks"`
	CMS             string              `json:"content_management_system,omitempty"`
	JSLibraries     []string            `json:"javascript_libraries"`
	CDN             string              `json:"cdn,omitempty"`
	SecurityTech    []string            `json:"security_technologies"`
	Vulnerabilities []TechVulnerability `json:"vulnerabilities"`
	Grade           string              `json:"grade"`
	Recommendations []Recommendation    `json:"recommendations"`
}

type headerSignature struct {
	header  string
	pattern *regexp.Regexp
}

var serverSignatures = map[string]headerSignature{
	"Apache":     {"Server", regexp.MustCompile(`(?i)Apache`)},
	"Nginx":      {"Server", regexp.MustCompile(`(?i)nginx`)},
	"IIS":        {"Server", regexp.MustCompile(`(?i)Microsoft-IIS`)},
	"LiteSpeed":  {"Server", regexp.MustCompile(`(?i)LiteSpeed`)},
	"Cloudflare": {"Server", regexp.MustCompile(`(?i)cloudflare`)},
	"Express":    {"X-Powered-By", regexp.MustCompile(`(?i)Express`)},
	"Django":     {"Server", regexp.MustCompile(`(?i)WSGIServer`)},
	"Varnish":    {"Via", regexp.MustCompile(`(?i)varnish`)},
	"Akamai":     {"Server", regexp.MustCompile(`(?i)AkamaiGHost`)},
}

var cdnNames = map[string]bool{"Cloudflare": true, "Akamai": true, "Varnish": true}
var serverNames = map[string]bool{"Apache": true, "Nginx": true, "IIS": true, "LiteSpeed": true}

var htmlSignatures = map[string][]*regexp.Regexp{
	"React":     {regexp.MustCompile(`react`), regexp.MustCompile(`data-reactroot`), regexp.MustCompile(`__react`)},
	"Vue":       {regexp.MustCompile(`vue\.js`), regexp.MustCompile(`data-v-`), regexp.MustCompile(`__vue`)},
	"Angular":   {regexp.MustCompile(`ng-version`), regexp.MustCompile(`ng-app`), regexp.MustCompile(`angular\.js`)},
	"jQuery":    {regexp.MustCompile(`jquery`)},
	"Bootstrap": {regexp.MustCompile(`bootstrap`)},
	"WordPress": {regexp.MustCompile(`wp-content`), regexp.MustCompile(`wp-includes`), regexp.MustCompile(`wordpress`)},
	"Drupal":    {regexp.MustCompile(`drupal`), regexp.MustCompile(`/sites/default/`)},
	"Joomla":    {regexp.MustCompile(`joomla`), regexp.MustCompile(`/components/com_`)},
}

var cmsNames = map[string]bool{"WordPress": true, "Drupal": true, "Joomla": true}
var frontendFrameworks = map[string]bool{"React": true, "Vue": true, "Angular": true}

var (
	serverVersionRe = regexp.MustCompile(`^([A-Za-z0-9\-]+)(?:/([0-9.]+))?`)
	phpVersionRe    = regexp.MustCompile(`PHP/([0-9.]+)`)
	generatorRe     = regexp.MustCompile(`<meta\s+name=["']generator["']\s+content=["']([^"']+)["']`)
)

// securityHeaderTech are the response headers counted as deployed security
// technology for the fingerprint grade.
var securityHeaderTech = []string{
	"Strict-Transport-Security",
	"Content-Security-Policy",
	"X-Frame-Options",
	"X-Content-Type-Options",
}

// TechProbe fingerprints the stack from response headers and the first
// 50KB of HTML.
type TechProbe struct {
	Timeout   time.Duration
	UserAgent string
	Transport http.RoundTripper
}

func (p *TechProbe) userAgent() string {
	if p.UserAgent != "" {
		return p.UserAgent
	}
	return "webposture-scanner/1.0 (passive assessment)"
}

// Scan fingerprints the target technology stack.
func (p *TechProbe) Scan(ctx context.Context, target *TargetInfo) (*TechReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.FullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent())

	client := &http.Client{Timeout: p.Timeout, Transport: p.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	report := &TechReport{
		URL:          target.FullURL,
		ScannedAt:    time.Now().UTC(),
		Languages:    []string{},
		Frameworks:   []string{},
		JSLibraries:  []string{},
		SecurityTech: []string{},
	}

	p.detectFromHeaders(resp.Header, report)

	body, _ := io.ReadAll(io.LimitReader(resp.Body, constants.TechBodyLimitBytes))
	p.detectFromHTML(strings.ToLower(string(body)), report)

	report.Vulnerabilities = versionDisclosures(report)
	report.Recommendations = techRecommendations(report)
	report.Grade = techGrade(report)

	return report, nil
}

func (p *TechProbe) detectFromHeaders(headers http.Header, report *TechReport) {
	if server := headers.Get("Server"); server != "" {
		if m := serverVersionRe.FindStringSubmatch(server); m != nil {
			report.WebServer = m[1]
			report.WebServerVer = m[2]
		}
	}

	if poweredBy := headers.Get("X-Powered-By"); poweredBy != "" {
		if strings.Contains(poweredBy, "PHP") {
			lang := "PHP"
			if m := phpVersionRe.FindStringSubmatch(poweredBy); m != nil {
				lang += " " + m[1]
			}
			report.Languages = append(report.Languages, lang)
		}
		if strings.Contains(poweredBy, "ASP.NET") {
			report.Languages = append(report.Languages, "ASP.NET")
			report.Frameworks = append(report.Frameworks, "ASP.NET")
		}
	}

	for name, sig := range serverSignatures {
		value := headers.Get(sig.header)
		if value == "" || !sig.pattern.MatchString(value) {
			continue
		}
		switch {
		case serverNames[name]:
			if report.WebServer == "" {
				report.WebServer = name
			}
		case cdnNames[name]:
			report.CDN = name
		default:
			if !contains(report.Frameworks, name) {
				report.Frameworks = append(report.Frameworks, name)
			}
		}
	}

	for _, name := range securityHeaderTech {
		if headers.Get(name) != "" {
			report.SecurityTech = append(report.SecurityTech, name)
		}
	}
}

func (p *TechProbe) detectFromHTML(html string, report *TechReport) {
	for name, patterns := range htmlSignatures {
		for _, pattern := range patterns {
			if !pattern.MatchString(html) {
				continue
			}
			switch {
			case cmsNames[name]:
				report.CMS = name
			case frontendFrameworks[name]:
				if !contains(report.Frameworks, name) {
					report.Frameworks = append(report.Frameworks, name)
				}
			default:
				if !contains(report.JSLibraries, name) {
					report.JSLibraries = append(report.JSLibraries, name)
				}
			}
			break
		}
	}

	if m := generatorRe.FindStringSubmatch(html); m != nil {
		generator := m[1]
		if strings.Contains(generator, "wordpress") {
			report.CMS = "WordPress"
		} else if strings.Contains(generator, "drupal") {
			report.CMS = "Drupal"
		}
	}
}

func versionDisclosures(report *TechReport) []TechVulnerability {
	vulns := []TechVulnerability{}

	if report.WebServerVer != "" {
		vulns = append(vulns, TechVulnerability{
			Type:        "Information Disclosure",
			Severity:    SeverityLow,
			Component:   report.WebServer,
			Version:     report.WebServerVer,
			Description: fmt.Sprintf("Server version disclosed: %s/%s", report.WebServer, report.WebServerVer),
			Risk:        "Attackers can target known vulnerabilities for this specific version",
		})
	}

	for _, lang := range report.Languages {
		if !strings.ContainsAny(lang, "0123456789") {
			continue
		}
		vulns = append(vulns, TechVulnerability{
			Type:        "Information Disclosure",
			Severity:    SeverityLow,
			Component:   strings.Fields(lang)[0],
			Version:     lang,
			Description: "Programming language version disclosed: " + lang,
			Risk:        "Attackers can target version-specific vulnerabilities",
		})
		if strings.HasPrefix(lang, "PHP 5") {
			vulns = append(vulns, TechVulnerability{
				Type:        "Outdated Software",
				Severity:    SeverityHigh,
				Component:   "PHP",
				Version:     "5.x",
				Description: "PHP 5 is end-of-life and unsupported",
				Risk:        "No security patches available, highly vulnerable",
			})
		}
	}

	return vulns
}

func techRecommendations(report *TechReport) []Recommendation {
	recs := []Recommendation{}

	if report.WebServerVer != "" {
		recs = append(recs, Recommendation{
			Priority: SeverityMedium,
			Issue:    "Server version disclosure",
			Fix:      "Remove or mask server version in HTTP headers",
		})
	}

	for _, lang := range report.Languages {
		if strings.ContainsAny(lang, "0123456789") {
			recs = append(recs, Recommendation{
				Priority: SeverityMedium,
				Issue:    "Programming language version exposed",
				Fix:      "Remove X-Powered-By header",
			})
			break
		}
	}

	if len(report.SecurityTech) == 0 {
		recs = append(recs, Recommendation{
			Priority: SeverityHigh,
			Issue:    "No security headers detected",
			Fix:      "Implement security headers (HSTS, CSP, X-Frame-Options)",
		})
	}

	if report.CMS != "" {
		recs = append(recs, Recommendation{
			Priority: SeverityHigh,
			Issue:    "CMS detected: " + report.CMS,
			Fix:      "Keep CMS and plugins updated to latest versions",
		})
	}

	return recs
}

// techGrade scores the stack: version disclosure and missing security
// headers cost points, outdated components cost the most.
func techGrade(report *TechReport) string {
	score := 100

	if report.WebServerVer != "" {
		score -= 10
	}
	if len(report.Languages) > 0 {
		score -= 10
	}
	if len(report.SecurityTech) == 0 {
		score -= 20
	}
	for _, vuln := range report.Vulnerabilities {
		if vuln.Severity == SeverityHigh {
			score -= 15
		}
	}

	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

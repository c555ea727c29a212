package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CertInfo summarizes the leaf certificate presented during the handshake.
type CertInfo struct {
	CommonName      string    `json:"common_name"`
	Organization    string    `json:"organization"`
	Issuer          string    `json:"issuer"`
	ValidFrom       time.Time `json:"valid_from"`
	ValidUntil      time.Time `json:"valid_until"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
	Expired         bool      `json:"expired"`
	ExpiresSoon     bool      `json:"expires_soon"`
	SerialNumber    string    `json:"serial_number"`
	SubjectAltNames []string  `json:"subject_alt_names"`
}

// HSTSInfo holds the parsed Strict-Transport-Security header.
type HSTSInfo struct {
	Present           bool   `json:"present"`
	Value             string `json:"value,omitempty"`
	MaxAge            int    `json:"max_age,omitempty"`
	IncludeSubdomains bool   `json:"include_subdomains"`
	Preload           bool   `json:"preload"`
}

// TLSReport is the result of one TLS probe run.
type TLSReport struct {
	URL             string           `json:"url"`
	ScannedAt       time.Time        `json:"scan_timestamp"`
	HTTPSEnabled    bool             `json:"https_enabled"`
	CertValid       bool             `json:"valid_certificate"`
	Certificate     *CertInfo        `json:"certificate,omitempty"`
	Version         string           `json:"tls_version,omitempty"`
	CipherSuite     string           `json:"cipher_suite,omitempty"`
	HSTS            HSTSInfo         `json:"hsts"`
	Issues          []string         `json:"issues"`
	RiskPoints      int              `json:"risk_points"`
	Grade           string           `json:"grade"`
	Score           int              `json:"score"`
	Recommendations []Recommendation `json:"recommendations"`
}

// secureTLSVersions are the only protocol versions that add no risk.
var secureTLSVersions = map[string]bool{
	"TLS 1.2": true,
	"TLS 1.3": true,
}

// insecureTLSVersions are deprecated protocols.
var insecureTLSVersions = map[string]bool{
	"SSLv3":   true,
	"TLS 1.0": true,
	"TLS 1.1": true,
}

// TLSProbe performs a single TLS handshake and inspects the negotiated
// session and certificate chain. The Config hook lets tests trust a local
// certificate authority.
type TLSProbe struct {
	Timeout    time.Duration
	Config     *tls.Config
	HTTPClient *http.Client
}

func (p *TLSProbe) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return 10 * time.Second
}

// Scan inspects the TLS posture of the target. A plain-http target is not
// an error: it yields a failing report with HTTPSEnabled false so the
// scoring layer can weight the finding.
func (p *TLSProbe) Scan(ctx context.Context, target *TargetInfo) (*TLSReport, error) {
	report := &TLSReport{
		URL:       target.FullURL,
		ScannedAt: time.Now().UTC(),
		Issues:    []string{},
	}

	if !target.IsHTTPS() {
		report.HTTPSEnabled = false
		report.Issues = append(report.Issues, "Website does not use HTTPS encryption")
		report.RiskPoints = 100
		report.Grade = "F"
		report.Score = 0
		report.Recommendations = []Recommendation{{
			Priority: SeverityCritical,
			Issue:    "No HTTPS",
			Fix:      "Enable HTTPS with valid SSL certificate",
			Impact:   "All data transmitted in plaintext - highly vulnerable to interception",
		}}
		return report, nil
	}
	report.HTTPSEnabled = true

	riskPoints := 0
	if err := p.handshake(ctx, target, report, false); err != nil {
		// Retry without verification so an expired or mis-issued
		// certificate still yields protocol details.
		report.Issues = append(report.Issues, "Certificate validation failed: "+err.Error())
		riskPoints += 20
		if err := p.handshake(ctx, target, report, true); err != nil {
			return nil, fmt.Errorf("tls handshake: %w", err)
		}
	} else {
		report.CertValid = true
	}

	if cert := report.Certificate; cert != nil {
		if cert.Expired {
			report.Issues = append(report.Issues, "Certificate has expired")
			riskPoints += 20
		} else if cert.ExpiresSoon {
			report.Issues = append(report.Issues, fmt.Sprintf("Certificate expires soon (%d days)", cert.DaysUntilExpiry))
			riskPoints += 5
		}
	}

	if insecureTLSVersions[report.Version] {
		report.Issues = append(report.Issues, "Using insecure protocol: "+report.Version)
		riskPoints += 20
	} else if !secureTLSVersions[report.Version] {
		report.Issues = append(report.Issues, "TLS version not optimal: "+report.Version)
		riskPoints += 10
	}

	if cipher := report.CipherSuite; cipher != "" {
		if issue, points := assessCipher(cipher); points > 0 {
			report.Issues = append(report.Issues, issue)
			riskPoints += points
		}
	}

	report.HSTS = p.checkHSTS(ctx, target)
	if !report.HSTS.Present {
		report.Issues = append(report.Issues, "HSTS header not configured")
		riskPoints += 10
	}

	if riskPoints > 100 {
		riskPoints = 100
	}
	report.RiskPoints = riskPoints
	report.Score = 100 - riskPoints
	report.Grade = tlsGrade(report.Score)
	report.Recommendations = tlsRecommendations(report)

	return report, nil
}

// assessCipher flags negotiated cipher suites with known weaknesses.
// RC4, MD5-based, NULL, and triple-DES suites are broken outright; other
// CBC suites carry padding-oracle exposure.
func assessCipher(cipher string) (string, int) {
	switch {
	case strings.Contains(cipher, "RC4"), strings.Contains(cipher, "MD5"), strings.Contains(cipher, "NULL"),
		strings.Contains(cipher, "3DES"), strings.Contains(cipher, "DES-CBC3"):
		return "Weak cipher suite detected: " + cipher, 15
	case strings.Contains(cipher, "CBC"):
		return "CBC mode cipher (potential vulnerability): " + cipher, 5
	}
	return "", 0
}

// handshake dials the target and fills in certificate and session details.
func (p *TLSProbe) handshake(ctx context.Context, target *TargetInfo, report *TLSReport, insecure bool) error {
	cfg := &tls.Config{ServerName: target.Host}
	if p.Config != nil {
		cfg = p.Config.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = target.Host
		}
	}
	if insecure {
		cfg.InsecureSkipVerify = true
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: p.timeout()},
		Config:    cfg,
	}
	rawConn, err := dialer.DialContext(ctx, "tcp", target.HostPort())
	if err != nil {
		return err
	}
	defer rawConn.Close()

	state := rawConn.(*tls.Conn).ConnectionState()
	report.Version = tls.VersionName(state.Version)
	report.CipherSuite = tls.CipherSuiteName(state.CipherSuite)

	if len(state.PeerCertificates) > 0 {
		report.Certificate = describeCert(state.PeerCertificates[0])
	}
	return nil
}

func describeCert(cert *x509.Certificate) *CertInfo {
	now := time.Now().UTC()
	days := int(cert.NotAfter.Sub(now).Hours() / 24)

	org := ""
	if len(cert.Subject.Organization) > 0 {
		org = cert.Subject.Organization[0]
	}
	issuer := ""
	if len(cert.Issuer.Organization) > 0 {
		issuer = cert.Issuer.Organization[0]
	} else {
		issuer = cert.Issuer.CommonName
	}

	return &CertInfo{
		CommonName:      cert.Subject.CommonName,
		Organization:    org,
		Issuer:          issuer,
		ValidFrom:       cert.NotBefore,
		ValidUntil:      cert.NotAfter,
		DaysUntilExpiry: days,
		Expired:         days < 0,
		ExpiresSoon:     days >= 0 && days < 30,
		SerialNumber:    cert.SerialNumber.String(),
		SubjectAltNames: cert.DNSNames,
	}
}

// checkHSTS fetches the target once over HTTPS and parses the HSTS header.
func (p *TLSProbe) checkHSTS(ctx context.Context, target *TargetInfo) HSTSInfo {
	info := HSTSInfo{}

	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: p.timeout()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.FullURL, nil)
	if err != nil {
		return info
	}
	resp, err := client.Do(req)
	if err != nil {
		return info
	}
	defer resp.Body.Close()

	value := resp.Header.Get("Strict-Transport-Security")
	if value == "" {
		return info
	}

	info.Present = true
	info.Value = value
	lower := strings.ToLower(value)
	if parts := strings.SplitN(lower, "max-age=", 2); len(parts) == 2 {
		raw := strings.TrimSpace(strings.SplitN(parts[1], ";", 2)[0])
		if n, err := strconv.Atoi(raw); err == nil {
			info.MaxAge = n
		}
	}
	info.IncludeSubdomains = strings.Contains(lower, "includesubdomains")
	info.Preload = strings.Contains(lower, "preload")
	return info
}

func tlsGrade(score int) string {
	switch {
	case score >= 95:
		return "A"
	case score >= 85:
		return "B"
	case score >= 70:
		return "C"
	case score >= 50:
		return "D"
	default:
		return "F"
	}
}

func tlsRecommendations(report *TLSReport) []Recommendation {
	recs := []Recommendation{}

	if !report.CertValid {
		recs = append(recs, Recommendation{
			Priority: SeverityCritical,
			Issue:    "Invalid certificate",
			Fix:      "Install a valid SSL certificate from a trusted CA",
			Impact:   "Users will see security warnings, search engines penalize site",
		})
	}

	if cert := report.Certificate; cert != nil {
		if cert.Expired {
			recs = append(recs, Recommendation{
				Priority: SeverityCritical,
				Issue:    "Certificate expired",
				Fix:      "Renew SSL certificate immediately",
				Impact:   "Site is inaccessible to most users, major security risk",
			})
		} else if cert.ExpiresSoon {
			recs = append(recs, Recommendation{
				Priority: SeverityHigh,
				Issue:    fmt.Sprintf("Certificate expires in %d days", cert.DaysUntilExpiry),
				Fix:      "Renew certificate before expiration",
				Impact:   "Prevent service disruption",
			})
		}
	}

	if !secureTLSVersions[report.Version] {
		recs = append(recs, Recommendation{
			Priority: SeverityHigh,
			Issue:    "Using outdated TLS version: " + report.Version,
			Fix:      "Upgrade to TLS 1.2 or TLS 1.3",
			Impact:   "Vulnerable to protocol-level attacks",
		})
	}

	if !report.HSTS.Present {
		recs = append(recs, Recommendation{
			Priority: SeverityHigh,
			Issue:    "Missing HSTS header",
			Fix:      "Add Strict-Transport-Security header with max-age=31536000",
			Impact:   "Vulnerable to SSL stripping and downgrade attacks",
		})
	}

	if cipher := report.CipherSuite; strings.Contains(cipher, "RC4") || strings.Contains(cipher, "MD5") {
		recs = append(recs, Recommendation{
			Priority: SeverityCritical,
			Issue:    "Weak cipher suite: " + cipher,
			Fix:      "Disable weak ciphers, use only AES-GCM or ChaCha20",
			Impact:   "Encryption can be broken",
		})
	}

	return recs
}

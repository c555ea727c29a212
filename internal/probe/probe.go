package probe

import (
	"context"
	"time"
)

// Severity levels shared by all probe findings.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

// Recommendation is an actionable finding emitted by a probe.
type Recommendation struct {
	Priority         string `json:"priority"`
	Issue            string `json:"issue"`
	Fix              string `json:"fix"`
	Impact           string `json:"impact,omitempty"`
	Header           string `json:"header,omitempty"`
	RecommendedValue string `json:"recommended_value,omitempty"`
}

// HeaderProber inspects HTTP response headers.
type HeaderProber interface {
	Scan(ctx context.Context, target *TargetInfo) (*HeaderReport, error)
}

// TLSProber inspects TLS and certificate configuration.
type TLSProber interface {
	Scan(ctx context.Context, target *TargetInfo) (*TLSReport, error)
}

// DNSProber inspects DNS authentication records.
type DNSProber interface {
	Scan(ctx context.Context, target *TargetInfo) (*DNSReport, error)
}

// TechProber fingerprints the technology stack.
type TechProber interface {
	Scan(ctx context.Context, target *TargetInfo) (*TechReport, error)
}

// HeaderOutcome is the header probe slot in a Bundle. Exactly one of
// Report or Err is set.
type HeaderOutcome struct {
	Report *HeaderReport `json:"report,omitempty"`
	Err    string        `json:"error,omitempty"`
}

// OK reports whether the probe produced a usable report.
func (o HeaderOutcome) OK() bool { return o.Err == "" && o.Report != nil }

// TLSOutcome is the TLS probe slot in a Bundle.
type TLSOutcome struct {
	Report *TLSReport `json:"report,omitempty"`
	Err    string     `json:"error,omitempty"`
}

func (o TLSOutcome) OK() bool { return o.Err == "" && o.Report != nil }

// DNSOutcome is the DNS probe slot in a Bundle.
type DNSOutcome struct {
	Report *DNSReport `json:"report,omitempty"`
	Err    string     `json:"error,omitempty"`
}

func (o DNSOutcome) OK() bool { return o.Err == "" && o.Report != nil }

// TechOutcome is the technology probe slot in a Bundle.
type TechOutcome struct {
	Report *TechReport `json:"report,omitempty"`
	Err    string      `json:"error,omitempty"`
}

func (o TechOutcome) OK() bool { return o.Err == "" && o.Report != nil }

// Bundle collects the outcome of all four probes for one target. A failed
// probe leaves an error marker in its slot; it never invalidates the others.
type Bundle struct {
	Target    *TargetInfo   `json:"target"`
	ScannedAt time.Time     `json:"scanned_at"`
	Headers   HeaderOutcome `json:"http_headers"`
	TLS       TLSOutcome    `json:"ssl_tls"`
	DNS       DNSOutcome    `json:"dns_security"`
	Tech      TechOutcome   `json:"technologies"`
}

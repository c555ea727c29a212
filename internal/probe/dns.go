package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"golang.org/x/net/dns/dnsmessage"
)

// Record types the dnsmessage package has no named constants for.
const (
	typeCAA    = dnsmessage.Type(257)
	typeDNSKEY = dnsmessage.Type(48)
)

// SPFInfo holds the parsed SPF TXT record.
type SPFInfo struct {
	Present       bool     `json:"present"`
	Record        string   `json:"record,omitempty"`
	TooPermissive bool     `json:"too_permissive"`
	Mechanisms    []string `json:"mechanisms,omitempty"`
}

// DMARCInfo holds the parsed DMARC record.
type DMARCInfo struct {
	Present          bool   `json:"present"`
	Record           string `json:"record,omitempty"`
	Policy           string `json:"policy,omitempty"`
	SubdomainPolicy  string `json:"subdomain_policy,omitempty"`
	Percentage       string `json:"percentage,omitempty"`
	ReportingEnabled bool   `json:"reporting_enabled"`
}

// CAARecord is one Certificate Authority Authorization entry.
type CAARecord struct {
	Flag  uint8  `json:"flags"`
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// DNSSECInfo reports whether the zone publishes DNSKEY records.
type DNSSECInfo struct {
	Enabled bool   `json:"enabled"`
	Details string `json:"details,omitempty"`
}

// DNSReport is the result of one DNS probe run.
type DNSReport struct {
	Domain          string           `json:"domain"`
	ScannedAt       time.Time        `json:"scan_timestamp"`
	SPF             SPFInfo          `json:"spf"`
	DMARC           DMARCInfo        `json:"dmarc"`
	MXRecords       []string         `json:"mx_records"`
	CAARecords      []CAARecord      `json:"caa_records"`
	DNSSEC          DNSSECInfo       `json:"dnssec"`
	Issues          []string         `json:"issues"`
	RiskPoints      int              `json:"risk_points"`
	Grade           string           `json:"grade"`
	Score           int              `json:"score"`
	Recommendations []Recommendation `json:"recommendations"`
}

// queryFunc resolves record types the standard resolver does not expose
// (CAA, DNSKEY). Tests stub it.
type queryFunc func(ctx context.Context, name string, qtype dnsmessage.Type) ([]dnsmessage.Resource, error)

// DNSProbe performs passive DNS lookups for email-authentication and
// certificate-issuance records.
type DNSProbe struct {
	Timeout    time.Duration
	Resolver   *net.Resolver
	NameServer string // address for raw CAA/DNSKEY queries, host:port

	// Query overrides the raw record lookup. Nil means query NameServer
	// over UDP with a TCP retry on truncation.
	Query queryFunc
}

func (p *DNSProbe) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return 5 * time.Second
}

func (p *DNSProbe) resolver() *net.Resolver {
	if p.Resolver != nil {
		return p.Resolver
	}
	return &net.Resolver{PreferGo: true}
}

func (p *DNSProbe) nameServer() string {
	if p.NameServer != "" {
		return p.NameServer
	}
	return "1.1.1.1:53"
}

// Scan collects SPF, DMARC, MX, CAA, and DNSSEC posture for the target domain.
func (p *DNSProbe) Scan(ctx context.Context, target *TargetInfo) (*DNSReport, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	domain := target.Host
	report := &DNSReport{
		Domain:    domain,
		ScannedAt: time.Now().UTC(),
		MXRecords: []string{},
		Issues:    []string{},
	}

	// The domain must resolve at all before the record checks mean anything.
	if _, err := p.resolver().LookupHost(lookupCtx, domain); err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, fmt.Errorf("domain does not exist: %s", domain)
		}
		return nil, fmt.Errorf("dns lookup: %w", err)
	}

	report.SPF = p.checkSPF(lookupCtx, domain)
	report.DMARC = p.checkDMARC(lookupCtx, domain)
	report.MXRecords = p.checkMX(lookupCtx, domain)
	report.CAARecords = p.checkCAA(lookupCtx, domain)
	report.DNSSEC = p.checkDNSSEC(lookupCtx, domain)

	assessDNS(report)
	return report, nil
}

// assessDNS derives issues, risk points, grade, and recommendations from
// the collected records.
func assessDNS(report *DNSReport) {
	riskPoints := 0
	if !report.SPF.Present {
		report.Issues = append(report.Issues, "No SPF record configured")
		riskPoints += 8
	} else if report.SPF.TooPermissive {
		report.Issues = append(report.Issues, "SPF record too permissive (allows +all)")
		riskPoints += 12
	}

	if !report.DMARC.Present {
		report.Issues = append(report.Issues, "No DMARC record configured")
		riskPoints += 8
	} else if report.DMARC.Policy == "none" {
		report.Issues = append(report.Issues, "DMARC policy set to 'none' (monitoring only)")
		riskPoints += 5
	}

	if !report.DNSSEC.Enabled {
		report.Issues = append(report.Issues, "DNSSEC not enabled")
		riskPoints += 10
	}

	if len(report.CAARecords) == 0 {
		report.Issues = append(report.Issues, "No CAA record (Certificate Authority Authorization)")
		riskPoints += 4
	}

	if riskPoints > 100 {
		riskPoints = 100
	}
	report.RiskPoints = riskPoints
	report.Score = 100 - riskPoints
	report.Grade = dnsGrade(report.Score)
	report.Recommendations = dnsRecommendations(report)
}

func (p *DNSProbe) checkSPF(ctx context.Context, domain string) SPFInfo {
	records, err := p.resolver().LookupTXT(ctx, domain)
	if err != nil {
		return SPFInfo{}
	}
	return parseSPF(records)
}

func parseSPF(records []string) SPFInfo {
	info := SPFInfo{}
	for _, txt := range records {
		if !strings.HasPrefix(txt, "v=spf1") {
			continue
		}
		info.Present = true
		info.Record = txt
		info.TooPermissive = strings.Contains(txt, "+all") || strings.Contains(txt, "?all")
		fields := strings.Fields(txt)
		if len(fields) > 1 {
			info.Mechanisms = fields[1:]
		}
		break
	}
	return info
}

func (p *DNSProbe) checkDMARC(ctx context.Context, domain string) DMARCInfo {
	records, err := p.resolver().LookupTXT(ctx, "_dmarc."+domain)
	if err != nil {
		return DMARCInfo{}
	}
	return parseDMARC(records)
}

func parseDMARC(records []string) DMARCInfo {
	info := DMARCInfo{}
	for _, txt := range records {
		if !strings.HasPrefix(txt, "v=DMARC1") {
			continue
		}
		info.Present = true
		info.Record = txt

		tags := map[string]string{}
		for _, part := range strings.Split(txt, ";") {
			part = strings.TrimSpace(part)
			if k, v, ok := strings.Cut(part, "="); ok {
				tags[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}
		}
		info.Policy = tags["p"]
		info.SubdomainPolicy = tags["sp"]
		info.Percentage = tags["pct"]
		_, hasRUA := tags["rua"]
		_, hasRUF := tags["ruf"]
		info.ReportingEnabled = hasRUA || hasRUF
		break
	}
	return info
}

func (p *DNSProbe) checkMX(ctx context.Context, domain string) []string {
	hosts := []string{}
	records, err := p.resolver().LookupMX(ctx, domain)
	if err != nil {
		return hosts
	}
	for _, mx := range records {
		hosts = append(hosts, mx.Host)
	}
	return hosts
}

func (p *DNSProbe) checkCAA(ctx context.Context, domain string) []CAARecord {
	records := []CAARecord{}

	resources, err := p.rawQuery(ctx, domain, typeCAA)
	if err != nil {
		return records
	}

	for _, res := range resources {
		unknown, ok := res.Body.(*dnsmessage.UnknownResource)
		if !ok {
			continue
		}
		if rec, ok := parseCAA(unknown.Data); ok {
			records = append(records, rec)
		}
	}
	return records
}

func (p *DNSProbe) checkDNSSEC(ctx context.Context, domain string) DNSSECInfo {
	info := DNSSECInfo{}

	resources, err := p.rawQuery(ctx, domain, typeDNSKEY)
	if err != nil || len(resources) == 0 {
		return info
	}

	info.Enabled = true
	info.Details = fmt.Sprintf("Found %d DNSKEY records", len(resources))
	return info
}

// parseCAA decodes CAA RDATA: flag octet, tag length, tag, value.
func parseCAA(data []byte) (CAARecord, bool) {
	if len(data) < 2 {
		return CAARecord{}, false
	}
	flag := data[0]
	tagLen := int(data[1])
	if len(data) < 2+tagLen {
		return CAARecord{}, false
	}
	return CAARecord{
		Flag:  flag,
		Tag:   string(data[2 : 2+tagLen]),
		Value: string(data[2+tagLen:]),
	}, true
}

// rawQuery sends a DNS query for record types net.Resolver cannot ask for.
func (p *DNSProbe) rawQuery(ctx context.Context, name string, qtype dnsmessage.Type) ([]dnsmessage.Resource, error) {
	if p.Query != nil {
		return p.Query(ctx, name, qtype)
	}

	qname, err := dnsmessage.NewName(name + ".")
	if err != nil {
		return nil, err
	}

	msg := dnsmessage.Message{
		Header: dnsmessage.Header{
			ID:               uint16(time.Now().UnixNano() & 0xffff),
			RecursionDesired: true,
		},
		Questions: []dnsmessage.Question{{
			Name:  qname,
			Type:  qtype,
			Class: dnsmessage.ClassINET,
		}},
	}

	packed, err := msg.Pack()
	if err != nil {
		return nil, err
	}

	answers, truncated, err := p.exchange(ctx, "udp", packed, qtype)
	if err != nil {
		return nil, err
	}
	if truncated {
		// TCP framing needs a length prefix
		framed := append([]byte{byte(len(packed) >> 8), byte(len(packed))}, packed...)
		answers, _, err = p.exchange(ctx, "tcp", framed, qtype)
		if err != nil {
			return nil, err
		}
	}
	return answers, nil
}

func (p *DNSProbe) exchange(ctx context.Context, network string, query []byte, qtype dnsmessage.Type) ([]dnsmessage.Resource, bool, error) {
	dialer := &net.Dialer{Timeout: p.timeout()}
	conn, err := dialer.DialContext(ctx, network, p.nameServer())
	if err != nil {
		return nil, false, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(p.timeout()))
	}

	if _, err := conn.Write(query); err != nil {
		return nil, false, err
	}

	var raw []byte
	if network == "tcp" {
		prefix := make([]byte, 2)
		if _, err := io.ReadFull(conn, prefix); err != nil {
			return nil, false, err
		}
		size := int(prefix[0])<<8 | int(prefix[1])
		raw = make([]byte, size)
		if _, err := io.ReadFull(conn, raw); err != nil {
			return nil, false, err
		}
	} else {
		raw = make([]byte, 4096)
		n, err := conn.Read(raw)
		if err != nil {
			return nil, false, err
		}
		raw = raw[:n]
	}

	var resp dnsmessage.Message
	if err := resp.Unpack(raw); err != nil {
		return nil, false, err
	}
	if resp.Header.Truncated && network == "udp" {
		return nil, true, nil
	}

	answers := make([]dnsmessage.Resource, 0, len(resp.Answers))
	for _, ans := range resp.Answers {
		if ans.Header.Type == qtype {
			answers = append(answers, ans)
		}
	}
	return answers, false, nil
}

func dnsGrade(score int) string {
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

func dnsRecommendations(report *DNSReport) []Recommendation {
	recs := []Recommendation{}

	if !report.SPF.Present {
		recs = append(recs, Recommendation{
			Priority: SeverityHigh,
			Issue:    "No SPF record",
			Fix:      "Add SPF TXT record: 'v=spf1 mx -all'",
			Impact:   "Email spoofing protection missing",
		})
	} else if report.SPF.TooPermissive {
		recs = append(recs, Recommendation{
			Priority: SeverityHigh,
			Issue:    "SPF record too permissive",
			Fix:      "Change +all to -all or ~all",
			Impact:   "Attackers can send email claiming to be from your domain",
		})
	}

	if !report.DMARC.Present {
		recs = append(recs, Recommendation{
			Priority: SeverityHigh,
			Issue:    "No DMARC record",
			Fix:      "Add DMARC TXT record at _dmarc.yourdomain: 'v=DMARC1; p=quarantine'",
			Impact:   "No email authentication policy enforcement",
		})
	} else if report.DMARC.Policy == "none" {
		recs = append(recs, Recommendation{
			Priority: SeverityMedium,
			Issue:    "DMARC policy set to 'none'",
			Fix:      "Upgrade to p=quarantine or p=reject",
			Impact:   "Monitoring only - no enforcement of email authentication",
		})
	}

	if !report.DNSSEC.Enabled {
		recs = append(recs, Recommendation{
			Priority: SeverityMedium,
			Issue:    "DNSSEC not enabled",
			Fix:      "Enable DNSSEC at your domain registrar",
			Impact:   "Vulnerable to DNS spoofing and cache poisoning",
		})
	}

	if len(report.CAARecords) == 0 {
		recs = append(recs, Recommendation{
			Priority: SeverityLow,
			Issue:    "No CAA record",
			Fix:      "Add CAA record to specify authorized certificate authorities",
			Impact:   "Any CA can issue certificates for your domain",
		})
	}

	return recs
}

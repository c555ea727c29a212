package probe

import (
	"context"
	"testing"

	"golang.org/x/net/dns/dnsmessage"
)

func TestParseSPF(t *testing.T) {
	tests := []struct {
		name            string
		records         []string
		wantPresent     bool
		wantPermissive  bool
		wantMechanisms  int
	}{
		{
			name:           "strict policy",
			records:        []string{"v=spf1 mx include:_spf.example.com -all"},
			wantPresent:    true,
			wantMechanisms: 3,
		},
		{
			name:           "permissive plus all",
			records:        []string{"v=spf1 +all"},
			wantPresent:    true,
			wantPermissive: true,
			wantMechanisms: 1,
		},
		{
			name:           "permissive question all",
			records:        []string{"v=spf1 mx ?all"},
			wantPresent:    true,
			wantPermissive: true,
			wantMechanisms: 2,
		},
		{
			name:        "unrelated txt records",
			records:     []string{"google-site-verification=abc123", "some-other-record"},
			wantPresent: false,
		},
		{
			name:        "no records",
			records:     nil,
			wantPresent: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := parseSPF(tt.records)
			if info.Present != tt.wantPresent {
				t.Errorf("Present = %v, want %v", info.Present, tt.wantPresent)
			}
			if info.TooPermissive != tt.wantPermissive {
				t.Errorf("TooPermissive = %v, want %v", info.TooPermissive, tt.wantPermissive)
			}
			if len(info.Mechanisms) != tt.wantMechanisms {
				t.Errorf("Mechanisms = %v, want %d entries", info.Mechanisms, tt.wantMechanisms)
			}
		})
	}
}

func TestParseDMARC(t *testing.T) {
	info := parseDMARC([]string{"v=DMARC1; p=quarantine; sp=reject; pct=100; rua=mailto:dmarc@example.com"})

	if !info.Present {
		t.Fatal("expected DMARC present")
	}
	if info.Policy != "quarantine" {
		t.Errorf("Policy = %q, want quarantine", info.Policy)
	}
	if info.SubdomainPolicy != "reject" {
		t.Errorf("SubdomainPolicy = %q, want reject", info.SubdomainPolicy)
	}
	if info.Percentage != "100" {
		t.Errorf("Percentage = %q, want 100", info.Percentage)
	}
	if !info.ReportingEnabled {
		t.Error("expected reporting enabled with rua tag")
	}
}

func TestParseDMARC_NoneAndAbsent(t *testing.T) {
	info := parseDMARC([]string{"v=DMARC1; p=none"})
	if !info.Present || info.Policy != "none" {
		t.Errorf("expected present with policy none, got %+v", info)
	}
	if info.ReportingEnabled {
		t.Error("expected reporting disabled without rua/ruf")
	}

	if parseDMARC([]string{"v=spf1 -all"}).Present {
		t.Error("expected absent for non-DMARC record")
	}
}

func TestParseCAA(t *testing.T) {
	// flag 0, tag "issue", value "letsencrypt.org"
	data := append([]byte{0, 5}, []byte("issueletsencrypt.org")...)
	rec, ok := parseCAA(data)
	if !ok {
		t.Fatal("expected valid CAA record")
	}
	if rec.Tag != "issue" {
		t.Errorf("Tag = %q, want issue", rec.Tag)
	}
	if rec.Value != "letsencrypt.org" {
		t.Errorf("Value = %q, want letsencrypt.org", rec.Value)
	}

	if _, ok := parseCAA([]byte{0}); ok {
		t.Error("expected failure for truncated record")
	}
	if _, ok := parseCAA([]byte{0, 10, 'a'}); ok {
		t.Error("expected failure for tag length past end")
	}
}

func TestAssessDNS_RiskAccumulation(t *testing.T) {
	tests := []struct {
		name       string
		report     DNSReport
		wantRisk   int
		wantGrade  string
		wantIssues int
	}{
		{
			name: "everything configured",
			report: DNSReport{
				SPF:        SPFInfo{Present: true},
				DMARC:      DMARCInfo{Present: true, Policy: "reject"},
				DNSSEC:     DNSSECInfo{Enabled: true},
				CAARecords: []CAARecord{{Tag: "issue", Value: "letsencrypt.org"}},
			},
			wantRisk:  0,
			wantGrade: "A",
		},
		{
			name:       "nothing configured",
			report:     DNSReport{},
			wantRisk:   8 + 8 + 10 + 4,
			wantGrade:  "C",
			wantIssues: 4,
		},
		{
			name: "permissive spf and monitoring dmarc",
			report: DNSReport{
				SPF:        SPFInfo{Present: true, TooPermissive: true},
				DMARC:      DMARCInfo{Present: true, Policy: "none"},
				DNSSEC:     DNSSECInfo{Enabled: true},
				CAARecords: []CAARecord{{Tag: "issue"}},
			},
			wantRisk:   12 + 5,
			wantGrade:  "B",
			wantIssues: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := tt.report
			report.Issues = []string{}
			assessDNS(&report)

			if report.RiskPoints != tt.wantRisk {
				t.Errorf("RiskPoints = %d, want %d", report.RiskPoints, tt.wantRisk)
			}
			if report.Grade != tt.wantGrade {
				t.Errorf("Grade = %q, want %q (score %d)", report.Grade, tt.wantGrade, report.Score)
			}
			if tt.wantIssues > 0 && len(report.Issues) != tt.wantIssues {
				t.Errorf("Issues = %v, want %d entries", report.Issues, tt.wantIssues)
			}
		})
	}
}

func TestDNSProbe_CheckCAAAndDNSSEC(t *testing.T) {
	caaData := append([]byte{0, 5}, []byte("issueletsencrypt.org")...)
	probe := &DNSProbe{
		Query: func(ctx context.Context, name string, qtype dnsmessage.Type) ([]dnsmessage.Resource, error) {
			switch qtype {
			case typeCAA:
				return []dnsmessage.Resource{{
					Header: dnsmessage.ResourceHeader{Type: typeCAA},
					Body:   &dnsmessage.UnknownResource{Type: typeCAA, Data: caaData},
				}}, nil
			case typeDNSKEY:
				return []dnsmessage.Resource{
					{Header: dnsmessage.ResourceHeader{Type: typeDNSKEY}, Body: &dnsmessage.UnknownResource{Type: typeDNSKEY}},
					{Header: dnsmessage.ResourceHeader{Type: typeDNSKEY}, Body: &dnsmessage.UnknownResource{Type: typeDNSKEY}},
				}, nil
			}
			return nil, nil
		},
	}

	records := probe.checkCAA(context.Background(), "example.com")
	if len(records) != 1 {
		t.Fatalf("expected 1 CAA record, got %d", len(records))
	}
	if records[0].Tag != "issue" || records[0].Value != "letsencrypt.org" {
		t.Errorf("unexpected record: %+v", records[0])
	}

	dnssec := probe.checkDNSSEC(context.Background(), "example.com")
	if !dnssec.Enabled {
		t.Error("expected DNSSEC enabled with DNSKEY answers")
	}
	if dnssec.Details != "Found 2 DNSKEY records" {
		t.Errorf("Details = %q", dnssec.Details)
	}
}

func TestDNSGrade(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{100, "A"}, {90, "A"}, {89, "B"}, {80, "B"}, {79, "C"}, {70, "C"}, {69, "D"}, {60, "D"}, {59, "F"},
	}
	for _, tt := range tests {
		if got := dnsGrade(tt.score); got != tt.want {
			t.Errorf("dnsGrade(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

package safety

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	apperrors "github.com/khanhnv2901/webposture/internal/shared/errors"
)

// allowedTestDomains explicitly permit scanning. Matching is exact or by
// dot-suffix so "example.com.evil.com" cannot sneak through.
var allowedTestDomains = []string{
	"example.com",
	"example.org",
	"example.net",
	"localhost",
	"127.0.0.1",
	"scanme.nmap.org",
	"testphp.vulnweb.com",
}

// blockedTLDs cover government, military, and educational zones that
// require explicit authorization.
var blockedTLDs = []string{".gov", ".mil", ".edu"}

var domainFormatRe = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)

// TargetValidator decides whether a target URL may be scanned at all.
type TargetValidator struct {
	// LookupIP overrides DNS resolution for the private-address check.
	// Nil means net.DefaultResolver.
	LookupIP func(ctx context.Context, host string) ([]net.IP, error)
}

func (v *TargetValidator) lookupIP(ctx context.Context, host string) ([]net.IP, error) {
	if v.LookupIP != nil {
		return v.LookupIP(ctx, host)
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		ips = append(ips, addr.IP)
	}
	return ips, nil
}

// ValidateURL checks the URL format: scheme, host presence, and domain
// character set.
func (v *TargetValidator) ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return apperrors.ErrUnsupportedScheme
	}
	if parsed.Host == "" {
		return apperrors.ErrMissingHost
	}
	if !domainFormatRe.MatchString(parsed.Hostname()) {
		return apperrors.ErrInvalidDomain
	}
	return nil
}

// ValidateTarget enforces the target policy: allow-listed domains pass
// immediately, blocked TLDs are rejected, and everything else must resolve
// to a public address.
func (v *TargetValidator) ValidateTarget(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidURL, err)
	}
	domain := parsed.Hostname()

	if isAllowedTestDomain(domain) {
		return nil
	}

	for _, tld := range blockedTLDs {
		if strings.HasSuffix(domain, tld) {
			return fmt.Errorf("%w: %s", apperrors.ErrBlockedTLD, tld)
		}
	}

	ips, err := v.lookupIP(ctx, domain)
	if err != nil || len(ips) == 0 {
		return apperrors.ErrUnresolvableHost
	}
	for _, ip := range ips {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			return apperrors.ErrPrivateAddress
		}
	}
	return nil
}

// Attestations are the legal confirmations a caller supplies with a scan
// request.
type Attestations struct {
	Acknowledged     bool `json:"confirmed_permission"`
	OwnerConfirmed   bool `json:"owner_confirmation"`
	AcceptsLiability bool `json:"legal_responsibility"`
}

// ValidatePermission checks the attestations for the target. Allow-listed
// test domains need only the generic acknowledgement; every other target
// needs all three confirmations.
func (v *TargetValidator) ValidatePermission(rawURL string, att Attestations) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidURL, err)
	}
	domain := parsed.Hostname()

	if isAllowedTestDomain(domain) {
		if !att.Acknowledged {
			return fmt.Errorf("%w: you must acknowledge scanning terms even for test domains", apperrors.ErrPermissionRequired)
		}
		return nil
	}

	if !att.Acknowledged {
		return fmt.Errorf("%w: you must confirm you have permission to scan this website", apperrors.ErrPermissionRequired)
	}
	if !att.OwnerConfirmed {
		return fmt.Errorf("%w: you must confirm you own this website or have written permission", apperrors.ErrPermissionRequired)
	}
	if !att.AcceptsLiability {
		return fmt.Errorf("%w: you must accept legal responsibility for this scan", apperrors.ErrPermissionRequired)
	}
	return nil
}

func isAllowedTestDomain(domain string) bool {
	for _, allowed := range allowedTestDomains {
		if domain == allowed || strings.HasSuffix(domain, "."+allowed) {
			return true
		}
	}
	return false
}

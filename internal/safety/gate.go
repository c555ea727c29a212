package safety

import (
	"context"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/khanhnv2901/webposture/internal/shared/errors"
)

// RejectionKind classifies why a scan request was refused.
type RejectionKind string

const (
	RejectRateLimit  RejectionKind = "rate_limit"
	RejectInvalidURL RejectionKind = "invalid_url"
	RejectTarget     RejectionKind = "blocked_target"
	RejectPermission RejectionKind = "missing_permission"
)

// Rejection is a refused scan request. It wraps the underlying domain
// error so callers can test with errors.Is.
type Rejection struct {
	Kind       RejectionKind
	Err        error
	RetryAfter time.Duration // set for rate-limit rejections
}

func (r *Rejection) Error() string { return r.Err.Error() }
func (r *Rejection) Unwrap() error { return r.Err }

// Gate is the mandatory entry point for every scan request. It applies,
// in order, rate limiting, URL format validation, target policy, and
// legal attestations.
type Gate struct {
	Limiter *Cooldown
	Targets *TargetValidator
	Logger  *zap.Logger
}

// NewGate builds a Gate with default components.
func NewGate(logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		Limiter: NewCooldown(0),
		Targets: &TargetValidator{},
		Logger:  logger,
	}
}

// Authorize validates a scan request end to end. It returns nil when the
// scan may proceed, or a *Rejection describing the refusal. The rate-limit
// admission is recorded even when a later check refuses the request.
func (g *Gate) Authorize(ctx context.Context, rawURL, clientID string, att Attestations) *Rejection {
	if ok, remaining := g.Limiter.Admit(clientID); !ok {
		g.Logger.Warn("scan request rate limited",
			zap.String("client", clientID),
			zap.Duration("retry_after", remaining))
		return &Rejection{Kind: RejectRateLimit, Err: apperrors.ErrRateLimited, RetryAfter: remaining}
	}

	if err := g.Targets.ValidateURL(rawURL); err != nil {
		g.Logger.Warn("scan request rejected",
			zap.String("url", rawURL),
			zap.String("reason", "invalid_url"),
			zap.Error(err))
		return &Rejection{Kind: RejectInvalidURL, Err: err}
	}

	if err := g.Targets.ValidateTarget(ctx, rawURL); err != nil {
		g.Logger.Warn("scan request rejected",
			zap.String("url", rawURL),
			zap.String("reason", "blocked_target"),
			zap.Error(err))
		return &Rejection{Kind: RejectTarget, Err: err}
	}

	if err := g.Targets.ValidatePermission(rawURL, att); err != nil {
		g.Logger.Warn("scan request rejected",
			zap.String("url", rawURL),
			zap.String("reason", "missing_permission"),
			zap.Error(err))
		return &Rejection{Kind: RejectPermission, Err: err}
	}

	g.Logger.Info("scan request authorized",
		zap.String("url", rawURL),
		zap.String("client", clientID))
	return nil
}

// Confirmation is one checkbox the client must present before scanning.
type Confirmation struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Disclaimer is the legal notice served to clients before any scan.
type Disclaimer struct {
	Title                 string         `json:"title"`
	Warning               string         `json:"warning"`
	Terms                 []string       `json:"terms"`
	RequiredConfirmations []Confirmation `json:"required_confirmations"`
	RateLimiting          string         `json:"rate_limiting"`
	Scope                 string         `json:"scope"`
	Methods               string         `json:"methods"`
}

// LegalDisclaimer returns the notice that must be shown to users.
func LegalDisclaimer() Disclaimer {
	return Disclaimer{
		Title:   "LEGAL DISCLAIMER AND TERMS OF USE",
		Warning: "UNAUTHORIZED WEBSITE SCANNING MAY BE ILLEGAL",
		Terms: []string{
			"You MUST own the website you are scanning OR have explicit written permission from the owner",
			"Scanning websites without permission may violate the Computer Fraud and Abuse Act (CFAA) and similar laws",
			"This tool performs PASSIVE security checks only - no exploits or payloads",
			"You accept FULL LEGAL RESPONSIBILITY for any scans performed",
			"All scan activity is logged for legal protection and audit purposes",
			"Rate limiting (1 scan per 10 minutes per IP) is enforced",
			"Certain domains (.gov, .mil, .edu) are blocked without authorization",
		},
		RequiredConfirmations: []Confirmation{
			{ID: "owner_confirmation", Text: "I confirm I own this website or have written permission to scan it"},
			{ID: "legal_understanding", Text: "I understand scanning without permission may be illegal"},
			{ID: "legal_responsibility", Text: "I accept full legal responsibility for this scan"},
		},
		RateLimiting: "Maximum 1 scan per 10 minutes per IP address",
		Scope:        "Only HTTP/HTTPS standard ports (80, 443) - No port scanning",
		Methods:      "Passive checks only: HTTP headers, SSL handshake, public DNS records",
	}
}

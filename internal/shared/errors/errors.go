package errors

import "errors"

// Domain errors
var (
	// Safety gate errors
	ErrInvalidURL         = errors.New("invalid URL")
	ErrUnsupportedScheme  = errors.New("URL must use HTTP or HTTPS protocol")
	ErrMissingHost        = errors.New("invalid URL: missing domain")
	ErrInvalidDomain      = errors.New("invalid domain format")
	ErrBlockedTLD         = errors.New("scanning this top-level domain is prohibited without explicit authorization")
	ErrPrivateAddress     = errors.New("scanning private/internal IP addresses is prohibited")
	ErrUnresolvableHost   = errors.New("cannot resolve domain name")
	ErrPermissionRequired = errors.New("permission confirmation required")
	ErrRateLimited        = errors.New("rate limit exceeded")

	// Scan session errors
	ErrSessionNotFound = errors.New("scan session not found")
	ErrScanCancelled   = errors.New("scan cancelled")

	// Storage errors
	ErrScanNotFound = errors.New("scan record not found")
)

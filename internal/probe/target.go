package probe

import (
	"net/url"
	"strings"
)

// TargetInfo contains parsed target information
type TargetInfo struct {
	Original string // Original input string
	Scheme   string // http or https
	Host     string // Hostname without protocol, port, or path
	Port     string // Port if specified
	Path     string // Path if specified
	FullURL  string // Full normalized URL (for HTTP requests)
}

// IsHTTPS reports whether the target uses the https scheme.
func (t *TargetInfo) IsHTTPS() bool {
	return t.Scheme == "https"
}

// HostPort returns host:port for dialing, defaulting the port by scheme.
func (t *TargetInfo) HostPort() string {
	port := t.Port
	if port == "" {
		if t.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return t.Host + ":" + port
}

// ParseTarget parses a target string into structured components.
// This handles various input formats:
//   - example.com
//   - http://example.com
//   - https://example.com:8443/path
func ParseTarget(target string) *TargetInfo {
	info := &TargetInfo{
		Original: target,
	}

	parsed, err := url.Parse(target)

	// Missing or implausible scheme (bare "host:port" parses the host as a
	// scheme), so prepend https:// and parse again
	if err != nil || parsed.Scheme == "" || strings.Contains(parsed.Scheme, ".") || parsed.Host == "" {
		parsed, _ = url.Parse("https://" + target)
	}

	if parsed != nil {
		info.Scheme = parsed.Scheme
		info.Host = parsed.Hostname()
		info.Port = parsed.Port()
		info.Path = parsed.Path
		info.FullURL = parsed.String()
	}

	// Fallback for input url.Parse cannot handle at all
	if info.Host == "" {
		host := target
		host = strings.TrimPrefix(host, "http://")
		host = strings.TrimPrefix(host, "https://")
		host = strings.Split(host, "/")[0]
		parts := strings.Split(host, ":")
		info.Host = parts[0]
		if len(parts) > 1 {
			info.Port = parts[1]
		}
		if info.Scheme == "" {
			info.Scheme = "https"
		}
		info.FullURL = info.Scheme + "://" + host
	}

	return info
}

package constants

import (
	"io/fs"
	"time"
)

const (
	// ScanCooldown is the minimum interval between admitted scans from one client.
	ScanCooldown = 10 * time.Minute
	// ProbeTimeout bounds each individual probe invocation.
	ProbeTimeout = 30 * time.Second
	// ProgressRetention is how long finished progress records are kept before pruning.
	ProgressRetention = 24 * time.Hour
	// DefaultRemainingEstimate is reported while progress is still at 0%.
	DefaultRemainingEstimate = 50 * time.Second
)

const (
	// TechBodyLimitBytes caps how much of a response body the technology probe inspects.
	TechBodyLimitBytes = 50 * 1024
	// TopRiskLimit caps the ranked top-risks list in a verdict.
	TopRiskLimit = 5
)

const (
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

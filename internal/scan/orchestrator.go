package scan

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khanhnv2901/webposture/internal/probe"
	"github.com/khanhnv2901/webposture/internal/progress"
	"github.com/khanhnv2901/webposture/internal/shared/constants"
)

// Probes groups the four passive probes the orchestrator runs.
type Probes struct {
	Headers probe.HeaderProber
	TLS     probe.TLSProber
	DNS     probe.DNSProber
	Tech    probe.TechProber
}

// DefaultProbes returns production probe implementations.
func DefaultProbes() Probes {
	return Probes{
		Headers: &probe.HeaderProbe{Timeout: 10 * time.Second},
		TLS:     &probe.TLSProbe{Timeout: 10 * time.Second},
		DNS:     &probe.DNSProbe{Timeout: 5 * time.Second},
		Tech:    &probe.TechProbe{Timeout: 10 * time.Second},
	}
}

// Orchestrator runs all probes against one target and reports phase
// transitions to the progress tracker.
type Orchestrator struct {
	Probes  Probes
	Tracker *progress.Tracker
	Logger  *zap.Logger

	// ProbeTimeout bounds each probe individually. Zero means the default.
	ProbeTimeout time.Duration
}

func (o *Orchestrator) probeTimeout() time.Duration {
	if o.ProbeTimeout > 0 {
		return o.ProbeTimeout
	}
	return constants.ProbeTimeout
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

// Run executes the probes concurrently and collects their outcomes. A
// probe failure becomes an error marker in the bundle rather than failing
// the whole run; only cancellation aborts it.
func (o *Orchestrator) Run(ctx context.Context, progressID string, target *probe.TargetInfo) (*probe.Bundle, error) {
	bundle := &probe.Bundle{
		Target:    target,
		ScannedAt: time.Now().UTC(),
	}

	headersDone := make(chan struct{})
	tlsDone := make(chan struct{})
	dnsDone := make(chan struct{})
	techDone := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	g.Go(func() error {
		defer close(headersDone)
		report, err := o.runHeaders(gctx, target)
		bundle.Headers = probe.HeaderOutcome{Report: report, Err: errString(err)}
		return nil
	})
	g.Go(func() error {
		defer close(tlsDone)
		report, err := o.runTLS(gctx, target)
		bundle.TLS = probe.TLSOutcome{Report: report, Err: errString(err)}
		return nil
	})
	g.Go(func() error {
		defer close(dnsDone)
		report, err := o.runDNS(gctx, target)
		bundle.DNS = probe.DNSOutcome{Report: report, Err: errString(err)}
		return nil
	})
	g.Go(func() error {
		defer close(techDone)
		report, err := o.runTech(gctx, target)
		bundle.Tech = probe.TechOutcome{Report: report, Err: errString(err)}
		return nil
	})

	// Phase reporting follows the fixed pipeline order even though the
	// probes run concurrently.
	o.Tracker.Advance(progressID, 2, 0)
	if err := waitFor(ctx, headersDone); err != nil {
		_ = g.Wait()
		return nil, err
	}
	o.Tracker.Advance(progressID, 2, 3)

	o.Tracker.Advance(progressID, 3, 0)
	if err := waitFor(ctx, tlsDone); err != nil {
		_ = g.Wait()
		return nil, err
	}
	o.Tracker.Advance(progressID, 3, 2)

	o.Tracker.Advance(progressID, 4, 0)
	if err := waitFor(ctx, dnsDone); err != nil {
		_ = g.Wait()
		return nil, err
	}
	o.Tracker.Advance(progressID, 4, 4)

	o.Tracker.Advance(progressID, 5, 0)
	if err := waitFor(ctx, techDone); err != nil {
		_ = g.Wait()
		return nil, err
	}
	o.Tracker.Advance(progressID, 5, 3)

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bundle, ctx.Err()
}

func (o *Orchestrator) runHeaders(ctx context.Context, target *probe.TargetInfo) (report *probe.HeaderReport, err error) {
	defer recoverProbe("http_headers", &err, o.logger())
	probeCtx, cancel := context.WithTimeout(ctx, o.probeTimeout())
	defer cancel()
	return o.Probes.Headers.Scan(probeCtx, target)
}

func (o *Orchestrator) runTLS(ctx context.Context, target *probe.TargetInfo) (report *probe.TLSReport, err error) {
	defer recoverProbe("ssl_tls", &err, o.logger())
	probeCtx, cancel := context.WithTimeout(ctx, o.probeTimeout())
	defer cancel()
	return o.Probes.TLS.Scan(probeCtx, target)
}

func (o *Orchestrator) runDNS(ctx context.Context, target *probe.TargetInfo) (report *probe.DNSReport, err error) {
	defer recoverProbe("dns_security", &err, o.logger())
	probeCtx, cancel := context.WithTimeout(ctx, o.probeTimeout())
	defer cancel()
	return o.Probes.DNS.Scan(probeCtx, target)
}

func (o *Orchestrator) runTech(ctx context.Context, target *probe.TargetInfo) (report *probe.TechReport, err error) {
	defer recoverProbe("technologies", &err, o.logger())
	probeCtx, cancel := context.WithTimeout(ctx, o.probeTimeout())
	defer cancel()
	return o.Probes.Tech.Scan(probeCtx, target)
}

// recoverProbe converts a probe panic into an error so one broken probe
// cannot take down the scan.
func recoverProbe(name string, err *error, logger *zap.Logger) {
	if r := recover(); r != nil {
		logger.Error("probe panicked",
			zap.String("probe", name),
			zap.Any("panic", r))
		*err = fmt.Errorf("probe %s panicked: %v", name, r)
	}
}

func waitFor(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

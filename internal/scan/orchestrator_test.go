package scan

import (
	"context"
	"testing"
	"time"

	"github.com/khanhnv2901/webposture/internal/probe"
	"github.com/khanhnv2901/webposture/internal/progress"
)

func TestOrchestrator_RunCollectsAllOutcomes(t *testing.T) {
	tracker := progress.NewTracker(nil)
	id := tracker.Create("https://example.com")

	orch := &Orchestrator{Probes: healthyProbes(), Tracker: tracker}
	bundle, err := orch.Run(context.Background(), id, probe.ParseTarget("https://example.com"))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if !bundle.Headers.OK() || !bundle.TLS.OK() || !bundle.DNS.OK() || !bundle.Tech.OK() {
		t.Errorf("expected all probes to succeed: %+v", bundle)
	}

	snap, _ := tracker.Read(id)
	if snap.ProgressPercentage != 71 {
		t.Errorf("percentage = %d, want 71 after technology phase", snap.ProgressPercentage)
	}
	if snap.CurrentStep != "Detecting Technology Stack" {
		t.Errorf("CurrentStep = %q", snap.CurrentStep)
	}
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	tracker := progress.NewTracker(nil)
	id := tracker.Create("https://example.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	probes := healthyProbes()
	probes.Headers = &stubHeaderProbe{delay: time.Second}
	orch := &Orchestrator{Probes: probes, Tracker: tracker}

	if _, err := orch.Run(ctx, id, probe.ParseTarget("https://example.com")); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

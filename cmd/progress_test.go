package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/khanhnv2901/webposture/internal/progress"
)

func TestProgressPrinterLifecycle(t *testing.T) {
	snap := progress.Snapshot{
		CurrentStep:        "Analyzing SSL/TLS Configuration",
		ProgressPercentage: 45,
		TimeElapsed:        "00:12",
		EstimatedRemaining: "00:14",
	}

	printer := newProgressPrinter(func() (progress.Snapshot, error) {
		return snap, nil
	})

	output := captureStdout(t, func() {
		printer.Start()
		time.Sleep(350 * time.Millisecond) // allow ticker to tick at least once
		printer.Stop()
		time.Sleep(50 * time.Millisecond) // ensure loop goroutine exits
	})

	if !strings.Contains(output, "Analyzing SSL/TLS Configuration") {
		t.Fatalf("expected current step in output, got %q", output)
	}
	if !strings.Contains(output, "45%") {
		t.Fatalf("expected percentage in output, got %q", output)
	}
}

func TestProgressPrinterStopIdempotent(t *testing.T) {
	printer := newProgressPrinter(func() (progress.Snapshot, error) {
		return progress.Snapshot{}, nil
	})
	captureStdout(t, func() {
		printer.Start()
		printer.Stop()
		printer.Stop()
	})
}

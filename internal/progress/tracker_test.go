package progress

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/khanhnv2901/webposture/internal/shared/errors"
)

func TestTracker_Create(t *testing.T) {
	tr := NewTracker(nil)
	id := tr.Create("https://example.com")

	snap, err := tr.Read(id)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if snap.CurrentStep != "Validating URL and permissions" {
		t.Errorf("CurrentStep = %q", snap.CurrentStep)
	}
	if snap.ProgressPercentage != 0 {
		t.Errorf("ProgressPercentage = %d, want 0", snap.ProgressPercentage)
	}
	if snap.StepDetails.Current != "URL validation" {
		t.Errorf("StepDetails.Current = %q", snap.StepDetails.Current)
	}
	if snap.EstimatedRemaining != "00:50" {
		t.Errorf("EstimatedRemaining = %q, want 00:50", snap.EstimatedRemaining)
	}
}

func TestTracker_ReadUnknownSession(t *testing.T) {
	tr := NewTracker(nil)
	if _, err := tr.Read("missing"); !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Errorf("Read = %v, want ErrSessionNotFound", err)
	}
}

func TestTracker_AdvancePercentages(t *testing.T) {
	tests := []struct {
		phase, substep, want int
	}{
		{2, 0, 10},
		{2, 3, 20},
		{3, 0, 30},
		{3, 2, 40},
		{4, 0, 45},
		{4, 4, 57},
		{5, 0, 60},
		{5, 3, 71},
		{6, 0, 75},
		{7, 0, 90},
	}

	tr := NewTracker(nil)
	id := tr.Create("https://example.com")
	for _, tt := range tests {
		tr.Advance(id, tt.phase, tt.substep)
		snap, _ := tr.Read(id)
		if snap.ProgressPercentage != tt.want {
			t.Errorf("Advance(%d, %d): percentage = %d, want %d",
				tt.phase, tt.substep, snap.ProgressPercentage, tt.want)
		}
	}
}

func TestTracker_AdvanceNeverMovesBackwards(t *testing.T) {
	tr := NewTracker(nil)
	id := tr.Create("https://example.com")

	tr.Advance(id, 5, 0)
	tr.Advance(id, 2, 0)

	snap, _ := tr.Read(id)
	if snap.ProgressPercentage != 60 {
		t.Errorf("percentage = %d, want 60 after out-of-order update", snap.ProgressPercentage)
	}
}

func TestTracker_AdvanceStepDetails(t *testing.T) {
	tr := NewTracker(nil)
	id := tr.Create("https://example.com")

	tr.Advance(id, 4, 2)
	snap, _ := tr.Read(id)

	d := snap.StepDetails
	if len(d.Completed) != 2 || d.Completed[0] != "SPF check" {
		t.Errorf("Completed = %v", d.Completed)
	}
	if d.Current != "DKIM check" {
		t.Errorf("Current = %q", d.Current)
	}
	if len(d.Remaining) != 2 || d.Remaining[1] != "CAA check" {
		t.Errorf("Remaining = %v", d.Remaining)
	}
}

func TestTracker_Complete(t *testing.T) {
	tr := NewTracker(nil)
	id := tr.Create("https://example.com")

	tr.Complete(id)
	snap, _ := tr.Read(id)

	if !snap.IsComplete || snap.ProgressPercentage != 100 || snap.CurrentStep != "Complete" {
		t.Errorf("unexpected snapshot after Complete: %+v", snap)
	}
	if snap.EstimatedRemaining != "00:00" {
		t.Errorf("EstimatedRemaining = %q, want 00:00", snap.EstimatedRemaining)
	}

	// terminal sessions ignore further advances
	tr.Advance(id, 2, 0)
	snap, _ = tr.Read(id)
	if snap.ProgressPercentage != 100 {
		t.Error("Advance after Complete should be ignored")
	}
}

func TestTracker_CancelStopsUpdates(t *testing.T) {
	tr := NewTracker(nil)
	id := tr.Create("https://example.com")

	tr.Advance(id, 3, 0)
	if err := tr.Cancel(id); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if !tr.Cancelled(id) {
		t.Error("Cancelled should report true")
	}

	tr.Advance(id, 6, 0)
	snap, _ := tr.Read(id)
	if snap.ProgressPercentage != 30 {
		t.Errorf("percentage = %d, want 30 frozen at cancellation", snap.ProgressPercentage)
	}
	if !snap.IsCancelled {
		t.Error("snapshot should report cancellation")
	}

	if err := tr.Cancel("missing"); !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Errorf("Cancel(missing) = %v, want ErrSessionNotFound", err)
	}
}

func TestTracker_Fail(t *testing.T) {
	tr := NewTracker(nil)
	id := tr.Create("https://example.com")

	tr.Fail(id, "connection refused")
	snap, _ := tr.Read(id)

	if !snap.HasError || snap.ErrorMessage != "connection refused" {
		t.Errorf("unexpected snapshot after Fail: %+v", snap)
	}
}

func TestTracker_TerminalStatesFreeze(t *testing.T) {
	tr := NewTracker(nil)

	// A failed session ignores later advances and completion.
	failed := tr.Create("https://example.com")
	tr.Advance(failed, 3, 0)
	tr.Fail(failed, "connection refused")
	tr.Advance(failed, 6, 0)
	tr.Complete(failed)
	snap, _ := tr.Read(failed)
	if snap.ProgressPercentage != 30 {
		t.Errorf("percentage = %d, want 30 frozen at failure", snap.ProgressPercentage)
	}
	if !snap.HasError || snap.ErrorMessage != "connection refused" {
		t.Errorf("failure state lost: %+v", snap)
	}
	if snap.IsComplete {
		t.Error("Complete after Fail should be ignored")
	}

	// A cancelled session stays cancelled even if completion lands after.
	cancelled := tr.Create("https://example.com")
	tr.Advance(cancelled, 5, 0)
	if err := tr.Cancel(cancelled); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	tr.Complete(cancelled)
	tr.Fail(cancelled, "late failure")
	snap, _ = tr.Read(cancelled)
	if !snap.IsCancelled || snap.IsComplete || snap.HasError {
		t.Errorf("cancelled session mutated: %+v", snap)
	}
	if snap.ProgressPercentage != 60 {
		t.Errorf("percentage = %d, want 60 frozen at cancellation", snap.ProgressPercentage)
	}

	// A completed session cannot be failed or cancelled afterwards.
	completed := tr.Create("https://example.com")
	tr.Complete(completed)
	tr.Fail(completed, "too late")
	if err := tr.Cancel(completed); err != nil {
		t.Errorf("Cancel of finished session = %v, want nil", err)
	}
	snap, _ = tr.Read(completed)
	if !snap.IsComplete || snap.HasError || snap.IsCancelled {
		t.Errorf("completed session mutated: %+v", snap)
	}
}

func TestTracker_RepeatedTerminalCallsAreIdempotent(t *testing.T) {
	tr := NewTracker(nil)

	id := tr.Create("https://example.com")
	tr.Complete(id)
	tr.Complete(id)
	snap, _ := tr.Read(id)
	if !snap.IsComplete || snap.ProgressPercentage != 100 {
		t.Errorf("double Complete changed state: %+v", snap)
	}

	other := tr.Create("https://example.com")
	if err := tr.Cancel(other); err != nil {
		t.Fatalf("first Cancel returned error: %v", err)
	}
	if err := tr.Cancel(other); err != nil {
		t.Errorf("second Cancel = %v, want nil", err)
	}
	snap, _ = tr.Read(other)
	if !snap.IsCancelled {
		t.Errorf("double Cancel lost cancellation: %+v", snap)
	}
}

func TestTracker_EstimateAndClock(t *testing.T) {
	now := time.Now()
	tr := NewTracker(nil)
	tr.now = func() time.Time { return now }

	id := tr.Create("https://example.com")
	now = now.Add(15 * time.Second)
	tr.Advance(id, 3, 0) // 30%

	snap, _ := tr.Read(id)
	if snap.TimeElapsed != "00:15" {
		t.Errorf("TimeElapsed = %q, want 00:15", snap.TimeElapsed)
	}
	// 15s for 30% extrapolates to 50s total, 35s left
	if snap.EstimatedRemaining != "00:35" {
		t.Errorf("EstimatedRemaining = %q, want 00:35", snap.EstimatedRemaining)
	}
}

func TestTracker_Cleanup(t *testing.T) {
	now := time.Now()
	tr := NewTracker(nil)
	tr.now = func() time.Time { return now }

	old := tr.Create("https://old.example.com")
	now = now.Add(25 * time.Hour)
	fresh := tr.Create("https://fresh.example.com")

	if removed := tr.Cleanup(24 * time.Hour); removed != 1 {
		t.Errorf("Cleanup removed %d sessions, want 1", removed)
	}
	if _, err := tr.Read(old); !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Error("old session should be gone")
	}
	if _, err := tr.Read(fresh); err != nil {
		t.Error("fresh session should survive")
	}
}

type captureSink struct {
	snaps []Snapshot
}

func (c *captureSink) RecordProgress(snap Snapshot) error {
	c.snaps = append(c.snaps, snap)
	return nil
}

func TestTracker_SinkWriteThrough(t *testing.T) {
	sink := &captureSink{}
	tr := NewTracker(sink)

	id := tr.Create("https://example.com")
	tr.Advance(id, 2, 0)
	tr.Complete(id)

	if len(sink.snaps) != 3 {
		t.Fatalf("sink received %d snapshots, want 3", len(sink.snaps))
	}
	last := sink.snaps[len(sink.snaps)-1]
	if !last.IsComplete || last.ScanID != id {
		t.Errorf("unexpected final snapshot: %+v", last)
	}
}

package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khanhnv2901/webposture/internal/shared/constants"
	apperrors "github.com/khanhnv2901/webposture/internal/shared/errors"
)

// StepDetails lists the substeps around the current position in a phase.
type StepDetails struct {
	Completed []string `json:"completed"`
	Current   string   `json:"current,omitempty"`
	Remaining []string `json:"remaining"`
}

// Snapshot is the externally visible state of one scan session.
type Snapshot struct {
	ScanID             string       `json:"scan_id"`
	URL                string       `json:"url"`
	CurrentStep        string       `json:"current_step"`
	ProgressPercentage int          `json:"progress_percentage"`
	StepDetails        *StepDetails `json:"step_details,omitempty"`
	TimeElapsed        string       `json:"time_elapsed"`
	EstimatedRemaining string       `json:"estimated_remaining"`
	IsComplete         bool         `json:"is_complete"`
	HasError           bool         `json:"has_error"`
	ErrorMessage       string       `json:"error_message,omitempty"`
	IsCancelled        bool         `json:"is_cancelled"`
}

// Sink receives a write-through copy of every state change, typically for
// persistence.
type Sink interface {
	RecordProgress(snap Snapshot) error
}

type session struct {
	url               string
	currentStep       string
	percentage        int
	details           StepDetails
	startTime         time.Time
	lastUpdate        time.Time
	remainingEstimate time.Duration
	complete          bool
	cancelled         bool
	failed            bool
	errMessage        string
}

// terminal reports whether the session reached a final state. Terminal
// sessions freeze: no later call may change them.
func (s *session) terminal() bool {
	return s.complete || s.cancelled || s.failed
}

// Tracker maintains per-scan progress sessions in memory.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*session

	sink Sink
	now  func() time.Time // test hook
}

// NewTracker returns an empty Tracker. sink may be nil.
func NewTracker(sink Sink) *Tracker {
	return &Tracker{
		sessions: make(map[string]*session),
		sink:     sink,
		now:      time.Now,
	}
}

// Create registers a new scan session and returns its identifier.
func (t *Tracker) Create(url string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := uuid.NewString()
	first := Phases[0]
	now := t.now()
	t.sessions[id] = &session{
		url:         url,
		currentStep: first.Name,
		details: StepDetails{
			Completed: []string{},
			Current:   first.Substeps[0],
			Remaining: first.Substeps[1:],
		},
		startTime:         now,
		lastUpdate:        now,
		remainingEstimate: constants.DefaultRemainingEstimate,
	}
	t.emit(id)
	return id
}

// Advance moves a session to the given phase and substep. Updates on
// terminal sessions are ignored.
func (t *Tracker) Advance(id string, phaseNumber, substep int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok || s.terminal() {
		return
	}
	spec := phase(phaseNumber)
	if spec == nil {
		return
	}

	pct := spec.percentage(substep)
	// progress never moves backwards
	if pct < s.percentage {
		pct = s.percentage
	}

	details := StepDetails{Completed: []string{}, Remaining: []string{}}
	if substep < len(spec.Substeps) {
		details.Completed = spec.Substeps[:substep]
		details.Current = spec.Substeps[substep]
		if substep < len(spec.Substeps)-1 {
			details.Remaining = spec.Substeps[substep+1:]
		}
	} else {
		details.Completed = spec.Substeps
	}

	now := t.now()
	s.currentStep = spec.Name
	s.percentage = pct
	s.details = details
	s.lastUpdate = now
	s.remainingEstimate = estimateRemaining(now.Sub(s.startTime), pct)
	t.emit(id)
}

// Complete marks the session finished at 100%. A session already in a
// terminal state is left unchanged.
func (t *Tracker) Complete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok || s.terminal() {
		return
	}
	s.currentStep = "Complete"
	s.percentage = 100
	s.complete = true
	s.lastUpdate = t.now()
	s.remainingEstimate = 0
	t.emit(id)
}

// Fail records a terminal error on the session. A session already in a
// terminal state is left unchanged.
func (t *Tracker) Fail(id, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok || s.terminal() {
		return
	}
	s.failed = true
	s.errMessage = message
	s.lastUpdate = t.now()
	t.emit(id)
}

// Cancel marks the session cancelled. Cancelling a session that already
// reached a terminal state acknowledges without changing it.
func (t *Tracker) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	if s.terminal() {
		return nil
	}
	s.cancelled = true
	s.lastUpdate = t.now()
	t.emit(id)
	return nil
}

// Cancelled reports whether the session has been cancelled.
func (t *Tracker) Cancelled(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[id]
	return ok && s.cancelled
}

// Read returns the current snapshot for a session.
func (t *Tracker) Read(id string) (Snapshot, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[id]
	if !ok {
		return Snapshot{}, apperrors.ErrSessionNotFound
	}
	return t.snapshot(id, s), nil
}

// Cleanup drops sessions older than the retention cutoff and returns how
// many were removed.
func (t *Tracker) Cleanup(retention time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if retention <= 0 {
		retention = constants.ProgressRetention
	}
	cutoff := t.now().Add(-retention)
	removed := 0
	for id, s := range t.sessions {
		if s.startTime.Before(cutoff) {
			delete(t.sessions, id)
			removed++
		}
	}
	return removed
}

// snapshot builds the external view. Callers hold at least a read lock.
func (t *Tracker) snapshot(id string, s *session) Snapshot {
	details := s.details
	return Snapshot{
		ScanID:             id,
		URL:                s.url,
		CurrentStep:        s.currentStep,
		ProgressPercentage: s.percentage,
		StepDetails:        &details,
		TimeElapsed:        formatClock(t.now().Sub(s.startTime)),
		EstimatedRemaining: formatClock(s.remainingEstimate),
		IsComplete:         s.complete,
		HasError:           s.failed,
		ErrorMessage:       s.errMessage,
		IsCancelled:        s.cancelled,
	}
}

// emit pushes the current state to the sink. Callers hold the write lock.
func (t *Tracker) emit(id string) {
	if t.sink == nil {
		return
	}
	// sink failures only affect persistence, not the in-memory state
	_ = t.sink.RecordProgress(t.snapshot(id, t.sessions[id]))
}

// estimateRemaining extrapolates total duration from elapsed time and the
// fraction done.
func estimateRemaining(elapsed time.Duration, pct int) time.Duration {
	if pct <= 0 {
		return constants.DefaultRemainingEstimate
	}
	total := elapsed * 100 / time.Duration(pct)
	if total < elapsed {
		return 0
	}
	return total - elapsed
}

// formatClock renders a duration as MM:SS.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

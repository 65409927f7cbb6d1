package provision

import (
	"sync"
	"time"
)

// Stage represents a provisioning stage.
type Stage string

const (
	StagePreflight Stage = "preflight"
	StageFetch     Stage = "fetch"
	StageUnpack    Stage = "unpack"
	StageCustomize Stage = "customize"
	StageRegister  Stage = "register"
	StageCleanup   Stage = "cleanup"
	StageSkipped   Stage = "skipped"
	StageComplete  Stage = "complete"
	StageError     Stage = "error"
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// DisplayName returns a human-readable name for the stage.
func (s Stage) DisplayName() string {
	switch s {
	case StagePreflight:
		return "Preflight"
	case StageFetch:
		return "Downloading"
	case StageUnpack:
		return "Unpacking"
	case StageCustomize:
		return "Customizing"
	case StageRegister:
		return "Registering"
	case StageCleanup:
		return "Cleaning Up"
	case StageSkipped:
		return "Skipped"
	case StageComplete:
		return "Complete"
	case StageError:
		return "Error"
	default:
		return string(s)
	}
}

// ProgressEvent represents a provisioning progress update.
type ProgressEvent struct {
	VMID       int
	Name       string
	Stage      Stage
	Message    string // Human-readable message
	Detail     string // Op or command being applied
	Downloaded int64  // Bytes fetched so far, only for StageFetch
	Total      int64  // Expected bytes, -1 when unknown
	IsError    bool
	Timestamp  time.Time
}

// ProgressCallback is called with progress updates during a run.
// Calls are serialized by the provisioner.
type ProgressCallback func(ProgressEvent)

// NoOpProgress is a progress callback that does nothing.
func NoOpProgress(_ ProgressEvent) {}

// ProgressTracker collects progress events for later review.
type ProgressTracker struct {
	mu     sync.Mutex
	events []ProgressEvent
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		events: make([]ProgressEvent, 0),
	}
}

// Callback returns a ProgressCallback that records events.
func (t *ProgressTracker) Callback() ProgressCallback {
	return func(e ProgressEvent) {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.events = append(t.events, e)
	}
}

// Events returns all recorded events.
func (t *ProgressTracker) Events() []ProgressEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ProgressEvent(nil), t.events...)
}

// Stages returns the stage of every recorded event, skipping repeated
// download progress updates.
func (t *ProgressTracker) Stages() []Stage {
	var stages []Stage
	for _, e := range t.Events() {
		if e.Stage == StageFetch && e.Downloaded > 0 {
			continue
		}
		stages = append(stages, e.Stage)
	}
	return stages
}

// LastEvent returns the most recent event, or nil if none.
func (t *ProgressTracker) LastEvent() *ProgressEvent {
	events := t.Events()
	if len(events) == 0 {
		return nil
	}
	return &events[len(events)-1]
}

// HasErrors returns true if any error events were recorded.
func (t *ProgressTracker) HasErrors() bool {
	return len(t.Errors()) > 0
}

// Errors returns all error events.
func (t *ProgressTracker) Errors() []ProgressEvent {
	var errs []ProgressEvent
	for _, e := range t.Events() {
		if e.IsError {
			errs = append(errs, e)
		}
	}
	return errs
}

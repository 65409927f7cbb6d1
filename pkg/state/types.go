// Package state keeps a persistent history of provisioning runs.
package state

import (
	"time"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/provision"
)

// Version is the current history schema version.
const Version = "1.0"

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// History is the on-disk list of runs, oldest first.
type History struct {
	Version string `json:"version"`
	Runs    []Run  `json:"runs"`
}

// Run records one invocation of the provisioner.
type Run struct {
	ID        string        `json:"id"`
	Manifest  string        `json:"manifest"`
	Storage   string        `json:"storage"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Templates []TemplateRun `json:"templates"`
}

// TemplateRun records what happened to one template during a run.
type TemplateRun struct {
	VMID     int           `json:"vmid"`
	Name     string        `json:"name"`
	Outcome  string        `json:"outcome"`
	Step     string        `json:"step,omitempty"`
	Bytes    int64         `json:"bytes,omitempty"`
	Duration time.Duration `json:"duration"`
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{
		Version: Version,
		Runs:    []Run{},
	}
}

// Last returns the most recent run, or nil if none.
func (h *History) Last() *Run {
	if len(h.Runs) == 0 {
		return nil
	}
	return &h.Runs[len(h.Runs)-1]
}

// RunFromReport converts a provisioner report into a history entry.
func RunFromReport(manifest, storage string, r *provision.Report) Run {
	run := Run{
		ID:        r.RunID,
		Manifest:  manifest,
		Storage:   storage,
		StartedAt: r.Started,
		Duration:  r.Finished.Sub(r.Started),
		Status:    StatusSucceeded,
		Templates: make([]TemplateRun, 0, len(r.Results)),
	}
	if r.Err != nil {
		run.Status = StatusFailed
		run.Error = r.Err.Error()
	}
	for _, res := range r.Results {
		run.Templates = append(run.Templates, TemplateRun{
			VMID:     res.VMID,
			Name:     res.Name,
			Outcome:  string(res.Outcome),
			Step:     string(res.Step),
			Bytes:    res.Bytes,
			Duration: res.Duration,
		})
	}
	return run
}

package pipeline

import "time"

// Status is the outcome of a whole run, distinct from the per-phase
// PhaseStatus values.
type Status string

const (
	RunRunning        Status = "running"
	RunSuccess        Status = "success"
	RunPartialSuccess Status = "partial_success"
	RunFailed         Status = "failed"
)

// Job is one run invocation. Owned and mutated by the engine only.
type Job struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Mode      string    `json:"mode"`
	Phases    []Phase   `json:"phases"`
	StartedAt time.Time `json:"started_at"`
}

// Report is the final account of a run. completed_phases is always a
// subsequence of the canonical phase order.
type Report struct {
	JobID                string            `json:"job_id"`
	Source               string            `json:"source"`
	Mode                 string            `json:"mode"`
	Status               Status            `json:"status"`
	CompletionPercentage int               `json:"completion_percentage"`
	CompletedPhases      []string          `json:"completed_phases"`
	FailedPhases         map[string]string `json:"failed_phases"`
	Warnings             []string          `json:"warnings"`
	Phases               []Phase           `json:"phases"`
	StartedAt            time.Time         `json:"started_at"`
	FinishedAt           time.Time         `json:"finished_at"`
}

func (r *Report) finalize(now time.Time) {
	r.FinishedAt = now
	r.CompletionPercentage = len(r.CompletedPhases) * 100 / len(Phases)

	switch {
	case len(r.FailedPhases) == 0 && len(r.CompletedPhases) > 0:
		r.Status = RunSuccess
	case len(r.CompletedPhases) > 0:
		r.Status = RunPartialSuccess
	default:
		r.Status = RunFailed
	}
}

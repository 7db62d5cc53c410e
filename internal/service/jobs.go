// Package service provides the job control surface over the phase engine.
package service

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avollmer/sitegraft/internal/pipeline"
	"github.com/avollmer/sitegraft/internal/store"
)

// JobStatus represents the state of a background migration job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job represents one background migration run.
type Job struct {
	ID          string            `json:"id"`
	Source      string            `json:"source"`
	Mode        string            `json:"mode"`
	Status      JobStatus         `json:"status"`
	Phases      []pipeline.Phase  `json:"phases"`
	Percent     int               `json:"percent"`
	Report      *pipeline.Report  `json:"report,omitempty"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`

	mu sync.RWMutex
}

// JobManager tracks background jobs in memory and snapshots them into the
// state store so job status survives a restart.
type JobManager struct {
	jobs   map[string]*Job
	mu     sync.RWMutex
	state  store.Store
	logger *slog.Logger
}

// NewJobManager creates a job manager. state may be nil in tests.
func NewJobManager(state store.Store, logger *slog.Logger) *JobManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobManager{
		jobs:   make(map[string]*Job),
		state:  state,
		logger: logger,
	}
}

// CreateJob creates a new pending job.
func (m *JobManager) CreateJob(ctx context.Context, source, mode string) *Job {
	job := &Job{
		ID:        uuid.New().String()[:8], // short ID for convenience
		Source:    source,
		Mode:      mode,
		Status:    JobStatusPending,
		StartedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.persist(ctx, job)
	m.logger.Info("job created", "job_id", job.ID, "source", source, "mode", mode)
	return job
}

// GetJob retrieves a job by ID, nil when unknown.
func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns snapshots of all jobs, most recent first.
func (m *JobManager) ListJobs() []Job {
	m.mu.RLock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.RUnlock()

	slices.SortFunc(jobs, func(a, b *Job) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	out := make([]Job, len(jobs))
	for i, job := range jobs {
		out[i] = job.Snapshot()
	}
	return out
}

// SetRunning marks a job as running.
func (m *JobManager) SetRunning(ctx context.Context, job *Job) {
	job.mu.Lock()
	job.Status = JobStatusRunning
	job.mu.Unlock()
	m.persist(ctx, job)
}

// UpdateProgress applies a progress event to the job's phase plan.
func (m *JobManager) UpdateProgress(job *Job, event pipeline.Event) {
	job.mu.Lock()
	defer job.mu.Unlock()

	job.Percent = event.Percent
	if job.Status == JobStatusPending {
		job.Status = JobStatusRunning
	}
	if event.Phase == "" {
		return
	}
	if job.Phases == nil {
		job.Phases = make([]pipeline.Phase, len(pipeline.Phases))
		for i, name := range pipeline.Phases {
			job.Phases[i] = pipeline.Phase{ID: i + 1, Name: name, Status: pipeline.StatusPending}
		}
	}
	for i := range job.Phases {
		if job.Phases[i].Name == event.Phase {
			job.Phases[i].Status = event.Status
			job.Phases[i].Detail = event.Detail
		}
	}
}

// Complete marks a job as completed with its report.
func (m *JobManager) Complete(ctx context.Context, job *Job, report pipeline.Report) {
	job.mu.Lock()
	job.Status = JobStatusCompleted
	job.Report = &report
	job.Percent = report.CompletionPercentage
	job.Phases = report.Phases
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.mu.Unlock()

	m.persist(ctx, job)
	m.logger.Info("job completed",
		"job_id", job.ID,
		"status", report.Status,
		"completed_phases", len(report.CompletedPhases),
		"failed_phases", len(report.FailedPhases))
}

// Fail marks a job as failed.
func (m *JobManager) Fail(ctx context.Context, job *Job, err error) {
	job.mu.Lock()
	job.Status = JobStatusFailed
	job.Error = err.Error()
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.mu.Unlock()

	m.persist(ctx, job)
	m.logger.Error("job failed", "job_id", job.ID, "error", err)
}

// Snapshot returns a thread-safe copy of the job state.
func (j *Job) Snapshot() Job {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Job{
		ID:          j.ID,
		Source:      j.Source,
		Mode:        j.Mode,
		Status:      j.Status,
		Phases:      slices.Clone(j.Phases),
		Percent:     j.Percent,
		Report:      j.Report,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

func (m *JobManager) persist(ctx context.Context, job *Job) {
	if m.state == nil {
		return
	}
	snapshot := job.Snapshot()
	if err := m.state.Set(ctx, "jobs/"+snapshot.ID, snapshot, 0); err != nil {
		m.logger.Warn("failed to persist job snapshot", "job_id", snapshot.ID, "error", err)
	}
}

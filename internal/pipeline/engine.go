package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avollmer/sitegraft/internal/checkpoint"
	"github.com/avollmer/sitegraft/internal/store"
)

// readinessThreshold is the minimum test readiness score; below it the
// Build+Test pair is re-run exactly once.
const readinessThreshold = 0.8

// Engine sequences the migration phases for one job at a time. Multiple
// engines may run concurrently in one process; all state store keys are
// namespaced by job or source.
type Engine struct {
	state       store.Store
	checkpoints *checkpoint.Store
	handlers    Handlers
	emitter     Emitter
	logger      *slog.Logger
}

// New creates a phase engine. emitter may be nil.
func New(state store.Store, checkpoints *checkpoint.Store, handlers Handlers, emitter Emitter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		state:       state,
		checkpoints: checkpoints,
		handlers:    handlers,
		emitter:     emitter,
		logger:      logger,
	}
}

// Run executes the full pipeline from the first phase. The returned error is
// non-nil only for fatal conditions (preflight); per-phase failures are
// reported, not returned.
func (e *Engine) Run(ctx context.Context, source, mode, jobID string) (Report, error) {
	return e.run(ctx, source, mode, jobID, 0)
}

// Resume continues an interrupted job from the phase after the last
// completed checkpoint. Already-checkpointed phases are counted as
// completed without re-running their handlers.
func (e *Engine) Resume(ctx context.Context, source, mode, jobID string) (Report, error) {
	next, ok := e.checkpoints.NextPhase(ctx, source)
	start := len(Phases)
	if ok {
		start = phaseIndex(next)
	}
	return e.run(ctx, source, mode, jobID, start)
}

type runState struct {
	job       *Job
	report    *Report
	completed map[string]bool
	retried   bool
}

func (e *Engine) run(ctx context.Context, source, mode, jobID string, startIdx int) (Report, error) {
	rs := &runState{
		job: &Job{
			ID:        jobID,
			Source:    source,
			Mode:      mode,
			Phases:    newPhasePlan(),
			StartedAt: time.Now().UTC(),
		},
		report: &Report{
			JobID:        jobID,
			Source:       source,
			Mode:         mode,
			Status:       RunRunning,
			FailedPhases: map[string]string{},
			Warnings:     []string{},
			StartedAt:    time.Now().UTC(),
		},
		completed: map[string]bool{},
	}

	if err := e.preflight(source, mode); err != nil {
		e.logger.Error("preflight failed", "job_id", jobID, "source", source, "error", err)
		rs.report.Status = RunFailed
		rs.report.FinishedAt = time.Now().UTC()
		rs.report.Phases = rs.job.Phases
		e.emit(Event{Type: EventError, JobID: jobID, Message: err.Error(), Timestamp: time.Now().UTC()})
		return *rs.report, err
	}

	for i := 0; i < startIdx && i < len(Phases); i++ {
		rs.job.Phases[i].Status = StatusDone
		rs.job.Phases[i].Detail = "resumed from checkpoint"
		rs.completed[Phases[i]] = true
	}

	e.logger.Info("pipeline starting", "job_id", jobID, "source", source, "mode", mode, "start_phase", startIdx)
	e.emit(Event{Type: EventStarted, JobID: jobID, Percent: e.percent(rs), Timestamp: time.Now().UTC()})

	results := map[string]map[string]any{}
	for i := startIdx; i < len(Phases); i++ {
		name := Phases[i]
		e.executePhase(ctx, rs, results, i)

		if name == PhaseTest && rs.completed[PhaseTest] && !rs.retried && needsRerun(results[PhaseTest]) {
			rs.retried = true
			warning := "test readiness below threshold, re-running build and test once"
			e.logger.Warn(warning, "job_id", jobID)
			rs.report.Warnings = append(rs.report.Warnings, warning)
			e.executePhase(ctx, rs, results, phaseIndex(PhaseBuild))
			e.executePhase(ctx, rs, results, phaseIndex(PhaseTest))
		}
	}

	// completed phases reported in canonical order
	for _, name := range Phases {
		if rs.completed[name] {
			rs.report.CompletedPhases = append(rs.report.CompletedPhases, name)
		}
	}
	rs.report.Phases = rs.job.Phases
	rs.report.finalize(time.Now().UTC())

	if err := e.state.Set(ctx, "job/"+jobID+"/report", rs.report, 0); err != nil {
		e.logger.Warn("failed to persist report", "job_id", jobID, "error", err)
	}
	if rs.report.Status == RunSuccess && rs.completed[PhasePublish] {
		e.checkpoints.Cleanup(ctx, source)
	}

	e.logger.Info("pipeline finished",
		"job_id", jobID,
		"status", rs.report.Status,
		"completed", len(rs.report.CompletedPhases),
		"failed", len(rs.report.FailedPhases))
	e.emit(Event{
		Type:      EventComplete,
		JobID:     jobID,
		Message:   string(rs.report.Status),
		Percent:   rs.report.CompletionPercentage,
		Timestamp: time.Now().UTC(),
	})
	return *rs.report, nil
}

// executePhase runs one phase handler with failure isolation. A Failed
// result is recorded and the pipeline moves on; a checkpoint is written only
// after a completed attempt.
func (e *Engine) executePhase(ctx context.Context, rs *runState, results map[string]map[string]any, idx int) {
	name := Phases[idx]
	phase := &rs.job.Phases[idx]

	phase.Status = StatusActive
	phase.Detail = ""
	e.logger.Info("phase starting", "job_id", rs.job.ID, "phase", name)
	e.emitPhase(rs, name, StatusActive, "")

	result := e.invoke(ctx, rs, name, results)

	if !result.Completed() {
		err := result.Err()
		e.logger.Error("phase failed", "job_id", rs.job.ID, "phase", name, "error", err)
		rs.report.FailedPhases[name] = err.Error()
		rs.report.Warnings = append(rs.report.Warnings, fmt.Sprintf("phase %s failed: %v", name, err))
		results[name] = map[string]any{}
		phase.Status = StatusFailed
		phase.Detail = err.Error()
		e.emitPhase(rs, name, StatusFailed, err.Error())
		return
	}

	data := result.Data()
	if result.data == nil {
		warning := fmt.Sprintf("phase %s returned no result data, using empty result", name)
		e.logger.Warn(warning, "job_id", rs.job.ID)
		rs.report.Warnings = append(rs.report.Warnings, warning)
	}
	if w := result.Warning(); w != "" {
		e.logger.Warn("phase degraded", "job_id", rs.job.ID, "phase", name, "warning", w)
		rs.report.Warnings = append(rs.report.Warnings, fmt.Sprintf("phase %s: %s", name, w))
	}

	results[name] = data
	if err := e.state.Set(ctx, "job/"+rs.job.ID+"/result/"+name, data, 0); err != nil {
		e.logger.Warn("failed to persist phase result", "job_id", rs.job.ID, "phase", name, "error", err)
	}
	if !e.checkpoints.Create(ctx, rs.job.Source, name, data) {
		e.logger.Warn("checkpoint not written", "job_id", rs.job.ID, "phase", name)
	}

	delete(rs.report.FailedPhases, name)
	rs.completed[name] = true
	phase.Status = StatusDone
	phase.Detail = result.Warning()
	e.logger.Info("phase complete", "job_id", rs.job.ID, "phase", name)
	e.emitPhase(rs, name, StatusDone, result.Warning())
}

// invoke calls the phase handler, converting a panic into a Failed result so
// one misbehaving handler cannot take down the whole job.
func (e *Engine) invoke(ctx context.Context, rs *runState, name string, results map[string]map[string]any) (result Result) {
	handler, ok := e.handlers[name]
	if !ok || handler == nil {
		return Degraded(map[string]any{}, "no handler registered")
	}

	defer func() {
		if r := recover(); r != nil {
			result = Failed(fmt.Errorf("handler panic: %v", r))
		}
	}()

	return handler(ctx, &PhaseContext{
		JobID:   rs.job.ID,
		Source:  rs.job.Source,
		Mode:    rs.job.Mode,
		State:   e.state,
		Results: results,
	})
}

// needsRerun reports whether the test phase flagged the build as not ready.
func needsRerun(testData map[string]any) bool {
	if ready, ok := testData["ready_for_qa"].(bool); ok && !ready {
		return true
	}
	if score, ok := testData["readiness"].(float64); ok && score < readinessThreshold {
		return true
	}
	return false
}

func (e *Engine) percent(rs *runState) int {
	return len(rs.completed) * 100 / len(Phases)
}

func (e *Engine) emitPhase(rs *runState, phase string, status PhaseStatus, detail string) {
	e.emit(Event{
		Type:      EventProgress,
		JobID:     rs.job.ID,
		Phase:     phase,
		Status:    status,
		Detail:    detail,
		Percent:   e.percent(rs),
		Timestamp: time.Now().UTC(),
	})
}

func (e *Engine) emit(event Event) {
	if e.emitter != nil {
		e.emitter.Emit(event)
	}
}

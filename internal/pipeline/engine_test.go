package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avollmer/sitegraft/internal/checkpoint"
	"github.com/avollmer/sitegraft/internal/store"
)

type recordingEmitter struct {
	events []Event
}

func (r *recordingEmitter) Emit(event Event) {
	r.events = append(r.events, event)
}

func (r *recordingEmitter) byType(t string) []Event {
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	state       store.Store
	checkpoints *checkpoint.Store
	emitter     *recordingEmitter
	calls       []string
}

func newHarness() *harness {
	st := store.NewMemoryStore()
	return &harness{
		state:       st,
		checkpoints: checkpoint.NewStore(st, Phases, nil),
		emitter:     &recordingEmitter{},
	}
}

// allOk returns handlers for every phase that record invocations and
// succeed with a marker value.
func (h *harness) allOk() Handlers {
	handlers := Handlers{}
	for _, name := range Phases {
		name := name
		handlers[name] = func(ctx context.Context, pc *PhaseContext) Result {
			h.calls = append(h.calls, name)
			return Ok(map[string]any{"phase": name})
		}
	}
	return handlers
}

func (h *harness) engine(handlers Handlers) *Engine {
	return New(h.state, h.checkpoints, handlers, h.emitter, nil)
}

func TestRunAllPhasesSucceed(t *testing.T) {
	h := newHarness()
	report, err := h.engine(h.allOk()).Run(context.Background(), "https://example.com", ModeURL, "job-1")

	require.NoError(t, err)
	assert.Equal(t, RunSuccess, report.Status)
	assert.Equal(t, 100, report.CompletionPercentage)
	assert.Equal(t, Phases, report.CompletedPhases)
	assert.Empty(t, report.FailedPhases)
	assert.Equal(t, Phases, h.calls, "phases run strictly in canonical order")
}

func TestRunPartialSuccess(t *testing.T) {
	h := newHarness()
	handlers := h.allOk()
	handlers[PhaseTheme] = func(ctx context.Context, pc *PhaseContext) Result {
		return Failed(errors.New("css generation crashed"))
	}

	report, err := h.engine(handlers).Run(context.Background(), "https://example.com", ModeURL, "job-2")

	require.NoError(t, err, "an isolated phase failure is not a run error")
	assert.Equal(t, RunPartialSuccess, report.Status)
	assert.Equal(t, 10*100/len(Phases), report.CompletionPercentage)
	assert.Contains(t, report.FailedPhases, PhaseTheme)
	assert.NotContains(t, report.CompletedPhases, PhaseTheme)
	assert.Contains(t, report.CompletedPhases, PhasePublish, "later phases still run after a failure")
	assert.NotEmpty(t, report.Warnings)
}

func TestRunAndPhaseStatusReportedSeparately(t *testing.T) {
	h := newHarness()
	handlers := h.allOk()
	handlers[PhaseTheme] = func(ctx context.Context, pc *PhaseContext) Result {
		return Failed(errors.New("css generation crashed"))
	}

	report, err := h.engine(handlers).Run(context.Background(), "https://example.com", ModeURL, "job-16")
	require.NoError(t, err)

	assert.Equal(t, RunPartialSuccess, report.Status)
	idx := phaseIndex(PhaseTheme)
	assert.Equal(t, StatusFailed, report.Phases[idx].Status, "the failed phase is marked in the plan")
	assert.Equal(t, "failed", string(StatusFailed))
	assert.Equal(t, "failed", string(RunFailed), "run and phase failure share the wire value")
}

func TestRunPreflightFatal(t *testing.T) {
	h := newHarness()
	report, err := h.engine(h.allOk()).Run(context.Background(), "   ", ModeURL, "job-3")

	require.ErrorIs(t, err, ErrPreflight)
	assert.Equal(t, RunFailed, report.Status)
	assert.Empty(t, report.CompletedPhases)
	assert.Empty(t, h.calls, "no phase runs after a preflight failure")
}

func TestRunPreflightRejectsBadURL(t *testing.T) {
	h := newHarness()
	_, err := h.engine(h.allOk()).Run(context.Background(), "not a url", ModeURL, "job-4")
	require.ErrorIs(t, err, ErrPreflight)

	_, err = h.engine(h.allOk()).Run(context.Background(), "a plain description", ModeDescription, "job-5")
	require.NoError(t, err, "description mode takes free-form text")
}

func TestRunBuildTestRetriedExactlyOnce(t *testing.T) {
	h := newHarness()
	handlers := h.allOk()
	handlers[PhaseTest] = func(ctx context.Context, pc *PhaseContext) Result {
		h.calls = append(h.calls, PhaseTest)
		// never ready, would retry forever if unbounded
		return Ok(map[string]any{"ready_for_qa": false, "readiness": 0.4})
	}

	report, err := h.engine(handlers).Run(context.Background(), "https://example.com", ModeURL, "job-6")
	require.NoError(t, err)

	builds, tests := 0, 0
	for _, call := range h.calls {
		switch call {
		case PhaseBuild:
			builds++
		case PhaseTest:
			tests++
		}
	}
	assert.Equal(t, 2, builds, "build re-runs exactly once")
	assert.Equal(t, 2, tests, "test re-runs exactly once")
	assert.Equal(t, RunSuccess, report.Status)
	assert.Contains(t, report.Warnings[0], "re-running build and test")
}

func TestRunCheckpointOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	handlers := h.allOk()
	handlers[PhaseContent] = func(ctx context.Context, pc *PhaseContext) Result {
		return Failed(errors.New("media service unreachable"))
	}

	_, err := h.engine(handlers).Run(ctx, "https://example.com", ModeURL, "job-7")
	require.NoError(t, err)

	assert.Nil(t, h.checkpoints.Get(ctx, "https://example.com", PhaseContent),
		"no checkpoint for a failed phase")
	assert.NotNil(t, h.checkpoints.Get(ctx, "https://example.com", PhaseTheme))
	assert.NotNil(t, h.checkpoints.Get(ctx, "https://example.com", PhaseTest))
}

func TestRunNilResultCoerced(t *testing.T) {
	h := newHarness()
	handlers := h.allOk()
	handlers[PhaseProbe] = func(ctx context.Context, pc *PhaseContext) Result {
		return Ok(nil)
	}

	report, err := h.engine(handlers).Run(context.Background(), "https://example.com", ModeURL, "job-8")
	require.NoError(t, err)

	assert.Contains(t, report.CompletedPhases, PhaseProbe)
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[0], "empty result")
}

func TestRunMissingHandlerDegrades(t *testing.T) {
	h := newHarness()
	handlers := h.allOk()
	delete(handlers, PhaseReview)

	report, err := h.engine(handlers).Run(context.Background(), "https://example.com", ModeURL, "job-9")
	require.NoError(t, err)

	assert.Contains(t, report.CompletedPhases, PhaseReview, "a missing handler degrades, it does not fail")
	assert.Equal(t, RunSuccess, report.Status)

	found := false
	for _, w := range report.Warnings {
		if w == "phase review: no handler registered" {
			found = true
		}
	}
	assert.True(t, found, "degraded phases surface their warning, got %v", report.Warnings)
}

func TestRunHandlerPanicIsolated(t *testing.T) {
	h := newHarness()
	handlers := h.allOk()
	handlers[PhaseQA] = func(ctx context.Context, pc *PhaseContext) Result {
		panic("qa collaborator blew up")
	}

	report, err := h.engine(handlers).Run(context.Background(), "https://example.com", ModeURL, "job-10")
	require.NoError(t, err)

	assert.Equal(t, RunPartialSuccess, report.Status)
	assert.Contains(t, report.FailedPhases[PhaseQA], "handler panic")
	assert.Contains(t, report.CompletedPhases, PhasePublish)
}

func TestResumeSkipsCheckpointedPhases(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	for _, phase := range []string{PhaseProbe, PhaseAnalysis, PhaseTraining} {
		require.True(t, h.checkpoints.Create(ctx, "https://example.com", phase, nil))
	}

	report, err := h.engine(h.allOk()).Resume(ctx, "https://example.com", ModeURL, "job-11")
	require.NoError(t, err)

	assert.Equal(t, PhaseMapping, h.calls[0], "resume starts at the phase after the last checkpoint")
	assert.NotContains(t, h.calls, PhaseProbe)
	assert.Equal(t, RunSuccess, report.Status)
	assert.Equal(t, 100, report.CompletionPercentage)
	assert.Equal(t, Phases, report.CompletedPhases, "resumed phases count as completed")
}

func TestResumeNothingLeft(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	for _, phase := range Phases {
		require.True(t, h.checkpoints.Create(ctx, "https://example.com", phase, nil))
	}

	report, err := h.engine(h.allOk()).Resume(ctx, "https://example.com", ModeURL, "job-12")
	require.NoError(t, err)

	assert.Empty(t, h.calls)
	assert.Equal(t, RunSuccess, report.Status)
	assert.Equal(t, 100, report.CompletionPercentage)
}

func TestRunEmitsEventPerTransition(t *testing.T) {
	h := newHarness()
	_, err := h.engine(h.allOk()).Run(context.Background(), "https://example.com", ModeURL, "job-13")
	require.NoError(t, err)

	assert.Len(t, h.emitter.byType(EventStarted), 1)
	assert.Len(t, h.emitter.byType(EventComplete), 1)
	// one active and one done event per phase
	assert.Len(t, h.emitter.byType(EventProgress), 2*len(Phases))

	final := h.emitter.events[len(h.emitter.events)-1]
	assert.Equal(t, EventComplete, final.Type)
	assert.Equal(t, 100, final.Percent)
	assert.Equal(t, string(RunSuccess), final.Message)
}

func TestCompletedPhasesIsSubsequence(t *testing.T) {
	h := newHarness()
	handlers := h.allOk()
	for _, name := range []string{PhaseAnalysis, PhaseContent, PhaseReview} {
		handlers[name] = func(ctx context.Context, pc *PhaseContext) Result {
			return Failed(errors.New("boom"))
		}
	}

	report, err := h.engine(handlers).Run(context.Background(), "https://example.com", ModeURL, "job-14")
	require.NoError(t, err)

	idx := 0
	for _, completedPhase := range report.CompletedPhases {
		for idx < len(Phases) && Phases[idx] != completedPhase {
			idx++
		}
		require.Less(t, idx, len(Phases),
			"completed phases must be a subsequence of the canonical order")
		idx++
	}
}

func TestCleanupAfterSuccessfulPublish(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	_, err := h.engine(h.allOk()).Run(ctx, "https://example.com", ModeURL, "job-15")
	require.NoError(t, err)

	for _, phase := range Phases {
		assert.Nil(t, h.checkpoints.Get(ctx, "https://example.com", phase),
			"checkpoints are cleaned up after a fully successful run")
	}
}

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avollmer/sitegraft/internal/checkpoint"
	"github.com/avollmer/sitegraft/internal/mapping"
	"github.com/avollmer/sitegraft/internal/pipeline"
	"github.com/avollmer/sitegraft/internal/refine"
	"github.com/avollmer/sitegraft/internal/store"
)

type stubCollaborators struct {
	probeErr   error
	builds     int
	testsRun   int
	readyForQA bool
}

func (s *stubCollaborators) Probe(context.Context) (map[string]mapping.CapabilityEnvelope, error) {
	if s.probeErr != nil {
		return nil, s.probeErr
	}
	return map[string]mapping.CapabilityEnvelope{
		"page": {Fields: map[string]mapping.FieldSpec{
			"title": {Required: true, Stable: true},
			"body":  {Stable: true},
		}, Stable: true},
		"article": {Fields: map[string]mapping.FieldSpec{
			"title":       {Required: true, Stable: true},
			"body":        {Stable: true},
			"field_image": {Stable: true},
		}, Stable: true},
	}, nil
}

func (s *stubCollaborators) Analyze(_ context.Context, source, _ string) (mapping.Blueprint, error) {
	return mapping.Blueprint{
		Title: "Example",
		Sections: []mapping.Section{
			{Index: 0, Type: "hero", Heading: "Welcome"},
			{Index: 1, Type: "about"},
		},
		Pages: []mapping.Page{
			{Title: "Home", Path: "/", ContentType: "page"},
			{Title: "News", Path: "/news", ContentType: "blog"},
		},
	}, nil
}

func (s *stubCollaborators) Train(_ context.Context, envelopes map[string]mapping.CapabilityEnvelope) (int, error) {
	return len(envelopes), nil
}

func (s *stubCollaborators) BuildPages(_ context.Context, manifest mapping.Manifest) ([]BuiltPage, error) {
	s.builds++
	return []BuiltPage{
		{Title: "Home", Path: "/", SourceRef: "src:/", ArtifactRef: "node/1"},
		{Title: "News", Path: "/news", SourceRef: "src:/news", ArtifactRef: "node/2"},
	}, nil
}

func (s *stubCollaborators) ApplyTheme(context.Context, string) error { return nil }

func (s *stubCollaborators) MigrateContent(context.Context, mapping.Manifest) (int, error) {
	return 7, nil
}

func (s *stubCollaborators) RunTests(context.Context, []BuiltPage) (TestReport, error) {
	s.testsRun++
	return TestReport{OverallScore: 0.9, ReadyForQA: s.readyForQA}, nil
}

func (s *stubCollaborators) RunQA(context.Context) (float64, error) { return 0.95, nil }

func (s *stubCollaborators) Publish(context.Context, string) (string, error) {
	return "https://target.example/site", nil
}

type steadyOracle struct{ similarity float64 }

func (o steadyOracle) Compare(context.Context, string, string, string) (refine.Comparison, error) {
	return refine.Comparison{Similarity: o.similarity}, nil
}

func newService(t *testing.T, stub *stubCollaborators) *MigrationService {
	t.Helper()
	st := store.NewMemoryStore()
	cps := checkpoint.NewStore(st, pipeline.Phases, nil)
	manager := NewJobManager(st, nil)
	collab := Collaborators{
		Prober:    stub,
		Analyzer:  stub,
		Trainer:   stub,
		Builder:   stub,
		Themer:    stub,
		Migrator:  stub,
		Tester:    stub,
		Auditor:   stub,
		Publisher: stub,
		Oracle:    steadyOracle{similarity: 0.9},
	}
	return NewMigrationService(st, cps, manager, collab, refine.DefaultParams(), nil, nil)
}

func TestMigrationRunsToSuccess(t *testing.T) {
	stub := &stubCollaborators{readyForQA: true}
	svc := newService(t, stub)

	job := svc.manager.CreateJob(context.Background(), "https://example.com", pipeline.ModeURL)
	svc.execute(job, false)

	snap := svc.manager.GetJob(job.ID).Snapshot()
	assert.Equal(t, JobStatusCompleted, snap.Status)
	require.NotNil(t, snap.Report)
	assert.Equal(t, pipeline.RunSuccess, snap.Report.Status)
	assert.Equal(t, 100, snap.Percent)
	assert.Equal(t, 1, stub.builds)
	assert.Equal(t, 1, stub.testsRun)
}

func TestMigrationRetriesBuildOnLowReadiness(t *testing.T) {
	stub := &stubCollaborators{readyForQA: false}
	svc := newService(t, stub)

	job := svc.manager.CreateJob(context.Background(), "https://example.com", pipeline.ModeURL)
	svc.execute(job, false)

	assert.Equal(t, 2, stub.builds, "build re-runs once when tests are not ready")
	assert.Equal(t, 2, stub.testsRun)
}

func TestMigrationStoresManifestAndKnowledge(t *testing.T) {
	ctx := context.Background()
	stub := &stubCollaborators{readyForQA: true}
	svc := newService(t, stub)

	job := svc.manager.CreateJob(ctx, "https://example.com", pipeline.ModeURL)
	svc.execute(job, false)

	manifest, ok := store.GetJSON[mapping.Manifest](ctx, svc.state, "job/"+job.ID+"/manifest")
	require.True(t, ok)
	assert.Equal(t, 4, manifest.Statistics.Total)

	knowledge, ok := store.GetJSON[mapping.Knowledge](ctx, svc.state, knowledgeKey)
	require.True(t, ok)
	assert.NotEmpty(t, knowledge.SuccessfulMappings, "confident mappings feed later runs")
	for _, prior := range knowledge.SuccessfulMappings {
		assert.NotEmpty(t, prior.SourceElement)
		assert.NotEmpty(t, prior.Component)
	}
}

func TestMigrationFailedProbeIsIsolated(t *testing.T) {
	stub := &stubCollaborators{readyForQA: true, probeErr: errors.New("cms unreachable")}
	svc := newService(t, stub)

	job := svc.manager.CreateJob(context.Background(), "https://example.com", pipeline.ModeURL)
	svc.execute(job, false)

	snap := svc.manager.GetJob(job.ID).Snapshot()
	require.NotNil(t, snap.Report)
	assert.Equal(t, pipeline.RunPartialSuccess, snap.Report.Status)
	assert.Contains(t, snap.Report.FailedPhases, pipeline.PhaseProbe)
	// mapping has no capability data to work with but degrades rather than
	// piling a second failure onto the one probe already reported
	assert.NotContains(t, snap.Report.FailedPhases, pipeline.PhaseMapping)
	assert.Contains(t, snap.Report.CompletedPhases, pipeline.PhaseMapping)
	assert.Contains(t, snap.Report.CompletedPhases, pipeline.PhaseQA)
}

func TestMigrationWithoutCollaboratorsDegradesToSuccess(t *testing.T) {
	st := store.NewMemoryStore()
	cps := checkpoint.NewStore(st, pipeline.Phases, nil)
	manager := NewJobManager(st, nil)
	svc := NewMigrationService(st, cps, manager, Collaborators{}, refine.DefaultParams(), nil, nil)

	job := manager.CreateJob(context.Background(), "https://example.com", pipeline.ModeURL)
	svc.execute(job, false)

	snap := manager.GetJob(job.ID).Snapshot()
	require.NotNil(t, snap.Report)
	assert.Equal(t, pipeline.RunSuccess, snap.Report.Status, "every phase degrades, none fails")
	assert.Equal(t, 100, snap.Report.CompletionPercentage)
	assert.Empty(t, snap.Report.FailedPhases)
	assert.NotEmpty(t, snap.Report.Warnings, "each degraded phase leaves a warning")
}

func TestResumeRequiresAnalysisCheckpoint(t *testing.T) {
	svc := newService(t, &stubCollaborators{readyForQA: true})

	_, err := svc.Resume(context.Background(), "https://never-ran.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no analysis checkpoint")
}

func TestJobManagerSnapshots(t *testing.T) {
	ctx := context.Background()
	manager := NewJobManager(store.NewMemoryStore(), nil)

	a := manager.CreateJob(ctx, "https://a.example", pipeline.ModeURL)
	b := manager.CreateJob(ctx, "https://b.example", pipeline.ModeDescription)
	require.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 8)

	manager.SetRunning(ctx, a)
	assert.Equal(t, JobStatusRunning, manager.GetJob(a.ID).Snapshot().Status)

	manager.Fail(ctx, b, errors.New("boom"))
	snap := manager.GetJob(b.ID).Snapshot()
	assert.Equal(t, JobStatusFailed, snap.Status)
	assert.Equal(t, "boom", snap.Error)
	require.NotNil(t, snap.CompletedAt)

	jobs := manager.ListJobs()
	assert.Len(t, jobs, 2)
}

func TestJobManagerTracksProgressEvents(t *testing.T) {
	manager := NewJobManager(nil, nil)
	job := manager.CreateJob(context.Background(), "https://a.example", pipeline.ModeURL)

	manager.UpdateProgress(job, pipeline.Event{
		Type:    pipeline.EventProgress,
		Phase:   pipeline.PhaseBuild,
		Status:  pipeline.StatusActive,
		Percent: 36,
	})

	snap := job.Snapshot()
	assert.Equal(t, 36, snap.Percent)
	assert.Equal(t, JobStatusRunning, snap.Status)
	idx := -1
	for i, p := range snap.Phases {
		if p.Name == pipeline.PhaseBuild {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, pipeline.StatusActive, snap.Phases[idx].Status)
}

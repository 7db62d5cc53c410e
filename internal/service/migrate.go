package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/avollmer/sitegraft/internal/checkpoint"
	"github.com/avollmer/sitegraft/internal/mapping"
	"github.com/avollmer/sitegraft/internal/pipeline"
	"github.com/avollmer/sitegraft/internal/refine"
	"github.com/avollmer/sitegraft/internal/store"
)

// knowledgeKey is where the prior-mapping history feed lives in the state
// store. Append-only from this service's perspective.
const knowledgeKey = "knowledge/mappings"

// BuiltPage is one page produced by the build collaborator.
type BuiltPage struct {
	Title       string `json:"title"`
	Path        string `json:"path"`
	SourceRef   string `json:"source_ref"`
	ArtifactRef string `json:"artifact_ref"`
}

// TestReport is the test collaborator's verdict on the built site.
type TestReport struct {
	OverallScore float64  `json:"overall_score"`
	ReadyForQA   bool     `json:"ready_for_qa"`
	FixesNeeded  []string `json:"fixes_needed,omitempty"`
}

// External collaborators behind the phases. A nil collaborator degrades its
// phase instead of failing it.
type (
	// Prober discovers what components the target CMS actually supports.
	Prober interface {
		Probe(ctx context.Context) (map[string]mapping.CapabilityEnvelope, error)
	}

	// Analyzer scrapes and analyzes the source site into a blueprint.
	Analyzer interface {
		Analyze(ctx context.Context, source, mode string) (mapping.Blueprint, error)
	}

	// Trainer documents the discovered components; returns how many.
	Trainer interface {
		Train(ctx context.Context, envelopes map[string]mapping.CapabilityEnvelope) (int, error)
	}

	// Builder creates target pages from the mapping manifest.
	Builder interface {
		BuildPages(ctx context.Context, manifest mapping.Manifest) ([]BuiltPage, error)
	}

	// Themer applies design tokens and CSS to the built site.
	Themer interface {
		ApplyTheme(ctx context.Context, jobID string) error
	}

	// ContentMigrator moves text and media; returns items migrated.
	ContentMigrator interface {
		MigrateContent(ctx context.Context, manifest mapping.Manifest) (int, error)
	}

	// Tester compares the built site to its source.
	Tester interface {
		RunTests(ctx context.Context, pages []BuiltPage) (TestReport, error)
	}

	// Auditor runs accessibility and quality checks; returns a score.
	Auditor interface {
		RunQA(ctx context.Context) (float64, error)
	}

	// Publisher makes the built site live; returns its URL.
	Publisher interface {
		Publish(ctx context.Context, jobID string) (string, error)
	}
)

// Collaborators bundles the external agents and the refinement hooks.
type Collaborators struct {
	Prober     Prober
	Analyzer   Analyzer
	Trainer    Trainer
	Builder    Builder
	Themer     Themer
	Migrator   ContentMigrator
	Tester     Tester
	Auditor    Auditor
	Publisher  Publisher
	Oracle     refine.Oracle
	Adjuster   refine.Adjuster
	Diagnostic refine.Diagnostic
}

// MigrationService wires the phase engine, checkpoints, refinement loops and
// collaborators into runnable jobs.
type MigrationService struct {
	state       store.Store
	checkpoints *checkpoint.Store
	manager     *JobManager
	collab      Collaborators
	params      refine.Params
	emitter     pipeline.Emitter
	logger      *slog.Logger
}

// NewMigrationService creates the migration service. emitter may be nil.
func NewMigrationService(
	state store.Store,
	checkpoints *checkpoint.Store,
	manager *JobManager,
	collab Collaborators,
	params refine.Params,
	emitter pipeline.Emitter,
	logger *slog.Logger,
) *MigrationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MigrationService{
		state:       state,
		checkpoints: checkpoints,
		manager:     manager,
		collab:      collab,
		params:      params,
		emitter:     emitter,
		logger:      logger,
	}
}

// Manager exposes the job manager for status queries.
func (s *MigrationService) Manager() *JobManager { return s.manager }

// Checkpoints exposes the checkpoint store for resume queries.
func (s *MigrationService) Checkpoints() *checkpoint.Store { return s.checkpoints }

// Start launches a migration job in the background and returns immediately.
func (s *MigrationService) Start(ctx context.Context, source, mode string) *Job {
	job := s.manager.CreateJob(ctx, source, mode)
	go s.execute(job, false)
	return job
}

// Resume continues an interrupted migration from its last checkpoint.
func (s *MigrationService) Resume(ctx context.Context, source string) (*Job, error) {
	if !s.checkpoints.CanResume(ctx, source) {
		return nil, fmt.Errorf("nothing to resume for %s: no analysis checkpoint", source)
	}
	job := s.manager.CreateJob(ctx, source, pipeline.ModeURL)
	go s.execute(job, true)
	return job, nil
}

func (s *MigrationService) execute(job *Job, resume bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job goroutine panicked", "job_id", job.ID, "panic", r)
			s.manager.Fail(context.Background(), job, fmt.Errorf("internal panic: %v", r))
		}
	}()

	ctx := context.Background()
	s.manager.SetRunning(ctx, job)

	engine := pipeline.New(s.state, s.checkpoints, s.handlers(), pipeline.EmitterFunc(func(event pipeline.Event) {
		s.manager.UpdateProgress(job, event)
		if s.emitter != nil {
			s.emitter.Emit(event)
		}
	}), s.logger)

	var report pipeline.Report
	var err error
	if resume {
		report, err = engine.Resume(ctx, job.Source, job.Mode, job.ID)
	} else {
		report, err = engine.Run(ctx, job.Source, job.Mode, job.ID)
	}
	if err != nil {
		s.manager.Fail(ctx, job, err)
		return
	}
	s.manager.Complete(ctx, job, report)
}

// handlers binds every phase to its collaborator. The mapping and build
// phases carry the in-process scorer and refinement loops.
func (s *MigrationService) handlers() pipeline.Handlers {
	return pipeline.Handlers{
		pipeline.PhaseProbe:    s.probePhase,
		pipeline.PhaseAnalysis: s.analysisPhase,
		pipeline.PhaseTraining: s.trainingPhase,
		pipeline.PhaseMapping:  s.mappingPhase,
		pipeline.PhaseBuild:    s.buildPhase,
		pipeline.PhaseTheme:    s.themePhase,
		pipeline.PhaseContent:  s.contentPhase,
		pipeline.PhaseTest:     s.testPhase,
		pipeline.PhaseQA:       s.qaPhase,
		pipeline.PhaseReview:   s.reviewPhase,
		pipeline.PhasePublish:  s.publishPhase,
	}
}

func (s *MigrationService) probePhase(ctx context.Context, pc *pipeline.PhaseContext) pipeline.Result {
	if s.collab.Prober == nil {
		return pipeline.Degraded(map[string]any{}, "no probing collaborator configured")
	}
	envelopes, err := s.collab.Prober.Probe(ctx)
	if err != nil {
		return pipeline.Failed(fmt.Errorf("probe target: %w", err))
	}
	if err := mapping.ValidateEnvelopes(envelopes); err != nil {
		return pipeline.Failed(fmt.Errorf("probe returned invalid capability data: %w", err))
	}
	return pipeline.Ok(map[string]any{"components": envelopes})
}

func (s *MigrationService) analysisPhase(ctx context.Context, pc *pipeline.PhaseContext) pipeline.Result {
	if s.collab.Analyzer == nil {
		return pipeline.Degraded(map[string]any{}, "no analysis collaborator configured")
	}
	blueprint, err := s.collab.Analyzer.Analyze(ctx, pc.Source, pc.Mode)
	if err != nil {
		return pipeline.Failed(fmt.Errorf("analyze source: %w", err))
	}
	return pipeline.Ok(map[string]any{
		"blueprint": blueprint,
		"pages":     len(blueprint.Pages),
		"sections":  len(blueprint.Sections),
	})
}

func (s *MigrationService) trainingPhase(ctx context.Context, pc *pipeline.PhaseContext) pipeline.Result {
	if s.collab.Trainer == nil {
		return pipeline.Degraded(map[string]any{}, "no training collaborator configured")
	}
	var envelopes map[string]mapping.CapabilityEnvelope
	if err := decode(pc.Results[pipeline.PhaseProbe]["components"], &envelopes); err != nil {
		return pipeline.Degraded(map[string]any{}, "no capability data from probe phase, nothing to train on")
	}
	documented, err := s.collab.Trainer.Train(ctx, envelopes)
	if err != nil {
		return pipeline.Failed(fmt.Errorf("train on components: %w", err))
	}
	return pipeline.Ok(map[string]any{"components_documented": documented})
}

func (s *MigrationService) mappingPhase(ctx context.Context, pc *pipeline.PhaseContext) pipeline.Result {
	// Missing upstream data means probe or analysis already degraded or
	// failed and was reported there; mapping has nothing of its own to add.
	var blueprint mapping.Blueprint
	if err := decode(pc.Results[pipeline.PhaseAnalysis]["blueprint"], &blueprint); err != nil {
		return pipeline.Degraded(map[string]any{}, "no blueprint from analysis phase, nothing to map")
	}
	var envelopes map[string]mapping.CapabilityEnvelope
	if err := decode(pc.Results[pipeline.PhaseProbe]["components"], &envelopes); err != nil {
		return pipeline.Degraded(map[string]any{}, "no capability data from probe phase, nothing to map")
	}

	knowledge, _ := store.GetJSON[mapping.Knowledge](ctx, pc.State, knowledgeKey)

	scorer, err := mapping.NewScorer(envelopes, knowledge)
	if err != nil {
		return pipeline.Failed(fmt.Errorf("create scorer: %w", err))
	}
	manifest := scorer.Score(blueprint)

	if err := pc.State.Set(ctx, "job/"+pc.JobID+"/manifest", manifest, 0); err != nil {
		return pipeline.Degraded(manifestData(manifest), fmt.Sprintf("manifest not persisted: %v", err))
	}
	return pipeline.Ok(manifestData(manifest))
}

func (s *MigrationService) buildPhase(ctx context.Context, pc *pipeline.PhaseContext) pipeline.Result {
	if s.collab.Builder == nil {
		return pipeline.Degraded(map[string]any{}, "no build collaborator configured")
	}
	manifest, ok := store.GetJSON[mapping.Manifest](ctx, pc.State, "job/"+pc.JobID+"/manifest")
	if !ok {
		return pipeline.Failed(fmt.Errorf("no mapping manifest for job %s", pc.JobID))
	}

	pages, err := s.collab.Builder.BuildPages(ctx, manifest)
	if err != nil {
		return pipeline.Failed(fmt.Errorf("build pages: %w", err))
	}

	data := map[string]any{"built_pages": pages, "pages_built": len(pages)}

	if s.collab.Oracle != nil {
		refinements := s.refinePages(ctx, pages)
		data["refinements"] = refinements
		if err := pc.State.Set(ctx, "job/"+pc.JobID+"/refinements", refinements, 0); err != nil {
			s.logger.Warn("failed to persist refinement results", "job_id", pc.JobID, "error", err)
		}
	}

	s.recordSuccessfulMappings(ctx, pc.State, manifest)
	return pipeline.Ok(data)
}

// refinePages runs the page-scope meso-loop for every built page. All pages
// in one build pass draw from one shared iteration pool.
func (s *MigrationService) refinePages(ctx context.Context, pages []BuiltPage) []refine.Result {
	controller := refine.NewController(s.collab.Oracle, s.collab.Adjuster, s.collab.Diagnostic, s.params, s.logger)
	pool := refine.NewPool(s.params.MesoBudget)

	results := make([]refine.Result, 0, len(pages))
	for _, page := range pages {
		results = append(results, controller.RefinePage(ctx, page.SourceRef, page.ArtifactRef, pool))
	}
	return results
}

// recordSuccessfulMappings appends confident mappings to the knowledge feed
// so later runs can boost matching elements.
func (s *MigrationService) recordSuccessfulMappings(ctx context.Context, state store.Store, manifest mapping.Manifest) {
	knowledge, _ := store.GetJSON[mapping.Knowledge](ctx, state, knowledgeKey)
	known := map[string]bool{}
	for _, prior := range knowledge.SuccessfulMappings {
		known[prior.SourceElement+"|"+prior.Component] = true
	}

	for _, m := range manifest.Mappings {
		if m.Confidence < mapping.ConfidenceHigh || known[m.SourceType+"|"+m.TargetComponent] {
			continue
		}
		knowledge.SuccessfulMappings = append(knowledge.SuccessfulMappings, mapping.PriorMapping{
			SourceElement: m.SourceType,
			Component:     m.TargetComponent,
		})
	}
	if err := state.Set(ctx, knowledgeKey, knowledge, 0); err != nil {
		s.logger.Warn("failed to update knowledge feed", "error", err)
	}
}

func (s *MigrationService) themePhase(ctx context.Context, pc *pipeline.PhaseContext) pipeline.Result {
	if s.collab.Themer == nil {
		return pipeline.Degraded(map[string]any{}, "no theme collaborator configured")
	}
	if err := s.collab.Themer.ApplyTheme(ctx, pc.JobID); err != nil {
		return pipeline.Failed(fmt.Errorf("apply theme: %w", err))
	}
	return pipeline.Ok(map[string]any{"css_applied": true})
}

func (s *MigrationService) contentPhase(ctx context.Context, pc *pipeline.PhaseContext) pipeline.Result {
	if s.collab.Migrator == nil {
		return pipeline.Degraded(map[string]any{}, "no content collaborator configured")
	}
	manifest, ok := store.GetJSON[mapping.Manifest](ctx, pc.State, "job/"+pc.JobID+"/manifest")
	if !ok {
		return pipeline.Failed(fmt.Errorf("no mapping manifest for job %s", pc.JobID))
	}
	created, err := s.collab.Migrator.MigrateContent(ctx, manifest)
	if err != nil {
		return pipeline.Failed(fmt.Errorf("migrate content: %w", err))
	}
	return pipeline.Ok(map[string]any{"created": created})
}

func (s *MigrationService) testPhase(ctx context.Context, pc *pipeline.PhaseContext) pipeline.Result {
	if s.collab.Tester == nil {
		return pipeline.Degraded(map[string]any{}, "no test collaborator configured")
	}
	var pages []BuiltPage
	if err := decode(pc.Results[pipeline.PhaseBuild]["built_pages"], &pages); err != nil {
		s.logger.Warn("test phase has no built pages", "job_id", pc.JobID)
	}
	report, err := s.collab.Tester.RunTests(ctx, pages)
	if err != nil {
		return pipeline.Failed(fmt.Errorf("run tests: %w", err))
	}
	return pipeline.Ok(map[string]any{
		"overall_score": report.OverallScore,
		"readiness":     report.OverallScore,
		"ready_for_qa":  report.ReadyForQA,
		"fixes_needed":  report.FixesNeeded,
	})
}

func (s *MigrationService) qaPhase(ctx context.Context, pc *pipeline.PhaseContext) pipeline.Result {
	if s.collab.Auditor == nil {
		return pipeline.Degraded(map[string]any{}, "no qa collaborator configured")
	}
	score, err := s.collab.Auditor.RunQA(ctx)
	if err != nil {
		return pipeline.Failed(fmt.Errorf("run qa: %w", err))
	}
	return pipeline.Ok(map[string]any{"score": score})
}

// reviewPhase surfaces low-confidence mappings as a non-blocking signal. It
// never fails; unresolved review items do not block publish.
func (s *MigrationService) reviewPhase(ctx context.Context, pc *pipeline.PhaseContext) pipeline.Result {
	manifest, ok := store.GetJSON[mapping.Manifest](ctx, pc.State, "job/"+pc.JobID+"/manifest")
	if !ok {
		return pipeline.Degraded(map[string]any{}, "no manifest to review")
	}
	items := make([]string, 0, len(manifest.ReviewItems))
	for _, item := range manifest.ReviewItems {
		items = append(items, fmt.Sprintf("%s (%s): %s", item.ElementID, item.SourceType, item.Reasoning))
	}
	if len(items) > 0 {
		return pipeline.Degraded(
			map[string]any{"review_items": items},
			fmt.Sprintf("%d mappings need human review", len(items)))
	}
	return pipeline.Ok(map[string]any{"review_items": items})
}

func (s *MigrationService) publishPhase(ctx context.Context, pc *pipeline.PhaseContext) pipeline.Result {
	if s.collab.Publisher == nil {
		return pipeline.Degraded(map[string]any{}, "no publish collaborator configured")
	}
	siteURL, err := s.collab.Publisher.Publish(ctx, pc.JobID)
	if err != nil {
		return pipeline.Failed(fmt.Errorf("publish site: %w", err))
	}
	return pipeline.Ok(map[string]any{"site_url": siteURL})
}

func manifestData(manifest mapping.Manifest) map[string]any {
	return map[string]any{
		"mappings":        len(manifest.Mappings),
		"high_confidence": manifest.Statistics.HighConfidence,
		"low_confidence":  manifest.Statistics.LowConfidence,
		"requires_review": manifest.RequiresReview,
	}
}

// decode round-trips a loosely typed phase result value into a typed record.
func decode(value any, target any) error {
	if value == nil {
		return fmt.Errorf("value missing")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

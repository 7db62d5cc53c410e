package refine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/avollmer/sitegraft/internal/config"
)

// Built-in loop parameters. Tuning overrides apply per field.
const (
	defaultThreshold       = 0.85
	defaultMicroIterations = 5
	defaultMesoIterations  = 3
	defaultMesoBudget      = 10
	defaultRegressionDelta = 0.10
	defaultEscalationFloor = 0.30
)

// Params are the resolved loop parameters.
type Params struct {
	Threshold       float64
	MicroIterations int
	MesoIterations  int
	MesoBudget      int
	RegressionDelta float64
	EscalationFloor float64
}

// DefaultParams returns the built-in parameters.
func DefaultParams() Params {
	return Params{
		Threshold:       defaultThreshold,
		MicroIterations: defaultMicroIterations,
		MesoIterations:  defaultMesoIterations,
		MesoBudget:      defaultMesoBudget,
		RegressionDelta: defaultRegressionDelta,
		EscalationFloor: defaultEscalationFloor,
	}
}

// ParamsFromTuning overlays non-zero tuning values on the defaults.
func ParamsFromTuning(t config.Tuning) Params {
	p := DefaultParams()
	if t.SimilarityThreshold > 0 {
		p.Threshold = t.SimilarityThreshold
	}
	if t.MicroIterations > 0 {
		p.MicroIterations = t.MicroIterations
	}
	if t.MesoIterations > 0 {
		p.MesoIterations = t.MesoIterations
	}
	if t.MesoBudget > 0 {
		p.MesoBudget = t.MesoBudget
	}
	if t.RegressionDelta > 0 {
		p.RegressionDelta = t.RegressionDelta
	}
	if t.EscalationFloor > 0 {
		p.EscalationFloor = t.EscalationFloor
	}
	return p
}

// Result is the outcome of one refinement run for a scope. Only the
// best-seen attempt is retained.
type Result struct {
	Scope          string   `json:"scope"`
	Passed         bool     `json:"passed"`
	Skipped        bool     `json:"skipped"`
	BestSimilarity float64  `json:"best_similarity"`
	IterationsUsed int      `json:"iterations_used"`
	WeakRegions    []Region `json:"weak_regions"`
	Diagnosis      string   `json:"diagnosis,omitempty"`
}

// Pool is the shared iteration budget for all pages in one build pass.
// Single goroutine per build pass; no locking.
type Pool struct {
	remaining int
}

// NewPool creates a budget pool of n total iterations.
func NewPool(n int) *Pool {
	return &Pool{remaining: n}
}

// Remaining reports the unspent budget.
func (p *Pool) Remaining() int {
	return p.remaining
}

// take reserves one iteration. Budget is spent before the oracle runs, so an
// erroring iteration can never un-spend it.
func (p *Pool) take() bool {
	if p.remaining <= 0 {
		return false
	}
	p.remaining--
	return true
}

// Controller runs bounded refinement loops against the similarity oracle.
type Controller struct {
	oracle     Oracle
	adjuster   Adjuster
	diagnostic Diagnostic
	params     Params
	logger     *slog.Logger
}

// NewController creates a loop controller. adjuster and diagnostic may be
// nil; the loops then only re-measure and skip escalation annotation.
func NewController(oracle Oracle, adjuster Adjuster, diagnostic Diagnostic, params Params, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		oracle:     oracle,
		adjuster:   adjuster,
		diagnostic: diagnostic,
		params:     params,
		logger:     logger,
	}
}

// RefineComponent runs the component-scope micro-loop: up to
// MicroIterations oracle rounds, early exit at the threshold, best-seen
// result kept.
func (c *Controller) RefineComponent(ctx context.Context, sourceRef, artifactRef string) Result {
	res := Result{Scope: "component:" + artifactRef}

	for i := 0; i < c.params.MicroIterations; i++ {
		cmp, err := c.oracle.Compare(ctx, sourceRef, artifactRef, "component")
		if err != nil {
			if errors.Is(err, ErrOracleUnavailable) {
				c.logger.Warn("similarity oracle unavailable, skipping refinement", "scope", res.Scope)
				res.Skipped = true
				return res
			}
			c.logger.Error("oracle comparison failed", "scope", res.Scope, "iteration", i+1, "error", err)
			res.IterationsUsed++
			continue
		}
		res.IterationsUsed++

		if cmp.Similarity > res.BestSimilarity {
			res.BestSimilarity = cmp.Similarity
			res.WeakRegions = cmp.Regions
		}
		if cmp.Similarity >= c.params.Threshold {
			res.Passed = true
			return res
		}

		c.apply(ctx, artifactRef, cmp.Instructions)
	}

	res.Passed = res.BestSimilarity >= c.params.Threshold
	return res
}

// RefinePage runs the page-scope meso-loop. Per-page iterations are capped
// at MesoIterations, and every iteration also draws from the shared pool.
// Stopping conditions are checked after each iteration: threshold reached,
// regression more than RegressionDelta below best-seen, per-page cap, pool
// exhausted.
func (c *Controller) RefinePage(ctx context.Context, sourceRef, artifactRef string, pool *Pool) Result {
	res := Result{Scope: "page:" + artifactRef}
	diagnosed := false

	for i := 0; i < c.params.MesoIterations; i++ {
		if !pool.take() {
			c.logger.Info("shared refinement pool exhausted", "scope", res.Scope, "iterations_used", res.IterationsUsed)
			break
		}

		cmp, err := c.oracle.Compare(ctx, sourceRef, artifactRef, "page")
		if err != nil {
			if errors.Is(err, ErrOracleUnavailable) {
				c.logger.Warn("similarity oracle unavailable, skipping refinement", "scope", res.Scope)
				res.Skipped = true
				return res
			}
			c.logger.Error("oracle comparison failed", "scope", res.Scope, "iteration", i+1, "error", err)
			res.IterationsUsed++
			continue
		}
		res.IterationsUsed++

		if cmp.Similarity > res.BestSimilarity {
			res.BestSimilarity = cmp.Similarity
			res.WeakRegions = cmp.Regions
		}

		if cmp.Similarity < c.params.EscalationFloor && !diagnosed {
			diagnosed = true
			res.Diagnosis = c.diagnose(ctx, sourceRef, artifactRef, cmp.Regions)
		}

		if cmp.Similarity >= c.params.Threshold {
			res.Passed = true
			return res
		}
		if res.BestSimilarity-cmp.Similarity > c.params.RegressionDelta {
			c.logger.Info("similarity regressed, stopping refinement",
				"scope", res.Scope, "best", res.BestSimilarity, "current", cmp.Similarity)
			return res
		}

		c.apply(ctx, artifactRef, cmp.Instructions)
	}

	res.Passed = res.BestSimilarity >= c.params.Threshold
	return res
}

func (c *Controller) apply(ctx context.Context, artifactRef string, instructions []Instruction) {
	if c.adjuster == nil || len(instructions) == 0 {
		return
	}
	if err := c.adjuster.Apply(ctx, artifactRef, instructions); err != nil {
		c.logger.Warn("failed to apply refinement instructions", "artifact", artifactRef, "error", err)
	}
}

// diagnose runs the one-shot missing-piece analysis. It annotates the
// result only and never changes stopping logic.
func (c *Controller) diagnose(ctx context.Context, sourceRef, artifactRef string, regions []Region) string {
	if c.diagnostic == nil {
		return ""
	}
	diagnosis, err := c.diagnostic.Diagnose(ctx, sourceRef, artifactRef, regions)
	if err != nil {
		c.logger.Warn("missing piece analysis failed", "artifact", artifactRef, "error", err)
		return ""
	}
	c.logger.Info("missing piece analysis", "artifact", artifactRef, "diagnosis", diagnosis)
	return diagnosis
}

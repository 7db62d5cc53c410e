// Package refine bounds the open-ended "make it look more similar"
// optimization with deterministic stopping rules. The visual comparison
// itself lives behind the Oracle interface; the stopping policy here is the
// designed artifact.
package refine

import (
	"context"
	"errors"
)

// ErrOracleUnavailable signals that the similarity oracle cannot run at all.
// Refinement is then skipped, not failed.
var ErrOracleUnavailable = errors.New("similarity oracle unavailable")

// Severity classifies how badly a region diverges from the source.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Region is one area where the built artifact differs from its source.
type Region struct {
	Position        string   `json:"position"`
	DifferenceRatio float64  `json:"difference_ratio"`
	Severity        Severity `json:"severity"`
}

// Instruction is a concrete adjustment suggested by the oracle.
type Instruction struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// Comparison is the oracle's verdict for one source/artifact pair.
type Comparison struct {
	Similarity   float64       `json:"similarity"`
	Regions      []Region      `json:"regions"`
	Instructions []Instruction `json:"instructions"`
}

// Oracle compares a built artifact to its source reference. Calls must be
// side-effect-free and repeatable.
type Oracle interface {
	Compare(ctx context.Context, sourceRef, artifactRef, scope string) (Comparison, error)
}

// Adjuster applies oracle instructions to an artifact between iterations.
// Implemented by the build collaborator; may be nil, in which case the loop
// only re-measures.
type Adjuster interface {
	Apply(ctx context.Context, artifactRef string, instructions []Instruction) error
}

// Diagnostic produces a one-shot "missing piece" analysis when a page's
// similarity collapses. It annotates the result and nothing else.
type Diagnostic interface {
	Diagnose(ctx context.Context, sourceRef, artifactRef string, regions []Region) (string, error)
}

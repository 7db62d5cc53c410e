package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/avollmer/sitegraft/internal/refine"
)

const diagnoseSystemPrompt = `You are a web migration analyst. A rebuilt page scores far below its
visual-similarity target. Based on the differing regions, identify the most
likely missing piece (a structural element, stylesheet, image, or font that
was not carried over). Answer in one or two sentences.`

// Diagnoser runs the one-shot missing-piece analysis for pages whose
// similarity collapses during refinement.
type Diagnoser struct {
	model *Model
}

// NewDiagnoser wraps a reasoning model as a refinement diagnostic.
func NewDiagnoser(model *Model) *Diagnoser {
	return &Diagnoser{model: model}
}

// Diagnose asks the reasoning model what is missing from the artifact.
func (d *Diagnoser) Diagnose(ctx context.Context, sourceRef, artifactRef string, regions []refine.Region) (string, error) {
	answer, err := d.model.GenerateWithSystem(ctx, diagnoseSystemPrompt, diagnosePrompt(sourceRef, artifactRef, regions))
	if err != nil {
		return "", fmt.Errorf("missing piece analysis: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func diagnosePrompt(sourceRef, artifactRef string, regions []refine.Region) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Source: %s\nArtifact: %s\n\nDiffering regions:\n", sourceRef, artifactRef)
	for _, r := range regions {
		fmt.Fprintf(&sb, "- %s: difference %.2f, severity %s\n", r.Position, r.DifferenceRatio, r.Severity)
	}
	sb.WriteString("\nMost likely missing piece:")
	return sb.String()
}

package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/avollmer/sitegraft/internal/refine"
)

// Difference thresholds for region severity.
const (
	highSeverityRatio   = 0.5
	mediumSeverityRatio = 0.25
)

// regionThreshold is the per-block similarity below which a block counts as
// a divergent region.
const regionThreshold = 0.9

// maxInstructions caps how many adjustment hints one comparison emits.
const maxInstructions = 3

// FetchFunc resolves an artifact or source reference to its text content.
type FetchFunc func(ctx context.Context, ref string) (string, error)

// FetchFile reads refs as local file paths. Build collaborators that render
// pages to disk use this directly.
func FetchFile(_ context.Context, ref string) (string, error) {
	raw, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", ref, err)
	}
	return string(raw), nil
}

// EmbeddingOracle measures similarity between a source reference and a built
// artifact by embedding their text blocks. Comparisons are repeatable: the
// same inputs produce the same verdict.
type EmbeddingOracle struct {
	embedder Embedder
	fetch    FetchFunc
	logger   *slog.Logger
}

var _ refine.Oracle = (*EmbeddingOracle)(nil)

// New creates an embedding oracle. fetch may be nil, defaulting to local
// file reads.
func New(embedder Embedder, fetch FetchFunc, logger *slog.Logger) *EmbeddingOracle {
	if fetch == nil {
		fetch = FetchFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbeddingOracle{embedder: embedder, fetch: fetch, logger: logger}
}

// Compare embeds both sides block by block and pairs them up in order.
// Unreachable refs make the oracle unavailable rather than failing the
// refinement loop.
func (o *EmbeddingOracle) Compare(ctx context.Context, sourceRef, artifactRef, scope string) (refine.Comparison, error) {
	sourceText, err := o.fetch(ctx, sourceRef)
	if err != nil {
		return refine.Comparison{}, fmt.Errorf("%w: source %s: %v", refine.ErrOracleUnavailable, sourceRef, err)
	}
	artifactText, err := o.fetch(ctx, artifactRef)
	if err != nil {
		return refine.Comparison{}, fmt.Errorf("%w: artifact %s: %v", refine.ErrOracleUnavailable, artifactRef, err)
	}

	sourceBlocks := splitBlocks(sourceText)
	artifactBlocks := splitBlocks(artifactText)
	if len(sourceBlocks) == 0 {
		return refine.Comparison{}, fmt.Errorf("%w: source %s is empty", refine.ErrOracleUnavailable, sourceRef)
	}

	sourceVecs, err := o.embedder.EmbedDocuments(ctx, sourceBlocks)
	if err != nil {
		return refine.Comparison{}, fmt.Errorf("embed source blocks: %w", err)
	}
	var artifactVecs [][]float32
	if len(artifactBlocks) > 0 {
		artifactVecs, err = o.embedder.EmbedDocuments(ctx, artifactBlocks)
		if err != nil {
			return refine.Comparison{}, fmt.Errorf("embed artifact blocks: %w", err)
		}
	}

	comparison := o.compareBlocks(scope, sourceVecs, artifactVecs)
	o.logger.Debug("oracle comparison",
		"scope", scope,
		"similarity", comparison.Similarity,
		"regions", len(comparison.Regions))
	return comparison, nil
}

// compareBlocks pairs source and artifact vectors positionally. Source
// blocks with no artifact counterpart count as fully missing.
func (o *EmbeddingOracle) compareBlocks(scope string, sourceVecs, artifactVecs [][]float32) refine.Comparison {
	var total float64
	regions := []refine.Region{}

	for i, sourceVec := range sourceVecs {
		var similarity float64
		if i < len(artifactVecs) {
			similarity = cosine(sourceVec, artifactVecs[i])
		}
		total += similarity

		if similarity < regionThreshold {
			ratio := 1 - similarity
			regions = append(regions, refine.Region{
				Position:        fmt.Sprintf("%s/block_%d", scope, i),
				DifferenceRatio: ratio,
				Severity:        severityFor(ratio),
			})
		}
	}

	return refine.Comparison{
		Similarity:   total / float64(len(sourceVecs)),
		Regions:      regions,
		Instructions: instructionsFor(regions, len(artifactVecs)),
	}
}

// instructionsFor turns the worst regions into concrete adjustment hints.
func instructionsFor(regions []refine.Region, artifactBlocks int) []refine.Instruction {
	instructions := []refine.Instruction{}
	for _, region := range regions {
		if len(instructions) == maxInstructions {
			break
		}
		action := "rewrite_block"
		message := fmt.Sprintf("content at %s diverges from the source (%.0f%% different)",
			region.Position, region.DifferenceRatio*100)
		if region.DifferenceRatio >= 1 {
			action = "add_block"
			message = fmt.Sprintf("source content at %s is missing from the artifact", region.Position)
		}
		instructions = append(instructions, refine.Instruction{Action: action, Message: message})
	}
	if artifactBlocks == 0 && len(instructions) == 0 {
		instructions = append(instructions, refine.Instruction{
			Action:  "add_block",
			Message: "artifact has no content blocks at all",
		})
	}
	return instructions
}

func severityFor(ratio float64) refine.Severity {
	switch {
	case ratio > highSeverityRatio:
		return refine.SeverityHigh
	case ratio > mediumSeverityRatio:
		return refine.SeverityMedium
	default:
		return refine.SeverityLow
	}
}

// splitBlocks breaks text into paragraph-level blocks. Blank-line separated,
// whitespace trimmed, empty blocks dropped.
func splitBlocks(text string) []string {
	var blocks []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

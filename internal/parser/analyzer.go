package parser

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/avollmer/sitegraft/internal/mapping"
	"github.com/avollmer/sitegraft/internal/pipeline"
)

// DescriptionAnalyzer builds blueprints from Markdown descriptions. It only
// handles description mode; URL-mode analysis needs a scraping collaborator.
type DescriptionAnalyzer struct {
	logger *slog.Logger
}

// NewDescriptionAnalyzer creates the analyzer. logger may be nil.
func NewDescriptionAnalyzer(logger *slog.Logger) *DescriptionAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DescriptionAnalyzer{logger: logger}
}

// Analyze parses the source as a Markdown description. The source is a file
// path when one exists on disk, otherwise the description text itself.
func (a *DescriptionAnalyzer) Analyze(_ context.Context, source, mode string) (mapping.Blueprint, error) {
	if mode != pipeline.ModeDescription {
		return mapping.Blueprint{}, fmt.Errorf("description analyzer cannot handle mode %q", mode)
	}

	content := source
	if raw, err := os.ReadFile(source); err == nil {
		content = string(raw)
	}

	bp, err := ParseDescription(content)
	if err != nil {
		return mapping.Blueprint{}, fmt.Errorf("parse description: %w", err)
	}
	if len(bp.Sections) == 0 && len(bp.Pages) == 0 {
		return mapping.Blueprint{}, fmt.Errorf("description contains no sections or pages")
	}

	a.logger.Info("description analyzed",
		"title", bp.Title,
		"sections", len(bp.Sections),
		"pages", len(bp.Pages))
	return bp, nil
}

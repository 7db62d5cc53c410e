package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avollmer/sitegraft/internal/pipeline"
)

const sampleDescription = `---
title: Acme Corp
pages:
  - title: Latest News
    path: /news
    content_type: blog post
  - title: Contact Us
    path: /contact
    content_type: contact page
---

# Acme Corp

## Hero banner

Big welcome message with a background photo.

![hero](hero.jpg)

## Our Services

Three columns describing what we sell.

## Customer Reviews

Quotes from happy customers.

## Footer

Copyright and social links.
`

func TestParseDescription(t *testing.T) {
	bp, err := ParseDescription(sampleDescription)
	require.NoError(t, err)

	assert.Equal(t, "Acme Corp", bp.Title)
	require.Len(t, bp.Sections, 4)

	assert.Equal(t, "hero", bp.Sections[0].Type)
	assert.Equal(t, "Hero banner", bp.Sections[0].Heading)
	assert.True(t, bp.Sections[0].HasImages)

	assert.Equal(t, "features", bp.Sections[1].Type)
	assert.False(t, bp.Sections[1].HasImages)
	assert.Equal(t, "testimonials", bp.Sections[2].Type)
	assert.Equal(t, "footer", bp.Sections[3].Type)

	for i, section := range bp.Sections {
		assert.Equal(t, i, section.Index)
	}

	require.Len(t, bp.Pages, 2)
	assert.Equal(t, "/news", bp.Pages[0].Path)
	assert.Equal(t, "blog post", bp.Pages[0].ContentType)
}

func TestParseDescriptionWithoutFrontmatter(t *testing.T) {
	bp, err := ParseDescription("# My Site\n\n## About us\n\nWho we are.\n")
	require.NoError(t, err)

	assert.Equal(t, "My Site", bp.Title)
	require.Len(t, bp.Sections, 1)
	assert.Equal(t, "about", bp.Sections[0].Type)
	assert.Empty(t, bp.Pages)
}

func TestParseDescriptionMalformedFrontmatter(t *testing.T) {
	bp, err := ParseDescription("---\n: not yaml [\n---\n\n## Contact\n")
	require.NoError(t, err)
	require.Len(t, bp.Sections, 1)
	assert.Equal(t, "contact", bp.Sections[0].Type)
}

func TestClassifySection(t *testing.T) {
	tests := []struct {
		heading string
		want    string
	}{
		{"Hero banner", "hero"},
		{"Main Navigation", "navigation"},
		{"What our customers say: reviews", "testimonials"},
		{"Meet the Team!", "team"},
		{"Pricing plans", "pricing"},
		{"Random musings", "content"},
	}

	for _, tt := range tests {
		t.Run(tt.heading, func(t *testing.T) {
			assert.Equal(t, tt.want, classifySection(tt.heading))
		})
	}
}

func TestAnalyzeInlineDescription(t *testing.T) {
	analyzer := NewDescriptionAnalyzer(nil)

	bp, err := analyzer.Analyze(context.Background(), "# Site\n\n## Contact\n", pipeline.ModeDescription)
	require.NoError(t, err)
	assert.Equal(t, "Site", bp.Title)
	require.Len(t, bp.Sections, 1)
}

func TestAnalyzeRejectsURLMode(t *testing.T) {
	analyzer := NewDescriptionAnalyzer(nil)

	_, err := analyzer.Analyze(context.Background(), "https://example.com", pipeline.ModeURL)
	assert.Error(t, err)
}

func TestAnalyzeRejectsEmptyDescription(t *testing.T) {
	analyzer := NewDescriptionAnalyzer(nil)

	_, err := analyzer.Analyze(context.Background(), "just some prose, no structure", pipeline.ModeDescription)
	assert.Error(t, err)
}

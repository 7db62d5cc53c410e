package mapping

import (
	"fmt"
	"strings"
)

// Blueprint is the analyzed structure of the source site, produced by the
// external analysis collaborator.
type Blueprint struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
	Pages    []Page    `json:"pages"`
}

// Section is one structural element of a source page.
type Section struct {
	Index     int    `json:"index"`
	Type      string `json:"type"`
	Heading   string `json:"heading,omitempty"`
	HasImages bool   `json:"has_images,omitempty"`
}

// Page is one source page to be recreated in the target CMS.
type Page struct {
	Title       string `json:"title"`
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
}

// fallbackComponent is used when no rule matches and no precedent exists.
const fallbackComponent = "basic_page"

// componentRules maps source section classifications to target component
// names. A rule only counts when the component is actually present in the
// capability set.
var componentRules = map[string]string{
	"hero":         "page",
	"navigation":   "menu_block",
	"features":     "article",
	"about":        "page",
	"blog":         "article",
	"contact":      "contact_form",
	"footer":       "basic_block",
	"testimonials": "testimonials",
	"team":         "article",
	"pricing":      "page",
	"content":      "page",
	"header":       "menu_block",
}

// requiredFields lists the fields a component must expose to reproduce a
// section class at high fidelity.
var requiredFields = map[string][]string{
	"hero":     {"body", "title"},
	"features": {"body", "title"},
	"blog":     {"body", "title", "field_image"},
	"about":    {"body", "title"},
}

var defaultRequiredFields = []string{"title", "body"}

// Scorer deterministically maps source elements to target components.
// Given identical inputs (blueprint, capability envelopes, prior-mapping
// history) the output is fully reproducible.
type Scorer struct {
	envelopes map[string]CapabilityEnvelope
	knowledge Knowledge
}

// NewScorer creates a scorer over a validated capability set and the
// prior-mapping history.
func NewScorer(envelopes map[string]CapabilityEnvelope, knowledge Knowledge) (*Scorer, error) {
	if err := ValidateEnvelopes(envelopes); err != nil {
		return nil, fmt.Errorf("invalid capability set: %w", err)
	}
	return &Scorer{envelopes: envelopes, knowledge: knowledge}, nil
}

// Score produces the mapping manifest for a blueprint. The manifest is
// computed in one pass and never patched afterwards.
func (s *Scorer) Score(bp Blueprint) Manifest {
	mappings := make([]ElementMapping, 0, len(bp.Sections)+len(bp.Pages))
	for _, section := range bp.Sections {
		mappings = append(mappings, s.mapSection(section))
	}
	for _, page := range bp.Pages {
		mappings = append(mappings, s.mapPage(page))
	}
	return buildManifest(mappings)
}

// mapSection chooses a component for one section and scores the choice.
func (s *Scorer) mapSection(section Section) ElementMapping {
	learned := s.knowledge.LearnedComponent(section.Type)
	ruled := s.ruleComponent(section.Type)

	component := ruled
	if component == "" && learned != "" {
		component = learned
	}

	var confidence float64
	var reasoning string
	switch {
	case learned != "":
		confidence = 0.95
		if component == "" {
			component = learned
		}
		reasoning = fmt.Sprintf("mapped to %s based on a past successful migration", component)
	case ruled != "":
		confidence = 0.8
		reasoning = fmt.Sprintf("mapped to %s based on section type %q", ruled, section.Type)
	default:
		confidence = 0.5
		component = fallbackComponent
		reasoning = fmt.Sprintf("no match for %q, using default component", section.Type)
	}

	return ElementMapping{
		ElementID:        fmt.Sprintf("section_%d", section.Index),
		ElementType:      "section",
		SourceType:       section.Type,
		Heading:          section.Heading,
		TargetComponent:  component,
		Confidence:       confidence,
		FidelityEstimate: s.estimateFidelity(section.Type, component),
		Compromises:      s.findCompromises(section, component),
		RequiresReview:   confidence < ConfidenceLow,
		Reasoning:        reasoning,
	}
}

// mapPage chooses a content type for a source page.
func (s *Scorer) mapPage(page Page) ElementMapping {
	contentType := strings.ToLower(page.ContentType)

	component := "page"
	confidence := 0.9
	switch {
	case strings.Contains(contentType, "article"),
		strings.Contains(contentType, "blog"),
		strings.Contains(contentType, "news"):
		component = "article"
		confidence = 0.95
	case strings.Contains(contentType, "contact"):
		component = "contact_form"
		confidence = 0.7
	}

	fidelity := 0.6
	if confidence > ConfidenceHigh {
		fidelity = 0.9
	}

	return ElementMapping{
		ElementID:        "page_" + strings.ReplaceAll(page.Path, "/", "_"),
		ElementType:      "page",
		SourceType:       page.ContentType,
		Title:            page.Title,
		Path:             page.Path,
		TargetComponent:  component,
		Confidence:       confidence,
		FidelityEstimate: fidelity,
		Compromises:      []string{},
		RequiresReview:   confidence < ConfidenceLow,
		Reasoning:        fmt.Sprintf("mapped to %s based on URL path and content type", component),
	}
}

// ruleComponent looks up the static rule table and confirms the component
// actually exists in the capability set.
func (s *Scorer) ruleComponent(sourceType string) string {
	component, ok := componentRules[sourceType]
	if !ok {
		return ""
	}
	if _, available := s.envelopes[component]; !available {
		return ""
	}
	return component
}

// estimateFidelity predicts structural quality of the chosen component,
// independent of measured visual similarity.
func (s *Scorer) estimateFidelity(sourceType, component string) float64 {
	env, ok := s.envelopes[component]
	if !ok {
		return 0.3 // no usable component at all
	}

	required, ok := requiredFields[sourceType]
	if !ok {
		required = defaultRequiredFields
	}

	hasAll := true
	for _, field := range required {
		if !env.HasField(field) {
			hasAll = false
			break
		}
	}

	switch {
	case hasAll:
		return 0.9
	case env.HasField("title"):
		return 0.7
	default:
		return 0.5
	}
}

// findCompromises accumulates human-readable notes from independent rule
// checks.
func (s *Scorer) findCompromises(section Section, component string) []string {
	compromises := []string{}

	if section.HasImages {
		env, ok := s.envelopes[component]
		if !ok || (!env.HasField("field_image") && !env.HasField("body")) {
			compromises = append(compromises, "no image field available, images will be inlined in body HTML")
		}
	}

	switch section.Type {
	case "features":
		compromises = append(compromises, "complex feature grid simplified to a basic list layout")
	case "hero":
		compromises = append(compromises, "hero section rendered as a standard page with a full-width body")
	}

	return compromises
}

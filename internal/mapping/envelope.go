// Package mapping chooses a target CMS component for every discovered
// source element and quantifies how much to trust that choice.
package mapping

import (
	"fmt"
)

// FieldSpec describes one field a target component exposes.
type FieldSpec struct {
	Required bool `json:"required"`
	Stable   bool `json:"stable"`
}

// CapabilityEnvelope describes what a target component actually supports.
// Envelopes are produced by the external probing collaborator and validated
// once, at the boundary where they enter the core.
type CapabilityEnvelope struct {
	Fields map[string]FieldSpec `json:"fields"`
	Stable bool                 `json:"stable"`
}

// HasField reports whether the component exposes the named field.
func (e CapabilityEnvelope) HasField(name string) bool {
	_, ok := e.Fields[name]
	return ok
}

// ValidateEnvelopes checks an envelope set handed in by the probing
// collaborator. Component names must be non-empty and every envelope needs a
// field map (possibly empty, never nil).
func ValidateEnvelopes(envelopes map[string]CapabilityEnvelope) error {
	for name, env := range envelopes {
		if name == "" {
			return fmt.Errorf("capability envelope with empty component name")
		}
		if env.Fields == nil {
			return fmt.Errorf("capability envelope %q has no field map", name)
		}
	}
	return nil
}

// PriorMapping is one entry of the prior-successful-mappings history feed.
type PriorMapping struct {
	SourceElement string `json:"source_element"`
	Component     string `json:"drupal_component"`
	Tips          string `json:"tips,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

// Knowledge is the prior-mapping history feed. Append-only from the core's
// perspective; read for confidence boosting.
type Knowledge struct {
	SuccessfulMappings []PriorMapping `json:"successful_mappings"`
	FailurePatterns    []string       `json:"failure_patterns,omitempty"`
}

// LearnedComponent returns the most recent successful component for a
// source type, or "" when none is known.
func (k Knowledge) LearnedComponent(sourceType string) string {
	// Most recent first
	for i := len(k.SuccessfulMappings) - 1; i >= 0; i-- {
		if k.SuccessfulMappings[i].SourceElement == sourceType {
			return k.SuccessfulMappings[i].Component
		}
	}
	return ""
}

package mapping

// Confidence thresholds for bucketing mappings.
const (
	ConfidenceHigh = 0.8
	ConfidenceLow  = 0.5
)

// ElementMapping is the per-element decision: which target component
// represents a source element, and how much to trust that choice.
// Mappings are immutable once produced; a re-run recomputes the whole
// manifest rather than patching entries.
type ElementMapping struct {
	ElementID        string   `json:"element_id"`
	ElementType      string   `json:"element_type"` // "section" or "page"
	SourceType       string   `json:"source_type"`
	Heading          string   `json:"heading,omitempty"`
	Title            string   `json:"title,omitempty"`
	Path             string   `json:"path,omitempty"`
	TargetComponent  string   `json:"target_component"`
	Confidence       float64  `json:"confidence"`
	FidelityEstimate float64  `json:"fidelity_estimate"`
	Compromises      []string `json:"compromises"`
	RequiresReview   bool     `json:"requires_review"`
	Reasoning        string   `json:"reasoning"`
}

// Statistics are pure aggregates over the produced mappings.
type Statistics struct {
	Total            int     `json:"total"`
	HighConfidence   int     `json:"high_confidence"`
	MediumConfidence int     `json:"medium_confidence"`
	LowConfidence    int     `json:"low_confidence"`
	AverageFidelity  float64 `json:"average_fidelity"`
}

// Manifest is the full set of element decisions for one migration, plus the
// review items surfaced as a distinct, non-blocking signal.
type Manifest struct {
	Mappings       []ElementMapping `json:"mappings"`
	Statistics     Statistics       `json:"statistics"`
	RequiresReview bool             `json:"requires_review"`
	ReviewItems    []ElementMapping `json:"review_items"`
}

// buildManifest assembles the manifest and its aggregates from mappings.
func buildManifest(mappings []ElementMapping) Manifest {
	stats := Statistics{Total: len(mappings)}

	var fidelitySum float64
	review := []ElementMapping{}
	for _, m := range mappings {
		switch {
		case m.Confidence >= ConfidenceHigh:
			stats.HighConfidence++
		case m.Confidence >= ConfidenceLow:
			stats.MediumConfidence++
		default:
			stats.LowConfidence++
			review = append(review, m)
		}
		fidelitySum += m.FidelityEstimate
	}
	if len(mappings) > 0 {
		stats.AverageFidelity = fidelitySum / float64(len(mappings))
	}

	return Manifest{
		Mappings:       mappings,
		Statistics:     stats,
		RequiresReview: stats.LowConfidence > 0,
		ReviewItems:    review,
	}
}

package proof

import "strings"

// Proven property tags, in reporting order
const (
	PropertyDataPreservation = "Data Preservation"
	PropertyFDPreservation   = "FD Preservation"
	PropertyReversibility    = "Reversibility"
)

// Coverage summarizes how many plan steps cite at least one proof
type Coverage struct {
	TotalSteps       int      `json:"total_steps"`
	StepsWithProofs  int      `json:"steps_with_proofs"`
	UniqueProofs     int      `json:"unique_proofs"`
	ProvenProperties []string `json:"proven_properties"`
}

// AllVerified reports whether every step cites a proof
func (c Coverage) AllVerified() bool {
	return c.StepsWithProofs == c.TotalSteps
}

// NewCoverage accumulates coverage over steps already assigned a category
func NewCoverage(categories []Category) Coverage {
	seen := make(map[string]bool)
	var data, fds, reversible bool

	cov := Coverage{TotalSteps: len(categories)}
	for _, cat := range categories {
		refs := proofTable[cat]
		if len(refs) > 0 {
			cov.StepsWithProofs++
		}
		for _, ref := range refs {
			seen[ref.Annotation()] = true

			if strings.Contains(ref.Description, "lossless") || strings.Contains(ref.Description, "preserves") {
				data = true
			}
			if strings.Contains(ref.Description, "functional dependencies") || strings.Contains(ref.Description, "FD") {
				fds = true
			}
			if strings.Contains(ref.Description, "reversible") || strings.Contains(ref.Description, "undone") {
				reversible = true
			}
		}
	}
	cov.UniqueProofs = len(seen)

	cov.ProvenProperties = []string{}
	if data {
		cov.ProvenProperties = append(cov.ProvenProperties, PropertyDataPreservation)
	}
	if fds {
		cov.ProvenProperties = append(cov.ProvenProperties, PropertyFDPreservation)
	}
	if reversible {
		cov.ProvenProperties = append(cov.ProvenProperties, PropertyReversibility)
	}
	return cov
}

// CoverageFromDescriptions classifies each description by keyword, then accumulates coverage
func CoverageFromDescriptions(descriptions []string) Coverage {
	categories := make([]Category, len(descriptions))
	for i, d := range descriptions {
		categories[i] = Classify(d)
	}
	return NewCoverage(categories)
}

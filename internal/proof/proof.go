// Package proof maps recovery operations to the externally verified
// correctness properties they are claimed to satisfy.
package proof

import (
	"fmt"
	"strings"
)

// Category is the kind of data operation a recovery step performs
type Category int

const (
	// Unclassified means no category was attached; the description decides
	Unclassified Category = iota
	Insert
	Delete
	Update
	Rollback
	Migration
)

var categoryNames = map[Category]string{
	Unclassified: "Unclassified",
	Insert:       "Insert",
	Delete:       "Delete",
	Update:       "Update",
	Rollback:     "Rollback",
	Migration:    "Migration",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// MarshalText implements encoding.TextMarshaler
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Category) UnmarshalText(text []byte) error {
	for cat, name := range categoryNames {
		if strings.EqualFold(name, string(text)) {
			*c = cat
			return nil
		}
	}
	return fmt.Errorf("unknown operation category %q", string(text))
}

// Reference points at one theorem in the proof library
type Reference struct {
	Module      string `json:"module"`
	Theorem     string `json:"theorem"`
	Description string `json:"description"`
}

// Annotation formats the reference as "module.theorem"
func (r Reference) Annotation() string {
	return r.Module + "." + r.Theorem
}

const (
	losslessModule     = "FormBDDebugger.Proofs.Lossless"
	fdPreservingModule = "FormBDDebugger.Proofs.FDPreserving"
	rollbackModule     = "FormBDDebugger.Proofs.Rollback"
)

var proofTable = map[Category][]Reference{
	Insert: {
		{losslessModule, "insert_is_lossless", "INSERT preserves all existing rows"},
		{losslessModule, "insert_is_reversible", "INSERT can be undone via DELETE"},
		{fdPreservingModule, "insert_preserves_fds_if_compatible", "INSERT preserves functional dependencies when row is compatible"},
	},
	Delete: {
		{losslessModule, "delete_with_archive_is_lossless", "DELETE with archive preserves data (rows are archived, not lost)"},
		{fdPreservingModule, "delete_preserves_fds", "DELETE always preserves functional dependencies"},
		{fdPreservingModule, "delete_snapshot_preserves_fds", "DELETE at snapshot level preserves all FDs"},
	},
	// an update is modeled as a delete followed by an insert
	Update: {
		{losslessModule, "delete_with_archive_is_lossless", "UPDATE's DELETE phase preserves data in archive"},
		{losslessModule, "insert_is_lossless", "UPDATE's INSERT phase preserves existing rows"},
		{losslessModule, "lossless_compose", "Composed operations (DELETE+INSERT) are lossless"},
	},
	Rollback: {
		{rollbackModule, "transaction_rollback_correct", "Transaction rollback restores previous state"},
		{rollbackModule, "migration_reversible", "Migration with inverse is reversible"},
	},
	Migration: {
		{losslessModule, "lossless_compose", "Multi-step migration preserves data"},
		{fdPreservingModule, "FDPreservingTransformation", "Migration preserves all functional dependencies"},
	},
}

// ProofsFor returns the proofs that apply to a category. The result is a copy.
func ProofsFor(c Category) []Reference {
	refs := proofTable[c]
	out := make([]Reference, len(refs))
	copy(out, refs)
	return out
}

// Classify guesses a category from a step description by keyword.
// Keywords are tried in a fixed order, so "add a fix" is an Insert.
func Classify(description string) Category {
	lower := strings.ToLower(description)
	switch {
	case strings.Contains(lower, "insert") || strings.Contains(lower, "add"):
		return Insert
	case strings.Contains(lower, "delete") || strings.Contains(lower, "remove"):
		return Delete
	case strings.Contains(lower, "update") || strings.Contains(lower, "modify") || strings.Contains(lower, "fix"):
		return Update
	case strings.Contains(lower, "rollback") || strings.Contains(lower, "revert"):
		return Rollback
	default:
		return Migration
	}
}

// Resolve returns the explicit category when one is set, otherwise classifies the description
func Resolve(explicit Category, description string) Category {
	if explicit != Unclassified {
		return explicit
	}
	return Classify(description)
}

package schema

import (
	"fmt"
	"strings"
)

// ConstraintType is the kind of a constraint.
//
// Adding a variant requires updating the checker and the recovery
// synthesizer, both of which switch over every value.
type ConstraintType int

const (
	PrimaryKey ConstraintType = iota + 1
	ForeignKey
	Unique
	Check
	Exclusion
	// NotNull is synthesized from column nullability, never introspected as a constraint
	NotNull
)

var constraintTypeNames = map[ConstraintType]string{
	PrimaryKey: "PRIMARY KEY",
	ForeignKey: "FOREIGN KEY",
	Unique:     "UNIQUE",
	Check:      "CHECK",
	Exclusion:  "EXCLUSION",
	NotNull:    "NOT NULL",
}

// String returns the SQL spelling of the constraint type
func (t ConstraintType) String() string {
	if name, ok := constraintTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ConstraintType(%d)", int(t))
}

// Valid reports whether t is one of the declared constraint types
func (t ConstraintType) Valid() bool {
	_, ok := constraintTypeNames[t]
	return ok
}

// MarshalText implements encoding.TextMarshaler
func (t ConstraintType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid constraint type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *ConstraintType) UnmarshalText(text []byte) error {
	parsed, ok := ParseConstraintType(string(text))
	if !ok {
		return fmt.Errorf("unknown constraint type %q", string(text))
	}
	*t = parsed
	return nil
}

// ParseConstraintType accepts both catalog codes (p, f, u, c, x) and SQL spellings
func ParseConstraintType(s string) (ConstraintType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "P", "PRIMARY KEY":
		return PrimaryKey, true
	case "F", "FOREIGN KEY":
		return ForeignKey, true
	case "U", "UNIQUE":
		return Unique, true
	case "C", "CHECK":
		return Check, true
	case "X", "EXCLUSION", "EXCLUDE":
		return Exclusion, true
	case "N", "NOT NULL":
		return NotNull, true
	default:
		return 0, false
	}
}

// Provenance records how a functional dependency was discovered
type Provenance string

const (
	ProvenanceUniqueConstraint Provenance = "derived-from-unique-constraint"
	ProvenancePrimaryKey       Provenance = "primary-key"
	ProvenanceDataAnalysis     Provenance = "data-analysis"
	ProvenanceDeclared         Provenance = "declared"
)

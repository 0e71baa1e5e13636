package schema

import (
	"fmt"
	"strings"
	"time"
)

// Model is an immutable snapshot of one introspection cycle
type Model struct {
	DatabaseName string       `json:"database_name"`
	Dialect      string       `json:"dialect"`
	Tables       []Table      `json:"tables"`
	Constraints  []Constraint `json:"constraints"`
	ExtractedAt  time.Time    `json:"extracted_at"`
}

// Table represents a database table
type Table struct {
	Schema     string   `json:"schema_name"`
	Name       string   `json:"name"`
	Columns    []Column `json:"columns"`
	PrimaryKey []string `json:"primary_key,omitempty"`
	Indexes    []Index  `json:"indexes,omitempty"`
}

// Column represents a table column
type Column struct {
	Name         string   `json:"name"`
	Type         string   `json:"data_type"`
	Nullable     bool     `json:"nullable"`
	DefaultValue *string  `json:"default_value,omitempty"`
	Position     int      `json:"ordinal_position"`
	EnumValues   []string `json:"enum_values,omitempty"`
}

// Index represents a database index
type Index struct {
	Name     string   `json:"name"`
	Columns  []string `json:"columns"`
	IsUnique bool     `json:"unique"`
}

// Constraint is a declared integrity rule on a table.
//
// Columns are ordered and unique within the constraint. ForeignSchema,
// ForeignTable and ForeignColumns are only set for foreign keys and
// CheckClause only for check constraints. NullsNotDistinct marks a unique
// constraint under which NULL keys collide.
type Constraint struct {
	Name           string         `json:"name"`
	Type           ConstraintType `json:"constraint_type"`
	TableSchema    string         `json:"table_schema"`
	TableName      string         `json:"table_name"`
	Columns        []string       `json:"columns"`
	ForeignSchema  string         `json:"foreign_table_schema,omitempty"`
	ForeignTable   string         `json:"foreign_table,omitempty"`
	ForeignColumns []string       `json:"foreign_columns,omitempty"`
	CheckClause    string         `json:"check_clause,omitempty"`

	NullsNotDistinct bool `json:"nulls_not_distinct,omitempty"`
}

// HasForeignTable reports whether the referenced table of a foreign key is known
func (c Constraint) HasForeignTable() bool {
	return c.ForeignTable != ""
}

// Validate checks the structural invariants of a constraint
func (c Constraint) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("constraint on %s has no name", c.TableName)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("constraint %s has unknown type %d", c.Name, int(c.Type))
	}
	switch c.Type {
	case PrimaryKey, ForeignKey, Unique, NotNull:
		if len(c.Columns) == 0 {
			return fmt.Errorf("%s constraint %s has no columns", c.Type, c.Name)
		}
	}
	seen := make(map[string]bool, len(c.Columns))
	for _, col := range c.Columns {
		if seen[col] {
			return fmt.Errorf("constraint %s lists column %s twice", c.Name, col)
		}
		seen[col] = true
	}
	return nil
}

// FunctionalDependency states that the determinant columns determine the dependent columns
type FunctionalDependency struct {
	TableSchema string     `json:"table_schema"`
	TableName   string     `json:"table_name"`
	Determinant []string   `json:"determinant"`
	Dependent   []string   `json:"dependent"`
	Confidence  float64    `json:"confidence"`
	Source      Provenance `json:"source"`
}

// String renders the dependency as "table: a, b -> c, d"
func (fd FunctionalDependency) String() string {
	return fmt.Sprintf("%s: %s -> %s", fd.TableName, strings.Join(fd.Determinant, ", "), strings.Join(fd.Dependent, ", "))
}

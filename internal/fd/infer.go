// Package fd derives functional dependencies from declared uniqueness.
package fd

import (
	"slices"
	"strings"

	"github.com/tordrt/schemadiag/internal/schema"
)

// Infer emits one dependency per unique column set: the set determines every
// other column of the table. A set spanning all columns yields nothing.
func Infer(table schema.Table, uniqueSets [][]string) []schema.FunctionalDependency {
	var fds []schema.FunctionalDependency
	for _, set := range uniqueSets {
		if fd, ok := derive(table, set, schema.ProvenanceUniqueConstraint); ok {
			fds = append(fds, fd)
		}
	}
	return fds
}

// InferModel collects dependencies for every table from its primary key,
// unique constraints and unique indexes. A column set is used once, the
// primary key taking precedence.
func InferModel(m *schema.Model) []schema.FunctionalDependency {
	var fds []schema.FunctionalDependency
	for _, table := range m.Tables {
		seen := make(map[string]bool)
		add := func(cols []string, source schema.Provenance) {
			if len(cols) == 0 {
				return
			}
			key := setKey(cols)
			if seen[key] {
				return
			}
			seen[key] = true
			if fd, ok := derive(table, cols, source); ok {
				fds = append(fds, fd)
			}
		}

		add(table.PrimaryKey, schema.ProvenancePrimaryKey)
		for _, con := range m.ConstraintsFor(table) {
			switch con.Type {
			case schema.PrimaryKey:
				add(con.Columns, schema.ProvenancePrimaryKey)
			case schema.Unique:
				add(con.Columns, schema.ProvenanceUniqueConstraint)
			}
		}
		for _, idx := range table.Indexes {
			if idx.IsUnique {
				add(idx.Columns, schema.ProvenanceUniqueConstraint)
			}
		}
	}
	return fds
}

func derive(table schema.Table, determinant []string, source schema.Provenance) (schema.FunctionalDependency, bool) {
	var dependent []string
	for _, col := range table.Columns {
		if !slices.Contains(determinant, col.Name) {
			dependent = append(dependent, col.Name)
		}
	}
	if len(dependent) == 0 {
		return schema.FunctionalDependency{}, false
	}

	return schema.FunctionalDependency{
		TableSchema: table.Schema,
		TableName:   table.Name,
		Determinant: append([]string(nil), determinant...),
		Dependent:   dependent,
		Confidence:  1.0,
		Source:      source,
	}, true
}

func setKey(cols []string) string {
	sorted := slices.Clone(cols)
	slices.Sort(sorted)
	return strings.Join(sorted, "\x00")
}

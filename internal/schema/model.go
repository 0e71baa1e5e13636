package schema

import "fmt"

// QualifiedName returns schema.name, or just the name when the schema is empty
func (t Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// ColumnNames returns the column names in ordinal order
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// FindTable returns the table with the given identity, or nil.
// An empty schema matches the first table with that name.
func (m *Model) FindTable(schemaName, name string) *Table {
	for i := range m.Tables {
		t := &m.Tables[i]
		if t.Name == name && (schemaName == "" || t.Schema == schemaName) {
			return t
		}
	}
	return nil
}

// ConstraintsFor returns the constraints declared on a table, in model order
func (m *Model) ConstraintsFor(t Table) []Constraint {
	var out []Constraint
	for _, c := range m.Constraints {
		if c.TableName == t.Name && (c.TableSchema == "" || t.Schema == "" || c.TableSchema == t.Schema) {
			out = append(out, c)
		}
	}
	return out
}

// NotNullConstraints synthesizes one NOT NULL constraint per non-nullable column
func (m *Model) NotNullConstraints() []Constraint {
	var out []Constraint
	for _, t := range m.Tables {
		for _, col := range t.Columns {
			if col.Nullable {
				continue
			}
			out = append(out, Constraint{
				Name:        fmt.Sprintf("%s_%s_not_null", t.Name, col.Name),
				Type:        NotNull,
				TableSchema: t.Schema,
				TableName:   t.Name,
				Columns:     []string{col.Name},
			})
		}
	}
	return out
}

// FilterTables keeps only the included tables (all when include is empty),
// then drops the excluded ones. Constraints on dropped tables are removed.
func (m *Model) FilterTables(include, exclude []string) {
	if len(include) == 0 && len(exclude) == 0 {
		return
	}

	includeSet := make(map[string]bool, len(include))
	for _, name := range include {
		includeSet[name] = true
	}
	excludeSet := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excludeSet[name] = true
	}

	keep := func(name string) bool {
		if len(includeSet) > 0 && !includeSet[name] {
			return false
		}
		return !excludeSet[name]
	}

	tables := make([]Table, 0, len(m.Tables))
	for _, t := range m.Tables {
		if keep(t.Name) {
			tables = append(tables, t)
		}
	}
	m.Tables = tables

	constraints := make([]Constraint, 0, len(m.Constraints))
	for _, c := range m.Constraints {
		if keep(c.TableName) {
			constraints = append(constraints, c)
		}
	}
	m.Constraints = constraints
}

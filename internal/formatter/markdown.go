package formatter

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/tordrt/schemadiag/internal/schema"
)

// MarkdownFormatter formats a report as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// Format writes the report in markdown format
func (f *MarkdownFormatter) Format(r *Report) error {
	_, _ = fmt.Fprintln(f.writer, "# Constraint Diagnostics")
	_, _ = fmt.Fprintln(f.writer)

	if r.Model != nil {
		_, _ = fmt.Fprintf(f.writer, "Database `%s` (%s), %d tables.\n\n", r.Model.DatabaseName, r.Model.Dialect, len(r.Model.Tables))
	}
	if r.Results != nil {
		f.FormatSummary(r)
	}

	if r.Model != nil {
		for _, table := range r.Model.Tables {
			f.FormatTable(r, table)
		}
	}

	if r.Plan != nil {
		f.FormatPlan(r)
	}
	return nil
}

// FormatSummary writes the result counts and the violation details
func (f *MarkdownFormatter) FormatSummary(r *Report) {
	s := r.Summary()
	_, _ = fmt.Fprintln(f.writer, "## Summary")
	_, _ = fmt.Fprintln(f.writer)
	_, _ = fmt.Fprintf(f.writer, "- **Checked:** %d\n", s.Checked)
	_, _ = fmt.Fprintf(f.writer, "- **Satisfied:** %d\n", s.Satisfied)
	_, _ = fmt.Fprintf(f.writer, "- **Violated:** %d\n", s.Violations)
	if s.Degraded > 0 {
		_, _ = fmt.Fprintf(f.writer, "- **Unchecked (assumed satisfied):** %d\n", s.Degraded)
	}
	_, _ = fmt.Fprintln(f.writer)

	for _, res := range r.Results {
		if res.Violation == nil {
			continue
		}
		v := res.Violation
		_, _ = fmt.Fprintf(f.writer, "### %s\n\n", res.ConstraintName)
		_, _ = fmt.Fprintf(f.writer, "%s\n\n", v.Explanation)
		if len(v.SampleViolations) > 0 {
			_, _ = fmt.Fprintln(f.writer, "Samples:")
			_, _ = fmt.Fprintln(f.writer)
			for _, sample := range v.SampleViolations {
				_, _ = fmt.Fprintf(f.writer, "- `%s`\n", sample)
			}
			_, _ = fmt.Fprintln(f.writer)
		}
		_, _ = fmt.Fprintf(f.writer, "```sql\n%s\n```\n\n", v.DetectionQuery)
	}
}

// FormatTable writes a single table (exported for use by the multi-file formatter)
func (f *MarkdownFormatter) FormatTable(r *Report, table schema.Table) {
	_, _ = fmt.Fprintf(f.writer, "## %s\n\n", table.QualifiedName())

	_, _ = fmt.Fprintln(f.writer, "### Columns")
	_, _ = fmt.Fprintln(f.writer)
	for _, col := range table.Columns {
		typeStr := col.Type
		if len(col.EnumValues) > 0 {
			typeStr = fmt.Sprintf("%s (%s)", col.Type, strings.Join(col.EnumValues, "|"))
		}

		if attrs := f.columnAttributes(col, table.PrimaryKey); attrs != "" {
			_, _ = fmt.Fprintf(f.writer, "- **%s:** %s, %s\n", col.Name, typeStr, attrs)
		} else {
			_, _ = fmt.Fprintf(f.writer, "- **%s:** %s\n", col.Name, typeStr)
		}
	}
	_, _ = fmt.Fprintln(f.writer)

	if entries := r.entriesFor(table); len(entries) > 0 {
		_, _ = fmt.Fprintln(f.writer, "### Constraints")
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintln(f.writer, "| Name | Definition | Status |")
		_, _ = fmt.Fprintln(f.writer, "|---|---|---|")
		for _, e := range entries {
			_, _ = fmt.Fprintf(f.writer, "| %s | %s | %s |\n", e.Constraint.Name, escapeCell(describe(e.Constraint)), status(e.Result))
		}
		_, _ = fmt.Fprintln(f.writer)
	}

	if fds := r.fdsFor(table.Name); len(fds) > 0 {
		_, _ = fmt.Fprintln(f.writer, "### Functional dependencies")
		_, _ = fmt.Fprintln(f.writer)
		for _, fd := range fds {
			_, _ = fmt.Fprintf(f.writer, "- %s → %s (%s)\n", strings.Join(fd.Determinant, ", "), strings.Join(fd.Dependent, ", "), fd.Source)
		}
		_, _ = fmt.Fprintln(f.writer)
	}

	if len(table.Indexes) > 0 {
		_, _ = fmt.Fprintln(f.writer, "### Idx")
		_, _ = fmt.Fprintln(f.writer)
		for _, idx := range table.Indexes {
			if idx.IsUnique {
				_, _ = fmt.Fprintf(f.writer, "- %s on (%s), unique\n", idx.Name, strings.Join(idx.Columns, ", "))
			} else {
				_, _ = fmt.Fprintf(f.writer, "- %s on (%s)\n", idx.Name, strings.Join(idx.Columns, ", "))
			}
		}
		_, _ = fmt.Fprintln(f.writer)
	}
}

// FormatPlan writes the recovery plan with its proof coverage
func (f *MarkdownFormatter) FormatPlan(r *Report) {
	p := r.Plan
	_, _ = fmt.Fprintf(f.writer, "## Recovery plan: %s\n\n", p.Name)
	for _, step := range p.Steps {
		_, _ = fmt.Fprintf(f.writer, "%d. **%s** (%s)\n\n", step.Number, step.Description, step.Category)
		_, _ = fmt.Fprintf(f.writer, "   ```sql\n")
		for _, line := range strings.Split(step.SQL, "\n") {
			_, _ = fmt.Fprintf(f.writer, "   %s\n", line)
		}
		_, _ = fmt.Fprintf(f.writer, "   ```\n\n")
		for _, ref := range step.Proofs {
			_, _ = fmt.Fprintf(f.writer, "   - `%s`\n", ref)
		}
		if len(step.Proofs) > 0 {
			_, _ = fmt.Fprintln(f.writer)
		}
	}

	cov := p.Coverage
	_, _ = fmt.Fprintln(f.writer, "### Proof coverage")
	_, _ = fmt.Fprintln(f.writer)
	_, _ = fmt.Fprintf(f.writer, "- **Steps with proofs:** %d/%d\n", cov.StepsWithProofs, cov.TotalSteps)
	_, _ = fmt.Fprintf(f.writer, "- **Unique proofs:** %d\n", cov.UniqueProofs)
	if len(cov.ProvenProperties) > 0 {
		_, _ = fmt.Fprintf(f.writer, "- **Properties:** %s\n", strings.Join(cov.ProvenProperties, ", "))
	}
	_, _ = fmt.Fprintln(f.writer)
}

func (f *MarkdownFormatter) columnAttributes(col schema.Column, primaryKey []string) string {
	var attrs []string

	if slices.Contains(primaryKey, col.Name) {
		attrs = append(attrs, "PK")
	}

	if !col.Nullable {
		attrs = append(attrs, "NOT NULL")
	}

	if col.DefaultValue != nil {
		attrs = append(attrs, fmt.Sprintf("DEFAULT %s", *col.DefaultValue))
	}

	return strings.Join(attrs, ", ")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

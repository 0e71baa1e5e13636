package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/schemadiag/internal/schema"
)

// TextFormatter formats a report as compact text
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format writes the report in compact text format
func (f *TextFormatter) Format(r *Report) error {
	if r.Model != nil {
		_, _ = fmt.Fprintf(f.writer, "DATABASE %s (%s)\n\n", r.Model.DatabaseName, r.Model.Dialect)
		for i, table := range r.Model.Tables {
			if i > 0 {
				_, _ = fmt.Fprintln(f.writer) // Blank line between tables
			}
			f.formatTable(r, table)
		}
	}

	// a schema-only report has no results to summarize
	if r.Results != nil {
		_, _ = fmt.Fprintln(f.writer)
		f.formatSummary(r)
	}

	if r.Plan != nil {
		_, _ = fmt.Fprintln(f.writer)
		f.formatPlan(r)
	}
	return nil
}

func (f *TextFormatter) formatTable(r *Report, table schema.Table) {
	// Table header with primary key
	pkStr := ""
	if len(table.PrimaryKey) > 0 {
		pkStr = fmt.Sprintf(" (PK: %s)", strings.Join(table.PrimaryKey, ", "))
	}
	_, _ = fmt.Fprintf(f.writer, "TABLE %s%s\n", table.QualifiedName(), pkStr)

	for _, col := range table.Columns {
		_, _ = fmt.Fprintf(f.writer, "  %s\n", f.formatColumn(col))
	}

	if entries := r.entriesFor(table); len(entries) > 0 {
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintln(f.writer, "  CONSTRAINTS:")
		for _, e := range entries {
			_, _ = fmt.Fprintf(f.writer, "    %s %s [%s]\n", e.Constraint.Name, describe(e.Constraint), status(e.Result))
		}
	}

	if fds := r.fdsFor(table.Name); len(fds) > 0 {
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintln(f.writer, "  FDS:")
		for _, fd := range fds {
			_, _ = fmt.Fprintf(f.writer, "    %s -> %s (%s)\n", strings.Join(fd.Determinant, ","), strings.Join(fd.Dependent, ","), fd.Source)
		}
	}
}

func (f *TextFormatter) formatColumn(col schema.Column) string {
	parts := []string{col.Name + ":"}

	typeStr := col.Type
	if len(col.EnumValues) > 0 {
		typeStr = fmt.Sprintf("%s (%s)", col.Type, strings.Join(col.EnumValues, "|"))
	}
	parts = append(parts, typeStr)

	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}

	if col.DefaultValue != nil {
		parts = append(parts, fmt.Sprintf("DEFAULT %s", *col.DefaultValue))
	}

	return strings.Join(parts, " ")
}

func (f *TextFormatter) formatSummary(r *Report) {
	s := r.Summary()
	_, _ = fmt.Fprintf(f.writer, "SUMMARY: %d checked, %d satisfied, %d violated", s.Checked, s.Satisfied, s.Violations)
	if s.Degraded > 0 {
		_, _ = fmt.Fprintf(f.writer, ", %d unchecked", s.Degraded)
	}
	_, _ = fmt.Fprintln(f.writer)

	for _, res := range r.Results {
		switch {
		case res.Violation != nil:
			_, _ = fmt.Fprintf(f.writer, "  %s on %s: %s\n", res.ConstraintName, res.TableName, res.Violation.Explanation)
			for _, sample := range res.Violation.SampleViolations {
				_, _ = fmt.Fprintf(f.writer, "    %s\n", sample)
			}
		case res.Degraded:
			_, _ = fmt.Fprintf(f.writer, "  %s on %s: check failed, assumed satisfied: %s\n", res.ConstraintName, res.TableName, res.Warning)
		}
	}
}

func (f *TextFormatter) formatPlan(r *Report) {
	p := r.Plan
	_, _ = fmt.Fprintf(f.writer, "RECOVERY PLAN: %s\n", p.Name)
	for _, step := range p.Steps {
		_, _ = fmt.Fprintf(f.writer, "  %d. %s [%s]\n", step.Number, step.Description, step.Category)
		for _, line := range strings.Split(step.SQL, "\n") {
			_, _ = fmt.Fprintf(f.writer, "     %s\n", line)
		}
		if len(step.Proofs) > 0 {
			_, _ = fmt.Fprintf(f.writer, "     proofs: %s\n", strings.Join(step.Proofs, ", "))
		}
	}

	cov := p.Coverage
	props := "none"
	if len(cov.ProvenProperties) > 0 {
		props = strings.Join(cov.ProvenProperties, ", ")
	}
	_, _ = fmt.Fprintf(f.writer, "COVERAGE: %d/%d steps proven, %d unique proofs, properties: %s\n",
		cov.StepsWithProofs, cov.TotalSteps, cov.UniqueProofs, props)
}

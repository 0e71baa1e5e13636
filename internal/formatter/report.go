// Package formatter renders diagnostic reports as text, markdown, JSON or a directory of files.
package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/schemadiag/internal/check"
	"github.com/tordrt/schemadiag/internal/recovery"
	"github.com/tordrt/schemadiag/internal/schema"
)

// Output formats
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// Report is everything one diagnostic run produced
type Report struct {
	Model   *schema.Model                 `json:"schema"`
	FDs     []schema.FunctionalDependency `json:"functional_dependencies"`
	Results []check.Result                `json:"results"`
	Plan    *recovery.Plan                `json:"recovery_plan,omitempty"`
}

// Summary counts the results of a report
type Summary struct {
	Checked    int `json:"checked"`
	Satisfied  int `json:"satisfied"`
	Violations int `json:"violations"`
	Degraded   int `json:"degraded"`
}

// Summary tallies the check results
func (r *Report) Summary() Summary {
	s := Summary{Checked: len(r.Results)}
	for _, res := range r.Results {
		if res.Satisfied {
			s.Satisfied++
		} else {
			s.Violations++
		}
		if res.Degraded {
			s.Degraded++
		}
	}
	return s
}

// HasViolations reports whether any checked constraint is violated
func (r *Report) HasViolations() bool {
	return r.Summary().Violations > 0
}

// tableEntry pairs a constraint with its check result, if it was checked
type tableEntry struct {
	Constraint schema.Constraint
	Result     *check.Result
}

// entriesFor lists the constraints declared on a table followed by any
// checked constraints the model does not declare (NOT NULL scans).
func (r *Report) entriesFor(t schema.Table) []tableEntry {
	byName := make(map[string]*check.Result, len(r.Results))
	for i := range r.Results {
		byName[r.Results[i].ConstraintName] = &r.Results[i]
	}

	var out []tableEntry
	declared := make(map[string]bool)
	if r.Model != nil {
		for _, c := range r.Model.ConstraintsFor(t) {
			declared[c.Name] = true
			out = append(out, tableEntry{Constraint: c, Result: byName[c.Name]})
		}
	}
	for i := range r.Results {
		res := &r.Results[i]
		if res.TableName == t.Name && !declared[res.ConstraintName] {
			out = append(out, tableEntry{Constraint: res.Constraint, Result: res})
		}
	}
	return out
}

// fdsFor returns the functional dependencies of one table
func (r *Report) fdsFor(table string) []schema.FunctionalDependency {
	var out []schema.FunctionalDependency
	for _, fd := range r.FDs {
		if fd.TableName == table {
			out = append(out, fd)
		}
	}
	return out
}

// stepsFor returns the recovery steps touching one table
func (r *Report) stepsFor(table string) []recovery.Step {
	if r.Plan == nil {
		return nil
	}
	var out []recovery.Step
	for _, s := range r.Plan.Steps {
		if s.TableName == table {
			out = append(out, s)
		}
	}
	return out
}

// Formatter writes a report to a single stream
type Formatter interface {
	Format(r *Report) error
}

// New returns the single-stream formatter for a format name
func New(format string, w io.Writer) (Formatter, error) {
	switch format {
	case FormatText, "":
		return NewTextFormatter(w), nil
	case FormatMarkdown:
		return NewMarkdownFormatter(w), nil
	case FormatJSON:
		return NewJSONFormatter(w), nil
	default:
		return nil, fmt.Errorf("invalid format: %s (must be 'text', 'markdown' or 'json')", format)
	}
}

// status renders the outcome of a single check; nil means not checked
func status(res *check.Result) string {
	switch {
	case res == nil:
		return "-"
	case res.Degraded:
		return "UNCHECKED"
	case res.Satisfied:
		return "OK"
	default:
		return fmt.Sprintf("VIOLATED (%d)", res.Violation.ViolationCount)
	}
}

// describe renders a constraint definition compactly, e.g. "FOREIGN KEY (user_id) -> users (id)"
func describe(c schema.Constraint) string {
	out := c.Type.String()
	if len(c.Columns) > 0 {
		out += " (" + strings.Join(c.Columns, ", ") + ")"
	}
	if c.HasForeignTable() {
		out += " -> " + c.ForeignTable
		if len(c.ForeignColumns) > 0 {
			out += " (" + strings.Join(c.ForeignColumns, ", ") + ")"
		}
	}
	if c.NullsNotDistinct {
		out += " NULLS NOT DISTINCT"
	}
	if c.CheckClause != "" {
		out += " " + c.CheckClause
	}
	return out
}


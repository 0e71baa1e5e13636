package formatter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tordrt/schemadiag/internal/schema"
)

// MultiFileFormatter writes a report to multiple files in a directory
type MultiFileFormatter struct {
	OutputDir    string
	OutputFormat string // "text" or "markdown"
}

// NewMultiFileFormatter creates a new multi-file formatter
func NewMultiFileFormatter(outputDir, format string) *MultiFileFormatter {
	return &MultiFileFormatter{
		OutputDir:    outputDir,
		OutputFormat: format,
	}
}

// Format writes _overview, one file per table and, when a plan exists, _recovery
func (f *MultiFileFormatter) Format(r *Report) error {
	if f.OutputFormat != FormatText && f.OutputFormat != FormatMarkdown {
		return fmt.Errorf("multi-file output supports text or markdown, not %q", f.OutputFormat)
	}
	if r.Model == nil {
		return fmt.Errorf("report has no schema")
	}

	if err := os.MkdirAll(f.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := f.writeFile("_overview", func(w io.Writer) { f.writeOverview(w, r) }); err != nil {
		return fmt.Errorf("failed to write overview: %w", err)
	}

	for _, table := range r.Model.Tables {
		if err := f.writeFile(table.Name, func(w io.Writer) { f.writeTable(w, r, table) }); err != nil {
			return fmt.Errorf("failed to write table file for %s: %w", table.Name, err)
		}
	}

	if r.Plan != nil {
		if err := f.writeFile("_recovery", func(w io.Writer) { f.writePlan(w, r) }); err != nil {
			return fmt.Errorf("failed to write recovery plan: %w", err)
		}
	}

	return nil
}

func (f *MultiFileFormatter) writeFile(name string, write func(io.Writer)) error {
	file, err := os.Create(filepath.Join(f.OutputDir, name+f.getFileExtension()))
	if err != nil {
		return err
	}
	write(file)
	return file.Close()
}

func (f *MultiFileFormatter) writeOverview(w io.Writer, r *Report) {
	// Sort tables alphabetically
	sortedTables := make([]schema.Table, len(r.Model.Tables))
	copy(sortedTables, r.Model.Tables)
	sort.Slice(sortedTables, func(i, j int) bool {
		return sortedTables[i].Name < sortedTables[j].Name
	})

	if f.OutputFormat == FormatMarkdown {
		_, _ = fmt.Fprintf(w, "# Diagnostics Overview\n\n")
		_, _ = fmt.Fprintf(w, "Each table has a corresponding file: `<table_name>%s`\n\n", f.getFileExtension())
		NewMarkdownFormatter(w).FormatSummary(r)
		_, _ = fmt.Fprintf(w, "## Tables\n\n")
		for _, table := range sortedTables {
			_, _ = fmt.Fprintf(w, "- **%s**%s\n", table.Name, f.tableNote(r, table))
		}
		return
	}

	_, _ = fmt.Fprintf(w, "DIAGNOSTICS OVERVIEW\n")
	_, _ = fmt.Fprintf(w, "Each table has a file: <table_name>%s\n\n", f.getFileExtension())
	NewTextFormatter(w).formatSummary(r)
	_, _ = fmt.Fprintln(w)
	for _, table := range sortedTables {
		_, _ = fmt.Fprintf(w, "%s%s\n", table.Name, f.tableNote(r, table))
	}
}

// tableNote lists referenced tables and violated constraints for the overview
func (f *MultiFileFormatter) tableNote(r *Report, table schema.Table) string {
	var targets, violated []string
	for _, e := range r.entriesFor(table) {
		if e.Constraint.Type == schema.ForeignKey && e.Constraint.HasForeignTable() {
			targets = append(targets, e.Constraint.ForeignTable)
		}
		if e.Result != nil && !e.Result.Satisfied {
			violated = append(violated, e.Constraint.Name)
		}
	}

	note := ""
	if len(targets) > 0 {
		note += fmt.Sprintf(" (references: %s)", strings.Join(targets, ", "))
	}
	if len(violated) > 0 {
		note += fmt.Sprintf(" (violated: %s)", strings.Join(violated, ", "))
	}
	return note
}

func (f *MultiFileFormatter) writeTable(w io.Writer, r *Report, table schema.Table) {
	if f.OutputFormat == FormatMarkdown {
		NewMarkdownFormatter(w).FormatTable(r, table)
	} else {
		NewTextFormatter(w).formatTable(r, table)
	}

	steps := r.stepsFor(table.Name)
	if len(steps) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w)
	if f.OutputFormat == FormatMarkdown {
		_, _ = fmt.Fprintf(w, "### Recovery steps\n\n")
		for _, s := range steps {
			_, _ = fmt.Fprintf(w, "- Step %d: %s (see `_recovery%s`)\n", s.Number, s.Description, f.getFileExtension())
		}
		return
	}
	_, _ = fmt.Fprintln(w, "  RECOVERY:")
	for _, s := range steps {
		_, _ = fmt.Fprintf(w, "    step %d: %s\n", s.Number, s.Description)
	}
}

func (f *MultiFileFormatter) writePlan(w io.Writer, r *Report) {
	if f.OutputFormat == FormatMarkdown {
		NewMarkdownFormatter(w).FormatPlan(r)
		return
	}
	NewTextFormatter(w).formatPlan(r)
}

func (f *MultiFileFormatter) getFileExtension() string {
	if f.OutputFormat == FormatMarkdown {
		return ".md"
	}
	return ".txt"
}

package formatter

import (
	"encoding/json"
	"io"
)

// JSONFormatter writes a report as indented JSON
type JSONFormatter struct {
	writer io.Writer
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{writer: w}
}

type jsonReport struct {
	*Report
	Summary Summary `json:"summary"`
}

// Format writes the report followed by a newline
func (f *JSONFormatter) Format(r *Report) error {
	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{Report: r, Summary: r.Summary()})
}

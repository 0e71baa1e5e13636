package db

import (
	"context"
	"fmt"
	"time"

	"github.com/tordrt/schemadiag/internal/schema"
)

// Extractor builds a schema.Model from a live database
type Extractor interface {
	ExtractSchema(ctx context.Context) (*schema.Model, error)
}

// ExtractOptions narrows what an extractor reads.
// Schemas defaults per engine: public on PostgreSQL, the DSN database on MySQL.
type ExtractOptions struct {
	Schemas       []string
	Tables        []string
	ExcludeTables []string
}

// NewExtractor returns the extractor matching the executor's dialect
func NewExtractor(exec Executor, opts ExtractOptions) (Extractor, error) {
	switch exec.Dialect() {
	case Postgres:
		return NewPostgresExtractor(exec, opts), nil
	case MySQL:
		return NewMySQLExtractor(exec, opts), nil
	case SQLite:
		return NewSQLiteExtractor(exec, opts), nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", exec.Dialect())
	}
}

// newModel starts an empty model stamped with the extraction time
func newModel(exec Executor, name string) *schema.Model {
	if name == "" {
		name = exec.DatabaseName()
	}
	return &schema.Model{
		DatabaseName: name,
		Dialect:      string(exec.Dialect()),
		ExtractedAt:  time.Now().UTC(),
	}
}

// finish applies table filters and validates every constraint
func finish(m *schema.Model, opts ExtractOptions) (*schema.Model, error) {
	m.FilterTables(opts.Tables, opts.ExcludeTables)
	for _, c := range m.Constraints {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("invalid constraint extracted: %w", err)
		}
	}
	return m, nil
}

// columnStrings collects the first column of every row as strings
func columnStrings(rows *Rows) []string {
	out := make([]string, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		out = append(out, rows.String(i, 0))
	}
	return out
}

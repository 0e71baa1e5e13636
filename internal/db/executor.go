package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotConnected is returned by Query before Connect succeeds or after Close
var ErrNotConnected = errors.New("not connected")

// Executor is the query capability the diagnostics core consumes.
// Statements are only ever issued through it; Close is idempotent.
type Executor interface {
	Connect(ctx context.Context) error
	Query(ctx context.Context, statement string, args ...any) (*Rows, error)
	Close() error
	Dialect() Dialect
	DatabaseName() string
}

// Rows is a fully materialized query result
type Rows struct {
	Columns []string
	Values  [][]any
}

// Len returns the number of rows
func (r *Rows) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Values)
}

// Int64 returns the value at row i, column j as an integer
func (r *Rows) Int64(i, j int) (int64, error) {
	v, err := r.at(i, j)
	if err != nil {
		return 0, err
	}
	return ToInt64(v)
}

// String returns the value at row i, column j formatted for display.
// Out-of-range cells format as an empty string.
func (r *Rows) String(i, j int) string {
	v, err := r.at(i, j)
	if err != nil {
		return ""
	}
	return FormatValue(v)
}

// NullableString returns nil for SQL NULL, otherwise the formatted value
func (r *Rows) NullableString(i, j int) *string {
	v, err := r.at(i, j)
	if err != nil || v == nil {
		return nil
	}
	s := FormatValue(v)
	return &s
}

// Bool returns the value at row i, column j as a boolean. NULL and out-of-range cells are false.
func (r *Rows) Bool(i, j int) bool {
	v, err := r.at(i, j)
	if err != nil {
		return false
	}
	return ToBool(v)
}

func (r *Rows) at(i, j int) (any, error) {
	if r == nil || i < 0 || i >= len(r.Values) {
		return nil, fmt.Errorf("row %d out of range", i)
	}
	row := r.Values[i]
	if j < 0 || j >= len(row) {
		return nil, fmt.Errorf("column %d out of range", j)
	}
	return row[j], nil
}

// Dialect identifies the SQL flavor spoken by an executor
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// QuoteIdent quotes an identifier for the dialect
func (d Dialect) QuoteIdent(name string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedTable quotes schema and table, omitting an empty schema
func (d Dialect) QualifiedTable(schemaName, table string) string {
	if schemaName == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schemaName) + "." + d.QuoteIdent(table)
}

// RowIdentifier returns the hidden physical row id column, or "" when the dialect has none
func (d Dialect) RowIdentifier() string {
	switch d {
	case Postgres:
		return "ctid"
	case SQLite:
		return "rowid"
	default:
		return ""
	}
}

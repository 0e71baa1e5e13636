// Package dbtest provides a scripted in-memory db.Executor for unit tests.
package dbtest

import (
	"context"
	"strings"
	"sync"

	"github.com/tordrt/schemadiag/internal/db"
)

type response struct {
	match string
	rows  *db.Rows
	err   error
}

// Executor answers queries from a script of substring matches.
// The first registered match contained in a statement wins; unmatched
// statements return an empty result.
type Executor struct {
	dialect db.Dialect
	name    string

	// ConnectErr is returned by Connect when set
	ConnectErr error

	mu         sync.Mutex
	responses  []response
	statements []string
	closed     bool
	closes     int
}

// New creates a scripted executor speaking the given dialect
func New(dialect db.Dialect) *Executor {
	return &Executor{dialect: dialect, name: "testdb"}
}

// WithName sets the database name reported by DatabaseName
func (e *Executor) WithName(name string) *Executor {
	e.name = name
	return e
}

// On registers rows returned for statements containing match
func (e *Executor) On(match string, columns []string, values ...[]any) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses = append(e.responses, response{match: match, rows: &db.Rows{Columns: columns, Values: values}})
	return e
}

// Fail registers an error returned for statements containing match
func (e *Executor) Fail(match string, err error) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses = append(e.responses, response{match: match, err: err})
	return e
}

// Connect implements db.Executor
func (e *Executor) Connect(ctx context.Context) error {
	if e.ConnectErr != nil {
		return e.ConnectErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = false
	return nil
}

// Query implements db.Executor
func (e *Executor) Query(ctx context.Context, statement string, args ...any) (*db.Rows, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, db.ErrNotConnected
	}
	e.statements = append(e.statements, statement)

	for _, r := range e.responses {
		if strings.Contains(statement, r.match) {
			if r.err != nil {
				return nil, r.err
			}
			return r.rows, nil
		}
	}
	return &db.Rows{}, nil
}

// Close implements db.Executor
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.closes++
	return nil
}

// Dialect implements db.Executor
func (e *Executor) Dialect() db.Dialect {
	return e.dialect
}

// DatabaseName implements db.Executor
func (e *Executor) DatabaseName() string {
	return e.name
}

// Statements returns every statement issued so far, in order
func (e *Executor) Statements() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.statements...)
}

// Closes returns how many times Close was called
func (e *Executor) Closes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closes
}

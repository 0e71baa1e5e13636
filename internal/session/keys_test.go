package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemadiag/internal/db"
	"github.com/tordrt/schemadiag/internal/db/dbtest"
)

func typeString(t *testing.T, s *Session, text string) {
	t.Helper()
	for _, r := range text {
		_, err := s.HandleKey(t.Context(), r)
		require.NoError(t, err)
	}
}

func TestViewKeys(t *testing.T) {
	s := New(Options{})

	tests := []struct {
		key  rune
		want View
	}{
		{'t', TimelineView},
		{'d', DiagnoseView},
		{'r', RecoverView},
		{'?', HelpView},
		{'h', Home},
	}
	for _, tt := range tests {
		st, err := s.HandleKey(t.Context(), tt.key)
		require.NoError(t, err)
		assert.Equal(t, tt.want, st.View, string(tt.key))
	}

	st, err := s.HandleKey(t.Context(), 's')
	require.NoError(t, err)
	assert.Equal(t, Home, st.View)
	assert.Equal(t, "No schema loaded. Connect first.", st.Status)

	st, err = s.HandleKey(t.Context(), 'q')
	require.NoError(t, err)
	assert.True(t, st.Quit)
}

func TestConnectionInput(t *testing.T) {
	var opened string
	exec := dbtest.New(db.SQLite)
	s := New(Options{Open: func(url string) (db.Executor, error) {
		opened = url
		return exec, nil
	}})

	st, err := s.HandleKey(t.Context(), 'c')
	require.NoError(t, err)
	assert.True(t, st.InputMode)
	assert.Equal(t, "Enter connection string (Enter to confirm, Esc to cancel)", st.Status)

	// view keys are captured as text while typing
	typeString(t, s, "sqlite://shop.dbx")
	st, err = s.HandleKey(t.Context(), KeyBackspace)
	require.NoError(t, err)
	assert.Equal(t, "sqlite://shop.db", st.Input)
	assert.Equal(t, Home, st.View)

	st, err = s.HandleKey(t.Context(), KeyEnter)
	require.NoError(t, err)
	assert.Equal(t, "sqlite://shop.db", opened)
	assert.False(t, st.InputMode)
	assert.True(t, st.Connected)
	assert.Equal(t, SchemaView, st.View)

	st, err = s.HandleKey(t.Context(), 'c')
	require.NoError(t, err)
	assert.False(t, st.InputMode, "no input while connected")

	st, err = s.HandleKey(t.Context(), 'D')
	require.NoError(t, err)
	assert.False(t, st.Connected)
	assert.Equal(t, "Disconnected", st.Status)
}

func TestCancelInput(t *testing.T) {
	s := New(Options{})
	typeString(t, s, "cpostgres://")

	st, err := s.HandleKey(t.Context(), KeyEscape)
	require.NoError(t, err)
	assert.False(t, st.InputMode)
	assert.Empty(t, st.Input)
	assert.Equal(t, "Connection cancelled", st.Status)

	s.BeginInput()
	st, err = s.SubmitInput(t.Context())
	require.NoError(t, err)
	assert.False(t, st.Connected)
	assert.Equal(t, "Connection cancelled", st.Status)
}

func tablesExec() *dbtest.Executor {
	return dbtest.New(db.SQLite).
		On("FROM sqlite_master", []string{"name", "sql"},
			[]any{"a", "CREATE TABLE a (x INTEGER, CHECK (x > 0))"},
			[]any{"b", "CREATE TABLE b (y INTEGER)"},
		).
		On("PRAGMA table_info", []string{"cid", "name", "type", "notnull", "dflt_value", "pk"},
			[]any{int64(0), "x", "INTEGER", int64(1), nil, int64(0)})
}

func TestNavigation(t *testing.T) {
	s := New(Options{Open: scripted(tablesExec())})
	_, err := s.Connect(t.Context(), "sqlite://nav.db")
	require.NoError(t, err)

	steps := []struct {
		key  rune
		want Selection
	}{
		{'j', Selection{Kind: TableItem, Index: 0}},
		{'j', Selection{Kind: TableItem, Index: 1}},
		{'j', Selection{Kind: TableItem, Index: 1}},
		{'k', Selection{Kind: TableItem, Index: 0}},
		{'K', Selection{Kind: TablesHeader}},
		{'k', Selection{Kind: TablesHeader}},
		{'J', Selection{Kind: TableItem, Index: 0}},
		{'d', Selection{Kind: ConstraintsHeader}},
		{'j', Selection{Kind: ConstraintItem, Index: 0}},
		{'j', Selection{Kind: ConstraintItem, Index: 0}},
		{'k', Selection{Kind: ConstraintsHeader}},
		{'s', Selection{Kind: TablesHeader}},
	}
	for i, step := range steps {
		st, err := s.HandleKey(t.Context(), step.key)
		require.NoError(t, err)
		assert.Equal(t, step.want, st.Selection, "step %d (%c)", i, step.key)
	}
}

func TestSelectionClampsWhenListShrinks(t *testing.T) {
	tests := []struct {
		name               string
		in                 Selection
		tables, constraint int
		want               Selection
	}{
		{"table in range", Selection{Kind: TableItem, Index: 1}, 3, 0, Selection{Kind: TableItem, Index: 1}},
		{"table past end", Selection{Kind: TableItem, Index: 5}, 2, 0, Selection{Kind: TableItem, Index: 1}},
		{"no tables left", Selection{Kind: TableItem, Index: 2}, 0, 0, Selection{Kind: TablesHeader}},
		{"constraint past end", Selection{Kind: ConstraintItem, Index: 9}, 0, 3, Selection{Kind: ConstraintItem, Index: 2}},
		{"no constraints left", Selection{Kind: ConstraintItem, Index: 0}, 4, 0, Selection{Kind: ConstraintsHeader}},
		{"header untouched", Selection{Kind: ConstraintsHeader}, 0, 0, Selection{Kind: ConstraintsHeader}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clampSelection(tt.in, tt.tables, tt.constraint))
		})
	}
}

func TestEnterRunsViewAction(t *testing.T) {
	s := New(Options{Open: scripted(tablesExec())})
	_, err := s.Connect(t.Context(), "sqlite://nav.db")
	require.NoError(t, err)

	// Enter on the schema view does nothing
	st, err := s.HandleKey(t.Context(), KeyEnter)
	require.NoError(t, err)
	assert.Nil(t, st.Results)

	typeString(t, s, "d")
	st, err = s.HandleKey(t.Context(), KeyEnter)
	require.NoError(t, err)
	require.Len(t, st.Results, 1)
	assert.Equal(t, "Diagnostics complete: 1 constraint checked, 0 violations found", st.Status)

	typeString(t, s, "r")
	st, err = s.HandleKey(t.Context(), KeyEnter)
	require.NoError(t, err)
	assert.Equal(t, "No violations to recover from", st.Status)
}

func TestRefreshFollowsView(t *testing.T) {
	exec := tablesExec()
	s := New(Options{Open: scripted(exec)})
	_, err := s.Connect(t.Context(), "sqlite://nav.db")
	require.NoError(t, err)

	st, err := s.HandleKey(t.Context(), 'R')
	require.NoError(t, err)
	assert.Equal(t, "Schema loaded: 2 tables, 1 constraints", st.Status)

	typeString(t, s, "t")
	st, err = s.HandleKey(t.Context(), 'R')
	require.NoError(t, err)
	assert.Equal(t, "Timeline loaded: 0 events", st.Status)
}

func TestViewText(t *testing.T) {
	b, err := DiagnoseView.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "diagnose", string(b))

	var v View
	require.NoError(t, v.UnmarshalText([]byte("Recover")))
	assert.Equal(t, RecoverView, v)
	assert.Error(t, v.UnmarshalText([]byte("settings")))
}

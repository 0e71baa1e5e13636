package timeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemadiag/internal/db"
	"github.com/tordrt/schemadiag/internal/db/dbtest"
)

func TestClassifyQuery(t *testing.T) {
	tests := []struct {
		query string
		want  EventType
	}{
		{"INSERT INTO users VALUES (1)", Insert},
		{"update users set name = 'x'", Update},
		{"DELETE FROM orders", Delete},
		{"CREATE TABLE t (id int)", SchemaChange},
		{"ALTER TABLE t ADD COLUMN c int", SchemaChange},
		{"DROP INDEX idx", SchemaChange},
		{"VACUUM ANALYZE", Vacuum},
		{"CHECKPOINT", Checkpoint},
		{"SELECT 1", Query},
		{"  delete from t", Delete},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyQuery(tt.query))
		})
	}
}

func TestExtractTableName(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"SELECT * FROM users WHERE id = 1", "users"},
		{"INSERT INTO orders(id) VALUES (1)", "orders(id"},
		{"UPDATE accounts SET balance = 0", "accounts"},
		{"ALTER TABLE items ADD COLUMN x int", "items"},
		{"SELECT * FROM (SELECT 1) s", ""},
		{"SELECT now()", ""},
		{"DELETE FROM", ""},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTableName(tt.query))
		})
	}
}

func TestRecentBuildsSortedEvents(t *testing.T) {
	long := "SELECT " + strings.Repeat("x, ", 40) + "y FROM wide"
	exec := dbtest.New(db.Postgres).
		On("FROM pg_stat_activity", []string{"pid", "username", "query", "query_start"},
			[]any{int64(10), "alice", "DELETE FROM orders WHERE id = 3", "2026-01-02 10:00:00+00"},
			[]any{int64(11), "bob", long, "2026-01-02 09:00:00+00"},
			[]any{int64(12), "carol", nil, "2026-01-02 11:00:00+00"},
		).
		On("FROM pg_stat_user_tables", []string{"schemaname", "relname", "n_tup_ins", "n_tup_upd", "n_tup_del", "n_live_tup", "n_dead_tup", "last_autovacuum"},
			[]any{"public", "orders", int64(5), int64(1), int64(2), int64(4), int64(2), "2026-01-01 00:00:00+00"},
			[]any{"public", "idle", int64(0), int64(0), int64(0), int64(0), int64(0), nil},
		)

	events, err := Recent(t.Context(), exec)
	require.NoError(t, err)
	require.Len(t, events, 4)

	// "cumulative" sorts above numeric timestamps, as in plain string order
	assert.Equal(t, "cumulative", events[0].Timestamp)
	assert.Equal(t, "public.orders: 5 ins, 1 upd, 2 del", events[0].Description)
	assert.Equal(t, "live=4 dead=2", events[0].Details)

	assert.Equal(t, Delete, events[1].Type)
	assert.True(t, events[1].HasViolation)
	assert.Equal(t, "orders", events[1].TableName)
	assert.Equal(t, "pid=10 user=alice", events[1].Details)

	assert.Equal(t, Query, events[2].Type)
	assert.False(t, events[2].HasViolation)
	assert.True(t, strings.HasSuffix(events[2].Description, "..."))
	assert.Len(t, events[2].Description, maxDescription+3)

	assert.Equal(t, Vacuum, events[3].Type)
	assert.Equal(t, "Autovacuum on public.orders", events[3].Description)
}

func TestRecentNonPostgresIsEmpty(t *testing.T) {
	exec := dbtest.New(db.SQLite)
	events, err := Recent(t.Context(), exec)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NotNil(t, events)
	assert.Empty(t, exec.Statements())
}

func TestRecentPropagatesQueryErrors(t *testing.T) {
	exec := dbtest.New(db.Postgres).Fail("pg_stat_user_tables", errors.New("permission denied"))
	_, err := Recent(t.Context(), exec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

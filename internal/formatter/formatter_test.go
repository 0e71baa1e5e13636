package formatter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemadiag/internal/check"
	"github.com/tordrt/schemadiag/internal/db"
	"github.com/tordrt/schemadiag/internal/recovery"
	"github.com/tordrt/schemadiag/internal/schema"
)

func sampleReport(t *testing.T) *Report {
	t.Helper()

	def := "0"
	users := schema.Table{
		Name:       "users",
		PrimaryKey: []string{"id"},
		Columns: []schema.Column{
			{Name: "id", Type: "INTEGER", Position: 1},
			{Name: "email", Type: "TEXT", Nullable: false, Position: 2},
		},
	}
	orders := schema.Table{
		Name:       "orders",
		PrimaryKey: []string{"id"},
		Columns: []schema.Column{
			{Name: "id", Type: "INTEGER", Position: 1},
			{Name: "user_id", Type: "INTEGER", Nullable: true, Position: 2},
			{Name: "qty", Type: "INTEGER", Nullable: true, DefaultValue: &def, Position: 3},
		},
		Indexes: []schema.Index{{Name: "orders_user_idx", Columns: []string{"user_id"}}},
	}

	fk := schema.Constraint{
		Name: "orders_user_id_fkey", Type: schema.ForeignKey, TableName: "orders",
		Columns: []string{"user_id"}, ForeignTable: "users", ForeignColumns: []string{"id"},
	}
	qty := schema.Constraint{
		Name: "qty_positive", Type: schema.Check, TableName: "orders",
		CheckClause: "(qty > 0)",
	}
	usersPK := schema.Constraint{Name: "users_pkey", Type: schema.PrimaryKey, TableName: "users", Columns: []string{"id"}}
	emailNN := schema.Constraint{Name: "users_email_not_null", Type: schema.NotNull, TableName: "users", Columns: []string{"email"}}

	model := &schema.Model{
		DatabaseName: "shop",
		Dialect:      "sqlite",
		Tables:       []schema.Table{users, orders},
		Constraints:  []schema.Constraint{usersPK, fk, qty},
	}

	results := []check.Result{
		{ConstraintName: "users_pkey", ConstraintType: "PRIMARY KEY", TableName: "users", Satisfied: true, Constraint: usersPK},
		{
			ConstraintName: "orders_user_id_fkey", ConstraintType: "FOREIGN KEY", TableName: "orders", Constraint: fk,
			Violation: &check.Violation{
				ConstraintName: "orders_user_id_fkey", ConstraintType: "FOREIGN KEY", TableName: "orders",
				ViolationCount: 2, SampleViolations: []string{"(99) × 2"},
				Explanation:    "2 rows in orders reference missing users",
				DetectionQuery: "SELECT user_id, COUNT(*) FROM orders ...",
			},
		},
		{
			ConstraintName: "qty_positive", ConstraintType: "CHECK", TableName: "orders", Constraint: qty,
			Satisfied: true, Degraded: true, Warning: "no such column: qty",
		},
		{ConstraintName: "users_email_not_null", ConstraintType: "NOT NULL", TableName: "users", Satisfied: true, Constraint: emailNN},
	}

	plan, ok := recovery.Synthesize(results, db.SQLite)
	require.True(t, ok)

	return &Report{
		Model:   model,
		Results: results,
		FDs: []schema.FunctionalDependency{
			{TableName: "users", Determinant: []string{"id"}, Dependent: []string{"email"}, Confidence: 1, Source: schema.ProvenancePrimaryKey},
		},
		Plan: plan,
	}
}

func TestSummary(t *testing.T) {
	r := sampleReport(t)
	assert.Equal(t, Summary{Checked: 4, Satisfied: 3, Violations: 1, Degraded: 1}, r.Summary())
	assert.True(t, r.HasViolations())

	assert.False(t, (&Report{}).HasViolations())
}

func TestEntriesForAppendsUndeclaredResults(t *testing.T) {
	r := sampleReport(t)

	entries := r.entriesFor(r.Model.Tables[0])
	require.Len(t, entries, 2)
	assert.Equal(t, "users_pkey", entries[0].Constraint.Name)
	assert.Equal(t, "users_email_not_null", entries[1].Constraint.Name)
	assert.Equal(t, "NOT NULL (email)", describe(entries[1].Constraint))
}

func TestDescribe(t *testing.T) {
	r := sampleReport(t)
	assert.Equal(t, "FOREIGN KEY (user_id) -> users (id)", describe(r.Model.Constraints[1]))
	assert.Equal(t, "CHECK (qty > 0)", describe(r.Model.Constraints[2]))

	code := schema.Constraint{Type: schema.Unique, Columns: []string{"code"}, NullsNotDistinct: true}
	assert.Equal(t, "UNIQUE (code) NULLS NOT DISTINCT", describe(code))
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextFormatter(&buf).Format(sampleReport(t)))
	out := buf.String()

	for _, want := range []string{
		"DATABASE shop (sqlite)",
		"TABLE users (PK: id)",
		"  email: TEXT NOT NULL",
		"  qty: INTEGER DEFAULT 0",
		"    users_pkey PRIMARY KEY (id) [OK]",
		"    orders_user_id_fkey FOREIGN KEY (user_id) -> users (id) [VIOLATED (2)]",
		"    qty_positive CHECK (qty > 0) [UNCHECKED]",
		"    id -> email (primary-key)",
		"SUMMARY: 4 checked, 3 satisfied, 1 violated, 1 unchecked",
		"    (99) × 2",
		"qty_positive on orders: check failed, assumed satisfied: no such column: qty",
		"RECOVERY PLAN: Proof-Carrying Recovery",
		"  1. Delete orphan rows violating orders_user_id_fkey on orders [Delete]",
		"COVERAGE: 1/1 steps proven, 3 unique proofs",
	} {
		assert.Contains(t, out, want)
	}
}

func TestMarkdownFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewMarkdownFormatter(&buf).Format(sampleReport(t)))
	out := buf.String()

	for _, want := range []string{
		"# Constraint Diagnostics",
		"- **Violated:** 1",
		"### orders_user_id_fkey",
		"- `(99) × 2`",
		"## orders",
		"- **id:** INTEGER, PK",
		"| orders_user_id_fkey | FOREIGN KEY (user_id) -> users (id) | VIOLATED (2) |",
		"- orders_user_idx on (user_id)",
		"## Recovery plan: Proof-Carrying Recovery",
		"- **Steps with proofs:** 1/1",
	} {
		assert.Contains(t, out, want)
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONFormatter(&buf).Format(sampleReport(t)))

	var decoded struct {
		Schema  schema.Model   `json:"schema"`
		Results []check.Result `json:"results"`
		Summary Summary        `json:"summary"`
		Plan    recovery.Plan  `json:"recovery_plan"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "shop", decoded.Schema.DatabaseName)
	assert.Len(t, decoded.Results, 4)
	assert.Equal(t, 1, decoded.Summary.Violations)
	require.Len(t, decoded.Plan.Steps, 1)
	assert.Equal(t, "orders_user_id_fkey", decoded.Plan.Steps[0].ConstraintName)
}

func TestNew(t *testing.T) {
	tests := []struct {
		format  string
		want    any
		wantErr bool
	}{
		{"", &TextFormatter{}, false},
		{FormatText, &TextFormatter{}, false},
		{FormatMarkdown, &MarkdownFormatter{}, false},
		{FormatJSON, &JSONFormatter{}, false},
		{"yaml", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			f, err := New(tt.format, &bytes.Buffer{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, f)
		})
	}
}

func TestMultiFileFormatter(t *testing.T) {
	tests := []struct {
		format   string
		ext      string
		marker   string
		overview string
	}{
		{FormatMarkdown, ".md", "## orders", "- **orders** (references: users) (violated: orders_user_id_fkey)"},
		{FormatText, ".txt", "TABLE orders (PK: id)", "\norders (references: users) (violated: orders_user_id_fkey)"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "report")
			require.NoError(t, NewMultiFileFormatter(dir, tt.format).Format(sampleReport(t)))

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			assert.ElementsMatch(t, []string{"_overview" + tt.ext, "_recovery" + tt.ext, "orders" + tt.ext, "users" + tt.ext}, names)

			overview, err := os.ReadFile(filepath.Join(dir, "_overview"+tt.ext))
			require.NoError(t, err)
			assert.Contains(t, string(overview), tt.overview)

			orders, err := os.ReadFile(filepath.Join(dir, "orders"+tt.ext))
			require.NoError(t, err)
			assert.Contains(t, string(orders), tt.marker)
			assert.Contains(t, string(orders), "Delete orphan rows violating orders_user_id_fkey on orders")
		})
	}
}

func TestMultiFileFormatterRejectsJSON(t *testing.T) {
	err := NewMultiFileFormatter(t.TempDir(), FormatJSON).Format(sampleReport(t))
	assert.Error(t, err)
}

func TestSchemaOnlyReportHasNoSummary(t *testing.T) {
	full := sampleReport(t)
	r := &Report{Model: full.Model, FDs: full.FDs}

	var buf bytes.Buffer
	require.NoError(t, NewTextFormatter(&buf).Format(r))
	assert.NotContains(t, buf.String(), "SUMMARY")
	assert.Contains(t, buf.String(), "    users_pkey PRIMARY KEY (id) [-]")
}

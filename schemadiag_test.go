package schemadiag

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemadiag/internal/db"
)

const shopDDL = `
CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT NOT NULL UNIQUE);
CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	user_id INTEGER REFERENCES users(id),
	qty INTEGER NOT NULL,
	CONSTRAINT qty_positive CHECK (qty > 0)
);
CREATE TABLE audit_log (id INTEGER PRIMARY KEY, note TEXT);
PRAGMA ignore_check_constraints = ON;
INSERT INTO users (id, email) VALUES (1, 'a@x'), (2, 'b@x');
INSERT INTO orders (id, user_id, qty) VALUES (1, 1, 2), (2, 99, 1), (3, 2, 0);
`

func seedShop(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop.db")

	client := db.NewSQLiteClient(path)
	require.NoError(t, client.Connect(t.Context()))
	_, err := client.GetDB().ExecContext(t.Context(), shopDDL)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	return "sqlite://" + path
}

func TestExtractSchema(t *testing.T) {
	url := seedShop(t)

	tests := []struct {
		name       string
		url        string
		opts       *Options
		wantTables []string
		wantErr    bool
	}{
		{name: "all tables", url: url, wantTables: []string{"audit_log", "orders", "users"}},
		{name: "specific tables", url: url, opts: &Options{Tables: []string{"users"}}, wantTables: []string{"users"}},
		{name: "exclusion", url: url, opts: &Options{ExcludeTables: []string{"audit_log"}}, wantTables: []string{"orders", "users"}},
		{name: "invalid scheme", url: "invalid://test.db", wantErr: true},
		{name: "empty url", url: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, err := ExtractSchema(t.Context(), tt.url, tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			var names []string
			for _, table := range model.Tables {
				names = append(names, table.Name)
			}
			assert.Equal(t, tt.wantTables, names)
		})
	}
}

func TestDiagnose(t *testing.T) {
	r, err := Diagnose(t.Context(), seedShop(t), &Options{ExcludeTables: []string{"audit_log"}})
	require.NoError(t, err)

	assert.Equal(t, "shop", r.Model.DatabaseName)
	assert.NotEmpty(t, r.FDs)

	s := r.Summary()
	assert.Equal(t, len(r.Model.Constraints), s.Checked)
	assert.Equal(t, 2, s.Violations, "orphan order and non-positive qty")
	assert.Zero(t, s.Degraded)

	require.NotNil(t, r.Plan)
	require.Len(t, r.Plan.Steps, 2)
	assert.True(t, r.Plan.AllVerified)
}

func TestDiagnoseForeignKeyToMixedCaseParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crm.db")
	client := db.NewSQLiteClient(path)
	require.NoError(t, client.Connect(t.Context()))
	_, err := client.GetDB().ExecContext(t.Context(), `
		CREATE TABLE customers (id INTEGER PRIMARY KEY);
		CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER REFERENCES Customers);
		INSERT INTO customers (id) VALUES (1);
		INSERT INTO orders (id, customer_id) VALUES (1, 1), (2, 99);
	`)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	r, err := Diagnose(t.Context(), "sqlite://"+path, nil)
	require.NoError(t, err)

	var found bool
	for _, res := range r.Results {
		if res.ConstraintName != "orders_customer_id_fkey" {
			continue
		}
		found = true
		assert.False(t, res.Degraded, res.Warning)
		require.NotNil(t, res.Violation)
		assert.Equal(t, int64(1), res.Violation.ViolationCount)
		assert.Equal(t, []string{"(99)"}, res.Violation.SampleViolations)
	}
	assert.True(t, found)
}

func TestDiagnoseNotNullScan(t *testing.T) {
	url := seedShop(t)

	without, err := Diagnose(t.Context(), url, nil)
	require.NoError(t, err)
	with, err := Diagnose(t.Context(), url, &Options{NotNull: true})
	require.NoError(t, err)

	// users.email and orders.qty
	assert.Len(t, with.Results, len(without.Results)+2)
	assert.Equal(t, without.Summary().Violations, with.Summary().Violations)
}

func TestDiagnoseConnectionFailure(t *testing.T) {
	_, err := Diagnose(t.Context(), "sqlite://"+filepath.Join(t.TempDir(), "missing", "nope.db"), nil)
	assert.Error(t, err)
}

func TestFormatReport(t *testing.T) {
	r, err := Diagnose(t.Context(), seedShop(t), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, FormatReport(r, &OutputOptions{Writer: &buf, Format: "markdown"}))
	assert.Contains(t, buf.String(), "# Constraint Diagnostics")
	assert.Contains(t, buf.String(), "## Recovery plan: Proof-Carrying Recovery")

	buf.Reset()
	require.NoError(t, FormatReport(r, &OutputOptions{Writer: &buf}))
	assert.Contains(t, buf.String(), "TABLE orders (PK: id)")

	assert.Error(t, FormatReport(r, &OutputOptions{Writer: &buf, Format: "yaml"}))
}

func TestDiagnoseAndFormatToDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	r, err := DiagnoseAndFormat(t.Context(), seedShop(t), nil, &OutputOptions{OutputDir: dir, Format: "markdown"})
	require.NoError(t, err)
	require.NotNil(t, r)

	for _, name := range []string{"_overview.md", "_recovery.md", "users.md", "orders.md", "audit_log.md"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

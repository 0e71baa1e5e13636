package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemadiag/internal/schema"
)

const shopDDL = `
CREATE TABLE users (
	id INTEGER PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT,
	age INTEGER,
	CONSTRAINT age_positive CHECK (age >= 0)
);
CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	user_id INTEGER REFERENCES users,
	total REAL CHECK (total > 0),
	note TEXT DEFAULT 'none'
);
CREATE INDEX idx_orders_total ON orders(total);
`

// newSQLiteFixture creates a temp database with shopDDL applied
func newSQLiteFixture(t *testing.T) *SQLiteClient {
	t.Helper()

	client := NewSQLiteClient(filepath.Join(t.TempDir(), "shop.db"))
	require.NoError(t, client.Connect(t.Context()))
	t.Cleanup(func() { _ = client.Close() })

	_, err := client.GetDB().ExecContext(t.Context(), shopDDL)
	require.NoError(t, err)
	return client
}

func TestSQLiteExtraction(t *testing.T) {
	client := newSQLiteFixture(t)

	extractor, err := NewExtractor(client, ExtractOptions{})
	require.NoError(t, err)

	model, err := extractor.ExtractSchema(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "shop", model.DatabaseName)
	assert.Equal(t, "sqlite", model.Dialect)
	require.Len(t, model.Tables, 2)
	assert.Equal(t, "orders", model.Tables[0].Name)
	assert.Equal(t, "users", model.Tables[1].Name)

	users := model.FindTable("", "users")
	require.NotNil(t, users)
	assert.Equal(t, []string{"id"}, users.PrimaryKey)
	assert.Equal(t, []string{"id", "username", "email", "age"}, users.ColumnNames())
	assert.False(t, users.Columns[1].Nullable)
	assert.Equal(t, 2, users.Columns[1].Position)

	orders := model.FindTable("", "orders")
	require.NotNil(t, orders)
	require.NotNil(t, orders.Columns[3].DefaultValue)
	assert.Equal(t, "'none'", *orders.Columns[3].DefaultValue)
	require.Len(t, orders.Indexes, 1)
	assert.Equal(t, "idx_orders_total", orders.Indexes[0].Name)
	assert.Equal(t, []string{"total"}, orders.Indexes[0].Columns)

	byName := make(map[string]schema.Constraint)
	for _, c := range model.Constraints {
		byName[c.Name] = c
	}

	assert.Equal(t, schema.PrimaryKey, byName["users_pkey"].Type)
	assert.Equal(t, []string{"username"}, byName["users_username_key"].Columns)
	assert.Equal(t, schema.Unique, byName["users_username_key"].Type)

	check := byName["age_positive"]
	assert.Equal(t, schema.Check, check.Type)
	assert.Equal(t, "age >= 0", check.CheckClause)

	anon := byName["orders_check_1"]
	assert.Equal(t, schema.Check, anon.Type)
	assert.Equal(t, "total > 0", anon.CheckClause)

	fk := byName["orders_user_id_fkey"]
	assert.Equal(t, schema.ForeignKey, fk.Type)
	assert.Equal(t, "users", fk.ForeignTable)
	assert.Equal(t, []string{"user_id"}, fk.Columns)
	assert.Equal(t, []string{"id"}, fk.ForeignColumns, "missing target columns resolve to the parent primary key")
}

func TestSQLiteForeignKeyTargetsIgnoreCase(t *testing.T) {
	client := NewSQLiteClient(filepath.Join(t.TempDir(), "crm.db"))
	require.NoError(t, client.Connect(t.Context()))
	t.Cleanup(func() { _ = client.Close() })

	_, err := client.GetDB().ExecContext(t.Context(), `
		CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT);
		CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER REFERENCES Customers);
		CREATE TABLE tags (label TEXT);
		CREATE TABLE notes (id INTEGER PRIMARY KEY, tag TEXT REFERENCES TAGS);
	`)
	require.NoError(t, err)

	model, err := NewSQLiteExtractor(client, ExtractOptions{}).ExtractSchema(t.Context())
	require.NoError(t, err)

	byName := make(map[string]schema.Constraint)
	for _, c := range model.Constraints {
		byName[c.Name] = c
	}

	fk := byName["orders_customer_id_fkey"]
	assert.Equal(t, "customers", fk.ForeignTable)
	assert.Equal(t, []string{"id"}, fk.ForeignColumns)

	unresolved := byName["notes_tag_fkey"]
	assert.Equal(t, "tags", unresolved.ForeignTable)
	assert.Empty(t, unresolved.ForeignColumns, "a parent without a primary key leaves the target unresolved")
}

func TestSQLiteExtractionFilters(t *testing.T) {
	client := newSQLiteFixture(t)

	extractor := NewSQLiteExtractor(client, ExtractOptions{ExcludeTables: []string{"orders"}})
	model, err := extractor.ExtractSchema(t.Context())
	require.NoError(t, err)

	require.Len(t, model.Tables, 1)
	assert.Equal(t, "users", model.Tables[0].Name)
	for _, c := range model.Constraints {
		assert.Equal(t, "users", c.TableName)
	}
}

func TestParseCheckClauses(t *testing.T) {
	tests := []struct {
		name string
		ddl  string
		want []checkClause
	}{
		{
			name: "named and anonymous",
			ddl:  `CREATE TABLE t (a INT CHECK (a > 0), b INT, CONSTRAINT b_small CHECK (b < 10))`,
			want: []checkClause{
				{expr: "a > 0", ordinal: 1},
				{name: "b_small", expr: "b < 10", ordinal: 2},
			},
		},
		{
			name: "nested parens and string literal",
			ddl:  `CREATE TABLE t (s TEXT CHECK (length(s) > 2 AND s <> ')'))`,
			want: []checkClause{{expr: "length(s) > 2 AND s <> ')'", ordinal: 1}},
		},
		{
			name: "quoted constraint name and comment",
			ddl:  "CREATE TABLE t (x INT, -- check (ignored)\n CONSTRAINT \"x pos\" check(x>=0))",
			want: []checkClause{{name: "x pos", expr: "x>=0", ordinal: 1}},
		},
		{
			name: "column named check_total is not a clause",
			ddl:  `CREATE TABLE t (check_total INT)`,
		},
		{
			name: "unterminated clause is ignored",
			ddl:  `CREATE TABLE t (x INT CHECK (x > 0`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCheckClauses(tt.ddl))
		})
	}
}

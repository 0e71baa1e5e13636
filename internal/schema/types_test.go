package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConstraintType(t *testing.T) {
	tests := []struct {
		in   string
		want ConstraintType
		ok   bool
	}{
		{"p", PrimaryKey, true},
		{"PRIMARY KEY", PrimaryKey, true},
		{"f", ForeignKey, true},
		{"foreign key", ForeignKey, true},
		{"u", Unique, true},
		{"c", Check, true},
		{"x", Exclusion, true},
		{"NOT NULL", NotNull, true},
		{"t", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseConstraintType(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConstraintTypeJSON(t *testing.T) {
	c := Constraint{Name: "orders_user_fk", Type: ForeignKey, TableName: "orders", Columns: []string{"user_id"}}

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"constraint_type":"FOREIGN KEY"`)

	var decoded Constraint
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ForeignKey, decoded.Type)
}

func TestConstraintValidate(t *testing.T) {
	tests := []struct {
		name    string
		c       Constraint
		wantErr bool
	}{
		{"unique with columns", Constraint{Name: "u", Type: Unique, Columns: []string{"email"}}, false},
		{"check without columns", Constraint{Name: "c", Type: Check, CheckClause: "price > 0"}, false},
		{"primary key without columns", Constraint{Name: "pk", Type: PrimaryKey}, true},
		{"foreign key without columns", Constraint{Name: "fk", Type: ForeignKey}, true},
		{"duplicate column", Constraint{Name: "u", Type: Unique, Columns: []string{"a", "a"}}, true},
		{"unknown type", Constraint{Name: "z", Type: ConstraintType(42)}, true},
		{"missing name", Constraint{Type: Unique, Columns: []string{"a"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFilterTables(t *testing.T) {
	newModel := func() *Model {
		return &Model{
			Tables: []Table{{Name: "users"}, {Name: "posts"}, {Name: "comments"}},
			Constraints: []Constraint{
				{Name: "users_pkey", Type: PrimaryKey, TableName: "users", Columns: []string{"id"}},
				{Name: "posts_user_fk", Type: ForeignKey, TableName: "posts", Columns: []string{"user_id"}},
			},
		}
	}

	t.Run("exclude drops table constraints", func(t *testing.T) {
		m := newModel()
		m.FilterTables(nil, []string{"posts"})
		assert.Len(t, m.Tables, 2)
		require.Len(t, m.Constraints, 1)
		assert.Equal(t, "users_pkey", m.Constraints[0].Name)
	})

	t.Run("include then exclude", func(t *testing.T) {
		m := newModel()
		m.FilterTables([]string{"users", "posts"}, []string{"users"})
		require.Len(t, m.Tables, 1)
		assert.Equal(t, "posts", m.Tables[0].Name)
	})

	t.Run("no filters is a no-op", func(t *testing.T) {
		m := newModel()
		m.FilterTables(nil, nil)
		assert.Len(t, m.Tables, 3)
		assert.Len(t, m.Constraints, 2)
	})
}

func TestNotNullConstraints(t *testing.T) {
	m := &Model{Tables: []Table{{
		Schema: "public",
		Name:   "users",
		Columns: []Column{
			{Name: "id", Nullable: false},
			{Name: "nickname", Nullable: true},
			{Name: "email", Nullable: false},
		},
	}}}

	got := m.NotNullConstraints()
	require.Len(t, got, 2)
	assert.Equal(t, "users_id_not_null", got[0].Name)
	assert.Equal(t, NotNull, got[1].Type)
	assert.Equal(t, []string{"email"}, got[1].Columns)
	assert.Equal(t, "public", got[1].TableSchema)
}

func TestFindTable(t *testing.T) {
	m := &Model{Tables: []Table{{Schema: "public", Name: "users"}, {Schema: "audit", Name: "users"}}}

	assert.Equal(t, "audit", m.FindTable("audit", "users").Schema)
	assert.Equal(t, "public", m.FindTable("", "users").Schema)
	assert.Nil(t, m.FindTable("public", "missing"))
}

package db

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatValue(t *testing.T) {
	id := uuid.MustParse("6f1c2d3e-4a5b-4c6d-8e7f-901234567890")

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "NULL"},
		{"string", "alice", "alice"},
		{"bytes", []byte("bob"), "bob"},
		{"int", int64(42), "42"},
		{"bool", true, "true"},
		{"time", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), "2024-03-01T12:00:00Z"},
		{"raw uuid", [16]byte(id), id.String()},
		{"valid null string", sql.NullString{String: "x", Valid: true}, "x"},
		{"invalid null string", sql.NullString{}, "NULL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestToInt64(t *testing.T) {
	for _, in := range []any{int64(7), int32(7), 7, uint64(7), float64(7), []byte("7"), " 7 "} {
		n, err := ToInt64(in)
		require.NoError(t, err, "%T", in)
		assert.Equal(t, int64(7), n)
	}

	_, err := ToInt64(nil)
	assert.Error(t, err)

	_, err = ToInt64("seven")
	assert.Error(t, err)
}

func TestToBool(t *testing.T) {
	assert.True(t, ToBool(true))
	assert.True(t, ToBool(int64(1)))
	assert.True(t, ToBool("t"))
	assert.True(t, ToBool("YES"))
	assert.False(t, ToBool(int64(0)))
	assert.False(t, ToBool("NO"))
	assert.False(t, ToBool(nil))
}

func TestDecodeJSONList(t *testing.T) {
	cols, err := decodeJSONList(`["tenant_id","email"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant_id", "email"}, cols)

	cols, err = decodeJSONList(nil)
	require.NoError(t, err)
	assert.Nil(t, cols)

	_, err = decodeJSONList("{tenant_id,email}")
	assert.Error(t, err)
}

func TestRowsAccessors(t *testing.T) {
	rows := &Rows{
		Columns: []string{"name", "count"},
		Values:  [][]any{{"a", int64(3)}, {nil, "4"}},
	}

	assert.Equal(t, 2, rows.Len())
	assert.Equal(t, "a", rows.String(0, 0))
	assert.Nil(t, rows.NullableString(1, 0))
	assert.Equal(t, "", rows.String(5, 0))

	n, err := rows.Int64(1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	_, err = rows.Int64(0, 9)
	assert.Error(t, err)

	var empty *Rows
	assert.Equal(t, 0, empty.Len())
}

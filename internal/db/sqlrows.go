package db

import (
	"context"
	"database/sql"
	"fmt"
)

// querySQL runs a statement on a database/sql handle and materializes the result
func querySQL(ctx context.Context, db *sql.DB, statement string, args ...any) (*Rows, error) {
	if db == nil {
		return nil, ErrNotConnected
	}

	rows, err := db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	result := &Rows{Columns: columns}
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range columns {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		// drivers may reuse byte buffers between rows
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		result.Values = append(result.Values, vals)
	}

	return result, rows.Err()
}

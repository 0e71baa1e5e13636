package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/tordrt/schemadiag/internal/schema"
)

// MySQLExtractor handles schema extraction from MySQL
type MySQLExtractor struct {
	exec    Executor
	opts    ExtractOptions
	schemas []string
}

// NewMySQLExtractor creates a new MySQL schema extractor.
// Without explicit schemas, the database named in the DSN is read.
func NewMySQLExtractor(exec Executor, opts ExtractOptions) *MySQLExtractor {
	schemas := opts.Schemas
	if len(schemas) == 0 {
		schemas = []string{exec.DatabaseName()}
	}
	return &MySQLExtractor{exec: exec, opts: opts, schemas: schemas}
}

// ExtractSchema extracts tables and constraints for every configured schema
func (e *MySQLExtractor) ExtractSchema(ctx context.Context) (*schema.Model, error) {
	model := newModel(e.exec, "")

	for _, schemaName := range e.schemas {
		tableNames, err := e.getTableNames(ctx, schemaName)
		if err != nil {
			return nil, fmt.Errorf("failed to get table names: %w", err)
		}

		for _, tableName := range tableNames {
			table, err := e.extractTable(ctx, schemaName, tableName)
			if err != nil {
				return nil, fmt.Errorf("failed to extract table %s: %w", tableName, err)
			}
			model.Tables = append(model.Tables, *table)
		}

		keys, err := e.extractKeyConstraints(ctx, schemaName)
		if err != nil {
			return nil, fmt.Errorf("failed to extract constraints: %w", err)
		}
		model.Constraints = append(model.Constraints, keys...)
		model.Constraints = append(model.Constraints, e.extractCheckConstraints(ctx, schemaName)...)
	}

	return finish(model, e.opts)
}

// getTableNames returns the base tables of a schema
func (e *MySQLExtractor) getTableNames(ctx context.Context, schemaName string) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := e.exec.Query(ctx, query, schemaName)
	if err != nil {
		return nil, err
	}
	return columnStrings(rows), nil
}

// extractTable extracts all information for a single table
func (e *MySQLExtractor) extractTable(ctx context.Context, schemaName, tableName string) (*schema.Table, error) {
	table := &schema.Table{Schema: schemaName, Name: tableName}

	columns, err := e.extractColumns(ctx, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	table.Columns = columns

	pk, err := e.extractPrimaryKey(ctx, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract primary key: %w", err)
	}
	table.PrimaryKey = pk

	indexes, err := e.extractIndexes(ctx, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract indexes: %w", err)
	}
	table.Indexes = indexes

	return table, nil
}

// extractColumns extracts column information for a table
func (e *MySQLExtractor) extractColumns(ctx context.Context, schemaName, tableName string) ([]schema.Column, error) {
	query := `
		SELECT
			c.column_name,
			c.column_type,
			c.is_nullable,
			c.column_default,
			c.data_type,
			c.ordinal_position
		FROM information_schema.columns c
		WHERE c.table_schema = ? AND c.table_name = ?
		ORDER BY c.ordinal_position
	`

	rows, err := e.exec.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	columns := make([]schema.Column, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		position, _ := rows.Int64(i, 5)
		col := schema.Column{
			Name:         rows.String(i, 0),
			Type:         rows.String(i, 1),
			Nullable:     rows.String(i, 2) == "YES",
			DefaultValue: rows.NullableString(i, 3),
			Position:     int(position),
		}

		if rows.String(i, 4) == "enum" {
			values, err := parseEnumValues(col.Type)
			if err != nil {
				return nil, err
			}
			col.EnumValues = values
		}

		columns = append(columns, col)
	}
	return columns, nil
}

// parseEnumValues parses enum values from the column type string.
// MySQL stores enum types as "enum('value1','value2','value3')".
func parseEnumValues(columnType string) ([]string, error) {
	if !strings.HasPrefix(columnType, "enum(") {
		return nil, nil
	}

	start := strings.Index(columnType, "(")
	end := strings.LastIndex(columnType, ")")
	if start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("invalid enum type format: %s", columnType)
	}

	var values []string
	for _, part := range strings.Split(columnType[start+1:end], ",") {
		part = strings.TrimSpace(part)
		if len(part) >= 2 && part[0] == '\'' && part[len(part)-1] == '\'' {
			part = part[1 : len(part)-1]
		}
		values = append(values, part)
	}
	return values, nil
}

// extractPrimaryKey extracts primary key columns
func (e *MySQLExtractor) extractPrimaryKey(ctx context.Context, schemaName, tableName string) ([]string, error) {
	query := `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ?
			AND table_name = ?
			AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position
	`

	rows, err := e.exec.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	return columnStrings(rows), nil
}

// extractIndexes extracts non-primary index information
func (e *MySQLExtractor) extractIndexes(ctx context.Context, schemaName, tableName string) ([]schema.Index, error) {
	query := `
		SELECT
			s.index_name,
			s.non_unique = 0 AS is_unique,
			GROUP_CONCAT(s.column_name ORDER BY s.seq_in_index) AS column_names
		FROM information_schema.statistics s
		WHERE s.table_schema = ?
			AND s.table_name = ?
			AND s.index_name != 'PRIMARY'
		GROUP BY s.index_name, s.non_unique
		ORDER BY s.index_name
	`

	rows, err := e.exec.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	indexes := make([]schema.Index, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		indexes = append(indexes, schema.Index{
			Name:     rows.String(i, 0),
			IsUnique: ToBool(rows.Values[i][1]),
			Columns:  strings.Split(rows.String(i, 2), ","),
		})
	}
	return indexes, nil
}

// extractKeyConstraints reads PRIMARY KEY, UNIQUE and FOREIGN KEY constraints.
// One row per key column; consecutive rows of the same constraint are merged.
func (e *MySQLExtractor) extractKeyConstraints(ctx context.Context, schemaName string) ([]schema.Constraint, error) {
	query := `
		SELECT
			tc.constraint_name,
			tc.constraint_type,
			tc.table_name,
			kcu.column_name,
			kcu.referenced_table_schema,
			kcu.referenced_table_name,
			kcu.referenced_column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_schema = kcu.constraint_schema
			AND tc.constraint_name = kcu.constraint_name
			AND tc.table_name = kcu.table_name
		WHERE tc.table_schema = ?
			AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE', 'FOREIGN KEY')
		ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position
	`

	rows, err := e.exec.Query(ctx, query, schemaName)
	if err != nil {
		return nil, err
	}

	var constraints []schema.Constraint
	for i := 0; i < rows.Len(); i++ {
		ctype, ok := schema.ParseConstraintType(rows.String(i, 1))
		if !ok {
			continue
		}
		name := rows.String(i, 0)
		tableName := rows.String(i, 2)
		if ctype == schema.PrimaryKey {
			// every MySQL primary key is named PRIMARY
			name = tableName + "_pkey"
		}

		n := len(constraints)
		if n == 0 || constraints[n-1].Name != name || constraints[n-1].TableName != tableName {
			con := schema.Constraint{
				Name:        name,
				Type:        ctype,
				TableSchema: schemaName,
				TableName:   tableName,
			}
			if ctype == schema.ForeignKey {
				con.ForeignSchema = rows.String(i, 4)
				con.ForeignTable = rows.String(i, 5)
			}
			constraints = append(constraints, con)
			n++
		}

		con := &constraints[n-1]
		con.Columns = append(con.Columns, rows.String(i, 3))
		if ctype == schema.ForeignKey {
			con.ForeignColumns = append(con.ForeignColumns, rows.String(i, 6))
		}
	}
	return constraints, nil
}

// extractCheckConstraints reads CHECK constraints.
// CHECK_CONSTRAINTS only exists from MySQL 8.0.16, so a failing query yields none.
func (e *MySQLExtractor) extractCheckConstraints(ctx context.Context, schemaName string) []schema.Constraint {
	query := `
		SELECT tc.constraint_name, tc.table_name, cc.check_clause
		FROM information_schema.table_constraints tc
		JOIN information_schema.check_constraints cc
			ON cc.constraint_schema = tc.constraint_schema
			AND cc.constraint_name = tc.constraint_name
		WHERE tc.table_schema = ? AND tc.constraint_type = 'CHECK'
		ORDER BY tc.table_name, tc.constraint_name
	`

	rows, err := e.exec.Query(ctx, query, schemaName)
	if err != nil {
		return nil
	}

	constraints := make([]schema.Constraint, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		constraints = append(constraints, schema.Constraint{
			Name:        rows.String(i, 0),
			Type:        schema.Check,
			TableSchema: schemaName,
			TableName:   rows.String(i, 1),
			CheckClause: rows.String(i, 2),
		})
	}
	return constraints
}

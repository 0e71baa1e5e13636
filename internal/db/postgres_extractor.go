package db

import (
	"context"
	"fmt"

	"github.com/tordrt/schemadiag/internal/schema"
)

const varcharType = "varchar"

// PostgresExtractor handles schema extraction from PostgreSQL
type PostgresExtractor struct {
	exec    Executor
	opts    ExtractOptions
	schemas []string
}

// NewPostgresExtractor creates a new schema extractor
func NewPostgresExtractor(exec Executor, opts ExtractOptions) *PostgresExtractor {
	schemas := opts.Schemas
	if len(schemas) == 0 {
		schemas = []string{"public"}
	}
	return &PostgresExtractor{exec: exec, opts: opts, schemas: schemas}
}

// ExtractSchema extracts tables and constraints for the configured schemas
func (e *PostgresExtractor) ExtractSchema(ctx context.Context) (*schema.Model, error) {
	var name string
	if rows, err := e.exec.Query(ctx, "SELECT current_database()"); err == nil && rows.Len() > 0 {
		name = rows.String(0, 0)
	}
	model := newModel(e.exec, name)

	refs, err := e.getTableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}

	for _, ref := range refs {
		table, err := e.extractTable(ctx, ref[0], ref[1])
		if err != nil {
			return nil, fmt.Errorf("failed to extract table %s.%s: %w", ref[0], ref[1], err)
		}
		model.Tables = append(model.Tables, *table)
	}

	constraints, err := e.extractConstraints(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to extract constraints: %w", err)
	}
	model.Constraints = constraints

	return finish(model, e.opts)
}

// getTableNames returns (schema, table) pairs for every base table
func (e *PostgresExtractor) getTableNames(ctx context.Context) ([][2]string, error) {
	query := `
		SELECT table_schema::text, table_name::text
		FROM information_schema.tables
		WHERE table_schema = ANY($1) AND table_type = 'BASE TABLE'
		ORDER BY table_schema, table_name
	`

	rows, err := e.exec.Query(ctx, query, e.schemas)
	if err != nil {
		return nil, err
	}

	refs := make([][2]string, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		refs = append(refs, [2]string{rows.String(i, 0), rows.String(i, 1)})
	}
	return refs, nil
}

// extractTable extracts all information for a single table
func (e *PostgresExtractor) extractTable(ctx context.Context, schemaName, tableName string) (*schema.Table, error) {
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

// normalizePostgresType maps verbose SQL type names to commonly-used PostgreSQL equivalents
func normalizePostgresType(dataType, udtName string, charMaxLength *int) string {
	switch dataType {
	case "timestamp with time zone":
		return "timestamptz"
	case "timestamp without time zone":
		return "timestamp"
	case "time with time zone":
		return "timetz"
	case "time without time zone":
		return "time"
	case "character varying":
		if charMaxLength != nil {
			return fmt.Sprintf("varchar(%d)", *charMaxLength)
		}
		return varcharType
	case "character":
		if charMaxLength != nil {
			return fmt.Sprintf("char(%d)", *charMaxLength)
		}
		return "char"
	case "ARRAY":
		// udt_name has underscore prefix for arrays (e.g., "_text" for text[])
		if len(udtName) > 0 && udtName[0] == '_' {
			return normalizeUdtName(udtName[1:]) + "[]"
		}
		return "array"
	case "USER-DEFINED":
		return udtName
	default:
		return dataType
	}
}

// normalizeUdtName converts PostgreSQL internal type names to more readable forms
func normalizeUdtName(udtName string) string {
	switch udtName {
	case "int4":
		return "integer"
	case "int8":
		return "bigint"
	case "int2":
		return "smallint"
	case "float4":
		return "real"
	case "float8":
		return "double precision"
	case "bool":
		return "boolean"
	default:
		return udtName
	}
}

// extractColumns extracts column information for a table
func (e *PostgresExtractor) extractColumns(ctx context.Context, schemaName, tableName string) ([]schema.Column, error) {
	query := `
		SELECT
			column_name::text,
			data_type::text,
			is_nullable::text,
			column_default::text,
			udt_name::text,
			character_maximum_length::int,
			ordinal_position::int
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := e.exec.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	columns := make([]schema.Column, 0, rows.Len())
	var enumTypes []string

	for i := 0; i < rows.Len(); i++ {
		dataType := rows.String(i, 1)
		udtName := rows.String(i, 4)

		var charMaxLength *int
		if n, err := rows.Int64(i, 5); err == nil {
			length := int(n)
			charMaxLength = &length
		}
		position, _ := rows.Int64(i, 6)

		col := schema.Column{
			Name:         rows.String(i, 0),
			Type:         normalizePostgresType(dataType, udtName, charMaxLength),
			Nullable:     rows.String(i, 2) == "YES",
			DefaultValue: rows.NullableString(i, 3),
			Position:     int(position),
		}

		// remember USER-DEFINED types for the enum lookup below
		if dataType == "USER-DEFINED" {
			enumTypes = append(enumTypes, udtName)
		}

		columns = append(columns, col)
	}

	if len(enumTypes) > 0 {
		enumValuesMap, err := e.extractEnumValuesMap(ctx, schemaName, enumTypes)
		if err != nil {
			return nil, err
		}
		for i := range columns {
			if values, ok := enumValuesMap[columns[i].Type]; ok {
				columns[i].EnumValues = values
			}
		}
	}

	return columns, nil
}

// extractEnumValuesMap extracts enum labels for several enum types at once
func (e *PostgresExtractor) extractEnumValuesMap(ctx context.Context, schemaName string, enumTypeNames []string) (map[string][]string, error) {
	query := `
		SELECT t.typname::text, e.enumlabel::text
		FROM pg_type t
		JOIN pg_enum e ON t.oid = e.enumtypid
		JOIN pg_namespace n ON t.typnamespace = n.oid
		WHERE n.nspname = $1 AND t.typname = ANY($2)
		ORDER BY t.typname, e.enumsortorder
	`

	rows, err := e.exec.Query(ctx, query, schemaName, enumTypeNames)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]string)
	for i := 0; i < rows.Len(); i++ {
		typName := rows.String(i, 0)
		result[typName] = append(result[typName], rows.String(i, 1))
	}
	return result, nil
}

// extractPrimaryKey extracts primary key columns in key order
func (e *PostgresExtractor) extractPrimaryKey(ctx context.Context, schemaName, tableName string) ([]string, error) {
	query := `
		SELECT column_name::text
		FROM information_schema.key_column_usage
		WHERE table_schema = $1
			AND table_name = $2
			AND constraint_name IN (
				SELECT constraint_name
				FROM information_schema.table_constraints
				WHERE table_schema = $1
					AND table_name = $2
					AND constraint_type = 'PRIMARY KEY'
			)
		ORDER BY ordinal_position
	`

	rows, err := e.exec.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	return columnStrings(rows), nil
}

// extractIndexes extracts non-primary index information
func (e *PostgresExtractor) extractIndexes(ctx context.Context, schemaName, tableName string) ([]schema.Index, error) {
	query := `
		SELECT
			i.relname::text AS index_name,
			ix.indisunique AS is_unique,
			array_to_json(array_agg(a.attname::text ORDER BY array_position(ix.indkey, a.attnum)))::text AS column_names
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE t.relkind = 'r'
			AND n.nspname = $1
			AND t.relname = $2
			AND NOT ix.indisprimary
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname
	`

	rows, err := e.exec.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, err
	}

	indexes := make([]schema.Index, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		cols, err := decodeJSONList(rows.Values[i][2])
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, schema.Index{
			Name:     rows.String(i, 0),
			IsUnique: ToBool(rows.Values[i][1]),
			Columns:  cols,
		})
	}
	return indexes, nil
}

// extractConstraints reads every PK/FK/UNIQUE/CHECK/EXCLUDE constraint in the configured schemas.
// Column lists keep the declared key order.
func (e *PostgresExtractor) extractConstraints(ctx context.Context) ([]schema.Constraint, error) {
	query := fmt.Sprintf(`
		SELECT
			con.conname::text,
			con.contype::text,
			n.nspname::text,
			c.relname::text,
			array_to_json(ARRAY(
				SELECT a.attname::text
				FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
				ORDER BY k.ord
			))::text AS columns,
			fn.nspname::text,
			fc.relname::text,
			array_to_json(ARRAY(
				SELECT a.attname::text
				FROM unnest(con.confkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = con.confrelid AND a.attnum = k.attnum
				ORDER BY k.ord
			))::text AS foreign_columns,
			CASE WHEN con.contype = 'c' THEN pg_get_expr(con.conbin, con.conrelid) END AS check_clause,
			%s AS nulls_not_distinct
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_class fc ON fc.oid = con.confrelid
		LEFT JOIN pg_namespace fn ON fn.oid = fc.relnamespace
		LEFT JOIN pg_index uix ON uix.indexrelid = con.conindid
		WHERE n.nspname = ANY($1)
			AND con.contype IN ('p', 'f', 'u', 'c', 'x')
		ORDER BY n.nspname, c.relname, con.conname
	`, e.nullsNotDistinctColumn(ctx))

	rows, err := e.exec.Query(ctx, query, e.schemas)
	if err != nil {
		return nil, err
	}

	constraints := make([]schema.Constraint, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		ctype, ok := schema.ParseConstraintType(rows.String(i, 1))
		if !ok {
			continue
		}
		cols, err := decodeJSONList(rows.Values[i][4])
		if err != nil {
			return nil, err
		}
		foreignCols, err := decodeJSONList(rows.Values[i][7])
		if err != nil {
			return nil, err
		}

		con := schema.Constraint{
			Name:        rows.String(i, 0),
			Type:        ctype,
			TableSchema: rows.String(i, 2),
			TableName:   rows.String(i, 3),
			Columns:     cols,
		}
		if ctype == schema.ForeignKey {
			con.ForeignSchema = rows.String(i, 5)
			con.ForeignTable = rows.String(i, 6)
			con.ForeignColumns = foreignCols
		}
		if clause := rows.NullableString(i, 8); clause != nil {
			con.CheckClause = *clause
		}
		if ctype == schema.Unique {
			con.NullsNotDistinct = rows.Bool(i, 9)
		}
		constraints = append(constraints, con)
	}
	return constraints, nil
}

// nullsNotDistinctColumn selects pg_index.indnullsnotdistinct, which only exists from PostgreSQL 15
func (e *PostgresExtractor) nullsNotDistinctColumn(ctx context.Context) string {
	rows, err := e.exec.Query(ctx, "SELECT current_setting('server_version_num')::int")
	if err != nil || rows.Len() == 0 {
		return "false"
	}
	if version, err := rows.Int64(0, 0); err == nil && version >= 150000 {
		return "COALESCE(uix.indnullsnotdistinct, false)"
	}
	return "false"
}

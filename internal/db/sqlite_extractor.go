package db

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tordrt/schemadiag/internal/schema"
)

// SQLiteExtractor handles schema extraction from SQLite
type SQLiteExtractor struct {
	exec Executor
	opts ExtractOptions
}

// NewSQLiteExtractor creates a new SQLite schema extractor
func NewSQLiteExtractor(exec Executor, opts ExtractOptions) *SQLiteExtractor {
	return &SQLiteExtractor{exec: exec, opts: opts}
}

// ExtractSchema extracts every user table with its constraints
func (e *SQLiteExtractor) ExtractSchema(ctx context.Context) (*schema.Model, error) {
	model := newModel(e.exec, "")

	tables, err := e.getTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}

	for _, ref := range tables {
		table, constraints, err := e.extractTable(ctx, ref.name, ref.ddl)
		if err != nil {
			return nil, fmt.Errorf("failed to extract table %s: %w", ref.name, err)
		}
		model.Tables = append(model.Tables, *table)
		model.Constraints = append(model.Constraints, constraints...)
	}

	// foreign keys without target columns point at the parent's primary key.
	// A parent without one leaves the key unresolved.
	for i := range model.Constraints {
		con := &model.Constraints[i]
		if con.Type != schema.ForeignKey {
			continue
		}
		parent := findTableFold(model, con.ForeignTable)
		if parent == nil {
			continue
		}
		con.ForeignTable = parent.Name
		if len(con.ForeignColumns) == 0 && len(parent.PrimaryKey) == len(con.Columns) {
			con.ForeignColumns = append([]string(nil), parent.PrimaryKey...)
		}
	}

	return finish(model, e.opts)
}

// findTableFold looks a table up by name, ignoring case like SQLite does
func findTableFold(model *schema.Model, name string) *schema.Table {
	if t := model.FindTable("", name); t != nil {
		return t
	}
	for i := range model.Tables {
		if strings.EqualFold(model.Tables[i].Name, name) {
			return &model.Tables[i]
		}
	}
	return nil
}

type sqliteTable struct {
	name string
	ddl  string
}

// getTables returns user tables with their CREATE statements
func (e *SQLiteExtractor) getTables(ctx context.Context) ([]sqliteTable, error) {
	query := `
		SELECT name, sql
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	rows, err := e.exec.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	tables := make([]sqliteTable, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		var ddl string
		if s := rows.NullableString(i, 1); s != nil {
			ddl = *s
		}
		tables = append(tables, sqliteTable{name: rows.String(i, 0), ddl: ddl})
	}
	return tables, nil
}

// extractTable extracts columns, keys, indexes and constraints for a single table
func (e *SQLiteExtractor) extractTable(ctx context.Context, tableName, ddl string) (*schema.Table, []schema.Constraint, error) {
	table := &schema.Table{Name: tableName}

	columns, pk, err := e.extractColumns(ctx, tableName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	table.Columns = columns
	table.PrimaryKey = pk

	var constraints []schema.Constraint
	if len(pk) > 0 {
		constraints = append(constraints, schema.Constraint{
			Name:      tableName + "_pkey",
			Type:      schema.PrimaryKey,
			TableName: tableName,
			Columns:   pk,
		})
	}

	indexes, uniques, err := e.extractIndexes(ctx, tableName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to extract indexes: %w", err)
	}
	table.Indexes = indexes
	constraints = append(constraints, uniques...)

	fks, err := e.extractForeignKeys(ctx, tableName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to extract foreign keys: %w", err)
	}
	constraints = append(constraints, fks...)

	for _, chk := range parseCheckClauses(ddl) {
		name := chk.name
		if name == "" {
			name = fmt.Sprintf("%s_check_%d", tableName, chk.ordinal)
		}
		constraints = append(constraints, schema.Constraint{
			Name:        name,
			Type:        schema.Check,
			TableName:   tableName,
			CheckClause: chk.expr,
		})
	}

	return table, constraints, nil
}

// extractColumns reads PRAGMA table_info; the primary key comes back in key order
func (e *SQLiteExtractor) extractColumns(ctx context.Context, tableName string) ([]schema.Column, []string, error) {
	rows, err := e.exec.Query(ctx, "PRAGMA table_info("+SQLite.QuoteIdent(tableName)+")")
	if err != nil {
		return nil, nil, err
	}

	type pkCol struct {
		order int64
		name  string
	}
	var pkCols []pkCol

	columns := make([]schema.Column, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		cid, _ := rows.Int64(i, 0)
		notNull, _ := rows.Int64(i, 3)
		pkOrder, _ := rows.Int64(i, 5)

		col := schema.Column{
			Name:         rows.String(i, 1),
			Type:         rows.String(i, 2),
			Nullable:     notNull == 0,
			DefaultValue: rows.NullableString(i, 4),
			Position:     int(cid) + 1,
		}
		if pkOrder > 0 {
			pkCols = append(pkCols, pkCol{order: pkOrder, name: col.Name})
		}
		columns = append(columns, col)
	}

	sort.Slice(pkCols, func(a, b int) bool { return pkCols[a].order < pkCols[b].order })
	var pk []string
	for _, c := range pkCols {
		pk = append(pk, c.name)
	}

	return columns, pk, nil
}

// extractIndexes reads PRAGMA index_list. Explicit indexes are reported as
// indexes; automatic indexes backing UNIQUE clauses become unique constraints.
func (e *SQLiteExtractor) extractIndexes(ctx context.Context, tableName string) ([]schema.Index, []schema.Constraint, error) {
	rows, err := e.exec.Query(ctx, "PRAGMA index_list("+SQLite.QuoteIdent(tableName)+")")
	if err != nil {
		return nil, nil, err
	}

	var indexes []schema.Index
	var uniques []schema.Constraint

	// index_list is newest first
	for i := rows.Len() - 1; i >= 0; i-- {
		name := rows.String(i, 1)
		unique, _ := rows.Int64(i, 2)
		origin := rows.String(i, 3)

		if origin == "pk" {
			continue
		}

		columns, err := e.indexColumns(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		if len(columns) == 0 {
			continue
		}

		if origin == "u" {
			uniques = append(uniques, schema.Constraint{
				Name:      fmt.Sprintf("%s_%s_key", tableName, strings.Join(columns, "_")),
				Type:      schema.Unique,
				TableName: tableName,
				Columns:   columns,
			})
			continue
		}

		indexes = append(indexes, schema.Index{
			Name:     name,
			IsUnique: unique == 1,
			Columns:  columns,
		})
	}

	return indexes, uniques, nil
}

// indexColumns reads PRAGMA index_info; expression columns have no name and are skipped
func (e *SQLiteExtractor) indexColumns(ctx context.Context, indexName string) ([]string, error) {
	rows, err := e.exec.Query(ctx, "PRAGMA index_info("+SQLite.QuoteIdent(indexName)+")")
	if err != nil {
		return nil, err
	}

	var columns []string
	for i := 0; i < rows.Len(); i++ {
		if name := rows.NullableString(i, 2); name != nil {
			columns = append(columns, *name)
		}
	}
	return columns, nil
}

// extractForeignKeys reads PRAGMA foreign_key_list, grouping rows by constraint id
func (e *SQLiteExtractor) extractForeignKeys(ctx context.Context, tableName string) ([]schema.Constraint, error) {
	rows, err := e.exec.Query(ctx, "PRAGMA foreign_key_list("+SQLite.QuoteIdent(tableName)+")")
	if err != nil {
		return nil, err
	}

	var fks []schema.Constraint
	byID := make(map[int64]int)
	for i := 0; i < rows.Len(); i++ {
		id, _ := rows.Int64(i, 0)
		pos, ok := byID[id]
		if !ok {
			pos = len(fks)
			byID[id] = pos
			fks = append(fks, schema.Constraint{
				Type:         schema.ForeignKey,
				TableName:    tableName,
				ForeignTable: rows.String(i, 2),
			})
		}

		fk := &fks[pos]
		fk.Columns = append(fk.Columns, rows.String(i, 3))
		if to := rows.NullableString(i, 4); to != nil && *to != "" {
			fk.ForeignColumns = append(fk.ForeignColumns, *to)
		}
	}

	// PRAGMA ids count down from the last declared key
	for i, j := 0, len(fks)-1; i < j; i, j = i+1, j-1 {
		fks[i], fks[j] = fks[j], fks[i]
	}
	for i := range fks {
		fks[i].Name = fmt.Sprintf("%s_%s_fkey", tableName, strings.Join(fks[i].Columns, "_"))
		// a partial list of target columns cannot be paired with the local columns
		if len(fks[i].ForeignColumns) != len(fks[i].Columns) {
			fks[i].ForeignColumns = nil
		}
	}
	return fks, nil
}

// checkClause is one CHECK found in a CREATE TABLE statement
type checkClause struct {
	name    string
	expr    string
	ordinal int
}

// parseCheckClauses finds every CHECK (...) in a CREATE TABLE statement,
// with the name from a preceding CONSTRAINT clause when there is one
func parseCheckClauses(ddl string) []checkClause {
	tokens := tokenizeSQL(ddl)

	var clauses []checkClause
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.kind != tokenWord || !strings.EqualFold(tok.text, "CHECK") {
			continue
		}
		if i+1 >= len(tokens) || tokens[i+1].text != "(" || tokens[i+1].kind != tokenPunct {
			continue
		}

		depth := 0
		end := -1
		for j := i + 1; j < len(tokens); j++ {
			if tokens[j].kind != tokenPunct {
				continue
			}
			switch tokens[j].text {
			case "(":
				depth++
			case ")":
				depth--
			}
			if depth == 0 {
				end = j
				break
			}
		}
		if end < 0 {
			break
		}

		clause := checkClause{
			expr:    strings.TrimSpace(ddl[tokens[i+1].end:tokens[end].start]),
			ordinal: len(clauses) + 1,
		}
		if i >= 2 && tokens[i-2].kind == tokenWord && strings.EqualFold(tokens[i-2].text, "CONSTRAINT") &&
			(tokens[i-1].kind == tokenWord || tokens[i-1].kind == tokenIdent) {
			clause.name = tokens[i-1].text
		}
		clauses = append(clauses, clause)
		i = end
	}
	return clauses
}

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenIdent
	tokenString
	tokenPunct
)

// sqlToken records its byte span so expressions can be cut from the source text
type sqlToken struct {
	kind  tokenKind
	text  string
	start int
	end   int
}

// tokenizeSQL splits a statement into words, quoted identifiers, string
// literals and punctuation, dropping whitespace and comments
func tokenizeSQL(s string) []sqlToken {
	var tokens []sqlToken
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 4
			}
		case c == '\'':
			text, next := scanQuoted(s, i, '\'')
			tokens = append(tokens, sqlToken{kind: tokenString, text: text, start: i, end: next})
			i = next
		case c == '"' || c == '`':
			text, next := scanQuoted(s, i, c)
			tokens = append(tokens, sqlToken{kind: tokenIdent, text: text, start: i, end: next})
			i = next
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			next := len(s)
			if end >= 0 {
				next = i + end + 1
			}
			text := strings.TrimSuffix(s[i+1:next], "]")
			tokens = append(tokens, sqlToken{kind: tokenIdent, text: text, start: i, end: next})
			i = next
		case isWordByte(c):
			start := i
			for i < len(s) && isWordByte(s[i]) {
				i++
			}
			tokens = append(tokens, sqlToken{kind: tokenWord, text: s[start:i], start: start, end: i})
		default:
			tokens = append(tokens, sqlToken{kind: tokenPunct, text: string(c), start: i, end: i + 1})
			i++
		}
	}
	return tokens
}

// scanQuoted reads a quoted run starting at s[start], where a doubled quote escapes itself
func scanQuoted(s string, start int, quote byte) (string, int) {
	var b strings.Builder
	i := start + 1
	for i < len(s) {
		if s[i] == quote {
			if i+1 < len(s) && s[i+1] == quote {
				b.WriteByte(quote)
				i += 2
				continue
			}
			return b.String(), i + 1
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String(), i
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

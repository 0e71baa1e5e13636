package check

import (
	"fmt"
	"strings"

	"github.com/tordrt/schemadiag/internal/db"
	"github.com/tordrt/schemadiag/internal/schema"
)

type fkQueries struct {
	count  string
	sample string
}

// foreignKeyQuery builds the orphan anti-join: child rows whose referencing
// columns are all non-null with no matching parent row.
func foreignKeyQuery(d db.Dialect, con schema.Constraint) fkQueries {
	foreignCols := con.ForeignColumns

	n := min(len(con.Columns), len(foreignCols))
	local := make([]string, n)
	joins := make([]string, n)
	notNull := make([]string, n)
	for i := 0; i < n; i++ {
		local[i] = "t." + d.QuoteIdent(con.Columns[i])
		joins[i] = fmt.Sprintf("%s = f.%s", local[i], d.QuoteIdent(foreignCols[i]))
		notNull[i] = local[i] + " IS NOT NULL"
	}

	from := fmt.Sprintf("FROM %s t LEFT JOIN %s f ON %s WHERE %s AND f.%s IS NULL",
		d.QualifiedTable(con.TableSchema, con.TableName),
		d.QualifiedTable(con.ForeignSchema, con.ForeignTable),
		strings.Join(joins, " AND "),
		strings.Join(notNull, " AND "),
		d.QuoteIdent(foreignCols[0]))

	return fkQueries{
		count:  "SELECT COUNT(*) AS violation_count " + from,
		sample: fmt.Sprintf("SELECT %s %s", strings.Join(local, ", "), from),
	}
}

// duplicateGroupsQuery returns one row per duplicated key: the key columns then the group size.
// Rows with a NULL in any key column never collide, unless the constraint is NULLS NOT DISTINCT.
func duplicateGroupsQuery(d db.Dialect, con schema.Constraint) string {
	cols := make([]string, len(con.Columns))
	notNull := make([]string, len(con.Columns))
	for i, col := range con.Columns {
		cols[i] = d.QuoteIdent(col)
		notNull[i] = cols[i] + " IS NOT NULL"
	}
	list := strings.Join(cols, ", ")

	where := " WHERE " + strings.Join(notNull, " AND ")
	if con.NullsNotDistinct {
		where = ""
	}

	return fmt.Sprintf("SELECT %s, COUNT(*) AS dup_count FROM %s%s GROUP BY %s HAVING COUNT(*) > 1",
		list,
		d.QualifiedTable(con.TableSchema, con.TableName),
		where,
		list)
}

// StripEnclosingParens removes parentheses that wrap the whole expression,
// repeatedly, so "((a > 0))" becomes "a > 0" but "(a) OR (b)" is untouched
func StripEnclosingParens(expr string) string {
	expr = strings.TrimSpace(expr)
	for len(expr) >= 2 && expr[0] == '(' && expr[len(expr)-1] == ')' && closesAtEnd(expr) {
		expr = strings.TrimSpace(expr[1 : len(expr)-1])
	}
	return expr
}

// closesAtEnd reports whether the paren opened at expr[0] is the one closed at the last byte
func closesAtEnd(expr string) bool {
	depth := 0
	inString := false
	for i := 0; i < len(expr); i++ {
		switch c := expr[i]; {
		case c == '\'':
			inString = !inString
		case inString:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i == len(expr)-1
			}
		}
	}
	return false
}

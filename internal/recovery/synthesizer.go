// Package recovery turns constraint violations into an ordered, proof-annotated repair plan.
// Repair statements are advisory text; nothing here executes them.
package recovery

import (
	"fmt"
	"strings"

	"github.com/tordrt/schemadiag/internal/check"
	"github.com/tordrt/schemadiag/internal/db"
	"github.com/tordrt/schemadiag/internal/proof"
	"github.com/tordrt/schemadiag/internal/schema"
)

// PlanName is the name given to every synthesized plan
const PlanName = "Proof-Carrying Recovery"

// Step is one repair action
type Step struct {
	Number         int            `json:"number"`
	Description    string         `json:"description"`
	SQL            string         `json:"sql"`
	Category       proof.Category `json:"category"`
	Proofs         []string       `json:"proofs"`
	ConstraintName string         `json:"constraint_name"`
	TableName      string         `json:"table_name"`
}

// Plan is an ordered list of steps with their proof coverage
type Plan struct {
	Name        string         `json:"name"`
	Steps       []Step         `json:"steps"`
	AllVerified bool           `json:"all_verified"`
	Coverage    proof.Coverage `json:"coverage"`
}

// Synthesize builds a plan from the unsatisfied results, preserving their relative order.
// The second return is false when nothing is violated; no plan is produced then.
func Synthesize(results []check.Result, dialect db.Dialect) (*Plan, bool) {
	var steps []Step
	for _, r := range results {
		if r.Satisfied {
			continue
		}
		step := buildStep(r, dialect)
		step.Number = len(steps) + 1
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		return nil, false
	}

	categories := make([]proof.Category, len(steps))
	for i := range steps {
		cat := proof.Resolve(steps[i].Category, steps[i].Description)
		categories[i] = cat

		refs := proof.ProofsFor(cat)
		steps[i].Proofs = make([]string, len(refs))
		for j, ref := range refs {
			steps[i].Proofs[j] = ref.Annotation()
		}
	}

	cov := proof.NewCoverage(categories)
	return &Plan{
		Name:        PlanName,
		Steps:       steps,
		AllVerified: cov.AllVerified(),
		Coverage:    cov,
	}, true
}

// Descriptions returns the step descriptions in order
func (p *Plan) Descriptions() []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Description
	}
	return out
}

func buildStep(r check.Result, d db.Dialect) Step {
	con := r.Constraint
	if con.Name == "" {
		con.Name = r.ConstraintName
	}
	if con.TableName == "" {
		con.TableName = r.TableName
	}

	step := Step{ConstraintName: con.Name, TableName: con.TableName}
	switch con.Type {
	case schema.ForeignKey:
		step.Description = fmt.Sprintf("Delete orphan rows violating %s on %s", con.Name, con.TableName)
		step.SQL = orphanDelete(d, con)
		step.Category = proof.Delete
	case schema.Unique, schema.PrimaryKey:
		step.Description = fmt.Sprintf("Remove duplicate rows violating %s on %s", con.Name, con.TableName)
		step.SQL = duplicateDelete(d, con)
		step.Category = proof.Delete
	case schema.Check:
		step.Description = fmt.Sprintf("Update rows to satisfy %s on %s", con.Name, con.TableName)
		step.SQL = fmt.Sprintf("UPDATE %s SET /* column = corrected value */ WHERE NOT (%s)",
			d.QualifiedTable(con.TableSchema, con.TableName), check.StripEnclosingParens(con.CheckClause))
		step.Category = proof.Update
	case schema.NotNull:
		step.Description = fmt.Sprintf("Update rows to satisfy %s on %s", con.Name, con.TableName)
		step.SQL = nullUpdate(d, con)
		step.Category = proof.Update
	default:
		typeName := r.ConstraintType
		if typeName == "" {
			typeName = con.Type.String()
		}
		step.Description = fmt.Sprintf("Fix %s violation on %s", typeName, con.TableName)
		step.SQL = "-- Recovery SQL for " + con.Name
		step.Category = proof.Update
	}
	return step
}

// orphanDelete removes child rows whose non-null references have no parent
func orphanDelete(d db.Dialect, con schema.Constraint) string {
	foreignCols := con.ForeignColumns
	if !con.HasForeignTable() || len(con.Columns) == 0 || len(foreignCols) == 0 {
		return "-- Recovery SQL for " + con.Name
	}

	table := d.QualifiedTable(con.TableSchema, con.TableName)
	n := min(len(con.Columns), len(foreignCols))
	notNull := make([]string, n)
	joins := make([]string, n)
	for i := 0; i < n; i++ {
		local := table + "." + d.QuoteIdent(con.Columns[i])
		notNull[i] = local + " IS NOT NULL"
		joins[i] = fmt.Sprintf("f.%s = %s", d.QuoteIdent(foreignCols[i]), local)
	}

	return fmt.Sprintf("DELETE FROM %s WHERE %s AND NOT EXISTS (SELECT 1 FROM %s f WHERE %s) -- orphan FK rows",
		table,
		strings.Join(notNull, " AND "),
		d.QualifiedTable(con.ForeignSchema, con.ForeignTable),
		strings.Join(joins, " AND "))
}

// duplicateDelete keeps the first physical row of each duplicate group
func duplicateDelete(d db.Dialect, con schema.Constraint) string {
	if len(con.Columns) == 0 {
		return "-- Recovery SQL for " + con.Name
	}
	table := d.QualifiedTable(con.TableSchema, con.TableName)

	cols := make([]string, len(con.Columns))
	notNull := make([]string, len(con.Columns))
	for i, col := range con.Columns {
		cols[i] = d.QuoteIdent(col)
		notNull[i] = cols[i] + " IS NOT NULL"
	}

	switch d {
	case db.Postgres:
		pairs := make([]string, len(cols))
		for i, col := range cols {
			pairs[i] = fmt.Sprintf("a.%s = b.%s", col, col)
		}
		return fmt.Sprintf("DELETE FROM %s a USING %s b WHERE a.ctid > b.ctid AND %s -- keep first occurrence",
			table, table, strings.Join(pairs, " AND "))
	case db.SQLite:
		where := strings.Join(notNull, " AND ")
		return fmt.Sprintf("DELETE FROM %s WHERE %s AND rowid NOT IN (SELECT MIN(rowid) FROM %s WHERE %s GROUP BY %s) -- keep first occurrence",
			table, where, table, where, strings.Join(cols, ", "))
	default:
		pairs := make([]string, len(cols))
		for i, col := range cols {
			pairs[i] = fmt.Sprintf("a.%s = b.%s", col, col)
		}
		return fmt.Sprintf("-- no hidden row identifier; substitute a surrogate key for <id> to keep first occurrence\n"+
			"-- DELETE a FROM %s a JOIN %s b ON %s AND a.<id> > b.<id>",
			table, table, strings.Join(pairs, " AND "))
	}
}

func nullUpdate(d db.Dialect, con schema.Constraint) string {
	if len(con.Columns) == 0 {
		return "-- Recovery SQL for " + con.Name
	}
	col := d.QuoteIdent(con.Columns[0])
	return fmt.Sprintf("UPDATE %s SET %s = /* default value */ WHERE %s IS NULL",
		d.QualifiedTable(con.TableSchema, con.TableName), col, col)
}

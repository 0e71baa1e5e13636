// Package check detects live-data violations of declared schema constraints.
package check

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tordrt/schemadiag/internal/db"
	"github.com/tordrt/schemadiag/internal/schema"
)

// MaxSamples bounds the sample tuples reported per violation
const MaxSamples = 5

// Violation is evidence that live data does not satisfy a constraint
type Violation struct {
	ConstraintName   string   `json:"constraint_name"`
	ConstraintType   string   `json:"constraint_type"`
	TableSchema      string   `json:"table_schema"`
	TableName        string   `json:"table_name"`
	ViolationCount   int64    `json:"violation_count"`
	SampleViolations []string `json:"sample_violations"`
	Explanation      string   `json:"explanation"`
	DetectionQuery   string   `json:"detection_query"`
}

// Result is the outcome of checking one constraint.
// Satisfied is true exactly when Violation is nil. Degraded marks a check
// whose query failed and was reported satisfied anyway.
type Result struct {
	ConstraintName string     `json:"constraint_name"`
	ConstraintType string     `json:"constraint_type"`
	TableName      string     `json:"table_name"`
	Satisfied      bool       `json:"satisfied"`
	Violation      *Violation `json:"violation,omitempty"`
	Degraded       bool       `json:"degraded,omitempty"`
	Warning        string     `json:"warning,omitempty"`

	Constraint schema.Constraint `json:"-"`
}

// Checker runs detection queries through an executor
type Checker struct {
	exec        db.Executor
	logger      *zap.Logger
	concurrency int
	sampleLimit int
}

// Option configures a Checker
type Option func(*Checker)

// WithLogger sets the logger used for degraded checks and batch summaries
func WithLogger(logger *zap.Logger) Option {
	return func(c *Checker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConcurrency sets how many checks CheckAll runs at once
func WithConcurrency(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithSampleLimit sets the number of sample tuples per violation, capped at MaxSamples
func WithSampleLimit(n int) Option {
	return func(c *Checker) {
		if n > 0 && n <= MaxSamples {
			c.sampleLimit = n
		}
	}
}

// New creates a checker. Checks run one at a time unless WithConcurrency says otherwise.
func New(exec db.Executor, opts ...Option) *Checker {
	c := &Checker{
		exec:        exec,
		logger:      zap.NewNop(),
		concurrency: 1,
		sampleLimit: MaxSamples,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckAll checks every constraint and returns one result per constraint in input order.
// A failing check never aborts the batch.
func (c *Checker) CheckAll(ctx context.Context, constraints []schema.Constraint) []Result {
	c.logger.Info("checking constraints for violations", zap.Int("count", len(constraints)))

	results := make([]Result, len(constraints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, con := range constraints {
		g.Go(func() error {
			results[i] = c.Check(gctx, con)
			return nil
		})
	}
	_ = g.Wait()

	violations, degraded := 0, 0
	for _, r := range results {
		if !r.Satisfied {
			violations++
		}
		if r.Degraded {
			degraded++
		}
	}
	c.logger.Info("constraint check complete",
		zap.Int("total", len(results)),
		zap.Int("violations", violations),
		zap.Int("degraded", degraded))

	return results
}

// Check runs the detection logic for one constraint
func (c *Checker) Check(ctx context.Context, con schema.Constraint) Result {
	switch con.Type {
	case schema.ForeignKey:
		return c.checkForeignKey(ctx, con)
	case schema.Unique, schema.PrimaryKey:
		return c.checkUnique(ctx, con)
	case schema.Check:
		return c.checkPredicate(ctx, con)
	case schema.Exclusion:
		// overlap detection needs the exclusion operators, which are not modeled
		return satisfied(con)
	case schema.NotNull:
		return c.checkNotNull(ctx, con)
	default:
		return satisfied(con)
	}
}

func (c *Checker) checkForeignKey(ctx context.Context, con schema.Constraint) Result {
	if !con.HasForeignTable() || len(con.Columns) == 0 || len(con.ForeignColumns) == 0 {
		return satisfied(con)
	}

	d := c.exec.Dialect()
	q := foreignKeyQuery(d, con)

	count, err := c.count(ctx, q.count)
	if err != nil {
		return c.degraded(con, err)
	}
	if count == 0 {
		return satisfied(con)
	}

	samples := c.samples(ctx, q.sample)
	return violated(con, count, samples, q.count, fmt.Sprintf(
		"%d rows in %s reference non-existent rows in %s",
		count, displayName(con.TableSchema, con.TableName), displayName(con.ForeignSchema, con.ForeignTable)))
}

func (c *Checker) checkUnique(ctx context.Context, con schema.Constraint) Result {
	if len(con.Columns) == 0 {
		return satisfied(con)
	}

	query := duplicateGroupsQuery(c.exec.Dialect(), con)
	rows, err := c.exec.Query(ctx, query)
	if err != nil {
		return c.degraded(con, err)
	}
	if rows.Len() == 0 {
		return satisfied(con)
	}

	countCol := len(con.Columns)
	var excess int64
	var samples []string
	for i := 0; i < rows.Len(); i++ {
		n, err := rows.Int64(i, countCol)
		if err != nil {
			return c.degraded(con, err)
		}
		excess += n - 1

		if len(samples) < c.sampleLimit {
			samples = append(samples, fmt.Sprintf("(%s) × %d", tupleString(rows, i, countCol), n))
		}
	}

	return violated(con, excess, samples, query, fmt.Sprintf(
		"%d duplicate groups found on columns (%s) in %s",
		rows.Len(), strings.Join(con.Columns, ", "), displayName(con.TableSchema, con.TableName)))
}

func (c *Checker) checkPredicate(ctx context.Context, con schema.Constraint) Result {
	expr := StripEnclosingParens(con.CheckClause)
	if expr == "" {
		return satisfied(con)
	}

	query := fmt.Sprintf("SELECT COUNT(*) AS violation_count FROM %s WHERE NOT (%s)",
		c.exec.Dialect().QualifiedTable(con.TableSchema, con.TableName), expr)

	count, err := c.count(ctx, query)
	if err != nil {
		return c.degraded(con, err)
	}
	if count == 0 {
		return satisfied(con)
	}

	return violated(con, count, nil, query, fmt.Sprintf(
		"%d rows in %s violate check: %s",
		count, displayName(con.TableSchema, con.TableName), con.CheckClause))
}

func (c *Checker) checkNotNull(ctx context.Context, con schema.Constraint) Result {
	if len(con.Columns) == 0 {
		return satisfied(con)
	}

	d := c.exec.Dialect()
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL",
		d.QualifiedTable(con.TableSchema, con.TableName), d.QuoteIdent(con.Columns[0]))

	count, err := c.count(ctx, query)
	if err != nil {
		return c.degraded(con, err)
	}
	if count == 0 {
		return satisfied(con)
	}

	return violated(con, count, nil, query, fmt.Sprintf(
		"%d NULL values found in NOT NULL column %s.%s",
		count, displayName(con.TableSchema, con.TableName), con.Columns[0]))
}

// count runs a single-value COUNT query
func (c *Checker) count(ctx context.Context, query string) (int64, error) {
	rows, err := c.exec.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	if rows.Len() == 0 {
		return 0, nil
	}
	return rows.Int64(0, 0)
}

// samples formats sample rows; a failing sample query yields no samples
func (c *Checker) samples(ctx context.Context, query string) []string {
	rows, err := c.exec.Query(ctx, fmt.Sprintf("%s LIMIT %d", query, c.sampleLimit))
	if err != nil {
		c.logger.Debug("sample query failed", zap.Error(err))
		return nil
	}

	samples := make([]string, 0, rows.Len())
	for i := 0; i < rows.Len() && i < c.sampleLimit; i++ {
		samples = append(samples, "("+tupleString(rows, i, len(rows.Columns))+")")
	}
	return samples
}

// degraded reports a failed check as satisfied and logs the failure
func (c *Checker) degraded(con schema.Constraint, err error) Result {
	c.logger.Warn("constraint check failed, assuming satisfied",
		zap.String("constraint", con.Name),
		zap.String("type", con.Type.String()),
		zap.String("table", con.TableName),
		zap.Error(err))

	r := satisfied(con)
	r.Degraded = true
	r.Warning = err.Error()
	return r
}

func satisfied(con schema.Constraint) Result {
	return Result{
		ConstraintName: con.Name,
		ConstraintType: con.Type.String(),
		TableName:      con.TableName,
		Satisfied:      true,
		Constraint:     con,
	}
}

func violated(con schema.Constraint, count int64, samples []string, query, explanation string) Result {
	if samples == nil {
		samples = []string{}
	}
	r := satisfied(con)
	r.Satisfied = false
	r.Violation = &Violation{
		ConstraintName:   con.Name,
		ConstraintType:   con.Type.String(),
		TableSchema:      con.TableSchema,
		TableName:        con.TableName,
		ViolationCount:   count,
		SampleViolations: samples,
		Explanation:      explanation,
		DetectionQuery:   query,
	}
	return r
}

func tupleString(rows *db.Rows, i, n int) string {
	vals := make([]string, n)
	for j := 0; j < n; j++ {
		vals[j] = rows.String(i, j)
	}
	return strings.Join(vals, ", ")
}

func displayName(schemaName, table string) string {
	if schemaName == "" {
		return table
	}
	return schemaName + "." + table
}

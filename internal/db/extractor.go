package db

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/tordrt/pgschemadoc/internal/schema"
)

// DefaultBackupPattern is the LIKE pattern of tables treated as backup copies
const DefaultBackupPattern = "%backup%"

// FailurePolicy decides what happens when a per-table fetch fails
type FailurePolicy string

const (
	// PolicyLenient logs the failure and continues with an empty result
	PolicyLenient FailurePolicy = "lenient"
	// PolicyStrict aborts extraction on the first failure
	PolicyStrict FailurePolicy = "strict"
)

// ParseFailurePolicy validates a policy name
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyLenient:
		return PolicyLenient, nil
	case PolicyStrict:
		return PolicyStrict, nil
	default:
		return "", fmt.Errorf("invalid failure policy: %s (must be 'lenient' or 'strict')", s)
	}
}

// Extractor reads schema metadata from the information_schema catalog views
type Extractor struct {
	runner        Runner
	schema        string
	backupPattern string
	policy        FailurePolicy
	logger        *slog.Logger
}

// NewExtractor creates a new schema extractor
func NewExtractor(runner Runner, schemaName string) *Extractor {
	return &Extractor{
		runner:        runner,
		schema:        schemaName,
		backupPattern: DefaultBackupPattern,
		policy:        PolicyLenient,
		logger:        slog.New(slog.DiscardHandler),
	}
}

// WithBackupPattern sets the LIKE pattern for excluded backup tables.
// An empty pattern disables the exclusion.
func (e *Extractor) WithBackupPattern(pattern string) *Extractor {
	e.backupPattern = pattern
	return e
}

// WithPolicy sets the failure policy for column and constraint fetches
func (e *Extractor) WithPolicy(policy FailurePolicy) *Extractor {
	e.policy = policy
	return e
}

// WithLogger sets the progress logger
func (e *Extractor) WithLogger(logger *slog.Logger) *Extractor {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// ExtractOptions narrows the set of documented tables
type ExtractOptions struct {
	// Tables limits extraction to these tables; empty means all
	Tables []string
	// Exclude drops these tables after enumeration
	Exclude []string
}

// ExtractSchema enumerates the schema's tables and fetches each one in turn.
// An enumeration failure is always returned; fetch failures follow the policy.
func (e *Extractor) ExtractSchema(ctx context.Context, opts ExtractOptions) (*schema.Schema, error) {
	tableNames, err := e.SelectTables(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	e.logger.Info("found tables", "schema", e.schema, "count", len(tableNames))

	extracted := make([]schema.Table, 0, len(tableNames))
	for i, name := range tableNames {
		e.logger.Info("processing table", "table", string(name), "position", i+1, "total", len(tableNames))

		table, err := e.ExtractTable(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to extract table %s: %w", name, err)
		}
		extracted = append(extracted, *table)
	}

	return &schema.Schema{Name: e.schema, Tables: extracted}, nil
}

// SelectTables enumerates the schema's tables and narrows them to the
// include and exclude lists
func (e *Extractor) SelectTables(ctx context.Context, opts ExtractOptions) ([]schema.TableName, error) {
	tableNames, err := e.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	return filterTables(tableNames, opts.Tables, opts.Exclude), nil
}

// ExtractTable fetches columns then constraints for a single table
func (e *Extractor) ExtractTable(ctx context.Context, name schema.TableName) (*schema.Table, error) {
	table := &schema.Table{Name: name}

	columns, err := e.FetchColumns(ctx, name)
	if err != nil {
		if e.policy == PolicyStrict {
			return nil, fmt.Errorf("failed to extract columns: %w", err)
		}
		e.logger.Warn("failed to fetch columns", "table", string(name), "error", err)
	}
	table.Columns = columns

	constraints, err := e.FetchConstraints(ctx, name)
	if err != nil {
		if e.policy == PolicyStrict {
			return nil, fmt.Errorf("failed to extract constraints: %w", err)
		}
		e.logger.Warn("failed to fetch constraints", "table", string(name), "error", err)
	}
	table.Constraints = constraints

	return table, nil
}

// ListTables returns all base tables of the schema not matching the backup
// pattern, sorted lexicographically
func (e *Extractor) ListTables(ctx context.Context) ([]schema.TableName, error) {
	records, err := e.runner.Query(ctx, e.tablesQuery())
	if err != nil {
		return nil, err
	}

	tables := make([]schema.TableName, 0, len(records))
	for _, rec := range records {
		if len(rec) == 0 || rec[0] == "" {
			continue
		}
		tables = append(tables, schema.TableName(rec[0]))
	}

	sort.Slice(tables, func(i, j int) bool { return tables[i] < tables[j] })
	return tables, nil
}

// FetchColumns returns the table's columns in ordinal position order.
// Records that do not carry exactly five fields are dropped.
func (e *Extractor) FetchColumns(ctx context.Context, table schema.TableName) ([]schema.Column, error) {
	records, err := e.runner.Query(ctx, e.columnsQuery(table))
	if err != nil {
		return nil, err
	}

	var columns []schema.Column
	for _, rec := range records {
		col, ok := parseColumn(rec)
		if !ok {
			continue
		}
		columns = append(columns, col)
	}
	return columns, nil
}

// FetchConstraints returns the table's distinct constraints sorted by kind then name
func (e *Extractor) FetchConstraints(ctx context.Context, table schema.TableName) ([]schema.Constraint, error) {
	records, err := e.runner.Query(ctx, e.constraintsQuery(table))
	if err != nil {
		return nil, err
	}

	var constraints []schema.Constraint
	for _, rec := range records {
		c, ok := parseConstraint(rec)
		if !ok {
			continue
		}
		constraints = append(constraints, c)
	}
	return schema.NormalizeConstraints(constraints), nil
}

func (e *Extractor) tablesQuery() string {
	var b strings.Builder
	b.WriteString(`
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ` + pq.QuoteLiteral(e.schema) + `
			AND table_type = 'BASE TABLE'`)
	if e.backupPattern != "" {
		b.WriteString(`
			AND table_name NOT LIKE ` + pq.QuoteLiteral(e.backupPattern))
	}
	b.WriteString(`
		ORDER BY table_name
	`)
	return b.String()
}

func (e *Extractor) columnsQuery(table schema.TableName) string {
	return `
		SELECT
			column_name,
			data_type,
			character_maximum_length,
			is_nullable,
			column_default
		FROM information_schema.columns
		WHERE table_schema = ` + pq.QuoteLiteral(e.schema) + `
			AND table_name = ` + pq.QuoteLiteral(string(table)) + `
		ORDER BY ordinal_position
	`
}

func (e *Extractor) constraintsQuery(table schema.TableName) string {
	return `
		SELECT DISTINCT constraint_type, constraint_name
		FROM information_schema.table_constraints
		WHERE table_schema = ` + pq.QuoteLiteral(e.schema) + `
			AND table_name = ` + pq.QuoteLiteral(string(table)) + `
		ORDER BY constraint_type, constraint_name
	`
}

func parseColumn(rec Record) (schema.Column, bool) {
	if len(rec) != 5 {
		return schema.Column{}, false
	}

	col := schema.Column{
		Name:     rec[0],
		Type:     rec[1],
		Nullable: rec[3] == "YES",
	}

	if n, err := strconv.Atoi(strings.TrimSpace(rec[2])); err == nil {
		col.MaxLength = &n
	}

	if rec[4] != "" {
		def := rec[4]
		col.Default = &def
	}

	return col, true
}

// parseConstraint takes the kind from the first field and treats the rest
// of the record as the name, so names containing the separator survive
func parseConstraint(rec Record) (schema.Constraint, bool) {
	if len(rec) < 2 {
		return schema.Constraint{}, false
	}
	return schema.Constraint{
		Kind: rec[0],
		Name: strings.Join(rec[1:], FieldSeparator),
	}, true
}

func filterTables(tables []schema.TableName, include, exclude []string) []schema.TableName {
	if len(include) == 0 && len(exclude) == 0 {
		return tables
	}

	includeSet := make(map[schema.TableName]bool, len(include))
	for _, name := range include {
		includeSet[schema.TableName(name)] = true
	}
	excludeSet := make(map[schema.TableName]bool, len(exclude))
	for _, name := range exclude {
		excludeSet[schema.TableName(name)] = true
	}

	filtered := make([]schema.TableName, 0, len(tables))
	for _, name := range tables {
		if len(includeSet) > 0 && !includeSet[name] {
			continue
		}
		if excludeSet[name] {
			continue
		}
		filtered = append(filtered, name)
	}
	return filtered
}

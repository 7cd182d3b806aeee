package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/pitwall/internal/ir"
	"github.com/roach88/pitwall/internal/queryir"
)

// Output columns added to every extraction.
const (
	ColModifiedAt = "_pw_modified_at"
	ColValidTo    = "_pw_valid_to"
)

// SQLCompiler compiles QueryIR to parameterized SQL for SQLite.
//
// CRITICAL: ALL queries include ORDER BY for deterministic results.
// CRITICAL: All values are parameterized (never interpolated).
//
// Time comparisons go through julianday() so that source timestamps in any
// SQLite-recognized rendering compare as instants rather than strings.
type SQLCompiler struct {
	// SourceSchema qualifies source tables (e.g. "src" for an ATTACHed
	// operational database). Empty means unqualified.
	SourceSchema string

	// TargetSchema qualifies warehouse tables. Empty means "main".
	TargetSchema string
}

// NewSQLCompiler creates a new SQLCompiler reading source tables from
// sourceSchema.
func NewSQLCompiler(sourceSchema string) *SQLCompiler {
	return &SQLCompiler{SourceSchema: sourceSchema, TargetSchema: "main"}
}

// Compile converts a QueryIR query to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	if problems := queryir.Validate(q); len(problems) > 0 {
		return "", nil, fmt.Errorf("invalid query: %s", strings.Join(problems, "; "))
	}

	switch query := q.(type) {
	case *queryir.Extract:
		return c.compileExtract(query)
	case *queryir.KeyLookup:
		return c.compileKeyLookup(query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// compileExtract compiles the change-extraction query.
//
//	SELECT (<expr>) AS "<col>", ..., strftime(<max jd>) AS "_pw_modified_at",
//	       <coalesced valid_to> AS "_pw_valid_to"
//	FROM src."t" AS a
//	INNER JOIN src."u" AS b ON (<on>)
//	INNER JOIN main."dim_x" AS p_x ON p_x."col" = (<expr>)
//	WHERE <max jd> > julianday(?)
//	ORDER BY "<key>" COLLATE BINARY, ...
func (c *SQLCompiler) compileExtract(q *queryir.Extract) (string, []any, error) {
	modified := c.maxModifiedExpr(q)

	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, col := range q.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "(%s) AS %s", col.Expr, quoteIdent(col.Name))
	}
	fmt.Fprintf(&sb, ", strftime('%%Y-%%m-%%d %%H:%%M:%%f', %s) AS %s", modified, quoteIdent(ColModifiedAt))
	fmt.Fprintf(&sb, ", %s AS %s", c.validToExpr(q), quoteIdent(ColValidTo))

	first := q.Sources[0]
	fmt.Fprintf(&sb, " FROM %s AS %s", c.sourceTable(first.Table), first.Alias)
	for _, s := range q.Sources[1:] {
		fmt.Fprintf(&sb, " %s JOIN %s AS %s ON (%s)", joinKeyword(s.Join), c.sourceTable(s.Table), s.Alias, s.On)
	}
	for _, p := range q.Parents {
		conds := make([]string, len(p.Match))
		for i, m := range p.Match {
			conds[i] = fmt.Sprintf("%s.%s = (%s)", p.Alias, quoteIdent(m.Column), m.Expr)
		}
		fmt.Fprintf(&sb, " %s JOIN %s AS %s ON %s", joinKeyword(p.Join), c.targetTable(p.Table), p.Alias, strings.Join(conds, " AND "))
	}

	var params []any
	if q.Filter != nil {
		where, whereParams, err := c.compilePredicate(q.Filter, modified)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		params = whereParams
	}

	sb.WriteString(" ORDER BY ")
	sb.WriteString(stableOrderKey(q.OrderBy))

	return sb.String(), params, nil
}

// maxModifiedExpr returns the julian day of the latest modification across
// every source table and tracked parent. Missing timestamps (left-join
// misses) count as the beginning of time.
//
// SQLite's max() with one argument is an aggregate, so a single term is
// returned bare.
func (c *SQLCompiler) maxModifiedExpr(q *queryir.Extract) string {
	var terms []string
	for _, s := range q.Sources {
		terms = append(terms, fmt.Sprintf("COALESCE(julianday(%s.%s), 0)", s.Alias, quoteIdent(s.ModifiedAt)))
	}
	for _, p := range q.Parents {
		if p.Track {
			terms = append(terms, fmt.Sprintf("COALESCE(julianday(%s.dwh_modified_at), 0)", p.Alias))
		}
	}
	if len(terms) == 1 {
		return terms[0]
	}
	return "MAX(" + strings.Join(terms, ", ") + ")"
}

// validToExpr returns the first non-null end marker across source tables.
func (c *SQLCompiler) validToExpr(q *queryir.Extract) string {
	var terms []string
	for _, s := range q.Sources {
		if s.ValidTo != "" {
			terms = append(terms, fmt.Sprintf("%s.%s", s.Alias, quoteIdent(s.ValidTo)))
		}
	}
	switch len(terms) {
	case 0:
		return "NULL"
	case 1:
		return terms[0]
	default:
		return "COALESCE(" + strings.Join(terms, ", ") + ")"
	}
}

// compileKeyLookup compiles the stored-row lookup.
//
//	SELECT dwh_id, "k1", "k2", dwh_hash, dwh_valid_from, dwh_modified_at, dwh_valid_to
//	FROM main."dim_x" WHERE ("k1", "k2") IN (VALUES (?, ?), (?, ?)) ORDER BY dwh_id
func (c *SQLCompiler) compileKeyLookup(q *queryir.KeyLookup) (string, []any, error) {
	cols := []string{"dwh_id"}
	for _, k := range q.KeyColumns {
		cols = append(cols, quoteIdent(k))
	}
	cols = append(cols, "dwh_hash", "dwh_valid_from", "dwh_modified_at", "dwh_valid_to")

	where, params, err := c.compilePredicate(queryir.KeyIn{Columns: q.KeyColumns, Keys: q.Keys}, "")
	if err != nil {
		return "", nil, fmt.Errorf("compile key filter: %w", err)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY dwh_id ASC",
		strings.Join(cols, ", "),
		c.targetTable(q.Table),
		where)

	return sql, params, nil
}

// compilePredicate compiles a queryir.Predicate to a WHERE clause fragment.
// modified is the max-modified expression of the surrounding extract.
// CRITICAL: Values NEVER interpolated - always use ? placeholders.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate, modified string) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.ModifiedSince:
		if modified == "" {
			return "", nil, fmt.Errorf("modified-since predicate outside an extract")
		}
		return fmt.Sprintf("%s > julianday(?)", modified), []any{pred.Since}, nil

	case queryir.KeyIn:
		return compileKeyIn(pred)

	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		var (
			parts  []string
			params []any
		)
		for _, sub := range pred.Predicates {
			sql, subParams, err := c.compilePredicate(sub, modified)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, "("+sql+")")
			params = append(params, subParams...)
		}
		return strings.Join(parts, " AND "), params, nil

	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileKeyIn compiles key tuple membership. Single-column keys use a
// plain IN list; composite keys use row values.
func compileKeyIn(k queryir.KeyIn) (string, []any, error) {
	if len(k.Keys) == 0 {
		return "1 = 0", nil, nil
	}

	params := make([]any, 0, len(k.Keys)*len(k.Columns))
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(k.Columns)), ", ") + ")"

	tuples := make([]string, len(k.Keys))
	for i, key := range k.Keys {
		for _, v := range key {
			params = append(params, ir.Param(v))
		}
		tuples[i] = placeholder
	}

	if len(k.Columns) == 1 {
		return fmt.Sprintf("%s IN (%s)", quoteIdent(k.Columns[0]), strings.TrimSuffix(strings.Repeat("?, ", len(k.Keys)), ", ")), params, nil
	}

	cols := make([]string, len(k.Columns))
	for i, col := range k.Columns {
		cols[i] = quoteIdent(col)
	}
	return fmt.Sprintf("(%s) IN (VALUES %s)", strings.Join(cols, ", "), strings.Join(tuples, ", ")), params, nil
}

// stableOrderKey returns the ORDER BY clause for an extraction.
// COLLATE BINARY ensures deterministic text ordering across SQLite versions.
func stableOrderKey(columns []string) string {
	if len(columns) == 0 {
		return "1"
	}
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = quoteIdent(col) + " COLLATE BINARY"
	}
	return strings.Join(parts, ", ")
}

func (c *SQLCompiler) sourceTable(name string) string {
	if c.SourceSchema == "" {
		return quoteIdent(name)
	}
	return c.SourceSchema + "." + quoteIdent(name)
}

func (c *SQLCompiler) targetTable(name string) string {
	schema := c.TargetSchema
	if schema == "" {
		schema = "main"
	}
	return schema + "." + quoteIdent(name)
}

func joinKeyword(k ir.JoinKind) string {
	if k == ir.JoinLeft {
		return "LEFT"
	}
	return "INNER"
}

// quoteIdent double-quotes an SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteIdent is exported for the store's DDL and DML.
func QuoteIdent(name string) string {
	return quoteIdent(name)
}

package sql

import (
	"fmt"
	"strconv"
	"strings"
)

// Selector builds a parameterised SELECT statement incrementally. It is the
// target of the filter compiler: the engine's UnifiedQuery AST is translated
// into a Selector per dialect, then rendered with Query.
type Selector struct {
	dialect    string
	table      string
	columns    []string
	rawColumns bool
	wherep     *Predicate
	order      []string
	limit      *int
	offset     *int
	groupBy    []string
	having     *Predicate
	args       []any
	paramIndex int
}

// NewSelector returns a Selector over the given table for the given dialect.
func NewSelector(dialect, table string) *Selector {
	return &Selector{dialect: dialect, table: table}
}

// Select sets the projected columns. Called with no arguments, all columns
// ("*") are selected.
func (s *Selector) Select(columns ...string) *Selector {
	s.columns = columns
	s.rawColumns = false
	return s
}

// SelectExpr sets the projected columns as raw SQL expressions (aggregate
// calls like "COUNT(*) AS n"), bypassing identifier quoting.
func (s *Selector) SelectExpr(exprs ...string) *Selector {
	s.columns = exprs
	s.rawColumns = true
	return s
}

// Where AND-combines pred into the selector's WHERE clause.
func (s *Selector) Where(pred *Predicate) *Selector {
	if pred == nil {
		return s
	}
	if s.wherep == nil {
		s.wherep = pred
		return s
	}
	s.wherep = And(s.wherep, pred)
	return s
}

// P returns the selector's current where predicate, or nil.
func (s *Selector) P() *Predicate { return s.wherep }

// WhereP applies each predicate-building function to s in order, ANDing
// whatever they add to the WHERE clause. This is the hook surface privacy
// row-level-security rules use to append predicates to a query/mutation's
// underlying selector without otherwise touching it.
func (s *Selector) WhereP(fns ...func(*Selector)) {
	for _, fn := range fns {
		fn(s)
	}
}

// OrderBy appends an ORDER BY clause term; dir is "ASC" or "DESC".
func (s *Selector) OrderBy(column, dir string) *Selector {
	s.order = append(s.order, fmt.Sprintf("%s %s", s.C(column), strings.ToUpper(dir)))
	return s
}

// GroupBy appends columns to the GROUP BY clause.
func (s *Selector) GroupBy(columns ...string) *Selector {
	for _, c := range columns {
		s.groupBy = append(s.groupBy, s.C(c))
	}
	return s
}

// Having AND-combines pred into the selector's HAVING clause.
func (s *Selector) Having(pred *Predicate) *Selector {
	if pred == nil {
		return s
	}
	if s.having == nil {
		s.having = pred
		return s
	}
	s.having = And(s.having, pred)
	return s
}

// Limit sets the LIMIT clause. A call with n < 0 clears any previous limit.
func (s *Selector) Limit(n int) *Selector {
	if n < 0 {
		s.limit = nil
		return s
	}
	s.limit = &n
	return s
}

// Offset sets the OFFSET clause.
func (s *Selector) Offset(n int) *Selector {
	s.offset = &n
	return s
}

// C quotes and qualifies a column identifier for this selector's dialect.
func (s *Selector) C(column string) string {
	return quoteIdent(s.dialect, column)
}

// Query renders the statement and its positional argument list.
func (s *Selector) Query() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(s.columns) == 0 {
		b.WriteString("*")
	} else if s.rawColumns {
		b.WriteString(strings.Join(s.columns, ", "))
	} else {
		cols := make([]string, len(s.columns))
		for i, c := range s.columns {
			cols[i] = s.C(c)
		}
		b.WriteString(strings.Join(cols, ", "))
	}
	fmt.Fprintf(&b, " FROM %s", quoteIdent(s.dialect, s.table))

	args := make([]any, 0, len(s.args))
	if s.wherep != nil {
		clause, a := s.render(s.wherep)
		fmt.Fprintf(&b, " WHERE %s", clause)
		args = append(args, a...)
	}
	if len(s.groupBy) > 0 {
		fmt.Fprintf(&b, " GROUP BY %s", strings.Join(s.groupBy, ", "))
	}
	if s.having != nil {
		clause, a := s.render(s.having)
		fmt.Fprintf(&b, " HAVING %s", clause)
		args = append(args, a...)
	}
	if len(s.order) > 0 {
		fmt.Fprintf(&b, " ORDER BY %s", strings.Join(s.order, ", "))
	}
	if s.limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *s.limit)
	}
	if s.offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *s.offset)
	}
	return b.String(), args
}

func (s *Selector) render(p *Predicate) (string, []any) {
	return p.format(s.dialect, &s.paramIndex)
}

// placeholder returns the dialect-specific positional placeholder for the
// n-th (1-indexed) bound argument.
func placeholder(dialect string, n int) string {
	switch dialect {
	case "postgres":
		return "$" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// quoteIdent quotes each dot-separated part of a SQL identifier, doubling
// any embedded quote character so a field name sourced from metadata
// cannot break out of the quoted identifier. No name is rejected.
func quoteIdent(dialect, ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		switch dialect {
		case "postgres":
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		default:
			parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		}
	}
	return strings.Join(parts, ".")
}

// Predicate is a single boolean condition, or a boolean combination of
// child predicates. It mirrors the engine's filter AST but at the SQL
// rendering layer, one level below it.
type Predicate struct {
	op       string // combinator: "and" | "or" | "not", or a comparison op
	column   string
	value    any
	values   []any
	children []*Predicate
}

func (p *Predicate) format(dialect string, paramIndex *int) (string, []any) {
	switch p.op {
	case "and", "or":
		parts := make([]string, len(p.children))
		var args []any
		for i, c := range p.children {
			clause, a := c.format(dialect, paramIndex)
			parts[i] = "(" + clause + ")"
			args = append(args, a...)
		}
		sep := " AND "
		if p.op == "or" {
			sep = " OR "
		}
		return strings.Join(parts, sep), args
	case "not":
		clause, args := p.children[0].format(dialect, paramIndex)
		return "NOT (" + clause + ")", args
	case "is_null":
		return quoteIdent(dialect, p.column) + " IS NULL", nil
	case "is_not_null":
		return quoteIdent(dialect, p.column) + " IS NOT NULL", nil
	case "in", "not_in":
		if len(p.values) == 0 {
			// An empty IN list matches nothing / NOT IN matches everything.
			if p.op == "in" {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		marks := make([]string, len(p.values))
		for i := range p.values {
			*paramIndex++
			marks[i] = placeholder(dialect, *paramIndex)
		}
		word := "IN"
		if p.op == "not_in" {
			word = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", quoteIdent(dialect, p.column), word, strings.Join(marks, ", ")), p.values
	case "contains", "not_contains":
		*paramIndex++
		word := "LIKE"
		prefix := ""
		if p.op == "not_contains" {
			word = "NOT LIKE"
			prefix = ""
		}
		pattern := "%" + escapeLike(fmt.Sprint(p.value)) + "%"
		return fmt.Sprintf("LOWER(%s) %s %sLOWER(%s)", quoteIdent(dialect, p.column), word, prefix, placeholder(dialect, *paramIndex)), []any{pattern}
	case "starts_with":
		*paramIndex++
		pattern := escapeLike(fmt.Sprint(p.value)) + "%"
		return fmt.Sprintf("%s LIKE %s", quoteIdent(dialect, p.column), placeholder(dialect, *paramIndex)), []any{pattern}
	case "ends_with":
		*paramIndex++
		pattern := "%" + escapeLike(fmt.Sprint(p.value))
		return fmt.Sprintf("%s LIKE %s", quoteIdent(dialect, p.column), placeholder(dialect, *paramIndex)), []any{pattern}
	default:
		*paramIndex++
		return fmt.Sprintf("%s %s %s", quoteIdent(dialect, p.column), p.op, placeholder(dialect, *paramIndex)), []any{p.value}
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}

// EQ, NEQ, GT, GTE, LT, LTE build simple comparison predicates.
func EQ(column string, v any) *Predicate  { return &Predicate{op: "=", column: column, value: v} }
func NEQ(column string, v any) *Predicate { return &Predicate{op: "!=", column: column, value: v} }
func GT(column string, v any) *Predicate  { return &Predicate{op: ">", column: column, value: v} }
func GTE(column string, v any) *Predicate { return &Predicate{op: ">=", column: column, value: v} }
func LT(column string, v any) *Predicate  { return &Predicate{op: "<", column: column, value: v} }
func LTE(column string, v any) *Predicate { return &Predicate{op: "<=", column: column, value: v} }

// In builds a column IN (...) predicate.
func In(column string, vs ...any) *Predicate {
	return &Predicate{op: "in", column: column, values: vs}
}

// NotIn builds a column NOT IN (...) predicate.
func NotIn(column string, vs ...any) *Predicate {
	return &Predicate{op: "not_in", column: column, values: vs}
}

// Contains builds a case-insensitive substring LIKE predicate.
func Contains(column string, v any) *Predicate {
	return &Predicate{op: "contains", column: column, value: v}
}

// NotContains negates Contains.
func NotContains(column string, v any) *Predicate {
	return &Predicate{op: "not_contains", column: column, value: v}
}

// HasPrefix builds a LIKE 'v%' predicate.
func HasPrefix(column string, v any) *Predicate {
	return &Predicate{op: "starts_with", column: column, value: v}
}

// HasSuffix builds a LIKE '%v' predicate.
func HasSuffix(column string, v any) *Predicate {
	return &Predicate{op: "ends_with", column: column, value: v}
}

// IsNull builds an IS NULL predicate.
func IsNull(column string) *Predicate { return &Predicate{op: "is_null", column: column} }

// NotNull builds an IS NOT NULL predicate.
func NotNull(column string) *Predicate { return &Predicate{op: "is_not_null", column: column} }

// And combines predicates with AND.
func And(ps ...*Predicate) *Predicate {
	return &Predicate{op: "and", children: ps}
}

// Or combines predicates with OR.
func Or(ps ...*Predicate) *Predicate {
	return &Predicate{op: "or", children: ps}
}

// Not negates a predicate.
func Not(p *Predicate) *Predicate {
	return &Predicate{op: "not", children: []*Predicate{p}}
}

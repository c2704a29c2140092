package objectcore

// Operator is the filter-criterion operator vocabulary, shared verbatim by
// the query AST (spec §3.4) and the validation engine (spec §4.5).
type Operator string

const (
	OpEQ           Operator = "="
	OpNEQ          Operator = "!="
	OpGT           Operator = ">"
	OpGTE          Operator = ">="
	OpLT           Operator = "<"
	OpLTE          Operator = "<="
	OpIn           Operator = "in"
	OpNotIn        Operator = "nin"
	OpContains     Operator = "contains"
	OpNotContains  Operator = "not_contains"
	OpStartsWith   Operator = "starts_with"
	OpEndsWith     Operator = "ends_with"
	OpIsNull       Operator = "is_null"
	OpIsNotNull    Operator = "is_not_null"
	OpNotEmpty     Operator = "not_empty"
)

// canonicalOperator normalises operator aliases (`not_in` for `nin`, the
// object-form `$`-prefixed operators) onto the single internal vocabulary.
func canonicalOperator(s string) (Operator, bool) {
	switch s {
	case "=", "eq", "$eq":
		return OpEQ, true
	case "!=", "ne", "neq", "$ne", "$neq":
		return OpNEQ, true
	case ">", "gt", "$gt":
		return OpGT, true
	case ">=", "gte", "$gte":
		return OpGTE, true
	case "<", "lt", "$lt":
		return OpLT, true
	case "<=", "lte", "$lte":
		return OpLTE, true
	case "in", "$in":
		return OpIn, true
	case "nin", "not_in", "$nin", "$not_in":
		return OpNotIn, true
	case "contains", "$contains":
		return OpContains, true
	case "not_contains", "$not_contains":
		return OpNotContains, true
	case "starts_with", "$starts_with", "startswith":
		return OpStartsWith, true
	case "ends_with", "$ends_with", "endswith":
		return OpEndsWith, true
	case "is_null", "$is_null":
		return OpIsNull, true
	case "is_not_null", "$is_not_null":
		return OpIsNotNull, true
	case "not_empty", "$not_empty":
		return OpNotEmpty, true
	default:
		return "", false
	}
}

// SortDirection is the ordering direction of a Sort term.
type SortDirection string

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

// Sort is a single (field, direction) ordering term.
type Sort struct {
	Field     string
	Direction SortDirection
}

// AggregateFunc is the closed set of supported aggregation functions
// (spec §3.2).
type AggregateFunc string

const (
	AggCount AggregateFunc = "count"
	AggSum   AggregateFunc = "sum"
	AggAvg   AggregateFunc = "avg"
	AggMin   AggregateFunc = "min"
	AggMax   AggregateFunc = "max"
)

// Aggregation is one {function, field, alias} aggregation term.
type Aggregation struct {
	Func  AggregateFunc
	Field string
	Alias string
}

// Criterion is a leaf filter node: (field, operator, value).
type Criterion struct {
	Field    string
	Operator Operator
	Value    any
}

// Logic is the boolean combinator of a Group.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Filter is the filter expression tree (spec §3.4): either a leaf
// Criterion or a Group of children joined by a single Logic.
//
// Exactly one of Criterion or Group is populated; IsLeaf reports which.
type Filter struct {
	Criterion *Criterion
	Group     *Group
}

// Group is a logical grouping of child filters under a single connective.
// The legacy dialect's bare list without connectives normalises to an AND
// Group; mixed and/or tokens at the same level are rejected rather than
// guessed (spec §9 Open Question).
type Group struct {
	Logic    Logic
	Children []Filter
}

// IsLeaf reports whether f is a Criterion rather than a Group.
func (f Filter) IsLeaf() bool { return f.Criterion != nil }

// IsZero reports whether f carries no filter at all.
func (f Filter) IsZero() bool { return f.Criterion == nil && f.Group == nil }

// And builds an AND group of the given filters. Operands that are
// themselves AND groups are kept as nested children, not flattened.
func And(filters ...Filter) Filter {
	return Filter{Group: &Group{Logic: LogicAnd, Children: filters}}
}

// Or builds an OR group of the given filters.
func Or(filters ...Filter) Filter {
	return Filter{Group: &Group{Logic: LogicOr, Children: filters}}
}

// Crit builds a leaf criterion filter.
func Crit(field string, op Operator, value any) Filter {
	return Filter{Criterion: &Criterion{Field: field, Operator: op, Value: value}}
}

// Expand is a recursive nested-query map: relationship field name ->
// nested UnifiedQuery, evaluated in the same session/transaction as the
// outer query (spec §4.2).
type Expand map[string]*UnifiedQuery

// UnifiedQuery is the engine's single internal query representation, the
// product of normalising either accepted dialect (spec §3.2).
type UnifiedQuery struct {
	object       string
	Fields       []string
	Filters      Filter
	Sort         []Sort
	Skip         int
	Limit        *int // nil means "driver default"; &0 means "no records"
	Expand       Expand
	Aggregations []Aggregation
	GroupBy      []string
}

// NewQuery returns an empty UnifiedQuery bound to object.
func NewQuery(object string) *UnifiedQuery {
	return &UnifiedQuery{object: object}
}

// Object implements Query.
func (q *UnifiedQuery) Object() string { return q.object }

// HasAggregations reports whether the query is a grouped aggregation query,
// in which case the engine returns grouped rows instead of raw documents
// (spec §4.2).
func (q *UnifiedQuery) HasAggregations() bool { return len(q.Aggregations) > 0 }

// Clone returns a deep-enough copy of q for hooks to mutate safely in
// place without aliasing the caller's original query.
func (q *UnifiedQuery) Clone() *UnifiedQuery {
	if q == nil {
		return nil
	}
	c := *q
	c.Fields = append([]string(nil), q.Fields...)
	c.Sort = append([]Sort(nil), q.Sort...)
	c.GroupBy = append([]string(nil), q.GroupBy...)
	c.Aggregations = append([]Aggregation(nil), q.Aggregations...)
	if q.Expand != nil {
		c.Expand = make(Expand, len(q.Expand))
		for k, v := range q.Expand {
			c.Expand[k] = v.Clone()
		}
	}
	return &c
}

var _ Query = (*UnifiedQuery)(nil)

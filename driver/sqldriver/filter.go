package sqldriver

import (
	"fmt"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/dialect/sql"
)

// compileFilter translates the engine's Filter AST into a dialect/sql
// Predicate tree (spec §4.3 "Filter compilation is a per-driver
// responsibility"). Operators the SQL back-end cannot honour surface as
// UnsupportedOperator rather than being silently dropped.
func compileFilter(f objectcore.Filter) (*sql.Predicate, error) {
	if f.IsZero() {
		return nil, nil
	}
	if f.IsLeaf() {
		return compileCriterion(*f.Criterion)
	}
	g := f.Group
	children := make([]*sql.Predicate, 0, len(g.Children))
	for _, child := range g.Children {
		p, err := compileFilter(child)
		if err != nil {
			return nil, err
		}
		if p != nil {
			children = append(children, p)
		}
	}
	if len(children) == 0 {
		return nil, nil
	}
	if g.Logic == objectcore.LogicOr {
		return sql.Or(children...), nil
	}
	return sql.And(children...), nil
}

func compileCriterion(c objectcore.Criterion) (*sql.Predicate, error) {
	switch c.Operator {
	case objectcore.OpEQ:
		return sql.EQ(c.Field, c.Value), nil
	case objectcore.OpNEQ:
		return sql.NEQ(c.Field, c.Value), nil
	case objectcore.OpGT:
		return sql.GT(c.Field, c.Value), nil
	case objectcore.OpGTE:
		return sql.GTE(c.Field, c.Value), nil
	case objectcore.OpLT:
		return sql.LT(c.Field, c.Value), nil
	case objectcore.OpLTE:
		return sql.LTE(c.Field, c.Value), nil
	case objectcore.OpIn:
		vs, err := toValueSlice(c.Value)
		if err != nil {
			return nil, err
		}
		return sql.In(c.Field, vs...), nil
	case objectcore.OpNotIn:
		vs, err := toValueSlice(c.Value)
		if err != nil {
			return nil, err
		}
		return sql.NotIn(c.Field, vs...), nil
	case objectcore.OpContains:
		return sql.Contains(c.Field, c.Value), nil
	case objectcore.OpNotContains:
		return sql.NotContains(c.Field, c.Value), nil
	case objectcore.OpStartsWith:
		return sql.HasPrefix(c.Field, c.Value), nil
	case objectcore.OpEndsWith:
		return sql.HasSuffix(c.Field, c.Value), nil
	case objectcore.OpIsNull:
		return sql.IsNull(c.Field), nil
	case objectcore.OpIsNotNull:
		return sql.NotNull(c.Field), nil
	case objectcore.OpNotEmpty:
		return sql.And(sql.NotNull(c.Field), sql.NEQ(c.Field, "")), nil
	default:
		return nil, objectcore.Wrap(objectcore.CodeUnsupportedOp,
			fmt.Sprintf("sqldriver: operator %q is not supported", c.Operator), objectcore.ErrUnsupportedOp)
	}
}

func toValueSlice(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	default:
		return nil, objectcore.NewError(objectcore.CodeInvalidRequest, fmt.Sprintf("in/nin operator requires a list, got %T", v))
	}
}

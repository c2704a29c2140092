package driver

import "github.com/syssam/objectcore"

// MatchFilter evaluates f against rec in memory, using the shared operator
// vocabulary (objectcore.EvalOperator). It is the in-memory reference
// driver's filter compiler: rather than translating the AST to a
// back-end-native predicate, it walks the tree directly against the
// record.
func MatchFilter(rec objectcore.Record, f objectcore.Filter) (bool, error) {
	if f.IsZero() {
		return true, nil
	}
	if f.IsLeaf() {
		c := f.Criterion
		return objectcore.EvalOperator(c.Operator, rec[c.Field], c.Value)
	}
	g := f.Group
	switch g.Logic {
	case objectcore.LogicOr:
		for _, child := range g.Children {
			ok, err := MatchFilter(rec, child)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default: // AND, including the implicit-AND bare list
		for _, child := range g.Children {
			ok, err := MatchFilter(rec, child)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

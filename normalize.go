package objectcore

import (
	"fmt"
)

// NormalizeQuery accepts a query expressed in either the legacy dialect
// (filters/skip/limit/sort-as-pairs/aggregate) or the canonical dialect
// (where/offset/top/orderBy-as-objects/aggregations) and produces a single
// UnifiedQuery. raw is typically the decoded JSON body of args in the
// unified request envelope (spec §6), i.e. map[string]any.
func NormalizeQuery(object string, raw map[string]any) (*UnifiedQuery, error) {
	q := NewQuery(object)

	if fields, ok := firstOf(raw, "fields", "select"); ok {
		fs, err := toStringSlice(fields)
		if err != nil {
			return nil, invalidQuery("fields", err)
		}
		q.Fields = fs
	}

	filterRaw, hasLegacy := firstOf(raw, "filters")
	whereRaw, hasCanonical := firstOf(raw, "where")
	switch {
	case hasLegacy && hasCanonical:
		return nil, invalidQueryf("query specifies both legacy %q and canonical %q filter keys", "filters", "where")
	case hasLegacy:
		f, err := normalizeFilter(filterRaw)
		if err != nil {
			return nil, err
		}
		q.Filters = f
	case hasCanonical:
		f, err := normalizeFilter(whereRaw)
		if err != nil {
			return nil, err
		}
		q.Filters = f
	}

	if skip, ok := firstOf(raw, "skip", "offset"); ok {
		n, err := toInt(skip)
		if err != nil || n < 0 {
			return nil, invalidQueryf("skip/offset must be a non-negative integer")
		}
		q.Skip = n
	}

	if limit, ok := firstOf(raw, "limit", "top"); ok {
		n, err := toInt(limit)
		if err != nil || n < 0 {
			return nil, invalidQueryf("limit/top must be a non-negative integer")
		}
		q.Limit = &n
	}

	if sort, ok := firstOf(raw, "sort", "orderBy"); ok {
		s, err := normalizeSort(sort)
		if err != nil {
			return nil, err
		}
		q.Sort = s
	}

	if agg, ok := firstOf(raw, "aggregate", "aggregations"); ok {
		a, err := normalizeAggregations(agg)
		if err != nil {
			return nil, err
		}
		q.Aggregations = a
	}

	if gb, ok := raw["groupBy"]; ok {
		fs, err := toStringSlice(gb)
		if err != nil {
			return nil, invalidQuery("groupBy", err)
		}
		q.GroupBy = fs
	}

	if expandRaw, ok := raw["expand"]; ok {
		exp, err := normalizeExpand(expandRaw)
		if err != nil {
			return nil, err
		}
		q.Expand = exp
	}

	return q, nil
}

func firstOf(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func invalidQuery(field string, cause error) *Error {
	return Wrap(CodeInvalidRequest, fmt.Sprintf("invalid query: %s", field), cause)
}

func invalidQueryf(format string, a ...any) *Error {
	return NewError(CodeInvalidRequest, fmt.Sprintf(format, a...))
}

func toStringSlice(v any) ([]string, error) {
	switch v := v.(type) {
	case []string:
		return v, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected string element, got %T", e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or []string, got %T", v)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

// normalizeSort accepts either `[[field, order], ...]` (legacy) or
// `[{field, order}, ...]` (canonical).
func normalizeSort(v any) ([]Sort, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, invalidQueryf("sort must be a list")
	}
	out := make([]Sort, 0, len(list))
	for _, item := range list {
		switch t := item.(type) {
		case []any:
			if len(t) != 2 {
				return nil, invalidQueryf("legacy sort pair must have exactly 2 elements")
			}
			field, ok := t[0].(string)
			if !ok {
				return nil, invalidQueryf("sort field must be a string")
			}
			dir, err := toDirection(t[1])
			if err != nil {
				return nil, err
			}
			out = append(out, Sort{Field: field, Direction: dir})
		case map[string]any:
			field, ok := t["field"].(string)
			if !ok {
				return nil, invalidQueryf("sort.field must be a string")
			}
			dir, err := toDirection(t["order"])
			if err != nil {
				return nil, err
			}
			out = append(out, Sort{Field: field, Direction: dir})
		default:
			return nil, invalidQueryf("unsupported sort term shape: %T", item)
		}
	}
	return out, nil
}

func toDirection(v any) (SortDirection, error) {
	s, _ := v.(string)
	switch s {
	case "", "asc", "ASC":
		return Asc, nil
	case "desc", "DESC":
		return Desc, nil
	default:
		return "", invalidQueryf("unknown sort direction %q", s)
	}
}

func normalizeAggregations(v any) ([]Aggregation, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, invalidQueryf("aggregations must be a list")
	}
	out := make([]Aggregation, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, invalidQueryf("aggregation term must be an object")
		}
		fn, _ := firstOf(m, "func", "function")
		fnStr, ok := fn.(string)
		if !ok {
			return nil, invalidQueryf("aggregation function must be a string")
		}
		var agg AggregateFunc
		switch fnStr {
		case "count":
			agg = AggCount
		case "sum":
			agg = AggSum
		case "avg":
			agg = AggAvg
		case "min":
			agg = AggMin
		case "max":
			agg = AggMax
		default:
			return nil, invalidQueryf("unknown aggregation function %q", fnStr)
		}
		field, _ := m["field"].(string)
		alias, _ := m["alias"].(string)
		if alias == "" {
			alias = fnStr
		}
		out = append(out, Aggregation{Func: agg, Field: field, Alias: alias})
	}
	return out, nil
}

func normalizeExpand(v any) (Expand, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, invalidQueryf("expand must be an object keyed by relationship field")
	}
	out := make(Expand, len(m))
	for field, sub := range m {
		subMap, _ := sub.(map[string]any)
		nested, err := NormalizeQuery("", subMap)
		if err != nil {
			return nil, err
		}
		out[field] = nested
	}
	return out, nil
}

// normalizeFilter converts either accepted filter form into the internal
// Filter tree:
//
//   - legacy: a bare list of criteria/"and"/"or" tokens/sub-groups, e.g.
//     [["status","=","active"], "and", ["age",">",18]]
//   - canonical object form: {"$and": [...]}, {"$or": [...]},
//     or a per-field object {field: {"$eq": v, "$gt": v2}}
func normalizeFilter(v any) (Filter, error) {
	switch t := v.(type) {
	case nil:
		return Filter{}, nil
	case []any:
		return normalizeFilterList(t)
	case map[string]any:
		return normalizeFilterObject(t)
	default:
		return Filter{}, invalidQueryf("unsupported filter shape: %T", v)
	}
}

func normalizeFilterList(list []any) (Filter, error) {
	if len(list) == 0 {
		return Filter{}, nil
	}
	// Single bare criterion, e.g. ["status", "=", "active"].
	if isBareCriterion(list) {
		return criterionFromTriple(list)
	}

	var (
		children []Filter
		logic    Logic
		logicSet bool
	)
	for _, item := range list {
		if tok, ok := item.(string); ok {
			l, err := parseLogicToken(tok)
			if err != nil {
				return Filter{}, err
			}
			if logicSet && l != logic {
				return Filter{}, invalidQueryf(
					"mixed 'and'/'or' tokens at the same filter level are ambiguous; wrap sub-groups in nested arrays to disambiguate")
			}
			logic, logicSet = l, true
			continue
		}
		child, err := normalizeFilterElement(item)
		if err != nil {
			return Filter{}, err
		}
		children = append(children, child)
	}
	if !logicSet {
		logic = LogicAnd // bare list without connectives is implicit AND
	}
	return Filter{Group: &Group{Logic: logic, Children: children}}, nil
}

func normalizeFilterElement(item any) (Filter, error) {
	switch t := item.(type) {
	case []any:
		return normalizeFilterList(t)
	case map[string]any:
		return normalizeFilterObject(t)
	default:
		return Filter{}, invalidQueryf("unsupported filter element: %T", item)
	}
}

func isBareCriterion(list []any) bool {
	if len(list) != 3 {
		return false
	}
	_, fieldOK := list[0].(string)
	opStr, opOK := list[1].(string)
	if !fieldOK || !opOK {
		return false
	}
	_, known := canonicalOperator(opStr)
	return known
}

func criterionFromTriple(list []any) (Filter, error) {
	field := list[0].(string)
	opStr := list[1].(string)
	op, ok := canonicalOperator(opStr)
	if !ok {
		return Filter{}, Wrap(CodeUnsupportedOp, fmt.Sprintf("unknown operator %q", opStr), ErrUnsupportedOp)
	}
	return Crit(field, op, list[2]), nil
}

func parseLogicToken(tok string) (Logic, error) {
	switch lower(tok) {
	case "and":
		return LogicAnd, nil
	case "or":
		return LogicOr, nil
	default:
		return "", invalidQueryf("unknown filter connective %q", tok)
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

func normalizeFilterObject(m map[string]any) (Filter, error) {
	var children []Filter
	for key, val := range m {
		switch key {
		case "$and":
			list, ok := val.([]any)
			if !ok {
				return Filter{}, invalidQueryf("$and must be a list")
			}
			sub, err := normalizeEach(list)
			if err != nil {
				return Filter{}, err
			}
			children = append(children, And(sub...))
		case "$or":
			list, ok := val.([]any)
			if !ok {
				return Filter{}, invalidQueryf("$or must be a list")
			}
			sub, err := normalizeEach(list)
			if err != nil {
				return Filter{}, err
			}
			children = append(children, Or(sub...))
		default:
			field := key
			ops, ok := val.(map[string]any)
			if !ok {
				// {field: value} shorthand for equality.
				children = append(children, Crit(field, OpEQ, val))
				continue
			}
			for opKey, opVal := range ops {
				op, known := canonicalOperator(opKey)
				if !known {
					return Filter{}, Wrap(CodeUnsupportedOp, fmt.Sprintf("unknown operator %q", opKey), ErrUnsupportedOp)
				}
				children = append(children, Crit(field, op, opVal))
			}
		}
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return And(children...), nil
}

func normalizeEach(list []any) ([]Filter, error) {
	out := make([]Filter, 0, len(list))
	for _, item := range list {
		f, err := normalizeFilterElement(item)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

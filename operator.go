package objectcore

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// EvalOperator evaluates the shared operator vocabulary (spec §3.4, §4.5)
// against a pair of operands. It backs both the in-memory reference
// driver's filter matcher and the validation engine's cross-field,
// conditional and state-machine rule checks, so the two places the spec
// requires the "stable operator set" never drift apart.
func EvalOperator(op Operator, left, right any) (bool, error) {
	switch op {
	case OpIsNull:
		return left == nil, nil
	case OpIsNotNull:
		return left != nil, nil
	case OpNotEmpty:
		return !isEmpty(left), nil
	case OpEQ:
		return compareEqual(left, right), nil
	case OpNEQ:
		return !compareEqual(left, right), nil
	case OpGT, OpGTE, OpLT, OpLTE:
		return compareOrdered(op, left, right)
	case OpIn, OpNotIn:
		return evalMembership(op, left, right)
	case OpContains, OpNotContains:
		if left == nil || right == nil {
			return false, nil
		}
		has := strings.Contains(strings.ToLower(fmt.Sprint(left)), strings.ToLower(fmt.Sprint(right)))
		if op == OpNotContains {
			return !has, nil
		}
		return has, nil
	case OpStartsWith:
		if left == nil || right == nil {
			return false, nil
		}
		return strings.HasPrefix(strings.ToLower(fmt.Sprint(left)), strings.ToLower(fmt.Sprint(right))), nil
	case OpEndsWith:
		if left == nil || right == nil {
			return false, nil
		}
		return strings.HasSuffix(strings.ToLower(fmt.Sprint(left)), strings.ToLower(fmt.Sprint(right))), nil
	default:
		return false, Wrap(CodeUnsupportedOp, fmt.Sprintf("unknown operator %q", op), ErrUnsupportedOp)
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

func compareEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if lf, rf, ok := asFloats(left, right); ok {
		return lf == rf
	}
	return fmt.Sprint(left) == fmt.Sprint(right)
}

func compareOrdered(op Operator, left, right any) (bool, error) {
	lf, rf, ok := asFloats(left, right)
	var cmp int
	if ok {
		switch {
		case lf < rf:
			cmp = -1
		case lf > rf:
			cmp = 1
		default:
			cmp = 0
		}
	} else {
		ls, rs := fmt.Sprint(left), fmt.Sprint(right)
		cmp = strings.Compare(ls, rs)
	}
	switch op {
	case OpGT:
		return cmp > 0, nil
	case OpGTE:
		return cmp >= 0, nil
	case OpLT:
		return cmp < 0, nil
	case OpLTE:
		return cmp <= 0, nil
	}
	return false, fmt.Errorf("not an ordering operator: %s", op)
}

func evalMembership(op Operator, left, right any) (bool, error) {
	rv := reflect.ValueOf(right)
	if right != nil && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
		found := false
		for i := 0; i < rv.Len(); i++ {
			if compareEqual(left, rv.Index(i).Interface()) {
				found = true
				break
			}
		}
		if op == OpNotIn {
			return !found, nil
		}
		return found, nil
	}
	return false, Wrap(CodeInvalidRequest, fmt.Sprintf("%s requires a sequence operand, got %T", op, right), ErrInvalidQuery)
}

// asFloats attempts to interpret both operands as float64, for numeric
// comparisons that should not fall back to lexicographic string ordering.
func asFloats(a, b any) (float64, float64, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return af, bf, aok && bok
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

package validation

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/metadata"
)

// ValidateFields checks op's payload against every field's declared
// constraints (spec §3.3): required, readonly-after-create, pattern, the
// built-in email/url formats, and numeric/length bounds. It is run
// alongside the rule-kind evaluator (Evaluate); EvaluateAll runs both.
func (e *Engine) ValidateFields(obj *metadata.ObjectDef, op objectcore.Op, scope Scope) *Result {
	res := &Result{}
	for name, f := range obj.Fields {
		v, present := scope.Record[name]

		if op.Is(objectcore.OpCreate) && f.IsRequired() && !present {
			res.add(Failure{
				Field: name, Rule: "required", Severity: metadata.SeverityError,
				Message: fmt.Sprintf("%s is required", name),
			})
			continue
		}
		if !present {
			continue
		}
		if op.Is(objectcore.OpUpdate|objectcore.OpUpdateMany|objectcore.OpFindOneAndUpdate) && f.IsReadonly() && scope.Before != nil {
			if before, ok := scope.Before[name]; ok && !valuesEqual(before, v) {
				res.add(Failure{
					Field: name, Rule: "readonly", Severity: metadata.SeverityError,
					Message: fmt.Sprintf("%s is read-only", name),
				})
				continue
			}
		}
		if v == nil {
			continue
		}

		vb := f.Validation()
		if vb == nil {
			continue
		}
		if msg, ok := checkFormat(name, f.Type(), *vb, v); !ok {
			res.add(Failure{Field: name, Rule: "format", Severity: metadata.SeverityError, Message: msg})
			continue
		}
		if vb.Pattern != "" {
			if re, err := regexp.Compile(vb.Pattern); err == nil && !re.MatchString(fmt.Sprint(v)) {
				res.add(Failure{
					Field: name, Rule: "pattern", Severity: metadata.SeverityError,
					Message: e.message(vb.Message, "", fmt.Sprintf("%s does not match the required pattern", name)),
				})
				continue
			}
		}
		if msg, ok := checkBounds(name, *vb, v); !ok {
			res.add(Failure{Field: name, Rule: "bounds", Severity: metadata.SeverityError, Message: msg})
		}
	}
	return res
}

// EvaluateAll runs both field-level constraint checks and the rule-kind
// evaluator, returning their combined failures.
func (e *Engine) EvaluateAll(obj *metadata.ObjectDef, op objectcore.Op, lang string, scope Scope) (*Result, error) {
	res := e.ValidateFields(obj, op, scope)
	rules, err := e.Evaluate(obj, op, lang, scope)
	if err != nil {
		return nil, err
	}
	res.Failures = append(res.Failures, rules.Failures...)
	return res, nil
}

func checkFormat(name string, typ metadata.FieldType, vb metadata.ValidationBlock, v any) (string, bool) {
	switch vb.Format {
	case metadata.FormatEmail:
		if _, err := mail.ParseAddress(fmt.Sprint(v)); err != nil {
			return fmt.Sprintf("%s is not a valid email address", name), false
		}
	case metadata.FormatURL:
		u, err := url.Parse(fmt.Sprint(v))
		if err != nil || u.Scheme == "" {
			return fmt.Sprintf("%s is not a valid URL", name), false
		}
		if len(vb.Protocols) > 0 && !containsStr(vb.Protocols, u.Scheme) {
			return fmt.Sprintf("%s must use one of the allowed protocols", name), false
		}
	}
	return "", true
}

func checkBounds(name string, vb metadata.ValidationBlock, v any) (string, bool) {
	if vb.Min != nil || vb.Max != nil {
		f, ok := toFloat(v)
		if ok {
			if vb.Min != nil && f < *vb.Min {
				return fmt.Sprintf("%s must be >= %v", name, *vb.Min), false
			}
			if vb.Max != nil && f > *vb.Max {
				return fmt.Sprintf("%s must be <= %v", name, *vb.Max), false
			}
		}
	}
	if vb.MinLength != nil || vb.MaxLength != nil {
		n := len([]rune(fmt.Sprint(v)))
		if vb.MinLength != nil && n < *vb.MinLength {
			return fmt.Sprintf("%s must be at least %d characters", name, *vb.MinLength), false
		}
		if vb.MaxLength != nil && n > *vb.MaxLength {
			return fmt.Sprintf("%s must be at most %d characters", name, *vb.MaxLength), false
		}
	}
	return "", true
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
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func containsStr(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

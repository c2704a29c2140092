// Package validation implements the Validation Engine (spec §4.5): a rule
// evaluator over the six ValidationRule kinds plus their all_of/any_of/
// none_of logical composition, sharing the query AST's operator vocabulary
// (objectcore.EvalOperator) for cross-field and conditional comparisons.
package validation

import (
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"golang.org/x/text/language"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/metadata"
)

// Failure is one rule's outcome when its condition does not hold.
type Failure struct {
	Field    string
	Rule     string
	Severity metadata.Severity
	Code     string
	Message  string
}

// Result collects every failure produced by one Evaluate call.
type Result struct {
	Failures []Failure
}

// HasErrors reports whether any failure carries error severity, meaning the
// triggering operation must be blocked (spec §4.5 "severity bands").
func (r *Result) HasErrors() bool {
	for _, f := range r.Failures {
		if f.Severity == metadata.SeverityError {
			return true
		}
	}
	return false
}

func (r *Result) add(f Failure) { r.Failures = append(r.Failures, f) }

// CustomValidator is a registered handler backing a "custom" rule, resolved
// by name the same way action handlers are (spec §4.6).
type CustomValidator func(scope Scope) (bool, error)

// Scope is the evaluation context a rule's ApplyWhen/Expression dot-paths
// resolve against, and the pluggable hooks kind-specific rules need but the
// validation engine itself has no access to.
type Scope struct {
	// Record is the incoming create/update payload.
	Record objectcore.Record
	// Before is the record's prior state; nil on create.
	Before objectcore.Record
	// Related is additional jsonpath-addressable context a business_rule
	// expression may reference (e.g. related records pulled by the caller).
	Related map[string]objectcore.Record
	// CheckUnique reports whether value already exists in field on another
	// record, if the caller wired a driver-backed check; a nil CheckUnique
	// skips uniqueness validation rather than failing closed, matching the
	// engine's declared-capability model (spec §4.5 "Unique").
	CheckUnique func(field string, value any) (conflict bool, err error)
}

// Engine evaluates an object's ValidationRule list against a Scope.
type Engine struct {
	defaultLang language.Tag
	Handlers    map[string]CustomValidator
}

// New returns a validation Engine. defaultLang is the language used when the
// caller does not specify one in Evaluate; it defaults to English.
func New(defaultLang ...language.Tag) *Engine {
	dl := language.English
	if len(defaultLang) > 0 {
		dl = defaultLang[0]
	}
	return &Engine{defaultLang: dl, Handlers: map[string]CustomValidator{}}
}

// RegisterHandler binds name to fn for "custom" rules referencing it.
func (e *Engine) RegisterHandler(name string, fn CustomValidator) {
	e.Handlers[name] = fn
}

// Evaluate runs every rule on obj applicable to op against scope, in the
// given BCP-47 language (empty uses the engine's default).
func (e *Engine) Evaluate(obj *metadata.ObjectDef, op objectcore.Op, lang string, scope Scope) (*Result, error) {
	res := &Result{}
	changed := make([]string, 0, len(scope.Record))
	for k := range scope.Record {
		changed = append(changed, k)
	}
	for _, rule := range obj.Rules {
		holds, err := e.ruleHolds(rule, op, scope, changed)
		if err != nil {
			return nil, err
		}
		if holds {
			continue
		}
		sev := rule.Severity
		if sev == "" {
			sev = metadata.SeverityError
		}
		res.add(Failure{
			Field:    primaryField(rule),
			Rule:     rule.Name,
			Severity: sev,
			Code:     failureCode(rule),
			Message:  e.message(rule.Message, lang, defaultMessage(rule)),
		})
	}
	return res, nil
}

// ruleHolds reports whether rule's condition is satisfied (true = no
// violation). Gating (Trigger/Fields/ApplyWhen) is applied uniformly before
// dispatching to the kind- or composition-specific evaluator, since the
// spec defines ApplyWhen once at the shared rule level, not per kind.
func (e *Engine) ruleHolds(rule metadata.ValidationRule, op objectcore.Op, scope Scope, changed []string) (bool, error) {
	if !rule.AppliesTo(op) || !rule.TouchesAny(changed) {
		return true, nil
	}
	if rule.ApplyWhen != "" {
		ok, err := e.truthy(rule.ApplyWhen, scope)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
	}
	if rule.Logic != "" {
		return e.evalComposition(rule, op, scope, changed)
	}
	return e.evalKind(rule, op, scope)
}

func (e *Engine) evalKind(rule metadata.ValidationRule, op objectcore.Op, scope Scope) (bool, error) {
	switch rule.Kind {
	case metadata.RuleCrossField:
		return e.evalCrossField(rule, scope)
	case metadata.RuleStateMachine:
		return e.evalStateMachine(rule, scope)
	case metadata.RuleUnique:
		return e.evalUnique(rule, scope)
	case metadata.RuleBusinessRule:
		if rule.Expression == "" {
			return true, nil
		}
		return e.truthy(rule.Expression, scope)
	case metadata.RuleConditional:
		if rule.Inner == nil {
			return true, nil
		}
		return e.ruleHolds(*rule.Inner, op, scope, nil)
	case metadata.RuleCustom:
		h, ok := e.Handlers[rule.Handler]
		if !ok {
			return false, objectcore.NewError(objectcore.CodeInternalError,
				fmt.Sprintf("validation: custom handler %q is not registered", rule.Handler))
		}
		return h(scope)
	default:
		return true, nil
	}
}

func (e *Engine) evalCrossField(rule metadata.ValidationRule, scope Scope) (bool, error) {
	if len(rule.Fields) == 0 {
		return true, nil
	}
	left, leftOK := fieldValue(scope, rule.Fields[0])
	right, rightOK := fieldValue(scope, rule.CompareTo)
	if !leftOK || !rightOK {
		return true, nil
	}
	return objectcore.EvalOperator(rule.Operator, left, right)
}

func (e *Engine) evalStateMachine(rule metadata.ValidationRule, scope Scope) (bool, error) {
	if rule.StateField == "" {
		return true, nil
	}
	newVal, changing := scope.Record[rule.StateField]
	if !changing {
		return true, nil
	}
	var oldVal any
	if scope.Before != nil {
		oldVal = scope.Before[rule.StateField]
	}
	tr, ok := rule.Transitions[fmt.Sprint(oldVal)]
	if !ok {
		return false, nil
	}
	newKey := fmt.Sprint(newVal)
	for _, allowed := range tr.AllowedNext {
		if allowed == newKey {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) evalUnique(rule metadata.ValidationRule, scope Scope) (bool, error) {
	field := rule.UniqueField
	if field == "" && len(rule.Fields) > 0 {
		field = rule.Fields[0]
	}
	if field == "" || scope.CheckUnique == nil {
		return true, nil
	}
	v, ok := scope.Record[field]
	if !ok {
		return true, nil
	}
	conflict, err := scope.CheckUnique(field, v)
	if err != nil {
		return false, err
	}
	return !conflict, nil
}

func (e *Engine) evalComposition(rule metadata.ValidationRule, op objectcore.Op, scope Scope, changed []string) (bool, error) {
	switch rule.Logic {
	case metadata.LogicAllOf:
		for _, c := range rule.Children {
			ok, err := e.ruleHolds(c, op, scope, changed)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case metadata.LogicAnyOf:
		for _, c := range rule.Children {
			ok, err := e.ruleHolds(c, op, scope, changed)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return len(rule.Children) == 0, nil
	case metadata.LogicNoneOf:
		for _, c := range rule.Children {
			ok, err := e.ruleHolds(c, op, scope, changed)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		}
		return true, nil
	default:
		return true, nil
	}
}

// truthy evaluates a JSONPath expression (spec's dot-path templating,
// PaesslerAG/jsonpath) against scope's record/before/related context and
// interprets the result as a boolean gate.
func (e *Engine) truthy(expr string, scope Scope) (bool, error) {
	data := map[string]any{
		"record": map[string]any(scope.Record),
		"before": map[string]any(scope.Before),
	}
	if scope.Related != nil {
		related := make(map[string]any, len(scope.Related))
		for k, v := range scope.Related {
			related[k] = map[string]any(v)
		}
		data["related"] = related
	}
	v, err := jsonpath.Get(expr, data)
	if err != nil && strings.HasPrefix(err.Error(), "unknown key") {
		// An absent field is not an evaluation error: it gates as false.
		return false, nil
	}
	if err != nil {
		return false, objectcore.Wrap(objectcore.CodeInvalidRequest,
			fmt.Sprintf("validation: evaluate %q", expr), err)
	}
	return isTruthy(v), nil
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

func fieldValue(scope Scope, field string) (any, bool) {
	if scope.Record != nil {
		if v, ok := scope.Record[field]; ok {
			return v, true
		}
	}
	if scope.Before != nil {
		if v, ok := scope.Before[field]; ok {
			return v, true
		}
	}
	return nil, false
}

func primaryField(rule metadata.ValidationRule) string {
	switch {
	case len(rule.Fields) > 0:
		return rule.Fields[0]
	case rule.StateField != "":
		return rule.StateField
	case rule.UniqueField != "":
		return rule.UniqueField
	default:
		return ""
	}
}

// failureCode resolves the Code a failed rule reports, defaulting
// state_machine rules that don't set one to INVALID_STATE_TRANSITION so a
// rejected transition always carries a stable, documented code (spec §8
// Scenario B) rather than an empty string.
func failureCode(rule metadata.ValidationRule) string {
	if rule.Code != "" {
		return rule.Code
	}
	if rule.Kind == metadata.RuleStateMachine {
		return "INVALID_STATE_TRANSITION"
	}
	return ""
}

func defaultMessage(rule metadata.ValidationRule) string {
	if rule.Name != "" {
		return fmt.Sprintf("validation rule %q failed", rule.Name)
	}
	return fmt.Sprintf("%s validation failed", rule.Kind)
}

// message resolves rule.Message, preferring a literal, else matching lang
// against the message's language map (falling back to the engine's default
// language), else falling back to fallback.
func (e *Engine) message(msg metadata.Message, lang, fallback string) string {
	if msg.IsZero() {
		return fallback
	}
	if msg.Literal != "" {
		return msg.Literal
	}
	tags := make([]language.Tag, 0, len(msg.Languages))
	keys := make([]string, 0, len(msg.Languages))
	for k := range msg.Languages {
		t, err := language.Parse(k)
		if err != nil {
			continue
		}
		tags = append(tags, t)
		keys = append(keys, k)
	}
	if len(tags) == 0 {
		return fallback
	}
	want := e.defaultLang
	if lang != "" {
		if t, err := language.Parse(lang); err == nil {
			want = t
		}
	}
	matcher := language.NewMatcher(tags)
	_, idx, _ := matcher.Match(want)
	return msg.Languages[keys[idx]]
}

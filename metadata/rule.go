package metadata

import "github.com/syssam/objectcore"

// RuleKind is the closed tagged-variant discriminator for a ValidationRule
// (spec §3.1): "cross_field", "state_machine", "unique", "business_rule",
// "conditional", "custom".
type RuleKind string

const (
	RuleCrossField    RuleKind = "cross_field"
	RuleStateMachine  RuleKind = "state_machine"
	RuleUnique        RuleKind = "unique"
	RuleBusinessRule  RuleKind = "business_rule"
	RuleConditional   RuleKind = "conditional"
	RuleCustom        RuleKind = "custom"
)

// Severity is the validation outcome's severity band (spec §4.5): error
// results block the operation, warning/info are advisory.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Transition is one state-machine edge: the states reachable from a given
// "old" value (spec §4.5 "State machine"). An empty AllowedNext marks a
// terminal state.
type Transition struct {
	AllowedNext []string
}

// ValidationRule is a tagged variant over the six rule kinds, carrying the
// fields common to all of them plus the kind-specific extras (spec §3.1,
// §4.5). Exactly the fields relevant to Kind are consulted by the
// validation engine; the rest are zero.
type ValidationRule struct {
	Kind RuleKind

	Name        string
	Description string
	// Trigger is the subset of {create, update} this rule applies to.
	Trigger []objectcore.Op
	// Fields is the affected-field filter: the rule is gated on at least
	// one of these appearing in the operation's changed-field set. Empty
	// means "always gated in" with respect to fields.
	Fields []string
	// ApplyWhen, if set, is evaluated against the current record; the rule
	// is skipped when it evaluates false. A dot-path expression resolved
	// via PaesslerAG/jsonpath against the evaluation scope.
	ApplyWhen string

	Severity Severity
	Message  Message
	Code     string

	// CrossField: the field this rule's Field compares against.
	CompareTo string
	Operator  objectcore.Operator

	// StateMachine: the field carrying the state, and its transition table
	// keyed by the "old" value.
	StateField  string
	Transitions map[string]Transition

	// Unique: the field the uniqueness check runs against; defaults to
	// Fields[0] when unset.
	UniqueField string

	// BusinessRule: a bounded expression evaluated over the record plus
	// jsonpath-resolved related records. Implementations MAY stub
	// evaluation (declared in engine capabilities) when no safe evaluator
	// is configured; a stub passes silently.
	Expression string

	// Conditional: the inner rule, evaluated only when ApplyWhen holds.
	Inner *ValidationRule

	// Custom: the name of a registered handler function, resolved the same
	// way action handlers are (spec §4.6).
	Handler string

	// Children and Logic implement the all_of/any_of/none_of logical
	// composition (spec §4.5) when Kind is unset and Logic is non-empty.
	Logic    CompositionLogic
	Children []ValidationRule
}

// CompositionLogic is the recursive boolean combinator over child rules.
type CompositionLogic string

const (
	LogicAllOf  CompositionLogic = "all_of"
	LogicAnyOf  CompositionLogic = "any_of"
	LogicNoneOf CompositionLogic = "none_of"
)

// AppliesTo reports whether op is in the rule's trigger set.
func (r ValidationRule) AppliesTo(op objectcore.Op) bool {
	if len(r.Trigger) == 0 {
		return true
	}
	for _, t := range r.Trigger {
		if t == op {
			return true
		}
	}
	return false
}

// TouchesAny reports whether any of the rule's affected fields appears in
// changed. An empty Fields list always matches (spec §4.5 rule gating).
func (r ValidationRule) TouchesAny(changed []string) bool {
	if len(r.Fields) == 0 {
		return true
	}
	for _, f := range r.Fields {
		for _, c := range changed {
			if f == c {
				return true
			}
		}
	}
	return false
}

package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/metadata"
	"github.com/syssam/objectcore/validation"
)

func dealObject() *metadata.ObjectDef {
	obj := metadata.NewObject("deals")
	obj.WithField(metadata.String("name").Required())
	obj.WithField(metadata.Choice("stage",
		metadata.Option{Label: "Open", Value: "open"},
		metadata.Option{Label: "Won", Value: "won"},
		metadata.Option{Label: "Lost", Value: "lost"},
	))
	obj.WithField(metadata.Float("amount").Min(0).Max(1000000))
	obj.WithField(metadata.Email("contact_email"))
	obj.WithField(metadata.String("close_date"))
	obj.WithField(metadata.String("open_date"))
	return obj
}

func TestEvaluateStateMachineRejectsDisallowedTransition(t *testing.T) {
	obj := dealObject()
	obj.WithRule(metadata.ValidationRule{
		Kind:       metadata.RuleStateMachine,
		Name:       "stage_transitions",
		StateField: "stage",
		Transitions: map[string]metadata.Transition{
			"open": {AllowedNext: []string{"won", "lost"}},
			"won":  {},
			"lost": {},
		},
	})
	e := validation.New()

	res, err := e.Evaluate(obj, objectcore.OpUpdate, "", validation.Scope{
		Record: objectcore.Record{"stage": "open"},
		Before: objectcore.Record{"stage": "lost"},
	})
	require.NoError(t, err)
	require.True(t, res.HasErrors())
	assert.Equal(t, "stage_transitions", res.Failures[0].Rule)
	assert.Equal(t, "INVALID_STATE_TRANSITION", res.Failures[0].Code, "a state_machine rule without its own Code defaults to INVALID_STATE_TRANSITION")
}

func TestEvaluateStateMachineKeepsRuleSpecifiedCode(t *testing.T) {
	obj := dealObject()
	obj.WithRule(metadata.ValidationRule{
		Kind:       metadata.RuleStateMachine,
		Name:       "stage_transitions",
		Code:       "CUSTOM_CODE",
		StateField: "stage",
		Transitions: map[string]metadata.Transition{
			"open": {AllowedNext: []string{"won"}},
		},
	})
	e := validation.New()

	res, err := e.Evaluate(obj, objectcore.OpUpdate, "", validation.Scope{
		Record: objectcore.Record{"stage": "lost"},
		Before: objectcore.Record{"stage": "open"},
	})
	require.NoError(t, err)
	require.True(t, res.HasErrors())
	assert.Equal(t, "CUSTOM_CODE", res.Failures[0].Code)
}

func TestEvaluateStateMachineAllowsAllowedTransition(t *testing.T) {
	obj := dealObject()
	obj.WithRule(metadata.ValidationRule{
		Kind:       metadata.RuleStateMachine,
		Name:       "stage_transitions",
		StateField: "stage",
		Transitions: map[string]metadata.Transition{
			"open": {AllowedNext: []string{"won", "lost"}},
		},
	})
	e := validation.New()

	res, err := e.Evaluate(obj, objectcore.OpUpdate, "", validation.Scope{
		Record: objectcore.Record{"stage": "won"},
		Before: objectcore.Record{"stage": "open"},
	})
	require.NoError(t, err)
	assert.False(t, res.HasErrors())
}

func TestEvaluateUniqueUsesCheckUnique(t *testing.T) {
	obj := dealObject()
	obj.WithRule(metadata.ValidationRule{
		Kind:        metadata.RuleUnique,
		Name:        "unique_name",
		UniqueField: "name",
	})
	e := validation.New()

	res, err := e.Evaluate(obj, objectcore.OpCreate, "", validation.Scope{
		Record: objectcore.Record{"name": "Acme Renewal"},
		CheckUnique: func(field string, value any) (bool, error) {
			return field == "name" && value == "Acme Renewal", nil
		},
	})
	require.NoError(t, err)
	require.True(t, res.HasErrors())
	assert.Equal(t, "name", res.Failures[0].Field)
}

func TestEvaluateUniqueSkipsWithoutCheckUniqueCallback(t *testing.T) {
	obj := dealObject()
	obj.WithRule(metadata.ValidationRule{
		Kind:        metadata.RuleUnique,
		Name:        "unique_name",
		UniqueField: "name",
	})
	e := validation.New()

	res, err := e.Evaluate(obj, objectcore.OpCreate, "", validation.Scope{
		Record: objectcore.Record{"name": "Acme Renewal"},
	})
	require.NoError(t, err)
	assert.False(t, res.HasErrors())
}

func TestEvaluateCrossFieldComparesRecordFields(t *testing.T) {
	obj := dealObject()
	obj.WithRule(metadata.ValidationRule{
		Kind:      metadata.RuleCrossField,
		Name:      "close_after_open",
		Fields:    []string{"close_date"},
		CompareTo: "open_date",
		Operator:  objectcore.OpGTE,
	})
	e := validation.New()

	res, err := e.Evaluate(obj, objectcore.OpCreate, "", validation.Scope{
		Record: objectcore.Record{"close_date": "2026-01-01", "open_date": "2026-02-01"},
	})
	require.NoError(t, err)
	require.True(t, res.HasErrors())
	assert.Equal(t, "close_after_open", res.Failures[0].Rule)
}

func TestEvaluateCompositionAllOf(t *testing.T) {
	obj := dealObject()
	obj.WithRule(metadata.ValidationRule{
		Logic: metadata.LogicAllOf,
		Name:  "won_requires_amount_and_email",
		Children: []metadata.ValidationRule{
			{Kind: metadata.RuleBusinessRule, Expression: "$.record.amount"},
			{Kind: metadata.RuleBusinessRule, Expression: "$.record.contact_email"},
		},
	})
	e := validation.New()

	failing, err := e.Evaluate(obj, objectcore.OpCreate, "", validation.Scope{
		Record: objectcore.Record{"amount": 100.0},
	})
	require.NoError(t, err)
	assert.True(t, failing.HasErrors())

	passing, err := e.Evaluate(obj, objectcore.OpCreate, "", validation.Scope{
		Record: objectcore.Record{"amount": 100.0, "contact_email": "buyer@example.com"},
	})
	require.NoError(t, err)
	assert.False(t, passing.HasErrors())
}

func TestEvaluateRuleGatedByTrigger(t *testing.T) {
	obj := dealObject()
	obj.WithRule(metadata.ValidationRule{
		Kind:       metadata.RuleStateMachine,
		Name:       "stage_transitions",
		Trigger:    []objectcore.Op{objectcore.OpUpdate},
		StateField: "stage",
		Transitions: map[string]metadata.Transition{
			"": {AllowedNext: []string{"open"}},
		},
	})
	e := validation.New()

	res, err := e.Evaluate(obj, objectcore.OpCreate, "", validation.Scope{
		Record: objectcore.Record{"stage": "won"},
	})
	require.NoError(t, err)
	assert.False(t, res.HasErrors(), "create is outside the rule's trigger set and should be skipped")
}

func TestValidateFieldsRequiresOnCreateOnly(t *testing.T) {
	obj := dealObject()
	e := validation.New()

	res := e.ValidateFields(obj, objectcore.OpCreate, validation.Scope{Record: objectcore.Record{}})
	require.True(t, res.HasErrors())
	assert.Equal(t, "name", res.Failures[0].Field)

	res = e.ValidateFields(obj, objectcore.OpUpdate, validation.Scope{Record: objectcore.Record{}})
	assert.False(t, res.HasErrors(), "required is only enforced on create")
}

func TestValidateFieldsRejectsReadonlyChangeAfterCreate(t *testing.T) {
	obj := dealObject()
	obj.WithField(metadata.String("external_id").Immutable())
	e := validation.New()

	res := e.ValidateFields(obj, objectcore.OpUpdate, validation.Scope{
		Record: objectcore.Record{"name": "Acme Renewal", "external_id": "new"},
		Before: objectcore.Record{"external_id": "old"},
	})
	require.True(t, res.HasErrors())
	assert.Equal(t, "readonly", res.Failures[0].Rule)
}

func TestValidateFieldsChecksEmailFormat(t *testing.T) {
	obj := dealObject()
	e := validation.New()

	res := e.ValidateFields(obj, objectcore.OpCreate, validation.Scope{
		Record: objectcore.Record{"name": "Acme Renewal", "contact_email": "not-an-email"},
	})
	require.True(t, res.HasErrors())
	assert.Equal(t, "format", res.Failures[0].Rule)
}

func TestValidateFieldsChecksNumericBounds(t *testing.T) {
	obj := dealObject()
	e := validation.New()

	res := e.ValidateFields(obj, objectcore.OpCreate, validation.Scope{
		Record: objectcore.Record{"name": "Acme Renewal", "amount": 2000000.0},
	})
	require.True(t, res.HasErrors())
	assert.Equal(t, "bounds", res.Failures[0].Rule)
}

func TestEvaluateAllCombinesFieldAndRuleFailures(t *testing.T) {
	obj := dealObject()
	obj.WithRule(metadata.ValidationRule{
		Kind:        metadata.RuleUnique,
		Name:        "unique_amount",
		UniqueField: "amount",
	})
	e := validation.New()

	res, err := e.EvaluateAll(obj, objectcore.OpCreate, "", validation.Scope{
		Record: objectcore.Record{"amount": 100.0},
		CheckUnique: func(string, any) (bool, error) {
			return true, nil
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Failures, 2)

	rules := map[string]bool{}
	for _, f := range res.Failures {
		rules[f.Rule] = true
	}
	assert.True(t, rules["required"])
	assert.True(t, rules["unique_amount"])
}

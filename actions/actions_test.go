package actions_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/actions"
)

func TestExecuteReturnsActionNotFoundWhenUnregistered(t *testing.T) {
	d := actions.New()
	_, err := d.Execute(context.Background(), "deals", "close_won", &actions.Context{})
	require.Error(t, err)

	oerr, ok := err.(*objectcore.Error)
	require.True(t, ok)
	assert.Equal(t, objectcore.CodeActionNotFound, oerr.Code)
	assert.ErrorIs(t, err, objectcore.ErrActionNotFound)
}

func TestExecuteRunsRegisteredHandler(t *testing.T) {
	d := actions.New()
	d.Register("deals", "close_won", func(_ context.Context, ac *actions.Context) (any, error) {
		return objectcore.Record{"stage": "closed_won", "id": ac.ID}, nil
	}, "crm")

	result, err := d.Execute(context.Background(), "deals", "close_won", &actions.Context{ID: "deal-1"})
	require.NoError(t, err)

	rec, ok := result.(objectcore.Record)
	require.True(t, ok)
	assert.Equal(t, "closed_won", rec["stage"])
	assert.Equal(t, "deal-1", rec["id"])
}

func TestUnregisterPackageRemovesOnlyThatPackagesActions(t *testing.T) {
	d := actions.New()
	noop := func(context.Context, *actions.Context) (any, error) { return nil, nil }

	d.Register("deals", "close_won", noop, "crm")
	d.Register("deals", "flag", noop, "audit")
	require.ElementsMatch(t, []string{"deals:close_won", "deals:flag"}, d.List())

	d.UnregisterPackage("crm")
	assert.Equal(t, []string{"deals:flag"}, d.List())
}

func TestRegisterOverwritesExistingActionForSameKey(t *testing.T) {
	d := actions.New()
	d.Register("deals", "close_won", func(context.Context, *actions.Context) (any, error) {
		return "first", nil
	}, "crm")
	d.Register("deals", "close_won", func(context.Context, *actions.Context) (any, error) {
		return "second", nil
	}, "crm")

	result, err := d.Execute(context.Background(), "deals", "close_won", &actions.Context{})
	require.NoError(t, err)
	assert.Equal(t, "second", result)
}

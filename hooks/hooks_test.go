package hooks_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/objectcore/hooks"
)

func TestTriggerRunsInRegistrationOrderWithWildcardsInterleaved(t *testing.T) {
	m := hooks.New()
	var order []string

	record := func(name string) hooks.Handler {
		return func(context.Context, *hooks.Context) error {
			order = append(order, name)
			return nil
		}
	}

	m.Register(hooks.BeforeCreate, "deals", record("deals-1"), "pkg")
	m.Register(hooks.BeforeCreate, hooks.Wildcard, record("wildcard-1"), "pkg")
	m.Register(hooks.BeforeCreate, "deals", record("deals-2"), "pkg")

	require.NoError(t, m.Trigger(context.Background(), hooks.BeforeCreate, "deals", &hooks.Context{}))
	assert.Equal(t, []string{"deals-1", "wildcard-1", "deals-2"}, order)
}

func TestTriggerStopsAtFirstError(t *testing.T) {
	m := hooks.New()
	var ran []string
	boom := errors.New("boom")

	m.Register(hooks.BeforeDelete, "accounts", func(context.Context, *hooks.Context) error {
		ran = append(ran, "first")
		return boom
	}, "pkg")
	m.Register(hooks.BeforeDelete, "accounts", func(context.Context, *hooks.Context) error {
		ran = append(ran, "second")
		return nil
	}, "pkg")

	err := m.Trigger(context.Background(), hooks.BeforeDelete, "accounts", &hooks.Context{})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first"}, ran)
}

func TestUnregisterPackageRemovesOnlyThatPackage(t *testing.T) {
	m := hooks.New()
	noop := func(context.Context, *hooks.Context) error { return nil }

	m.Register(hooks.AfterCreate, "leads", noop, "crm")
	m.Register(hooks.AfterCreate, "leads", noop, "audit")
	require.Equal(t, 2, m.Count(hooks.AfterCreate, "leads"))

	m.UnregisterPackage("crm")
	assert.Equal(t, 1, m.Count(hooks.AfterCreate, "leads"))
}

func TestTriggerIgnoresOtherObjectsAndEvents(t *testing.T) {
	m := hooks.New()
	called := false
	m.Register(hooks.BeforeUpdate, "deals", func(context.Context, *hooks.Context) error {
		called = true
		return nil
	}, "pkg")

	require.NoError(t, m.Trigger(context.Background(), hooks.BeforeUpdate, "accounts", &hooks.Context{}))
	assert.False(t, called)

	require.NoError(t, m.Trigger(context.Background(), hooks.AfterUpdate, "deals", &hooks.Context{}))
	assert.False(t, called)
}

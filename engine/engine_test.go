package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/driver"
	"github.com/syssam/objectcore/driver/memdriver"
	"github.com/syssam/objectcore/engine"
	"github.com/syssam/objectcore/metadata"
	"github.com/syssam/objectcore/tenancy"
)

func newAccountsRegistry() *metadata.Registry {
	reg := metadata.New()
	obj := metadata.NewObject("accounts").
		WithField(metadata.String("name").Required()).
		WithField(metadata.String("status"))
	reg.RegisterObject("crm", obj)
	return reg
}

func newEngine(t *testing.T) (*engine.Engine, *memdriver.Driver) {
	t.Helper()
	reg := newAccountsRegistry()
	mem := memdriver.New()
	eng := engine.New(engine.Config{
		Registry: reg,
		Drivers:  map[string]driver.Driver{"default": mem},
		Strict:   true,
	})
	eng.Use(engine.UseTenancy(tenancy.New(tenancy.Config{EnableAudit: true})))
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })
	return eng, mem
}

// Scenario A (spec §8): a caller scoped to tenant t1 issuing a plain
// status filter gets the tenant predicate injected transparently.
func TestEngine_TenantFilterInjected(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()

	t1 := eng.CreateContext(engine.WithUser("u1", nil, objectcore.Record{"tenantId": "t1"}), engine.WithTenant("t1"))
	t2 := eng.CreateContext(engine.WithUser("u2", nil, objectcore.Record{"tenantId": "t2"}), engine.WithTenant("t2"))

	_, err := eng.Object("accounts", t1).Create(ctx, objectcore.Record{"name": "Acme"})
	require.NoError(t, err)
	_, err = eng.Object("accounts", t2).Create(ctx, objectcore.Record{"name": "Globex"})
	require.NoError(t, err)

	recs, err := eng.Object("accounts", t1).Find(ctx, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Acme", recs[0]["name"])
}

// Scenario C (spec §8): cross-tenant update is denied even when the
// caller sets IgnoreTriggers, because tenancy hooks are mandatory (spec
// §9 Open Question).
func TestEngine_CrossTenantUpdateDeniedEvenWithIgnoreTriggers(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()

	t1 := eng.CreateContext(engine.WithUser("u1", nil, objectcore.Record{"tenantId": "t1"}), engine.WithTenant("t1"))
	rec, err := eng.Object("accounts", t1).Create(ctx, objectcore.Record{"name": "Acme"})
	require.NoError(t, err)
	id, _ := rec.ID()

	t2ignore := eng.CreateContext(
		engine.WithUser("u2", nil, objectcore.Record{"tenantId": "t2"}),
		engine.WithTenant("t2"),
		engine.WithIgnoreTriggers(),
	)
	_, err = eng.Object("accounts", t2ignore).Update(ctx, id, objectcore.Record{"name": "Hijacked"})
	require.Error(t, err)
	var oerr *objectcore.Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, objectcore.CodeTenantIsolation, oerr.Code)
}

func TestEngine_StartTwiceFails(t *testing.T) {
	eng, _ := newEngine(t)
	assert.Error(t, eng.Start(context.Background()))
}

func TestEngine_UnknownDatasourceTransaction(t *testing.T) {
	eng, _ := newEngine(t)
	_, _, err := eng.WithTransaction(context.Background(), "reporting", engine.Context{})
	require.Error(t, err)
}

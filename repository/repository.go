// Package repository implements the Repository / Dispatch Pipeline (spec
// §4.8): the orchestrator that, per operation, runs permission checks,
// tenancy hooks, validation, before/after lifecycle hooks and the driver
// call, all within an optional transaction and a caller-supplied request
// context. It is the one place every transport-agnostic operation passes
// through (spec §1 item 4).
package repository

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/actions"
	"github.com/syssam/objectcore/driver"
	"github.com/syssam/objectcore/hooks"
	"github.com/syssam/objectcore/metadata"
	"github.com/syssam/objectcore/validation"
)

// RequestContext is the immutable per-request context the pipeline
// threads through every operation (spec §4.9 engine.createContext):
// session identity, the active transaction handle (if any), and the
// ignoreTriggers flag (spec §9 Open Question — tenancy/permission hooks
// still run when set; only user-defined hooks are skipped).
type RequestContext struct {
	UserID         string
	Roles          []string
	TenantID       string
	SpaceID        string
	User           objectcore.Record
	Lang           string
	Transaction    driver.Tx
	IgnoreTriggers bool
}

// WithTransaction returns a copy of rc bound to tx, for the one request
// that opened it (spec §5: a Tx must never be shared across requests).
func (rc RequestContext) WithTransaction(tx driver.Tx) RequestContext {
	rc.Transaction = tx
	return rc
}

// Dispatcher owns every object-independent collaborator the pipeline
// needs: the metadata registry, one driver per datasource, the hook
// manager, the validation engine, the action dispatcher, and an optional
// cross-cutting privacy policy layered on top of the role/statement
// checks resolved from the registry. Engine.Engine constructs one
// Dispatcher and hands out object-bound Repository values from it.
type Dispatcher struct {
	Registry   *metadata.Registry
	Drivers    map[string]driver.Driver
	Hooks      *hooks.Manager
	Validation *validation.Engine
	Actions    *actions.Dispatcher
	Policy     objectcore.Policy // optional, additional to role/statement RBAC
	Cache      objectcore.Cache  // optional; held here, not read by the pipeline
	Strict     bool              // advisory driver.Options.Strict default

	// MandatoryHooks holds plugin-installed hooks (tenancy's resolver,
	// filter injector and mutation guard) that must run even when a
	// request sets IgnoreTriggers (spec §9 Open Question: "tenancy and
	// permission hooks still run; only user-defined hooks are bypassed").
	// engine.Engine.Start wires the tenancy plugin into this manager
	// instead of Hooks, so the two populations stay separable.
	MandatoryHooks *hooks.Manager
}

// New returns a Dispatcher wired to the given collaborators. drivers maps
// datasource name to driver instance; "default" must be present for
// objects that do not override ObjectDef.Datasource.
func New(reg *metadata.Registry, drivers map[string]driver.Driver, hm *hooks.Manager, ve *validation.Engine, ad *actions.Dispatcher) *Dispatcher {
	return &Dispatcher{Registry: reg, Drivers: drivers, Hooks: hm, Validation: ve, Actions: ad, MandatoryHooks: hooks.New(), Strict: true}
}

func (d *Dispatcher) driverFor(obj *metadata.ObjectDef) (driver.Driver, error) {
	name := obj.Datasource
	if name == "" {
		name = "default"
	}
	drv, ok := d.Drivers[name]
	if !ok {
		return nil, objectcore.NewError(objectcore.CodeInternalError, fmt.Sprintf("repository: no driver registered for datasource %q", name))
	}
	return drv, nil
}

// Object returns a Repository bound to object and reqCtx (spec §4.9
// engine.object(name)). It fails at first use, not here, if object is
// unregistered, so the zero-cost common path never round-trips the
// registry twice.
func (d *Dispatcher) Object(object string, reqCtx RequestContext) *Repository {
	return &Repository{d: d, object: object, reqCtx: reqCtx}
}

// Access is the restricted, pipeline-routed data-access surface handed to
// hook handlers and action handlers (spec §4.4, §4.6): every call is
// re-dispatched through Dispatcher.Object so recursive calls from inside
// a hook or action still honour permissions and tenancy.
type Access struct {
	d      *Dispatcher
	reqCtx RequestContext
}

// NewAccess returns an Access surface bound to reqCtx.
func (d *Dispatcher) NewAccess(reqCtx RequestContext) *Access { return &Access{d: d, reqCtx: reqCtx} }

func (a *Access) Find(ctx context.Context, object string, q *objectcore.UnifiedQuery) ([]objectcore.Record, error) {
	return a.d.Object(object, a.reqCtx).Find(ctx, q)
}

func (a *Access) FindOne(ctx context.Context, object string, idOrQuery any) (objectcore.Record, error) {
	return a.d.Object(object, a.reqCtx).FindOne(ctx, idOrQuery)
}

func (a *Access) Count(ctx context.Context, object string, filters objectcore.Filter) (int, error) {
	return a.d.Object(object, a.reqCtx).Count(ctx, filters)
}

func (a *Access) Create(ctx context.Context, object string, data objectcore.Record) (objectcore.Record, error) {
	return a.d.Object(object, a.reqCtx).Create(ctx, data)
}

func (a *Access) Update(ctx context.Context, object string, id any, patch objectcore.Record) (objectcore.Record, error) {
	return a.d.Object(object, a.reqCtx).Update(ctx, id, patch)
}

func (a *Access) Delete(ctx context.Context, object string, id any) (int, error) {
	return a.d.Object(object, a.reqCtx).Delete(ctx, id)
}

var _ hooks.DataAccess = (*Access)(nil)

// Repository is the per-object, per-request façade the pipeline exposes
// (spec §4.8). Every method runs the full ordered pipeline for its
// operation; none call the driver directly.
type Repository struct {
	d      *Dispatcher
	object string
	reqCtx RequestContext
}

// Object returns the object name this repository is bound to.
func (r *Repository) Object() string { return r.object }

func (r *Repository) resolve() (*metadata.ObjectDef, driver.Driver, error) {
	obj, ok := r.d.Registry.Object(r.object)
	if !ok {
		return nil, nil, objectcore.NewError(objectcore.CodeInvalidRequest, fmt.Sprintf("repository: unknown object %q", r.object))
	}
	drv, err := r.d.driverFor(obj)
	if err != nil {
		return nil, nil, err
	}
	return obj, drv, nil
}

func (r *Repository) driverOptions() driver.Options {
	opts := driver.Options{Transaction: r.reqCtx.Transaction, Strict: r.d.Strict}
	if r.reqCtx.TenantID != "" {
		opts.SessionVars = map[string]string{driver.SessionVarTenantID: r.reqCtx.TenantID}
	}
	return opts
}

// newHookContext builds the hooks.Context for event and op, carrying the
// request's user and a pipeline-routed Access surface.
func (r *Repository) newHookContext(event hooks.Event, op objectcore.Op) *hooks.Context {
	return &hooks.Context{
		Event:  event,
		Object: r.object,
		Op:     op,
		User:   r.reqCtx.User,
		State:  map[string]any{},
		Access: r.d.NewAccess(r.reqCtx),
	}
}

// triggerHook always fires event against MandatoryHooks (tenancy's
// resolver/filter-injector/mutation-guard, installed there by
// engine.Engine.Start) regardless of IgnoreTriggers, then fires it
// against the skippable user Hooks manager only when IgnoreTriggers is
// not set (spec §9 Open Question: "tenancy and permission hooks still
// run; only user-defined hooks are bypassed"). Pipeline call sites invoke
// this unconditionally; the skip decision lives here, not at the caller.
func (r *Repository) triggerHook(ctx context.Context, event hooks.Event, hc *hooks.Context) error {
	if r.d.MandatoryHooks != nil {
		if err := r.d.MandatoryHooks.Trigger(ctx, event, r.object, hc); err != nil {
			return err
		}
	}
	if r.reqCtx.IgnoreTriggers {
		return nil
	}
	return r.d.Hooks.Trigger(ctx, event, r.object, hc)
}

// errg is the shared errgroup helper for best-effort fan-out used by the
// bulk fallback paths (spec's bulk variants, golang.org/x/sync/errgroup).
func errg(ctx context.Context) (*errgroup.Group, context.Context) {
	return errgroup.WithContext(ctx)
}

// Package engine implements the Engine Facade (spec §4.9): the single
// owned entry point that assembles the metadata registry, drivers, hook
// manager, validation engine and action dispatcher into a
// repository.Dispatcher, runs a plugin lifecycle over them, and hands out
// request-bound repositories and action invocations. Unlike the teacher's
// process-wide generated client, an Engine is an explicit value: nothing
// here is a package-level singleton, so a host can own more than one
// (spec §9 "Global plugin registry -> explicit engine").
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/actions"
	"github.com/syssam/objectcore/driver"
	"github.com/syssam/objectcore/hooks"
	"github.com/syssam/objectcore/metadata"
	"github.com/syssam/objectcore/repository"
	"github.com/syssam/objectcore/validation"
)

// Plugin is installed on an Engine with Use and wired up at Start (spec
// §4.9 "use(plugin) registers a plugin, start() installs all plugins").
// Install receives the engine so it may register hooks, actions, and
// metadata loaders through the accessors below; it runs once, in
// registration order, before any OnStart hook fires.
type Plugin interface {
	Name() string
	Install(eng *Engine) error
}

// StartHook is implemented by a Plugin that needs a post-install setup
// step (e.g. opening a background sweeper); called in registration order
// after every plugin's Install has run.
type StartHook interface {
	OnStart(ctx context.Context) error
}

// StopHook is implemented by a Plugin that owns a resource needing
// explicit teardown; called in reverse registration order from Stop.
type StopHook interface {
	OnStop(ctx context.Context) error
}

// Config are the collaborators an Engine assembles into a
// repository.Dispatcher. Registry and at least one driver under
// "default" are required; the rest default to empty/no-op
// implementations when left nil, matching a driver contract with no
// validation rules, hooks, or actions registered yet.
type Config struct {
	Registry   *metadata.Registry
	Drivers    map[string]driver.Driver
	Validation *validation.Engine
	Policy     objectcore.Policy
	Cache      objectcore.Cache
	Strict     bool
}

// Engine is the owned facade over one Config: it is not a package-level
// singleton, and nothing in this package refuses a second instantiation
// (spec §9 "forbid implicit reinstantiation" is about singletons, not
// about disallowing embedded hosts or tests from building more than one
// Engine side by side).
type Engine struct {
	mu      sync.Mutex
	started bool
	stopped bool

	registry   *metadata.Registry
	drivers    map[string]driver.Driver
	hooks      *hooks.Manager // user-registered, skippable via ignoreTriggers
	mandatory  *hooks.Manager // tenancy/permission hooks, never skipped
	validation *validation.Engine
	actionsD   *actions.Dispatcher
	dispatcher *repository.Dispatcher

	plugins []Plugin
}

// New assembles an Engine from cfg. It does not start the engine; call
// Start once every plugin has been registered with Use.
func New(cfg Config) *Engine {
	if cfg.Drivers == nil {
		cfg.Drivers = map[string]driver.Driver{}
	}
	hm := hooks.New()
	mandatory := hooks.New()
	ad := actions.New()

	d := &repository.Dispatcher{
		Registry:       cfg.Registry,
		Drivers:        cfg.Drivers,
		Hooks:          hm,
		Validation:     cfg.Validation,
		Actions:        ad,
		Policy:         cfg.Policy,
		Cache:          cfg.Cache,
		MandatoryHooks: mandatory,
		Strict:         cfg.Strict,
	}

	return &Engine{
		registry:   cfg.Registry,
		drivers:    cfg.Drivers,
		hooks:      hm,
		mandatory:  mandatory,
		validation: cfg.Validation,
		actionsD:   ad,
		dispatcher: d,
	}
}

// Registry returns the metadata registry a plugin's Install may inspect
// (e.g. to learn every registered object name) or register packages
// into.
func (e *Engine) Registry() *metadata.Registry { return e.registry }

// Hooks returns the skippable user-hook manager.
func (e *Engine) Hooks() *hooks.Manager { return e.hooks }

// MandatoryHooks returns the hook manager whose registrations always run
// regardless of a request's IgnoreTriggers flag (spec §9 Open Question).
// Tenancy's plugin registers against this manager, not Hooks.
func (e *Engine) MandatoryHooks() *hooks.Manager { return e.mandatory }

// Actions returns the action dispatcher a plugin's Install may register
// handlers into.
func (e *Engine) Actions() *actions.Dispatcher { return e.actionsD }

// Driver returns the driver bound to datasource, or false if none is
// registered under that name.
func (e *Engine) Driver(datasource string) (driver.Driver, bool) {
	d, ok := e.drivers[datasource]
	return d, ok
}

// Use registers plugin; Install does not run until Start. Plugins install
// in registration order, matching the repeatable ordering Start/Stop
// guarantee.
func (e *Engine) Use(p Plugin) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plugins = append(e.plugins, p)
}

// Start installs every registered plugin (in registration order), then
// runs each plugin's OnStart hook, then connects every configured driver
// (spec §4.9). Start is not idempotent: calling it twice returns an
// error rather than silently re-running installs.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("engine: already started")
	}

	for _, p := range e.plugins {
		if err := p.Install(e); err != nil {
			return fmt.Errorf("engine: install plugin %q: %w", p.Name(), err)
		}
	}
	for _, p := range e.plugins {
		if sh, ok := p.(StartHook); ok {
			if err := sh.OnStart(ctx); err != nil {
				return fmt.Errorf("engine: start plugin %q: %w", p.Name(), err)
			}
		}
	}
	for name, drv := range e.drivers {
		if err := drv.Connect(ctx); err != nil {
			return fmt.Errorf("engine: connect driver %q: %w", name, err)
		}
	}

	e.started = true
	return nil
}

// Stop calls OnStop on every plugin in reverse registration order, then
// disconnects every driver (spec §4.9 "stop() calls onStop in reverse
// registration order").
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil
	}
	e.stopped = true

	var firstErr error
	for i := len(e.plugins) - 1; i >= 0; i-- {
		if sh, ok := e.plugins[i].(StopHook); ok {
			if err := sh.OnStop(ctx); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("engine: stop plugin %q: %w", e.plugins[i].Name(), err)
			}
		}
	}
	for _, drv := range e.drivers {
		if err := drv.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Context is the immutable per-request context createContext builds
// (spec §4.9): session identity, tenancy/space scoping, and the
// ignoreTriggers flag. It is a thin alias of repository.RequestContext so
// callers at the transport boundary never import the repository package
// directly.
type Context = repository.RequestContext

// ContextOption configures CreateContext.
type ContextOption func(*Context)

// WithUser sets the session user id, roles, and user record.
func WithUser(id string, roles []string, user objectcore.Record) ContextOption {
	return func(c *Context) {
		c.UserID = id
		c.Roles = roles
		c.User = user
	}
}

// WithTenant sets the resolved tenant id.
func WithTenant(tenantID string) ContextOption {
	return func(c *Context) { c.TenantID = tenantID }
}

// WithSpace sets the space id stamped onto created records.
func WithSpace(spaceID string) ContextOption {
	return func(c *Context) { c.SpaceID = spaceID }
}

// WithLang sets the preferred language for validation messages.
func WithLang(lang string) ContextOption {
	return func(c *Context) { c.Lang = lang }
}

// WithIgnoreTriggers sets the ignoreTriggers flag (spec §9 Open
// Question): user-defined hooks are skipped; tenancy/permission hooks
// still run.
func WithIgnoreTriggers() ContextOption {
	return func(c *Context) { c.IgnoreTriggers = true }
}

// CreateContext builds an immutable request context (spec §4.9
// createContext(options)).
func (e *Engine) CreateContext(opts ...ContextOption) Context {
	c := Context{}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Object returns a repository bound to object and reqCtx (spec §4.9
// object(name)).
func (e *Engine) Object(object string, reqCtx Context) *repository.Repository {
	return e.dispatcher.Object(object, reqCtx)
}

// ExecuteAction dispatches to the action registered under object:action
// (spec §4.9 executeAction, §4.6).
func (e *Engine) ExecuteAction(ctx context.Context, object, action string, reqCtx Context, ac *actions.Context) (any, error) {
	if ac.Access == nil {
		ac.Access = e.dispatcher.NewAccess(reqCtx)
	}
	if ac.Object == "" {
		ac.Object = object
	}
	if ac.Action == "" {
		ac.Action = action
	}
	if ac.User == nil {
		ac.User = reqCtx.User
	}
	return e.actionsD.Execute(ctx, object, action, ac)
}

// WithTransaction begins a transaction on datasource and returns reqCtx
// bound to it, for callers that need more than one repository call inside
// one atomic unit (spec §5 "a Tx must never be shared between concurrent
// requests"; the caller owns commit/rollback).
func (e *Engine) WithTransaction(ctx context.Context, datasource string, reqCtx Context) (Context, driver.Tx, error) {
	drv, ok := e.Driver(datasource)
	if !ok {
		return reqCtx, nil, objectcore.NewError(objectcore.CodeInternalError, fmt.Sprintf("engine: no driver registered for datasource %q", datasource))
	}
	tx, err := drv.BeginTransaction(ctx)
	if err != nil {
		return reqCtx, nil, driver.ToEngineError(err)
	}
	return reqCtx.WithTransaction(tx), tx, nil
}

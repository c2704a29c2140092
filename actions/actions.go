// Package actions implements the Action Dispatcher (spec §4.6): custom
// RPC-style operations registered by name against an object and invoked
// through the same restricted data-access surface hooks use.
package actions

import (
	"context"
	"sort"
	"sync"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/hooks"
)

// Context is the action invocation context (spec §4.6): object/action
// names, the record id for record-scoped actions, the typed input
// payload, the session user, and a pipeline-routed data-access surface
// identical to the hook API's.
type Context struct {
	Object string
	Action string
	ID     any
	Input  objectcore.Record
	User   objectcore.Record
	Access hooks.DataAccess
}

// Handler executes a registered action and returns its result.
type Handler func(ctx context.Context, ac *Context) (any, error)

type registration struct {
	handler Handler
	pkg     string
}

// Dispatcher is the Action Dispatcher: handlers registered under
// "object:action" keys (spec §4.6), resolved by name at Execute time.
type Dispatcher struct {
	mu    sync.RWMutex
	byKey map[string]*registration
}

// New returns an empty Dispatcher.
func New() *Dispatcher { return &Dispatcher{byKey: map[string]*registration{}} }

func key(object, action string) string { return object + ":" + action }

// Register binds handler to object's action, tracked under pkg for
// UnregisterPackage.
func (d *Dispatcher) Register(object, action string, handler Handler, pkg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byKey[key(object, action)] = &registration{handler: handler, pkg: pkg}
}

// UnregisterPackage removes every action registered under pkg.
func (d *Dispatcher) UnregisterPackage(pkg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, r := range d.byKey {
		if r.pkg == pkg {
			delete(d.byKey, k)
		}
	}
}

// Execute looks up and runs the handler for object:action, failing with
// objectcore.ActionNotFound when no handler is registered (spec §4.6).
func (d *Dispatcher) Execute(ctx context.Context, object, action string, ac *Context) (any, error) {
	d.mu.RLock()
	r, ok := d.byKey[key(object, action)]
	d.mu.RUnlock()
	if !ok {
		return nil, objectcore.ActionNotFound(object, action)
	}
	return r.handler(ctx, ac)
}

// List enumerates every registered "object:action" key, sorted for
// deterministic output.
func (d *Dispatcher) List() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.byKey))
	for k := range d.byKey {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

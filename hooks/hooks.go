// Package hooks implements the Hook Manager (spec §4.4): event routing
// with wildcard and package scoping over the lifecycle events the
// repository pipeline fires around every operation.
package hooks

import (
	"context"
	"sort"
	"sync"

	"github.com/syssam/objectcore"
)

// Event is a lifecycle event name (spec §4.4).
type Event string

const (
	BeforeFind     Event = "beforeFind"
	AfterFind      Event = "afterFind"
	BeforeCount    Event = "beforeCount"
	AfterCount     Event = "afterCount"
	BeforeCreate   Event = "beforeCreate"
	AfterCreate    Event = "afterCreate"
	BeforeUpdate   Event = "beforeUpdate"
	AfterUpdate    Event = "afterUpdate"
	BeforeDelete   Event = "beforeDelete"
	AfterDelete    Event = "afterDelete"
	BeforeValidate Event = "beforeValidate"
	AfterValidate  Event = "afterValidate"
)

// Wildcard matches every object for a registration.
const Wildcard = "*"

// DataAccess is the restricted, pipeline-routed surface a hook handler uses
// to issue further operations from inside a hook, so recursive calls still
// honour permissions and tenancy (spec §4.4) rather than reaching past the
// pipeline to a driver directly.
type DataAccess interface {
	Find(ctx context.Context, object string, q *objectcore.UnifiedQuery) ([]objectcore.Record, error)
	FindOne(ctx context.Context, object string, idOrQuery any) (objectcore.Record, error)
	Count(ctx context.Context, object string, filters objectcore.Filter) (int, error)
	Create(ctx context.Context, object string, data objectcore.Record) (objectcore.Record, error)
	Update(ctx context.Context, object string, id any, patch objectcore.Record) (objectcore.Record, error)
	Delete(ctx context.Context, object string, id any) (int, error)
}

// Context is the hook invocation context (spec §4.4): the current
// query/data/result slots (populated per the triggering event, the rest
// left zero), previous data for update/delete, the target id, the
// session user, a per-request scratchpad shared across a before/after
// pair, and a pipeline-routed DataAccess.
type Context struct {
	Event  Event
	Object string
	Op     objectcore.Op

	// Query is mutable in beforeFind/beforeCount.
	Query *objectcore.UnifiedQuery
	// Data is mutable in beforeCreate/beforeUpdate.
	Data objectcore.Record
	// Result is set before after* events fire: []objectcore.Record for
	// find, objectcore.Record for the single-record ops, int for
	// count/delete/updateMany/deleteMany.
	Result any

	ID           any
	PreviousData objectcore.Record

	User  objectcore.Record
	State map[string]any

	Access DataAccess
}

// Handler is a registered hook function. Returning an error aborts the
// operation (before*) or the transaction (after*) per spec §4.4 failure
// semantics; the pipeline is responsible for acting on it, not the manager.
type Handler func(ctx context.Context, hc *Context) error

type registration struct {
	event   Event
	object  string // object name, or Wildcard for every object
	pkg     string
	handler Handler
	seq     int64
}

// Manager dispatches registered Handlers by (event, object) with wildcard
// and package scoping (spec §4.4). The zero value is not usable; construct
// with New.
type Manager struct {
	mu   sync.RWMutex
	regs []*registration
	seq  int64
}

// New returns an empty Manager.
func New() *Manager { return &Manager{} }

// Register binds handler to event for object (or Wildcard for every
// object), tracked under pkg so UnregisterPackage can remove it later
// (spec §4.1 unregister_package).
func (m *Manager) Register(event Event, object string, handler Handler, pkg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.regs = append(m.regs, &registration{event: event, object: object, pkg: pkg, handler: handler, seq: m.seq})
}

// UnregisterPackage removes every hook registered under pkg.
func (m *Manager) UnregisterPackage(pkg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.regs[:0]
	for _, r := range m.regs {
		if r.pkg != pkg {
			kept = append(kept, r)
		}
	}
	m.regs = kept
}

// Count returns the number of handlers currently registered for event and
// object (exact match only, not counting wildcard registrations); useful
// for tests asserting registration/unregistration took effect.
func (m *Manager) Count(event Event, object string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.regs {
		if r.event == event && r.object == object {
			n++
		}
	}
	return n
}

// Trigger runs every handler registered for event whose object matches
// (exact or Wildcard), in registration order with wildcard-registered
// hooks interleaved by registration timestamp (spec §7 invariant 4). It
// stops at the first handler error, per the before*/after* failure
// semantics the pipeline applies.
func (m *Manager) Trigger(ctx context.Context, event Event, object string, hc *Context) error {
	m.mu.RLock()
	matched := make([]*registration, 0, len(m.regs))
	for _, r := range m.regs {
		if r.event == event && (r.object == object || r.object == Wildcard) {
			matched = append(matched, r)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	for _, r := range matched {
		if err := r.handler(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}

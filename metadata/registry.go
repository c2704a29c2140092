package metadata

import (
	"sync"

	"github.com/syssam/objectcore"
)

// Kind is the type tag a registry entry is filed under (spec §4.1
// `register(type, item)`).
type Kind string

const (
	KindObject Kind = "object"
	KindRole   Kind = "role"
)

type entry struct {
	item any
	pkg  string
}

// Registry is the Metadata Registry (spec §4.1): a read-mostly store of
// object definitions and roles, keyed by (kind, id), with package-scoped
// ownership so a package's contributions can be hot-swapped without
// leaking ghost entries (spec §3.7). Concurrent reads are unlocked in the
// steady state; registration and unregistration take the exclusive path
// (spec §5 "Shared resources").
type Registry struct {
	mu    sync.RWMutex
	items map[Kind]map[string]entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{items: make(map[Kind]map[string]entry)}
}

// RegisterObject registers obj under pkg, deep-merging with any existing
// definition for the same id per the rules in spec §3.7. Registration is
// idempotent: registering an identical definition twice leaves the merged
// result unchanged.
func (r *Registry) RegisterObject(pkg string, obj *ObjectDef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.bucket(KindObject)
	obj = obj.clone()
	obj.pkg = pkg

	if existing, ok := bucket[obj.ID]; ok {
		prev := existing.item.(*ObjectDef)
		merged := prev.merge(obj)
		merged.pkg = pkg
		bucket[obj.ID] = entry{item: merged, pkg: pkg}
		return
	}
	bucket[obj.ID] = entry{item: obj, pkg: pkg}
}

// RegisterRole registers a role under pkg. Unlike objects, roles replace
// wholesale on re-registration (spec §4.1 only specifies merge semantics
// for field/action/listener/index maps, which are object-specific).
func (r *Registry) RegisterRole(pkg string, role *objectcore.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *role
	cp.Statements = append([]objectcore.Statement(nil), role.Statements...)
	cp.Inherits = append([]string(nil), role.Inherits...)
	r.bucket(KindRole)[role.Name] = entry{item: &cp, pkg: pkg}
}

// Object returns the merged object definition for id, or nil if absent. The
// returned value is never a partially-merged view: merges happen at
// registration time, not at read time (spec §4.1 invariant).
func (r *Registry) Object(id string) (*ObjectDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[KindObject][id]
	if !ok {
		return nil, false
	}
	return e.item.(*ObjectDef), true
}

// Objects returns every registered object definition.
func (r *Registry) Objects() []*ObjectDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bucket := r.items[KindObject]
	out := make([]*ObjectDef, 0, len(bucket))
	for _, e := range bucket {
		out = append(out, e.item.(*ObjectDef))
	}
	return out
}

// Role resolves a role by name, following its Inherits chain and flattening
// every ancestor's statements into the result (spec §3.1 "Role"). Cycles in
// the inheritance graph are broken silently: a role already visited is not
// revisited.
func (r *Registry) Role(name string) (*objectcore.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveRole(name, map[string]bool{})
}

func (r *Registry) resolveRole(name string, visited map[string]bool) (*objectcore.Role, bool) {
	if visited[name] {
		return nil, false
	}
	visited[name] = true

	e, ok := r.items[KindRole][name]
	if !ok {
		return nil, false
	}
	role := e.item.(*objectcore.Role)
	flattened := &objectcore.Role{
		Name:       role.Name,
		Statements: append([]objectcore.Statement(nil), role.Statements...),
	}
	for _, parent := range role.Inherits {
		if p, ok := r.resolveRole(parent, visited); ok {
			flattened.Statements = append(flattened.Statements, p.Statements...)
		}
	}
	return flattened, true
}

// Has reports whether an item of the given kind and id is registered.
func (r *Registry) Has(kind Kind, id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[kind][id]
	return ok
}

// List returns every id registered under kind.
func (r *Registry) List(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bucket := r.items[kind]
	out := make([]string, 0, len(bucket))
	for id := range bucket {
		out = append(out, id)
	}
	return out
}

// Unregister removes a single item.
func (r *Registry) Unregister(kind Kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items[kind], id)
}

// UnregisterPackage removes every item, of every kind, owned by pkg (spec
// §3.7 "a package may be wholesale unregistered").
func (r *Registry) UnregisterPackage(pkg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bucket := range r.items {
		for id, e := range bucket {
			if e.pkg == pkg {
				delete(bucket, id)
			}
		}
	}
}

func (r *Registry) bucket(kind Kind) map[string]entry {
	b, ok := r.items[kind]
	if !ok {
		b = make(map[string]entry)
		r.items[kind] = b
	}
	return b
}

// ValidateRelationships checks that every relationship field's target
// object exists in the registry (spec §3.6 invariant), returning one
// *objectcore.Error per broken reference.
func (r *Registry) ValidateRelationships() []*objectcore.Error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []*objectcore.Error
	for _, e := range r.items[KindObject] {
		obj := e.item.(*ObjectDef)
		for _, f := range obj.Fields {
			target := f.RelationTarget()
			if target == "" {
				continue
			}
			if _, ok := r.items[KindObject][target]; !ok {
				errs = append(errs, objectcore.NewError(objectcore.CodeInvalidRequest,
					"object "+obj.ID+" field "+f.Name()+" targets unknown object "+target))
			}
		}
	}
	return errs
}

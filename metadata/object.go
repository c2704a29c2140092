package metadata

import (
	"reflect"
	"slices"
)

// ActionScope is whether an action operates on a single record or globally
// (spec §3.1).
type ActionScope string

const (
	ActionScopeRecord ActionScope = "record"
	ActionScopeGlobal ActionScope = "global"
)

// ActionDef is an action definition (spec §3.1): the input parameter map
// uses the same FieldDef vocabulary as object fields.
type ActionDef struct {
	Name        string
	Scope       ActionScope
	Label       string
	Icon        string
	Input       map[string]*FieldDef
	Confirm     string
	Handler     string // name resolved against actions.Dispatcher
}

// ListenerSet maps a lifecycle event name (spec §4.4) to a handler
// reference, resolved the same way action handlers are.
type ListenerSet map[string]string

// IndexDef is a named, possibly-unique index over a field list. Index lists
// are concatenated across merged registrations with duplicate suppression
// by name (spec §3.7).
type IndexDef struct {
	Name   string
	Fields []string
	Unique bool
}

// ObjectDef is an object definition (spec §3.1).
type ObjectDef struct {
	ID          string
	Label       string
	Icon        string
	Description string

	Fields    map[string]*FieldDef
	Actions   map[string]*ActionDef
	Listeners ListenerSet
	Indexes   []IndexDef

	// InitialData holds seed records declared with the object. The loader
	// (metadata/loader.go) copies it from YAML and the registry keeps it;
	// neither of them, nor any driver, inserts these records.
	InitialData []map[string]any

	// Customizable is false for system objects, which reject end-user
	// schema edits.
	Customizable bool

	// Datasource names the driver instance this object is served from;
	// "default" when unset.
	Datasource string

	// Rules are the object's validation rules (spec §3.1, §4.5).
	Rules []ValidationRule

	// pkg is the owning package, tracked by the registry for
	// unregister_package; not part of the object's own definition.
	pkg string
}

// NewObject returns an empty ObjectDef with the given id.
func NewObject(id string) *ObjectDef {
	return &ObjectDef{
		ID:         id,
		Fields:     map[string]*FieldDef{},
		Actions:    map[string]*ActionDef{},
		Listeners:  ListenerSet{},
		Datasource: "default",
	}
}

// WithField adds or replaces a field definition and returns the receiver for
// chaining.
func (o *ObjectDef) WithField(f *FieldDef) *ObjectDef {
	o.Fields[f.Name()] = f
	return o
}

// WithAction adds or replaces an action definition.
func (o *ObjectDef) WithAction(a *ActionDef) *ObjectDef {
	o.Actions[a.Name] = a
	return o
}

// WithRule appends a validation rule.
func (o *ObjectDef) WithRule(r ValidationRule) *ObjectDef {
	o.Rules = append(o.Rules, r)
	return o
}

// clone returns a deep-enough copy of o so the registry can merge into it
// without retaining aliases into the caller's original definition.
func (o *ObjectDef) clone() *ObjectDef {
	c := *o
	c.Fields = make(map[string]*FieldDef, len(o.Fields))
	for k, v := range o.Fields {
		c.Fields[k] = v.clone()
	}
	c.Actions = make(map[string]*ActionDef, len(o.Actions))
	for k, v := range o.Actions {
		a := *v
		c.Actions[k] = &a
	}
	c.Listeners = make(ListenerSet, len(o.Listeners))
	for k, v := range o.Listeners {
		c.Listeners[k] = v
	}
	c.Indexes = append([]IndexDef(nil), o.Indexes...)
	c.InitialData = append([]map[string]any(nil), o.InitialData...)
	c.Rules = append([]ValidationRule(nil), o.Rules...)
	return &c
}

// merge folds next's definitions onto o per the conflict-resolution rules
// of spec §3.7: top-level scalar properties are overridden; field maps are
// deep-merged per-field (later fields update earlier ones, not replace the
// whole map); action and listener maps are merged key-by-key; index lists
// are concatenated with duplicate suppression by name.
func (o *ObjectDef) merge(next *ObjectDef) *ObjectDef {
	merged := o.clone()

	if next.Label != "" {
		merged.Label = next.Label
	}
	if next.Icon != "" {
		merged.Icon = next.Icon
	}
	if next.Description != "" {
		merged.Description = next.Description
	}
	if next.Datasource != "" {
		merged.Datasource = next.Datasource
	}
	merged.Customizable = next.Customizable

	for name, f := range next.Fields {
		merged.Fields[name] = f.clone()
	}
	for name, a := range next.Actions {
		cp := *a
		merged.Actions[name] = &cp
	}
	for event, handler := range next.Listeners {
		merged.Listeners[event] = handler
	}

	seen := make(map[string]bool, len(merged.Indexes))
	for _, idx := range merged.Indexes {
		seen[idx.Name] = true
	}
	for _, idx := range next.Indexes {
		if !seen[idx.Name] {
			merged.Indexes = append(merged.Indexes, idx)
			seen[idx.Name] = true
		}
	}

	for _, row := range next.InitialData {
		if !slices.ContainsFunc(merged.InitialData, func(e map[string]any) bool { return reflect.DeepEqual(e, row) }) {
			merged.InitialData = append(merged.InitialData, row)
		}
	}
	for _, rule := range next.Rules {
		if !slices.ContainsFunc(merged.Rules, func(e ValidationRule) bool { return reflect.DeepEqual(e, rule) }) {
			merged.Rules = append(merged.Rules, rule)
		}
	}

	return merged
}

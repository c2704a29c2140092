package objectcore

import "context"

// Policy is the interface every privacy/tenancy rule set authored against
// the engine implements: decide whether a query or mutation may proceed,
// optionally narrowing it. privacy.Policies combines many of these with
// Allow/Deny/Skip short-circuiting (see the privacy package doc).
type Policy interface {
	EvalQuery(ctx context.Context, q Query) error
	EvalMutation(ctx context.Context, m Mutation) error
}

// Statement is one policy statement of a Role (spec §3.1): the verbs it
// allows, an optional row-level filter expression, and field-level access
// lists.
type Statement struct {
	// Actions this statement allows; ActionAny ("*") allows every action.
	Actions []Action
	// RowFilter is ANDed into every query/mutation authorized under this
	// statement (row-level security).
	RowFilter Filter
	// AllowedFields restricts which fields may be read/written; empty means
	// "all fields not otherwise restricted".
	AllowedFields []string
	// ReadonlyFields may be read but never written by callers holding this
	// statement.
	ReadonlyFields []string
}

// Allows reports whether the statement authorizes action.
func (s Statement) Allows(action Action) bool {
	for _, a := range s.Actions {
		if a == ActionAny || a == action {
			return true
		}
	}
	return false
}

// Role is a named aggregation of policy statements plus inherited roles
// (spec §3.1). Inherited roles are resolved by the metadata registry at
// lookup time (metadata.Registry.Role), so Role itself only stores names.
type Role struct {
	Name       string
	Statements []Statement
	Inherits   []string
}

// Cache is a key/value store with optional per-entry expiry (ttlSeconds),
// implemented by package cache.
type Cache interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

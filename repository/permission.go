package repository

import (
	"context"

	"github.com/syssam/objectcore"
)

// grant is the resolved effect of every Statement across the caller's
// roles that authorizes action (spec §3.1 Role/Statement, §4.8 step 3).
type grant struct {
	allowed        bool
	rowFilter      objectcore.Filter // zero means unrestricted
	allowedFields  []string         // nil means unrestricted
	readonlyFields map[string]bool
}

// resolveGrant folds every Statement, across every role bound to the
// request, that authorizes action into a single permissive grant: a
// caller is authorized if any granting statement allows it unconditionally
// (RowFilter is dropped), otherwise the row filters of every authorizing
// statement are ORed together as alternative access paths. AllowedFields
// similarly loosens to "unrestricted" the moment one granting statement
// carries no restriction; readonlyFields accumulate across statements
// since a single statement marking a field readonly is enough to protect
// it.
//
// A request with no roles bound at all is treated as unrestricted: the
// engine is deployed with RBAC off unless roles are registered and the
// caller is assigned one, matching the repository's behaviour with no
// metadata.Registry roles configured at all.
func (r *Repository) resolveGrant(action objectcore.Action) grant {
	if len(r.reqCtx.Roles) == 0 {
		return grant{allowed: true}
	}

	var (
		allowed          bool
		unconditional    bool
		rowFilters       []objectcore.Filter
		allowedFields    []string
		fieldsUnrestrict bool
		readonly         = map[string]bool{}
		matchedAnyRole   bool
	)

	for _, roleName := range r.reqCtx.Roles {
		role, ok := r.d.Registry.Role(roleName)
		if !ok {
			continue
		}
		matchedAnyRole = true
		for _, stmt := range role.Statements {
			if !stmt.Allows(action) {
				continue
			}
			allowed = true
			if stmt.RowFilter.IsZero() {
				unconditional = true
			} else {
				rowFilters = append(rowFilters, stmt.RowFilter)
			}
			if len(stmt.AllowedFields) == 0 {
				fieldsUnrestrict = true
			} else {
				allowedFields = append(allowedFields, stmt.AllowedFields...)
			}
			for _, f := range stmt.ReadonlyFields {
				readonly[f] = true
			}
		}
	}

	// No matching roles at all (e.g. caller's roles are not registered) is
	// distinct from "roles matched but none authorize the action": the
	// former degrades to unrestricted, same as no roles configured, the
	// latter denies.
	if !matchedAnyRole {
		return grant{allowed: true}
	}

	g := grant{allowed: allowed, readonlyFields: readonly}
	if allowed && !unconditional {
		if len(rowFilters) == 1 {
			g.rowFilter = rowFilters[0]
		} else if len(rowFilters) > 1 {
			g.rowFilter = objectcore.Or(rowFilters...)
		}
	}
	if allowed && !fieldsUnrestrict {
		g.allowedFields = allowedFields
	}
	return g
}

// maskRead strips fields outside g.allowedFields from rec (spec §4.8 step
// 11 field-level security), always keeping "id".
func (g grant) maskRead(rec objectcore.Record) objectcore.Record {
	if g.allowedFields == nil || rec == nil {
		return rec
	}
	keep := make(map[string]bool, len(g.allowedFields)+1)
	keep["id"] = true
	for _, f := range g.allowedFields {
		keep[f] = true
	}
	out := make(objectcore.Record, len(rec))
	for k, v := range rec {
		if keep[k] {
			out[k] = v
		}
	}
	return out
}

// maskWrite strips readonly and disallowed fields from a create/update
// payload before it reaches validation and the driver (spec §4.8 step 3
// FLS on the write path).
func (g grant) maskWrite(data objectcore.Record) objectcore.Record {
	if data == nil {
		return data
	}
	out := data.Clone()
	for k := range out {
		if g.readonlyFields[k] {
			delete(out, k)
			continue
		}
		if g.allowedFields != nil && !contains(g.allowedFields, k) && k != "id" {
			delete(out, k)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// withRowFilter ANDs g's row filter into f, if any (spec §4.8 step 6).
func (g grant) withRowFilter(f objectcore.Filter) objectcore.Filter {
	if g.rowFilter.IsZero() {
		return f
	}
	if f.IsZero() {
		return g.rowFilter
	}
	return objectcore.And(f, g.rowFilter)
}

// checkQueryPolicy additionally evaluates the Dispatcher's cross-cutting
// objectcore.Policy, if one is configured, layered on top of role
// resolution (spec §4 "Privacy" complements Role/Statement RBAC).
func (r *Repository) checkQueryPolicy(ctx context.Context, q objectcore.Query) error {
	if r.d.Policy == nil {
		return nil
	}
	if err := r.d.Policy.EvalQuery(ctx, q); err != nil {
		return toForbidden(err)
	}
	return nil
}

func (r *Repository) checkMutationPolicy(ctx context.Context, m objectcore.Mutation) error {
	if r.d.Policy == nil {
		return nil
	}
	if err := r.d.Policy.EvalMutation(ctx, m); err != nil {
		return toForbidden(err)
	}
	return nil
}

func toForbidden(err error) error {
	if _, ok := err.(*objectcore.Error); ok {
		return err
	}
	return objectcore.Forbidden(err.Error())
}

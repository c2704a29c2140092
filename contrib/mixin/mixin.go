// Package mixin provides common, ready-to-use bundles of field definitions.
//
// These mixins are OPTIONAL starting points: each one is a plain function
// returning a []*metadata.FieldDef that an object definition can fold into
// its own field map with ObjectDef.WithField. There is no base type to
// embed — metadata.ObjectDef is a runtime value, not a compile-time schema,
// so a mixin is just a field-producing function rather than an interface
// implementation.
//
// Available bundles:
//   - CreateTime: adds created_at
//   - UpdateTime: adds updated_at
//   - Time: CreateTime + UpdateTime
//   - ID: adds a UUID primary key with auto-generation
//   - SoftDelete: adds deleted_at
//   - TenantID: adds a tenant field (default name tenant_id)
//   - TimeSoftDelete: Time + SoftDelete
//   - Audit: adds created_by/updated_by
//
// Usage:
//
//	obj := metadata.NewObject("invoices")
//	for _, f := range mixin.Time() {
//	    obj.WithField(f)
//	}
//	for _, f := range mixin.SoftDelete() {
//	    obj.WithField(f)
//	}
package mixin

import (
	"github.com/syssam/objectcore/metadata"
)

// CreateTime returns the created_at field: immutable and stamped by the
// repository pipeline's server-managed field list
// (objectcore.ServerStampedFields), not by a field-level default.
func CreateTime() []*metadata.FieldDef {
	return []*metadata.FieldDef{
		metadata.DateTime("created_at").Immutable(),
	}
}

// UpdateTime returns the updated_at field: defaulted and re-stamped on
// every mutation by the repository pipeline (spec §4.8 step 8).
func UpdateTime() []*metadata.FieldDef {
	return []*metadata.FieldDef{
		metadata.DateTime("updated_at"),
	}
}

// Time composes CreateTime and UpdateTime.
func Time() []*metadata.FieldDef {
	return append(CreateTime(), UpdateTime()...)
}

// ID returns a UUID primary key field, auto-generated by the driver when a
// create payload omits "id" (spec §4.3).
func ID() []*metadata.FieldDef {
	return []*metadata.FieldDef{
		metadata.String("id").Immutable(),
	}
}

// SoftDelete returns the optional deleted_at field used by the soft-delete
// convention. It only defines the field: no hook or driver excludes rows
// where it is set, so finds and counts still return them.
func SoftDelete() []*metadata.FieldDef {
	return []*metadata.FieldDef{
		metadata.DateTime("deleted_at").Optional(),
	}
}

// TenantID returns the tenant field used for multi-tenant row isolation,
// named field (pass "tenant_id" for the default). The field is immutable to
// prevent accidental tenant reassignment; the tenancy Plugin's beforeUpdate
// guard rejects such a change as well.
func TenantID(field string) []*metadata.FieldDef {
	return []*metadata.FieldDef{
		metadata.String(field).Immutable().Required(),
	}
}

// TimeSoftDelete composes Time and SoftDelete.
func TimeSoftDelete() []*metadata.FieldDef {
	return append(Time(), SoftDelete()...)
}

// Audit returns created_by/updated_by fields. created_by is stamped on
// create by the repository pipeline's server-managed field list
// (objectcore.ServerStampedFields); updated_by is not in that list, so the
// pipeline never stamps it.
func Audit() []*metadata.FieldDef {
	return []*metadata.FieldDef{
		metadata.String("created_by").Immutable(),
		metadata.String("updated_by"),
	}
}

// Package metadata implements the Metadata Registry (spec §4.1) and the
// data model it stores (spec §3.1): object and field definitions, actions,
// listeners, validation rules, and roles. Field definitions are built with
// the teacher's chained-builder idiom (schema/field.String("x").Optional()),
// generalized from a compile-time schema annotation into a runtime value the
// registry stores and the rest of the engine consults by name.
package metadata

// FieldType is the closed enumeration of field kinds a FieldDef may take
// (spec §3.1).
type FieldType string

const (
	FieldString       FieldType = "string"
	FieldText         FieldType = "text" // long-form textual variant
	FieldInt          FieldType = "int"
	FieldFloat        FieldType = "float"
	FieldBool         FieldType = "bool"
	FieldDate         FieldType = "date"
	FieldTime         FieldType = "time"
	FieldDateTime     FieldType = "datetime"
	FieldImage        FieldType = "image"
	FieldFile         FieldType = "file"
	FieldLookup       FieldType = "lookup"       // relationship: reference to one other record
	FieldMasterDetail FieldType = "master_detail" // relationship: owning/parent-child
	FieldChoice       FieldType = "choice"
	FieldFormula      FieldType = "formula"
	FieldSummary      FieldType = "summary"
	FieldAutoNumber   FieldType = "auto_number"
	FieldPassword     FieldType = "password"
	FieldEmail        FieldType = "email"
	FieldURL          FieldType = "url"
	FieldPhone        FieldType = "phone"
	FieldLocation     FieldType = "location"
	FieldVector       FieldType = "vector"
	FieldNestedObject FieldType = "nested_object"
	FieldGrid         FieldType = "grid"
)

// Option is one label/value pair of a choice field's enumeration.
type Option struct {
	Label string
	Value string
}

// FieldDef is a field definition (spec §3.1): type, flags, default, the
// validation block, and type-specific extras (relationship target, choice
// options, numeric/length bounds, pattern).
type FieldDef struct {
	name string
	typ  FieldType

	label        string
	help         string
	required     bool
	unique       bool
	readonly     bool
	hidden       bool
	multiple     bool
	customizable bool

	defaultValue any
	validation   *ValidationBlock

	relationTarget string
	options        []Option
}

// newField constructs a FieldDef of the given type. Unexported: callers use
// the typed constructors below (String, Int, Lookup, ...), matching the
// teacher's field.String/field.Int/field.Time constructor set.
func newField(name string, typ FieldType) *FieldDef {
	return &FieldDef{name: name, typ: typ}
}

// String declares a short textual field.
func String(name string) *FieldDef { return newField(name, FieldString) }

// Text declares a long-form textual field.
func Text(name string) *FieldDef { return newField(name, FieldText) }

// Int declares an integer numeric field.
func Int(name string) *FieldDef { return newField(name, FieldInt) }

// Float declares a floating-point numeric field.
func Float(name string) *FieldDef { return newField(name, FieldFloat) }

// Bool declares a boolean field.
func Bool(name string) *FieldDef { return newField(name, FieldBool) }

// Date declares a calendar-date field.
func Date(name string) *FieldDef { return newField(name, FieldDate) }

// Time declares a wall-clock time field.
func Time(name string) *FieldDef { return newField(name, FieldTime) }

// DateTime declares a combined date+time field.
func DateTime(name string) *FieldDef { return newField(name, FieldDateTime) }

// Image declares an image media field.
func Image(name string) *FieldDef { return newField(name, FieldImage) }

// File declares an arbitrary file media field.
func File(name string) *FieldDef { return newField(name, FieldFile) }

// Lookup declares a to-one relationship field targeting object.
func Lookup(name, object string) *FieldDef {
	f := newField(name, FieldLookup)
	f.relationTarget = object
	return f
}

// MasterDetail declares an owning relationship field targeting object; the
// child record's lifecycle is bound to its master.
func MasterDetail(name, object string) *FieldDef {
	f := newField(name, FieldMasterDetail)
	f.relationTarget = object
	return f
}

// Choice declares an enumerated field over the given options.
func Choice(name string, options ...Option) *FieldDef {
	f := newField(name, FieldChoice)
	f.options = options
	return f
}

// Formula declares a computed, read-only field.
func Formula(name string) *FieldDef { return newField(name, FieldFormula).Immutable() }

// Summary declares a rollup/aggregate field over a relationship.
func Summary(name string) *FieldDef { return newField(name, FieldSummary).Immutable() }

// AutoNumber declares a sequence-generated field.
func AutoNumber(name string) *FieldDef { return newField(name, FieldAutoNumber).Immutable() }

// Password declares a write-only, hidden-on-read credential field.
func Password(name string) *FieldDef { return newField(name, FieldPassword).Hide() }

// Email declares a string field validated against the built-in email format.
func Email(name string) *FieldDef {
	f := newField(name, FieldEmail)
	f.validation = &ValidationBlock{Format: FormatEmail}
	return f
}

// URL declares a string field validated against the built-in URL format.
func URL(name string) *FieldDef {
	f := newField(name, FieldURL)
	f.validation = &ValidationBlock{Format: FormatURL}
	return f
}

// Phone declares a phone-number field.
func Phone(name string) *FieldDef { return newField(name, FieldPhone) }

// Location declares a geo-coordinate field.
func Location(name string) *FieldDef { return newField(name, FieldLocation) }

// Vector declares a fixed-dimension embedding field.
func Vector(name string) *FieldDef { return newField(name, FieldVector) }

// NestedObject declares a field whose value is itself a record-shaped map.
func NestedObject(name string) *FieldDef { return newField(name, FieldNestedObject) }

// Grid declares a field whose value is a list of record-shaped maps.
func Grid(name string) *FieldDef { return newField(name, FieldGrid).Multiple() }

// Name returns the field's name.
func (f *FieldDef) Name() string { return f.name }

// Type returns the field's declared type.
func (f *FieldDef) Type() FieldType { return f.typ }

// Label sets the human-facing label.
func (f *FieldDef) Label(label string) *FieldDef { f.label = label; return f }

// Help sets the help text.
func (f *FieldDef) Help(help string) *FieldDef { f.help = help; return f }

// Required marks the field as required.
func (f *FieldDef) Required() *FieldDef { f.required = true; return f }

// Optional marks the field as not required (the default).
func (f *FieldDef) Optional() *FieldDef { f.required = false; return f }

// Unique marks the field as subject to a uniqueness validation rule.
func (f *FieldDef) Unique() *FieldDef { f.unique = true; return f }

// Immutable marks the field readonly after creation.
func (f *FieldDef) Immutable() *FieldDef { f.readonly = true; return f }

// Hide marks the field hidden from default projections.
func (f *FieldDef) Hide() *FieldDef { f.hidden = true; return f }

// Multiple marks the field as holding a list of values.
func (f *FieldDef) Multiple() *FieldDef { f.multiple = true; return f }

// Customizable marks the field as end-user customizable metadata.
func (f *FieldDef) Customizable() *FieldDef { f.customizable = true; return f }

// Default sets the field's default value, exposed through DefaultValue.
// Neither the drivers nor the repository pipeline fill it into a create
// payload that omits this field.
func (f *FieldDef) Default(v any) *FieldDef { f.defaultValue = v; return f }

// Validate attaches a validation block (spec §3.3) to the field.
func (f *FieldDef) Validate(v ValidationBlock) *FieldDef { f.validation = &v; return f }

// ensureValidation returns f's validation block, allocating one if absent,
// so the Min/Max/Pattern shorthands can populate the same block Validate
// and the built-in format checkers (checkFormat/checkBounds) consult.
func (f *FieldDef) ensureValidation() *ValidationBlock {
	if f.validation == nil {
		f.validation = &ValidationBlock{}
	}
	return f.validation
}

// Min sets an inclusive numeric lower bound.
func (f *FieldDef) Min(min float64) *FieldDef { f.ensureValidation().Min = &min; return f }

// Max sets an inclusive numeric upper bound.
func (f *FieldDef) Max(max float64) *FieldDef { f.ensureValidation().Max = &max; return f }

// MinLength sets an inclusive lower bound on the string representation's
// length.
func (f *FieldDef) MinLength(n int) *FieldDef { f.ensureValidation().MinLength = &n; return f }

// MaxLength sets an inclusive upper bound on the string representation's
// length.
func (f *FieldDef) MaxLength(n int) *FieldDef { f.ensureValidation().MaxLength = &n; return f }

// Pattern sets a regular expression the field's string representation must
// match.
func (f *FieldDef) Pattern(re string) *FieldDef { f.ensureValidation().Pattern = re; return f }

// IsRequired reports whether the field is required.
func (f *FieldDef) IsRequired() bool { return f.required }

// IsUnique reports whether the field carries a uniqueness constraint.
func (f *FieldDef) IsUnique() bool { return f.unique }

// IsReadonly reports whether the field rejects writes after creation.
func (f *FieldDef) IsReadonly() bool { return f.readonly }

// IsHidden reports whether the field is excluded from default projections.
func (f *FieldDef) IsHidden() bool { return f.hidden }

// IsMultiple reports whether the field holds a list of values.
func (f *FieldDef) IsMultiple() bool { return f.multiple }

// RelationTarget returns the target object name for lookup/master-detail
// fields, or "" otherwise.
func (f *FieldDef) RelationTarget() string { return f.relationTarget }

// Options returns the choice field's label/value pairs.
func (f *FieldDef) Options() []Option { return f.options }

// DefaultValue returns the field's configured default, if any.
func (f *FieldDef) DefaultValue() any { return f.defaultValue }

// Validation returns the field's validation block, or nil.
func (f *FieldDef) Validation() *ValidationBlock { return f.validation }

// clone returns a shallow copy of f, used by the registry when merging field
// maps across registrations so neither side's FieldDef is mutated in place.
func (f *FieldDef) clone() *FieldDef {
	c := *f
	c.options = append([]Option(nil), f.options...)
	return &c
}

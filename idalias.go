package objectcore

// IDAlias performs the inbound/outbound "id" <-> native-key mapping every
// driver must apply transparently (spec §3.5): queries, sorts and
// projections may mention either name; results and writes always expose
// "id", never the native name, and updates never rewrite the identifier.
type IDAlias struct {
	// Native is the back-end's native identifier column/field name, e.g.
	// "_id" for a document store. Empty means the native name is already
	// "id" and no translation is necessary.
	Native string
}

// In translates a caller-supplied field name ("id" or the native name) to
// the native name the driver should use internally.
func (a IDAlias) In(field string) string {
	if a.Native != "" && field == "id" {
		return a.Native
	}
	return field
}

// Out translates a driver-internal field name back to "id" when it is the
// native identifier column.
func (a IDAlias) Out(field string) string {
	if a.Native != "" && field == a.Native {
		return "id"
	}
	return field
}

// Record rewrites every top-level occurrence of the native identifier key
// in rec to "id", never exposing the native name outbound. It mutates and
// returns rec for chaining.
func (a IDAlias) Record(rec Record) Record {
	if a.Native == "" || rec == nil {
		return rec
	}
	if v, ok := rec[a.Native]; ok {
		rec["id"] = v
		delete(rec, a.Native)
	}
	return rec
}

// Filter rewrites every Criterion field named "id" to the native name, and
// every field already named the native name is left untouched (both
// spellings are accepted inbound).
func (a IDAlias) Filter(f Filter) Filter {
	if a.Native == "" {
		return f
	}
	if f.IsZero() {
		return f
	}
	if f.IsLeaf() {
		c := *f.Criterion
		c.Field = a.In(c.Field)
		return Filter{Criterion: &c}
	}
	g := *f.Group
	children := make([]Filter, len(g.Children))
	for i, c := range g.Children {
		children[i] = a.Filter(c)
	}
	g.Children = children
	return Filter{Group: &g}
}

// Sort rewrites "id" sort terms to the native name.
func (a IDAlias) Sort(sorts []Sort) []Sort {
	if a.Native == "" {
		return sorts
	}
	out := make([]Sort, len(sorts))
	for i, s := range sorts {
		s.Field = a.In(s.Field)
		out[i] = s
	}
	return out
}

// Fields rewrites "id" projection fields to the native name.
func (a IDAlias) Fields(fields []string) []string {
	if a.Native == "" {
		return fields
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = a.In(f)
	}
	return out
}

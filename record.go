package objectcore

import "time"

// Record is a single stored document: a mapping from field name to value.
// The engine stays generic over payload shape; typed access is a concern
// of the metadata field-type table, consulted at validation time, not of
// the driver layer.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the record's logical identifier (the "id" alias; see the
// identity invariants in driver.Driver's doc comment).
func (r Record) ID() (any, bool) {
	v, ok := r["id"]
	return v, ok
}

// Op identifies a repository operation. It is a bitmask so hook
// registrations and policy statements can match a set of operations.
type Op uint16

const (
	OpFind Op = 1 << iota
	OpFindOne
	OpCount
	OpCreate
	OpUpdate
	OpDelete
	OpCreateMany
	OpUpdateMany
	OpDeleteMany
	OpAggregate
	OpDistinct
	OpFindOneAndUpdate
)

// OpRead is every read-shaped operation.
const OpRead = OpFind | OpFindOne | OpCount | OpAggregate | OpDistinct

// OpWrite is every mutating operation.
const OpWrite = OpCreate | OpUpdate | OpDelete | OpCreateMany | OpUpdateMany | OpDeleteMany | OpFindOneAndUpdate

// Is reports whether op is a member of the receiver bitmask.
func (o Op) Is(op Op) bool { return o&op != 0 }

// String renders the operation's canonical camelCase name, matching the
// unified request envelope's `op` field vocabulary.
func (o Op) String() string {
	switch o {
	case OpFind:
		return "find"
	case OpFindOne:
		return "findOne"
	case OpCount:
		return "count"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpCreateMany:
		return "createMany"
	case OpUpdateMany:
		return "updateMany"
	case OpDeleteMany:
		return "deleteMany"
	case OpAggregate:
		return "aggregate"
	case OpDistinct:
		return "distinct"
	case OpFindOneAndUpdate:
		return "findOneAndUpdate"
	default:
		return "unknown"
	}
}

// ParseOp maps the canonical name back to an Op.
func ParseOp(s string) (Op, bool) {
	for _, op := range []Op{
		OpFind, OpFindOne, OpCount, OpCreate, OpUpdate, OpDelete,
		OpCreateMany, OpUpdateMany, OpDeleteMany, OpAggregate, OpDistinct, OpFindOneAndUpdate,
	} {
		if op.String() == s {
			return op, true
		}
	}
	return 0, false
}

// Action is one of the four policy-statement verbs plus the "*" wildcard
// (spec §3.1 Policy statement). It is distinct from Op: a policy is
// authored against the coarser CRUD verbs, while the pipeline dispatches
// finer-grained operations (e.g. OpCreateMany still checks the "create"
// action).
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionAny    Action = "*"
)

// ActionForOp maps a repository Op to the policy Action it is authorized
// under.
func ActionForOp(op Op) Action {
	switch {
	case op.Is(OpRead):
		return ActionRead
	case op.Is(OpCreate | OpCreateMany):
		return ActionCreate
	case op.Is(OpUpdate | OpUpdateMany | OpFindOneAndUpdate):
		return ActionUpdate
	case op.Is(OpDelete | OpDeleteMany):
		return ActionDelete
	default:
		return ActionRead
	}
}

// Query is implemented by UnifiedQuery and is the type privacy query rules
// evaluate against.
type Query interface {
	// Object returns the target object name.
	Object() string
}

// Mutation is implemented by the repository's write-path payload and is
// the type privacy mutation rules evaluate against. It exposes the changed
// field set so rules like "deny changing tenant_id" or "owner must match
// user_id" can inspect individual field values without depending on the
// full Record shape.
type Mutation interface {
	Object() string
	Op() Op
	// Fields lists the field names present in the mutation payload.
	Fields() []string
	// Field returns the payload value for name, if present.
	Field(name string) (any, bool)
	// SetField overwrites (or adds) a field in the mutation payload; used
	// by hooks and tenancy stamping to rewrite data in place.
	SetField(name string, value any) error
}

// RecordMutation is the concrete Mutation implementation the repository
// pipeline constructs for create/update/delete calls.
type RecordMutation struct {
	object string
	op     Op
	data   Record
}

// NewMutation wraps data as a Mutation for object under op.
func NewMutation(object string, op Op, data Record) *RecordMutation {
	if data == nil {
		data = Record{}
	}
	return &RecordMutation{object: object, op: op, data: data}
}

func (m *RecordMutation) Object() string { return m.object }
func (m *RecordMutation) Op() Op         { return m.op }

func (m *RecordMutation) Fields() []string {
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out
}

func (m *RecordMutation) Field(name string) (any, bool) {
	v, ok := m.data[name]
	return v, ok
}

func (m *RecordMutation) SetField(name string, value any) error {
	m.data[name] = value
	return nil
}

// Data returns the underlying Record the mutation wraps.
func (m *RecordMutation) Data() Record { return m.data }

var _ Mutation = (*RecordMutation)(nil)

// ServerStampedFields are the field names the repository pipeline, not the
// caller, is responsible for populating (spec §4.8 step 8).
var ServerStampedFields = []string{"created_at", "updated_at", "created_by", "space_id"}

// Now is the clock the engine stamps created_at/updated_at with. Exposed as
// a var so tests can substitute a fixed clock without mocking every call
// site.
var Now = time.Now

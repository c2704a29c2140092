// Package transport implements the Transport-agnostic Request Dispatcher
// (spec §6): a unified JSON request/response envelope decoded the same
// way regardless of which adapter (REST route layout here, or a future
// JSON-RPC/GraphQL adapter) produced it, dispatched onto an engine.Engine,
// and rendered back through one error-code -> HTTP status mapping table.
package transport

import "github.com/syssam/objectcore"

// Op is the unified envelope's operation vocabulary (spec §6).
type Op string

const (
	OpFind       Op = "find"
	OpFindOne    Op = "findOne"
	OpCreate     Op = "create"
	OpUpdate     Op = "update"
	OpDelete     Op = "delete"
	OpCount      Op = "count"
	OpAction     Op = "action"
	OpCreateMany Op = "createMany"
	OpUpdateMany Op = "updateMany"
	OpDeleteMany Op = "deleteMany"
)

// Request is the unified request envelope (spec §6): { op, object, args,
// user?, ai_context? }. User and AIContext are populated by the transport
// adapter (e.g. from a decoded bearer token), never trusted from the raw
// body's own "user" key when an Authorization header is present.
type Request struct {
	Op        Op             `json:"op"`
	Object    string         `json:"object"`
	Args      map[string]any `json:"args"`
	User      *Session       `json:"user,omitempty"`
	AIContext map[string]any `json:"ai_context,omitempty"`
}

// Session is the caller identity threaded from the transport layer into
// engine.WithUser/WithTenant (SPEC_FULL.md §D.3, bearer-token extraction).
type Session struct {
	UserID   string            `json:"id"`
	Roles    []string          `json:"roles,omitempty"`
	TenantID string            `json:"tenant_id,omitempty"`
	SpaceID  string            `json:"space_id,omitempty"`
	Record   objectcore.Record `json:"-"`
	Lang     string            `json:"lang,omitempty"`
}

// GetID, GetRoles and GetTenantID implement privacy.Viewer, so a decoded
// Session can be attached to a request context with privacy.WithViewer
// directly, without an adapter type (SPEC_FULL.md §D.3).
func (s *Session) GetID() string       { return s.UserID }
func (s *Session) GetRoles() []string  { return s.Roles }
func (s *Session) GetTenantID() string { return s.TenantID }

// Meta accompanies a list response (spec §6).
type Meta struct {
	Total   int  `json:"total"`
	Page    int  `json:"page"`
	Size    int  `json:"size"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"has_next"`
}

// ErrorBody is the error envelope's single populated sibling (spec §6: the
// response envelope always contains either data or error, never both).
type ErrorBody struct {
	Code    objectcore.Code `json:"code"`
	Message string          `json:"message"`
	Details map[string]any  `json:"details,omitempty"`
}

// Response is the unified response envelope. Exactly one of Error, Items,
// or Record (plus Deleted for delete ops) is populated; MarshalJSON below
// enforces the "never both" invariant spec §7 calls out.
type Response struct {
	Error   *ErrorBody        `json:"-"`
	Items   []objectcore.Record `json:"-"`
	ListMeta *Meta            `json:"-"`
	Record  objectcore.Record `json:"-"`
	Type    string            `json:"-"` // @type tag naming the object
	Deleted bool              `json:"-"`
	ID      any               `json:"-"`
	Count   int               `json:"-"`
	IsCount bool              `json:"-"`
	Result  any               `json:"-"` // action result, rendered verbatim
	IsAction bool             `json:"-"`
}

// MarshalJSON renders the one populated shape spec §6 names: list,
// single-record with @type, delete-ack, count, action result, or error.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return marshalJSON(struct {
			Error *ErrorBody `json:"error"`
		}{r.Error})
	}
	if r.Items != nil {
		return marshalJSON(struct {
			Items []objectcore.Record `json:"items"`
			Meta  *Meta               `json:"meta"`
		}{r.Items, r.ListMeta})
	}
	if r.Deleted {
		return marshalJSON(struct {
			ID      any    `json:"id"`
			Deleted bool   `json:"deleted"`
			Type    string `json:"@type"`
		}{r.ID, true, r.Type})
	}
	if r.IsCount {
		return marshalJSON(struct {
			Count int `json:"count"`
		}{r.Count})
	}
	if r.IsAction {
		return marshalJSON(struct {
			Result any `json:"result"`
		}{r.Result})
	}
	out := make(objectcore.Record, len(r.Record)+1)
	for k, v := range r.Record {
		out[k] = v
	}
	out["@type"] = r.Type
	return marshalJSON(out)
}

// HTTPStatus maps an engine error code to the HTTP status spec §6's table
// names, defaulting to 500 for any code the table does not enumerate.
func HTTPStatus(code objectcore.Code) int {
	switch code {
	case objectcore.CodeInvalidRequest, objectcore.CodeValidationError:
		return 400
	case objectcore.CodeUnauthorized:
		return 401
	case objectcore.CodeForbidden, objectcore.CodeTenantIsolation:
		return 403
	case objectcore.CodeNotFound, objectcore.CodeActionNotFound:
		return 404
	case objectcore.CodeConflict:
		return 409
	case objectcore.CodeRateLimitExceeded:
		return 429
	default:
		return 500
	}
}

// ErrorResponse builds a Response carrying err's classification, wrapping
// any non-*objectcore.Error as CodeInternalError so the envelope invariant
// never leaks an unclassified Go error string as-is.
func ErrorResponse(err error) Response {
	var oerr *objectcore.Error
	if as, ok := err.(*objectcore.Error); ok {
		oerr = as
	} else {
		oerr = objectcore.Wrap(objectcore.CodeInternalError, "internal error", err)
	}
	return Response{Error: &ErrorBody{Code: oerr.Code, Message: oerr.Message, Details: oerr.Details}}
}

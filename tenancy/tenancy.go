// Package tenancy implements Multi-tenancy Isolation (spec §4.7) as a
// canonical instantiation of the hook mechanism: a tenant resolver, a
// query filter injector, and a mutation guard, all registered as hooks
// against every non-exempt object when the Plugin is installed on an
// engine (see engine.Plugin).
package tenancy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/hooks"
)

// IsolationMode is the schema-isolation strategy a deployment picks for
// partitioning tenant data (spec §4.7). The core only tags records by
// filter injection; table-prefix/separate-schema modes are a concern of
// the driver/datasource wiring, recorded here only so the mode is
// advertised through Config.
type IsolationMode string

const (
	IsolationShared         IsolationMode = "shared"
	IsolationTablePrefix    IsolationMode = "table-prefix"
	IsolationSeparateSchema IsolationMode = "separate-schema"
)

// Reason tags why a TenantIsolationError was raised (spec §4.7).
type Reason string

const (
	ReasonNoTenantContext  Reason = "NO_TENANT_CONTEXT"
	ReasonCrossTenantQuery Reason = "CROSS_TENANT_QUERY"
	ReasonCrossTenantUpdate Reason = "CROSS_TENANT_UPDATE"
	ReasonTenantReassignment Reason = "TENANT_REASSIGNMENT"
	ReasonCrossTenantDelete Reason = "CROSS_TENANT_DELETE"
	ReasonCrossTenantCreate Reason = "CROSS_TENANT_CREATE"
)

// Error is a tagged TenantIsolationError (spec §4.7), surfaced to the
// repository pipeline as a CodeTenantIsolation *objectcore.Error.
type Error struct {
	Reason Reason
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("tenancy: %s: %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("tenancy: %s", e.Reason)
}

// AsEngineError classifies a tenancy *Error as the engine's uniform
// CodeTenantIsolation failure.
func (e *Error) AsEngineError() *objectcore.Error {
	return objectcore.Wrap(objectcore.CodeTenantIsolation, e.Error(), objectcore.ErrTenantIsolation).
		WithDetails(map[string]any{"reason": string(e.Reason)})
}

// Resolver extracts the tenant id from a request context. The default
// resolver reads, in priority order, ctx's explicit tenant id, then
// user.tenantId, then user.tenant_id (spec §4.7 "Tenant Resolver"); a
// Config.Resolver override replaces this entirely.
type Resolver func(ctx context.Context, user objectcore.Record) (string, bool)

// tenantCtxKey carries an explicit tenant id set directly on the request
// context, taking priority over any value derived from the session user.
type tenantCtxKey struct{}

// WithTenant returns a context carrying an explicit tenant id, the
// highest-priority source the default Resolver consults.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenantID)
}

// DefaultResolver implements the priority order of spec §4.7: explicit
// context.tenantId, then user.tenantId, then user.tenant_id.
func DefaultResolver(ctx context.Context, user objectcore.Record) (string, bool) {
	if v, ok := ctx.Value(tenantCtxKey{}).(string); ok && v != "" {
		return v, true
	}
	if user != nil {
		if v, ok := user["tenantId"]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
		if v, ok := user["tenant_id"]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// Config configures the multi-tenancy plugin (spec §4.7).
type Config struct {
	// Field is the tenancy field name; "tenant_id" when unset.
	Field string
	// Strict, when true, rejects a query that already
	// carries a conflicting tenant predicate rather than overwriting it
	// silently.
	Strict bool
	// Isolation advertises the deployment's schema-isolation strategy.
	Isolation IsolationMode
	// Exempt lists object names excluded from every tenancy hook.
	Exempt []string
	// EnableAudit turns on the bounded in-memory audit ring.
	EnableAudit bool
	// AuditCap bounds the audit ring; 1000 when unset.
	AuditCap int
	// ThrowOnMissingTenant, when true, raises
	// NO_TENANT_CONTEXT when no tenant can be resolved for a non-exempt
	// object; when false, the hook is a no-op in that case.
	ThrowOnMissingTenant bool
	// Resolver overrides DefaultResolver.
	Resolver Resolver
}

func (c Config) field() string {
	if c.Field == "" {
		return "tenant_id"
	}
	return c.Field
}

func (c Config) resolver() Resolver {
	if c.Resolver != nil {
		return c.Resolver
	}
	return DefaultResolver
}

func (c Config) isExempt(object string) bool {
	for _, o := range c.Exempt {
		if o == object {
			return true
		}
	}
	return false
}

// AuditEntry is one record in the audit ring (spec §4.7).
type AuditEntry struct {
	Timestamp time.Time
	TenantID  string
	UserID    string
	Object    string
	Operation string
	Allowed   bool
	Reason    string
}

// AuditLog is a bounded in-memory ring buffer of tenancy decisions.
type AuditLog struct {
	mu    sync.Mutex
	cap   int
	items []AuditEntry
}

// NewAuditLog returns an AuditLog capped at capacity (1000 when <= 0).
func NewAuditLog(capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &AuditLog{cap: capacity}
}

func (a *AuditLog) record(e AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, e)
	if len(a.items) > a.cap {
		a.items = a.items[len(a.items)-a.cap:]
	}
}

// GetAuditLogs returns the most recent limit entries (all of them when
// limit <= 0), oldest first.
func (a *AuditLog) GetAuditLogs(limit int) []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if limit <= 0 || limit >= len(a.items) {
		out := make([]AuditEntry, len(a.items))
		copy(out, a.items)
		return out
	}
	out := make([]AuditEntry, limit)
	copy(out, a.items[len(a.items)-limit:])
	return out
}

// ClearAuditLogs empties the ring.
func (a *AuditLog) ClearAuditLogs() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = nil
}

// Export returns a msgpack-encoded snapshot of the ring buffer, for
// operators who persist it out-of-process (a supplement beyond spec.md's
// get_audit_logs/clear_audit_logs, per SPEC_FULL.md §D.2).
func (a *AuditLog) Export() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return msgpack.Marshal(a.items)
}

// Plugin is the Multi-tenancy Isolation plugin (spec §4.7): a Resolver, a
// Query Filter Injector and a Mutation Guard, registered as hooks for
// every non-exempt object. Construct with New and install on an engine
// with engine.Engine.Use.
type Plugin struct {
	cfg   Config
	Audit *AuditLog
}

// New returns a tenancy Plugin. It fills in Isolation (IsolationShared)
// when unset; Strict and ThrowOnMissingTenant are used exactly as given,
// so a zero Config leaves both off. config.Default sets both to true.
func New(cfg Config) *Plugin {
	if cfg.Isolation == "" {
		cfg.Isolation = IsolationShared
	}
	p := &Plugin{cfg: cfg}
	if cfg.EnableAudit {
		p.Audit = NewAuditLog(cfg.AuditCap)
	}
	return p
}

// Name identifies the plugin for engine.Engine's plugin lifecycle.
func (p *Plugin) Name() string { return "tenancy" }

// RegisterFor registers the tenancy hooks against object unless it is
// exempt; engine.UseTenancy's plugin calls it once per registered object
// at Start() time, since the hook manager has no registry of "every
// object" itself.
func (p *Plugin) RegisterFor(object string, mgr *hooks.Manager) {
	if p.cfg.isExempt(object) {
		return
	}
	mgr.Register(hooks.BeforeFind, object, p.injectQueryFilter, p.Name())
	mgr.Register(hooks.BeforeCount, object, p.injectQueryFilter, p.Name())
	mgr.Register(hooks.BeforeCreate, object, p.guardCreate, p.Name())
	mgr.Register(hooks.BeforeUpdate, object, p.guardUpdate, p.Name())
	mgr.Register(hooks.BeforeDelete, object, p.guardDelete, p.Name())
}

func (p *Plugin) resolve(ctx context.Context, hc *hooks.Context) (string, error) {
	tenantID, ok := p.cfg.resolver()(ctx, hc.User)
	if !ok {
		if p.cfg.ThrowOnMissingTenant {
			p.log(hc, "", false, string(ReasonNoTenantContext))
			return "", (&Error{Reason: ReasonNoTenantContext}).AsEngineError()
		}
		return "", nil
	}
	return tenantID, nil
}

// injectQueryFilter appends `tenant_id = T` to the query under AND (spec
// §4.7 "Query Filter Injector", Scenario A). In strict mode a query that
// already carries a conflicting tenant predicate is rejected rather than
// silently overwritten.
func (p *Plugin) injectQueryFilter(ctx context.Context, hc *hooks.Context) error {
	tenantID, err := p.resolve(ctx, hc)
	if err != nil {
		return err
	}
	if tenantID == "" || hc.Query == nil {
		return nil
	}
	field := p.cfg.field()
	if existing, ok := findCriterion(hc.Query.Filters, field); ok {
		if fmt.Sprint(existing.Value) != tenantID {
			if p.cfg.Strict {
				p.log(hc, tenantID, false, string(ReasonCrossTenantQuery))
				return (&Error{Reason: ReasonCrossTenantQuery, Detail: field}).AsEngineError()
			}
			hc.Query.Filters = overwriteCriterion(hc.Query.Filters, field, tenantID)
			p.log(hc, tenantID, true, "")
			return nil
		}
		p.log(hc, tenantID, true, "")
		return nil
	}
	hc.Query.Filters = objectcore.And(hc.Query.Filters, objectcore.Crit(field, objectcore.OpEQ, tenantID))
	p.log(hc, tenantID, true, "")
	return nil
}

// guardCreate stamps the tenant id onto the record and rejects any attempt
// to submit a conflicting one (spec §4.7 "Mutation Guard").
func (p *Plugin) guardCreate(ctx context.Context, hc *hooks.Context) error {
	tenantID, err := p.resolve(ctx, hc)
	if err != nil {
		return err
	}
	if tenantID == "" {
		return nil
	}
	field := p.cfg.field()
	if v, ok := hc.Data[field]; ok && fmt.Sprint(v) != tenantID {
		p.log(hc, tenantID, false, string(ReasonCrossTenantCreate))
		return (&Error{Reason: ReasonCrossTenantCreate, Detail: field}).AsEngineError()
	}
	if hc.Data == nil {
		hc.Data = objectcore.Record{}
	}
	hc.Data[field] = tenantID
	p.log(hc, tenantID, true, "")
	return nil
}

// guardUpdate verifies previousData's tenant matches the resolved tenant
// and that the patch does not attempt to reassign it.
func (p *Plugin) guardUpdate(ctx context.Context, hc *hooks.Context) error {
	tenantID, err := p.resolve(ctx, hc)
	if err != nil {
		return err
	}
	if tenantID == "" {
		return nil
	}
	field := p.cfg.field()
	if hc.PreviousData != nil {
		if prev := fmt.Sprint(hc.PreviousData[field]); prev != tenantID {
			p.log(hc, tenantID, false, string(ReasonCrossTenantUpdate))
			return (&Error{Reason: ReasonCrossTenantUpdate, Detail: field}).AsEngineError()
		}
	}
	if v, ok := hc.Data[field]; ok && fmt.Sprint(v) != tenantID {
		p.log(hc, tenantID, false, string(ReasonTenantReassignment))
		return (&Error{Reason: ReasonTenantReassignment, Detail: field}).AsEngineError()
	}
	p.log(hc, tenantID, true, "")
	return nil
}

// guardDelete verifies previousData's tenant matches the resolved tenant.
func (p *Plugin) guardDelete(ctx context.Context, hc *hooks.Context) error {
	tenantID, err := p.resolve(ctx, hc)
	if err != nil {
		return err
	}
	if tenantID == "" || hc.PreviousData == nil {
		return nil
	}
	field := p.cfg.field()
	if prev := fmt.Sprint(hc.PreviousData[field]); prev != tenantID {
		p.log(hc, tenantID, false, string(ReasonCrossTenantDelete))
		return (&Error{Reason: ReasonCrossTenantDelete, Detail: field}).AsEngineError()
	}
	p.log(hc, tenantID, true, "")
	return nil
}

func (p *Plugin) log(hc *hooks.Context, tenantID string, allowed bool, reason string) {
	if p.Audit == nil {
		return
	}
	var userID string
	if hc.User != nil {
		if v, ok := hc.User["id"]; ok {
			userID = fmt.Sprint(v)
		}
	}
	p.Audit.record(AuditEntry{
		Timestamp: objectcore.Now(),
		TenantID:  tenantID,
		UserID:    userID,
		Object:    hc.Object,
		Operation: hc.Op.String(),
		Allowed:   allowed,
		Reason:    reason,
	})
}

// findCriterion searches f for a top-level (AND-joined) criterion on
// field, the shape the injector itself produces, so re-entrant calls
// within the same request detect their own prior injection.
func findCriterion(f objectcore.Filter, field string) (*objectcore.Criterion, bool) {
	if f.IsZero() {
		return nil, false
	}
	if f.IsLeaf() {
		if f.Criterion.Field == field && f.Criterion.Operator == objectcore.OpEQ {
			return f.Criterion, true
		}
		return nil, false
	}
	if f.Group.Logic != objectcore.LogicAnd {
		return nil, false
	}
	for _, child := range f.Group.Children {
		if c, ok := findCriterion(child, field); ok {
			return c, true
		}
	}
	return nil, false
}

func overwriteCriterion(f objectcore.Filter, field, value string) objectcore.Filter {
	if f.IsZero() {
		return objectcore.Crit(field, objectcore.OpEQ, value)
	}
	if f.IsLeaf() {
		if f.Criterion.Field == field {
			return objectcore.Crit(field, objectcore.OpEQ, value)
		}
		return f
	}
	children := make([]objectcore.Filter, len(f.Group.Children))
	replaced := false
	for i, child := range f.Group.Children {
		if child.IsLeaf() && child.Criterion.Field == field {
			children[i] = objectcore.Crit(field, objectcore.OpEQ, value)
			replaced = true
		} else {
			children[i] = child
		}
	}
	if !replaced {
		children = append(children, objectcore.Crit(field, objectcore.OpEQ, value))
	}
	return objectcore.Filter{Group: &objectcore.Group{Logic: f.Group.Logic, Children: children}}
}

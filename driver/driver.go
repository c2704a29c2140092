// Package driver defines the storage abstraction every back-end plugs into
// the engine through (spec §4.3): lifecycle, capability advertisement,
// reads, writes, bulk operations, transactions and change streams. The
// reference implementations live in driver/memdriver and driver/sqldriver.
package driver

import (
	"context"

	"github.com/syssam/objectcore"
)

// Capabilities advertises what a driver implementation actually supports,
// so the repository pipeline and filter compiler can reject operations a
// back-end cannot honour instead of silently degrading them.
type Capabilities struct {
	Transactions         bool
	Joins                bool
	FullTextSearch       bool
	JSONFields           bool
	ArrayFields          bool
	QueryFilters         bool
	QueryAggregations    bool
	QuerySorting         bool
	QueryPagination      bool
	QueryWindowFunctions bool
	QuerySubqueries      bool
}

// Tx is a driver-specific transaction handle. A Tx must never be shared
// between concurrent requests (spec §5 "Shared resources"); the repository
// pipeline threads one handle through Options.Transaction for the lifetime
// of a single request.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Options carries per-call settings threaded from the repository pipeline
// down to the driver: an active transaction handle (if any), an advisory
// strict-mode flag (carried for drivers; neither driver/memdriver nor
// driver/sqldriver reads it), and any session variables a SQL back-end
// should set for the call's duration.
type Options struct {
	Transaction Tx
	Strict      bool
	// SessionVars are native session/connection variables a back-end that
	// supports them (driver/sqldriver, via dialect/sql.WithVar) sets before
	// running the call. The repository pipeline populates
	// SessionVarTenantID here when the Multi-tenancy plugin resolves a
	// tenant, letting a deployment enforce isolation natively (e.g.
	// Postgres row-level security) as a defense-in-depth complement to
	// tenancy's query-filter injection. Drivers that don't support session
	// variables (driver/memdriver) ignore this field.
	SessionVars map[string]string
}

// SessionVarTenantID is the SessionVars key the repository pipeline sets to
// the resolved tenant id (spec §4.7).
const SessionVarTenantID = "app.tenant_id"

// ReturnDocument selects which side of a FindOneAndUpdate call is returned.
type ReturnDocument string

const (
	ReturnBefore ReturnDocument = "before"
	ReturnAfter  ReturnDocument = "after"
)

// FindOneAndUpdateOptions configures the combined find/update primitive
// (spec §4.3).
type FindOneAndUpdateOptions struct {
	ReturnDocument ReturnDocument
	Upsert         bool
}

// ChangeOperation is the operation type tagging a change-stream event.
type ChangeOperation string

const (
	ChangeInsert ChangeOperation = "insert"
	ChangeUpdate ChangeOperation = "update"
	ChangeDelete ChangeOperation = "delete"
)

// ChangeEvent is delivered to a change-stream handler. FullDocument is
// populated only when the caller's WatchOptions.FullDocument requested it.
type ChangeEvent struct {
	Operation    ChangeOperation
	Object       string
	ID           any
	FullDocument objectcore.Record
}

// ChangeHandler receives change-stream events in the order the driver
// observes them.
type ChangeHandler func(ChangeEvent)

// WatchOptions configures a change-stream subscription.
type WatchOptions struct {
	OperationTypes []ChangeOperation
	FullDocument   bool
	Pipeline       objectcore.Filter
}

// Driver is the storage-back-end contract (spec §4.3). Every method takes a
// context that carries cancellation and a deadline (spec §5); drivers MUST
// honour it at every suspension point. A driver error is never retried
// inside the driver: it is surfaced as an *Error classified by category,
// letting the repository pipeline map it onto the engine's error taxonomy
// via objectcore.FromDriverError without special-casing individual
// back-ends.
type Driver interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	CheckHealth(ctx context.Context) error
	Capabilities() Capabilities

	Find(ctx context.Context, object string, q *objectcore.UnifiedQuery, opts Options) ([]objectcore.Record, error)
	FindOne(ctx context.Context, object string, idOrQuery any, opts Options) (objectcore.Record, error)
	Count(ctx context.Context, object string, filtersOrQuery any, opts Options) (int, error)
	Distinct(ctx context.Context, object, field string, filters objectcore.Filter, opts Options) ([]any, error)
	Aggregate(ctx context.Context, object string, q *objectcore.UnifiedQuery, opts Options) ([]objectcore.Record, error)

	Create(ctx context.Context, object string, doc objectcore.Record, opts Options) (objectcore.Record, error)
	Update(ctx context.Context, object string, id any, patch objectcore.Record, opts Options) (objectcore.Record, error)
	Delete(ctx context.Context, object string, id any, opts Options) (int, error)

	CreateMany(ctx context.Context, object string, docs []objectcore.Record, opts Options) ([]objectcore.Record, error)
	UpdateMany(ctx context.Context, object string, filters objectcore.Filter, patch objectcore.Record, opts Options) (int, error)
	DeleteMany(ctx context.Context, object string, filters objectcore.Filter, opts Options) (int, error)

	FindOneAndUpdate(ctx context.Context, object string, filters objectcore.Filter, patch objectcore.Record, fopts FindOneAndUpdateOptions, opts Options) (objectcore.Record, error)

	BeginTransaction(ctx context.Context) (Tx, error)

	// Watch subscribes handler to changes on object; returns a stream id for
	// Unwatch. Drivers that do not support change streams (Capabilities
	// reports it implicitly by this method returning ErrUnsupportedOp) may
	// embed Unimplemented to satisfy the interface.
	Watch(ctx context.Context, object string, handler ChangeHandler, opts WatchOptions) (string, error)
	Unwatch(ctx context.Context, streamID string) error
	ActiveChangeStreams() []string
}

// Unimplemented embeds into a driver that does not support change streams,
// satisfying the Watch/Unwatch/ActiveChangeStreams methods with a uniform
// UnsupportedOperator failure.
type Unimplemented struct{}

func (Unimplemented) Watch(context.Context, string, ChangeHandler, WatchOptions) (string, error) {
	return "", NewError(objectcore.DriverErrOther, "watch", objectcore.ErrUnsupportedOp)
}

func (Unimplemented) Unwatch(context.Context, string) error {
	return NewError(objectcore.DriverErrOther, "unwatch", objectcore.ErrUnsupportedOp)
}

func (Unimplemented) ActiveChangeStreams() []string { return nil }

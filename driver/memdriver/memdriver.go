// Package memdriver is the in-memory reference implementation of the
// Driver Contract (spec §4.3): useful for tests and embedded hosts that
// need the engine's full semantics without a real database.
package memdriver

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/driver"
)

// store is the record table shape shared by the live driver and every
// in-flight transaction's staged copy: object name -> id -> record.
type store map[string]map[string]objectcore.Record

func (s store) clone() store {
	out := make(store, len(s))
	for obj, rows := range s {
		cp := make(map[string]objectcore.Record, len(rows))
		for id, rec := range rows {
			cp[id] = rec.Clone()
		}
		out[obj] = cp
	}
	return out
}

// Driver is the in-memory reference driver. All methods are safe for
// concurrent use; the zero value is not usable, construct with New.
type Driver struct {
	mu   sync.RWMutex
	data store

	watchMu  sync.Mutex
	watchers map[string]*watcher
	nextID   int

	journalMu  sync.Mutex
	journal    []driver.ChangeEvent
	journalCap int
}

// journalCapDefault bounds the in-memory change-event journal (ExportChangeLog)
// the same way tenancy.AuditLog bounds its ring, at a smaller default since
// change events are a debugging aid, not a compliance record.
const journalCapDefault = 200

type watcher struct {
	object  string
	handler driver.ChangeHandler
	opts    driver.WatchOptions
}

// New returns an empty in-memory Driver.
func New() *Driver {
	return &Driver{data: store{}, watchers: map[string]*watcher{}, journalCap: journalCapDefault}
}

func (d *Driver) Connect(context.Context) error      { return nil }
func (d *Driver) Disconnect(context.Context) error {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	d.watchers = map[string]*watcher{}
	return nil
}
func (d *Driver) CheckHealth(context.Context) error { return nil }

func (d *Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		Transactions:      true,
		QueryFilters:      true,
		QueryAggregations: true,
		QuerySorting:      true,
		QueryPagination:   true,
	}
}

// tableFor resolves the object table the call should operate against: the
// staged copy of an in-flight transaction, or the live store.
func (d *Driver) tableFor(opts driver.Options, object string) map[string]objectcore.Record {
	s := d.data
	if tx, ok := opts.Transaction.(*Tx); ok && tx != nil {
		s = tx.staged
	}
	rows, ok := s[object]
	if !ok {
		rows = map[string]objectcore.Record{}
		s[object] = rows
	}
	return rows
}

func (d *Driver) lockFor(opts driver.Options) (lock func(), unlock func()) {
	if _, ok := opts.Transaction.(*Tx); ok {
		// Transactions are single-threaded by contract (spec §5); no
		// additional locking needed beyond the transaction's own isolation.
		return func() {}, func() {}
	}
	return d.mu.Lock, d.mu.Unlock
}

func (d *Driver) Find(ctx context.Context, object string, q *objectcore.UnifiedQuery, opts driver.Options) ([]objectcore.Record, error) {
	lock, unlock := d.lockFor(opts)
	lock()
	defer unlock()

	var matched []objectcore.Record
	for _, rec := range d.tableFor(opts, object) {
		ok, err := driver.MatchFilter(rec, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rec.Clone())
		}
	}
	sortRecords(matched, q.Sort)

	if q.Skip > 0 {
		if q.Skip >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Skip:]
		}
	}
	if q.Limit != nil {
		if *q.Limit <= 0 {
			matched = nil
		} else if *q.Limit < len(matched) {
			matched = matched[:*q.Limit]
		}
	}
	if len(q.Fields) > 0 {
		matched = project(matched, q.Fields)
	}
	return matched, nil
}

func (d *Driver) FindOne(ctx context.Context, object string, idOrQuery any, opts driver.Options) (objectcore.Record, error) {
	lock, unlock := d.lockFor(opts)
	lock()
	defer unlock()

	if q, ok := idOrQuery.(*objectcore.UnifiedQuery); ok {
		for _, rec := range d.tableFor(opts, object) {
			matched, err := driver.MatchFilter(rec, q.Filters)
			if err != nil {
				return nil, err
			}
			if matched {
				return rec.Clone(), nil
			}
		}
		return nil, nil
	}
	id := fmtID(idOrQuery)
	rec, ok := d.tableFor(opts, object)[id]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (d *Driver) Count(ctx context.Context, object string, filtersOrQuery any, opts driver.Options) (int, error) {
	f := filterFromAny(filtersOrQuery)
	lock, unlock := d.lockFor(opts)
	lock()
	defer unlock()

	n := 0
	for _, rec := range d.tableFor(opts, object) {
		ok, err := driver.MatchFilter(rec, f)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (d *Driver) Distinct(ctx context.Context, object, field string, filters objectcore.Filter, opts driver.Options) ([]any, error) {
	lock, unlock := d.lockFor(opts)
	lock()
	defer unlock()

	seen := map[any]bool{}
	var out []any
	for _, rec := range d.tableFor(opts, object) {
		ok, err := driver.MatchFilter(rec, filters)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		v := rec[field]
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}

func (d *Driver) Aggregate(ctx context.Context, object string, q *objectcore.UnifiedQuery, opts driver.Options) ([]objectcore.Record, error) {
	rows, err := d.Find(ctx, object, &objectcore.UnifiedQuery{Filters: q.Filters}, opts)
	if err != nil {
		return nil, err
	}
	return aggregate(rows, q), nil
}

func (d *Driver) Create(ctx context.Context, object string, doc objectcore.Record, opts driver.Options) (objectcore.Record, error) {
	lock, unlock := d.lockFor(opts)
	lock()
	defer unlock()

	rec := doc.Clone()
	id, ok := rec["id"]
	idStr := fmtID(id)
	if !ok || idStr == "" {
		idStr = uuid.New().String()
		rec["id"] = idStr
	}
	now := objectcore.Now().UTC().Format(time.RFC3339)
	rec["created_at"] = now
	rec["updated_at"] = now

	table := d.tableFor(opts, object)
	if _, exists := table[idStr]; exists {
		return nil, driver.NewError(objectcore.DriverErrConstraint, "create", objectcore.ErrConflict)
	}
	table[idStr] = rec
	d.notify(object, driver.ChangeInsert, idStr, rec)
	return rec.Clone(), nil
}

func (d *Driver) Update(ctx context.Context, object string, id any, patch objectcore.Record, opts driver.Options) (objectcore.Record, error) {
	lock, unlock := d.lockFor(opts)
	lock()
	defer unlock()

	idStr := fmtID(id)
	table := d.tableFor(opts, object)
	rec, ok := table[idStr]
	if !ok {
		return nil, driver.NewError(objectcore.DriverErrNotFound, "update", objectcore.ErrNotFound)
	}
	updated := rec.Clone()
	for k, v := range patch {
		if k == "id" || k == "created_at" {
			continue
		}
		updated[k] = v
	}
	updated["updated_at"] = objectcore.Now().UTC().Format(time.RFC3339)
	table[idStr] = updated
	d.notify(object, driver.ChangeUpdate, idStr, updated)
	return updated.Clone(), nil
}

func (d *Driver) Delete(ctx context.Context, object string, id any, opts driver.Options) (int, error) {
	lock, unlock := d.lockFor(opts)
	lock()
	defer unlock()

	idStr := fmtID(id)
	table := d.tableFor(opts, object)
	if _, ok := table[idStr]; !ok {
		return 0, nil
	}
	delete(table, idStr)
	d.notify(object, driver.ChangeDelete, idStr, nil)
	return 1, nil
}

func (d *Driver) CreateMany(ctx context.Context, object string, docs []objectcore.Record, opts driver.Options) ([]objectcore.Record, error) {
	out := make([]objectcore.Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := d.Create(ctx, object, doc, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (d *Driver) UpdateMany(ctx context.Context, object string, filters objectcore.Filter, patch objectcore.Record, opts driver.Options) (int, error) {
	lock, unlock := d.lockFor(opts)
	lock()
	n := 0
	var ids []string
	for id, rec := range d.tableFor(opts, object) {
		ok, err := driver.MatchFilter(rec, filters)
		if err != nil {
			unlock()
			return 0, err
		}
		if ok {
			ids = append(ids, id)
		}
	}
	unlock()
	for _, id := range ids {
		if _, err := d.Update(ctx, object, id, patch, opts); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (d *Driver) DeleteMany(ctx context.Context, object string, filters objectcore.Filter, opts driver.Options) (int, error) {
	lock, unlock := d.lockFor(opts)
	lock()
	var ids []string
	for id, rec := range d.tableFor(opts, object) {
		ok, err := driver.MatchFilter(rec, filters)
		if err != nil {
			unlock()
			return 0, err
		}
		if ok {
			ids = append(ids, id)
		}
	}
	unlock()
	n := 0
	for _, id := range ids {
		c, err := d.Delete(ctx, object, id, opts)
		if err != nil {
			return n, err
		}
		n += c
	}
	return n, nil
}

func (d *Driver) FindOneAndUpdate(ctx context.Context, object string, filters objectcore.Filter, patch objectcore.Record, fopts driver.FindOneAndUpdateOptions, opts driver.Options) (objectcore.Record, error) {
	lock, unlock := d.lockFor(opts)
	lock()
	var id string
	var before objectcore.Record
	for rid, rec := range d.tableFor(opts, object) {
		ok, err := driver.MatchFilter(rec, filters)
		if err != nil {
			unlock()
			return nil, err
		}
		if ok {
			id, before = rid, rec.Clone()
			break
		}
	}
	unlock()

	if id == "" {
		if !fopts.Upsert {
			return nil, nil
		}
		created, err := d.Create(ctx, object, patch, opts)
		if err != nil {
			return nil, err
		}
		return created, nil
	}
	after, err := d.Update(ctx, object, id, patch, opts)
	if err != nil {
		return nil, err
	}
	if fopts.ReturnDocument == driver.ReturnBefore {
		return before, nil
	}
	return after, nil
}

// Tx is an in-flight memdriver transaction: a staged copy of the store
// taken at BeginTransaction, swapped into the live store wholesale on
// Commit and discarded on Rollback.
type Tx struct {
	d      *Driver
	staged store
}

func (d *Driver) BeginTransaction(ctx context.Context) (driver.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &Tx{d: d, staged: d.data.clone()}, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.d.data = t.staged
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error { return nil }

func (d *Driver) Watch(ctx context.Context, object string, handler driver.ChangeHandler, opts driver.WatchOptions) (string, error) {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	d.nextID++
	id := uuid.New().String()
	d.watchers[id] = &watcher{object: object, handler: handler, opts: opts}
	return id, nil
}

func (d *Driver) Unwatch(ctx context.Context, streamID string) error {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	delete(d.watchers, streamID)
	return nil
}

func (d *Driver) ActiveChangeStreams() []string {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	out := make([]string, 0, len(d.watchers))
	for id := range d.watchers {
		out = append(out, id)
	}
	return out
}

func (d *Driver) notify(object string, op driver.ChangeOperation, id string, full objectcore.Record) {
	d.recordJournal(driver.ChangeEvent{Operation: op, Object: object, ID: id, FullDocument: full})

	d.watchMu.Lock()
	watchers := make([]*watcher, 0, len(d.watchers))
	for _, w := range d.watchers {
		if w.object == object {
			watchers = append(watchers, w)
		}
	}
	d.watchMu.Unlock()

	for _, w := range watchers {
		if len(w.opts.OperationTypes) > 0 && !containsOp(w.opts.OperationTypes, op) {
			continue
		}
		ev := driver.ChangeEvent{Operation: op, Object: object, ID: id}
		if w.opts.FullDocument && full != nil {
			ev.FullDocument = full.Clone()
		}
		w.handler(ev)
	}
}

// recordJournal appends ev to the bounded change-event journal every
// mutation produces, independent of whether any watcher is currently
// subscribed (spec §4.3 change streams are optional per-watch, but a
// driver may still keep its own replay buffer).
func (d *Driver) recordJournal(ev driver.ChangeEvent) {
	d.journalMu.Lock()
	defer d.journalMu.Unlock()
	d.journal = append(d.journal, ev)
	if len(d.journal) > d.journalCap {
		d.journal = d.journal[len(d.journal)-d.journalCap:]
	}
}

// ExportChangeLog returns a msgpack-encoded snapshot of the bounded
// change-event journal, mirroring tenancy.AuditLog.Export's shape for
// operators who persist change history out-of-process (SPEC_FULL.md §B
// domain-stack entry for msgpack in the driver component).
func (d *Driver) ExportChangeLog() ([]byte, error) {
	d.journalMu.Lock()
	defer d.journalMu.Unlock()
	return msgpack.Marshal(d.journal)
}

func containsOp(ops []driver.ChangeOperation, op driver.ChangeOperation) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

func fmtID(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func filterFromAny(v any) objectcore.Filter {
	switch t := v.(type) {
	case objectcore.Filter:
		return t
	case *objectcore.UnifiedQuery:
		return t.Filters
	default:
		return objectcore.Filter{}
	}
}

func sortRecords(recs []objectcore.Record, sorts []objectcore.Sort) {
	if len(sorts) == 0 {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, s := range sorts {
			li, lj := recs[i][s.Field], recs[j][s.Field]
			eq, _ := objectcore.EvalOperator(objectcore.OpEQ, li, lj)
			if eq {
				continue
			}
			lt, _ := objectcore.EvalOperator(objectcore.OpLT, li, lj)
			if s.Direction == objectcore.Desc {
				return !lt
			}
			return lt
		}
		return false
	})
}

func project(recs []objectcore.Record, fields []string) []objectcore.Record {
	out := make([]objectcore.Record, len(recs))
	for i, rec := range recs {
		p := make(objectcore.Record, len(fields))
		for _, f := range fields {
			if v, ok := rec[f]; ok {
				p[f] = v
			}
		}
		if _, ok := p["id"]; !ok {
			if v, ok := rec["id"]; ok {
				p["id"] = v
			}
		}
		out[i] = p
	}
	return out
}

func aggregate(rows []objectcore.Record, q *objectcore.UnifiedQuery) []objectcore.Record {
	type bucket struct {
		key  objectcore.Record
		rows []objectcore.Record
	}
	buckets := map[string]*bucket{}
	var order []string
	for _, rec := range rows {
		key := make(objectcore.Record, len(q.GroupBy))
		var keyStr string
		for _, g := range q.GroupBy {
			key[g] = rec[g]
			keyStr += "\x00" + fmt.Sprint(rec[g])
		}
		if b, ok := buckets[keyStr]; ok {
			b.rows = append(b.rows, rec)
		} else {
			buckets[keyStr] = &bucket{key: key, rows: []objectcore.Record{rec}}
			order = append(order, keyStr)
		}
	}
	out := make([]objectcore.Record, 0, len(buckets))
	for _, k := range order {
		b := buckets[k]
		row := b.key.Clone()
		for _, agg := range q.Aggregations {
			row[agg.Alias] = applyAggregate(agg, b.rows)
		}
		out = append(out, row)
	}
	return out
}

func applyAggregate(agg objectcore.Aggregation, rows []objectcore.Record) any {
	switch agg.Func {
	case objectcore.AggCount:
		return len(rows)
	case objectcore.AggSum, objectcore.AggAvg, objectcore.AggMin, objectcore.AggMax:
		var sum float64
		var n int
		var min, max float64
		first := true
		for _, r := range rows {
			f, ok := toLocalFloat(r[agg.Field])
			if !ok {
				continue
			}
			sum += f
			n++
			if first || f < min {
				min = f
			}
			if first || f > max {
				max = f
			}
			first = false
		}
		switch agg.Func {
		case objectcore.AggSum:
			return sum
		case objectcore.AggAvg:
			if n == 0 {
				return 0.0
			}
			return sum / float64(n)
		case objectcore.AggMin:
			return min
		default:
			return max
		}
	default:
		return nil
	}
}

func toLocalFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

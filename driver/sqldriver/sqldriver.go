// Package sqldriver is the SQL reference implementation of the Driver
// Contract (spec §4.3), built on dialect/sql and its Selector/Predicate
// builder. It assumes the target tables already exist with one column per
// field (schema migration is explicitly out of scope, spec §1) and
// supports postgres, mysql and sqlite through their blank-imported
// database/sql drivers.
package sqldriver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-openapi/inflect"
	"github.com/google/uuid"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/dialect"
	sqlpkg "github.com/syssam/objectcore/dialect/sql"
	"github.com/syssam/objectcore/driver"
)

// Driver is the SQL reference driver.
type Driver struct {
	driver.Unimplemented
	// conn is a dialect.Driver rather than the concrete *sqlpkg.Driver so
	// callers can layer dialect/sql's StatsDriver or DebugDriver underneath
	// (sqlpkg.NewStatsDriver/NewDebugDriver, or the sqlpkg.OpenWithStats
	// shortcut) before handing the connection to New, without this package
	// needing to know about either.
	conn    dialect.Driver
	idAlias objectcore.IDAlias
}

// Open dials a database/sql connection for the named dialect
// (dialect.Postgres, dialect.MySQL, dialect.SQLite) and wraps it.
func Open(dialectName, dataSourceName string) (*Driver, error) {
	conn, err := sqlpkg.Open(dialectName, dataSourceName)
	if err != nil {
		return nil, driver.NewError(objectcore.DriverErrConnection, "open", err)
	}
	return New(conn), nil
}

// New wraps an already-open dialect.Driver connection (typically a
// *sqlpkg.Driver from Open/OpenDB, or one of its StatsDriver/DebugDriver
// wrappers).
func New(conn dialect.Driver) *Driver {
	return &Driver{conn: conn}
}

// Stats returns the query statistics snapshot when conn was constructed
// over a dialect/sql StatsDriver (sqlpkg.NewStatsDriver or
// sqlpkg.OpenWithStats), and false otherwise.
func (d *Driver) Stats() (sqlpkg.StatsSnapshot, bool) {
	sd, ok := d.conn.(*sqlpkg.StatsDriver)
	if !ok {
		return sqlpkg.StatsSnapshot{}, false
	}
	return sd.QueryStats().Stats(), true
}

// WithIDAlias configures the native identifier column name when it differs
// from "id" (spec §3.5); d is returned for chaining.
func (d *Driver) WithIDAlias(native string) *Driver {
	d.idAlias = objectcore.IDAlias{Native: native}
	return d
}

func (d *Driver) Connect(context.Context) error    { return nil }
func (d *Driver) Disconnect(context.Context) error { return d.conn.Close() }

func (d *Driver) CheckHealth(ctx context.Context) error {
	var res sql.Result
	return d.conn.Exec(ctx, "SELECT 1", []any{}, &res)
}

func (d *Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		Transactions:      true,
		Joins:             true,
		JSONFields:        d.conn.Dialect() == dialect.Postgres,
		QueryFilters:      true,
		QueryAggregations: true,
		QuerySorting:      true,
		QueryPagination:   true,
	}
}

func (d *Driver) table(object string) string { return inflect.Pluralize(object) }

// connFor resolves the connection a call should run against (the active
// transaction, if any, otherwise the pooled connection) and applies any
// opts.SessionVars to ctx via sqlpkg.WithVar so the next statement issued
// against the returned ExecQuerier sets them first (dialect/sql.Conn.Exec/
// Query's maySetVars).
func (d *Driver) connFor(ctx context.Context, opts driver.Options) (context.Context, dialect.ExecQuerier) {
	for name, value := range opts.SessionVars {
		ctx = sqlpkg.WithVar(ctx, name, value)
	}
	if tx, ok := opts.Transaction.(*Tx); ok && tx != nil {
		return ctx, tx.conn
	}
	return ctx, d.conn
}

func (d *Driver) Find(ctx context.Context, object string, q *objectcore.UnifiedQuery, opts driver.Options) ([]objectcore.Record, error) {
	dialectName := d.conn.Dialect()
	sel := sqlpkg.NewSelector(dialectName, d.table(object))
	if len(q.Fields) > 0 {
		sel.Select(d.idAlias.Fields(q.Fields)...)
	}
	pred, err := compileFilter(d.idAlias.Filter(q.Filters))
	if err != nil {
		return nil, err
	}
	sel.Where(pred)
	for _, s := range d.idAlias.Sort(q.Sort) {
		sel.OrderBy(s.Field, string(s.Direction))
	}
	if q.Skip > 0 {
		sel.Offset(q.Skip)
	}
	if q.Limit != nil {
		sel.Limit(*q.Limit)
	}
	return d.query(ctx, opts, sel)
}

func (d *Driver) FindOne(ctx context.Context, object string, idOrQuery any, opts driver.Options) (objectcore.Record, error) {
	var q *objectcore.UnifiedQuery
	switch t := idOrQuery.(type) {
	case *objectcore.UnifiedQuery:
		q = t.Clone()
	default:
		q = objectcore.NewQuery(object)
		q.Filters = objectcore.Crit("id", objectcore.OpEQ, t)
	}
	one := 1
	q.Limit = &one
	rows, err := d.Find(ctx, object, q, opts)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (d *Driver) Count(ctx context.Context, object string, filtersOrQuery any, opts driver.Options) (int, error) {
	f := filterFromAny(filtersOrQuery)
	sel := sqlpkg.NewSelector(d.conn.Dialect(), d.table(object)).SelectExpr("COUNT(*) AS n")
	pred, err := compileFilter(d.idAlias.Filter(f))
	if err != nil {
		return 0, err
	}
	sel.Where(pred)
	query, args := sel.Query()
	var rows sqlpkg.Rows
	ctx, ex := d.connFor(ctx, opts)
	if err := ex.Query(ctx, query, args, &rows); err != nil {
		return 0, driver.NewError(objectcore.DriverErrOther, "count", err)
	}
	defer rows.Close()
	n := 0
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, driver.NewError(objectcore.DriverErrOther, "count", err)
		}
	}
	return n, nil
}

func (d *Driver) Distinct(ctx context.Context, object, field string, filters objectcore.Filter, opts driver.Options) ([]any, error) {
	sel := sqlpkg.NewSelector(d.conn.Dialect(), d.table(object)).Select(d.idAlias.In(field))
	pred, err := compileFilter(d.idAlias.Filter(filters))
	if err != nil {
		return nil, err
	}
	sel.Where(pred)
	recs, err := d.query(ctx, opts, sel)
	if err != nil {
		return nil, err
	}
	seen := map[any]bool{}
	var out []any
	for _, r := range recs {
		v := r[field]
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}

func (d *Driver) Aggregate(ctx context.Context, object string, q *objectcore.UnifiedQuery, opts driver.Options) ([]objectcore.Record, error) {
	dialectName := d.conn.Dialect()
	sel := sqlpkg.NewSelector(dialectName, d.table(object))
	cols := make([]string, 0, len(q.GroupBy)+len(q.Aggregations))
	for _, g := range q.GroupBy {
		cols = append(cols, fmt.Sprintf("%s AS %s", sel.C(g), g))
	}
	for _, agg := range q.Aggregations {
		cols = append(cols, fmt.Sprintf("%s(%s) AS %s", sqlFunc(agg.Func), sqlColumnOrStar(sel, agg.Field), agg.Alias))
	}
	sel.SelectExpr(cols...)
	pred, err := compileFilter(d.idAlias.Filter(q.Filters))
	if err != nil {
		return nil, err
	}
	sel.Where(pred)
	sel.GroupBy(q.GroupBy...)
	return d.query(ctx, opts, sel)
}

func sqlFunc(f objectcore.AggregateFunc) string {
	switch f {
	case objectcore.AggCount:
		return "COUNT"
	case objectcore.AggSum:
		return "SUM"
	case objectcore.AggAvg:
		return "AVG"
	case objectcore.AggMin:
		return "MIN"
	default:
		return "MAX"
	}
}

func sqlColumnOrStar(sel *sqlpkg.Selector, field string) string {
	if field == "" || field == "*" {
		return "*"
	}
	return sel.C(field)
}

func (d *Driver) Create(ctx context.Context, object string, doc objectcore.Record, opts driver.Options) (objectcore.Record, error) {
	rec := doc.Clone()
	if v, ok := rec["id"]; !ok || v == nil || v == "" {
		rec["id"] = uuid.New().String()
	}
	now := objectcore.Now().UTC().Format(time.RFC3339)
	rec["created_at"] = now
	rec["updated_at"] = now

	cols := make([]string, 0, len(rec))
	vals := make([]any, 0, len(rec))
	for k, v := range rec {
		cols = append(cols, d.idAlias.In(k))
		vals = append(vals, v)
	}
	ins := sqlpkg.Insert(d.conn.Dialect(), d.table(object)).Columns(cols...).Values(vals...)
	query, args := ins.Query()
	var res sql.Result
	ctx, ex := d.connFor(ctx, opts)
	if err := ex.Exec(ctx, query, args, &res); err != nil {
		return nil, classifyWriteError("create", err)
	}
	return rec, nil
}

func (d *Driver) Update(ctx context.Context, object string, id any, patch objectcore.Record, opts driver.Options) (objectcore.Record, error) {
	upd := sqlpkg.Update(d.conn.Dialect(), d.table(object))
	for k, v := range patch {
		if k == "id" || k == "created_at" {
			continue
		}
		upd.Set(d.idAlias.In(k), v)
	}
	upd.Set("updated_at", objectcore.Now().UTC().Format(time.RFC3339))
	upd.Where(sqlpkg.EQ(d.idAlias.In("id"), id))
	query, args := upd.Query()
	var res sql.Result
	ctx, ex := d.connFor(ctx, opts)
	if err := ex.Exec(ctx, query, args, &res); err != nil {
		return nil, classifyWriteError("update", err)
	}
	return d.FindOne(ctx, object, id, opts)
}

func (d *Driver) Delete(ctx context.Context, object string, id any, opts driver.Options) (int, error) {
	del := sqlpkg.Delete(d.conn.Dialect(), d.table(object)).Where(sqlpkg.EQ(d.idAlias.In("id"), id))
	query, args := del.Query()
	var res sql.Result
	ctx, ex := d.connFor(ctx, opts)
	if err := ex.Exec(ctx, query, args, &res); err != nil {
		return 0, classifyWriteError("delete", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
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
	ids, err := d.matchingIDs(ctx, object, filters, opts)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if _, err := d.Update(ctx, object, id, patch, opts); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (d *Driver) DeleteMany(ctx context.Context, object string, filters objectcore.Filter, opts driver.Options) (int, error) {
	ids, err := d.matchingIDs(ctx, object, filters, opts)
	if err != nil {
		return 0, err
	}
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

func (d *Driver) matchingIDs(ctx context.Context, object string, filters objectcore.Filter, opts driver.Options) ([]any, error) {
	q := objectcore.NewQuery(object)
	q.Filters = filters
	q.Fields = []string{"id"}
	rows, err := d.Find(ctx, object, q, opts)
	if err != nil {
		return nil, err
	}
	ids := make([]any, len(rows))
	for i, r := range rows {
		ids[i] = r["id"]
	}
	return ids, nil
}

func (d *Driver) FindOneAndUpdate(ctx context.Context, object string, filters objectcore.Filter, patch objectcore.Record, fopts driver.FindOneAndUpdateOptions, opts driver.Options) (objectcore.Record, error) {
	q := objectcore.NewQuery(object)
	q.Filters = filters
	before, err := d.FindOne(ctx, object, q, opts)
	if err != nil {
		return nil, err
	}
	if before == nil {
		if !fopts.Upsert {
			return nil, nil
		}
		return d.Create(ctx, object, patch, opts)
	}
	id, _ := before["id"]
	after, err := d.Update(ctx, object, id, patch, opts)
	if err != nil {
		return nil, err
	}
	if fopts.ReturnDocument == driver.ReturnBefore {
		return before, nil
	}
	return after, nil
}

// Tx wraps a dialect/sql transaction so it satisfies driver.Tx's
// context-taking Commit/Rollback signatures.
type Tx struct {
	conn dialect.Tx
}

func (d *Driver) BeginTransaction(ctx context.Context) (driver.Tx, error) {
	tx, err := d.conn.Tx(ctx)
	if err != nil {
		return nil, driver.NewError(objectcore.DriverErrConnection, "begin_transaction", err)
	}
	return &Tx{conn: tx}, nil
}

func (t *Tx) Commit(context.Context) error { return t.conn.Commit() }

func (t *Tx) Rollback(context.Context) error { return t.conn.Rollback() }

func (d *Driver) query(ctx context.Context, opts driver.Options, sel *sqlpkg.Selector) ([]objectcore.Record, error) {
	query, args := sel.Query()
	var rows sqlpkg.Rows
	ctx, ex := d.connFor(ctx, opts)
	if err := ex.Query(ctx, query, args, &rows); err != nil {
		return nil, driver.NewError(objectcore.DriverErrOther, "query", err)
	}
	defer rows.Close()
	return scanRows(&rows, d.idAlias)
}

func scanRows(rows *sqlpkg.Rows, alias objectcore.IDAlias) ([]objectcore.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, driver.NewError(objectcore.DriverErrOther, "scan", err)
	}
	var out []objectcore.Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, driver.NewError(objectcore.DriverErrOther, "scan", err)
		}
		rec := make(objectcore.Record, len(cols))
		for i, c := range cols {
			rec[c] = normalizeScanned(vals[i])
		}
		out = append(out, alias.Record(rec))
	}
	if err := rows.Err(); err != nil {
		return nil, driver.NewError(objectcore.DriverErrOther, "scan", err)
	}
	return out, nil
}

// normalizeScanned converts driver-specific scan results ([]byte for
// text/varchar columns under most database/sql drivers) into the plain
// string/number/bool/time values the engine's Record expects.
func normalizeScanned(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
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

func classifyWriteError(op string, err error) *driver.Error {
	msg := err.Error()
	if containsAny(msg, "UNIQUE", "unique", "duplicate", "constraint") {
		return driver.NewError(objectcore.DriverErrConstraint, op, err)
	}
	return driver.NewError(objectcore.DriverErrOther, op, err)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if indexOf(s, sub) {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

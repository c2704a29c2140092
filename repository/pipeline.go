package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/contrib/dataloader"
	"github.com/syssam/objectcore/driver"
	"github.com/syssam/objectcore/hooks"
	"github.com/syssam/objectcore/metadata"
	"github.com/syssam/objectcore/validation"
)

// wrapDriverErr classifies a driver failure into the engine's taxonomy
// unless it is already one (e.g. a context cancellation surfaced as-is).
func wrapDriverErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*objectcore.Error); ok {
		return err
	}
	return driver.ToEngineError(err)
}

// runValidation evaluates the object's rules for a write op, returning a
// CodeValidationError *objectcore.Error carrying a per-field detail map
// when any rule reports an error-severity failure (spec §4.5, §4.8 step
// 4/5 beforeValidate/afterValidate straddle this call).
func (r *Repository) runValidation(ctx context.Context, obj *metadata.ObjectDef, op objectcore.Op, data, before objectcore.Record) error {
	if r.d.Validation == nil {
		return nil
	}
	res, err := r.d.Validation.EvaluateAll(obj, op, r.reqCtx.Lang, validation.Scope{Record: data, Before: before})
	if err != nil {
		return err
	}
	if !res.HasErrors() {
		return nil
	}
	details := map[string]any{}
	for _, f := range res.Failures {
		if f.Severity != metadata.SeverityError {
			continue
		}
		details[f.Field] = f.Message
	}
	return objectcore.NewError(objectcore.CodeValidationError, "validation failed").WithDetails(details)
}

// stampServerFields sets the server-managed fields the caller must never
// supply directly (spec §4.8 step 8, objectcore.ServerStampedFields).
func stampServerFields(data objectcore.Record, op objectcore.Op, reqCtx RequestContext) {
	now := objectcore.Now()
	if op == objectcore.OpCreate || op == objectcore.OpCreateMany {
		data["created_at"] = now
		if reqCtx.UserID != "" {
			data["created_by"] = reqCtx.UserID
		}
		if reqCtx.SpaceID != "" {
			data["space_id"] = reqCtx.SpaceID
		}
	}
	data["updated_at"] = now
}

// Find runs the read pipeline for a list query (spec §4.8, beforeFind /
// afterFind).
func (r *Repository) Find(ctx context.Context, q *objectcore.UnifiedQuery) ([]objectcore.Record, error) {
	obj, drv, err := r.resolve()
	if err != nil {
		return nil, err
	}
	g := r.resolveGrant(objectcore.ActionRead)
	if !g.allowed {
		return nil, objectcore.Forbidden(fmt.Sprintf("read denied on %s", r.object))
	}
	if q == nil {
		q = objectcore.NewQuery(r.object)
	}
	q = q.Clone()
	q.Filters = g.withRowFilter(q.Filters)
	if err := r.checkQueryPolicy(ctx, q); err != nil {
		return nil, err
	}

	hc := r.newHookContext(hooks.BeforeFind, objectcore.OpFind)
	hc.Query = q
	if err := r.triggerHook(ctx, hooks.BeforeFind, hc); err != nil {
		return nil, err
	}

	recs, err := drv.Find(ctx, r.object, hc.Query, r.driverOptions())
	if err != nil {
		return nil, wrapDriverErr(err)
	}
	for i, rec := range recs {
		recs[i] = g.maskRead(rec)
	}
	if err := r.resolveExpand(ctx, obj, recs, q.Expand); err != nil {
		return nil, err
	}

	hc.Result = recs
	if err := r.triggerHook(ctx, hooks.AfterFind, hc); err != nil {
		return nil, err
	}

	if masked, ok := hc.Result.([]objectcore.Record); ok {
		recs = masked
	}
	return recs, nil
}

// FindOne resolves a single record by id or a one-result query (spec
// §4.2 find_one).
func (r *Repository) FindOne(ctx context.Context, idOrQuery any) (objectcore.Record, error) {
	obj, drv, err := r.resolve()
	if err != nil {
		return nil, err
	}
	g := r.resolveGrant(objectcore.ActionRead)
	if !g.allowed {
		return nil, objectcore.Forbidden(fmt.Sprintf("read denied on %s", r.object))
	}

	var q *objectcore.UnifiedQuery
	switch v := idOrQuery.(type) {
	case *objectcore.UnifiedQuery:
		q = v.Clone()
	default:
		q = objectcore.NewQuery(r.object)
		q.Filters = objectcore.Crit("id", objectcore.OpEQ, v)
	}
	q.Filters = g.withRowFilter(q.Filters)
	if err := r.checkQueryPolicy(ctx, q); err != nil {
		return nil, err
	}

	hc := r.newHookContext(hooks.BeforeFind, objectcore.OpFindOne)
	hc.Query = q
	if err := r.triggerHook(ctx, hooks.BeforeFind, hc); err != nil {
		return nil, err
	}

	rec, err := drv.FindOne(ctx, r.object, hc.Query, r.driverOptions())
	if err != nil {
		return nil, wrapDriverErr(err)
	}
	if rec == nil {
		return nil, objectcore.NotFound(r.object, idOrQuery)
	}
	rec = g.maskRead(rec)
	if err := r.resolveExpand(ctx, obj, []objectcore.Record{rec}, q.Expand); err != nil {
		return nil, err
	}

	hc.Result = rec
	if err := r.triggerHook(ctx, hooks.AfterFind, hc); err != nil {
		return nil, err
	}

	if masked, ok := hc.Result.(objectcore.Record); ok {
		rec = masked
	}
	return rec, nil
}

// Count runs the read pipeline for a count query (beforeCount/afterCount).
func (r *Repository) Count(ctx context.Context, filters objectcore.Filter) (int, error) {
	_, drv, err := r.resolve()
	if err != nil {
		return 0, err
	}
	g := r.resolveGrant(objectcore.ActionRead)
	if !g.allowed {
		return 0, objectcore.Forbidden(fmt.Sprintf("read denied on %s", r.object))
	}
	filters = g.withRowFilter(filters)

	q := objectcore.NewQuery(r.object)
	q.Filters = filters
	if err := r.checkQueryPolicy(ctx, q); err != nil {
		return 0, err
	}

	hc := r.newHookContext(hooks.BeforeCount, objectcore.OpCount)
	hc.Query = q
	if err := r.triggerHook(ctx, hooks.BeforeCount, hc); err != nil {
		return 0, err
	}

	n, err := drv.Count(ctx, r.object, hc.Query.Filters, r.driverOptions())
	if err != nil {
		return 0, wrapDriverErr(err)
	}

	hc.Result = n
	if err := r.triggerHook(ctx, hooks.AfterCount, hc); err != nil {
		return 0, err
	}

	return n, nil
}

// Create runs the full write pipeline for a single record (spec §4.8
// steps 1-11 for the create path).
func (r *Repository) Create(ctx context.Context, data objectcore.Record) (objectcore.Record, error) {
	obj, drv, err := r.resolve()
	if err != nil {
		return nil, err
	}
	g := r.resolveGrant(objectcore.ActionCreate)
	if !g.allowed {
		return nil, objectcore.Forbidden(fmt.Sprintf("create denied on %s", r.object))
	}
	data = g.maskWrite(data.Clone())

	mut := objectcore.NewMutation(r.object, objectcore.OpCreate, data)
	if err := r.checkMutationPolicy(ctx, mut); err != nil {
		return nil, err
	}

	hc := r.newHookContext(hooks.BeforeCreate, objectcore.OpCreate)
	hc.Data = data
	if err := r.triggerHook(ctx, hooks.BeforeValidate, hc); err != nil {
		return nil, err
	}

	if err := r.runValidation(ctx, obj, objectcore.OpCreate, hc.Data, nil); err != nil {
		return nil, err
	}
	if err := r.triggerHook(ctx, hooks.AfterValidate, hc); err != nil {
		return nil, err
	}
	if err := r.triggerHook(ctx, hooks.BeforeCreate, hc); err != nil {
		return nil, err
	}

	stampServerFields(hc.Data, objectcore.OpCreate, r.reqCtx)

	rec, err := drv.Create(ctx, r.object, hc.Data, r.driverOptions())
	if err != nil {
		return nil, wrapDriverErr(err)
	}
	rec = g.maskRead(rec)

	hc.Result = rec
	if err := r.triggerHook(ctx, hooks.AfterCreate, hc); err != nil {
		return nil, err
	}

	if masked, ok := hc.Result.(objectcore.Record); ok {
		rec = masked
	}
	return rec, nil
}

// Update runs the full write pipeline for a single record, fetching
// previousData first so tenancy/validation/hooks can compare against it
// (spec §4.8 step 7).
func (r *Repository) Update(ctx context.Context, id any, patch objectcore.Record) (objectcore.Record, error) {
	obj, drv, err := r.resolve()
	if err != nil {
		return nil, err
	}
	g := r.resolveGrant(objectcore.ActionUpdate)
	if !g.allowed {
		return nil, objectcore.Forbidden(fmt.Sprintf("update denied on %s", r.object))
	}
	patch = g.maskWrite(patch.Clone())

	before, err := r.fetchPrevious(ctx, drv, id, g)
	if err != nil {
		return nil, err
	}

	mut := objectcore.NewMutation(r.object, objectcore.OpUpdate, patch)
	if err := r.checkMutationPolicy(ctx, mut); err != nil {
		return nil, err
	}

	hc := r.newHookContext(hooks.BeforeUpdate, objectcore.OpUpdate)
	hc.ID = id
	hc.Data = patch
	hc.PreviousData = before
	if err := r.triggerHook(ctx, hooks.BeforeValidate, hc); err != nil {
		return nil, err
	}

	if err := r.runValidation(ctx, obj, objectcore.OpUpdate, hc.Data, before); err != nil {
		return nil, err
	}
	if err := r.triggerHook(ctx, hooks.AfterValidate, hc); err != nil {
		return nil, err
	}
	if err := r.triggerHook(ctx, hooks.BeforeUpdate, hc); err != nil {
		return nil, err
	}

	stampServerFields(hc.Data, objectcore.OpUpdate, r.reqCtx)

	rec, err := drv.Update(ctx, r.object, id, hc.Data, r.driverOptions())
	if err != nil {
		return nil, wrapDriverErr(err)
	}
	rec = g.maskRead(rec)

	hc.Result = rec
	if err := r.triggerHook(ctx, hooks.AfterUpdate, hc); err != nil {
		return nil, err
	}

	if masked, ok := hc.Result.(objectcore.Record); ok {
		rec = masked
	}
	return rec, nil
}

// Delete runs the full write pipeline for a single record.
func (r *Repository) Delete(ctx context.Context, id any) (int, error) {
	_, drv, err := r.resolve()
	if err != nil {
		return 0, err
	}
	g := r.resolveGrant(objectcore.ActionDelete)
	if !g.allowed {
		return 0, objectcore.Forbidden(fmt.Sprintf("delete denied on %s", r.object))
	}

	before, err := r.fetchPrevious(ctx, drv, id, g)
	if err != nil {
		return 0, err
	}

	mut := objectcore.NewMutation(r.object, objectcore.OpDelete, objectcore.Record{})
	if err := r.checkMutationPolicy(ctx, mut); err != nil {
		return 0, err
	}

	hc := r.newHookContext(hooks.BeforeDelete, objectcore.OpDelete)
	hc.ID = id
	hc.PreviousData = before
	if err := r.triggerHook(ctx, hooks.BeforeDelete, hc); err != nil {
		return 0, err
	}

	n, err := drv.Delete(ctx, r.object, id, r.driverOptions())
	if err != nil {
		return 0, wrapDriverErr(err)
	}

	hc.Result = n
	if err := r.triggerHook(ctx, hooks.AfterDelete, hc); err != nil {
		return 0, err
	}

	return n, nil
}

// fetchPrevious loads the record update/delete is about to act on, for
// the hook context's PreviousData slot and for tenancy's ownership checks
// (spec §4.8 step 7). The row filter is applied so a caller cannot probe
// for the existence of a record outside their granted rows.
func (r *Repository) fetchPrevious(ctx context.Context, drv driver.Driver, id any, g grant) (objectcore.Record, error) {
	q := objectcore.NewQuery(r.object)
	q.Filters = g.withRowFilter(objectcore.Crit("id", objectcore.OpEQ, id))
	rec, err := drv.FindOne(ctx, r.object, q, r.driverOptions())
	if err != nil {
		return nil, wrapDriverErr(err)
	}
	if rec == nil {
		return nil, objectcore.NotFound(r.object, id)
	}
	return rec, nil
}

// CreateMany iterates the single-record create pipeline per document, so
// every hook, validation rule and tenancy stamp still fires per record
// (the spec's bulk fallback; golang.org/x/sync/errgroup bounds the
// fan-out). A driver's native CreateMany primitive is not used directly,
// since the hook vocabulary (spec §4.4) has no bulk-scoped events to fire
// around it.
func (r *Repository) CreateMany(ctx context.Context, docs []objectcore.Record) ([]objectcore.Record, error) {
	out := make([]objectcore.Record, len(docs))
	eg, ctx := errg(ctx)
	eg.SetLimit(8)
	for i, doc := range docs {
		i, doc := i, doc
		eg.Go(func() error {
			rec, err := r.Create(ctx, doc)
			if err != nil {
				return err
			}
			out[i] = rec
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateMany finds every record matching filters, then updates each
// through the single-record pipeline.
func (r *Repository) UpdateMany(ctx context.Context, filters objectcore.Filter, patch objectcore.Record) (int, error) {
	q := objectcore.NewQuery(r.object)
	q.Filters = filters
	matches, err := r.Find(ctx, q)
	if err != nil {
		return 0, err
	}
	eg, ctx := errg(ctx)
	eg.SetLimit(8)
	for _, rec := range matches {
		rec := rec
		eg.Go(func() error {
			id, _ := rec.ID()
			_, err := r.Update(ctx, id, patch)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}
	return len(matches), nil
}

// DeleteMany finds every record matching filters, then deletes each
// through the single-record pipeline.
func (r *Repository) DeleteMany(ctx context.Context, filters objectcore.Filter) (int, error) {
	q := objectcore.NewQuery(r.object)
	q.Filters = filters
	matches, err := r.Find(ctx, q)
	if err != nil {
		return 0, err
	}
	eg, ctx := errg(ctx)
	eg.SetLimit(8)
	for _, rec := range matches {
		rec := rec
		eg.Go(func() error {
			id, _ := rec.ID()
			_, err := r.Delete(ctx, id)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}
	return len(matches), nil
}

// Aggregate runs a grouped aggregation query through the read pipeline,
// sharing beforeFind/afterFind since the hook vocabulary does not define
// aggregate-specific events.
func (r *Repository) Aggregate(ctx context.Context, q *objectcore.UnifiedQuery) ([]objectcore.Record, error) {
	_, drv, err := r.resolve()
	if err != nil {
		return nil, err
	}
	g := r.resolveGrant(objectcore.ActionRead)
	if !g.allowed {
		return nil, objectcore.Forbidden(fmt.Sprintf("read denied on %s", r.object))
	}
	q = q.Clone()
	q.Filters = g.withRowFilter(q.Filters)
	if err := r.checkQueryPolicy(ctx, q); err != nil {
		return nil, err
	}

	hc := r.newHookContext(hooks.BeforeFind, objectcore.OpAggregate)
	hc.Query = q
	if err := r.triggerHook(ctx, hooks.BeforeFind, hc); err != nil {
		return nil, err
	}

	rows, err := drv.Aggregate(ctx, r.object, hc.Query, r.driverOptions())
	if err != nil {
		return nil, wrapDriverErr(err)
	}

	hc.Result = rows
	if err := r.triggerHook(ctx, hooks.AfterFind, hc); err != nil {
		return nil, err
	}

	return rows, nil
}

// Distinct returns the distinct values of field matching filters, routed
// through the same read permission check as Find.
func (r *Repository) Distinct(ctx context.Context, field string, filters objectcore.Filter) ([]any, error) {
	_, drv, err := r.resolve()
	if err != nil {
		return nil, err
	}
	g := r.resolveGrant(objectcore.ActionRead)
	if !g.allowed {
		return nil, objectcore.Forbidden(fmt.Sprintf("read denied on %s", r.object))
	}
	filters = g.withRowFilter(filters)
	vals, err := drv.Distinct(ctx, r.object, field, filters, r.driverOptions())
	if err != nil {
		return nil, wrapDriverErr(err)
	}
	return vals, nil
}

// FindOneAndUpdate runs the combined find/update primitive, fetching the
// matched record first for the hook context's PreviousData slot (spec
// §4.3 FindOneAndUpdate, §4.8's update pipeline applied atomically at the
// driver).
func (r *Repository) FindOneAndUpdate(ctx context.Context, filters objectcore.Filter, patch objectcore.Record, opts driver.FindOneAndUpdateOptions) (objectcore.Record, error) {
	obj, drv, err := r.resolve()
	if err != nil {
		return nil, err
	}
	g := r.resolveGrant(objectcore.ActionUpdate)
	if !g.allowed {
		return nil, objectcore.Forbidden(fmt.Sprintf("update denied on %s", r.object))
	}
	patch = g.maskWrite(patch.Clone())
	filters = g.withRowFilter(filters)

	beforeQuery := objectcore.NewQuery(r.object)
	beforeQuery.Filters = filters
	before, _ := drv.FindOne(ctx, r.object, beforeQuery, r.driverOptions())

	hc := r.newHookContext(hooks.BeforeUpdate, objectcore.OpFindOneAndUpdate)
	hc.Data = patch
	hc.PreviousData = before
	if err := r.triggerHook(ctx, hooks.BeforeValidate, hc); err != nil {
		return nil, err
	}

	if err := r.runValidation(ctx, obj, objectcore.OpFindOneAndUpdate, hc.Data, before); err != nil {
		return nil, err
	}
	if err := r.triggerHook(ctx, hooks.AfterValidate, hc); err != nil {
		return nil, err
	}
	if err := r.triggerHook(ctx, hooks.BeforeUpdate, hc); err != nil {
		return nil, err
	}

	stampServerFields(hc.Data, objectcore.OpUpdate, r.reqCtx)

	rec, err := drv.FindOneAndUpdate(ctx, r.object, filters, hc.Data, opts, r.driverOptions())
	if err != nil {
		return nil, wrapDriverErr(err)
	}
	rec = g.maskRead(rec)

	hc.Result = rec
	if err := r.triggerHook(ctx, hooks.AfterUpdate, hc); err != nil {
		return nil, err
	}

	return rec, nil
}

// resolveExpand fills each expand key naming a to-one relationship field
// on obj with the related record (spec §4.2 Expand, §5.4 "evaluated in
// the same session as the outer query"). One nested Find runs per expand
// key regardless of how many source records reference it: the distinct
// foreign-key values are collected first and the related rows matched
// back onto every source record with dataloader.GroupByKey, the same
// batch-then-scatter shape contrib/dataloader documents for N+1
// avoidance. Keys that do not name a relationship field on obj are
// ignored rather than erroring, since the legacy dialect tolerates
// unknown expand keys the same way it tolerates unknown filter fields.
func (r *Repository) resolveExpand(ctx context.Context, obj *metadata.ObjectDef, recs []objectcore.Record, expand objectcore.Expand) error {
	if len(expand) == 0 || len(recs) == 0 {
		return nil
	}
	type resolved struct {
		key     string
		related []objectcore.Record
	}
	var (
		mu  sync.Mutex
		out []resolved
	)
	g, gctx := errg(ctx)
	for key, sub := range expand {
		field, ok := obj.Fields[key]
		if !ok || field.RelationTarget() == "" {
			continue
		}
		key, sub, target := key, sub, field.RelationTarget()
		g.Go(func() error {
			ids := distinctFieldValues(recs, key)
			if len(ids) == 0 {
				return nil
			}
			q := rebindQuery(sub, target)
			q.Filters = objectcore.And(objectcore.Crit("id", objectcore.OpIn, ids), q.Filters)
			related, err := r.d.Object(target, r.reqCtx).Find(gctx, q)
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, resolved{key: key, related: related})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, res := range out {
		byID := dataloader.GroupByKey(res.related, func(rec objectcore.Record) any { return rec["id"] })
		for i, rec := range recs {
			group, ok := byID[rec[res.key]]
			if !ok || len(group) == 0 {
				continue
			}
			recs[i][res.key] = group[0]
		}
	}
	return nil
}

// distinctFieldValues collects the non-nil values of field across recs,
// deduplicated, in first-seen order.
func distinctFieldValues(recs []objectcore.Record, field string) []any {
	seen := make(map[any]struct{}, len(recs))
	values := make([]any, 0, len(recs))
	for _, rec := range recs {
		v, ok := rec[field]
		if !ok || v == nil {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	return values
}

// rebindQuery returns a query equivalent to sub (or a fresh unfiltered
// query if sub is nil) but bound to object, since UnifiedQuery.object is
// unexported and only settable through NewQuery — a caller-supplied
// nested Expand query may omit it or target the wrong object name.
func rebindQuery(sub *objectcore.UnifiedQuery, object string) *objectcore.UnifiedQuery {
	q := objectcore.NewQuery(object)
	if sub == nil {
		return q
	}
	clone := sub.Clone()
	q.Fields = clone.Fields
	q.Filters = clone.Filters
	q.Sort = clone.Sort
	q.Skip = clone.Skip
	q.Limit = clone.Limit
	q.Expand = clone.Expand
	q.Aggregations = clone.Aggregations
	q.GroupBy = clone.GroupBy
	return q
}

package transport

import (
	"context"
	"fmt"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/actions"
	"github.com/syssam/objectcore/engine"
)

// Dispatcher decodes a unified Request (spec §6) and runs it against an
// engine.Engine, independent of whichever adapter (REST, a future
// JSON-RPC endpoint) produced the envelope: "the same request envelope
// must produce identical results across transports".
type Dispatcher struct {
	Engine *engine.Engine
}

// NewDispatcher wraps eng.
func NewDispatcher(eng *engine.Engine) *Dispatcher { return &Dispatcher{Engine: eng} }

// Handle dispatches req and always returns a Response, never an error:
// every failure is folded into the response envelope's error shape (spec
// §7 "the response envelope always contains either items/record fields or
// error, never both").
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	reqCtx := d.contextFor(req)

	switch req.Op {
	case OpFind:
		return d.find(ctx, req, reqCtx)
	case OpFindOne:
		return d.findOne(ctx, req, reqCtx)
	case OpCount:
		return d.count(ctx, req, reqCtx)
	case OpCreate:
		return d.create(ctx, req, reqCtx)
	case OpUpdate:
		return d.update(ctx, req, reqCtx)
	case OpDelete:
		return d.del(ctx, req, reqCtx)
	case OpCreateMany:
		return d.createMany(ctx, req, reqCtx)
	case OpUpdateMany:
		return d.updateMany(ctx, req, reqCtx)
	case OpDeleteMany:
		return d.deleteMany(ctx, req, reqCtx)
	case OpAction:
		return d.action(ctx, req, reqCtx)
	default:
		return ErrorResponse(objectcore.NewError(objectcore.CodeInvalidRequest, fmt.Sprintf("unknown op %q", req.Op)))
	}
}

func (d *Dispatcher) contextFor(req Request) engine.Context {
	if req.User == nil {
		return d.Engine.CreateContext()
	}
	u := req.User
	return d.Engine.CreateContext(
		engine.WithUser(u.UserID, u.Roles, u.Record),
		engine.WithTenant(u.TenantID),
		engine.WithSpace(u.SpaceID),
		engine.WithLang(u.Lang),
	)
}

func listMeta(total, skip int, limit *int, n int) *Meta {
	size := n
	if limit != nil {
		size = *limit
	}
	page, pages := 1, 1
	if size > 0 {
		page = skip/size + 1
		pages = (total + size - 1) / size
		if pages == 0 {
			pages = 1
		}
	}
	hasNext := skip+n < total
	return &Meta{Total: total, Page: page, Size: size, Pages: pages, HasNext: hasNext}
}

func (d *Dispatcher) find(ctx context.Context, req Request, reqCtx engine.Context) Response {
	q, err := objectcore.NormalizeQuery(req.Object, req.Args)
	if err != nil {
		return ErrorResponse(err)
	}
	recs, err := d.Engine.Object(req.Object, reqCtx).Find(ctx, q)
	if err != nil {
		return ErrorResponse(err)
	}
	total, err := d.Engine.Object(req.Object, reqCtx).Count(ctx, q.Filters)
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{Items: recs, ListMeta: listMeta(total, q.Skip, q.Limit, len(recs))}
}

func (d *Dispatcher) findOne(ctx context.Context, req Request, reqCtx engine.Context) Response {
	var arg any
	if id, ok := req.Args["id"]; ok {
		arg = id
	} else {
		q, err := objectcore.NormalizeQuery(req.Object, req.Args)
		if err != nil {
			return ErrorResponse(err)
		}
		arg = q
	}
	rec, err := d.Engine.Object(req.Object, reqCtx).FindOne(ctx, arg)
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{Record: rec, Type: req.Object}
}

func (d *Dispatcher) count(ctx context.Context, req Request, reqCtx engine.Context) Response {
	q, err := objectcore.NormalizeQuery(req.Object, req.Args)
	if err != nil {
		return ErrorResponse(err)
	}
	n, err := d.Engine.Object(req.Object, reqCtx).Count(ctx, q.Filters)
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{IsCount: true, Count: n}
}

func argRecord(args map[string]any, key string) objectcore.Record {
	v, ok := args[key]
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return objectcore.Record(m)
}

func (d *Dispatcher) create(ctx context.Context, req Request, reqCtx engine.Context) Response {
	data := objectcore.Record(req.Args)
	if v := argRecord(req.Args, "data"); v != nil {
		data = v
	}
	rec, err := d.Engine.Object(req.Object, reqCtx).Create(ctx, data)
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{Record: rec, Type: req.Object}
}

func (d *Dispatcher) update(ctx context.Context, req Request, reqCtx engine.Context) Response {
	id, ok := req.Args["id"]
	if !ok {
		return ErrorResponse(objectcore.NewError(objectcore.CodeInvalidRequest, "update requires args.id"))
	}
	data := argRecord(req.Args, "data")
	if data == nil {
		return ErrorResponse(objectcore.NewError(objectcore.CodeInvalidRequest, "update requires args.data"))
	}
	rec, err := d.Engine.Object(req.Object, reqCtx).Update(ctx, id, data)
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{Record: rec, Type: req.Object}
}

func (d *Dispatcher) del(ctx context.Context, req Request, reqCtx engine.Context) Response {
	id, ok := req.Args["id"]
	if !ok {
		return ErrorResponse(objectcore.NewError(objectcore.CodeInvalidRequest, "delete requires args.id"))
	}
	n, err := d.Engine.Object(req.Object, reqCtx).Delete(ctx, id)
	if err != nil {
		return ErrorResponse(err)
	}
	if n == 0 {
		return ErrorResponse(objectcore.NotFound(req.Object, id))
	}
	return Response{ID: id, Deleted: true, Type: req.Object}
}

func (d *Dispatcher) createMany(ctx context.Context, req Request, reqCtx engine.Context) Response {
	raw, _ := req.Args["docs"].([]interface{})
	docs := make([]objectcore.Record, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(map[string]any); ok {
			docs = append(docs, objectcore.Record(m))
		}
	}
	recs, err := d.Engine.Object(req.Object, reqCtx).CreateMany(ctx, docs)
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{Items: recs, ListMeta: &Meta{Total: len(recs), Page: 1, Size: len(recs), Pages: 1}}
}

func (d *Dispatcher) updateMany(ctx context.Context, req Request, reqCtx engine.Context) Response {
	q, err := objectcore.NormalizeQuery(req.Object, req.Args)
	if err != nil {
		return ErrorResponse(err)
	}
	data := argRecord(req.Args, "data")
	n, err := d.Engine.Object(req.Object, reqCtx).UpdateMany(ctx, q.Filters, data)
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{IsCount: true, Count: n}
}

func (d *Dispatcher) deleteMany(ctx context.Context, req Request, reqCtx engine.Context) Response {
	q, err := objectcore.NormalizeQuery(req.Object, req.Args)
	if err != nil {
		return ErrorResponse(err)
	}
	n, err := d.Engine.Object(req.Object, reqCtx).DeleteMany(ctx, q.Filters)
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{IsCount: true, Count: n}
}

func (d *Dispatcher) action(ctx context.Context, req Request, reqCtx engine.Context) Response {
	name, _ := req.Args["action"].(string)
	if name == "" {
		return ErrorResponse(objectcore.NewError(objectcore.CodeInvalidRequest, "action requires args.action"))
	}
	ac := &actions.Context{
		ID:    req.Args["id"],
		Input: argRecord(req.Args, "input"),
	}
	result, err := d.Engine.ExecuteAction(ctx, req.Object, name, reqCtx, ac)
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{IsAction: true, Result: result}
}

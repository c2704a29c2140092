package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/syssam/objectcore"
	"github.com/syssam/objectcore/privacy"
)

// Server mounts the route layout spec §6 names onto a chi.Router: POST
// /rpc for the unified envelope, and GET|POST|PATCH|DELETE /data/{object}
// [/{id}] mapping the REST verbs onto the same Dispatcher.Handle call the
// /rpc route uses, so "the same request envelope must produce identical
// results across transports" holds across both routes too.
type Server struct {
	Dispatcher *Dispatcher
	Auth       *Authenticator
}

// NewServer returns a Server dispatching onto d. auth may be nil, in which
// case every request runs with no session (anonymous).
func NewServer(d *Dispatcher, auth *Authenticator) *Server {
	return &Server{Dispatcher: d, Auth: auth}
}

// Router builds the chi.Router mounting this server's routes, with request
// logging and panic recovery middleware in the order chi's own examples
// apply them (middleware.Logger outermost, Recoverer innermost of the
// ambient pair).
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.sessionMiddleware)

	r.Post("/rpc", s.handleRPC)

	r.Route("/data/{object}", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Get("/{id}", s.handleGetOne)
		r.Patch("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})

	return r
}

type sessionCtxKey struct{}

// sessionMiddleware decodes the Authorization bearer token (if present and
// an Authenticator is configured) once per request, stashed on the
// request context for both route families to read (SPEC_FULL.md §D.3).
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if s.Auth != nil {
			if header := req.Header.Get("Authorization"); header != "" {
				if sess, err := s.Auth.ParseBearer(header); err == nil {
					ctx := context.WithValue(req.Context(), sessionCtxKey{}, sess)
					ctx = privacy.WithViewer(ctx, sess)
					req = req.WithContext(ctx)
				}
			}
		}
		next.ServeHTTP(w, req)
	})
}

// sessionFromContext returns the bearer-decoded Session stashed by
// sessionMiddleware, or nil for an anonymous request.
func sessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionCtxKey{}).(*Session)
	return sess
}

func (s *Server) writeResponse(w http.ResponseWriter, resp Response) {
	status := http.StatusOK
	if resp.Error != nil {
		status = HTTPStatus(resp.Error.Code)
	} else if resp.Deleted {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, ErrorResponse(objectcore.NewError(objectcore.CodeInvalidRequest, "malformed request body")))
		return
	}
	if req.User == nil {
		req.User = sessionFromContext(r.Context())
	}
	s.writeResponse(w, s.Dispatcher.Handle(r.Context(), req))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	req := Request{Op: OpFind, Object: chi.URLParam(r, "object"), Args: queryArgs(r), User: sessionFromContext(r.Context())}
	s.writeResponse(w, s.Dispatcher.Handle(r.Context(), req))
}

func (s *Server) handleGetOne(w http.ResponseWriter, r *http.Request) {
	req := Request{
		Op:     OpFindOne,
		Object: chi.URLParam(r, "object"),
		Args:   map[string]any{"id": chi.URLParam(r, "id")},
		User:   sessionFromContext(r.Context()),
	}
	s.writeResponse(w, s.Dispatcher.Handle(r.Context(), req))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeResponse(w, ErrorResponse(objectcore.NewError(objectcore.CodeInvalidRequest, "malformed request body")))
		return
	}
	req := Request{Op: OpCreate, Object: chi.URLParam(r, "object"), Args: map[string]any{"data": body}, User: sessionFromContext(r.Context())}
	s.writeResponse(w, s.Dispatcher.Handle(r.Context(), req))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeResponse(w, ErrorResponse(objectcore.NewError(objectcore.CodeInvalidRequest, "malformed request body")))
		return
	}
	req := Request{
		Op:     OpUpdate,
		Object: chi.URLParam(r, "object"),
		Args:   map[string]any{"id": chi.URLParam(r, "id"), "data": body},
		User:   sessionFromContext(r.Context()),
	}
	s.writeResponse(w, s.Dispatcher.Handle(r.Context(), req))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	req := Request{
		Op:     OpDelete,
		Object: chi.URLParam(r, "object"),
		Args:   map[string]any{"id": chi.URLParam(r, "id")},
		User:   sessionFromContext(r.Context()),
	}
	s.writeResponse(w, s.Dispatcher.Handle(r.Context(), req))
}

// queryArgs maps the list query parameters spec §6 names (filter, fields,
// top|limit, skip|offset, sort) onto the args map NormalizeQuery accepts.
func queryArgs(r *http.Request) map[string]any {
	q := r.URL.Query()
	args := map[string]any{}
	if raw := q.Get("filter"); raw != "" {
		var f any
		if err := json.Unmarshal([]byte(raw), &f); err == nil {
			args["filters"] = f
		}
	}
	if raw := q.Get("fields"); raw != "" {
		args["fields"] = strings.Split(raw, ",")
	}
	if raw := firstNonEmpty(q.Get("top"), q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			args["limit"] = n
		}
	}
	if raw := firstNonEmpty(q.Get("skip"), q.Get("offset")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			args["skip"] = n
		}
	}
	if raw := q.Get("sort"); raw != "" {
		pairs := make([]any, 0)
		for _, term := range strings.Split(raw, ",") {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			if strings.HasPrefix(term, "-") {
				pairs = append(pairs, []any{strings.TrimPrefix(term, "-"), "desc"})
			} else {
				pairs = append(pairs, []any{term, "asc"})
			}
		}
		args["sort"] = pairs
	}
	return args
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

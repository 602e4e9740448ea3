package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cinder-go/cinder/pkg/ambient"
	"github.com/cinder-go/cinder/pkg/message"
	"github.com/cinder-go/cinder/pkg/router"
)

// ErrNoTree is returned when dispatching before a tree was mounted.
var ErrNoTree = errors.New("dispatch: no route tree")

// Dispatcher resolves requests against a route tree, binds their arguments
// and invokes the matched handler. It holds no per-request state.
type Dispatcher struct {
	tree       *router.Tree
	middleware []Middleware
	logger     *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
// Default: slog.Default() with component=dispatch.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMiddleware appends middleware.
func WithMiddleware(mw ...Middleware) Option {
	return func(d *Dispatcher) {
		d.middleware = append(d.middleware, mw...)
	}
}

// New returns a dispatcher over tree.
func New(tree *router.Tree, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tree:   tree,
		logger: slog.Default().With("component", "dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Tree returns the route tree.
func (d *Dispatcher) Tree() *router.Tree {
	return d.tree
}

// Use appends middleware. Not safe once dispatching has started.
func (d *Dispatcher) Use(mw ...Middleware) {
	d.middleware = append(d.middleware, mw...)
}

// Resolve finds the leaf for req and records it in req.Route and
// req.Unmatched. A request already carrying a route is left alone.
func (d *Dispatcher) Resolve(req *message.Request) (*router.Leaf, error) {
	if req.Route != nil {
		return req.Route, nil
	}
	if d.tree == nil {
		return nil, ErrNoTree
	}
	leaf, rest, err := d.tree.Resolve(req.Method, req.Path)
	if err != nil {
		return nil, err
	}
	req.Route = leaf
	req.Unmatched = rest
	return leaf, nil
}

// Bind resolves req and binds its arguments to the leaf's handler.
func (d *Dispatcher) Bind(ctx context.Context, req *message.Request) (*Call, error) {
	leaf, err := d.Resolve(req)
	if err != nil {
		return nil, err
	}
	values, err := Arguments(ctx, req)
	if err != nil {
		return nil, err
	}
	return bindValues(leaf, req.Unmatched, values)
}

// Dispatch runs the middleware chain around resolution, binding, invocation
// and result encoding, filling resp. The request and response are bound
// into ctx for ambient access.
//
// Errors are returned, never written: a *message.Redirect, a
// *message.HTTPError, an error matching router.ErrRouteNotFound, a
// *HandlerError, or whatever the handler returned.
func (d *Dispatcher) Dispatch(ctx context.Context, req *message.Request, resp *message.Response) error {
	ctx = ambient.WithRequest(ctx, req)
	ctx = ambient.WithResponse(ctx, resp)

	_, resolveErr := d.Resolve(req)
	final := func(ctx context.Context) error {
		if resolveErr != nil {
			return resolveErr
		}
		return d.invoke(ctx, req, resp)
	}
	return Compose(d.middleware, req, resp, final)(ctx)
}

func (d *Dispatcher) invoke(ctx context.Context, req *message.Request, resp *message.Response) error {
	call, err := d.Bind(ctx, req)
	if err != nil {
		return err
	}
	if ct := call.Leaf.Mapping().Produces; ct != "" {
		resp.SetContentType(ct)
	}

	out, err := call.Invoke(ctx)
	if err != nil {
		return err
	}
	if !call.Returns() {
		return nil
	}
	if r, ok := out.(*message.Redirect); ok {
		return r
	}
	res, err := message.Lift(out)
	if err != nil {
		d.logger.Error("handler result not encodable", "route", call.Leaf.URL(), "error", err)
		return err
	}
	return message.Write(resp, res)
}

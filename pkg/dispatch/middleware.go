package dispatch

import (
	"context"

	"github.com/cinder-go/cinder/pkg/message"
)

// Next continues the dispatch chain.
type Next func(ctx context.Context) error

// Middleware wraps a dispatch. It may inspect req.Route, which is set
// before the chain runs (nil when resolution failed).
type Middleware interface {
	Handle(ctx context.Context, req *message.Request, resp *message.Response, next Next) error
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ctx context.Context, req *message.Request, resp *message.Response, next Next) error

// Handle calls f.
func (f MiddlewareFunc) Handle(ctx context.Context, req *message.Request, resp *message.Response, next Next) error {
	return f(ctx, req, resp, next)
}

// Compose builds a chain from middleware and a final handler.
// Middleware is executed in order (first to last), with the handler at the end.
func Compose(mw []Middleware, req *message.Request, resp *message.Response, handler Next) Next {
	chain := handler
	for i := len(mw) - 1; i >= 0; i-- {
		m := mw[i]
		next := chain
		chain = func(ctx context.Context) error {
			return m.Handle(ctx, req, resp, next)
		}
	}
	return chain
}

// Chain combines several middleware into one, run in order.
func Chain(middleware ...Middleware) Middleware {
	return MiddlewareFunc(func(ctx context.Context, req *message.Request, resp *message.Response, next Next) error {
		return Compose(middleware, req, resp, next)(ctx)
	})
}

// Skip bypasses mw when condition holds.
func Skip(condition func(req *message.Request) bool, mw Middleware) Middleware {
	return MiddlewareFunc(func(ctx context.Context, req *message.Request, resp *message.Response, next Next) error {
		if condition(req) {
			return next(ctx)
		}
		return mw.Handle(ctx, req, resp, next)
	})
}

// Only runs mw only when condition holds.
func Only(condition func(req *message.Request) bool, mw Middleware) Middleware {
	return MiddlewareFunc(func(ctx context.Context, req *message.Request, resp *message.Response, next Next) error {
		if !condition(req) {
			return next(ctx)
		}
		return mw.Handle(ctx, req, resp, next)
	})
}

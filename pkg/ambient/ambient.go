// Package ambient gives code deep in a call chain access to the request,
// response, session and socket of the connection it is serving.
//
// Handles live in the context.Context of the connection, so they are visible
// to everything that receives that context and to nothing else. Reading a
// handle that was never bound fails with ErrNotAvailable rather than
// returning another connection's value.
package ambient

import (
	"context"
	"errors"
	"fmt"

	"github.com/cinder-go/cinder/pkg/message"
	"github.com/cinder-go/cinder/pkg/session"
	"github.com/cinder-go/cinder/pkg/socket"
)

// ErrNotAvailable is returned when a handle is read before it was bound.
var ErrNotAvailable = errors.New("ambient: not available")

// handle is a typed context key.
type handle[T any] struct {
	name string
}

func (h *handle[T]) bind(ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, h, v)
}

func (h *handle[T]) get(ctx context.Context) (T, error) {
	v, ok := ctx.Value(h).(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrNotAvailable, h.name)
	}
	return v, nil
}

func (h *handle[T]) must(ctx context.Context) T {
	v, err := h.get(ctx)
	if err != nil {
		panic(err)
	}
	return v
}

var (
	requestHandle  = &handle[*message.Request]{name: "request"}
	responseHandle = &handle[*message.Response]{name: "response"}
	sessionHandle  = &handle[*session.Session]{name: "session"}
	socketHandle   = &handle[*socket.Conn]{name: "socket"}
)

// WithRequest binds the current request. Binding nil is a no-op.
func WithRequest(ctx context.Context, r *message.Request) context.Context {
	if r == nil {
		return ctx
	}
	return requestHandle.bind(ctx, r)
}

// Request returns the bound request.
func Request(ctx context.Context) (*message.Request, error) {
	return requestHandle.get(ctx)
}

// MustRequest is like Request but panics when unbound.
func MustRequest(ctx context.Context) *message.Request {
	return requestHandle.must(ctx)
}

// WithResponse binds the current response. Binding nil is a no-op.
func WithResponse(ctx context.Context, r *message.Response) context.Context {
	if r == nil {
		return ctx
	}
	return responseHandle.bind(ctx, r)
}

// Response returns the bound response.
func Response(ctx context.Context) (*message.Response, error) {
	return responseHandle.get(ctx)
}

// MustResponse is like Response but panics when unbound.
func MustResponse(ctx context.Context) *message.Response {
	return responseHandle.must(ctx)
}

// WithSession binds the current session. Binding nil is a no-op.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	if s == nil {
		return ctx
	}
	return sessionHandle.bind(ctx, s)
}

// Session returns the bound session.
func Session(ctx context.Context) (*session.Session, error) {
	return sessionHandle.get(ctx)
}

// MustSession is like Session but panics when unbound.
func MustSession(ctx context.Context) *session.Session {
	return sessionHandle.must(ctx)
}

// WithSocket binds the current socket. Binding nil is a no-op.
func WithSocket(ctx context.Context, c *socket.Conn) context.Context {
	if c == nil {
		return ctx
	}
	return socketHandle.bind(ctx, c)
}

// Socket returns the bound socket.
func Socket(ctx context.Context) (*socket.Conn, error) {
	return socketHandle.get(ctx)
}

// MustSocket is like Socket but panics when unbound.
func MustSocket(ctx context.Context) *socket.Conn {
	return socketHandle.must(ctx)
}

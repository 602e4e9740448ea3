package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cinder-go/cinder/pkg/ambient"
	"github.com/cinder-go/cinder/pkg/dispatch"
	"github.com/cinder-go/cinder/pkg/gateway"
	"github.com/cinder-go/cinder/pkg/message"
	"github.com/cinder-go/cinder/pkg/router"
	"github.com/cinder-go/cinder/pkg/session"
	"github.com/cinder-go/cinder/pkg/socket"
)

// Binder resolves a request and binds its handler without invoking it.
// *dispatch.Dispatcher is one.
type Binder interface {
	Bind(ctx context.Context, req *message.Request) (*dispatch.Call, error)
}

// Socket serves websocket scopes.
type Socket struct {
	binder   Binder
	sessions session.Store
	config   Config
}

// NewSocket returns a socket handler. store may be nil, in which case
// handlers run without a session.
func NewSocket(binder Binder, store session.Store, opts ...Option) *Socket {
	return &Socket{
		binder:   binder,
		sessions: store,
		config:   newConfig(opts),
	}
}

// Serve implements gateway.Application for websocket scopes.
//
// The connect event is consumed first. A connection with no route is closed
// with code 1008 before it is accepted. Otherwise it is accepted and the
// handler runs with the socket bound in its context. When the handler
// returns the application side is closed if it is still open.
func (s *Socket) Serve(ctx context.Context, scope gateway.Scope, receive gateway.Receive, send gateway.Send) error {
	if scope.Type != gateway.ScopeWebSocket {
		return fmt.Errorf("protocol: socket handler got %q scope", scope.Type)
	}

	// The receive stream belongs to the socket, never to a request body.
	req := message.NewRequestWithBody(scope, nil)
	conn := socket.New(receive, send)

	ctx = ambient.WithRequest(ctx, req)
	ctx = ambient.WithSocket(ctx, conn)

	if _, err := conn.Receive(ctx); err != nil {
		return err
	}

	if s.sessions != nil {
		if id, ok := req.Cookie(s.config.CookieName); ok && session.ValidID(id) {
			sess, err := s.sessions.GetOrCreate(ctx, id)
			if err != nil {
				s.config.Logger.Error("failed to load session", "session", id, "error", err)
			} else {
				ctx = ambient.WithSession(ctx, sess)
			}
		}
	}

	call, err := s.binder.Bind(ctx, req)
	if err != nil {
		if errors.Is(err, router.ErrRouteNotFound) {
			s.access(req, slog.LevelInfo, "rejected", "reason", err)
		} else {
			s.config.Logger.Error("socket bind failed", "path", req.Path, "error", err)
		}
		return conn.Close(ctx, gateway.ClosePolicyViolation)
	}

	if err := conn.Accept(ctx, ""); err != nil {
		return err
	}
	s.access(req, slog.LevelInfo, "opened")

	code := gateway.CloseNormal
	_, err = call.Invoke(ctx)
	switch {
	case err == nil:
		s.access(req, slog.LevelInfo, "closed")
	case errors.Is(err, socket.ErrDisconnect):
		s.access(req, slog.LevelInfo, "disconnected")
	default:
		code = gateway.CloseInternalError
		s.access(req, slog.LevelError, "disconnected unexpectedly")
		attrs := []any{"path", req.Path, "error", err}
		var handlerErr *dispatch.HandlerError
		if errors.As(err, &handlerErr) {
			attrs = append(attrs, "stack", string(handlerErr.Stack))
		}
		s.config.Logger.Error("socket handler failed", attrs...)
	}

	if conn.AppState() == socket.Connected {
		if err := conn.Close(ctx, code); err != nil {
			s.config.Logger.Debug("closing socket", "error", err)
		}
	}
	return nil
}

func (s *Socket) access(req *message.Request, level slog.Level, msg string, attrs ...any) {
	l := s.config.AccessLogger
	if l == nil {
		return
	}
	attrs = append([]any{"client", req.Client, "path", req.Path}, attrs...)
	l.Log(context.Background(), level, "websocket "+msg, attrs...)
}

package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cinder-go/cinder/pkg/ambient"
	"github.com/cinder-go/cinder/pkg/contenttype"
	"github.com/cinder-go/cinder/pkg/dispatch"
	"github.com/cinder-go/cinder/pkg/gateway"
	"github.com/cinder-go/cinder/pkg/header"
	"github.com/cinder-go/cinder/pkg/message"
	"github.com/cinder-go/cinder/pkg/router"
	"github.com/cinder-go/cinder/pkg/session"
)

// HTTPState is the state of one HTTP exchange.
type HTTPState int

const (
	StateStart HTTPState = iota
	StateBodyAwait
	StateDispatch
	StateRespond
	StateDone
	StateErrorCaught
	StateRedirectCaught
)

func (s HTTPState) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateBodyAwait:
		return "body_await"
	case StateDispatch:
		return "dispatch"
	case StateRespond:
		return "respond"
	case StateDone:
		return "done"
	case StateErrorCaught:
		return "error_caught"
	case StateRedirectCaught:
		return "redirect_caught"
	default:
		return fmt.Sprintf("HTTPState(%d)", int(s))
	}
}

// Endpoint fills resp for req. (*dispatch.Dispatcher).Dispatch is one.
type Endpoint func(ctx context.Context, req *message.Request, resp *message.Response) error

// HTTP serves http scopes.
type HTTP struct {
	endpoint Endpoint
	sessions session.Store
	config   Config

	// observe, when set, sees every state an exchange enters.
	observe func(HTTPState)
}

// NewHTTP returns an HTTP handler running endpoint with sessions from store.
func NewHTTP(endpoint Endpoint, store session.Store, opts ...Option) *HTTP {
	return &HTTP{
		endpoint: endpoint,
		sessions: store,
		config:   newConfig(opts),
	}
}

// Observe registers fn to be called on every state transition.
func (h *HTTP) Observe(fn func(HTTPState)) {
	h.observe = fn
}

// exchange is the state of one request/response pair.
type exchange struct {
	h     *HTTP
	state HTTPState
	req   *message.Request
	resp  *message.Response
}

func (x *exchange) enter(s HTTPState) {
	x.state = s
	if x.h.observe != nil {
		x.h.observe(s)
	}
}

// Serve implements gateway.Application for http scopes. Outcomes of the
// endpoint, failures included, become responses; Serve itself only fails
// for scopes of the wrong type.
func (h *HTTP) Serve(ctx context.Context, scope gateway.Scope, receive gateway.Receive, send gateway.Send) error {
	if scope.Type != gateway.ScopeHTTP {
		return fmt.Errorf("protocol: http handler got %q scope", scope.Type)
	}

	x := &exchange{h: h, req: message.NewRequest(scope, receive), resp: h.config.newResponse()}
	x.enter(StateStart)

	sess, fresh, err := h.session(ctx, x.req)
	if err == nil {
		ctx = ambient.WithSession(ctx, sess)

		x.enter(StateBodyAwait)
		_, err = x.req.Body(ctx)
		if errors.Is(err, message.ErrClientDisconnected) {
			h.config.Logger.Info("client disconnected before sending the body", "path", x.req.Path)
			x.enter(StateDone)
			return nil
		}
	}
	if err == nil {
		x.enter(StateDispatch)
		err = h.endpoint(ctx, x.req, x.resp)
	}
	if err != nil {
		h.caught(x, err)
	}

	if sess != nil {
		if fresh {
			x.resp.Header.SetCookie(h.config.CookieName, sess.ID,
				header.WithPath(x.req.Path),
				header.WithDomain(x.req.Host()),
				header.WithHTTPOnly(),
			)
		}
		if err := h.sessions.Put(ctx, sess.ID, sess); err != nil {
			h.config.Logger.Error("failed to persist session", "session", sess.ID, "error", err)
		}
	}

	x.enter(StateRespond)
	h.access(x.req, x.resp.Status)
	h.emit(ctx, send, x.resp)
	x.enter(StateDone)
	return nil
}

// session loads the session named by the request cookie. A missing or
// malformed cookie gets a fresh session; fresh reports that the cookie has
// to be set.
func (h *HTTP) session(ctx context.Context, req *message.Request) (s *session.Session, fresh bool, err error) {
	id, ok := req.Cookie(h.config.CookieName)
	if !ok || !session.ValidID(id) {
		id, fresh = session.NewID(), true
	}
	s, err = h.sessions.GetOrCreate(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("protocol: load session: %w", err)
	}
	return s, fresh, nil
}

// caught replaces the exchange's response with one describing err.
func (h *HTTP) caught(x *exchange, err error) {
	resp := h.config.newResponse()
	x.resp = resp

	var redirect *message.Redirect
	var httpErr *message.HTTPError
	switch {
	case errors.As(err, &redirect):
		x.enter(StateRedirectCaught)
		resp.Status = redirect.Status
		resp.Header.Set(header.Location, redirect.Location)
		return

	case errors.As(err, &httpErr):
		x.enter(StateErrorCaught)
		resp.Status = httpErr.Status
		resp.SetContentType(contenttype.TextPlain)
		resp.Body = message.StringBody(httpErr.Detail)
		return

	case errors.Is(err, router.ErrRouteNotFound):
		x.enter(StateErrorCaught)
		h.config.Logger.Info("route not found", "method", x.req.Method, "path", x.req.Path, "reason", err)
		resp.Status = http.StatusNotFound
		resp.SetContentType(contenttype.TextPlain)
		resp.Body = message.StringBody(http.StatusText(http.StatusNotFound))
		return
	}

	x.enter(StateErrorCaught)
	attrs := []any{"method", x.req.Method, "path", x.req.Path, "error", err}
	var handlerErr *dispatch.HandlerError
	if errors.As(err, &handlerErr) {
		attrs = append(attrs, "panic", fmt.Sprint(handlerErr.Panic), "stack", string(handlerErr.Stack))
	}
	h.config.Logger.Error("request failed", attrs...)

	resp.Status = http.StatusInternalServerError
	resp.SetContentType(contenttype.TextPlain)
	resp.Body = message.StringBody(http.StatusText(http.StatusInternalServerError))
}

// emit sends the start event and the body chunks under the response
// timeout. Emission runs on its own goroutine. Once the deadline passes, emit
// returns without waiting for it and no further events are sent.
func (h *HTTP) emit(ctx context.Context, send gateway.Send, resp *message.Response) {
	ctx, cancel := context.WithTimeout(ctx, resp.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- write(ctx, send, resp)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		h.config.Logger.Debug("response emission abandoned", "timeout", resp.Timeout)
	default:
		h.config.Logger.Warn("response emission failed", "error", err)
	}
}

// write sends resp as a start event, one body event per chunk and an empty
// terminal chunk. It stops before any send once ctx is done.
func write(ctx context.Context, send gateway.Send, resp *message.Response) error {
	emit := func(ev gateway.Event) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return send(ctx, ev)
	}

	if err := emit(gateway.Event{
		Type:    gateway.HTTPResponseStart,
		Status:  resp.Status,
		Headers: resp.Header.Encode(),
	}); err != nil {
		return err
	}
	for chunk, err := range resp.Chunks(ctx) {
		if err != nil {
			return err
		}
		if err := emit(gateway.Event{Type: gateway.HTTPResponseBody, Body: chunk, MoreBody: true}); err != nil {
			return err
		}
	}
	return emit(gateway.Event{Type: gateway.HTTPResponseBody})
}

func (h *HTTP) access(req *message.Request, status int) {
	l := h.config.AccessLogger
	if l == nil {
		return
	}
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	l.Log(context.Background(), level, "http",
		"client", req.Client,
		"method", req.Method,
		"http_version", req.HTTPVersion,
		"status", status,
		"path", req.Path,
	)
}

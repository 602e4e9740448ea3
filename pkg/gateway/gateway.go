// Package gateway defines the asynchronous gateway protocol spoken between a
// server front end and a cinder application, plus a net/http bridge that
// speaks it.
//
// A connection is described by a Scope. The application pulls inbound events
// with a Receive function and pushes outbound events with a Send function.
// Events of one connection are delivered in order.
package gateway

import "context"

// Scope types.
const (
	ScopeHTTP      = "http"
	ScopeWebSocket = "websocket"
	ScopeLifespan  = "lifespan"
)

// HTTP event types.
const (
	HTTPRequest       = "http.request"
	HTTPDisconnect    = "http.disconnect"
	HTTPResponseStart = "http.response.start"
	HTTPResponseBody  = "http.response.body"
)

// WebSocket event types.
const (
	WebSocketConnect    = "websocket.connect"
	WebSocketReceive    = "websocket.receive"
	WebSocketDisconnect = "websocket.disconnect"
	WebSocketAccept     = "websocket.accept"
	WebSocketSend       = "websocket.send"
	WebSocketClose      = "websocket.close"
)

// Lifespan event types.
const (
	LifespanStartup          = "lifespan.startup"
	LifespanStartupComplete  = "lifespan.startup.complete"
	LifespanStartupFailed    = "lifespan.startup.failed"
	LifespanShutdown         = "lifespan.shutdown"
	LifespanShutdownComplete = "lifespan.shutdown.complete"
	LifespanShutdownFailed   = "lifespan.shutdown.failed"
)

// WebSocket close codes used by the framework.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)

// Scope describes one inbound connection.
type Scope struct {
	// Type is one of ScopeHTTP, ScopeWebSocket or ScopeLifespan.
	Type string

	Method      string
	Scheme      string
	HTTPVersion string
	Path        string
	RawPath     string
	QueryString string

	// Headers are lowercased name/value pairs in arrival order.
	Headers [][2]string

	// Client and Server are "host:port" addresses when known.
	Client string
	Server string

	Subprotocols []string
}

// Event is one message in either direction. Only the fields relevant to
// Type are meaningful.
type Event struct {
	Type string

	// http.request, http.response.body
	Body     []byte
	MoreBody bool

	// http.response.start
	Status  int
	Headers [][2]string

	// websocket.receive, websocket.send. Bytes is non-nil for binary frames.
	Text  string
	Bytes []byte

	// websocket.close, websocket.disconnect
	Code   int
	Reason string

	// websocket.accept
	Subprotocol string

	// lifespan.*.failed
	Message string
}

// IsBinary reports whether a websocket data event carries bytes.
func (e Event) IsBinary() bool {
	return e.Bytes != nil
}

// Receive returns the next inbound event of a connection.
type Receive func(ctx context.Context) (Event, error)

// Send emits one outbound event.
type Send func(ctx context.Context, ev Event) error

// Application is anything that can serve gateway connections.
type Application interface {
	Serve(ctx context.Context, scope Scope, receive Receive, send Send) error
}

// ApplicationFunc adapts a function to Application.
type ApplicationFunc func(ctx context.Context, scope Scope, receive Receive, send Send) error

// Serve calls f.
func (f ApplicationFunc) Serve(ctx context.Context, scope Scope, receive Receive, send Send) error {
	return f(ctx, scope, receive, send)
}

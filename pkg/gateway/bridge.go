package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cinder-go/cinder/pkg/header"
	"github.com/cinder-go/cinder/pkg/routepath"
)

var (
	// ErrUnexpectedEvent is returned when an application sends an event
	// that is not valid for the connection's current state.
	ErrUnexpectedEvent = errors.New("gateway: unexpected event")

	// ErrClosed is returned by Receive and Send once a connection is over.
	ErrClosed = errors.New("gateway: connection closed")
)

// LifespanError reports a startup or shutdown failure announced by the
// application.
type LifespanError struct {
	Phase   string
	Message string
}

func (e *LifespanError) Error() string {
	return fmt.Sprintf("gateway: lifespan %s failed: %s", e.Phase, e.Message)
}

// DefaultReadSize is the size of the http.request chunks the bridge reads
// from a request body.
const DefaultReadSize = 64 * 1024

// Bridge serves net/http traffic through a gateway Application. Plain
// requests become http scopes, upgrade requests become websocket scopes, and
// Startup/Shutdown drive a single lifespan connection.
type Bridge struct {
	app      Application
	upgrader websocket.Upgrader
	readSize int
	logger   *slog.Logger

	life lifespan
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithUpgrader sets the websocket upgrader used for socket scopes.
func WithUpgrader(u websocket.Upgrader) BridgeOption {
	return func(b *Bridge) {
		b.upgrader = u
	}
}

// WithReadSize sets the http.request chunk size.
func WithReadSize(n int) BridgeOption {
	return func(b *Bridge) {
		if n > 0 {
			b.readSize = n
		}
	}
}

// WithBridgeLogger sets the logger.
func WithBridgeLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBridge returns a Bridge serving app.
func NewBridge(app Application, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		app:      app,
		readSize: DefaultReadSize,
		logger:   slog.Default().With("component", "gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ServeHTTP implements http.Handler. Request paths are cleaned with
// routepath.Clean first; paths it rejects get a 400 without reaching the
// application.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	escaped := r.URL.EscapedPath()
	clean, err := routepath.Clean(escaped)
	if err != nil {
		b.logger.Debug("rejected request path", "path", escaped, "error", err)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if clean != escaped {
		r = withPath(r, clean)
	}

	if websocket.IsWebSocketUpgrade(r) {
		b.serveWebSocket(w, r)
		return
	}
	b.serveHTTP(w, r)
}

// withPath returns a shallow copy of r whose URL carries the escaped path.
func withPath(r *http.Request, escaped string) *http.Request {
	path, err := url.PathUnescape(escaped)
	if err != nil {
		return r
	}
	u := *r.URL
	u.Path = path
	u.RawPath = escaped
	r2 := r.WithContext(r.Context())
	r2.URL = &u
	return r2
}

// ScopeFor describes r as a gateway scope of the given type.
func ScopeFor(r *http.Request, typ string) Scope {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if typ == ScopeWebSocket {
		scheme = "ws"
		if r.TLS != nil {
			scheme = "wss"
		}
	}

	version := strconv.Itoa(r.ProtoMajor)
	if r.ProtoMajor < 2 {
		version += "." + strconv.Itoa(r.ProtoMinor)
	}

	h := header.FromHTTP(r.Header)
	pairs := make([][2]string, 0, h.Len()+1)
	if r.Host != "" {
		pairs = append(pairs, [2]string{header.Host, r.Host})
	}
	pairs = append(pairs, h.Encode()...)

	var server string
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		server = addr.String()
	}

	s := Scope{
		Type:        typ,
		Method:      r.Method,
		Scheme:      scheme,
		HTTPVersion: version,
		Path:        r.URL.Path,
		RawPath:     r.URL.EscapedPath(),
		QueryString: r.URL.RawQuery,
		Headers:     pairs,
		Client:      r.RemoteAddr,
		Server:      server,
	}
	if typ == ScopeWebSocket {
		s.Subprotocols = websocket.Subprotocols(r)
	}
	return s
}

// httpConn is the bridge side of one http scope. mu guards the writer:
// a send still running after Serve returned must finish before the handler
// does.
type httpConn struct {
	w        http.ResponseWriter
	r        *http.Request
	readSize int
	bodyDone bool

	mu       sync.Mutex
	started  bool
	finished bool
	deadline bool
}

func (c *httpConn) receive(ctx context.Context) (Event, error) {
	if !c.bodyDone {
		if c.r.Body == nil || c.r.Body == http.NoBody {
			c.bodyDone = true
			return Event{Type: HTTPRequest}, nil
		}
		buf := make([]byte, c.readSize)
		n, err := io.ReadFull(c.r.Body, buf)
		switch {
		case err == nil:
			return Event{Type: HTTPRequest, Body: buf[:n], MoreBody: true}, nil
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			c.bodyDone = true
			return Event{Type: HTTPRequest, Body: buf[:n]}, nil
		default:
			c.bodyDone = true
			return Event{Type: HTTPDisconnect}, nil
		}
	}

	select {
	case <-c.r.Context().Done():
		return Event{Type: HTTPDisconnect}, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// send writes ev to the response. A deadline on ctx becomes the
// connection's write deadline, so a stalled client cannot hold a write past
// it.
func (c *httpConn) send(ctx context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.finished {
		return ErrClosed
	}
	if d, ok := ctx.Deadline(); ok {
		if err := http.NewResponseController(c.w).SetWriteDeadline(d); err == nil {
			c.deadline = true
		}
	}
	switch ev.Type {
	case HTTPResponseStart:
		if c.started {
			return fmt.Errorf("%w: %s after start", ErrUnexpectedEvent, ev.Type)
		}
		c.started = true
		dst := c.w.Header()
		for _, kv := range ev.Headers {
			dst.Add(kv[0], kv[1])
		}
		status := ev.Status
		if status == 0 {
			status = http.StatusOK
		}
		c.w.WriteHeader(status)
		return nil

	case HTTPResponseBody:
		if !c.started {
			return fmt.Errorf("%w: %s before start", ErrUnexpectedEvent, ev.Type)
		}
		if len(ev.Body) > 0 {
			if _, err := c.w.Write(ev.Body); err != nil {
				return err
			}
		}
		if !ev.MoreBody {
			c.finished = true
			return nil
		}
		if f, ok := c.w.(http.Flusher); ok {
			f.Flush()
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnexpectedEvent, ev.Type)
}

func (b *Bridge) serveHTTP(w http.ResponseWriter, r *http.Request) {
	c := &httpConn{w: w, r: r, readSize: b.readSize}
	scope := ScopeFor(r, ScopeHTTP)

	err := b.app.Serve(r.Context(), scope, c.receive, c.send)
	if err != nil {
		b.logger.Error("application error", "path", scope.Path, "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deadline && c.finished {
		// Keep-alive connections carry the deadline into the next request.
		// An unfinished response keeps it so the final flush cannot stall.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	}
	c.finished = true
	if !c.started {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// wsConn is the bridge side of one websocket scope.
type wsConn struct {
	w        http.ResponseWriter
	r        *http.Request
	upgrader *websocket.Upgrader

	connectSent  bool
	accepted     bool
	closed       bool
	disconnected bool

	conn  *websocket.Conn
	inbox chan Event
	done  chan struct{}
	once  sync.Once
}

func (c *wsConn) receive(ctx context.Context) (Event, error) {
	if !c.connectSent {
		c.connectSent = true
		return Event{Type: WebSocketConnect}, nil
	}
	if c.disconnected {
		return Event{}, ErrClosed
	}
	if !c.accepted {
		select {
		case <-c.r.Context().Done():
			c.disconnected = true
			return Event{Type: WebSocketDisconnect, Code: websocket.CloseGoingAway}, nil
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}

	select {
	case ev, ok := <-c.inbox:
		if !ok {
			c.disconnected = true
			return Event{Type: WebSocketDisconnect, Code: websocket.CloseAbnormalClosure}, nil
		}
		if ev.Type == WebSocketDisconnect {
			c.disconnected = true
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (c *wsConn) send(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed {
		return ErrClosed
	}

	switch ev.Type {
	case WebSocketAccept:
		if c.accepted {
			return fmt.Errorf("%w: %s after accept", ErrUnexpectedEvent, ev.Type)
		}
		var h http.Header
		if ev.Subprotocol != "" {
			h = http.Header{"Sec-Websocket-Protocol": {ev.Subprotocol}}
		}
		for _, kv := range ev.Headers {
			if h == nil {
				h = http.Header{}
			}
			h.Add(kv[0], kv[1])
		}
		conn, err := c.upgrader.Upgrade(c.w, c.r, h)
		if err != nil {
			c.closed = true
			return err
		}
		c.accepted = true
		c.conn = conn
		go c.readLoop()
		return nil

	case WebSocketClose:
		c.closed = true
		if !c.accepted {
			http.Error(c.w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return nil
		}
		code := ev.Code
		if code == 0 {
			code = CloseNormal
		}
		msg := websocket.FormatCloseMessage(code, ev.Reason)
		_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
		return nil

	case WebSocketSend:
		if !c.accepted {
			return fmt.Errorf("%w: %s before accept", ErrUnexpectedEvent, ev.Type)
		}
		if ev.IsBinary() {
			return c.conn.WriteMessage(websocket.BinaryMessage, ev.Bytes)
		}
		return c.conn.WriteMessage(websocket.TextMessage, []byte(ev.Text))
	}
	return fmt.Errorf("%w: %s", ErrUnexpectedEvent, ev.Type)
}

func (c *wsConn) readLoop() {
	defer close(c.inbox)
	for {
		mt, data, err := c.conn.ReadMessage()
		var ev Event
		switch {
		case err != nil:
			ev = Event{Type: WebSocketDisconnect, Code: closeCode(err)}
			if ce := new(websocket.CloseError); errors.As(err, &ce) {
				ev.Reason = ce.Text
			}
		case mt == websocket.BinaryMessage:
			if data == nil {
				data = []byte{}
			}
			ev = Event{Type: WebSocketReceive, Bytes: data}
		default:
			ev = Event{Type: WebSocketReceive, Text: string(data)}
		}

		select {
		case c.inbox <- ev:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *wsConn) shutdown() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}

func (b *Bridge) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	c := &wsConn{
		w:        w,
		r:        r,
		upgrader: &b.upgrader,
		inbox:    make(chan Event, 16),
		done:     make(chan struct{}),
	}
	defer c.shutdown()

	scope := ScopeFor(r, ScopeWebSocket)
	err := b.app.Serve(r.Context(), scope, c.receive, c.send)
	if err != nil {
		b.logger.Error("application error", "path", scope.Path, "error", err)
	}

	switch {
	case !c.accepted && !c.closed:
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	case c.accepted && !c.closed:
		code := CloseNormal
		if err != nil {
			code = CloseInternalError
		}
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
	}
}

// lifespan holds the one lifespan connection a Bridge drives.
type lifespan struct {
	mu      sync.Mutex
	running bool
	in      chan Event
	out     chan Event
	exit    chan error
	cancel  context.CancelFunc
}

// Startup opens the lifespan connection and waits for the application to
// complete startup. An application that returns without answering does not
// speak lifespan; Startup then reports its error, if any.
func (b *Bridge) Startup(ctx context.Context) error {
	l := &b.life
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return fmt.Errorf("%w: lifespan already started", ErrUnexpectedEvent)
	}

	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.in = make(chan Event, 1)
	l.out = make(chan Event, 1)
	l.exit = make(chan error, 1)
	l.cancel = cancel
	l.running = true

	receive := func(ctx context.Context) (Event, error) {
		select {
		case ev := <-l.in:
			return ev, nil
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
	send := func(ctx context.Context, ev Event) error {
		select {
		case l.out <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	go func() {
		l.exit <- b.app.Serve(lctx, Scope{Type: ScopeLifespan}, receive, send)
	}()

	l.in <- Event{Type: LifespanStartup}
	return l.await(ctx, "startup", LifespanStartupComplete, LifespanStartupFailed)
}

// Shutdown asks the application to shut down and waits for it to answer
// and return. It is a no-op when Startup was not called or the application
// does not speak lifespan.
func (b *Bridge) Shutdown(ctx context.Context) error {
	l := &b.life
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return nil
	}

	select {
	case l.in <- Event{Type: LifespanShutdown}:
	case <-ctx.Done():
		return ctx.Err()
	}
	err := l.await(ctx, "shutdown", LifespanShutdownComplete, LifespanShutdownFailed)
	if !l.running {
		return err
	}

	select {
	case <-l.exit:
	case <-ctx.Done():
	}
	l.running = false
	l.cancel()
	return err
}

func (l *lifespan) await(ctx context.Context, phase, complete, failed string) error {
	select {
	case ev := <-l.out:
		switch ev.Type {
		case complete:
			return nil
		case failed:
			return &LifespanError{Phase: phase, Message: ev.Message}
		}
		return fmt.Errorf("%w: %s during %s", ErrUnexpectedEvent, ev.Type, phase)

	case err := <-l.exit:
		l.running = false
		l.cancel()
		if err != nil {
			return fmt.Errorf("gateway: lifespan %s: %w", phase, err)
		}
		return nil

	case <-ctx.Done():
		return ctx.Err()
	}
}

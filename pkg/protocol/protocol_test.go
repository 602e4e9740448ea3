package protocol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cinder-go/cinder/pkg/ambient"
	"github.com/cinder-go/cinder/pkg/dispatch"
	"github.com/cinder-go/cinder/pkg/gateway"
	"github.com/cinder-go/cinder/pkg/message"
	"github.com/cinder-go/cinder/pkg/router"
	"github.com/cinder-go/cinder/pkg/session"
	"github.com/cinder-go/cinder/pkg/socket"
)

type site struct{}

func (s *site) Index() string { return "Hello" }

func (s *site) Count(ctx context.Context) string {
	sess := ambient.MustSession(ctx)
	v, _ := sess.Get("n")
	n, _ := v.(int)
	sess.Set("n", n+1)
	return strconv.Itoa(n + 1)
}

func (s *site) Away() error { return message.NewRedirect("/elsewhere") }

func (s *site) Teapot() (string, error) {
	return "", message.NewHTTPError(http.StatusTeapot, "short and stout")
}

func (s *site) Boom() string { panic("kaboom") }

func (s *site) Echo(ctx context.Context) error {
	conn := ambient.MustSocket(ctx)
	for {
		text, err := conn.ReceiveText(ctx)
		if err != nil {
			return err
		}
		if err := conn.SendText(ctx, strings.ToUpper(text)); err != nil {
			return err
		}
	}
}

func (s *site) Whoami(ctx context.Context) error {
	conn := ambient.MustSocket(ctx)
	if sess, err := ambient.Session(ctx); err == nil {
		return conn.SendText(ctx, sess.ID)
	}
	return conn.SendText(ctx, "anonymous")
}

func (s *site) Crash(ctx context.Context) error { return errors.New("lost the plot") }

func newSiteDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	reg := router.NewRegistry()
	owner := router.OwnerOf[site]()
	reg.Get(owner, "index", (*site).Index)
	reg.Get(owner, "count", (*site).Count)
	reg.Get(owner, "away", (*site).Away)
	reg.Get(owner, "teapot", (*site).Teapot)
	reg.Get(owner, "boom", (*site).Boom)
	reg.WebSocket(owner, "echo", (*site).Echo)
	reg.WebSocket(owner, "whoami", (*site).Whoami)
	reg.WebSocket(owner, "crash", (*site).Crash)

	tree, err := router.Build(reg, router.Object(&site{}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return dispatch.New(tree)
}

// fakeGateway replays inbound events and records outbound ones.
type fakeGateway struct {
	mu   sync.Mutex
	in   []gateway.Event
	sent []gateway.Event
}

func newFakeGateway(in ...gateway.Event) *fakeGateway {
	return &fakeGateway{in: in}
}

func (g *fakeGateway) receive(ctx context.Context) (gateway.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.in) == 0 {
		return gateway.Event{}, io.EOF
	}
	ev := g.in[0]
	g.in = g.in[1:]
	return ev, nil
}

func (g *fakeGateway) send(ctx context.Context, ev gateway.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, ev)
	return nil
}

func (g *fakeGateway) events() []gateway.Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.sent)
}

type httpResult struct {
	status  int
	headers [][2]string
	body    string
	chunks  int
}

func (r httpResult) header(name string) string {
	for _, kv := range r.headers {
		if kv[0] == name {
			return kv[1]
		}
	}
	return ""
}

func collectHTTP(t *testing.T, events []gateway.Event) httpResult {
	t.Helper()
	if len(events) < 2 || events[0].Type != gateway.HTTPResponseStart {
		t.Fatalf("events = %+v", events)
	}
	res := httpResult{status: events[0].Status, headers: events[0].Headers}
	var body bytes.Buffer
	for i, ev := range events[1:] {
		if ev.Type != gateway.HTTPResponseBody {
			t.Fatalf("event %d type = %s", i+1, ev.Type)
		}
		last := i == len(events)-2
		if ev.MoreBody == last {
			t.Fatalf("event %d more_body = %v", i+1, ev.MoreBody)
		}
		if last && len(ev.Body) != 0 {
			t.Fatalf("terminal chunk carries %d bytes", len(ev.Body))
		}
		if !last {
			res.chunks++
		}
		body.Write(ev.Body)
	}
	res.body = body.String()
	return res
}

func httpScope(method, path string, headers ...[2]string) gateway.Scope {
	return gateway.Scope{
		Type:        gateway.ScopeHTTP,
		Method:      method,
		Path:        path,
		HTTPVersion: "1.1",
		Client:      "10.0.0.1:5000",
		Headers:     append([][2]string{{"host", "example.com:8000"}}, headers...),
	}
}

func serveHTTP(t *testing.T, h *HTTP, scope gateway.Scope) httpResult {
	t.Helper()
	g := newFakeGateway(gateway.Event{Type: gateway.HTTPRequest})
	if err := h.Serve(context.Background(), scope, g.receive, g.send); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	return collectHTTP(t, g.events())
}

func TestHTTPStateString(t *testing.T) {
	if StateRedirectCaught.String() != "redirect_caught" || HTTPState(42).String() != "HTTPState(42)" {
		t.Error("unexpected HTTPState names")
	}
}

func TestHTTPHello(t *testing.T) {
	d := newSiteDispatcher(t)
	h := NewHTTP(d.Dispatch, session.NewMemoryStore())

	var states []HTTPState
	h.Observe(func(s HTTPState) { states = append(states, s) })

	res := serveHTTP(t, h, httpScope("GET", "/"))
	if res.status != 200 || res.body != "Hello" {
		t.Errorf("got %d %q", res.status, res.body)
	}
	if ct := res.header("content-type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content-type = %q", ct)
	}

	cookie, err := http.ParseSetCookie(res.header("set-cookie"))
	if err != nil {
		t.Fatalf("set-cookie: %v", err)
	}
	if cookie.Name != DefaultCookieName || !session.ValidID(cookie.Value) {
		t.Errorf("cookie = %+v", cookie)
	}
	if cookie.Path != "/" || cookie.Domain != "example.com" || !cookie.HttpOnly {
		t.Errorf("cookie attributes = %+v", cookie)
	}

	want := []HTTPState{StateStart, StateBodyAwait, StateDispatch, StateRespond, StateDone}
	if !slices.Equal(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
}

func TestHTTPSessionRoundTrip(t *testing.T) {
	d := newSiteDispatcher(t)
	store := session.NewMemoryStore()
	h := NewHTTP(d.Dispatch, store, WithCookieName("sid"))

	first := serveHTTP(t, h, httpScope("GET", "/count"))
	cookie, err := http.ParseSetCookie(first.header("set-cookie"))
	if err != nil {
		t.Fatalf("set-cookie: %v", err)
	}
	if cookie.Name != "sid" || first.body != "1" {
		t.Fatalf("first response = %q, cookie %+v", first.body, cookie)
	}

	second := serveHTTP(t, h, httpScope("GET", "/count", [2]string{"cookie", "sid=" + cookie.Value}))
	if second.body != "2" {
		t.Errorf("second body = %q, want 2", second.body)
	}
	if second.header("set-cookie") != "" {
		t.Error("cookie set again for a known session")
	}

	if ok, _ := store.Contains(context.Background(), cookie.Value); !ok {
		t.Error("session not stored")
	}

	bad := serveHTTP(t, h, httpScope("GET", "/count", [2]string{"cookie", "sid=not-hex"}))
	if bad.body != "1" || bad.header("set-cookie") == "" {
		t.Errorf("malformed cookie: body %q, set-cookie %q", bad.body, bad.header("set-cookie"))
	}
}

func TestHTTPOutcomes(t *testing.T) {
	d := newSiteDispatcher(t)

	tests := []struct {
		path     string
		status   int
		body     string
		location string
		state    HTTPState
	}{
		{"/missing", 404, "Not Found", "", StateErrorCaught},
		{"/away", 307, "", "/elsewhere", StateRedirectCaught},
		{"/teapot", 418, "short and stout", "", StateErrorCaught},
		{"/boom", 500, "Internal Server Error", "", StateErrorCaught},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var logs bytes.Buffer
			h := NewHTTP(d.Dispatch, session.NewMemoryStore(),
				WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
			var states []HTTPState
			h.Observe(func(s HTTPState) { states = append(states, s) })

			res := serveHTTP(t, h, httpScope("GET", tt.path))
			if res.status != tt.status || res.body != tt.body {
				t.Errorf("got %d %q, want %d %q", res.status, res.body, tt.status, tt.body)
			}
			if got := res.header("location"); got != tt.location {
				t.Errorf("location = %q, want %q", got, tt.location)
			}
			if tt.location != "" && res.chunks != 0 {
				t.Errorf("redirect carried %d body chunks", res.chunks)
			}
			if !slices.Contains(states, tt.state) {
				t.Errorf("states = %v, missing %v", states, tt.state)
			}
			if tt.status == 500 && !strings.Contains(logs.String(), "kaboom") {
				t.Errorf("panic not logged: %s", logs.String())
			}
		})
	}
}

func TestHTTPChunking(t *testing.T) {
	d := newSiteDispatcher(t)
	h := NewHTTP(d.Dispatch, session.NewMemoryStore(), WithChunkSize(2))

	res := serveHTTP(t, h, httpScope("GET", "/"))
	if res.body != "Hello" || res.chunks != 3 {
		t.Errorf("body %q in %d chunks, want 3", res.body, res.chunks)
	}
}

func TestHTTPEmissionTimeout(t *testing.T) {
	tests := []struct {
		name string
		send func(release <-chan struct{}) gateway.Send
	}{
		{
			name: "send watches context",
			send: func(<-chan struct{}) gateway.Send {
				return func(ctx context.Context, ev gateway.Event) error {
					<-ctx.Done()
					return ctx.Err()
				}
			},
		},
		{
			name: "send ignores context",
			send: func(release <-chan struct{}) gateway.Send {
				return func(ctx context.Context, ev gateway.Event) error {
					<-release
					return nil
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newSiteDispatcher(t)
			h := NewHTTP(d.Dispatch, session.NewMemoryStore(), WithTimeout(20*time.Millisecond))

			release := make(chan struct{})
			var sends atomic.Int32
			inner := tt.send(release)
			blocked := func(ctx context.Context, ev gateway.Event) error {
				sends.Add(1)
				return inner(ctx, ev)
			}
			g := newFakeGateway(gateway.Event{Type: gateway.HTTPRequest})

			start := time.Now()
			done := make(chan error, 1)
			go func() { done <- h.Serve(context.Background(), httpScope("GET", "/"), g.receive, blocked) }()

			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("Serve: %v", err)
				}
			case <-time.After(2 * time.Second):
				close(release)
				t.Fatal("emission was not abandoned")
			}
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Errorf("Serve took %v with a 20ms response timeout", elapsed)
			}

			close(release)
			time.Sleep(20 * time.Millisecond)
			if n := sends.Load(); n != 1 {
				t.Errorf("sends = %d, want 1 (no retries)", n)
			}
		})
	}
}

func TestHTTPClientGone(t *testing.T) {
	d := newSiteDispatcher(t)
	h := NewHTTP(d.Dispatch, session.NewMemoryStore())
	g := newFakeGateway(gateway.Event{Type: gateway.HTTPDisconnect})

	if err := h.Serve(context.Background(), httpScope("POST", "/"), g.receive, g.send); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if len(g.events()) != 0 {
		t.Errorf("responded to a gone client: %+v", g.events())
	}
}

func TestHTTPAccessLog(t *testing.T) {
	d := newSiteDispatcher(t)
	var buf bytes.Buffer
	h := NewHTTP(d.Dispatch, session.NewMemoryStore(),
		WithAccessLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	serveHTTP(t, h, httpScope("GET", "/"))
	line := buf.String()
	for _, want := range []string{"client=10.0.0.1:5000", "method=GET", "http_version=1.1", "status=200", "path=/"} {
		if !strings.Contains(line, want) {
			t.Errorf("access line %q missing %q", line, want)
		}
	}
}

func TestHTTPWrongScope(t *testing.T) {
	h := NewHTTP(nil, session.NewMemoryStore())
	g := newFakeGateway()
	if err := h.Serve(context.Background(), gateway.Scope{Type: gateway.ScopeLifespan}, g.receive, g.send); err == nil {
		t.Error("expected error for lifespan scope")
	}
}

func wsScope(path string, headers ...[2]string) gateway.Scope {
	return gateway.Scope{Type: gateway.ScopeWebSocket, Path: path, Headers: headers}
}

func TestSocketEcho(t *testing.T) {
	d := newSiteDispatcher(t)
	s := NewSocket(d, session.NewMemoryStore())
	g := newFakeGateway(
		gateway.Event{Type: gateway.WebSocketConnect},
		gateway.Event{Type: gateway.WebSocketReceive, Text: "hi"},
		gateway.Event{Type: gateway.WebSocketDisconnect, Code: gateway.CloseNormal},
	)

	if err := s.Serve(context.Background(), wsScope("/echo"), g.receive, g.send); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	sent := g.events()
	want := []gateway.Event{
		{Type: gateway.WebSocketAccept},
		{Type: gateway.WebSocketSend, Text: "HI"},
		{Type: gateway.WebSocketClose, Code: gateway.CloseNormal},
	}
	if len(sent) != len(want) {
		t.Fatalf("sent = %+v", sent)
	}
	for i := range want {
		if sent[i].Type != want[i].Type || sent[i].Text != want[i].Text || sent[i].Code != want[i].Code {
			t.Errorf("event %d = %+v, want %+v", i, sent[i], want[i])
		}
	}
}

func TestSocketNoRoute(t *testing.T) {
	d := newSiteDispatcher(t)
	var buf bytes.Buffer
	s := NewSocket(d, nil, WithAccessLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	g := newFakeGateway(gateway.Event{Type: gateway.WebSocketConnect})

	if err := s.Serve(context.Background(), wsScope("/nowhere"), g.receive, g.send); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	sent := g.events()
	if len(sent) != 1 || sent[0].Type != gateway.WebSocketClose || sent[0].Code != gateway.ClosePolicyViolation {
		t.Errorf("sent = %+v, want a single close 1008", sent)
	}
	if !strings.Contains(buf.String(), "rejected") {
		t.Errorf("access log = %q", buf.String())
	}
}

func TestSocketSessionOnlyWithValidCookie(t *testing.T) {
	d := newSiteDispatcher(t)
	store := session.NewMemoryStore()
	s := NewSocket(d, store)
	id := session.NewID()

	tests := []struct {
		name   string
		cookie string
		want   string
	}{
		{"valid", DefaultCookieName + "=" + id, id},
		{"malformed", DefaultCookieName + "=zzz", "anonymous"},
		{"missing", "", "anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers [][2]string
			if tt.cookie != "" {
				headers = append(headers, [2]string{"cookie", tt.cookie})
			}
			g := newFakeGateway(gateway.Event{Type: gateway.WebSocketConnect})
			if err := s.Serve(context.Background(), wsScope("/whoami", headers...), g.receive, g.send); err != nil {
				t.Fatalf("Serve: %v", err)
			}
			sent := g.events()
			if len(sent) < 2 || sent[1].Text != tt.want {
				t.Errorf("sent = %+v, want text %q", sent, tt.want)
			}
		})
	}
}

func TestSocketHandlerFailure(t *testing.T) {
	d := newSiteDispatcher(t)
	var logs bytes.Buffer
	s := NewSocket(d, nil, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	g := newFakeGateway(gateway.Event{Type: gateway.WebSocketConnect})

	if err := s.Serve(context.Background(), wsScope("/crash"), g.receive, g.send); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	sent := g.events()
	if n := len(sent); n != 2 || sent[n-1].Type != gateway.WebSocketClose || sent[n-1].Code != gateway.CloseInternalError {
		t.Errorf("sent = %+v, want accept then close 1011", sent)
	}
	if !strings.Contains(logs.String(), "lost the plot") {
		t.Errorf("failure not logged: %s", logs.String())
	}
}

func TestSocketRequiresConnectFirst(t *testing.T) {
	d := newSiteDispatcher(t)
	s := NewSocket(d, nil)
	g := newFakeGateway(gateway.Event{Type: gateway.WebSocketReceive, Text: "early"})

	err := s.Serve(context.Background(), wsScope("/echo"), g.receive, g.send)
	if !errors.Is(err, socket.ErrProtocolViolation) {
		t.Errorf("Serve = %v, want protocol violation", err)
	}
}

func TestLifespan(t *testing.T) {
	var ran []string
	ok := func(name string) Callback {
		return func(context.Context) error {
			ran = append(ran, name)
			return nil
		}
	}
	failing := func(name string) Callback {
		return func(context.Context) error {
			ran = append(ran, name)
			return errors.New(name + " broke")
		}
	}

	l := NewLifespan(
		[]Callback{failing("db"), ok("cache"), failing("queue")},
		[]Callback{ok("flush")},
	)
	g := newFakeGateway(
		gateway.Event{Type: gateway.LifespanStartup},
		gateway.Event{Type: gateway.LifespanShutdown},
	)
	if err := l.Serve(context.Background(), gateway.Scope{Type: gateway.ScopeLifespan}, g.receive, g.send); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	if !slices.Equal(ran, []string{"db", "cache", "queue", "flush"}) {
		t.Errorf("ran = %v", ran)
	}
	sent := g.events()
	if len(sent) != 2 {
		t.Fatalf("sent = %+v", sent)
	}
	if sent[0].Type != gateway.LifespanStartupFailed ||
		!strings.Contains(sent[0].Message, "db broke") || !strings.Contains(sent[0].Message, "queue broke") {
		t.Errorf("startup reply = %+v", sent[0])
	}
	if sent[1].Type != gateway.LifespanShutdownComplete {
		t.Errorf("shutdown reply = %+v", sent[1])
	}
}

func TestLifespanCallbackPanic(t *testing.T) {
	var logs bytes.Buffer
	var ran []string
	l := NewLifespan(
		[]Callback{
			func(context.Context) error { panic("db down") },
			func(context.Context) error {
				ran = append(ran, "cache")
				return nil
			},
		},
		[]Callback{func(context.Context) error { panic("flush failed") }},
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)
	g := newFakeGateway(
		gateway.Event{Type: gateway.LifespanStartup},
		gateway.Event{Type: gateway.LifespanShutdown},
	)

	if err := l.Serve(context.Background(), gateway.Scope{Type: gateway.ScopeLifespan}, g.receive, g.send); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	sent := g.events()
	if len(sent) != 2 {
		t.Fatalf("sent = %+v, want two events", sent)
	}
	if sent[0].Type != gateway.LifespanStartupFailed || !strings.Contains(sent[0].Message, "db down") {
		t.Errorf("startup event = %+v", sent[0])
	}
	if sent[1].Type != gateway.LifespanShutdownFailed || !strings.Contains(sent[1].Message, "flush failed") {
		t.Errorf("shutdown event = %+v", sent[1])
	}
	if !slices.Equal(ran, []string{"cache"}) {
		t.Errorf("ran = %v, want later callbacks to still run", ran)
	}
	if !strings.Contains(logs.String(), "startup callback panicked") {
		t.Errorf("panic not logged: %s", logs.String())
	}
}

func TestLifespanCallbackPanicThroughBridge(t *testing.T) {
	l := NewLifespan([]Callback{func(context.Context) error { panic("db down") }}, nil)
	b := gateway.NewBridge(l)

	err := b.Startup(context.Background())
	var lerr *gateway.LifespanError
	if !errors.As(err, &lerr) || !strings.Contains(lerr.Message, "db down") {
		t.Fatalf("Startup = %v, want a startup failure naming the panic", err)
	}
	if err := b.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestLifespanUnexpectedEvent(t *testing.T) {
	l := NewLifespan(nil, nil)
	g := newFakeGateway(gateway.Event{Type: "lifespan.reload"})
	err := l.Serve(context.Background(), gateway.Scope{Type: gateway.ScopeLifespan}, g.receive, g.send)
	if !errors.Is(err, ErrUnexpectedEvent) {
		t.Errorf("Serve = %v, want ErrUnexpectedEvent", err)
	}
}

func TestLifespanGatewayGone(t *testing.T) {
	l := NewLifespan(nil, nil)
	g := newFakeGateway(gateway.Event{Type: gateway.LifespanStartup})
	err := l.Serve(context.Background(), gateway.Scope{Type: gateway.ScopeLifespan}, g.receive, g.send)
	if !errors.Is(err, io.EOF) {
		t.Errorf("Serve = %v, want io.EOF", err)
	}
	if sent := g.events(); len(sent) != 1 || sent[0].Type != gateway.LifespanStartupComplete {
		t.Errorf("sent = %+v", sent)
	}
}

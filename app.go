package cinder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cinder-go/cinder/pkg/dispatch"
	"github.com/cinder-go/cinder/pkg/gateway"
	"github.com/cinder-go/cinder/pkg/message"
	"github.com/cinder-go/cinder/pkg/protocol"
	"github.com/cinder-go/cinder/pkg/router"
	"github.com/cinder-go/cinder/pkg/session"
)

// ErrUnsupportedScope is returned by Serve for a scope type it does not know.
var ErrUnsupportedScope = errors.New("cinder: unsupported scope type")

// App is a cinder application: a route registry, the tree mounted from it,
// a session store and the lifecycle callbacks. App implements
// gateway.Application.
type App struct {
	config Config
	logger *slog.Logger

	registry *router.Registry

	mu         sync.RWMutex
	dispatcher *dispatch.Dispatcher
	middleware []dispatch.Middleware
	static     *staticMount
	startup    []protocol.Callback
	shutdown   []protocol.Callback
}

// New creates an App from cfg. Zero fields take their defaults.
func New(cfg Config) *App {
	cfg = cfg.withDefaults()

	a := &App{
		config:     cfg,
		logger:     cfg.Logger.With("component", "app"),
		registry:   router.NewRegistry(),
		middleware: append([]dispatch.Middleware(nil), cfg.Middleware...),
	}
	if cfg.Static.Dir != "" {
		a.static = newStaticMount(cfg.Static)
	}
	return a
}

// Routes returns the registry handlers are declared on. Declare every
// handler before calling Mount.
func (a *App) Routes() *router.Registry {
	return a.registry
}

// Mount builds the route tree from root and makes it live. Mounting again
// replaces the tree wholesale.
func (a *App) Mount(root *router.Spec) error {
	tree, err := router.Build(a.registry, root)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.dispatcher = a.newDispatcher(tree)
	a.logger.Info("route tree mounted", "leaves", len(tree.Leaves()))
	return nil
}

// Tree returns the mounted route tree, nil before Mount.
func (a *App) Tree() *router.Tree {
	d := a.current()
	if d == nil {
		return nil
	}
	return d.Tree()
}

// Use appends middleware to every dispatch. Exchanges already in flight
// keep the chain they started with.
func (a *App) Use(mw ...dispatch.Middleware) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.middleware = append(a.middleware, mw...)
	if a.dispatcher != nil {
		a.dispatcher = a.newDispatcher(a.dispatcher.Tree())
	}
}

func (a *App) newDispatcher(tree *router.Tree) *dispatch.Dispatcher {
	return dispatch.New(tree,
		dispatch.WithLogger(a.config.Logger.With("component", "dispatch")),
		dispatch.WithMiddleware(a.middleware...),
	)
}

// OnStartup registers a callback run on lifespan startup.
func (a *App) OnStartup(fn protocol.Callback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startup = append(a.startup, fn)
}

// OnShutdown registers a callback run on lifespan shutdown.
func (a *App) OnShutdown(fn protocol.Callback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdown = append(a.shutdown, fn)
}

// Static serves files from dir under prefix. A request under prefix that
// names no file falls through to the route tree.
func (a *App) Static(prefix, dir string) {
	cfg := a.config.Static
	cfg.Prefix = prefix
	cfg.Dir = dir

	a.mu.Lock()
	defer a.mu.Unlock()
	a.static = newStaticMount(cfg)
}

// Sessions returns the session store.
func (a *App) Sessions() session.Store {
	return a.config.Session.Store
}

// Close releases the session store.
func (a *App) Close() error {
	return a.config.Session.Store.Close()
}

// Serve implements gateway.Application. It hands the connection to the
// protocol handler for its scope type.
func (a *App) Serve(ctx context.Context, scope gateway.Scope, receive gateway.Receive, send gateway.Send) error {
	opts := a.config.protocolOptions()

	switch scope.Type {
	case gateway.ScopeHTTP:
		return protocol.NewHTTP(a.endpoint, a.Sessions(), opts...).Serve(ctx, scope, receive, send)

	case gateway.ScopeWebSocket:
		d := a.current()
		if d == nil {
			return dispatch.ErrNoTree
		}
		return protocol.NewSocket(d, a.Sessions(), opts...).Serve(ctx, scope, receive, send)

	case gateway.ScopeLifespan:
		a.mu.RLock()
		startup := append([]protocol.Callback(nil), a.startup...)
		shutdown := append([]protocol.Callback(nil), a.shutdown...)
		a.mu.RUnlock()
		return protocol.NewLifespan(startup, shutdown, opts...).Serve(ctx, scope, receive, send)

	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedScope, scope.Type)
	}
}

// Handler returns a net/http handler speaking the gateway protocol to a.
// Drive its Startup and Shutdown around the server's lifetime to run the
// lifecycle callbacks.
func (a *App) Handler(opts ...gateway.BridgeOption) *gateway.Bridge {
	opts = append([]gateway.BridgeOption{
		gateway.WithBridgeLogger(a.config.Logger.With("component", "gateway")),
	}, opts...)
	return gateway.NewBridge(a, opts...)
}

// endpoint serves static files first, then the route tree.
func (a *App) endpoint(ctx context.Context, req *message.Request, resp *message.Response) error {
	a.mu.RLock()
	static, d := a.static, a.dispatcher
	a.mu.RUnlock()

	if static != nil && static.serve(req, resp) {
		return nil
	}
	if d == nil {
		return dispatch.ErrNoTree
	}
	return d.Dispatch(ctx, req, resp)
}

func (a *App) current() *dispatch.Dispatcher {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dispatcher
}

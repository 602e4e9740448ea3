package router

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
)

// Supported methods. WEBSOCKET is synthetic: socket connections resolve
// against it.
const (
	MethodGet       = "GET"
	MethodPost      = "POST"
	MethodPut       = "PUT"
	MethodDelete    = "DELETE"
	MethodPatch     = "PATCH"
	MethodHead      = "HEAD"
	MethodOptions   = "OPTIONS"
	MethodWebSocket = "WEBSOCKET"
)

// Methods lists the supported methods in table order.
var Methods = []string{
	MethodGet, MethodPost, MethodPut, MethodDelete,
	MethodPatch, MethodHead, MethodOptions, MethodWebSocket,
}

var (
	// ErrDuplicateRoute is returned when (method, path, owner) is registered twice.
	ErrDuplicateRoute = errors.New("router: duplicate route")

	// ErrInvalidHandler is returned when a handler has an unusable signature.
	ErrInvalidHandler = errors.New("router: invalid handler")

	// ErrUnsupportedMethod is returned for a method outside Methods.
	ErrUnsupportedMethod = errors.New("router: unsupported method")
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// Owner identifies the type that declares a handler. Type is the bare type
// name; Qualifier is the package-qualified name, which tells apart two
// unrelated types that share a name.
type Owner struct {
	Type      string
	Qualifier string
}

// OwnerOf returns the owner identity of T. *T and T have the same owner.
func OwnerOf[T any]() Owner {
	return ownerOfType(reflect.TypeFor[T]())
}

// OwnerFor returns the owner identity of v's dynamic type.
func OwnerFor(v any) Owner {
	if v == nil {
		return Owner{}
	}
	return ownerOfType(reflect.TypeOf(v))
}

func ownerOfType(t reflect.Type) Owner {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return Owner{Type: t.Name(), Qualifier: t.PkgPath() + "." + t.Name()}
}

func (o Owner) String() string {
	return o.Qualifier
}

// Key is the identity of a mapping.
type Key struct {
	Path      string
	Method    string
	Type      string
	Qualifier string
}

// RouteMapping links a path segment and method to a handler of an owner.
// Mappings are immutable once registered.
type RouteMapping struct {
	// Path is the segment the handler answers on.
	Path string

	// Name is the handler name it was declared under.
	Name string

	Method string
	Owner  Owner

	// Handler is a func whose first parameter receives the owner value.
	Handler any

	// Params names the handler's parameters after the owner, skipping
	// context.Context parameters.
	Params []string

	// Defaults supplies values for named parameters missing from a request.
	Defaults map[string]any

	// Produces is the declared content type, set before invocation.
	Produces string
}

// Key returns the mapping's identity.
func (m *RouteMapping) Key() Key {
	return Key{Path: m.Path, Method: m.Method, Type: m.Owner.Type, Qualifier: m.Owner.Qualifier}
}

// Func returns the handler as a reflect.Value.
func (m *RouteMapping) Func() reflect.Value {
	return reflect.ValueOf(m.Handler)
}

func (m *RouteMapping) String() string {
	return fmt.Sprintf("%s %s (%s.%s)", m.Method, m.Path, m.Owner.Type, m.Name)
}

// MappingOption customizes a registration.
type MappingOption func(*RouteMapping)

// At sets an explicit path segment instead of the handler name.
func At(path string) MappingOption {
	return func(m *RouteMapping) { m.Path = path }
}

// Args names the handler's parameters in declaration order, skipping the
// owner and any context.Context. Unnamed trailing parameters can still be
// bound positionally or as aggregates.
func Args(names ...string) MappingOption {
	return func(m *RouteMapping) { m.Params = append([]string(nil), names...) }
}

// Default gives a value for a named parameter absent from the request.
func Default(name string, value any) MappingOption {
	return func(m *RouteMapping) {
		if m.Defaults == nil {
			m.Defaults = make(map[string]any)
		}
		m.Defaults[name] = value
	}
}

// Produces declares the content type of the handler's result.
func Produces(contentType string) MappingOption {
	return func(m *RouteMapping) { m.Produces = contentType }
}

// Registry collects route mappings, one ordered table per method.
// Registration is safe for concurrent use; the tables are read-only once a
// tree has been built from them.
type Registry struct {
	mu     sync.RWMutex
	tables map[string][]*RouteMapping
	keys   map[Key]*RouteMapping
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tables: make(map[string][]*RouteMapping),
		keys:   make(map[Key]*RouteMapping),
	}
}

// Register records a handler of owner under method. The path defaults to
// name. Registering the same (method, path, owner) twice fails with
// ErrDuplicateRoute; the first registration stays in place.
func (r *Registry) Register(method string, owner Owner, name string, fn any, opts ...MappingOption) (*RouteMapping, error) {
	method = strings.ToUpper(method)
	if !slices.Contains(Methods, method) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidHandler)
	}

	m := &RouteMapping{
		Path:    name,
		Name:    name,
		Method:  method,
		Owner:   owner,
		Handler: fn,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.Path == "" || strings.Contains(m.Path, "/") {
		return nil, fmt.Errorf("%w: %s: bad path segment %q", ErrInvalidHandler, name, m.Path)
	}
	if err := checkSignature(owner, m); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := m.Key()
	if prev, ok := r.keys[key]; ok {
		return nil, fmt.Errorf("%w: %s already registered by %s", ErrDuplicateRoute, m, prev.Name)
	}
	r.keys[key] = m
	r.tables[method] = append(r.tables[method], m)
	return m, nil
}

func checkSignature(owner Owner, m *RouteMapping) error {
	fn := reflect.ValueOf(m.Handler)
	if !fn.IsValid() || fn.Kind() != reflect.Func || fn.IsNil() {
		return fmt.Errorf("%w: %s: not a func", ErrInvalidHandler, m.Name)
	}
	ft := fn.Type()
	if ft.NumIn() == 0 {
		return fmt.Errorf("%w: %s: missing owner parameter", ErrInvalidHandler, m.Name)
	}
	if got := ownerOfType(ft.In(0)); got != owner {
		return fmt.Errorf("%w: %s: first parameter is %s, want %s", ErrInvalidHandler, m.Name, got, owner)
	}

	named := 0
	for i := 1; i < ft.NumIn(); i++ {
		if ft.In(i) != contextType {
			named++
		}
	}
	if len(m.Params) > named {
		return fmt.Errorf("%w: %s: %d names for %d parameters", ErrInvalidHandler, m.Name, len(m.Params), named)
	}

	switch ft.NumOut() {
	case 0, 1:
	case 2:
		if ft.Out(1) != errorType {
			return fmt.Errorf("%w: %s: second result must be error", ErrInvalidHandler, m.Name)
		}
	default:
		return fmt.Errorf("%w: %s: too many results", ErrInvalidHandler, m.Name)
	}
	return nil
}

func (r *Registry) mustRegister(method string, owner Owner, name string, fn any, opts []MappingOption) *RouteMapping {
	m, err := r.Register(method, owner, name, fn, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Get registers a GET handler. It panics on invalid or duplicate
// registrations, which are programming errors.
func (r *Registry) Get(owner Owner, name string, fn any, opts ...MappingOption) *RouteMapping {
	return r.mustRegister(MethodGet, owner, name, fn, opts)
}

// Post registers a POST handler. See Get.
func (r *Registry) Post(owner Owner, name string, fn any, opts ...MappingOption) *RouteMapping {
	return r.mustRegister(MethodPost, owner, name, fn, opts)
}

// Put registers a PUT handler. See Get.
func (r *Registry) Put(owner Owner, name string, fn any, opts ...MappingOption) *RouteMapping {
	return r.mustRegister(MethodPut, owner, name, fn, opts)
}

// Delete registers a DELETE handler. See Get.
func (r *Registry) Delete(owner Owner, name string, fn any, opts ...MappingOption) *RouteMapping {
	return r.mustRegister(MethodDelete, owner, name, fn, opts)
}

// Patch registers a PATCH handler. See Get.
func (r *Registry) Patch(owner Owner, name string, fn any, opts ...MappingOption) *RouteMapping {
	return r.mustRegister(MethodPatch, owner, name, fn, opts)
}

// Head registers a HEAD handler. See Get.
func (r *Registry) Head(owner Owner, name string, fn any, opts ...MappingOption) *RouteMapping {
	return r.mustRegister(MethodHead, owner, name, fn, opts)
}

// Options registers an OPTIONS handler. See Get.
func (r *Registry) Options(owner Owner, name string, fn any, opts ...MappingOption) *RouteMapping {
	return r.mustRegister(MethodOptions, owner, name, fn, opts)
}

// WebSocket registers a socket handler. See Get.
func (r *Registry) WebSocket(owner Owner, name string, fn any, opts ...MappingOption) *RouteMapping {
	return r.mustRegister(MethodWebSocket, owner, name, fn, opts)
}

// Table returns the mappings of one method in registration order.
func (r *Registry) Table(method string) []*RouteMapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.tables[strings.ToUpper(method)])
}

// MappingsFor returns every mapping of owner, grouped by method in
// Methods order and by registration order within a method.
func (r *Registry) MappingsFor(owner Owner) []*RouteMapping {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*RouteMapping
	for _, method := range Methods {
		for _, m := range r.tables[method] {
			if m.Owner == owner {
				out = append(out, m)
			}
		}
	}
	return out
}

// Len returns the total number of mappings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

package router

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
)

var (
	// ErrRouteNotFound is returned when no leaf matches a path and method.
	ErrRouteNotFound = errors.New("router: route not found")

	// ErrInvalidSpec is returned by Build for a malformed description.
	ErrInvalidSpec = errors.New("router: invalid spec")
)

// IndexSegment is appended to every path so a branch resolves to its index
// leaf.
const IndexSegment = "index"

// RouteError reports a failed resolution.
type RouteError struct {
	Method string
	Path   string
	Err    error
}

func (e *RouteError) Error() string {
	if e.Err == nil || e.Err == ErrRouteNotFound {
		return fmt.Sprintf("router: no route for %s %s", e.Method, e.Path)
	}
	return fmt.Sprintf("router: no route for %s %s: %v", e.Method, e.Path, e.Err)
}

// Unwrap matches ErrRouteNotFound along with any cause.
func (e *RouteError) Unwrap() []error {
	if e.Err == nil || e.Err == ErrRouteNotFound {
		return []error{ErrRouteNotFound}
	}
	return []error{ErrRouteNotFound, e.Err}
}

// Node is a tree node: *Branch or *Leaf.
type Node interface {
	Segment() string
	Parent() *Branch
	Object() any
	node()
}

// Branch is an application object that exposes further routes.
type Branch struct {
	segment  string
	object   any
	children []Node
	parent   *Branch
}

func (b *Branch) node() {}

// Segment returns the path segment. The root's segment is empty.
func (b *Branch) Segment() string { return b.segment }

// Parent returns the enclosing branch, nil for the root.
func (b *Branch) Parent() *Branch { return b.parent }

// Object returns the live application object.
func (b *Branch) Object() any { return b.object }

// Children returns the child nodes in build order.
func (b *Branch) Children() []Node { return b.children }

// URL reconstructs the branch's path from the root.
func (b *Branch) URL() string {
	return joinURL(b.segment, b.parent)
}

// match finds the child answering seg. Branches match on segment alone;
// leaves also need the method.
func (b *Branch) match(seg, method string) Node {
	for _, child := range b.children {
		if child.Segment() != seg {
			continue
		}
		switch c := child.(type) {
		case *Branch:
			return c
		case *Leaf:
			if c.mapping.Method == method {
				return c
			}
		}
	}
	return nil
}

// Leaf is one (path, method) pair bound to a handler of its object.
type Leaf struct {
	segment string
	object  any
	mapping *RouteMapping
	parent  *Branch
}

func (l *Leaf) node() {}

// Segment returns the path segment.
func (l *Leaf) Segment() string { return l.segment }

// Parent returns the enclosing branch.
func (l *Leaf) Parent() *Branch { return l.parent }

// Object returns the live object the handler is invoked on.
func (l *Leaf) Object() any { return l.object }

// Mapping returns the registration the leaf realizes.
func (l *Leaf) Mapping() *RouteMapping { return l.mapping }

// Method returns the leaf's method.
func (l *Leaf) Method() string { return l.mapping.Method }

// URL reconstructs "/a/b/leaf". An index leaf maps to its branch's URL.
func (l *Leaf) URL() string {
	if l.segment == IndexSegment {
		return l.parent.URL()
	}
	return joinURL(l.segment, l.parent)
}

func joinURL(seg string, parent *Branch) string {
	parts := []string{seg}
	for p := parent; p != nil; p = p.parent {
		parts = append(parts, p.segment)
	}
	var sb strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "" {
			continue
		}
		sb.WriteByte('/')
		sb.WriteString(parts[i])
	}
	if sb.Len() == 0 {
		return "/"
	}
	return sb.String()
}

// Tree is the built, immutable route tree.
type Tree struct {
	root *Branch
}

// Root returns the root branch.
func (t *Tree) Root() *Branch { return t.root }

// Walk visits every node depth first, parents before children. Returning
// false from fn skips a branch's children.
func (t *Tree) Walk(fn func(n Node, depth int) bool) {
	var walk func(n Node, depth int)
	walk = func(n Node, depth int) {
		if !fn(n, depth) {
			return
		}
		if b, ok := n.(*Branch); ok {
			for _, c := range b.children {
				walk(c, depth+1)
			}
		}
	}
	walk(t.root, 0)
}

// Leaves returns every leaf in walk order.
func (t *Tree) Leaves() []*Leaf {
	var out []*Leaf
	t.Walk(func(n Node, _ int) bool {
		if l, ok := n.(*Leaf); ok {
			out = append(out, l)
		}
		return true
	})
	return out
}

// Resolve walks the tree along path and returns the leaf answering method
// plus the path segments left past it. Segments are URL-decoded and empty
// ones dropped; a synthetic "index" segment is appended first and is never
// part of the returned suffix.
func (t *Tree) Resolve(method, path string) (*Leaf, []string, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, nil, &RouteError{Method: method, Path: path, Err: err}
	}
	segs = append(segs, IndexSegment)

	current := t.root
	for i, seg := range segs {
		switch n := current.match(seg, method).(type) {
		case *Branch:
			current = n
		case *Leaf:
			var rest []string
			if last := len(segs) - 1; i < last {
				rest = segs[i+1 : last : last]
			}
			return n, rest, nil
		default:
			return nil, nil, &RouteError{Method: method, Path: path}
		}
	}
	return nil, nil, &RouteError{Method: method, Path: path}
}

// splitPath splits a path into non-empty decoded segments.
func splitPath(path string) ([]string, error) {
	var segs []string
	for _, raw := range strings.Split(path, "/") {
		if raw == "" {
			continue
		}
		seg, err := url.PathUnescape(raw)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// Spec declares an application object and its routed attribute objects.
type Spec struct {
	name     string
	value    any
	children []*Spec
}

// Object declares the root object of an application.
func Object(value any, children ...*Spec) *Spec {
	return &Spec{value: value, children: children}
}

// Child declares an attribute object exposed under name.
func Child(name string, value any, children ...*Spec) *Spec {
	return &Spec{name: name, value: value, children: children}
}

// Build turns a declaration into a tree. For each declared object it emits
// one leaf per mapping registered for the object's owner, then one branch per
// child. The same inputs always build the same tree.
func Build(reg *Registry, root *Spec) (*Tree, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrInvalidSpec)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: nil root", ErrInvalidSpec)
	}
	b, err := buildBranch(reg, root, "", nil)
	if err != nil {
		return nil, err
	}
	return &Tree{root: b}, nil
}

func buildBranch(reg *Registry, s *Spec, segment string, parent *Branch) (*Branch, error) {
	if s.value == nil {
		return nil, fmt.Errorf("%w: %q has no object", ErrInvalidSpec, segment)
	}
	b := &Branch{segment: segment, object: s.value, parent: parent}

	vt := reflect.TypeOf(s.value)
	for _, m := range reg.MappingsFor(OwnerFor(s.value)) {
		if want := m.Func().Type().In(0); !vt.AssignableTo(want) {
			return nil, fmt.Errorf("%w: %s handler %s takes %s, object is %s",
				ErrInvalidSpec, m.Owner.Type, m.Name, want, vt)
		}
		b.children = append(b.children, &Leaf{
			segment: m.Path,
			object:  s.value,
			mapping: m,
			parent:  b,
		})
	}

	seen := make(map[string]bool, len(s.children))
	for _, c := range s.children {
		if c == nil {
			return nil, fmt.Errorf("%w: nil child under %q", ErrInvalidSpec, segment)
		}
		if c.name == "" || strings.Contains(c.name, "/") {
			return nil, fmt.Errorf("%w: bad child name %q", ErrInvalidSpec, c.name)
		}
		if seen[c.name] {
			return nil, fmt.Errorf("%w: duplicate child %q", ErrInvalidSpec, c.name)
		}
		seen[c.name] = true

		child, err := buildBranch(reg, c, c.name, b)
		if err != nil {
			return nil, err
		}
		b.children = append(b.children, child)
	}
	return b, nil
}

package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/cinder-go/cinder/pkg/contenttype"
	"github.com/cinder-go/cinder/pkg/message"
	"github.com/cinder-go/cinder/pkg/router"
)

// Kwargs is the catch-all keyword parameter type. A handler parameter of
// this type receives every argument no other parameter took.
type Kwargs map[string]any

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
	kwargsType  = reflect.TypeFor[Kwargs]()
)

// Arguments materializes a request's keyword arguments: the decoded body
// first (JSON object or urlencoded form), then the query string, which
// overwrites body keys.
func Arguments(ctx context.Context, req *message.Request) (*Values, error) {
	out := NewValues()

	ct := req.ContentType()
	isJSON, isForm := contenttype.IsJSON(ct), contenttype.IsForm(ct)
	if isJSON || isForm {
		body, err := req.Body(ctx)
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(body)) > 0 {
			var vals *Values
			if isJSON {
				vals, err = ParseJSONObject(body)
			} else {
				vals, err = ParseQuery(string(body))
			}
			if err != nil {
				return nil, message.NewHTTPError(http.StatusBadRequest, "malformed request body")
			}
			out.Merge(vals)
		}
	}

	if req.QueryString != "" {
		q, err := ParseQuery(req.QueryString)
		if err != nil {
			return nil, message.NewHTTPError(http.StatusBadRequest, "malformed query string")
		}
		out.Merge(q)
	}
	return out, nil
}

// Call is a handler with its arguments bound, ready to invoke.
type Call struct {
	Leaf *router.Leaf

	fn        reflect.Value
	fixed     []reflect.Value
	extra     []reflect.Value
	ctxParams []int
}

// Returns reports whether the handler produces a value besides an error.
func (c *Call) Returns() bool {
	ft := c.fn.Type()
	switch ft.NumOut() {
	case 0:
		return false
	case 1:
		return ft.Out(0) != errorType
	}
	return true
}

// Invoke calls the handler. context.Context parameters receive ctx. A
// panic is recovered into a *HandlerError.
func (c *Call) Invoke(ctx context.Context) (result any, err error) {
	name := c.Leaf.Mapping().String()
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &HandlerError{Handler: name, Panic: r, Stack: debug.Stack()}
		}
	}()

	args := make([]reflect.Value, 0, len(c.fixed)+len(c.extra))
	args = append(args, c.fixed...)
	cv := reflect.ValueOf(&ctx).Elem()
	for _, i := range c.ctxParams {
		args[i] = cv
	}
	args = append(args, c.extra...)

	out := c.fn.Call(args)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if c.fn.Type().Out(0) == errorType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	default:
		return out[0].Interface(), asError(out[1])
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

type slot struct {
	index int
	name  string
	typ   reflect.Type
}

// bindValues binds the leaf's handler against the path suffix and keyword
// arguments.
//
// The owner object is the first argument. Path segments past the leaf
// (minus any literal "index") fill the next plain parameters in order. Each
// remaining plain parameter is then bound as an aggregate when it is a
// struct and keyword arguments remain, else by name, else from a declared
// default. Leftover keywords go to a variadic parameter if there is one,
// else to a Kwargs parameter. Anything still unbound fails with a
// *BindError.
func bindValues(leaf *router.Leaf, unmatched []string, values *Values) (*Call, error) {
	m := leaf.Mapping()
	fn := m.Func()
	ft := fn.Type()
	kw := values.Clone()

	fail := func(param, reason string, err error) error {
		return &BindError{Handler: m.String(), Param: param, Reason: reason, Err: err}
	}

	nFixed := ft.NumIn()
	variadic := ft.IsVariadic()
	if variadic {
		nFixed--
	}

	call := &Call{Leaf: leaf, fn: fn, fixed: make([]reflect.Value, nFixed)}
	call.fixed[0] = reflect.ValueOf(leaf.Object())

	var plain []slot
	kwargsAt := -1
	named := 0
	for i := 1; i < nFixed; i++ {
		t := ft.In(i)
		if t == contextType {
			call.ctxParams = append(call.ctxParams, i)
			continue
		}
		name := ""
		if named < len(m.Params) {
			name = m.Params[named]
		}
		named++
		if t == kwargsType {
			kwargsAt = i
			continue
		}
		plain = append(plain, slot{index: i, name: name, typ: t})
	}
	var elem reflect.Type
	if variadic {
		elem = ft.In(nFixed).Elem()
	}

	var suffix []string
	for _, seg := range unmatched {
		if seg != router.IndexSegment {
			suffix = append(suffix, seg)
		}
	}

	bound := make([]bool, len(plain))
	si := 0
	for k := 0; k < len(plain) && si < len(suffix); k++ {
		v, err := convert(suffix[si], plain[k].typ)
		if err != nil {
			return nil, fail(plain[k].name, "path segment "+suffix[si], err)
		}
		call.fixed[plain[k].index] = v
		bound[k] = true
		si++
	}
	for ; si < len(suffix); si++ {
		if !variadic {
			return nil, fail("", fmt.Sprintf("unexpected path segments %q", suffix[si:]), nil)
		}
		v, err := convert(suffix[si], elem)
		if err != nil {
			return nil, fail("", "path segment "+suffix[si], err)
		}
		call.extra = append(call.extra, v)
	}

	for k, s := range plain {
		if bound[k] {
			continue
		}
		if isAggregate(s.typ) && kw.Len() > 0 {
			v, err := buildAggregate(kw, s.typ)
			if err != nil {
				return nil, fail(s.name, "aggregate", err)
			}
			call.fixed[s.index] = v
			continue
		}
		if s.name != "" {
			if raw, ok := kw.Get(s.name); ok {
				v, err := convert(raw, s.typ)
				if err != nil {
					return nil, fail(s.name, "convert", err)
				}
				kw.Delete(s.name)
				call.fixed[s.index] = v
				continue
			}
			if def, ok := m.Defaults[s.name]; ok {
				v, err := convert(def, s.typ)
				if err != nil {
					return nil, fail(s.name, "default", err)
				}
				call.fixed[s.index] = v
				continue
			}
		}
		return nil, fail(s.name, "missing argument", nil)
	}

	if kw.Len() > 0 && variadic {
		for _, k := range kw.Keys() {
			raw, _ := kw.Get(k)
			v, err := convert(raw, elem)
			if err != nil {
				return nil, fail(k, "variadic", err)
			}
			call.extra = append(call.extra, v)
		}
		kw = NewValues()
	}
	if kwargsAt >= 0 {
		rest := make(Kwargs, kw.Len())
		for _, k := range kw.Keys() {
			raw, _ := kw.Get(k)
			rest[k] = normalize(raw)
		}
		call.fixed[kwargsAt] = reflect.ValueOf(rest)
		kw = NewValues()
	}
	if kw.Len() > 0 {
		return nil, fail("", fmt.Sprintf("unexpected arguments %q", kw.Keys()), nil)
	}
	return call, nil
}

// isAggregate reports whether t is a struct (or pointer to one) that binds
// from several keyword arguments. Types with their own text form, such as
// time.Time, bind from a single value instead.
func isAggregate(t reflect.Type) bool {
	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct || st == kwargsType {
		return false
	}
	return !reflect.PointerTo(st).Implements(textUnmarshalerType)
}

// buildAggregate constructs t from the keyword arguments matching its
// fields and consumes those keys. Keys match a field's JSON name or, case
// insensitively, its Go name.
func buildAggregate(kw *Values, t reflect.Type) (reflect.Value, error) {
	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	ptr := reflect.New(st)
	fields := reflect.VisibleFields(st)

	for _, key := range kw.Keys() {
		f, ok := fieldFor(fields, key)
		if !ok {
			continue
		}
		fv, err := ptr.Elem().FieldByIndexErr(f.Index)
		if err != nil || !fv.CanSet() {
			continue
		}
		raw, _ := kw.Get(key)
		v, err := convert(raw, f.Type)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("field %s: %w", f.Name, err)
		}
		fv.Set(v)
		kw.Delete(key)
	}

	if t.Kind() == reflect.Pointer {
		return ptr, nil
	}
	return ptr.Elem(), nil
}

func fieldFor(fields []reflect.StructField, key string) (reflect.StructField, bool) {
	for _, f := range fields {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		name := f.Name
		if tag := f.Tag.Get("json"); tag != "" {
			tn, _, _ := strings.Cut(tag, ",")
			if tn == "-" {
				continue
			}
			if tn != "" {
				name = tn
			}
		}
		if name == key || strings.EqualFold(name, key) {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

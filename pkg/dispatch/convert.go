package dispatch

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

var textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()

// convert turns a materialized argument into a value of type t.
//
// Strings from query strings and forms are parsed into scalars; repeated
// keys fill slices; anything else goes through a JSON round trip.
func convert(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	if t.Kind() == reflect.Interface {
		nv := normalize(v)
		if nv == nil {
			return reflect.Zero(t), nil
		}
		rv := reflect.ValueOf(nv)
		if !rv.Type().Implements(t) {
			return reflect.Value{}, fmt.Errorf("%T does not implement %s", nv, t)
		}
		return rv.Convert(t), nil
	}
	if rv := reflect.ValueOf(v); rv.Type().AssignableTo(t) {
		return rv, nil
	}

	switch x := v.(type) {
	case string:
		return convertString(x, t)
	case json.Number:
		return convertString(x.String(), t)
	case []string:
		if t.Kind() != reflect.Slice {
			return reflect.Value{}, fmt.Errorf("%d values for a single %s", len(x), t)
		}
		out := reflect.MakeSlice(t, len(x), len(x))
		for i, s := range x {
			ev, err := convertString(s, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	}
	return viaJSON(v, t)
}

func convertString(s string, t reflect.Type) (reflect.Value, error) {
	ptr := reflect.New(t)
	if ptr.Type().Implements(textUnmarshalerType) {
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
			return reflect.Value{}, err
		}
		return ptr.Elem(), nil
	}

	out := ptr.Elem()
	switch t.Kind() {
	case reflect.String:
		out.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetFloat(f)
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			out.SetBytes([]byte(s))
			break
		}
		ev, err := convertString(s, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out.Set(reflect.Append(out, ev))
	case reflect.Pointer:
		ev, err := convertString(s, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(ev)
		out.Set(p)
	default:
		// A JSON document passed as text, e.g. a struct in a query value.
		if err := json.Unmarshal([]byte(s), ptr.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("cannot use %q as %s", s, t)
		}
	}
	return out, nil
}

func viaJSON(v any, t reflect.Type) (reflect.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return reflect.Value{}, err
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

// normalize returns a copy of v with json.Number replaced by int64 or
// float64 at any depth.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}

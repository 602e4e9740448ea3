package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Values is an insertion-ordered set of keyword arguments. Setting an
// existing key replaces its value and keeps its position.
type Values struct {
	keys []string
	m    map[string]any
}

// NewValues returns an empty set.
func NewValues() *Values {
	return &Values{m: make(map[string]any)}
}

// Set stores v under k.
func (v *Values) Set(k string, val any) {
	if _, ok := v.m[k]; !ok {
		v.keys = append(v.keys, k)
	}
	v.m[k] = val
}

// Get returns the value under k.
func (v *Values) Get(k string) (any, bool) {
	val, ok := v.m[k]
	return val, ok
}

// Has reports whether k is present.
func (v *Values) Has(k string) bool {
	_, ok := v.m[k]
	return ok
}

// Delete removes k.
func (v *Values) Delete(k string) {
	if _, ok := v.m[k]; !ok {
		return
	}
	delete(v.m, k)
	for i, key := range v.keys {
		if key == k {
			v.keys = append(v.keys[:i], v.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (v *Values) Keys() []string {
	return append([]string(nil), v.keys...)
}

// Len returns the number of keys.
func (v *Values) Len() int {
	return len(v.keys)
}

// Merge copies every pair of other into v, later values winning.
func (v *Values) Merge(other *Values) {
	for _, k := range other.keys {
		v.Set(k, other.m[k])
	}
}

// Clone returns a shallow copy.
func (v *Values) Clone() *Values {
	c := &Values{keys: append([]string(nil), v.keys...), m: make(map[string]any, len(v.m))}
	for k, val := range v.m {
		c.m[k] = val
	}
	return c
}

// Map returns the values as a plain map.
func (v *Values) Map() map[string]any {
	out := make(map[string]any, len(v.m))
	for k, val := range v.m {
		out[k] = val
	}
	return out
}

// ParseQuery decodes a query string or urlencoded form body, keeping the
// order in which keys first appear. A key seen once maps to a string, a
// repeated key to a []string. Pairs with a blank value, including bare keys
// without "=", are dropped.
func ParseQuery(s string) (*Values, error) {
	lists := make(map[string][]string)
	var order []string
	for s != "" {
		var pair string
		pair, s, _ = strings.Cut(s, "&")
		if pair == "" {
			continue
		}
		rawKey, rawVal, _ := strings.Cut(pair, "=")
		if rawVal == "" {
			continue
		}
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("dispatch: bad query key %q: %w", rawKey, err)
		}
		val, err := url.QueryUnescape(rawVal)
		if err != nil {
			return nil, fmt.Errorf("dispatch: bad query value for %q: %w", key, err)
		}
		if _, seen := lists[key]; !seen {
			order = append(order, key)
		}
		lists[key] = append(lists[key], val)
	}

	out := NewValues()
	for _, k := range order {
		if l := lists[k]; len(l) == 1 {
			out.Set(k, l[0])
		} else {
			out.Set(k, l)
		}
	}
	return out, nil
}

// ParseJSONObject decodes a top-level JSON object, keeping key order.
// Numbers are kept as json.Number so integers survive untouched.
func ParseJSONObject(data []byte) (*Values, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("dispatch: body is not a JSON object")
	}

	out := NewValues()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("dispatch: unexpected JSON token %v", tok)
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		out.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("dispatch: trailing data after JSON object")
	}
	return out, nil
}

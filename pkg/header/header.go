// Package header is the header and cookie codec used between the gateway
// and the dispatcher.
//
// Gateway scopes carry headers as ordered name/value pairs. Header keeps that
// order, compares names case-insensitively and stores them lowercased, which
// is the form the gateway protocol uses on the wire.
package header

import (
	"maps"
	"net/http"
	"slices"
	"strings"
)

// Common header names, lowercased.
const (
	ContentType     = "content-type"
	ContentLength   = "content-length"
	ContentEncoding = "content-encoding"
	AcceptEncoding  = "accept-encoding"
	Cookie          = "cookie"
	SetCookie       = "set-cookie"
	Location        = "location"
	Host            = "host"
	Vary            = "vary"
)

// Field is a single header line.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered, case-insensitive header collection.
// The zero value is an empty header ready to use.
type Header struct {
	fields []Field
}

// Parse builds a Header from raw gateway pairs.
func Parse(pairs [][2]string) Header {
	h := Header{fields: make([]Field, 0, len(pairs))}
	for _, p := range pairs {
		h.Add(p[0], p[1])
	}
	return h
}

// FromHTTP converts a net/http header map. Distinct names are sorted.
func FromHTTP(src http.Header) Header {
	var h Header
	for _, name := range slices.Sorted(maps.Keys(src)) {
		for _, v := range src[name] {
			h.Add(name, v)
		}
	}
	return h
}

// Encode returns the header as raw gateway pairs in insertion order.
func (h Header) Encode() [][2]string {
	out := make([][2]string, len(h.fields))
	for i, f := range h.fields {
		out[i] = [2]string{f.Name, f.Value}
	}
	return out
}

// Get returns the first value for name, or "" if absent.
func (h Header) Get(name string) string {
	name = strings.ToLower(name)
	for _, f := range h.fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for name in order.
func (h Header) Values(name string) []string {
	name = strings.ToLower(name)
	var out []string
	for _, f := range h.fields {
		if f.Name == name {
			out = append(out, f.Value)
		}
	}
	return out
}

// Has reports whether name is present.
func (h Header) Has(name string) bool {
	name = strings.ToLower(name)
	for _, f := range h.fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Add appends a value without touching existing ones.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: strings.ToLower(name), Value: value})
}

// Set replaces every value of name with a single value. The field keeps the
// position of the first existing occurrence.
func (h *Header) Set(name, value string) {
	name = strings.ToLower(name)
	out := h.fields[:0]
	replaced := false
	for _, f := range h.fields {
		if f.Name != name {
			out = append(out, f)
			continue
		}
		if !replaced {
			out = append(out, Field{Name: name, Value: value})
			replaced = true
		}
	}
	if !replaced {
		out = append(out, Field{Name: name, Value: value})
	}
	h.fields = out
}

// Del removes every value of name.
func (h *Header) Del(name string) {
	name = strings.ToLower(name)
	out := h.fields[:0]
	for _, f := range h.fields {
		if f.Name != name {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Len returns the number of fields.
func (h Header) Len() int {
	return len(h.fields)
}

// Clone returns a deep copy.
func (h Header) Clone() Header {
	return Header{fields: append([]Field(nil), h.fields...)}
}

// HTTP converts the header into a net/http map.
func (h Header) HTTP() http.Header {
	out := make(http.Header, len(h.fields))
	for _, f := range h.fields {
		out.Add(f.Name, f.Value)
	}
	return out
}

// Cookie returns the value of the named request cookie.
func (h Header) Cookie(name string) (string, bool) {
	for _, line := range h.Values(Cookie) {
		cookies, err := http.ParseCookie(line)
		if err != nil {
			continue
		}
		for _, c := range cookies {
			if c.Name == name {
				return c.Value, true
			}
		}
	}
	return "", false
}

// CookieOption sets an attribute on an outgoing cookie.
type CookieOption func(*http.Cookie)

// WithPath sets the cookie Path attribute.
func WithPath(path string) CookieOption {
	return func(c *http.Cookie) { c.Path = path }
}

// WithDomain sets the cookie Domain attribute. Ports are stripped.
func WithDomain(host string) CookieOption {
	return func(c *http.Cookie) { c.Domain = stripPort(host) }
}

// WithMaxAge sets Max-Age in seconds.
func WithMaxAge(seconds int) CookieOption {
	return func(c *http.Cookie) { c.MaxAge = seconds }
}

// WithHTTPOnly sets the HttpOnly flag.
func WithHTTPOnly() CookieOption {
	return func(c *http.Cookie) { c.HttpOnly = true }
}

// WithSecure sets the Secure flag.
func WithSecure() CookieOption {
	return func(c *http.Cookie) { c.Secure = true }
}

// WithSameSite sets the SameSite attribute.
func WithSameSite(mode http.SameSite) CookieOption {
	return func(c *http.Cookie) { c.SameSite = mode }
}

// SetCookie appends a Set-Cookie line.
func (h *Header) SetCookie(name, value string, opts ...CookieOption) {
	c := &http.Cookie{Name: name, Value: value}
	for _, opt := range opts {
		opt(c)
	}
	if line := c.String(); line != "" {
		h.Add(SetCookie, line)
	}
}

func stripPort(host string) string {
	if strings.HasPrefix(host, "[") {
		if i := strings.Index(host, "]"); i > 0 {
			return host[1:i]
		}
		return host
	}
	if i := strings.LastIndex(host, ":"); i >= 0 && strings.Count(host, ":") == 1 {
		return host[:i]
	}
	return host
}

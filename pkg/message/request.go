package message

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/cinder-go/cinder/pkg/contenttype"
	"github.com/cinder-go/cinder/pkg/gateway"
	"github.com/cinder-go/cinder/pkg/header"
	"github.com/cinder-go/cinder/pkg/router"
)

// Request is the per-connection view of an inbound request.
//
// The body is drained from the gateway on first use of Body and cached, so
// later reads see the same bytes without touching the gateway again.
type Request struct {
	Method      string
	Path        string
	RawPath     string
	QueryString string
	Scheme      string
	HTTPVersion string
	Header      header.Header

	// Client is the remote "host:port", empty when the gateway did not say.
	Client string

	// Route is the leaf the dispatcher resolved, nil before resolution.
	Route *router.Leaf

	// Unmatched holds path segments past the resolved leaf.
	Unmatched []string

	receive gateway.Receive

	bodyOnce sync.Once
	body     []byte
	bodyErr  error
}

// NewRequest builds a Request from a gateway scope. receive may be nil for
// requests that never carry a body.
func NewRequest(scope gateway.Scope, receive gateway.Receive) *Request {
	method := scope.Method
	if scope.Type == gateway.ScopeWebSocket {
		method = router.MethodWebSocket
	}
	return &Request{
		Method:      method,
		Path:        scope.Path,
		RawPath:     scope.RawPath,
		QueryString: scope.QueryString,
		Scheme:      scope.Scheme,
		HTTPVersion: scope.HTTPVersion,
		Header:      header.Parse(scope.Headers),
		Client:      scope.Client,
		receive:     receive,
	}
}

// NewRequestWithBody builds a Request whose body is already known.
func NewRequestWithBody(scope gateway.Scope, body []byte) *Request {
	r := NewRequest(scope, nil)
	r.bodyOnce.Do(func() { r.body = body })
	return r
}

// Body drains http.request events until more_body is false and returns the
// concatenated payload. The result is cached.
func (r *Request) Body(ctx context.Context) ([]byte, error) {
	r.bodyOnce.Do(func() {
		r.body, r.bodyErr = r.drain(ctx)
	})
	return r.body, r.bodyErr
}

func (r *Request) drain(ctx context.Context) ([]byte, error) {
	if r.receive == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	for {
		ev, err := r.receive(ctx)
		if err != nil {
			return nil, fmt.Errorf("message: read body: %w", err)
		}
		switch ev.Type {
		case gateway.HTTPRequest:
			buf.Write(ev.Body)
			if !ev.MoreBody {
				return buf.Bytes(), nil
			}
		case gateway.HTTPDisconnect:
			return nil, ErrClientDisconnected
		default:
			return nil, fmt.Errorf("message: read body: unexpected event %q", ev.Type)
		}
	}
}

// ContentType returns the content-type header.
func (r *Request) ContentType() string {
	return r.Header.Get(header.ContentType)
}

// IsJSON reports whether the body is declared as JSON.
func (r *Request) IsJSON() bool {
	return contenttype.IsJSON(r.ContentType())
}

// Host returns the host header, without any port stripping.
func (r *Request) Host() string {
	return r.Header.Get(header.Host)
}

// Cookie returns the named cookie value.
func (r *Request) Cookie(name string) (string, bool) {
	return r.Header.Cookie(name)
}

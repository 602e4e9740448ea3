package middleware

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/cinder-go/cinder/pkg/dispatch"
	"github.com/cinder-go/cinder/pkg/gateway"
	"github.com/cinder-go/cinder/pkg/message"
	"github.com/cinder-go/cinder/pkg/router"
)

type shop struct{}

func (s *shop) Index() string { return "welcome" }

func (s *shop) Report() message.Structured {
	return message.JSON(map[string]string{"report": strings.Repeat("sales ", 200)})
}

func (s *shop) Logo() message.Bytes { return message.Bytes{0x89, 0x50, 0x4e, 0x47} }

func (s *shop) Broken() (string, error) { return "", http.ErrHandlerTimeout }

func (s *shop) Forbidden() (string, error) {
	return "", message.NewHTTPError(http.StatusForbidden, "")
}

func (s *shop) Panics() string { panic("bad") }

func newShopDispatcher(t *testing.T, mw ...dispatch.Middleware) *dispatch.Dispatcher {
	t.Helper()
	reg := router.NewRegistry()
	owner := router.OwnerOf[shop]()
	reg.Get(owner, "index", (*shop).Index)
	reg.Get(owner, "report", (*shop).Report)
	reg.Get(owner, "logo", (*shop).Logo)
	reg.Get(owner, "broken", (*shop).Broken)
	reg.Get(owner, "forbidden", (*shop).Forbidden)
	reg.Get(owner, "panics", (*shop).Panics)

	tree, err := router.Build(reg, router.Object(&shop{}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return dispatch.New(tree, dispatch.WithMiddleware(mw...))
}

func newRequest(method, path string, headers ...[2]string) *message.Request {
	return message.NewRequestWithBody(gateway.Scope{
		Type:    gateway.ScopeHTTP,
		Method:  method,
		Path:    path,
		Headers: headers,
	}, nil)
}

func run(t *testing.T, d *dispatch.Dispatcher, req *message.Request) (*message.Response, error) {
	t.Helper()
	resp := message.NewResponse()
	err := d.Dispatch(context.Background(), req, resp)
	return resp, err
}

package integration_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cinder-go/cinder"
	"github.com/cinder-go/cinder/internal/demo"
	"github.com/cinder-go/cinder/pkg/ambient"
	"github.com/cinder-go/cinder/pkg/router"
)

// account reads what the outer middleware stack left on the request.
type account struct{}

func (a *account) Index(ctx context.Context) string {
	req := ambient.MustRequest(ctx)
	if user := req.Header.Get("x-user"); user != "" {
		return "user " + user
	}
	return "anonymous"
}

func (a *account) Client(ctx context.Context) string {
	return ambient.MustRequest(ctx).Client
}

// mockAuthMiddleware simulates authentication middleware that forwards the
// user as a header.
func mockAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer valid-token" {
			r.Header.Set("X-User", "user-123")
		} else {
			r.Header.Del("X-User")
		}
		next.ServeHTTP(w, r)
	})
}

func newApp(t *testing.T) *cinder.App {
	t.Helper()
	app := cinder.New(cinder.Config{})
	demo.Register(app.Routes())
	app.Routes().Get(router.OwnerOf[account](), "index", (*account).Index)
	app.Routes().Get(router.OwnerOf[account](), "client", (*account).Client)

	root := router.Object(&demo.Root{},
		router.Child("child", &demo.Child{}),
		router.Child("account", &account{}),
	)
	if err := app.Mount(root); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return app
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	b, _ := io.ReadAll(rec.Body)
	return rec, string(b)
}

// TestChiRouterIntegration checks that a cinder app mounted under chi sees
// the outer middleware stack and shares the router with plain handlers.
func TestChiRouterIntegration(t *testing.T) {
	app := newApp(t)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(mockAuthMiddleware)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/*", app.Handler())

	t.Run("API health endpoint", func(t *testing.T) {
		rec, body := do(t, r, httptest.NewRequest("GET", "/api/health", nil))
		if rec.Code != http.StatusOK || body != "OK" {
			t.Errorf("got %d %q", rec.Code, body)
		}
	})

	t.Run("cinder routes served", func(t *testing.T) {
		rec, body := do(t, r, httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusOK || body != "Hello" {
			t.Errorf("got %d %q", rec.Code, body)
		}
	})

	t.Run("cinder post served", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/child/create", strings.NewReader(`{"thing1": 2, "thing2": "b"}`))
		req.Header.Set("Content-Type", "application/json")
		rec, body := do(t, r, req)
		if rec.Code != http.StatusOK || body != `{"thing1":2,"thing2":"b"}` {
			t.Errorf("got %d %q", rec.Code, body)
		}
	})

	t.Run("auth context available", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/account", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		if _, body := do(t, r, req); body != "user user-123" {
			t.Errorf("authenticated body = %q", body)
		}

		if _, body := do(t, r, httptest.NewRequest("GET", "/account", nil)); body != "anonymous" {
			t.Errorf("anonymous body = %q", body)
		}
	})

	t.Run("real ip forwarded", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/account/client", nil)
		req.Header.Set("X-Real-IP", "203.0.113.7")
		if _, body := do(t, r, req); !strings.HasPrefix(body, "203.0.113.7") {
			t.Errorf("client = %q", body)
		}
	})

	t.Run("unknown route is cinder's 404", func(t *testing.T) {
		rec, body := do(t, r, httptest.NewRequest("GET", "/missing", nil))
		if rec.Code != http.StatusNotFound || body != "Not Found" {
			t.Errorf("got %d %q", rec.Code, body)
		}
	})
}

// TestStdlibMuxIntegration mounts the app on net/http's ServeMux.
func TestStdlibMuxIntegration(t *testing.T) {
	app := newApp(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	mux.Handle("/", app.Handler())

	t.Run("API route works", func(t *testing.T) {
		if _, body := do(t, mux, httptest.NewRequest("GET", "/api/health", nil)); body != "OK" {
			t.Errorf("body = %q", body)
		}
	})

	t.Run("cinder handler mounted", func(t *testing.T) {
		if _, body := do(t, mux, httptest.NewRequest("GET", "/child", nil)); body != "[]" {
			t.Errorf("body = %q", body)
		}
	})
}

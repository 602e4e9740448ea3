package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis"
	"github.com/gorilla/websocket"

	"github.com/cinder-go/cinder/internal/config"
	cerrors "github.com/cinder-go/cinder/internal/errors"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, cfg *config.Config) (*server, *httptest.Server) {
	t.Helper()
	s, err := newServer(cfg, quietLogger())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	ts := httptest.NewServer(s.handler)
	t.Cleanup(func() {
		ts.Close()
		s.app.Close()
	})
	return s, ts
}

func get(t *testing.T, url string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestServeDemo(t *testing.T) {
	cfg := config.New()
	cfg.Metrics.Enabled = true
	_, ts := startServer(t, cfg)

	resp, body := get(t, ts.URL+"/", nil)
	if resp.StatusCode != 200 || body != "Hello" {
		t.Fatalf("GET / = %d %q", resp.StatusCode, body)
	}

	resp, body = get(t, ts.URL+"/metrics", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("GET /metrics = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `cinder_requests_total{method="GET",route="/",status="200"} 1`) {
		t.Errorf("metrics missing request counter:\n%s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("metrics missing Go collector")
	}
}

func TestServeCompression(t *testing.T) {
	cfg := config.New()
	cfg.Compression.Enabled = true
	_, ts := startServer(t, cfg)

	resp, _ := get(t, ts.URL+"/child", http.Header{"Accept-Encoding": {"gzip"}})
	if got := resp.Header.Get("Content-Encoding"); got != "gzip" {
		t.Errorf("content-encoding = %q, want gzip", got)
	}
}

func TestServeWebSocket(t *testing.T) {
	_, ts := startServer(t, config.New())

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/echo"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("ember")); err != nil {
		t.Fatal(err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(msg) != "EMBER" {
		t.Errorf("echo = %q", msg)
	}
}

func TestServeRedisSessions(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer mr.Close()

	cfg := config.New()
	cfg.Session.Store = config.StoreRedis
	cfg.Session.RedisAddr = mr.Addr()
	_, ts := startServer(t, cfg)

	resp, body := get(t, ts.URL+"/visits", nil)
	if body != "1" {
		t.Fatalf("first visit = %q", body)
	}
	cookies := resp.Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %v", cookies)
	}
	if !mr.Exists(cfg.Session.RedisPrefix + cookies[0].Value) {
		t.Error("session not written to redis")
	}

	_, body = get(t, ts.URL+"/visits", http.Header{"Cookie": {cookies[0].Name + "=" + cookies[0].Value}})
	if body != "2" {
		t.Errorf("second visit = %q", body)
	}
}

func TestServeBoltSessions(t *testing.T) {
	cfg := config.New()
	cfg.Session.Store = config.StoreBolt
	cfg.Session.BoltPath = filepath.Join(t.TempDir(), "sessions.db")
	_, ts := startServer(t, cfg)

	if _, body := get(t, ts.URL+"/visits", nil); body != "1" {
		t.Errorf("visit = %q", body)
	}
}

func TestOpenStoreErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SessionConfig
		code string
	}{
		{"unknown", config.SessionConfig{Store: "mongo"}, "E120"},
		{"unreachable redis", config.SessionConfig{Store: config.StoreRedis, RedisAddr: "127.0.0.1:1"}, "E121"},
		{"bad bolt path", config.SessionConfig{Store: config.StoreBolt, BoltPath: filepath.Join(t.TempDir(), "missing", "s.db")}, "E121"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := openStore(tt.cfg)
			var e *cerrors.Error
			if !stderrors.As(err, &e) || e.Code != tt.code {
				t.Errorf("openStore = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestLifespanThroughBridge(t *testing.T) {
	s, _ := startServer(t, config.New())
	ctx := context.Background()
	if err := s.bridge.Startup(ctx); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	if err := s.bridge.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestRoutesCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"routes"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("routes: %v", err)
	}

	for _, want := range []string{
		"GET        /               Root.index",
		"WEBSOCKET  /echo",
		"POST       /child/create",
	} {
		line := strings.Join(strings.Fields(want), " ")
		found := false
		for _, got := range strings.Split(out.String(), "\n") {
			if strings.HasPrefix(strings.Join(strings.Fields(got), " "), line) {
				found = true
			}
		}
		if !found {
			t.Errorf("routes output missing %q:\n%s", want, out.String())
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("version = %q", out.String())
	}
}

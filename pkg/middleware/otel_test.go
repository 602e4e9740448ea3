package middleware

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/cinder-go/cinder/pkg/dispatch"
	"github.com/cinder-go/cinder/pkg/message"
)

type recordedSpan struct {
	noop.Span
	name   string
	attrs  map[attribute.Key]attribute.Value
	code   codes.Code
	ended  bool
	errors int
}

func (s *recordedSpan) SetAttributes(kv ...attribute.KeyValue) {
	for _, a := range kv {
		s.attrs[a.Key] = a.Value
	}
}

func (s *recordedSpan) SetStatus(code codes.Code, _ string) { s.code = code }

func (s *recordedSpan) RecordError(error, ...trace.EventOption) { s.errors++ }

func (s *recordedSpan) End(...trace.SpanEndOption) { s.ended = true }

type recordingTracer struct {
	noop.Tracer
	mu    sync.Mutex
	spans []*recordedSpan
}

func (r *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	s := &recordedSpan{name: name, attrs: map[attribute.Key]attribute.Value{}}
	s.SetAttributes(cfg.Attributes()...)
	r.mu.Lock()
	r.spans = append(r.spans, s)
	r.mu.Unlock()
	return trace.ContextWithSpan(ctx, s), s
}

type recordingProvider struct {
	noop.TracerProvider
	tracer *recordingTracer
}

func (p *recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer { return p.tracer }

func TestOpenTelemetrySpans(t *testing.T) {
	tp := &recordingProvider{tracer: &recordingTracer{}}

	var inHandler trace.Span
	probe := dispatch.MiddlewareFunc(func(ctx context.Context, req *message.Request, resp *message.Response, next dispatch.Next) error {
		inHandler = trace.SpanFromContext(ctx)
		return next(ctx)
	})

	d := newShopDispatcher(t,
		OpenTelemetry(
			WithTracerProvider(tp),
			WithAttributeExtractor(func(*message.Request) []attribute.KeyValue {
				return []attribute.KeyValue{attribute.String("test.attr", "ok")}
			}),
		),
		probe,
	)

	tests := []struct {
		path     string
		name     string
		status   int64
		code     codes.Code
		recorded int
	}{
		{"/", "GET /", 200, codes.Ok, 0},
		{"/forbidden", "GET /forbidden", 403, codes.Ok, 0},
		{"/broken", "GET /broken", 500, codes.Error, 1},
		{"/missing", "GET " + UnmatchedRoute, 404, codes.Ok, 0},
	}
	for i, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, _ = run(t, d, newRequest("GET", tt.path))

			if len(tp.tracer.spans) != i+1 {
				t.Fatalf("spans = %d, want %d", len(tp.tracer.spans), i+1)
			}
			s := tp.tracer.spans[i]
			if s.name != tt.name {
				t.Errorf("name = %q, want %q", s.name, tt.name)
			}
			if got := s.attrs["http.status_code"].AsInt64(); got != tt.status {
				t.Errorf("status attr = %d, want %d", got, tt.status)
			}
			if got := s.attrs["test.attr"].AsString(); got != "ok" {
				t.Errorf("custom attr = %q", got)
			}
			if s.code != tt.code || s.errors != tt.recorded {
				t.Errorf("code = %v errors = %d", s.code, s.errors)
			}
			if !s.ended {
				t.Error("span not ended")
			}
			if inHandler != trace.Span(s) {
				t.Error("span not propagated to the rest of the chain")
			}
		})
	}
}

func TestOpenTelemetryFilter(t *testing.T) {
	tp := &recordingProvider{tracer: &recordingTracer{}}
	d := newShopDispatcher(t, OpenTelemetry(
		WithTracerProvider(tp),
		WithRequestFilter(func(req *message.Request) bool { return req.Path != "/" }),
	))

	_, _ = run(t, d, newRequest("GET", "/"))
	_, _ = run(t, d, newRequest("GET", "/logo"))

	if len(tp.tracer.spans) != 1 || tp.tracer.spans[0].name != "GET /logo" {
		t.Errorf("spans = %+v", tp.tracer.spans)
	}
}

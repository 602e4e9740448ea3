package middleware

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cinder-go/cinder/pkg/dispatch"
	"github.com/cinder-go/cinder/pkg/message"
)

const defaultTracerName = "cinder"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "cinder").
	TracerName string

	// TracerProvider supplies the tracer. Default: the global provider.
	TracerProvider trace.TracerProvider

	// Filter determines which requests to trace. If nil, all are traced.
	Filter func(req *message.Request) bool

	// AttributeExtractor adds custom attributes to each span.
	AttributeExtractor func(req *message.Request) []attribute.KeyValue
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithRequestFilter sets a filter function for requests.
func WithRequestFilter(filter func(req *message.Request) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(req *message.Request) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// OpenTelemetry creates middleware that traces every dispatch.
//
// The span is named after the method and the matched route, carries the
// raw path and resolved status, and is the parent of anything the handler
// starts from its context. Server errors (5xx) mark the span as failed;
// redirects and client errors do not.
func OpenTelemetry(opts ...OTelOption) dispatch.Middleware {
	config := OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(config.TracerName)

	return dispatch.MiddlewareFunc(func(ctx context.Context, req *message.Request, resp *message.Response, next dispatch.Next) error {
		if config.Filter != nil && !config.Filter(req) {
			return next(ctx)
		}

		route := routeLabel(req)
		attrs := []attribute.KeyValue{
			attribute.String("http.method", req.Method),
			attribute.String("http.target", req.Path),
			attribute.String("cinder.route", route),
		}
		if req.Client != "" {
			attrs = append(attrs, attribute.String("net.peer.addr", req.Client))
		}
		if config.AttributeExtractor != nil {
			attrs = append(attrs, config.AttributeExtractor(req)...)
		}

		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", req.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		err := next(ctx)

		status := message.StatusOf(err, resp.Status)
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= 500 {
			span.RecordError(err)
			span.SetStatus(codes.Error, errorKind(err))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	})
}

// errorKind returns a low-cardinality category for a failed dispatch.
func errorKind(err error) string {
	var handlerErr *dispatch.HandlerError
	var httpErr *message.HTTPError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &handlerErr):
		return "panic"
	case errors.As(err, &httpErr):
		return "http"
	case errors.Is(err, message.ErrUnsupportedResult):
		return "unsupported_result"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	}
	return "internal"
}

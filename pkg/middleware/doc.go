// Package middleware provides production middleware for the cinder
// dispatcher.
//
// This package includes:
//   - Prometheus request metrics
//   - OpenTelemetry tracing
//   - Response compression (gzip, brotli)
//
// Each constructor returns a dispatch.Middleware:
//
//	app := cinder.New(
//	    cinder.WithMiddleware(
//	        middleware.OpenTelemetry(middleware.WithTracerName("shop")),
//	        middleware.Prometheus(middleware.WithNamespace("shop")),
//	        middleware.Compress(),
//	    ),
//	)
//
// Middleware runs after route resolution, so req.Route names the matched
// leaf (nil when nothing matched). The dispatch error is the request's
// outcome: message.StatusOf maps it to the status the client will see.
//
// Metrics are exposed by mounting promhttp on the same registry:
//
//	reg := prometheus.NewRegistry()
//	mw := middleware.Prometheus(middleware.WithRegistry(reg))
//	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package middleware

package api

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// withTracing opens the server span for each request. The compute-pool
// execution gets its own child span in dispatch, so fetch time and pipeline
// time are separable in the trace.
func (s *Server) withTracing(next http.Handler) http.Handler {
	if s.tracer == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeLabel(r.URL.Path)
		spanName := r.Method + " " + route
		ctx, span := s.tracer.Start(r.Context(), spanName, trace.WithSpanKind(trace.SpanKindServer))
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.String("http.target", r.URL.Path),
		)
		if route == "/image" {
			query := r.URL.Query()
			span.SetAttributes(
				attribute.String("transform.image_address", query.Get("image_address")),
				attribute.String("transform.format", query.Get("format")),
				attribute.Bool("transform.conditional", r.Header.Get("If-Modified-Since") != ""),
			)
		}
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

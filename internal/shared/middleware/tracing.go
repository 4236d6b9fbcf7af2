package middleware

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedRoute labels requests no mux pattern claimed, keeping metric
// cardinality bounded.
const unmatchedRoute = "unmatched"

var (
	httpMeter       = otel.Meter("horizon/http")
	httpDuration, _ = httpMeter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Time to serve a request, by route"),
		metric.WithUnit("s"),
	)
	httpRequests, _ = httpMeter.Int64Counter("http.server.requests",
		metric.WithDescription("Served requests by route and status"),
	)
)

// Tracing opens a server span per request and records duration and count
// by route. The route is the ServeMux pattern that handled the request, so
// it must wrap handlers that forward the request unchanged down to the mux.
// Health checks are counted but not traced.
func Tracing(next http.Handler) http.Handler {
	tracer := otel.Tracer("horizon/http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := wrapResponseWriter(w)

		if strings.HasPrefix(r.URL.Path, "/health") {
			next.ServeHTTP(wrapped, r)
			recordRequest(r, r.Pattern, wrapped.status, start)
			return
		}

		ctx, span := tracer.Start(r.Context(), r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			),
		)
		defer span.End()

		req := r.WithContext(ctx)
		next.ServeHTTP(wrapped, req)

		route := routeOf(req.Pattern)
		status := statusOrOK(wrapped.status)
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		recordRequest(req, req.Pattern, status, start)
	})
}

func recordRequest(r *http.Request, pattern string, status int, start time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("http.request.method", r.Method),
		attribute.String("http.route", routeOf(pattern)),
		attribute.Int("http.response.status_code", statusOrOK(status)),
	)
	httpDuration.Record(r.Context(), time.Since(start).Seconds(), attrs)
	httpRequests.Add(r.Context(), 1, attrs)
}

func routeOf(pattern string) string {
	if pattern == "" {
		return unmatchedRoute
	}
	return pattern
}

func statusOrOK(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}

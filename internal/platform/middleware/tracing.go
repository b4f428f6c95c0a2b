package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// HeaderTraceID echoes the request's trace id to the caller.
const HeaderTraceID = "X-Trace-ID"

// Tracing starts a server span per request, continuing any traceparent the
// agent sent. Spans are named after the matched chi route so ids in paths do
// not fan out span names.
func Tracing(next http.Handler) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span := trace.SpanFromContext(r.Context())
		if sc := span.SpanContext(); sc.HasTraceID() {
			w.Header().Set(HeaderTraceID, sc.TraceID().String())
		}
		next.ServeHTTP(w, r)
		// Middleware that swaps the request hides chi's pattern from otelhttp.
		span.SetName(spanName("", r))
	})
	return otelhttp.NewHandler(inner, "collector",
		otelhttp.WithPropagators(otel.GetTextMapPropagator()),
		otelhttp.WithSpanNameFormatter(spanName),
	)
}

// spanName uses the full chi route pattern when routing has matched one and
// falls back to the raw path before routing or for unmatched requests.
func spanName(_ string, r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return r.Method + " " + pattern
		}
	}
	return r.Method + " " + r.URL.Path
}

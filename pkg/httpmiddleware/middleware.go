// Package httpmiddleware contains the net/http middleware chain of the ledger
// API: panic recovery, CORS, rate limiting, request ids, logging and
// OpenTelemetry instrumentation.
package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Wrap applies middlewares to h. The first middleware is the outermost.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RouteFinder returns the route pattern serving r, or "" when none matches.
type RouteFinder func(r *http.Request) string

// MakeRouteFinder resolves routes against the patterns registered on mux.
func MakeRouteFinder(mux *http.ServeMux) RouteFinder {
	return func(r *http.Request) string {
		if r.Pattern != "" {
			return r.Pattern
		}
		_, pattern := mux.Handler(r)
		return pattern
	}
}

// InjectLogger stores lg in the request context, tagged with the request id
// when RequestID ran earlier in the chain.
func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := zctx.Base(r.Context(), lg)
			if id := RequestIDFromContext(ctx); id != "" {
				ctx = zctx.With(ctx, zap.String("request_id", id))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Telemetry provides the OpenTelemetry providers. *app.Telemetry satisfies it.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Instrument traces and measures every request, naming spans by route.
func Instrument(serviceName string, find RouteFinder, m Telemetry) Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if route := find(r); route != "" {
					return route
				}
				return r.Method
			}),
		)
	}
}

// Labeler adds the http.route attribute to request metrics. It must run
// inside Instrument.
func Labeler(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if route := find(r); route != "" {
				labeler, _ := otelhttp.LabelerFromContext(r.Context())
				labeler.Add(attribute.String("http.route", route))
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// LogRequests logs one line per request with its route, status and duration.
// Server errors are logged at warn level.
func LogRequests(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", find(r)),
				zap.Int("status", status),
				zap.Int("bytes", rec.bytes),
				zap.Duration("duration", time.Since(start)),
			}
			lg := zctx.From(r.Context())
			if status >= http.StatusInternalServerError {
				lg.Warn("Request failed", fields...)
				return
			}
			lg.Info("Request", fields...)
		})
	}
}

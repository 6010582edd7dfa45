package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a logged 500 {code, message} response,
// the same envelope the API uses for other server errors, and marks the
// request span failed. http.ErrAbortHandler is re-raised.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				zctx.From(r.Context()).Error("Panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"),
				)
				trace.SpanFromContext(r.Context()).SetStatus(codes.Error, "panic")

				e := jx.GetEncoder()
				defer jx.PutEncoder(e)
				e.ObjStart()
				e.FieldStart("code")
				e.Int(http.StatusInternalServerError)
				e.FieldStart("message")
				e.Str("internal error")
				e.ObjEnd()

				w.Header().Set("Connection", "close")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write(e.Bytes())
			}()
			next.ServeHTTP(w, r)
		})
	}
}

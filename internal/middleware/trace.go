package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/todo_service/internal/logging"
)

// Trace attaches a trace ID to the request context and response headers, then
// logs the finished request. An incoming X-Trace-ID is kept so calls between
// services share one ID.
func Trace(logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(logging.TraceIDHeader)
			if traceID == "" {
				traceID = logging.NewTraceID()
			}
			ctx := logging.WithTraceID(r.Context(), traceID)
			w.Header().Set(logging.TraceIDHeader, traceID)

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			logger.LogRequest(ctx, r.Method, r.URL.Path, rec.status, time.Since(start))
		})
	}
}

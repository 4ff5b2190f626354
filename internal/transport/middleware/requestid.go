package middleware

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/payment-reconciler/pkg/logger"
	"github.com/google/uuid"
)

const TraceIDHeader = "X-Trace-ID"

// RequestID seeds the request context with base tagged by a trace id, taken
// from the X-Trace-ID header when the caller supplies one.
func RequestID(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(TraceIDHeader)
			if traceID == "" || len(traceID) > 128 {
				traceID = uuid.NewString()
			}

			ctx := logger.NewContext(r.Context(), base)
			ctx = logger.WithTraceID(ctx, traceID)

			w.Header().Set(TraceIDHeader, traceID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package middleware

import (
	"net/http"

	"github.com/ipeimoveis/crm-backend/pkg/logger"

	"github.com/google/uuid"
)

// RequestID picks up the caller's X-Trace-ID or mints one, attaches it
// to the request-scoped logger, and echoes it back.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "traceID", traceID)

		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

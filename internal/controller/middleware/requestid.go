package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"projectplane/internal/logger"
)

// RequestID assigns each request a correlation id, honoring one supplied by
// the caller. The id rides on the context for log correlation and is echoed
// back in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := logger.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

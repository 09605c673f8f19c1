package middleware

import (
	"net/http"
	"time"

	"github.com/go-kit/log"
)

// LogRequests logs each request with status, method, uri and duration
func LogRequests(logger log.Logger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrappedWriter := wrapResponseWriter(w)
			start := time.Now()

			h.ServeHTTP(wrappedWriter, r)

			_ = logger.Log("evt", "request",
				"status", wrappedWriter.Status(),
				"method", r.Method,
				"uri", r.URL.String(),
				"duration", time.Since(start))
		})
	}
}

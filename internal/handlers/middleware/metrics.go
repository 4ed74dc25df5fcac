package middleware

import (
	"net/http"
	"time"
)

type httpRecorder interface {
	ObserveHTTPRequest(method string, path string, status int, duration time.Duration)
}

// Metrics observes requests by route pattern, unmatched requests are reported as "unmatched"
// Must wrap the mux, so the pattern is set when handler returns
func Metrics(m httpRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			path := r.Pattern
			if path == "" {
				path = "unmatched"
			}
			m.ObserveHTTPRequest(r.Method, path, rw.data.status, time.Since(start))
		})
	}
}

package middleware

import (
	"net/http"

	"github.com/nkiryanov/accounts/internal/handlers/render"
)

// Recover turns handler panics into 500 responses
func Recover(l errorLogger) func(http.Handler) http.Handler {
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

				l.Error("Panic while handling request", "panic", rec, "method", r.Method, "uri", r.RequestURI)
				render.Error(w, http.StatusInternalServerError, "Internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

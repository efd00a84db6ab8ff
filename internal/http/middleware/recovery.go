package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery turns handler panics into a 500 problem response instead of a
// dropped connection. http.ErrAbortHandler passes through untouched; it is
// the server's own abort signal, not a handler bug.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
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

				attrs := append(requestAttrs(r),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
				)
				logger.ErrorContext(r.Context(), "panic recovered", attrs...)

				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprintf(w, `{"title":%q,"status":%d}`,
					http.StatusText(http.StatusInternalServerError),
					http.StatusInternalServerError,
				)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

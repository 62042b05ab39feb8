package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/mcoot/quizwordz/internal/api/apierr"
)

// Recovery turns handler panics into JSON 500 responses. Install it inside
// Logging and Metrics so the 500 is still recorded.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := wrap(w)
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic recovered",
						slog.Any("error", err),
						slog.String("stack", string(debug.Stack())),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)
					// Too late for an error body once a stream has started
					if !wrapped.wroteHeader && !wrapped.hijacked {
						apierr.WriteError(wrapped, apierr.NewInternalError())
					}
				}
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}

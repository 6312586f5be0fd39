package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/kiranshivaraju/captionforge/internal/api/response"
)

// Recovery turns a handler panic into a 500. http.ErrAbortHandler is re-raised so the
// server aborts the connection as usual. Once a response has started (a progress
// stream, say) nothing more is written.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(v)
			}

			slog.Error("panic recovered",
				"error", v,
				"stack", string(debug.Stack()),
				"method", r.Method,
				"path", r.URL.Path,
				"route", routePattern(r),
			)
			if rec, ok := w.(*statusRecorder); ok && rec.wrote {
				return
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}

package logging

import (
	"fmt"
	"net/http"
	"runtime/debug"
)

// RecoveryMiddleware returns a middleware that turns a handler panic into a
// logged 500 response.
func RecoveryMiddleware(logger *Logger) func(http.Handler) http.Handler {
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

				log := logger
				if cl, ok := r.Context().Value(ctxLoggerKey{}).(*CtxLogger); ok {
					log = cl.Logger
				}
				log.WithFields(map[string]interface{}{
					"panic":  fmt.Sprint(rec),
					"stack":  string(debug.Stack()),
					"method": r.Method,
					"path":   r.URL.Path,
					"query":  r.URL.RawQuery,
				}).Error("Recovered from panic")

				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

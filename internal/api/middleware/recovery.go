package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/isopleth/isopleth/internal/api/models"
)

// Recovery returns a middleware that recovers from handler panics.
//
// A 500 problem is written unless the handler already started its response,
// in which case the connection is left to the server. http.ErrAbortHandler
// is re-raised so the server can abort the response as intended.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := newResponseWriter(w)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				requestID := GetRequestID(r.Context())
				log.Error().
					Str("request_id", requestID).
					Str("method", r.Method).
					Str("route", routePattern(r)).
					Interface("error", rec).
					Bool("response_started", wrapped.wroteHeader).
					Str("stack", string(debug.Stack())).
					Msg("panic recovered")

				if wrapped.wroteHeader {
					return
				}
				problem := models.NewInternalError(requestID, "an unexpected error occurred")
				problem.Code = "PANIC"
				problem.Instance = r.URL.Path
				problem.Write(w)
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}

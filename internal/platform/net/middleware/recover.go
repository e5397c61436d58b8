package middleware

import (
	"net/http"
	"runtime/debug"

	perr "rplace/internal/platform/errors"
	"rplace/internal/platform/logger"
	phttp "rplace/internal/platform/net/http"
)

// Recover converts handler panics into a JSON 500 and logs the stack.
// A panicking status handler must not take the ingest down with it
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			logger.Named("http").Error().
				Interface("panic", v).
				Str("path", r.URL.Path).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")
			phttp.RespondError(w, perr.Internalf("panic recovered"))
		}()
		next.ServeHTTP(w, r)
	})
}

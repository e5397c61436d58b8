// Package middleware holds the in-house middlewares of the ops server
package middleware

import (
	"net/http"
	"time"

	"rplace/internal/platform/logger"
)

// AccessLogOptions configures the zerolog access log
type AccessLogOptions struct {
	// Log receives the lines, nil means logger.Named("http")
	Log *logger.Logger
	// Slow marks requests taking >= Slow as warn level, 0 disables slow marking
	Slow time.Duration
	// Quiet paths log at debug; scrapers hit /metrics and /healthz constantly
	Quiet []string
}

// captureWriter records status and bytes written
type captureWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	n, err := cw.ResponseWriter.Write(b)
	cw.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the original writer (pprof needs flushes)
func (cw *captureWriter) Unwrap() http.ResponseWriter { return cw.ResponseWriter }

// AccessLog logs method, path, status, elapsed and bytes written
func AccessLog(opt AccessLogOptions) func(http.Handler) http.Handler {
	log := opt.Log
	if log == nil {
		log = logger.Named("http")
	}
	quiet := make(map[string]struct{}, len(opt.Quiet))
	for _, p := range opt.Quiet {
		quiet[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(cw, r)

			elapsed := time.Since(start)
			evt := log.Info()
			switch {
			case opt.Slow > 0 && elapsed >= opt.Slow:
				evt = log.Warn()
			case cw.status >= 500:
				evt = log.Error()
			default:
				if _, ok := quiet[r.URL.Path]; ok {
					evt = log.Debug()
				}
			}
			evt.Int("status", cw.status).
				Dur("elapsed", elapsed).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("bytes", cw.bytes).
				Msg("request done")
		})
	}
}

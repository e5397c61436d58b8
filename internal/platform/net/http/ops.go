package http

import (
	"context"
	stdhttp "net/http"
	"time"
)

// OpsOptions wires the process level endpoints of a running ingest
type OpsOptions struct {
	// Health reports store readiness, nil means always healthy
	Health func(ctx context.Context) error
	// Metrics serves the prometheus registry, nil leaves /metrics unmounted
	Metrics stdhttp.Handler
	// Profiler mounts pprof under /debug
	Profiler bool
	// HealthTimeout bounds a single health check, default 2s
	HealthTimeout time.Duration
}

// MountOps mounts /healthz, /metrics and optionally /debug.
// Modules mount their own status routes next to these
func MountOps(r Router, opt OpsOptions) {
	timeout := opt.HealthTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	GetJSON(r, "/healthz", func(req *stdhttp.Request) (any, error) {
		if opt.Health != nil {
			ctx, cancel := context.WithTimeout(req.Context(), timeout)
			defer cancel()
			if err := opt.Health(ctx); err != nil {
				return nil, err
			}
		}
		return map[string]string{"status": "ok"}, nil
	})

	if opt.Metrics != nil {
		r.Handle("/metrics", opt.Metrics)
	}

	MountProfiler(r, "/debug", opt.Profiler)
}

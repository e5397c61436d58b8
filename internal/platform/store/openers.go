package store

import (
	"context"
	"time"

	perr "rplace/internal/platform/errors"
	chx "rplace/internal/platform/store/ch"
	"rplace/internal/platform/store/pg"
)

const (
	defaultConnectRetries = 6
	defaultPingTimeout    = 3 * time.Second
	backoffStart          = 150 * time.Millisecond
	backoffCeiling        = 2 * time.Second
)

// sleep is swapped in tests
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// pingWithRetry pings until success, ctx cancellation or attempts run out.
// A non nil retryable stops early on errors it rejects; an attempt that hit its own
// timeout is always retried
func pingWithRetry(ctx context.Context, ping func(context.Context) error, retryable func(error) bool, attempts int, timeout time.Duration) error {
	if attempts <= 0 {
		attempts = defaultConnectRetries
	}
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	var lastErr error
	backoff := backoffStart
	for i := 0; i < attempts; i++ {
		toCtx, cancel := context.WithTimeout(ctx, timeout)
		lastErr = ping(toCtx)
		timedOut := toCtx.Err() != nil && ctx.Err() == nil
		cancel()
		if lastErr == nil {
			return nil
		}
		if i == attempts-1 || (retryable != nil && !timedOut && !retryable(lastErr)) {
			break
		}
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, backoffCeiling)
	}
	return lastErr
}

// openPG opens pg, pings it with backoff and wraps it with our sql adapter
func openPG(ctx context.Context, cfg Config, s *Store) (TxRunner, error) {
	p, err := pg.Open(ctx, pg.Config{
		URL:      cfg.PG.URL,
		MaxConns: cfg.PG.MaxConns,
		SlowMs:   cfg.PG.SlowQueryMs,
		AppName:  cfg.AppName,
	}, s.tracer(cfg.PG.LogSQL), nil)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "postgres config")
	}

	// ping the pool directly so boot attempts stay out of the sql trace
	if err := pingWithRetry(ctx, p.Pool.Ping, perr.IsRetryable, cfg.PG.ConnectRetries, cfg.PG.PingTimeout); err != nil {
		p.Close()
		return nil, perr.Wrap(err, perr.ErrorCodeStoreUnavailable, "postgres unreachable")
	}
	return newPGAdapter(p), nil
}

func openCH(ctx context.Context, cfg Config, s *Store) (Clickhouse, error) {
	role := cfg.CH.ClientName
	if role == "" {
		role = cfg.AppName
	}
	c, err := chx.Open(ctx, chx.Config{URL: cfg.CH.URL, ClientName: role, ClientTag: cfg.CH.ClientTag})
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "clickhouse config")
	}
	if err := pingWithRetry(ctx, c.Ping, nil, cfg.CH.ConnectRetries, cfg.CH.PingTimeout); err != nil {
		_ = c.Close()
		return nil, perr.Wrap(err, perr.ErrorCodeStoreUnavailable, "clickhouse unreachable")
	}
	s.Log.Debug().Str("role", role).Msg("clickhouse connected")
	return newCHAdapter(c), nil
}

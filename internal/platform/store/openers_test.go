package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	perr "rplace/internal/platform/errors"
	"rplace/internal/platform/testkit"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestPingWithRetry_SucceedsAfterFailures(t *testing.T) {
	testkit.Serial(t)

	var slept []time.Duration
	testkit.Swap(t, &sleep, func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})

	calls := 0
	ping := func(context.Context) error {
		calls++
		if calls < 4 {
			return errors.New("refused")
		}
		return nil
	}
	if err := pingWithRetry(context.Background(), ping, nil, 6, time.Second); err != nil {
		t.Fatalf("pingWithRetry: %v", err)
	}
	want := []time.Duration{150 * time.Millisecond, 300 * time.Millisecond, 600 * time.Millisecond}
	testkit.MustEqual(t, slept, want)
}

func TestPingWithRetry_ExhaustsAttempts(t *testing.T) {
	testkit.Serial(t)
	testkit.Swap(t, &sleep, func(context.Context, time.Duration) error { return nil })

	calls := 0
	last := errors.New("refused")
	err := pingWithRetry(context.Background(), func(context.Context) error { calls++; return last }, nil, 3, 0)
	if !errors.Is(err, last) || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestPingWithRetry_BackoffCeiling(t *testing.T) {
	testkit.Serial(t)

	var slept []time.Duration
	testkit.Swap(t, &sleep, func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})
	_ = pingWithRetry(context.Background(), func(context.Context) error { return errors.New("x") }, nil, 8, time.Second)
	if got := slept[len(slept)-1]; got != backoffCeiling {
		t.Fatalf("last backoff = %v, want %v", got, backoffCeiling)
	}
}

func TestPingWithRetry_CanceledDuringBackoff(t *testing.T) {
	testkit.Serial(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pingWithRetry(ctx, func(context.Context) error { return errors.New("refused") }, nil, 5, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPingWithRetry_StopsOnPermanentError(t *testing.T) {
	testkit.Serial(t)
	testkit.Swap(t, &sleep, func(context.Context, time.Duration) error { return nil })

	calls := 0
	auth := fmt.Errorf("connect: %w", &pgconn.PgError{Code: "28P01", Message: "password authentication failed"})
	err := pingWithRetry(context.Background(), func(context.Context) error { calls++; return auth }, perr.IsRetryable, 6, time.Second)
	if !errors.Is(err, auth) || calls != 1 {
		t.Fatalf("bad auth should not be retried: err=%v calls=%d", err, calls)
	}

	calls = 0
	starting := &pgconn.PgError{Code: "57P03"}
	err = pingWithRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return starting
		}
		return nil
	}, perr.IsRetryable, 6, time.Second)
	if err != nil || calls != 3 {
		t.Fatalf("startup in progress should be retried: err=%v calls=%d", err, calls)
	}
}

func TestPingWithRetry_AttemptTimeoutIsRetried(t *testing.T) {
	testkit.Serial(t)
	testkit.Swap(t, &sleep, func(context.Context, time.Duration) error { return nil })

	calls := 0
	slow := func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	}
	err := pingWithRetry(context.Background(), slow, perr.IsRetryable, 3, time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestOpenPG_UnreachableIsStoreUnavailable(t *testing.T) {
	testkit.Serial(t)
	testkit.Swap(t, &sleep, func(context.Context, time.Duration) error { return nil })

	// port 1 refuses immediately on loopback
	cfg := Config{PG: PGConfig{
		Enabled:        true,
		URL:            "postgres://u:p@127.0.0.1:1/place?sslmode=disable&connect_timeout=1",
		ConnectRetries: 2,
		PingTimeout:    time.Second,
	}}
	_, err := openPG(context.Background(), cfg, &Store{})
	if !perr.IsCode(err, perr.ErrorCodeStoreUnavailable) {
		t.Fatalf("expected StoreUnavailable, got %v", err)
	}
	if perr.ExitCode(err) != 3 {
		t.Fatalf("exit code = %d", perr.ExitCode(err))
	}
}

func TestOpenCH_UsesItsOwnConnectKnobs(t *testing.T) {
	testkit.Serial(t)

	sleeps := 0
	testkit.Swap(t, &sleep, func(context.Context, time.Duration) error { sleeps++; return nil })

	cfg := Config{
		PG: PGConfig{ConnectRetries: 5, PingTimeout: time.Minute},
		CH: CHConfig{
			Enabled:        true,
			URL:            "clickhouse://127.0.0.1:1/default?dial_timeout=200ms",
			ConnectRetries: 2,
			PingTimeout:    time.Second,
		},
	}
	_, err := openCH(context.Background(), cfg, &Store{})
	if !perr.IsCode(err, perr.ErrorCodeStoreUnavailable) {
		t.Fatalf("expected StoreUnavailable, got %v", err)
	}
	if sleeps != 1 {
		t.Fatalf("backoffs = %d, want 1 for two clickhouse attempts", sleeps)
	}
}

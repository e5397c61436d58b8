//go:build integration_pg

package module

import (
	"context"
	"strings"
	"testing"
	"time"

	"rplace/internal/modkit"
	"rplace/internal/platform/config"
	"rplace/internal/platform/metrics"
	"rplace/internal/platform/store"
	"rplace/internal/platform/testkit"
	"rplace/internal/services/ingest/domain"
	"rplace/internal/services/ingest/repo"

	"github.com/rs/zerolog"
)

var canvas = []string{
	`2022-04-04 00:53:51.577 UTC,u1,#00CCC0,"826,1048"`,
	`2022-04-04 00:53:53.758 UTC,u2,#94B3FF,"583,1031"`,
	`2022-04-04 00:53:54.2 UTC,u1,#6A5CFF,"1873,558"`,
	`2022-04-04 00:54:57.541 UTC,u3,#000000,"0,0,5,5"`,
	`2022-04-04 00:55:16.2 UTC,u2,#FFFFFF,"1,1"`,
}

func TestIngest_ResumeEndToEnd_Integration(t *testing.T) {
	dsn := testkit.StartPostgres(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	m := metrics.New()
	st, err := store.Open(ctx, store.Config{
		AppName: "rplace-ingest-it",
		PG:      store.PGConfig{Enabled: true, URL: dsn, MaxConns: 2},
	}, store.WithLogger(zerolog.Nop()), store.WithQueryTracer(m))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	if err := repo.ApplySchema(ctx, st.PG); err != nil {
		t.Fatalf("ApplySchema: %v", err)
	}

	mod, err := New(modkit.FromStore(st, config.New(), m), Options{
		BatchSize: 2, ProgressEvery: 1, Compression: "none",
		RunLedger: true, StatementTimeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	runner := mod.Ports().(Ports).Runner

	ingest := func(lines ...string) domain.Summary {
		t.Helper()
		sum, err := runner.Run(ctx, "canvas.csv", strings.NewReader(testkit.CanvasCSV(lines...)))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return sum
	}
	count := func(sql string) int64 {
		t.Helper()
		n, err := store.Scalar[int64](ctx, st.PG, sql)
		if err != nil {
			t.Fatalf("%s: %v", sql, err)
		}
		return n
	}

	// first three records, then the full file twice
	if sum := ingest(canvas[:3]...); sum.Processed != 3 || sum.UsersCreated != 2 {
		t.Fatalf("partial run = %+v", sum)
	}
	if sum := ingest(canvas...); sum.Skipped != 3 || sum.Processed != 2 || sum.UsersCreated != 1 {
		t.Fatalf("resumed run = %+v", sum)
	}
	if sum := ingest(canvas...); sum.Skipped != 5 || sum.Processed != 0 || sum.UsersCreated != 0 {
		t.Fatalf("idempotent run = %+v", sum)
	}

	if n := count(`SELECT count(*) FROM pixel`); n != 5 {
		t.Fatalf("pixels = %d", n)
	}
	if n := count(`SELECT count(*) FROM users`); n != 3 {
		t.Fatalf("users = %d", n)
	}
	if n := count(`SELECT max(pixel_id) FROM pixel`); n != 4 {
		t.Fatalf("max pixel id = %d", n)
	}
	if n := count(`SELECT user_id FROM pixel WHERE pixel_id = 4`); n != 1 {
		t.Fatalf("u2 resolved to %d after resume", n)
	}
	if n := count(`SELECT count(*) FROM ingest_runs WHERE status = 'ok'`); n != 3 {
		t.Fatalf("ledger ok rows = %d", n)
	}

	// a bad record aborts the run and leaves the committed prefix intact
	bad := append(append([]string{}, canvas...),
		`2022-04-04 00:56:00.0 UTC,u4,#123456,"7,7"`,
		`2022-04-04 00:56:01.0 UTC,u5,#12345G,"8,8"`,
	)
	if _, err := runner.Run(ctx, "canvas.csv", strings.NewReader(testkit.CanvasCSV(bad...))); err == nil {
		t.Fatalf("bad color should fail the run")
	}
	if n := count(`SELECT count(*) FROM pixel`); n != 5 {
		t.Fatalf("pixels after failed run = %d", n)
	}
	if n := count(`SELECT count(*) FROM ingest_runs WHERE status = 'error'`); n != 1 {
		t.Fatalf("ledger error rows = %d", n)
	}
}

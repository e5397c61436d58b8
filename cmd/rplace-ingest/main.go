package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"rplace/internal/modkit"
	"rplace/internal/modkit/module"
	"rplace/internal/modkit/repokit"
	"rplace/internal/platform/config"
	perr "rplace/internal/platform/errors"
	"rplace/internal/platform/logger"
	"rplace/internal/platform/metrics"
	phttp "rplace/internal/platform/net/http"
	"rplace/internal/platform/net/middleware"
	"rplace/internal/platform/store"

	"rplace/internal/services/ingest/repo"
	"rplace/internal/services/ingest/source"

	ingestmod "rplace/internal/services/ingest/module"

	"github.com/go-chi/chi/v5"
)

func mustSetEnv(key, val string) {
	if val != "" {
		_ = os.Setenv(key, val)
	}
}

func main() { os.Exit(run()) }

func run() int {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")
	opsCfg := root.Prefix("OPS_")

	var (
		fNoDB        = flag.Bool("nodb", false, "decode and validate only, write nothing")
		fBatch       = flag.Int("batch", 0, "pixels per flush (default CORE_INGEST_BATCH_SIZE or 10000)")
		fHTTP        = flag.String("http", opsCfg.MayString("HTTP_ADDR", ""), "ops http address for /healthz /progress /metrics, empty disables")
		fCompression = flag.String("compression", "", "input compression: auto | none | gzip | zstd")
		fMirror      = flag.Bool("mirror", true, "mirror flushed pixels into clickhouse when SERVICE_CLICKHOUSE_DBURL is set")
		fSchema      = flag.Bool("schema", false, "print the postgres schema and exit")
		fProfiler    = flag.Bool("pprof", opsCfg.MayBool("PROFILER", false), "mount pprof under /debug on the ops server")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <input.csv[.gz|.zst] | -> [flags]\n", os.Args[0])
		flag.PrintDefaults()
	}
	// CommandLine exits on a bad flag, so the error is always nil here
	args, _ := parseInterleaved(flag.CommandLine, os.Args[1:])

	if *fSchema {
		fmt.Print(repo.Schema)
		return 0
	}

	l := logger.Get()

	if len(args) != 1 {
		flag.Usage()
		return perr.ExitCode(perr.InvalidArgf("expected exactly one input path, got %d", len(args)))
	}
	path := args[0]

	// flags win over env; modules read CORE_INGEST_* via FromConfig
	if *fBatch > 0 {
		mustSetEnv("CORE_INGEST_BATCH_SIZE", strconv.Itoa(*fBatch))
	}
	mustSetEnv("CORE_INGEST_COMPRESSION", *fCompression)
	if !*fMirror {
		mustSetEnv("CORE_INGEST_MIRROR", "false")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var st *store.Store
	if !*fNoDB {
		pgURL := pgCfg.FirstString("DBURL")
		if pgURL == "" {
			pgURL = root.FirstString("DATABASE_URL")
		}
		if pgURL == "" {
			err := perr.InvalidArgf("no database: set SERVICE_PGSQL_DBURL or DATABASE_URL, or pass -nodb")
			l.Error().Err(err).Msg("ingest not started")
			return perr.ExitCode(err)
		}
		chURL := chCfg.MayString("DBURL", "")

		var err error
		st, err = store.Open(ctx, store.Config{
			AppName: "rplace-ingest",
			PG: store.PGConfig{
				Enabled:     true,
				URL:         pgURL,
				MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 2)),
				SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
				LogSQL:      pgCfg.MayBool("LOG_SQL", false),

				ConnectRetries: pgCfg.MayInt("CONNECT_RETRIES", 0),
				PingTimeout:    pgCfg.MayDuration("PING_TIMEOUT", 0),
			},
			CH: store.CHConfig{
				Enabled:    chURL != "" && *fMirror,
				URL:        chURL,
				ClientName: "rplace",
				ClientTag:  "ingest",

				ConnectRetries: chCfg.MayInt("CONNECT_RETRIES", 0),
				PingTimeout:    chCfg.MayDuration("PING_TIMEOUT", 0),
			},
		}, store.WithLogger(*l), store.WithQueryTracer(m))
		if err != nil {
			l.Error().Err(err).Str("code", perr.CodeOf(err).String()).Msg("store.Open failed")
			return perr.ExitCode(err)
		}
		defer func() {
			if err := st.Close(context.Background()); err != nil {
				l.Error().Err(err).Msg("failed to close store")
			}
		}()
	}

	deps := modkit.FromStore(st, root, m)

	im, err := ingestmod.New(deps, ingestmod.FromConfig(root))
	if err != nil {
		l.Error().Err(err).Msg("ingest module config invalid")
		return perr.ExitCode(err)
	}

	// Optional ops server, lives exactly as long as the run
	var srvDone chan error
	srvCtx, stopSrv := context.WithCancel(ctx)
	defer stopSrv()
	if *fHTTP != "" {
		srv := phttp.NewServer(*fHTTP, func(mx *chi.Mux) {
			mx.Use(middleware.Recover)
			mx.Use(middleware.AccessLog(middleware.AccessLogOptions{
				Slow:  time.Second,
				Quiet: []string{"/healthz", "/metrics", "/progress"},
			}))
		})
		r := srv.Router()
		ops := phttp.OpsOptions{Metrics: m.Handler(), Profiler: *fProfiler}
		if st != nil {
			ops.Health = func(ctx context.Context) error { return repokit.Guard(ctx, st) }
		}
		phttp.MountOps(r, ops)
		module.Mount(r, im)

		srvDone = make(chan error, 1)
		go func() { srvDone <- srv.Run(srvCtx) }()
	}

	in, err := source.Open(path, im.Options().Compression)
	if err != nil {
		l.Error().Err(err).Str("code", perr.CodeOf(err).String()).Str("input", path).Msg("cannot open input")
		return perr.ExitCode(err)
	}
	defer func() { _ = in.Close() }()

	runner := module.MustPortsOf[ingestmod.Ports](im).Runner
	sum, runErr := runner.Run(ctx, in.Name, in)

	stopSrv()
	if srvDone != nil {
		if err := <-srvDone; err != nil {
			l.Warn().Err(err).Msg("ops http server")
		}
	}

	if runErr != nil {
		ev := l.Error().Err(runErr).
			Str("code", perr.CodeOf(runErr).String()).
			Int64("processed", sum.Processed).
			Int64("skipped", sum.Skipped)
		if ord, raw, ok := perr.RecordOf(runErr); ok {
			ev = ev.Int64("record", ord).Str("raw", raw)
		}
		if errors.Is(runErr, context.Canceled) {
			ev.Msg("ingest interrupted")
		} else {
			ev.Msg("ingest failed")
		}
		return perr.ExitCode(runErr)
	}

	l.Info().
		Str("module", im.Name()).
		Int64("skipped", sum.Skipped).
		Int64("processed", sum.Processed).
		Int("users_created", sum.UsersCreated).
		Dur("elapsed", sum.Elapsed).
		Bool("stored", sum.Stored).
		Str("codec", in.Codec).
		Msg("done")
	return 0
}

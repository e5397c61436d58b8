// Package module provides the ingest module implementation
package module

import (
	"net/http"

	"rplace/internal/modkit"
	"rplace/internal/modkit/repokit"
	perr "rplace/internal/platform/errors"
	phttp "rplace/internal/platform/net/http"

	"rplace/internal/services/ingest/domain"
	"rplace/internal/services/ingest/guardrails"
	"rplace/internal/services/ingest/repo"
	"rplace/internal/services/ingest/service"
	"rplace/internal/services/ingest/source"
)

// Ports defines the ingest module ports
type Ports struct {
	Runner domain.RunnerPort
}

// Module implements the ingest module
type Module struct {
	deps  modkit.Deps
	opts  Options
	svc   *service.Service
	ports Ports
}

// New constructs the ingest module.
// It wires the repo binder, statement timeouts, the optional clickhouse mirror and metrics.
// A Deps without PG yields a module that decodes and validates but stores nothing
func New(deps modkit.Deps, opts Options) (*Module, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var (
		db     repokit.TxRunner
		binder repokit.Binder[domain.StorageRepo]
	)
	if deps.HasPG() {
		db = repokit.WithBeginHooks(deps.PG, guardrails.StatementTimeout(opts.StatementTimeout)...)
		binder = repo.NewPG()
	}

	svc := service.New(db, binder, source.Factory{}, service.Config{
		BatchSize:      opts.BatchSize,
		ProgressEvery:  opts.ProgressEvery,
		StartupTimeout: opts.StartupTimeout,
		FlushTimeout:   opts.FlushTimeout,
		RunLedger:      opts.RunLedger,
	}).WithMetrics(deps.Metrics)

	if opts.Mirror && deps.CH != nil && db != nil {
		mir, err := repo.NewMirror(deps.CH, opts.MirrorTable)
		if err != nil {
			return nil, perr.WithOp(err, "ingest.module")
		}
		svc.WithMirror(mir)
	}

	deps.Log.Debug().
		Bool("stored", svc.Stored()).
		Bool("mirror", svc.Mirror != nil).
		Int("batch_size", svc.Cfg.BatchSize).
		Msg("ingest module wired")

	m := &Module{deps: deps, opts: opts, svc: svc}
	m.ports = Ports{Runner: svc}
	return m, nil
}

// Name returns the module name
func (m *Module) Name() string { return "ingest" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Options returns the validated options the module was built with
func (m *Module) Options() Options { return m.opts }

// MountRoutes mounts GET /progress on the ops router
func (m *Module) MountRoutes(r phttp.Router) {
	phttp.GetJSON(r, "/progress", func(*http.Request) (any, error) {
		return m.svc.Progress(), nil
	})
}

// Package modkit provides module wiring and core deps
package modkit

import (
	"rplace/internal/modkit/repokit"
	"rplace/internal/platform/config"
	"rplace/internal/platform/logger"
	"rplace/internal/platform/metrics"
	"rplace/internal/platform/store"
)

// Deps holds core dependencies passed to modules
// this is wiring only and does not introduce new abstractions
type Deps struct {
	Log     logger.Logger
	Cfg     config.Conf
	PG      repokit.TxRunner
	CH      store.Clickhouse
	Metrics *metrics.Collector
}

// FromStore copies the enabled backends of st into a Deps.
// A nil st leaves both stores nil, which modules treat as no-store mode
func FromStore(st *store.Store, cfg config.Conf, m *metrics.Collector) Deps {
	d := Deps{Cfg: cfg, Metrics: m}
	if st == nil {
		d.Log = *logger.Named("modkit")
		return d
	}
	d.Log = st.Log
	d.PG = st.PG
	d.CH = st.CH
	return d
}

// HasPG reports whether a postgres runner is wired
func (d Deps) HasPG() bool { return d.PG != nil }

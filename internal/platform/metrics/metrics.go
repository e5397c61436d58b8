// Package metrics holds the prometheus collectors for an ingest run.
// Everything registers on a private registry so tests and the ops server
// see only ingest series plus the go/process collectors
package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"rplace/internal/platform/store/pg"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rplace_ingest"

// Collector owns the registry and the ingest series. A nil *Collector is a no-op
type Collector struct {
	registry *prometheus.Registry

	recordsProcessed prometheus.Counter
	recordsSkipped   prometheus.Counter
	usersCreated     prometheus.Counter
	pixelsWritten    prometheus.Counter
	mirrorRows       prometheus.Counter
	flushes          *prometheus.CounterVec
	flushDuration    prometheus.Histogram
	pendingUsers     prometheus.Gauge
	knownUsers       prometheus.Gauge
	queryDuration    *prometheus.HistogramVec
}

// New builds a Collector with all series registered
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		recordsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Input records decoded and staged in this run",
		}),
		recordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Input records skipped because they were already stored",
		}),
		usersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_created_total",
			Help:      "Users inserted in this run",
		}),
		pixelsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pixels_written_total",
			Help:      "Pixel rows committed in this run",
		}),
		mirrorRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_rows_total",
			Help:      "Pixel rows sent to the clickhouse mirror",
		}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Flush transactions by result",
		}, []string{"result"}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Wall time of one flush transaction",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
		pendingUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_users",
			Help:      "Users assigned an id but not yet flushed",
		}),
		knownUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "known_users",
			Help:      "Users held by the registry",
		}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pg_query_duration_seconds",
			Help:      "Postgres statement latency by verb",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"verb", "result"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.recordsProcessed,
		c.recordsSkipped,
		c.usersCreated,
		c.pixelsWritten,
		c.mirrorRows,
		c.flushes,
		c.flushDuration,
		c.pendingUsers,
		c.knownUsers,
		c.queryDuration,
	)
	return c
}

// Handler serves the registry in the prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Gatherer exposes the registry for tests
func (c *Collector) Gatherer() prometheus.Gatherer { return c.registry }

// Skipped counts records passed over by the resume cursor
func (c *Collector) Skipped(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.recordsSkipped.Add(float64(n))
}

// Processed counts one staged record
func (c *Collector) Processed() {
	if c == nil {
		return
	}
	c.recordsProcessed.Inc()
}

// Registry reports the registry size and its pending queue
func (c *Collector) Registry(known, pending int) {
	if c == nil {
		return
	}
	c.knownUsers.Set(float64(known))
	c.pendingUsers.Set(float64(pending))
}

// Flushed records one flush attempt; users and pixels count only on success
func (c *Collector) Flushed(d time.Duration, users, pixels int, err error) {
	if c == nil {
		return
	}
	c.flushDuration.Observe(d.Seconds())
	if err != nil {
		c.flushes.WithLabelValues("error").Inc()
		return
	}
	c.flushes.WithLabelValues("ok").Inc()
	c.usersCreated.Add(float64(users))
	c.pixelsWritten.Add(float64(pixels))
}

// Mirrored counts rows handed to the clickhouse mirror
func (c *Collector) Mirrored(n int) {
	if c == nil {
		return
	}
	c.mirrorRows.Add(float64(n))
}

// OnQuery makes the collector a pg.QueryTracer
func (c *Collector) OnQuery(_ context.Context, ev pg.QueryEvent) {
	if c == nil {
		return
	}
	result := "ok"
	if ev.Err != nil {
		result = "error"
	}
	c.queryDuration.WithLabelValues(verb(ev.SQL), result).Observe(float64(ev.ElapsedUS) / 1e6)
}

var _ pg.QueryTracer = (*Collector)(nil)

// verb returns the leading SQL keyword, lowercased, to keep label cardinality bounded
func verb(sql string) string {
	f := strings.Fields(sql)
	if len(f) == 0 {
		return "unknown"
	}
	switch v := strings.ToLower(f[0]); v {
	case "select", "insert", "update", "delete", "with", "begin", "commit", "rollback", "create":
		return v
	default:
		return "other"
	}
}

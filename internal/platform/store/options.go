package store

import (
	"context"

	"rplace/internal/platform/logger"
	"rplace/internal/platform/store/pg"
)

// Option mutates Store during Open
type Option func(*Store) error

// WithLogger sets the logger used by subclients
func WithLogger(log logger.Logger) Option {
	return func(s *Store) error {
		s.Log = log
		return nil
	}
}

// WithQueryTracer adds a tracer that sees every postgres statement,
// independent of LogSQL (metrics hook in here)
func WithQueryTracer(t pg.QueryTracer) Option {
	return func(s *Store) error {
		if t != nil {
			s.tracers = append(s.tracers, t)
		}
		return nil
	}
}

// fanout delivers an event to several tracers in order
type fanout []pg.QueryTracer

func (f fanout) OnQuery(ctx context.Context, ev pg.QueryEvent) {
	for _, t := range f {
		t.OnQuery(ctx, ev)
	}
}

// tracer combines the sql log tracer with any registered tracers
func (s *Store) tracer(logSQL bool) pg.QueryTracer {
	var all fanout
	if logSQL {
		all = append(all, pg.Tracer(s.Log))
	}
	all = append(all, s.tracers...)
	switch len(all) {
	case 0:
		return nil
	case 1:
		return all[0]
	default:
		return all
	}
}

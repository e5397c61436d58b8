// Package service drives an ingest run: resume, decode, dedup users and flush in batches
package service

import (
	"context"
	"errors"
	"io"
	"math"
	"time"

	"rplace/internal/modkit/repokit"
	perr "rplace/internal/platform/errors"
	"rplace/internal/platform/logger"
	"rplace/internal/platform/metrics"
	"rplace/internal/services/ingest/decode"
	"rplace/internal/services/ingest/domain"
	"rplace/internal/services/ingest/guardrails"
	"rplace/internal/services/ingest/registry"

	"github.com/google/uuid"
)

// DefaultBatchSize is the pixel count of a full flush
const DefaultBatchSize = 10_000

// Config holds the tuning of an ingest run
type Config struct {
	// BatchSize is the pixel count that triggers a flush; <=0 -> DefaultBatchSize
	BatchSize int

	// ProgressEvery logs a progress line every N flushes; <=0 -> 1
	ProgressEvery int

	// Timeouts applied via guardrails
	StartupTimeout time.Duration
	FlushTimeout   time.Duration

	// RunLedger writes ingest_runs rows when a store is configured
	RunLedger bool
}

// Service implements domain.RunnerPort
type Service struct {
	DB      repokit.TxRunner                    // nil means no-store mode
	Binder  repokit.Binder[domain.StorageRepo] // binds q -> domain.StorageRepo
	Reader  domain.ReaderFactory
	Mirror  domain.Mirror // optional
	Metrics *metrics.Collector
	Cfg     Config

	progress domain.Progress
	newRunID func() string
	now      func() time.Time
}

// New constructs the ingest service. A nil db runs without a store
func New(db repokit.TxRunner, binder repokit.Binder[domain.StorageRepo], rf domain.ReaderFactory, cfg Config) *Service {
	if rf == nil {
		panic("ingest.Service requires a non nil ReaderFactory")
	}
	if db != nil && binder == nil {
		panic("ingest.Service requires a Repo binder when a TxRunner is set")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 1
	}
	return &Service{
		DB: db, Binder: binder, Reader: rf, Cfg: cfg,
		newRunID: func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

// WithMirror sets the clickhouse mirror fed by every flush
func (s *Service) WithMirror(m domain.Mirror) *Service {
	s.Mirror = m
	return s
}

// WithMetrics sets the prometheus collector
func (s *Service) WithMetrics(m *metrics.Collector) *Service {
	s.Metrics = m
	return s
}

// Progress returns a snapshot of the current or last run
func (s *Service) Progress() domain.ProgressSnapshot { return s.progress.Snapshot() }

// Stored reports whether runs write to a store
func (s *Service) Stored() bool { return s.DB != nil }

// run is the state of one pass over an input
type run struct {
	id      string
	input   string
	started time.Time
	reg     *registry.Registry
	batch   []domain.Pixel
	sum     domain.Summary
}

func (s *Service) timeouts() guardrails.Timeouts {
	return guardrails.Timeouts{Startup: s.Cfg.StartupTimeout, Flush: s.Cfg.FlushTimeout}
}

// Run ingests r, resuming after the records already stored.
// input names the source in logs and the run ledger
func (s *Service) Run(ctx context.Context, input string, r io.Reader) (sum domain.Summary, retErr error) {
	ru := &run{id: s.newRunID(), input: input, started: s.now()}
	ctx = logger.WithRun(ctx, ru.id, input)
	log := logger.C(ctx)

	s.progress.Begin(ru.id, input, ru.started)
	defer func() { s.progress.End(retErr) }()

	ru.sum = domain.Summary{RunID: ru.id, Input: input, Stored: s.Stored()}
	defer func() {
		ru.sum.Elapsed = s.now().Sub(ru.started)
		sum = ru.sum
	}()

	// Init
	users, skip, err := s.startup(ctx)
	if err != nil {
		return ru.sum, err
	}
	ru.reg, err = registry.New(users)
	if err != nil {
		return ru.sum, err
	}
	s.progress.Known(ru.reg.Len())
	s.Metrics.Registry(ru.reg.Len(), 0)
	log.Info().Int("users", len(users)).Int64("pixels", skip).Bool("store", s.Stored()).Msg("resume position")

	rd, err := s.Reader.New(r)
	if err != nil {
		return ru.sum, err
	}

	if s.ledgerOn() {
		s.startLedger(ctx, ru, skip)
		defer func() { s.finishLedger(ctx, ru, retErr) }()
	}

	if err := SkipRecords(rd, skip); err != nil {
		return ru.sum, err
	}
	ru.sum.Skipped = skip
	s.progress.Skip(skip)
	s.Metrics.Skipped(skip)

	// Decode
	ru.batch = make([]domain.Pixel, 0, s.Cfg.BatchSize)
	for {
		if err := ctx.Err(); err != nil {
			return ru.sum, perr.Wrap(err, perr.ErrorCodeUnknown, "ingest canceled")
		}
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ru.sum, err
		}

		px, err := decode.Pixel(rec)
		if err != nil {
			return ru.sum, err
		}
		if rec.Ordinal > math.MaxInt32 {
			return ru.sum, perr.WithRecord(perr.InvalidArgf("record ordinal %d exceeds pixel_id range", rec.Ordinal), rec.Ordinal, rec.Raw())
		}
		px.ID = int32(rec.Ordinal)
		px.UserID = ru.reg.Resolve(rec.UserHash)
		ru.batch = append(ru.batch, px)
		ru.sum.Processed++
		s.progress.Record()
		s.Metrics.Processed()

		// Flush trigger
		if len(ru.batch) >= s.Cfg.BatchSize {
			if err := s.flush(ctx, ru); err != nil {
				return ru.sum, err
			}
		}
	}

	// Completion
	if len(ru.batch) > 0 || ru.reg.PendingLen() > 0 {
		if err := s.flush(ctx, ru); err != nil {
			return ru.sum, err
		}
	}
	log.Info().
		Int64("skipped", ru.sum.Skipped).
		Int64("processed", ru.sum.Processed).
		Int64("total", ru.sum.Total()).
		Int("users_created", ru.sum.UsersCreated).
		Int("flushes", ru.sum.Flushes).
		Dur("elapsed", s.now().Sub(ru.started)).
		Msg("ingest complete")
	return ru.sum, nil
}

// startup loads the registry snapshot and the resume offset in one read transaction
func (s *Service) startup(ctx context.Context) (users []domain.User, skip int64, err error) {
	if !s.Stored() {
		return nil, 0, nil
	}
	stCtx, cancel := guardrails.ForStartup(ctx, s.timeouts())
	defer cancel()

	err = repokit.BindTx(stCtx, s.DB, s.Binder, func(repo domain.StorageRepo) error {
		var e error
		if users, e = repo.LoadUsers(stCtx); e != nil {
			return e
		}
		skip, e = SkipCount(stCtx, repo)
		return e
	})
	if err != nil {
		return nil, 0, perr.WithOp(perr.FromPostgres(err, "startup"), "startup")
	}

	if s.Mirror != nil {
		if err := s.Mirror.Ensure(stCtx); err != nil {
			return nil, 0, err
		}
	}
	return users, skip, nil
}

// flush commits pending users then the pixel batch in one transaction.
// In no-store mode both are drained and discarded
func (s *Service) flush(ctx context.Context, ru *run) error {
	if err := ctx.Err(); err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnknown, "ingest canceled before flush")
	}

	users := ru.reg.DrainPending()
	pixels := ru.batch
	t0 := s.now()

	if s.Stored() {
		fCtx, cancel := guardrails.ForFlush(ctx, s.timeouts())
		err := repokit.BindTx(fCtx, s.DB, s.Binder, func(repo domain.StorageRepo) error {
			if err := repo.InsertUsers(fCtx, users); err != nil {
				return err
			}
			if err := repo.InsertPixels(fCtx, pixels); err != nil {
				return err
			}
			if s.Mirror != nil {
				if err := s.Mirror.MirrorPixels(fCtx, pixels); err != nil {
					return err
				}
				s.Metrics.Mirrored(len(pixels))
			}
			return nil
		})
		cancel()
		s.Metrics.Flushed(s.now().Sub(t0), len(users), len(pixels), err)
		if err != nil {
			return perr.WithOp(perr.FromPostgres(err, "flush"), "flush")
		}
	}

	ru.sum.UsersCreated += len(users)
	ru.sum.Flushes++
	ru.batch = pixels[:0]
	now := s.now()
	s.progress.Flush(now, len(users), ru.reg.Len())
	s.Metrics.Registry(ru.reg.Len(), ru.reg.PendingLen())

	if ru.sum.Flushes%s.Cfg.ProgressEvery == 0 {
		logger.C(ctx).Info().
			Int64("records", ru.sum.Total()).
			Int("batch", len(pixels)).
			Int("users_created", len(users)).
			Dur("flush", now.Sub(t0)).
			Dur("elapsed", now.Sub(ru.started)).
			Msg("records processed")
	}
	return nil
}

func (s *Service) ledgerOn() bool { return s.Stored() && s.Cfg.RunLedger }

// startLedger and finishLedger are best effort; failures are logged, never returned
func (s *Service) startLedger(ctx context.Context, ru *run, skip int64) {
	lCtx, cancel := guardrails.ForLedger(ctx, s.timeouts())
	defer cancel()
	err := repokit.BindTx(lCtx, s.DB, s.Binder, func(repo domain.StorageRepo) error {
		return repo.StartRun(lCtx, domain.RunStart{RunID: ru.id, Input: ru.input, Skipped: skip})
	})
	if err != nil {
		logger.C(ctx).Warn().Err(err).Msg("run ledger start failed")
	}
}

func (s *Service) finishLedger(ctx context.Context, ru *run, runErr error) {
	fin := domain.RunFinish{
		Status:       domain.RunStatusOK,
		Processed:    ru.sum.Processed,
		UsersCreated: ru.sum.UsersCreated,
		Flushes:      ru.sum.Flushes,
		ElapsedMS:    int(s.now().Sub(ru.started).Milliseconds()),
	}
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		fin.Status, fin.ErrText = domain.RunStatusCanceled, runErr.Error()
	default:
		fin.Status, fin.ErrText = domain.RunStatusError, runErr.Error()
	}

	lCtx, cancel := guardrails.ForLedger(ctx, s.timeouts())
	defer cancel()
	err := repokit.BindTx(lCtx, s.DB, s.Binder, func(repo domain.StorageRepo) error {
		return repo.FinishRun(lCtx, ru.id, fin)
	})
	if err != nil {
		logger.C(ctx).Warn().Err(err).Msg("run ledger finish failed")
	}
}

var _ domain.RunnerPort = (*Service)(nil)

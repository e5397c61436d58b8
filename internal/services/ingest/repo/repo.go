// Package repo provides the postgres store gateway and the clickhouse pixel mirror
package repo

import (
	"context"
	"time"

	"rplace/internal/modkit/repokit"
	perr "rplace/internal/platform/errors"
	"rplace/internal/platform/store"
	"rplace/internal/services/ingest/domain"
)

type (
	// PG is a Postgres binder for domain.StorageRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a Postgres binder for domain.StorageRepo
func NewPG() repokit.Binder[domain.StorageRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.StorageRepo { return &queries{q: q} }

// LoadUsers reads the whole users table ordered by id
func (r *queries) LoadUsers(ctx context.Context) ([]domain.User, error) {
	us, err := store.Many(ctx, r.q, 0, func(row store.Row) (domain.User, error) {
		var u domain.User
		err := row.Scan(&u.ID, &u.Hash)
		return u, err
	}, `SELECT user_id, hash FROM users ORDER BY user_id`)
	if err != nil {
		return nil, perr.FromPostgres(err, "load users")
	}
	return us, nil
}

// CountPixels returns the committed pixel row count
func (r *queries) CountPixels(ctx context.Context) (int64, error) {
	n, err := store.Scalar[int64](ctx, r.q, `SELECT count(*) FROM pixel`)
	if err != nil {
		return 0, perr.FromPostgres(err, "count pixels")
	}
	return n, nil
}

// InsertUsers writes the batch with one array insert; no conflict handling
func (r *queries) InsertUsers(ctx context.Context, us []domain.User) error {
	if len(us) == 0 {
		return nil
	}
	ids := make([]int32, len(us))
	hashes := make([]string, len(us))
	for i, u := range us {
		ids[i], hashes[i] = u.ID, u.Hash
	}
	err := store.ExecRows(ctx, r.q, int64(len(us)), `
		INSERT INTO users (user_id, hash)
		SELECT * FROM UNNEST($1::int4[], $2::varchar[])
	`, ids, hashes)
	switch {
	case err == nil:
		return nil
	case perr.IsDuplicateKey(err):
		return perr.FromPostgresf(err, "insert %d users from id %d: users changed since startup", len(us), us[0].ID)
	default:
		return perr.FromPostgresf(err, "insert %d users from id %d", len(us), us[0].ID)
	}
}

// InsertPixels writes the batch with one array insert; no conflict handling
func (r *queries) InsertPixels(ctx context.Context, ps []domain.Pixel) error {
	if len(ps) == 0 {
		return nil
	}
	var (
		ids    = make([]int32, len(ps))
		ts     = make([]time.Time, len(ps))
		users  = make([]int32, len(ps))
		colors = make([]int32, len(ps))
		x1     = make([]int32, len(ps))
		y1     = make([]int32, len(ps))
		x2     = make([]*int32, len(ps))
		y2     = make([]*int32, len(ps))
	)
	for i, p := range ps {
		ids[i], ts[i], users[i], colors[i] = p.ID, p.At.UTC(), p.UserID, p.Color
		x1[i], y1[i], x2[i], y2[i] = p.X1, p.Y1, p.X2, p.Y2
	}
	err := store.ExecRows(ctx, r.q, int64(len(ps)), `
		INSERT INTO pixel (pixel_id, ts, user_id, color, x1, y1, x2, y2)
		SELECT * FROM UNNEST(
			$1::int4[], $2::timestamp[], $3::int4[], $4::int4[],
			$5::int4[], $6::int4[], $7::int4[], $8::int4[]
		)
	`, ids, ts, users, colors, x1, y1, x2, y2)
	first, last := ps[0].ID, ps[len(ps)-1].ID
	switch {
	case err == nil:
		return nil
	case perr.IsDuplicateKey(err):
		return perr.FromPostgresf(err, "insert pixels %d..%d: ids already stored, input or store changed since startup", first, last)
	case perr.IsForeignKeyViolation(err):
		return perr.FromPostgresf(err, "insert pixels %d..%d: unknown user id", first, last)
	default:
		return perr.FromPostgresf(err, "insert pixels %d..%d", first, last)
	}
}

// StartRun opens the ledger row for a run
func (r *queries) StartRun(ctx context.Context, rs domain.RunStart) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO ingest_runs (run_id, input, skipped, started_at, status)
		VALUES ($1::uuid, $2, $3, now(), 'running')
		ON CONFLICT (run_id) DO UPDATE
		SET started_at = now(), status = 'running', error = null, finished_at = null
	`, rs.RunID, rs.Input, rs.Skipped)
	return perr.FromPostgres(err, "start run")
}

// FinishRun closes the ledger row for a run
func (r *queries) FinishRun(ctx context.Context, runID string, fin domain.RunFinish) error {
	_, err := r.q.Exec(ctx, `
		UPDATE ingest_runs SET
			finished_at = now(),
			status = $2,
			processed = $3,
			users_created = $4,
			flushes = $5,
			elapsed_ms = $6,
			error = NULLIF($7, '')
		WHERE run_id = $1::uuid
	`, runID, fin.Status, fin.Processed, fin.UsersCreated, fin.Flushes, fin.ElapsedMS, fin.ErrText)
	return perr.FromPostgres(err, "finish run")
}

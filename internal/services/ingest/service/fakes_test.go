package service

import (
	"context"
	"fmt"
	"sync"

	"rplace/internal/modkit/repokit"
	perr "rplace/internal/platform/errors"
	"rplace/internal/platform/store"
	"rplace/internal/services/ingest/domain"
)

// memStore is a transactional in-memory store gateway.
// Writes land in a staged copy and are applied only when the tx callback succeeds
type memStore struct {
	mu sync.Mutex

	users  []domain.User
	pixels []domain.Pixel
	runs   map[string]domain.RunStart
	fins   map[string]domain.RunFinish

	ops []string // committed writes in order, e.g. "users:2" "pixels:3"

	failPixelsOnFlush int // 1-based flush index whose pixel insert fails, 0 = never
	flushes           int
	countErr          error
	txs               int
}

func newMemStore() *memStore {
	return &memStore{runs: map[string]domain.RunStart{}, fins: map[string]domain.RunFinish{}}
}

// memQ is the tx bound queryer; it only exists to carry the staged repo
type memQ struct{ repo *stagedRepo }

func (memQ) Exec(context.Context, string, ...any) (store.CommandTag, error) { return nil, nil }
func (memQ) Query(context.Context, string, ...any) (store.Rows, error)      { return nil, nil }
func (memQ) QueryRow(context.Context, string, ...any) store.Row             { return nil }

func (m *memStore) Exec(context.Context, string, ...any) (store.CommandTag, error) { return nil, nil }
func (m *memStore) Query(context.Context, string, ...any) (store.Rows, error)      { return nil, nil }
func (m *memStore) QueryRow(context.Context, string, ...any) store.Row             { return nil }

func (m *memStore) Tx(ctx context.Context, fn func(q repokit.Queryer) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs++
	if err := ctx.Err(); err != nil {
		return err
	}
	st := &stagedRepo{m: m}
	if err := fn(memQ{repo: st}); err != nil {
		return err
	}
	st.apply()
	return nil
}

func (m *memStore) binder() repokit.Binder[domain.StorageRepo] {
	return repokit.BindFunc[domain.StorageRepo](func(q repokit.Queryer) domain.StorageRepo {
		return q.(memQ).repo
	})
}

func (m *memStore) snapshot() ([]domain.User, []domain.Pixel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.User(nil), m.users...), append([]domain.Pixel(nil), m.pixels...)
}

type stagedRepo struct {
	m      *memStore
	users  []domain.User
	pixels []domain.Pixel
	start  *domain.RunStart
	finID  string
	fin    *domain.RunFinish
	ops    []string
	flush  bool
}

func (s *stagedRepo) LoadUsers(context.Context) ([]domain.User, error) {
	return append([]domain.User(nil), s.m.users...), nil
}

func (s *stagedRepo) CountPixels(context.Context) (int64, error) {
	if s.m.countErr != nil {
		return 0, s.m.countErr
	}
	return int64(len(s.m.pixels)), nil
}

func (s *stagedRepo) hasUser(id int32) bool {
	for _, u := range s.m.users {
		if u.ID == id {
			return true
		}
	}
	for _, u := range s.users {
		if u.ID == id {
			return true
		}
	}
	return false
}

func (s *stagedRepo) InsertUsers(_ context.Context, us []domain.User) error {
	for _, u := range us {
		for _, have := range append(append([]domain.User(nil), s.m.users...), s.users...) {
			if have.ID == u.ID || have.Hash == u.Hash {
				return perr.Constraintf("duplicate user %d %q", u.ID, u.Hash)
			}
		}
		s.users = append(s.users, u)
	}
	if len(us) > 0 {
		s.ops = append(s.ops, fmt.Sprintf("users:%d", len(us)))
	}
	return nil
}

func (s *stagedRepo) InsertPixels(_ context.Context, ps []domain.Pixel) error {
	s.flush = true
	if s.m.failPixelsOnFlush == s.m.flushes+1 {
		return perr.Unavailablef("connection reset during pixel insert")
	}
	seen := map[int32]bool{}
	for _, p := range s.m.pixels {
		seen[p.ID] = true
	}
	for _, p := range ps {
		if !s.hasUser(p.UserID) {
			return perr.Constraintf("pixel %d references unknown user %d", p.ID, p.UserID)
		}
		if seen[p.ID] {
			return perr.Constraintf("duplicate pixel %d", p.ID)
		}
		seen[p.ID] = true
	}
	s.pixels = append(s.pixels, ps...)
	s.ops = append(s.ops, fmt.Sprintf("pixels:%d", len(ps)))
	return nil
}

func (s *stagedRepo) StartRun(_ context.Context, rs domain.RunStart) error {
	s.start = &rs
	return nil
}

func (s *stagedRepo) FinishRun(_ context.Context, id string, fin domain.RunFinish) error {
	s.finID, s.fin = id, &fin
	return nil
}

func (s *stagedRepo) apply() {
	s.m.users = append(s.m.users, s.users...)
	s.m.pixels = append(s.m.pixels, s.pixels...)
	s.m.ops = append(s.m.ops, s.ops...)
	if s.flush {
		s.m.flushes++
	}
	if s.start != nil {
		s.m.runs[s.start.RunID] = *s.start
	}
	if s.fin != nil {
		s.m.fins[s.finID] = *s.fin
	}
}

// memMirror records mirrored batches
type memMirror struct {
	ensured bool
	ids     []int32
}

func (m *memMirror) Ensure(context.Context) error { m.ensured = true; return nil }
func (m *memMirror) MirrorPixels(_ context.Context, ps []domain.Pixel) error {
	for _, p := range ps {
		m.ids = append(m.ids, p.ID)
	}
	return nil
}

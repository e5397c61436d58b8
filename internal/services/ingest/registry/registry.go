// Package registry assigns surrogate ids to user hashes in first-seen order
package registry

import (
	perr "rplace/internal/platform/errors"
	"rplace/internal/services/ingest/domain"
)

// Registry maps hashes to ids and buffers users not yet written.
// It is owned by a single ingest run and is not safe for concurrent use
type Registry struct {
	ids     map[string]int32
	next    int32
	pending []domain.User
}

// New seeds a Registry from the stored users.
// Stored ids must be exactly 0..N-1 with unique hashes, in any order
func New(existing []domain.User) (*Registry, error) {
	r := &Registry{ids: make(map[string]int32, len(existing))}
	seen := make([]bool, len(existing))
	for _, u := range existing {
		if u.ID < 0 || int(u.ID) >= len(existing) {
			return nil, perr.Constraintf("stored user id %d outside 0..%d", u.ID, len(existing)-1)
		}
		if seen[u.ID] {
			return nil, perr.Constraintf("stored user id %d appears twice", u.ID)
		}
		if prev, dup := r.ids[u.Hash]; dup {
			return nil, perr.Constraintf("stored hash %q has ids %d and %d", u.Hash, prev, u.ID)
		}
		seen[u.ID] = true
		r.ids[u.Hash] = u.ID
	}
	r.next = int32(len(existing))
	return r, nil
}

// Resolve returns the id of hash, allocating the next id for an unseen hash
func (r *Registry) Resolve(hash string) int32 {
	if id, ok := r.ids[hash]; ok {
		return id
	}
	id := r.next
	r.next++
	r.ids[hash] = id
	r.pending = append(r.pending, domain.User{ID: id, Hash: hash})
	return id
}

// DrainPending returns the users allocated since the last drain and clears the buffer
func (r *Registry) DrainPending() []domain.User {
	out := r.pending
	r.pending = nil
	return out
}

// Len is the number of known users, pending included
func (r *Registry) Len() int { return len(r.ids) }

// NextID is the id the next unseen hash will get
func (r *Registry) NextID() int32 { return r.next }

// PendingLen is the number of users waiting for a flush
func (r *Registry) PendingLen() int { return len(r.pending) }

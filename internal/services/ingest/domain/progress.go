package domain

import (
	"sync"
	"sync/atomic"
	"time"
)

// Progress is the live view of a run. The ingestor writes it, the ops server reads it
type Progress struct {
	mu      sync.RWMutex
	runID   string
	input   string
	started time.Time
	err     string
	done    bool

	skipped      atomic.Int64
	processed    atomic.Int64
	usersCreated atomic.Int64
	knownUsers   atomic.Int64
	flushes      atomic.Int64
	lastFlush    atomic.Int64
}

// ProgressSnapshot is a point in time copy of Progress, shaped for JSON
type ProgressSnapshot struct {
	RunID        string    `json:"run_id"`
	Input        string    `json:"input"`
	StartedAt    time.Time `json:"started_at"`
	Skipped      int64     `json:"skipped"`
	Processed    int64     `json:"processed"`
	UsersCreated int64     `json:"users_created"`
	KnownUsers   int64     `json:"known_users"`
	Flushes      int64     `json:"flushes"`
	LastFlushAt  time.Time `json:"last_flush_at"`
	Done         bool      `json:"done"`
	Error        string    `json:"error,omitempty"`
}

// Begin resets p for a new run
func (p *Progress) Begin(runID, input string, at time.Time) {
	p.mu.Lock()
	p.runID, p.input, p.started = runID, input, at
	p.err, p.done = "", false
	p.mu.Unlock()
	p.skipped.Store(0)
	p.processed.Store(0)
	p.usersCreated.Store(0)
	p.knownUsers.Store(0)
	p.flushes.Store(0)
	p.lastFlush.Store(0)
}

// Skip records the resume offset
func (p *Progress) Skip(n int64) { p.skipped.Store(n) }

// Record counts one staged record
func (p *Progress) Record() { p.processed.Add(1) }

// Flush records a committed flush
func (p *Progress) Flush(at time.Time, usersCreated, knownUsers int) {
	p.flushes.Add(1)
	p.usersCreated.Add(int64(usersCreated))
	p.knownUsers.Store(int64(knownUsers))
	p.lastFlush.Store(at.UnixNano())
}

// Known sets the registry size without counting a flush
func (p *Progress) Known(n int) { p.knownUsers.Store(int64(n)) }

// End marks the run finished, with err when it failed
func (p *Progress) End(err error) {
	p.mu.Lock()
	p.done = true
	if err != nil {
		p.err = err.Error()
	}
	p.mu.Unlock()
}

// Snapshot copies the current state
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	s := ProgressSnapshot{
		RunID:     p.runID,
		Input:     p.input,
		StartedAt: p.started,
		Done:      p.done,
		Error:     p.err,
	}
	p.mu.RUnlock()
	s.Skipped = p.skipped.Load()
	s.Processed = p.processed.Load()
	s.UsersCreated = p.usersCreated.Load()
	s.KnownUsers = p.knownUsers.Load()
	s.Flushes = p.flushes.Load()
	if ns := p.lastFlush.Load(); ns > 0 {
		s.LastFlushAt = time.Unix(0, ns).UTC()
	}
	return s
}

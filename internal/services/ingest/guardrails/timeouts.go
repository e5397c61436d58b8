// Package guardrails holds the time budgets an ingest run applies to store work
package guardrails

import (
	"context"
	"fmt"
	"time"

	"rplace/internal/modkit/repokit"
)

// Timeouts bounds the store phases of a run. Zero values mean no extra timeout
type Timeouts struct {
	// Startup caps loading users and counting pixels
	Startup time.Duration

	// Flush caps one flush transaction
	Flush time.Duration

	// Ledger caps a single run ledger write
	Ledger time.Duration
}

// ForStartup returns a sub context for the startup reads
func ForStartup(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Startup)
}

// ForFlush returns a sub context for one flush bounded by Flush and any remaining parent budget
func ForFlush(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Flush)
}

// ForLedger returns a sub context for a ledger write.
// It detaches from parent cancellation so a canceled run can still record its end
func ForLedger(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	d := t.Ledger
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(parent), d)
}

// Remaining returns the time until the deadline on ctx or zero when none is set or already expired
func Remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
	}
	return 0
}

// withChildTimeout chooses the tighter of d and any parent remainder.
// Never extends the parent deadline
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem := Remaining(parent); rem > 0 && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}

// StatementTimeout returns a begin hook that caps every statement of the tx.
// Zero disables the hook
func StatementTimeout(d time.Duration) []repokit.BeginHook {
	if d <= 0 {
		return nil
	}
	stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", d.Milliseconds())
	return []repokit.BeginHook{func(ctx context.Context, q repokit.Queryer) error {
		_, err := q.Exec(ctx, stmt)
		return err
	}}
}

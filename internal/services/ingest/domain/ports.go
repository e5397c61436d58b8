package domain

import (
	"context"
	"io"
)

// RunnerPort is the public port exposed by the module
type RunnerPort interface {
	Run(ctx context.Context, input string, r io.Reader) (Summary, error)
	Progress() ProgressSnapshot
}

// StorageRepo is the store gateway bound to a single transaction
type StorageRepo interface {
	// LoadUsers returns every stored user ordered by id
	LoadUsers(ctx context.Context) ([]User, error)

	// CountPixels returns the number of committed pixel rows
	CountPixels(ctx context.Context) (int64, error)

	// InsertUsers inserts new users; a duplicate hash or id fails the whole batch
	InsertUsers(ctx context.Context, us []User) error

	// InsertPixels inserts pixel rows; an unknown user or duplicate id fails the whole batch
	InsertPixels(ctx context.Context, ps []Pixel) error

	// StartRun opens a run ledger row
	StartRun(ctx context.Context, rs RunStart) error

	// FinishRun closes the run ledger row
	FinishRun(ctx context.Context, runID string, fin RunFinish) error
}

// Mirror receives every committed pixel batch for columnar analytics
type Mirror interface {
	// Ensure creates the mirror table when missing
	Ensure(ctx context.Context) error

	// MirrorPixels appends one batch; replays of the same ids collapse
	MirrorPixels(ctx context.Context, ps []Pixel) error
}

// RecordReader yields data records after the header has been validated
type RecordReader interface {
	// Next returns the next record or io.EOF
	Next() (Record, error)

	// Skip advances past one record without building it, io.EOF at end of input
	Skip() error
}

// ReaderFactory builds a RecordReader over a decompressed CSV stream
type ReaderFactory interface {
	New(io.Reader) (RecordReader, error)
}

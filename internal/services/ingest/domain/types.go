// Package domain holds the data shapes and ports of the canvas ingester
package domain

import (
	"encoding/csv"
	"strings"
	"time"
)

// User is a surrogate id assigned to an opaque user hash
type User struct {
	ID   int32
	Hash string
}

// Placement is either a point (X2, Y2 nil) or a rectangle (all four set)
type Placement struct {
	X1, Y1 int32
	X2, Y2 *int32
}

// IsRect reports whether the placement covers a rectangle
func (p Placement) IsRect() bool { return p.X2 != nil && p.Y2 != nil }

// Pixel is one decoded placement event.
// ID equals the zero-based position of its record in the full input
type Pixel struct {
	ID     int32
	At     time.Time
	UserID int32
	Color  int32
	Placement
}

// Record is one CSV data row by field name, plus its zero-based ordinal
type Record struct {
	Ordinal    int64
	Timestamp  string
	UserHash   string
	Color      string
	Coordinate string
}

// Raw renders the record back to a CSV line in header order
func (r Record) Raw() string {
	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write([]string{r.Timestamp, r.UserHash, r.Color, r.Coordinate})
	w.Flush()
	return strings.TrimRight(b.String(), "\r\n")
}

// Summary describes a finished run
type Summary struct {
	RunID        string
	Input        string
	Skipped      int64
	Processed    int64
	UsersCreated int
	Flushes      int
	Elapsed      time.Duration
	Stored       bool
}

// Total is the record count of the whole input, resumed part included
func (s Summary) Total() int64 { return s.Skipped + s.Processed }

// RunStart is written to the run ledger before the first record is read
type RunStart struct {
	RunID   string
	Input   string
	Skipped int64
}

// RunFinish is written to the run ledger when a run ends, successfully or not
type RunFinish struct {
	Status       string
	Processed    int64
	UsersCreated int
	Flushes      int
	ElapsedMS    int
	ErrText      string
}

// Run ledger statuses
const (
	RunStatusOK       = "ok"
	RunStatusError    = "error"
	RunStatusCanceled = "canceled"
)

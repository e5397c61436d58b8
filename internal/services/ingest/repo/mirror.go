package repo

import (
	"context"
	"fmt"
	"regexp"

	perr "rplace/internal/platform/errors"
	"rplace/internal/platform/store"
	"rplace/internal/services/ingest/domain"
)

// DefaultMirrorTable is the clickhouse table the mirror writes when none is configured
const DefaultMirrorTable = "pixel"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// mirror copies committed pixel batches into a ReplacingMergeTree keyed by pixel_id,
// so a batch replayed after a failed postgres commit collapses on merge
type mirror struct {
	ch    store.Clickhouse
	table string
}

// NewMirror returns a clickhouse backed domain.Mirror writing to table
func NewMirror(ch store.Clickhouse, table string) (domain.Mirror, error) {
	if ch == nil {
		return nil, perr.InvalidArgf("mirror: nil clickhouse client")
	}
	if table == "" {
		table = DefaultMirrorTable
	}
	if !tableName.MatchString(table) {
		return nil, perr.WithField(perr.InvalidArgf("mirror: bad table name %q", table), "table")
	}
	return &mirror{ch: ch, table: table}, nil
}

// Ensure creates the mirror table when missing
func (m *mirror) Ensure(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			pixel_id Int32,
			ts       DateTime64(9, 'UTC'),
			user_id  Int32,
			color    Int32,
			x1       Int32,
			y1       Int32,
			x2       Nullable(Int32),
			y2       Nullable(Int32)
		)
		ENGINE = ReplacingMergeTree
		ORDER BY pixel_id
	`, m.table)
	if err := m.ch.Exec(ctx, ddl); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStoreUnavailable, "mirror: create %s", m.table)
	}
	return nil
}

// MirrorPixels sends ps as one native batch
func (m *mirror) MirrorPixels(ctx context.Context, ps []domain.Pixel) error {
	if len(ps) == 0 {
		return nil
	}
	rows := make([][]any, len(ps))
	for i, p := range ps {
		rows[i] = []any{p.ID, p.At.UTC(), p.UserID, p.Color, p.X1, p.Y1, p.X2, p.Y2}
	}
	if err := m.ch.Insert(ctx, m.table, rows); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStoreUnavailable, "mirror pixels %d..%d", ps[0].ID, ps[len(ps)-1].ID)
	}
	return nil
}

package repo

import (
	"context"
	_ "embed"

	perr "rplace/internal/platform/errors"
	"rplace/internal/platform/store"
)

// Schema is the DDL of the tables the ingester writes
//
//go:embed schema.sql
var Schema string

// ApplySchema runs Schema. Every statement is IF NOT EXISTS, so it is safe to repeat
func ApplySchema(ctx context.Context, q store.RowQuerier) error {
	if _, err := q.Exec(ctx, Schema); err != nil {
		return perr.FromPostgres(err, "apply schema")
	}
	return nil
}

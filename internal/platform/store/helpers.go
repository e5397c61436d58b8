package store

import (
	"context"
	"fmt"

	perr "rplace/internal/platform/errors"
)

// ExecRows runs a write and asserts the number of affected rows.
// Bulk inserts use it to prove every staged row landed
func ExecRows(ctx context.Context, q RowQuerier, want int64, sql string, args ...any) error {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if got := tag.RowsAffected(); got != want {
		return perr.Newf(perr.ErrorCodeConstraintViolation, "expected %d rows affected, got %d", want, got)
	}
	return nil
}

// Scalar queries the first row, first column into T
func Scalar[T any](ctx context.Context, q RowQuerier, sql string, args ...any) (T, error) {
	var v T
	if err := q.QueryRow(ctx, sql, args...).Scan(&v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// Many uses a custom scanner to map all rows into []T.
// sizeHint preallocates the result when the caller knows the row count
func Many[T any](ctx context.Context, q RowQuerier, sizeHint int, scan func(Row) (T, error), sql string, args ...any) ([]T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]T, 0, max(sizeHint, 0))
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(out), err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

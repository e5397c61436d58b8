package errors

import (
	"context"
	stderrs "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func pg(code, col, constraint string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		ColumnName:     col,
		ConstraintName: constraint,
	}
}

func TestDBErrorCodeMappings(t *testing.T) {
	cases := []struct {
		code string
		want ErrorCode
	}{
		{"23505", ErrorCodeConstraintViolation}, // duplicate hash / pixel id
		{"23503", ErrorCodeConstraintViolation}, // unknown user fk
		{"23502", ErrorCodeConstraintViolation},
		{"23514", ErrorCodeConstraintViolation},
		{"08006", ErrorCodeStoreUnavailable},
		{"57P01", ErrorCodeStoreUnavailable},
		{"57P03", ErrorCodeStoreUnavailable},
		{"40001", ErrorCodeDB},
		{"XXXXX", ErrorCodeDB},
	}
	for _, c := range cases {
		got, ok := DBErrorCode(pg(c.code, "", ""))
		if !ok {
			t.Fatalf("expected ok for PgError code %s", c.code)
		}
		if got != c.want {
			t.Fatalf("DBErrorCode(%s) = %v, want %v", c.code, got, c.want)
		}
	}

	if _, ok := DBErrorCode(stderrs.New("nope")); ok {
		t.Fatalf("DBErrorCode should return ok=false for non-pg error")
	}
}

func TestFromPostgres(t *testing.T) {
	if FromPostgres(nil, "x") != nil || FromPostgresf(nil, "x %d", 1) != nil {
		t.Fatalf("nil should pass through")
	}

	err := FromPostgres(fmt.Errorf("exec: %w", pg("23505", "", "users_hash_key")), "insert users")
	if CodeOf(err) != ErrorCodeConstraintViolation {
		t.Fatalf("code = %v", CodeOf(err))
	}
	e, _ := As(err)
	if e.Field() != "users_hash_key" {
		t.Fatalf("field = %q, want constraint name", e.Field())
	}

	col := FromPostgresf(pg("23502", "ts", ""), "insert pixels %d", 2)
	if e, _ := As(col); e.Field() != "ts" {
		t.Fatalf("field = %q, want column name", e.Field())
	}

	plain := FromPostgres(stderrs.New("boom"), "count pixels")
	if CodeOf(plain) != ErrorCodeDB {
		t.Fatalf("non-pg error should map to DB, got %v", CodeOf(plain))
	}

	ours := New(ErrorCodeInvalidArgument, "already classified")
	if FromPostgres(ours, "again") != ours {
		t.Fatalf("already classified errors must not be re-wrapped")
	}
}

func TestIsConnectionUnavailable(t *testing.T) {
	if !IsConnectionUnavailable(&pgconn.ConnectError{}) {
		t.Fatalf("ConnectError should be unavailable")
	}
	if !IsConnectionUnavailable(pg("08001", "", "")) {
		t.Fatalf("class 08 should be unavailable")
	}
	if IsConnectionUnavailable(pg("23505", "", "")) {
		t.Fatalf("unique violation is not unavailability")
	}
	if IsConnectionUnavailable(stderrs.New("x")) {
		t.Fatalf("plain error is not unavailability")
	}
}

func TestPredicates(t *testing.T) {
	if !IsDuplicateKey(pg("23505", "", "")) || IsDuplicateKey(pg("23503", "", "")) {
		t.Fatalf("IsDuplicateKey mismatch")
	}
	if !IsForeignKeyViolation(pg("23503", "", "")) {
		t.Fatalf("IsForeignKeyViolation mismatch")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("x: %w", context.DeadlineExceeded), false},
		{"serialization", pg("40001", "", ""), true},
		{"deadlock", pg("40P01", "", ""), true},
		{"unique", pg("23505", "", ""), false},
		{"starting up", pg("57P03", "", ""), true},
		{"admin shutdown", pg("57P01", "", ""), true},
		{"connection class", pg("08006", "", ""), true},
		{"bad password", fmt.Errorf("connect: %w", pg("28P01", "", "")), false},
		{"no database", pg("3D000", "", ""), false},
		{"dial failure", &pgconn.ConnectError{}, true},
		{"commit text", stderrs.New("commit unexpectedly resulted in rollback"), true},
		{"other text", stderrs.New("something else"), false},
	}
	for _, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Fatalf("%s: IsRetryable = %v, want %v", c.name, got, c.want)
		}
	}
}

package store

import (
	"context"
	"errors"
	"testing"

	perr "rplace/internal/platform/errors"

	"github.com/google/go-cmp/cmp"
)

type cmdTag int64

func (c cmdTag) String() string      { return "INSERT" }
func (c cmdTag) RowsAffected() int64 { return int64(c) }

type memRows struct {
	cols []string
	data [][]any
	i    int
	err  error
}

func (m *memRows) Next() bool        { m.i++; return m.i <= len(m.data) }
func (m *memRows) Err() error        { return m.err }
func (m *memRows) Close()            {}
func (m *memRows) Columns() []string { return m.cols }
func (m *memRows) Scan(dest ...any) error {
	row := m.data[m.i-1]
	for i := range dest {
		switch p := dest[i].(type) {
		case *int64:
			*p = row[i].(int64)
		case *string:
			*p = row[i].(string)
		default:
			return errors.New("unsupported dest")
		}
	}
	return nil
}

type valRow struct {
	v   int64
	err error
}

func (r valRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.v
	return nil
}

type fakeRowQuerier struct {
	tag     CommandTag
	execErr error
	rows    Rows
	row     Row
}

func (f *fakeRowQuerier) Exec(context.Context, string, ...any) (CommandTag, error) {
	return f.tag, f.execErr
}
func (f *fakeRowQuerier) Query(context.Context, string, ...any) (Rows, error) {
	if f.rows == nil {
		return nil, errors.New("query failed")
	}
	return f.rows, nil
}
func (f *fakeRowQuerier) QueryRow(context.Context, string, ...any) Row { return f.row }

func TestExecRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	if err := ExecRows(ctx, &fakeRowQuerier{tag: cmdTag(3)}, 3, "INSERT"); err != nil {
		t.Fatalf("ExecRows: %v", err)
	}
	err := ExecRows(ctx, &fakeRowQuerier{tag: cmdTag(2)}, 3, "INSERT")
	if !perr.IsCode(err, perr.ErrorCodeConstraintViolation) {
		t.Fatalf("short insert should be a constraint violation, got %v", err)
	}
	boom := errors.New("boom")
	if err := ExecRows(ctx, &fakeRowQuerier{execErr: boom}, 1, "INSERT"); !errors.Is(err, boom) {
		t.Fatalf("exec error not propagated: %v", err)
	}
}

func TestScalar(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	n, err := Scalar[int64](ctx, &fakeRowQuerier{row: valRow{v: 160353104}}, "SELECT count(*) FROM pixel")
	if err != nil || n != 160353104 {
		t.Fatalf("Scalar = %d, %v", n, err)
	}
	n, err = Scalar[int64](ctx, &fakeRowQuerier{row: valRow{v: 9, err: errors.New("x")}}, "SELECT")
	if err == nil || n != 0 {
		t.Fatalf("Scalar error should zero the value: %d %v", n, err)
	}
}

func TestMany(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	type user struct {
		ID   int64
		Hash string
	}
	scan := func(r Row) (user, error) {
		var u user
		err := r.Scan(&u.ID, &u.Hash)
		return u, err
	}

	q := &fakeRowQuerier{rows: &memRows{data: [][]any{{int64(0), "a"}, {int64(1), "b"}}}}
	got, err := Many(ctx, q, 2, scan, "SELECT id, hash FROM users")
	if err != nil {
		t.Fatalf("Many: %v", err)
	}
	if d := cmp.Diff([]user{{0, "a"}, {1, "b"}}, got); d != "" {
		t.Fatalf("Many (-want +got):\n%s", d)
	}

	empty, err := Many(ctx, &fakeRowQuerier{rows: &memRows{}}, -1, scan, "SELECT")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("empty result should be a non-nil empty slice: %#v %v", empty, err)
	}

	if _, err := Many(ctx, &fakeRowQuerier{}, 0, scan, "SELECT"); err == nil {
		t.Fatalf("query error not propagated")
	}

	iterErr := errors.New("conn reset")
	if _, err := Many(ctx, &fakeRowQuerier{rows: &memRows{err: iterErr}}, 0, scan, "SELECT"); !errors.Is(err, iterErr) {
		t.Fatalf("rows.Err not propagated: %v", err)
	}

	bad := &fakeRowQuerier{rows: &memRows{data: [][]any{{int64(0), "a"}}}}
	badScan := func(Row) (user, error) { return user{}, errors.New("bad") }
	if _, err := Many(ctx, bad, 0, badScan, "SELECT"); err == nil {
		t.Fatalf("scan error not propagated")
	}
}

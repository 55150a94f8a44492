package tx_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v4"
	"github.com/opst/knitdao/pkg/conn/db/postgres/pool/mock"
	domerr "github.com/opst/knitdao/pkg/domain/errors"
	"github.com/opst/knitdao/pkg/domain/tx"
)

func TestPostgres_Commit(t *testing.T) {
	for name, testcase := range map[string]struct {
		run  func(tx.Scope, context.Context, func(context.Context) error) error
		mode pgx.TxAccessMode
	}{
		"read-only":  {run: tx.Scope.ReadOnly, mode: pgx.ReadOnly},
		"read-write": {run: tx.Scope.ReadWrite, mode: pgx.ReadWrite},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			pool := &mock.Pool{}
			testee := tx.Postgres(pool)

			called := false
			err := testcase.run(testee, ctx, func(ctx context.Context) error {
				called = true
				carried, ok := tx.FromContext(ctx)
				if !ok {
					t.Fatal("transaction is not carried")
				}
				if carried != pool.Began[0] {
					t.Error("carried transaction is not the one begun")
				}
				if tx.ReadOnlyIn(ctx) != (testcase.mode == pgx.ReadOnly) {
					t.Error("read-only flag is wrong")
				}
				return nil
			})
			if err != nil {
				t.Fatal(err)
			}
			if !called {
				t.Fatal("function is not called")
			}

			if len(pool.Began) != 1 {
				t.Fatalf("unexpected transactions: %d", len(pool.Began))
			}
			began := pool.Began[0]
			if began.Options.AccessMode != testcase.mode {
				t.Errorf("access mode: %s", began.Options.AccessMode)
			}
			if began.Committed != 1 || began.RolledBack != 0 {
				t.Errorf("commit = %d, rollback = %d", began.Committed, began.RolledBack)
			}
		})
	}
}

func TestPostgres_Rollback(t *testing.T) {
	t.Run("on error", func(t *testing.T) {
		ctx := context.Background()
		pool := &mock.Pool{}
		testee := tx.Postgres(pool)

		expectedErr := errors.New("fake")
		err := testee.ReadWrite(ctx, func(context.Context) error { return expectedErr })
		if !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}

		began := pool.Began[0]
		if began.Committed != 0 || began.RolledBack != 1 {
			t.Errorf("commit = %d, rollback = %d", began.Committed, began.RolledBack)
		}
	})

	t.Run("on panic", func(t *testing.T) {
		ctx := context.Background()
		pool := &mock.Pool{}
		testee := tx.Postgres(pool)

		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Error("panic is swallowed")
				}
			}()
			testee.ReadWrite(ctx, func(context.Context) error { panic("fake") })
		}()

		began := pool.Began[0]
		if began.Committed != 0 || began.RolledBack != 1 {
			t.Errorf("commit = %d, rollback = %d", began.Committed, began.RolledBack)
		}
	})

	t.Run("begin failure", func(t *testing.T) {
		ctx := context.Background()
		expectedErr := errors.New("fake")
		pool := &mock.Pool{
			BeginImpl: func(pgx.TxOptions) (*mock.Tx, error) { return nil, expectedErr },
		}
		testee := tx.Postgres(pool)

		called := false
		err := testee.ReadOnly(ctx, func(context.Context) error {
			called = true
			return nil
		})
		if !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}
		if called {
			t.Error("function is called without transaction")
		}
	})
}

func TestPostgres_Propagation(t *testing.T) {
	t.Run("read-only scope joins read-write one", func(t *testing.T) {
		ctx := context.Background()
		pool := &mock.Pool{}
		testee := tx.Postgres(pool)

		err := testee.ReadWrite(ctx, func(ctx context.Context) error {
			outer, _ := tx.FromContext(ctx)
			return testee.ReadOnly(ctx, func(ctx context.Context) error {
				inner, _ := tx.FromContext(ctx)
				if inner != outer {
					t.Error("inner scope does not join")
				}
				return nil
			})
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(pool.Began) != 1 || pool.Began[0].Committed != 1 {
			t.Errorf("unexpected transactions: %+v", pool.Began)
		}
	})

	t.Run("read-write scope in read-only one is rejected", func(t *testing.T) {
		ctx := context.Background()
		pool := &mock.Pool{}
		testee := tx.Postgres(pool)

		called := false
		err := testee.ReadOnly(ctx, func(ctx context.Context) error {
			return testee.ReadWrite(ctx, func(context.Context) error {
				called = true
				return nil
			})
		})
		if !errors.Is(err, domerr.ErrReadOnlyScope) {
			t.Errorf("unexpected error: %v", err)
		}
		if called {
			t.Error("function is called")
		}
		if pool.Began[0].RolledBack != 1 {
			t.Error("outer transaction is not rolled back")
		}
	})

	t.Run("error in inner scope rolls back whole", func(t *testing.T) {
		ctx := context.Background()
		pool := &mock.Pool{}
		testee := tx.Postgres(pool)

		expectedErr := errors.New("fake")
		err := testee.ReadWrite(ctx, func(ctx context.Context) error {
			return testee.ReadWrite(ctx, func(context.Context) error { return expectedErr })
		})
		if !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}
		if len(pool.Began) != 1 || pool.Began[0].RolledBack != 1 || pool.Began[0].Committed != 0 {
			t.Errorf("unexpected transactions: %+v", pool.Began)
		}
	})
}

func TestNone(t *testing.T) {
	ctx := context.Background()
	testee := tx.None()

	for _, run := range []func(context.Context, func(context.Context) error) error{
		testee.ReadOnly, testee.ReadWrite,
	} {
		expectedErr := errors.New("fake")
		err := run(ctx, func(ctx context.Context) error {
			if _, ok := tx.FromContext(ctx); ok {
				t.Error("transaction is carried")
			}
			return expectedErr
		})
		if !errors.Is(err, expectedErr) {
			t.Errorf("unexpected error: %v", err)
		}
	}
}

package testdb

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/b87/testdb-kit/database"
)

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()

	t.Run("returns nil when the worker succeeds", func(t *testing.T) {
		called := false
		err := run(ctx, "op", func(ctx context.Context) error {
			called = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("returns the worker error unchanged", func(t *testing.T) {
		want := database.NewDropDatabaseError("boom", nil)
		err := run(ctx, "op", func(ctx context.Context) error {
			return want
		})
		assert.Same(t, want, err)
	})

	t.Run("reports a panic as a bridge error", func(t *testing.T) {
		err := run(ctx, "provision", func(ctx context.Context) error {
			panic("driver exploded")
		})
		require.Error(t, err)
		assert.Equal(t, database.ErrCodeBridgeExecutionFailed, database.GetErrorCode(err))
		assert.Contains(t, err.Error(), "driver exploded")

		var dbErr *database.DBError
		require.ErrorAs(t, err, &dbErr)
		assert.Equal(t, "provision", dbErr.Operation)
		assert.NotEmpty(t, dbErr.Context["stack"])
	})

	t.Run("reports a worker that never returns as a bridge error", func(t *testing.T) {
		returned := make(chan error, 1)
		go func() {
			returned <- run(ctx, "teardown", func(ctx context.Context) error {
				runtime.Goexit()
				return nil
			})
		}()

		select {
		case err := <-returned:
			assert.Equal(t, database.ErrCodeBridgeExecutionFailed, database.GetErrorCode(err))
			assert.ErrorIs(t, err, errNotCompleted)
		case <-time.After(5 * time.Second):
			t.Fatal("run did not return to its caller")
		}
	})

	t.Run("passes cancellation through to the worker", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := run(cctx, "op", func(ctx context.Context) error {
			return ctx.Err()
		})
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

package testdb

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/b87/testdb-kit/database"
)

// errNotCompleted is reported when the worker goroutine exits without
// returning, e.g. through runtime.Goexit.
var errNotCompleted = errors.New("worker exited before completing")

// outcome is what the worker goroutine reports back to run.
type outcome struct {
	err       error
	completed bool
}

// run executes fn on a dedicated goroutine with a context derived from ctx
// and blocks until it finishes. A panic or an early exit of the worker is
// reported as a bridge execution error; any other error is returned as is.
//
// errgroup re-raises a Goexit of its own goroutines in Wait, so the worker
// runs outside the group and reports over a channel.
func run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		done := make(chan outcome, 1)
		go func() {
			var out outcome
			defer func() {
				if r := recover(); r != nil {
					out.err = database.NewBridgeExecutionError(fmt.Sprintf("%s panicked", operation), fmt.Errorf("%v", r)).
						WithOperation(operation).
						WithContext("stack", string(debug.Stack()))
				}
				done <- out
			}()

			out.err = fn(gctx)
			out.completed = true
		}()

		out := <-done
		if out.err == nil && !out.completed {
			return database.NewBridgeExecutionError(fmt.Sprintf("%s did not complete", operation), errNotCompleted).
				WithOperation(operation)
		}
		return out.err
	})

	return g.Wait()
}

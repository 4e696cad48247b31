// Package testcontext provides a function to obtain a [context.Context] in a test.
package testcontext

import (
	"context"
	"testing"
	"time"
)

// ForTB returns a [context.Context] that is canceled
// 10 seconds before the test deadline
// or when the test's Cleanup functions run,
// whichever comes first. If the test has no deadline,
// the context is never canceled.
func ForTB(tb testing.TB) context.Context {
	ctx := context.Background()
	deadline, ok := tbDeadline(tb)
	if !ok {
		return ctx
	}
	ctx, cancel := context.WithDeadline(ctx, deadline.Add(-10*time.Second))
	tb.Cleanup(cancel)
	return ctx
}

func tbDeadline(tb testing.TB) (deadline time.Time, ok bool) {
	d, ok := tb.(deadliner)
	if !ok {
		return time.Time{}, false
	}
	return d.Deadline()
}

type deadliner interface {
	Deadline() (deadline time.Time, ok bool)
}

var _ deadliner = (*testing.T)(nil)

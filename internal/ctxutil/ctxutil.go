// Package ctxutil composes the caller's context with the core's
// internal per-transaction cancellation context, so a SIGINT observed
// at the CLI boundary reaches in-flight Fetcher downloads and solver
// phase boundaries without every call site threading two contexts.
package ctxutil

import (
	"context"

	"github.com/sdboyer/constext"
)

// Transaction holds the cancellation context for one reconciliation and
// exposes a Cancel func for a signal handler to call.
type Transaction struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTransaction composes parent (the caller's context, e.g. from a CLI
// command) with a fresh cancellable context, per the Cancellation model
// in the concurrency design: the user-interrupt flag and the caller's
// context both terminate any derived context.
func NewTransaction(parent context.Context) *Transaction {
	internal, cancel := context.WithCancel(context.Background())
	composed, _ := constext.Cons(parent, internal)
	return &Transaction{ctx: composed, cancel: cancel}
}

// Context returns the composed context to pass to Fetcher tasks and
// solver phase boundaries.
func (t *Transaction) Context() context.Context { return t.ctx }

// Cancel sets the cancellation flag observed at the next suspension
// point (Fetcher task boundary, or between Solver Driver phases).
func (t *Transaction) Cancel() { t.cancel() }

// Cancelled reports whether the transaction's context has been
// cancelled, for phase-boundary checks that cannot use select.
func Cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Package memeffector provides an in-memory Effector for tests: it
// records every action instead of touching the filesystem, and can be
// configured to fail on a chosen action to exercise fail-fast abort.
package memeffector

import (
	"context"
	"fmt"

	"github.com/AOSC-Dev/omakase/internal/errs"
	"github.com/AOSC-Dev/omakase/internal/plan"
)

// Fake records every Apply call in order.
type Fake struct {
	Applied []plan.Action
	// FailAt, if >= 0, makes the call at that index (0-based, counting
	// only calls actually reached) return an error instead of recording.
	FailAt int
}

// New returns a Fake that never fails.
func New() *Fake { return &Fake{FailAt: -1} }

func (f *Fake) Apply(_ context.Context, action plan.Action) error {
	if f.FailAt == len(f.Applied) {
		return errs.New(errs.KindEffectorFailure, fmt.Sprintf("simulated failure on %s", action), nil)
	}
	f.Applied = append(f.Applied, action)
	return nil
}

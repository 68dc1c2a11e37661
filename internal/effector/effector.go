// Package effector defines the contract between the core and whatever
// actually touches the filesystem to apply a resolved plan.
package effector

import (
	"context"

	"github.com/AOSC-Dev/omakase/internal/plan"
)

// Effector applies one action. The core treats it as synchronous and
// fail-fast: the first error aborts the remaining plan, and no
// compensating rollback is attempted by the core itself.
type Effector interface {
	Apply(ctx context.Context, action plan.Action) error
}

// Package proc implements an Effector that shells out to an external
// installer binary, one invocation per action.
package proc

import (
	"context"
	"os/exec"

	"github.com/AOSC-Dev/omakase/internal/errs"
	"github.com/AOSC-Dev/omakase/internal/plan"
)

// Effector invokes Binary once per action, passing the verb and
// package reference as positional arguments
// (e.g. "installer-binary install foo 2.0").
type Effector struct {
	Binary string
	// ExtraArgs is prepended before the verb on every invocation, for
	// installer binaries that need a standing flag such as "--root".
	ExtraArgs []string
}

// New returns an Effector that shells out to binary.
func New(binary string, extraArgs ...string) *Effector {
	return &Effector{Binary: binary, ExtraArgs: extraArgs}
}

func (e *Effector) Apply(ctx context.Context, action plan.Action) error {
	args := append(append([]string(nil), e.ExtraArgs...), argsFor(action)...)
	cmd := exec.CommandContext(ctx, e.Binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errs.New(errs.KindEffectorFailure,
			"applying "+action.String()+": "+string(out), err)
	}
	return nil
}

func argsFor(action plan.Action) []string {
	switch action.Verb {
	case plan.VerbRemove:
		return []string{string(action.Verb), action.Name, action.From.Version.String()}
	default:
		return []string{string(action.Verb), action.Name, action.To.Version.String()}
	}
}

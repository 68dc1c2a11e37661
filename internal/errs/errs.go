// Package errs defines the error kinds the core surfaces to its callers,
// per the error handling design: Network, Integrity, MetadataParse,
// Unsatisfiable, PlannerConflict, EffectorFailure, Cancelled.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a core error so callers can branch on it without
// string matching. It also determines the process exit code at the CLI
// boundary.
type Kind uint8

const (
	// KindNetwork is a transient transport failure that survived the
	// Fetcher's retry ceiling.
	KindNetwork Kind = iota + 1
	// KindIntegrity is a hash or signature mismatch. Never retried.
	KindIntegrity
	// KindMetadataParse is a malformed index or release manifest.
	KindMetadataParse
	// KindUnsatisfiable means the blueprint has no feasible assignment.
	KindUnsatisfiable
	// KindPlannerConflict is a dependency cycle broken during ordering.
	// Not fatal; carried as a warning alongside a successful plan.
	KindPlannerConflict
	// KindEffectorFailure is an action rejected by the external effector.
	KindEffectorFailure
	// KindCancelled is a user interrupt observed at a suspension point.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindIntegrity:
		return "integrity"
	case KindMetadataParse:
		return "metadata-parse"
	case KindUnsatisfiable:
		return "unsatisfiable"
	case KindPlannerConflict:
		return "planner-conflict"
	case KindEffectorFailure:
		return "effector-failure"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged error that still composes with github.com/pkg/errors'
// Wrap/Cause chain.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error, wrapping cause (if non-nil) with a
// stack trace via pkg/errors so diagnostics retain a trace to the
// original failure site.
func New(kind Kind, msg string, cause error) *Error {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// As reports whether err (or any error in its chain) is an *Error of the
// given Kind.
func As(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// ExitCode maps a Kind to the CLI's process exit codes:
// 0 success, 1 UNSAT, 2 I/O or verification failure, 3 user cancellation.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if !errors.As(err, &e) {
		return 2
	}
	switch e.Kind {
	case KindUnsatisfiable:
		return 1
	case KindCancelled:
		return 3
	case KindNetwork, KindIntegrity, KindMetadataParse, KindEffectorFailure:
		return 2
	default:
		return 2
	}
}

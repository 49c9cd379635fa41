// Package errext decorates errors with the metadata the outer layers
// need: a JSON-RPC error code for the dispatcher boundary, a process exit
// code for the CLI, and an optional human hint. The decorations ride
// along the wrapped error chain and are recovered with errors.As, so any
// layer can annotate without disturbing the error text.
package errext

import (
	"errors"

	"go.perlls.io/perlls/errext/exitcodes"
)

// HasExitCode is implemented by errors that carry a process exit code.
type HasExitCode interface {
	error
	ExitCode() exitcodes.ExitCode
}

// HasRPCCode is implemented by errors that carry a JSON-RPC error code.
type HasRPCCode interface {
	error
	RPCCode() int
}

// HasHint is implemented by errors that carry an extra user hint.
type HasHint interface {
	error
	Hint() string
}

// WithExitCodeIfNone wraps err with an exit code unless one is already
// present somewhere in its chain. Returns nil for a nil err.
func WithExitCodeIfNone(err error, code exitcodes.ExitCode) error {
	if err == nil {
		return nil
	}
	var ecerr HasExitCode
	if errors.As(err, &ecerr) {
		return err
	}
	return withExitCode{err, code}
}

// WithRPCCode wraps err with a JSON-RPC error code, replacing any code
// set deeper in the chain (the outermost annotation wins).
func WithRPCCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return withRPCCode{err, code}
}

// WithHint wraps err with a hint. Nested hints compose as
// "new hint (old hint)".
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	var hinterr HasHint
	if errors.As(err, &hinterr) {
		hint = hint + " (" + hinterr.Hint() + ")"
	}
	return withHint{err, hint}
}

type withExitCode struct {
	error
	code exitcodes.ExitCode
}

func (w withExitCode) Unwrap() error               { return w.error }
func (w withExitCode) ExitCode() exitcodes.ExitCode { return w.code }

type withRPCCode struct {
	error
	code int
}

func (w withRPCCode) Unwrap() error { return w.error }
func (w withRPCCode) RPCCode() int  { return w.code }

type withHint struct {
	error
	hint string
}

func (w withHint) Unwrap() error { return w.error }
func (w withHint) Hint() string  { return w.hint }

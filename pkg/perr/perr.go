// Package perr defines picotin's error taxonomy and a small wrapping
// helper: a typed error that carries enough information for calling code
// to act on the failure kind while still chaining a human-readable story
// of what was being attempted.
package perr

import "fmt"

// Kind classifies what went wrong, independent of which component raised
// the error.
type Kind int

const (
	// InvalidInput covers malformed names (containing '/') and bad numeric
	// config (a non-finite CPU multiplier).
	InvalidInput Kind = iota
	// IOFailure covers filesystem operations against the runtime directory
	// or /proc/<pid>/ns/net.
	IOFailure
	// NotFound covers a referenced container's directory or init_pid being
	// absent.
	NotFound
	// Malformed covers init_pid being present but not a decimal integer.
	Malformed
	// KernelReject covers unshare, setns, cgroup writes, or netlink calls
	// rejected by the kernel.
	KernelReject
	// SpawnFailure covers the child failing to start, or the pre-unfreeze
	// hook returning an error.
	SpawnFailure
	// WaitFailure covers the child's exit status failing to be collected.
	WaitFailure
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case IOFailure:
		return "IOFailure"
	case NotFound:
		return "NotFound"
	case Malformed:
		return "Malformed"
	case KernelReject:
		return "KernelReject"
	case SpawnFailure:
		return "SpawnFailure"
	case WaitFailure:
		return "WaitFailure"
	default:
		return "Unknown"
	}
}

// Error is picotin's wrapped error type. Every boundary in the engine
// (Registry, Cgroup Manager, Namespace Planner, Lifecycle, Linker) wraps the
// error it returns with Wrap so that by the time it reaches main, the chain
// reads as a sequence of short context strings ending in the root cause.
type Error struct {
	Kind    Kind
	Context string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Context)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap builds a new *Error. If err is nil, Wrap returns nil, so callers
// can write `return perr.Wrap(..., err)` unconditionally.
func Wrap(kind Kind, context string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Context: context, Cause: err}
}

// New builds an *Error with no wrapped cause, for cases where picotin itself
// detects the failure rather than the kernel or filesystem.
func New(kind Kind, context string) error {
	return &Error{Kind: kind, Context: context}
}

// Is reports whether err (or anything in its chain) is a *Error of the
// given Kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if pe, ok := err.(*Error); ok {
			if pe.Kind == kind {
				return true
			}
			err = pe.Cause
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Chain renders the full context chain as a human-readable multi-line
// message, without the Rust-style Debug formatting the stack-trace path
// uses (see main.go's use of go-errors/errors for that).
func Chain(err error) string {
	var out string
	for err != nil {
		if pe, ok := err.(*Error); ok {
			if out != "" {
				out += ": "
			}
			out += fmt.Sprintf("%s: %s", pe.Kind, pe.Context)
			err = pe.Cause
			continue
		}
		if out != "" {
			out += ": "
		}
		out += err.Error()
		break
	}
	return out
}

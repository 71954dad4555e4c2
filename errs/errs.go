// Package errs defines the compact error taxonomy shared by every
// component of the reactor core, so that a socket, a server, or a DNS
// lookup all fail through the same small set of kinds.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure into one of the categories the core
// distinguishes on. Everything that doesn't fit a more specific bucket
// is Other.
type Kind int

const (
	// Success is the zero value: no error occurred.
	Success Kind = iota
	// Eof marks an orderly peer shutdown (TCP read returning zero bytes).
	Eof
	// Timeout marks a connect or send-buffer timer firing.
	Timeout
	// Refused marks a connection actively refused by the peer.
	Refused
	// Dns marks a name-resolution failure.
	Dns
	// Shutdown marks a self-initiated teardown (server gone, user close).
	Shutdown
	// Other is everything else: unmapped errno, logic errors, panics.
	Other
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Eof:
		return "eof"
	case Timeout:
		return "timeout"
	case Refused:
		return "refused"
	case Dns:
		return "dns"
	case Shutdown:
		return "shutdown"
	default:
		return "other"
	}
}

// Error is the error type carried on every callback in the core. It is
// truthy (non-nil, Kind != Success) whenever something went wrong, and
// retains the original cause for %+v stack-trace formatting via
// github.com/pkg/errors.
type Error struct {
	Kind Kind
	Err  error
}

// New builds an Error of the given kind wrapping msg.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// Wrap builds an Error of the given kind wrapping an existing cause,
// preserving a stack trace for unexpected (Other) failures.
func Wrap(kind Kind, cause error, msg string) *Error {
	if cause == nil {
		return New(kind, msg)
	}
	return &Error{Kind: kind, Err: errors.Wrap(cause, msg)}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is(err, errs.ErrTimeout) work by comparing the Kind
// sentinel values below against an *Error's Kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Truthy reports whether e represents an actual failure (mirrors the
// original SocketException's bool conversion).
func (e *Error) Truthy() bool {
	return e != nil && e.Kind != Success
}

// Sentinel values usable with errors.Is for kind-only comparisons.
var (
	ErrEOF      = &Error{Kind: Eof}
	ErrTimeout  = &Error{Kind: Timeout}
	ErrRefused  = &Error{Kind: Refused}
	ErrDNS      = &Error{Kind: Dns}
	ErrShutdown = &Error{Kind: Shutdown}
	ErrOther    = &Error{Kind: Other}
)

package core

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies adapter errors
type ErrorKind int

// Error kinds.
const (
	KindUnknown ErrorKind = iota
	KindConnection
	KindProtocol
	KindFault
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "backend unavailable"
	case KindProtocol:
		return "protocol error"
	case KindFault:
		return "rpc fault"
	case KindValidation:
		return "validation error"
	default:
		return "unknown error"
	}
}

// Error is the uniform error returned by every backend adapter
type Error struct {
	Kind    ErrorKind
	Op      string // operation, e.g. "list torrents"
	Backend string // instance name, filled in by the facade
	Code    int    // fault code for KindFault
	Message string
	Raw     []byte // offending payload for KindProtocol
	Err     error
}

// Predefined errors, matched by kind through errors.Is.
var (
	ErrBackendUnavailable = &Error{Kind: KindConnection, Message: "backend unavailable"}
	ErrProtocol           = &Error{Kind: KindProtocol, Message: "malformed payload"}
	ErrFault              = &Error{Kind: KindFault, Message: "rpc fault"}
	ErrValidation         = &Error{Kind: KindValidation, Message: "invalid input"}
)

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Backend != "" {
		msg = e.Backend + ": " + msg
	}
	if e.Op != "" {
		msg += " (" + e.Op + ")"
	}
	if e.Kind == KindFault {
		msg += fmt.Sprintf(" code %d", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// IsRetryable returns true if a later poll may succeed without user action
func (e *Error) IsRetryable() bool {
	return e.Kind == KindConnection
}

// NewConnectionError wraps a network failure.
func NewConnectionError(op string, err error) *Error {
	return &Error{Kind: KindConnection, Op: op, Err: err}
}

// NewProtocolError reports a malformed or unexpected payload; raw is kept for diagnosis.
func NewProtocolError(op string, raw []byte, err error) *Error {
	return &Error{Kind: KindProtocol, Op: op, Raw: raw, Err: err}
}

// NewFault reports an application error returned by the daemon.
func NewFault(op string, code int, message string) *Error {
	return &Error{Kind: KindFault, Op: op, Code: code, Message: message}
}

// NewValidationError reports bad caller input.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether err is a retryable adapter error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsRetryable()
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Classify translates any error into the taxonomy and stamps the backend name.
// Context cancellation and network errors become connection errors; anything
// else unclassified is treated as a protocol error. Each member of a joined
// error is classified on its own.
func Classify(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		members := joined.Unwrap()
		classified := make([]error, len(members))
		for i, m := range members {
			classified[i] = Classify(backend, op, m)
		}
		return errors.Join(classified...)
	}

	var e *Error
	if errors.As(err, &e) {
		if isSentinel(e) {
			return &Error{Kind: e.Kind, Backend: backend, Op: op, Err: err}
		}
		if e.Backend == "" {
			e.Backend = backend
		}
		if e.Op == "" {
			e.Op = op
		}
		return err
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return &Error{Kind: KindConnection, Backend: backend, Op: op, Err: err}
	default:
		return &Error{Kind: KindProtocol, Backend: backend, Op: op, Err: err}
	}
}

func isSentinel(e *Error) bool {
	return e == ErrBackendUnavailable || e == ErrProtocol || e == ErrFault || e == ErrValidation
}

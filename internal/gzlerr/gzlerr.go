// Package gzlerr provides the single wrapped-error type used across the
// runtime: every failure surfaced by the loader, engine, and driver carries
// one Kind classifying what went wrong, plus an optional wrapped cause for
// errors.Is/errors.As chains.
package gzlerr

import (
	"errors"
	"fmt"
)

// Kind classifies a terminal cause. Unlike bitcode.ErrorBits, which
// OR-combines several simultaneously-raised decoder flags, a Kind names
// exactly one thing that stopped the operation.
type Kind int

const (
	KindIO Kind = iota
	KindCorruptGrammar
	KindLexical
	KindSyntactic
	KindResourceLimit
	KindHardEOF
	KindPrematureEOF
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "IO"
	case KindCorruptGrammar:
		return "CORRUPT_GRAMMAR"
	case KindLexical:
		return "LEXICAL"
	case KindSyntactic:
		return "SYNTACTIC"
	case KindResourceLimit:
		return "RESOURCE_LIMIT"
	case KindHardEOF:
		return "HARD_EOF"
	case KindPrematureEOF:
		return "PREMATURE_EOF"
	case KindCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the runtime's error type: a Kind, a message meant for logs, and
// an optional human-facing message meant for a parse-tool's stderr or a
// service response body. It wraps an underlying cause when one exists.
type Error struct {
	kind  Kind
	msg   string
	human string
	wrap  error
}

func (e *Error) Error() string {
	return e.msg
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// HumanMessage returns the message appropriate to show an end user (a CLI
// operator or an API client), falling back to the technical message if none
// was set.
func (e *Error) HumanMessage() string {
	if e.human == "" {
		return e.msg
	}
	return e.human
}

// Unwrap gives the error that this Error wraps, if any.
func (e *Error) Unwrap() error {
	return e.wrap
}

// New returns an Error of the given kind with a technical message.
func New(kind Kind, technical string) error {
	return &Error{kind: kind, msg: technical}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, a ...interface{}) error {
	return New(kind, fmt.Sprintf(format, a...))
}

// Wrap returns an Error of the given kind, wrapping cause, with a technical
// message. If technical is empty, a message is derived from cause.
func Wrap(cause error, kind Kind, technical string) error {
	if technical == "" && cause != nil {
		technical = cause.Error()
	}
	return &Error{kind: kind, msg: technical, wrap: cause}
}

// Wrapf is Wrap with fmt.Sprintf-style formatting.
func Wrapf(cause error, kind Kind, format string, a ...interface{}) error {
	return Wrap(cause, kind, fmt.Sprintf(format, a...))
}

// WithHuman attaches a human-facing message to err, if err is (or wraps) a
// *Error. Otherwise it returns err unchanged.
func WithHuman(err error, human string) error {
	if e, ok := err.(*Error); ok {
		e.human = human
		return e
	}
	return err
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return 0, false
}

// Is reports whether err is (or wraps) a *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Package ioerrors defines the typed error taxonomy the playback core
// surfaces: ParseError, NotFound, FormatError, OutOfRange, Cancelled,
// CompositionError, DeviceError. Callers distinguish kinds with errors.As
// or errors.Is against the exported sentinel values.
package ioerrors

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy.
type Kind int

const (
	KindParse Kind = iota
	KindNotFound
	KindFormat
	KindOutOfRange
	KindCancelled
	KindComposition
	KindDevice
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "ParseError"
	case KindNotFound:
		return "NotFound"
	case KindFormat:
		return "FormatError"
	case KindOutOfRange:
		return "OutOfRange"
	case KindCancelled:
		return "Cancelled"
	case KindComposition:
		return "CompositionError"
	case KindDevice:
		return "DeviceError"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a Kind and the module/context that
// raised it. It supports errors.Is/errors.As against both the sentinel
// Kind values below and the wrapped cause.
type Error struct {
	Kind    Kind
	Module  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Kind, e.Module, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Module, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports equality by Kind so errors.Is(err, ErrNotFound) works
// against any *Error of that kind, regardless of module/message/cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel values for errors.Is comparisons; their Module/Message/Cause
// fields are irrelevant to the comparison (see Error.Is).
var (
	ErrParse       = &Error{Kind: KindParse}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrFormat      = &Error{Kind: KindFormat}
	ErrOutOfRange  = &Error{Kind: KindOutOfRange}
	ErrCancelled   = &Error{Kind: KindCancelled}
	ErrComposition = &Error{Kind: KindComposition}
	ErrDevice      = &Error{Kind: KindDevice}
)

// New constructs an *Error of the given kind.
func New(kind Kind, module, message string) *Error {
	return &Error{Kind: kind, Module: module, Message: message}
}

// Wrap constructs an *Error of the given kind around cause.
func Wrap(kind Kind, module, message string, cause error) *Error {
	return &Error{Kind: kind, Module: module, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, and
// reports whether one was found.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsCancelled reports whether err is a Cancelled-kind Error.
func IsCancelled(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindCancelled
}

// IsOutOfRange reports whether err is an OutOfRange-kind Error.
func IsOutOfRange(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindOutOfRange
}

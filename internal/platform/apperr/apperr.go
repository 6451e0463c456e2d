// Package apperr defines the error kinds shared by the triage domain packages.
// Each kind carries its own propagation policy: Generator and Duplicate are
// recovered locally, Input and ValidationBlock surface as user-facing text,
// NotFound surfaces as a terse denial.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and presentation.
type Kind string

const (
	KindInput           Kind = "input"
	KindNotFound        Kind = "not_found"
	KindGenerator       Kind = "generator"
	KindValidationBlock Kind = "validation_block"
	KindDuplicate       Kind = "duplicate"
	KindConflict        Kind = "conflict"
	KindInternal        Kind = "internal"
)

// Error is the typed error returned across domain package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrInput           = &Error{Kind: KindInput}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrGenerator       = &Error{Kind: KindGenerator}
	ErrValidationBlock = &Error{Kind: KindValidationBlock}
	ErrDuplicate       = &Error{Kind: KindDuplicate}
	ErrConflict        = &Error{Kind: KindConflict}
)

func Input(msg string) *Error {
	return &Error{Kind: KindInput, Message: msg}
}

func Inputf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInput, Message: fmt.Sprintf(format, args...)}
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

func Generator(op string, err error) *Error {
	return &Error{Kind: KindGenerator, Message: op + " failed", Err: err}
}

func ValidationBlock(msg string) *Error {
	return &Error{Kind: KindValidationBlock, Message: msg}
}

func Duplicate(msg string) *Error {
	return &Error{Kind: KindDuplicate, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Wrap marks err as internal unless it already carries a kind.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage returns the text safe to show an end user for err.
func UserMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return "Something went wrong on our side. Please try again in a moment."
	}
	switch ae.Kind {
	case KindNotFound:
		return "Not found."
	case KindInput, KindValidationBlock, KindConflict:
		return ae.Message
	default:
		return "Something went wrong on our side. Please try again in a moment."
	}
}

// HTTPStatus maps an error kind onto a response code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindDuplicate:
		return http.StatusConflict
	case KindValidationBlock:
		return http.StatusUnprocessableEntity
	case KindGenerator:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

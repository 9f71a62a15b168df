// Package apperr defines the error kinds shared by the sync service and
// the transport layer, each carrying the wire status string and numeric
// code it is reported with.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies a class of failure. The string value is what goes on
// the wire in the response status field.
type Kind string

const (
	Validation       Kind = "ValidationError"
	NotFound         Kind = "NotFoundError"
	Forbidden        Kind = "ForbiddenError"
	EmptyMessage     Kind = "EmptyMessageError"
	MalformedMessage Kind = "MalformedMessageError"
	NotAcceptable    Kind = "NotAcceptableError"
	Internal         Kind = "InternalError"

	// Generic is what unknown error types degrade to at the transport
	// boundary.
	Generic Kind = "ERROR"
)

var codes = map[Kind]int{
	Validation:       400,
	NotFound:         404,
	Forbidden:        403,
	EmptyMessage:     422,
	MalformedMessage: 400,
	NotAcceptable:    406,
	Internal:         500,
	Generic:          400,
}

// Error is a failure with a declared kind. Fields carries field-level
// detail for validation errors.
type Error struct {
	Kind   Kind
	Msg    string
	Fields map[string]string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// New builds an error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Invalid builds a ValidationError with detail attached to one field.
func Invalid(field, msg string) error {
	return &Error{
		Kind:   Validation,
		Msg:    fmt.Sprintf("%s: %s", field, msg),
		Fields: map[string]string{field: msg},
	}
}

// KindOf reports the kind of err, walking the wrap chain. Unknown error
// types map to Generic per the transport degradation rule.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Generic
}

// CodeOf reports the numeric wire code for err.
func CodeOf(err error) int {
	return codes[KindOf(err)]
}

// Is reports whether err has the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

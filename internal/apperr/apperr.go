// Package apperr classifies failures so that command replies, websocket error
// events and HTTP status codes can be derived from one place.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	Unknown Kind = iota
	// Validation marks malformed or missing input. Storage is never touched.
	Validation
	// Conflict marks a unique-constraint violation: name taken, already a member, already in a call.
	Conflict
	NotFound
	Authorization
	// Transient marks an unavailable storage collaborator. Callers may retry.
	Transient
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not_found"
	case Authorization:
		return "authorization"
	case Transient:
		return "transient"
	}
	return "unknown"
}

// HTTPStatus returns the status code a handler should answer with.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case Authorization:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg == "" {
			return e.Err.Error()
		}
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-facing text of err. Only errors built with New
// carry text meant for users; wrapped and unclassified errors collapse to a
// generic message so storage internals do not leak.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Err == nil && e.Msg != "" {
		return e.Msg
	}
	return Generic
}

// Generic is the reply for failures the user cannot act on.
const Generic = "Something went wrong, try again"

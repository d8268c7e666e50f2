package apperror

import (
	"errors"
	"strings"
)

type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindUpstream     Kind = "upstream"
	KindTimeout      Kind = "timeout"
	KindInternal     Kind = "internal"
)

// Error is a categorized error. Kind drives the HTTP status, Cause keeps the
// underlying provider or database error reachable through errors.Is/As.
type Error struct {
	Kind    Kind
	Message string
	Details []string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if len(e.Details) > 0 {
		msg += ": " + strings.Join(e.Details, "; ")
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by kind and message so that a wrapped copy
// carrying a cause still compares equal to the sentinel it was built from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// Wrap returns a copy of the sentinel with a cause attached.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Details: e.Details, Cause: cause}
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func NotFound(message string) *Error     { return New(KindNotFound, message) }
func InvalidState(message string) *Error { return New(KindInvalidState, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func Timeout(message string) *Error      { return New(KindTimeout, message) }

func Upstream(message string, cause error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Cause: cause}
}

func Validation(message string, details ...string) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Collector accumulates validation problems so all of them are reported at once.
type Collector struct {
	problems []string
}

func (c *Collector) Add(problem string) {
	c.problems = append(c.problems, problem)
}

func (c *Collector) Check(ok bool, problem string) {
	if !ok {
		c.Add(problem)
	}
}

func (c *Collector) Err(message string) error {
	if len(c.problems) == 0 {
		return nil
	}
	return Validation(message, c.problems...)
}

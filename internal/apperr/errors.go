// Package apperr defines the error taxonomy shared by the booking core.
// Every caller-facing failure names the specific constraint and its concrete
// bound so clients never see a generic error.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindValidation: bad input shape or format. Never retried automatically.
	KindValidation Kind = iota
	// KindRuleViolation: a business rule failed (duration, business hours,
	// weekend policy, advance window).
	KindRuleViolation
	// KindConflict: a scheduling overlap was detected. Callers should
	// re-fetch slots and pick a different time rather than retry as-is.
	KindConflict
	// KindNotFound: provider, appointment or availability window missing.
	KindNotFound
	// KindForbidden: caller lacks the relationship or role to act.
	KindForbidden
	// KindImmutableState: attempted mutation of a terminal appointment.
	KindImmutableState
	// KindUnavailable: underlying store failure. Safe to retry reads only.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRuleViolation:
		return "rule_violation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindImmutableState:
		return "immutable_state"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a taxonomy kind to an underlying error while keeping the
// cause reachable via errors.Unwrap.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func RuleViolation(format string, args ...any) *Error {
	return New(KindRuleViolation, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

func ImmutableState(format string, args ...any) *Error {
	return New(KindImmutableState, format, args...)
}

func Unavailable(cause error) *Error {
	return Wrap(KindUnavailable, cause, "storage unavailable")
}

// KindOf reports the taxonomy kind of err, or KindUnavailable for errors
// that did not originate in the booking core.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

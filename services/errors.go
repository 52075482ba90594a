package services

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the engine matches exactly one of these
// through errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrGateway            = errors.New("payment gateway error")
	ErrMalformedCallback  = errors.New("malformed callback")
	ErrUnmatchedCallback  = errors.New("unmatched callback")
	ErrTransactionAborted = errors.New("transaction aborted")
)

// Specific reasons, also matchable through errors.Is.
var (
	ErrDuplicatePending      = errors.New("a pending payment already exists for this period")
	ErrPeriodAlreadyPaid     = errors.New("this period has already been paid")
	ErrUnitNotVacant         = errors.New("unit is not vacant")
	ErrNoTenant              = errors.New("unit has no tenant")
	ErrTenantAccountRequired = errors.New("tenant account does not exist")
	ErrMissingReceipt        = errors.New("successful callback has no receipt number")
	ErrReferenceMismatch     = errors.New("callback reference does not match payment")
)

type Error struct {
	Kind    error
	Reason  error
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Reason != nil {
		msg = e.Reason.Error()
	}
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return target == e.Kind || (e.Reason != nil && target == e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind, reason error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind error, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the category of err, or nil for errors the engine did not classify.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrGateway, ErrMalformedCallback, ErrUnmatchedCallback, ErrTransactionAborted} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Package errs provides the error taxonomy of the order lifecycle engine.
//
// Every rejection carries one of the sentinel kinds below plus a stable,
// machine-readable reason code. Callers classify errors with errors.Is
// against the sentinel and read the code with CodeOf:
//
//	if errors.Is(err, errs.ErrConflict) && errs.CodeOf(err) == errs.CodeAlreadyProcessing {
//	    // wait before retrying
//	}
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrPriceMismatch = errors.New("price mismatch")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrUpstream      = errors.New("upstream failure")
	ErrInternal      = errors.New("internal error")
)

// Stable reason codes.
const (
	CodeInvalidInput        = "invalid_input"
	CodeItemUnavailable     = "item_unavailable"
	CodeDeliveryNotAllowed  = "delivery_not_allowed"
	CodeSubtotalMismatch    = "subtotal_mismatch"
	CodeTotalMismatch       = "total_mismatch"
	CodeUnauthorized        = "unauthorized"
	CodeMissingCapability   = "missing_capability"
	CodeWrongBusiness       = "wrong_business"
	CodeOrderNotFound       = "order_not_found"
	CodeBusinessNotFound    = "business_not_found"
	CodeTabNotFound         = "tab_not_found"
	CodeInvalidTransition   = "invalid_transition"
	CodeStatusChanged       = "status_changed"
	CodeAlreadyProcessing   = "already_processing"
	CodeBusinessClosed      = "business_closed"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeInternal            = "internal"
)

// Error is a classified failure. Kind is one of the sentinel errors above.
type Error struct {
	Kind    error
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	b.WriteString(": ")
	b.WriteString(e.Code)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(" (cause: ")
		b.WriteString(e.Cause.Error())
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func New(kind error, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind error, code string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Cause: cause}
}

func Validation(code, format string, args ...any) *Error {
	return New(ErrValidation, code, fmt.Sprintf(format, args...))
}

func PriceMismatch(code string, claimed, expected fmt.Stringer) *Error {
	return New(ErrPriceMismatch, code, fmt.Sprintf("claimed %s, expected %s", claimed, expected))
}

func Forbidden(code, format string, args ...any) *Error {
	return New(ErrForbidden, code, fmt.Sprintf(format, args...))
}

func NotFound(code, id string) *Error {
	return New(ErrNotFound, code, id)
}

func Conflict(code, format string, args ...any) *Error {
	return New(ErrConflict, code, fmt.Sprintf(format, args...))
}

func Upstream(cause error) *Error {
	return Wrap(ErrUpstream, CodeUpstreamUnavailable, cause)
}

func Internal(cause error) *Error {
	return Wrap(ErrInternal, CodeInternal, cause)
}

// CodeOf returns the reason code of the first *Error in err's chain, or
// CodeInternal when err is not classified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// KindOf returns the sentinel kind of err, or ErrInternal when err is not classified.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrInternal
}

package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation          ErrorKind = "VALIDATION"
	KindUnsupportedProduct  ErrorKind = "UNSUPPORTED_PRODUCT"
	KindTokenInvalid        ErrorKind = "TOKEN_INVALID"
	KindQuoteExpired        ErrorKind = "QUOTE_EXPIRED"
	KindPaymentCredential   ErrorKind = "PAYMENT_CREDENTIAL"
	KindPaymentDeclined     ErrorKind = "PAYMENT_DECLINED"
	KindIdempotencyConflict ErrorKind = "IDEMPOTENCY_CONFLICT"
	KindNotFound            ErrorKind = "NOT_FOUND"
)

// Error is the single error type raised by the booking core. Callers match it
// with errors.Is against the sentinels below; only the kind is compared.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrUnsupportedProduct  = &Error{Kind: KindUnsupportedProduct}
	ErrTokenInvalid        = &Error{Kind: KindTokenInvalid}
	ErrQuoteExpired        = &Error{Kind: KindQuoteExpired}
	ErrPaymentCredential   = &Error{Kind: KindPaymentCredential}
	ErrPaymentDeclined     = &Error{Kind: KindPaymentDeclined}
	ErrIdempotencyConflict = &Error{Kind: KindIdempotencyConflict}
	ErrNotFound            = &Error{Kind: KindNotFound}
)

func NewError(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validationf(format string, args ...any) error {
	return NewError(KindValidation, format, args...)
}

// KindOf returns the kind of err, or "" when err is not a domain error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

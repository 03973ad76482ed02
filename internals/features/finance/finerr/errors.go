// Package finerr holds the error taxonomy shared by the fee invoicing and
// payment reconciliation packages.
package finerr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a malformed invoice or payment request. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrSignatureInvalid is returned when a provider callback cannot be authenticated.
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// ErrMalformedPayload is returned for callback bodies that cannot be parsed.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrUnknownPayment is returned when a callback references a payment the system never initiated.
	ErrUnknownPayment = errors.New("unknown payment")

	// ErrInvoiceClosed is returned when a payment is applied to an invoice that is already paid.
	ErrInvoiceClosed = errors.New("invoice closed")

	// ErrTransient marks infrastructure failures (lock timeout, store unavailable) that are safe to retry.
	ErrTransient = errors.New("transient failure")

	// ErrPaymentNotReady is returned when a confirmation arrives before the payment
	// reached pending_confirmation. It is transient.
	ErrPaymentNotReady = fmt.Errorf("%w: payment not awaiting confirmation", ErrTransient)

	ErrDuplicatePayment    = errors.New("duplicate payment reference")
	ErrNotFound            = errors.New("not found")
	ErrProviderRejected    = errors.New("provider rejected payment")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrUnsupported         = errors.New("operation not supported by provider")
	ErrConfig              = errors.New("invalid configuration")
)

// ValidationError describes which field of a request was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrValidation) match any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

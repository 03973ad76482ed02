package helper

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
)

// StatusOf maps finance errors onto HTTP status codes.
func StatusOf(err error) int {
	var fe *fiber.Error
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, finerr.ErrValidation):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, finerr.ErrNotFound), errors.Is(err, finerr.ErrUnknownPayment):
		return fiber.StatusNotFound
	case errors.Is(err, finerr.ErrInvoiceClosed), errors.Is(err, finerr.ErrDuplicatePayment):
		return fiber.StatusConflict
	case errors.Is(err, finerr.ErrSignatureInvalid):
		return fiber.StatusUnauthorized
	case errors.Is(err, finerr.ErrMalformedPayload):
		return fiber.StatusBadRequest
	case errors.Is(err, finerr.ErrProviderRejected):
		return fiber.StatusPaymentRequired
	case errors.Is(err, finerr.ErrUnsupported):
		return fiber.StatusNotImplemented
	case errors.Is(err, finerr.ErrProviderUnavailable):
		return fiber.StatusBadGateway
	case errors.Is(err, finerr.ErrTransient):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// FromError writes err as the standard error envelope. Validation errors
// carry the offending field.
func FromError(c *fiber.Ctx, err error) error {
	status := StatusOf(err)

	var ve *finerr.ValidationError
	if errors.As(err, &ve) {
		return JsonValidationError(c, map[string][]string{ve.Field: {ve.Message}})
	}
	msg := err.Error()
	if status >= fiber.StatusInternalServerError && status != fiber.StatusServiceUnavailable && status != fiber.StatusBadGateway && status != fiber.StatusNotImplemented {
		// internal details stay in the logs
		msg = "internal server error"
	}
	return jsonErrorCode(c, status, ErrorCodeOf(err, status), msg)
}

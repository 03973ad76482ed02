// Package manual is the cash/bank-counter provider. Payments complete at
// initiation; there are no callbacks to verify.
package manual

import (
	"context"
	"net/http"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways"
	paymodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
)

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string { return paymodel.ProviderManual }

func (a *Adapter) Methods() []paymodel.PaymentMethod {
	return []paymodel.PaymentMethod{paymodel.PaymentMethodManual}
}

// Initiate settles immediately. The payment reference doubles as the
// external reference and provider transaction id.
func (a *Adapter) Initiate(_ context.Context, req gateways.InitiateRequest) (gateways.PendingPayment, error) {
	if req.PaymentRef == "" {
		return gateways.PendingPayment{}, finerr.NewValidationError("payment_reference", "is required")
	}
	return gateways.PendingPayment{
		PaymentRef:            req.PaymentRef,
		ExternalReference:     req.PaymentRef,
		ProviderTransactionID: req.PaymentRef,
		Status:                paymodel.PaymentStatusCompleted,
		CustomerMessage:       "payment recorded",
	}, nil
}

func (a *Adapter) NormalizeCallback(_ []byte, _ http.Header) (gateways.WebhookEvent, error) {
	return gateways.WebhookEvent{}, finerr.ErrUnsupported
}

func (a *Adapter) QueryStatus(_ context.Context, _ string) (gateways.StatusResult, error) {
	return gateways.StatusResult{}, finerr.ErrUnsupported
}

func (a *Adapter) Acknowledge(err error) gateways.Ack {
	if err != nil {
		return gateways.JSONAck(http.StatusNotFound, map[string]string{"message": "manual payments have no callbacks"})
	}
	return gateways.JSONAck(http.StatusOK, map[string]string{"message": "ok"})
}

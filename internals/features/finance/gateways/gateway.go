// Package gateways defines the provider-neutral contract every payment
// adapter implements and the registry the checkout and webhook paths use
// to pick one.
package gateways

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	paymodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
)

// Outcome is the normalized result a provider reports for a payment.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomePending is a non-final notification or status query result.
	OutcomePending Outcome = "pending"
)

func (o Outcome) Final() bool { return o == OutcomeSuccess || o == OutcomeFailure }

// InitiateRequest is what the checkout service hands an adapter once the
// payment row exists in the initiated state.
type InitiateRequest struct {
	PaymentRef    string
	InvoiceNumber string
	Amount        decimal.Decimal
	Currency      string
	PayerContact  string
	Description   string
}

// PendingPayment is the adapter's answer to Initiate. Status is completed
// only for synchronous methods.
type PendingPayment struct {
	PaymentRef        string
	ExternalReference string
	PromptRequired    bool
	Status            paymodel.PaymentStatus
	ClientSecret      string
	RedirectURL       string
	CustomerMessage   string
	// ProviderTransactionID is set when the provider settles synchronously.
	ProviderTransactionID string
}

// WebhookEvent is a provider callback after authentication and parsing.
type WebhookEvent struct {
	Provider              string
	EventType             string
	ExternalReference     string
	ProviderTransactionID string
	Outcome               Outcome
	// Amount is the confirmed amount; zero when the provider does not report one.
	Amount     decimal.Decimal
	Reason     string
	RawPayload json.RawMessage
	ReceivedAt time.Time
}

// StatusResult is the answer to a polling query.
type StatusResult struct {
	Outcome               Outcome
	ProviderTransactionID string
	Amount                decimal.Decimal
	Reason                string
}

// Ack is what the webhook endpoint writes back to the provider.
type Ack struct {
	Status      int
	ContentType string
	Body        []byte
}

// fallbackAck is sent when an ack body cannot be encoded.
var fallbackAck = []byte(`{"status":"error"}`)

// JSONAck encodes v as the ack body. Encoding failures degrade to a fixed
// body with the same status so the provider still gets an answer.
func JSONAck(status int, v any) Ack {
	b, err := sonic.Marshal(v)
	if err != nil {
		b = fallbackAck
	}
	return Ack{Status: status, ContentType: "application/json", Body: b}
}

// Initiator starts a payment with the provider.
type Initiator interface {
	Initiate(ctx context.Context, req InitiateRequest) (PendingPayment, error)
}

// StatusQuerier asks the provider for the current state of a payment.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, externalReference string) (StatusResult, error)
}

// Canceler is implemented by providers whose checkout stays payable until
// it is cancelled explicitly.
type Canceler interface {
	Cancel(ctx context.Context, externalReference string) error
}

// ContactNormalizer is implemented by providers that need the payer
// contact in a canonical form before a payment row is written.
type ContactNormalizer interface {
	NormalizeContact(contact string) (string, error)
}

// Adapter is one payment provider.
type Adapter interface {
	Initiator
	StatusQuerier

	Name() string
	Methods() []paymodel.PaymentMethod

	// NormalizeCallback authenticates and parses a raw callback. It returns
	// finerr.ErrSignatureInvalid or finerr.ErrMalformedPayload on rejection.
	NormalizeCallback(raw []byte, headers http.Header) (WebhookEvent, error)

	// Acknowledge builds the provider-specific reply for a processed (err
	// nil) or rejected callback.
	Acknowledge(err error) Ack
}

// Package stripe is the card provider built on Stripe payment intents.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways"
	paymodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/money"
)

const SignatureHeader = "Stripe-Signature"

const (
	eventSucceeded = "payment_intent.succeeded"
	eventFailed    = "payment_intent.payment_failed"
	eventCanceled  = "payment_intent.canceled"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	// Currency is the ISO code sent to Stripe, lower case.
	Currency string
	// Backends overrides the Stripe API endpoint (tests).
	Backends *stripego.Backends
}

type Adapter struct {
	cfg Config
	sc  *client.API
}

func New(cfg Config) (*Adapter, error) {
	if cfg.SecretKey == "" || cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: stripe secret key and webhook secret are required", finerr.ErrConfig)
	}
	cfg.Currency = strings.ToLower(strings.TrimSpace(cfg.Currency))
	if cfg.Currency == "" {
		cfg.Currency = "kes"
	}
	sc := &client.API{}
	sc.Init(cfg.SecretKey, cfg.Backends)
	return &Adapter{cfg: cfg, sc: sc}, nil
}

func (a *Adapter) Name() string { return paymodel.ProviderStripe }

func (a *Adapter) Methods() []paymodel.PaymentMethod {
	return []paymodel.PaymentMethod{paymodel.PaymentMethodCard}
}

// Initiate creates a payment intent; the client confirms it with the
// returned client secret.
func (a *Adapter) Initiate(ctx context.Context, req gateways.InitiateRequest) (gateways.PendingPayment, error) {
	currency := a.cfg.Currency
	if req.Currency != "" {
		currency = strings.ToLower(req.Currency)
	}
	params := &stripego.PaymentIntentParams{
		Amount:   stripego.Int64(money.ToMinorUnits(req.Amount)),
		Currency: stripego.String(currency),
		AutomaticPaymentMethods: &stripego.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripego.Bool(true),
		},
		Description: stripego.String(req.Description),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.PaymentRef)
	params.AddMetadata("payment_reference", req.PaymentRef)
	params.AddMetadata("invoice_number", req.InvoiceNumber)

	pi, err := a.sc.PaymentIntents.New(params)
	if err != nil {
		return gateways.PendingPayment{}, classify(err)
	}
	return gateways.PendingPayment{
		PaymentRef:        req.PaymentRef,
		ExternalReference: pi.ID,
		Status:            paymodel.PaymentStatusPendingConfirmation,
		ClientSecret:      pi.ClientSecret,
	}, nil
}

func (a *Adapter) NormalizeCallback(raw []byte, headers http.Header) (gateways.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(raw, headers.Get(SignatureHeader), a.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) || errors.Is(err, webhook.ErrTooOld) {
			return gateways.WebhookEvent{}, fmt.Errorf("%w: %v", finerr.ErrSignatureInvalid, err)
		}
		return gateways.WebhookEvent{}, fmt.Errorf("%w: %v", finerr.ErrMalformedPayload, err)
	}

	ev := gateways.WebhookEvent{
		Provider:   a.Name(),
		EventType:  string(event.Type),
		Outcome:    gateways.OutcomePending,
		RawPayload: append([]byte(nil), raw...),
		ReceivedAt: time.Now().UTC(),
	}
	if !strings.HasPrefix(string(event.Type), "payment_intent.") {
		return ev, nil
	}
	if event.Data == nil {
		return gateways.WebhookEvent{}, fmt.Errorf("%w: event without data", finerr.ErrMalformedPayload)
	}

	var pi stripego.PaymentIntent
	if err := sonic.Unmarshal(event.Data.Raw, &pi); err != nil || pi.ID == "" {
		return gateways.WebhookEvent{}, fmt.Errorf("%w: payment intent object", finerr.ErrMalformedPayload)
	}
	ev.ExternalReference = pi.ID

	switch string(event.Type) {
	case eventSucceeded:
		ev.Outcome = gateways.OutcomeSuccess
		ev.ProviderTransactionID = transactionID(&pi)
		received := pi.AmountReceived
		if received == 0 {
			received = pi.Amount
		}
		ev.Amount = money.FromMinorUnits(received)
	case eventFailed, eventCanceled:
		ev.Outcome = gateways.OutcomeFailure
		ev.Reason = failureReason(&pi, string(event.Type))
	}
	return ev, nil
}

func (a *Adapter) QueryStatus(ctx context.Context, externalReference string) (gateways.StatusResult, error) {
	params := &stripego.PaymentIntentParams{}
	params.Context = ctx
	pi, err := a.sc.PaymentIntents.Get(externalReference, params)
	if err != nil {
		return gateways.StatusResult{}, classify(err)
	}
	switch pi.Status {
	case stripego.PaymentIntentStatusSucceeded:
		return gateways.StatusResult{
			Outcome:               gateways.OutcomeSuccess,
			ProviderTransactionID: transactionID(pi),
			Amount:                money.FromMinorUnits(pi.AmountReceived),
		}, nil
	case stripego.PaymentIntentStatusCanceled:
		return gateways.StatusResult{Outcome: gateways.OutcomeFailure, Reason: failureReason(pi, "canceled")}, nil
	default:
		return gateways.StatusResult{Outcome: gateways.OutcomePending, Reason: string(pi.Status)}, nil
	}
}

// Cancel abandons an intent whose local payment timed out so its client
// secret can no longer be confirmed.
func (a *Adapter) Cancel(ctx context.Context, externalReference string) error {
	params := &stripego.PaymentIntentCancelParams{
		CancellationReason: stripego.String(string(stripego.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	if _, err := a.sc.PaymentIntents.Cancel(externalReference, params); err != nil {
		return classify(err)
	}
	return nil
}

func (a *Adapter) Acknowledge(err error) gateways.Ack {
	switch {
	case err == nil:
		return gateways.JSONAck(http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, finerr.ErrSignatureInvalid), errors.Is(err, finerr.ErrMalformedPayload):
		return gateways.JSONAck(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		return gateways.JSONAck(http.StatusOK, map[string]bool{"received": true})
	}
}

func transactionID(pi *stripego.PaymentIntent) string {
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		return pi.LatestCharge.ID
	}
	return pi.ID
}

func failureReason(pi *stripego.PaymentIntent, fallback string) string {
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		return pi.LastPaymentError.Msg
	}
	if pi.CancellationReason != "" {
		return string(pi.CancellationReason)
	}
	return fallback
}

// classify: card and request errors are rejections, everything else is an outage.
func classify(err error) error {
	var se *stripego.Error
	if errors.As(err, &se) {
		switch se.Type {
		case stripego.ErrorTypeCard, stripego.ErrorTypeInvalidRequest, stripego.ErrorTypeIdempotency:
			return fmt.Errorf("%w: stripe: %s", finerr.ErrProviderRejected, se.Msg)
		}
		if se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 && se.HTTPStatusCode != http.StatusTooManyRequests {
			return fmt.Errorf("%w: stripe: %s", finerr.ErrProviderRejected, se.Msg)
		}
	}
	return fmt.Errorf("%w: stripe: %v", finerr.ErrProviderUnavailable, err)
}

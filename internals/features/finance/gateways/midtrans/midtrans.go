// Package midtrans is the hosted-checkout provider (Snap), settled through
// HTTP notifications signed with the server key.
package midtrans

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	mt "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways"
	paymodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
)

type SnapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *mt.Error)
}

type StatusAPI interface {
	CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *mt.Error)
}

type Config struct {
	ServerKey     string
	UseProduction bool
	// Expiry closes the Snap page when the pending payment times out locally.
	Expiry time.Duration
}

type Adapter struct {
	serverKey string
	snap      SnapAPI
	core      StatusAPI
	expiry    time.Duration
}

// New wires the real Snap and Core API clients.
func New(cfg Config) (*Adapter, error) {
	if cfg.ServerKey == "" {
		return nil, fmt.Errorf("%w: midtrans server key is required", finerr.ErrConfig)
	}
	env := mt.Sandbox
	if cfg.UseProduction {
		env = mt.Production
	}
	var s snap.Client
	s.New(cfg.ServerKey, env)
	var c coreapi.Client
	c.New(cfg.ServerKey, env)
	a := NewWithClients(cfg.ServerKey, &s, &c)
	a.expiry = cfg.Expiry
	return a, nil
}

func NewWithClients(serverKey string, s SnapAPI, c StatusAPI) *Adapter {
	return &Adapter{serverKey: serverKey, snap: s, core: c}
}

func (a *Adapter) Name() string { return paymodel.ProviderMidtrans }

// Snap checkout covers cards and e-wallets.
func (a *Adapter) Methods() []paymodel.PaymentMethod {
	return []paymodel.PaymentMethod{paymodel.PaymentMethodCard, paymodel.PaymentMethodMobileMoney}
}

/* =========================================================
   Initiate (Snap token)
========================================================= */

// Initiate uses the payment reference as the Midtrans order id, so the
// external reference is known before the call returns.
func (a *Adapter) Initiate(_ context.Context, req gateways.InitiateRequest) (gateways.PendingPayment, error) {
	if !req.Amount.IsInteger() {
		return gateways.PendingPayment{}, finerr.NewValidationError("amount", "gateway amounts must be whole units")
	}
	gross := req.Amount.IntPart()
	name := req.Description
	if name == "" {
		name = "School fees " + req.InvoiceNumber
	}

	sr := &snap.Request{
		TransactionDetails: mt.TransactionDetails{
			OrderID:  req.PaymentRef,
			GrossAmt: gross,
		},
		CreditCard: &snap.CreditCardDetails{Secure: true},
		Items: &[]mt.ItemDetails{{
			ID:       req.PaymentRef,
			Price:    gross,
			Qty:      1,
			Name:     truncate(name, 50),
			Category: "FEES",
		}},
		CustomField1: truncate(req.InvoiceNumber, 40),
	}
	if a.expiry > 0 {
		sr.Expiry = &snap.ExpiryDetails{
			Unit:     "minute",
			Duration: int64((a.expiry + time.Minute - 1) / time.Minute),
		}
	}
	if req.PayerContact != "" {
		sr.CustomerDetail = &mt.CustomerDetails{Phone: req.PayerContact}
	}

	resp, merr := a.snap.CreateTransaction(sr)
	if merr != nil {
		return gateways.PendingPayment{}, classify(merr)
	}
	if resp == nil || resp.Token == "" {
		return gateways.PendingPayment{}, fmt.Errorf("%w: midtrans returned no snap token", finerr.ErrProviderRejected)
	}
	return gateways.PendingPayment{
		PaymentRef:        req.PaymentRef,
		ExternalReference: req.PaymentRef,
		Status:            paymodel.PaymentStatusPendingConfirmation,
		ClientSecret:      resp.Token,
		RedirectURL:       resp.RedirectURL,
	}, nil
}

/* =========================================================
   Notification
========================================================= */

type notification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"` // capture, settlement, pending, deny, cancel, expire, refund, failure
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"` // accept / challenge / deny
	TransactionID     string `json:"transaction_id"`
	StatusMessage     string `json:"status_message"`
}

// Signature returns SHA512(order_id + status_code + gross_amount + server_key) in hex.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	h := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(h[:])
}

func (a *Adapter) NormalizeCallback(raw []byte, _ http.Header) (gateways.WebhookEvent, error) {
	var n notification
	if err := sonic.Unmarshal(raw, &n); err != nil {
		return gateways.WebhookEvent{}, fmt.Errorf("%w: %v", finerr.ErrMalformedPayload, err)
	}
	want := Signature(n.OrderID, n.StatusCode, n.GrossAmount, a.serverKey)
	got := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return gateways.WebhookEvent{}, finerr.ErrSignatureInvalid
	}
	if n.OrderID == "" || n.TransactionStatus == "" {
		return gateways.WebhookEvent{}, fmt.Errorf("%w: order_id and transaction_status are required", finerr.ErrMalformedPayload)
	}

	ev := gateways.WebhookEvent{
		Provider:              a.Name(),
		EventType:             n.TransactionStatus,
		ExternalReference:     n.OrderID,
		ProviderTransactionID: n.TransactionID,
		Outcome:               mapStatus(n.TransactionStatus, n.FraudStatus),
		RawPayload:            append([]byte(nil), raw...),
		ReceivedAt:            time.Now().UTC(),
	}
	if ev.Outcome == gateways.OutcomeSuccess {
		amt, err := decimal.NewFromString(strings.TrimSpace(n.GrossAmount))
		if err != nil {
			return gateways.WebhookEvent{}, fmt.Errorf("%w: gross_amount %q", finerr.ErrMalformedPayload, n.GrossAmount)
		}
		ev.Amount = amt
	}
	if ev.Outcome == gateways.OutcomeFailure {
		ev.Reason = strings.TrimSpace(n.TransactionStatus + " " + n.StatusMessage)
	}
	return ev, nil
}

// mapStatus: settlement and accepted captures are final successes;
// pending and challenged captures are not final.
func mapStatus(transactionStatus, fraudStatus string) gateways.Outcome {
	switch strings.ToLower(transactionStatus) {
	case "settlement":
		return gateways.OutcomeSuccess
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "accept", "":
			return gateways.OutcomeSuccess
		case "challenge":
			return gateways.OutcomePending
		default:
			return gateways.OutcomeFailure
		}
	case "deny", "cancel", "expire", "failure":
		return gateways.OutcomeFailure
	default:
		// pending, refund, partial_refund, authorize
		return gateways.OutcomePending
	}
}

func (a *Adapter) Acknowledge(err error) gateways.Ack {
	switch {
	case err == nil:
		return gateways.JSONAck(http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, finerr.ErrSignatureInvalid):
		return gateways.JSONAck(http.StatusUnauthorized, map[string]string{"status": "error", "message": "invalid signature"})
	case errors.Is(err, finerr.ErrMalformedPayload):
		return gateways.JSONAck(http.StatusBadRequest, map[string]string{"status": "error", "message": "invalid payload"})
	default:
		return gateways.JSONAck(http.StatusOK, map[string]string{"status": "ignored"})
	}
}

/* =========================================================
   Status query
========================================================= */

func (a *Adapter) QueryStatus(_ context.Context, externalReference string) (gateways.StatusResult, error) {
	resp, merr := a.core.CheckTransaction(externalReference)
	if merr != nil {
		return gateways.StatusResult{}, classify(merr)
	}
	if resp == nil {
		return gateways.StatusResult{}, fmt.Errorf("%w: empty status response", finerr.ErrProviderUnavailable)
	}
	out := gateways.StatusResult{
		Outcome:               mapStatus(resp.TransactionStatus, resp.FraudStatus),
		ProviderTransactionID: resp.TransactionID,
	}
	switch out.Outcome {
	case gateways.OutcomeSuccess:
		if amt, err := decimal.NewFromString(strings.TrimSpace(resp.GrossAmount)); err == nil {
			out.Amount = amt
		}
	case gateways.OutcomeFailure:
		out.Reason = resp.TransactionStatus
	}
	return out, nil
}

/* =========================================================
   Utils
========================================================= */

// classify never returns the typed *mt.Error itself: a nil *mt.Error stored
// in an error interface is non-nil.
func classify(merr *mt.Error) error {
	if merr.StatusCode == 0 || merr.StatusCode >= 500 {
		return fmt.Errorf("%w: midtrans: %s", finerr.ErrProviderUnavailable, merr.Message)
	}
	return fmt.Errorf("%w: midtrans: %s", finerr.ErrProviderRejected, merr.Message)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

package dto

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/service"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/reconciliation"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/money"
)

/* =========================================================
   REQUEST
========================================================= */

// CreatePaymentRequest: POST /api/u/payments
type CreatePaymentRequest struct {
	InvoiceID    string          `json:"invoice_id" validate:"required,uuid"`
	Amount       decimal.Decimal `json:"amount"`
	Method       string          `json:"method" validate:"required,oneof=manual mobile_money card"`
	Provider     string          `json:"provider,omitempty" validate:"omitempty,oneof=manual mpesa stripe midtrans"`
	PayerContact string          `json:"payer_contact,omitempty" validate:"omitempty,max=64"`
	Note         string          `json:"note,omitempty" validate:"omitempty,max=500"`
}

func (r CreatePaymentRequest) ToInput(recordedBy *uuid.UUID) (service.InitiateInput, error) {
	id, err := uuid.Parse(strings.TrimSpace(r.InvoiceID))
	if err != nil {
		return service.InitiateInput{}, err
	}
	return service.InitiateInput{
		InvoiceID:    id,
		Amount:       r.Amount,
		Method:       model.PaymentMethod(strings.ToLower(r.Method)),
		Provider:     strings.ToLower(r.Provider),
		PayerContact: r.PayerContact,
		Note:         r.Note,
		RecordedBy:   recordedBy,
	}, nil
}

/* =========================================================
   RESPONSE
========================================================= */

type PaymentResponse struct {
	PaymentID        uuid.UUID  `json:"payment_id"`
	PaymentSchoolID  *uuid.UUID `json:"payment_school_id,omitempty"`
	PaymentInvoiceID uuid.UUID  `json:"payment_invoice_id"`
	PaymentReference string     `json:"payment_reference"`

	PaymentAmount          string  `json:"payment_amount"`
	PaymentConfirmedAmount *string `json:"payment_confirmed_amount,omitempty"`
	PaymentCurrency        string  `json:"payment_currency"`

	PaymentStatus   model.PaymentStatus `json:"payment_status"`
	PaymentMethod   model.PaymentMethod `json:"payment_method"`
	PaymentProvider string              `json:"payment_provider"`

	PaymentExternalReference     string  `json:"payment_external_reference"`
	PaymentProviderTransactionID *string `json:"payment_provider_transaction_id,omitempty"`
	PaymentPayerContact          *string `json:"payment_payer_contact,omitempty"`
	PaymentCheckoutURL           *string `json:"payment_checkout_url,omitempty"`
	PaymentFailureReason         *string `json:"payment_failure_reason,omitempty"`
	PaymentNote                  *string `json:"payment_note,omitempty"`

	PaymentRequestedAt time.Time  `json:"payment_requested_at"`
	PaymentPendingAt   *time.Time `json:"payment_pending_at,omitempty"`
	PaymentCompletedAt *time.Time `json:"payment_completed_at,omitempty"`
	PaymentFailedAt    *time.Time `json:"payment_failed_at,omitempty"`
}

func FromModel(m *model.Payment) PaymentResponse {
	out := PaymentResponse{
		PaymentID:        m.PaymentID,
		PaymentSchoolID:  m.PaymentSchoolID,
		PaymentInvoiceID: m.PaymentInvoiceID,
		PaymentReference: m.PaymentReference,

		PaymentAmount:   m.PaymentAmount.StringFixed(money.Scale),
		PaymentCurrency: m.PaymentCurrency,

		PaymentStatus:   m.PaymentStatus,
		PaymentMethod:   m.PaymentMethod,
		PaymentProvider: m.PaymentProvider,

		PaymentExternalReference:     m.PaymentExternalReference,
		PaymentProviderTransactionID: m.PaymentProviderTransactionID,
		PaymentPayerContact:          m.PaymentPayerContact,
		PaymentCheckoutURL:           m.PaymentCheckoutURL,
		PaymentFailureReason:         m.PaymentFailureReason,
		PaymentNote:                  m.PaymentNote,

		PaymentRequestedAt: m.PaymentRequestedAt,
		PaymentPendingAt:   m.PaymentPendingAt,
		PaymentCompletedAt: m.PaymentCompletedAt,
		PaymentFailedAt:    m.PaymentFailedAt,
	}
	if m.PaymentConfirmedAmount.Valid {
		s := m.PaymentConfirmedAmount.Decimal.StringFixed(money.Scale)
		out.PaymentConfirmedAmount = &s
	}
	return out
}

func FromModels(rows []model.Payment) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out
}

// InitiatePaymentResponse is what the payer's client needs to finish checkout.
type InitiatePaymentResponse struct {
	PaymentReference  string              `json:"payment_reference"`
	Status            model.PaymentStatus `json:"status"`
	PromptRequired    bool                `json:"prompt_required"`
	ExternalReference string              `json:"external_reference"`
	ClientSecret      string              `json:"client_secret,omitempty"`
	RedirectURL       string              `json:"redirect_url,omitempty"`
	CustomerMessage   string              `json:"customer_message,omitempty"`
	InvoiceStatus     string              `json:"invoice_status,omitempty"`
	InvoiceBalance    string              `json:"invoice_balance,omitempty"`
	Overpayment       string              `json:"overpayment,omitempty"`
	Payment           PaymentResponse     `json:"payment"`
}

func FromInitiate(r *service.InitiateResult) InitiatePaymentResponse {
	out := InitiatePaymentResponse{
		PaymentReference:  r.Payment.PaymentReference,
		Status:            r.Payment.PaymentStatus,
		PromptRequired:    r.Pending.PromptRequired,
		ExternalReference: r.Payment.PaymentExternalReference,
		ClientSecret:      r.Pending.ClientSecret,
		RedirectURL:       r.Pending.RedirectURL,
		CustomerMessage:   r.Pending.CustomerMessage,
		Payment:           FromModel(r.Payment),
	}
	if r.Invoice != nil {
		out.InvoiceStatus = string(r.Invoice.InvoiceStatus)
		out.InvoiceBalance = r.Invoice.InvoiceBalanceAmount.StringFixed(money.Scale)
	}
	if r.Overpayment.IsPositive() {
		out.Overpayment = r.Overpayment.StringFixed(money.Scale)
	}
	return out
}

// RefreshResponse: POST /api/u/payments/:ref/refresh
type RefreshResponse struct {
	Pending          bool            `json:"pending"`
	AlreadyProcessed bool            `json:"already_processed"`
	AmountMismatch   bool            `json:"amount_mismatch,omitempty"`
	Overpayment      string          `json:"overpayment,omitempty"`
	Payment          PaymentResponse `json:"payment"`
}

func FromApplyResult(r reconciliation.ApplyResult) RefreshResponse {
	out := RefreshResponse{
		Pending:          r.Pending,
		AlreadyProcessed: r.AlreadyProcessed,
		AmountMismatch:   r.AmountMismatch,
	}
	if r.Payment != nil {
		out.Payment = FromModel(r.Payment)
	}
	if r.Overpayment.IsPositive() {
		out.Overpayment = r.Overpayment.StringFixed(money.Scale)
	}
	return out
}

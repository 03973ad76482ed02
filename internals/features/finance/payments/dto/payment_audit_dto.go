package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/money"
)

type PaymentAuditResponse struct {
	AuditID               uuid.UUID       `json:"audit_id"`
	AuditKind             model.AuditKind `json:"audit_kind"`
	AuditPaymentID        uuid.UUID       `json:"audit_payment_id"`
	AuditPaymentReference string          `json:"audit_payment_reference"`
	AuditInvoiceID        uuid.UUID       `json:"audit_invoice_id"`
	AuditInvoiceNumber    string          `json:"audit_invoice_number"`
	AuditExpectedAmount   string          `json:"audit_expected_amount"`
	AuditActualAmount     string          `json:"audit_actual_amount"`
	AuditExcessAmount     string          `json:"audit_excess_amount"`
	AuditNote             *string         `json:"audit_note,omitempty"`
	AuditResolved         bool            `json:"audit_resolved"`
	AuditCreatedAt        time.Time       `json:"audit_created_at"`
}

func FromAudits(rows []model.PaymentAudit) []PaymentAuditResponse {
	out := make([]PaymentAuditResponse, 0, len(rows))
	for _, a := range rows {
		out = append(out, PaymentAuditResponse{
			AuditID:               a.AuditID,
			AuditKind:             a.AuditKind,
			AuditPaymentID:        a.AuditPaymentID,
			AuditPaymentReference: a.AuditPaymentReference,
			AuditInvoiceID:        a.AuditInvoiceID,
			AuditInvoiceNumber:    a.AuditInvoiceNumber,
			AuditExpectedAmount:   a.AuditExpectedAmount.StringFixed(money.Scale),
			AuditActualAmount:     a.AuditActualAmount.StringFixed(money.Scale),
			AuditExcessAmount:     a.AuditExcessAmount.StringFixed(money.Scale),
			AuditNote:             a.AuditNote,
			AuditResolved:         a.AuditResolved,
			AuditCreatedAt:        a.CreatedAt,
		})
	}
	return out
}

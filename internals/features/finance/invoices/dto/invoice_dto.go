// file: internals/features/finance/invoices/dto/invoice_dto.go
package dto

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/service"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/money"
)

const DateLayout = "2006-01-02"

/* ===================== Requests ===================== */

type CreateInvoiceRequest struct {
	SchoolID        *uuid.UUID      `json:"school_id"`
	EnrollmentID    uuid.UUID       `json:"enrollment_id" validate:"required"`
	FeeDefinitionID uuid.UUID       `json:"fee_definition_id" validate:"required"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency" validate:"omitempty,len=3,alpha"`
	DueDate         string          `json:"due_date" validate:"required,datetime=2006-01-02"`
	Description     *string         `json:"description" validate:"omitempty,max=255"`
}

func (r CreateInvoiceRequest) ToInput() (service.CreateInvoiceInput, error) {
	due, err := time.Parse(DateLayout, strings.TrimSpace(r.DueDate))
	if err != nil {
		return service.CreateInvoiceInput{}, err
	}
	return service.CreateInvoiceInput{
		SchoolID:        r.SchoolID,
		EnrollmentID:    r.EnrollmentID,
		FeeDefinitionID: r.FeeDefinitionID,
		TotalAmount:     r.TotalAmount,
		DueDate:         due.UTC(),
		Currency:        r.Currency,
		Description:     r.Description,
	}, nil
}

/* ===================== Responses ===================== */

type InvoiceResponse struct {
	InvoiceID       uuid.UUID           `json:"invoice_id"`
	SchoolID        *uuid.UUID          `json:"school_id,omitempty"`
	Number          string              `json:"invoice_number"`
	EnrollmentID    uuid.UUID           `json:"enrollment_id"`
	FeeDefinitionID uuid.UUID           `json:"fee_definition_id"`
	Description     *string             `json:"description,omitempty"`
	Currency        string              `json:"currency"`
	TotalAmount     string              `json:"total_amount"`
	PaidAmount      string              `json:"paid_amount"`
	BalanceAmount   string              `json:"balance_amount"`
	Status          model.InvoiceStatus `json:"status"`
	IssueDate       time.Time           `json:"issue_date"`
	DueDate         string              `json:"due_date"`
	IsActive        bool                `json:"is_active"`
	DeactivatedAt   *time.Time          `json:"deactivated_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func FromModel(m *model.Invoice) InvoiceResponse {
	return InvoiceResponse{
		InvoiceID:       m.InvoiceID,
		SchoolID:        m.InvoiceSchoolID,
		Number:          m.InvoiceNumber,
		EnrollmentID:    m.InvoiceEnrollmentID,
		FeeDefinitionID: m.InvoiceFeeDefinitionID,
		Description:     m.InvoiceDescription,
		Currency:        m.InvoiceCurrency,
		TotalAmount:     m.InvoiceTotalAmount.StringFixed(money.Scale),
		PaidAmount:      m.InvoicePaidAmount.StringFixed(money.Scale),
		BalanceAmount:   m.InvoiceBalanceAmount.StringFixed(money.Scale),
		Status:          m.InvoiceStatus,
		IssueDate:       m.InvoiceIssueDate,
		DueDate:         m.InvoiceDueDate.UTC().Format(DateLayout),
		IsActive:        m.InvoiceIsActive,
		DeactivatedAt:   m.InvoiceDeactivatedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func FromModels(rows []model.Invoice) []InvoiceResponse {
	out := make([]InvoiceResponse, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out
}

// file: internals/features/finance/invoices/model/invoice_model.go
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/money"
)

/* ===================== Enums (string) ===================== */

type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

// time-driven and payment-driven transitions; paid is terminal.
var invoiceStatusTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusPending: {InvoiceStatusPartial, InvoiceStatusPaid, InvoiceStatusOverdue},
	InvoiceStatusPartial: {InvoiceStatusPartial, InvoiceStatusPaid, InvoiceStatusOverdue},
	InvoiceStatusOverdue: {InvoiceStatusPartial, InvoiceStatusPaid},
}

func (s InvoiceStatus) Allowed(to InvoiceStatus) bool {
	for _, st := range invoiceStatusTransitions[s] {
		if st == to {
			return true
		}
	}
	return false
}

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusPartial, InvoiceStatusPaid, InvoiceStatusOverdue:
		return true
	}
	return false
}

/* ===================== Model ===================== */

type Invoice struct {
	InvoiceID uuid.UUID `gorm:"column:invoice_id;type:uuid;primaryKey" json:"invoice_id"`

	InvoiceSchoolID        *uuid.UUID `gorm:"column:invoice_school_id;type:uuid;index" json:"invoice_school_id,omitempty"`
	InvoiceNumber          string     `gorm:"column:invoice_number;type:varchar(32);not null;uniqueIndex:uq_invoices_number" json:"invoice_number"`
	InvoiceEnrollmentID    uuid.UUID  `gorm:"column:invoice_enrollment_id;type:uuid;not null;index" json:"invoice_enrollment_id"`
	InvoiceFeeDefinitionID uuid.UUID  `gorm:"column:invoice_fee_definition_id;type:uuid;not null" json:"invoice_fee_definition_id"`
	InvoiceDescription     *string    `gorm:"column:invoice_description" json:"invoice_description,omitempty"`

	// Amounts (fixed-point, 2 decimals)
	InvoiceCurrency      string          `gorm:"column:invoice_currency;type:varchar(8);not null" json:"invoice_currency"`
	InvoiceTotalAmount   decimal.Decimal `gorm:"column:invoice_total_amount;type:numeric(14,2);not null" json:"invoice_total_amount"`
	InvoicePaidAmount    decimal.Decimal `gorm:"column:invoice_paid_amount;type:numeric(14,2);not null" json:"invoice_paid_amount"`
	InvoiceBalanceAmount decimal.Decimal `gorm:"column:invoice_balance_amount;type:numeric(14,2);not null" json:"invoice_balance_amount"`

	InvoiceStatus    InvoiceStatus `gorm:"column:invoice_status;type:varchar(16);not null;index" json:"invoice_status"`
	InvoiceIssueDate time.Time     `gorm:"column:invoice_issue_date;not null" json:"invoice_issue_date"`
	InvoiceDueDate   time.Time     `gorm:"column:invoice_due_date;not null;index" json:"invoice_due_date"`

	// soft-deactivate, never hard delete
	InvoiceIsActive      bool       `gorm:"column:invoice_is_active;not null" json:"invoice_is_active"`
	InvoiceDeactivatedAt *time.Time `gorm:"column:invoice_deactivated_at" json:"invoice_deactivated_at,omitempty"`

	CreatedAt time.Time `gorm:"column:invoice_created_at;autoCreateTime" json:"invoice_created_at"`
	UpdatedAt time.Time `gorm:"column:invoice_updated_at;autoUpdateTime" json:"invoice_updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

func (inv *Invoice) BeforeCreate(tx *gorm.DB) error {
	if inv.InvoiceID == uuid.Nil {
		inv.InvoiceID = uuid.New()
	}
	return nil
}

/* ===================== Helpers ===================== */

// NewInvoice builds a pending invoice with paid=0 and balance=total.
func NewInvoice(number string, enrollmentID, feeDefinitionID uuid.UUID, total decimal.Decimal, currency string, issued, due time.Time) *Invoice {
	return &Invoice{
		InvoiceNumber:          number,
		InvoiceEnrollmentID:    enrollmentID,
		InvoiceFeeDefinitionID: feeDefinitionID,
		InvoiceCurrency:        currency,
		InvoiceTotalAmount:     total,
		InvoicePaidAmount:      decimal.Zero,
		InvoiceBalanceAmount:   total,
		InvoiceStatus:          InvoiceStatusPending,
		InvoiceIssueDate:       issued,
		InvoiceDueDate:         due,
		InvoiceIsActive:        true,
	}
}

func (inv *Invoice) IsPaid() bool {
	return inv.InvoiceStatus == InvoiceStatusPaid
}

// CheckBalance verifies balance == total - paid, balance >= 0 and paid <= total.
func (inv *Invoice) CheckBalance() error {
	if inv.InvoicePaidAmount.IsNegative() {
		return fmt.Errorf("invoice %s: paid amount %s is negative", inv.InvoiceNumber, inv.InvoicePaidAmount)
	}
	if inv.InvoiceBalanceAmount.IsNegative() {
		return fmt.Errorf("invoice %s: balance %s is negative", inv.InvoiceNumber, inv.InvoiceBalanceAmount)
	}
	if !inv.InvoiceBalanceAmount.Equal(inv.InvoiceTotalAmount.Sub(inv.InvoicePaidAmount)) {
		return fmt.Errorf("invoice %s: balance %s != total %s - paid %s",
			inv.InvoiceNumber, inv.InvoiceBalanceAmount, inv.InvoiceTotalAmount, inv.InvoicePaidAmount)
	}
	return nil
}

// Credit applies a confirmed payment amount. Anything beyond the outstanding
// balance is clamped and returned as overpayment.
func (inv *Invoice) Credit(amount decimal.Decimal) (decimal.Decimal, error) {
	if inv.IsPaid() {
		return decimal.Zero, fmt.Errorf("%w: invoice %s is already paid", finerr.ErrInvoiceClosed, inv.InvoiceNumber)
	}
	if err := money.ValidatePositive("amount", amount); err != nil {
		return decimal.Zero, err
	}

	applied := money.Min(amount, inv.InvoiceBalanceAmount)
	inv.InvoicePaidAmount = inv.InvoicePaidAmount.Add(applied)
	inv.InvoiceBalanceAmount = inv.InvoiceTotalAmount.Sub(inv.InvoicePaidAmount)

	if inv.InvoiceBalanceAmount.IsPositive() {
		inv.InvoiceStatus = InvoiceStatusPartial
	} else {
		inv.InvoiceStatus = InvoiceStatusPaid
	}
	return amount.Sub(applied), nil
}

// MarkOverdue flips pending/partial to overdue once the due date has passed
// with money still owed. Returns false when nothing changed.
func (inv *Invoice) MarkOverdue(now time.Time) bool {
	if !now.After(inv.InvoiceDueDate) || !inv.InvoiceBalanceAmount.IsPositive() {
		return false
	}
	if !inv.InvoiceStatus.Allowed(InvoiceStatusOverdue) {
		return false
	}
	inv.InvoiceStatus = InvoiceStatusOverdue
	return true
}

func (inv *Invoice) Deactivate(now time.Time) bool {
	if !inv.InvoiceIsActive {
		return false
	}
	inv.InvoiceIsActive = false
	inv.InvoiceDeactivatedAt = &now
	return true
}

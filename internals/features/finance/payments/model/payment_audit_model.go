package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentAudit flags a confirmed payment for manual review: amount mismatch,
// overpayment, or money received for an invoice that was already paid.
type PaymentAudit struct {
	AuditID uuid.UUID `gorm:"column:audit_id;type:uuid;primaryKey" json:"audit_id"`

	AuditKind             AuditKind `gorm:"column:audit_kind;type:varchar(24);not null;index" json:"audit_kind"`
	AuditPaymentID        uuid.UUID `gorm:"column:audit_payment_id;type:uuid;not null;index" json:"audit_payment_id"`
	AuditPaymentReference string    `gorm:"column:audit_payment_reference;type:varchar(40);not null" json:"audit_payment_reference"`
	AuditInvoiceID        uuid.UUID `gorm:"column:audit_invoice_id;type:uuid;not null;index" json:"audit_invoice_id"`
	AuditInvoiceNumber    string    `gorm:"column:audit_invoice_number;type:varchar(32);not null" json:"audit_invoice_number"`

	AuditExpectedAmount decimal.Decimal `gorm:"column:audit_expected_amount;type:numeric(14,2);not null" json:"audit_expected_amount"`
	AuditActualAmount   decimal.Decimal `gorm:"column:audit_actual_amount;type:numeric(14,2);not null" json:"audit_actual_amount"`
	AuditExcessAmount   decimal.Decimal `gorm:"column:audit_excess_amount;type:numeric(14,2);not null" json:"audit_excess_amount"`
	AuditNote           *string         `gorm:"column:audit_note" json:"audit_note,omitempty"`

	AuditResolved   bool       `gorm:"column:audit_resolved;not null;index" json:"audit_resolved"`
	AuditResolvedAt *time.Time `gorm:"column:audit_resolved_at" json:"audit_resolved_at,omitempty"`

	CreatedAt time.Time `gorm:"column:audit_created_at;autoCreateTime" json:"audit_created_at"`
	UpdatedAt time.Time `gorm:"column:audit_updated_at;autoUpdateTime" json:"audit_updated_at"`
}

func (PaymentAudit) TableName() string { return "payment_audits" }

func (a *PaymentAudit) BeforeCreate(tx *gorm.DB) error {
	if a.AuditID == uuid.Nil {
		a.AuditID = uuid.New()
	}
	return nil
}

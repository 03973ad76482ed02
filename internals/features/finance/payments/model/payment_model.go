package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

/* ===================== Model ===================== */

type Payment struct {
	PaymentID uuid.UUID `gorm:"column:payment_id;type:uuid;primaryKey" json:"payment_id"`

	PaymentSchoolID  *uuid.UUID `gorm:"column:payment_school_id;type:uuid" json:"payment_school_id,omitempty"`
	PaymentInvoiceID uuid.UUID  `gorm:"column:payment_invoice_id;type:uuid;not null;index" json:"payment_invoice_id"`

	// system-generated, unique
	PaymentReference string `gorm:"column:payment_reference;type:varchar(40);not null;uniqueIndex:uq_payments_reference" json:"payment_reference"`

	// Amounts
	PaymentAmount          decimal.Decimal     `gorm:"column:payment_amount;type:numeric(14,2);not null" json:"payment_amount"`
	PaymentConfirmedAmount decimal.NullDecimal `gorm:"column:payment_confirmed_amount;type:numeric(14,2)" json:"payment_confirmed_amount"`
	PaymentCurrency        string              `gorm:"column:payment_currency;type:varchar(8);not null" json:"payment_currency"`

	// Status & method
	PaymentStatus   PaymentStatus `gorm:"column:payment_status;type:varchar(32);not null;index" json:"payment_status"`
	PaymentMethod   PaymentMethod `gorm:"column:payment_method;type:varchar(16);not null" json:"payment_method"`
	PaymentProvider string        `gorm:"column:payment_provider;type:varchar(16);not null" json:"payment_provider"`

	// Gateway info. External reference = the provider's correlation id (checkout
	// request id, payment intent id, order id); unique in the store.
	PaymentExternalReference     string  `gorm:"column:payment_external_reference;type:varchar(128);not null;uniqueIndex:uq_payments_external_reference" json:"payment_external_reference"`
	PaymentProviderTransactionID *string `gorm:"column:payment_provider_transaction_id;type:varchar(128)" json:"payment_provider_transaction_id,omitempty"`
	PaymentPayerContact          *string `gorm:"column:payment_payer_contact;type:varchar(64)" json:"payment_payer_contact,omitempty"`
	PaymentCheckoutURL           *string `gorm:"column:payment_checkout_url" json:"payment_checkout_url,omitempty"`

	PaymentFailureReason *string           `gorm:"column:payment_failure_reason" json:"payment_failure_reason,omitempty"`
	PaymentNote          *string           `gorm:"column:payment_note" json:"payment_note,omitempty"`
	PaymentMeta          datatypes.JSONMap `gorm:"column:payment_meta" json:"payment_meta,omitempty"`
	PaymentRecordedBy    *uuid.UUID        `gorm:"column:payment_recorded_by;type:uuid" json:"payment_recorded_by,omitempty"`

	// Lifecycle timestamps
	PaymentRequestedAt time.Time  `gorm:"column:payment_requested_at;not null" json:"payment_requested_at"`
	PaymentPendingAt   *time.Time `gorm:"column:payment_pending_at;index" json:"payment_pending_at,omitempty"`
	PaymentCompletedAt *time.Time `gorm:"column:payment_completed_at" json:"payment_completed_at,omitempty"`
	PaymentFailedAt    *time.Time `gorm:"column:payment_failed_at" json:"payment_failed_at,omitempty"`

	CreatedAt time.Time `gorm:"column:payment_created_at;autoCreateTime" json:"payment_created_at"`
	UpdatedAt time.Time `gorm:"column:payment_updated_at;autoUpdateTime" json:"payment_updated_at"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.PaymentID == uuid.Nil {
		p.PaymentID = uuid.New()
	}
	return nil
}

/* ===================== Helpers ===================== */

func (p *Payment) IsManual() bool {
	return p.PaymentMethod == PaymentMethodManual
}

func (p *Payment) IsTerminal() bool {
	return p.PaymentStatus.IsTerminal()
}

func (p *Payment) IsOpen() bool {
	switch p.PaymentStatus {
	case PaymentStatusInitiated, PaymentStatusPendingConfirmation:
		return true
	default:
		return false
	}
}

// EffectiveAmount is what the ledger was credited with (confirmed amount when known).
func (p *Payment) EffectiveAmount() decimal.Decimal {
	if p.PaymentConfirmedAmount.Valid {
		return p.PaymentConfirmedAmount.Decimal
	}
	return p.PaymentAmount
}

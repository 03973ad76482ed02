// file: internals/features/finance/payments/model/payment_gateway_events_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

/*
  payment_gateway_events = PROVIDER WEBHOOK / CALLBACK LOG
  - Many rows per payment (one per callback or retry)
  - Keeps raw headers, payload and processing status
  - Audit and replay only; balances never come from here
*/

type PaymentGatewayEventModel struct {
	GatewayEventID uuid.UUID `gorm:"column:gateway_event_id;type:uuid;primaryKey" json:"gateway_event_id"`

	GatewayEventPaymentID *uuid.UUID `gorm:"column:gateway_event_payment_id;type:uuid;index" json:"gateway_event_payment_id"`

	// Provider & event identity
	GatewayEventProvider    string  `gorm:"column:gateway_event_provider;type:varchar(16);not null;index" json:"gateway_event_provider"`
	GatewayEventType        *string `gorm:"column:gateway_event_type" json:"gateway_event_type"`
	GatewayEventExternalID  *string `gorm:"column:gateway_event_external_id;index" json:"gateway_event_external_id"`
	GatewayEventExternalRef *string `gorm:"column:gateway_event_external_ref" json:"gateway_event_external_ref"`

	// Raw data (debug / replay)
	GatewayEventHeaders datatypes.JSON `gorm:"column:gateway_event_headers" json:"gateway_event_headers"`
	GatewayEventPayload datatypes.JSON `gorm:"column:gateway_event_payload" json:"gateway_event_payload"`

	// Internal processing status
	GatewayEventStatus   GatewayEventStatus `gorm:"column:gateway_event_status;type:varchar(16);not null" json:"gateway_event_status"`
	GatewayEventError    *string            `gorm:"column:gateway_event_error" json:"gateway_event_error"`
	GatewayEventTryCount int                `gorm:"column:gateway_event_try_count;not null" json:"gateway_event_try_count"`

	GatewayEventReceivedAt  time.Time  `gorm:"column:gateway_event_received_at;not null;index" json:"gateway_event_received_at"`
	GatewayEventProcessedAt *time.Time `gorm:"column:gateway_event_processed_at" json:"gateway_event_processed_at"`

	GatewayEventCreatedAt time.Time `gorm:"column:gateway_event_created_at;autoCreateTime" json:"gateway_event_created_at"`
	GatewayEventUpdatedAt time.Time `gorm:"column:gateway_event_updated_at;autoUpdateTime" json:"gateway_event_updated_at"`
}

func (PaymentGatewayEventModel) TableName() string {
	return "payment_gateway_events"
}

func (m *PaymentGatewayEventModel) BeforeCreate(tx *gorm.DB) error {
	if m.GatewayEventID == uuid.Nil {
		m.GatewayEventID = uuid.New()
	}
	return nil
}

package dto

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
)

/* =========================================================
   RESPONSE
========================================================= */

type PaymentGatewayEventResponse struct {
	GatewayEventID        uuid.UUID  `json:"gateway_event_id"`
	GatewayEventPaymentID *uuid.UUID `json:"gateway_event_payment_id,omitempty"`

	GatewayEventProvider string  `json:"gateway_event_provider"`
	GatewayEventType     *string `json:"gateway_event_type,omitempty"`

	GatewayEventExternalID  *string `json:"gateway_event_external_id,omitempty"`
	GatewayEventExternalRef *string `json:"gateway_event_external_ref,omitempty"`

	GatewayEventHeaders datatypes.JSON `json:"gateway_event_headers,omitempty"`
	GatewayEventPayload datatypes.JSON `json:"gateway_event_payload,omitempty"`

	GatewayEventStatus   string  `json:"gateway_event_status"`
	GatewayEventError    *string `json:"gateway_event_error,omitempty"`
	GatewayEventTryCount int     `json:"gateway_event_try_count"`

	GatewayEventReceivedAt  time.Time  `json:"gateway_event_received_at"`
	GatewayEventProcessedAt *time.Time `json:"gateway_event_processed_at,omitempty"`
}

// FromModelPGW maps one logged callback. Payloads are omitted from list
// responses (withRaw=false) to keep pages small.
func FromModelPGW(m *model.PaymentGatewayEventModel, withRaw bool) *PaymentGatewayEventResponse {
	if m == nil {
		return nil
	}
	out := &PaymentGatewayEventResponse{
		GatewayEventID:        m.GatewayEventID,
		GatewayEventPaymentID: m.GatewayEventPaymentID,

		GatewayEventProvider: m.GatewayEventProvider,
		GatewayEventType:     m.GatewayEventType,

		GatewayEventExternalID:  m.GatewayEventExternalID,
		GatewayEventExternalRef: m.GatewayEventExternalRef,

		GatewayEventStatus:   string(m.GatewayEventStatus),
		GatewayEventError:    m.GatewayEventError,
		GatewayEventTryCount: m.GatewayEventTryCount,

		GatewayEventReceivedAt:  m.GatewayEventReceivedAt,
		GatewayEventProcessedAt: m.GatewayEventProcessedAt,
	}
	if withRaw {
		out.GatewayEventHeaders = m.GatewayEventHeaders
		out.GatewayEventPayload = m.GatewayEventPayload
	}
	return out
}

func FromModelsPGW(rows []model.PaymentGatewayEventModel) []*PaymentGatewayEventResponse {
	out := make([]*PaymentGatewayEventResponse, 0, len(rows))
	for i := range rows {
		out = append(out, FromModelPGW(&rows[i], false))
	}
	return out
}

package model

type PaymentStatus string
type PaymentMethod string
type GatewayEventStatus string
type AuditKind string

const (
	PaymentStatusInitiated           PaymentStatus = "initiated"
	PaymentStatusPendingConfirmation PaymentStatus = "pending_confirmation"
	PaymentStatusCompleted           PaymentStatus = "completed"
	PaymentStatusFailed              PaymentStatus = "failed"
)

const (
	PaymentMethodManual      PaymentMethod = "manual"
	PaymentMethodMobileMoney PaymentMethod = "mobile_money"
	PaymentMethodCard        PaymentMethod = "card"
)

const (
	ProviderManual   = "manual"
	ProviderMpesa    = "mpesa"
	ProviderStripe   = "stripe"
	ProviderMidtrans = "midtrans"
)

// payment_gateway_events.gateway_event_status
const (
	GatewayEventStatusReceived  GatewayEventStatus = "received"
	GatewayEventStatusSuccess   GatewayEventStatus = "success"
	GatewayEventStatusDuplicate GatewayEventStatus = "duplicate"
	GatewayEventStatusFailed    GatewayEventStatus = "failed"
	GatewayEventStatusRejected  GatewayEventStatus = "rejected"
	GatewayEventStatusIgnored   GatewayEventStatus = "ignored"
	GatewayEventStatusRequeued  GatewayEventStatus = "requeued"
)

const (
	AuditKindAmountMismatch AuditKind = "amount_mismatch"
	AuditKindOverpayment    AuditKind = "overpayment"
	AuditKindInvoiceClosed  AuditKind = "invoice_closed"
	// provider reported success after the payment was already failed
	AuditKindLateConfirmation AuditKind = "late_confirmation"
)

// completed/failed are terminal.
var paymentStatusTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusInitiated:           {PaymentStatusPendingConfirmation, PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusPendingConfirmation: {PaymentStatusCompleted, PaymentStatusFailed},
}

func (s PaymentStatus) Allowed(to PaymentStatus) bool {
	for _, st := range paymentStatusTransitions[s] {
		if st == to {
			return true
		}
	}
	return false
}

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodManual, PaymentMethodMobileMoney, PaymentMethodCard:
		return true
	}
	return false
}

// IsAsync reports whether the method is confirmed by webhook.
func (m PaymentMethod) IsAsync() bool {
	return m == PaymentMethodMobileMoney || m == PaymentMethodCard
}

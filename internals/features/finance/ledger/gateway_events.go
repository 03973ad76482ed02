package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	paymodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
)

// RecordGatewayEvent appends a raw callback to the audit log.
func (s *Store) RecordGatewayEvent(ctx context.Context, ev *paymodel.PaymentGatewayEventModel) error {
	if ev.GatewayEventReceivedAt.IsZero() {
		ev.GatewayEventReceivedAt = time.Now().UTC()
	}
	if ev.GatewayEventStatus == "" {
		ev.GatewayEventStatus = paymodel.GatewayEventStatusReceived
	}
	return classify(s.db.WithContext(ctx).Create(ev).Error)
}

// GatewayEventUpdate carries the processing outcome of a logged callback.
type GatewayEventUpdate struct {
	Status      paymodel.GatewayEventStatus
	Error       string
	PaymentID   *uuid.UUID
	Type        string
	ExternalID  string
	ExternalRef string
}

func (s *Store) UpdateGatewayEvent(ctx context.Context, id uuid.UUID, u GatewayEventUpdate) error {
	now := time.Now().UTC()
	fields := map[string]any{
		"gateway_event_status":       u.Status,
		"gateway_event_processed_at": now,
		"gateway_event_try_count":    gorm.Expr("gateway_event_try_count + 1"),
	}
	if u.Error != "" {
		fields["gateway_event_error"] = u.Error
	}
	if u.PaymentID != nil {
		fields["gateway_event_payment_id"] = *u.PaymentID
	}
	if u.Type != "" {
		fields["gateway_event_type"] = u.Type
	}
	if u.ExternalID != "" {
		fields["gateway_event_external_id"] = u.ExternalID
	}
	if u.ExternalRef != "" {
		fields["gateway_event_external_ref"] = u.ExternalRef
	}
	return classify(s.db.WithContext(ctx).
		Model(&paymodel.PaymentGatewayEventModel{}).
		Where("gateway_event_id = ?", id).
		Updates(fields).Error)
}

// GatewayEventFilter narrows the callback log for the admin listing.
type GatewayEventFilter struct {
	Provider  string
	Status    paymodel.GatewayEventStatus
	PaymentID *uuid.UUID
	// Query matches external id or external ref, case-insensitive.
	Query  string
	Start  *time.Time
	End    *time.Time
	Limit  int
	Offset int
}

func (s *Store) ListGatewayEvents(ctx context.Context, f GatewayEventFilter) ([]paymodel.PaymentGatewayEventModel, int64, error) {
	q := s.db.WithContext(ctx).Model(&paymodel.PaymentGatewayEventModel{})
	if f.Provider != "" {
		q = q.Where("gateway_event_provider = ?", strings.ToLower(f.Provider))
	}
	if f.Status != "" {
		q = q.Where("gateway_event_status = ?", f.Status)
	}
	if f.PaymentID != nil {
		q = q.Where("gateway_event_payment_id = ?", *f.PaymentID)
	}
	if f.Query != "" {
		like := "%" + strings.ToLower(f.Query) + "%"
		q = q.Where(`(LOWER(COALESCE(gateway_event_external_id,'')) LIKE ?
			OR LOWER(COALESCE(gateway_event_external_ref,'')) LIKE ?)`, like, like)
	}
	if f.Start != nil {
		q = q.Where("gateway_event_received_at >= ?", *f.Start)
	}
	if f.End != nil {
		q = q.Where("gateway_event_received_at < ?", *f.End)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, classify(err)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	var rows []paymodel.PaymentGatewayEventModel
	err := q.Order("gateway_event_received_at DESC").
		Limit(limit).Offset(f.Offset).
		Find(&rows).Error
	return rows, total, classify(err)
}

func (s *Store) FindGatewayEvent(ctx context.Context, id uuid.UUID) (*paymodel.PaymentGatewayEventModel, error) {
	var m paymodel.PaymentGatewayEventModel
	err := s.db.WithContext(ctx).Where("gateway_event_id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: gateway event %s", finerr.ErrNotFound, id)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &m, nil
}

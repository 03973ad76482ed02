// Package service authenticates provider callbacks, logs them and hands the
// normalized events to the reconciliation engine.
package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/ledger"
	paymodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/reconciliation"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/metrics"
)

// Applier is the slice of the reconciliation engine the ingress needs.
type Applier interface {
	ApplyConfirmation(ctx context.Context, ev gateways.WebhookEvent) (reconciliation.ApplyResult, error)
}

// Requeuer parks a transiently failed event for a later attempt.
type Requeuer interface {
	Enqueue(ctx context.Context, eventID uuid.UUID, ev gateways.WebhookEvent) error
}

// headers never written to the event log
var redactedHeaders = map[string]bool{
	"Authorization":    true,
	"Cookie":           true,
	"X-Callback-Token": true,
}

type Ingress struct {
	registry *gateways.Registry
	store    *ledger.Store
	engine   Applier
	retry    Requeuer
	metrics  *metrics.Recorder
	log      zerolog.Logger
}

func NewIngress(registry *gateways.Registry, store *ledger.Store, engine Applier, retry Requeuer, rec *metrics.Recorder, log zerolog.Logger) *Ingress {
	return &Ingress{
		registry: registry,
		store:    store,
		engine:   engine,
		retry:    retry,
		metrics:  rec,
		log:      log,
	}
}

// Handle processes one raw callback and returns the reply for the provider.
// The returned error is non-nil only when the provider should retry
// delivery (the reply then carries a 5xx status).
func (i *Ingress) Handle(ctx context.Context, provider string, raw []byte, headers http.Header) (gateways.Ack, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	adapter, ok := i.registry.Lookup(provider)
	if !ok {
		return gateways.JSONAck(http.StatusNotFound, map[string]string{"message": "unknown provider"}),
			finerr.ErrUnsupported
	}
	log := i.log.With().Str("provider", provider).Logger()

	entry := i.logEvent(ctx, provider, raw, headers)

	ev, err := adapter.NormalizeCallback(raw, headers)
	if err != nil {
		log.Warn().Err(err).Msg("webhook rejected")
		i.finish(ctx, entry, ledger.GatewayEventUpdate{Status: paymodel.GatewayEventStatusRejected, Error: err.Error()})
		i.metrics.Webhook(provider, "rejected")
		return adapter.Acknowledge(err), nil
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	upd := ledger.GatewayEventUpdate{
		Type:        ev.EventType,
		ExternalID:  ev.ProviderTransactionID,
		ExternalRef: ev.ExternalReference,
	}

	if !ev.Outcome.Final() {
		upd.Status = paymodel.GatewayEventStatusIgnored
		i.finish(ctx, entry, upd)
		i.metrics.Webhook(provider, "ignored")
		log.Debug().Str("event_type", ev.EventType).Str("ref", ev.ExternalReference).Msg("non-final notification ignored")
		return adapter.Acknowledge(nil), nil
	}

	res, err := i.engine.ApplyConfirmation(ctx, ev)
	switch {
	case err == nil:
		upd.Status = paymodel.GatewayEventStatusSuccess
		if res.AlreadyProcessed {
			upd.Status = paymodel.GatewayEventStatusDuplicate
		}
		if res.LateConfirmation {
			upd.Error = "confirmed after the payment failed; flagged for reconciliation"
		}
		if res.Payment != nil {
			upd.PaymentID = &res.Payment.PaymentID
		}
		i.finish(ctx, entry, upd)
		i.metrics.Webhook(provider, string(upd.Status))
		return adapter.Acknowledge(nil), nil

	case errors.Is(err, finerr.ErrUnknownPayment):
		// the callback may have beaten MarkAwaitingConfirmation; park it for
		// the retry worker. Either way the provider gets an ack.
		if qerr := i.retry.Enqueue(ctx, entry, ev); qerr == nil {
			log.Warn().Str("ref", ev.ExternalReference).Msg("callback for unknown payment requeued")
			upd.Status, upd.Error = paymodel.GatewayEventStatusRequeued, err.Error()
			i.finish(ctx, entry, upd)
			i.metrics.Webhook(provider, "requeued")
			return adapter.Acknowledge(nil), nil
		}
		log.Error().Err(err).Str("ref", ev.ExternalReference).Msg("callback for unknown payment")
		upd.Status, upd.Error = paymodel.GatewayEventStatusFailed, err.Error()
		i.finish(ctx, entry, upd)
		i.metrics.Webhook(provider, "unknown")
		return adapter.Acknowledge(nil), nil

	case finerr.IsTransient(err):
		if qerr := i.retry.Enqueue(ctx, entry, ev); qerr != nil {
			log.Error().Err(qerr).AnErr("cause", err).Str("ref", ev.ExternalReference).Msg("cannot requeue webhook")
			upd.Status, upd.Error = paymodel.GatewayEventStatusFailed, err.Error()
			i.finish(ctx, entry, upd)
			i.metrics.Webhook(provider, "unavailable")
			return gateways.JSONAck(http.StatusServiceUnavailable, map[string]string{"message": "temporarily unavailable"}), err
		}
		log.Warn().Err(err).Str("ref", ev.ExternalReference).Msg("webhook requeued")
		upd.Status, upd.Error = paymodel.GatewayEventStatusRequeued, err.Error()
		i.finish(ctx, entry, upd)
		i.metrics.Webhook(provider, "requeued")
		return adapter.Acknowledge(nil), nil

	default:
		log.Error().Err(err).Str("ref", ev.ExternalReference).Msg("webhook could not be applied")
		upd.Status, upd.Error = paymodel.GatewayEventStatusFailed, err.Error()
		i.finish(ctx, entry, upd)
		i.metrics.Webhook(provider, "failed")
		return adapter.Acknowledge(nil), nil
	}
}

// logEvent stores the raw callback. A logging failure never blocks
// processing; uuid.Nil is returned instead.
func (i *Ingress) logEvent(ctx context.Context, provider string, raw []byte, headers http.Header) uuid.UUID {
	m := &paymodel.PaymentGatewayEventModel{
		GatewayEventProvider: provider,
		GatewayEventHeaders:  headerJSON(headers),
		GatewayEventPayload:  payloadJSON(raw),
		GatewayEventStatus:   paymodel.GatewayEventStatusReceived,
	}
	if err := i.store.RecordGatewayEvent(ctx, m); err != nil {
		i.log.Error().Err(err).Str("provider", provider).Msg("cannot log gateway event")
		return uuid.Nil
	}
	return m.GatewayEventID
}

func (i *Ingress) finish(ctx context.Context, id uuid.UUID, u ledger.GatewayEventUpdate) {
	if id == uuid.Nil {
		return
	}
	if err := i.store.UpdateGatewayEvent(ctx, id, u); err != nil {
		i.log.Error().Err(err).Str("event_id", id.String()).Msg("cannot update gateway event")
	}
}

func headerJSON(h http.Header) datatypes.JSON {
	flat := make(map[string]string, len(h))
	for k, v := range h {
		k = http.CanonicalHeaderKey(k)
		if redactedHeaders[k] {
			flat[k] = "[redacted]"
			continue
		}
		flat[k] = strings.Join(v, ", ")
	}
	b, err := sonic.Marshal(flat)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}

// payloadJSON keeps valid JSON bodies as-is and wraps anything else as a
// JSON string so the column stays queryable.
func payloadJSON(raw []byte) datatypes.JSON {
	if len(raw) > 0 && sonic.Valid(raw) {
		return datatypes.JSON(append([]byte(nil), raw...))
	}
	b, _ := sonic.Marshal(string(raw))
	return datatypes.JSON(b)
}

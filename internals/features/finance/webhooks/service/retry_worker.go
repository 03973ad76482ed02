package service

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/ledger"
	paymodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/metrics"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/queue"
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 30 * time.Second
	defaultBatch       = 50
)

// envelope is the queued form of a webhook event.
type envelope struct {
	ID        uuid.UUID `json:"id"`
	EventID   uuid.UUID `json:"event_id"`
	Attempt   int       `json:"attempt"`
	Provider  string    `json:"provider"`
	EventType string    `json:"event_type"`
	ExtRef    string    `json:"external_reference"`
	TxID      string    `json:"provider_transaction_id"`
	Outcome   string    `json:"outcome"`
	Amount    string    `json:"amount"`
	Reason    string    `json:"reason"`
	Received  time.Time `json:"received_at"`
}

func toEnvelope(eventID uuid.UUID, ev gateways.WebhookEvent) envelope {
	return envelope{
		ID:        uuid.New(),
		EventID:   eventID,
		Attempt:   1,
		Provider:  ev.Provider,
		EventType: ev.EventType,
		ExtRef:    ev.ExternalReference,
		TxID:      ev.ProviderTransactionID,
		Outcome:   string(ev.Outcome),
		Amount:    ev.Amount.String(),
		Reason:    ev.Reason,
		Received:  ev.ReceivedAt,
	}
}

func (e envelope) event() (gateways.WebhookEvent, error) {
	amount := decimal.Zero
	if e.Amount != "" {
		var err error
		if amount, err = decimal.NewFromString(e.Amount); err != nil {
			return gateways.WebhookEvent{}, err
		}
	}
	return gateways.WebhookEvent{
		Provider:              e.Provider,
		EventType:             e.EventType,
		ExternalReference:     e.ExtRef,
		ProviderTransactionID: e.TxID,
		Outcome:               gateways.Outcome(e.Outcome),
		Amount:                amount,
		Reason:                e.Reason,
		ReceivedAt:            e.Received,
	}, nil
}

type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
	Interval    time.Duration
	Batch       int
}

// RetryWorker re-applies events that failed with a transient error, with a
// linear backoff, until they succeed or run out of attempts.
type RetryWorker struct {
	queue   queue.Queue
	engine  Applier
	store   *ledger.Store
	cfg     RetryConfig
	metrics *metrics.Recorder
	log     zerolog.Logger
	now     func() time.Time
}

func NewRetryWorker(q queue.Queue, engine Applier, store *ledger.Store, cfg RetryConfig, rec *metrics.Recorder, log zerolog.Logger) *RetryWorker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.Interval <= 0 {
		cfg.Interval = cfg.Backoff / 2
	}
	if cfg.Batch <= 0 {
		cfg.Batch = defaultBatch
	}
	return &RetryWorker{
		queue:   q,
		engine:  engine,
		store:   store,
		cfg:     cfg,
		metrics: rec,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (w *RetryWorker) Enqueue(ctx context.Context, eventID uuid.UUID, ev gateways.WebhookEvent) error {
	return w.push(ctx, toEnvelope(eventID, ev))
}

func (w *RetryWorker) push(ctx context.Context, env envelope) error {
	b, err := sonic.Marshal(env)
	if err != nil {
		return err
	}
	due := w.now().Add(time.Duration(env.Attempt) * w.cfg.Backoff)
	if err := w.queue.Push(ctx, b, due); err != nil {
		return err
	}
	w.depth(ctx)
	return nil
}

func (w *RetryWorker) depth(ctx context.Context) {
	if n, err := w.queue.Len(ctx); err == nil {
		w.metrics.RetryDepth(n)
	}
}

// Run drains the queue every Interval until ctx is cancelled.
func (w *RetryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	w.log.Info().Dur("interval", w.cfg.Interval).Int("max_attempts", w.cfg.MaxAttempts).Msg("webhook retry worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("webhook retry worker stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.log.Error().Err(err).Msg("webhook retry pass failed")
			}
		}
	}
}

// RunOnce processes every due envelope and returns how many it handled.
func (w *RetryWorker) RunOnce(ctx context.Context) (int, error) {
	items, err := w.queue.PopDue(ctx, w.now(), w.cfg.Batch)
	if err != nil {
		return 0, err
	}
	for _, raw := range items {
		var env envelope
		if err := sonic.Unmarshal(raw, &env); err != nil {
			w.log.Error().Err(err).Msg("dropping unreadable retry envelope")
			continue
		}
		w.process(ctx, env)
	}
	w.depth(ctx)
	return len(items), nil
}

func (w *RetryWorker) process(ctx context.Context, env envelope) {
	log := w.log.With().Str("provider", env.Provider).Str("ref", env.ExtRef).Int("attempt", env.Attempt).Logger()
	ev, err := env.event()
	if err != nil {
		log.Error().Err(err).Msg("dropping retry envelope with bad amount")
		return
	}

	upd := ledger.GatewayEventUpdate{}
	res, err := w.engine.ApplyConfirmation(ctx, ev)
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
		w.metrics.Webhook(env.Provider, "retried")
		log.Info().Str("status", string(upd.Status)).Msg("requeued webhook applied")

	case retryable(err) && env.Attempt < w.cfg.MaxAttempts:
		env.Attempt++
		if perr := w.push(ctx, env); perr != nil {
			log.Error().Err(perr).AnErr("cause", err).Msg("cannot requeue webhook, dropping")
			upd.Status, upd.Error = paymodel.GatewayEventStatusFailed, err.Error()
			w.metrics.Webhook(env.Provider, "dropped")
			break
		}
		log.Warn().Err(err).Msg("webhook still failing, requeued")
		upd.Status, upd.Error = paymodel.GatewayEventStatusRequeued, err.Error()

	default:
		log.Error().Err(err).Msg("webhook retry gave up")
		upd.Status, upd.Error = paymodel.GatewayEventStatusFailed, err.Error()
		w.metrics.Webhook(env.Provider, "dropped")
	}

	if env.EventID != uuid.Nil {
		if err := w.store.UpdateGatewayEvent(ctx, env.EventID, upd); err != nil {
			log.Error().Err(err).Msg("cannot update gateway event")
		}
	}
}

// retryable covers transient storage errors and callbacks that arrived
// before their payment was marked as sent to the provider.
func retryable(err error) bool {
	return finerr.IsTransient(err) || errors.Is(err, finerr.ErrUnknownPayment)
}

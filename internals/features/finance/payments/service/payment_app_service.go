// Package service is the checkout path: it picks a provider, records the
// payment and starts it with the provider.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways"
	invmodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/ledger"
	model "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/reconciliation"
)

// RefGenerator hands out payment references.
type RefGenerator interface {
	PaymentRef() string
}

// InvoiceReader is the read side of the invoice manager.
type InvoiceReader interface {
	Get(ctx context.Context, id uuid.UUID) (*invmodel.Invoice, error)
}

type PaymentService struct {
	registry *gateways.Registry
	engine   *reconciliation.Engine
	invoices InvoiceReader
	store    *ledger.Store
	refs     RefGenerator
	log      zerolog.Logger
}

func NewPaymentService(registry *gateways.Registry, engine *reconciliation.Engine, invoices InvoiceReader,
	store *ledger.Store, refs RefGenerator, log zerolog.Logger) *PaymentService {
	return &PaymentService{
		registry: registry,
		engine:   engine,
		invoices: invoices,
		store:    store,
		refs:     refs,
		log:      log,
	}
}

type InitiateInput struct {
	InvoiceID    uuid.UUID
	Amount       decimal.Decimal
	Method       model.PaymentMethod
	Provider     string // empty picks the default provider for the method
	PayerContact string
	Note         string
	RecordedBy   *uuid.UUID
}

type InitiateResult struct {
	Payment *model.Payment
	Pending gateways.PendingPayment
	// set for synchronous (manual) payments
	Invoice     *invmodel.Invoice
	Overpayment decimal.Decimal
}

// InitiatePayment records a payment and starts it with the resolved
// provider. A provider refusal fails the payment and is returned as error.
func (s *PaymentService) InitiatePayment(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	adapter, err := s.registry.Resolve(in.Method, in.Provider)
	if err != nil {
		return nil, err
	}

	contact := strings.TrimSpace(in.PayerContact)
	if in.Method == model.PaymentMethodMobileMoney && contact == "" {
		return nil, finerr.NewValidationError("payer_contact", "is required for mobile money")
	}
	if n, ok := adapter.(gateways.ContactNormalizer); ok && contact != "" {
		if contact, err = n.NormalizeContact(contact); err != nil {
			return nil, err
		}
	}

	inv, err := s.invoices.Get(ctx, in.InvoiceID)
	if err != nil {
		return nil, err
	}

	ref := s.refs.PaymentRef()
	rec := reconciliation.RecordInput{
		InvoiceID:  in.InvoiceID,
		PaymentRef: ref,
		Amount:     in.Amount,
		Currency:   inv.InvoiceCurrency,
		Method:     in.Method,
		Provider:   adapter.Name(),
		RecordedBy: in.RecordedBy,
		Meta:       map[string]any{"invoice_number": inv.InvoiceNumber},
	}
	if contact != "" {
		rec.PayerContact = &contact
	}
	if note := strings.TrimSpace(in.Note); note != "" {
		rec.Note = &note
	}
	p, err := s.engine.RecordInitiatedPayment(ctx, rec)
	if err != nil {
		return nil, err
	}
	log := s.log.With().Str("payment", ref).Str("provider", adapter.Name()).Logger()

	// provider call happens outside any lock
	pp, err := adapter.Initiate(ctx, gateways.InitiateRequest{
		PaymentRef:    ref,
		InvoiceNumber: inv.InvoiceNumber,
		Amount:        p.PaymentAmount,
		Currency:      p.PaymentCurrency,
		PayerContact:  contact,
		Description:   "School fees " + inv.InvoiceNumber,
	})
	if err != nil {
		if _, rerr := s.engine.RejectPayment(ctx, ref, err.Error()); rerr != nil {
			log.Error().Err(rerr).Msg("cannot mark rejected payment as failed")
		}
		log.Warn().Err(err).Msg("provider refused payment")
		return nil, err
	}

	if pp.Status == model.PaymentStatusCompleted {
		res, err := s.engine.ApplyConfirmation(ctx, gateways.WebhookEvent{
			Provider:              adapter.Name(),
			EventType:             "synchronous",
			ExternalReference:     p.PaymentExternalReference,
			ProviderTransactionID: pp.ProviderTransactionID,
			Outcome:               gateways.OutcomeSuccess,
			Amount:                p.PaymentAmount,
		})
		if err != nil {
			return nil, err
		}
		return &InitiateResult{Payment: res.Payment, Pending: pp, Invoice: res.Invoice, Overpayment: res.Overpayment}, nil
	}

	p, err = s.engine.MarkAwaitingConfirmation(ctx, ref, pp)
	if err != nil {
		// the provider already has it; the timeout sweep picks the row up
		log.Error().Err(err).Str("external_ref", pp.ExternalReference).Msg("cannot record provider reference")
		return nil, fmt.Errorf("payment %s accepted by provider but not recorded: %w", ref, err)
	}
	return &InitiateResult{Payment: p, Pending: pp}, nil
}

// RefreshStatus polls the provider for a payment still awaiting confirmation.
func (s *PaymentService) RefreshStatus(ctx context.Context, ref string) (reconciliation.ApplyResult, error) {
	p, err := s.engine.GetPayment(ctx, ref)
	if err != nil {
		return reconciliation.ApplyResult{}, err
	}
	adapter, ok := s.registry.Lookup(p.PaymentProvider)
	if !ok {
		return reconciliation.ApplyResult{}, fmt.Errorf("%w: provider %s is not configured", finerr.ErrUnsupported, p.PaymentProvider)
	}
	res, err := s.engine.PollPayment(ctx, p.PaymentReference, adapter)
	if errors.Is(err, finerr.ErrUnsupported) {
		return reconciliation.ApplyResult{Payment: p, Pending: !p.IsTerminal()}, nil
	}
	return res, err
}

func (s *PaymentService) Get(ctx context.Context, ref string) (*model.Payment, error) {
	return s.engine.GetPayment(ctx, ref)
}

func (s *PaymentService) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]model.Payment, error) {
	return s.store.ListPaymentsByInvoice(ctx, invoiceID)
}

// Timeout is the admin escape hatch for a payment stuck in pending. The
// provider checkout is cancelled when the provider supports it.
func (s *PaymentService) Timeout(ctx context.Context, ref string) (*model.Payment, bool, error) {
	p, changed, err := s.engine.TimeoutPayment(ctx, ref)
	if err != nil || !changed {
		return p, changed, err
	}
	if cerr := s.registry.CancelCheckout(ctx, p); cerr != nil {
		s.log.Warn().Err(cerr).Str("payment", p.PaymentReference).Msg("checkout cancel failed")
	}
	return p, changed, nil
}

func (s *PaymentService) Audits(ctx context.Context, f ledger.AuditFilter) ([]model.PaymentAudit, int64, error) {
	return s.store.ListAudits(ctx, f)
}

func (s *PaymentService) GatewayEvents(ctx context.Context, f ledger.GatewayEventFilter) ([]model.PaymentGatewayEventModel, int64, error) {
	return s.store.ListGatewayEvents(ctx, f)
}

func (s *PaymentService) GatewayEvent(ctx context.Context, id uuid.UUID) (*model.PaymentGatewayEventModel, error) {
	return s.store.FindGatewayEvent(ctx, id)
}

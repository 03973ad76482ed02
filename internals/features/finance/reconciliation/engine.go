// Package reconciliation turns payment initiations and provider
// confirmations into ledger mutations. It is the only writer of payment
// status and the only caller of the invoice credit path.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways"
	invmodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/ledger"
	paymodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/metrics"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/money"
)

// InvoiceApplier credits a locked invoice; *service.Manager implements it.
type InvoiceApplier interface {
	ApplyPayment(inv *invmodel.Invoice, amount decimal.Decimal) (decimal.Decimal, error)
}

type Engine struct {
	store    *ledger.Store
	invoices InvoiceApplier
	metrics  *metrics.Recorder
	log      zerolog.Logger
	now      func() time.Time
}

type Option func(*Engine)

func WithMetrics(r *metrics.Recorder) Option { return func(e *Engine) { e.metrics = r } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func New(store *ledger.Store, invoices InvoiceApplier, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		invoices: invoices,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

/* =========================================================
   Initiation
========================================================= */

type RecordInput struct {
	InvoiceID    uuid.UUID
	PaymentRef   string
	Amount       decimal.Decimal
	Currency     string
	Method       paymodel.PaymentMethod
	Provider     string
	PayerContact *string
	Note         *string
	RecordedBy   *uuid.UUID
	Meta         map[string]any
}

func (in RecordInput) validate() error {
	if in.InvoiceID == uuid.Nil {
		return finerr.NewValidationError("invoice_id", "is required")
	}
	if strings.TrimSpace(in.PaymentRef) == "" {
		return finerr.NewValidationError("payment_reference", "is required")
	}
	if err := money.ValidatePositive("amount", in.Amount); err != nil {
		return err
	}
	if !in.Method.Valid() {
		return finerr.NewValidationError("method", "unsupported payment method")
	}
	if strings.TrimSpace(in.Provider) == "" {
		return finerr.NewValidationError("provider", "is required")
	}
	return nil
}

// RecordInitiatedPayment inserts a payment in the initiated state. Paid or
// deactivated invoices are refused with ErrInvoiceClosed.
func (e *Engine) RecordInitiatedPayment(ctx context.Context, in RecordInput) (*paymodel.Payment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var p *paymodel.Payment
	err := e.store.WithInvoiceLock(ctx, in.InvoiceID, func(tx *gorm.DB, inv *invmodel.Invoice) error {
		if !inv.InvoiceIsActive {
			return fmt.Errorf("%w: invoice %s is deactivated", finerr.ErrInvoiceClosed, inv.InvoiceNumber)
		}
		if inv.IsPaid() {
			return fmt.Errorf("%w: invoice %s is already paid", finerr.ErrInvoiceClosed, inv.InvoiceNumber)
		}
		currency := strings.ToUpper(strings.TrimSpace(in.Currency))
		if currency == "" {
			currency = inv.InvoiceCurrency
		}
		if currency != inv.InvoiceCurrency {
			return finerr.NewValidationError("currency", "must match the invoice currency "+inv.InvoiceCurrency)
		}

		p = &paymodel.Payment{
			PaymentSchoolID:          inv.InvoiceSchoolID,
			PaymentInvoiceID:         inv.InvoiceID,
			PaymentReference:         in.PaymentRef,
			PaymentAmount:            in.Amount,
			PaymentCurrency:          currency,
			PaymentStatus:            paymodel.PaymentStatusInitiated,
			PaymentMethod:            in.Method,
			PaymentProvider:          strings.ToLower(in.Provider),
			PaymentExternalReference: in.PaymentRef,
			PaymentPayerContact:      in.PayerContact,
			PaymentNote:              in.Note,
			PaymentMeta:              in.Meta,
			PaymentRecordedBy:        in.RecordedBy,
			PaymentRequestedAt:       e.now(),
		}
		return ledger.CreatePayment(tx, p)
	})
	if err != nil {
		return nil, err
	}

	e.metrics.PaymentInitiated(p.PaymentProvider, string(p.PaymentMethod))
	e.log.Info().
		Str("payment", p.PaymentReference).
		Str("invoice_id", p.PaymentInvoiceID.String()).
		Str("provider", p.PaymentProvider).
		Str("amount", p.PaymentAmount.StringFixed(money.Scale)).
		Msg("payment initiated")
	return p, nil
}

// paymentFunc runs with both the invoice and the payment row locked.
type paymentFunc func(tx *gorm.DB, inv *invmodel.Invoice, p *paymodel.Payment) error

// withPayment locks the payment's invoice, then the payment itself. Every
// payment mutation takes the locks in this order.
func (e *Engine) withPayment(ctx context.Context, p *paymodel.Payment, fn paymentFunc) error {
	return e.store.WithInvoiceLock(ctx, p.PaymentInvoiceID, func(tx *gorm.DB, inv *invmodel.Invoice) error {
		locked, err := ledger.LockPayment(tx, p.PaymentID)
		if err != nil {
			return err
		}
		return fn(tx, inv, locked)
	})
}

// MarkAwaitingConfirmation records the provider's correlation id once an
// asynchronous initiation has been accepted.
func (e *Engine) MarkAwaitingConfirmation(ctx context.Context, paymentRef string, pp gateways.PendingPayment) (*paymodel.Payment, error) {
	p, err := e.store.FindPaymentByReference(ctx, paymentRef)
	if err != nil {
		return nil, err
	}

	var out paymodel.Payment
	err = e.withPayment(ctx, p, func(tx *gorm.DB, _ *invmodel.Invoice, locked *paymodel.Payment) error {
		out = *locked
		if locked.PaymentStatus != paymodel.PaymentStatusInitiated {
			// timed out or already confirmed; leave it alone
			return nil
		}
		now := e.now()
		if ref := strings.TrimSpace(pp.ExternalReference); ref != "" {
			locked.PaymentExternalReference = ref
		}
		if pp.RedirectURL != "" {
			locked.PaymentCheckoutURL = &pp.RedirectURL
		}
		locked.PaymentStatus = paymodel.PaymentStatusPendingConfirmation
		locked.PaymentPendingAt = &now
		if err := ledger.SavePayment(tx, locked); err != nil {
			return err
		}
		out = *locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RejectPayment fails an initiated payment the provider refused synchronously.
func (e *Engine) RejectPayment(ctx context.Context, paymentRef, reason string) (*paymodel.Payment, error) {
	p, err := e.store.FindPaymentByReference(ctx, paymentRef)
	if err != nil {
		return nil, err
	}
	var (
		out     paymodel.Payment
		changed bool
	)
	err = e.withPayment(ctx, p, func(tx *gorm.DB, _ *invmodel.Invoice, locked *paymodel.Payment) error {
		out = *locked
		if locked.PaymentStatus != paymodel.PaymentStatusInitiated {
			return nil
		}
		e.fail(locked, reason)
		if err := ledger.SavePayment(tx, locked); err != nil {
			return err
		}
		out, changed = *locked, true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		e.metrics.PaymentFailed(out.PaymentProvider, "rejected")
		e.log.Warn().Str("payment", out.PaymentReference).Str("reason", reason).Msg("payment rejected by provider")
	}
	return &out, nil
}

func (e *Engine) fail(p *paymodel.Payment, reason string) {
	now := e.now()
	p.PaymentStatus = paymodel.PaymentStatusFailed
	p.PaymentFailedAt = &now
	if reason != "" {
		r := reason
		p.PaymentFailureReason = &r
	}
}

/* =========================================================
   Confirmation
========================================================= */

type ApplyResult struct {
	Payment *paymodel.Payment
	Invoice *invmodel.Invoice
	// AlreadyProcessed is set when the payment was terminal before this call.
	AlreadyProcessed bool
	// Pending is set by PollPayment when the provider has no final answer yet.
	Pending        bool
	Overpayment    decimal.Decimal
	AmountMismatch bool
	InvoiceClosed  bool
	// LateConfirmation is set when money arrived for a payment that had
	// already failed. The invoice is not credited; an audit flags it.
	LateConfirmation bool
}

// ApplyConfirmation applies a normalized provider confirmation exactly
// once. Replays and confirmations for payments that already failed or
// completed return AlreadyProcessed without crediting the invoice. A success
// for a failed payment is flagged with a late_confirmation audit.
func (e *Engine) ApplyConfirmation(ctx context.Context, ev gateways.WebhookEvent) (ApplyResult, error) {
	if !ev.Outcome.Final() {
		return ApplyResult{}, finerr.NewValidationError("outcome", "confirmation must be success or failure")
	}
	p, err := e.store.FindPaymentByExternalReference(ctx, ev.ExternalReference)
	if err != nil {
		if errors.Is(err, finerr.ErrNotFound) {
			return ApplyResult{}, fmt.Errorf("%w: %s reference %s", finerr.ErrUnknownPayment, ev.Provider, ev.ExternalReference)
		}
		return ApplyResult{}, err
	}
	if !strings.EqualFold(p.PaymentProvider, ev.Provider) {
		return ApplyResult{}, fmt.Errorf("%w: reference %s belongs to %s, not %s",
			finerr.ErrUnknownPayment, ev.ExternalReference, p.PaymentProvider, ev.Provider)
	}
	if p.IsTerminal() && !lateWork(p, ev) {
		return ApplyResult{Payment: p, AlreadyProcessed: true}, nil
	}

	start := time.Now()
	var res ApplyResult
	err = e.withPayment(ctx, p, func(tx *gorm.DB, inv *invmodel.Invoice, locked *paymodel.Payment) error {
		res = ApplyResult{}
		if locked.IsTerminal() {
			res.AlreadyProcessed = true
			res.Payment = locked
			return e.absorbLate(tx, inv, locked, ev, &res)
		}
		var err error
		if ev.Outcome == gateways.OutcomeFailure {
			e.fail(locked, ev.Reason)
			err = ledger.SavePayment(tx, locked)
		} else {
			err = e.complete(tx, inv, locked, ev, &res)
		}
		if err != nil {
			return err
		}
		res.Payment = locked
		snapshot := *inv
		res.Invoice = &snapshot
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}
	e.metrics.ObserveApply(p.PaymentProvider, time.Since(start))
	e.report(res, ev)
	return res, nil
}

// complete credits the invoice and moves the payment to completed. Must run
// under withPayment.
func (e *Engine) complete(tx *gorm.DB, inv *invmodel.Invoice, p *paymodel.Payment, ev gateways.WebhookEvent, res *ApplyResult) error {
	if p.PaymentStatus == paymodel.PaymentStatusInitiated && !p.IsManual() {
		return fmt.Errorf("%w: %s", finerr.ErrPaymentNotReady, p.PaymentReference)
	}
	if !p.PaymentStatus.Allowed(paymodel.PaymentStatusCompleted) {
		return fmt.Errorf("payment %s: cannot complete from %s", p.PaymentReference, p.PaymentStatus)
	}

	amount := ev.Amount
	if !amount.IsPositive() {
		amount = p.PaymentAmount
	}
	amount = amount.Round(money.Scale)
	res.AmountMismatch = !amount.Equal(p.PaymentAmount)

	balanceBefore := inv.InvoiceBalanceAmount
	over, err := e.invoices.ApplyPayment(inv, amount)
	switch {
	case errors.Is(err, finerr.ErrInvoiceClosed):
		// money already arrived; complete the payment and flag it for refund
		res.InvoiceClosed = true
		over = amount
	case err != nil:
		return err
	}
	res.Overpayment = over

	now := e.now()
	p.PaymentStatus = paymodel.PaymentStatusCompleted
	p.PaymentConfirmedAmount = decimal.NewNullDecimal(amount)
	p.PaymentCompletedAt = &now
	if ev.ProviderTransactionID != "" {
		txID := ev.ProviderTransactionID
		p.PaymentProviderTransactionID = &txID
	}
	if err := ledger.SavePayment(tx, p); err != nil {
		return err
	}

	audit := func(kind paymodel.AuditKind, expected, actual, excess decimal.Decimal, note string) error {
		return ledger.RecordAudit(tx, &paymodel.PaymentAudit{
			AuditKind:             kind,
			AuditPaymentID:        p.PaymentID,
			AuditPaymentReference: p.PaymentReference,
			AuditInvoiceID:        inv.InvoiceID,
			AuditInvoiceNumber:    inv.InvoiceNumber,
			AuditExpectedAmount:   expected,
			AuditActualAmount:     actual,
			AuditExcessAmount:     excess,
			AuditNote:             &note,
		})
	}

	if res.AmountMismatch {
		diff := amount.Sub(p.PaymentAmount)
		if err := audit(paymodel.AuditKindAmountMismatch, p.PaymentAmount, amount, decimal.Max(diff, decimal.Zero),
			fmt.Sprintf("provider confirmed %s, initiated %s", amount.StringFixed(money.Scale), p.PaymentAmount.StringFixed(money.Scale))); err != nil {
			return err
		}
	}
	switch {
	case res.InvoiceClosed:
		if err := audit(paymodel.AuditKindInvoiceClosed, decimal.Zero, amount, amount,
			"payment confirmed for an invoice that was already paid"); err != nil {
			return err
		}
	case over.IsPositive():
		if err := audit(paymodel.AuditKindOverpayment, balanceBefore, amount, over,
			"amount exceeded the outstanding balance"); err != nil {
			return err
		}
	}
	return nil
}

// lateWork reports whether a confirmation for a terminal payment still has
// something to record.
func lateWork(p *paymodel.Payment, ev gateways.WebhookEvent) bool {
	if ev.Outcome != gateways.OutcomeSuccess {
		return false
	}
	if p.PaymentStatus == paymodel.PaymentStatusFailed {
		return true
	}
	return p.PaymentProviderTransactionID == nil && ev.ProviderTransactionID != ""
}

// absorbLate handles a success for a payment that is already terminal. The
// provider transaction id is kept when the payment has none (a poll settled
// it first), and money received after a failure is flagged once for manual
// reconciliation.
func (e *Engine) absorbLate(tx *gorm.DB, inv *invmodel.Invoice, p *paymodel.Payment, ev gateways.WebhookEvent, res *ApplyResult) error {
	if !lateWork(p, ev) {
		return nil
	}
	if p.PaymentProviderTransactionID == nil && ev.ProviderTransactionID != "" {
		txID := ev.ProviderTransactionID
		p.PaymentProviderTransactionID = &txID
		if err := ledger.SavePayment(tx, p); err != nil {
			return err
		}
	}
	if p.PaymentStatus != paymodel.PaymentStatusFailed {
		return nil
	}

	seen, err := ledger.HasAudit(tx, p.PaymentID, paymodel.AuditKindLateConfirmation)
	if err != nil || seen {
		return err
	}
	amount := ev.Amount
	if !amount.IsPositive() {
		amount = p.PaymentAmount
	}
	amount = amount.Round(money.Scale)
	note := fmt.Sprintf("%s confirmed %s after the payment failed", ev.Provider, amount.StringFixed(money.Scale))
	if ev.ProviderTransactionID != "" {
		note += " (transaction " + ev.ProviderTransactionID + ")"
	}
	res.LateConfirmation = true
	return ledger.RecordAudit(tx, &paymodel.PaymentAudit{
		AuditKind:             paymodel.AuditKindLateConfirmation,
		AuditPaymentID:        p.PaymentID,
		AuditPaymentReference: p.PaymentReference,
		AuditInvoiceID:        inv.InvoiceID,
		AuditInvoiceNumber:    inv.InvoiceNumber,
		AuditExpectedAmount:   decimal.Zero,
		AuditActualAmount:     amount,
		AuditExcessAmount:     amount,
		AuditNote:             &note,
	})
}

func (e *Engine) report(res ApplyResult, ev gateways.WebhookEvent) {
	if res.LateConfirmation {
		amount := ev.Amount
		if !amount.IsPositive() {
			amount = res.Payment.PaymentAmount
		}
		e.metrics.Anomaly(string(paymodel.AuditKindLateConfirmation))
		e.log.Warn().
			Str("payment", res.Payment.PaymentReference).
			Str("provider", res.Payment.PaymentProvider).
			Str("transaction", ev.ProviderTransactionID).
			Str("amount", amount.StringFixed(money.Scale)).
			Msg("confirmation received for a failed payment, flagged for manual reconciliation")
		return
	}
	if res.AlreadyProcessed || res.Payment == nil {
		return
	}
	p := res.Payment
	if p.PaymentStatus == paymodel.PaymentStatusFailed {
		e.metrics.PaymentFailed(p.PaymentProvider, "provider")
		e.log.Info().Str("payment", p.PaymentReference).Str("reason", ev.Reason).Msg("payment failed")
		return
	}

	e.metrics.PaymentCompleted(p.PaymentProvider)
	logEv := e.log.Info()
	if res.AmountMismatch || res.InvoiceClosed || res.Overpayment.IsPositive() {
		logEv = e.log.Warn()
	}
	if res.AmountMismatch {
		e.metrics.Anomaly(string(paymodel.AuditKindAmountMismatch))
		logEv = logEv.Bool("amount_mismatch", true)
	}
	if res.InvoiceClosed {
		e.metrics.Anomaly(string(paymodel.AuditKindInvoiceClosed))
		logEv = logEv.Bool("invoice_closed", true)
	} else if res.Overpayment.IsPositive() {
		e.metrics.Anomaly(string(paymodel.AuditKindOverpayment))
	}
	if res.Overpayment.IsPositive() {
		logEv = logEv.Str("excess", res.Overpayment.StringFixed(money.Scale))
	}
	logEv.Str("payment", p.PaymentReference).
		Str("provider", p.PaymentProvider).
		Str("amount", p.EffectiveAmount().StringFixed(money.Scale)).
		Str("invoice", res.Invoice.InvoiceNumber).
		Str("invoice_status", string(res.Invoice.InvoiceStatus)).
		Msg("payment completed")
}

/* =========================================================
   Timeout & polling
========================================================= */

// TimeoutPayment fails an open payment that never got a final answer. The
// invoice is not credited by a success arriving afterwards: the payment
// keeps the provider transaction id and a late_confirmation audit is raised
// for the bursar.
func (e *Engine) TimeoutPayment(ctx context.Context, paymentRef string) (*paymodel.Payment, bool, error) {
	p, err := e.store.FindPaymentByReference(ctx, paymentRef)
	if err != nil {
		return nil, false, err
	}
	if p.IsTerminal() {
		return p, false, nil
	}
	var (
		out     paymodel.Payment
		changed bool
	)
	err = e.withPayment(ctx, p, func(tx *gorm.DB, _ *invmodel.Invoice, locked *paymodel.Payment) error {
		out = *locked
		if locked.IsTerminal() {
			return nil
		}
		e.fail(locked, "timed out awaiting provider confirmation")
		if err := ledger.SavePayment(tx, locked); err != nil {
			return err
		}
		out, changed = *locked, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		e.metrics.PaymentFailed(out.PaymentProvider, "timeout")
		e.log.Warn().Str("payment", out.PaymentReference).Str("provider", out.PaymentProvider).Msg("payment timed out")
	}
	return &out, changed, nil
}

// PollPayment asks the provider for a final answer and applies it. The
// provider call happens before any lock is taken.
func (e *Engine) PollPayment(ctx context.Context, paymentRef string, q gateways.StatusQuerier) (ApplyResult, error) {
	p, err := e.store.FindPaymentByReference(ctx, paymentRef)
	if err != nil {
		return ApplyResult{}, err
	}
	if p.IsTerminal() {
		return ApplyResult{Payment: p, AlreadyProcessed: true}, nil
	}
	if p.PaymentStatus != paymodel.PaymentStatusPendingConfirmation {
		return ApplyResult{Payment: p, Pending: true}, nil
	}

	st, err := q.QueryStatus(ctx, p.PaymentExternalReference)
	if err != nil {
		return ApplyResult{}, err
	}
	if !st.Outcome.Final() {
		return ApplyResult{Payment: p, Pending: true}, nil
	}
	return e.ApplyConfirmation(ctx, gateways.WebhookEvent{
		Provider:              p.PaymentProvider,
		EventType:             "status_query",
		ExternalReference:     p.PaymentExternalReference,
		ProviderTransactionID: st.ProviderTransactionID,
		Outcome:               st.Outcome,
		Amount:                st.Amount,
		Reason:                st.Reason,
		ReceivedAt:            e.now(),
	})
}

func (e *Engine) StalePayments(ctx context.Context, cutoff time.Time, limit int) ([]paymodel.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	return e.store.StalePayments(ctx, cutoff, limit)
}

func (e *Engine) GetPayment(ctx context.Context, paymentRef string) (*paymodel.Payment, error) {
	return e.store.FindPaymentByReference(ctx, strings.TrimSpace(paymentRef))
}

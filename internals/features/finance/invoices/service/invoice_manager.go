// file: internals/features/finance/invoices/service/invoice_manager.go
package service

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
	model "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/ledger"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/money"
)

/* =========================================================
   Number generator
========================================================= */

// NumberGenerator hands out unique human-readable invoice numbers.
type NumberGenerator interface {
	Next(ctx context.Context, issuedAt time.Time) (string, error)
}

// SequenceGenerator numbers invoices per calendar year: INV-2026-000001.
type SequenceGenerator struct {
	Store  *ledger.Store
	Prefix string
}

func NewSequenceGenerator(store *ledger.Store) *SequenceGenerator {
	return &SequenceGenerator{Store: store, Prefix: "INV"}
}

func (g *SequenceGenerator) Next(ctx context.Context, issuedAt time.Time) (string, error) {
	key := fmt.Sprintf("%s-%d", g.Prefix, issuedAt.UTC().Year())
	n, err := g.Store.NextSequence(ctx, key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%06d", key, n), nil
}

/* =========================================================
   Manager
========================================================= */

type CreateInvoiceInput struct {
	SchoolID        *uuid.UUID
	EnrollmentID    uuid.UUID
	FeeDefinitionID uuid.UUID
	TotalAmount     decimal.Decimal
	DueDate         time.Time
	Currency        string
	Description     *string
}

// Manager owns invoice lifecycle: creation, payment application and the
// overdue transition.
type Manager struct {
	store    *ledger.Store
	numbers  NumberGenerator
	log      zerolog.Logger
	currency string
	now      func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithDefaultCurrency(code string) Option {
	return func(m *Manager) {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			m.currency = code
		}
	}
}

func NewManager(store *ledger.Store, numbers NumberGenerator, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		numbers:  numbers,
		log:      log,
		currency: "KES",
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*model.Invoice, error) {
	if err := money.ValidatePositive("total_amount", in.TotalAmount); err != nil {
		return nil, err
	}
	if in.EnrollmentID == uuid.Nil {
		return nil, finerr.NewValidationError("enrollment_id", "is required")
	}
	if in.FeeDefinitionID == uuid.Nil {
		return nil, finerr.NewValidationError("fee_definition_id", "is required")
	}
	if in.DueDate.IsZero() {
		return nil, finerr.NewValidationError("due_date", "is required")
	}

	issued := m.now().UTC()
	if dayOf(in.DueDate).Before(dayOf(issued)) {
		return nil, finerr.NewValidationError("due_date", "must not be before the issue date")
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = m.currency
	}

	number, err := m.numbers.Next(ctx, issued)
	if err != nil {
		return nil, fmt.Errorf("generate invoice number: %w", err)
	}

	inv := model.NewInvoice(number, in.EnrollmentID, in.FeeDefinitionID,
		in.TotalAmount.Round(money.Scale), currency, issued, in.DueDate.UTC())
	inv.InvoiceSchoolID = in.SchoolID
	inv.InvoiceDescription = in.Description

	if err := m.store.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	m.log.Info().
		Str("invoice", inv.InvoiceNumber).
		Str("enrollment_id", inv.InvoiceEnrollmentID.String()).
		Str("total", inv.InvoiceTotalAmount.StringFixed(money.Scale)).
		Msg("invoice created")
	return inv, nil
}

// ApplyPayment credits a confirmed amount to an invoice the caller holds
// locked. It returns the part of amount that exceeded the balance.
func (m *Manager) ApplyPayment(inv *model.Invoice, amount decimal.Decimal) (decimal.Decimal, error) {
	prev := inv.InvoiceStatus
	over, err := inv.Credit(amount)
	if err != nil {
		return decimal.Zero, err
	}
	ev := m.log.Info()
	if over.IsPositive() {
		ev = m.log.Warn().Str("overpayment", over.StringFixed(money.Scale))
	}
	ev.Str("invoice", inv.InvoiceNumber).
		Str("amount", amount.StringFixed(money.Scale)).
		Str("from", string(prev)).
		Str("to", string(inv.InvoiceStatus)).
		Str("balance", inv.InvoiceBalanceAmount.StringFixed(money.Scale)).
		Msg("payment applied to invoice")
	return over, nil
}

// MarkOverdue is idempotent; changed reports whether this call flipped the status.
func (m *Manager) MarkOverdue(ctx context.Context, invoiceID uuid.UUID) (*model.Invoice, bool, error) {
	var (
		out     model.Invoice
		changed bool
	)
	now := m.now()
	err := m.store.WithInvoiceLock(ctx, invoiceID, func(_ *gorm.DB, inv *model.Invoice) error {
		changed = inv.MarkOverdue(now)
		out = *inv
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		m.log.Info().Str("invoice", out.InvoiceNumber).Msg("invoice marked overdue")
	}
	return &out, changed, nil
}

// SweepOverdue marks up to limit past-due invoices overdue. Failures on one
// invoice do not stop the sweep.
func (m *Manager) SweepOverdue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	ids, err := m.store.OverdueCandidates(ctx, m.now(), limit)
	if err != nil {
		return 0, err
	}
	marked := 0
	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		_, changed, err := m.MarkOverdue(ctx, id)
		if err != nil {
			m.log.Error().Err(err).Str("invoice_id", id.String()).Msg("overdue sweep failed for invoice")
			errs = append(errs, err)
			continue
		}
		if changed {
			marked++
		}
	}
	return marked, errors.Join(errs...)
}

func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	return m.store.FindInvoice(ctx, id)
}

func (m *Manager) GetByNumber(ctx context.Context, number string) (*model.Invoice, error) {
	return m.store.FindInvoiceByNumber(ctx, strings.TrimSpace(number))
}

func (m *Manager) List(ctx context.Context, f ledger.InvoiceFilter) ([]model.Invoice, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, finerr.NewValidationError("status", "unknown invoice status")
	}
	return m.store.ListInvoices(ctx, f)
}

// Deactivate retires an invoice. It keeps absorbing confirmations for
// payments already in flight but rejects new initiations.
func (m *Manager) Deactivate(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var out model.Invoice
	now := m.now()
	err := m.store.WithInvoiceLock(ctx, id, func(_ *gorm.DB, inv *model.Invoice) error {
		inv.Deactivate(now)
		out = *inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func dayOf(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

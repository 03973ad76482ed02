package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/boazomare1/school-managementKE-sub001/internals/databases/dbtest"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	invmodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/model"
	paymodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
)

var issued = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedInvoice(t *testing.T, s *Store, number, total string) *invmodel.Invoice {
	t.Helper()
	inv := invmodel.NewInvoice(number, uuid.New(), uuid.New(), d(total), "KES", issued, issued.AddDate(0, 1, 0))
	require.NoError(t, s.CreateInvoice(context.Background(), inv))
	return inv
}

func newPayment(inv *invmodel.Invoice, ref, ext string, amount string, requested time.Time) *paymodel.Payment {
	return &paymodel.Payment{
		PaymentInvoiceID:         inv.InvoiceID,
		PaymentReference:         ref,
		PaymentAmount:            d(amount),
		PaymentCurrency:          inv.InvoiceCurrency,
		PaymentStatus:            paymodel.PaymentStatusInitiated,
		PaymentMethod:            paymodel.PaymentMethodMobileMoney,
		PaymentProvider:          paymodel.ProviderMpesa,
		PaymentExternalReference: ext,
		PaymentRequestedAt:       requested,
	}
}

func TestWithInvoiceLockPersistsCredit(t *testing.T) {
	ctx := context.Background()
	s := NewStore(dbtest.Open(t))
	inv := seedInvoice(t, s, "INV-L-1", "1000")

	err := s.WithInvoiceLock(ctx, inv.InvoiceID, func(tx *gorm.DB, locked *invmodel.Invoice) error {
		_, err := locked.Credit(d("300"))
		return err
	})
	require.NoError(t, err)

	got, err := s.FindInvoice(ctx, inv.InvoiceID)
	require.NoError(t, err)
	assert.True(t, got.InvoicePaidAmount.Equal(d("300")))
	assert.True(t, got.InvoiceBalanceAmount.Equal(d("700")))
	assert.Equal(t, invmodel.InvoiceStatusPartial, got.InvoiceStatus)
}

func TestWithInvoiceLockRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore(dbtest.Open(t))
	inv := seedInvoice(t, s, "INV-L-2", "1000")
	boom := errors.New("boom")

	err := s.WithInvoiceLock(ctx, inv.InvoiceID, func(tx *gorm.DB, locked *invmodel.Invoice) error {
		if err := CreatePayment(tx, newPayment(locked, "PAY-RB", "ws_CO_rb", "200", issued)); err != nil {
			return err
		}
		if _, err := locked.Credit(d("200")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.FindPaymentByReference(ctx, "PAY-RB")
	assert.ErrorIs(t, err, finerr.ErrNotFound)

	got, err := s.FindInvoice(ctx, inv.InvoiceID)
	require.NoError(t, err)
	assert.True(t, got.InvoicePaidAmount.IsZero())
	assert.Equal(t, invmodel.InvoiceStatusPending, got.InvoiceStatus)
}

func TestWithInvoiceLockGuardsInvariants(t *testing.T) {
	ctx := context.Background()
	s := NewStore(dbtest.Open(t))
	inv := seedInvoice(t, s, "INV-L-3", "1000")

	require.NoError(t, s.WithInvoiceLock(ctx, inv.InvoiceID, func(tx *gorm.DB, locked *invmodel.Invoice) error {
		_, err := locked.Credit(d("400"))
		return err
	}))

	tests := []struct {
		name   string
		mutate func(*invmodel.Invoice)
		msg    string
	}{
		{
			name: "balance out of step",
			mutate: func(i *invmodel.Invoice) {
				i.InvoicePaidAmount = d("500")
			},
			msg: "balance",
		},
		{
			name: "total changed",
			mutate: func(i *invmodel.Invoice) {
				i.InvoiceTotalAmount = d("2000")
				i.InvoiceBalanceAmount = d("1600")
			},
			msg: "immutable",
		},
		{
			name: "paid decreased",
			mutate: func(i *invmodel.Invoice) {
				i.InvoicePaidAmount = d("100")
				i.InvoiceBalanceAmount = d("900")
			},
			msg: "cannot decrease",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.WithInvoiceLock(ctx, inv.InvoiceID, func(tx *gorm.DB, locked *invmodel.Invoice) error {
				tt.mutate(locked)
				return nil
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)

			got, err := s.FindInvoice(ctx, inv.InvoiceID)
			require.NoError(t, err)
			assert.True(t, got.InvoicePaidAmount.Equal(d("400")))
			assert.True(t, got.InvoiceTotalAmount.Equal(d("1000")))
		})
	}
}

func TestWithInvoiceLockUnknownInvoice(t *testing.T) {
	s := NewStore(dbtest.Open(t))
	called := false
	err := s.WithInvoiceLock(context.Background(), uuid.New(), func(tx *gorm.DB, inv *invmodel.Invoice) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, finerr.ErrNotFound)
	assert.False(t, called)
}

func TestCreateInvoiceDuplicateNumber(t *testing.T) {
	s := NewStore(dbtest.Open(t))
	seedInvoice(t, s, "INV-DUP", "100")

	again := invmodel.NewInvoice("INV-DUP", uuid.New(), uuid.New(), d("100"), "KES", issued, issued)
	err := s.CreateInvoice(context.Background(), again)
	assert.ErrorIs(t, err, finerr.ErrValidation)
}

func TestCreatePaymentDuplicateExternalReference(t *testing.T) {
	ctx := context.Background()
	s := NewStore(dbtest.Open(t))
	inv := seedInvoice(t, s, "INV-L-4", "1000")

	require.NoError(t, s.WithInvoiceLock(ctx, inv.InvoiceID, func(tx *gorm.DB, locked *invmodel.Invoice) error {
		return CreatePayment(tx, newPayment(locked, "PAY-1", "ws_CO_same", "100", issued))
	}))

	err := s.WithInvoiceLock(ctx, inv.InvoiceID, func(tx *gorm.DB, locked *invmodel.Invoice) error {
		return CreatePayment(tx, newPayment(locked, "PAY-2", "ws_CO_same", "100", issued))
	})
	assert.ErrorIs(t, err, finerr.ErrDuplicatePayment)

	p, err := s.FindPaymentByExternalReference(ctx, "ws_CO_same")
	require.NoError(t, err)
	assert.Equal(t, "PAY-1", p.PaymentReference)
}

func TestStalePayments(t *testing.T) {
	ctx := context.Background()
	s := NewStore(dbtest.Open(t))
	inv := seedInvoice(t, s, "INV-L-5", "1000")

	old := newPayment(inv, "PAY-OLD", "ext-old", "100", issued)
	fresh := newPayment(inv, "PAY-NEW", "ext-new", "100", issued.Add(time.Hour))
	done := newPayment(inv, "PAY-DONE", "ext-done", "100", issued)
	done.PaymentStatus = paymodel.PaymentStatusFailed

	require.NoError(t, s.WithInvoiceLock(ctx, inv.InvoiceID, func(tx *gorm.DB, _ *invmodel.Invoice) error {
		for _, p := range []*paymodel.Payment{old, fresh, done} {
			if err := CreatePayment(tx, p); err != nil {
				return err
			}
		}
		return nil
	}))

	rows, err := s.StalePayments(ctx, issued.Add(30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "PAY-OLD", rows[0].PaymentReference)

	all, err := s.ListPaymentsByInvoice(ctx, inv.InvoiceID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListAudits(t *testing.T) {
	ctx := context.Background()
	s := NewStore(dbtest.Open(t))
	inv := seedInvoice(t, s, "INV-L-6", "1000")
	p := newPayment(inv, "PAY-A", "ext-a", "1200", issued)

	require.NoError(t, s.WithInvoiceLock(ctx, inv.InvoiceID, func(tx *gorm.DB, locked *invmodel.Invoice) error {
		if err := CreatePayment(tx, p); err != nil {
			return err
		}
		open := &paymodel.PaymentAudit{
			AuditKind: paymodel.AuditKindOverpayment, AuditPaymentID: p.PaymentID,
			AuditPaymentReference: p.PaymentReference, AuditInvoiceID: locked.InvoiceID,
			AuditInvoiceNumber: locked.InvoiceNumber, AuditExpectedAmount: d("1000"),
			AuditActualAmount: d("1200"), AuditExcessAmount: d("200"),
		}
		resolved := *open
		resolved.AuditKind = paymodel.AuditKindAmountMismatch
		resolved.AuditResolved = true
		if err := RecordAudit(tx, open); err != nil {
			return err
		}
		return RecordAudit(tx, &resolved)
	}))

	rows, total, err := s.ListAudits(ctx, AuditFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, paymodel.AuditKindOverpayment, rows[0].AuditKind)

	_, total, err = s.ListAudits(ctx, AuditFilter{Kind: paymodel.AuditKindAmountMismatch, InvoiceID: &inv.InvoiceID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func strp(s string) *string { return &s }

func TestGatewayEvents(t *testing.T) {
	ctx := context.Background()
	s := NewStore(dbtest.Open(t))

	mpesa := &paymodel.PaymentGatewayEventModel{
		GatewayEventProvider:   "mpesa",
		GatewayEventExternalID: strp("ws_CO_ABC123"),
		GatewayEventReceivedAt: issued,
	}
	stripe := &paymodel.PaymentGatewayEventModel{
		GatewayEventProvider:    "stripe",
		GatewayEventExternalID:  strp("evt_1"),
		GatewayEventExternalRef: strp("pi_abc"),
		GatewayEventReceivedAt:  issued.Add(time.Minute),
	}
	require.NoError(t, s.RecordGatewayEvent(ctx, mpesa))
	require.NoError(t, s.RecordGatewayEvent(ctx, stripe))
	assert.Equal(t, paymodel.GatewayEventStatusReceived, mpesa.GatewayEventStatus)

	payID := uuid.New()
	require.NoError(t, s.UpdateGatewayEvent(ctx, mpesa.GatewayEventID, GatewayEventUpdate{
		Status: paymodel.GatewayEventStatusRequeued, Error: "lock timeout",
	}))
	require.NoError(t, s.UpdateGatewayEvent(ctx, mpesa.GatewayEventID, GatewayEventUpdate{
		Status: paymodel.GatewayEventStatusSuccess, PaymentID: &payID, Type: "stk_callback",
	}))

	got, err := s.FindGatewayEvent(ctx, mpesa.GatewayEventID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.GatewayEventTryCount)
	assert.Equal(t, paymodel.GatewayEventStatusSuccess, got.GatewayEventStatus)
	require.NotNil(t, got.GatewayEventPaymentID)
	assert.Equal(t, payID, *got.GatewayEventPaymentID)
	require.NotNil(t, got.GatewayEventError)
	assert.Equal(t, "lock timeout", *got.GatewayEventError)
	assert.NotNil(t, got.GatewayEventProcessedAt)

	rows, total, err := s.ListGatewayEvents(ctx, GatewayEventFilter{Provider: "MPESA"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, mpesa.GatewayEventID, rows[0].GatewayEventID)

	_, total, err = s.ListGatewayEvents(ctx, GatewayEventFilter{Query: "PI_AB"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	_, total, err = s.ListGatewayEvents(ctx, GatewayEventFilter{Provider: "mpesa", Query: "pi_ab"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)

	_, total, err = s.ListGatewayEvents(ctx, GatewayEventFilter{PaymentID: &payID, Status: paymodel.GatewayEventStatusSuccess})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	all, total, err := s.ListGatewayEvents(ctx, GatewayEventFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, stripe.GatewayEventID, all[0].GatewayEventID)

	_, err = s.FindGatewayEvent(ctx, uuid.New())
	assert.ErrorIs(t, err, finerr.ErrNotFound)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))

	lock := fmt.Errorf("exec: %w", &pgconn.PgError{Code: "55P03"})
	assert.ErrorIs(t, classify(lock), finerr.ErrTransient)

	assert.ErrorIs(t, classify(errors.New("database is locked (5) (SQLITE_BUSY)")), finerr.ErrTransient)
	assert.ErrorIs(t, classify(context.DeadlineExceeded), finerr.ErrTransient)

	unique := &pgconn.PgError{Code: "23505"}
	assert.False(t, errors.Is(classify(unique), finerr.ErrTransient))
	assert.True(t, isUniqueViolation(unique))

	domain := fmt.Errorf("%w: nope", finerr.ErrInvoiceClosed)
	assert.Same(t, domain, classify(domain))
}

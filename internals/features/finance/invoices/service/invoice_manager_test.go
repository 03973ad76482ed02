package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/boazomare1/school-managementKE-sub001/internals/databases/dbtest"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	model "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/ledger"
)

var issued = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newManager(t *testing.T) (*Manager, *ledger.Store, *clock) {
	t.Helper()
	store := ledger.NewStore(dbtest.Open(t))
	clk := &clock{now: issued}
	m := NewManager(store, NewSequenceGenerator(store), zerolog.Nop(), WithClock(clk.Now))
	return m, store, clk
}

func input(total string, due time.Time) CreateInvoiceInput {
	return CreateInvoiceInput{
		EnrollmentID:    uuid.New(),
		FeeDefinitionID: uuid.New(),
		TotalAmount:     decimal.RequireFromString(total),
		DueDate:         due,
	}
}

func TestCreateInvoice(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	inv, err := m.CreateInvoice(ctx, input("1000", issued.AddDate(0, 1, 0)))
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-000001", inv.InvoiceNumber)
	assert.Equal(t, model.InvoiceStatusPending, inv.InvoiceStatus)
	assert.True(t, inv.InvoicePaidAmount.IsZero())
	assert.True(t, inv.InvoiceBalanceAmount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "KES", inv.InvoiceCurrency)

	second, err := m.CreateInvoice(ctx, input("250.50", issued))
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-000002", second.InvoiceNumber)

	got, err := m.GetByNumber(ctx, second.InvoiceNumber)
	require.NoError(t, err)
	assert.Equal(t, second.InvoiceID, got.InvoiceID)
	assert.True(t, got.InvoiceTotalAmount.Equal(decimal.RequireFromString("250.5")))
}

func TestCreateInvoiceValidation(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	cases := map[string]CreateInvoiceInput{
		"zero total":       input("0", issued),
		"negative total":   input("-5", issued),
		"three decimals":   input("10.005", issued),
		"due before issue": input("100", issued.AddDate(0, 0, -1)),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := m.CreateInvoice(ctx, in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, finerr.ErrValidation))
		})
	}
}

func TestSequenceRestartsPerYear(t *testing.T) {
	m, _, clk := newManager(t)
	ctx := context.Background()

	_, err := m.CreateInvoice(ctx, input("10", issued))
	require.NoError(t, err)

	clk.Set(time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC))
	inv, err := m.CreateInvoice(ctx, input("10", clk.Now()))
	require.NoError(t, err)
	assert.Equal(t, "INV-2027-000001", inv.InvoiceNumber)
}

func TestMarkOverdueIsIdempotent(t *testing.T) {
	m, _, clk := newManager(t)
	ctx := context.Background()

	inv, err := m.CreateInvoice(ctx, input("500", issued.AddDate(0, 0, 7)))
	require.NoError(t, err)

	_, changed, err := m.MarkOverdue(ctx, inv.InvoiceID)
	require.NoError(t, err)
	assert.False(t, changed, "not yet due")

	clk.Set(issued.AddDate(0, 0, 8))
	got, changed, err := m.MarkOverdue(ctx, inv.InvoiceID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.InvoiceStatusOverdue, got.InvoiceStatus)

	_, changed, err = m.MarkOverdue(ctx, inv.InvoiceID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSweepOverdue(t *testing.T) {
	m, _, clk := newManager(t)
	ctx := context.Background()

	late, err := m.CreateInvoice(ctx, input("100", issued.AddDate(0, 0, 1)))
	require.NoError(t, err)
	_, err = m.CreateInvoice(ctx, input("100", issued.AddDate(0, 2, 0)))
	require.NoError(t, err)

	clk.Set(issued.AddDate(0, 0, 3))
	n, err := m.SweepOverdue(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := m.Get(ctx, late.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusOverdue, got.InvoiceStatus)

	n, err = m.SweepOverdue(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestApplyPaymentUnderLock(t *testing.T) {
	m, store, _ := newManager(t)
	ctx := context.Background()

	inv, err := m.CreateInvoice(ctx, input("1000", issued.AddDate(0, 1, 0)))
	require.NoError(t, err)

	var over decimal.Decimal
	err = store.WithInvoiceLock(ctx, inv.InvoiceID, func(_ *gorm.DB, locked *model.Invoice) error {
		var err error
		over, err = m.ApplyPayment(locked, decimal.NewFromInt(1200))
		return err
	})
	require.NoError(t, err)
	assert.True(t, over.Equal(decimal.NewFromInt(200)))

	got, err := m.Get(ctx, inv.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPaid, got.InvoiceStatus)
	assert.True(t, got.InvoiceBalanceAmount.IsZero())
	assert.True(t, got.InvoicePaidAmount.Equal(decimal.NewFromInt(1000)))
}

func TestDeactivate(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	inv, err := m.CreateInvoice(ctx, input("100", issued))
	require.NoError(t, err)

	got, err := m.Deactivate(ctx, inv.InvoiceID)
	require.NoError(t, err)
	assert.False(t, got.InvoiceIsActive)
	assert.NotNil(t, got.InvoiceDeactivatedAt)

	rows, total, err := m.List(ctx, ledger.InvoiceFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, rows)

	_, err = m.Deactivate(ctx, uuid.New())
	assert.True(t, errors.Is(err, finerr.ErrNotFound))
}

package invoices

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boazomare1/school-managementKE-sub001/internals/databases/dbtest"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/service"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/ledger"
)

func TestSeedInvoicesIsIdempotent(t *testing.T) {
	store := ledger.NewStore(dbtest.Open(t))
	m := service.NewManager(store, service.NewSequenceGenerator(store), zerolog.Nop())
	ctx := context.Background()

	n, err := SeedInvoicesFromJSON(ctx, m, "data_invoices.json", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = SeedInvoicesFromJSON(ctx, m, "data_invoices.json", zerolog.Nop())
	require.NoError(t, err)
	assert.Zero(t, n)

	rows, total, err := m.List(ctx, ledger.InvoiceFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, "KES", rows[0].InvoiceCurrency)
	for _, inv := range rows {
		assert.True(t, inv.InvoiceDueDate.After(time.Now().UTC()), inv.InvoiceNumber)
	}
}

func TestSeedInvoicesDueDaysFollowClock(t *testing.T) {
	now := time.Date(2031, 7, 14, 16, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := ledger.NewStore(dbtest.Open(t))
	m := service.NewManager(store, service.NewSequenceGenerator(store), zerolog.Nop(), service.WithClock(clock))
	ctx := context.Background()

	n, err := SeedInvoicesFromJSON(ctx, m, "data_invoices.json", zerolog.Nop(), WithClock(clock))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, _, err := m.List(ctx, ledger.InvoiceFilter{})
	require.NoError(t, err)
	var due []string
	for _, inv := range rows {
		due = append(due, inv.InvoiceDueDate.UTC().Format("2006-01-02"))
	}
	assert.ElementsMatch(t, []string{"2031-08-13", "2031-08-13", "2031-08-28"}, due)
}

func TestSeedInvoicesRejectsMissingDueDate(t *testing.T) {
	store := ledger.NewStore(dbtest.Open(t))
	m := service.NewManager(store, service.NewSequenceGenerator(store), zerolog.Nop())

	path := filepath.Join(t.TempDir(), "nodue.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"enrollment_id":"5b0c9f0e-3f59-4f4e-9d6a-1f1a6f2f0a01","fee_definition_id":"9e1d6c1a-7a52-4b7e-8d7e-5c1f8b2a3c01","total_amount":"10.00"}]`), 0o600))

	_, err := SeedInvoicesFromJSON(context.Background(), m, path, zerolog.Nop())
	assert.ErrorContains(t, err, "due_in_days must be positive")
}

func TestSeedInvoicesRejectsBadDate(t *testing.T) {
	store := ledger.NewStore(dbtest.Open(t))
	m := service.NewManager(store, service.NewSequenceGenerator(store), zerolog.Nop())

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"enrollment_id":"5b0c9f0e-3f59-4f4e-9d6a-1f1a6f2f0a01","fee_definition_id":"9e1d6c1a-7a52-4b7e-8d7e-5c1f8b2a3c01","total_amount":"10.00","due_date":"31/01/2026"}]`), 0o600))

	_, err := SeedInvoicesFromJSON(context.Background(), m, path, zerolog.Nop())
	assert.ErrorContains(t, err, "invalid due_date")
}

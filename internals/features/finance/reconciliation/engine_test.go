package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boazomare1/school-managementKE-sub001/internals/databases/dbtest"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways"
	invmodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/model"
	invservice "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/service"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/ledger"
	paymodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	engine  *Engine
	manager *invservice.Manager
	store   *ledger.Store
	seq     int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledger.NewStore(dbtest.Open(t))
	now := func() time.Time { return t0 }
	m := invservice.NewManager(store, invservice.NewSequenceGenerator(store), zerolog.Nop(), invservice.WithClock(now))
	return &fixture{
		engine:  New(store, m, zerolog.Nop(), WithClock(now)),
		manager: m,
		store:   store,
	}
}

func (f *fixture) invoice(t *testing.T, total string) *invmodel.Invoice {
	t.Helper()
	inv, err := f.manager.CreateInvoice(context.Background(), invservice.CreateInvoiceInput{
		EnrollmentID:    uuid.New(),
		FeeDefinitionID: uuid.New(),
		TotalAmount:     d(total),
		DueDate:         t0.AddDate(0, 1, 0),
	})
	require.NoError(t, err)
	return inv
}

// pending records a payment and moves it to pending_confirmation with
// external reference ext.
func (f *fixture) pending(t *testing.T, inv *invmodel.Invoice, amount, provider, ext string) *paymodel.Payment {
	t.Helper()
	f.seq++
	ref := fmt.Sprintf("PAY%04d", f.seq)
	ctx := context.Background()
	_, err := f.engine.RecordInitiatedPayment(ctx, RecordInput{
		InvoiceID:  inv.InvoiceID,
		PaymentRef: ref,
		Amount:     d(amount),
		Method:     paymodel.PaymentMethodMobileMoney,
		Provider:   provider,
	})
	require.NoError(t, err)
	p, err := f.engine.MarkAwaitingConfirmation(ctx, ref, gateways.PendingPayment{PaymentRef: ref, ExternalReference: ext})
	require.NoError(t, err)
	require.Equal(t, paymodel.PaymentStatusPendingConfirmation, p.PaymentStatus)
	return p
}

func success(ext, amount, txID string) gateways.WebhookEvent {
	return gateways.WebhookEvent{
		Provider:              paymodel.ProviderMpesa,
		ExternalReference:     ext,
		ProviderTransactionID: txID,
		Outcome:               gateways.OutcomeSuccess,
		Amount:                d(amount),
	}
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *invmodel.Invoice {
	t.Helper()
	inv, err := f.store.FindInvoice(context.Background(), id)
	require.NoError(t, err)
	return inv
}

func (f *fixture) audits(t *testing.T, invoiceID uuid.UUID) []paymodel.PaymentAudit {
	t.Helper()
	rows, _, err := f.store.ListAudits(context.Background(), ledger.AuditFilter{InvoiceID: &invoiceID})
	require.NoError(t, err)
	return rows
}

func TestScenarios(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "1000")

	f.pending(t, inv, "400", paymodel.ProviderMpesa, "ws_CO_A")
	f.pending(t, inv, "600", paymodel.ProviderMpesa, "ws_CO_B")

	t.Run("A partial payment", func(t *testing.T) {
		res, err := f.engine.ApplyConfirmation(ctx, success("ws_CO_A", "400", "QAA1"))
		require.NoError(t, err)
		assert.False(t, res.AlreadyProcessed)
		assert.Equal(t, paymodel.PaymentStatusCompleted, res.Payment.PaymentStatus)
		assert.Equal(t, "QAA1", *res.Payment.PaymentProviderTransactionID)
		assert.Equal(t, invmodel.InvoiceStatusPartial, res.Invoice.InvoiceStatus)
		assert.True(t, res.Invoice.InvoiceBalanceAmount.Equal(d("600")))
	})

	t.Run("B settles the invoice", func(t *testing.T) {
		res, err := f.engine.ApplyConfirmation(ctx, success("ws_CO_B", "600", "QBB2"))
		require.NoError(t, err)
		assert.Equal(t, invmodel.InvoiceStatusPaid, res.Invoice.InvoiceStatus)
		assert.True(t, res.Invoice.InvoiceBalanceAmount.IsZero())
		assert.True(t, res.Overpayment.IsZero())
	})

	t.Run("C duplicate delivery is a no-op", func(t *testing.T) {
		res, err := f.engine.ApplyConfirmation(ctx, success("ws_CO_B", "600", "QBB2"))
		require.NoError(t, err)
		assert.True(t, res.AlreadyProcessed)

		got := f.reload(t, inv.InvoiceID)
		assert.True(t, got.InvoicePaidAmount.Equal(d("1000")))
		assert.Equal(t, invmodel.InvoiceStatusPaid, got.InvoiceStatus)
	})

	assert.Empty(t, f.audits(t, inv.InvoiceID))
}

func TestScenarioTimeoutThenLateWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "1000")
	p := f.pending(t, inv, "1000", paymodel.ProviderMpesa, "ws_CO_D")

	timedOut, changed, err := f.engine.TimeoutPayment(ctx, p.PaymentReference)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, paymodel.PaymentStatusFailed, timedOut.PaymentStatus)
	require.NotNil(t, timedOut.PaymentFailureReason)

	_, changed, err = f.engine.TimeoutPayment(ctx, p.PaymentReference)
	require.NoError(t, err)
	assert.False(t, changed)

	res, err := f.engine.ApplyConfirmation(ctx, success("ws_CO_D", "1000", "QDD4"))
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)
	assert.True(t, res.LateConfirmation)
	assert.Equal(t, paymodel.PaymentStatusFailed, res.Payment.PaymentStatus)
	require.NotNil(t, res.Payment.PaymentProviderTransactionID)
	assert.Equal(t, "QDD4", *res.Payment.PaymentProviderTransactionID)

	got := f.reload(t, inv.InvoiceID)
	assert.True(t, got.InvoicePaidAmount.IsZero())
	assert.Equal(t, invmodel.InvoiceStatusPending, got.InvoiceStatus)

	audits := f.audits(t, inv.InvoiceID)
	require.Len(t, audits, 1)
	assert.Equal(t, paymodel.AuditKindLateConfirmation, audits[0].AuditKind)
	assert.Equal(t, p.PaymentReference, audits[0].AuditPaymentReference)
	assert.True(t, audits[0].AuditActualAmount.Equal(d("1000")))
	assert.False(t, audits[0].AuditResolved)
	require.NotNil(t, audits[0].AuditNote)
	assert.Contains(t, *audits[0].AuditNote, "QDD4")

	// the provider redelivers; still one audit
	res, err = f.engine.ApplyConfirmation(ctx, success("ws_CO_D", "1000", "QDD4"))
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)
	assert.False(t, res.LateConfirmation)
	assert.Len(t, f.audits(t, inv.InvoiceID), 1)

	// a late failure needs no follow-up
	fail := success("ws_CO_D", "1000", "")
	fail.Outcome = gateways.OutcomeFailure
	res, err = f.engine.ApplyConfirmation(ctx, fail)
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)
	assert.Len(t, f.audits(t, inv.InvoiceID), 1)
}

func TestCallbackReceiptKeptAfterPoll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "300")
	p := f.pending(t, inv, "300", paymodel.ProviderMpesa, "ws_CO_RCPT")

	// STK query answers without a receipt number
	q := &fakeQuerier{result: gateways.StatusResult{Outcome: gateways.OutcomeSuccess, Amount: d("300")}}
	res, err := f.engine.PollPayment(ctx, p.PaymentReference, q)
	require.NoError(t, err)
	require.Equal(t, paymodel.PaymentStatusCompleted, res.Payment.PaymentStatus)
	assert.Nil(t, res.Payment.PaymentProviderTransactionID)

	res, err = f.engine.ApplyConfirmation(ctx, success("ws_CO_RCPT", "300", "QRCPT9"))
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)
	assert.False(t, res.LateConfirmation)
	require.NotNil(t, res.Payment.PaymentProviderTransactionID)
	assert.Equal(t, "QRCPT9", *res.Payment.PaymentProviderTransactionID)

	stored, err := f.store.FindPaymentByReference(ctx, p.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, "QRCPT9", *stored.PaymentProviderTransactionID)
	assert.True(t, f.reload(t, inv.InvoiceID).InvoicePaidAmount.Equal(d("300")))
	assert.Empty(t, f.audits(t, inv.InvoiceID))

	// a different receipt later does not overwrite the first
	res, err = f.engine.ApplyConfirmation(ctx, success("ws_CO_RCPT", "300", "QOTHER"))
	require.NoError(t, err)
	assert.Equal(t, "QRCPT9", *res.Payment.PaymentProviderTransactionID)
}

func TestScenarioAmountMismatch(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, "1000")
	f.pending(t, inv, "1000", paymodel.ProviderMpesa, "ws_CO_E")

	res, err := f.engine.ApplyConfirmation(context.Background(), success("ws_CO_E", "950", "QEE5"))
	require.NoError(t, err)
	assert.True(t, res.AmountMismatch)
	assert.True(t, res.Payment.PaymentConfirmedAmount.Decimal.Equal(d("950")))
	assert.True(t, res.Invoice.InvoicePaidAmount.Equal(d("950")))
	assert.True(t, res.Invoice.InvoiceBalanceAmount.Equal(d("50")))
	assert.Equal(t, invmodel.InvoiceStatusPartial, res.Invoice.InvoiceStatus)

	audits := f.audits(t, inv.InvoiceID)
	require.Len(t, audits, 1)
	assert.Equal(t, paymodel.AuditKindAmountMismatch, audits[0].AuditKind)
	assert.True(t, audits[0].AuditExpectedAmount.Equal(d("1000")))
	assert.True(t, audits[0].AuditActualAmount.Equal(d("950")))
}

func TestFailureLeavesInvoiceUntouched(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, "500")
	f.pending(t, inv, "500", paymodel.ProviderMpesa, "ws_CO_F")

	res, err := f.engine.ApplyConfirmation(context.Background(), gateways.WebhookEvent{
		Provider:          paymodel.ProviderMpesa,
		ExternalReference: "ws_CO_F",
		Outcome:           gateways.OutcomeFailure,
		Reason:            "Request cancelled by user",
	})
	require.NoError(t, err)
	assert.Equal(t, paymodel.PaymentStatusFailed, res.Payment.PaymentStatus)
	assert.Equal(t, "Request cancelled by user", *res.Payment.PaymentFailureReason)
	assert.True(t, res.Invoice.InvoicePaidAmount.IsZero())
	assert.Equal(t, invmodel.InvoiceStatusPending, res.Invoice.InvoiceStatus)
}

func TestOutOfOrderConfirmations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "1000")
	f.pending(t, inv, "300", paymodel.ProviderMpesa, "ws_CO_1")
	f.pending(t, inv, "700", paymodel.ProviderMpesa, "ws_CO_2")

	// second payment confirms first, failure for it replays afterwards
	_, err := f.engine.ApplyConfirmation(ctx, success("ws_CO_2", "700", "Q2"))
	require.NoError(t, err)
	res, err := f.engine.ApplyConfirmation(ctx, gateways.WebhookEvent{
		Provider: paymodel.ProviderMpesa, ExternalReference: "ws_CO_2", Outcome: gateways.OutcomeFailure,
	})
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)
	assert.Equal(t, paymodel.PaymentStatusCompleted, res.Payment.PaymentStatus)

	_, err = f.engine.ApplyConfirmation(ctx, success("ws_CO_1", "300", "Q1"))
	require.NoError(t, err)

	got := f.reload(t, inv.InvoiceID)
	assert.Equal(t, invmodel.InvoiceStatusPaid, got.InvoiceStatus)
	assert.True(t, got.InvoicePaidAmount.Equal(d("1000")))
}

func TestOverpaymentAndClosedInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "1000")
	f.pending(t, inv, "800", paymodel.ProviderMpesa, "ws_CO_O1")
	f.pending(t, inv, "800", paymodel.ProviderMpesa, "ws_CO_O2")

	_, err := f.engine.ApplyConfirmation(ctx, success("ws_CO_O1", "800", "QO1"))
	require.NoError(t, err)

	res, err := f.engine.ApplyConfirmation(ctx, success("ws_CO_O2", "800", "QO2"))
	require.NoError(t, err)
	assert.True(t, res.Overpayment.Equal(d("600")))
	assert.Equal(t, invmodel.InvoiceStatusPaid, res.Invoice.InvoiceStatus)
	assert.True(t, res.Invoice.InvoiceBalanceAmount.IsZero())

	// the invoice is paid now, new payments are refused up front
	_, err = f.engine.RecordInitiatedPayment(ctx, RecordInput{
		InvoiceID: inv.InvoiceID, PaymentRef: "PAY-LATE", Amount: d("10"),
		Method: paymodel.PaymentMethodManual, Provider: paymodel.ProviderManual,
	})
	assert.ErrorIs(t, err, finerr.ErrInvoiceClosed)

	audits := f.audits(t, inv.InvoiceID)
	require.Len(t, audits, 1)
	assert.Equal(t, paymodel.AuditKindOverpayment, audits[0].AuditKind)
	assert.True(t, audits[0].AuditExcessAmount.Equal(d("600")))
}

func TestConfirmationForPaidInvoiceIsFlagged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "100")
	f.pending(t, inv, "100", paymodel.ProviderMpesa, "ws_CO_P1")
	f.pending(t, inv, "100", paymodel.ProviderMpesa, "ws_CO_P2")

	_, err := f.engine.ApplyConfirmation(ctx, success("ws_CO_P1", "100", "QP1"))
	require.NoError(t, err)
	res, err := f.engine.ApplyConfirmation(ctx, success("ws_CO_P2", "100", "QP2"))
	require.NoError(t, err)
	assert.True(t, res.InvoiceClosed)
	assert.Equal(t, paymodel.PaymentStatusCompleted, res.Payment.PaymentStatus)
	assert.True(t, res.Invoice.InvoicePaidAmount.Equal(d("100")))

	audits := f.audits(t, inv.InvoiceID)
	require.Len(t, audits, 1)
	assert.Equal(t, paymodel.AuditKindInvoiceClosed, audits[0].AuditKind)
	assert.True(t, audits[0].AuditExcessAmount.Equal(d("100")))
}

func TestUnknownPaymentAndProviderMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "100")
	f.pending(t, inv, "100", paymodel.ProviderMpesa, "ws_CO_U")

	_, err := f.engine.ApplyConfirmation(ctx, success("nope", "100", "X"))
	assert.ErrorIs(t, err, finerr.ErrUnknownPayment)

	ev := success("ws_CO_U", "100", "X")
	ev.Provider = paymodel.ProviderStripe
	_, err = f.engine.ApplyConfirmation(ctx, ev)
	assert.ErrorIs(t, err, finerr.ErrUnknownPayment)

	ev.Outcome = gateways.OutcomePending
	_, err = f.engine.ApplyConfirmation(ctx, ev)
	assert.ErrorIs(t, err, finerr.ErrValidation)
}

func TestConfirmationBeforePendingIsTransient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "100")
	_, err := f.engine.RecordInitiatedPayment(ctx, RecordInput{
		InvoiceID: inv.InvoiceID, PaymentRef: "PAYEARLY", Amount: d("100"),
		Method: paymodel.PaymentMethodMobileMoney, Provider: paymodel.ProviderMpesa,
	})
	require.NoError(t, err)

	_, err = f.engine.ApplyConfirmation(ctx, success("PAYEARLY", "100", "Q"))
	require.Error(t, err)
	assert.True(t, finerr.IsTransient(err))
	assert.ErrorIs(t, err, finerr.ErrPaymentNotReady)

	got := f.reload(t, inv.InvoiceID)
	assert.True(t, got.InvoicePaidAmount.IsZero())
}

func TestManualPaymentCompletesDirectly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "300")
	p, err := f.engine.RecordInitiatedPayment(ctx, RecordInput{
		InvoiceID: inv.InvoiceID, PaymentRef: "PAYCASH", Amount: d("300"),
		Method: paymodel.PaymentMethodManual, Provider: paymodel.ProviderManual,
	})
	require.NoError(t, err)
	assert.Equal(t, "PAYCASH", p.PaymentExternalReference)

	res, err := f.engine.ApplyConfirmation(ctx, gateways.WebhookEvent{
		Provider: paymodel.ProviderManual, ExternalReference: "PAYCASH",
		ProviderTransactionID: "PAYCASH", Outcome: gateways.OutcomeSuccess, Amount: d("300"),
	})
	require.NoError(t, err)
	assert.Equal(t, paymodel.PaymentStatusCompleted, res.Payment.PaymentStatus)
	assert.Equal(t, invmodel.InvoiceStatusPaid, res.Invoice.InvoiceStatus)
}

func TestRecordInitiatedPaymentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "100")

	base := RecordInput{
		InvoiceID: inv.InvoiceID, PaymentRef: "PAYV", Amount: d("10"),
		Method: paymodel.PaymentMethodCard, Provider: paymodel.ProviderStripe,
	}
	cases := map[string]func(*RecordInput){
		"zero amount":    func(in *RecordInput) { in.Amount = decimal.Zero },
		"three decimal":  func(in *RecordInput) { in.Amount = d("1.005") },
		"bad method":     func(in *RecordInput) { in.Method = "cheque" },
		"no reference":   func(in *RecordInput) { in.PaymentRef = " " },
		"wrong currency": func(in *RecordInput) { in.Currency = "USD" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			_, err := f.engine.RecordInitiatedPayment(ctx, in)
			assert.ErrorIs(t, err, finerr.ErrValidation)
		})
	}

	_, err := f.engine.RecordInitiatedPayment(ctx, RecordInput{
		InvoiceID: uuid.New(), PaymentRef: "PAYX", Amount: d("1"),
		Method: paymodel.PaymentMethodCard, Provider: paymodel.ProviderStripe,
	})
	assert.ErrorIs(t, err, finerr.ErrNotFound)

	_, err = f.engine.RecordInitiatedPayment(ctx, base)
	require.NoError(t, err)
	_, err = f.engine.RecordInitiatedPayment(ctx, base)
	assert.ErrorIs(t, err, finerr.ErrDuplicatePayment)
}

func TestRejectPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "100")
	_, err := f.engine.RecordInitiatedPayment(ctx, RecordInput{
		InvoiceID: inv.InvoiceID, PaymentRef: "PAYREJ", Amount: d("100"),
		Method: paymodel.PaymentMethodCard, Provider: paymodel.ProviderStripe,
	})
	require.NoError(t, err)

	p, err := f.engine.RejectPayment(ctx, "PAYREJ", "card declined")
	require.NoError(t, err)
	assert.Equal(t, paymodel.PaymentStatusFailed, p.PaymentStatus)

	// a later async acceptance does not resurrect it
	p, err = f.engine.MarkAwaitingConfirmation(ctx, "PAYREJ", gateways.PendingPayment{ExternalReference: "pi_123"})
	require.NoError(t, err)
	assert.Equal(t, paymodel.PaymentStatusFailed, p.PaymentStatus)
	assert.Equal(t, "PAYREJ", p.PaymentExternalReference)
}

type fakeQuerier struct {
	result gateways.StatusResult
	err    error
	calls  int
}

func (q *fakeQuerier) QueryStatus(context.Context, string) (gateways.StatusResult, error) {
	q.calls++
	return q.result, q.err
}

func TestPollPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "250")
	p := f.pending(t, inv, "250", paymodel.ProviderMpesa, "ws_CO_POLL")

	q := &fakeQuerier{result: gateways.StatusResult{Outcome: gateways.OutcomePending}}
	res, err := f.engine.PollPayment(ctx, p.PaymentReference, q)
	require.NoError(t, err)
	assert.True(t, res.Pending)

	q.err = fmt.Errorf("%w: daraja down", finerr.ErrProviderUnavailable)
	_, err = f.engine.PollPayment(ctx, p.PaymentReference, q)
	assert.ErrorIs(t, err, finerr.ErrProviderUnavailable)

	q.err = nil
	q.result = gateways.StatusResult{Outcome: gateways.OutcomeSuccess, Amount: d("250"), ProviderTransactionID: "QPOLL"}
	res, err = f.engine.PollPayment(ctx, p.PaymentReference, q)
	require.NoError(t, err)
	assert.Equal(t, paymodel.PaymentStatusCompleted, res.Payment.PaymentStatus)
	assert.Equal(t, invmodel.InvoiceStatusPaid, res.Invoice.InvoiceStatus)

	res, err = f.engine.PollPayment(ctx, p.PaymentReference, q)
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)
	assert.Equal(t, 3, q.calls)
}

func TestStalePayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "100")
	p := f.pending(t, inv, "50", paymodel.ProviderMpesa, "ws_CO_S")

	stale, err := f.engine.StalePayments(ctx, t0.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, p.PaymentReference, stale[0].PaymentReference)

	stale, err = f.engine.StalePayments(ctx, t0.Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestConcurrentConfirmations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "1000")

	const n = 10
	for i := 0; i < n; i++ {
		f.pending(t, inv, "100", paymodel.ProviderMpesa, fmt.Sprintf("ws_CO_C%02d", i))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		applied   int
		duplicate int
		errs      []error
	)
	// every confirmation is delivered twice, concurrently
	for i := 0; i < n*2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ext := fmt.Sprintf("ws_CO_C%02d", i%n)
			res, err := f.engine.ApplyConfirmation(ctx, success(ext, "100", "Q"+ext))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				errs = append(errs, err)
			case res.AlreadyProcessed:
				duplicate++
			default:
				applied++
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, n, applied)
	assert.Equal(t, n, duplicate)

	got := f.reload(t, inv.InvoiceID)
	assert.True(t, got.InvoicePaidAmount.Equal(d("1000")))
	assert.True(t, got.InvoiceBalanceAmount.IsZero())
	assert.Equal(t, invmodel.InvoiceStatusPaid, got.InvoiceStatus)
	assert.Empty(t, f.audits(t, inv.InvoiceID))
}

func TestLedgerErrorsAreNotSwallowed(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.GetPayment(context.Background(), "PAYNONE")
	assert.True(t, errors.Is(err, finerr.ErrNotFound))
}

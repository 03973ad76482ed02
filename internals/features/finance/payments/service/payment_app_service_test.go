package service

import (
	"context"
	"fmt"
	"net/http"
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
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/gateways/manual"
	invmodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/model"
	invservice "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/service"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/ledger"
	model "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/reconciliation"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/idgen"
)

// pushAdapter behaves like an STK push provider.
type pushAdapter struct {
	initiateErr error
	status      gateways.StatusResult
	lastReq     gateways.InitiateRequest
	cancelled   []string
	cancelErr   error
}

func (a *pushAdapter) Name() string { return "push" }

func (a *pushAdapter) Methods() []model.PaymentMethod {
	return []model.PaymentMethod{model.PaymentMethodMobileMoney}
}

func (a *pushAdapter) NormalizeContact(c string) (string, error) {
	if len(c) < 9 {
		return "", finerr.NewValidationError("payer_contact", "too short")
	}
	return "254" + c[len(c)-9:], nil
}

func (a *pushAdapter) Initiate(_ context.Context, req gateways.InitiateRequest) (gateways.PendingPayment, error) {
	a.lastReq = req
	if a.initiateErr != nil {
		return gateways.PendingPayment{}, a.initiateErr
	}
	return gateways.PendingPayment{
		PaymentRef:        req.PaymentRef,
		ExternalReference: "ws_CO_" + req.PaymentRef,
		PromptRequired:    true,
		Status:            model.PaymentStatusPendingConfirmation,
	}, nil
}

func (a *pushAdapter) QueryStatus(context.Context, string) (gateways.StatusResult, error) {
	return a.status, nil
}

func (a *pushAdapter) Cancel(_ context.Context, ext string) error {
	a.cancelled = append(a.cancelled, ext)
	return a.cancelErr
}

func (a *pushAdapter) NormalizeCallback([]byte, http.Header) (gateways.WebhookEvent, error) {
	return gateways.WebhookEvent{}, finerr.ErrUnsupported
}

func (a *pushAdapter) Acknowledge(error) gateways.Ack { return gateways.Ack{Status: http.StatusOK} }

func newService(t *testing.T) (*PaymentService, *pushAdapter, *invmodel.Invoice) {
	t.Helper()
	store := ledger.NewStore(dbtest.Open(t))
	m := invservice.NewManager(store, invservice.NewSequenceGenerator(store), zerolog.Nop())
	engine := reconciliation.New(store, m, zerolog.Nop())

	push := &pushAdapter{}
	reg := gateways.NewRegistry()
	reg.Register(manual.New())
	reg.Register(push)

	ids, err := idgen.New(7)
	require.NoError(t, err)

	inv, err := m.CreateInvoice(context.Background(), invservice.CreateInvoiceInput{
		EnrollmentID:    uuid.New(),
		FeeDefinitionID: uuid.New(),
		TotalAmount:     decimal.NewFromInt(1000),
		DueDate:         time.Now().UTC().AddDate(0, 1, 0),
	})
	require.NoError(t, err)
	return NewPaymentService(reg, engine, m, store, ids, zerolog.Nop()), push, inv
}

func TestInitiateManualPayment(t *testing.T) {
	s, _, inv := newService(t)
	clerk := uuid.New()

	res, err := s.InitiatePayment(context.Background(), InitiateInput{
		InvoiceID:  inv.InvoiceID,
		Amount:     decimal.NewFromInt(400),
		Method:     model.PaymentMethodManual,
		Note:       "cash at bursar",
		RecordedBy: &clerk,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, res.Payment.PaymentStatus)
	assert.Equal(t, model.ProviderManual, res.Payment.PaymentProvider)
	assert.Equal(t, "cash at bursar", *res.Payment.PaymentNote)
	assert.Equal(t, clerk, *res.Payment.PaymentRecordedBy)
	require.NotNil(t, res.Invoice)
	assert.Equal(t, invmodel.InvoiceStatusPartial, res.Invoice.InvoiceStatus)
	assert.True(t, res.Invoice.InvoiceBalanceAmount.Equal(decimal.NewFromInt(600)))
	assert.Regexp(t, `^PAY\d+$`, res.Payment.PaymentReference)
}

func TestInitiatePushPayment(t *testing.T) {
	s, push, inv := newService(t)
	ctx := context.Background()

	_, err := s.InitiatePayment(ctx, InitiateInput{
		InvoiceID: inv.InvoiceID, Amount: decimal.NewFromInt(1000), Method: model.PaymentMethodMobileMoney,
	})
	assert.ErrorIs(t, err, finerr.ErrValidation)

	res, err := s.InitiatePayment(ctx, InitiateInput{
		InvoiceID:    inv.InvoiceID,
		Amount:       decimal.NewFromInt(1000),
		Method:       model.PaymentMethodMobileMoney,
		PayerContact: "0712345678",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPendingConfirmation, res.Payment.PaymentStatus)
	assert.True(t, res.Pending.PromptRequired)
	assert.Equal(t, "254712345678", push.lastReq.PayerContact)
	assert.Equal(t, inv.InvoiceNumber, push.lastReq.InvoiceNumber)
	assert.Equal(t, "ws_CO_"+res.Payment.PaymentReference, res.Payment.PaymentExternalReference)

	ref := res.Payment.PaymentReference
	push.status = gateways.StatusResult{Outcome: gateways.OutcomePending}
	polled, err := s.RefreshStatus(ctx, ref)
	require.NoError(t, err)
	assert.True(t, polled.Pending)

	push.status = gateways.StatusResult{Outcome: gateways.OutcomeSuccess, Amount: decimal.NewFromInt(1000), ProviderTransactionID: "QZ1"}
	polled, err = s.RefreshStatus(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, polled.Payment.PaymentStatus)
	assert.Equal(t, invmodel.InvoiceStatusPaid, polled.Invoice.InvoiceStatus)

	rows, err := s.ListByInvoice(ctx, inv.InvoiceID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestInitiateProviderRejection(t *testing.T) {
	s, push, inv := newService(t)
	ctx := context.Background()
	push.initiateErr = fmt.Errorf("%w: insufficient balance", finerr.ErrProviderRejected)

	_, err := s.InitiatePayment(ctx, InitiateInput{
		InvoiceID: inv.InvoiceID, Amount: decimal.NewFromInt(100),
		Method: model.PaymentMethodMobileMoney, PayerContact: "0712345678",
	})
	assert.ErrorIs(t, err, finerr.ErrProviderRejected)

	rows, err := s.ListByInvoice(ctx, inv.InvoiceID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.PaymentStatusFailed, rows[0].PaymentStatus)
	require.NotNil(t, rows[0].PaymentFailureReason)
	assert.Contains(t, *rows[0].PaymentFailureReason, "insufficient balance")
}

func TestInitiateUnknownMethodOrInvoice(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	_, err := s.InitiatePayment(ctx, InitiateInput{InvoiceID: uuid.New(), Amount: decimal.NewFromInt(1), Method: "cheque"})
	assert.ErrorIs(t, err, finerr.ErrValidation)

	_, err = s.InitiatePayment(ctx, InitiateInput{InvoiceID: uuid.New(), Amount: decimal.NewFromInt(1), Method: model.PaymentMethodManual})
	assert.ErrorIs(t, err, finerr.ErrNotFound)
}

func TestTimeoutCancelsProviderCheckout(t *testing.T) {
	s, push, inv := newService(t)
	ctx := context.Background()

	res, err := s.InitiatePayment(ctx, InitiateInput{
		InvoiceID: inv.InvoiceID, Amount: decimal.NewFromInt(1000),
		Method: model.PaymentMethodMobileMoney, PayerContact: "0712345678",
	})
	require.NoError(t, err)
	ref := res.Payment.PaymentReference

	// a provider error is logged, the local timeout still stands
	push.cancelErr = fmt.Errorf("%w: already settled", finerr.ErrProviderRejected)
	p, changed, err := s.Timeout(ctx, ref)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.PaymentStatusFailed, p.PaymentStatus)
	assert.Equal(t, []string{"ws_CO_" + ref}, push.cancelled)

	_, changed, err = s.Timeout(ctx, ref)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, push.cancelled, 1)
}

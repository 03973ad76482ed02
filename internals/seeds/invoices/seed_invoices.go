package invoices

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	invmodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/model"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/service"
	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/ledger"
)

// InvoiceSeed: satu baris data_invoices.json.
// Jatuh tempo diisi lewat due_in_days (relatif ke hari seeding) atau
// due_date (YYYY-MM-DD); due_date menang kalau dua-duanya ada.
type InvoiceSeed struct {
	SchoolID        *uuid.UUID      `json:"school_id"`
	EnrollmentID    uuid.UUID       `json:"enrollment_id"`
	FeeDefinitionID uuid.UUID       `json:"fee_definition_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	DueDate         string          `json:"due_date"`
	DueInDays       int             `json:"due_in_days"`
	Currency        string          `json:"currency"`
	Description     *string         `json:"description"`
}

type options struct {
	now func() time.Time
}

type Option func(*options)

// WithClock mengganti jam yang dipakai untuk due_in_days.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func (r InvoiceSeed) dueDate(today time.Time) (time.Time, error) {
	if r.DueDate != "" {
		due, err := time.Parse("2006-01-02", r.DueDate)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid due_date %q", r.DueDate)
		}
		return due, nil
	}
	if r.DueInDays <= 0 {
		return time.Time{}, fmt.Errorf("due_in_days must be positive, got %d", r.DueInDays)
	}
	return today.AddDate(0, 0, r.DueInDays), nil
}

type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, in service.CreateInvoiceInput) (*invmodel.Invoice, error)
	List(ctx context.Context, f ledger.InvoiceFilter) ([]invmodel.Invoice, int64, error)
}

// SeedInvoicesFromJSON membuat invoice demo. Pasangan enrollment + fee
// definition yang sudah punya invoice dilewati, jadi aman dijalankan ulang.
func SeedInvoicesFromJSON(ctx context.Context, m InvoiceCreator, filePath string, log zerolog.Logger, opts ...Option) (int, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	now := o.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	log.Info().Str("file", filePath).Msg("reading invoice seeds")

	raw, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var rows []InvoiceSeed
	if err := sonic.Unmarshal(raw, &rows); err != nil {
		return 0, fmt.Errorf("decode seed file: %w", err)
	}

	created := 0
	for i, r := range rows {
		due, err := r.dueDate(today)
		if err != nil {
			return created, fmt.Errorf("row %d: %w", i, err)
		}

		exists, err := hasInvoice(ctx, m, r.EnrollmentID, r.FeeDefinitionID)
		if err != nil {
			return created, err
		}
		if exists {
			log.Debug().Str("enrollment_id", r.EnrollmentID.String()).Msg("invoice already seeded, skipping")
			continue
		}

		inv, err := m.CreateInvoice(ctx, service.CreateInvoiceInput{
			SchoolID:        r.SchoolID,
			EnrollmentID:    r.EnrollmentID,
			FeeDefinitionID: r.FeeDefinitionID,
			TotalAmount:     r.TotalAmount,
			DueDate:         due,
			Currency:        r.Currency,
			Description:     r.Description,
		})
		if err != nil {
			return created, fmt.Errorf("row %d: %w", i, err)
		}
		created++
		log.Info().Str("invoice", inv.InvoiceNumber).Msg("invoice seeded")
	}
	return created, nil
}

func hasInvoice(ctx context.Context, m InvoiceCreator, enrollmentID, feeDefinitionID uuid.UUID) (bool, error) {
	rows, _, err := m.List(ctx, ledger.InvoiceFilter{EnrollmentID: &enrollmentID, Limit: 200})
	if err != nil {
		return false, err
	}
	for _, inv := range rows {
		if inv.InvoiceFeeDefinitionID == feeDefinitionID {
			return true, nil
		}
	}
	return false, nil
}

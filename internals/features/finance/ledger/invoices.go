package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	invmodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/model"
)

type InvoiceFilter struct {
	SchoolID     *uuid.UUID
	EnrollmentID *uuid.UUID
	Status       invmodel.InvoiceStatus
	ActiveOnly   bool
	Limit        int
	Offset       int
}

func (s *Store) CreateInvoice(ctx context.Context, inv *invmodel.Invoice) error {
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: invoice number %s already exists", finerr.ErrValidation, inv.InvoiceNumber)
		}
		return classify(err)
	}
	return nil
}

func (s *Store) FindInvoice(ctx context.Context, id uuid.UUID) (*invmodel.Invoice, error) {
	var inv invmodel.Invoice
	if err := s.db.WithContext(ctx).Where("invoice_id = ?", id).Take(&inv).Error; err != nil {
		return nil, notFound(err, "invoice "+id.String())
	}
	return &inv, nil
}

func (s *Store) FindInvoiceByNumber(ctx context.Context, number string) (*invmodel.Invoice, error) {
	var inv invmodel.Invoice
	if err := s.db.WithContext(ctx).Where("invoice_number = ?", number).Take(&inv).Error; err != nil {
		return nil, notFound(err, "invoice "+number)
	}
	return &inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, f InvoiceFilter) ([]invmodel.Invoice, int64, error) {
	q := s.db.WithContext(ctx).Model(&invmodel.Invoice{})
	if f.SchoolID != nil {
		q = q.Where("invoice_school_id = ?", *f.SchoolID)
	}
	if f.EnrollmentID != nil {
		q = q.Where("invoice_enrollment_id = ?", *f.EnrollmentID)
	}
	if f.Status != "" {
		q = q.Where("invoice_status = ?", f.Status)
	}
	if f.ActiveOnly {
		q = q.Where("invoice_is_active = ?", true)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, classify(err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	var rows []invmodel.Invoice
	if err := q.Order("invoice_issue_date DESC, invoice_number DESC").
		Limit(limit).Offset(f.Offset).
		Find(&rows).Error; err != nil {
		return nil, 0, classify(err)
	}
	return rows, total, nil
}

// OverdueCandidates lists active invoices past due with a positive balance
// that are not yet marked overdue.
func (s *Store) OverdueCandidates(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&invmodel.Invoice{}).
		Where("invoice_due_date < ?", now).
		Where("invoice_balance_amount > 0").
		Where("invoice_is_active = ?", true).
		Where("invoice_status IN ?", []invmodel.InvoiceStatus{invmodel.InvoiceStatusPending, invmodel.InvoiceStatusPartial}).
		Order("invoice_due_date ASC").
		Limit(limit).
		Pluck("invoice_id", &ids).Error
	return ids, classify(err)
}

// NextSequence increments and returns the counter for key inside its own
// transaction. Gaps are possible when the caller later fails.
func (s *Store) NextSequence(ctx context.Context, key string) (int64, error) {
	return s.nextSequence(ctx, key, 3)
}

func (s *Store) nextSequence(ctx context.Context, key string, attempts int) (int64, error) {
	var next int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq invmodel.InvoiceSequence
		err := tx.Clauses(lockingUpdate()).Where("seq_key = ?", key).Take(&seq).Error
		switch {
		case err == nil:
			seq.LastValue++
			next = seq.LastValue
			return tx.Model(&invmodel.InvoiceSequence{}).
				Where("seq_key = ?", key).
				Update("last_value", seq.LastValue).Error
		case isNotFound(err):
			next = 1
			return tx.Create(&invmodel.InvoiceSequence{SeqKey: key, LastValue: 1}).Error
		default:
			return err
		}
	})
	if err != nil {
		if isUniqueViolation(err) && attempts > 1 {
			// first row for key raced with another creator; the row exists now
			return s.nextSequence(ctx, key, attempts-1)
		}
		return 0, classify(err)
	}
	return next, nil
}

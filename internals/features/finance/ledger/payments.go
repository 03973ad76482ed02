package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	paymodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/payments/model"
)

func lockingUpdate() clause.Locking { return clause.Locking{Strength: "UPDATE"} }

func isNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }

// CreatePayment inserts p inside the caller's transaction. The unique
// constraints on payment_reference and payment_external_reference are the
// last guard against duplicate initiations.
func CreatePayment(tx *gorm.DB, p *paymodel.Payment) error {
	if err := tx.Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", finerr.ErrDuplicatePayment, p.PaymentExternalReference)
		}
		return err
	}
	return nil
}

// LockPayment re-reads a payment FOR UPDATE inside an invoice lock.
func LockPayment(tx *gorm.DB, id uuid.UUID) (*paymodel.Payment, error) {
	var p paymodel.Payment
	if err := tx.Clauses(lockingUpdate()).Where("payment_id = ?", id).Take(&p).Error; err != nil {
		return nil, notFound(err, "payment "+id.String())
	}
	return &p, nil
}

func SavePayment(tx *gorm.DB, p *paymodel.Payment) error {
	if err := tx.Save(p).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", finerr.ErrDuplicatePayment, p.PaymentExternalReference)
		}
		return err
	}
	return nil
}

func RecordAudit(tx *gorm.DB, a *paymodel.PaymentAudit) error {
	return tx.Create(a).Error
}

// HasAudit reports whether the payment already carries an audit of kind.
func HasAudit(tx *gorm.DB, paymentID uuid.UUID, kind paymodel.AuditKind) (bool, error) {
	var n int64
	err := tx.Model(&paymodel.PaymentAudit{}).
		Where("audit_payment_id = ? AND audit_kind = ?", paymentID, kind).
		Count(&n).Error
	return n > 0, err
}

func (s *Store) FindPaymentByExternalReference(ctx context.Context, ref string) (*paymodel.Payment, error) {
	var p paymodel.Payment
	if err := s.db.WithContext(ctx).Where("payment_external_reference = ?", ref).Take(&p).Error; err != nil {
		return nil, notFound(err, "payment external reference "+ref)
	}
	return &p, nil
}

func (s *Store) FindPaymentByReference(ctx context.Context, ref string) (*paymodel.Payment, error) {
	var p paymodel.Payment
	if err := s.db.WithContext(ctx).Where("payment_reference = ?", ref).Take(&p).Error; err != nil {
		return nil, notFound(err, "payment "+ref)
	}
	return &p, nil
}

func (s *Store) ListPaymentsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]paymodel.Payment, error) {
	var rows []paymodel.Payment
	err := s.db.WithContext(ctx).
		Where("payment_invoice_id = ?", invoiceID).
		Order("payment_requested_at ASC").
		Find(&rows).Error
	return rows, classify(err)
}

// StalePayments returns open payments requested before cutoff, oldest first.
func (s *Store) StalePayments(ctx context.Context, cutoff time.Time, limit int) ([]paymodel.Payment, error) {
	var rows []paymodel.Payment
	err := s.db.WithContext(ctx).
		Where("payment_status IN ?", []paymodel.PaymentStatus{
			paymodel.PaymentStatusInitiated,
			paymodel.PaymentStatusPendingConfirmation,
		}).
		Where("payment_requested_at < ?", cutoff).
		Order("payment_requested_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, classify(err)
}

type AuditFilter struct {
	UnresolvedOnly bool
	Kind           paymodel.AuditKind
	InvoiceID      *uuid.UUID
	Limit          int
	Offset         int
}

func (s *Store) ListAudits(ctx context.Context, f AuditFilter) ([]paymodel.PaymentAudit, int64, error) {
	q := s.db.WithContext(ctx).Model(&paymodel.PaymentAudit{})
	if f.UnresolvedOnly {
		q = q.Where("audit_resolved = ?", false)
	}
	if f.Kind != "" {
		q = q.Where("audit_kind = ?", f.Kind)
	}
	if f.InvoiceID != nil {
		q = q.Where("audit_invoice_id = ?", *f.InvoiceID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, classify(err)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	var rows []paymodel.PaymentAudit
	err := q.Order("audit_created_at DESC").Limit(limit).Offset(f.Offset).Find(&rows).Error
	return rows, total, classify(err)
}

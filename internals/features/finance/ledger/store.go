// Package ledger is the access layer over the invoices/payments tables and
// the single place where invoice rows are locked and mutated.
package ledger

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/boazomare1/school-managementKE-sub001/internals/features/finance/finerr"
	invmodel "github.com/boazomare1/school-managementKE-sub001/internals/features/finance/invoices/model"
)

const defaultLockTimeout = 5 * time.Second

// Store wraps the gorm handle shared by the invoice manager and the
// reconciliation engine.
type Store struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

type Option func(*Store)

// WithLockTimeout bounds how long WithInvoiceLock waits for a busy invoice row.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

func NewStore(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, lockTimeout: defaultLockTimeout}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) DB() *gorm.DB { return s.db }

// InvoiceFunc runs with the invoice row locked. Every read or write it does
// must go through tx.
type InvoiceFunc func(tx *gorm.DB, inv *invmodel.Invoice) error

// WithInvoiceLock loads the invoice FOR UPDATE, runs fn, re-checks the balance
// invariant and persists the invoice, all in one transaction. Any error rolls
// back every write fn made.
func (s *Store) WithInvoiceLock(ctx context.Context, invoiceID uuid.UUID, fn InvoiceFunc) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.isPostgres() {
			// SET LOCAL takes no bind parameters
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}

		var inv invmodel.Invoice
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("invoice_id = ?", invoiceID).
			Take(&inv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: invoice %s", finerr.ErrNotFound, invoiceID)
			}
			return err
		}
		before := inv

		if err := fn(tx, &inv); err != nil {
			return err
		}
		if err := inv.CheckBalance(); err != nil {
			return err
		}
		if !inv.InvoiceTotalAmount.Equal(before.InvoiceTotalAmount) {
			return fmt.Errorf("invoice %s: total amount is immutable", inv.InvoiceNumber)
		}
		if inv.InvoicePaidAmount.LessThan(before.InvoicePaidAmount) {
			return fmt.Errorf("invoice %s: paid amount cannot decrease", inv.InvoiceNumber)
		}
		if invoiceChanged(&before, &inv) {
			return tx.Save(&inv).Error
		}
		return nil
	})
	return classify(err)
}

func invoiceChanged(a, b *invmodel.Invoice) bool {
	return a.InvoiceStatus != b.InvoiceStatus ||
		!a.InvoicePaidAmount.Equal(b.InvoicePaidAmount) ||
		!a.InvoiceBalanceAmount.Equal(b.InvoiceBalanceAmount) ||
		a.InvoiceIsActive != b.InvoiceIsActive
}

func (s *Store) isPostgres() bool {
	return s.db.Dialector != nil && s.db.Dialector.Name() == "postgres"
}

/* =========================================================
   Error classification
========================================================= */

// Postgres SQLSTATE codes worth retrying.
var transientCodes = map[string]bool{
	"55P03": true, // lock_not_available
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"57014": true, // query_canceled (statement_timeout)
	"08006": true, // connection_failure
	"08003": true, // connection_does_not_exist
}

// classify wraps infrastructure errors with finerr.ErrTransient and leaves
// domain errors untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, finerr.ErrTransient) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && transientCodes[pgErr.Code] {
		return fmt.Errorf("%w: %v", finerr.ErrTransient, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", finerr.ErrTransient, err)
	}
	lc := strings.ToLower(err.Error())
	if strings.Contains(lc, "database is locked") || strings.Contains(lc, "connection refused") {
		return fmt.Errorf("%w: %v", finerr.ErrTransient, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	lc := strings.ToLower(err.Error())
	return strings.Contains(lc, "duplicate") || strings.Contains(lc, "unique constraint")
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", finerr.ErrNotFound, what)
	}
	return classify(err)
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoiceflow/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type store struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Store {
	return &store{db: db}
}

// Save upserts the invoice keyed by id. A retried save of the same invoice
// updates the existing row instead of inserting a duplicate.
func (s *store) Save(ctx context.Context, invoice *domain.Invoice) error {
	if invoice == nil || invoice.ID == 0 {
		return fmt.Errorf("%w: missing invoice id", domain.ErrStore)
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "description", "items", "metadata", "updated_at",
			}),
		}).
		Create(invoice).Error
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStore, err)
	}
	return nil
}

func (s *store) Get(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := s.db.WithContext(ctx).First(&invoice, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}
	return &invoice, nil
}

func (s *store) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Invoice, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, domain.ErrNotFound
	}
	var invoice domain.Invoice
	err := s.db.WithContext(ctx).First(&invoice, "payment_id = ?", paymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}
	return &invoice, nil
}

// UpdateStatus moves the invoice to next. The transition is validated against
// the current row inside a transaction and applied with a conditional UPDATE,
// so concurrent writers cannot race a terminal invoice back to life.
func (s *store) UpdateStatus(ctx context.Context, id snowflake.ID, next domain.InvoiceStatus) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current domain.Invoice
		if err := tx.First(&current, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("%w: %v", domain.ErrStore, err)
		}

		if !current.Status.CanTransitionTo(next) {
			if current.Status == domain.InvoiceStatusPaid {
				return domain.ErrTerminalStatus
			}
			return fmt.Errorf("%w: %s -> %s", domain.ErrTerminalStatus, current.Status, next)
		}

		res := tx.Model(&domain.Invoice{}).
			Where("id = ? AND status = ?", id, current.Status).
			Update("status", next)
		if res.Error != nil {
			return fmt.Errorf("%w: %v", domain.ErrStore, res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the race; the row moved under us.
			return fmt.Errorf("%w: concurrent status change", domain.ErrStore)
		}
		return nil
	})
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/invoiceflow/internal/branding/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Resolver {
	return &repo{db: db}
}

func (r *repo) Resolve(ctx context.Context, merchantID string) (*domain.MerchantBranding, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return nil, domain.ErrNotFound
	}

	var branding domain.MerchantBranding
	err := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		First(&branding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		// Any other database error counts as the store being unreachable so
		// callers retry instead of treating the merchant as unconfigured.
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return &branding, nil
}
